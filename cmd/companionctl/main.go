// Command companionctl manages an attendee's session selection from the
// terminal against a running companion API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/example/conference-companion/internal/client"
	"github.com/example/conference-companion/internal/logging"
	"github.com/example/conference-companion/internal/selection"
)

const usage = `usage: companionctl [flags] <command> [args]

commands:
  status              show the feed id and selected sessions
  toggle <id>...      select or unselect sessions
  sessions [query]    list catalog sessions, optionally filtered
  feed                print the calendar feed
`

var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "companionctl:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("companionctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	baseURL := fs.String("url", envOr("COMPANION_URL", "http://localhost:8080"), "companion API base URL")
	token := fs.String("token", os.Getenv("COMPANION_TOKEN"), "session token")
	timeout := fs.Duration("timeout", 30*time.Second, "request timeout")
	logLevel := fs.String("log-level", "warn", "log level")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	api := client.New(*baseURL, *token)
	logger := logging.New(stderr, *logLevel)

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "status":
		return status(ctx, api, stdout)
	case "toggle":
		if len(rest) == 0 {
			fs.Usage()
			return errUsage
		}
		return toggle(ctx, api, logger, rest, stdout)
	case "sessions":
		return sessions(ctx, api, strings.Join(rest, " "), stdout)
	case "feed":
		return printFeed(ctx, api, stdout)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return errUsage
	}
}

func status(ctx context.Context, api *client.Client, w io.Writer) error {
	doc, found, err := api.Fetch(ctx)
	if err != nil {
		return err
	}
	if !found {
		fmt.Fprintln(w, "no selection yet")
		return nil
	}
	fmt.Fprintf(w, "feed:   %s\n", api.FeedURL(doc.FeedID))
	fmt.Fprintf(w, "webcal: %s\n", api.WebcalURL(doc.FeedID))
	fmt.Fprintf(w, "selected (%d):\n", len(doc.SelectedEventIDs))
	for _, id := range doc.SelectedEventIDs {
		fmt.Fprintf(w, "  %s\n", id)
	}
	return nil
}

func toggle(ctx context.Context, api *client.Client, logger *slog.Logger, ids []string, w io.Writer) error {
	syncer := selection.New(api, logger)
	if err := syncer.Load(ctx); err != nil {
		return err
	}

	var failed []error
	for _, id := range ids {
		if err := syncer.Toggle(ctx, id); err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", id, err))
			continue
		}
		verb := "unselected"
		if syncer.IsSelected(id) {
			verb = "selected"
		}
		fmt.Fprintf(w, "%s %s\n", verb, id)
	}

	if feedID := syncer.FeedID(); feedID != "" {
		fmt.Fprintf(w, "feed: %s\n", api.FeedURL(feedID))
	}
	return errors.Join(failed...)
}

func sessions(ctx context.Context, api *client.Client, query string, w io.Writer) error {
	list, err := api.Sessions(ctx, query)
	if err != nil {
		return err
	}
	for _, s := range list {
		mark := " "
		if s.Selected {
			mark = "x"
		}
		fmt.Fprintf(w, "[%s] %-12s %s-%s  %s", mark, s.DocumentID,
			s.StartTime.UTC().Format("Jan 02 15:04"), s.EndTime.UTC().Format("15:04"), s.Title)
		if s.Room != "" {
			fmt.Fprintf(w, " (%s)", s.Room)
		}
		fmt.Fprintln(w)
		if len(s.Conflicts) > 0 {
			fmt.Fprintf(w, "    conflicts with: %s\n", strings.Join(s.Conflicts, ", "))
		}
	}
	return nil
}

func printFeed(ctx context.Context, api *client.Client, w io.Writer) error {
	doc, found, err := api.Fetch(ctx)
	if err != nil {
		return err
	}
	if !found {
		return errors.New("no selection yet, toggle a session first")
	}
	body, err := api.Feed(ctx, doc.FeedID)
	if err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
