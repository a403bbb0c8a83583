// Package testserver assembles the full HTTP stack over in-memory storage for
// handler and client tests.
package testserver

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/example/conference-companion/internal/application"
	"github.com/example/conference-companion/internal/catalog"
	"github.com/example/conference-companion/internal/feed"
	companionhttp "github.com/example/conference-companion/internal/http"
	"github.com/example/conference-companion/internal/metrics"
	"github.com/example/conference-companion/internal/notify"
	"github.com/example/conference-companion/internal/persistence/memory"
	"github.com/example/conference-companion/internal/storage"
	"github.com/example/conference-companion/internal/testfixtures"
)

// BaseURL is the public origin the stack advertises.
const BaseURL = "https://companion.test"

// RefreshSecret guards the catalog refresh endpoint.
const RefreshSecret = "refresh-secret"

// Server is a fully wired handler plus handles on its collaborators.
type Server struct {
	Handler    http.Handler
	Clock      *testfixtures.Clock
	Sender     *notify.LogSender
	Catalog    *catalog.Store
	Storage    *memory.Storage
	Selections *application.SelectionService
	Feeds      *application.FeedService
	Auth       *application.AuthService
	Metrics    *metrics.Manager
}

type options struct {
	sessions     []catalog.Session
	sessionsPath string
	speakersPath string
}

// Option configures the stack.
type Option func(*options)

// WithSessions serves a static catalog made of sessions.
func WithSessions(sessions ...catalog.Session) Option {
	return func(o *options) {
		o.sessions = sessions
	}
}

// WithCatalogFiles loads the catalog from files so refresh can be exercised.
func WithCatalogFiles(sessionsPath, speakersPath string) Option {
	return func(o *options) {
		o.sessionsPath = sessionsPath
		o.speakersPath = speakersPath
	}
}

// ConflictingSessions returns a Keynote and a Workshop that overlap by half
// an hour, followed by a Panel that only touches the Workshop's end.
func ConflictingSessions() []catalog.Session {
	day := time.Date(2025, 8, 14, 0, 0, 0, 0, time.UTC)
	return []catalog.Session{
		testfixtures.NewSessionFixture(
			testfixtures.WithSessionDocumentID("s1"),
			testfixtures.WithSessionTitle("Keynote"),
			testfixtures.WithSessionWindow(day.Add(10*time.Hour), day.Add(11*time.Hour)),
		).Catalog(),
		testfixtures.NewSessionFixture(
			testfixtures.WithSessionDocumentID("s2"),
			testfixtures.WithSessionTitle("Workshop"),
			testfixtures.WithSessionRoom("Workshop Room"),
			testfixtures.WithSessionWindow(day.Add(10*time.Hour+30*time.Minute), day.Add(11*time.Hour+30*time.Minute)),
		).Catalog(),
		testfixtures.NewSessionFixture(
			testfixtures.WithSessionDocumentID("s3"),
			testfixtures.WithSessionTitle("Panel"),
			testfixtures.WithSessionSpeaker("moderator", "Grace Hopper"),
			testfixtures.WithSessionWindow(day.Add(11*time.Hour+30*time.Minute), day.Add(12*time.Hour)),
		).Catalog(),
	}
}

// New wires the stack. Without options the catalog is ConflictingSessions.
func New(tb testing.TB, opts ...Option) *Server {
	tb.Helper()
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	clock := testfixtures.NewClock(time.Time{})
	factory := testfixtures.NewServiceFactory(testfixtures.WithClock(clock), testfixtures.WithIDGenerator(testfixtures.NewIDGenerator("feed")))
	metricsManager := metrics.NewManager()

	var store *catalog.Store
	if o.sessionsPath != "" {
		store = catalog.NewStore(o.sessionsPath, o.speakersPath,
			catalog.WithClock(clock.NowFunc()),
			catalog.WithLogger(logger),
			catalog.WithObserver(metricsManager),
		)
		if _, err := store.Reload(context.Background()); err != nil {
			tb.Fatalf("load catalog: %v", err)
		}
	} else {
		sessions := o.sessions
		if sessions == nil {
			sessions = ConflictingSessions()
		}
		store = catalog.NewStaticStore(catalog.NewSnapshot(sessions, nil, clock.Now()))
	}

	mem := memory.Open()
	tb.Cleanup(func() { _ = mem.Close() })
	selectionsStore := storage.NewSelectionStore(mem)

	selections := factory.NewSelectionService(testfixtures.SelectionServiceDeps{Selections: selectionsStore, Logger: logger})
	selections.SetObserver(metricsManager)

	feeds := factory.NewFeedService(testfixtures.FeedServiceDeps{
		Selections: selectionsStore,
		Catalog:    store,
		Encoder:    feed.NewEncoder(feed.Options{}),
		Logger:     logger,
	})
	feeds.SetObserver(metricsManager)

	sender := notify.NewLogSender(logger)
	auth := factory.NewAuthService(testfixtures.AuthServiceDeps{
		Accounts:    storage.NewAccountStore(mem),
		Challenges:  storage.NewChallengeStore(mem),
		Sender:      sender,
		Provisioner: selections,
		Config:      application.AuthConfig{BaseURL: BaseURL},
		Logger:      logger,
	})

	catalogService := application.NewCatalogServiceWithLogger(store, store, selectionsStore, logger)

	handler := companionhttp.NewRouter(companionhttp.RouterConfig{
		Calendar: companionhttp.NewCalendarHandler(selections, feeds, BaseURL, logger),
		Auth:     companionhttp.NewAuthHandler(auth, companionhttp.AuthCookieConfig{HashKey: []byte("0123456789abcdef0123456789abcdef")}, logger),
		Catalog:  companionhttp.NewCatalogHandler(catalogService, RefreshSecret, logger),
		Identity: auth,
		Metrics:  metricsManager.Handler(),
		Health:   mem.Ping,
		Logger:   logger,
		Middleware: []func(http.Handler) http.Handler{
			companionhttp.RequestLogger(logger),
			companionhttp.Metrics(metricsManager),
		},
	})

	return &Server{
		Handler:    handler,
		Clock:      clock,
		Sender:     sender,
		Catalog:    store,
		Storage:    mem,
		Selections: selections,
		Feeds:      feeds,
		Auth:       auth,
		Metrics:    metricsManager,
	}
}

// SignIn runs the email link flow for email through the HTTP surface and
// returns the issued session cookie.
func (s *Server) SignIn(tb testing.TB, email string) *http.Cookie {
	tb.Helper()

	if err := s.Auth.RequestSignIn(context.Background(), email); err != nil {
		tb.Fatalf("request sign-in: %v", err)
	}
	normalized, err := application.NormalizeEmail(email)
	if err != nil {
		tb.Fatalf("normalize email: %v", err)
	}
	link, ok := s.Sender.LastLink(normalized)
	if !ok {
		tb.Fatalf("no sign-in link sent to %s", email)
	}
	parsed, err := url.Parse(link)
	if err != nil {
		tb.Fatalf("parse sign-in link: %v", err)
	}

	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, parsed.RequestURI(), nil))
	if rec.Code != http.StatusSeeOther {
		tb.Fatalf("verify returned %d: %s", rec.Code, rec.Body.String())
	}
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == companionhttp.SessionCookieName && cookie.Value != "" {
			return cookie
		}
	}
	tb.Fatalf("verify did not set a session cookie")
	return nil
}
