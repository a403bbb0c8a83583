// Package notify delivers sign-in links to attendees.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	mailjet "github.com/mailjet/mailjet-apiv3-go"
)

const (
	defaultSubject    = "Sign in to Conference Companion"
	defaultSenderName = "Conference Companion"
)

// MailjetSender sends sign-in links through the Mailjet v3.1 send API.
type MailjetSender struct {
	from     string
	fromName string
	subject  string
	send     func(*mailjet.MessagesV31) error
	logger   *slog.Logger
}

// MailjetOption configures a MailjetSender.
type MailjetOption func(*MailjetSender)

// WithSubject overrides the message subject.
func WithSubject(subject string) MailjetOption {
	return func(s *MailjetSender) {
		if strings.TrimSpace(subject) != "" {
			s.subject = subject
		}
	}
}

// WithSenderName overrides the display name of the sender.
func WithSenderName(name string) MailjetOption {
	return func(s *MailjetSender) {
		if strings.TrimSpace(name) != "" {
			s.fromName = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) MailjetOption {
	return func(s *MailjetSender) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewMailjetSender returns a sender authenticated with the given API keys.
func NewMailjetSender(publicKey, privateKey, from string, opts ...MailjetOption) *MailjetSender {
	client := mailjet.NewMailjetClient(publicKey, privateKey)
	return newMailjetSender(from, func(msgs *mailjet.MessagesV31) error {
		_, err := client.SendMailV31(msgs)
		return err
	}, opts...)
}

func newMailjetSender(from string, send func(*mailjet.MessagesV31) error, opts ...MailjetOption) *MailjetSender {
	s := &MailjetSender{
		from:     from,
		fromName: defaultSenderName,
		subject:  defaultSubject,
		send:     send,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendSignInLink emails link to email.
func (s *MailjetSender) SendSignInLink(ctx context.Context, email, link string) error {
	info := []mailjet.InfoMessagesV31{{
		From:     &mailjet.RecipientV31{Email: s.from, Name: s.fromName},
		To:       &mailjet.RecipientsV31{mailjet.RecipientV31{Email: email}},
		Subject:  s.subject,
		TextPart: signInText(link),
		HTMLPart: signInHTML(link),
	}}
	if err := s.send(&mailjet.MessagesV31{Info: info}); err != nil {
		return fmt.Errorf("could not send mail: %w", err)
	}
	s.logger.InfoContext(ctx, "sign-in email sent", "component", "notify")
	return nil
}

func signInText(link string) string {
	return "Use the link below to sign in. It can be used once and expires in 24 hours.\n\n" + link + "\n"
}

func signInHTML(link string) string {
	return `<p>Use the link below to sign in. It can be used once and expires in 24 hours.</p>` +
		`<p><a href="` + htmlEscape(link) + `">Sign in</a></p>`
}

func htmlEscape(s string) string {
	return strings.NewReplacer("&", "&amp;", `"`, "&quot;", "<", "&lt;", ">", "&gt;").Replace(s)
}

// LogSender logs sign-in links instead of sending them. It is meant for
// local development and keeps the last link per address.
type LogSender struct {
	logger *slog.Logger
	mu     sync.Mutex
	last   map[string]string
}

// NewLogSender returns a LogSender writing to logger.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger, last: make(map[string]string)}
}

// SendSignInLink logs the link at warn level.
func (s *LogSender) SendSignInLink(ctx context.Context, email, link string) error {
	s.mu.Lock()
	s.last[email] = link
	s.mu.Unlock()
	s.logger.WarnContext(ctx, "email delivery disabled, sign-in link logged",
		"component", "notify",
		"email", email,
		"link", link,
	)
	return nil
}

// LastLink returns the most recent link logged for email.
func (s *LogSender) LastLink(email string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.last[email]
	return link, ok
}

// Sender delivers a sign-in link.
type Sender interface {
	SendSignInLink(ctx context.Context, email, link string) error
}

// DeliveryObserver receives the outcome of every delivery attempt.
type DeliveryObserver interface {
	ObserveSignInEmail(err error)
}

// ObservedSender reports each delivery of next to an observer.
type ObservedSender struct {
	next     Sender
	observer DeliveryObserver
}

// Observe wraps next so that observer sees every delivery outcome.
func Observe(next Sender, observer DeliveryObserver) *ObservedSender {
	return &ObservedSender{next: next, observer: observer}
}

func (s *ObservedSender) SendSignInLink(ctx context.Context, email, link string) error {
	err := s.next.SendSignInLink(ctx, email, link)
	if s.observer != nil {
		s.observer.ObserveSignInEmail(err)
	}
	return err
}
