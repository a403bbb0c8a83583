package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/example/conference-companion/internal/application"
)

// SessionCookieName names the cookie carrying the session token.
const SessionCookieName = "session"

// IdentityValidator resolves a session token into a principal.
type IdentityValidator interface {
	ValidateSession(ctx context.Context, token string) (application.Principal, error)
}

// RequestObserver records served requests.
type RequestObserver interface {
	ObserveHTTPRequest(route, method string, status int, elapsed time.Duration)
}

// Identify attaches the principal to the request context when a valid
// session token is present. Requests without one pass through anonymously.
func Identify(validator IdentityValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	base := defaultLogger(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractTokenFromRequest(r)
			if token == "" || validator == nil {
				next.ServeHTTP(w, r)
				return
			}
			principal, err := validator.ValidateSession(r.Context(), token)
			if err != nil {
				if !errors.Is(err, application.ErrUnauthorized) {
					handlerLogger(r.Context(), base, "Identify", "").WarnContext(r.Context(), "session validation failed", "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireIdentity rejects requests without a valid session token.
func RequireIdentity(validator IdentityValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := PrincipalFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			token := extractTokenFromRequest(r)
			if token == "" || validator == nil {
				responder.writeJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{
					ErrorCode: "AUTH_REQUIRED",
					Message:   errMissingIdentity.Error(),
				})
				return
			}

			principal, err := validator.ValidateSession(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, application.ErrUnauthorized), errors.Is(err, application.ErrNotFound):
					responder.writeJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{
						ErrorCode: "AUTH_SESSION_EXPIRED",
						Message:   errInvalidSession.Error(),
					})
				default:
					responder.loggerFor(r.Context()).ErrorContext(r.Context(), "session validation failed", "error", err)
					responder.writeJSON(r.Context(), w, http.StatusInternalServerError, errorResponse{Message: statusMessage(http.StatusInternalServerError)})
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// DashboardGate redirects requests without a session cookie to the landing
// page, remembering the requested path. The cookie is not validated here; the
// API calls made by the page are.
func DashboardGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
			next.ServeHTTP(w, r)
			return
		}
		target := "/?redirect=" + url.QueryEscape(r.URL.Path)
		http.Redirect(w, r, target, http.StatusFound)
	})
}

// RequestLogger assigns a sequential request_id and logs request start and
// completion with the response status.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	base = defaultLogger(base)
	var counter atomic.Uint64

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := counter.Add(1)
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := ContextWithLogger(r.Context(), logger)
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			logger.DebugContext(ctx, "request started")
			next.ServeHTTP(rec, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "status", rec.status, "duration", time.Since(start))
		})
	}
}

// Metrics reports every request to observer, labelled by route template.
func Metrics(observer RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if observer == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			observer.ObserveHTTPRequest(routeLabel(r.URL.Path), r.Method, rec.status, time.Since(start))
		})
	}
}

var knownRoutes = map[string]struct{}{
	"/api/calendar":        {},
	"/api/calendar/save":   {},
	"/api/sessions":        {},
	"/api/speakers":        {},
	"/api/auth/signin":     {},
	"/api/auth/verify":     {},
	"/api/auth/session":    {},
	"/api/catalog/refresh": {},
	"/healthz":             {},
	"/metrics":             {},
	"/":                    {},
}

// routeLabel collapses request paths into a bounded set of labels.
func routeLabel(path string) string {
	if _, ok := knownRoutes[path]; ok {
		return path
	}
	switch {
	case strings.HasPrefix(path, "/api/calendar/"):
		return "/api/calendar/{feedId}"
	case path == "/dashboard" || strings.HasPrefix(path, "/dashboard/"):
		return "/dashboard"
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(status int) {
	if !s.wroteHeader {
		s.status = status
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func extractTokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		const prefix = "Bearer "
		if strings.HasPrefix(header, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(header, prefix))
		}
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}
