package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// RouterConfig wires handlers into the API surface. Nil handlers leave their
// routes unregistered.
type RouterConfig struct {
	Calendar  *CalendarHandler
	Auth      *AuthHandler
	Catalog   *CatalogHandler
	Identity  IdentityValidator
	Dashboard http.Handler
	Metrics   http.Handler
	// Health reports readiness of backing stores for /healthz.
	Health     func(ctx context.Context) error
	Logger     *slog.Logger
	Middleware []func(http.Handler) http.Handler
}

// NewRouter builds the service handler.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	identify := Identify(cfg.Identity, cfg.Logger)
	require := RequireIdentity(cfg.Identity, cfg.Logger)

	if cfg.Calendar != nil {
		mux.Handle("/api/calendar", require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Calendar.Get(w, r)
			case http.MethodPost:
				cfg.Calendar.Create(w, r)
			case http.MethodPut:
				cfg.Calendar.Update(w, r)
			case http.MethodDelete:
				cfg.Calendar.Delete(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete)
			}
		})))
		mux.Handle("/api/calendar/save", require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Calendar.Save(w, r)
		})))
		mux.HandleFunc("/api/calendar/", func(w http.ResponseWriter, r *http.Request) {
			feedID := strings.TrimPrefix(r.URL.Path, "/api/calendar/")
			feedID = strings.TrimSuffix(feedID, ".ics")
			if feedID == "" || strings.Contains(feedID, "/") {
				http.NotFound(w, r)
				return
			}
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				methodNotAllowed(w, http.MethodGet, http.MethodHead)
				return
			}
			cfg.Calendar.Feed(w, r, feedID)
		})
	}

	if cfg.Catalog != nil {
		mux.Handle("/api/sessions", identify(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Catalog.Sessions(w, r)
		})))
		mux.HandleFunc("/api/speakers", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Catalog.Speakers(w, r)
		})
		mux.HandleFunc("/api/catalog/refresh", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Catalog.Refresh(w, r)
		})
	}

	if cfg.Auth != nil {
		mux.HandleFunc("/api/auth/signin", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Auth.SignIn(w, r)
		})
		mux.HandleFunc("/api/auth/verify", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Auth.Verify(w, r)
		})
		mux.Handle("/api/auth/session", identify(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Auth.Session(w, r)
			case http.MethodDelete:
				cfg.Auth.SignOut(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodDelete)
			}
		})))
	}

	dashboard := cfg.Dashboard
	if dashboard == nil {
		dashboard = http.HandlerFunc(placeholderDashboard)
	}
	mux.Handle("/dashboard", DashboardGate(dashboard))
	mux.Handle("/dashboard/", DashboardGate(dashboard))

	if cfg.Metrics != nil {
		mux.Handle("/metrics", cfg.Metrics)
	}

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(r.Context()); err != nil {
				newResponder(cfg.Logger).writeError(r.Context(), w, http.StatusServiceUnavailable, err)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}

	return handler
}

func placeholderDashboard(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("dashboard"))
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
