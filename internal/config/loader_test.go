package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnvironment(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, envPrefix) {
			t.Setenv(key, "")
			if err := os.Unsetenv(key); err != nil {
				t.Fatalf("failed to unset %s: %v", key, err)
			}
		}
	}
}

func TestLoader_ParseEnvironment(t *testing.T) {
	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnvironment(t)
		const secret = "super-secret"
		t.Setenv("COMPANION_AUTH__SESSION_SECRET", secret)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.HTTP.Port != 8080 {
			t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTP.Port)
		}
		if cfg.Store.Driver != "sqlite" || cfg.Store.SQLitePath != "data/companion.db" {
			t.Fatalf("unexpected default store: %+v", cfg.Store)
		}
		if cfg.Auth.SessionSecret != secret {
			t.Fatalf("expected session secret to be %q, got %q", secret, cfg.Auth.SessionSecret)
		}
		if cfg.Auth.SessionTTL != 14*24*time.Hour {
			t.Fatalf("unexpected default session ttl: %v", cfg.Auth.SessionTTL)
		}
		if cfg.Addr() != ":8080" {
			t.Fatalf("unexpected addr: %q", cfg.Addr())
		}
	})

	t.Run("errors when required values are missing", func(t *testing.T) {
		clearEnvironment(t)

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error when required values are missing")
		}
		expected := "missing required configuration: auth.session_secret"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("parses nested overrides", func(t *testing.T) {
		clearEnvironment(t)
		t.Setenv("COMPANION_AUTH__SESSION_SECRET", "secret")
		t.Setenv("COMPANION_HTTP__PORT", "9090")
		t.Setenv("COMPANION_HTTP__BASE_URL", "https://conf.example.org/")
		t.Setenv("COMPANION_HTTP__COOKIE_SECURE", "true")
		t.Setenv("COMPANION_AUTH__SESSION_TTL", "48h")
		t.Setenv("COMPANION_STORE__DRIVER", "Memory")
		t.Setenv("COMPANION_LOGGING__LEVEL", "DEBUG")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.HTTP.Port != 9090 {
			t.Fatalf("expected port 9090, got %d", cfg.HTTP.Port)
		}
		if cfg.HTTP.BaseURL != "https://conf.example.org" {
			t.Fatalf("expected trailing slash trimmed, got %q", cfg.HTTP.BaseURL)
		}
		if !cfg.HTTP.CookieSecure {
			t.Fatalf("expected cookie secure to be enabled")
		}
		if cfg.Auth.SessionTTL != 48*time.Hour {
			t.Fatalf("expected session ttl 48h, got %v", cfg.Auth.SessionTTL)
		}
		if cfg.Store.Driver != "memory" || cfg.Logging.Level != "debug" {
			t.Fatalf("expected normalized driver and level, got %q %q", cfg.Store.Driver, cfg.Logging.Level)
		}
	})

	t.Run("collects invalid values", func(t *testing.T) {
		clearEnvironment(t)
		t.Setenv("COMPANION_AUTH__SESSION_SECRET", "secret")
		t.Setenv("COMPANION_HTTP__PORT", "-1")
		t.Setenv("COMPANION_STORE__DRIVER", "mongo")
		t.Setenv("COMPANION_CATALOG__RELOAD_SCHEDULE", "every now and then")

		_, err := Load()
		if err == nil {
			t.Fatalf("expected validation error")
		}
		expected := "invalid configuration values: http.port, store.driver, catalog.reload_schedule"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("requires a dsn for postgres", func(t *testing.T) {
		clearEnvironment(t)
		t.Setenv("COMPANION_AUTH__SESSION_SECRET", "secret")
		t.Setenv("COMPANION_STORE__DRIVER", "postgres")

		_, err := Load()
		if err == nil || !strings.Contains(err.Error(), "store.postgres_dsn") {
			t.Fatalf("expected missing postgres dsn, got %v", err)
		}
	})
}

func TestLoader_ConfigFile(t *testing.T) {
	clearEnvironment(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "companion.yaml")
	content := `
http:
  port: 7000
auth:
  session_secret: from-file
catalog:
  sessions_path: /srv/catalog/sessions.yaml
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("COMPANION_CONFIG", path)
	t.Setenv("COMPANION_HTTP__PORT", "7100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Auth.SessionSecret != "from-file" {
		t.Fatalf("expected secret from file, got %q", cfg.Auth.SessionSecret)
	}
	if cfg.HTTP.Port != 7100 {
		t.Fatalf("expected env to override file, got %d", cfg.HTTP.Port)
	}
	if cfg.Catalog.SessionsPath != "/srv/catalog/sessions.yaml" {
		t.Fatalf("unexpected sessions path %q", cfg.Catalog.SessionsPath)
	}
	if cfg.Catalog.SpeakersPath != "data/speakers.json" {
		t.Fatalf("expected default speakers path, got %q", cfg.Catalog.SpeakersPath)
	}
}
