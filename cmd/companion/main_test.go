package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/samber/do/v2"

	"github.com/example/conference-companion/internal/application"
	"github.com/example/conference-companion/internal/config"
	"github.com/example/conference-companion/internal/maintenance"
	"github.com/example/conference-companion/internal/notify"
	"github.com/example/conference-companion/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.New()
	cfg.Auth.SessionSecret = "test-secret"
	cfg.Store.Driver = storage.DriverMemory
	dir := t.TempDir()
	cfg.Catalog.SessionsPath = filepath.Join(dir, "sessions.json")
	cfg.Catalog.SpeakersPath = filepath.Join(dir, "speakers.json")
	return cfg
}

func TestSetupDI_ServesHealthz(t *testing.T) {
	injector := setupDI(testConfig(t), slog.New(slog.NewJSONHandler(io.Discard, nil)))

	backend, err := do.Invoke[storage.Backend](injector)
	if err != nil {
		t.Fatalf("invoke storage: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })

	handler, err := do.Invoke[http.Handler](injector)
	if err != nil {
		t.Fatalf("invoke handler: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSetupDI_RegistersMaintenanceJobs(t *testing.T) {
	injector := setupDI(testConfig(t), slog.New(slog.NewJSONHandler(io.Discard, nil)))

	scheduler, err := do.Invoke[*maintenance.Scheduler](injector)
	if err != nil {
		t.Fatalf("invoke scheduler: %v", err)
	}
	jobs := scheduler.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %v", jobs)
	}
}

func TestSetupDI_LogSenderWithoutMailjet(t *testing.T) {
	injector := setupDI(testConfig(t), slog.New(slog.NewJSONHandler(io.Discard, nil)))

	sender, err := do.Invoke[application.LinkSender](injector)
	if err != nil {
		t.Fatalf("invoke sender: %v", err)
	}
	if _, ok := sender.(*notify.LogSender); !ok {
		t.Fatalf("expected *notify.LogSender, got %T", sender)
	}
}

func TestKeyBytes(t *testing.T) {
	if keyBytes("") != nil {
		t.Fatal("expected nil for empty key")
	}
	if got := string(keyBytes("abc")); got != "abc" {
		t.Fatalf("unexpected key %q", got)
	}
}
