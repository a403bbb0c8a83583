package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/samber/do/v2"

	"github.com/example/conference-companion/internal/application"
	"github.com/example/conference-companion/internal/catalog"
	"github.com/example/conference-companion/internal/config"
	"github.com/example/conference-companion/internal/feed"
	httptransport "github.com/example/conference-companion/internal/http"
	"github.com/example/conference-companion/internal/maintenance"
	"github.com/example/conference-companion/internal/metrics"
	"github.com/example/conference-companion/internal/notify"
	"github.com/example/conference-companion/internal/storage"
)

const storageInitTimeout = 15 * time.Second

func setupDI(cfg *config.Config, logger *slog.Logger) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, logger)
	registerInfrastructure(injector)
	registerServices(injector)
	registerTransport(injector)

	return injector
}

func registerInfrastructure(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*metrics.Manager, error) {
		return metrics.NewManager(metrics.WithRuntimeMetrics()), nil
	})

	do.Provide(injector, func(i do.Injector) (storage.Backend, error) {
		cfg := do.MustInvoke[*config.Config](i)
		logger := do.MustInvoke[*slog.Logger](i)
		ctx, cancel := context.WithTimeout(context.Background(), storageInitTimeout)
		defer cancel()

		backend, err := storage.Open(ctx, storage.Options{
			Driver:      cfg.Store.Driver,
			SQLitePath:  cfg.Store.SQLitePath,
			PostgresDSN: cfg.Store.PostgresDSN,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Store.Driver, err)
		}
		return backend, nil
	})

	do.Provide(injector, func(i do.Injector) (*catalog.Store, error) {
		cfg := do.MustInvoke[*config.Config](i)
		logger := do.MustInvoke[*slog.Logger](i)
		recorder := do.MustInvoke[*metrics.Manager](i)

		store := catalog.NewStore(cfg.Catalog.SessionsPath, cfg.Catalog.SpeakersPath,
			catalog.WithLogger(logger),
			catalog.WithObserver(recorder),
		)
		// A missing or broken catalog is served as empty until a reload succeeds.
		if _, err := store.Reload(context.Background()); err != nil {
			logger.Warn("starting with an empty catalog", "error", err)
		}
		return store, nil
	})

	do.Provide(injector, func(i do.Injector) (application.LinkSender, error) {
		cfg := do.MustInvoke[*config.Config](i)
		logger := do.MustInvoke[*slog.Logger](i)
		if cfg.Mail.MailjetAPIKey == "" {
			logger.Warn("mailjet not configured, sign-in links are logged")
			return notify.NewLogSender(logger), nil
		}
		return notify.NewMailjetSender(cfg.Mail.MailjetAPIKey, cfg.Mail.MailjetSecretKey, cfg.Mail.From,
			notify.WithSenderName(cfg.Mail.SenderName),
			notify.WithSubject(cfg.Mail.Subject),
			notify.WithLogger(logger),
		), nil
	})
}

func registerServices(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*application.SelectionService, error) {
		backend := do.MustInvoke[storage.Backend](i)
		logger := do.MustInvoke[*slog.Logger](i)
		svc := application.NewSelectionServiceWithLogger(storage.NewSelectionStore(backend), uuid.NewString, time.Now, logger)
		svc.SetObserver(do.MustInvoke[*metrics.Manager](i))
		return svc, nil
	})

	do.Provide(injector, func(i do.Injector) (*application.FeedService, error) {
		backend := do.MustInvoke[storage.Backend](i)
		store := do.MustInvoke[*catalog.Store](i)
		logger := do.MustInvoke[*slog.Logger](i)
		svc := application.NewFeedServiceWithLogger(storage.NewSelectionStore(backend), store, feed.NewEncoder(feed.Options{}), time.Now, logger)
		svc.SetObserver(do.MustInvoke[*metrics.Manager](i))
		return svc, nil
	})

	do.Provide(injector, func(i do.Injector) (*application.CatalogService, error) {
		backend := do.MustInvoke[storage.Backend](i)
		store := do.MustInvoke[*catalog.Store](i)
		logger := do.MustInvoke[*slog.Logger](i)
		return application.NewCatalogServiceWithLogger(store, store, storage.NewSelectionStore(backend), logger), nil
	})

	do.Provide(injector, func(i do.Injector) (*application.AuthService, error) {
		cfg := do.MustInvoke[*config.Config](i)
		backend := do.MustInvoke[storage.Backend](i)
		logger := do.MustInvoke[*slog.Logger](i)
		sender := do.MustInvoke[application.LinkSender](i)
		selections := do.MustInvoke[*application.SelectionService](i)
		recorder := do.MustInvoke[*metrics.Manager](i)

		return application.NewAuthServiceWithLogger(
			storage.NewAccountStore(backend),
			storage.NewChallengeStore(backend),
			notify.Observe(sender, recorder),
			selections,
			application.AuthConfig{
				SessionSecret: []byte(cfg.Auth.SessionSecret),
				Issuer:        cfg.Auth.Issuer,
				BaseURL:       cfg.HTTP.BaseURL,
				SessionTTL:    cfg.Auth.SessionTTL,
				TokenTTL:      cfg.Auth.TokenTTL,
			},
			time.Now,
			logger,
		), nil
	})

	do.Provide(injector, func(i do.Injector) (*maintenance.Scheduler, error) {
		cfg := do.MustInvoke[*config.Config](i)
		logger := do.MustInvoke[*slog.Logger](i)
		catalogService := do.MustInvoke[*application.CatalogService](i)
		auth := do.MustInvoke[*application.AuthService](i)

		scheduler := maintenance.NewScheduler(
			maintenance.WithLogger(logger),
			maintenance.WithObserver(do.MustInvoke[*metrics.Manager](i)),
		)
		if err := scheduler.Add(maintenance.JobCatalogReload, cfg.Catalog.ReloadSchedule, maintenance.ReloadCatalogJob(catalogService)); err != nil {
			return nil, err
		}
		if err := scheduler.Add(maintenance.JobChallengePurge, cfg.Maintenance.PurgeSchedule, maintenance.PurgeChallengesJob(auth)); err != nil {
			return nil, err
		}
		return scheduler, nil
	})
}

func registerTransport(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (http.Handler, error) {
		cfg := do.MustInvoke[*config.Config](i)
		logger := do.MustInvoke[*slog.Logger](i)
		backend := do.MustInvoke[storage.Backend](i)
		recorder := do.MustInvoke[*metrics.Manager](i)
		auth := do.MustInvoke[*application.AuthService](i)

		return httptransport.NewRouter(httptransport.RouterConfig{
			Calendar: httptransport.NewCalendarHandler(
				do.MustInvoke[*application.SelectionService](i),
				do.MustInvoke[*application.FeedService](i),
				cfg.HTTP.BaseURL,
				logger,
			),
			Auth: httptransport.NewAuthHandler(auth, httptransport.AuthCookieConfig{
				HashKey:  keyBytes(cfg.Auth.CookieHashKey),
				BlockKey: keyBytes(cfg.Auth.CookieBlockKey),
				Secure:   cfg.HTTP.CookieSecure,
			}, logger),
			Catalog:  httptransport.NewCatalogHandler(do.MustInvoke[*application.CatalogService](i), cfg.Catalog.RefreshSecret, logger),
			Identity: auth,
			Metrics:  recorder.Handler(),
			Health:   backend.Ping,
			Logger:   logger,
			Middleware: []func(http.Handler) http.Handler{
				httptransport.RequestLogger(logger),
				httptransport.Metrics(recorder),
			},
		}), nil
	})
}

// keyBytes returns nil for an unset key so the cookie codec skips encryption.
func keyBytes(key string) []byte {
	if key == "" {
		return nil
	}
	return []byte(key)
}
