package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
)

const (
	envPrefix  = "COMPANION_"
	fileEnvKey = "COMPANION_CONFIG"
)

// Load builds a Config by layering defaults, an optional file and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. YAML file if COMPANION_CONFIG is set
//  3. env (prefix COMPANION_, "__" separates nested keys, e.g. COMPANION_HTTP__PORT)
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := strings.TrimSpace(os.Getenv(fileEnvKey)); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		if s == fileEnvKey {
			return ""
		}
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	normalize(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func normalize(cfg *Config) {
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	cfg.HTTP.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.HTTP.BaseURL), "/")
	cfg.Auth.SessionSecret = strings.TrimSpace(cfg.Auth.SessionSecret)
	cfg.Catalog.RefreshSecret = strings.TrimSpace(cfg.Catalog.RefreshSecret)
}

// Validate reports every missing or invalid key in a single error.
func (c *Config) Validate() error {
	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 4)

	if c.Auth.SessionSecret == "" {
		missing = append(missing, "auth.session_secret")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		invalid = append(invalid, "http.port")
	}
	if u, err := url.Parse(c.HTTP.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		invalid = append(invalid, "http.base_url")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		invalid = append(invalid, "logging.level")
	}
	switch c.Store.Driver {
	case "sqlite":
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			missing = append(missing, "store.sqlite_path")
		}
	case "postgres":
		if strings.TrimSpace(c.Store.PostgresDSN) == "" {
			missing = append(missing, "store.postgres_dsn")
		}
	case "memory":
	default:
		invalid = append(invalid, "store.driver")
	}
	if c.Auth.SessionTTL <= 0 {
		invalid = append(invalid, "auth.session_ttl")
	}
	if c.Auth.TokenTTL <= 0 {
		invalid = append(invalid, "auth.token_ttl")
	}
	switch len(c.Auth.CookieBlockKey) {
	case 0, 16, 24, 32:
	default:
		invalid = append(invalid, "auth.cookie_block_key")
	}
	if c.Mail.MailjetAPIKey != "" && c.Mail.MailjetSecretKey == "" {
		missing = append(missing, "mail.mailjet_secret_key")
	}
	if !validSchedule(c.Catalog.ReloadSchedule) {
		invalid = append(invalid, "catalog.reload_schedule")
	}
	if !validSchedule(c.Maintenance.PurgeSchedule) {
		invalid = append(invalid, "maintenance.purge_schedule")
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", ")))
	}
	if len(invalid) > 0 {
		errs = append(errs, fmt.Errorf("invalid configuration values: %s", strings.Join(invalid, ", ")))
	}
	return errors.Join(errs...)
}

// validSchedule accepts an empty schedule, which disables the job.
func validSchedule(spec string) bool {
	if strings.TrimSpace(spec) == "" {
		return true
	}
	_, err := cron.ParseStandard(spec)
	return err == nil
}
