// Package config defines the companion service configuration and how it is
// loaded from defaults, an optional YAML file and the environment.
package config

import (
	"strconv"
	"time"
)

// Config contains process configuration.
type Config struct {
	Logging     LoggingConfig     `koanf:"logging"`
	HTTP        HTTPConfig        `koanf:"http"`
	Store       StoreConfig       `koanf:"store"`
	Catalog     CatalogConfig     `koanf:"catalog"`
	Auth        AuthConfig        `koanf:"auth"`
	Mail        MailConfig        `koanf:"mail"`
	Maintenance MaintenanceConfig `koanf:"maintenance"`
}

// LoggingConfig controls verbosity: debug, info, warn, error.
type LoggingConfig struct {
	Level string `koanf:"level"`
}

// HTTPConfig configures the listener and the public URL of the service.
type HTTPConfig struct {
	Port int `koanf:"port"`
	// BaseURL is used to build magic links and feed URLs, e.g. "https://example.org".
	BaseURL      string        `koanf:"base_url"`
	CookieSecure bool          `koanf:"cookie_secure"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// StoreConfig selects the selection store backend.
type StoreConfig struct {
	// Driver is one of sqlite, postgres or memory.
	Driver      string `koanf:"driver"`
	SQLitePath  string `koanf:"sqlite_path"`
	PostgresDSN string `koanf:"postgres_dsn"`
}

// CatalogConfig points at the read-only catalog files.
type CatalogConfig struct {
	SessionsPath   string `koanf:"sessions_path"`
	SpeakersPath   string `koanf:"speakers_path"`
	RefreshSecret  string `koanf:"refresh_secret"`
	ReloadSchedule string `koanf:"reload_schedule"`
}

// AuthConfig configures sign-in and session credentials.
type AuthConfig struct {
	SessionSecret string        `koanf:"session_secret"`
	Issuer        string        `koanf:"issuer"`
	SessionTTL    time.Duration `koanf:"session_ttl"`
	TokenTTL      time.Duration `koanf:"token_ttl"`
	// CookieHashKey and CookieBlockKey sign and encrypt the pending sign-in
	// cookie. Random keys are generated at startup when left empty.
	CookieHashKey  string `koanf:"cookie_hash_key"`
	CookieBlockKey string `koanf:"cookie_block_key"`
}

// MailConfig configures Mailjet delivery. With no API key configured the
// service logs sign-in links instead of sending them.
type MailConfig struct {
	MailjetAPIKey    string `koanf:"mailjet_api_key"`
	MailjetSecretKey string `koanf:"mailjet_secret_key"`
	From             string `koanf:"from"`
	SenderName       string `koanf:"sender_name"`
	Subject          string `koanf:"subject"`
}

// MaintenanceConfig holds cron schedules for background jobs.
type MaintenanceConfig struct {
	PurgeSchedule string `koanf:"purge_schedule"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		HTTP: HTTPConfig{
			Port:         8080,
			BaseURL:      "http://localhost:8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Driver:     "sqlite",
			SQLitePath: "data/companion.db",
		},
		Catalog: CatalogConfig{
			SessionsPath:   "data/sessions.json",
			SpeakersPath:   "data/speakers.json",
			ReloadSchedule: "@every 15m",
		},
		Auth: AuthConfig{
			Issuer:     "conference-companion",
			SessionTTL: 14 * 24 * time.Hour,
			TokenTTL:   24 * time.Hour,
		},
		Mail: MailConfig{
			From:       "no-reply@localhost",
			SenderName: "Conference Companion",
			Subject:    "Your sign-in link",
		},
		Maintenance: MaintenanceConfig{
			PurgeSchedule: "@hourly",
		},
	}
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.HTTP.Port)
}
