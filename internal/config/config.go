// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Scan     ScanConfig     `mapstructure:"scan"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ScanConfig governs the scan engine.
type ScanConfig struct {
	Sources      []string `mapstructure:"sources"`
	Cities       []string `mapstructure:"cities"`
	Concurrency  int      `mapstructure:"concurrency"`
	MaxPages     int      `mapstructure:"max_pages"`
	PerDomainRPS float64  `mapstructure:"per_domain_rps"`
	FetchDetails bool     `mapstructure:"fetch_details"`
}

// HTTPConfig configures the hardened HTTP client.
type HTTPConfig struct {
	TimeoutSeconds   int      `mapstructure:"timeout_seconds"`
	MaxRetries       int      `mapstructure:"max_retries"`
	MaxAntiBotTries  int      `mapstructure:"max_anti_bot_tries"`
	BackoffInitialMs int      `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int      `mapstructure:"backoff_max_ms"`
	Proxies          []string `mapstructure:"proxies"`
}

// HeadlessConfig configures the headless rendering fallback.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// StorageConfig selects where raw payload snapshots go.
type StorageConfig struct {
	// Backend is "local", "gcs" or "none".
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the Postgres database.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	ReadyTimeoutSec int    `mapstructure:"ready_timeout_seconds"`
	ReadyIntervalMs int    `mapstructure:"ready_interval_ms"`
}

// PubSubConfig holds metadata for new-listing notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features and the log file tee.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Dir         string `mapstructure:"dir"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RENTRADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("scan.sources", []string{"vbt", "hollandrijnland"})
	v.SetDefault("scan.cities", []string{"den haag", "leiden"})
	v.SetDefault("scan.concurrency", 4)
	v.SetDefault("scan.max_pages", 20)
	v.SetDefault("scan.per_domain_rps", 0.5)
	v.SetDefault("scan.fetch_details", true)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.max_anti_bot_tries", 3)
	v.SetDefault("http.backoff_initial_ms", 500)
	v.SetDefault("http.backoff_max_ms", 15000)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "snapshots")
	v.SetDefault("storage.prefix", "snapshots")
	v.SetDefault("db.dsn", "postgres://postgres@postgres:5432/realestate?sslmode=disable")
	v.SetDefault("db.ready_timeout_seconds", 60)
	v.SetDefault("db.ready_interval_ms", 1000)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.dir", "logs")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scan.Concurrency <= 0 {
		return fmt.Errorf("scan.concurrency must be > 0")
	}
	if c.Scan.MaxPages <= 0 {
		return fmt.Errorf("scan.max_pages must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Backend {
	case "local", "gcs", "none":
	default:
		return fmt.Errorf("storage.backend must be local, gcs or none")
	}
	if c.Storage.Backend == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name are required when pubsub is enabled")
	}
	return nil
}

// HTTPTimeout converts the configured timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// ReadyTimeout bounds the database readiness wait.
func (c Config) ReadyTimeout() time.Duration {
	return time.Duration(c.DB.ReadyTimeoutSec) * time.Second
}

// ReadyInterval is the pause between readiness pings.
func (c Config) ReadyInterval() time.Duration {
	return time.Duration(c.DB.ReadyIntervalMs) * time.Millisecond
}
