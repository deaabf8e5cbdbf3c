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
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Sync     SyncConfig     `mapstructure:"sync"`
	DB       DBConfig       `mapstructure:"db"`
	Storage  StorageConfig  `mapstructure:"storage"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig holds the shared-secret check for the trigger surface.
type AuthConfig struct {
	Secret string `mapstructure:"secret"`
}

// UpstreamConfig points at the external content catalog.
type UpstreamConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	CoverBaseURL   string  `mapstructure:"cover_base_url"`
	Source         string  `mapstructure:"source"`
	UserAgent      string  `mapstructure:"user_agent"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RPS            float64 `mapstructure:"rps"`
	Burst          int     `mapstructure:"burst"`
}

// SyncConfig governs pipeline defaults and the pagination window cap.
type SyncConfig struct {
	PageLimit     int `mapstructure:"page_limit"`
	MaxPages      int `mapstructure:"max_pages"`
	BudgetSeconds int `mapstructure:"budget_seconds"`
	MaxItems      int `mapstructure:"max_items"`
	WindowCap     int `mapstructure:"window_cap"`
	SampleSize    int `mapstructure:"sample_size"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// StorageConfig sets the cover blob destination. An empty bucket selects the
// in-memory store for local development.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for art-work notifications. An empty topic
// disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CATALOG")
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
	v.SetDefault("server.timeout_seconds", 300)
	v.SetDefault("upstream.base_url", "https://api.mangadex.org")
	v.SetDefault("upstream.cover_base_url", "https://uploads.mangadex.org/covers")
	v.SetDefault("upstream.source", "mangadex")
	v.SetDefault("upstream.user_agent", "catalog-sync/0.1")
	v.SetDefault("upstream.timeout_seconds", 15)
	v.SetDefault("upstream.rps", 4)
	v.SetDefault("upstream.burst", 4)
	v.SetDefault("sync.page_limit", 100)
	v.SetDefault("sync.max_pages", 10)
	v.SetDefault("sync.budget_seconds", 55)
	v.SetDefault("sync.max_items", 1000)
	v.SetDefault("sync.window_cap", 10000)
	v.SetDefault("sync.sample_size", 25)
	v.SetDefault("storage.prefix", "covers")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret must be set")
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url must be set")
	}
	if c.Sync.PageLimit <= 0 {
		return fmt.Errorf("sync.page_limit must be > 0")
	}
	if c.Sync.WindowCap < c.Sync.PageLimit*2 {
		return fmt.Errorf("sync.window_cap must be at least twice sync.page_limit")
	}
	return nil
}

// UpstreamTimeout converts the configured upstream timeout into a Duration.
func (c Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.TimeoutSeconds) * time.Second
}

// DefaultBudget converts the configured budget into a Duration.
func (c Config) DefaultBudget() time.Duration {
	return time.Duration(c.Sync.BudgetSeconds) * time.Second
}
