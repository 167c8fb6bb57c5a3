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
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Chunker   ChunkerConfig   `mapstructure:"chunker"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// EmbeddingConfig selects the embedding provider and model.
type EmbeddingConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
	// Dimension selects the pgvector column for chunk persistence.
	Dimension int `mapstructure:"dimension"`
}

// CrawlerConfig governs page fetching behavior.
type CrawlerConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	RespectRobots  bool   `mapstructure:"respect_robots"`
	MaxPages       int    `mapstructure:"max_pages"`
	MaxDepth       int    `mapstructure:"max_depth"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ChunkerConfig controls document splitting.
type ChunkerConfig struct {
	MaxSize int `mapstructure:"max_size"`
	Overlap int `mapstructure:"overlap"`
}

// StorageConfig selects the blob backend for raw page snapshots.
type StorageConfig struct {
	// Backend is one of "memory", "local", or "gcs".
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN           string `mapstructure:"dsn"`
	SettingsTable string `mapstructure:"settings_table"`
	ChunksTable   string `mapstructure:"chunks_table"`
	MaxConns      int    `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INGESTD")
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
	v.SetDefault("server.port", 8181)
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("logging.development", true)
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimension", 1536)
	v.SetDefault("crawler.user_agent", "ingestd-bot/0.1")
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.max_pages", 50)
	v.SetDefault("crawler.max_depth", 3)
	v.SetDefault("crawler.timeout_seconds", 15)
	v.SetDefault("chunker.max_size", 4000)
	v.SetDefault("chunker.overlap", 200)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("db.settings_table", "settings")
	v.SetDefault("db.chunks_table", "document_chunks")
	v.SetDefault("db.max_conns", 4)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.TimeoutSeconds <= 0 {
		return fmt.Errorf("server.timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model must be set")
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	if c.Chunker.Overlap >= c.Chunker.MaxSize {
		return fmt.Errorf("chunker.overlap must be less than chunker.max_size")
	}
	switch c.Storage.Backend {
	case "memory", "gcs":
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, local, gcs")
	}
	if c.Storage.Backend == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	return nil
}

// ServerTimeout converts the configured request budget into a duration.
func (c Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// CrawlTimeout converts the per-request fetch budget into a duration.
func (c Config) CrawlTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}
