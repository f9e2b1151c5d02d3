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
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Discovery  DiscoveryConfig  `mapstructure:"discovery"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	RequestTimeout int `mapstructure:"request_timeout_seconds"`
	MaxPreview     int `mapstructure:"max_preview"`
	MaxPageSize    int `mapstructure:"max_page_size"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DatabaseConfig controls access to Postgres.
type DatabaseConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	ConnLifetimeMin int    `mapstructure:"conn_lifetime_minutes"`
}

// FetchConfig configures the HTTP fetch chain.
type FetchConfig struct {
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	UserAgent       string `mapstructure:"user_agent"`
	BrowserEnabled  bool   `mapstructure:"browser_enabled"`
	BrowserParallel int    `mapstructure:"browser_parallel"`
	ProxyEnabled    bool   `mapstructure:"proxy_enabled"`
	ProxyBaseURL    string `mapstructure:"proxy_base_url"`
	MaxBodyBytes    int64  `mapstructure:"max_body_bytes"`
}

// CrawlerConfig governs the crawl pipeline per store run.
type CrawlerConfig struct {
	Concurrency         int     `mapstructure:"concurrency"`
	LargeConcurrency    int     `mapstructure:"large_concurrency"`
	MaxURLs             int     `mapstructure:"max_urls"`
	LargeMaxURLs        int     `mapstructure:"large_max_urls"`
	LargeStoreThreshold int     `mapstructure:"large_store_threshold"`
	RatePerSecond       float64 `mapstructure:"rate_per_second"`
	CollectionMaxSeeds  int     `mapstructure:"collection_max_seeds"`
	CollectionMaxPages  int     `mapstructure:"collection_max_pages"`
}

// EnrichmentConfig points the embedding and summary clients at an
// OpenAI-compatible API.
type EnrichmentConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	BaseURL         string `mapstructure:"base_url"`
	APIKey          string `mapstructure:"api_key"`
	EmbedModel      string `mapstructure:"embed_model"`
	SummaryModel    string `mapstructure:"summary_model"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	SummaryParallel int    `mapstructure:"summary_parallel"`
}

// DiscoveryConfig configures the external URL search provider.
type DiscoveryConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	MaxResults int    `mapstructure:"max_results"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SHOPINDEX")
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
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.max_preview", 25)
	v.SetDefault("server.max_page_size", 200)
	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.conn_lifetime_minutes", 30)
	v.SetDefault("fetch.timeout_seconds", 20)
	v.SetDefault("fetch.user_agent", "shopindex-bot/0.1")
	v.SetDefault("fetch.browser_enabled", false)
	v.SetDefault("fetch.browser_parallel", 2)
	v.SetDefault("fetch.max_body_bytes", 10485760)
	v.SetDefault("crawler.concurrency", 8)
	v.SetDefault("crawler.large_concurrency", 16)
	v.SetDefault("crawler.max_urls", 500)
	v.SetDefault("crawler.large_max_urls", 1500)
	v.SetDefault("crawler.large_store_threshold", 800)
	v.SetDefault("crawler.rate_per_second", 10)
	v.SetDefault("enrichment.enabled", false)
	v.SetDefault("enrichment.timeout_seconds", 30)
	v.SetDefault("enrichment.summary_parallel", 4)
	v.SetDefault("discovery.enabled", false)
	v.SetDefault("discovery.max_results", 25)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Enrichment.Enabled && c.Enrichment.APIKey == "" {
		return fmt.Errorf("enrichment.api_key must be set when enrichment is enabled")
	}
	if c.Discovery.Enabled && c.Discovery.BaseURL == "" {
		return fmt.Errorf("discovery.base_url must be set when discovery is enabled")
	}
	return nil
}

// FetchTimeout converts the fetch timeout config into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// RequestTimeout converts the server request timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeout) * time.Second
}
