package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  max_preview: 10
auth:
  enabled: true
  api_key: secret
database:
  dsn: postgres://localhost/shopindex
  max_conns: 4
fetch:
  timeout_seconds: 45
  user_agent: shopindex-test
  browser_enabled: true
  browser_parallel: 3
crawler:
  concurrency: 6
  max_urls: 250
  rate_per_second: 5
enrichment:
  enabled: true
  api_key: sk-test
  embed_model: text-embedding-3-small
discovery:
  enabled: true
  base_url: https://api.exa.ai
  api_key: exa-test
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Database.DSN != "postgres://localhost/shopindex" || cfg.Database.MaxConns != 4 {
		t.Fatalf("expected database overrides to apply: %+v", cfg.Database)
	}
	if !cfg.Fetch.BrowserEnabled || cfg.Fetch.BrowserParallel != 3 {
		t.Fatalf("expected fetch overrides to apply: %+v", cfg.Fetch)
	}
	if cfg.Crawler.Concurrency != 6 || cfg.Crawler.MaxURLs != 250 {
		t.Fatalf("expected crawler overrides to apply: %+v", cfg.Crawler)
	}
	if cfg.Enrichment.EmbedModel != "text-embedding-3-small" {
		t.Fatalf("expected enrichment overrides to apply: %+v", cfg.Enrichment)
	}
	if got := cfg.FetchTimeout(); got != 45*time.Second {
		t.Fatalf("expected fetch timeout 45s, got %v", got)
	}
	if cfg.Logging.Development {
		t.Fatal("expected development logging disabled")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Crawler.Concurrency != 8 || cfg.Crawler.LargeConcurrency != 16 {
		t.Fatalf("expected crawler defaults: %+v", cfg.Crawler)
	}
	if cfg.Crawler.MaxURLs != 500 || cfg.Crawler.LargeMaxURLs != 1500 {
		t.Fatalf("expected crawl cap defaults: %+v", cfg.Crawler)
	}
	if cfg.Fetch.UserAgent != "shopindex-bot/0.1" {
		t.Fatalf("expected default user agent, got %q", cfg.Fetch.UserAgent)
	}
	if cfg.Enrichment.Enabled || cfg.Discovery.Enabled {
		t.Fatal("expected enrichment and discovery disabled by default")
	}
	if got := cfg.RequestTimeout(); got != 60*time.Second {
		t.Fatalf("expected request timeout 60s, got %v", got)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Fetch:   FetchConfig{TimeoutSeconds: 10},
		Crawler: CrawlerConfig{Concurrency: 1},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid fetch timeout",
			cfg: func() Config {
				c := base
				c.Fetch.TimeoutSeconds = 0
				return c
			}(),
			want: "fetch.timeout_seconds",
		},
		{
			name: "invalid concurrency",
			cfg: func() Config {
				c := base
				c.Crawler.Concurrency = 0
				return c
			}(),
			want: "crawler.concurrency",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			}(),
			want: "auth.api_key",
		},
		{
			name: "enrichment missing api key",
			cfg: func() Config {
				c := base
				c.Enrichment.Enabled = true
				return c
			}(),
			want: "enrichment.api_key",
		},
		{
			name: "discovery missing base url",
			cfg: func() Config {
				c := base
				c.Discovery.Enabled = true
				return c
			}(),
			want: "discovery.base_url",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
