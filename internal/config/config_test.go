package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Scraper.BaseURL != "https://movie.douban.com/top250" {
		t.Fatalf("unexpected base url %q", cfg.Scraper.BaseURL)
	}
	if cfg.Scraper.Pages != 10 || cfg.Scraper.PageSize != 25 {
		t.Fatalf("expected 10 pages of 25, got %d x %d", cfg.Scraper.Pages, cfg.Scraper.PageSize)
	}
	if cfg.Scraper.DelayMin != time.Second || cfg.Scraper.DelayMax != 3*time.Second {
		t.Fatalf("unexpected delay bounds %v..%v", cfg.Scraper.DelayMin, cfg.Scraper.DelayMax)
	}
	if cfg.Scraper.RequestTimeout != 10*time.Second {
		t.Fatalf("unexpected request timeout %v", cfg.Scraper.RequestTimeout)
	}
	if cfg.AI.MaxRetries != 3 || cfg.AI.Timeout != 30*time.Second || cfg.AI.Temperature != 0.1 {
		t.Fatalf("unexpected ai defaults %+v", cfg.AI)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.Path != "data/douban.db" || cfg.Store.Table != "movies" {
		t.Fatalf("unexpected store defaults %+v", cfg.Store)
	}
	if cfg.Report.OutputDir != "analysis/output" || cfg.Report.TopN != 10 {
		t.Fatalf("unexpected report defaults %+v", cfg.Report)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
scraper:
  base_url: http://localhost:9999/top
  pages: 2
  page_size: 10
  delay_min: 0s
  delay_max: 250ms
  request_timeout: 5s
  user_agents: ["agent-a", "agent-b"]
ai:
  provider: gemini
  api_key: from-file
  model: gemini-2.5-flash
  max_retries: 5
  concurrency: 4
  requests_per_second: 2.5
  generate_summaries: true
store:
  driver: postgres
  dsn: postgres://localhost/top250
  table: films
report:
  top_n: 3
logging:
  development: false
  level: debug
server:
  port: 9090
metrics:
  textfile: /tmp/top250.prom
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Scraper.Pages != 2 || cfg.Scraper.PageSize != 10 {
		t.Fatalf("expected scraper overrides, got %+v", cfg.Scraper)
	}
	if cfg.Scraper.DelayMax != 250*time.Millisecond || cfg.Scraper.DelayMin != 0 {
		t.Fatalf("expected delay overrides, got %v..%v", cfg.Scraper.DelayMin, cfg.Scraper.DelayMax)
	}
	if len(cfg.Scraper.UserAgents) != 2 || cfg.Scraper.UserAgents[1] != "agent-b" {
		t.Fatalf("expected user agents to load, got %v", cfg.Scraper.UserAgents)
	}
	if cfg.AI.Provider != "gemini" || cfg.AI.MaxRetries != 5 || cfg.AI.Concurrency != 4 {
		t.Fatalf("expected ai overrides, got %+v", cfg.AI)
	}
	if cfg.AI.RequestsPerSecond != 2.5 || !cfg.AI.GenerateSummaries {
		t.Fatalf("expected rate and summary overrides, got %+v", cfg.AI)
	}
	if cfg.Store.Driver != "postgres" || cfg.Store.Table != "films" {
		t.Fatalf("expected store overrides, got %+v", cfg.Store)
	}
	if cfg.Server.Port != 9090 || cfg.Metrics.Textfile != "/tmp/top250.prom" {
		t.Fatalf("expected server and metrics overrides")
	}
	if cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging overrides, got %+v", cfg.Logging)
	}
}

func TestLoadAPIKeyFromEnvironment(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "legacy-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AI.APIKey != "legacy-key" || !cfg.HasAPIKey() {
		t.Fatalf("expected DEEPSEEK_API_KEY to populate ai.api_key, got %q", cfg.AI.APIKey)
	}

	t.Setenv("TOP250_AI_API_KEY", "prefixed-key")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AI.APIKey != "prefixed-key" {
		t.Fatalf("expected TOP250_AI_API_KEY to take precedence, got %q", cfg.AI.APIKey)
	}
}

func TestLoadEnvOverridesPages(t *testing.T) {
	t.Setenv("TOP250_SCRAPER_PAGES", "1")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Scraper.Pages != 1 {
		t.Fatalf("expected env override, got %d", cfg.Scraper.Pages)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Scraper: ScraperConfig{
			BaseURL:        "https://movie.douban.com/top250",
			Pages:          10,
			PageSize:       25,
			DelayMin:       time.Second,
			DelayMax:       3 * time.Second,
			RequestTimeout: 10 * time.Second,
		},
		AI:     AIConfig{Provider: "openai", MaxRetries: 3, Timeout: 30 * time.Second, Temperature: 0.1, Concurrency: 1},
		Store:  StoreConfig{Driver: "sqlite", Path: "data/douban.db", Table: "movies"},
		Report: ReportConfig{TopN: 10},
		Server: ServerConfig{Port: 8080, RequestTimeout: 30 * time.Second},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{name: "relative base url", mutate: func(c *Config) { c.Scraper.BaseURL = "/top250" }, want: "scraper.base_url"},
		{name: "zero pages", mutate: func(c *Config) { c.Scraper.Pages = 0 }, want: "scraper.pages"},
		{name: "zero page size", mutate: func(c *Config) { c.Scraper.PageSize = 0 }, want: "scraper.page_size"},
		{name: "inverted delays", mutate: func(c *Config) { c.Scraper.DelayMax = 0 }, want: "scraper.delay_min"},
		{name: "zero request timeout", mutate: func(c *Config) { c.Scraper.RequestTimeout = 0 }, want: "scraper.request_timeout"},
		{name: "unknown provider", mutate: func(c *Config) { c.AI.Provider = "llama" }, want: "ai.provider"},
		{name: "zero retries", mutate: func(c *Config) { c.AI.MaxRetries = 0 }, want: "ai.max_retries"},
		{name: "zero ai timeout", mutate: func(c *Config) { c.AI.Timeout = 0 }, want: "ai.timeout"},
		{name: "hot temperature", mutate: func(c *Config) { c.AI.Temperature = 3 }, want: "ai.temperature"},
		{name: "zero concurrency", mutate: func(c *Config) { c.AI.Concurrency = 0 }, want: "ai.concurrency"},
		{name: "negative rps", mutate: func(c *Config) { c.AI.RequestsPerSecond = -1 }, want: "ai.requests_per_second"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Store.Path = "" }, want: "store.path"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Store.Driver = "postgres" }, want: "store.dsn"},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "mysql" }, want: "store.driver"},
		{name: "injected table", mutate: func(c *Config) { c.Store.Table = "movies; DROP TABLE x" }, want: "store.table"},
		{name: "zero top n", mutate: func(c *Config) { c.Report.TopN = 0 }, want: "report.top_n"},
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "zero server timeout", mutate: func(c *Config) { c.Server.RequestTimeout = 0 }, want: "server.request_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
