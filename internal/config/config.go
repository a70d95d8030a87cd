// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Scraper ScraperConfig `mapstructure:"scraper"`
	AI      AIConfig      `mapstructure:"ai"`
	Store   StoreConfig   `mapstructure:"store"`
	Report  ReportConfig  `mapstructure:"report"`
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ScraperConfig governs the listing fetch loop.
type ScraperConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Pages          int           `mapstructure:"pages"`
	PageSize       int           `mapstructure:"page_size"`
	DelayMin       time.Duration `mapstructure:"delay_min"`
	DelayMax       time.Duration `mapstructure:"delay_max"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgents     []string      `mapstructure:"user_agents"`
	VoteSuffix     string        `mapstructure:"vote_suffix"`
}

// AIConfig configures the completion provider and retry policy.
type AIConfig struct {
	Provider          string        `mapstructure:"provider"`
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Model             string        `mapstructure:"model"`
	MaxRetries        int           `mapstructure:"max_retries"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Temperature       float64       `mapstructure:"temperature"`
	Concurrency       int           `mapstructure:"concurrency"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	GenerateSummaries bool          `mapstructure:"generate_summaries"`
}

// StoreConfig selects the relational backend.
type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ReportConfig controls chart output.
type ReportConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	TopN      int    `mapstructure:"top_n"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
}

// ServerConfig controls the read API.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// MetricsConfig controls batch metric export.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// Load builds a Config from disk/environment. With an empty path, a
// top250.yaml in the working directory is used when present.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TOP250")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("ai.api_key", "TOP250_AI_API_KEY", "DEEPSEEK_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("top250")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
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
	v.SetDefault("scraper.base_url", "https://movie.douban.com/top250")
	v.SetDefault("scraper.pages", 10)
	v.SetDefault("scraper.page_size", 25)
	v.SetDefault("scraper.delay_min", "1s")
	v.SetDefault("scraper.delay_max", "3s")
	v.SetDefault("scraper.request_timeout", "10s")
	v.SetDefault("scraper.user_agents", []string{})
	v.SetDefault("scraper.vote_suffix", "人评价")
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.model", "")
	v.SetDefault("ai.max_retries", 3)
	v.SetDefault("ai.timeout", "30s")
	v.SetDefault("ai.temperature", 0.1)
	v.SetDefault("ai.concurrency", 1)
	v.SetDefault("ai.requests_per_second", 0)
	v.SetDefault("ai.generate_summaries", false)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "data/douban.db")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.table", "movies")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("report.output_dir", "analysis/output")
	v.SetDefault("report.top_n", 10)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("metrics.textfile", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.Scraper.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("scraper.base_url must be an absolute URL")
	}
	if c.Scraper.Pages <= 0 {
		return fmt.Errorf("scraper.pages must be > 0")
	}
	if c.Scraper.PageSize <= 0 {
		return fmt.Errorf("scraper.page_size must be > 0")
	}
	if c.Scraper.DelayMin < 0 || c.Scraper.DelayMax < c.Scraper.DelayMin {
		return fmt.Errorf("scraper.delay_min must be >= 0 and <= scraper.delay_max")
	}
	if c.Scraper.RequestTimeout <= 0 {
		return fmt.Errorf("scraper.request_timeout must be > 0")
	}
	switch strings.ToLower(c.AI.Provider) {
	case "openai", "gemini":
	default:
		return fmt.Errorf("ai.provider must be one of openai, gemini")
	}
	if c.AI.MaxRetries <= 0 {
		return fmt.Errorf("ai.max_retries must be > 0")
	}
	if c.AI.Timeout <= 0 {
		return fmt.Errorf("ai.timeout must be > 0")
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		return fmt.Errorf("ai.temperature must be between 0 and 2")
	}
	if c.AI.Concurrency <= 0 {
		return fmt.Errorf("ai.concurrency must be > 0")
	}
	if c.AI.RequestsPerSecond < 0 {
		return fmt.Errorf("ai.requests_per_second must be >= 0")
	}
	switch strings.ToLower(c.Store.Driver) {
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path must be set for the sqlite driver")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set for the postgres driver")
		}
	default:
		return fmt.Errorf("store.driver must be one of sqlite, postgres")
	}
	if !validTable(c.Store.Table) {
		return fmt.Errorf("store.table must be a plain SQL identifier")
	}
	if c.Report.TopN <= 0 {
		return fmt.Errorf("report.top_n must be > 0")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be > 0")
	}
	return nil
}

// HasAPIKey reports whether AI normalization can run.
func (c Config) HasAPIKey() bool {
	return strings.TrimSpace(c.AI.APIKey) != ""
}

func validTable(name string) bool {
	if name == "" || len(name) > 63 {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
