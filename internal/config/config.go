// Package config loads service settings from YAML with environment overrides,
// and the keyword list the collector runs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"github.com/deusflow/newsdesk/internal/news"
)

const (
	configPathEnv   = "NEWSDESK_CONFIG"
	defaultTimezone = "Asia/Dhaka"
)

type Config struct {
	Mode         news.Kind `yaml:"mode"`
	KeywordsPath string    `yaml:"keywordsPath"`
	Debug        bool      `yaml:"debug"`

	Source   SourceConfig   `yaml:"source"`
	Collect  CollectConfig  `yaml:"collect"`
	Corpus   CorpusConfig   `yaml:"corpus"`
	View     ViewConfig     `yaml:"view"`
	Storage  StorageConfig  `yaml:"storage"`
	Telegram TelegramConfig `yaml:"telegram"`
	Server   ServerConfig   `yaml:"server"`
}

// SourceConfig selects and tunes the upstream.
type SourceConfig struct {
	Kind           string        `yaml:"kind"` // search | feeds
	SearchURL      string        `yaml:"searchUrl"`
	FeedsPath      string        `yaml:"feedsPath"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	RetryAttempts  int           `yaml:"retryAttempts"`
	RetryDelay     time.Duration `yaml:"retryDelay"`
	CacheTTL       time.Duration `yaml:"cacheTtl"`
	DailyQuota     int           `yaml:"dailyQuota"` // 0 = unlimited
}

// CollectConfig holds batch flags.
type CollectConfig struct {
	Delay          time.Duration `yaml:"delay"`
	Force          bool          `yaml:"force"`
	Strict         bool          `yaml:"strict"`
	FreeMode       bool          `yaml:"freeMode"`
	CatchAll       string        `yaml:"catchAll"`
	Fallback       string        `yaml:"fallback"`
	ImportantTerms []string      `yaml:"importantTerms"`
}

type CorpusConfig struct {
	MaxSize             int           `yaml:"maxSize"`
	MaxAge              time.Duration `yaml:"maxAge"`
	SimilarityThreshold float64       `yaml:"similarityThreshold"`
	ClusterWindow       int           `yaml:"clusterWindow"`
}

type ViewConfig struct {
	RecentThreshold time.Duration `yaml:"recentThreshold"`
	PageSize        int           `yaml:"pageSize"`
	SmartGrouping   bool          `yaml:"smartGrouping"`
	Timezone        string        `yaml:"timezone"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"` // file | sqlite | postgres
	Dir    string `yaml:"dir"`
	DSN    string `yaml:"dsn"`
}

type TelegramConfig struct {
	Token    string `yaml:"token"`
	ChatID   string `yaml:"chatId"`
	MaxItems int    `yaml:"maxItems"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	CollectInterval time.Duration `yaml:"collectInterval"`
}

func defaultConfig() *Config {
	return &Config{
		Mode:         news.KindMonitor,
		KeywordsPath: "configs/keywords.yaml",
		Source: SourceConfig{
			Kind:           "search",
			FeedsPath:      "configs/feeds.yaml",
			RequestTimeout: 30 * time.Second,
			RetryAttempts:  3,
			RetryDelay:     2 * time.Second,
			CacheTTL:       5 * time.Minute,
		},
		Collect: CollectConfig{
			Delay:    2 * time.Second,
			CatchAll: "Bangladesh",
			Fallback: news.DefaultFallback,
		},
		Corpus: CorpusConfig{
			MaxSize:             5000,
			MaxAge:              7 * 24 * time.Hour,
			SimilarityThreshold: 0.4,
			ClusterWindow:       50,
		},
		View: ViewConfig{
			RecentThreshold: 12 * time.Hour,
			PageSize:        20,
			SmartGrouping:   true,
			Timezone:        defaultTimezone,
		},
		Storage: StorageConfig{
			Driver: "file",
			Dir:    "data",
		},
		Telegram: TelegramConfig{MaxItems: 5},
		Server: ServerConfig{
			Addr:            ":8080",
			CollectInterval: 30 * time.Minute,
		},
	}
}

// Load reads path (or $NEWSDESK_CONFIG when empty) over the defaults, then
// applies environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("NEWSDESK_MODE"); v != "" {
		c.Mode = news.Kind(v)
	}
	c.KeywordsPath = getEnvOrDefault("KEYWORDS_PATH", c.KeywordsPath)
	c.Source.Kind = getEnvOrDefault("SOURCE_KIND", c.Source.Kind)
	c.Source.SearchURL = getEnvOrDefault("SEARCH_URL", c.Source.SearchURL)
	c.Source.FeedsPath = getEnvOrDefault("FEEDS_PATH", c.Source.FeedsPath)
	c.Source.DailyQuota = getEnvIntOrDefault("DAILY_QUOTA", c.Source.DailyQuota)
	c.Source.RetryAttempts = getEnvIntOrDefault("RETRY_ATTEMPTS", c.Source.RetryAttempts)
	c.Collect.Delay = getEnvDurationOrDefault("FETCH_DELAY", c.Collect.Delay)
	c.Collect.Force = getEnvBoolOrDefault("FORCE_MODE", c.Collect.Force)
	c.Collect.Strict = getEnvBoolOrDefault("STRICT_MODE", c.Collect.Strict)
	c.Collect.FreeMode = getEnvBoolOrDefault("FREE_MODE", c.Collect.FreeMode)
	c.Collect.CatchAll = getEnvOrDefault("CATCH_ALL", c.Collect.CatchAll)
	if v := os.Getenv("IMPORTANT_TERMS"); v != "" {
		c.Collect.ImportantTerms = splitList(v)
	}
	c.Corpus.MaxSize = getEnvIntOrDefault("MAX_CORPUS", c.Corpus.MaxSize)
	c.View.Timezone = getEnvOrDefault("TIMEZONE", c.View.Timezone)
	c.View.PageSize = getEnvIntOrDefault("PAGE_SIZE", c.View.PageSize)
	c.Storage.Driver = getEnvOrDefault("STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.Dir = getEnvOrDefault("DATA_DIR", c.Storage.Dir)
	c.Storage.DSN = getEnvOrDefault("DATABASE_URL", c.Storage.DSN)
	c.Telegram.Token = getEnvOrDefault("TELEGRAM_TOKEN", c.Telegram.Token)
	c.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", c.Telegram.ChatID)
	c.Server.Addr = getEnvOrDefault("HTTP_ADDR", c.Server.Addr)
	c.Server.CollectInterval = getEnvDurationOrDefault("COLLECT_INTERVAL", c.Server.CollectInterval)
	if os.Getenv("DEBUG") == "true" {
		c.Debug = true
	}
}

func (c *Config) Validate() error {
	switch c.Mode {
	case news.KindMonitor, news.KindReport:
	default:
		return fmt.Errorf("mode must be 'monitor' or 'report', got %q", c.Mode)
	}
	switch c.Source.Kind {
	case "search", "feeds":
	default:
		return fmt.Errorf("source.kind must be 'search' or 'feeds', got %q", c.Source.Kind)
	}
	switch c.Storage.Driver {
	case "file", "sqlite":
	case "postgres":
		if c.Storage.DSN == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver must be file, sqlite or postgres, got %q", c.Storage.Driver)
	}
	if c.Collect.FreeMode && strings.TrimSpace(c.Collect.CatchAll) == "" {
		return errors.New("free mode needs a catch-all term")
	}
	if c.Corpus.SimilarityThreshold <= 0 || c.Corpus.SimilarityThreshold >= 1 {
		return fmt.Errorf("similarity threshold must be in (0,1), got %v", c.Corpus.SimilarityThreshold)
	}
	if c.Collect.Delay < 0 {
		return errors.New("fetch delay must not be negative")
	}
	if _, err := time.LoadLocation(c.View.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.View.Timezone, err)
	}
	return nil
}

// Location resolves the view timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.View.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TelegramEnabled reports whether alert credentials are configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.Token != "" && c.Telegram.ChatID != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
