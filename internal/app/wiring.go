package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/deusflow/newsdesk/internal/collector"
	"github.com/deusflow/newsdesk/internal/config"
	"github.com/deusflow/newsdesk/internal/news"
	"github.com/deusflow/newsdesk/internal/ratelimit"
	"github.com/deusflow/newsdesk/internal/retry"
	"github.com/deusflow/newsdesk/internal/rss"
	"github.com/deusflow/newsdesk/internal/storage"
	"github.com/deusflow/newsdesk/internal/telegram"
)

// Runtime bundles the engine with the shared resources built from config.
type Runtime struct {
	Engine *Engine
	Store  storage.Store
	Quota  *ratelimit.Quota
}

// Close releases the store.
func (r *Runtime) Close() error {
	if r.Store == nil {
		return nil
	}
	return r.Store.Close()
}

// Build wires an engine for cfg.Mode and restores its last snapshot.
func Build(ctx context.Context, cfg *config.Config, keywords []news.KeywordDefinition, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	quota := NewQuota(cfg, logger)
	src, err := NewSource(cfg, quota, logger)
	if err != nil {
		return nil, err
	}
	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	notifier, err := NewNotifier(cfg, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	opts := Options{
		Mode:     cfg.Mode,
		Source:   src,
		Store:    store,
		Delay:    cfg.Collect.Delay,
		MaxSize:  cfg.Corpus.MaxSize,
		Settings: SettingsFromConfig(cfg),
		Keywords: keywords,
		Logger:   logger,
	}
	if notifier != nil {
		opts.Notifier = notifier
	}

	e := New(opts)
	if err := e.Load(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return &Runtime{Engine: e, Store: store, Quota: quota}, nil
}

// SettingsFromConfig maps the config sections onto engine settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Force:           cfg.Collect.Force,
		Strict:          cfg.Collect.Strict,
		FreeMode:        cfg.Collect.FreeMode,
		CatchAll:        cfg.Collect.CatchAll,
		Fallback:        cfg.Collect.Fallback,
		ImportantTerms:  cfg.Collect.ImportantTerms,
		Threshold:       cfg.Corpus.SimilarityThreshold,
		Window:          cfg.Corpus.ClusterWindow,
		RecentThreshold: cfg.View.RecentThreshold,
		PageSize:        cfg.View.PageSize,
		SmartGrouping:   cfg.View.SmartGrouping,
		Location:        cfg.Location(),
		AlertMax:        cfg.Telegram.MaxItems,
	}
}

// NewQuota returns the daily request budget, or nil when unlimited.
func NewQuota(cfg *config.Config, logger *slog.Logger) *ratelimit.Quota {
	if cfg.Source.DailyQuota <= 0 {
		return nil
	}
	return ratelimit.NewQuota(cfg.Source.DailyQuota, 24*time.Hour, logger)
}

// NewSource builds the configured upstream.
func NewSource(cfg *config.Config, quota *ratelimit.Quota, logger *slog.Logger) (collector.Source, error) {
	opts := rss.Options{
		Client:   &http.Client{Timeout: cfg.Source.RequestTimeout},
		Quota:    quota,
		CacheTTL: cfg.Source.CacheTTL,
		Logger:   logger.With("component", "rss"),
		Retry: retry.RetryConfig{
			MaxAttempts: cfg.Source.RetryAttempts,
			Delay:       cfg.Source.RetryDelay,
			Backoff:     true,
		},
	}

	switch cfg.Source.Kind {
	case "feeds":
		feeds, err := rss.LoadFeeds(cfg.Source.FeedsPath)
		if err != nil {
			return nil, err
		}
		if len(feeds) == 0 {
			return nil, fmt.Errorf("no feeds in %s", cfg.Source.FeedsPath)
		}
		return rss.NewFeedSource(feeds, opts), nil
	default:
		return rss.NewSearchSource(cfg.Source.SearchURL, opts), nil
	}
}

// OpenStore opens the snapshot backend. The sqlite driver defaults to a
// database file inside the data dir.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	logger = logger.With("component", "storage")
	switch cfg.Storage.Driver {
	case "sqlite":
		dsn := cfg.Storage.DSN
		if dsn == "" {
			if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
			dsn = filepath.Join(cfg.Storage.Dir, "newsdesk.db")
		}
		return storage.OpenSQL(ctx, storage.DriverSQLite, dsn, cfg.Corpus.MaxAge, logger)
	case "postgres":
		return storage.OpenSQL(ctx, storage.DriverPostgres, cfg.Storage.DSN, cfg.Corpus.MaxAge, logger)
	default:
		return storage.NewFileStore(cfg.Storage.Dir, cfg.Corpus.MaxAge, logger)
	}
}

// NewNotifier returns the Telegram notifier, or nil when not configured.
func NewNotifier(cfg *config.Config, logger *slog.Logger) (*telegram.Notifier, error) {
	if !cfg.TelegramEnabled() {
		return nil, nil
	}
	return telegram.New(cfg.Telegram.Token, cfg.Telegram.ChatID,
		telegram.WithLogger(logger.With("component", "telegram")))
}
