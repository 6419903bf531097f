// Package app assembles one news engine per monitoring mode: collection into
// the corpus, the clustered and partitioned views over it, read state,
// persistence and alerts.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/deusflow/newsdesk/internal/cluster"
	"github.com/deusflow/newsdesk/internal/collector"
	"github.com/deusflow/newsdesk/internal/corpus"
	"github.com/deusflow/newsdesk/internal/metrics"
	"github.com/deusflow/newsdesk/internal/news"
	"github.com/deusflow/newsdesk/internal/readstate"
	"github.com/deusflow/newsdesk/internal/storage"
	"github.com/deusflow/newsdesk/internal/telegram"
	"github.com/deusflow/newsdesk/internal/timeline"
)

// Notifier receives the alert for a batch with important admits.
type Notifier interface {
	SendMessage(ctx context.Context, text string) error
}

// Settings are the per-engine policy knobs.
type Settings struct {
	Force          bool
	Strict         bool
	FreeMode       bool
	CatchAll       string
	Fallback       string
	ImportantTerms []string

	Threshold       float64
	Window          int
	RecentThreshold time.Duration
	PageSize        int
	SmartGrouping   bool
	Location        *time.Location

	AlertMax int
}

type Options struct {
	Mode     news.Kind
	Source   collector.Source
	Store    storage.Store // optional
	Notifier Notifier      // optional
	Delay    time.Duration
	MaxSize  int
	Settings Settings
	Keywords []news.KeywordDefinition
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Engine is the view-facing API of one mode. Clusters are recomputed from the
// live corpus on every query, so evicted articles never linger in a view.
type Engine struct {
	mode      news.Kind
	corpus    *corpus.Corpus
	collector *collector.Orchestrator
	reads     *readstate.Tracker
	store     storage.Store
	notifier  Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger

	settings Settings

	mu       sync.RWMutex
	keywords []news.KeywordDefinition

	now func() time.Time
}

func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Global
	}
	s := opts.Settings
	if s.Fallback == "" {
		s.Fallback = news.DefaultFallback
	}
	if s.RecentThreshold <= 0 {
		s.RecentThreshold = timeline.DefaultRecentThreshold
	}
	if s.Location == nil {
		s.Location = time.Local
	}

	logger := opts.Logger.With("mode", string(opts.Mode))
	c := corpus.New(opts.MaxSize, logger)
	c.OnEvict = opts.Metrics.AddEvicted

	return &Engine{
		mode:   opts.Mode,
		corpus: c,
		collector: collector.New(opts.Source, c, collector.Options{
			Delay:   opts.Delay,
			Logger:  logger,
			Metrics: opts.Metrics,
		}),
		reads:    readstate.New(),
		store:    opts.Store,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		logger:   logger,
		settings: s,
		keywords: opts.Keywords,
		now:      time.Now,
	}
}

func (e *Engine) Mode() news.Kind { return e.mode }

// SetKeywords replaces the keyword list used by the next batch.
func (e *Engine) SetKeywords(defs []news.KeywordDefinition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.keywords = defs
}

func (e *Engine) Keywords() []news.KeywordDefinition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.keywords
}

func (e *Engine) State() collector.State { return e.collector.State() }

// Stop asks a running batch to halt after its in-flight request.
func (e *Engine) Stop() { e.collector.Stop() }

// Collect runs one batch over the current keywords. When the batch admitted
// anything the state is saved, and important admits are sent to the notifier.
// The batch outcome is returned even when saving or alerting fails.
func (e *Engine) Collect(ctx context.Context, progress func(completed, total int)) (collector.Result, error) {
	s := e.settings
	b := collector.Batch{
		Keywords:  e.Keywords(),
		Mode:      e.mode,
		Force:     s.Force,
		Strict:    s.Strict,
		FreeMode:  s.FreeMode,
		CatchAll:  s.CatchAll,
		Fallback:  s.Fallback,
		Important: collector.ImportantTerms(s.ImportantTerms),
		Progress:  progress,
	}

	res, err := e.collector.Collect(ctx, b)
	if errors.Is(err, collector.ErrBusy) {
		return res, err
	}

	if len(res.Admitted) > 0 {
		if serr := e.Save(ctx); serr != nil {
			e.logger.Error("failed to save snapshot", "error", serr)
		}
	}
	if res.Important > 0 {
		e.alert(ctx, res.Admitted, b.Important)
	}
	return res, err
}

func (e *Engine) alert(ctx context.Context, admitted []news.Article, important func(news.Article) bool) {
	if e.notifier == nil {
		return
	}
	var items []news.Article
	for _, a := range admitted {
		if important(a) {
			items = append(items, a)
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return news.NewerThan(items[i], items[j]) })

	if err := e.notifier.SendMessage(ctx, telegram.FormatAlert(e.mode, items, e.settings.AlertMax)); err != nil {
		e.logger.Error("failed to send alert", "error", err)
		return
	}
	e.metrics.IncrementAlertsSent()
}

// Query selects a view of the clustered corpus.
type Query struct {
	Bucket   timeline.Bucket
	ReadMode readstate.Mode
	Page     int
	Size     int // 0 uses the configured page size
	// Urgent restricts the view to today's clusters with unread ones first.
	Urgent bool
}

// Clusters builds the requested page: cluster the corpus, split by age,
// filter by read state, then group by date and hour.
func (e *Engine) Clusters(q Query) timeline.Page {
	s := e.settings
	clusters := e.visible(q, s)
	less := timeline.NewestFirst
	if q.Urgent {
		less = timeline.UnreadFirst(e.reads.ClusterRead)
	}
	groups := timeline.Group(clusters, timeline.GroupOptions{
		Location: s.Location,
		Smart:    s.SmartGrouping,
		Less:     less,
	})

	size := q.Size
	if size == 0 {
		size = s.PageSize
	}
	return timeline.Paginate(groups, q.Page, size)
}

func (e *Engine) visible(q Query, s Settings) []news.Cluster {
	all := cluster.Build(e.corpus.Articles(), cluster.Options{
		Threshold: s.Threshold,
		Window:    s.Window,
	})

	now := e.now()
	recent, archive := timeline.Partition(all, now.UnixMilli(), s.RecentThreshold.Milliseconds())
	var picked []news.Cluster
	switch q.Bucket {
	case timeline.BucketRecent:
		picked = recent
	case timeline.BucketArchive:
		picked = archive
	default:
		picked = all
	}

	if q.Urgent {
		today := timeline.SameDay(now, s.Location)
		kept := picked[:0:0]
		for _, c := range picked {
			if today(c) {
				kept = append(kept, c)
			}
		}
		picked = kept
	}
	return e.reads.Filter(picked, q.ReadMode)
}

// MarkRead marks links as read and returns how many were new.
func (e *Engine) MarkRead(ctx context.Context, links ...string) (int, error) {
	n := e.reads.MarkManyRead(links)
	if n == 0 {
		return 0, nil
	}
	return n, e.Save(ctx)
}

// MarkAllVisible marks every member of every cluster on the page q selects.
func (e *Engine) MarkAllVisible(ctx context.Context, q Query) (int, error) {
	var links []string
	for _, c := range timeline.Flatten(e.Clusters(q).Groups) {
		links = append(links, c.Links()...)
	}
	return e.MarkRead(ctx, links...)
}

// ClearAll removes matching articles (all when pred is nil). Clearing
// everything also resets the read state.
func (e *Engine) ClearAll(ctx context.Context, pred func(news.Article) bool) (int, error) {
	n := e.corpus.Clear(pred)
	if pred == nil {
		e.reads.Reset()
	}
	e.logger.Info("corpus cleared", "removed", n)
	return n, e.Save(ctx)
}

// Prune drops dated articles published more than maxAge ago and saves when
// anything was removed. Undated articles are kept.
func (e *Engine) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	cutoff := e.now().Add(-maxAge).UnixMilli()
	n := e.corpus.Clear(func(a news.Article) bool {
		return a.HasTimestamp() && a.Timestamp < cutoff
	})
	if n == 0 {
		return 0, nil
	}
	e.logger.Info("expired articles pruned", "removed", n, "max_age", maxAge)
	return n, e.Save(ctx)
}

// Article looks up a corpus article by id.
func (e *Engine) Article(id string) (news.Article, bool) {
	return e.corpus.Get(id)
}

func (e *Engine) IsRead(link string) bool { return e.reads.IsRead(link) }

// ClusterRead reports whether every member of c is read.
func (e *Engine) ClusterRead(c news.Cluster) bool { return e.reads.ClusterRead(c) }

func (e *Engine) Snapshot() storage.Snapshot {
	return storage.Snapshot{
		Mode:     e.mode,
		Articles: e.corpus.Articles(),
		Read:     e.reads.Links(),
		SavedAt:  e.now().UTC(),
	}
}

// Save persists the corpus and read state. Without a store it is a no-op.
func (e *Engine) Save(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	if err := e.store.Save(ctx, e.Snapshot()); err != nil {
		return fmt.Errorf("save %s snapshot: %w", e.mode, err)
	}
	return nil
}

// Load restores the last saved state. A missing snapshot leaves the engine empty.
func (e *Engine) Load(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	snap, err := e.store.Load(ctx, e.mode)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s snapshot: %w", e.mode, err)
	}
	e.corpus.Restore(snap.Articles)
	e.reads.Restore(snap.Read)
	e.logger.Info("snapshot restored", "articles", e.corpus.Len(), "read", e.reads.Len())
	return nil
}

// Stats summarises the engine for the monitoring endpoints.
func (e *Engine) Stats() map[string]interface{} {
	return map[string]interface{}{
		"mode":     string(e.mode),
		"state":    string(e.collector.State()),
		"articles": e.corpus.Len(),
		"read":     e.reads.Len(),
		"keywords": len(e.Keywords()),
	}
}
