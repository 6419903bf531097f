// Package collector runs a keyword batch against an upstream search source,
// one keyword at a time, feeding results through tagging into the corpus.
package collector

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/deusflow/newsdesk/internal/corpus"
	"github.com/deusflow/newsdesk/internal/metrics"
	"github.com/deusflow/newsdesk/internal/news"
	"github.com/deusflow/newsdesk/internal/ratelimit"
)

// DefaultDelay is the politeness pause between upstream requests.
const DefaultDelay = 2 * time.Second

var (
	// ErrRateLimited is returned by a Source when upstream refuses further
	// requests. It halts the batch.
	ErrRateLimited = ratelimit.ErrExceeded
	// ErrBusy rejects a batch while another one is running.
	ErrBusy = errors.New("collection already in progress")
	// ErrNoData reports that every keyword of a batch failed.
	ErrNoData = errors.New("no data: all keywords failed")
)

// Source fetches raw items for one composed query.
type Source interface {
	Search(ctx context.Context, query string) ([]news.RawItem, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, query string) ([]news.RawItem, error)

func (f SourceFunc) Search(ctx context.Context, query string) ([]news.RawItem, error) {
	return f(ctx, query)
}

type State string

const (
	StateIdle      State = "idle"
	StateFetching  State = "fetching"
	StateCompleted State = "completed"
	StateStopped   State = "stopped"
	StateErrored   State = "errored"
)

// Terminal reports whether s ends a batch.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateStopped || s == StateErrored
}

// Batch describes one collection run.
type Batch struct {
	Keywords []news.KeywordDefinition
	Mode     news.Kind
	Force    bool
	Strict   bool
	FreeMode bool
	CatchAll string
	Fallback string
	// Important counts admitted articles worth alerting on.
	Important func(news.Article) bool
	// Progress is called with completed/total after each keyword.
	Progress func(completed, total int)
}

// Result is the batch outcome, reported once.
type Result struct {
	State     State          `json:"state"`
	Total     int            `json:"total"`
	Completed int            `json:"completed"`
	Failed    int            `json:"failed"`
	Admitted  []news.Article `json:"admitted"`
	Important int            `json:"important"`
	Err       error          `json:"-"`
}

type Options struct {
	Delay   time.Duration
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Orchestrator serializes batches for one corpus.
type Orchestrator struct {
	source  Source
	corpus  *corpus.Corpus
	delay   time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	stopped atomic.Bool
}

func New(source Source, c *corpus.Corpus, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	return &Orchestrator{
		source:  source,
		corpus:  c,
		delay:   opts.Delay,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		state:   StateIdle,
	}
}

// State returns the current state; after a batch it is the batch's terminal state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Stop requests cooperative cancellation. An in-flight fetch is allowed to
// return; no further fetch is issued and a pending delay is cut short.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateFetching {
		return
	}
	o.stopped.Store(true)
	if o.cancel != nil {
		o.cancel()
	}
	o.logger.Info("stop requested")
}

type step struct {
	keyword string
	query   string
}

func plan(b Batch) []step {
	defs := news.Selected(b.Keywords, b.Mode)
	if len(defs) == 0 {
		if b.FreeMode && b.CatchAll != "" {
			return []step{{keyword: b.CatchAll, query: b.CatchAll}}
		}
		return nil
	}
	steps := make([]step, 0, len(defs))
	for _, d := range defs {
		steps = append(steps, step{keyword: d.Keyword, query: news.ComposeQuery(d, b.Strict)})
	}
	return steps
}

// Collect runs b to completion, stop or rate limit. It returns ErrBusy without
// touching state when another batch is running.
func (o *Orchestrator) Collect(ctx context.Context, b Batch) (Result, error) {
	o.mu.Lock()
	if o.state == StateFetching {
		o.mu.Unlock()
		return Result{State: StateFetching}, ErrBusy
	}
	o.state = StateFetching
	o.stopped.Store(false)
	waitCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.mu.Unlock()
	defer cancel()

	start := time.Now()
	res := o.run(ctx, waitCtx, b)

	o.mu.Lock()
	o.state = res.State
	o.cancel = nil
	o.mu.Unlock()

	o.metrics.RecordBatch(string(res.State), time.Since(start))
	if res.Err != nil {
		o.metrics.SetError(res.Err.Error())
	} else {
		o.metrics.SetLastRun()
	}

	o.logger.Info("collection finished",
		"state", res.State,
		"keywords", res.Total,
		"completed", res.Completed,
		"failed", res.Failed,
		"admitted", len(res.Admitted),
		"important", res.Important)
	return res, res.Err
}

func (o *Orchestrator) run(ctx, waitCtx context.Context, b Batch) Result {
	steps := plan(b)
	res := Result{State: StateCompleted, Total: len(steps)}
	if len(steps) == 0 {
		o.logger.Info("no keywords selected, nothing to collect", "mode", b.Mode)
		return res
	}

	opts := news.TagOptions{
		Fallback: b.Fallback,
		FreeMode: b.FreeMode,
		CatchAll: b.CatchAll,
		Strict:   b.Strict,
		Mode:     b.Mode,
	}

	for i, s := range steps {
		if o.cancelled(ctx, &res) {
			return res
		}
		if i > 0 {
			if err := o.pause(waitCtx); err != nil {
				if !o.cancelled(ctx, &res) {
					res.State, res.Err = StateStopped, err
				}
				return res
			}
			if o.cancelled(ctx, &res) {
				return res
			}
		}

		log := o.logger.With("keyword", s.keyword)
		o.metrics.IncrementFetches()
		items, err := o.source.Search(ctx, s.query)

		if o.cancelled(ctx, &res) {
			log.Debug("discarding results fetched after stop", "items", len(items))
			return res
		}
		if errors.Is(err, ErrRateLimited) {
			o.metrics.IncrementRateLimits()
			log.Warn("upstream rate limit, halting batch", "error", err)
			res.State, res.Err = StateStopped, err
			return res
		}
		if err != nil {
			o.metrics.IncrementFetchErrors()
			log.Warn("keyword fetch failed, skipping", "error", err)
			res.Failed++
		} else {
			o.ingest(items, b, opts, &res)
			log.Debug("keyword fetched", "items", len(items))
		}

		res.Completed++
		if b.Progress != nil {
			b.Progress(res.Completed, res.Total)
		}
	}

	if res.Failed == res.Total {
		res.State, res.Err = StateErrored, ErrNoData
	}
	return res
}

func (o *Orchestrator) ingest(items []news.RawItem, b Batch, opts news.TagOptions, res *Result) {
	candidates := make([]news.Article, 0, len(items))
	for _, it := range items {
		a := news.FromRaw(it, b.Keywords, opts)
		if a.Link == "" || a.Title == "" {
			continue
		}
		candidates = append(candidates, a)
	}

	admitted := o.corpus.AdmitBatch(candidates, b.Force)
	o.metrics.AddAdmitted(len(admitted))
	o.metrics.AddDuplicatesRejected(len(candidates) - len(admitted))

	for _, a := range admitted {
		if b.Important != nil && b.Important(a) {
			res.Important++
		}
	}
	res.Admitted = append(res.Admitted, admitted...)
}

// pause waits the politeness delay counted from now, which is when the
// previous fetch returned.
func (o *Orchestrator) pause(ctx context.Context) error {
	if o.delay <= 0 {
		return nil
	}
	gap := rate.NewLimiter(rate.Every(o.delay), 1)
	gap.Allow()
	return gap.Wait(ctx)
}

// cancelled records a stop in res and reports whether the batch must end.
func (o *Orchestrator) cancelled(ctx context.Context, res *Result) bool {
	if o.stopped.Load() {
		res.State = StateStopped
		return true
	}
	if err := ctx.Err(); err != nil {
		res.State, res.Err = StateStopped, err
		return true
	}
	return false
}

// ImportantTerms builds a predicate matching any of terms, case-insensitively,
// in an article's title or description.
func ImportantTerms(terms []string) func(news.Article) bool {
	if len(terms) == 0 {
		return nil
	}
	defs := make([]news.KeywordDefinition, 0, len(terms))
	for _, t := range terms {
		defs = append(defs, news.KeywordDefinition{Keyword: t, Active: true})
	}
	return func(a news.Article) bool {
		_, ok := news.Tag(a.Text(), defs, news.TagOptions{Strict: true})
		return ok
	}
}
