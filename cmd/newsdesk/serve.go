package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/deusflow/newsdesk/internal/app"
	"github.com/deusflow/newsdesk/internal/collector"
	"github.com/deusflow/newsdesk/internal/config"
	"github.com/deusflow/newsdesk/internal/logger"
	"github.com/deusflow/newsdesk/internal/metrics"
	"github.com/deusflow/newsdesk/internal/ratelimit"
	"github.com/deusflow/newsdesk/internal/storage"
)

func serveCmd() *cobra.Command {
	var addrFlag string
	var noCollect bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Collect periodically and serve the monitoring API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addrFlag != "" {
				cfg.Server.Addr = addrFlag
			}

			ctx, cancel := signalContext()
			defer cancel()

			rt, err := openRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			log := logger.With("serve")
			s := newServer(ctx, rt, metrics.Global, log)
			if _, err := os.Stat(cfg.KeywordsPath); err == nil {
				go func() {
					if err := config.WatchKeywords(ctx, cfg.KeywordsPath, log, rt.Engine.SetKeywords); err != nil {
						log.Warn("keywords watcher stopped", "error", err)
					}
				}()
			}
			if cfg.Corpus.MaxAge > 0 {
				s.background(func() { runCleanup(ctx, rt, cfg.Corpus.MaxAge, log) })
			}
			if !noCollect && cfg.Server.CollectInterval > 0 {
				s.background(func() { runCollector(ctx, rt.Engine, cfg.Server.CollectInterval, log) })
			}

			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           s.routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			serveErr := make(chan error, 1)
			go func() { serveErr <- srv.ListenAndServe() }()
			log.Info("starting monitoring server", "addr", cfg.Server.Addr, "mode", cfg.Mode)

			select {
			case err := <-serveErr:
				cancel()
				s.wait()
				return fmt.Errorf("monitoring server: %w", err)
			case <-ctx.Done():
			}

			rt.Engine.Stop()
			shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
			defer done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("server shutdown", "error", err)
			}
			// the store closes on return, so running batches must finish first
			s.wait()
			log.Info("monitoring server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (default from config)")
	cmd.Flags().BoolVar(&noCollect, "no-collect", false, "serve without periodic collection")
	return cmd
}

// cleaner is implemented by stores that can prune old rows in place.
type cleaner interface {
	Cleanup(ctx context.Context, cutoff time.Time) (int64, error)
}

// statser is implemented by stores that report row counts.
type statser interface {
	GetStats(ctx context.Context) (map[string]int, error)
}

var (
	_ cleaner = (*storage.SQLStore)(nil)
	_ statser = (*storage.SQLStore)(nil)
)

func runCollector(ctx context.Context, e *app.Engine, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		res, err := e.Collect(ctx, nil)
		switch {
		case errors.Is(err, collector.ErrBusy):
			log.Debug("collection already running, skipping tick")
		case err != nil:
			log.Warn("collection ended with error", "state", res.State, "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runCleanup prunes the live corpus and then the store once an hour.
func runCleanup(ctx context.Context, rt *app.Runtime, maxAge time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		pruneExpired(ctx, rt, maxAge, log)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func pruneExpired(ctx context.Context, rt *app.Runtime, maxAge time.Duration, log *slog.Logger) {
	if _, err := rt.Engine.Prune(ctx, maxAge); err != nil {
		log.Warn("corpus prune failed", "error", err)
	}
	if c, ok := rt.Store.(cleaner); ok {
		if _, err := c.Cleanup(ctx, time.Now().Add(-maxAge)); err != nil {
			log.Warn("store cleanup failed", "error", err)
		}
	}
}

type server struct {
	engine  *app.Engine
	store   storage.Store
	quota   *ratelimit.Quota
	metrics *metrics.Metrics
	log     *slog.Logger
	// baseCtx bounds batches triggered over HTTP; wg tracks them.
	baseCtx context.Context
	wg      sync.WaitGroup
}

func newServer(ctx context.Context, rt *app.Runtime, m *metrics.Metrics, log *slog.Logger) *server {
	return &server{
		engine:  rt.Engine,
		store:   rt.Store,
		quota:   rt.Quota,
		metrics: m,
		log:     log,
		baseCtx: ctx,
	}
}

// background runs fn in a goroutine that wait blocks on.
func (s *server) background(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *server) wait() { s.wg.Wait() }

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /metrics", s.metricsHandler)
	mux.HandleFunc("GET /clusters", s.clustersHandler)
	mux.HandleFunc("POST /collect", s.collectHandler)
	mux.HandleFunc("POST /stop", s.stopHandler)
	mux.HandleFunc("POST /read", s.readHandler)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *server) healthHandler(w http.ResponseWriter, r *http.Request) {
	stats := s.metrics.GetStats()

	status := "ok"
	code := http.StatusOK
	if !s.metrics.Healthy() {
		status = "error"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]interface{}{
		"status":     status,
		"state":      s.engine.State(),
		"last_run":   stats["last_run_time"],
		"last_error": stats["last_error"],
	})
}

func (s *server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	stats := s.metrics.GetStats()
	stats["engine"] = s.engine.Stats()
	if s.quota != nil {
		stats["quota"] = s.quota.GetStats()
	}
	if st, ok := s.store.(statser); ok {
		if rows, err := st.GetStats(r.Context()); err == nil {
			stats["store"] = rows
		} else {
			s.log.Warn("store stats failed", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *server) clustersHandler(w http.ResponseWriter, r *http.Request) {
	qv := r.URL.Query()
	vf := viewFlags{
		bucket: qv.Get("bucket"),
		filter: qv.Get("filter"),
		urgent: qv.Get("urgent") == "true",
	}
	vf.page, _ = strconv.Atoi(qv.Get("page"))
	vf.size, _ = strconv.Atoi(qv.Get("size"))

	q, err := vf.query()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Clusters(q))
}

// collectHandler starts a batch in the background; a running batch yields 409.
func (s *server) collectHandler(w http.ResponseWriter, r *http.Request) {
	if s.engine.State() == collector.StateFetching {
		writeJSON(w, http.StatusConflict, map[string]string{"error": collector.ErrBusy.Error()})
		return
	}
	s.background(func() {
		if _, err := s.engine.Collect(s.baseCtx, nil); err != nil && !errors.Is(err, collector.ErrBusy) {
			s.log.Warn("requested collection ended with error", "error", err)
		}
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *server) stopHandler(w http.ResponseWriter, r *http.Request) {
	s.engine.Stop()
	writeJSON(w, http.StatusOK, map[string]interface{}{"state": s.engine.State()})
}

type readRequest struct {
	Links []string `json:"links"`
}

func (s *server) readHandler(w http.ResponseWriter, r *http.Request) {
	var req readRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Links) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body must be {\"links\": [...]}"})
		return
	}
	n, err := s.engine.MarkRead(r.Context(), req.Links...)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": n})
}
