package ratelimit

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrExceeded reports that upstream refused further requests, or that the
// local request budget is spent. Callers treat it as fatal for a batch.
var ErrExceeded = errors.New("rate limit exceeded")

// Quota is a request budget per upstream name that resets every period.
type Quota struct {
	mu        sync.Mutex
	limits    map[string]int
	counts    map[string]int
	maxTotal  int
	total     int
	period    time.Duration
	resetTime time.Time
	now       func() time.Time
	logger    *slog.Logger
}

// NewQuota creates a quota with a global cap. Zero limits are unlimited.
func NewQuota(maxTotal int, period time.Duration, logger *slog.Logger) *Quota {
	if period <= 0 {
		period = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &Quota{
		limits:   make(map[string]int),
		counts:   make(map[string]int),
		maxTotal: maxTotal,
		period:   period,
		now:      time.Now,
		logger:   logger,
	}
	q.resetTime = q.now().Add(period)
	return q
}

// SetLimit caps requests for one upstream.
func (q *Quota) SetLimit(name string, max int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.limits[name] = max
}

// Allow reports whether a request to name would fit the budget.
func (q *Quota) Allow(name string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.checkReset()
	return q.exceeded(name) == nil
}

// Use records a request to name, or returns an error wrapping ErrExceeded.
func (q *Quota) Use(name string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.checkReset()

	if err := q.exceeded(name); err != nil {
		q.logger.Warn("request quota exhausted", "upstream", name, "used", q.counts[name], "total", q.total)
		return err
	}
	q.counts[name]++
	q.total++
	q.logger.Debug("request quota used", "upstream", name, "used", q.counts[name], "limit", q.limits[name], "total", q.total, "total_limit", q.maxTotal)
	return nil
}

func (q *Quota) exceeded(name string) error {
	if max := q.limits[name]; max > 0 && q.counts[name] >= max {
		return fmt.Errorf("%s quota %d/%d: %w", name, q.counts[name], max, ErrExceeded)
	}
	if q.maxTotal > 0 && q.total >= q.maxTotal {
		return fmt.Errorf("total quota %d/%d: %w", q.total, q.maxTotal, ErrExceeded)
	}
	return nil
}

// GetStats returns current usage.
func (q *Quota) GetStats() map[string]interface{} {
	q.mu.Lock()
	defer q.mu.Unlock()

	used := make(map[string]int, len(q.counts))
	for k, v := range q.counts {
		used[k] = v
	}
	return map[string]interface{}{
		"used":        used,
		"total_used":  q.total,
		"total_limit": q.maxTotal,
		"reset_time":  q.resetTime,
	}
}

// checkReset clears counters once the period has passed.
func (q *Quota) checkReset() {
	if now := q.now(); now.After(q.resetTime) {
		q.logger.Info("resetting request quota", "total_used", q.total)
		q.counts = make(map[string]int)
		q.total = 0
		q.resetTime = now.Add(q.period)
	}
}
