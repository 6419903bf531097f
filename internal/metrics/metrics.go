package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	Fetches            int64
	FetchErrors        int64
	RateLimits         int64
	ArticlesAdmitted   int64
	DuplicatesRejected int64
	ArticlesEvicted    int64
	Batches            int64
	AlertsSent         int64

	// Timings
	LastBatchTime    time.Duration
	AverageBatchTime time.Duration
	TotalBatchTime   time.Duration

	// Status
	LastBatchState string
	LastRunTime    time.Time
	LastErrorTime  time.Time
	LastError      string
	IsHealthy      bool
}

// Global is shared by the CLI and the monitoring endpoints.
var Global = New()

func New() *Metrics {
	return &Metrics{IsHealthy: true}
}

func (m *Metrics) IncrementFetches() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fetches++
}

func (m *Metrics) IncrementFetchErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchErrors++
}

func (m *Metrics) IncrementRateLimits() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RateLimits++
}

func (m *Metrics) AddAdmitted(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ArticlesAdmitted += int64(n)
}

func (m *Metrics) AddDuplicatesRejected(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DuplicatesRejected += int64(n)
}

func (m *Metrics) AddEvicted(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ArticlesEvicted += int64(n)
}

func (m *Metrics) IncrementAlertsSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AlertsSent++
}

// RecordBatch stores the outcome and duration of a finished collection batch.
func (m *Metrics) RecordBatch(state string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Batches++
	m.LastBatchState = state
	m.LastBatchTime = duration
	m.TotalBatchTime += duration
	m.AverageBatchTime = m.TotalBatchTime / time.Duration(m.Batches)
	m.LastRunTime = time.Now()
}

// SetLastRun marks the service healthy after a successful batch.
func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"fetches":               m.Fetches,
		"fetch_errors":          m.FetchErrors,
		"rate_limits":           m.RateLimits,
		"articles_admitted":     m.ArticlesAdmitted,
		"duplicates_rejected":   m.DuplicatesRejected,
		"articles_evicted":      m.ArticlesEvicted,
		"batches":               m.Batches,
		"alerts_sent":           m.AlertsSent,
		"last_batch_state":      m.LastBatchState,
		"last_batch_time_ms":    m.LastBatchTime.Milliseconds(),
		"average_batch_time_ms": m.AverageBatchTime.Milliseconds(),
		"last_run_time":         m.LastRunTime.Format(time.RFC3339),
		"last_error_time":       m.LastErrorTime.Format(time.RFC3339),
		"last_error":            m.LastError,
		"is_healthy":            m.IsHealthy,
	}
}
