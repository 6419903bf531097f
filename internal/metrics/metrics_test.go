package metrics

import (
	"testing"
	"time"
)

func TestCountersAndStats(t *testing.T) {
	m := New()
	m.IncrementFetches()
	m.IncrementFetches()
	m.IncrementFetchErrors()
	m.IncrementRateLimits()
	m.AddAdmitted(3)
	m.AddDuplicatesRejected(2)
	m.AddEvicted(1)
	m.RecordBatch("completed", 2*time.Second)
	m.RecordBatch("stopped", 4*time.Second)

	stats := m.GetStats()
	if stats["fetches"].(int64) != 2 || stats["fetch_errors"].(int64) != 1 {
		t.Fatalf("unexpected fetch counters: %v", stats)
	}
	if stats["articles_admitted"].(int64) != 3 || stats["duplicates_rejected"].(int64) != 2 {
		t.Fatalf("unexpected admission counters: %v", stats)
	}
	if stats["batches"].(int64) != 2 || stats["last_batch_state"].(string) != "stopped" {
		t.Fatalf("unexpected batch stats: %v", stats)
	}
	if stats["average_batch_time_ms"].(int64) != 3000 {
		t.Fatalf("average = %v", stats["average_batch_time_ms"])
	}
}

func TestHealth(t *testing.T) {
	m := New()
	if !m.Healthy() {
		t.Fatal("new metrics should be healthy")
	}
	m.SetError("boom")
	if m.Healthy() || m.GetStats()["last_error"] != "boom" {
		t.Fatal("error not recorded")
	}
	m.SetLastRun()
	if !m.Healthy() {
		t.Fatal("successful run should restore health")
	}
}
