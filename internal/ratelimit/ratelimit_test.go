package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestQuotaPerUpstream(t *testing.T) {
	t.Parallel()

	q := NewQuota(0, time.Hour, nil)
	q.SetLimit("search", 2)

	for i := 0; i < 2; i++ {
		if err := q.Use("search"); err != nil {
			t.Fatalf("use %d: %v", i, err)
		}
	}
	if q.Allow("search") {
		t.Fatal("Allow should report exhausted quota")
	}
	if err := q.Use("search"); !errors.Is(err, ErrExceeded) {
		t.Fatalf("expected ErrExceeded, got %v", err)
	}
	if err := q.Use("feeds"); err != nil {
		t.Fatalf("unrelated upstream limited: %v", err)
	}
}

func TestQuotaTotalAndReset(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	q := NewQuota(1, time.Hour, nil)
	q.now = func() time.Time { return now }
	q.resetTime = now.Add(time.Hour)

	if err := q.Use("a"); err != nil {
		t.Fatal(err)
	}
	if err := q.Use("b"); !errors.Is(err, ErrExceeded) {
		t.Fatalf("total cap not enforced: %v", err)
	}

	now = now.Add(2 * time.Hour)
	if err := q.Use("b"); err != nil {
		t.Fatalf("quota not reset: %v", err)
	}
	if q.GetStats()["total_used"].(int) != 1 {
		t.Fatalf("unexpected stats: %v", q.GetStats())
	}
}
