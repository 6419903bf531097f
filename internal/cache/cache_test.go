package cache

import (
	"testing"
	"time"
)

func TestGetHonoursTTL(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	c := New[[]string]()
	c.now = func() time.Time { return now }

	c.Set("q", []string{"a", "b"}, time.Minute)
	if v, ok := c.Get("q"); !ok || len(v) != 2 {
		t.Fatalf("Get = %v, %v", v, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("q"); ok {
		t.Fatal("expired entry returned")
	}
	if removed := c.Cleanup(); removed != 1 || c.Len() != 0 {
		t.Fatalf("cleanup removed %d, len %d", removed, c.Len())
	}
}

func TestKey(t *testing.T) {
	t.Parallel()

	if Key("a", "bc") == Key("ab", "c") {
		t.Fatal("key collision across part boundaries")
	}
	if Key("x") != Key("x") || len(Key("x")) != 64 {
		t.Fatal("key not stable")
	}
}
