package readstate

import (
	"reflect"
	"sync"
	"testing"

	"github.com/deusflow/newsdesk/internal/news"
)

func cl(links ...string) news.Cluster {
	c := news.Cluster{}
	for _, l := range links {
		c = append(c, news.Article{Link: l})
	}
	return c
}

func TestMarkAndQuery(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.MarkRead("https://a")
	tr.MarkRead("")
	if !tr.IsRead("https://a") || tr.IsRead("https://b") {
		t.Fatal("unexpected read state")
	}
	if n := tr.MarkManyRead([]string{"https://a", "https://b", ""}); n != 1 {
		t.Fatalf("expected 1 newly marked, got %d", n)
	}
	if tr.Len() != 2 {
		t.Fatalf("expected 2 marks, got %d", tr.Len())
	}
}

func TestClusterReadNeedsEveryMember(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.MarkRead("https://rep")
	if tr.ClusterRead(cl("https://rep", "https://member")) {
		t.Fatal("cluster with an unread member reported read")
	}
	tr.MarkRead("https://member")
	if !tr.ClusterRead(cl("https://rep", "https://member")) {
		t.Fatal("fully read cluster reported unread")
	}
	if tr.ClusterRead(news.Cluster{}) {
		t.Fatal("empty cluster reported read")
	}
}

func TestFilter(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.MarkRead("https://a")
	clusters := []news.Cluster{cl("https://a"), cl("https://b"), cl("https://c", "https://a")}

	tests := []struct {
		mode Mode
		want int
	}{
		{ModeAll, 3},
		{ModeRead, 1},
		{ModeUnread, 2},
		{Mode("bogus"), 3},
	}
	for _, tt := range tests {
		if got := tr.Filter(clusters, tt.mode); len(got) != tt.want {
			t.Errorf("Filter(%s) returned %d clusters, want %d", tt.mode, len(got), tt.want)
		}
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	if ParseMode("unread") != ModeUnread || ParseMode("read") != ModeRead || ParseMode("") != ModeAll {
		t.Fatal("ParseMode mismatch")
	}
}

func TestLinksAndRestore(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.MarkManyRead([]string{"https://b", "https://a"})
	links := tr.Links()
	if !reflect.DeepEqual(links, []string{"https://a", "https://b"}) {
		t.Fatalf("unexpected links: %v", links)
	}

	other := New()
	other.Restore(links)
	if !other.IsRead("https://a") || other.Len() != 2 {
		t.Fatal("restore lost marks")
	}
	other.Reset()
	if other.Len() != 0 {
		t.Fatal("reset kept marks")
	}
}

func TestConcurrentMarks(t *testing.T) {
	t.Parallel()

	tr := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.MarkManyRead([]string{"https://x", "https://y"})
			_ = tr.IsRead("https://x")
		}()
	}
	wg.Wait()
	if tr.Len() != 2 {
		t.Fatalf("expected 2 marks, got %d", tr.Len())
	}
}
