package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deusflow/newsdesk/internal/corpus"
	"github.com/deusflow/newsdesk/internal/news"
)

func defs(keywords ...string) []news.KeywordDefinition {
	out := make([]news.KeywordDefinition, 0, len(keywords))
	for _, k := range keywords {
		out = append(out, news.KeywordDefinition{Keyword: k, Active: true, Kind: news.KindBoth})
	}
	return out
}

func itemsFor(query string, n int) []news.RawItem {
	items := make([]news.RawItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, news.RawItem{
			Title: fmt.Sprintf("%s report %d", query, i),
			Link:  fmt.Sprintf("https://example.com/%s/%d", query, i),
			Date:  "Mon, 02 Jan 2006 15:04:05 -0700",
		})
	}
	return items
}

func TestCollectCompletes(t *testing.T) {
	t.Parallel()

	var queries []string
	src := SourceFunc(func(ctx context.Context, query string) ([]news.RawItem, error) {
		queries = append(queries, query)
		return itemsFor(fmt.Sprint(len(queries)), 2), nil
	})
	c := corpus.New(0, nil)
	o := New(src, c, Options{})

	var progress [][2]int
	kw := defs("flood", "border")
	kw[0].Variations = []string{"বন্যা"}
	res, err := o.Collect(context.Background(), Batch{
		Keywords: kw,
		Progress: func(done, total int) { progress = append(progress, [2]int{done, total}) },
		Important: func(a news.Article) bool {
			return a.Link == "https://example.com/1/0"
		},
	})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if res.State != StateCompleted || o.State() != StateCompleted {
		t.Fatalf("state = %s / %s", res.State, o.State())
	}
	if len(res.Admitted) != 4 || c.Len() != 4 || res.Important != 1 {
		t.Fatalf("admitted=%d corpus=%d important=%d", len(res.Admitted), c.Len(), res.Important)
	}
	if queries[0] != `"flood" OR "বন্যা"` || queries[1] != `"border"` {
		t.Fatalf("unexpected queries: %q", queries)
	}
	if len(progress) != 2 || progress[1] != [2]int{2, 2} {
		t.Fatalf("unexpected progress: %v", progress)
	}
}

func TestCollectSkipsTransientErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	src := SourceFunc(func(ctx context.Context, query string) ([]news.RawItem, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("connection reset")
		}
		return itemsFor("ok", 1), nil
	})
	o := New(src, corpus.New(0, nil), Options{})
	res, err := o.Collect(context.Background(), Batch{Keywords: defs("a", "b")})
	if err != nil {
		t.Fatalf("transient error leaked: %v", err)
	}
	if res.State != StateCompleted || res.Failed != 1 || len(res.Admitted) != 1 || calls != 2 {
		t.Fatalf("unexpected result: %+v calls=%d", res, calls)
	}
}

func TestCollectAllFailed(t *testing.T) {
	t.Parallel()

	src := SourceFunc(func(ctx context.Context, query string) ([]news.RawItem, error) {
		return nil, errors.New("bad gateway")
	})
	o := New(src, corpus.New(0, nil), Options{})
	res, err := o.Collect(context.Background(), Batch{Keywords: defs("a", "b")})
	if !errors.Is(err, ErrNoData) || res.State != StateErrored {
		t.Fatalf("expected errored/ErrNoData, got %s %v", res.State, err)
	}
}

func TestCollectRateLimitHalts(t *testing.T) {
	t.Parallel()

	calls := 0
	src := SourceFunc(func(ctx context.Context, query string) ([]news.RawItem, error) {
		calls++
		if calls == 2 {
			return nil, fmt.Errorf("search %q: %w", query, ErrRateLimited)
		}
		return itemsFor(query, 1), nil
	})
	o := New(src, corpus.New(0, nil), Options{})
	res, err := o.Collect(context.Background(), Batch{Keywords: defs("a", "b", "c")})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if res.State != StateStopped || calls != 2 || len(res.Admitted) != 1 {
		t.Fatalf("unexpected result: %+v calls=%d", res, calls)
	}
}

func TestStopDuringFetchFreezesCalls(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	var o *Orchestrator
	src := SourceFunc(func(ctx context.Context, query string) ([]news.RawItem, error) {
		if calls.Add(1) == 2 {
			o.Stop()
		}
		return itemsFor(query, 1), nil
	})
	c := corpus.New(0, nil)
	o = New(src, c, Options{})

	res, err := o.Collect(context.Background(), Batch{Keywords: defs("a", "b", "c", "d")})
	if err != nil {
		t.Fatalf("stop is not an error: %v", err)
	}
	if res.State != StateStopped || o.State() != StateStopped {
		t.Fatalf("state = %s", res.State)
	}
	if calls.Load() != 2 {
		t.Fatalf("fetches issued after stop: %d", calls.Load())
	}
	if c.Len() != 1 || len(res.Admitted) != 1 {
		t.Fatalf("expected only the pre-stop admit, corpus=%d", c.Len())
	}
}

func TestStopWakesPolitenessDelay(t *testing.T) {
	t.Parallel()

	fetched := make(chan struct{}, 1)
	var calls atomic.Int32
	src := SourceFunc(func(ctx context.Context, query string) ([]news.RawItem, error) {
		calls.Add(1)
		fetched <- struct{}{}
		return nil, nil
	})
	o := New(src, corpus.New(0, nil), Options{Delay: time.Hour})

	done := make(chan Result, 1)
	go func() {
		res, _ := o.Collect(context.Background(), Batch{Keywords: defs("a", "b")})
		done <- res
	}()

	<-fetched
	o.Stop()

	select {
	case res := <-done:
		if res.State != StateStopped || calls.Load() != 1 {
			t.Fatalf("state=%s calls=%d", res.State, calls.Load())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not interrupt the delay")
	}
}

func TestPolitenessDelayCountsFromFetchEnd(t *testing.T) {
	t.Parallel()

	const delay = 100 * time.Millisecond
	var mu sync.Mutex
	var starts, ends []time.Time
	src := SourceFunc(func(ctx context.Context, query string) ([]news.RawItem, error) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		time.Sleep(2 * delay)
		mu.Lock()
		ends = append(ends, time.Now())
		mu.Unlock()
		return nil, nil
	})
	o := New(src, corpus.New(0, nil), Options{Delay: delay})

	if _, err := o.Collect(context.Background(), Batch{Keywords: defs("a", "b", "c")}); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(starts) != 3 {
		t.Fatalf("fetches = %d", len(starts))
	}
	for i := 1; i < len(starts); i++ {
		if gap := starts[i].Sub(ends[i-1]); gap < delay-5*time.Millisecond {
			t.Fatalf("fetch %d started %v after the previous one returned, want >= %v", i+1, gap, delay)
		}
	}
}

func TestCollectBusy(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	src := SourceFunc(func(ctx context.Context, query string) ([]news.RawItem, error) {
		close(started)
		<-release
		return nil, nil
	})
	o := New(src, corpus.New(0, nil), Options{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.Collect(context.Background(), Batch{Keywords: defs("a")})
	}()

	<-started
	if _, err := o.Collect(context.Background(), Batch{Keywords: defs("b")}); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	close(release)
	wg.Wait()

	// a terminal state accepts a new batch
	o2 := New(SourceFunc(func(ctx context.Context, q string) ([]news.RawItem, error) { return nil, nil }), corpus.New(0, nil), Options{})
	o2.Collect(context.Background(), Batch{Keywords: defs("a")})
	if _, err := o2.Collect(context.Background(), Batch{Keywords: defs("a")}); err != nil {
		t.Fatalf("second batch rejected: %v", err)
	}
}

func TestFreeModeCatchAll(t *testing.T) {
	t.Parallel()

	var got []string
	src := SourceFunc(func(ctx context.Context, query string) ([]news.RawItem, error) {
		got = append(got, query)
		return itemsFor("any", 2), nil
	})
	o := New(src, corpus.New(0, nil), Options{})
	res, err := o.Collect(context.Background(), Batch{FreeMode: true, CatchAll: "Bangladesh"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "Bangladesh" {
		t.Fatalf("unexpected queries: %v", got)
	}
	for _, a := range res.Admitted {
		if a.Keyword != "Bangladesh" {
			t.Fatalf("article tagged %q, want catch-all", a.Keyword)
		}
	}
}

func TestEmptyBatchIsNoop(t *testing.T) {
	t.Parallel()

	src := SourceFunc(func(ctx context.Context, query string) ([]news.RawItem, error) {
		t.Fatal("source called for an empty batch")
		return nil, nil
	})
	o := New(src, corpus.New(0, nil), Options{})
	inactive := defs("x")
	inactive[0].Active = false
	res, err := o.Collect(context.Background(), Batch{Keywords: inactive})
	if err != nil || res.State != StateCompleted || res.Total != 0 {
		t.Fatalf("unexpected result %+v err=%v", res, err)
	}
}

func TestForceModeReadmits(t *testing.T) {
	t.Parallel()

	src := SourceFunc(func(ctx context.Context, query string) ([]news.RawItem, error) {
		return itemsFor("same", 1), nil
	})
	c := corpus.New(0, nil)
	o := New(src, c, Options{})
	o.Collect(context.Background(), Batch{Keywords: defs("a")})
	o.Collect(context.Background(), Batch{Keywords: defs("a")})
	if c.Len() != 1 {
		t.Fatalf("duplicate admitted without force: %d", c.Len())
	}
	o.Collect(context.Background(), Batch{Keywords: defs("a"), Force: true})
	if c.Len() != 2 {
		t.Fatalf("force mode did not re-admit: %d", c.Len())
	}
}

func TestImportantTerms(t *testing.T) {
	t.Parallel()

	important := ImportantTerms([]string{"BGB", "killed"})
	if !important(news.Article{Title: "Two killed in clash"}) {
		t.Fatal("expected match")
	}
	if important(news.Article{Title: "Market opens"}) {
		t.Fatal("unexpected match")
	}
	if ImportantTerms(nil) != nil {
		t.Fatal("empty terms should yield a nil predicate")
	}
}
