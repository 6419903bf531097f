package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestStripHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"plain   text\n here", "plain text here"},
		{"<p>Flood <b>hits</b> district</p><script>x()</script>", "Flood hits district"},
		{"বন্যা&nbsp;পরিস্থিতি", "বন্যা পরিস্থিতি"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := StripHTML(tt.in); got != tt.want {
			t.Errorf("StripHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseDescription(t *testing.T) {
	t.Parallel()

	desc := `<a href="https://example.com/story" target="_blank">Border guards meet</a>&nbsp;&nbsp;<font color="#6f6f6f">Example Daily</font>`
	s := ParseDescription(desc)
	if s.Link != "https://example.com/story" {
		t.Fatalf("link = %q", s.Link)
	}
	if s.Publisher != "Example Daily" {
		t.Fatalf("publisher = %q", s.Publisher)
	}
	if s.Text != "Border guards meet" {
		t.Fatalf("text = %q", s.Text)
	}
}

func TestExtract(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`<html><head><title>Site</title></head><body>
<h1>Flood hits district</h1>
<article>
<p>Heavy rain caused the river to overflow on Monday night.</p>
<p>Short.</p>
<p>Officials said relief work would begin in the morning.</p>
</article></body></html>`))
	}))
	defer srv.Close()

	e := NewExtractor(5 * time.Second)
	got, err := e.Extract(context.Background(), srv.URL+"/story")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Title != "Flood hits district" {
		t.Fatalf("title = %q", got.Title)
	}
	if strings.Count(got.Content, "\n\n") != 1 || strings.Contains(got.Content, "Short.") {
		t.Fatalf("unexpected content: %q", got.Content)
	}

	if _, err := e.Extract(context.Background(), srv.URL+"/missing"); err == nil {
		t.Fatal("expected error for 404")
	}
}
