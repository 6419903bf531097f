package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deusflow/newsdesk/internal/news"
	"github.com/deusflow/newsdesk/internal/retry"
)

func TestSendMessage(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	var payload map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewDecoder(r.Body).Decode(&payload)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n, err := New("TOKEN", "42",
		WithBaseURL(srv.URL+"/bot"),
		WithRetry(retry.RetryConfig{MaxAttempts: 3, Delay: time.Millisecond}))
	if err != nil {
		t.Fatal(err)
	}
	if err := n.SendMessage(context.Background(), "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected one retry, got %d calls", calls.Load())
	}
	if payload["chat_id"] != "42" || payload["parse_mode"] != "HTML" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestSendMessageClientErrorNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n, _ := New("T", "1", WithBaseURL(srv.URL+"/bot"), WithRetry(retry.RetryConfig{MaxAttempts: 3, Delay: time.Millisecond}))
	if err := n.SendMessage(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("bad request retried: %d calls", calls.Load())
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	t.Parallel()

	if _, err := New("", "1"); err == nil {
		t.Fatal("expected error without token")
	}
}

func TestFormatAlert(t *testing.T) {
	t.Parallel()

	items := []news.Article{
		{Title: "Clash at <border>", Link: "https://n/1", Source: "Daily"},
		{Title: "Second", Link: "https://n/2"},
		{Title: "Third", Link: "https://n/3"},
	}
	msg := FormatAlert(news.KindMonitor, items, 2)
	if !strings.Contains(msg, "3 important monitor item(s)") {
		t.Fatalf("missing header: %s", msg)
	}
	if !strings.Contains(msg, "Clash at &lt;border&gt;") || !strings.Contains(msg, "<i>(Daily)</i>") {
		t.Fatalf("entry not escaped: %s", msg)
	}
	if strings.Contains(msg, "Third") || !strings.Contains(msg, "and 1 more") {
		t.Fatalf("max not applied: %s", msg)
	}
}
