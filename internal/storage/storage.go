// Package storage persists engine snapshots between runs.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/deusflow/newsdesk/internal/news"
)

// ErrNotFound is returned by Load when nothing was saved for a mode.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is the persisted state of one engine: its corpus in admission
// order and the links marked read.
type Snapshot struct {
	Mode     news.Kind      `json:"mode"`
	Articles []news.Article `json:"articles"`
	Read     []string       `json:"read"`
	SavedAt  time.Time      `json:"saved_at"`
}

type Store interface {
	Load(ctx context.Context, mode news.Kind) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	Close() error
}

func modeKey(mode news.Kind) string {
	if mode == "" {
		return "default"
	}
	return string(mode)
}

// dropExpired removes articles with a known timestamp older than maxAge.
// Articles without a date are kept; the corpus cap handles them.
func dropExpired(articles []news.Article, maxAge time.Duration, now time.Time) []news.Article {
	if maxAge <= 0 {
		return articles
	}
	cutoff := now.Add(-maxAge).UnixMilli()
	kept := articles[:0]
	for _, a := range articles {
		if a.HasTimestamp() && a.Timestamp < cutoff {
			continue
		}
		kept = append(kept, a)
	}
	return kept
}
