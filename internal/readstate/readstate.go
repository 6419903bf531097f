// Package readstate remembers which articles the user has seen.
package readstate

import (
	"sort"
	"sync"

	"github.com/deusflow/newsdesk/internal/news"
)

// Mode selects clusters by read state.
type Mode string

const (
	ModeAll    Mode = "all"
	ModeRead   Mode = "read"
	ModeUnread Mode = "unread"
)

// ParseMode maps user input to a Mode, defaulting to ModeAll.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeRead, ModeUnread:
		return Mode(s)
	default:
		return ModeAll
	}
}

// Tracker is a set of read article links. Marks are never removed individually.
type Tracker struct {
	mu   sync.RWMutex
	read map[string]struct{}
}

func New() *Tracker {
	return &Tracker{read: make(map[string]struct{})}
}

// MarkRead marks a single link as read.
func (t *Tracker) MarkRead(link string) {
	if link == "" {
		return
	}
	t.mu.Lock()
	t.read[link] = struct{}{}
	t.mu.Unlock()
}

// MarkManyRead marks every link and returns how many were newly marked.
func (t *Tracker) MarkManyRead(links []string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	added := 0
	for _, l := range links {
		if l == "" {
			continue
		}
		if _, ok := t.read[l]; !ok {
			t.read[l] = struct{}{}
			added++
		}
	}
	return added
}

func (t *Tracker) IsRead(link string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.read[link]
	return ok
}

// ClusterRead reports whether every member of c has been read. An empty
// cluster is never read.
func (t *Tracker) ClusterRead(c news.Cluster) bool {
	if len(c) == 0 {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, a := range c {
		if _, ok := t.read[a.Link]; !ok {
			return false
		}
	}
	return true
}

// Filter keeps the clusters matching mode, preserving order.
func (t *Tracker) Filter(clusters []news.Cluster, mode Mode) []news.Cluster {
	if mode != ModeRead && mode != ModeUnread {
		return clusters
	}
	out := make([]news.Cluster, 0, len(clusters))
	for _, c := range clusters {
		if t.ClusterRead(c) == (mode == ModeRead) {
			out = append(out, c)
		}
	}
	return out
}

// Len returns the number of read links.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.read)
}

// Links returns the read links sorted, for persistence.
func (t *Tracker) Links() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.read))
	for l := range t.read {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Restore replaces the tracked set with links.
func (t *Tracker) Restore(links []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.read = make(map[string]struct{}, len(links))
	for _, l := range links {
		if l != "" {
			t.read[l] = struct{}{}
		}
	}
}

// Reset forgets every mark. It backs the bulk clear operation only.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.read = make(map[string]struct{})
	t.mu.Unlock()
}
