// Package corpus holds the admitted articles of one engine instance and the
// ingestion gate that decides what gets in.
package corpus

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/deusflow/newsdesk/internal/news"
)

// Corpus is the set of admitted articles, indexed by link and by id.
// In non-force mode no two articles share a link.
type Corpus struct {
	mu       sync.RWMutex
	articles []news.Article
	byID     map[string]int
	links    map[string]int // link -> number of articles carrying it
	maxSize  int
	logger   *slog.Logger

	// OnEvict, when set, is called with the number of evicted articles.
	OnEvict func(n int)
}

// New creates an empty corpus. maxSize <= 0 disables the cap.
func New(maxSize int, logger *slog.Logger) *Corpus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Corpus{
		byID:    make(map[string]int),
		links:   make(map[string]int),
		maxSize: maxSize,
		logger:  logger,
	}
}

// Admit runs the ingestion gate for one candidate. Without force a candidate
// whose link is already present is rejected. On admission the candidate gets
// an ID when it has none and is inserted. A candidate that the size cap evicts
// straight away is reported as not admitted. The check and the insert happen
// under one lock so two concurrent admits of a link cannot both pass.
func (c *Corpus) Admit(candidate news.Article, force bool) (news.Article, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && c.links[candidate.Link] > 0 {
		c.logger.Debug("duplicate link rejected", "link", candidate.Link, "title", candidate.Title)
		return candidate, false
	}
	if candidate.ID == "" {
		candidate.ID = uuid.New().String()
	}
	if _, taken := c.byID[candidate.ID]; taken {
		candidate.ID = uuid.New().String()
	}

	c.byID[candidate.ID] = len(c.articles)
	c.links[candidate.Link]++
	c.articles = append(c.articles, candidate)

	if c.maxSize > 0 && len(c.articles) > c.maxSize {
		c.evictLocked(len(c.articles) - c.maxSize)
		if _, kept := c.byID[candidate.ID]; !kept {
			c.logger.Debug("candidate evicted on admission", "link", candidate.Link, "title", candidate.Title)
			return candidate, false
		}
	}
	return candidate, true
}

// AdmitBatch admits candidates in arrival order and returns the admitted ones.
func (c *Corpus) AdmitBatch(candidates []news.Article, force bool) []news.Article {
	admitted := make([]news.Article, 0, len(candidates))
	for _, cand := range candidates {
		if a, ok := c.Admit(cand, force); ok {
			admitted = append(admitted, a)
		}
	}
	return admitted
}

// HasLink reports whether any admitted article carries link.
func (c *Corpus) HasLink(link string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.links[link] > 0
}

// Get returns the article with the given id.
func (c *Corpus) Get(id string) (news.Article, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byID[id]
	if !ok {
		return news.Article{}, false
	}
	return c.articles[i], true
}

// Len returns the number of admitted articles.
func (c *Corpus) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.articles)
}

// Articles returns a copy of the corpus in admission order.
func (c *Corpus) Articles() []news.Article {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]news.Article, len(c.articles))
	copy(out, c.articles)
	return out
}

// Clear removes every article matching pred (all articles when pred is nil)
// and returns how many were removed.
func (c *Corpus) Clear(pred func(news.Article) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.articles[:0]
	removed := 0
	for _, a := range c.articles {
		if pred == nil || pred(a) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	c.articles = kept
	c.reindexLocked()
	return removed
}

// Restore loads previously persisted articles, bypassing the gate so that
// force-mode duplicates survive a restart.
func (c *Corpus) Restore(articles []news.Article) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range articles {
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		c.articles = append(c.articles, a)
	}
	if c.maxSize > 0 && len(c.articles) > c.maxSize {
		c.evictLocked(len(c.articles) - c.maxSize)
		return
	}
	c.reindexLocked()
}

// evictLocked drops the n oldest articles; unknown timestamps count as oldest.
func (c *Corpus) evictLocked(n int) {
	order := make([]int, len(c.articles))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return news.NewerThan(c.articles[order[j]], c.articles[order[i]])
	})

	drop := make(map[int]struct{}, n)
	for _, i := range order[:n] {
		drop[i] = struct{}{}
	}
	kept := make([]news.Article, 0, len(c.articles)-n)
	for i, a := range c.articles {
		if _, ok := drop[i]; !ok {
			kept = append(kept, a)
		}
	}
	c.articles = kept
	c.reindexLocked()

	c.logger.Debug("corpus capped", "evicted", n, "size", len(c.articles))
	if c.OnEvict != nil {
		c.OnEvict(n)
	}
}

func (c *Corpus) reindexLocked() {
	c.byID = make(map[string]int, len(c.articles))
	c.links = make(map[string]int, len(c.articles))
	for i, a := range c.articles {
		c.byID[a.ID] = i
		c.links[a.Link]++
	}
}
