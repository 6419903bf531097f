// Package rss turns upstream RSS and Atom feeds into raw items for the
// collector: a search proxy that answers keyword queries, and a fixed list of
// publisher feeds filtered locally.
package rss

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"gopkg.in/yaml.v3"

	"github.com/deusflow/newsdesk/internal/cache"
	"github.com/deusflow/newsdesk/internal/news"
	"github.com/deusflow/newsdesk/internal/ratelimit"
	"github.com/deusflow/newsdesk/internal/retry"
	"github.com/deusflow/newsdesk/internal/scraper"
)

// DefaultSearchURL is the Google News RSS search endpoint; %s is the escaped query.
const DefaultSearchURL = "https://news.google.com/rss/search?q=%s&hl=bn&gl=BD&ceid=BD:bn"

const userAgent = "Mozilla/5.0 (compatible; newsdesk/1.0)"

// Options shared by both sources.
type Options struct {
	Client   *http.Client
	Quota    *ratelimit.Quota
	Retry    retry.RetryConfig
	CacheTTL time.Duration
	Logger   *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Client == nil {
		o.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if o.Retry.MaxAttempts == 0 {
		o.Retry = retry.RetryConfig{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true}
	}
	o.Retry.Retryable = func(err error) bool { return !errors.Is(err, ratelimit.ErrExceeded) }
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// fetcher downloads and parses feeds with quota, retry and cache applied.
type fetcher struct {
	opts   Options
	parser *gofeed.Parser
	cache  *cache.Cache[[]*gofeed.Item]
	name   string
}

func newFetcher(name string, opts Options) *fetcher {
	return &fetcher{
		opts:   opts.withDefaults(),
		parser: gofeed.NewParser(),
		cache:  cache.New[[]*gofeed.Item](),
		name:   name,
	}
}

func (f *fetcher) fetch(ctx context.Context, u string) ([]*gofeed.Item, error) {
	key := cache.Key(f.name, u)
	if f.opts.CacheTTL > 0 {
		if items, ok := f.cache.Get(key); ok {
			f.opts.Logger.Debug("feed served from cache", "url", u)
			return items, nil
		}
	}

	var items []*gofeed.Item
	err := retry.WithRetry(ctx, f.opts.Retry, func() error {
		var err error
		items, err = f.fetchOnce(ctx, u)
		return err
	})
	if err != nil {
		return nil, err
	}
	if f.opts.CacheTTL > 0 {
		if n := f.cache.Cleanup(); n > 0 {
			f.opts.Logger.Debug("expired feeds dropped from cache", "entries", n)
		}
		f.cache.Set(key, items, f.opts.CacheTTL)
	}
	return items, nil
}

func (f *fetcher) fetchOnce(ctx context.Context, u string) ([]*gofeed.Item, error) {
	if f.opts.Quota != nil {
		if err := f.opts.Quota.Use(f.name); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.1")

	resp, err := f.opts.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", u, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("get %s: HTTP %d: %w", u, resp.StatusCode, ratelimit.ErrExceeded)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("get %s: HTTP %d", u, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, retry.Permanent(fmt.Errorf("get %s: HTTP %d: %s", u, resp.StatusCode, strings.TrimSpace(string(body))))
	}

	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("parse %s: %w", u, err))
	}
	return feed.Items, nil
}

// SearchSource queries a search proxy that answers with an RSS feed.
type SearchSource struct {
	f   *fetcher
	url string
}

// NewSearchSource uses urlTemplate (with one %s for the query), or
// DefaultSearchURL when empty.
func NewSearchSource(urlTemplate string, opts Options) *SearchSource {
	if urlTemplate == "" {
		urlTemplate = DefaultSearchURL
	}
	return &SearchSource{f: newFetcher("search", opts), url: urlTemplate}
}

func (s *SearchSource) Search(ctx context.Context, query string) ([]news.RawItem, error) {
	items, err := s.f.fetch(ctx, fmt.Sprintf(s.url, url.QueryEscape(query)))
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	out := make([]news.RawItem, 0, len(items))
	for _, it := range items {
		out = append(out, ToRaw(it, ""))
	}
	return out, nil
}

// FeedSource reads a fixed set of feeds and keeps items mentioning a query term.
type FeedSource struct {
	f     *fetcher
	feeds []string
}

func NewFeedSource(feeds []string, opts Options) *FeedSource {
	return &FeedSource{f: newFetcher("feeds", opts), feeds: feeds}
}

// Search fetches every feed and filters locally. A failing feed is logged
// and skipped; the search fails only when every feed failed or upstream
// signalled a rate limit.
func (s *FeedSource) Search(ctx context.Context, query string) ([]news.RawItem, error) {
	terms := ParseQuery(query)
	var out []news.RawItem
	var lastErr error
	ok := 0

	for _, u := range s.feeds {
		items, err := s.f.fetch(ctx, u)
		if errors.Is(err, ratelimit.ErrExceeded) {
			return out, err
		}
		if err != nil {
			s.f.opts.Logger.Warn("feed failed", "url", u, "error", err)
			lastErr = err
			continue
		}
		ok++
		source := hostOf(u)
		for _, it := range items {
			raw := ToRaw(it, source)
			if matchesAny(raw.Title+" "+raw.Description, terms) {
				out = append(out, raw)
			}
		}
	}

	if ok == 0 && lastErr != nil {
		return nil, fmt.Errorf("all %d feeds failed: %w", len(s.feeds), lastErr)
	}
	return out, nil
}

// ParseQuery splits a composed `"a" OR "b"` query back into its terms.
func ParseQuery(query string) []string {
	var terms []string
	for _, part := range strings.Split(query, " OR ") {
		if t := strings.Trim(strings.TrimSpace(part), `"`); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

func matchesAny(text string, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, t := range terms {
		if strings.Contains(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

// ToRaw converts a parsed feed item. Dates are passed on as epoch
// milliseconds when gofeed parsed them, otherwise as the raw string.
func ToRaw(it *gofeed.Item, source string) news.RawItem {
	raw := news.RawItem{
		Title: strings.TrimSpace(it.Title),
		Link:  strings.TrimSpace(it.Link),
	}

	switch {
	case it.PublishedParsed != nil:
		raw.Date = strconv.FormatInt(it.PublishedParsed.UnixMilli(), 10)
	case it.UpdatedParsed != nil:
		raw.Date = strconv.FormatInt(it.UpdatedParsed.UnixMilli(), 10)
	case it.Published != "":
		raw.Date = it.Published
	default:
		raw.Date = it.Updated
	}

	snippet := scraper.ParseDescription(it.Description)

	switch {
	case snippet.Publisher != "":
		// Aggregator titles end with " - Publisher".
		raw.Source = snippet.Publisher
		raw.Title = strings.TrimSuffix(raw.Title, " - "+raw.Source)
	case source != "":
		raw.Source = source
	default:
		raw.Source = hostOf(raw.Link)
	}

	if snippet.Text != raw.Title {
		raw.Description = snippet.Text
	}
	return raw
}

func hostOf(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(parsed.Hostname(), "www.")
}

// FeedsConfig is the YAML feed list:
//
//	feeds:
//	  - https://...
type FeedsConfig struct {
	Feeds []string `yaml:"feeds"`
}

// LoadFeeds reads the feed list from a YAML file.
func LoadFeeds(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feeds: %w", err)
	}
	var cfg FeedsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode feeds: %w", err)
	}
	return cfg.Feeds, nil
}
