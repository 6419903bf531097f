// Package cluster groups articles that report the same story.
//
// Build is a greedy, single-pass, order-dependent approximation: each article
// is compared only against the representatives of the most recent Window
// clusters, and past assignments are never revisited. Reordering the input can
// change the outcome.
package cluster

import (
	"sort"

	"github.com/deusflow/newsdesk/internal/news"
)

const (
	DefaultThreshold = 0.4
	DefaultWindow    = 50
)

// Options tunes Build. Zero values fall back to the defaults.
type Options struct {
	Threshold float64
	Window    int
	// Score compares two titles; news.Similarity when nil.
	Score func(a, b string) float64
}

func (o Options) withDefaults() Options {
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.Score == nil {
		o.Score = news.Similarity
	}
	return o
}

// Build sorts articles newest first and assigns each to the first cluster in
// the window, scanned oldest to newest in creation order, whose representative
// scores strictly above the threshold. Unmatched articles open a new cluster.
// The result is ordered by each cluster's latest member, newest first.
func Build(articles []news.Article, opts Options) []news.Cluster {
	opts = opts.withDefaults()

	sorted := make([]news.Article, len(articles))
	copy(sorted, articles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return news.NewerThan(sorted[i], sorted[j])
	})

	clusters := make([]news.Cluster, 0, len(sorted))
	for _, a := range sorted {
		start := len(clusters) - opts.Window
		if start < 0 {
			start = 0
		}

		matched := false
		for i := start; i < len(clusters); i++ {
			if opts.Score(a.Title, clusters[i].Representative().Title) > opts.Threshold {
				clusters[i] = append(clusters[i], a)
				matched = true
				break
			}
		}
		if !matched {
			clusters = append(clusters, news.Cluster{a})
		}
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		li, lj := clusters[i].Latest(), clusters[j].Latest()
		return li > lj
	})
	return clusters
}
