package news

import (
	"strings"
)

// UnknownTimestamp marks an article whose publisher date could not be parsed.
// Such articles sort after every article with a valid timestamp.
const UnknownTimestamp int64 = 0

// Article represents a single collected headline.
type Article struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Link        string `json:"link"`
	Source      string `json:"source"`
	Timestamp   int64  `json:"timestamp"` // epoch milliseconds
	Description string `json:"description,omitempty"`
	Keyword     string `json:"keyword"`
	Mode        Kind   `json:"mode,omitempty"`
}

// HasTimestamp reports whether the publisher date was parsed successfully.
func (a Article) HasTimestamp() bool {
	return a.Timestamp != UnknownTimestamp
}

// Text is the title plus the optional description, used for tagging and sentiment.
func (a Article) Text() string {
	if a.Description == "" {
		return a.Title
	}
	return a.Title + " " + a.Description
}

// Sentiment is recomputed from title and description on every call.
func (a Article) Sentiment() Sentiment {
	return Classify(a.Text())
}

// NewerThan orders articles newest first; unknown timestamps go last.
func NewerThan(a, b Article) bool {
	if a.HasTimestamp() != b.HasTimestamp() {
		return a.HasTimestamp()
	}
	return a.Timestamp > b.Timestamp
}

// Cluster is an append-only group of articles believed to report the same event.
// Element 0 is the representative used for similarity comparisons.
type Cluster []Article

// Representative returns the article new members are compared against.
func (c Cluster) Representative() Article {
	if len(c) == 0 {
		return Article{}
	}
	return c[0]
}

// Latest returns the maximum member timestamp.
func (c Cluster) Latest() int64 {
	latest := UnknownTimestamp
	for _, a := range c {
		if a.Timestamp > latest {
			latest = a.Timestamp
		}
	}
	return latest
}

// Links lists the identity keys of all members.
func (c Cluster) Links() []string {
	links := make([]string, 0, len(c))
	for _, a := range c {
		links = append(links, a.Link)
	}
	return links
}

// Kind tells which stream a keyword feeds.
type Kind string

const (
	KindMonitor Kind = "monitor"
	KindReport  Kind = "report"
	KindBoth    Kind = "both"
)

// Serves reports whether a keyword of this kind belongs to the given stream.
func (k Kind) Serves(mode Kind) bool {
	return k == KindBoth || k == "" || mode == "" || k == mode
}

// KeywordDefinition is a configured keyword with its spelling variants.
type KeywordDefinition struct {
	Keyword    string   `yaml:"keyword" json:"keyword"`
	Variations []string `yaml:"variations" json:"variations,omitempty"`
	Kind       Kind     `yaml:"kind" json:"kind"`
	Active     bool     `yaml:"active" json:"active"`
}

// Terms returns the keyword followed by its variations, blanks removed.
// In strict mode only the literal keyword is returned.
func (d KeywordDefinition) Terms(strict bool) []string {
	terms := make([]string, 0, len(d.Variations)+1)
	if kw := strings.TrimSpace(d.Keyword); kw != "" {
		terms = append(terms, kw)
	}
	if strict {
		return terms
	}
	for _, v := range d.Variations {
		if v = strings.TrimSpace(v); v != "" {
			terms = append(terms, v)
		}
	}
	return terms
}

// ComposeQuery joins the definition's terms into an upstream search disjunction.
func ComposeQuery(d KeywordDefinition, strict bool) string {
	terms := d.Terms(strict)
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, `"`+t+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// RawItem is an already-parsed upstream result before tagging and admission.
type RawItem struct {
	Title       string
	Link        string
	Date        string
	Source      string
	Description string
}
