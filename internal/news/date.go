package news

import (
	"strconv"
	"strings"
	"time"
)

// Publisher date layouts seen across RSS, Atom and the search proxy.
var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC822Z,
	time.RFC822,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2 Jan 2006",
}

// ParseTimestamp converts a publisher date string to epoch milliseconds.
// It returns UnknownTimestamp and false when no layout matches.
func ParseTimestamp(date string) (int64, bool) {
	date = strings.TrimSpace(date)
	if date == "" {
		return UnknownTimestamp, false
	}
	if ms, err := strconv.ParseInt(date, 10, 64); err == nil && ms > 0 {
		return ms, true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, date); err == nil {
			return t.UnixMilli(), true
		}
	}
	return UnknownTimestamp, false
}

// FromRaw builds a tagged Article from an upstream item. The ID is left empty;
// the ingestion gate assigns it on admission.
func FromRaw(item RawItem, defs []KeywordDefinition, opts TagOptions) Article {
	ts, _ := ParseTimestamp(item.Date)
	a := Article{
		Title:       strings.TrimSpace(item.Title),
		Link:        strings.TrimSpace(item.Link),
		Source:      strings.TrimSpace(item.Source),
		Timestamp:   ts,
		Description: strings.TrimSpace(item.Description),
		Mode:        opts.Mode,
	}
	a.Keyword, _ = Tag(a.Text(), defs, opts)
	return a
}
