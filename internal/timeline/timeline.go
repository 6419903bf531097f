// Package timeline splits clusters into recent and archive buckets and groups
// them by local calendar date and hour for ordered display.
package timeline

import (
	"sort"
	"time"

	"github.com/deusflow/newsdesk/internal/news"
)

// DefaultRecentThreshold separates recent clusters from the archive.
const DefaultRecentThreshold = 12 * time.Hour

// AllItemsLabel names the single group used when smart grouping is off.
const AllItemsLabel = "all items"

// UnknownDateLabel names the group of clusters without a parsed date.
const UnknownDateLabel = "unknown date"

// Bucket selects one side of Partition.
type Bucket string

const (
	BucketRecent  Bucket = "recent"
	BucketArchive Bucket = "archive"
)

// Partition classifies each cluster by its representative's timestamp. The
// boundary is inclusive: now - ts == threshold is still recent. Clusters with
// an unknown timestamp always land in the archive.
func Partition(clusters []news.Cluster, now, recentThresholdMs int64) (recent, archive []news.Cluster) {
	for _, c := range clusters {
		rep := c.Representative()
		if rep.HasTimestamp() && now-rep.Timestamp <= recentThresholdMs {
			recent = append(recent, c)
			continue
		}
		archive = append(archive, c)
	}
	return recent, archive
}

// Comparator orders clusters inside an hour bucket.
type Comparator func(a, b news.Cluster) bool

// NewestFirst orders by latest member timestamp, descending.
func NewestFirst(a, b news.Cluster) bool {
	return a.Latest() > b.Latest()
}

// UnreadFirst puts unread clusters ahead of read ones, newest first within each.
func UnreadFirst(isRead func(news.Cluster) bool) Comparator {
	return func(a, b news.Cluster) bool {
		ra, rb := isRead(a), isRead(b)
		if ra != rb {
			return !ra
		}
		return NewestFirst(a, b)
	}
}

// SameDay keeps clusters whose representative was published on now's local date.
func SameDay(now time.Time, loc *time.Location) func(news.Cluster) bool {
	if loc == nil {
		loc = time.Local
	}
	today := now.In(loc).Format(time.DateOnly)
	return func(c news.Cluster) bool {
		rep := c.Representative()
		return rep.HasTimestamp() && time.UnixMilli(rep.Timestamp).In(loc).Format(time.DateOnly) == today
	}
}

// HourGroup holds the clusters of one hour of a day. Hour is -1 for the
// synthetic and unknown-date groups.
type HourGroup struct {
	Hour     int            `json:"hour"`
	Clusters []news.Cluster `json:"clusters"`
}

// DateGroup holds the hour buckets of one local calendar date, newest hour first.
type DateGroup struct {
	Date  string      `json:"date"`
	Label string      `json:"label"`
	Hours []HourGroup `json:"hours"`
}

// GroupOptions controls Group.
type GroupOptions struct {
	// Location is the viewer's zone used for calendar dates; time.Local when nil.
	Location *time.Location
	// Smart enables date and hour sub-grouping.
	Smart bool
	// Less orders clusters within a bucket; NewestFirst when nil.
	Less Comparator
}

// Group arranges clusters into date groups (newest date first) and hour groups
// (newest hour first). Clusters without a date form a trailing group.
func Group(clusters []news.Cluster, opts GroupOptions) []DateGroup {
	if opts.Less == nil {
		opts.Less = NewestFirst
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	ordered := make([]news.Cluster, len(clusters))
	copy(ordered, clusters)
	sort.SliceStable(ordered, func(i, j int) bool { return opts.Less(ordered[i], ordered[j]) })

	if !opts.Smart {
		if len(ordered) == 0 {
			return nil
		}
		return []DateGroup{{
			Label: AllItemsLabel,
			Hours: []HourGroup{{Hour: -1, Clusters: ordered}},
		}}
	}

	byDate := map[string]map[int][]news.Cluster{}
	for _, c := range ordered {
		date, hour := "", -1
		if rep := c.Representative(); rep.HasTimestamp() {
			t := time.UnixMilli(rep.Timestamp).In(opts.Location)
			date, hour = t.Format(time.DateOnly), t.Hour()
		}
		if byDate[date] == nil {
			byDate[date] = map[int][]news.Cluster{}
		}
		byDate[date][hour] = append(byDate[date][hour], c)
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	// ISO dates sort lexically; the empty unknown key ends up last.
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	groups := make([]DateGroup, 0, len(dates))
	for _, d := range dates {
		hours := make([]int, 0, len(byDate[d]))
		for h := range byDate[d] {
			hours = append(hours, h)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(hours)))

		g := DateGroup{Date: d, Label: d}
		if d == "" {
			g.Label = UnknownDateLabel
		}
		for _, h := range hours {
			g.Hours = append(g.Hours, HourGroup{Hour: h, Clusters: byDate[d][h]})
		}
		groups = append(groups, g)
	}
	return groups
}

// Flatten lists the clusters of groups in display order.
func Flatten(groups []DateGroup) []news.Cluster {
	var out []news.Cluster
	for _, g := range groups {
		for _, h := range g.Hours {
			out = append(out, h.Clusters...)
		}
	}
	return out
}

// Page is one slice of the grouped display list.
type Page struct {
	Number int         `json:"page"`
	Size   int         `json:"size"`
	Total  int         `json:"total"`
	Pages  int         `json:"pages"`
	Groups []DateGroup `json:"groups"`
}

// Paginate cuts the grouped list into pages of size clusters; page 1 starts at
// the first (most recent) cluster. size <= 0 returns everything on one page.
func Paginate(groups []DateGroup, page, size int) Page {
	total := 0
	for _, g := range groups {
		for _, h := range g.Hours {
			total += len(h.Clusters)
		}
	}
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = total
	}

	p := Page{Number: page, Size: size, Total: total}
	if size == 0 {
		return p
	}
	p.Pages = (total + size - 1) / size

	start, end := (page-1)*size, page*size
	pos := 0
	for _, g := range groups {
		cut := DateGroup{Date: g.Date, Label: g.Label}
		for _, h := range g.Hours {
			var keep []news.Cluster
			for _, c := range h.Clusters {
				if pos >= start && pos < end {
					keep = append(keep, c)
				}
				pos++
			}
			if len(keep) > 0 {
				cut.Hours = append(cut.Hours, HourGroup{Hour: h.Hour, Clusters: keep})
			}
		}
		if len(cut.Hours) > 0 {
			p.Groups = append(p.Groups, cut)
		}
	}
	return p
}
