package timeline

import (
	"testing"
	"time"

	"github.com/deusflow/newsdesk/internal/news"
)

func clusterAt(id string, t time.Time) news.Cluster {
	return news.Cluster{{ID: id, Link: "https://n/" + id, Title: id, Timestamp: t.UnixMilli()}}
}

func TestPartitionBoundaryInclusive(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
	threshold := DefaultRecentThreshold.Milliseconds()

	edge := news.Cluster{{ID: "edge", Timestamp: now - threshold}}
	older := news.Cluster{{ID: "older", Timestamp: now - threshold - 1}}
	unknown := news.Cluster{{ID: "unknown"}}

	recent, archive := Partition([]news.Cluster{edge, older, unknown}, now, threshold)
	if len(recent) != 1 || recent[0][0].ID != "edge" {
		t.Fatalf("unexpected recent bucket: %+v", recent)
	}
	if len(archive) != 2 || archive[0][0].ID != "older" || archive[1][0].ID != "unknown" {
		t.Fatalf("unexpected archive bucket: %+v", archive)
	}
}

func TestGroupByLocalDateAndHour(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("BST", 6*3600)
	// 20:30 UTC on Apr 30 is 02:30 on May 1 in UTC+6.
	clusters := []news.Cluster{
		clusterAt("late", time.Date(2024, 4, 30, 20, 30, 0, 0, time.UTC)),
		clusterAt("morning", time.Date(2024, 5, 1, 3, 15, 0, 0, time.UTC)),
		clusterAt("morning2", time.Date(2024, 5, 1, 3, 45, 0, 0, time.UTC)),
		clusterAt("yesterday", time.Date(2024, 4, 30, 5, 0, 0, 0, time.UTC)),
		{{ID: "nodate"}},
	}

	groups := Group(clusters, GroupOptions{Location: loc, Smart: true})
	if len(groups) != 3 {
		t.Fatalf("expected 3 date groups, got %d", len(groups))
	}
	if groups[0].Date != "2024-05-01" || groups[1].Date != "2024-04-30" || groups[2].Label != UnknownDateLabel {
		t.Fatalf("unexpected date order: %s, %s, %s", groups[0].Date, groups[1].Date, groups[2].Label)
	}

	hours := groups[0].Hours
	if len(hours) != 2 || hours[0].Hour != 9 || hours[1].Hour != 2 {
		t.Fatalf("unexpected hours: %+v", hours)
	}
	if hours[0].Clusters[0][0].ID != "morning2" || hours[1].Clusters[0][0].ID != "late" {
		t.Fatalf("unexpected hour contents: %+v", hours)
	}
}

func TestGroupWithoutSmartGrouping(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	clusters := []news.Cluster{
		clusterAt("a", base),
		clusterAt("b", base.Add(48*time.Hour)),
	}
	groups := Group(clusters, GroupOptions{Location: time.UTC})
	if len(groups) != 1 || groups[0].Label != AllItemsLabel {
		t.Fatalf("expected a single synthetic group, got %+v", groups)
	}
	all := groups[0].Hours[0].Clusters
	if len(all) != 2 || all[0][0].ID != "b" {
		t.Fatalf("expected newest first, got %+v", all)
	}
	if Group(nil, GroupOptions{}) != nil {
		t.Fatal("empty input should produce no groups")
	}
}

func TestUnreadFirst(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	read := clusterAt("read", base.Add(time.Minute))
	unread := clusterAt("unread", base)

	isRead := func(c news.Cluster) bool { return c[0].ID == "read" }
	groups := Group([]news.Cluster{read, unread}, GroupOptions{Location: time.UTC, Less: UnreadFirst(isRead)})
	got := Flatten(groups)
	if got[0][0].ID != "unread" || got[1][0].ID != "read" {
		t.Fatalf("unread cluster should come first: %+v", got)
	}
}

func TestSameDay(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC)
	today := SameDay(now, time.UTC)
	if !today(clusterAt("x", now.Add(-time.Hour))) {
		t.Fatal("cluster from the same day rejected")
	}
	if today(clusterAt("y", now.Add(-24*time.Hour))) {
		t.Fatal("cluster from yesterday accepted")
	}
	if today(news.Cluster{{ID: "z"}}) {
		t.Fatal("cluster without date accepted")
	}
}

func TestPaginate(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var clusters []news.Cluster
	for i := 0; i < 5; i++ {
		clusters = append(clusters, clusterAt(string(rune('a'+i)), base.Add(-time.Duration(i)*90*time.Minute)))
	}
	groups := Group(clusters, GroupOptions{Location: time.UTC, Smart: true})

	first := Paginate(groups, 1, 2)
	if first.Total != 5 || first.Pages != 3 {
		t.Fatalf("total=%d pages=%d", first.Total, first.Pages)
	}
	flat := Flatten(first.Groups)
	if len(flat) != 2 || flat[0][0].ID != "a" || flat[1][0].ID != "b" {
		t.Fatalf("unexpected first page: %+v", flat)
	}

	last := Flatten(Paginate(groups, 3, 2).Groups)
	if len(last) != 1 || last[0][0].ID != "e" {
		t.Fatalf("unexpected last page: %+v", last)
	}

	if beyond := Paginate(groups, 9, 2); len(beyond.Groups) != 0 {
		t.Fatalf("page past the end should be empty: %+v", beyond.Groups)
	}
	if all := Paginate(groups, 0, 0); len(Flatten(all.Groups)) != 5 || all.Number != 1 {
		t.Fatalf("size 0 should return everything on page 1")
	}
}
