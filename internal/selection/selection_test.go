package selection

import (
	"fmt"
	"testing"
	"time"

	"newsroll/internal/core"
)

func item(title, source string, score int, at time.Time, topics ...string) core.EnrichedItem {
	return core.EnrichedItem{
		RawItem:    core.RawItem{Title: title, Source: source, PublishedAt: at},
		Enrichment: core.Enrichment{ImportanceScore: score, Topics: topics},
	}
}

func titles(items []core.EnrichedItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Title
	}
	return out
}

func TestSortByImportance(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	items := []core.EnrichedItem{
		item("low", "s", 3, base),
		item("undated-high", "s", 9, time.Time{}),
		item("high-new", "s", 9, base.Add(time.Hour)),
		item("unscored", "s", 0, base.Add(2*time.Hour)),
		item("low-dup", "s", 3, base),
	}
	got := titles(SortByImportance(items))
	want := []string{"high-new", "undated-high", "low", "low-dup", "unscored"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("order = %v, want %v", got, want)
	}
	if items[0].Title != "low" {
		t.Error("input slice was reordered")
	}
}

func TestPickDiverseDistinctLeadingTopics(t *testing.T) {
	// Ten items over four topics.
	topicsCycle := []string{"A", "A", "B", "A", "C", "B", "D", "C", "A", "D"}
	var items []core.EnrichedItem
	for i, topic := range topicsCycle {
		items = append(items, item(fmt.Sprintf("i%d", i), "s", 5, time.Time{}, topic))
	}
	got := PickDiverse(items, 3)
	if len(got) != 3 {
		t.Fatalf("picked %d, want 3", len(got))
	}
	seen := map[string]bool{}
	for _, it := range got {
		if seen[it.PrimaryTopic()] {
			t.Errorf("leading topic %s repeated", it.PrimaryTopic())
		}
		seen[it.PrimaryTopic()] = true
	}
}

func TestPickDiverseTopsUpWhenScarce(t *testing.T) {
	items := []core.EnrichedItem{
		item("a1", "s", 5, time.Time{}, "A"),
		item("a2", "s", 5, time.Time{}, "A"),
		item("b1", "s", 5, time.Time{}, "B"),
		item("a3", "s", 5, time.Time{}, "A"),
	}
	got := titles(PickDiverse(items, 3))
	want := []string{"a1", "b1", "a2"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("picked %v, want %v", got, want)
	}
	if n := len(PickDiverse(items, 10)); n != len(items) {
		t.Errorf("cap above input returned %d, want %d", n, len(items))
	}
	if n := len(PickDiverse(items, 0)); n != 0 {
		t.Errorf("zero cap returned %d", n)
	}
}

func TestPickDiverseAdmitsTopiclessItems(t *testing.T) {
	items := []core.EnrichedItem{
		item("x", "s", 5, time.Time{}),
		item("y", "s", 5, time.Time{}),
		item("a", "s", 5, time.Time{}, "A"),
	}
	got := titles(PickDiverse(items, 2))
	if fmt.Sprint(got) != "[x y]" {
		t.Errorf("picked %v", got)
	}
}

func TestSelectBySourceCap(t *testing.T) {
	sources := []string{"feed1", "feed1", "feed1", "feed2", "", "", "", "feed3", "feed3", "feed4"}
	var items []core.EnrichedItem
	for i, s := range sources {
		items = append(items, item(fmt.Sprintf("i%d", i), s, 5, time.Time{}))
	}
	got := SelectBySourceCap(items, 5, 2)
	if len(got) != 5 {
		t.Fatalf("selected %d, want 5", len(got))
	}
	counts := map[string]int{}
	for _, it := range got {
		counts[it.Source]++
		if counts[it.Source] > 2 {
			t.Errorf("source %q admitted %d times", it.Source, counts[it.Source])
		}
	}
	want := []string{"i0", "i1", "i3", "i4", "i5"}
	if fmt.Sprint(titles(got)) != fmt.Sprint(want) {
		t.Errorf("selected %v, want %v", titles(got), want)
	}
}

func TestFilterByRange(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)
	items := []core.EnrichedItem{
		item("before", "s", 1, start.Add(-time.Second)),
		item("start", "s", 1, start),
		item("end", "s", 1, end),
		item("after", "s", 1, end.Add(time.Second)),
		item("undated", "s", 1, time.Time{}),
	}
	got := titles(FilterByRange(items, start, end))
	if fmt.Sprint(got) != "[start end]" {
		t.Errorf("kept %v", got)
	}
}

func TestGroupByTab(t *testing.T) {
	items := []core.EnrichedItem{
		{RawItem: core.RawItem{Title: "a", Tab: "finance"}},
		{RawItem: core.RawItem{Title: "b"}},
	}
	got := GroupByTab(items, []string{"ai", "finance", "ev"})
	if len(got["ai"]) != 1 || len(got["finance"]) != 1 || got["ev"] == nil {
		t.Errorf("groups = %+v", got)
	}
}
