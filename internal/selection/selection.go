// Package selection ranks enriched items and picks bounded, diverse subsets.
package selection

import (
	"slices"
	"time"

	"newsroll/internal/core"
)

// UnknownSource groups items that carry no source name.
const UnknownSource = "Unknown"

// SortByImportance returns a copy of items ordered by importance, then
// recency, both descending. The sort is stable; missing scores count as 0
// and missing dates as the earliest instant.
func SortByImportance(items []core.EnrichedItem) []core.EnrichedItem {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b core.EnrichedItem) int {
		if a.ImportanceScore != b.ImportanceScore {
			return b.ImportanceScore - a.ImportanceScore
		}
		return b.PublishedAt.Compare(a.PublishedAt)
	})
	return out
}

// PickDiverse walks items once taking those whose leading topic is unused,
// then tops up with the remaining items in order until n are chosen.
// Items without topics are always admitted on the first pass.
func PickDiverse(items []core.EnrichedItem, n int) []core.EnrichedItem {
	if n <= 0 {
		return []core.EnrichedItem{}
	}
	selected := make([]core.EnrichedItem, 0, min(n, len(items)))
	taken := make([]bool, len(items))
	used := make(map[string]bool)

	for i, item := range items {
		primary := item.PrimaryTopic()
		if primary != "" && used[primary] {
			continue
		}
		if primary != "" {
			used[primary] = true
		}
		selected = append(selected, item)
		taken[i] = true
		if len(selected) >= n {
			return selected
		}
	}
	for i, item := range items {
		if taken[i] {
			continue
		}
		selected = append(selected, item)
		if len(selected) >= n {
			break
		}
	}
	return selected
}

// SelectBySourceCap admits items in order while their source has been
// admitted fewer than perSource times, stopping at total.
func SelectBySourceCap(items []core.EnrichedItem, total, perSource int) []core.EnrichedItem {
	selected := make([]core.EnrichedItem, 0, min(max(total, 0), len(items)))
	counts := make(map[string]int)
	for _, item := range items {
		if len(selected) >= total {
			break
		}
		source := item.Source
		if source == "" {
			source = UnknownSource
		}
		if counts[source] >= perSource {
			continue
		}
		counts[source]++
		selected = append(selected, item)
	}
	return selected
}

// FilterByRange keeps items published within [start, end]. Undated items are dropped.
func FilterByRange(items []core.EnrichedItem, start, end time.Time) []core.EnrichedItem {
	out := make([]core.EnrichedItem, 0, len(items))
	for _, item := range items {
		if item.PublishedAt.IsZero() {
			continue
		}
		if item.PublishedAt.Before(start) || item.PublishedAt.After(end) {
			continue
		}
		out = append(out, item)
	}
	return out
}

// GroupByTab partitions items by tab, seeding an empty group for every tab in tabs.
func GroupByTab(items []core.EnrichedItem, tabs []string) map[string][]core.EnrichedItem {
	grouped := make(map[string][]core.EnrichedItem, len(tabs))
	for _, tab := range tabs {
		grouped[tab] = []core.EnrichedItem{}
	}
	for _, item := range items {
		tab := item.TabOrDefault()
		grouped[tab] = append(grouped[tab], item)
	}
	return grouped
}
