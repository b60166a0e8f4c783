// Package aggregate builds daily, weekly and monthly report documents from
// enriched items. Every function here is pure: the same inputs always give
// the same documents.
package aggregate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"slices"
	"time"

	"newsroll/internal/core"
)

const (
	// DailyTopTopics is the number of topics listed in daily highlights and weekly reports.
	DailyTopTopics = 4
	// MonthlyTopTopics is the number of topics shown in the market share breakdown.
	MonthlyTopTopics = 5
	// OtherShare is the remainder bucket of the market share breakdown.
	OtherShare = "Other"

	highlightTemplate = "%s 관련 업데이트가 %d건 감지됨"
	highlightPad      = "AI 개발 업데이트가 꾸준히 이어지고 있음"
)

// TopTopics ranks topics by importance-weighted score, then occurrence count.
// Items without a score weigh 1. Ties keep first-seen order.
func TopTopics(items []core.EnrichedItem, limit int) []core.TopicRank {
	var ranks []core.TopicRank
	index := make(map[string]int)
	for _, item := range items {
		weight := item.ImportanceScore
		if weight == 0 {
			weight = 1
		}
		for _, topic := range item.Topics {
			i, ok := index[topic]
			if !ok {
				i = len(ranks)
				index[topic] = i
				ranks = append(ranks, core.TopicRank{Topic: topic})
			}
			ranks[i].Count++
			ranks[i].Score += weight
		}
	}
	slices.SortStableFunc(ranks, func(a, b core.TopicRank) int {
		if a.Score != b.Score {
			return b.Score - a.Score
		}
		return b.Count - a.Count
	})
	if len(ranks) > limit {
		ranks = ranks[:limit]
	}
	return ranks
}

func topicNames(ranks []core.TopicRank) []string {
	names := make([]string, 0, len(ranks))
	for _, r := range ranks {
		names = append(names, r.Topic)
	}
	return names
}

func uniqueTopics(items []core.EnrichedItem) int {
	seen := make(map[string]bool)
	for _, item := range items {
		for _, topic := range item.Topics {
			seen[topic] = true
		}
	}
	return len(seen)
}

// DailySummary builds the deterministic highlights block: three bullets
// from the top three topics, padded with a generic line.
func DailySummary(items []core.EnrichedItem, rawCount int) core.Highlights {
	top := TopTopics(items, DailyTopTopics)
	bullets := make([]string, 0, 3)
	for _, r := range top[:min(3, len(top))] {
		bullets = append(bullets, fmt.Sprintf(highlightTemplate, r.Topic, r.Count))
	}
	for len(bullets) < 3 {
		bullets = append(bullets, highlightPad)
	}
	return core.Highlights{
		Bullets:   bullets,
		TopTopics: topicNames(top),
		Stats:     core.DailyStats{Collected: rawCount, Deduped: len(items)},
	}
}

// CardHash fingerprints an item by its normalized url, or title when the url is empty.
func CardHash(item core.RawItem) string {
	key := item.URL
	if key == "" {
		key = item.Title
	}
	sum := sha256.Sum256([]byte(core.NormalizeText(key)))
	return hex.EncodeToString(sum[:])
}

// BuildCards projects items into cards numbered <tab>_0001, <tab>_0002, ...
func BuildCards(items []core.EnrichedItem, tab string) []core.Card {
	cards := make([]core.Card, 0, len(items))
	for i, item := range items {
		itemTab := item.Tab
		if itemTab == "" {
			itemTab = tab
		}
		summary := item.Summary
		if len(summary) > 3 {
			summary = summary[:3]
		}
		if summary == nil {
			summary = []string{}
		}
		topics := item.Topics
		if topics == nil {
			topics = []string{}
		}
		var published string
		if !item.PublishedAt.IsZero() {
			published = item.PublishedAt.Format(time.RFC3339)
		}
		cards = append(cards, core.Card{
			ID:              fmt.Sprintf("%s_%04d", tab, i+1),
			Tab:             itemTab,
			PublishedAt:     published,
			Source:          item.Source,
			Title:           item.Title,
			Summary:         summary,
			WhyItMatters:    item.Why,
			Topics:          topics,
			Status:          item.Status,
			ImportanceScore: item.ImportanceScore,
			Hash:            CardHash(item.RawItem),
			URL:             item.URL,
		})
	}
	return cards
}

// TopicTrend counts items per calendar date and top topic over [start, end].
// The result is dense: every date is paired with every topic, zero counts included.
func TopicTrend(items []core.EnrichedItem, start, end time.Time, top []core.TopicRank) []core.TrendPoint {
	names := topicNames(top)
	dates := core.DatesBetween(start, end)
	loc := start.Location()

	perDay := make(map[string]map[string]int, len(dates))
	for _, d := range dates {
		perDay[core.FormatDate(d)] = make(map[string]int)
	}
	for _, item := range items {
		if item.PublishedAt.IsZero() {
			continue
		}
		counts, ok := perDay[core.FormatDate(item.PublishedAt.In(loc))]
		if !ok {
			continue
		}
		for _, topic := range item.Topics {
			if slices.Contains(names, topic) {
				counts[topic]++
			}
		}
	}

	trend := make([]core.TrendPoint, 0, len(dates)*len(names))
	for _, d := range dates {
		key := core.FormatDate(d)
		for _, topic := range names {
			trend = append(trend, core.TrendPoint{
				Date:      key,
				DayOfWeek: core.DayLabel(d),
				Topic:     topic,
				Count:     perDay[key][topic],
			})
		}
	}
	return trend
}

// TopicIssues is the issue list used when no synthesized issues are available:
// one per leading topic, the first marked ONGOING.
func TopicIssues(top []core.TopicRank) []core.Issue {
	top = top[:min(4, len(top))]
	issues := make([]core.Issue, 0, len(top))
	for i, r := range top {
		status := core.StatusNew
		if i == 0 {
			status = core.StatusOngoing
		}
		issues = append(issues, core.Issue{
			ID:           fmt.Sprintf("issue_%03d", i+1),
			Status:       status,
			Title:        r.Topic + " 업데이트 집중",
			Summary:      fmt.Sprintf("최근 %s 관련 업데이트가 지속적으로 언급됨", r.Topic),
			ArticleCount: r.Count,
		})
	}
	return issues
}

// BuildWeekly assembles the weekly report for items already filtered to [start, end].
func BuildWeekly(items []core.EnrichedItem, rawCount int, start, end time.Time, issues []core.Issue) core.WeeklyReport {
	top := TopTopics(items, DailyTopTopics)
	stats := make([]core.TopicStat, 0, len(top))
	for _, r := range top {
		stats = append(stats, core.TopicStat{Name: r.Topic, Count: r.Count})
	}
	if len(issues) == 0 {
		issues = TopicIssues(top)
	}
	return core.WeeklyReport{
		Range: core.DateRange{From: core.FormatDate(start), To: core.FormatDate(end)},
		KPIs: core.WeeklyKPIs{
			Collected:    rawCount,
			Deduped:      len(items),
			UniqueTopics: uniqueTopics(items),
		},
		TopTopics:  stats,
		TopicTrend: TopicTrend(items, start, end, top),
		TopIssues:  issues,
	}
}

// WeeklyBreakdown splits [start, end] into consecutive 7-day buckets and
// counts top topics in each. The last bucket may be shorter.
func WeeklyBreakdown(items []core.EnrichedItem, start, end time.Time, top []core.TopicRank) []core.WeekBucket {
	names := topicNames(top)
	var weeks []core.WeekBucket
	for cur := start; !cur.After(end); cur = cur.AddDate(0, 0, 7) {
		next := cur.AddDate(0, 0, 7)
		label := fmt.Sprintf("Week %d (%s-%s)", len(weeks)+1, cur.Format("01/02"), minTime(cur.AddDate(0, 0, 6), end).Format("01/02"))

		tally := make(map[string]int)
		for _, item := range items {
			at := item.PublishedAt
			if at.IsZero() || at.Before(cur) || !at.Before(next) || at.After(end) {
				continue
			}
			for _, topic := range item.Topics {
				if slices.Contains(names, topic) {
					tally[topic]++
				}
			}
		}
		counts := make(core.Counts, 0, len(names))
		for _, topic := range names {
			counts = append(counts, core.Count{Name: topic, Value: tally[topic]})
		}
		weeks = append(weeks, core.WeekBucket{Week: label, TopicCounts: counts})
	}
	return weeks
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

// MarketShare converts per-topic counts into whole percentages plus an
// "Other" remainder so that the values sum to exactly 100. When rounding
// overshoots, the excess is taken back from the smallest shares first.
func MarketShare(counts core.Counts) core.Counts {
	total := counts.Sum()
	if total == 0 {
		total = 1
	}
	share := make(core.Counts, 0, len(counts)+1)
	sum := 0
	for _, c := range counts {
		pct := int(math.Round(float64(c.Value) / float64(total) * 100))
		share = append(share, core.Count{Name: c.Name, Value: pct})
		sum += pct
	}
	for i := len(share) - 1; sum > 100 && i >= 0; i-- {
		take := min(share[i].Value, sum-100)
		share[i].Value -= take
		sum -= take
	}
	return append(share, core.Count{Name: OtherShare, Value: max(0, 100-sum)})
}

// BuildMonthly assembles the monthly report for items already filtered to [start, end].
func BuildMonthly(items []core.EnrichedItem, rawCount int, start, end time.Time, issues []core.Issue) core.MonthlyReport {
	top := TopTopics(items, MonthlyTopTopics)
	names := topicNames(top)

	tally := make(map[string]int)
	for _, item := range items {
		for _, topic := range item.Topics {
			if slices.Contains(names, topic) {
				tally[topic]++
			}
		}
	}
	counts := make(core.Counts, 0, len(names))
	for _, topic := range names {
		counts = append(counts, core.Count{Name: topic, Value: tally[topic]})
	}

	if len(issues) == 0 {
		issues = TopicIssues(top)
	}
	return core.MonthlyReport{
		Range: core.DateRange{From: core.FormatDate(start), To: core.FormatDate(end)},
		KPIs: core.MonthlyKPIs{
			Collected:    rawCount,
			Deduped:      len(items),
			UniqueTopics: uniqueTopics(items),
			MarketShare:  MarketShare(counts),
		},
		WeeklyData: WeeklyBreakdown(items, start, end, top),
		TopIssues:  issues,
	}
}
