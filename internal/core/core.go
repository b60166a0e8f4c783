package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind tags the adapter an item came from.
type Kind string

const (
	KindRSS         Kind = "rss"
	KindHuggingFace Kind = "huggingface"
	KindHN          Kind = "hn"
	KindGitHub      Kind = "github"
	KindAppStore    Kind = "app_store"
	KindDART        Kind = "dart"
	KindNews        Kind = "news"
)

// DefaultTab is the partition used when an item does not name one.
const DefaultTab = "ai"

// Status is the lifecycle label attached to enriched items, issues and clusters.
type Status string

const (
	StatusNew      Status = "NEW"
	StatusOngoing  Status = "ONGOING"
	StatusShifting Status = "SHIFTING"
)

// ParseStatus maps free text onto a Status, defaulting to NEW.
func ParseStatus(s string) Status {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusOngoing:
		return StatusOngoing
	case StatusShifting:
		return StatusShifting
	default:
		return StatusNew
	}
}

// RawItem is the common shape produced by every source adapter.
type RawItem struct {
	Title       string    `json:"title"`        // Display title
	URL         string    `json:"url"`          // Canonical link, may be empty
	Source      string    `json:"source"`       // Display name of the feed or API
	PublishedAt time.Time `json:"published_at"` // Zero when the source gave no date
	Snippet     string    `json:"snippet"`      // Short description, may be empty
	Tab         string    `json:"tab"`          // Taxonomy partition key
	Kind        Kind      `json:"kind"`         // Adapter tag
}

// TabOrDefault returns the item's tab, falling back to DefaultTab.
func (r RawItem) TabOrDefault() string {
	if r.Tab == "" {
		return DefaultTab
	}
	return r.Tab
}

// Enrichment is the derived part of an EnrichedItem, as returned by a summarizer.
type Enrichment struct {
	Summary         []string `json:"summary"`
	Why             string   `json:"why"`
	Topics          []string `json:"topics"`
	Status          Status   `json:"status"`
	ImportanceScore int      `json:"importanceScore"`
}

// EnrichedItem is a RawItem plus summarizer output.
// A zero ImportanceScore means the score is unknown.
type EnrichedItem struct {
	RawItem
	Enrichment
	Hash string `json:"hash,omitempty"` // Carried over from a Card on rollup
}

// PrimaryTopic returns the first topic or "".
func (e EnrichedItem) PrimaryTopic() string {
	if len(e.Topics) == 0 {
		return ""
	}
	return e.Topics[0]
}

// Card is the persisted, display-ready projection of an EnrichedItem.
type Card struct {
	ID              string   `json:"id"`
	Tab             string   `json:"tab"`
	PublishedAt     string   `json:"publishedAt"`
	Source          string   `json:"source"`
	Title           string   `json:"title"`
	Summary         []string `json:"summary"`
	WhyItMatters    string   `json:"whyItMatters"`
	Topics          []string `json:"topics"`
	Status          Status   `json:"status"`
	ImportanceScore int      `json:"importanceScore,omitempty"`
	Hash            string   `json:"hash"`
	URL             string   `json:"url"`
}

// RelatedArticle points an Issue back at a source article.
type RelatedArticle struct {
	Title  string `json:"title"`
	Source string `json:"source"`
	URL    string `json:"url"`
}

// Issue is a cross-item narrative unit for weekly and monthly views.
type Issue struct {
	ID              string           `json:"id"`
	Status          Status           `json:"status"`
	Title           string           `json:"title"`
	Summary         string           `json:"summary"`
	ArticleCount    int              `json:"articleCount"`
	RelatedArticles []RelatedArticle `json:"relatedArticles,omitempty"`
}

// TopicRank is one row of a top-topics ranking.
type TopicRank struct {
	Topic string
	Count int
	Score int
}

// Count is a named integer inside an ordered JSON object.
type Count struct {
	Name  string
	Value int
}

// Counts marshals as a JSON object whose keys keep slice order.
type Counts []Count

// Get returns the value stored under name, or 0.
func (c Counts) Get(name string) int {
	for _, entry := range c {
		if entry.Name == name {
			return entry.Value
		}
	}
	return 0
}

// Sum adds up every value.
func (c Counts) Sum() int {
	total := 0
	for _, entry := range c {
		total += entry.Value
	}
	return total
}

func (c Counts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(entry.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		fmt.Fprintf(&buf, "%d", entry.Value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *Counts) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*c = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("counts: expected object, got %v", tok)
	}
	var out Counts
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("counts: expected string key, got %v", keyTok)
		}
		var value int
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("counts: %s: %w", key, err)
		}
		out = append(out, Count{Name: key, Value: value})
	}
	*c = out
	return nil
}

// Highlights is the headline block of a daily report.
type Highlights struct {
	Bullets   []string   `json:"bullets"`
	TopTopics []string   `json:"topTopics"`
	Stats     DailyStats `json:"stats"`
}

// DailyStats reports collection and dedup counts for the daily window.
type DailyStats struct {
	Collected int `json:"collected"`
	Deduped   int `json:"deduped"`
}

// DailyReport is the per-tab daily document.
type DailyReport struct {
	Date       string     `json:"date"`
	Highlights Highlights `json:"highlights"`
	Cards      []Card     `json:"cards"`
}

// DateRange is an inclusive pair of YYYY-MM-DD dates.
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// TopicStat is a ranked topic with its occurrence count.
type TopicStat struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TrendPoint is one cell of the dense date×topic matrix.
type TrendPoint struct {
	Date      string `json:"date"`
	DayOfWeek string `json:"dayOfWeek"`
	Topic     string `json:"topic"`
	Count     int    `json:"count"`
}

// WeeklyKPIs summarises a weekly window.
type WeeklyKPIs struct {
	Collected    int `json:"collected"`
	Deduped      int `json:"deduped"`
	UniqueTopics int `json:"uniqueTopics"`
}

// WeeklyReport is the per-tab weekly document.
type WeeklyReport struct {
	Range      DateRange    `json:"range"`
	KPIs       WeeklyKPIs   `json:"kpis"`
	TopTopics  []TopicStat  `json:"topTopics"`
	TopicTrend []TrendPoint `json:"topicTrend"`
	TopIssues  []Issue      `json:"topIssues"`
}

// WeekBucket holds per-topic counts for one 7-day slice.
type WeekBucket struct {
	Week        string `json:"week"`
	TopicCounts Counts `json:"topicCounts"`
}

// MonthlyKPIs summarises a monthly window, including market share.
type MonthlyKPIs struct {
	Collected    int    `json:"collected"`
	Deduped      int    `json:"deduped"`
	UniqueTopics int    `json:"uniqueTopics"`
	MarketShare  Counts `json:"marketShare"`
}

// MonthlyReport is the per-tab monthly document.
type MonthlyReport struct {
	Range      DateRange    `json:"range"`
	KPIs       MonthlyKPIs  `json:"kpis"`
	WeeklyData []WeekBucket `json:"weeklyData"`
	TopIssues  []Issue      `json:"topIssues"`
}

// Evidence is a source/metric/value triple backing a Cluster.
type Evidence struct {
	Source string `json:"source"`
	Metric string `json:"metric"`
	Value  string `json:"value"`
}

// Link is a labelled outbound URL.
type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Cluster is the developer-radar analogue of a Card.
type Cluster struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Section  string     `json:"section"` // releases, trending or discussions
	Status   Status     `json:"status"`
	Score    float64    `json:"score"`
	OneLiner string     `json:"oneLiner"`
	WhyNow   string     `json:"whyNow"`
	Evidence []Evidence `json:"evidence"`
	Links    []Link     `json:"links"`
	Tags     []string   `json:"tags"`
}

// DeveloperKPIs summarises a developer radar snapshot.
type DeveloperKPIs struct {
	Clusters int `json:"clusters"`
	Sources  int `json:"sources"`
	New      int `json:"new"`
}

// DeveloperReport is the developer radar daily document.
type DeveloperReport struct {
	Date     string        `json:"date"`
	KPIs     DeveloperKPIs `json:"kpis"`
	Clusters []Cluster     `json:"clusters"`
}
