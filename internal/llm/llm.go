package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"newsroll/internal/core"
)

var (
	// ErrNoCredentials is returned when the configured provider has no API key.
	ErrNoCredentials = errors.New("llm: no API credentials configured")
	// ErrEmptyResponse is returned when a provider answers with no text.
	ErrEmptyResponse = errors.New("llm: empty response")
	// ErrInvalidJSON is returned when a response carries no usable JSON payload.
	ErrInvalidJSON = errors.New("llm: invalid JSON payload")
)

const systemPrompt = "You output only valid JSON."

// Request is a single prompt sent to a Generator.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float32 // 0 leaves the provider default
}

// Generator is a text-generation backend.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Options selects models and sampling temperatures for the Client.
type Options struct {
	ShortModel       string
	LongModel        string
	Threshold        int // title+snippet length at which LongModel is used
	IssueModel       string
	ItemTemperature  float32
	IssueTemperature float32
}

// Usage counts the calls made through a Client, by kind.
type Usage struct {
	Items      int64
	Issues     int64
	Highlights int64
	Batches    int64
}

// Client turns prompts about items into structured results.
// It is safe to use with a nil Generator; every call then fails with ErrNoCredentials.
type Client struct {
	gen  Generator
	opts Options

	items      atomic.Int64
	issues     atomic.Int64
	highlights atomic.Int64
	batches    atomic.Int64
}

// NewClient wraps gen with model selection and response parsing.
func NewClient(gen Generator, opts Options) *Client {
	return &Client{gen: gen, opts: opts}
}

// Enabled reports whether the client has a backend to call.
func (c *Client) Enabled() bool {
	return c != nil && c.gen != nil
}

// Usage returns a snapshot of the call counters.
func (c *Client) Usage() Usage {
	return Usage{
		Items:      c.items.Load(),
		Issues:     c.issues.Load(),
		Highlights: c.highlights.Load(),
		Batches:    c.batches.Load(),
	}
}

// ModelFor picks the short or long item model from the prompt text length.
func (c *Client) ModelFor(title, snippet string) string {
	text := strings.TrimSpace(title + " " + snippet)
	if c.opts.LongModel != "" && len(text) >= c.opts.Threshold {
		return c.opts.LongModel
	}
	return c.opts.ShortModel
}

func (c *Client) generate(ctx context.Context, req Request) (string, error) {
	if !c.Enabled() {
		return "", ErrNoCredentials
	}
	if req.System == "" {
		req.System = systemPrompt
	}
	text, err := c.gen.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	payload := ExtractJSON(text)
	if payload == "" {
		return "", ErrInvalidJSON
	}
	return payload, nil
}

// ExtractJSON pulls the JSON object or array out of a model response.
// A surrounding ``` fence and a leading "json" tag are removed, then the text
// from the first '{' or '[' to the last '}' or ']' is returned. The result is
// "" when no such span exists.
func ExtractJSON(text string) string {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return ""
	}
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.Trim(cleaned, "`")
		cleaned = strings.TrimSpace(strings.Replace(cleaned, "json", "", 1))
	}
	start := -1
	for _, pos := range []int{strings.Index(cleaned, "{"), strings.Index(cleaned, "[")} {
		if pos != -1 && (start == -1 || pos < start) {
			start = pos
		}
	}
	if start == -1 {
		return ""
	}
	end := max(strings.LastIndex(cleaned, "}"), strings.LastIndex(cleaned, "]"))
	if end < start {
		return ""
	}
	return cleaned[start : end+1]
}

// flexInt decodes integers that models sometimes send as strings or floats.
type flexInt struct {
	Value int
	Set   bool
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", raw)
	}
	f.Value, f.Set = int(v), true
	return nil
}

type itemResponse struct {
	Summary         json.RawMessage `json:"summary"`
	Why             string          `json:"why"`
	Topics          []string        `json:"topics"`
	Status          string          `json:"status"`
	ImportanceScore flexInt         `json:"importanceScore"`
}

// SummarizeItem asks the model for an item's summary, rationale, topics,
// status and importance. Topics are returned as the model wrote them.
func (c *Client) SummarizeItem(ctx context.Context, item core.RawItem, taxonomy []string) (core.Enrichment, error) {
	c.items.Add(1)
	payload, err := c.generate(ctx, Request{
		Model:       c.ModelFor(core.NormalizeText(item.Title), core.NormalizeText(item.Snippet)),
		Prompt:      itemPrompt(item, taxonomy),
		Temperature: c.opts.ItemTemperature,
	})
	if err != nil {
		return core.Enrichment{}, err
	}

	var resp itemResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return core.Enrichment{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	var summary []string
	if err := json.Unmarshal(resp.Summary, &summary); err != nil || summary == nil {
		return core.Enrichment{}, fmt.Errorf("%w: summary is not a list", ErrInvalidJSON)
	}
	if len(summary) > 3 {
		summary = summary[:3]
	}

	score := 5
	if resp.ImportanceScore.Set && resp.ImportanceScore.Value != 0 {
		score = min(max(resp.ImportanceScore.Value, 1), 10)
	}
	return core.Enrichment{
		Summary:         summary,
		Why:             resp.Why,
		Topics:          resp.Topics,
		Status:          core.ParseStatus(resp.Status),
		ImportanceScore: score,
	}, nil
}

type issueResponse struct {
	ID              string                `json:"id"`
	Status          string                `json:"status"`
	Title           string                `json:"title"`
	Summary         string                `json:"summary"`
	ArticleCount    flexInt               `json:"articleCount"`
	RelatedArticles []core.RelatedArticle `json:"relatedArticles"`
}

// SummarizeIssues condenses up to 20 items into at most maxIssues issues.
// Missing fields get defaults: sequential ids, NEW status, one article.
func (c *Client) SummarizeIssues(ctx context.Context, items []core.EnrichedItem, tab string, maxIssues int) ([]core.Issue, error) {
	c.issues.Add(1)
	payload, err := c.generate(ctx, Request{
		Model:       c.opts.IssueModel,
		Prompt:      issuesPrompt(items, tab),
		Temperature: c.opts.IssueTemperature,
	})
	if err != nil {
		return nil, err
	}

	var resp []issueResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return nil, fmt.Errorf("%w: issues: %v", ErrInvalidJSON, err)
	}
	if len(resp) > maxIssues {
		resp = resp[:maxIssues]
	}
	issues := make([]core.Issue, 0, len(resp))
	for i, r := range resp {
		issue := core.Issue{
			ID:              r.ID,
			Status:          core.ParseStatus(r.Status),
			Title:           r.Title,
			Summary:         r.Summary,
			ArticleCount:    1,
			RelatedArticles: r.RelatedArticles,
		}
		if issue.ID == "" {
			issue.ID = fmt.Sprintf("issue_%03d", i+1)
		}
		if r.ArticleCount.Set {
			issue.ArticleCount = r.ArticleCount.Value
		}
		if len(issue.RelatedArticles) > 3 {
			issue.RelatedArticles = issue.RelatedArticles[:3]
		}
		if issue.RelatedArticles == nil {
			issue.RelatedArticles = []core.RelatedArticle{}
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// SummarizeHighlights asks for exactly lines headline bullets over items.
// The caller decides what to do when the count differs.
func (c *Client) SummarizeHighlights(ctx context.Context, items []core.EnrichedItem, tab string, lines int) ([]string, error) {
	c.highlights.Add(1)
	payload, err := c.generate(ctx, Request{
		Model:       c.opts.IssueModel,
		Prompt:      highlightsPrompt(items, tab, lines),
		Temperature: c.opts.IssueTemperature,
	})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Bullets []string `json:"bullets"`
	}
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return nil, fmt.Errorf("%w: highlights: %v", ErrInvalidJSON, err)
	}
	return resp.Bullets, nil
}

// EnrichBatch sends a prepared batch prompt and returns the extracted JSON.
func (c *Client) EnrichBatch(ctx context.Context, model, prompt string) (string, error) {
	c.batches.Add(1)
	return c.generate(ctx, Request{Model: model, Prompt: prompt})
}
