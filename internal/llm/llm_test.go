package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"newsroll/internal/core"
)

type mockGenerator struct {
	response string
	err      error
	requests []Request
}

func (m *mockGenerator) Generate(_ context.Context, req Request) (string, error) {
	m.requests = append(m.requests, req)
	return m.response, m.err
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain object", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", "Here you go: [1,2] thanks", `[1,2]`},
		{"array before object", `x [{"a":1}] y`, `[{"a":1}]`},
		{"no json", "sorry, cannot help", ""},
		{"empty", "", ""},
		{"closing before opening", "} oops {", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSON(tt.in); got != tt.want {
				t.Errorf("ExtractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestModelFor(t *testing.T) {
	c := NewClient(nil, Options{ShortModel: "short", LongModel: "long", Threshold: 20})
	if got := c.ModelFor("tiny", ""); got != "short" {
		t.Errorf("ModelFor short text = %s", got)
	}
	if got := c.ModelFor("a fairly long title", "with a snippet"); got != "long" {
		t.Errorf("ModelFor long text = %s", got)
	}
}

func TestNilGeneratorReportsNoCredentials(t *testing.T) {
	c := NewClient(nil, Options{})
	_, err := c.SummarizeItem(context.Background(), core.RawItem{Title: "x"}, []string{"Models"})
	if !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("err = %v, want ErrNoCredentials", err)
	}
	if c.Usage().Items != 1 {
		t.Errorf("item calls = %d, want 1", c.Usage().Items)
	}
}

func TestSummarizeItem(t *testing.T) {
	gen := &mockGenerator{response: "```json\n" + `{"summary":["a","b","c","d"],"why":"w","topics":["models"],"status":"ongoing","importanceScore":"8"}` + "\n```"}
	c := NewClient(gen, Options{ShortModel: "s", ItemTemperature: 0.2})

	got, err := c.SummarizeItem(context.Background(), core.RawItem{Title: "t", Snippet: "s"}, []string{"Models", "Infra"})
	if err != nil {
		t.Fatalf("SummarizeItem: %v", err)
	}
	if len(got.Summary) != 3 {
		t.Errorf("summary lines = %d, want 3", len(got.Summary))
	}
	if got.Status != core.StatusOngoing {
		t.Errorf("status = %s", got.Status)
	}
	if got.ImportanceScore != 8 {
		t.Errorf("importance = %d", got.ImportanceScore)
	}
	if len(gen.requests) != 1 || gen.requests[0].Model != "s" || gen.requests[0].System == "" {
		t.Errorf("unexpected request %+v", gen.requests)
	}
	if !strings.Contains(gen.requests[0].Prompt, "Models, Infra") {
		t.Error("prompt does not list the taxonomy")
	}
}

func TestSummarizeItemRejectsBadShape(t *testing.T) {
	for _, resp := range []string{`{"summary":"not a list"}`, `no json at all`, `{"why":"x"}`} {
		c := NewClient(&mockGenerator{response: resp}, Options{})
		if _, err := c.SummarizeItem(context.Background(), core.RawItem{Title: "t"}, []string{"Models"}); !errors.Is(err, ErrInvalidJSON) {
			t.Errorf("response %q: err = %v, want ErrInvalidJSON", resp, err)
		}
	}
}

func TestSummarizeIssuesDefaults(t *testing.T) {
	gen := &mockGenerator{response: `[{"title":"A"},{"id":"x","status":"SHIFTING","title":"B","articleCount":4},{"title":"C"}]`}
	c := NewClient(gen, Options{IssueModel: "issue"})

	issues, err := c.SummarizeIssues(context.Background(), nil, "ai", 2)
	if err != nil {
		t.Fatalf("SummarizeIssues: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("issues = %d, want 2", len(issues))
	}
	if issues[0].ID != "issue_001" || issues[0].Status != core.StatusNew || issues[0].ArticleCount != 1 {
		t.Errorf("defaults not applied: %+v", issues[0])
	}
	if issues[0].RelatedArticles == nil {
		t.Error("relatedArticles should default to an empty list")
	}
	if issues[1].ID != "x" || issues[1].Status != core.StatusShifting || issues[1].ArticleCount != 4 {
		t.Errorf("explicit fields lost: %+v", issues[1])
	}
}

func TestIssuesPromptSamplesAtMost20(t *testing.T) {
	items := make([]core.EnrichedItem, 25)
	for i := range items {
		items[i].Title = "item"
		items[i].Summary = []string{"one", "two", "three"}
	}
	got := samples(items)
	if len(got) != issueSampleSize {
		t.Fatalf("samples = %d, want %d", len(got), issueSampleSize)
	}
	if got[0].Summary != "one two" {
		t.Errorf("sample summary = %q", got[0].Summary)
	}
}

func TestSummarizeHighlights(t *testing.T) {
	c := NewClient(&mockGenerator{response: `{"bullets":["a","b"]}`}, Options{})
	bullets, err := c.SummarizeHighlights(context.Background(), nil, "ai", 2)
	if err != nil {
		t.Fatalf("SummarizeHighlights: %v", err)
	}
	if len(bullets) != 2 {
		t.Errorf("bullets = %v", bullets)
	}
}

func TestObservedGenerator(t *testing.T) {
	if NewObservedGenerator(nil, nil, nil) != nil {
		t.Fatal("nil generator should stay nil")
	}
	var calls int
	var lastErr error
	gen := NewObservedGenerator(&mockGenerator{err: errors.New("boom")}, func(_ string, _ time.Duration, err error) {
		calls++
		lastErr = err
	}, nil)
	if _, err := gen.Generate(context.Background(), Request{Model: "m"}); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 || lastErr == nil {
		t.Errorf("observer calls = %d, err = %v", calls, lastErr)
	}
}

func TestNewGenerator(t *testing.T) {
	ctx := context.Background()
	if gen, err := NewGenerator(ctx, Settings{Provider: "none"}); gen != nil || err != nil {
		t.Errorf("none provider = %v, %v", gen, err)
	}
	if _, err := NewGenerator(ctx, Settings{Provider: "openai"}); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("missing key err = %v", err)
	}
	if _, err := NewGenerator(ctx, Settings{Provider: "bogus"}); err == nil {
		t.Error("unknown provider should fail")
	}
	gen, err := NewGenerator(ctx, Settings{Provider: "anthropic", AnthropicKey: "k", Timeout: time.Second})
	if err != nil || gen == nil {
		t.Errorf("anthropic provider = %v, %v", gen, err)
	}
}
