// Package cost estimates LLM token usage and spend from prompt and response text.
package cost

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"newsroll/internal/llm"
)

// Pricing is the USD list price of a model per million tokens.
type Pricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// PricingTable holds list prices for the models the pipelines default to.
// Models missing from the table are counted in tokens only.
var PricingTable = map[string]Pricing{
	"gpt-4o-mini":             {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4o":                  {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-5-mini":              {InputPer1M: 0.25, OutputPer1M: 2.00},
	"gemini-2.0-flash":        {InputPer1M: 0.10, OutputPer1M: 0.40},
	"gemini-2.5-flash":        {InputPer1M: 0.30, OutputPer1M: 2.50},
	"claude-3-5-haiku-latest": {InputPer1M: 0.80, OutputPer1M: 4.00},
	"claude-sonnet-4-0":       {InputPer1M: 3.00, OutputPer1M: 15.00},
}

// EstimateTokenCount approximates the token count of text at 3.5 characters
// per token, which errs high for English and close for Korean.
func EstimateTokenCount(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / 3.5))
}

// Price returns the USD cost of the given token counts for model, and
// whether the model has a known price.
func Price(model string, inputTokens, outputTokens int) (float64, bool) {
	p, ok := PricingTable[model]
	if !ok {
		return 0, false
	}
	return float64(inputTokens)*p.InputPer1M/1e6 + float64(outputTokens)*p.OutputPer1M/1e6, true
}

// ModelUsage is the accumulated usage of one model.
type ModelUsage struct {
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
	USD          float64
	Priced       bool
}

// Summary totals a Tracker.
type Summary struct {
	Calls        int
	InputTokens  int
	OutputTokens int
	USD          float64
	ByModel      []ModelUsage // sorted by model name
}

// Tokens returns input plus output tokens.
func (s Summary) Tokens() int { return s.InputTokens + s.OutputTokens }

// Since returns the totals accumulated after prev was taken. ByModel is not
// carried over.
func (s Summary) Since(prev Summary) Summary {
	return Summary{
		Calls:        s.Calls - prev.Calls,
		InputTokens:  s.InputTokens - prev.InputTokens,
		OutputTokens: s.OutputTokens - prev.OutputTokens,
		USD:          s.USD - prev.USD,
	}
}

// Tracker accumulates estimated usage across goroutines. A nil Tracker
// records nothing and reports zeros.
type Tracker struct {
	mu     sync.Mutex
	models map[string]*ModelUsage
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{models: make(map[string]*ModelUsage)}
}

// Record adds one call of model with the given prompt and response.
func (t *Tracker) Record(model, prompt, response string) {
	if t == nil {
		return
	}
	in, out := EstimateTokenCount(prompt), EstimateTokenCount(response)
	usd, priced := Price(model, in, out)

	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.models[model]
	if !ok {
		u = &ModelUsage{Model: model, Priced: priced}
		t.models[model] = u
	}
	u.Calls++
	u.InputTokens += in
	u.OutputTokens += out
	u.USD += usd
}

// Summary returns a snapshot of the accumulated usage.
func (t *Tracker) Summary() Summary {
	var s Summary
	if t == nil {
		return s
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, u := range t.models {
		s.Calls += u.Calls
		s.InputTokens += u.InputTokens
		s.OutputTokens += u.OutputTokens
		s.USD += u.USD
		s.ByModel = append(s.ByModel, *u)
	}
	sort.Slice(s.ByModel, func(i, j int) bool { return s.ByModel[i].Model < s.ByModel[j].Model })
	return s
}

// meteredGenerator records every successful generation in a Tracker.
type meteredGenerator struct {
	gen     llm.Generator
	tracker *Tracker
}

// NewMeteredGenerator wraps gen so its calls are recorded in t. A nil gen
// yields nil so the client stays disabled.
func NewMeteredGenerator(gen llm.Generator, t *Tracker) llm.Generator {
	if gen == nil {
		return nil
	}
	if t == nil {
		return gen
	}
	return &meteredGenerator{gen: gen, tracker: t}
}

func (m *meteredGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	text, err := m.gen.Generate(ctx, req)
	if err == nil {
		m.tracker.Record(req.Model, req.System+"\n"+req.Prompt, text)
	}
	return text, err
}
