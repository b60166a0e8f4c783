package llm

import (
	"context"
	"log/slog"
	"time"
)

// Observer is notified after every generation with its latency and outcome.
type Observer func(model string, latency time.Duration, err error)

// ObservedGenerator wraps a Generator with logging and an optional Observer.
type ObservedGenerator struct {
	gen     Generator
	observe Observer
	log     *slog.Logger
}

// NewObservedGenerator wraps gen. A nil gen yields nil so the Client keeps
// reporting ErrNoCredentials.
func NewObservedGenerator(gen Generator, observe Observer, log *slog.Logger) Generator {
	if gen == nil {
		return nil
	}
	if log == nil {
		log = slog.Default()
	}
	return &ObservedGenerator{gen: gen, observe: observe, log: log}
}

func (o *ObservedGenerator) Generate(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	text, err := o.gen.Generate(ctx, req)
	latency := time.Since(start)

	if err != nil {
		o.log.Warn("LLM call failed", "model", req.Model, "latency_ms", latency.Milliseconds(), "error", err)
	} else {
		o.log.Debug("LLM call completed", "model", req.Model, "latency_ms", latency.Milliseconds(),
			"prompt_chars", len(req.Prompt), "response_chars", len(text))
	}
	if o.observe != nil {
		o.observe(req.Model, latency, err)
	}
	return text, err
}
