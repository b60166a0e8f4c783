package sources

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"newsroll/internal/core"
	"newsroll/internal/logger"
)

// Manager runs a set of fetchers and merges their output
type Manager struct {
	log *slog.Logger
}

// NewManager creates a new source manager
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = logger.Get()
	}
	return &Manager{log: log}
}

// AggregateOptions configures the aggregation process
type AggregateOptions struct {
	MaxConcurrency int           // Number of fetchers run at once
	Timeout        time.Duration // Timeout for entire aggregation
}

// DefaultAggregateOptions returns sensible defaults
func DefaultAggregateOptions() AggregateOptions {
	return AggregateOptions{
		MaxConcurrency: 5,
		Timeout:        5 * time.Minute,
	}
}

// FetchResult is the outcome of one fetcher.
type FetchResult struct {
	Name  string
	Kind  core.Kind
	Items []core.RawItem
	Err   error
}

// AggregateResult contains aggregation statistics
type AggregateResult struct {
	Results []FetchResult // One per fetcher, in fetcher order
	Failed  int
}

// Items concatenates every fetcher's items in fetcher order.
func (r *AggregateResult) Items() []core.RawItem {
	var out []core.RawItem
	for _, res := range r.Results {
		out = append(out, res.Items...)
	}
	return out
}

// Aggregate runs every fetcher. A failing fetcher contributes no items and is
// recorded in its FetchResult; it never fails the aggregation. Output order
// follows the fetchers slice regardless of completion order.
func (m *Manager) Aggregate(ctx context.Context, fetchers []Fetcher, opts AggregateOptions) *AggregateResult {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}

	m.log.Info("Starting aggregation", "fetcher_count", len(fetchers), "max_concurrency", opts.MaxConcurrency)

	result := &AggregateResult{Results: make([]FetchResult, len(fetchers))}
	sem := make(chan struct{}, opts.MaxConcurrency)
	var wg sync.WaitGroup

	for i, f := range fetchers {
		result.Results[i] = FetchResult{Name: f.Name(), Kind: f.Kind()}

		select {
		case <-ctx.Done():
			result.Results[i].Err = ctx.Err()
			continue
		default:
		}

		wg.Add(1)
		sem <- struct{}{}

		go func(i int, f Fetcher) {
			defer wg.Done()
			defer func() { <-sem }()

			items, err := f.Fetch(ctx)
			if err != nil {
				m.log.Warn("Fetcher failed", "source", f.Name(), "error", err)
				result.Results[i].Err = err
				return
			}
			result.Results[i].Items = items
			m.log.Debug("Fetcher completed", "source", f.Name(), "items", len(items))
		}(i, f)
	}

	wg.Wait()

	total := 0
	for _, res := range result.Results {
		if res.Err != nil {
			result.Failed++
		}
		total += len(res.Items)
	}

	m.log.Info("Aggregation completed",
		"fetchers", len(fetchers),
		"failed", result.Failed,
		"items", total,
	)

	return result
}
