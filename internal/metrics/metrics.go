package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RunCollector records pipeline counters for one process. The batch
// commands have no scrape endpoint, so the registry is written to a
// node-exporter textfile at the end of each run.
type RunCollector struct {
	registry       *prometheus.Registry
	pipelineItems  *prometheus.CounterVec
	sourceItems    *prometheus.CounterVec
	sourceFailures *prometheus.CounterVec
	llmCalls       *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	modelLatency   *prometheus.HistogramVec
}

// NewRunCollector constructs a collector with its own registry.
func NewRunCollector() (*RunCollector, error) {
	registry := prometheus.NewRegistry()

	pipelineItems := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "newsroll",
		Subsystem: "pipeline",
		Name:      "items_total",
		Help:      "Items leaving each pipeline stage.",
	}, []string{"domain", "stage"})

	sourceItems := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "newsroll",
		Subsystem: "source",
		Name:      "items_total",
		Help:      "Raw items produced by each source.",
	}, []string{"source"})

	sourceFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "newsroll",
		Subsystem: "source",
		Name:      "failures_total",
		Help:      "Source fetches that failed and contributed no items.",
	}, []string{"source"})

	llmCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "newsroll",
		Subsystem: "llm",
		Name:      "calls_total",
		Help:      "Summarizer calls by kind and outcome.",
	}, []string{"kind", "outcome"})

	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "newsroll",
		Subsystem: "stage",
		Name:      "duration_seconds",
		Help:      "Wall time spent in each pipeline stage.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	modelLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "newsroll",
		Subsystem: "llm",
		Name:      "latency_seconds",
		Help:      "Provider round-trip time per model.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"model"})

	for _, c := range []prometheus.Collector{pipelineItems, sourceItems, sourceFailures, llmCalls, stageDuration, modelLatency} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &RunCollector{
		registry:       registry,
		pipelineItems:  pipelineItems,
		sourceItems:    sourceItems,
		sourceFailures: sourceFailures,
		llmCalls:       llmCalls,
		stageDuration:  stageDuration,
		modelLatency:   modelLatency,
	}, nil
}

// Registry exposes the underlying registry.
func (c *RunCollector) Registry() *prometheus.Registry { return c.registry }

// StageItems records n items leaving stage of a domain pipeline.
func (c *RunCollector) StageItems(domain, stage string, n int) {
	c.pipelineItems.WithLabelValues(domain, stage).Add(float64(n))
}

// SourceItems records n items fetched from source.
func (c *RunCollector) SourceItems(source string, n int) {
	c.sourceItems.WithLabelValues(source).Add(float64(n))
}

// SourceFailure records a failed fetch from source.
func (c *RunCollector) SourceFailure(source string) {
	c.sourceFailures.WithLabelValues(source).Inc()
}

// LLMCall records one summarizer call of kind.
func (c *RunCollector) LLMCall(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.llmCalls.WithLabelValues(kind, outcome).Inc()
}

// ModelLatency records one provider call. Its signature matches llm.Observer.
func (c *RunCollector) ModelLatency(model string, latency time.Duration, _ error) {
	c.modelLatency.WithLabelValues(model).Observe(latency.Seconds())
}

// Stage starts timing stage and returns the function that stops the timer.
func (c *RunCollector) Stage(stage string) func() {
	start := time.Now()
	return func() {
		c.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

// WriteTextfile writes every registered series to path in the text exposition format.
func (c *RunCollector) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
