package market

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"newsroll/internal/catalog"
)

// BatchGenerator answers a batch classification prompt with JSON.
// *llm.Client implements it.
type BatchGenerator interface {
	EnrichBatch(ctx context.Context, model, prompt string) (string, error)
}

// Result is the classifier's verdict on one item. It is also the cache line format.
type Result struct {
	ID         string   `json:"id"`
	Keep       bool     `json:"keep"`
	OneLiner   string   `json:"oneLiner"`
	TypeRaw    string   `json:"type_raw"`
	AreasRaw   []string `json:"areas_raw"`
	Confidence *float64 `json:"confidence"`
}

type promptItem struct {
	ID      string `json:"id"`
	Company string `json:"company"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
	Date    string `json:"date"`
	URL     string `json:"url"`
}

func toPromptItems(items []Item) []promptItem {
	out := make([]promptItem, len(items))
	for i, it := range items {
		out[i] = promptItem{ID: it.ID, Company: it.Company, Title: it.Title, Snippet: it.Snippet, Source: it.Source, Date: it.Date, URL: it.URL}
	}
	return out
}

// Prompt builds the classification prompt of dataset for items.
func Prompt(dataset string, vocab catalog.Market, items []Item) string {
	payload, _ := json.Marshal(toPromptItems(items))
	types := strings.Join(vocab.Types, ", ")
	areas := strings.Join(vocab.Areas, ", ")

	var b strings.Builder
	b.WriteString("너는 증권사 공식 공시/보도자료를 분류하는 분석가다. ")
	b.WriteString("한국어로만 응답하고 JSON 배열만 반환해라. ")
	fmt.Fprintf(&b, "각 항목은 id, keep(true/false), oneLiner(한두 문장), type_raw(%s), areas_raw(배열, %s), confidence(0~1) 키를 포함해야 한다. ", types, areas)
	if dataset == DatasetUpdates {
		b.WriteString("MTS/HTS/앱 기능 출시, 서비스 개편, 시스템 점검/장애, 보안/인증, 거래/계좌 서비스 변경과 직접 관련 없는 항목은 keep=false로 두어라. ")
		b.WriteString("AI 관련 항목은 keep=false로 두어라. ")
	} else {
		b.WriteString("AI/데이터/자동화/리스크/AML/챗봇/요약/추천 등과 직접 관련 없는 항목은 keep=false로 두어라. ")
	}
	b.WriteString("타입/영역은 반드시 목록에서만 선택한다. ")
	b.WriteString("Input: ")
	b.Write(payload)
	return b.String()
}

// Batcher classifies items in batches, halving a failing batch until single
// items remain.
type Batcher struct {
	Gen       BatchGenerator
	Model     string
	Dataset   string
	Vocab     catalog.Market
	BatchSize int
}

// Enrich classifies items and returns the results by id. A single item that
// still fails aborts the whole call with that error.
func (b *Batcher) Enrich(ctx context.Context, items []Item) (map[string]Result, error) {
	size := b.BatchSize
	if size <= 0 {
		size = 12
	}
	results := make(map[string]Result, len(items))
	if err := b.enrich(ctx, items, size, results); err != nil {
		return results, err
	}
	return results, nil
}

func (b *Batcher) enrich(ctx context.Context, items []Item, size int, results map[string]Result) error {
	for start := 0; start < len(items); start += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := items[start:min(start+size, len(items))]
		parsed, err := b.batch(ctx, batch)
		if err != nil {
			if size <= 1 {
				return err
			}
			if err := b.enrich(ctx, batch, max(1, size/2), results); err != nil {
				return err
			}
			continue
		}
		for _, r := range parsed {
			if r.ID != "" {
				results[r.ID] = r
			}
		}
	}
	return nil
}

func (b *Batcher) batch(ctx context.Context, items []Item) ([]Result, error) {
	text, err := b.Gen.EnrichBatch(ctx, b.Model, Prompt(b.Dataset, b.Vocab, items))
	if err != nil {
		return nil, err
	}
	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(text), &entries); err != nil {
		return nil, fmt.Errorf("expected JSON array: %w", err)
	}
	out := make([]Result, 0, len(entries))
	for _, raw := range entries {
		var r Result
		if err := json.Unmarshal(raw, &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// LoadCache reads cache.jsonl; later lines win. A missing file is an empty cache.
func LoadCache(path string) (map[string]Result, error) {
	cache := make(map[string]Result)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cache, nil
	}
	if err != nil {
		return cache, err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var r Result
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			return cache, fmt.Errorf("corrupt cache line in %s: %w", path, err)
		}
		if r.ID != "" {
			cache[r.ID] = r
		}
	}
	return cache, scanner.Err()
}

// AppendCache appends results to cache.jsonl, one JSON object per line.
func AppendCache(path string, results []Result) error {
	if len(results) == 0 {
		return nil
	}
	return appendLines(path, results)
}

func appendLines[T any](path string, rows []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			_ = f.Close()
			return err
		}
		_, _ = w.Write(data)
		_ = w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
