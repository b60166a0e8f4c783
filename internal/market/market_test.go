package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"newsroll/internal/catalog"
	"newsroll/internal/core"
	"newsroll/internal/cost"
	"newsroll/internal/feeds"
	"newsroll/internal/llm"
	"newsroll/internal/sources"
)

var (
	seoul = time.FixedZone("KST", 9*60*60)
	now   = time.Date(2025, 6, 2, 8, 0, 0, 0, seoul)
)

func vocab() catalog.Market {
	return catalog.Default().Market
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDatasets(t *testing.T) {
	tests := []struct {
		name    string
		want    []string
		wantErr bool
	}{
		{"all", []string{DatasetAI, DatasetUpdates}, false},
		{"", []string{DatasetAI, DatasetUpdates}, false},
		{DatasetUpdates, []string{DatasetUpdates}, false},
		{"crypto", nil, true},
	}
	for _, tt := range tests {
		got, err := Datasets(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("Datasets(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("Datasets(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMonthRange(t *testing.T) {
	rng, err := MonthRange("2025-02", seoul)
	if err != nil {
		t.Fatalf("MonthRange: %v", err)
	}
	if got := rng.End.Format("2006-01-02 15:04:05"); got != "2025-02-28 23:59:59" {
		t.Errorf("end = %s", got)
	}
	if !rng.Contains(time.Date(2025, 2, 1, 0, 0, 0, 0, seoul)) {
		t.Error("range should contain its first instant")
	}
	if rng.Contains(time.Date(2025, 3, 1, 0, 0, 0, 0, seoul)) {
		t.Error("range should not contain the next month")
	}
	if rng.Contains(time.Time{}) {
		t.Error("zero time is never in range")
	}
	if _, err := MonthRange("2025/02", seoul); err == nil {
		t.Error("expected error for malformed month")
	}
}

func TestTypeAndAreaGroups(t *testing.T) {
	m := vocab()
	if got := TypeGroup(m, "출시"); got != "제품/기능" {
		t.Errorf("TypeGroup(출시) = %q", got)
	}
	if got := TypeGroup(m, "unknown"); got != defaultTypeGroup {
		t.Errorf("TypeGroup(unknown) = %q", got)
	}
	got := AreaGroups(m, []string{"리스크", "AML", "unknown", "트레이딩"})
	want := []string{"리스크/컴플", "투자/리서치", "거래/브로커리지"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("AreaGroups = %v, want %v", got, want)
	}
}

func TestAppItem(t *testing.T) {
	app := catalog.App{Company: "키움증권", AppName: "영웅문S#", TrackID: 42}
	info := &sources.AppInfo{
		TrackName:                 "",
		TrackViewURL:              "https://apps.apple.com/app/id42",
		Version:                   " 2.1.0 ",
		ReleaseNotes:              "AI   챗봇 상담 기능 추가",
		CurrentVersionReleaseDate: "2025-06-01T00:30:00Z",
	}
	rng := LookbackRange(now, 7)

	item, ok := AppItem(app, info, rng, seoul)
	if !ok {
		t.Fatal("expected item in range")
	}
	if item.Title != "키움증권 iOS 앱 업데이트 v2.1.0" {
		t.Errorf("title = %q", item.Title)
	}
	if item.Date != "2025-06-01" || item.AppName != "영웅문S#" || item.Snippet != "AI 챗봇 상담 기능 추가" {
		t.Errorf("item = %+v", item)
	}
	if item.SourceType != core.KindAppStore {
		t.Errorf("source type = %q", item.SourceType)
	}
	again, _ := AppItem(app, info, rng, seoul)
	if again.ID != item.ID {
		t.Error("ids should be deterministic")
	}

	info.CurrentVersionReleaseDate = "2025-04-01T00:00:00Z"
	if _, ok := AppItem(app, info, rng, seoul); ok {
		t.Error("stale release should be skipped")
	}
}

func TestDARTItem(t *testing.T) {
	d := sources.Disclosure{ReportNm: "주요사항보고서", RceptNo: "20250601000123", RceptDt: "20250601", GroupType: "B"}
	item, ok := DARTItem("삼성증권", "00104856", d, seoul)
	if !ok {
		t.Fatal("expected item")
	}
	if item.ID != sha1Hex("삼성증권-20250601000123") {
		t.Errorf("id = %s", item.ID)
	}
	if item.Date != "2025-06-01" || item.CorpCode != "00104856" || item.GroupType != "B" {
		t.Errorf("item = %+v", item)
	}
	if !strings.Contains(item.URL, "20250601000123") {
		t.Errorf("url = %q", item.URL)
	}

	d.RceptDt = "bogus"
	if _, ok := DARTItem("삼성증권", "00104856", d, seoul); ok {
		t.Error("unparseable date should be skipped")
	}
}

func TestNewsItems(t *testing.T) {
	rng := LookbackRange(now, 7)
	recent := now.Add(-24 * time.Hour)
	entries := []core.RawItem{
		{Title: "키움, AI 트레이딩 도입", URL: "https://news.example/1", Source: "Wire", PublishedAt: recent},
		{Title: "mstock 신규 기능", Snippet: "미래에셋 앱", URL: "https://news.example/2", PublishedAt: recent},
		{Title: "No company here", URL: "https://news.example/3", PublishedAt: recent},
		{Title: "키움 old", URL: "https://news.example/4", PublishedAt: now.AddDate(0, 0, -30)},
		{Title: "키움 undated", URL: "https://news.example/5"},
		{Title: "키움 no link", PublishedAt: recent},
	}
	matcher := NewCompanyMatcher(vocab().Companies, vocab().CompanyAliases)

	items := NewsItems(entries, rng, matcher)
	if len(items) != 2 {
		t.Fatalf("got %d items: %+v", len(items), items)
	}
	if items[0].Company != "키움증권" || items[0].ID != "news:키움증권:https://news.example/1" {
		t.Errorf("first = %+v", items[0])
	}
	if items[1].Company != "미래에셋증권" || items[1].Source != "News" {
		t.Errorf("second = %+v", items[1])
	}
}

func TestDedupeByID(t *testing.T) {
	items := []Item{{ID: "a", Title: "first"}, {ID: "b"}, {ID: "a", Title: "second"}}
	got := DedupeByID(items)
	if len(got) != 2 || got[0].Title != "second" || got[1].ID != "b" {
		t.Errorf("DedupeByID = %+v", got)
	}
}

func TestFilterCandidates(t *testing.T) {
	f := NewFilter(vocab())
	items := []Item{
		{ID: "ai", Title: "AI 챗봇 출시"},
		{ID: "update", Title: "MTS 해외주식 주문 화면 개편"},
		{ID: "dart", Title: "주요사항보고서", SourceType: core.KindDART},
		{ID: "digital", Title: "디지털 플랫폼 개편"},
		{ID: "none", Title: "임원 인사"},
	}
	ids := func(items []Item) string {
		var out []string
		for _, it := range items {
			out = append(out, it.ID)
		}
		return strings.Join(out, ",")
	}

	if got := ids(f.Candidates(DatasetAI, items)); got != "ai" {
		t.Errorf("ai candidates = %s", got)
	}
	if got := ids(f.Candidates(DatasetUpdates, items)); got != "update,dart" {
		t.Errorf("updates candidates = %s", got)
	}
}

type fakeGenerator struct {
	calls   int
	maxSize int
	fail    error
}

func (g *fakeGenerator) EnrichBatch(_ context.Context, _, prompt string) (string, error) {
	g.calls++
	if g.fail != nil {
		return "", g.fail
	}
	var items []promptItem
	if err := json.Unmarshal([]byte(prompt[strings.Index(prompt, "Input: ")+len("Input: "):]), &items); err != nil {
		return "", err
	}
	if g.maxSize > 0 && len(items) > g.maxSize {
		return "", errors.New("batch too large")
	}
	conf := 0.8
	var out []Result
	for _, it := range items {
		out = append(out, Result{ID: it.ID, Keep: !strings.Contains(it.Title, "drop"), OneLiner: it.Title + " 요약", TypeRaw: "출시", AreasRaw: []string{"트레이딩", "bogus"}, Confidence: &conf})
	}
	data, _ := json.Marshal(out)
	return string(data), nil
}

func TestBatcherHalvesFailingBatches(t *testing.T) {
	var items []Item
	for i := 0; i < 7; i++ {
		items = append(items, Item{ID: fmt.Sprintf("id-%d", i), Title: "t"})
	}
	gen := &fakeGenerator{maxSize: 2}
	b := &Batcher{Gen: gen, Dataset: DatasetAI, Vocab: vocab(), BatchSize: 8}

	results, err := b.Enrich(context.Background(), items)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if len(results) != 7 {
		t.Errorf("got %d results, want 7", len(results))
	}
	if gen.calls < 4 {
		t.Errorf("expected retries after splitting, got %d calls", gen.calls)
	}
}

func TestBatcherReportsSingleItemFailure(t *testing.T) {
	gen := &fakeGenerator{fail: errors.New("boom")}
	b := &Batcher{Gen: gen, Dataset: DatasetAI, Vocab: vocab(), BatchSize: 2}
	if _, err := b.Enrich(context.Background(), []Item{{ID: "a"}, {ID: "b"}}); err == nil {
		t.Fatal("expected error")
	}
}

func TestPromptMentionsVocabulary(t *testing.T) {
	p := Prompt(DatasetUpdates, vocab(), []Item{{ID: "x", Title: "t"}})
	if !strings.Contains(p, "출시, 제휴") || !strings.Contains(p, `"id":"x"`) {
		t.Errorf("prompt = %s", p)
	}
	if !strings.Contains(p, "AI 관련 항목은 keep=false") {
		t.Error("updates prompt should exclude AI items")
	}
}

func TestCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.jsonl")
	empty, err := LoadCache(path)
	if err != nil || len(empty) != 0 {
		t.Fatalf("LoadCache(missing) = %v, %v", empty, err)
	}
	if err := AppendCache(path, []Result{{ID: "a", Keep: true}, {ID: "b"}}); err != nil {
		t.Fatalf("AppendCache: %v", err)
	}
	if err := AppendCache(path, []Result{{ID: "a", Keep: false, OneLiner: "later"}}); err != nil {
		t.Fatalf("AppendCache: %v", err)
	}
	cache, err := LoadCache(path)
	if err != nil {
		t.Fatalf("LoadCache: %v", err)
	}
	if len(cache) != 2 || cache["a"].OneLiner != "later" || cache["a"].Keep {
		t.Errorf("cache = %+v", cache)
	}
}

func TestUpsertMonthFileIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	events := []Event{
		{ID: "b", Date: "2025-06-01", Title: "B"},
		{ID: "a", Date: "2025-06-01", Title: "A"},
		{ID: "c", Date: "2025-06-03", Title: "C"},
	}
	first, err := UpsertMonthFile(dir, "2025-06", events)
	if err != nil {
		t.Fatalf("UpsertMonthFile: %v", err)
	}
	var order []string
	for _, e := range first.Events {
		order = append(order, e.ID)
	}
	if strings.Join(order, ",") != "c,a,b" {
		t.Errorf("order = %v", order)
	}

	before, _ := os.ReadFile(filepath.Join(dir, "2025-06.json"))
	if _, err := UpsertMonthFile(dir, "2025-06", events); err != nil {
		t.Fatalf("UpsertMonthFile: %v", err)
	}
	after, _ := os.ReadFile(filepath.Join(dir, "2025-06.json"))
	if string(before) != string(after) {
		t.Error("second upsert changed the file")
	}

	updated, err := UpsertMonthFile(dir, "2025-06", []Event{{ID: "a", Date: "2025-06-01", Title: "A2"}})
	if err != nil {
		t.Fatalf("UpsertMonthFile: %v", err)
	}
	if len(updated.Events) != 3 || updated.Events[1].Title != "A2" {
		t.Errorf("updated = %+v", updated.Events)
	}
}

func TestBuildIndex(t *testing.T) {
	dir := t.TempDir()
	if _, err := UpsertMonthFile(dir, "2025-05", []Event{
		{ID: "old", Date: "2025-05-01", Type: "출시", Areas: []string{"WM"}, OneLiner: "x", Sources: []EventSource{{URL: "u"}}},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := UpsertMonthFile(dir, "2025-06", []Event{
		{ID: "new", Date: "2025-06-01"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.json"), []byte(`{"month":"x"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	idx, err := BuildIndex(dir, []string{"키움증권"}, now)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	if strings.Join(idx.Months, ",") != "2025-06,2025-05" {
		t.Errorf("months = %v", idx.Months)
	}
	if idx.Counts.Total != 2 || idx.Counts.Last30d != 1 {
		t.Errorf("counts = %+v", idx.Counts)
	}
	if idx.LastUpdated == nil || *idx.LastUpdated != "2025-06-01" {
		t.Errorf("lastUpdated = %v", idx.LastUpdated)
	}
	q := idx.QualityByMonth["2025-06"]
	if q.Total != 1 || q.MissingLink != 1 || q.MissingSummary != 1 || q.MissingType != 1 || q.MissingArea != 1 {
		t.Errorf("quality = %+v", q)
	}
	if idx.QualityByMonth["2025-05"].MissingLink != 0 {
		t.Errorf("quality = %+v", idx.QualityByMonth["2025-05"])
	}

	empty, err := BuildIndex(filepath.Join(dir, "missing"), nil, now)
	if err != nil || empty.LastUpdated != nil || len(empty.Companies) != 0 {
		t.Errorf("empty index = %+v, %v", empty, err)
	}
}

const newsFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Wire</title>
<item><title>키움증권, AI 투자 비서 공개</title><link>https://news.example/kiwoom-ai</link>
<description>생성형 AI 기반 상담</description><pubDate>Sun, 01 Jun 2025 10:00:00 +0000</pubDate></item>
<item><title>날씨 소식</title><link>https://news.example/weather</link>
<pubDate>Sun, 01 Jun 2025 10:00:00 +0000</pubDate></item>
</channel></rss>`

func newMarketServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/lookup", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "42" {
			_, _ = w.Write([]byte(`{"results":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"trackId":42,"trackName":"영웅문S#","trackViewUrl":"https://apps.apple.com/app/id42",
			"version":"2.1.0","releaseNotes":"AI 챗봇 상담 추가","currentVersionReleaseDate":"2025-06-01T00:30:00Z"}]}`))
	})
	mux.HandleFunc("/rss", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(newsFeed))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestRunner(t *testing.T, gen BatchGenerator) (*Runner, string) {
	t.Helper()
	srv := newMarketServer(t)
	root := t.TempDir()
	httpc := sources.NewHTTP(5*time.Second, "test")

	v := vocab()
	v.Apps = []catalog.App{
		{Company: "키움증권", AppName: "영웅문S#", TrackID: 42},
		{Company: "삼성증권", AppName: "mPOP", TrackID: 7},
	}
	v.NewsSources = []catalog.NewsSource{{Name: "Wire", URL: srv.URL + "/rss"}, {Name: "Down", URL: srv.URL + "/missing"}}

	return &Runner{
		AppStore:    &sources.AppStore{HTTP: httpc, Endpoint: srv.URL + "/lookup"},
		News:        feeds.NewReader(httpc.Client, "test", 10, seoul),
		LLM:         gen,
		Vocab:       v,
		Settings:    Settings{BatchSize: 4, Country: "kr", RSSLimit: 10},
		PublicRoot:  filepath.Join(root, "public", "securities"),
		ArchiveRoot: filepath.Join(root, "archive", "securities"),
		Location:    seoul,
		Clock:       func() time.Time { return now },
		Log:         quietLogger(),
	}, root
}

func TestRunnerPublishesEvents(t *testing.T) {
	gen := &fakeGenerator{}
	r, root := newTestRunner(t, gen)
	rng := LookbackRange(now, 7)

	stats, err := r.RunDataset(context.Background(), DatasetAI, rng)
	if err != nil {
		t.Fatalf("RunDataset: %v", err)
	}
	if stats.Sources.AppStore.FetchedOK != 1 || stats.Sources.AppStore.Failed != 1 {
		t.Errorf("app store stats = %+v", stats.Sources.AppStore)
	}
	if !stats.Sources.DART.Skipped {
		t.Error("DART should be skipped without a key")
	}
	if stats.Sources.News.EntriesFetched != 2 || stats.Sources.News.BySource.Get("Wire") != 2 {
		t.Errorf("news stats = %+v", stats.Sources.News)
	}
	if stats.Filters.Candidates != 2 || stats.LLM.Sent != 2 || stats.Output.Kept != 2 {
		t.Errorf("stats = %+v %+v %+v", stats.Filters, stats.LLM, stats.Output)
	}

	publicDir := filepath.Join(root, "public", "securities", DatasetAI)
	var month MonthFile
	data, err := os.ReadFile(filepath.Join(publicDir, "2025-06.json"))
	if err != nil {
		t.Fatalf("month file: %v", err)
	}
	if err := json.Unmarshal(data, &month); err != nil {
		t.Fatal(err)
	}
	if len(month.Events) != 2 {
		t.Fatalf("events = %+v", month.Events)
	}
	for _, e := range month.Events {
		if e.Type != "출시" || strings.Join(e.Areas, ",") != "트레이딩" || e.Region != region || e.UpdatedAt != "2025-06-02" {
			t.Errorf("event = %+v", e)
		}
	}
	for _, name := range []string{"index.json", "run.json", "run_history.json"} {
		if _, err := os.Stat(filepath.Join(publicDir, name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
	failures, _ := os.ReadFile(filepath.Join(root, "archive", "securities", DatasetAI, "source_failures.jsonl"))
	if strings.Count(string(failures), "\n") != 3 {
		t.Errorf("failures = %s", failures)
	}

	// Second run answers everything from the cache.
	calls := gen.calls
	stats, err = r.RunDataset(context.Background(), DatasetAI, rng)
	if err != nil {
		t.Fatalf("RunDataset: %v", err)
	}
	if gen.calls != calls || stats.LLM.CacheHit != 2 || stats.LLM.Sent != 0 {
		t.Errorf("second run calls=%d stats=%+v", gen.calls-calls, stats.LLM)
	}
}

func TestRunnerWithoutLLMKeepsNothing(t *testing.T) {
	r, root := newTestRunner(t, nil)
	stats, err := r.RunDataset(context.Background(), DatasetAI, LookbackRange(now, 7))
	if err != nil {
		t.Fatalf("RunDataset: %v", err)
	}
	if !stats.LLM.SkippedNoKey || stats.Output.Kept != 0 {
		t.Errorf("stats = %+v %+v", stats.LLM, stats.Output)
	}
	if _, err := os.Stat(filepath.Join(root, "public", "securities", DatasetAI, "index.json")); err != nil {
		t.Errorf("index.json: %v", err)
	}
}

// generatorFunc lets the fake batch classifier sit behind a real llm.Client.
type generatorFunc func(ctx context.Context, req llm.Request) (string, error)

func (f generatorFunc) Generate(ctx context.Context, req llm.Request) (string, error) {
	return f(ctx, req)
}

func TestRunnerRecordsEstimatedUsage(t *testing.T) {
	fake := &fakeGenerator{}
	tracker := cost.NewTracker()
	gen := cost.NewMeteredGenerator(generatorFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return fake.EnrichBatch(ctx, req.Model, req.Prompt)
	}), tracker)

	r, _ := newTestRunner(t, llm.NewClient(gen, llm.Options{}))
	r.Cost = tracker
	r.Settings.Model = "gpt-4o-mini"

	stats, err := r.RunDataset(context.Background(), DatasetAI, LookbackRange(now, 7))
	if err != nil {
		t.Fatalf("RunDataset: %v", err)
	}
	if stats.Output.Kept != 2 {
		t.Errorf("kept = %d", stats.Output.Kept)
	}
	if stats.LLM.EstimatedTokens == 0 || stats.LLM.EstimatedCostUSD <= 0 {
		t.Errorf("llm stats = %+v", stats.LLM)
	}
}
