package developer

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"newsroll/internal/catalog"
	"newsroll/internal/core"
	"newsroll/internal/sources"
	"newsroll/internal/topics"
)

var now = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

func tagNormalizer() *topics.TagNormalizer {
	c := catalog.Default()
	return topics.NewTagNormalizer(c.Developer.CanonicalTags, c.Developer.TagAliases)
}

func TestRepoClusterRecentRelease(t *testing.T) {
	repo := sources.Repo{
		FullName:    "acme/agentkit",
		Description: "Agent orchestration toolkit",
		Stars:       1234,
		Forks:       100,
		HTMLURL:     "https://github.com/acme/agentkit",
		UpdatedAt:   "2025-06-01T10:00:00Z",
	}
	release := &sources.Release{TagName: "v1.2.0", HTMLURL: "https://github.com/acme/agentkit/releases/v1.2.0", PublishedAt: "2025-05-31T00:00:00Z"}
	stories := []sources.HNStory{{Points: 100, Comments: 150, HNURL: "https://news.ycombinator.com/item?id=1"}}

	c := RepoCluster(repo, release, stories, now, 7, tagNormalizer())

	if c.Section != SectionReleases {
		t.Errorf("section = %q, want releases", c.Section)
	}
	if c.Score != 311.36 {
		t.Errorf("score = %v, want 311.36", c.Score)
	}
	wantEvidence := []core.Evidence{
		{Source: "GitHub", Metric: "stars", Value: "1,234"},
		{Source: "GitHub", Metric: "forks", Value: "100"},
		{Source: "GitHub", Metric: "updated", Value: "2025-06-01"},
		{Source: "GitHub", Metric: "release", Value: "v1.2.0"},
		{Source: "Hacker News", Metric: "signal", Value: "100p · 150c"},
	}
	if len(c.Evidence) != len(wantEvidence) {
		t.Fatalf("evidence = %+v", c.Evidence)
	}
	for i, e := range wantEvidence {
		if c.Evidence[i] != e {
			t.Errorf("evidence[%d] = %+v, want %+v", i, c.Evidence[i], e)
		}
	}
	if len(c.Links) != 3 || c.Links[0].Label != "GitHub" || c.Links[1].Label != "Release" || c.Links[2].Label != "HN Thread" {
		t.Errorf("links = %+v", c.Links)
	}
	if c.ID != ClusterID("github:acme/agentkit") {
		t.Errorf("id = %q", c.ID)
	}
	if len(c.Tags) == 0 || c.Tags[0] != "agent tooling" {
		t.Errorf("tags = %v", c.Tags)
	}
}

func TestRepoClusterSections(t *testing.T) {
	old := &sources.Release{TagName: "v0.1", PublishedAt: "2025-04-01T00:00:00Z"}
	tests := []struct {
		name     string
		release  *sources.Release
		comments int
		want     string
	}{
		{"stale release is trending", old, 0, SectionTrending},
		{"busy thread is a discussion", nil, 120, SectionDiscussions},
		{"quiet thread is trending", nil, 119, SectionTrending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stories := []sources.HNStory{{Points: 1, Comments: tt.comments}}
			c := RepoCluster(sources.Repo{FullName: "a/b"}, tt.release, stories, now, 7, tagNormalizer())
			if c.Section != tt.want {
				t.Errorf("section = %q, want %q", c.Section, tt.want)
			}
			if c.OneLiner != defaultRepoLiner {
				t.Errorf("oneLiner = %q", c.OneLiner)
			}
		})
	}
}

func TestHNCluster(t *testing.T) {
	story := sources.HNStory{
		Item:     core.RawItem{Title: "  Vector search   at scale ", URL: "https://blog.example.com/post"},
		Points:   50,
		Comments: 90,
		HNURL:    "https://news.ycombinator.com/item?id=9",
	}
	c := HNCluster(story, now, tagNormalizer())
	if c.Name != "Vector search at scale" || c.Section != SectionTrending {
		t.Errorf("cluster = %+v", c)
	}
	if c.Score != 138 {
		t.Errorf("score = %v, want 138", c.Score)
	}
	if len(c.Links) != 2 || c.Links[0].Label != "HN Thread" || c.Links[1].Label != "Source" {
		t.Errorf("links = %+v", c.Links)
	}
	found := false
	for _, tmpl := range whyNowTemplates[ReasonHNHot] {
		if c.WhyNow == tmpl {
			found = true
		}
	}
	if !found {
		t.Errorf("whyNow %q is not an hn_hot template", c.WhyNow)
	}
}

func TestWhyNowIsStablePerDate(t *testing.T) {
	id := ClusterID("github:acme/tool")
	if WhyNow(ReasonRelease, id, "2025-06-02") != WhyNow(ReasonRelease, id, "2025-06-02") {
		t.Fatal("same id and date produced different text")
	}
	seen := map[string]bool{}
	day := now
	for i := 0; i < 30; i++ {
		seen[WhyNow(ReasonRelease, id, core.FormatDate(day))] = true
		day = day.AddDate(0, 0, 1)
	}
	if len(seen) < 2 {
		t.Errorf("whyNow never varied across 30 dates: %v", seen)
	}
}

func TestBuildRanksAndMarksNew(t *testing.T) {
	clusters := []core.Cluster{
		{ID: "a", Score: 5, Evidence: []core.Evidence{{Source: "GitHub"}}},
		{ID: "b", Score: 9, Evidence: []core.Evidence{{Source: "Hacker News"}}},
		{ID: "c", Score: 9, Evidence: []core.Evidence{{Source: "GitHub"}}},
		{ID: "d", Score: 1},
	}
	report := Build(clusters, map[string]bool{"c": true}, 3, "2025-06-02")

	var ids []string
	for _, c := range report.Clusters {
		ids = append(ids, c.ID)
	}
	if len(ids) != 3 || ids[0] != "b" || ids[1] != "c" || ids[2] != "a" {
		t.Errorf("order = %v, want [b c a]", ids)
	}
	if report.Clusters[1].Status != core.StatusOngoing || report.Clusters[0].Status != core.StatusNew {
		t.Errorf("statuses = %v / %v", report.Clusters[0].Status, report.Clusters[1].Status)
	}
	if report.KPIs != (core.DeveloperKPIs{Clusters: 3, Sources: 2, New: 2}) {
		t.Errorf("kpis = %+v", report.KPIs)
	}
}

func newRadarServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/hn", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"hits":[
			{"objectID":"1","title":"Show off","url":"https://github.com/acme/tool","points":40,"num_comments":10,"created_at_i":1748851200},
			{"objectID":"2","title":"Compilers are fun","url":"https://example.com/post","points":80,"num_comments":130,"created_at_i":1748851200}
		]}`)
	})
	mux.HandleFunc("/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("per_page"); got != "10" {
			t.Errorf("unauthenticated per_page = %s, want 10", got)
		}
		io.WriteString(w, `{"items":[{"full_name":"acme/tool"},{"full_name":"gone/repo"}]}`)
	})
	mux.HandleFunc("/repos/acme/tool", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"full_name":"acme/tool","stargazers_count":300,"forks_count":20,"html_url":"https://github.com/acme/tool","updated_at":"2025-06-01T00:00:00Z"}`)
	})
	mux.HandleFunc("/repos/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRunnerWritesRadarAndStats(t *testing.T) {
	srv := newRadarServer(t)
	dir := t.TempDir()
	httpc := sources.NewHTTP(5*time.Second, "test")
	runner := &Runner{
		HN:        &sources.HackerNews{HTTP: httpc, Endpoint: srv.URL + "/hn", Limit: 50, Window: 48 * time.Hour},
		GitHub:    &sources.GitHub{HTTP: httpc, Base: srv.URL},
		Tags:      tagNormalizer(),
		Settings:  DefaultSettings(),
		PublicDir: dir,
		Clock:     func() time.Time { return now },
		Log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// acme/tool (repo + HN thread) and the HN-only story; gone/repo 404s.
	if report.KPIs.Clusters != 2 || report.KPIs.New != 2 {
		t.Errorf("kpis = %+v", report.KPIs)
	}

	var stats Stats
	data, err := os.ReadFile(filepath.Join(dir, "run.json"))
	if err != nil {
		t.Fatalf("run.json: %v", err)
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Sources.HN.Items != 2 || stats.Sources.GitHubSearch.Items != 2 || stats.Sources.GitHubSearch.Since != "2025-05-26" {
		t.Errorf("stats sources = %+v", stats.Sources)
	}
	if stats.Output.Clusters != 2 {
		t.Errorf("stats output = %+v", stats.Output)
	}

	again, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if again.KPIs.New != 0 {
		t.Errorf("second run new = %d, want 0", again.KPIs.New)
	}
}
