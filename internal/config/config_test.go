package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "newsroll.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	Reset()
	defer Reset()
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load(writeConfig(t, "app:\n  public_dir: out\n"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Timezone != "Asia/Seoul" {
		t.Errorf("timezone = %q", cfg.App.Timezone)
	}
	if cfg.App.PublicDir != "out" {
		t.Errorf("public_dir = %q, want file override", cfg.App.PublicDir)
	}
	if cfg.Limits.Total != 150 || cfg.Limits.DailyCards != 5 || cfg.Limits.PerSource != 2 {
		t.Errorf("limits = %+v", cfg.Limits)
	}
	if cfg.LLM.ItemModelThreshold != 600 {
		t.Errorf("threshold = %d", cfg.LLM.ItemModelThreshold)
	}
	if cfg.Index.Backend != BackendFiles {
		t.Errorf("backend = %q", cfg.Index.Backend)
	}
	if cfg.HTTPTimeout() != 20*time.Second {
		t.Errorf("http timeout = %v", cfg.HTTPTimeout())
	}
	if cfg.Location().String() != "Asia/Seoul" {
		t.Errorf("location = %v", cfg.Location())
	}
}

func TestLoadBindsEnvKeys(t *testing.T) {
	Reset()
	defer Reset()
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_AI_API_KEY", "g-key")
	t.Setenv("MY_GITHUB_TOKEN", "")
	t.Setenv("GITHUB_TOKEN", "gh-token")
	t.Setenv("DART_API_KEY", "dart")

	cfg, err := Load(writeConfig(t, "llm:\n  provider: gemini\n"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.Gemini.APIKey != "g-key" {
		t.Errorf("gemini key = %q", cfg.LLM.Gemini.APIKey)
	}
	if cfg.Developer.GitHubToken != "gh-token" {
		t.Errorf("github token = %q", cfg.Developer.GitHubToken)
	}
	if cfg.Market.DartAPIKey != "dart" {
		t.Errorf("dart key = %q", cfg.Market.DartAPIKey)
	}

	s := cfg.LLMSettings()
	if s.Provider != "gemini" || s.GeminiKey != "g-key" || s.Timeout != 60*time.Second {
		t.Errorf("settings = %+v", s)
	}
}

func TestLoadMissingKeyIsNotAnError(t *testing.T) {
	Reset()
	defer Reset()
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := Load(writeConfig(t, "llm:\n  provider: openai\n")); err != nil {
		t.Fatalf("missing key should not fail Load: %v", err)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "unknown provider",
			body: "llm:\n  provider: groq\n",
			want: []string{"Unknown llm provider: groq"},
		},
		{
			name: "bad backend and timezone",
			body: "index:\n  backend: redis\napp:\n  timezone: Mars/Olympus\n",
			want: []string{"Unknown index backend: redis", "Invalid timezone"},
		},
		{
			name: "negative limit",
			body: "limits:\n  total: -1\n",
			want: []string{"limits.total must not be negative"},
		},
		{
			name: "bad cron",
			body: "schedule:\n  market: every day\n",
			want: []string{"Invalid cron spec for schedule.market"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Reset()
			defer Reset()

			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected validation error")
			}
			for _, want := range tt.want {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q missing %q", err, want)
				}
			}
		})
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	Reset()
	defer Reset()

	_, err := Load(writeConfig(t, "http:\n  timeout: soon\n"))
	if err == nil || !strings.Contains(err.Error(), "invalid duration for http.timeout") {
		t.Fatalf("err = %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandPath("~/archive"); got != filepath.Join(home, "archive") {
		t.Errorf("expandPath(~/archive) = %q", got)
	}
	t.Setenv("NEWSROLL_TEST_ROOT", "/srv")
	if got := expandPath("$NEWSROLL_TEST_ROOT/public"); got != "/srv/public" {
		t.Errorf("expandPath env = %q", got)
	}
}

func TestLoadCachesUntilReset(t *testing.T) {
	Reset()
	defer Reset()

	if _, err := Load(writeConfig(t, "http:\n  timeout: soon\n")); err == nil {
		t.Fatal("expected error for bad duration")
	}
	first, err := Load(writeConfig(t, "app:\n  public_dir: first\n"))
	if err != nil {
		t.Fatalf("Load after failure: %v", err)
	}
	again, err := Load(writeConfig(t, "app:\n  public_dir: second\n"))
	if err != nil || again != first {
		t.Fatalf("second Load = %p, %v; want cached %p", again, err, first)
	}

	Reset()
	reloaded, err := Load(writeConfig(t, "app:\n  public_dir: second\n"))
	if err != nil {
		t.Fatalf("Load after Reset: %v", err)
	}
	if reloaded.App.PublicDir != "second" {
		t.Errorf("public_dir = %q, want second", reloaded.App.PublicDir)
	}
}
