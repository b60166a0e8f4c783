package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"newsroll/internal/llm"
)

// Config holds all application configuration
type Config struct {
	App       App       `mapstructure:"app"`
	LLM       LLM       `mapstructure:"llm"`
	Limits    Limits    `mapstructure:"limits"`
	Windows   Windows   `mapstructure:"windows"`
	Developer Developer `mapstructure:"developer"`
	Market    Market    `mapstructure:"market"`
	Index     Index     `mapstructure:"index"`
	Metrics   Metrics   `mapstructure:"metrics"`
	Schedule  Schedule  `mapstructure:"schedule"`
	Logging   Logging   `mapstructure:"logging"`
	HTTP      HTTP      `mapstructure:"http"`
}

// App holds paths and the reporting timezone
type App struct {
	Timezone   string `mapstructure:"timezone"`
	PublicDir  string `mapstructure:"public_dir"`
	ArchiveDir string `mapstructure:"archive_dir"`
	DataDir    string `mapstructure:"data_dir"`
	Catalog    string `mapstructure:"catalog"`
}

// LLM holds provider selection, credentials and model choices
type LLM struct {
	Provider           string    `mapstructure:"provider"`
	OpenAI             APIKeyRef `mapstructure:"openai"`
	Gemini             APIKeyRef `mapstructure:"gemini"`
	Anthropic          APIKeyRef `mapstructure:"anthropic"`
	ItemModelShort     string    `mapstructure:"item_model_short"`
	ItemModelLong      string    `mapstructure:"item_model_long"`
	ItemModelThreshold int       `mapstructure:"item_model_threshold"`
	IssueModel         string    `mapstructure:"issue_model"`
	TemperatureItem    float32   `mapstructure:"temperature_item"`
	TemperatureIssue   float32   `mapstructure:"temperature_issue"`
	Timeout            string    `mapstructure:"timeout"`
}

// APIKeyRef holds one provider credential
type APIKeyRef struct {
	APIKey string `mapstructure:"api_key"`
}

// Limits caps how many items each stage keeps
type Limits struct {
	RSSPerSource int `mapstructure:"rss_per_source"`
	HuggingFace  int `mapstructure:"huggingface"`
	HN           int `mapstructure:"hn"`
	Total        int `mapstructure:"total"`
	DailyCards   int `mapstructure:"daily_cards"`
	PerSource    int `mapstructure:"per_source"`
	IssuePool    int `mapstructure:"issue_pool"`
	Issues       int `mapstructure:"issues"`
}

// Windows sizes the daily, weekly and monthly report periods
type Windows struct {
	DailyHours  int `mapstructure:"daily_hours"`
	WeeklyDays  int `mapstructure:"weekly_days"`
	MonthlyDays int `mapstructure:"monthly_days"`
}

// Developer holds the GitHub and Hacker News discovery settings
type Developer struct {
	GitHubToken    string `mapstructure:"github_token"`
	SearchDays     int    `mapstructure:"search_days"`
	SearchMinStars int    `mapstructure:"search_min_stars"`
	SearchPerPage  int    `mapstructure:"search_per_page"`
	SearchPages    int    `mapstructure:"search_pages"`
	ReleaseDays    int    `mapstructure:"release_days"`
	MaxClusters    int    `mapstructure:"max_clusters"`
	HNWindowHours  int    `mapstructure:"hn_window_hours"`
	HNPointsMin    int    `mapstructure:"hn_points_min"`
	HNCommentsMin  int    `mapstructure:"hn_comments_min"`
}

// Market holds the app-store, disclosure and news collection settings
type Market struct {
	DartAPIKey   string `mapstructure:"dart_api_key"`
	LookbackDays int    `mapstructure:"lookback_days"`
	Model        string `mapstructure:"model"`
	BatchSize    int    `mapstructure:"batch_size"`
	Country      string `mapstructure:"country"`
	RSSLimit     int    `mapstructure:"rss_limit"`
}

// Index selects where rollups read daily cards from
type Index struct {
	Backend string `mapstructure:"backend"`
}

// Metrics holds the prometheus textfile destination
type Metrics struct {
	Textfile string `mapstructure:"textfile"`
}

// Schedule holds cron specs for the schedule command
type Schedule struct {
	Industry  string `mapstructure:"industry"`
	Developer string `mapstructure:"developer"`
	Market    string `mapstructure:"market"`
}

// Logging configures the slog handler
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// HTTP configures outbound fetches
type HTTP struct {
	Timeout   string `mapstructure:"timeout"`
	UserAgent string `mapstructure:"user_agent"`
}

// Index backends.
const (
	BackendFiles  = "files"
	BackendSQLite = "sqlite"
)

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".newsroll")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

func setDefaults() {
	viper.SetDefault("app.timezone", "Asia/Seoul")
	viper.SetDefault("app.public_dir", "public")
	viper.SetDefault("app.archive_dir", "archive")
	viper.SetDefault("app.data_dir", ".newsroll")
	viper.SetDefault("app.catalog", "")

	viper.SetDefault("llm.provider", llm.ProviderOpenAI)
	viper.SetDefault("llm.item_model_short", "gpt-4o-mini")
	viper.SetDefault("llm.item_model_long", "gpt-4o")
	viper.SetDefault("llm.item_model_threshold", 600)
	viper.SetDefault("llm.issue_model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature_item", 0.2)
	viper.SetDefault("llm.temperature_issue", 0.3)
	viper.SetDefault("llm.timeout", "60s")

	viper.SetDefault("limits.rss_per_source", 15)
	viper.SetDefault("limits.huggingface", 30)
	viper.SetDefault("limits.hn", 30)
	viper.SetDefault("limits.total", 150)
	viper.SetDefault("limits.daily_cards", 5)
	viper.SetDefault("limits.per_source", 2)
	viper.SetDefault("limits.issue_pool", 8)
	viper.SetDefault("limits.issues", 5)

	viper.SetDefault("windows.daily_hours", 24)
	viper.SetDefault("windows.weekly_days", 7)
	viper.SetDefault("windows.monthly_days", 30)

	viper.SetDefault("developer.search_days", 7)
	viper.SetDefault("developer.search_min_stars", 50)
	viper.SetDefault("developer.search_per_page", 30)
	viper.SetDefault("developer.search_pages", 2)
	viper.SetDefault("developer.release_days", 14)
	viper.SetDefault("developer.max_clusters", 30)
	viper.SetDefault("developer.hn_window_hours", 48)
	viper.SetDefault("developer.hn_points_min", 50)
	viper.SetDefault("developer.hn_comments_min", 20)

	viper.SetDefault("market.lookback_days", 3)
	viper.SetDefault("market.model", "gpt-5-mini")
	viper.SetDefault("market.batch_size", 12)
	viper.SetDefault("market.country", "kr")
	viper.SetDefault("market.rss_limit", 50)

	viper.SetDefault("index.backend", BackendFiles)
	viper.SetDefault("metrics.textfile", "")

	viper.SetDefault("schedule.industry", "0 7 * * *")
	viper.SetDefault("schedule.developer", "30 7 * * *")
	viper.SetDefault("schedule.market", "0 8 * * *")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("http.timeout", "20s")
	viper.SetDefault("http.user_agent", "newsroll/1.0")
}

// bindEnvironmentVariables maps the conventional variable names onto config keys
func bindEnvironmentVariables() {
	bindEnvKeys("llm.openai.api_key", []string{"OPENAI_API_KEY"})
	bindEnvKeys("llm.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})
	bindEnvKeys("llm.anthropic.api_key", []string{"ANTHROPIC_API_KEY"})
	bindEnvKeys("llm.provider", []string{"NEWSROLL_LLM_PROVIDER"})

	bindEnvKeys("developer.github_token", []string{
		"MY_GITHUB_TOKEN",
		"GITHUB_TOKEN",
	})
	bindEnvKeys("market.dart_api_key", []string{"DART_API_KEY"})

	bindEnvKeys("logging.level", []string{"NEWSROLL_LOG_LEVEL", "LOG_LEVEL"})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

func postProcessConfig(config *Config) error {
	config.App.PublicDir = expandPath(config.App.PublicDir)
	config.App.ArchiveDir = expandPath(config.App.ArchiveDir)
	config.App.DataDir = expandPath(config.App.DataDir)
	if config.App.Catalog != "" {
		config.App.Catalog = expandPath(config.App.Catalog)
	}
	if config.Metrics.Textfile != "" {
		config.Metrics.Textfile = expandPath(config.Metrics.Textfile)
	}

	durations := map[string]string{
		"llm.timeout":  config.LLM.Timeout,
		"http.timeout": config.HTTP.Timeout,
	}
	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, duration)
			}
		}
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig reports every problem at once. Missing API keys are not
// errors: the pipelines fall back to deterministic output without them.
func validateConfig(config *Config) error {
	var errors []string

	switch strings.ToLower(config.LLM.Provider) {
	case llm.ProviderOpenAI, llm.ProviderGemini, llm.ProviderAnthropic, llm.ProviderNone:
	default:
		errors = append(errors, fmt.Sprintf("Unknown llm provider: %s. Supported: openai, gemini, anthropic, none", config.LLM.Provider))
	}

	switch config.Index.Backend {
	case BackendFiles, BackendSQLite:
	default:
		errors = append(errors, fmt.Sprintf("Unknown index backend: %s. Supported: files, sqlite", config.Index.Backend))
	}

	if _, err := time.LoadLocation(config.App.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("Invalid timezone %q: %v", config.App.Timezone, err))
	}

	limits := map[string]int{
		"limits.rss_per_source":    config.Limits.RSSPerSource,
		"limits.huggingface":       config.Limits.HuggingFace,
		"limits.hn":                config.Limits.HN,
		"limits.total":             config.Limits.Total,
		"limits.daily_cards":       config.Limits.DailyCards,
		"limits.per_source":        config.Limits.PerSource,
		"limits.issue_pool":        config.Limits.IssuePool,
		"limits.issues":            config.Limits.Issues,
		"windows.daily_hours":      config.Windows.DailyHours,
		"windows.weekly_days":      config.Windows.WeeklyDays,
		"windows.monthly_days":     config.Windows.MonthlyDays,
		"market.lookback_days":     config.Market.LookbackDays,
		"market.batch_size":        config.Market.BatchSize,
		"developer.max_clusters":   config.Developer.MaxClusters,
		"llm.item_model_threshold": config.LLM.ItemModelThreshold,
	}
	for key, v := range limits {
		if v < 0 {
			errors = append(errors, fmt.Sprintf("%s must not be negative (got %d)", key, v))
		}
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	specs := map[string]string{
		"schedule.industry":  config.Schedule.Industry,
		"schedule.developer": config.Schedule.Developer,
		"schedule.market":    config.Schedule.Market,
	}
	for key, spec := range specs {
		if spec == "" {
			continue
		}
		if _, err := parser.Parse(spec); err != nil {
			errors = append(errors, fmt.Sprintf("Invalid cron spec for %s: %v", key, err))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Location returns the configured reporting timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LLMSettings maps the llm section onto provider settings.
func (c *Config) LLMSettings() llm.Settings {
	timeout, _ := time.ParseDuration(c.LLM.Timeout)
	return llm.Settings{
		Provider:     strings.ToLower(c.LLM.Provider),
		OpenAIKey:    c.LLM.OpenAI.APIKey,
		GeminiKey:    c.LLM.Gemini.APIKey,
		AnthropicKey: c.LLM.Anthropic.APIKey,
		Timeout:      timeout,
	}
}

// LLMOptions maps the llm section onto client model options.
func (c *Config) LLMOptions() llm.Options {
	return llm.Options{
		ShortModel:       c.LLM.ItemModelShort,
		LongModel:        c.LLM.ItemModelLong,
		Threshold:        c.LLM.ItemModelThreshold,
		IssueModel:       c.LLM.IssueModel,
		ItemTemperature:  c.LLM.TemperatureItem,
		IssueTemperature: c.LLM.TemperatureIssue,
	}
}

// HTTPTimeout returns the parsed outbound request timeout.
func (c *Config) HTTPTimeout() time.Duration {
	d, err := time.ParseDuration(c.HTTP.Timeout)
	if err != nil || d <= 0 {
		return 20 * time.Second
	}
	return d
}

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
