package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"member-activity/internal/models"
)

type Config struct {
	App struct {
		Log struct {
			Level  string `yaml:"level"`
			Format string `yaml:"format"`
		} `yaml:"log"`
		Discord     Discord     `yaml:"discord"`
		Database    Database    `yaml:"database"`
		Output      Output      `yaml:"output"`
		Snapshots   Snapshots   `yaml:"snapshots"`
		Leaderboard Leaderboard `yaml:"leaderboard"`
		Telegram    Telegram    `yaml:"telegram"`
		Jobs        []Job       `yaml:"jobs"`
	} `yaml:"app"`
}

type Discord struct {
	Token          string        `yaml:"token" envconfig:"token"`
	GuildID        string        `yaml:"guild_id" envconfig:"guild_id"`
	PageSize       int           `yaml:"page_size"`
	PageDelay      time.Duration `yaml:"page_delay"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type Database struct {
	Type     string `yaml:"type" envconfig:"type"`
	Postgres struct {
		DSN string `yaml:"dsn" envconfig:"dsn"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path" envconfig:"path"`
	} `yaml:"sqlite"`
	Postgrest struct {
		URL    string `yaml:"url" envconfig:"url"`
		APIKey string `yaml:"api_key" envconfig:"api_key"`
	} `yaml:"postgrest"`
	BatchSize    int           `yaml:"batch_size"`
	PageSize     int           `yaml:"page_size"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

type Output struct {
	Dir string `yaml:"dir"`
}

type Snapshots struct {
	TierPrefix    string   `yaml:"tier_prefix"`
	BaselineDay   string   `yaml:"baseline_day"`
	ComparisonDay string   `yaml:"comparison_day"`
	Regions       []string `yaml:"regions"`
	HandlesFile   string   `yaml:"handles_file"`
}

type Leaderboard struct {
	Size            int `yaml:"size"`
	ReportSize      int `yaml:"report_size"`
	TopContributors int `yaml:"top_contributors"`
}

type Telegram struct {
	Token       string `yaml:"token" envconfig:"token"`
	AlertChatID string `yaml:"alert_chat_id" envconfig:"alert_chat_id"`
}

// Enabled reports whether both a token and an alert chat are configured.
func (t Telegram) Enabled() bool {
	return t.Token != "" && t.AlertChatID != ""
}

// Job is one scheduled cycle definition.
type Job struct {
	Name string `yaml:"name"`
	// Profile jobs write identity, totals and snapshots; the others only
	// touch their own category counts.
	Profile       bool                  `yaml:"profile"`
	Every         time.Duration         `yaml:"every"`
	At            string                `yaml:"at"`
	RunOnStart    bool                  `yaml:"run_on_start"`
	MessageLimit  int                   `yaml:"message_limit"`
	Categories    []models.CategorySpec `yaml:"categories"`
	Uncategorized string                `yaml:"uncategorized"`
}

// CategoryNames returns the configured categories plus the uncategorized bucket.
func (j Job) CategoryNames() []string {
	names := make([]string, 0, len(j.Categories)+1)
	for _, c := range j.Categories {
		names = append(names, c.Name)
	}
	if j.Uncategorized != "" {
		names = append(names, j.Uncategorized)
	}
	return names
}

// Job returns the job with the given name.
func (c *Config) Job(name string) (Job, bool) {
	for _, j := range c.App.Jobs {
		if j.Name == name {
			return j, true
		}
	}
	return Job{}, false
}

func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets secrets come from SCRAPER_* variables instead of the file.
func (c *Config) applyEnv() error {
	if err := envconfig.Process("scraper_discord", &c.App.Discord); err != nil {
		return fmt.Errorf("env discord: %w", err)
	}
	if err := envconfig.Process("scraper_database", &c.App.Database); err != nil {
		return fmt.Errorf("env database: %w", err)
	}
	if err := envconfig.Process("scraper_telegram", &c.App.Telegram); err != nil {
		return fmt.Errorf("env telegram: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	a := &c.App
	if a.Log.Level == "" {
		a.Log.Level = "info"
	}
	if a.Discord.PageSize <= 0 || a.Discord.PageSize > 100 {
		a.Discord.PageSize = 100
	}
	if a.Discord.PageDelay == 0 {
		a.Discord.PageDelay = 100 * time.Millisecond
	}
	if a.Discord.RequestTimeout == 0 {
		a.Discord.RequestTimeout = 30 * time.Second
	}
	if a.Database.Type == "" {
		a.Database.Type = "sqlite"
	}
	if a.Database.SQLite.Path == "" {
		a.Database.SQLite.Path = "activity.db"
	}
	if a.Database.BatchSize <= 0 {
		a.Database.BatchSize = 100
	}
	if a.Database.PageSize <= 0 {
		a.Database.PageSize = 1000
	}
	if a.Database.ProbeTimeout == 0 {
		a.Database.ProbeTimeout = 10 * time.Second
	}
	if a.Output.Dir == "" {
		a.Output.Dir = "output"
	}
	if a.Snapshots.TierPrefix == "" {
		a.Snapshots.TierPrefix = "Magnitude"
	}
	if a.Snapshots.BaselineDay == "" {
		a.Snapshots.BaselineDay = "thursday"
	}
	if a.Snapshots.ComparisonDay == "" {
		a.Snapshots.ComparisonDay = "saturday"
	}
	if a.Leaderboard.Size <= 0 {
		a.Leaderboard.Size = 100
	}
	if a.Leaderboard.ReportSize <= 0 {
		a.Leaderboard.ReportSize = 20
	}
	if a.Leaderboard.TopContributors <= 0 {
		a.Leaderboard.TopContributors = 50
	}
}

func (c *Config) Validate() error {
	a := &c.App
	switch a.Database.Type {
	case "sqlite", "postgres", "postgrest":
	default:
		return fmt.Errorf("unknown database type %q", a.Database.Type)
	}
	if a.Database.Type == "postgres" && a.Database.Postgres.DSN == "" {
		return fmt.Errorf("database.postgres.dsn is required")
	}
	if a.Database.Type == "postgrest" && (a.Database.Postgrest.URL == "" || a.Database.Postgrest.APIKey == "") {
		return fmt.Errorf("database.postgrest url and api_key are required")
	}

	baseline, err := ParseWeekday(a.Snapshots.BaselineDay)
	if err != nil {
		return fmt.Errorf("snapshots.baseline_day: %w", err)
	}
	comparison, err := ParseWeekday(a.Snapshots.ComparisonDay)
	if err != nil {
		return fmt.Errorf("snapshots.comparison_day: %w", err)
	}
	if baseline == comparison {
		return fmt.Errorf("snapshots: baseline and comparison day are both %s", baseline)
	}

	if len(a.Jobs) == 0 {
		return fmt.Errorf("at least one job is required")
	}
	seen := map[string]bool{}
	// Jobs sharing a category write the same member_activity rows, so they
	// must read it with the same cap.
	limits := map[string]Job{}
	for _, j := range a.Jobs {
		if j.Name == "" {
			return fmt.Errorf("job without a name")
		}
		if seen[j.Name] {
			return fmt.Errorf("duplicate job %q", j.Name)
		}
		seen[j.Name] = true
		if len(j.Categories) == 0 && j.Uncategorized == "" {
			return fmt.Errorf("job %q: no categories", j.Name)
		}
		if (j.Every > 0) == (j.At != "") {
			return fmt.Errorf("job %q: exactly one of every or at is required", j.Name)
		}
		if j.At != "" {
			if _, err := time.Parse("15:04", j.At); err != nil {
				return fmt.Errorf("job %q: at must be HH:MM: %w", j.Name, err)
			}
		}
		if j.MessageLimit < 0 {
			return fmt.Errorf("job %q: message_limit must be >= 0", j.Name)
		}
		names := map[string]bool{}
		for _, name := range j.CategoryNames() {
			if names[name] {
				return fmt.Errorf("job %q: duplicate category %q", j.Name, name)
			}
			if name == models.TotalCategory {
				return fmt.Errorf("job %q: category name %q is reserved", j.Name, name)
			}
			names[name] = true
			if other, ok := limits[name]; ok && other.MessageLimit != j.MessageLimit {
				return fmt.Errorf("job %q: category %q is also written by job %q with a different message_limit", j.Name, name, other.Name)
			}
			limits[name] = j
		}
	}
	return nil
}

// ParseWeekday accepts full or three-letter English day names.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}
