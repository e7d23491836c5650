package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	pkgconfig "towncrier/pkg/config"
	"towncrier/pkg/llm"
)

const (
	defaultLinkedInLimit = 3000
	defaultMediumLimit   = 5000
	defaultInterval      = 6 * time.Hour
	defaultQueries       = 3
	defaultWindow        = 10
)

// Settings is the operator-editable document loaded from the YAML settings
// file. Everything in here shapes content; credentials never appear here.
type Settings struct {
	TopicSeeds     []string `yaml:"topic_seeds"`
	FallbackTopics []string `yaml:"fallback_topics"`
	Tone           string   `yaml:"tone"`
	AvoidPhrases   []string `yaml:"avoid_phrases"`
	MediumTags     []string `yaml:"medium_tags"`
	Model          string   `yaml:"model"`

	PostIntervalHours int `yaml:"post_interval_hours"`
	QueriesPerCycle   int `yaml:"queries_per_cycle"`
	ExclusionWindow   int `yaml:"exclusion_window"`

	Limits struct {
		LinkedIn int `yaml:"linkedin"`
		Medium   int `yaml:"medium"`
	} `yaml:"limits"`
}

// Config is the fully resolved runtime configuration: the YAML settings plus
// everything sourced from the environment (credentials, paths, schedule).
type Config struct {
	Settings

	Interval    time.Duration
	ArchiveDir  string
	HistoryPath string
	Port        string
	WebhookURL  string

	LLM llm.Config

	LinkedInToken string
	LinkedInURN   string
	MediumToken   string
}

// Load resolves configuration from the settings file named by
// TOWNCRIER_SETTINGS (default config/towncrier.yaml) and the process
// environment. It returns an error rather than exiting so callers decide
// how fatal a bad configuration is.
func Load() (*Config, error) {
	settingsPath := pkgconfig.GetEnv("TOWNCRIER_SETTINGS", "config/towncrier.yaml")
	settings, err := loadSettings(settingsPath)
	if err != nil {
		return nil, err
	}

	// File-sourced schedule and model, with the environment taking precedence.
	interval := defaultInterval
	if settings.PostIntervalHours > 0 {
		interval = time.Duration(settings.PostIntervalHours) * time.Hour
	}
	llmCfg := llm.LoadConfig()
	if os.Getenv("LLM_MODEL") == "" && settings.Model != "" {
		llmCfg.Model = settings.Model
	}

	cfg := &Config{
		Settings:    settings,
		Interval:    pkgconfig.GetEnvDuration("TOWNCRIER_INTERVAL", interval),
		ArchiveDir:  pkgconfig.GetEnv("TOWNCRIER_ARCHIVE_DIR", "content_backups"),
		HistoryPath: pkgconfig.GetEnv("TOWNCRIER_HISTORY_PATH", "content_backups/topic_history.jsonl"),
		Port:        pkgconfig.GetEnv("PORT", "18090"),
		WebhookURL:  pkgconfig.GetEnv("TOWNCRIER_WEBHOOK_URL", ""),

		LLM: llmCfg,

		LinkedInToken: pkgconfig.GetEnv("LINKEDIN_ACCESS_TOKEN", ""),
		LinkedInURN:   pkgconfig.GetEnv("LINKEDIN_AUTHOR_URN", ""),
		MediumToken:   pkgconfig.GetEnv("MEDIUM_ACCESS_TOKEN", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadSettings(path string) (Settings, error) {
	var s Settings

	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read settings file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings file %s: %w", path, err)
	}

	s.applyDefaults()
	return s, nil
}

func (s *Settings) applyDefaults() {
	if s.QueriesPerCycle <= 0 {
		s.QueriesPerCycle = defaultQueries
	}
	if s.ExclusionWindow <= 0 {
		s.ExclusionWindow = defaultWindow
	}
	if s.Limits.LinkedIn <= 0 {
		s.Limits.LinkedIn = defaultLinkedInLimit
	}
	if s.Limits.Medium <= 0 {
		s.Limits.Medium = defaultMediumLimit
	}
	if s.Tone == "" {
		s.Tone = "professional and engaging"
	}
	s.TopicSeeds = trimNonEmpty(s.TopicSeeds)
	s.FallbackTopics = trimNonEmpty(s.FallbackTopics)
	s.AvoidPhrases = trimNonEmpty(s.AvoidPhrases)
	s.MediumTags = trimNonEmpty(s.MediumTags)
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (c *Config) validate() error {
	if len(c.TopicSeeds) == 0 {
		return fmt.Errorf("settings must define at least one topic seed")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY (or PERPLEXITY_API_KEY) is required")
	}
	if c.Interval < time.Minute {
		return fmt.Errorf("TOWNCRIER_INTERVAL %s is below the 1m minimum", c.Interval)
	}
	return nil
}

// LinkedInConfigured reports whether the LinkedIn publisher has credentials.
func (c *Config) LinkedInConfigured() bool {
	return c.LinkedInToken != "" && c.LinkedInURN != ""
}

// MediumConfigured reports whether the Medium publisher has credentials.
func (c *Config) MediumConfigured() bool {
	return c.MediumToken != ""
}
