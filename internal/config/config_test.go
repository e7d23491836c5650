package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleSettings = `
topic_seeds:
  - "edge computing for video workloads"
  - "GPU scheduling in transcoding fleets"
fallback_topics:
  - "open source video infrastructure"
tone: "direct and technical"
avoid_phrases:
  - "game changer"
model: "sonar-pro"
post_interval_hours: 2
queries_per_cycle: 2
limits:
  linkedin: 2800
`

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "towncrier.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	return path
}

func TestLoadResolvesSettingsAndEnv(t *testing.T) {
	t.Setenv("TOWNCRIER_SETTINGS", writeSettings(t, sampleSettings))
	t.Setenv("LLM_API_KEY", "pplx-test")
	t.Setenv("TOWNCRIER_INTERVAL", "90m")
	t.Setenv("LINKEDIN_ACCESS_TOKEN", "li-token")
	t.Setenv("LINKEDIN_AUTHOR_URN", "urn:li:person:abc")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if len(cfg.TopicSeeds) != 2 {
		t.Errorf("expected 2 topic seeds, got %d", len(cfg.TopicSeeds))
	}
	if cfg.Tone != "direct and technical" {
		t.Errorf("unexpected tone %q", cfg.Tone)
	}
	if cfg.QueriesPerCycle != 2 {
		t.Errorf("expected queries_per_cycle 2, got %d", cfg.QueriesPerCycle)
	}
	if cfg.Interval != 90*time.Minute {
		t.Errorf("env interval must override the settings file, got %s", cfg.Interval)
	}
	if cfg.LLM.Model != "sonar-pro" {
		t.Errorf("expected model from settings file, got %q", cfg.LLM.Model)
	}
	if cfg.Limits.LinkedIn != 2800 {
		t.Errorf("expected linkedin limit override 2800, got %d", cfg.Limits.LinkedIn)
	}
	if cfg.Limits.Medium != 5000 {
		t.Errorf("expected default medium limit 5000, got %d", cfg.Limits.Medium)
	}
	if cfg.ExclusionWindow != 10 {
		t.Errorf("expected default exclusion window 10, got %d", cfg.ExclusionWindow)
	}
	if !cfg.LinkedInConfigured() {
		t.Error("expected LinkedIn to be configured")
	}
	if cfg.MediumConfigured() {
		t.Error("expected Medium to be unconfigured")
	}
}

func TestLoadReadsIntervalAndModelFromSettings(t *testing.T) {
	t.Setenv("TOWNCRIER_SETTINGS", writeSettings(t, sampleSettings))
	t.Setenv("LLM_API_KEY", "pplx-test")
	t.Setenv("TOWNCRIER_INTERVAL", "")
	t.Setenv("LLM_MODEL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Interval != 2*time.Hour {
		t.Errorf("expected post_interval_hours 2 from settings, got %s", cfg.Interval)
	}
	if cfg.LLM.Model != "sonar-pro" {
		t.Errorf("expected model from settings, got %q", cfg.LLM.Model)
	}
}

func TestLoadPrefersEnvModelOverSettings(t *testing.T) {
	t.Setenv("TOWNCRIER_SETTINGS", writeSettings(t, sampleSettings))
	t.Setenv("LLM_API_KEY", "pplx-test")
	t.Setenv("LLM_MODEL", "sonar-deep-research")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.LLM.Model != "sonar-deep-research" {
		t.Errorf("env model must override the settings file, got %q", cfg.LLM.Model)
	}
}

func TestLoadFailsWithoutAPIKey(t *testing.T) {
	t.Setenv("TOWNCRIER_SETTINGS", writeSettings(t, sampleSettings))
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("PERPLEXITY_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when no provider API key is set")
	}
}

func TestLoadFailsWithoutTopicSeeds(t *testing.T) {
	t.Setenv("TOWNCRIER_SETTINGS", writeSettings(t, "tone: casual\n"))
	t.Setenv("LLM_API_KEY", "pplx-test")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when settings define no topic seeds")
	}
	if !strings.Contains(err.Error(), "topic seed") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadFailsOnMissingSettingsFile(t *testing.T) {
	t.Setenv("TOWNCRIER_SETTINGS", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("LLM_API_KEY", "pplx-test")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing settings file")
	}
}

func TestLoadFailsOnMalformedSettings(t *testing.T) {
	t.Setenv("TOWNCRIER_SETTINGS", writeSettings(t, "topic_seeds: [unclosed"))
	t.Setenv("LLM_API_KEY", "pplx-test")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestLoadRejectsTooShortInterval(t *testing.T) {
	t.Setenv("TOWNCRIER_SETTINGS", writeSettings(t, sampleSettings))
	t.Setenv("LLM_API_KEY", "pplx-test")
	t.Setenv("TOWNCRIER_INTERVAL", "5s")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for sub-minute interval")
	}
}
