package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := &Config{}

	if got := cfg.GetFrameWidth(); got != 640 {
		t.Errorf("GetFrameWidth() = %d, want 640", got)
	}
	if got := cfg.GetFrameHeight(); got != 480 {
		t.Errorf("GetFrameHeight() = %d, want 480", got)
	}
	if got := cfg.GetMinConfidence(); got != 0.5 {
		t.Errorf("GetMinConfidence() = %f, want 0.5", got)
	}
	if got := cfg.GetCooldown(); got != 2*time.Second {
		t.Errorf("GetCooldown() = %v, want 2s", got)
	}
	if got := cfg.GetBackoffBase(); got != 100*time.Millisecond {
		t.Errorf("GetBackoffBase() = %v, want 100ms", got)
	}
	if got := cfg.GetMaxConsecutiveFailures(); got != 10 {
		t.Errorf("GetMaxConsecutiveFailures() = %d, want 10", got)
	}
	if got := cfg.GetOCRLanguage(); got != "eng" {
		t.Errorf("GetOCRLanguage() = %q, want eng", got)
	}
	if got := cfg.GetBlurKernel(); got != 5 {
		t.Errorf("GetBlurKernel() = %d, want 5", got)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") returned error: %v", err)
	}
	if cfg.GetDevice() != "0" {
		t.Errorf("empty config GetDevice() = %q, want 0", cfg.GetDevice())
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plategate.json")
	body := `{
		"device": "rtsp://example/stream",
		"min_confidence": 0.7,
		"cooldown": "5s",
		"plate_min_length": 5,
		"plate_patterns": ["^[A-Z]{2}[0-9]{4}$"]
	}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got := cfg.GetDevice(); got != "rtsp://example/stream" {
		t.Errorf("GetDevice() = %q", got)
	}
	if got := cfg.GetMinConfidence(); got != 0.7 {
		t.Errorf("GetMinConfidence() = %f, want 0.7", got)
	}
	if got := cfg.GetCooldown(); got != 5*time.Second {
		t.Errorf("GetCooldown() = %v, want 5s", got)
	}
	if got := cfg.GetPlateMinLength(); got != 5 {
		t.Errorf("GetPlateMinLength() = %d, want 5", got)
	}
	if len(cfg.PlatePatterns) != 1 {
		t.Errorf("PlatePatterns len = %d, want 1", len(cfg.PlatePatterns))
	}
	// Unset fields keep defaults.
	if got := cfg.GetFrameWidth(); got != 640 {
		t.Errorf("GetFrameWidth() = %d, want 640", got)
	}
}

func TestLoadRejectsNonJSON(t *testing.T) {
	if _, err := Load("settings.yaml"); err == nil {
		t.Fatal("expected error for non-json extension")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	conf := func(mutate func(*Config)) *Config {
		c := &Config{}
		mutate(c)
		return c
	}
	f := func(v float64) *float64 { return &v }
	s := func(v string) *string { return &v }
	n := func(v int) *int { return &v }

	cases := []struct {
		name string
		cfg  *Config
	}{
		{"confidence above one", conf(func(c *Config) { c.MinConfidence = f(1.5) })},
		{"negative confidence", conf(func(c *Config) { c.MinConfidence = f(-0.1) })},
		{"aspect bounds inverted", conf(func(c *Config) { c.AspectMin = f(7); c.AspectMax = f(2) })},
		{"zero min length", conf(func(c *Config) { c.PlateMinLength = n(0) })},
		{"bad cooldown", conf(func(c *Config) { c.Cooldown = s("two seconds") })},
		{"bad backoff", conf(func(c *Config) { c.BackoffBase = s("100") })},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
