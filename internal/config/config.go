// Package config loads the pipeline tuning parameters from a JSON file.
// Fields omitted from the file keep their defaults, so partial configs are
// safe; the Get* accessors carry the fallback values.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration. Every field is optional in the JSON
// file.
type Config struct {
	// Capture params
	Device        *string  `json:"device,omitempty"`      // camera index or stream URL
	FrameWidth    *int     `json:"frame_width,omitempty"` // target resolution
	FrameHeight   *int     `json:"frame_height,omitempty"`
	FPS           *float64 `json:"fps,omitempty"`
	ReadTimeout   *string  `json:"read_timeout,omitempty"`   // duration string like "1s"
	FrameInterval *string  `json:"frame_interval,omitempty"` // pacing for replay sources

	// Preprocess params
	BlurKernel    *int     `json:"blur_kernel,omitempty"`
	AdaptiveBlock *int     `json:"adaptive_block,omitempty"`
	AdaptiveC     *float64 `json:"adaptive_c,omitempty"`

	// Locator params
	AspectMin *float64 `json:"aspect_min,omitempty"`
	AspectMax *float64 `json:"aspect_max,omitempty"`
	MinArea   *float64 `json:"min_area,omitempty"`
	MaxArea   *float64 `json:"max_area,omitempty"`

	// Validator params
	MinConfidence  *float64 `json:"min_confidence,omitempty"`
	PlateMinLength *int     `json:"plate_min_length,omitempty"`
	PlateMaxLength *int     `json:"plate_max_length,omitempty"`
	PlatePatterns  []string `json:"plate_patterns,omitempty"`

	// Debounce / retry params
	Cooldown               *string `json:"cooldown,omitempty"`     // duration string like "2s"
	BackoffBase            *string `json:"backoff_base,omitempty"` //
	BackoffMax             *string `json:"backoff_max,omitempty"`  //
	MaxConsecutiveFailures *int    `json:"max_consecutive_failures,omitempty"`

	// External collaborator timeouts
	RegistryTimeout *string `json:"registry_timeout,omitempty"`
	EmitTimeout     *string `json:"emit_timeout,omitempty"`

	// OCR params
	OCRLanguage *string `json:"ocr_language,omitempty"`

	// Storage / logging
	DatabasePath *string `json:"database_path,omitempty"`
	CSVLogPath   *string `json:"csv_log_path,omitempty"`
	JSONLogPath  *string `json:"json_log_path,omitempty"`
}

// Load reads and validates a config file. A missing path yields an empty
// config (all defaults).
func Load(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside the pipeline.
func (c *Config) Validate() error {
	if c.MinConfidence != nil {
		if *c.MinConfidence < 0 || *c.MinConfidence > 1 {
			return fmt.Errorf("min_confidence must be between 0 and 1, got %f", *c.MinConfidence)
		}
	}
	if c.AspectMin != nil && c.AspectMax != nil && *c.AspectMin > *c.AspectMax {
		return fmt.Errorf("aspect_min %f exceeds aspect_max %f", *c.AspectMin, *c.AspectMax)
	}
	if c.PlateMinLength != nil && *c.PlateMinLength < 1 {
		return fmt.Errorf("plate_min_length must be positive, got %d", *c.PlateMinLength)
	}
	for _, field := range []struct {
		name  string
		value *string
	}{
		{"read_timeout", c.ReadTimeout},
		{"frame_interval", c.FrameInterval},
		{"cooldown", c.Cooldown},
		{"backoff_base", c.BackoffBase},
		{"backoff_max", c.BackoffMax},
		{"registry_timeout", c.RegistryTimeout},
		{"emit_timeout", c.EmitTimeout},
	} {
		if field.value != nil && *field.value != "" {
			if _, err := time.ParseDuration(*field.value); err != nil {
				return fmt.Errorf("invalid %s %q: %w", field.name, *field.value, err)
			}
		}
	}
	return nil
}

func durationOr(s *string, fallback time.Duration) time.Duration {
	if s == nil || *s == "" {
		return fallback
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return fallback
	}
	return d
}

// GetDevice returns the camera device or the default first camera.
func (c *Config) GetDevice() string {
	if c.Device == nil {
		return "0"
	}
	return *c.Device
}

// GetFrameWidth returns the target frame width.
func (c *Config) GetFrameWidth() int {
	if c.FrameWidth == nil {
		return 640
	}
	return *c.FrameWidth
}

// GetFrameHeight returns the target frame height.
func (c *Config) GetFrameHeight() int {
	if c.FrameHeight == nil {
		return 480
	}
	return *c.FrameHeight
}

// GetFPS returns the requested capture rate.
func (c *Config) GetFPS() float64 {
	if c.FPS == nil {
		return 30
	}
	return *c.FPS
}

// GetReadTimeout bounds each frame read.
func (c *Config) GetReadTimeout() time.Duration {
	return durationOr(c.ReadTimeout, time.Second)
}

// GetFrameInterval paces replay sources.
func (c *Config) GetFrameInterval() time.Duration {
	return durationOr(c.FrameInterval, 100*time.Millisecond)
}

// GetBlurKernel returns the Gaussian kernel size.
func (c *Config) GetBlurKernel() int {
	if c.BlurKernel == nil {
		return 5
	}
	return *c.BlurKernel
}

// GetAdaptiveBlock returns the adaptive threshold neighbourhood size.
func (c *Config) GetAdaptiveBlock() int {
	if c.AdaptiveBlock == nil {
		return 11
	}
	return *c.AdaptiveBlock
}

// GetAdaptiveC returns the adaptive threshold constant.
func (c *Config) GetAdaptiveC() float64 {
	if c.AdaptiveC == nil {
		return 2
	}
	return *c.AdaptiveC
}

// GetAspectMin returns the candidate aspect-ratio lower bound.
func (c *Config) GetAspectMin() float64 {
	if c.AspectMin == nil {
		return 2.0
	}
	return *c.AspectMin
}

// GetAspectMax returns the candidate aspect-ratio upper bound.
func (c *Config) GetAspectMax() float64 {
	if c.AspectMax == nil {
		return 6.5
	}
	return *c.AspectMax
}

// GetMinArea returns the candidate area lower bound in px².
func (c *Config) GetMinArea() float64 {
	if c.MinArea == nil {
		return 1000
	}
	return *c.MinArea
}

// GetMaxArea returns the candidate area upper bound in px².
func (c *Config) GetMaxArea() float64 {
	if c.MaxArea == nil {
		return 60000
	}
	return *c.MaxArea
}

// GetMinConfidence returns the acceptance threshold for OCR confidence.
func (c *Config) GetMinConfidence() float64 {
	if c.MinConfidence == nil {
		return 0.5
	}
	return *c.MinConfidence
}

// GetPlateMinLength returns the normalized-length lower bound.
func (c *Config) GetPlateMinLength() int {
	if c.PlateMinLength == nil {
		return 4
	}
	return *c.PlateMinLength
}

// GetPlateMaxLength returns the normalized-length upper bound.
func (c *Config) GetPlateMaxLength() int {
	if c.PlateMaxLength == nil {
		return 10
	}
	return *c.PlateMaxLength
}

// GetCooldown returns the debounce cool-down window.
func (c *Config) GetCooldown() time.Duration {
	return durationOr(c.Cooldown, 2*time.Second)
}

// GetBackoffBase returns the first capture retry delay.
func (c *Config) GetBackoffBase() time.Duration {
	return durationOr(c.BackoffBase, 100*time.Millisecond)
}

// GetBackoffMax caps the capture retry delay.
func (c *Config) GetBackoffMax() time.Duration {
	return durationOr(c.BackoffMax, 5*time.Second)
}

// GetMaxConsecutiveFailures returns the failure count that flips the
// published state to source-unavailable.
func (c *Config) GetMaxConsecutiveFailures() int {
	if c.MaxConsecutiveFailures == nil {
		return 10
	}
	return *c.MaxConsecutiveFailures
}

// GetRegistryTimeout bounds each authorization lookup.
func (c *Config) GetRegistryTimeout() time.Duration {
	return durationOr(c.RegistryTimeout, 500*time.Millisecond)
}

// GetEmitTimeout bounds each event delivery.
func (c *Config) GetEmitTimeout() time.Duration {
	return durationOr(c.EmitTimeout, time.Second)
}

// GetOCRLanguage returns the Tesseract language.
func (c *Config) GetOCRLanguage() string {
	if c.OCRLanguage == nil {
		return "eng"
	}
	return *c.OCRLanguage
}

// GetDatabasePath returns the SQLite file path.
func (c *Config) GetDatabasePath() string {
	if c.DatabasePath == nil {
		return "vehicles.db"
	}
	return *c.DatabasePath
}

// GetCSVLogPath returns the CSV detection log path.
func (c *Config) GetCSVLogPath() string {
	if c.CSVLogPath == nil {
		return "detection_logs.csv"
	}
	return *c.CSVLogPath
}

// GetJSONLogPath returns the JSON detection log path.
func (c *Config) GetJSONLogPath() string {
	if c.JSONLogPath == nil {
		return "detection_logs.json"
	}
	return *c.JSONLogPath
}
