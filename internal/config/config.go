// Package config provides configuration loading and validation for the
// fetcher. Values come from an optional JSON file, overridden by
// environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Limits applied when clamping out-of-range values rather than
// rejecting them.
const (
	MinItemsPerFeed = 1
	MaxItemsPerFeed = 20

	MinExpandThreshold = 200
)

// Config represents the fetcher configuration. All fields are
// optional; missing values use defaults.
type Config struct {
	// Feeds
	FeedURLs     []string `json:"feed_urls,omitempty" validate:"dive,url"`
	ItemsPerFeed int      `json:"items_per_feed,omitempty" validate:"gte=0"`

	// FetchIntervalMinutes enables scheduled runs over the configured
	// feeds when positive. Zero disables the schedule.
	FetchIntervalMinutes int `json:"fetch_interval_minutes,omitempty" validate:"gte=0"`

	// Expansion
	ExpandEnabled   bool    `json:"expand_enabled,omitempty"`
	ExpandThreshold int     `json:"expand_threshold,omitempty" validate:"gte=0"`
	MinWords        int     `json:"min_words,omitempty" validate:"gte=0"`
	MaxWords        int     `json:"max_words,omitempty" validate:"gte=0"`
	MaxTokens       int     `json:"max_tokens,omitempty" validate:"gte=0"`
	Temperature     float32 `json:"temperature,omitempty" validate:"gte=0,lte=2"`

	// SEO
	AutoSEO       bool     `json:"auto_seo,omitempty"`
	PrependFocus  bool     `json:"prepend_focus,omitempty"`
	ForceOptimize bool     `json:"force_optimize,omitempty"`
	AutoTags      bool     `json:"auto_tags,omitempty"`
	InternalLinks []string `json:"internal_links,omitempty" validate:"dive,url"`
	MaxTags       int      `json:"max_tags,omitempty" validate:"gte=0"`

	// Images
	ResolveImages    bool   `json:"resolve_images,omitempty"`
	FallbackImageURL string `json:"fallback_image_url,omitempty" validate:"omitempty,url"`

	// Infrastructure
	APIKey      string `json:"api_key,omitempty"`
	Model       string `json:"model,omitempty"`
	DatabaseURL string `json:"database_url,omitempty"`
	Port        int    `json:"port,omitempty" validate:"gte=0,lte=65535"`
}

// Defaults returns the configuration used when nothing is specified.
func Defaults() Config {
	return Config{
		ItemsPerFeed:    5,
		ExpandEnabled:   true,
		ExpandThreshold: 800,
		MinWords:        1200,
		MaxWords:        1500,
		MaxTokens:       2400,
		Temperature:     0.3,
		AutoSEO:         true,
		PrependFocus:    true,
		ForceOptimize:   true,
		AutoTags:        true,
		MaxTags:         5,
		ResolveImages:   true,
		Port:            8080,
	}
}

// Load reads configuration from an optional JSON file and applies
// environment overrides on top of defaults. An empty path skips the
// file entirely.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if !filepath.IsAbs(path) {
			cwd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("failed to get current directory: %w", err)
			}
			path = filepath.Join(cwd, path)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.clamp()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides file values with NEWSFETCHER_* environment
// variables. GEMINI_API_KEY and DATABASE_URL are honored without the
// prefix since deploy environments set them directly.
func (c *Config) applyEnv() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("NEWSFETCHER_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("NEWSFETCHER_FEED_URLS"); v != "" {
		c.FeedURLs = splitList(v)
	}
	if v := os.Getenv("NEWSFETCHER_FALLBACK_IMAGE_URL"); v != "" {
		c.FallbackImageURL = v
	}
	if v, ok := envInt("NEWSFETCHER_PORT"); ok {
		c.Port = v
	}
	if v, ok := envInt("NEWSFETCHER_ITEMS_PER_FEED"); ok {
		c.ItemsPerFeed = v
	}
	if v, ok := envInt("NEWSFETCHER_FETCH_INTERVAL_MINUTES"); ok {
		c.FetchIntervalMinutes = v
	}
	if v, ok := envInt("NEWSFETCHER_EXPAND_THRESHOLD"); ok {
		c.ExpandThreshold = v
	}
	if v, ok := envBool("NEWSFETCHER_EXPAND_ENABLED"); ok {
		c.ExpandEnabled = v
	}
	if v, ok := envBool("NEWSFETCHER_AUTO_SEO"); ok {
		c.AutoSEO = v
	}
	if v, ok := envBool("NEWSFETCHER_RESOLVE_IMAGES"); ok {
		c.ResolveImages = v
	}
}

// clamp pulls tunables back into their supported ranges instead of
// failing the load.
func (c *Config) clamp() {
	if c.ItemsPerFeed < MinItemsPerFeed {
		c.ItemsPerFeed = MinItemsPerFeed
	}
	if c.ItemsPerFeed > MaxItemsPerFeed {
		c.ItemsPerFeed = MaxItemsPerFeed
	}
	if c.ExpandThreshold < MinExpandThreshold {
		c.ExpandThreshold = MinExpandThreshold
	}
	if c.FetchIntervalMinutes < 0 {
		c.FetchIntervalMinutes = 0
	}
	if c.Temperature < 0 {
		c.Temperature = 0
	}
	if c.Temperature > 2 {
		c.Temperature = 2
	}
	if c.MaxTags < 1 {
		c.MaxTags = Defaults().MaxTags
	}
}

// Validate checks structural constraints that clamping cannot repair.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if c.MaxWords > 0 && c.MinWords > c.MaxWords {
		return fmt.Errorf("config error: 'min_words' (%d) exceeds 'max_words' (%d)", c.MinWords, c.MaxWords)
	}
	return nil
}

func envInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envBool(key string) (bool, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
