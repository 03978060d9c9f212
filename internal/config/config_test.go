package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidJSON(t *testing.T) {
	path := writeConfig(t, `{
		"feed_urls": ["https://example.com/feed", "https://other.example.com/rss"],
		"items_per_feed": 10,
		"min_words": 1000,
		"max_words": 1400,
		"auto_seo": true
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Len(t, cfg.FeedURLs, 2)
	assert.Equal(t, 10, cfg.ItemsPerFeed)
	assert.Equal(t, 1000, cfg.MinWords)
	assert.True(t, cfg.AutoSEO)
	// Untouched fields keep defaults.
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 800, cfg.ExpandThreshold)
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := writeConfig(t, `{ invalid json }`)
	cfg, err := Load(path)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config JSON")
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.json")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults().ItemsPerFeed, cfg.ItemsPerFeed)
	assert.True(t, cfg.ExpandEnabled)
}

func TestLoad_ClampsOutOfRangeValues(t *testing.T) {
	path := writeConfig(t, `{
		"items_per_feed": 500,
		"expand_threshold": 50,
		"temperature": 1.5
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, MaxItemsPerFeed, cfg.ItemsPerFeed)
	assert.Equal(t, MinExpandThreshold, cfg.ExpandThreshold)
	assert.InDelta(t, 1.5, cfg.Temperature, 0.001)
}

func TestLoad_RejectsInvertedWordBand(t *testing.T) {
	path := writeConfig(t, `{"min_words": 1500, "max_words": 1000}`)
	_, err := Load(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "min_words")
}

func TestLoad_RejectsInvalidFeedURL(t *testing.T) {
	path := writeConfig(t, `{"feed_urls": ["not a url"]}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `{"items_per_feed": 3, "api_key": "from-file"}`)

	t.Setenv("GEMINI_API_KEY", "from-env")
	t.Setenv("NEWSFETCHER_ITEMS_PER_FEED", "7")
	t.Setenv("NEWSFETCHER_FEED_URLS", "https://a.example.com/feed, https://b.example.com/feed")
	t.Setenv("NEWSFETCHER_AUTO_SEO", "false")
	t.Setenv("NEWSFETCHER_FETCH_INTERVAL_MINUTES", "30")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.APIKey)
	assert.Equal(t, 7, cfg.ItemsPerFeed)
	assert.Equal(t, []string{"https://a.example.com/feed", "https://b.example.com/feed"}, cfg.FeedURLs)
	assert.False(t, cfg.AutoSEO)
	assert.Equal(t, 30, cfg.FetchIntervalMinutes)
}

func TestLoad_FetchIntervalDisabledByDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.FetchIntervalMinutes)

	path := writeConfig(t, `{"fetch_interval_minutes": -5}`)
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.FetchIntervalMinutes)
}

func TestLoad_IgnoresMalformedEnvNumbers(t *testing.T) {
	t.Setenv("NEWSFETCHER_ITEMS_PER_FEED", "lots")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults().ItemsPerFeed, cfg.ItemsPerFeed)
}
