package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"plain article URL",
			"https://example.com/news/story-one",
			"https://example.com/news/story-one",
		},
		{
			"http upgraded to https",
			"http://example.com/news/story-one",
			"https://example.com/news/story-one",
		},
		{
			"host lowercased",
			"https://Example.COM/News",
			"https://example.com/News",
		},
		{
			"trailing slash stripped",
			"https://example.com/news/",
			"https://example.com/news",
		},
		{
			"tracking params dropped",
			"https://example.com/news?utm_source=rss&utm_medium=feed&fbclid=abc",
			"https://example.com/news",
		},
		{
			"allow-listed keys kept and sorted",
			"https://example.com/?story=9&id=42",
			"https://example.com/?id=42&story=9",
		},
		{
			"utm_id survives while other utm keys do not",
			"https://example.com/a?utm_id=7&utm_campaign=x",
			"https://example.com/a?utm_id=7",
		},
		{
			"mixed-case duplicate keys collapse",
			"https://example.com/?ID=5&id=5",
			"https://example.com/?id=5",
		},
		{
			"mixed-case keys with distinct values merge sorted",
			"https://example.com/?ID=9&id=5",
			"https://example.com/?id=5&id=9",
		},
		{
			"no host returned unchanged",
			"not-a-url",
			"not-a-url",
		},
		{
			"empty returned unchanged",
			"",
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalURL(tt.in))
		})
	}
}

func TestCanonicalURL_TrackingVariantsCollapse(t *testing.T) {
	variants := []string{
		"https://example.com/story?utm_source=a",
		"https://example.com/story?utm_source=b&utm_medium=rss",
		"http://EXAMPLE.com/story/",
		"https://example.com/story?gclid=xyz",
	}
	want := CanonicalURL("https://example.com/story")
	for _, v := range variants {
		assert.Equal(t, want, CanonicalURL(v), "variant %s", v)
	}
}

func TestItemHash_Deterministic(t *testing.T) {
	first := ItemHash("guid-123", "https://example.com/story?utm_source=rss")
	second := ItemHash("guid-123", "https://example.com/story")
	assert.Equal(t, first, second, "tracking params must not change the hash")
	assert.Len(t, first, 64)

	// Repeated calls stay stable.
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, ItemHash("guid-123", "https://example.com/story"))
	}
}

func TestItemHash_GuidTrimmed(t *testing.T) {
	assert.Equal(t,
		ItemHash("  guid-1  ", "https://example.com/a"),
		ItemHash("guid-1", "https://example.com/a"))
}

func TestItemHash_DifferentItemsDiffer(t *testing.T) {
	a := ItemHash("guid-1", "https://example.com/a")
	b := ItemHash("guid-2", "https://example.com/a")
	c := ItemHash("guid-1", "https://example.com/b")
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestValidateIdentity(t *testing.T) {
	assert.NoError(t, ValidateIdentity("guid", ""))
	assert.NoError(t, ValidateIdentity("", "https://example.com"))
	assert.ErrorIs(t, ValidateIdentity("", ""), ErrMissingIdentity)
	assert.ErrorIs(t, ValidateIdentity("   ", "  "), ErrMissingIdentity)
}
