package feed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// DefaultTimeout bounds a single feed fetch. Variant fallback handles
// slow or dead endpoints; there is no per-URL retry.
const DefaultTimeout = 15 * time.Second

// Enclosure is a media attachment advertised by a feed item.
type Enclosure struct {
	URL  string
	Type string
}

// IsImage reports whether the enclosure looks like an image, either by
// MIME type or by URL extension when the feed omits the type.
func (e Enclosure) IsImage() bool {
	if strings.HasPrefix(strings.ToLower(e.Type), "image/") {
		return true
	}
	lower := strings.ToLower(e.URL)
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".gif", ".webp"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Item is one entry of a parsed feed. Content falls back to the item
// description when the feed carries no full content element.
type Item struct {
	Title      string
	Link       string
	GUID       string
	Content    string
	Published  time.Time
	Enclosures []Enclosure
}

// Feed is the parsed result for one feed URL.
type Feed struct {
	Title string
	Items []Item
}

// Fetcher retrieves and parses a feed URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Feed, error)
}

// HTTPFetcher fetches feeds over HTTP and parses them with gofeed.
type HTTPFetcher struct {
	client *http.Client
	parser *gofeed.Parser
}

// NewHTTPFetcher builds a fetcher with the given timeout; zero means
// DefaultTimeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout},
		parser: gofeed.NewParser(),
	}
}

// Fetch downloads and parses one feed URL.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed %s: HTTP %d", url, resp.StatusCode)
	}

	parsed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", url, err)
	}

	out := &Feed{Title: parsed.Title}
	for _, item := range parsed.Items {
		out.Items = append(out.Items, convertItem(item))
	}
	return out, nil
}

func convertItem(item *gofeed.Item) Item {
	content := item.Content
	if content == "" {
		content = item.Description
	}

	var published time.Time
	if item.PublishedParsed != nil {
		published = *item.PublishedParsed
	}

	converted := Item{
		Title:     strings.TrimSpace(item.Title),
		Link:      strings.TrimSpace(item.Link),
		GUID:      strings.TrimSpace(item.GUID),
		Content:   content,
		Published: published,
	}

	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		converted.Enclosures = append(converted.Enclosures, Enclosure{URL: enc.URL, Type: enc.Type})
	}

	// media:content often carries the lead image on feeds that skip
	// enclosures.
	if media, ok := item.Extensions["media"]; ok {
		for _, ext := range media["content"] {
			if u := ext.Attrs["url"]; u != "" {
				converted.Enclosures = append(converted.Enclosures, Enclosure{
					URL:  u,
					Type: ext.Attrs["type"],
				})
			}
		}
	}

	return converted
}
