// Package images resolves a featured image for a published article from
// feed enclosures, source-page metadata, body markup, or a configured
// fallback, and sideloads the winning candidate.
package images

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/jonathan/news-fetcher/internal/feed"
	"github.com/jonathan/news-fetcher/internal/fetch"
)

// Sideloader downloads an image and attaches it to an article,
// returning the attachment id.
type Sideloader interface {
	Sideload(ctx context.Context, imageURL string, articleID uuid.UUID) (uuid.UUID, error)
}

// Resolver walks the image candidate chain for an article.
type Resolver struct {
	sideloader Sideloader
	fetchPage  func(ctx context.Context, url string) (string, error)
	fallback   string
}

// NewResolver builds a resolver. fallbackURL may be empty, which
// removes the last candidate from the chain.
func NewResolver(sideloader Sideloader, fallbackURL string) *Resolver {
	return &Resolver{
		sideloader: sideloader,
		fetchPage: func(ctx context.Context, url string) (string, error) {
			result, err := fetch.URL(ctx, url, nil)
			if err != nil {
				return "", err
			}
			return result.HTML, nil
		},
		fallback: fallbackURL,
	}
}

// Resolve tries each candidate in order until one sideloads: image
// enclosures, Open Graph and Twitter metadata from the source page, the
// first img in the body, then the fallback. A candidate that fails to
// download or attach is discarded and the next is tried. Returns the
// winning URL and attachment id, or an error when every candidate
// fails.
func (r *Resolver) Resolve(ctx context.Context, articleID uuid.UUID, enclosures []feed.Enclosure, pageURL, bodyHTML string) (string, uuid.UUID, error) {
	var tried int
	for _, candidate := range r.candidates(ctx, enclosures, pageURL, bodyHTML) {
		if candidate == "" {
			continue
		}
		tried++
		attachmentID, err := r.sideloader.Sideload(ctx, candidate, articleID)
		if err != nil {
			continue
		}
		return candidate, attachmentID, nil
	}
	return "", uuid.Nil, fmt.Errorf("no usable image among %d candidates", tried)
}

func (r *Resolver) candidates(ctx context.Context, enclosures []feed.Enclosure, pageURL, bodyHTML string) []string {
	var out []string

	for _, enc := range enclosures {
		if enc.IsImage() {
			out = append(out, enc.URL)
		}
	}

	if pageURL != "" {
		if html, err := r.fetchPage(ctx, pageURL); err == nil {
			out = append(out, metaImages(html)...)
		}
	}

	if img := firstBodyImage(bodyHTML); img != "" {
		out = append(out, img)
	}

	if r.fallback != "" {
		out = append(out, r.fallback)
	}

	return out
}

// metaImages extracts OG/Twitter/link-rel image URLs from a page, in
// preference order.
func metaImages(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var out []string
	add := func(value string, ok bool) {
		value = strings.TrimSpace(value)
		if ok && value != "" {
			out = append(out, value)
		}
	}

	add(doc.Find(`meta[property="og:image"]`).First().Attr("content"))
	add(doc.Find(`meta[name="twitter:image"]`).First().Attr("content"))
	add(doc.Find(`link[rel="image_src"]`).First().Attr("href"))
	return out
}

// firstBodyImage returns the src of the first img in an HTML fragment.
func firstBodyImage(bodyHTML string) string {
	if bodyHTML == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(bodyHTML))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img").First().Attr("src")
	return strings.TrimSpace(src)
}
