package images

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AttachmentStore records a sideloaded image against an article.
type AttachmentStore interface {
	SetFeaturedImage(ctx context.Context, articleID, attachmentID uuid.UUID, imageURL string) error
}

const (
	// maxImageBytes caps how much of a candidate we are willing to pull
	// down while verifying it.
	maxImageBytes = 10 << 20

	downloadTimeout = 20 * time.Second

	userAgent = "Mozilla/5.0 (compatible; NewsFetcher/1.0)"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// HTTPSideloader downloads image candidates over HTTP, verifies they
// are actually images, and records them through an AttachmentStore.
type HTTPSideloader struct {
	client *http.Client
	store  AttachmentStore
}

func NewHTTPSideloader(store AttachmentStore) *HTTPSideloader {
	return &HTTPSideloader{
		client: &http.Client{Timeout: downloadTimeout},
		store:  store,
	}
}

// Sideload fetches the image, checks the content type, and attaches it
// to the article under a fresh attachment id.
func (s *HTTPSideloader) Sideload(ctx context.Context, imageURL string, articleID uuid.UUID) (uuid.UUID, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to build image request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return uuid.Nil, fmt.Errorf("image download returned status %d", resp.StatusCode)
	}

	if !looksLikeImage(resp.Header.Get("Content-Type"), imageURL) {
		return uuid.Nil, fmt.Errorf("candidate %s is not an image", imageURL)
	}

	// Drain up to the cap so the connection can be reused; the bytes
	// themselves are stored by the attachment backend, not here.
	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxImageBytes)); err != nil {
		return uuid.Nil, fmt.Errorf("failed to read image body: %w", err)
	}

	attachmentID := uuid.New()
	if err := s.store.SetFeaturedImage(ctx, articleID, attachmentID, imageURL); err != nil {
		return uuid.Nil, fmt.Errorf("failed to record featured image: %w", err)
	}
	return attachmentID, nil
}

// looksLikeImage accepts an image/* content type, or falls back to the
// URL extension when the server sends a generic type.
func looksLikeImage(contentType, imageURL string) bool {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	if strings.HasPrefix(contentType, "image/") {
		return true
	}
	if contentType != "" && contentType != "application/octet-stream" && contentType != "binary/octet-stream" {
		return false
	}
	ext := strings.ToLower(path.Ext(stripQuery(imageURL)))
	return imageExtensions[ext]
}

func stripQuery(raw string) string {
	if idx := strings.IndexAny(raw, "?#"); idx >= 0 {
		return raw[:idx]
	}
	return raw
}
