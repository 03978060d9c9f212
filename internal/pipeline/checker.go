package pipeline

import (
	"context"
	"fmt"

	"github.com/jonathan/news-fetcher/internal/ingestion"
)

// CheckResult summarizes a non-destructive feed probe.
type CheckResult struct {
	FeedURL     string `json:"feed_url"`
	ResolvedURL string `json:"resolved_url"`
	Title       string `json:"title"`
	Items       int    `json:"items"`
	New         int    `json:"new"`
}

// CheckFeed probes a feed without publishing anything: it resolves the
// working variant, hashes the newest items, and counts how many are
// not yet stored. New is capped at quota, the number a run would
// actually take.
func (p *Processor) CheckFeed(ctx context.Context, feedURL string) (CheckResult, error) {
	parsed, resolvedURL, err := p.fetchWithVariants(ctx, feedURL, nil)
	if err != nil {
		return CheckResult{}, err
	}

	quota := p.cfg.ItemsPerFeed
	items := parsed.Items
	if len(items) > quota {
		items = items[:quota]
	}

	hashes := make([]string, 0, len(items))
	for _, item := range items {
		if ingestion.ValidateIdentity(item.GUID, item.Link) != nil {
			continue
		}
		hashes = append(hashes, ingestion.ItemHash(item.GUID, item.Link))
	}

	missing, err := p.repo.CountMissingHashes(ctx, hashes)
	if err != nil {
		return CheckResult{}, fmt.Errorf("failed to count new items: %w", err)
	}
	if missing > quota {
		missing = quota
	}

	return CheckResult{
		FeedURL:     feedURL,
		ResolvedURL: resolvedURL,
		Title:       parsed.Title,
		Items:       len(parsed.Items),
		New:         missing,
	}, nil
}
