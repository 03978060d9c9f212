package pipeline

import (
	"context"
	"fmt"
)

// BulkRewrite re-expands recent articles whose body is still under the
// expansion threshold, typically after raising the word targets.
// Returns how many articles were rewritten.
func (p *Processor) BulkRewrite(ctx context.Context, limit int, run *Run) (int, error) {
	if p.expander == nil {
		return 0, fmt.Errorf("expansion is not configured")
	}

	summaries, err := p.repo.ListRecent(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list articles: %w", err)
	}

	rewritten := 0
	for _, summary := range summaries {
		if run.stopped() {
			run.logf("Stop requested, %d article(s) rewritten", rewritten)
			break
		}
		if summary.WordCount >= p.cfg.ExpandThreshold {
			continue
		}

		article, err := p.repo.GetArticle(ctx, summary.ID)
		if err != nil {
			run.logf("Skipping %s: %v", summary.ID, err)
			continue
		}

		run.logf("Rewriting (%d words): %s", summary.WordCount, article.Title)
		out := p.expander.Expand(ctx, article.Title, article.SourceURL, article.Body)
		if out == "" {
			run.logf("Expansion produced no output for %q, left unchanged", article.Title)
			continue
		}
		if err := p.repo.UpdateBody(ctx, article.ID, out, true); err != nil {
			run.logf("Failed to store rewrite for %q: %v", article.Title, err)
			continue
		}
		rewritten++
	}

	run.logf("Bulk rewrite done: %d article(s) updated", rewritten)
	return rewritten, nil
}

// BackfillImages attaches featured images to stored articles that have
// none, walking the same candidate chain as ingestion (minus
// enclosures, which are not retained). Returns how many articles
// gained an image.
func (p *Processor) BackfillImages(ctx context.Context, limit int, run *Run) (int, error) {
	if p.images == nil {
		return 0, fmt.Errorf("image resolution is not configured")
	}

	summaries, err := p.repo.ListWithoutImage(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list articles without images: %w", err)
	}

	attached := 0
	for _, summary := range summaries {
		if run.stopped() {
			run.logf("Stop requested, %d image(s) attached", attached)
			break
		}

		article, err := p.repo.GetArticle(ctx, summary.ID)
		if err != nil {
			run.logf("Skipping %s: %v", summary.ID, err)
			continue
		}

		url, _, err := p.images.Resolve(ctx, article.ID, nil, article.SourceURL, article.Body)
		if err != nil {
			run.logf("No image found for %q: %v", article.Title, err)
			continue
		}
		run.logf("Image attached to %q: %s", article.Title, url)
		attached++
	}

	run.logf("Image backfill done: %d article(s) updated", attached)
	return attached, nil
}
