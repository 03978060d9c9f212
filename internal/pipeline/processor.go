// Package pipeline provides the high-level orchestration for fetching
// feeds, deduplicating items, and publishing expanded articles.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/news-fetcher/internal/db"
	"github.com/jonathan/news-fetcher/internal/feed"
	"github.com/jonathan/news-fetcher/internal/fetch"
	"github.com/jonathan/news-fetcher/internal/ingestion"
	"github.com/jonathan/news-fetcher/internal/runlog"
	"github.com/jonathan/news-fetcher/internal/seo"
)

// Repository is the persistence surface the pipeline needs. *db.DB
// satisfies it.
type Repository interface {
	FindByContentHash(ctx context.Context, hash string) (uuid.UUID, error)
	CountMissingHashes(ctx context.Context, hashes []string) (int, error)
	InsertArticle(ctx context.Context, input db.NewArticle) (uuid.UUID, error)
	GetArticle(ctx context.Context, id uuid.UUID) (*db.Article, error)
	UpdateBody(ctx context.Context, id uuid.UUID, body string, expanded bool) error
	ApplySEO(ctx context.Context, id uuid.UUID, fields db.SEOFields) error
	SaveSuggestion(ctx context.Context, id uuid.UUID, focus, title, desc, slug string) error
	SetTags(ctx context.Context, id uuid.UUID, tags []string) error
	ListRecent(ctx context.Context, limit int) ([]db.ArticleSummary, error)
	ListWithoutImage(ctx context.Context, limit int) ([]db.ArticleSummary, error)
}

// Expander rewrites a short excerpt into a full article body. An empty
// result means the expansion was skipped or failed softly.
type Expander interface {
	Expand(ctx context.Context, title, sourceURL, rawText string) string
}

// Deriver produces SEO metadata for a stored article.
type Deriver interface {
	Derive(ctx context.Context, title, bodyHTML, sourceURL string) seo.Suggestion
}

// ImageResolver picks and attaches a featured image.
type ImageResolver interface {
	Resolve(ctx context.Context, articleID uuid.UUID, enclosures []feed.Enclosure, pageURL, bodyHTML string) (string, uuid.UUID, error)
}

// Run carries the per-run log sink and cooperative stop signal into
// the processor.
type Run struct {
	Log  *runlog.Logger
	Stop func() bool
}

func (r *Run) logf(format string, args ...any) {
	if r != nil && r.Log != nil {
		r.Log.Logf(format, args...)
	}
}

func (r *Run) stopped() bool {
	return r != nil && r.Stop != nil && r.Stop()
}

// Config controls per-run processing behavior.
type Config struct {
	// ItemsPerFeed caps how many items are considered per feed, newest
	// first. Clamped to [1, 20].
	ItemsPerFeed int

	// ExpandThreshold is the word count below which an item body is
	// sent to the expansion engine. Never below 200.
	ExpandThreshold int

	// AutoSEO applies derived metadata directly. When false the
	// metadata is stored as a suggestion for manual review instead.
	AutoSEO bool

	// ForceOptimize runs the on-page optimizer over bodies that get
	// SEO metadata applied.
	ForceOptimize bool

	// AutoTags enables frequency-based tag suggestion per item.
	AutoTags bool

	// ResolveImages enables featured image resolution per item.
	ResolveImages bool

	// MaxTags bounds the number of auto-suggested tags.
	MaxTags int
}

func DefaultProcessorConfig() Config {
	return Config{
		ItemsPerFeed:    5,
		ExpandThreshold: 800,
		AutoSEO:         true,
		ForceOptimize:   true,
		AutoTags:        true,
		ResolveImages:   true,
		MaxTags:         5,
	}
}

func (c Config) clamped() Config {
	if c.ItemsPerFeed < 1 {
		c.ItemsPerFeed = 1
	}
	if c.ItemsPerFeed > 20 {
		c.ItemsPerFeed = 20
	}
	if c.ExpandThreshold < 200 {
		c.ExpandThreshold = 200
	}
	if c.MaxTags < 1 {
		c.MaxTags = 5
	}
	return c
}

// Processor runs one feed end to end: variant resolution, fetch,
// dedup, expansion, SEO, tags, and image sideloading.
type Processor struct {
	repo      Repository
	fetcher   feed.Fetcher
	expander  Expander
	deriver   Deriver
	optimizer *seo.Optimizer
	images    ImageResolver
	cfg       Config
}

// NewProcessor wires the processing dependencies. expander, deriver,
// optimizer, and images may be nil, which disables those stages.
func NewProcessor(repo Repository, fetcher feed.Fetcher, expander Expander, deriver Deriver, optimizer *seo.Optimizer, images ImageResolver, cfg Config) *Processor {
	return &Processor{
		repo:      repo,
		fetcher:   fetcher,
		expander:  expander,
		deriver:   deriver,
		optimizer: optimizer,
		images:    images,
		cfg:       cfg.clamped(),
	}
}

// ProcessFeed ingests one feed URL and returns how many new articles
// were published. Item-level failures are logged and skipped; only a
// feed that cannot be fetched at all returns an error.
func (p *Processor) ProcessFeed(ctx context.Context, feedURL string, run *Run) (int, error) {
	parsed, resolvedURL, err := p.fetchWithVariants(ctx, feedURL, run)
	if err != nil {
		return 0, err
	}

	items := parsed.Items
	if len(items) > p.cfg.ItemsPerFeed {
		items = items[:p.cfg.ItemsPerFeed]
	}
	run.logf("Feed %q resolved via %s: %d items (processing %d)", parsed.Title, resolvedURL, len(parsed.Items), len(items))

	published := 0
	for _, item := range items {
		if run.stopped() {
			run.logf("Stop requested, abandoning remaining items for %s", resolvedURL)
			break
		}
		if err := ctx.Err(); err != nil {
			return published, err
		}
		if p.processItem(ctx, item, run) {
			published++
		}
	}

	run.logf("Feed %s done: %d published", resolvedURL, published)
	return published, nil
}

// fetchWithVariants tries the known host variants of a feed URL in
// order and returns the first parseable feed.
func (p *Processor) fetchWithVariants(ctx context.Context, feedURL string, run *Run) (*feed.Feed, string, error) {
	var lastErr error
	for _, variant := range feed.Variants(feedURL) {
		run.logf("Fetching feed: %s", variant)
		parsed, err := p.fetcher.Fetch(ctx, variant)
		if err != nil {
			run.logf("Feed fetch failed for %s: %v", variant, err)
			lastErr = err
			continue
		}
		return parsed, variant, nil
	}
	return nil, "", fmt.Errorf("all feed variants failed for %s: %w", feedURL, lastErr)
}

// processItem publishes a single item. Returns true when a new article
// was inserted. Panics from any stage are contained to the item.
func (p *Processor) processItem(ctx context.Context, item feed.Item, run *Run) (published bool) {
	defer func() {
		if r := recover(); r != nil {
			run.logf("Item %q aborted: %v", item.Title, r)
			published = false
		}
	}()

	if err := ingestion.ValidateIdentity(item.GUID, item.Link); err != nil {
		run.logf("Skipping %q: %v", item.Title, err)
		return false
	}

	hash := ingestion.ItemHash(item.GUID, item.Link)
	existing, err := p.repo.FindByContentHash(ctx, hash)
	if err != nil {
		run.logf("Dedup lookup failed for %q: %v", item.Title, err)
		return false
	}
	if existing != uuid.Nil {
		run.logf("Duplicate, skipping: %s", item.Title)
		return false
	}

	// The raw item goes in first so the hash is on record before any
	// slow step; a crash mid-expansion leaves a deduplicatable row
	// instead of repeating the LLM call on the next run.
	input := db.NewArticle{
		Title:       strings.TrimSpace(item.Title),
		Body:        item.Content,
		SourceURL:   item.Link,
		SourceGUID:  item.GUID,
		ContentHash: hash,
		Status:      db.StatusPublish,
	}
	if !item.Published.IsZero() {
		publishedAt := item.Published
		input.PublishedAt = &publishedAt
	}

	id, err := p.repo.InsertArticle(ctx, input)
	if err != nil {
		run.logf("Insert failed for %q: %v", item.Title, err)
		return false
	}
	run.logf("Published: %s", item.Title)

	body := item.Content
	if p.expander != nil && fetch.CountWords(body) < p.cfg.ExpandThreshold {
		run.logf("Expanding short item: %s", item.Title)
		if out := p.expander.Expand(ctx, item.Title, item.Link, fetch.PlainText(body)); out == "" {
			run.logf("Expansion produced no output for %q, keeping original body", item.Title)
		} else if err := p.repo.UpdateBody(ctx, id, out, true); err != nil {
			run.logf("Failed to store expansion for %q: %v", item.Title, err)
		} else {
			body = out
		}
	}

	body = p.applySEO(ctx, id, item, body, run)
	p.applyTags(ctx, id, body, run)
	p.resolveImage(ctx, id, item, body, run)

	return true
}

// applySEO derives metadata and either applies it or parks it as a
// suggestion. Returns the (possibly optimized) body.
func (p *Processor) applySEO(ctx context.Context, id uuid.UUID, item feed.Item, body string, run *Run) string {
	if p.deriver == nil {
		return body
	}

	sugg := p.deriver.Derive(ctx, item.Title, body, item.Link)

	if !p.cfg.AutoSEO {
		if err := p.repo.SaveSuggestion(ctx, id, sugg.Focus, sugg.Title, sugg.Description, sugg.Slug); err != nil {
			run.logf("Failed to save SEO suggestion for %q: %v", item.Title, err)
		} else {
			run.logf("SEO suggestion saved for review: %s", item.Title)
		}
		return body
	}

	if p.cfg.ForceOptimize && p.optimizer != nil {
		if optimized := p.optimizer.Optimize(body, sugg.Focus); optimized != body {
			if err := p.repo.UpdateBody(ctx, id, optimized, false); err != nil {
				run.logf("Failed to persist optimized body for %q: %v", item.Title, err)
			} else {
				body = optimized
			}
		}
	}

	fields := db.SEOFields{
		FocusKeyword:   sugg.Focus,
		SEOTitle:       sugg.Title,
		SEODescription: sugg.Description,
		Slug:           sugg.Slug,
	}
	if err := p.repo.ApplySEO(ctx, id, fields); err != nil {
		run.logf("Failed to apply SEO for %q: %v", item.Title, err)
	} else {
		run.logf("SEO applied: focus=%q slug=%q", sugg.Focus, sugg.Slug)
	}
	return body
}

func (p *Processor) applyTags(ctx context.Context, id uuid.UUID, body string, run *Run) {
	if !p.cfg.AutoTags {
		return
	}
	tags := seo.SuggestTags(body, p.cfg.MaxTags)
	if len(tags) == 0 {
		return
	}
	if err := p.repo.SetTags(ctx, id, tags); err != nil {
		run.logf("Failed to set tags: %v", err)
		return
	}
	run.logf("Tags: %s", strings.Join(tags, ", "))
}

func (p *Processor) resolveImage(ctx context.Context, id uuid.UUID, item feed.Item, body string, run *Run) {
	if !p.cfg.ResolveImages || p.images == nil {
		return
	}
	url, _, err := p.images.Resolve(ctx, id, item.Enclosures, item.Link, body)
	if err != nil {
		run.logf("No featured image for %q: %v", item.Title, err)
		return
	}
	run.logf("Featured image set: %s", url)
}
