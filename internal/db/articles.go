package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrSlugLocked is returned when a deliberate slug assignment targets an
// article whose slug was already locked.
var ErrSlugLocked = errors.New("article slug is locked")

// ErrArticleNotFound is returned when an article id matches no row.
var ErrArticleNotFound = errors.New("article not found")

// FindByContentHash returns the id of any article carrying the hash,
// regardless of status, or uuid.Nil when none exists.
func (db *DB) FindByContentHash(ctx context.Context, hash string) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`SELECT id FROM articles WHERE content_hash = $1 LIMIT 1`,
		hash,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to look up content hash: %w", err)
	}
	return id, nil
}

// CountMissingHashes reports how many of the given hashes have no
// stored article. It powers the cheap "new items" probe before a run.
func (db *DB) CountMissingHashes(ctx context.Context, hashes []string) (int, error) {
	if len(hashes) == 0 {
		return 0, nil
	}
	var present int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM articles WHERE content_hash = ANY($1)`,
		hashes,
	).Scan(&present)
	if err != nil {
		return 0, fmt.Errorf("failed to count stored hashes: %w", err)
	}
	return len(hashes) - present, nil
}

// InsertArticle creates an article. The content hash, source URL and
// GUID are persisted in the same statement as the row itself, so a
// crash after insert can never reintroduce a duplicate on retry.
func (db *DB) InsertArticle(ctx context.Context, input NewArticle) (uuid.UUID, error) {
	status := input.Status
	if status == "" {
		status = StatusPublish
	}
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`INSERT INTO articles (title, body, source_url, source_guid, content_hash, status, published_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		input.Title, input.Body, input.SourceURL, input.SourceGUID, input.ContentHash, status, input.PublishedAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert article: %w", err)
	}
	return id, nil
}

// GetArticle retrieves one article by id.
func (db *DB) GetArticle(ctx context.Context, id uuid.UUID) (*Article, error) {
	var a Article
	err := db.pool.QueryRow(ctx,
		`SELECT id, title, body, source_url, source_guid, content_hash, status, published_at,
		        ai_slug, slug_locked, focus_keyword, seo_title, seo_description,
		        suggest_focus, suggest_title, suggest_desc, suggest_slug,
		        featured_image_id, featured_image_url, tags, llm_expanded,
		        created_at, updated_at
		 FROM articles WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.Title, &a.Body, &a.SourceURL, &a.SourceGUID, &a.ContentHash, &a.Status, &a.PublishedAt,
		&a.AISlug, &a.SlugLocked, &a.FocusKeyword, &a.SEOTitle, &a.SEODescription,
		&a.SuggestFocus, &a.SuggestTitle, &a.SuggestDesc, &a.SuggestSlug,
		&a.FeaturedImageID, &a.FeaturedImageURL, &a.Tags, &a.LLMExpanded,
		&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrArticleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	return &a, nil
}

// UpdateBody replaces the article body, marking it LLM-expanded when
// the content came from the expansion engine.
func (db *DB) UpdateBody(ctx context.Context, id uuid.UUID, body string, expanded bool) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE articles
		 SET body = $1, llm_expanded = (llm_expanded OR $2), updated_at = NOW()
		 WHERE id = $3`,
		body, expanded, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update body: %w", err)
	}
	return nil
}

// ApplySEO writes SEO metadata onto an article. The slug is only
// written when unlocked, and the write locks it; a locked slug is never
// auto-adjusted again.
func (db *DB) ApplySEO(ctx context.Context, id uuid.UUID, fields SEOFields) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE articles
		 SET focus_keyword = $1,
		     seo_title = $2,
		     seo_description = $3,
		     ai_slug = CASE WHEN slug_locked OR $4 = '' THEN ai_slug ELSE $4 END,
		     slug_locked = slug_locked OR $4 <> '',
		     updated_at = NOW()
		 WHERE id = $5`,
		fields.FocusKeyword, fields.SEOTitle, fields.SEODescription, fields.Slug, id,
	)
	if err != nil {
		return fmt.Errorf("failed to apply SEO fields: %w", err)
	}
	return nil
}

// SaveSuggestion stores a pending SEO suggestion awaiting apply.
func (db *DB) SaveSuggestion(ctx context.Context, id uuid.UUID, focus, title, desc, slug string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE articles
		 SET suggest_focus = $1, suggest_title = $2, suggest_desc = $3, suggest_slug = $4,
		     updated_at = NOW()
		 WHERE id = $5`,
		focus, title, desc, slug, id,
	)
	if err != nil {
		return fmt.Errorf("failed to save SEO suggestion: %w", err)
	}
	return nil
}

// ApplySuggestion promotes the stored suggestion into the live SEO
// fields and clears it. Callers re-read the article afterwards.
func (db *DB) ApplySuggestion(ctx context.Context, id uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE articles
		 SET focus_keyword = CASE WHEN suggest_focus <> '' THEN suggest_focus ELSE focus_keyword END,
		     seo_title = CASE WHEN suggest_title <> '' THEN suggest_title ELSE seo_title END,
		     seo_description = CASE WHEN suggest_desc <> '' THEN suggest_desc ELSE seo_description END,
		     ai_slug = CASE WHEN slug_locked OR suggest_slug = '' THEN ai_slug ELSE suggest_slug END,
		     slug_locked = slug_locked OR suggest_slug <> '',
		     suggest_focus = '', suggest_title = '', suggest_desc = '', suggest_slug = '',
		     updated_at = NOW()
		 WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to apply SEO suggestion: %w", err)
	}
	return nil
}

// SetSlug performs a deliberate slug assignment and locks the slug.
// ErrSlugLocked is returned when the slug was locked earlier.
func (db *DB) SetSlug(ctx context.Context, id uuid.UUID, slug string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE articles
		 SET ai_slug = $1, slug_locked = TRUE, updated_at = NOW()
		 WHERE id = $2 AND NOT slug_locked`,
		slug, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set slug: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlugLocked
	}
	return nil
}

// SetFeaturedImage records the sideloaded attachment for an article.
func (db *DB) SetFeaturedImage(ctx context.Context, id, attachmentID uuid.UUID, imageURL string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE articles
		 SET featured_image_id = $1, featured_image_url = $2, updated_at = NOW()
		 WHERE id = $3`,
		attachmentID, imageURL, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set featured image: %w", err)
	}
	return nil
}

// SetTags replaces the article's tag list.
func (db *DB) SetTags(ctx context.Context, id uuid.UUID, tags []string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE articles SET tags = $1, updated_at = NOW() WHERE id = $2`,
		tags, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set tags: %w", err)
	}
	return nil
}

// ListRecent returns up to limit article summaries, newest first.
func (db *DB) ListRecent(ctx context.Context, limit int) ([]ArticleSummary, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, title, status, source_url,
		        array_length(regexp_split_to_array(trim(body), '\s+'), 1),
		        created_at
		 FROM articles
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	var out []ArticleSummary
	for rows.Next() {
		var s ArticleSummary
		var words *int
		if err := rows.Scan(&s.ID, &s.Title, &s.Status, &s.SourceURL, &words, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan article row: %w", err)
		}
		if words != nil {
			s.WordCount = *words
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListPendingSuggestions returns articles still carrying an unreviewed
// SEO suggestion, oldest first.
func (db *DB) ListPendingSuggestions(ctx context.Context, limit int) ([]ArticleSummary, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, title, status, source_url, NULL::int, created_at
		 FROM articles
		 WHERE suggest_focus <> '' OR suggest_title <> '' OR suggest_desc <> '' OR suggest_slug <> ''
		 ORDER BY created_at ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending suggestions: %w", err)
	}
	defer rows.Close()

	var out []ArticleSummary
	for rows.Next() {
		var s ArticleSummary
		var words *int
		if err := rows.Scan(&s.ID, &s.Title, &s.Status, &s.SourceURL, &words, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan article row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListWithoutImage returns published articles lacking a featured image,
// oldest first, for the image backfill pass.
func (db *DB) ListWithoutImage(ctx context.Context, limit int) ([]ArticleSummary, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, title, status, source_url, NULL::int, created_at
		 FROM articles
		 WHERE featured_image_id IS NULL AND status = $1
		 ORDER BY created_at ASC
		 LIMIT $2`,
		StatusPublish, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles without image: %w", err)
	}
	defer rows.Close()

	var out []ArticleSummary
	for rows.Next() {
		var s ArticleSummary
		var words *int
		if err := rows.Scan(&s.ID, &s.Title, &s.Status, &s.SourceURL, &words, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan article row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
