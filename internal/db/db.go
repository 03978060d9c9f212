// Package db provides PostgreSQL access for the published-article
// content repository.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database.
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// EnsureSchema creates the articles table and its indexes when absent.
// The unique index on content_hash is what makes a lost dedup race
// self-detectable: the second insert fails instead of duplicating.
func (db *DB) EnsureSchema(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS articles (
			id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			title            TEXT NOT NULL,
			body             TEXT NOT NULL DEFAULT '',
			source_url       TEXT NOT NULL DEFAULT '',
			source_guid      TEXT NOT NULL DEFAULT '',
			content_hash     TEXT NOT NULL,
			status           TEXT NOT NULL DEFAULT 'publish',
			published_at     TIMESTAMPTZ,
			ai_slug          TEXT NOT NULL DEFAULT '',
			slug_locked      BOOLEAN NOT NULL DEFAULT FALSE,
			focus_keyword    TEXT NOT NULL DEFAULT '',
			seo_title        TEXT NOT NULL DEFAULT '',
			seo_description  TEXT NOT NULL DEFAULT '',
			suggest_focus    TEXT NOT NULL DEFAULT '',
			suggest_title    TEXT NOT NULL DEFAULT '',
			suggest_desc     TEXT NOT NULL DEFAULT '',
			suggest_slug     TEXT NOT NULL DEFAULT '',
			featured_image_id  UUID,
			featured_image_url TEXT NOT NULL DEFAULT '',
			tags             TEXT[] NOT NULL DEFAULT '{}',
			llm_expanded     BOOLEAN NOT NULL DEFAULT FALSE,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS articles_content_hash_key
			ON articles (content_hash);
		CREATE INDEX IF NOT EXISTS articles_created_at_idx
			ON articles (created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
