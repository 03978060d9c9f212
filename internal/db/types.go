package db

import (
	"time"

	"github.com/google/uuid"
)

// Article statuses mirror the repository's publication workflow. Dedup
// lookups are status-agnostic so drafts and trashed items still block
// re-ingestion.
const (
	StatusPublish = "publish"
	StatusDraft   = "draft"
	StatusTrash   = "trash"
)

// Article is one published (or pending) content record. ContentHash,
// SourceURL and SourceGUID are set at insert and never mutated;
// SlugLocked transitions false to true exactly once.
type Article struct {
	ID          uuid.UUID
	Title       string
	Body        string
	SourceURL   string
	SourceGUID  string
	ContentHash string
	Status      string
	PublishedAt *time.Time

	AISlug     string
	SlugLocked bool

	FocusKeyword   string
	SEOTitle       string
	SEODescription string

	SuggestFocus string
	SuggestTitle string
	SuggestDesc  string
	SuggestSlug  string

	FeaturedImageID  *uuid.UUID
	FeaturedImageURL string
	Tags             []string
	LLMExpanded      bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewArticle carries the fields persisted atomically at insert time.
type NewArticle struct {
	Title       string
	Body        string
	SourceURL   string
	SourceGUID  string
	ContentHash string
	Status      string
	PublishedAt *time.Time
}

// SEOFields is the metadata written by the SEO apply step.
type SEOFields struct {
	FocusKeyword   string
	SEOTitle       string
	SEODescription string
	Slug           string
}

// ArticleSummary is the listing row for admin-facing views.
type ArticleSummary struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	SourceURL string    `json:"source_url"`
	WordCount int       `json:"word_count"`
	CreatedAt time.Time `json:"created_at"`
}
