package seo

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/jonathan/news-fetcher/internal/fetch"
	"github.com/jonathan/news-fetcher/internal/llm"
)

// Field limits for derived metadata.
const (
	MaxTitleLength       = 60
	MaxDescriptionLength = 158
	descriptionTarget    = 150
	maxFocusWords        = 7
	maxBodyChars         = 4000
)

// FallbackFocus is used when nothing usable can be extracted from the
// title.
const FallbackFocus = "technology news"

// Suggestion is the derived SEO metadata for one article. It is held as
// a pending suggestion until applied.
type Suggestion struct {
	Focus       string `json:"focus"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Slug        string `json:"slug"`
}

// suggestionSchema validates the strict-JSON contract with the LLM:
// exactly these four string keys.
const suggestionSchema = `{
	"type": "object",
	"required": ["focus", "title", "description", "slug"],
	"properties": {
		"focus":       {"type": "string"},
		"title":       {"type": "string"},
		"description": {"type": "string"},
		"slug":        {"type": "string"}
	}
}`

var focusInvalid = regexp.MustCompile(`[^a-z0-9\s-]`)

// Deriver produces SEO suggestions, preferring a structured LLM call
// and falling back field-by-field to local heuristics.
type Deriver struct {
	client       llm.Client
	schema       *gojsonschema.Schema
	prependFocus bool
}

// NewDeriver builds a deriver. A nil client means every field comes
// from the heuristic path. prependFocus controls whether slugs get the
// focus phrase prepended during normalization.
func NewDeriver(client llm.Client, prependFocus bool) *Deriver {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(suggestionSchema))
	if err != nil {
		// The schema is a compile-time constant; failing to parse it is
		// a programming error.
		panic(fmt.Sprintf("seo: invalid suggestion schema: %v", err))
	}
	return &Deriver{client: client, schema: schema, prependFocus: prependFocus}
}

// Derive returns SEO metadata for an article. Every field is non-empty
// and satisfies the length invariants regardless of whether the LLM
// call succeeds.
func (d *Deriver) Derive(ctx context.Context, title, bodyHTML, sourceURL string) Suggestion {
	plain := fetch.PlainText(bodyHTML)
	if len(plain) > maxBodyChars {
		plain = plain[:maxBodyChars]
	}

	raw := d.callLLM(ctx, title, plain, sourceURL)

	focus := NormalizeFocus(firstListEntry(raw.Focus))
	if focus == "" {
		focus = NormalizeFocus(title)
	}
	if focus == "" {
		focus = FallbackFocus
	}

	seoTitle := strings.TrimSpace(raw.Title)
	if seoTitle == "" {
		seoTitle = strings.TrimSpace(title)
	}
	if seoTitle == "" {
		seoTitle = focus
	}
	if !strings.HasPrefix(strings.ToLower(seoTitle), focus) {
		seoTitle = focus + " - " + seoTitle
	}
	seoTitle = SmartTruncate(seoTitle, MaxTitleLength)

	desc := strings.TrimSpace(raw.Description)
	if desc == "" {
		source := plain
		if source == "" {
			source = title
		}
		desc = SmartTruncate(source, descriptionTarget)
	}
	if !strings.Contains(strings.ToLower(desc), focus) {
		desc = focus + ": " + desc
	}
	desc = SmartTruncate(desc, MaxDescriptionLength)

	slugSource := strings.TrimSpace(raw.Slug)
	if slugSource == "" {
		slugSource = focus + " " + title
	}
	slug := NormalizeSlug(slugSource, focus, d.prependFocus)
	if slug == "" {
		slug = NormalizeSlug(focus, focus, false)
	}

	return Suggestion{
		Focus:       focus,
		Title:       seoTitle,
		Description: desc,
		Slug:        slug,
	}
}

// callLLM attempts the structured-output path. Any transport, schema,
// or parse failure returns a zero Suggestion so every field falls back
// independently.
func (d *Deriver) callLLM(ctx context.Context, title, plain, sourceURL string) Suggestion {
	if d.client == nil {
		return Suggestion{}
	}

	req := llm.CompletionRequest{
		System: "You are an SEO assistant for a news site. Produce JSON with exactly these keys: " +
			`"focus" (1-3 simple phrases, comma-separated, ASCII only, no quotes or emojis), ` +
			`"title" (about 55-60 characters, beginning with the first focus phrase if natural), ` +
			`"description" (about 150-158 characters, including the first focus phrase), ` +
			`"slug" (lowercase hyphenated, at most 75 characters). Return JSON only.`,
		User:        fmt.Sprintf("Post Title: %s\nSource: %s\nContent (trimmed):\n%s", title, sourceURL, plain),
		MaxTokens:   320,
		Temperature: 0.2,
	}

	text, err := d.client.CompleteJSON(ctx, req)
	if err != nil || strings.TrimSpace(text) == "" {
		return Suggestion{}
	}

	result, err := d.schema.Validate(gojsonschema.NewStringLoader(text))
	if err != nil || !result.Valid() {
		return Suggestion{}
	}

	var out Suggestion
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return Suggestion{}
	}
	return out
}

// NormalizeFocus reduces text to a focus phrase: tags stripped,
// entities decoded, lowercase ASCII, punctuation dropped, at most
// seven words. Returns empty when nothing survives.
func NormalizeFocus(text string) string {
	s := fetch.PlainText(text)
	s = html.UnescapeString(s)
	s = strings.NewReplacer(
		"‘", "'", "’", "'",
		"“", `"`, "”", `"`,
		"–", "-", "—", "-",
	).Replace(s)
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "&amp;", " and ")
	s = strings.ReplaceAll(s, "&", " and ")
	s = focusInvalid.ReplaceAllString(s, " ")

	words := strings.Fields(s)
	if len(words) > maxFocusWords {
		words = words[:maxFocusWords]
	}
	return strings.Join(words, " ")
}

// SmartTruncate shortens text to at most limit characters, cutting at a
// word boundary. Whitespace is collapsed first.
func SmartTruncate(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= limit {
		return text
	}
	cut := text[:limit]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " -:,.")
}

// firstListEntry returns the first comma-separated entry of a phrase
// list.
func firstListEntry(text string) string {
	if idx := strings.Index(text, ","); idx >= 0 {
		return text[:idx]
	}
	return text
}
