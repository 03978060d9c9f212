// Package seo derives and normalizes SEO metadata for published
// articles: focus phrase, title, description, slug, tags, and the
// post-publish content optimizer.
package seo

import (
	"regexp"
	"strings"
)

// MaxSlugLength caps generated slugs.
const MaxSlugLength = 75

var (
	slugInvalid   = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpaces    = regexp.MustCompile(`[\s_]+`)
	slugHyphenRun = regexp.MustCompile(`-{2,}`)
)

// Slugify converts arbitrary text into a basic lowercase hyphenated
// slug. It does not enforce the length cap or token rules; that is
// NormalizeSlug's job.
func Slugify(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.ReplaceAll(s, "&amp;", " and ")
	s = strings.ReplaceAll(s, "&", " and ")
	s = slugInvalid.ReplaceAllString(s, " ")
	s = slugSpaces.ReplaceAllString(s, "-")
	s = slugHyphenRun.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// NormalizeSlug produces the final slug for an article. Steps, in
// order: slugify; optionally prepend the focus phrase unless the slug
// already starts with or contains it; split on hyphens dropping empty
// tokens; de-duplicate tokens preserving first occurrence; rebuild by
// appending whole tokens while the result stays within MaxSlugLength,
// stopping before any token would exceed the cap; trim trailing
// hyphens and underscores.
//
// The function is idempotent: normalizing an already-normalized slug
// returns it unchanged.
func NormalizeSlug(raw, focus string, prependFocus bool) string {
	slug := Slugify(raw)

	if prependFocus {
		if focusSlug := Slugify(focus); focusSlug != "" &&
			!strings.HasPrefix(slug, focusSlug) &&
			!strings.Contains(slug, focusSlug) {
			if slug == "" {
				slug = focusSlug
			} else {
				slug = focusSlug + "-" + slug
			}
		}
	}

	seen := map[string]bool{}
	var tokens []string
	for _, tok := range strings.Split(slug, "-") {
		if tok == "" || seen[tok] {
			continue
		}
		seen[tok] = true
		tokens = append(tokens, tok)
	}

	var b strings.Builder
	for _, tok := range tokens {
		next := len(tok)
		if b.Len() > 0 {
			next += b.Len() + 1
		}
		if next > MaxSlugLength {
			break
		}
		if b.Len() > 0 {
			b.WriteString("-")
		}
		b.WriteString(tok)
	}

	return strings.TrimRight(b.String(), "-_")
}
