// Package ingestion provides URL canonicalization and content hashing for
// feed item deduplication.
package ingestion

import (
	"net/url"
	"sort"
	"strings"
)

// allowedQueryKeys are the only query parameters that survive
// canonicalization. Everything else (tracking params, session tokens,
// cache busters) is dropped so that query-string noise does not defeat
// deduplication.
var allowedQueryKeys = map[string]bool{
	"id":      true,
	"p":       true,
	"story":   true,
	"article": true,
	"utm_id":  true,
}

// CanonicalURL normalizes a URL to a stable comparison key:
// https scheme, lowercased host, path without trailing slash, and only
// allow-listed query keys in sorted order.
//
// If the input cannot be parsed or has no host, it is returned unchanged.
// That is a degraded path which risks admitting duplicates; callers
// should log when they detect it (CanonicalURL(raw) == raw for a raw
// value that is not already canonical).
func CanonicalURL(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return raw
	}

	host := strings.ToLower(parsed.Host)
	path := strings.TrimSuffix(parsed.EscapedPath(), "/")

	var b strings.Builder
	b.WriteString("https://")
	b.WriteString(host)
	b.WriteString(path)

	if query := canonicalQuery(parsed.Query()); query != "" {
		b.WriteString("?")
		b.WriteString(query)
	}

	return b.String()
}

// canonicalQuery keeps allow-listed keys only and renders them in sorted
// key order so equivalent URLs compare equal. Keys are merged under
// their lowercase form before deduplication so ?ID=5&id=5 collapses to
// ?id=5.
func canonicalQuery(values url.Values) string {
	merged := url.Values{}
	for key, vals := range values {
		lower := strings.ToLower(key)
		if allowedQueryKeys[lower] {
			merged[lower] = append(merged[lower], vals...)
		}
	}
	if len(merged) == 0 {
		return ""
	}

	for key, vals := range merged {
		sort.Strings(vals)
		deduped := vals[:0]
		var prev string
		for i, v := range vals {
			if i == 0 || v != prev {
				deduped = append(deduped, v)
			}
			prev = v
		}
		merged[key] = deduped
	}
	return merged.Encode()
}
