// Package feed resolves feed endpoint variants and fetches RSS/Atom
// feeds into a provider-neutral item model.
package feed

import (
	"net/url"
	"strings"
)

// hostVariants maps known publisher hosts to well-known alternate feed
// endpoints that are tried when the configured URL fails. Several large
// tech sites serve their canonical feed from a different path or a
// feedburner mirror.
var hostVariants = map[string][]string{
	"howtogeek.com":        {"https://www.howtogeek.com/feed/rss"},
	"makeuseof.com":        {"https://feeds.feedburner.com/makeuseof"},
	"xda-developers.com":   {"https://www.xda-developers.com/feed/rss"},
	"androidpolice.com":    {"https://feeds.feedburner.com/androidpolice"},
	"bleepingcomputer.com": {"https://feeds.feedburner.com/BleepingComputer"},
}

// Variants returns the ordered list of feed URLs to try for the given
// URL, always starting with the input. Unknown hosts get a singleton
// list. Purely a table lookup; no network access.
func Variants(feedURL string) []string {
	out := []string{feedURL}

	parsed, err := url.Parse(feedURL)
	if err != nil || parsed.Host == "" {
		return out
	}

	host := strings.ToLower(parsed.Host)
	host = strings.TrimPrefix(host, "www.")

	seen := map[string]bool{feedURL: true}
	for _, alt := range hostVariants[host] {
		if !seen[alt] {
			seen[alt] = true
			out = append(out, alt)
		}
	}
	return out
}
