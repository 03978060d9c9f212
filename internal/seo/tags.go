package seo

import (
	"regexp"
	"sort"
	"strings"

	"github.com/jonathan/news-fetcher/internal/fetch"
)

// minTagLength is the shortest word considered a tag candidate.
const minTagLength = 4

var tagInvalid = regexp.MustCompile(`[^a-z0-9\s\-\+\.#]`)

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "with": true,
	"this": true, "from": true, "have": true, "has": true, "had": true,
	"are": true, "was": true, "were": true, "will": true, "your": true,
	"you": true, "but": true, "not": true, "they": true, "their": true,
	"them": true, "its": true, "our": true, "out": true, "can": true,
	"into": true, "over": true, "than": true, "then": true, "also": true,
	"about": true, "more": true, "only": true, "such": true, "when": true,
	"what": true, "which": true, "while": true, "where": true, "there": true,
	"here": true, "been": true, "being": true, "after": true, "before": true,
	"because": true, "around": true, "between": true, "among": true,
	"using": true, "based": true, "onto": true, "upon": true, "via": true,
	"per": true, "each": true, "other": true, "some": true, "most": true,
	"many": true, "much": true, "very": true, "make": true, "made": true,
	"like": true,
}

// SuggestTags extracts up to max tag candidates from an article body by
// word frequency, filtering stop words and short tokens. Ties break
// alphabetically so the output is deterministic.
func SuggestTags(bodyHTML string, max int) []string {
	if max <= 0 {
		return nil
	}

	text := strings.ToLower(fetch.PlainText(bodyHTML))
	text = tagInvalid.ReplaceAllString(text, " ")

	freq := map[string]int{}
	for _, word := range strings.Fields(text) {
		word = strings.Trim(word, ".-")
		if len(word) < minTagLength || stopWords[word] {
			continue
		}
		freq[word]++
	}

	words := make([]string, 0, len(freq))
	for word := range freq {
		words = append(words, word)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] != freq[words[j]] {
			return freq[words[i]] > freq[words[j]]
		}
		return words[i] < words[j]
	})

	if len(words) > max {
		words = words[:max]
	}
	return words
}
