package seo

import (
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxParagraphWords is the split threshold for overlong paragraphs.
const maxParagraphWords = 220

// Optimizer applies on-page adjustments that push an article toward its
// focus phrase: focus in the intro and one subheading, at least one
// internal link, image alt text, and readable paragraph lengths.
type Optimizer struct {
	internalLinks []string
}

// NewOptimizer builds an optimizer with the configured internal link
// pool. An empty pool disables internal-link injection.
func NewOptimizer(internalLinks []string) *Optimizer {
	var links []string
	for _, raw := range internalLinks {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			links = append(links, trimmed)
		}
	}
	return &Optimizer{internalLinks: links}
}

// Optimize rewrites bodyHTML in place. It is idempotent: a body already
// carrying the focus intro, subheading, and internal link comes back
// unchanged apart from whitespace normalization.
func (o *Optimizer) Optimize(bodyHTML, focus string) string {
	focus = strings.TrimSpace(focus)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(bodyHTML))
	if err != nil {
		return bodyHTML
	}
	body := doc.Find("body")

	if focus != "" {
		ensureFocusIntro(body, focus)
		ensureFocusSubheading(body, focus)
		ensureImageAlts(body, focus)
	}
	o.ensureInternalLink(body)
	splitLongParagraphs(body)

	out, err := body.Html()
	if err != nil {
		return bodyHTML
	}
	return strings.TrimSpace(out)
}

// ensureFocusIntro guarantees the first paragraph mentions the focus
// phrase, prepending a short lead when it does not.
func ensureFocusIntro(body *goquery.Selection, focus string) {
	first := body.Find("p").First()
	if first.Length() == 0 {
		body.PrependHtml(fmt.Sprintf("<p><strong>%s</strong>: latest update.</p>", html.EscapeString(focus)))
		return
	}
	if containsFold(first.Text(), focus) {
		return
	}
	sentence := "latest update"
	text := strings.Join(strings.Fields(first.Text()), " ")
	if idx := strings.IndexAny(text, ".!?"); idx > 0 && idx < 200 {
		sentence = strings.ToLower(text[:1]) + text[1:idx]
	}
	first.BeforeHtml(fmt.Sprintf("<p><strong>%s</strong>: %s.</p>",
		html.EscapeString(focus), html.EscapeString(sentence)))
}

// ensureFocusSubheading guarantees at least one h2/h3 contains the
// focus phrase.
func ensureFocusSubheading(body *goquery.Selection, focus string) {
	found := false
	body.Find("h2, h3").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if containsFold(s.Text(), focus) {
			found = true
			return false
		}
		return true
	})
	if found {
		return
	}

	heading := fmt.Sprintf("<h2>%s</h2>", html.EscapeString(titleCase(focus)))
	if first := body.Find("p").First(); first.Length() > 0 {
		first.AfterHtml(heading)
	} else {
		body.PrependHtml(heading)
	}
}

// ensureInternalLink appends a further-reading paragraph when the body
// carries no link into the configured pool.
func (o *Optimizer) ensureInternalLink(body *goquery.Selection) {
	if len(o.internalLinks) == 0 {
		return
	}
	found := false
	body.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if strings.HasPrefix(href, "/") {
			found = true
			return false
		}
		for _, target := range o.internalLinks {
			if href == target {
				found = true
				return false
			}
		}
		return true
	})
	if found {
		return
	}
	body.AppendHtml(fmt.Sprintf(
		`<p><em>Further reading:</em> <a href="%s">related insights</a>.</p>`,
		html.EscapeString(o.internalLinks[0])))
}

// ensureImageAlts adds the focus phrase as alt text to images that have
// none. Existing alt text is left alone to avoid over-optimization.
func ensureImageAlts(body *goquery.Selection, focus string) {
	body.Find("img").Each(func(_ int, s *goquery.Selection) {
		if _, ok := s.Attr("alt"); !ok {
			s.SetAttr("alt", focus)
		}
	})
}

// splitLongParagraphs breaks paragraphs over maxParagraphWords at the
// first sentence boundary.
func splitLongParagraphs(body *goquery.Selection) {
	body.Find("p").Each(func(_ int, s *goquery.Selection) {
		inner, err := s.Html()
		if err != nil {
			return
		}
		if len(strings.Fields(s.Text())) <= maxParagraphWords {
			return
		}
		head, tail, ok := splitFirstSentence(inner)
		if !ok {
			return
		}
		s.ReplaceWithHtml(fmt.Sprintf("<p>%s</p><p>%s</p>", head, tail))
	})
}

// splitFirstSentence splits HTML text after the first sentence-ending
// punctuation followed by a space. It only splits on text that carries
// no markup before the boundary, keeping tags intact.
func splitFirstSentence(text string) (string, string, bool) {
	for i := 0; i < len(text)-1; i++ {
		if (text[i] == '.' || text[i] == '!' || text[i] == '?') && text[i+1] == ' ' {
			head := text[:i+1]
			if strings.Contains(head, "<") != strings.Contains(head, ">") {
				return "", "", false
			}
			return head, strings.TrimSpace(text[i+2:]), true
		}
	}
	return "", "", false
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func titleCase(text string) string {
	words := strings.Fields(text)
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
