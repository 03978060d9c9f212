// Package expansion rewrites thin feed items into full-length HTML
// articles via the LLM adapter. Every failure path is soft: callers get
// an empty string and keep the original content.
package expansion

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/jonathan/news-fetcher/internal/fetch"
	"github.com/jonathan/news-fetcher/internal/llm"
)

// maxSourceChars caps how much source text is sent upstream.
const maxSourceChars = 18000

// Config holds the expansion settings. Values are clamped rather than
// rejected so a misconfigured store cannot disable the word-count
// contract.
type Config struct {
	Enabled     bool
	MinWords    int
	MaxWords    int
	MaxTokens   int
	Temperature float32
}

// DefaultConfig returns the default expansion settings.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		MinWords:    1200,
		MaxWords:    1500,
		MaxTokens:   2400,
		Temperature: 0.3,
	}
}

// clamped enforces the configuration floor: min at least 300, max at
// least min+50, temperature within [0,2].
func (c Config) clamped() Config {
	if c.MinWords < 300 {
		c.MinWords = 300
	}
	if c.MaxWords < c.MinWords+50 {
		c.MaxWords = c.MinWords + 50
	}
	if c.Temperature < 0 {
		c.Temperature = 0
	}
	if c.Temperature > 2 {
		c.Temperature = 2
	}
	return c
}

// Engine expands thin content through an LLM client and normalizes the
// structural shape of the output.
type Engine struct {
	client llm.Client
	cfg    Config
	policy *bluemonday.Policy
}

// NewEngine builds an expansion engine. A nil client yields an engine
// whose Expand always returns empty.
func NewEngine(client llm.Client, cfg Config) *Engine {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").OnElements("p")
	policy.AllowAttrs("rel", "target").OnElements("a")

	return &Engine{
		client: client,
		cfg:    cfg.clamped(),
		policy: policy,
	}
}

// Expand rewrites rawText into a full article. It returns empty when
// expansion is disabled, unconfigured, or the upstream call fails;
// callers must treat empty as "keep the original content".
//
// If the first output lands under the word floor, exactly one retry is
// issued with a length-enforcement instruction appended; the retry's
// output is accepted whenever it is produced, even if still short.
func (e *Engine) Expand(ctx context.Context, title, sourceURL, rawText string) string {
	if !e.cfg.Enabled || e.client == nil {
		return ""
	}

	source := fetch.PlainText(rawText)
	if len(source) > maxSourceChars {
		source = source[:maxSourceChars]
	}

	instructions := buildInstructions(e.cfg.MinWords, e.cfg.MaxWords, sourceURL)
	req := llm.CompletionRequest{
		System:      instructions,
		User:        fmt.Sprintf("Title: %s\nSource: %s\n\nSource text:\n%s", title, sourceURL, source),
		MaxTokens:   e.tokenBudget(),
		Temperature: e.cfg.Temperature,
	}

	out, err := e.client.Complete(ctx, req)
	if err != nil {
		return ""
	}
	out = llm.CleanHTMLBlock(out)
	if out == "" {
		return ""
	}

	if fetch.CountWords(out) < e.cfg.MinWords {
		req.System = instructions + lengthEnforcement(e.cfg.MinWords, e.cfg.MaxWords)
		retry, retryErr := e.client.Complete(ctx, req)
		if retryErr == nil {
			if cleaned := llm.CleanHTMLBlock(retry); cleaned != "" {
				out = cleaned
			}
		}
	}

	return e.finalize(out, title, sourceURL)
}

// tokenBudget sizes the upstream token cap to cover the word ceiling
// (~2 tokens per word) regardless of the configured cap, otherwise
// truncation silently breaks the word-count contract.
func (e *Engine) tokenBudget() int {
	budget := e.cfg.MaxTokens
	if floor := 2 * e.cfg.MaxWords; budget < floor {
		budget = floor
	}
	return budget
}

func buildInstructions(minWords, maxWords int, sourceURL string) string {
	return fmt.Sprintf(
		"You are a senior tech news editor. Rewrite the provided material into a clear %d-%d word HTML article.\n\n"+
			"Return ONLY valid HTML, no markdown, no backticks, no surrounding explanations.\n\n"+
			"Structure requirements:\n"+
			"- The first element must be a single-sentence summary inside a <p>; do NOT prefix it with any label.\n"+
			"- Use <h2> for the main section heading and <h3> for logical subheads. Never emit <h1>.\n"+
			"- Use <p>, <ul>, and <ol> where appropriate; convert any lists into proper HTML lists.\n"+
			"- Use <a href=\"\"> hyperlinks for any products, companies, or sources referenced if the URL is given.\n"+
			"- End with: <p class=\"source\">Source: <a href=\"%s\" rel=\"nofollow noopener\">Original reporting</a></p>\n"+
			"- Preserve key specs, dates, product names, prices, and quotations if present.\n"+
			"- Do not invent facts; keep a neutral, factual tone.",
		minWords, maxWords, sourceURL)
}

func lengthEnforcement(minWords, maxWords int) string {
	return fmt.Sprintf(
		"\n\nLength enforcement: expand to at least %d words and preferably near %d words. "+
			"Add concise context, background, timelines, stakeholder impact, and implications "+
			"while staying factual and tied to the source.",
		minWords, maxWords)
}

// finalize applies the structural rules to the model output: no
// top-level heading, a leading paragraph, exactly one attribution
// footer, and safe-HTML filtering last.
func (e *Engine) finalize(articleHTML, title, sourceURL string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(articleHTML))
	if err != nil {
		return ""
	}
	body := doc.Find("body")

	doc.Find("h1").Remove()

	// Any pre-existing attribution footer is replaced, never duplicated.
	doc.Find("p.source").Remove()

	if first := body.Children().First(); first.Length() == 0 || !first.Is("p") {
		body.PrependHtml("<p>" + html.EscapeString(leadSentence(body, title)) + "</p>")
	}

	if sourceURL != "" {
		body.AppendHtml(fmt.Sprintf(
			`<p class="source">Source: <a href="%s" rel="nofollow noopener">Original reporting</a></p>`,
			html.EscapeString(sourceURL)))
	}

	rendered, err := body.Html()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(e.policy.Sanitize(rendered))
}

// leadSentence derives the synthesized lead from the first sentence of
// the first paragraph, falling back to the title when the body yields
// nothing usable as a single sentence.
func leadSentence(body *goquery.Selection, title string) string {
	text := strings.Join(strings.Fields(body.Find("p").First().Text()), " ")
	if idx := strings.IndexAny(text, ".!?"); idx > 0 && idx < 200 {
		return strings.TrimSpace(text[:idx+1])
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return "Latest update."
	}
	if !strings.HasSuffix(title, ".") {
		title += "."
	}
	return title
}
