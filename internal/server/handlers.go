package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/news-fetcher/internal/db"
	"github.com/jonathan/news-fetcher/internal/pipeline"
	"github.com/jonathan/news-fetcher/internal/runlog"
)

const (
	defaultArticleLimit = 20
	maxArticleLimit     = 100

	// checkConcurrency bounds how many feeds are probed at once.
	checkConcurrency = 4
)

// startRunRequest optionally narrows a run to specific feeds. An empty
// body runs every configured feed.
type startRunRequest struct {
	Feeds []string `json:"feed_urls,omitempty"`
}

type startRunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
	Feeds  int    `json:"feeds"`
}

// handleStartRun launches a background ingestion run and returns its
// id immediately.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
	}

	feeds := req.Feeds
	if len(feeds) == 0 {
		feeds = s.feedURLs
	}

	runID, err := s.runs.StartRun(r.Context(), feeds)
	if err != nil {
		if errors.Is(err, pipeline.ErrNoFeeds) {
			s.errorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.jsonResponse(w, http.StatusAccepted, startRunResponse{
		RunID:  runID,
		Status: s.runs.Status(runID),
		Feeds:  len(feeds),
	})
}

type runLogResponse struct {
	RunID  string        `json:"run_id"`
	Status string        `json:"status"`
	Lines  []runlog.Line `json:"lines"`
	Cursor int           `json:"cursor"`
	Done   bool          `json:"done"`
}

// handleRunLog returns log lines at or after the cursor query param.
// Clients poll with the returned cursor until done.
func (s *Server) handleRunLog(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	cursor := 0
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.errorResponse(w, http.StatusBadRequest, "cursor must be a non-negative integer")
			return
		}
		cursor = parsed
	}

	if s.runs.Status(runID) == "" {
		s.errorResponse(w, http.StatusNotFound, "unknown run: "+runID)
		return
	}

	lines, next, done := s.runs.PollLog(runID, cursor)
	if lines == nil {
		lines = []runlog.Line{}
	}
	s.jsonResponse(w, http.StatusOK, runLogResponse{
		RunID:  runID,
		Status: s.runs.Status(runID),
		Lines:  lines,
		Cursor: next,
		Done:   done,
	})
}

// handleStopRun requests cooperative shutdown of a run.
func (s *Server) handleStopRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if err := s.runs.RequestStop(runID); err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"run_id": runID,
		"status": s.runs.Status(runID),
	})
}

// handleListFeeds returns the configured feed URLs.
func (s *Server) handleListFeeds(w http.ResponseWriter, _ *http.Request) {
	feeds := s.feedURLs
	if feeds == nil {
		feeds = []string{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"feeds": feeds})
}

type checkFeedsRequest struct {
	Feeds []string `json:"feed_urls,omitempty"`
}

type checkFeedsResponse struct {
	Results []checkEntry `json:"results"`
}

type checkEntry struct {
	pipeline.CheckResult
	Error string `json:"error,omitempty"`
}

// handleCheckFeeds probes feeds concurrently and reports how many new
// items each would contribute. Unreachable feeds report an error entry
// instead of failing the whole request.
func (s *Server) handleCheckFeeds(w http.ResponseWriter, r *http.Request) {
	var req checkFeedsRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
	}

	feeds := req.Feeds
	if len(feeds) == 0 {
		feeds = s.feedURLs
	}
	if len(feeds) == 0 {
		s.errorResponse(w, http.StatusBadRequest, "no feed urls configured")
		return
	}

	results := make([]checkEntry, len(feeds))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(checkConcurrency)
	for i, feedURL := range feeds {
		g.Go(func() error {
			result, err := s.checker.CheckFeed(ctx, feedURL)
			entry := checkEntry{CheckResult: result}
			if err != nil {
				entry.CheckResult.FeedURL = feedURL
				entry.Error = err.Error()
			}
			mu.Lock()
			results[i] = entry
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s.jsonResponse(w, http.StatusOK, checkFeedsResponse{Results: results})
}

// handleListArticles returns recently stored articles, newest first.
func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	limit := defaultArticleLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.errorResponse(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxArticleLimit {
		limit = maxArticleLimit
	}

	articles, err := s.articles.ListRecent(r.Context(), limit)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to list articles: "+err.Error())
		return
	}
	if articles == nil {
		articles = []db.ArticleSummary{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"articles": articles})
}

// handleListSuggestions returns articles still waiting on SEO review.
func (s *Server) handleListSuggestions(w http.ResponseWriter, r *http.Request) {
	limit := defaultArticleLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.errorResponse(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxArticleLimit {
		limit = maxArticleLimit
	}

	pending, err := s.articles.ListPendingSuggestions(r.Context(), limit)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to list suggestions: "+err.Error())
		return
	}
	if pending == nil {
		pending = []db.ArticleSummary{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"articles": pending})
}

type seoFieldSet struct {
	FocusKeyword string `json:"focus_keyword,omitempty"`
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	Slug         string `json:"slug,omitempty"`
}

type articleSEOResponse struct {
	ArticleID  string       `json:"article_id"`
	SlugLocked bool         `json:"slug_locked"`
	Applied    seoFieldSet  `json:"applied"`
	Suggestion *seoFieldSet `json:"suggestion,omitempty"`
}

func seoView(a *db.Article) articleSEOResponse {
	out := articleSEOResponse{
		ArticleID:  a.ID.String(),
		SlugLocked: a.SlugLocked,
		Applied: seoFieldSet{
			FocusKeyword: a.FocusKeyword,
			Title:        a.SEOTitle,
			Description:  a.SEODescription,
			Slug:         a.AISlug,
		},
	}
	if a.SuggestFocus != "" || a.SuggestTitle != "" || a.SuggestDesc != "" || a.SuggestSlug != "" {
		out.Suggestion = &seoFieldSet{
			FocusKeyword: a.SuggestFocus,
			Title:        a.SuggestTitle,
			Description:  a.SuggestDesc,
			Slug:         a.SuggestSlug,
		}
	}
	return out
}

// fetchArticle resolves the {id} path segment to a stored article. It
// writes the error response itself and reports success via ok.
func (s *Server) fetchArticle(w http.ResponseWriter, r *http.Request) (*db.Article, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid article id")
		return nil, false
	}
	article, err := s.articles.GetArticle(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrArticleNotFound) {
			s.errorResponse(w, http.StatusNotFound, "unknown article: "+id.String())
			return nil, false
		}
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return article, true
}

// handleArticleSEO returns the applied SEO fields and any pending
// suggestion for one article.
func (s *Server) handleArticleSEO(w http.ResponseWriter, r *http.Request) {
	article, ok := s.fetchArticle(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, seoView(article))
}

// handleApplySuggestion promotes an article's stored suggestion into
// its live SEO fields and returns the updated view.
func (s *Server) handleApplySuggestion(w http.ResponseWriter, r *http.Request) {
	article, ok := s.fetchArticle(w, r)
	if !ok {
		return
	}
	if err := s.articles.ApplySuggestion(r.Context(), article.ID); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to apply suggestion: "+err.Error())
		return
	}
	updated, err := s.articles.GetArticle(r.Context(), article.ID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, seoView(updated))
}

type setSlugRequest struct {
	Slug string `json:"slug"`
}

// handleSetSlug assigns a slug deliberately. A slug locked by an
// earlier assignment or an applied suggestion reports a conflict.
func (s *Server) handleSetSlug(w http.ResponseWriter, r *http.Request) {
	article, ok := s.fetchArticle(w, r)
	if !ok {
		return
	}

	var req setSlugRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	slug := strings.TrimSpace(req.Slug)
	if slug == "" {
		s.errorResponse(w, http.StatusBadRequest, "slug is required")
		return
	}

	if err := s.articles.SetSlug(r.Context(), article.ID, slug); err != nil {
		if errors.Is(err, db.ErrSlugLocked) {
			s.errorResponse(w, http.StatusConflict, err.Error())
			return
		}
		s.errorResponse(w, http.StatusInternalServerError, "failed to set slug: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"article_id":  article.ID.String(),
		"slug":        slug,
		"slug_locked": true,
	})
}
