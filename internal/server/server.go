// Package server provides the HTTP API for starting ingestion runs,
// tailing their logs, probing feeds, and listing published articles.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/news-fetcher/internal/db"
	"github.com/jonathan/news-fetcher/internal/pipeline"
	"github.com/jonathan/news-fetcher/internal/runlog"
)

// RunService drives background ingestion runs. *pipeline.Scheduler
// satisfies it.
type RunService interface {
	StartRun(ctx context.Context, feedURLs []string) (string, error)
	PollLog(runID string, cursor int) ([]runlog.Line, int, bool)
	Status(runID string) string
	RequestStop(runID string) error
}

// FeedChecker probes a feed without publishing. *pipeline.Processor
// satisfies it.
type FeedChecker interface {
	CheckFeed(ctx context.Context, feedURL string) (pipeline.CheckResult, error)
}

// ArticleStore exposes stored articles and the SEO suggestion review
// flow. *db.DB satisfies it.
type ArticleStore interface {
	ListRecent(ctx context.Context, limit int) ([]db.ArticleSummary, error)
	ListPendingSuggestions(ctx context.Context, limit int) ([]db.ArticleSummary, error)
	GetArticle(ctx context.Context, id uuid.UUID) (*db.Article, error)
	ApplySuggestion(ctx context.Context, id uuid.UUID) error
	SetSlug(ctx context.Context, id uuid.UUID, slug string) error
}

// Config holds server configuration.
type Config struct {
	Port     int
	FeedURLs []string
}

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	runs       RunService
	checker    FeedChecker
	articles   ArticleStore
	feedURLs   []string
}

// New creates a new server instance over already-wired services.
func New(cfg Config, runs RunService, checker FeedChecker, articles ArticleStore) *Server {
	s := &Server{
		runs:     runs,
		checker:  checker,
		articles: articles,
		feedURLs: cfg.FeedURLs,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /runs", s.handleStartRun)
	mux.HandleFunc("GET /runs/{id}/log", s.handleRunLog)
	mux.HandleFunc("POST /runs/{id}/stop", s.handleStopRun)
	mux.HandleFunc("GET /runs/{id}/stream", s.handleRunStream)
	mux.HandleFunc("GET /feeds", s.handleListFeeds)
	mux.HandleFunc("POST /feeds/check", s.handleCheckFeeds)
	mux.HandleFunc("GET /articles", s.handleListArticles)
	mux.HandleFunc("GET /articles/suggestions", s.handleListSuggestions)
	mux.HandleFunc("GET /articles/{id}/seo", s.handleArticleSEO)
	mux.HandleFunc("POST /articles/{id}/seo/apply", s.handleApplySuggestion)
	mux.HandleFunc("POST /articles/{id}/slug", s.handleSetSlug)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withLogging(s.withCORS(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // Long timeout for SSE log streams
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the routed handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for requests and blocks until SIGINT/SIGTERM,
// then shuts down gracefully.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Println("Server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}
