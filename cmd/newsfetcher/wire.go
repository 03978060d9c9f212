package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jonathan/news-fetcher/internal/config"
	"github.com/jonathan/news-fetcher/internal/db"
	"github.com/jonathan/news-fetcher/internal/expansion"
	"github.com/jonathan/news-fetcher/internal/feed"
	"github.com/jonathan/news-fetcher/internal/images"
	"github.com/jonathan/news-fetcher/internal/llm"
	"github.com/jonathan/news-fetcher/internal/pipeline"
	"github.com/jonathan/news-fetcher/internal/runlog"
	"github.com/jonathan/news-fetcher/internal/seo"
)

// app bundles the wired services the subcommands share.
type app struct {
	cfg       *config.Config
	database  *db.DB
	client    llm.Client
	processor *pipeline.Processor
	store     *runlog.Store
	scheduler *pipeline.Scheduler
}

// buildApp connects the database, LLM client, and processing pipeline
// from the loaded configuration.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.EnsureSchema(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	var client llm.Client
	var expander pipeline.Expander
	var deriver pipeline.Deriver
	if cfg.APIKey != "" {
		model := cfg.Model
		if model == "" {
			model = llm.DefaultModel
		}
		client, err = llm.NewGeminiClient(ctx, cfg.APIKey, model)
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
		expander = expansion.NewEngine(client, expansion.Config{
			Enabled:     cfg.ExpandEnabled,
			MinWords:    cfg.MinWords,
			MaxWords:    cfg.MaxWords,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
		deriver = seo.NewDeriver(client, cfg.PrependFocus)
	}

	var resolver pipeline.ImageResolver
	if cfg.ResolveImages {
		resolver = images.NewResolver(images.NewHTTPSideloader(database), cfg.FallbackImageURL)
	}

	processor := pipeline.NewProcessor(
		database,
		feed.NewHTTPFetcher(feed.DefaultTimeout),
		expander,
		deriver,
		seo.NewOptimizer(cfg.InternalLinks),
		resolver,
		pipeline.Config{
			ItemsPerFeed:    cfg.ItemsPerFeed,
			ExpandThreshold: cfg.ExpandThreshold,
			AutoSEO:         cfg.AutoSEO,
			ForceOptimize:   cfg.ForceOptimize,
			AutoTags:        cfg.AutoTags,
			ResolveImages:   cfg.ResolveImages,
			MaxTags:         cfg.MaxTags,
		},
	)

	store := runlog.NewStore(runlog.DefaultTTL)

	return &app{
		cfg:       cfg,
		database:  database,
		client:    client,
		processor: processor,
		store:     store,
		scheduler: pipeline.NewScheduler(store, processor),
	}, nil
}

func (a *app) close() {
	if a.client != nil {
		a.client.Close()
	}
	a.database.Close()
}

// tailRun prints a run's log to stdout until it finishes.
func (a *app) tailRun(ctx context.Context, runID string) string {
	cursor := 0
	for {
		lines, next, done := a.scheduler.PollLog(runID, cursor)
		cursor = next
		for _, line := range lines {
			fmt.Printf("%s %s\n", line.Time.Format(time.TimeOnly), line.Text)
		}
		if done {
			return a.scheduler.Status(runID)
		}
		select {
		case <-ctx.Done():
			return a.scheduler.Status(runID)
		case <-time.After(250 * time.Millisecond):
		}
	}
}
