package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/news-fetcher/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  "Start an HTTP server that exposes REST endpoints for starting runs, tailing their logs, probing feeds, and listing articles.",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	// Expired run logs are swept for as long as the server lives.
	bgCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.store.Janitor(bgCtx, 5*time.Minute)

	if a.cfg.FetchIntervalMinutes > 0 && len(a.cfg.FeedURLs) > 0 {
		interval := time.Duration(a.cfg.FetchIntervalMinutes) * time.Minute
		go a.scheduler.AutoRun(bgCtx, interval, a.cfg.FeedURLs)
	}

	port := a.cfg.Port
	if servePort != 0 {
		port = servePort
	}

	srv := server.New(server.Config{
		Port:     port,
		FeedURLs: a.cfg.FeedURLs,
	}, a.scheduler, a.processor, a.database)

	return srv.Start()
}
