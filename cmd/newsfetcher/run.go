package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runFeeds []string

var runCmd = &cobra.Command{
	Use:   "run [feed-url...]",
	Short: "Run feed ingestion once and stream the log",
	Long:  "Fetch the given feeds (or the configured ones), publish new items, and print the run log until the run finishes.",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringSliceVar(&runFeeds, "feed", nil, "Feed URL to ingest (repeatable; defaults to configured feeds)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	feeds := append(args, runFeeds...)
	if len(feeds) == 0 {
		feeds = a.cfg.FeedURLs
	}

	runID, err := a.scheduler.StartRun(ctx, feeds)
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}

	fmt.Printf("Run %s started over %d feed(s)\n", runID, len(feeds))
	status := a.tailRun(ctx, runID)
	fmt.Printf("Run %s finished: %s\n", runID, status)
	return nil
}
