package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/news-fetcher/internal/pipeline"
	"github.com/jonathan/news-fetcher/internal/runlog"
)

var (
	rewriteLimit  int
	backfillLimit int
)

var rewriteCmd = &cobra.Command{
	Use:   "rewrite",
	Short: "Re-expand stored articles that are still short",
	Long:  "Scan recent articles and run the expansion engine over any whose body is under the configured word threshold.",
	RunE:  runRewrite,
}

var backfillCmd = &cobra.Command{
	Use:   "backfill-images",
	Short: "Attach featured images to articles that have none",
	RunE:  runBackfill,
}

func init() {
	rewriteCmd.Flags().IntVar(&rewriteLimit, "limit", 50, "Maximum articles to inspect")
	backfillCmd.Flags().IntVar(&backfillLimit, "limit", 50, "Maximum articles to inspect")
	rootCmd.AddCommand(rewriteCmd)
	rootCmd.AddCommand(backfillCmd)
}

// newLocalRun sets up an in-memory run so maintenance output goes
// through the same log machinery as server runs.
func newLocalRun(store *runlog.Store) (*pipeline.Run, string) {
	runID := uuid.NewString()
	store.Create(runID)
	store.TryAcquire(runID)
	return &pipeline.Run{
		Log:  runlog.NewLogger(store, runID),
		Stop: func() bool { return store.ShouldStop(runID) },
	}, runID
}

func runRewrite(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	run, runID := newLocalRun(a.store)
	count, err := a.processor.BulkRewrite(ctx, rewriteLimit, run)
	a.store.Finish(runID, runlog.StatusDone)
	printLocalRun(a, runID)
	if err != nil {
		return err
	}
	fmt.Printf("Rewrote %d article(s)\n", count)
	return nil
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	run, runID := newLocalRun(a.store)
	count, err := a.processor.BackfillImages(ctx, backfillLimit, run)
	a.store.Finish(runID, runlog.StatusDone)
	printLocalRun(a, runID)
	if err != nil {
		return err
	}
	fmt.Printf("Attached images to %d article(s)\n", count)
	return nil
}

func printLocalRun(a *app, runID string) {
	lines, _, _ := a.store.Slice(runID, 0)
	for _, line := range lines {
		fmt.Println(line.Text)
	}
}
