package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkFeeds []string

var checkCmd = &cobra.Command{
	Use:   "check [feed-url...]",
	Short: "Probe feeds without publishing",
	Long:  "Fetch each feed, resolve host variants, and report how many items a run would publish.",
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().StringSliceVar(&checkFeeds, "feed", nil, "Feed URL to probe (repeatable; defaults to configured feeds)")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	feeds := append(args, checkFeeds...)
	if len(feeds) == 0 {
		feeds = a.cfg.FeedURLs
	}
	if len(feeds) == 0 {
		return fmt.Errorf("no feed urls configured")
	}

	for _, feedURL := range feeds {
		result, err := a.processor.CheckFeed(ctx, feedURL)
		if err != nil {
			fmt.Printf("%-50s ERROR: %v\n", feedURL, err)
			continue
		}
		fmt.Printf("%-50s %q: %d item(s), %d new (via %s)\n",
			feedURL, result.Title, result.Items, result.New, result.ResolvedURL)
	}
	return nil
}
