package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/news-fetcher/internal/runlog"
)

// FeedProcessor is what the scheduler drives per feed. *Processor
// satisfies it.
type FeedProcessor interface {
	ProcessFeed(ctx context.Context, feedURL string, run *Run) (int, error)
}

// ErrNoFeeds is returned when a run is requested with nothing to do.
var ErrNoFeeds = errors.New("no feed urls configured")

// Scheduler starts background runs and exposes their logs. At most one
// worker ever processes a given run id.
type Scheduler struct {
	store *runlog.Store
	proc  FeedProcessor
}

func NewScheduler(store *runlog.Store, proc FeedProcessor) *Scheduler {
	return &Scheduler{store: store, proc: proc}
}

// StartRun registers a new run over the given feeds and launches its
// worker. The run outlives the caller's request context.
func (s *Scheduler) StartRun(ctx context.Context, feedURLs []string) (string, error) {
	if len(feedURLs) == 0 {
		return "", ErrNoFeeds
	}

	runID := uuid.NewString()
	s.store.Create(runID)

	go s.execute(context.WithoutCancel(ctx), runID, feedURLs)

	return runID, nil
}

// AutoRun starts a run over feedURLs at every interval tick until the
// context is cancelled. Runs in its own goroutine.
func (s *Scheduler) AutoRun(ctx context.Context, interval time.Duration, feedURLs []string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runID, err := s.StartRun(ctx, feedURLs)
			if err != nil {
				log.Printf("Scheduled run not started: %v", err)
				continue
			}
			log.Printf("Scheduled run started: %s", runID)
		}
	}
}

// execute is the run worker. TryAcquire guarantees a single worker per
// run; a loser exits without touching the log.
func (s *Scheduler) execute(ctx context.Context, runID string, feedURLs []string) {
	if !s.store.TryAcquire(runID) {
		return
	}

	log := runlog.NewLogger(s.store, runID)
	status := runlog.StatusDone
	defer func() {
		if r := recover(); r != nil {
			log.Logf("Run aborted: %v", r)
			status = runlog.StatusFailed
		}
		s.store.Finish(runID, status)
	}()

	run := &Run{
		Log:  log,
		Stop: func() bool { return s.store.ShouldStop(runID) },
	}

	log.Logf("Run started: %d feed(s)", len(feedURLs))

	total := 0
	failed := 0
	for i, feedURL := range feedURLs {
		if run.stopped() {
			log.Log("Stop requested, ending run early")
			break
		}
		log.Logf("Feed %d/%d: %s", i+1, len(feedURLs), feedURL)
		count, err := s.proc.ProcessFeed(ctx, feedURL, run)
		total += count
		if err != nil {
			failed++
			log.Logf("Feed failed: %v", err)
		}
	}

	if failed == len(feedURLs) {
		status = runlog.StatusFailed
	}
	log.Logf("Run complete: %d article(s) published, %d feed(s) failed", total, failed)
}

// PollLog returns log lines at or after cursor, the next cursor, and
// whether the run has finished. Safe to call repeatedly with the same
// cursor.
func (s *Scheduler) PollLog(runID string, cursor int) ([]runlog.Line, int, bool) {
	return s.store.Slice(runID, cursor)
}

// Status reports the run's lifecycle state.
func (s *Scheduler) Status(runID string) string {
	return s.store.Status(runID)
}

// RequestStop flags a run for cooperative shutdown. The worker stops
// at the next feed or item boundary.
func (s *Scheduler) RequestStop(runID string) error {
	if s.store.Status(runID) == "" {
		return fmt.Errorf("unknown run: %s", runID)
	}
	s.store.RequestStop(runID)
	s.store.Append(runID, "Stop requested")
	return nil
}
