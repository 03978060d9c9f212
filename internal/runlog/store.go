// Package runlog holds per-run state for asynchronous ingestion runs:
// an append-only log with a monotonic cursor, a cooperative stop flag,
// a done flag, and the acquire-once worker lock.
package runlog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is how long a finished run's state is kept for polling
// before garbage collection reclaims it.
const DefaultTTL = 30 * time.Minute

// Run lifecycle statuses.
const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Line is one appended log line. Index is the line's position in the
// run's log and doubles as the polling cursor.
type Line struct {
	Index int       `json:"index"`
	Time  time.Time `json:"time"`
	Text  string    `json:"text"`
}

type runState struct {
	status   string
	lines    []Line
	stop     bool
	done     bool
	acquired bool
	started  time.Time
	finished time.Time
}

// Store is a process-wide keyed map of run states. Writers append only;
// readers slice by cursor, so a stale cursor is always a safe,
// repeatable read.
type Store struct {
	mu   sync.RWMutex
	runs map[string]*runState
	ttl  time.Duration
	now  func() time.Time
}

// NewStore creates a store with the given TTL for finished runs; zero
// means DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		runs: make(map[string]*runState),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Create registers a new run in the queued state. Creating an existing
// run id is a no-op so a duplicate trigger cannot reset live state.
func (s *Store) Create(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; ok {
		return
	}
	s.runs[runID] = &runState{
		status:  StatusQueued,
		started: s.now(),
	}
}

// TryAcquire claims the worker slot for a run. Exactly one caller per
// run id ever gets true; every later caller must treat false as "someone
// else is already executing this run" and exit as a no-op.
func (s *Store) TryAcquire(runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok || run.acquired {
		return false
	}
	run.acquired = true
	run.status = StatusRunning
	return true
}

// Append adds one log line to a run. Unknown run ids are dropped
// silently; the run may have been garbage collected.
func (s *Store) Append(runID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok || run.done {
		return
	}
	run.lines = append(run.lines, Line{
		Index: len(run.lines),
		Time:  s.now(),
		Text:  text,
	})
}

// Slice returns the lines appended at or after cursor, the new cursor,
// and the done flag. Unknown runs report done with an unchanged cursor.
func (s *Store) Slice(runID string, cursor int) ([]Line, int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, cursor, true
	}
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(run.lines) {
		cursor = len(run.lines)
	}
	slice := make([]Line, len(run.lines)-cursor)
	copy(slice, run.lines[cursor:])
	return slice, len(run.lines), run.done
}

// Status returns the run's status, or empty for unknown runs.
func (s *Store) Status(runID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if run, ok := s.runs[runID]; ok {
		return run.status
	}
	return ""
}

// SetStatus updates the run status. Terminal statuses are only set via
// Finish so that done runs never regress.
func (s *Store) SetStatus(runID, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[runID]; ok && !run.done {
		run.status = status
	}
}

// RequestStop sets the cooperative stop flag. The orchestrator honors it
// at its next checkpoint; nothing in flight is interrupted.
func (s *Store) RequestStop(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[runID]; ok {
		run.stop = true
	}
}

// ShouldStop reports whether a stop was requested for the run.
func (s *Store) ShouldStop(runID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	return ok && run.stop
}

// Finish marks the run done with a terminal status. Once done the flag
// never reverts and no further lines are accepted.
func (s *Store) Finish(runID, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok || run.done {
		return
	}
	run.status = status
	run.done = true
	run.finished = s.now()
}

// Sweep drops finished runs older than the TTL and returns how many were
// removed. Callers run it periodically; see Janitor.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for id, run := range s.runs {
		if run.done && run.finished.Before(cutoff) {
			delete(s.runs, id)
			removed++
		}
	}
	return removed
}

// Janitor sweeps expired runs every interval until the context is
// cancelled. Zero interval sweeps at one tenth of the TTL.
func (s *Store) Janitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.ttl / 10
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Logger is a run-scoped log sink handed to the orchestrator. It is the
// explicit replacement for a process-global logger: each run writes only
// to its own line sequence.
type Logger struct {
	store *Store
	runID string
}

// NewLogger binds a logger to one run in the store.
func NewLogger(store *Store, runID string) *Logger {
	return &Logger{store: store, runID: runID}
}

// Log appends one line to the run's log.
func (l *Logger) Log(text string) {
	l.store.Append(l.runID, strings.TrimSpace(text))
}

// Logf appends one formatted line to the run's log.
func (l *Logger) Logf(format string, args ...any) {
	l.Log(fmt.Sprintf(format, args...))
}
