package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonathan/news-fetcher/internal/runlog"
)

// streamPollInterval is how often the stream handler checks for new
// log lines.
const streamPollInterval = 250 * time.Millisecond

// SSEWriter helps write Server-Sent Events
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter creates a new SSE writer
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent sends an SSE event
func (s *SSEWriter) WriteEvent(event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", jsonData); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteLine sends a single run log line
func (s *SSEWriter) WriteLine(line runlog.Line) error {
	return s.WriteEvent("log", line)
}

// WriteError sends an error event
func (s *SSEWriter) WriteError(message string) {
	s.WriteEvent("error", map[string]string{"error": message}) //nolint:errcheck
}

// WriteComplete sends a completion event
func (s *SSEWriter) WriteComplete(runID, status string) {
	s.WriteEvent("complete", map[string]string{ //nolint:errcheck
		"run_id": runID,
		"status": status,
	})
}

// handleRunStream tails a run's log over SSE until the run finishes or
// the client disconnects. Each line is one "log" event; a final
// "complete" event carries the terminal status.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if s.runs.Status(runID) == "" {
		s.errorResponse(w, http.StatusNotFound, "unknown run: "+runID)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	cursor := 0
	for {
		lines, next, done := s.runs.PollLog(runID, cursor)
		cursor = next
		for _, line := range lines {
			if err := sse.WriteLine(line); err != nil {
				return
			}
		}
		if done {
			// A run swept from the store mid-stream has no terminal
			// status to report.
			if status := s.runs.Status(runID); status == "" {
				sse.WriteError("unknown run: " + runID)
			} else {
				sse.WriteComplete(runID, status)
			}
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
