package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kbforge/ingestd/internal/etag"
	"github.com/kbforge/ingestd/internal/tracker"
)

// progressResponse is the poll body for a single operation. Metadata carries
// the full operation record, including logs and caller-supplied keys.
type progressResponse struct {
	OperationID string         `json:"operation_id"`
	Status      string         `json:"status"`
	Percentage  int            `json:"percentage"`
	Message     string         `json:"message"`
	Metadata    map[string]any `json:"metadata"`
	Error       string         `json:"error,omitempty"`
	Timestamp   string         `json:"timestamp"`
}

type activeOperation struct {
	OperationID   string `json:"operation_id"`
	OperationType string `json:"operation_type"`
	Status        string `json:"status"`
	Percentage    int    `json:"percentage"`
	Message       string `json:"message"`
	StartedAt     string `json:"started_at"`
}

type activeOperationsResponse struct {
	Operations []activeOperation `json:"operations"`
	Count      int               `json:"count"`
	Timestamp  string            `json:"timestamp"`
}

func (s *Server) getProgress(w http.ResponseWriter, r *http.Request) {
	operationID := chi.URLParam(r, "operation_id")
	op, ok := s.progress.Status(operationID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Operation %s not found", operationID))
		return
	}

	body := progressResponse{
		OperationID: op.ID,
		Status:      string(op.Status),
		Percentage:  op.Percentage,
		Message:     op.Step,
		Metadata:    op.Payload(),
		Timestamp:   s.clock.Now().UTC().Format(time.RFC3339),
	}
	if op.Status == tracker.StatusFailed {
		body.Error = op.Err
	}

	// Fingerprint everything except the timestamp so an unchanged operation
	// yields the same tag on every poll.
	stable := body
	stable.Timestamp = ""
	tag, err := etag.Fingerprint(stable)
	if err != nil {
		s.log.Error("fingerprint progress body", zap.Error(err), zap.String("operation_id", operationID))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if etag.Match(r.Header.Get("If-None-Match"), tag) {
		w.Header().Set("ETag", tag)
		w.Header().Set("X-Poll-Interval", pollInterval(op.Status))
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", tag)
	w.Header().Set("Last-Modified", s.clock.Now().UTC().Format(http.TimeFormat))
	w.Header().Set("Cache-Control", "no-cache, must-revalidate")
	w.Header().Set("X-Poll-Interval", pollInterval(op.Status))
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) listProgress(w http.ResponseWriter, _ *http.Request) {
	active := s.progress.ListActive()
	ops := make([]activeOperation, 0, len(active))
	for _, op := range active {
		ops = append(ops, activeOperation{
			OperationID:   op.ID,
			OperationType: op.Type,
			Status:        string(op.Status),
			Percentage:    op.Percentage,
			Message:       op.Step,
			StartedAt:     op.StartTime.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, activeOperationsResponse{
		Operations: ops,
		Count:      len(ops),
		Timestamp:  s.clock.Now().UTC().Format(time.RFC3339),
	})
}

// pollInterval hints how often clients should re-poll, in milliseconds.
// Terminal operations report zero since their state can no longer change.
func pollInterval(status tracker.Status) string {
	if status.Terminal() {
		return "0"
	}
	return "1000"
}
