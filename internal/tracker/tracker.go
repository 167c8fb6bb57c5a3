// Package tracker maintains the in-process registry of long-running
// operations: crawls, uploads, document ingests. Records move from starting
// through running to a terminal state, are pollable over HTTP, and push
// best-effort notifications on every mutation.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kbforge/ingestd/internal/clock"
)

// Status is an operation lifecycle state.
type Status string

// Lifecycle states. StatusFailed is accepted on updates for callers that
// report failure themselves; the Error method sets StatusError.
const (
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusFailed
}

// GracePeriod is how long a completed record stays resident so a final poll
// or push delivery can still observe it.
const GracePeriod = 30 * time.Second

// maxLogEntries bounds the per-operation log window; the oldest entries are
// evicted first.
const maxLogEntries = 50

// ErrInvalidOperation is returned when creation parameters are structurally
// invalid (empty id or type).
var ErrInvalidOperation = errors.New("tracker: operation id and type are required")

// Operation is one tracked job. Values handed out by the Tracker are
// snapshots; mutating them does not affect the registry.
type Operation struct {
	ID         string
	Type       string
	Status     Status
	Percentage int
	Step       string
	Logs       []string
	Err        string
	StartTime  time.Time
	Duration   time.Duration
	Meta       map[string]any

	// gen distinguishes successive records under the same id, so a purge
	// timer that outlives a cancel cannot delete a re-created record.
	gen uint64
}

// Update carries a partial mutation. Nil fields are left untouched; Meta keys
// are merged last-write-wins; Log is appended to the bounded log window.
type Update struct {
	Status     *Status
	Percentage *int
	Step       *string
	Log        *string
	Meta       map[string]any
}

// Notifier pushes operation events to interested clients. Implementations
// must tolerate being called concurrently.
type Notifier interface {
	Emit(ctx context.Context, event string, payload map[string]any) error
}

type nopNotifier struct{}

func (nopNotifier) Emit(context.Context, string, map[string]any) error { return nil }

// Tracker is the process-wide operation registry. All methods are safe for
// concurrent use.
type Tracker struct {
	clk      clock.Clock
	sched    clock.Scheduler
	notifier Notifier
	log      *zap.Logger

	mu      sync.RWMutex
	ops     map[string]*Operation
	cancels map[string]func()
	nextGen uint64
}

// New builds a Tracker. notifier and log may be nil.
func New(clk clock.Clock, sched clock.Scheduler, notifier Notifier, log *zap.Logger) *Tracker {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		clk:      clk,
		sched:    sched,
		notifier: notifier,
		log:      log,
		ops:      make(map[string]*Operation),
		cancels:  make(map[string]func()),
	}
}

// Start creates the record in the starting state. An existing record with the
// same id is overwritten, not merged, and any pending purge for it is
// cancelled.
func (t *Tracker) Start(ctx context.Context, id, opType string, meta map[string]any) error {
	if id == "" || opType == "" {
		return ErrInvalidOperation
	}

	t.mu.Lock()
	t.cancelPurgeLocked(id)
	t.nextGen++
	op := &Operation{
		ID:         id,
		Type:       opType,
		Status:     StatusStarting,
		Percentage: 0,
		Step:       "initialization",
		Logs:       []string{fmt.Sprintf("Starting %s", opType)},
		StartTime:  t.clk.Now(),
		Meta:       cloneMeta(meta),
		gen:        t.nextGen,
	}
	t.ops[id] = op
	snap := op.snapshot()
	t.mu.Unlock()

	t.notify(ctx, snap)
	t.log.Debug("operation started", zap.String("operation_id", id), zap.String("type", opType))
	return nil
}

// Update merges a partial mutation into the record. An unknown id is a
// silent no-op so late updates from finished or swept jobs never fail.
func (t *Tracker) Update(ctx context.Context, id string, u Update) {
	t.mu.Lock()
	op, ok := t.ops[id]
	if !ok {
		t.mu.Unlock()
		t.log.Debug("update for unknown operation dropped", zap.String("operation_id", id))
		return
	}
	if u.Status != nil {
		op.Status = *u.Status
	}
	if u.Percentage != nil {
		op.Percentage = *u.Percentage
	}
	if u.Step != nil {
		op.Step = *u.Step
	}
	if u.Log != nil {
		op.appendLog(*u.Log)
	}
	mergeMeta(op, u.Meta)
	snap := op.snapshot()
	t.mu.Unlock()

	t.notify(ctx, snap)
}

// Complete marks the operation finished, merges result, and schedules the
// record's removal after the grace period. The scheduling never blocks the
// caller.
func (t *Tracker) Complete(ctx context.Context, id string, result map[string]any) {
	t.mu.Lock()
	op, ok := t.ops[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	op.Status = StatusCompleted
	op.Percentage = 100
	op.Step = "finished"
	op.Duration = t.clk.Now().Sub(op.StartTime)
	mergeMeta(op, result)
	op.appendLog(fmt.Sprintf("%s completed successfully", op.Type))

	t.cancelPurgeLocked(id)
	gen := op.gen
	t.cancels[id] = t.sched.AfterFunc(GracePeriod, func() { t.remove(id, gen) })

	snap := op.snapshot()
	t.mu.Unlock()

	t.notify(ctx, snap)
	t.log.Info("operation completed",
		zap.String("operation_id", id),
		zap.Duration("duration", snap.Duration),
	)
}

// Error marks the operation failed. Unlike Complete it does not schedule
// removal: failed records stay resident for inspection until swept.
func (t *Tracker) Error(ctx context.Context, id, message string) {
	t.mu.Lock()
	op, ok := t.ops[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	op.Status = StatusError
	op.Step = "failed"
	op.Err = message
	op.appendLog(fmt.Sprintf("Operation failed: %s", message))
	snap := op.snapshot()
	t.mu.Unlock()

	t.notify(ctx, snap)
	t.log.Warn("operation failed", zap.String("operation_id", id), zap.String("error", message))
}

// Status returns a snapshot of the record, or false when the id is unknown.
func (t *Tracker) Status(id string) (Operation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	op, ok := t.ops[id]
	if !ok {
		return Operation{}, false
	}
	return op.snapshot(), true
}

// ListActive returns snapshots of every starting or running operation,
// ordered by start time. Terminal records inside their grace window are
// excluded.
func (t *Tracker) ListActive() []Operation {
	t.mu.RLock()
	out := make([]Operation, 0, len(t.ops))
	for _, op := range t.ops {
		if op.Status == StatusStarting || op.Status == StatusRunning {
			out = append(out, op.snapshot())
		}
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// SweepStale removes every record older than maxAge regardless of status and
// returns how many were removed. Jobs that never reach a terminal state leak
// their records otherwise; callers opt in by running this periodically.
func (t *Tracker) SweepStale(maxAge time.Duration) int {
	cutoff := t.clk.Now().Add(-maxAge)

	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, op := range t.ops {
		if op.StartTime.Before(cutoff) {
			t.cancelPurgeLocked(id)
			delete(t.ops, id)
			removed++
		}
	}
	if removed > 0 {
		t.log.Info("swept stale operations", zap.Int("removed", removed))
	}
	return removed
}

// Len reports how many records are resident, terminal ones included.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.ops)
}

// remove deletes the record only if it is still the generation the purge was
// scheduled for. A timer callback that fired before its cancel took effect
// must not delete a record re-created under the same id.
func (t *Tracker) remove(id string, gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, ok := t.ops[id]
	if !ok || op.gen != gen {
		return
	}
	t.cancelPurgeLocked(id)
	delete(t.ops, id)
}

func (t *Tracker) cancelPurgeLocked(id string) {
	if cancel, ok := t.cancels[id]; ok {
		cancel()
		delete(t.cancels, id)
	}
}

// notify pushes the mutation as "{type}_{bucket}". Failures are logged and
// swallowed: a dead push channel must never corrupt or roll back the record
// mutation that preceded it.
func (t *Tracker) notify(ctx context.Context, snap Operation) {
	event := fmt.Sprintf("%s_%s", snap.Type, statusBucket(snap.Status))
	if err := t.notifier.Emit(ctx, event, snap.Payload()); err != nil {
		t.log.Warn("progress notification failed",
			zap.String("operation_id", snap.ID),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}

func statusBucket(s Status) string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusError, StatusFailed:
		return "error"
	default:
		return "progress"
	}
}

// Payload renders the operation as a push-channel payload. Metadata keys are
// merged at the top level; fixed fields win on collision.
func (op Operation) Payload() map[string]any {
	payload := make(map[string]any, len(op.Meta)+8)
	for k, v := range op.Meta {
		payload[k] = v
	}
	payload["operation_id"] = op.ID
	payload["operation_type"] = op.Type
	payload["status"] = string(op.Status)
	payload["percentage"] = op.Percentage
	payload["step"] = op.Step
	payload["logs"] = append([]string(nil), op.Logs...)
	payload["start_time"] = op.StartTime.Format(time.RFC3339)
	if op.Duration > 0 {
		payload["duration_seconds"] = op.Duration.Seconds()
	}
	if op.Err != "" {
		payload["error"] = op.Err
	}
	return payload
}

func (op *Operation) appendLog(line string) {
	op.Logs = append(op.Logs, line)
	if len(op.Logs) > maxLogEntries {
		op.Logs = op.Logs[len(op.Logs)-maxLogEntries:]
	}
}

func (op *Operation) snapshot() Operation {
	snap := *op
	snap.Logs = append([]string(nil), op.Logs...)
	snap.Meta = cloneMeta(op.Meta)
	return snap
}

func cloneMeta(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func mergeMeta(op *Operation, meta map[string]any) {
	if len(meta) == 0 {
		return
	}
	if op.Meta == nil {
		op.Meta = make(map[string]any, len(meta))
	}
	for k, v := range meta {
		op.Meta[k] = v
	}
}
