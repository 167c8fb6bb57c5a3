package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeTask struct {
	delay     time.Duration
	fn        func()
	cancelled bool
}

type fakeScheduler struct {
	mu    sync.Mutex
	tasks []*fakeTask
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) func() {
	s.mu.Lock()
	task := &fakeTask{delay: d, fn: fn}
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		task.cancelled = true
		s.mu.Unlock()
	}
}

// Fire runs every pending, non-cancelled task.
func (s *fakeScheduler) Fire() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()
	for _, task := range tasks {
		if !task.cancelled {
			task.fn()
		}
	}
}

func (s *fakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, task := range s.tasks {
		if !task.cancelled {
			n++
		}
	}
	return n
}

type emitted struct {
	event   string
	payload map[string]any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []emitted
	err    error
}

func (n *recordingNotifier) Emit(_ context.Context, event string, payload map[string]any) error {
	n.mu.Lock()
	n.events = append(n.events, emitted{event: event, payload: payload})
	n.mu.Unlock()
	return n.err
}

func (n *recordingNotifier) Events() []emitted {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]emitted(nil), n.events...)
}

func newTestTracker() (*Tracker, *fakeClock, *fakeScheduler, *recordingNotifier) {
	clk := newFakeClock()
	sched := &fakeScheduler{}
	notifier := &recordingNotifier{}
	return New(clk, sched, notifier, zap.NewNop()), clk, sched, notifier
}

func ptr[T any](v T) *T { return &v }

func TestStartInitialState(t *testing.T) {
	tr, clk, _, _ := newTestTracker()
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "op-1", "crawl", map[string]any{"url": "https://example.com"}))

	op, ok := tr.Status("op-1")
	require.True(t, ok)
	require.Equal(t, StatusStarting, op.Status)
	require.Equal(t, 0, op.Percentage)
	require.Equal(t, "initialization", op.Step)
	require.Equal(t, []string{"Starting crawl"}, op.Logs)
	require.Equal(t, clk.Now(), op.StartTime)
	require.Equal(t, "https://example.com", op.Meta["url"])
}

func TestStartValidation(t *testing.T) {
	tr, _, _, _ := newTestTracker()
	ctx := context.Background()

	require.ErrorIs(t, tr.Start(ctx, "", "crawl", nil), ErrInvalidOperation)
	require.ErrorIs(t, tr.Start(ctx, "op-1", "", nil), ErrInvalidOperation)
	require.Zero(t, tr.Len())
}

func TestStartOverwrites(t *testing.T) {
	tr, _, _, _ := newTestTracker()
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "op-1", "crawl", nil))
	tr.Update(ctx, "op-1", Update{Percentage: ptr(60), Status: ptr(StatusRunning)})
	require.NoError(t, tr.Start(ctx, "op-1", "upload", nil))

	op, ok := tr.Status("op-1")
	require.True(t, ok)
	require.Equal(t, "upload", op.Type)
	require.Equal(t, StatusStarting, op.Status)
	require.Equal(t, 0, op.Percentage)
	require.Equal(t, 1, tr.Len())
}

func TestUpdateUnknownIDIsNoOp(t *testing.T) {
	tr, _, _, notifier := newTestTracker()

	tr.Update(context.Background(), "ghost", Update{Percentage: ptr(10)})

	require.Zero(t, tr.Len())
	require.Empty(t, notifier.Events())
}

func TestUpdateMerges(t *testing.T) {
	tr, _, _, _ := newTestTracker()
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "op-1", "crawl", map[string]any{"url": "a", "depth": 2}))
	tr.Update(ctx, "op-1", Update{
		Status:     ptr(StatusRunning),
		Percentage: ptr(40),
		Step:       ptr("fetching pages"),
		Log:        ptr("fetched 12 pages"),
		Meta:       map[string]any{"depth": 3, "pages": 12},
	})

	op, _ := tr.Status("op-1")
	require.Equal(t, StatusRunning, op.Status)
	require.Equal(t, 40, op.Percentage)
	require.Equal(t, "fetching pages", op.Step)
	require.Equal(t, []string{"Starting crawl", "fetched 12 pages"}, op.Logs)
	require.Equal(t, "a", op.Meta["url"])
	require.Equal(t, 3, op.Meta["depth"])
	require.Equal(t, 12, op.Meta["pages"])
}

func TestUpdatePartialFieldsLeaveRestUntouched(t *testing.T) {
	tr, _, _, _ := newTestTracker()
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "op-1", "crawl", nil))
	tr.Update(ctx, "op-1", Update{Status: ptr(StatusRunning), Percentage: ptr(25)})
	tr.Update(ctx, "op-1", Update{Step: ptr("chunking")})

	op, _ := tr.Status("op-1")
	require.Equal(t, StatusRunning, op.Status)
	require.Equal(t, 25, op.Percentage)
	require.Equal(t, "chunking", op.Step)
}

func TestLogWindowCap(t *testing.T) {
	tr, _, _, _ := newTestTracker()
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "op-1", "crawl", nil))
	for i := 0; i < 60; i++ {
		tr.Update(ctx, "op-1", Update{Log: ptr(logEntry(i))})
	}

	op, _ := tr.Status("op-1")
	require.Len(t, op.Logs, maxLogEntries)
	require.Equal(t, logEntry(10), op.Logs[0])
	require.Equal(t, logEntry(59), op.Logs[len(op.Logs)-1])
	require.NotContains(t, op.Logs, logEntry(9))
	require.NotContains(t, op.Logs, "Starting crawl")
}

func logEntry(i int) string {
	return fmt.Sprintf("processed batch %d", i)
}

func TestComplete(t *testing.T) {
	tr, clk, sched, _ := newTestTracker()
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "op-1", "crawl", nil))
	clk.Advance(90 * time.Second)
	tr.Complete(ctx, "op-1", map[string]any{"pages": 40})

	op, ok := tr.Status("op-1")
	require.True(t, ok)
	require.Equal(t, StatusCompleted, op.Status)
	require.Equal(t, 100, op.Percentage)
	require.Equal(t, "finished", op.Step)
	require.Equal(t, 90*time.Second, op.Duration)
	require.Equal(t, 40, op.Meta["pages"])
	require.Contains(t, op.Logs, "crawl completed successfully")

	require.Equal(t, 1, sched.Pending())
	sched.Fire()
	_, ok = tr.Status("op-1")
	require.False(t, ok)
}

func TestCompleteGracePeriodDelay(t *testing.T) {
	tr, _, sched, _ := newTestTracker()
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "op-1", "crawl", nil))
	tr.Complete(ctx, "op-1", nil)

	sched.mu.Lock()
	delay := sched.tasks[0].delay
	sched.mu.Unlock()
	require.Equal(t, GracePeriod, delay)
}

func TestRestartCancelsPendingPurge(t *testing.T) {
	tr, _, sched, _ := newTestTracker()
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "op-1", "crawl", nil))
	tr.Complete(ctx, "op-1", nil)
	require.NoError(t, tr.Start(ctx, "op-1", "crawl", nil))

	sched.Fire()

	op, ok := tr.Status("op-1")
	require.True(t, ok)
	require.Equal(t, StatusStarting, op.Status)
}

func TestStalePurgeCannotRemoveRecreatedRecord(t *testing.T) {
	tr, _, sched, _ := newTestTracker()
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "op-1", "crawl", nil))
	tr.Complete(ctx, "op-1", nil)

	sched.mu.Lock()
	purge := sched.tasks[0].fn
	sched.mu.Unlock()

	require.NoError(t, tr.Start(ctx, "op-1", "crawl", nil))

	// A real timer whose callback is already running survives its cancel.
	// Running the stale callback after the restart must leave the new
	// record intact.
	purge()

	op, ok := tr.Status("op-1")
	require.True(t, ok)
	require.Equal(t, StatusStarting, op.Status)
}

func TestErrorDoesNotScheduleCleanup(t *testing.T) {
	tr, _, sched, _ := newTestTracker()
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "op-1", "crawl", nil))
	tr.Error(ctx, "op-1", "provider quota exhausted")

	op, ok := tr.Status("op-1")
	require.True(t, ok)
	require.Equal(t, StatusError, op.Status)
	require.Equal(t, "failed", op.Step)
	require.Equal(t, "provider quota exhausted", op.Err)
	require.Contains(t, op.Logs, "Operation failed: provider quota exhausted")

	// Failed records linger for inspection: no purge is scheduled.
	require.Zero(t, sched.Pending())
	sched.Fire()
	_, ok = tr.Status("op-1")
	require.True(t, ok)
}

func TestListActiveExcludesTerminal(t *testing.T) {
	tr, clk, _, _ := newTestTracker()
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "op-running", "crawl", nil))
	clk.Advance(time.Second)
	require.NoError(t, tr.Start(ctx, "op-starting", "upload", nil))
	clk.Advance(time.Second)
	require.NoError(t, tr.Start(ctx, "op-done", "crawl", nil))
	require.NoError(t, tr.Start(ctx, "op-failed", "crawl", nil))

	tr.Update(ctx, "op-running", Update{Status: ptr(StatusRunning)})
	tr.Complete(ctx, "op-done", nil)
	tr.Error(ctx, "op-failed", "boom")

	active := tr.ListActive()
	require.Len(t, active, 2)
	require.Equal(t, "op-running", active[0].ID)
	require.Equal(t, "op-starting", active[1].ID)

	// Terminal records are still resident, just not active.
	require.Equal(t, 4, tr.Len())
}

func TestNotifierEvents(t *testing.T) {
	tr, _, _, notifier := newTestTracker()
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "op-1", "crawl", nil))
	tr.Update(ctx, "op-1", Update{Status: ptr(StatusRunning), Percentage: ptr(50)})
	tr.Complete(ctx, "op-1", nil)

	require.NoError(t, tr.Start(ctx, "op-2", "upload", nil))
	tr.Error(ctx, "op-2", "boom")

	events := notifier.Events()
	require.Len(t, events, 5)
	require.Equal(t, "crawl_progress", events[0].event)
	require.Equal(t, "crawl_progress", events[1].event)
	require.Equal(t, "crawl_completed", events[2].event)
	require.Equal(t, "upload_progress", events[3].event)
	require.Equal(t, "upload_error", events[4].event)

	payload := events[2].payload
	require.Equal(t, "op-1", payload["operation_id"])
	require.Equal(t, "crawl", payload["operation_type"])
	require.Equal(t, "completed", payload["status"])
	require.Equal(t, 100, payload["percentage"])

	errPayload := events[4].payload
	require.Equal(t, "boom", errPayload["error"])
}

func TestNotifierFailureIsBestEffort(t *testing.T) {
	clk := newFakeClock()
	sched := &fakeScheduler{}
	notifier := &recordingNotifier{err: errors.New("channel down")}
	tr := New(clk, sched, notifier, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "op-1", "crawl", nil))
	tr.Update(ctx, "op-1", Update{Percentage: ptr(80)})

	op, ok := tr.Status("op-1")
	require.True(t, ok)
	require.Equal(t, 80, op.Percentage)
}

func TestPayloadTimestamps(t *testing.T) {
	tr, clk, _, notifier := newTestTracker()
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "op-1", "crawl", nil))
	clk.Advance(5 * time.Second)
	tr.Complete(ctx, "op-1", nil)

	events := notifier.Events()
	payload := events[len(events)-1].payload
	require.Equal(t, "2025-06-01T12:00:00Z", payload["start_time"])
	require.Equal(t, 5.0, payload["duration_seconds"])
}

func TestSweepStale(t *testing.T) {
	tr, clk, _, _ := newTestTracker()
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "op-old", "crawl", nil))
	tr.Error(ctx, "op-old", "never cleaned")
	clk.Advance(2 * time.Hour)
	require.NoError(t, tr.Start(ctx, "op-new", "crawl", nil))

	removed := tr.SweepStale(time.Hour)
	require.Equal(t, 1, removed)

	_, ok := tr.Status("op-old")
	require.False(t, ok)
	_, ok = tr.Status("op-new")
	require.True(t, ok)
}

func TestSnapshotsAreIsolated(t *testing.T) {
	tr, _, _, _ := newTestTracker()
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "op-1", "crawl", map[string]any{"k": "v"}))

	op, _ := tr.Status("op-1")
	op.Logs[0] = "mutated"
	op.Meta["k"] = "mutated"

	fresh, _ := tr.Status("op-1")
	require.Equal(t, "Starting crawl", fresh.Logs[0])
	require.Equal(t, "v", fresh.Meta["k"])
}

func TestConcurrentAccess(t *testing.T) {
	tr, _, _, _ := newTestTracker()
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "op-1", "crawl", nil))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Update(ctx, "op-1", Update{Percentage: ptr(n), Log: ptr("tick")})
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Status("op-1")
				tr.ListActive()
			}
		}()
	}
	wg.Wait()

	op, ok := tr.Status("op-1")
	require.True(t, ok)
	require.LessOrEqual(t, len(op.Logs), maxLogEntries)
}