// Package memory contains an in-memory notifier implementation for tests.
package memory

import (
	"context"
	"sync"

	"github.com/kbforge/ingestd/internal/notify"
)

var _ notify.Emitter = (*Notifier)(nil)

// Notifier stores emitted events for inspection.
type Notifier struct {
	mu     sync.RWMutex
	events []Event
}

// Event captures one emit call.
type Event struct {
	Name    string
	Payload map[string]any
}

// New returns a memory Notifier.
func New() *Notifier {
	return &Notifier{}
}

// Emit records the event.
func (n *Notifier) Emit(_ context.Context, event string, payload map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, Event{Name: event, Payload: payload})
	return nil
}

// Events returns the recorded emits.
func (n *Notifier) Events() []Event {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Event, len(n.events))
	copy(out, n.events)
	return out
}
