// Package notify defines the push channel used to deliver operation progress
// events to interested clients.
package notify

import "context"

// Emitter pushes one named event with a JSON-serializable payload.
// Implementations must be safe for concurrent use.
type Emitter interface {
	Emit(ctx context.Context, event string, payload map[string]any) error
}
