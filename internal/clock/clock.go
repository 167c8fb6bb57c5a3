// Package clock declares time abstractions so components that schedule or
// timestamp work can be tested without waiting on the wall clock.
package clock

import "time"

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Scheduler runs a function after a delay. The returned cancel func stops the
// pending call; it is a no-op once the function has started.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) (cancel func())
}
