//go:build !tinygo

package core

import "sync/atomic"

// State is the saved interrupt state on regular Go
type State uintptr

// criticalDepth counts nested critical sections. Host builds dispatch timers
// from the caller's goroutine, so there is nothing to mask; the depth lets
// tests check that shared motion state is only touched under a section.
var criticalDepth int32

// DisableInterrupts enters a critical section and returns the previous state
func DisableInterrupts() State {
	return State(atomic.AddInt32(&criticalDepth, 1) - 1)
}

// RestoreInterrupts leaves the critical section entered by DisableInterrupts
func RestoreInterrupts(state State) {
	atomic.StoreInt32(&criticalDepth, int32(state))
}

// InCriticalSection reports whether a critical section is active
func InCriticalSection() bool {
	return atomic.LoadInt32(&criticalDepth) > 0
}
