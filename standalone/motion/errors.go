package motion

import "errors"

var (
	// ErrQueueFull is returned by Enqueue when no movement slot is free.
	// The caller should retry later.
	ErrQueueFull = errors.New("movement queue full")

	// ErrQueueLocked is returned by Enqueue while the last movement drains.
	ErrQueueLocked = errors.New("movement queue locked")

	// ErrMicroMovement marks a segment shorter than a single sub-movement.
	// It is rejected and counts as a completed no-op, not a failure.
	ErrMicroMovement = errors.New("micro-movement ignored")

	// ErrIntegrityViolation reports an internal consistency failure. It is
	// always escalated to an emergency stop.
	ErrIntegrityViolation = errors.New("motion integrity violation")

	// ErrRunawayTrajectory reports a trajectory function whose increment
	// could not be adapted within the retry budget.
	ErrRunawayTrajectory = errors.New("runaway trajectory function")

	// ErrNotIdle is returned by operations that require a stopped machine.
	ErrNotIdle = errors.New("orchestrator not idle")

	// ErrInvalidMovement reports a malformed enqueue request.
	ErrInvalidMovement = errors.New("invalid movement")
)
