package motion

import "sync/atomic"

// MaxAxes is the maximum number of high-level axes a trajectory may produce
const MaxAxes = MaxSteppers

// TrajectoryFunc maps a path parameter to a high-level position. It writes
// into pos, which holds one entry per high-level axis, and must be a pure,
// total function over the movement's parameter range.
type TrajectoryFunc func(t float64, pos []float64)

// Request describes a segment to enqueue.
type Request struct {
	Begin, End float64

	// Trajectory is evaluated while stepping, after Init has run.
	Trajectory TrajectoryFunc

	// PreProcess is evaluated at enqueue time for increment and jerk
	// pre-computation. Defaults to Trajectory.
	PreProcess TrajectoryFunc

	// Init runs before the trajectory is first evaluated for stepping;
	// Finalize runs once the last sub-movement has been stepped.
	Init     func()
	Finalize func()

	SpeedGroup int
	Speed      float64   // target regulated speed, units/s
	Tools      Signature // tools powered during the movement
}

// BoundaryState tracks the jerk boundary between a movement and its successor.
type BoundaryState uint32

const (
	// BoundaryPending: no successor yet; the movement will stop at its end
	// unless the boundary is resolved before its tail sub-movement is produced.
	BoundaryPending BoundaryState = iota
	// BoundaryResolved: the successor was linked and jerk data is valid.
	BoundaryResolved
	// BoundarySealed: the tail was produced first; the successor starts from rest.
	BoundarySealed
	// BoundaryCommitted: the tail was produced after resolution; the
	// successor can no longer be detached.
	BoundaryCommitted
)

func (s BoundaryState) String() string {
	switch s {
	case BoundaryPending:
		return "pending"
	case BoundaryResolved:
		return "resolved"
	case BoundarySealed:
		return "sealed"
	case BoundaryCommitted:
		return "committed"
	}
	return "unknown"
}

// Boundary is the ownership handoff between the foreground, which resolves
// the boundary when the successor is enqueued, and the pipeline, which seals
// it when it produces the tail. Exactly one transition out of Pending wins.
type Boundary struct {
	state atomic.Uint32
}

// State returns the current boundary state
func (b *Boundary) State() BoundaryState {
	return BoundaryState(b.state.Load())
}

// Resolve moves Pending to Resolved. Jerk fields must be written before.
func (b *Boundary) Resolve() bool {
	return b.state.CompareAndSwap(uint32(BoundaryPending), uint32(BoundaryResolved))
}

// Seal moves Pending to Sealed.
func (b *Boundary) Seal() bool {
	return b.state.CompareAndSwap(uint32(BoundaryPending), uint32(BoundarySealed))
}

// Commit moves Resolved to Committed.
func (b *Boundary) Commit() bool {
	return b.state.CompareAndSwap(uint32(BoundaryResolved), uint32(BoundaryCommitted))
}

// Reopen moves Resolved back to Pending, detaching a successor that has
// not been committed yet.
func (b *Boundary) Reopen() bool {
	return b.state.CompareAndSwap(uint32(BoundaryResolved), uint32(BoundaryPending))
}

// Close is called when the tail is produced: it seals a pending boundary or
// commits a resolved one. It reports whether the boundary was sealed.
func (b *Boundary) Close() bool {
	if b.Seal() {
		return true
	}
	b.Commit()
	return false
}

// Linked reports whether a successor is attached at speed.
func (b *Boundary) Linked() bool {
	s := b.State()
	return s == BoundaryResolved || s == BoundaryCommitted
}

func (b *Boundary) reset() {
	b.state.Store(uint32(BoundaryPending))
}

// Regulation holds the per-movement constants pre-computed at enqueue time
// by the active speed regulator.
type Regulation struct {
	Distance       float64 // nominal movement distance of one sub-movement, units
	Acceleration   float64 // highest acceleration no axis objects to, units/s²
	Speed          float64 // target speed after axis and group clamps, units/s
	RegulationTime float64 // nominal sub-movement duration at Speed, µs
	RestSpeed      float64 // highest speed every axis can stop from within its jerk, units/s

	// Core1 constants
	AccelNumerator      float64 // duration = AccelNumerator / sqrt(speed distance), µs
	TargetSpeedDistance int64
	RestSpeedDistance   int64
}

// Movement is one queued trajectory segment. Slots live in the
// orchestrator's fixed queue and are reused; never copy a Movement.
type Movement struct {
	ID uint32

	Begin, End float64
	Trajectory TrajectoryFunc
	PreProcess TrajectoryFunc
	Init       func()
	Finalize   func()
	SpeedGroup int
	Speed      float64
	Tools      Signature

	// Filled by the increment computer
	BeginIncrement float64
	EndIncrement   float64
	EstimatedTicks int

	// Filled by the jerk planner: signed step distance, movement distance
	// and jerk ratios (steps per unit of movement distance) of the first
	// and last sub-movements.
	BeginSteps    [MaxSteppers]int32
	EndSteps      [MaxSteppers]int32
	BeginDistance float64
	EndDistance   float64
	BeginRatios   [MaxSteppers]float64
	EndRatios     [MaxSteppers]float64

	// Boundary with the next movement. JerkSpeed and the offsets are only
	// meaningful once Boundary is Resolved.
	Boundary            Boundary
	JerkSpeed           float64              // units/s
	JerkOffsets         [MaxSteppers]float64 // per-axis, steps
	JerkReferenceAxis   int
	JerkReferenceOffset float64 // reference axis offset, ticks

	// StartsFromRest is set when the predecessor sealed its boundary.
	StartsFromRest bool

	Regulation Regulation
}

// Load copies a request into the slot and clears all derived data.
func (m *Movement) Load(id uint32, r *Request) {
	m.Reset()
	m.ID = id
	m.Begin = r.Begin
	m.End = r.End
	m.Trajectory = r.Trajectory
	m.PreProcess = r.PreProcess
	if m.PreProcess == nil {
		m.PreProcess = r.Trajectory
	}
	m.Init = r.Init
	m.Finalize = r.Finalize
	m.SpeedGroup = r.SpeedGroup
	m.Speed = r.Speed
	m.Tools = r.Tools
}

// Reset clears the slot.
func (m *Movement) Reset() {
	m.ID = 0
	m.Begin, m.End = 0, 0
	m.Trajectory, m.PreProcess = nil, nil
	m.Init, m.Finalize = nil, nil
	m.SpeedGroup = 0
	m.Speed = 0
	m.Tools = 0
	m.BeginIncrement, m.EndIncrement = 0, 0
	m.EstimatedTicks = 0
	m.BeginSteps = [MaxSteppers]int32{}
	m.EndSteps = [MaxSteppers]int32{}
	m.BeginDistance, m.EndDistance = 0, 0
	m.BeginRatios = [MaxSteppers]float64{}
	m.EndRatios = [MaxSteppers]float64{}
	m.Boundary.reset()
	m.JerkSpeed = 0
	m.JerkOffsets = [MaxSteppers]float64{}
	m.JerkReferenceAxis = 0
	m.JerkReferenceOffset = 0
	m.StartsFromRest = false
	m.Regulation = Regulation{}
}

// Reverse reports whether the parameter runs from high to low.
func (m *Movement) Reverse() bool {
	return m.End < m.Begin
}

// WatchesJerk reports whether the movement ends at a resolved jerk point
// with a non-zero boundary speed.
func (m *Movement) WatchesJerk() bool {
	return m.Boundary.Linked() && m.JerkSpeed > 0
}
