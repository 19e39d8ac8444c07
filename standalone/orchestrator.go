package standalone

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"gostep/core"
	"gostep/internal/log"
	"gostep/standalone/config"
	"gostep/standalone/kinematics"
	"gostep/standalone/motion"
	"gostep/standalone/planner"
	"gostep/standalone/regulator"
	"gostep/standalone/stepgen"
)

// State of the stepping routine
type State uint32

const (
	StateIdle State = iota
	StateRunning
	// StateStopPending: a graceful stop was requested; stepping ends with
	// the movement the pipeline is producing.
	StateStopPending
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopPending:
		return "stop-pending"
	}
	return "unknown"
}

// maxImmediateTicks bounds the zero-duration sub-movements handled in a
// single timer callback.
const maxImmediateTicks = 64

var (
	errPipelineDry = fmt.Errorf("%w: sub-movement pipeline empty", motion.ErrIntegrityViolation)
	errForeignTick = fmt.Errorf("%w: sub-movement does not belong to the stepping movement", motion.ErrIntegrityViolation)
	errStalled     = fmt.Errorf("%w: no progress after %d immediate ticks", motion.ErrIntegrityViolation, maxImmediateTicks)
	errNoDiscard   = fmt.Errorf("%w: no movement can be discarded", motion.ErrInvalidMovement)
)

// brakingMargin is the number of sub-movements kept on top of the braking
// distance when a stop point is moved: the pending sub-movement is already
// timed.
const brakingMargin = 1

// Stats are the orchestrator counters
type Stats struct {
	Ticks               uint32
	MovementsCompleted  uint32
	MicroMovements      uint32
	Rescales            uint32
	ForcedDecelerations uint32
	SealedBoundaries    uint32
	EmergencyStops      uint32
}

// Options are the collaborators of an Orchestrator. Nil fields get defaults.
type Options struct {
	Sink   core.StepSink      // defaults to core.NullSink
	Tools  core.ToolPowerSink // optional
	Logger *slog.Logger       // defaults to the global logger
}

// Orchestrator owns the movement queue and drives the timer based stepping
// loop. Enqueue, Discard, Start, Stop and the queries run in the
// foreground; the timer handler runs in interrupt context.
type Orchestrator struct {
	proj *kinematics.Projector
	ic   *planner.IncrementComputer
	jp   *planner.JerkPlanner
	reg  regulator.Regulator
	pipe *stepgen.Pipeline

	queue  movementQueue
	sink   core.StepSink
	tools  core.ToolPowerSink
	logger *slog.Logger

	toolCount int
	toolCoeff [core.MaxSteppers]float64
	toolMax   [core.MaxSteppers]float64

	timer  core.Timer
	state  atomic.Uint32
	nextID uint32

	// interrupt context
	pending    motion.SubMovement
	hasPending bool
	distances  motion.Distances
	chainTicks float64
	stopAt     *motion.Movement
	restart    bool // movements were enqueued while a stop was pending
	position   [motion.MaxSteppers]int32
	stats      Stats

	lastErr       error
	report        atomic.Bool
	reportedCause error
}

// NewOrchestrator builds the motion core for a machine
func NewOrchestrator(cfg *config.MachineConfig, opts Options) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	kin, err := kinematics.New(cfg)
	if err != nil {
		return nil, err
	}
	proj, err := kinematics.NewProjector(cfg)
	if err != nil {
		return nil, err
	}
	reg, err := regulator.New(cfg.Regulator, proj)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		proj:   proj,
		ic:     planner.NewIncrementComputer(kin, cfg),
		jp:     planner.NewJerkPlanner(kin, proj),
		reg:    reg,
		sink:   opts.Sink,
		tools:  opts.Tools,
		logger: opts.Logger,
	}
	if o.sink == nil {
		o.sink = core.NullSink{}
	}
	if o.logger == nil {
		o.logger = log.L()
	}
	o.logger = o.logger.With("component", "orchestrator", "regulator", reg.Name())

	o.queue.init(cfg.MovementQueueSize)
	o.pipe = stepgen.NewPipeline(kin, proj, reg, &o.queue, cfg)
	o.timer.Handler = o.handleTick

	o.toolCount = len(cfg.Tools)
	for i, tool := range cfg.Tools {
		o.toolCoeff[i] = tool.LinearPowerCoefficient
		o.toolMax[i] = tool.MaxPower
	}
	o.state.Store(uint32(StateIdle))
	return o, nil
}

// Enqueue appends a movement. It fails with motion.ErrQueueFull or
// motion.ErrQueueLocked when the queue cannot take it; the caller should
// retry later. A movement shorter than one sub-movement returns
// motion.ErrMicroMovement and leaves the queue untouched.
func (o *Orchestrator) Enqueue(req *motion.Request) error {
	o.flushReport()
	if req == nil || req.Trajectory == nil {
		return fmt.Errorf("%w: missing trajectory", motion.ErrInvalidMovement)
	}
	if _, ok := o.proj.Group(req.SpeedGroup); !ok {
		return fmt.Errorf("%w: unknown speed group %d", motion.ErrInvalidMovement, req.SpeedGroup)
	}
	if o.queue.locked.Load() {
		return motion.ErrQueueLocked
	}

	irq := core.DisableInterrupts()
	m := o.queue.reserve()
	core.RestoreInterrupts(irq)
	if m == nil {
		return motion.ErrQueueFull
	}

	o.nextID++
	if o.nextID == 0 {
		o.nextID = 1
	}
	m.Load(o.nextID, req)

	if err := o.ic.DetermineIncrements(m); err != nil {
		m.Reset()
		if errors.Is(err, motion.ErrMicroMovement) {
			irq = core.DisableInterrupts()
			o.stats.MicroMovements++
			core.RestoreInterrupts(irq)
		}
		return err
	}
	o.jp.SaveEndingData(m)
	if m.BeginDistance == 0 && m.EndDistance == 0 {
		m.Reset()
		return fmt.Errorf("%w: no motion in speed group %d", motion.ErrInvalidMovement, req.SpeedGroup)
	}
	o.reg.Precompute(m)

	irq = core.DisableInterrupts()
	if o.queue.locked.Load() {
		core.RestoreInterrupts(irq)
		m.Reset()
		return motion.ErrQueueLocked
	}
	if prev := o.queue.newest(); prev != nil {
		o.jp.ResolveBoundary(m, prev)
	}
	o.queue.commit()
	if o.State() == StateStopPending {
		o.restart = true
	}
	o.recomputeChain()
	core.RestoreInterrupts(irq)
	return nil
}

// Discard removes the most recently enqueued movement as long as stepping
// has not reached it and its predecessor can still be detached. It is
// refused when detaching would leave the machine too little room to brake
// before the predecessor's end.
func (o *Orchestrator) Discard() error {
	o.flushReport()
	irq := core.DisableInterrupts()
	defer core.RestoreInterrupts(irq)

	m := o.queue.newest()
	if m == nil {
		return errNoDiscard
	}
	if o.State() != StateIdle && (m == o.queue.front() || m == o.pipe.Current()) {
		return fmt.Errorf("%w: movement %d already started", motion.ErrInvalidMovement, m.ID)
	}
	if prev := o.queue.before(m); prev != nil && prev.Boundary.Linked() {
		if o.State() != StateIdle {
			if left, reached := o.distanceTo(prev); reached && left < o.reg.BrakingDistance()+brakingMargin {
				return fmt.Errorf("%w: movement %d is needed to brake", motion.ErrInvalidMovement, m.ID)
			}
		}
		if !prev.Boundary.Reopen() {
			return fmt.Errorf("%w: movement %d already bound to its predecessor", motion.ErrInvalidMovement, m.ID)
		}
	}
	o.queue.dropNewest()
	o.recomputeChain()
	return nil
}

// Start begins stepping the queue. It is a no-op when already running or
// when the queue is empty. A runaway trajectory found while filling the
// pipeline is returned after an emergency stop.
func (o *Orchestrator) Start() error {
	o.flushReport()
	if o.State() != StateIdle || o.queue.len() == 0 {
		return nil
	}

	irq := core.DisableInterrupts()
	err := o.begin()
	if err == nil {
		o.timer.WakeTime = core.GetTime()
		core.ScheduleTimer(&o.timer)
	}
	core.RestoreInterrupts(irq)

	if err != nil {
		o.emergencyStop(err)
		o.flushReport()
		return err
	}
	o.logger.Debug("stepping started", "movements", o.queue.len())
	return nil
}

// Stop requests a graceful stop: stepping ends, decelerating to rest, at
// the end of the first movement, from the one being produced on, that
// leaves room to brake from the current speed. Movements queued after it
// stay queued for the next Start, unless more are enqueued before the
// machine is at rest: stepping then resumes on its own.
func (o *Orchestrator) Stop() {
	o.flushReport()
	irq := core.DisableInterrupts()
	defer core.RestoreInterrupts(irq)

	if o.State() != StateRunning {
		return
	}
	target := o.pipe.Current()
	if target == nil {
		return
	}
	// a committed boundary cannot be detached: stop one movement later
	if target.Boundary.State() == motion.BoundaryCommitted {
		if next := o.queue.after(target); next != nil {
			target = next
		}
	}
	need := o.reg.BrakingDistance() + brakingMargin
	for {
		left, reached := o.distanceTo(target)
		next := o.queue.after(target)
		if !reached || left >= need || next == nil || !target.Boundary.Linked() {
			break
		}
		target = next
	}
	target.Boundary.Reopen()
	target.Boundary.Seal()
	if next := o.queue.after(target); next != nil {
		next.StartsFromRest = true
	}

	o.stopAt = target
	o.pipe.HoldAfter(target.ID)
	o.recomputeChain()
	o.state.Store(uint32(StateStopPending))
	core.RecordTiming(core.EvtStop, uint8(target.ID), core.GetTime(), target.ID, 1)
}

// EmergencyStop immediately disables the timer, halts the stepping sink,
// forces every tool output to zero and discards all queued state. It can
// be called from any state, including from the tick handler.
func (o *Orchestrator) EmergencyStop(cause error) {
	o.emergencyStop(cause)
	o.flushReport()
}

func (o *Orchestrator) emergencyStop(cause error) {
	irq := core.DisableInterrupts()
	core.CancelTimer(&o.timer)
	o.sink.Stop()
	o.stopTools()
	o.pipe.Reset()
	o.reg.Reset()
	o.queue.reset()
	o.pending.Reset()
	o.hasPending = false
	o.distances = motion.Distances{}
	o.chainTicks = 0
	o.stopAt = nil
	o.restart = false
	o.position = [motion.MaxSteppers]int32{}
	o.stats.EmergencyStops++
	o.lastErr = cause
	o.reportedCause = cause
	o.state.Store(uint32(StateIdle))
	core.RestoreInterrupts(irq)

	core.RecordTiming(core.EvtEmergencyStop, 0, core.GetTime(), o.stats.EmergencyStops, causeCode(cause))
	o.report.Store(true)
}

// causeCode classifies an emergency stop cause for the timing ring
func causeCode(err error) uint32 {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, motion.ErrIntegrityViolation):
		return 1
	case errors.Is(err, motion.ErrRunawayTrajectory):
		return 2
	default:
		return 3
	}
}

// flushReport logs an emergency stop raised in the tick handler, once,
// from the foreground.
func (o *Orchestrator) flushReport() {
	if !o.report.CompareAndSwap(true, false) {
		return
	}
	irq := core.DisableInterrupts()
	cause := o.reportedCause
	count := o.stats.EmergencyStops
	core.RestoreInterrupts(irq)

	if cause == nil {
		o.logger.Error("EMERGENCY STOP", "cause", "requested", "count", count)
	} else {
		o.logger.Error("EMERGENCY STOP", "cause", cause, "count", count)
	}
	core.DumpTimingRing()
}

// begin primes the regulator and the pipeline for the head movement and
// prepares the first sub-movement.
func (o *Orchestrator) begin() error {
	head := o.queue.front()
	if head == nil {
		return errPipelineDry
	}
	o.reg.Reset()
	o.pipe.Reset()
	o.stopAt = nil
	o.restart = false
	o.hasPending = false

	o.reg.Prime(head)
	o.pipe.Begin(head)
	o.recomputeChain()
	if err := o.pipe.Fill(); err != nil {
		return err
	}
	if !o.pipe.Pop(&o.pending) {
		return errPipelineDry
	}
	o.updateDistances(&o.pending)
	o.pending.Duration = o.reg.FirstTickDuration(&o.pending)
	o.pending.Speed = o.reg.Speed()
	o.hasPending = true
	o.state.Store(uint32(StateRunning))
	core.RecordTiming(core.EvtSwitch, uint8(head.ID), core.GetTime(), head.ID, 0)
	return nil
}

// handleTick is the timer handler. It steps the pending sub-movement,
// switches movements, and prepares the next sub-movement. Zero-duration
// sub-movements expire immediately.
func (o *Orchestrator) handleTick(t *core.Timer) uint8 {
	for spins := 0; spins < maxImmediateTicks; spins++ {
		if !o.hasPending {
			if o.finishRun() {
				t.WakeTime = core.GetTime()
				return core.SF_RESCHEDULE
			}
			return core.SF_DONE
		}

		sm := &o.pending
		ticks := core.TimerFromUSFloat(sm.Duration)
		o.step(sm, ticks)
		if !o.hasPending {
			// emergency stop from the sink
			return core.SF_DONE
		}

		if sm.Last {
			more, err := o.finishMovement()
			if err != nil {
				o.emergencyStop(err)
				return core.SF_DONE
			}
			if !more {
				// let the last sub-movement play out before going idle
				o.hasPending = false
				if ticks == 0 {
					continue
				}
				return o.reschedule(t, ticks)
			}
		}

		if err := o.prepare(); err != nil {
			o.emergencyStop(err)
			return core.SF_DONE
		}
		if ticks == 0 {
			continue
		}
		return o.reschedule(t, ticks)
	}
	o.emergencyStop(errStalled)
	return core.SF_DONE
}

func (o *Orchestrator) reschedule(t *core.Timer, ticks uint32) uint8 {
	t.WakeTime += ticks
	if now := core.GetTime(); int32(t.WakeTime-now) < 0 {
		core.RecordTiming(core.EvtTimerPast, 0, now, t.WakeTime, ticks)
	}
	return core.SF_RESCHEDULE
}

// step hands a sub-movement to the sink and updates the tool outputs
func (o *Orchestrator) step(sm *motion.SubMovement, ticks uint32) {
	if sm.MaxDistance > 0 || ticks > 0 {
		o.sink.Emit(sm.Dir.Bits(), &sm.Steps, ticks)
	}
	o.position = sm.Target
	o.updateTools(sm)
	o.stats.Ticks++
	core.RecordTiming(core.EvtTick, uint8(sm.Movement.ID), core.GetTime(), ticks, uint32(sm.Dir))
}

// prepare pops the next sub-movement and asks the regulator for its duration
func (o *Orchestrator) prepare() error {
	if err := o.pipe.Fill(); err != nil {
		return err
	}
	if !o.pipe.Pop(&o.pending) {
		return errPipelineDry
	}
	if o.pending.Movement != o.queue.front() {
		return errForeignTick
	}
	o.updateDistances(&o.pending)
	o.pending.Duration = o.reg.NextTickDuration(&o.pending, &o.distances)
	o.pending.Speed = o.reg.Speed()
	return nil
}

// finishMovement runs once the last sub-movement of the head movement has
// been stepped. It reports whether stepping continues with a successor.
func (o *Orchestrator) finishMovement() (bool, error) {
	done := o.queue.front()
	if done == nil || done != o.pending.Movement {
		return false, errForeignTick
	}
	if done.Finalize != nil {
		done.Finalize()
	}
	stop := done == o.stopAt
	o.queue.pop()
	o.stats.MovementsCompleted++

	next := o.queue.front()
	if stop || next == nil {
		if next == nil {
			o.queue.locked.Store(true)
		}
		return false, nil
	}

	o.reg.Prime(next)
	o.switchTools(next)
	o.recomputeChain()
	core.RecordTiming(core.EvtSwitch, uint8(next.ID), core.GetTime(), next.ID, 0)
	return true, nil
}

// finishRun moves to Idle once the last sub-movement played out. Movements
// left behind by a graceful stop wait for the next Start, unless some were
// enqueued during the drain: stepping then restarts from rest and true is
// returned.
func (o *Orchestrator) finishRun() bool {
	restart := o.restart && o.queue.len() > 0
	o.restart = false
	o.stopTools()
	o.sink.Stop()
	o.pipe.Reset()
	o.reg.Reset()
	o.stopAt = nil
	o.chainTicks = 0
	o.distances = motion.Distances{}
	o.queue.locked.Store(false)
	o.state.Store(uint32(StateIdle))
	core.RecordTiming(core.EvtStop, 0, core.GetTime(), o.stats.MovementsCompleted, 0)
	if !restart {
		return false
	}
	if err := o.begin(); err != nil {
		o.emergencyStop(err)
		return false
	}
	return true
}

// distanceTo returns the estimated sub-movements left before the end of
// m, and whether stepping reaches m without stopping first.
func (o *Orchestrator) distanceTo(m *motion.Movement) (float64, bool) {
	cur := o.queue.front()
	if cur == nil {
		return 0, false
	}
	left := float64(cur.EstimatedTicks)
	if o.hasPending && o.pending.Movement == cur {
		left = o.pending.Remaining
	}
	for cur != m {
		if cur == o.stopAt || !cur.Boundary.Linked() {
			return left, false
		}
		if cur = o.queue.after(cur); cur == nil {
			return left, false
		}
		left += float64(cur.EstimatedTicks)
	}
	return left, true
}

// updateDistances publishes the deceleration heuristics for sm
func (o *Orchestrator) updateDistances(sm *motion.SubMovement) {
	m := sm.Movement
	linked := m.Boundary.Linked() && m != o.stopAt
	o.distances.Jerk = sm.Remaining
	o.distances.End = sm.Remaining
	if linked {
		o.distances.End += o.chainTicks
	}
	o.distances.WatchJerk = linked && m.JerkSpeed > 0
}

// recomputeChain sums the estimated ticks of the movements reachable from
// the head through linked boundaries. Foreground callers hold the
// interrupt lock.
func (o *Orchestrator) recomputeChain() {
	o.chainTicks = 0
	m := o.queue.front()
	for m != nil && m != o.stopAt && m.Boundary.Linked() {
		next := o.queue.after(m)
		if next == nil {
			break
		}
		o.chainTicks += float64(next.EstimatedTicks)
		m = next
	}
}

// updateTools sets the power of the tools enabled by the movement,
// proportional to the regulated speed
func (o *Orchestrator) updateTools(sm *motion.SubMovement) {
	if o.tools == nil {
		return
	}
	for i := 0; i < o.toolCount; i++ {
		if !sm.Movement.Tools.Has(i) {
			continue
		}
		power := o.toolCoeff[i] * sm.Speed
		if power > o.toolMax[i] {
			power = o.toolMax[i]
		}
		if power < 0 {
			power = 0
		}
		o.tools.SetToolPower(i, power)
	}
}

// switchTools turns off the tools the next movement does not use
func (o *Orchestrator) switchTools(next *motion.Movement) {
	if o.tools == nil {
		return
	}
	for i := 0; i < o.toolCount; i++ {
		if !next.Tools.Has(i) {
			o.tools.SetToolPower(i, 0)
		}
	}
}

func (o *Orchestrator) stopTools() {
	if o.tools == nil {
		return
	}
	for i := 0; i < o.toolCount; i++ {
		o.tools.SetToolPower(i, 0)
	}
}

// State returns the stepping routine state
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// QueueHasSpace reports whether Enqueue would find a free slot
func (o *Orchestrator) QueueHasSpace() bool {
	return uint32(o.queue.len()) < o.queue.capacity
}

// QueueIsLocked reports whether the queue is in its final drain window
func (o *Orchestrator) QueueIsLocked() bool {
	return o.queue.locked.Load()
}

// QueueLen returns the number of queued movements, including the one
// being stepped
func (o *Orchestrator) QueueLen() int {
	return o.queue.len()
}

// QueuedIDs appends the ids of the queued movements, oldest first
func (o *Orchestrator) QueuedIDs(dst []uint32) []uint32 {
	irq := core.DisableInterrupts()
	defer core.RestoreInterrupts(irq)
	return o.queue.ids(dst)
}

// LastError returns the cause of the last emergency stop
func (o *Orchestrator) LastError() error {
	o.flushReport()
	irq := core.DisableInterrupts()
	defer core.RestoreInterrupts(irq)
	return o.lastErr
}

// Position returns the step coordinates reached by the last stepped
// sub-movement
func (o *Orchestrator) Position() [motion.MaxSteppers]int32 {
	irq := core.DisableInterrupts()
	defer core.RestoreInterrupts(irq)
	return o.position
}

// Distances returns the deceleration heuristics of the pending sub-movement
func (o *Orchestrator) Distances() motion.Distances {
	irq := core.DisableInterrupts()
	defer core.RestoreInterrupts(irq)
	return o.distances
}

// Stats returns the orchestrator counters merged with the pipeline and
// regulator ones
func (o *Orchestrator) Stats() Stats {
	o.flushReport()
	irq := core.DisableInterrupts()
	defer core.RestoreInterrupts(irq)

	s := o.stats
	ps := o.pipe.Stats()
	rs := o.reg.Stats()
	s.Rescales = ps.Rescales
	s.SealedBoundaries = ps.Sealed
	s.ForcedDecelerations = rs.ForcedDecelerations
	return s
}

// Regulator returns the active regulation strategy
func (o *Orchestrator) Regulator() regulator.Regulator {
	return o.reg
}
