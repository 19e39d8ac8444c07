// Package regulator computes the duration of each stepped sub-movement so
// that no axis exceeds its speed, acceleration or jerk limits.
//
// Two strategies share one contract: Core1 regulates a single scalar speed
// along the path, Core2 regulates the full per-axis speed vector. The
// strategy is selected once from the machine configuration.
package regulator

import (
	"errors"
	"math"

	"gostep/core"
	"gostep/standalone/config"
	"gostep/standalone/kinematics"
	"gostep/standalone/motion"
)

// Regulator is the speed regulation contract used by the pipeline and the
// orchestrator. Precompute runs in the foreground at enqueue time; every
// other method runs in the tick handler and must not allocate.
type Regulator interface {
	// Name returns the strategy name
	Name() string

	// Reset returns the regulator to rest
	Reset()

	// Precompute fills m.Regulation. The jerk planner's ending data must
	// already be saved.
	Precompute(m *motion.Movement)

	// Prime is called when m becomes the movement being stepped
	Prime(m *motion.Movement)

	// InitialiseSubMovement fills the regulation fields of a candidate
	InitialiseSubMovement(sm *motion.SubMovement)

	// Rescaled is notified when the pipeline rescales its increment
	Rescaled(ratio float64)

	// FirstTickDuration returns the duration, in µs, of the first
	// sub-movement stepped from rest
	FirstTickDuration(sm *motion.SubMovement) float64

	// NextTickDuration returns the duration, in µs, of sm. Zero means the
	// sub-movement carries no steps and expires immediately.
	NextTickDuration(sm *motion.SubMovement, d *motion.Distances) float64

	// Speed returns the regulated speed of the last sub-movement, units/s
	Speed() float64

	// BrakingDistance returns how many sub-movements of the stepping
	// movement it takes to come to rest from the current speed
	BrakingDistance() float64

	// Stats returns the regulation counters
	Stats() Stats
}

// Stats are the regulation counters
type Stats struct {
	ForcedDecelerations uint32
	Rescales            uint32
}

// New creates the regulator strategy named in the configuration
func New(strategy string, proj *kinematics.Projector) (Regulator, error) {
	switch strategy {
	case config.RegulatorCore1:
		return NewCore1(proj), nil
	case config.RegulatorCore2:
		return NewCore2(proj), nil
	default:
		return nil, errors.New("unknown regulator strategy: " + strategy)
	}
}

// base holds the per-axis limits in step units and the state shared by
// both strategies.
type base struct {
	proj *kinematics.Projector
	n    int

	maxSpeed [motion.MaxSteppers]float64 // steps/s
	accel    [motion.MaxSteppers]float64 // steps/s²
	jerk     [motion.MaxSteppers]float64 // steps/s
	inv2a    [motion.MaxSteppers]float64 // stop distance = v² * inv2a

	speed    float64 // units/s
	fromRest bool
	current  *motion.Movement
	stats    Stats
}

func newBase(proj *kinematics.Projector) base {
	b := base{proj: proj, n: proj.NumAxes(), fromRest: true}
	for i := 0; i < b.n; i++ {
		axis := proj.AxisConfig(i)
		b.maxSpeed[i] = axis.MaxSpeed * axis.StepsPerUnit
		b.accel[i] = axis.Acceleration * axis.StepsPerUnit
		b.jerk[i] = axis.Jerk * axis.StepsPerUnit
		b.inv2a[i] = 1 / (2 * b.accel[i])
	}
	return b
}

func (b *base) reset() {
	b.speed = 0
	b.fromRest = true
	b.current = nil
}

// precompute derives the movement constants common to both strategies.
// Ratios are sampled at both ends of the movement; the larger one bounds.
func (b *base) precompute(m *motion.Movement) {
	r := &m.Regulation
	r.Distance = (m.BeginDistance + m.EndDistance) / 2

	speed := m.Speed
	if group, ok := b.proj.Group(m.SpeedGroup); ok && (speed <= 0 || speed > group.MaxSpeed) {
		speed = group.MaxSpeed
	}
	accel, rest := math.Inf(1), math.Inf(1)
	for i := 0; i < b.n; i++ {
		ratio := math.Max(math.Abs(m.BeginRatios[i]), math.Abs(m.EndRatios[i]))
		if ratio == 0 {
			continue
		}
		accel = math.Min(accel, b.accel[i]/ratio)
		speed = math.Min(speed, b.maxSpeed[i]/ratio)
		rest = math.Min(rest, b.jerk[i]/ratio)
	}
	if math.IsInf(accel, 1) {
		accel = 0
	}
	r.Acceleration = accel
	r.Speed = speed
	r.RestSpeed = math.Min(rest, speed)
	r.RegulationTime = 0
	if speed > 0 {
		r.RegulationTime = r.Distance / speed * 1e6
	}
}

// InitialiseSubMovement sets the regulation time of a candidate. A
// sub-movement that steps only axes outside the speed group is timed as a
// nominal one.
func (b *base) InitialiseSubMovement(sm *motion.SubMovement) {
	r := &sm.Movement.Regulation
	if sm.MovementDistance == 0 && sm.MaxDistance > 0 {
		sm.MovementDistance = r.Distance
	}
	sm.RegulationTime = 0
	if r.Speed > 0 {
		sm.RegulationTime = sm.MovementDistance / r.Speed * 1e6
	}
}

// Rescaled counts increment rescales.
func (b *base) Rescaled(ratio float64) {
	b.stats.Rescales++
}

// restDuration is the larger of the target speed duration and the
// shortest duration no axis objects to when starting from rest.
func (b *base) restDuration(sm *motion.SubMovement) float64 {
	dur := sm.RegulationTime
	for i := 0; i < b.n; i++ {
		steps := math.Abs(float64(sm.Delta[i]))
		if steps == 0 {
			continue
		}
		dur = math.Max(dur, steps/b.jerk[i]*1e6)
	}
	return dur
}

// pointDuration stretches dur so the last sub-movement before rest or a
// jerk point is no faster than the axes' jerk allows.
func (b *base) pointDuration(sm *motion.SubMovement, d *motion.Distances, dur float64) float64 {
	if d.End == 0 {
		dur = math.Max(dur, b.restDuration(sm))
	}
	if m := sm.Movement; d.WatchJerk && d.Jerk == 0 && m.JerkSpeed > 0 {
		dur = math.Max(dur, sm.MovementDistance/m.JerkSpeed*1e6)
	}
	return dur
}

func (b *base) forced(d *motion.Distances) {
	b.stats.ForcedDecelerations++
	core.RecordTiming(core.EvtForcedDecel, 0, core.GetTime(), uint32(d.End), uint32(d.Jerk))
}

func (b *base) Speed() float64 {
	return b.speed
}

func (b *base) Stats() Stats {
	return b.stats
}
