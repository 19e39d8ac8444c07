package planner

import (
	"math"

	"gostep/standalone/kinematics"
	"gostep/standalone/motion"
)

// JerkPlanner links consecutive movements: it records the step distance
// and jerk ratios of each movement's first and last sub-movements and
// resolves the speed at which the boundary between two movements can be
// crossed without exceeding any axis jerk.
//
// SaveEndingData and ResolveBoundary share scratch buffers; calls must be
// strictly sequential. The pipeline side of the ordering is enforced by
// motion.Boundary.
type JerkPlanner struct {
	kin  kinematics.Kinematics
	proj *kinematics.Projector

	pos      [motion.MaxAxes]float64
	start    [motion.MaxAxes]float64
	from, to [motion.MaxSteppers]int32
}

// NewJerkPlanner creates a jerk planner
func NewJerkPlanner(kin kinematics.Kinematics, proj *kinematics.Projector) *JerkPlanner {
	return &JerkPlanner{kin: kin, proj: proj}
}

// SaveEndingData records the first and last sub-movements of m, evaluated
// with its pre-process function and the increments found earlier.
func (p *JerkPlanner) SaveEndingData(m *motion.Movement) {
	dir := 1.0
	if m.Reverse() {
		dir = -1.0
	}
	m.BeginDistance = p.sample(m, m.Begin, m.Begin+dir*m.BeginIncrement, &m.BeginSteps, &m.BeginRatios)
	m.EndDistance = p.sample(m, m.End-dir*m.EndIncrement, m.End, &m.EndSteps, &m.EndRatios)
}

// sample evaluates the sub-movement [a, b] and derives its jerk ratios:
// signed steps per unit of movement distance.
func (p *JerkPlanner) sample(m *motion.Movement, a, b float64, steps *[motion.MaxSteppers]int32, ratios *[motion.MaxSteppers]float64) float64 {
	n := p.proj.NumAxes()

	m.PreProcess(a, p.start[:n])
	p.kin.Translate(p.start[:n], p.from[:n])
	m.PreProcess(b, p.pos[:n])
	p.kin.Translate(p.pos[:n], p.to[:n])

	for i := 0; i < n; i++ {
		p.pos[i] -= p.start[i]
	}
	distance := p.proj.Project(m.SpeedGroup, p.pos[:n])

	for i := 0; i < n; i++ {
		steps[i] = p.to[i] - p.from[i]
		if distance > 0 {
			ratios[i] = float64(steps[i]) / distance
		} else {
			ratios[i] = 0
		}
	}
	return distance
}

// BoundarySpeed returns the highest speed at which prev can hand over to
// next without any axis exceeding its jerk. It is +Inf when no axis
// changes speed across the boundary.
func (p *JerkPlanner) BoundarySpeed(prev, next *motion.Movement) float64 {
	speed := math.Inf(1)
	for i := 0; i < p.proj.NumAxes(); i++ {
		diff := math.Abs(prev.EndRatios[i] - next.BeginRatios[i])
		if diff == 0 {
			continue
		}
		axis := p.proj.AxisConfig(i)
		if limit := axis.Jerk * axis.StepsPerUnit / diff; limit < speed {
			speed = limit
		}
	}
	return speed
}

// ResolveBoundary links next behind prev. Both must have their ending data
// saved and their regulation pre-computed. The jerk speed is capped by the
// regulated speed of both movements. When the pipeline already sealed
// prev's boundary, next is marked to start from rest and false is returned.
func (p *JerkPlanner) ResolveBoundary(next, prev *motion.Movement) bool {
	speed := p.BoundarySpeed(prev, next)
	speed = math.Min(speed, prev.Regulation.Speed)
	speed = math.Min(speed, next.Regulation.Speed)

	prev.JerkSpeed = speed
	prev.JerkReferenceAxis = 0
	best := -1.0
	for i := 0; i < p.proj.NumAxes(); i++ {
		axis := p.proj.AxisConfig(i)
		v := speed * prev.EndRatios[i]
		prev.JerkOffsets[i] = v * v / (2 * axis.Acceleration * axis.StepsPerUnit)
		if r := math.Abs(prev.EndRatios[i]); r > best {
			best = r
			prev.JerkReferenceAxis = i
		}
	}
	prev.JerkReferenceOffset = 0
	if s := prev.EndSteps[prev.JerkReferenceAxis]; s != 0 {
		prev.JerkReferenceOffset = prev.JerkOffsets[prev.JerkReferenceAxis] / math.Abs(float64(s))
	}

	if prev.Boundary.Resolve() {
		return true
	}
	next.StartsFromRest = true
	return false
}
