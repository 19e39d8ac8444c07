package planner

import (
	"math"

	"gostep/standalone/config"
	"gostep/standalone/kinematics"
	"gostep/standalone/motion"
)

// IncrementComputer finds the trajectory parameter increments that make the
// first and last sub-movements of a segment hit the target step distance.
//
// It owns scratch position buffers and is not safe for concurrent use; the
// orchestrator calls it from the foreground only.
type IncrementComputer struct {
	kin      kinematics.Kinematics
	numAxes  int
	band     config.DistanceConfig
	initial  float64
	maxIter  int
	pos      [motion.MaxAxes]float64
	from, to [motion.MaxSteppers]int32
}

// NewIncrementComputer creates an increment computer for a machine
func NewIncrementComputer(kin kinematics.Kinematics, cfg *config.MachineConfig) *IncrementComputer {
	return &IncrementComputer{
		kin:     kin,
		numAxes: len(cfg.Axes),
		band:    cfg.Distance,
		initial: cfg.DefaultIncrement,
		maxIter: cfg.MaxIncrementIterations,
	}
}

// DetermineIncrements fills BeginIncrement, EndIncrement and EstimatedTicks.
// A segment that fits in a single sub-movement below the minimum distance
// returns motion.ErrMicroMovement. motion.ErrRunawayTrajectory is returned
// when the increment does not settle within the iteration cap.
func (c *IncrementComputer) DetermineIncrements(m *motion.Movement) error {
	span := math.Abs(m.End - m.Begin)
	if span == 0 || m.PreProcess == nil {
		return motion.ErrMicroMovement
	}
	dir := 1.0
	if m.Reverse() {
		dir = -1.0
	}

	begin, err := c.converge(m.PreProcess, m.Begin, dir, span)
	if err != nil {
		return err
	}
	end, err := c.converge(m.PreProcess, m.End, -dir, span)
	if err != nil {
		return err
	}

	m.BeginIncrement = begin
	m.EndIncrement = end
	m.EstimatedTicks = int(math.Ceil(span / ((begin + end) / 2)))
	if m.EstimatedTicks < 1 {
		m.EstimatedTicks = 1
	}
	return nil
}

// converge runs the proportional correction from point towards dir. The
// candidate never leaves the parameter range.
func (c *IncrementComputer) converge(fn motion.TrajectoryFunc, point, dir, span float64) (float64, error) {
	inc := c.initial
	if inc <= 0 {
		inc = span
	}
	target := float64(c.band.Target)

	for i := 0; i < c.maxIter; i++ {
		clamped := false
		if inc >= span {
			inc = span
			clamped = true
		}

		observed := c.StepDistance(fn, point, point+dir*inc)
		switch {
		case observed == 0:
			if clamped {
				return 0, motion.ErrMicroMovement
			}
			inc *= 2
		case observed < c.band.Min:
			if clamped {
				return 0, motion.ErrMicroMovement
			}
			inc *= target / float64(observed)
		case observed <= c.band.Max:
			return inc, nil
		default:
			inc *= target / float64(observed)
		}
	}
	return 0, motion.ErrRunawayTrajectory
}

// StepDistance returns the largest per-axis step distance between two
// trajectory parameters.
func (c *IncrementComputer) StepDistance(fn motion.TrajectoryFunc, a, b float64) int32 {
	n := c.numAxes
	fn(a, c.pos[:n])
	c.kin.Translate(c.pos[:n], c.from[:n])
	fn(b, c.pos[:n])
	c.kin.Translate(c.pos[:n], c.to[:n])

	var max int32
	for i := 0; i < n; i++ {
		d := c.to[i] - c.from[i]
		if d < 0 {
			d = -d
		}
		if d > max {
			max = d
		}
	}
	return max
}
