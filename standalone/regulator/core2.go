package regulator

import (
	"math"

	"gostep/standalone/kinematics"
	"gostep/standalone/motion"
)

// Core2 regulates the full per-axis speed vector.
//
// Each tick it derives the window [min, max] of durations that keep every
// axis within its speed and acceleration limits, given the axis speeds of
// the previous tick, then picks the regulation duration clamped to that
// window. The duration is stretched when the axis speeds it implies could
// not be brought down to the jerk speed by the jerk point, or to the rest
// speed by the end, over the remaining sub-movements.
type Core2 struct {
	base
	velocity  [motion.MaxSteppers]float64 // signed, steps/s
	last      [motion.MaxSteppers]float64 // step distance of the last tick
	allowance bool                        // jerk allowance on the first tick of a movement
}

// NewCore2 creates a Core2 regulator
func NewCore2(proj *kinematics.Projector) *Core2 {
	return &Core2{base: newBase(proj)}
}

func (c *Core2) Name() string {
	return "core2"
}

func (c *Core2) Reset() {
	c.reset()
	c.velocity = [motion.MaxSteppers]float64{}
	c.last = [motion.MaxSteppers]float64{}
	c.allowance = false
}

func (c *Core2) Precompute(m *motion.Movement) {
	c.precompute(m)
}

// Prime grants the jerk allowance for the first tick of a linked movement
func (c *Core2) Prime(m *motion.Movement) {
	c.current = m
	if m.StartsFromRest || c.speed == 0 {
		c.fromRest = true
		return
	}
	c.allowance = true
}

func (c *Core2) FirstTickDuration(sm *motion.SubMovement) float64 {
	dur := c.restDuration(sm)
	c.fromRest = false
	c.allowance = false
	c.apply(sm, dur/1e6)
	return dur
}

// apply records the axis speeds implied by stepping sm over t seconds
func (c *Core2) apply(sm *motion.SubMovement, t float64) {
	if t <= 0 {
		return
	}
	for i := 0; i < c.n; i++ {
		c.velocity[i] = float64(sm.Delta[i]) / t
		c.last[i] = math.Abs(float64(sm.Delta[i]))
	}
	c.speed = sm.MovementDistance / t
}

func (c *Core2) NextTickDuration(sm *motion.SubMovement, d *motion.Distances) float64 {
	if sm.MaxDistance == 0 {
		return 0
	}
	if c.fromRest {
		return c.FirstTickDuration(sm)
	}
	m := sm.Movement

	minT, maxT := 0.0, math.Inf(1)
	// shortest duration after which every axis can still slow down in time
	brakeT := 0.0

	for i := 0; i < c.n; i++ {
		steps := float64(sm.Delta[i])
		dist := math.Abs(steps)
		v := c.velocity[i]
		a := c.accel[i]
		j := 0.0
		if c.allowance {
			j = c.jerk[i]
		}

		if dist == 0 {
			// the axis comes to rest within this tick
			minT = math.Max(minT, (math.Abs(v)-j)/a)
			continue
		}
		minT = math.Max(minT, dist/c.maxSpeed[i])

		// speed along this tick's direction; negative on reversal
		vin := v
		if steps < 0 {
			vin = -v
		}

		// acceleration bound: dist/T - vin <= a*T + j
		w := vin + j
		minT = math.Max(minT, (-w+math.Sqrt(w*w+4*a*dist))/(2*a))

		// deceleration bound: vin - dist/T <= a*T + j
		w = vin - j
		if disc := w*w - 4*a*dist; w > 0 && disc >= 0 {
			maxT = math.Min(maxT, (w-math.Sqrt(disc))/(2*a))
		}

		// the speed after this tick must still brake to the rest speed
		// over the end distance, and to the jerk speed by the jerk point
		cap2 := 2*a*d.End*dist + c.jerk[i]*c.jerk[i]
		if d.WatchJerk {
			cap2 = math.Min(cap2, 2*a*(d.Jerk*dist+m.JerkOffsets[i]))
		}
		if cap2 > 0 {
			brakeT = math.Max(brakeT, dist/math.Sqrt(cap2))
		}
	}
	if d.WatchJerk && d.Jerk == 0 && m.JerkSpeed > 0 {
		brakeT = math.Max(brakeT, sm.MovementDistance/m.JerkSpeed)
	}

	t := sm.RegulationTime / 1e6
	if brakeT > t {
		c.forced(d)
		t = brakeT
	}
	if t > maxT {
		t = maxT
	}
	if t < minT {
		t = minT
	}

	c.allowance = false
	c.apply(sm, t)
	return t * 1e6
}

// BrakingDistance is the largest number of last-tick step distances an
// axis needs to slow down to its jerk speed
func (c *Core2) BrakingDistance() float64 {
	if c.fromRest {
		return 0
	}
	ticks := 0.0
	for i := 0; i < c.n; i++ {
		v := math.Abs(c.velocity[i])
		if v <= c.jerk[i] || c.last[i] == 0 {
			continue
		}
		ticks = math.Max(ticks, (v*v-c.jerk[i]*c.jerk[i])*c.inv2a[i]/c.last[i])
	}
	return ticks
}
