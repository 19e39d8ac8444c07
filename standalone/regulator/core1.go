package regulator

import (
	"math"

	"gostep/core"
	"gostep/standalone/kinematics"
	"gostep/standalone/motion"
)

// SpeedDistanceResolution is the number of speed distance units per
// nominal sub-movement. Accelerating or decelerating over one sub-movement
// moves the speed distance by exactly this amount.
const SpeedDistanceResolution = 1024

// rootScale is the fixed point scale of the tracked root: the square root
// runs on speed distance * rootScale², which keeps the truncation of the
// integer root well below one acceleration step.
const rootScale = 64

// Core1 regulates a single scalar speed along the path.
//
// The state is the "speed distance": the distance, in 1/1024 of a nominal
// sub-movement, needed to reach the current speed from rest at the
// movement's acceleration. At constant acceleration the sub-movement
// duration is AccelNumerator / sqrt(speed distance), so each tick costs one
// FastSqrt update and a division.
//
// The speed distance never exceeds End*1024 plus the speed distance of
// the rest speed, nor Jerk*1024 plus the jerk reference offset, so the
// machine reaches the end or the jerk point at a speed the axes' jerk
// allows.
type Core1 struct {
	base
	sqrt          core.FastSqrt
	speedDistance int64
	frozen        bool
}

// NewCore1 creates a Core1 regulator
func NewCore1(proj *kinematics.Projector) *Core1 {
	return &Core1{base: newBase(proj), sqrt: core.NewFastSqrt()}
}

func (c *Core1) Name() string {
	return "core1"
}

func (c *Core1) Reset() {
	c.reset()
	c.sqrt.Reset()
	c.speedDistance = 0
	c.frozen = false
}

// Precompute adds the acceleration numerator and the target and rest
// speed distances
func (c *Core1) Precompute(m *motion.Movement) {
	c.precompute(m)
	r := &m.Regulation
	r.AccelNumerator = 0
	r.TargetSpeedDistance = SpeedDistanceResolution
	r.RestSpeedDistance = 1
	if r.Acceleration > 0 && r.Distance > 0 {
		r.AccelNumerator = math.Sqrt(r.Distance/(2*r.Acceleration)) * 1e6 * math.Sqrt(SpeedDistanceResolution)
		r.TargetSpeedDistance = speedDistanceOf(r, r.Speed)
		r.RestSpeedDistance = speedDistanceOf(r, r.RestSpeed)
	}
}

// speedDistanceOf converts a speed to a speed distance under r. It
// truncates, so the speed it stands for is never above speed.
func speedDistanceOf(r *motion.Regulation, speed float64) int64 {
	if r.Acceleration <= 0 || r.Distance <= 0 {
		return SpeedDistanceResolution
	}
	sd := int64(speed * speed * SpeedDistanceResolution / (2 * r.Acceleration * r.Distance))
	if sd < 1 {
		sd = 1
	}
	return sd
}

// Prime converts the current speed into the new movement's speed distance
func (c *Core1) Prime(m *motion.Movement) {
	c.current = m
	c.frozen = false
	if m.StartsFromRest || c.speed == 0 {
		c.fromRest = true
		return
	}
	c.speedDistance = speedDistanceOf(&m.Regulation, c.speed)
	c.sqrt.Update(c.speedDistance * rootScale * rootScale)
}

func (c *Core1) FirstTickDuration(sm *motion.SubMovement) float64 {
	dur := c.restDuration(sm)
	c.fromRest = false
	c.frozen = false
	if dur <= 0 {
		return 0
	}
	c.speed = sm.MovementDistance / dur * 1e6
	c.speedDistance = speedDistanceOf(&sm.Movement.Regulation, c.speed)
	c.sqrt.Update(c.speedDistance * rootScale * rootScale)
	return dur
}

func (c *Core1) NextTickDuration(sm *motion.SubMovement, d *motion.Distances) float64 {
	if sm.MaxDistance == 0 {
		return 0
	}
	if c.fromRest {
		return c.FirstTickDuration(sm)
	}
	m := sm.Movement
	r := &m.Regulation
	const res = SpeedDistanceResolution

	sd := c.speedDistance
	if !c.frozen {
		target := r.TargetSpeedDistance
		switch {
		case sd+res < target:
			sd += res
		case sd-res > target:
			sd -= res
		default:
			sd = target
			c.frozen = true
		}
	}

	forced := false
	if limit := int64(d.End*res) + r.RestSpeedDistance; limit < sd {
		sd = limit
		forced = true
	}
	if d.WatchJerk {
		// the reference offset is the distance the reference axis needs
		// to come to rest from the jerk speed
		limit := int64((d.Jerk + m.JerkReferenceOffset) * res)
		if limit < sd {
			sd = limit
			forced = true
		}
	}
	if forced {
		c.forced(d)
		c.frozen = false
	}
	if sd < 1 {
		sd = 1
	}
	c.speedDistance = sd

	root := c.sqrt.Update(sd * rootScale * rootScale)
	if root == 0 || r.Distance == 0 {
		return 0
	}
	dur := r.AccelNumerator * rootScale / float64(root) * sm.MovementDistance / r.Distance
	dur = c.pointDuration(sm, d, dur)
	if dur > 0 {
		c.speed = sm.MovementDistance / dur * 1e6
	}
	return dur
}

// BrakingDistance is the speed distance above the rest speed, in
// sub-movements
func (c *Core1) BrakingDistance() float64 {
	if c.fromRest || c.current == nil {
		return 0
	}
	over := c.speedDistance - c.current.Regulation.RestSpeedDistance
	if over <= 0 {
		return 0
	}
	return float64(over) / SpeedDistanceResolution
}
