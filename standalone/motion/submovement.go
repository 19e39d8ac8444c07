package motion

// SubMovement is one short step of the current movement, produced ahead of
// need by the pipeline and consumed exactly once by the tick handler.
type SubMovement struct {
	Movement *Movement

	Index    float64          // trajectory parameter of the candidate
	Position [MaxAxes]float64 // high-level candidate position
	Target   [MaxSteppers]int32
	Delta    [MaxSteppers]int32 // signed step distance from the previous position

	Steps Steps
	Dir   Signature

	MaxDistance      int32   // largest per-axis step count
	MovementDistance float64 // Delta projected on the speed group, units
	RegulationTime   float64 // duration at the movement's target speed, µs

	// Remaining is the parameter distance left after this sub-movement,
	// in nominal sub-movements of the movement. It strictly decreases and
	// is zero only on the last.
	Remaining float64
	Last      bool

	// Set when stepped
	Duration float64 // µs
	Speed    float64 // regulated speed, units/s
}

// Reset clears the sub-movement
func (s *SubMovement) Reset() {
	*s = SubMovement{}
}

// SetDelta stores delta and derives steps, direction and the max distance.
func (s *SubMovement) SetDelta(delta *[MaxSteppers]int32, n int) {
	s.Delta = *delta
	s.Dir = 0
	s.MaxDistance = 0
	s.Steps = Steps{}
	for i := 0; i < n && i < MaxSteppers; i++ {
		d := delta[i]
		if d < 0 {
			s.Dir = s.Dir.Set(i)
			d = -d
		}
		if d > s.MaxDistance {
			s.MaxDistance = d
		}
		if d > 255 {
			d = 255
		}
		s.Steps[i] = uint8(d)
	}
}

// Distances are the deceleration heuristics shared between the foreground
// and the tick handler. Foreground writes must happen inside a critical
// section.
type Distances struct {
	// End is the estimated distance, in sub-movements, until the machine
	// must be stopped: the rest of the stepping movement plus every queued
	// movement reachable through resolved boundaries.
	End float64
	// Jerk is the estimated distance, in sub-movements, to the next jerk point.
	Jerk float64
	// WatchJerk is set when the stepping movement ends at a resolved jerk point.
	WatchJerk bool
}
