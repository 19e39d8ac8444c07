package standalone

import (
	"math"

	"gostep/standalone/motion"
)

// LinePath returns a straight trajectory from `from` to `to` over the
// parameter range [0, 1]. Both slices are copied.
func LinePath(from, to []float64) motion.TrajectoryFunc {
	a := append([]float64(nil), from...)
	b := append([]float64(nil), to...)
	return func(t float64, pos []float64) {
		for i := range pos {
			if i >= len(a) || i >= len(b) {
				pos[i] = 0
				continue
			}
			pos[i] = a[i] + (b[i]-a[i])*t
		}
	}
}

// ArcPath returns a circular trajectory in the plane of the first two axes
// over [0, 1]. It starts at `from` and turns by angle radians around
// center, counter-clockwise when angle is positive. The remaining axes move
// linearly from `from` to `to`; to may be nil to keep them still.
func ArcPath(from, to []float64, center [2]float64, angle float64) motion.TrajectoryFunc {
	a := append([]float64(nil), from...)
	b := append([]float64(nil), from...)
	for i := 2; i < len(b) && i < len(to); i++ {
		b[i] = to[i]
	}
	var dx, dy float64
	if len(a) >= 2 {
		dx, dy = a[0]-center[0], a[1]-center[1]
	}
	radius := math.Hypot(dx, dy)
	start := math.Atan2(dy, dx)

	return func(t float64, pos []float64) {
		for i := range pos {
			switch {
			case i >= len(a):
				pos[i] = 0
			case i == 0:
				pos[i] = center[0] + radius*math.Cos(start+angle*t)
			case i == 1:
				pos[i] = center[1] + radius*math.Sin(start+angle*t)
			default:
				pos[i] = a[i] + (b[i]-a[i])*t
			}
		}
	}
}
