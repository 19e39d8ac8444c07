package core

import "math"

// maxWalk is the largest root change walked one unit at a time; larger
// moves are recomputed.
const maxWalk = 16

// FastSqrt tracks floor(sqrt(v)) of a slowly moving integer v.
//
// Consecutive squares differ by consecutive odd numbers, so when v moves by
// a small fraction of its magnitude the root is walked one unit at a time
// instead of being recomputed. Used by the speed regulator inside the tick
// handler, where a general square root is too slow.
type FastSqrt struct {
	value int64
	lower int64 // root*root: v below this decrements the root
	upper int64 // (root+1)*(root+1): v at or above this increments the root
	root  int64
}

// NewFastSqrt returns an estimator in the root = 0 state.
func NewFastSqrt() FastSqrt {
	return FastSqrt{upper: 1}
}

// Reset returns the estimator to the root = 0 state.
func (f *FastSqrt) Reset() {
	f.value = 0
	f.lower = 0
	f.upper = 1
	f.root = 0
}

// Update moves the tracked value to v and returns floor(sqrt(v)).
// Values at or below zero reset the estimator.
func (f *FastSqrt) Update(v int64) int64 {
	if v <= 0 {
		f.Reset()
		return 0
	}
	if f.upper == 0 {
		// Zero value struct, not built with NewFastSqrt.
		f.upper = 1
	}
	f.value = v

	if v-f.lower > 2*maxWalk*(f.root+maxWalk) || f.lower-v > 2*maxWalk*f.root {
		f.jump(v)
		return f.root
	}
	for v >= f.upper {
		f.root++
		f.lower = f.upper
		f.upper += 2*f.root + 1
	}
	for v < f.lower {
		f.upper = f.lower
		f.lower -= 2*f.root - 1
		f.root--
	}
	return f.root
}

func (f *FastSqrt) jump(v int64) {
	r := int64(math.Sqrt(float64(v)))
	for r*r > v {
		r--
	}
	for (r+1)*(r+1) <= v {
		r++
	}
	f.root = r
	f.lower = r * r
	f.upper = (r + 1) * (r + 1)
}

// Root returns the current root.
func (f *FastSqrt) Root() int64 {
	return f.root
}

// Value returns the last value passed to Update.
func (f *FastSqrt) Value() int64 {
	return f.value
}
