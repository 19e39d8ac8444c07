package motion

import (
	"math/bits"

	"gostep/core"
)

// MaxSteppers is the number of axes a Signature can describe
const MaxSteppers = core.MaxSteppers

// Steps holds elementary per-axis step counts for one tick, magnitude only
type Steps = [MaxSteppers]uint8

// Signature is a one-bit-per-axis set. It carries direction (bit set: the
// axis moves negative) and tool enable masks.
type Signature uint8

// Set returns s with axis set
func (s Signature) Set(axis int) Signature {
	if axis < 0 || axis >= MaxSteppers {
		return s
	}
	return s | 1<<uint(axis)
}

// Clear returns s with axis cleared
func (s Signature) Clear(axis int) Signature {
	if axis < 0 || axis >= MaxSteppers {
		return s
	}
	return s &^ (1 << uint(axis))
}

// Has reports whether axis is set
func (s Signature) Has(axis int) bool {
	if axis < 0 || axis >= MaxSteppers {
		return false
	}
	return s&(1<<uint(axis)) != 0
}

// Count returns the number of set axes
func (s Signature) Count() int {
	return bits.OnesCount8(uint8(s))
}

// Bits returns the raw mask
func (s Signature) Bits() uint8 {
	return uint8(s)
}

// SignatureOf builds a Signature from a list of axes
func SignatureOf(axes ...int) Signature {
	var s Signature
	for _, a := range axes {
		s = s.Set(a)
	}
	return s
}
