package core

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isqrt(v int64) int64 {
	if v <= 0 {
		return 0
	}
	r := int64(math.Sqrt(float64(v)))
	for r*r > v {
		r--
	}
	for (r+1)*(r+1) <= v {
		r++
	}
	return r
}

func TestFastSqrtSmallValues(t *testing.T) {
	f := NewFastSqrt()
	for v := int64(0); v < 2000; v++ {
		require.Equal(t, isqrt(v), f.Update(v), "value %d", v)
	}
	for v := int64(2000); v >= 0; v-- {
		require.Equal(t, isqrt(v), f.Update(v), "value %d", v)
	}
}

func TestFastSqrtRandomWalk(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	f := NewFastSqrt()
	v := int64(1 << 20)
	for i := 0; i < 20000; i++ {
		// Ticks move the value by a few percent at most.
		delta := rng.Int63n(v/16+2) - v/32
		v += delta
		if v < 0 {
			v = 0
		}
		require.Equal(t, isqrt(v), f.Update(v), "step %d value %d", i, v)
	}
}

func TestFastSqrtLargeJumps(t *testing.T) {
	f := NewFastSqrt()
	for _, v := range []int64{1, 1 << 24, 3, 99999999, 0, 4096, 4095, 4097} {
		assert.Equal(t, isqrt(v), f.Update(v), "value %d", v)
	}
}

func TestFastSqrtNegativeResets(t *testing.T) {
	f := NewFastSqrt()
	f.Update(10000)
	assert.Equal(t, int64(100), f.Root())

	assert.Equal(t, int64(0), f.Update(-5))
	assert.Equal(t, int64(0), f.Root())
	assert.Equal(t, int64(0), f.Value())

	assert.Equal(t, int64(2), f.Update(7))
}

func TestFastSqrtZeroValueStruct(t *testing.T) {
	var f FastSqrt
	assert.Equal(t, int64(3), f.Update(9))
	assert.Equal(t, int64(3), f.Update(15))
	assert.Equal(t, int64(4), f.Update(16))
}

func TestFastSqrtWalksAfterRecompute(t *testing.T) {
	f := NewFastSqrt()
	v := int64(1) << 40
	require.Equal(t, isqrt(v), f.Update(v))
	for i := 0; i < 500; i++ {
		v += 3 << 20
		require.Equal(t, isqrt(v), f.Update(v), "step %d", i)
	}
	for i := 0; i < 500; i++ {
		v -= 5 << 20
		require.Equal(t, isqrt(v), f.Update(v), "step %d", i)
	}
}
