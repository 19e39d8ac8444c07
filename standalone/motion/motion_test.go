package motion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignatureAccessors(t *testing.T) {
	s := SignatureOf(0, 2, 7)
	assert.True(t, s.Has(0))
	assert.False(t, s.Has(1))
	assert.True(t, s.Has(7))
	assert.Equal(t, 3, s.Count())
	assert.Equal(t, uint8(0x85), s.Bits())

	s = s.Clear(2)
	assert.False(t, s.Has(2))

	// Out of range axes are ignored.
	assert.Equal(t, s, s.Set(8).Set(-1))
	assert.False(t, s.Has(9))
}

func TestBoundaryHandoffSingleWinner(t *testing.T) {
	var m Movement
	m.Reset()
	assert.Equal(t, BoundaryPending, m.Boundary.State())

	assert.True(t, m.Boundary.Seal())
	assert.False(t, m.Boundary.Resolve())
	assert.Equal(t, BoundarySealed, m.Boundary.State())

	m.Reset()
	assert.True(t, m.Boundary.Resolve())
	assert.False(t, m.Boundary.Seal())
	assert.Equal(t, BoundaryResolved, m.Boundary.State())
}

func TestBoundaryCloseAndReopen(t *testing.T) {
	var b Boundary
	assert.True(t, b.Close())
	assert.Equal(t, BoundarySealed, b.State())
	assert.False(t, b.Linked())

	b.reset()
	require.True(t, b.Resolve())
	assert.True(t, b.Reopen())
	assert.Equal(t, BoundaryPending, b.State())

	require.True(t, b.Resolve())
	assert.False(t, b.Close())
	assert.Equal(t, BoundaryCommitted, b.State())
	assert.True(t, b.Linked())
	assert.False(t, b.Reopen())
	assert.Equal(t, "committed", b.State().String())
}

func TestWatchesJerk(t *testing.T) {
	var m Movement
	m.JerkSpeed = 12
	assert.False(t, m.WatchesJerk())
	m.Boundary.Resolve()
	assert.True(t, m.WatchesJerk())
	m.JerkSpeed = 0
	assert.False(t, m.WatchesJerk())
}

func TestLoadDefaultsPreProcess(t *testing.T) {
	traj := func(p float64, pos []float64) { pos[0] = p }
	var m Movement
	m.JerkSpeed = 5
	m.Load(7, &Request{Begin: 1, End: 0, Trajectory: traj, Speed: 30, Tools: SignatureOf(1)})

	assert.Equal(t, uint32(7), m.ID)
	assert.NotNil(t, m.PreProcess)
	assert.True(t, m.Reverse())
	assert.Zero(t, m.JerkSpeed)
	assert.True(t, m.Tools.Has(1))
}

func TestSubMovementSetDelta(t *testing.T) {
	var sm SubMovement
	delta := [MaxSteppers]int32{11, -4, 0, -300}
	sm.SetDelta(&delta, 4)

	assert.Equal(t, uint8(11), sm.Steps[0])
	assert.Equal(t, uint8(4), sm.Steps[1])
	assert.Equal(t, uint8(255), sm.Steps[3])
	assert.Equal(t, int32(300), sm.MaxDistance)
	assert.True(t, sm.Dir.Has(1))
	assert.True(t, sm.Dir.Has(3))
	assert.False(t, sm.Dir.Has(0))
}
