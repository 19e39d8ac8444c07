package gcode

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gostep/standalone/motion"
)

type move struct {
	kind   string
	target []float64
	center [2]float64
	angle  float64
	speed  float64
	tools  motion.Signature
}

// fakeMachine records movements and tracks the position
type fakeMachine struct {
	pos   []float64
	moves []move
	full  int // number of calls to reject with ErrQueueFull
}

func newFakeMachine(n int) *fakeMachine {
	return &fakeMachine{pos: make([]float64, n)}
}

func (f *fakeMachine) Line(target []float64, speed float64, tools motion.Signature) error {
	if f.full > 0 {
		f.full--
		return motion.ErrQueueFull
	}
	f.moves = append(f.moves, move{kind: "line", target: target, speed: speed, tools: tools})
	f.pos = append([]float64(nil), target...)
	return nil
}

func (f *fakeMachine) Arc(center [2]float64, angle float64, to []float64, speed float64, tools motion.Signature) error {
	f.moves = append(f.moves, move{kind: "arc", target: to, center: center, angle: angle, speed: speed, tools: tools})
	f.pos = append([]float64(nil), to...)
	return nil
}

func (f *fakeMachine) Position() []float64 {
	return append([]float64(nil), f.pos...)
}

func (f *fakeMachine) SetPosition(pos []float64) error {
	f.pos = append([]float64(nil), pos...)
	return nil
}

var xyze = []string{"x", "y", "z", "e"}

func TestLinearMoves(t *testing.T) {
	m := newFakeMachine(4)
	interp := NewInterpreter(m, xyze)

	require.NoError(t, Run(interp, "G1 X10 Y5 F600\nG91\nG1 X1 E2\nG0 Y-5", nil))
	require.Len(t, m.moves, 3)

	assert.Equal(t, []float64{10, 5, 0, 0}, m.moves[0].target)
	assert.Equal(t, 10.0, m.moves[0].speed)
	assert.Equal(t, []float64{11, 5, 0, 2}, m.moves[1].target)
	assert.Equal(t, 10.0, m.moves[1].speed)
	assert.Equal(t, []float64{11, 0, 0, 2}, m.moves[2].target)
	assert.Zero(t, m.moves[2].speed)
	assert.False(t, interp.GetState().AbsoluteMode)
}

func TestExtrusionModes(t *testing.T) {
	m := newFakeMachine(4)
	interp := NewInterpreter(m, xyze)

	require.NoError(t, Run(interp, "G1 E5\nM83\nG1 E1\nM82\nG1 E3", nil))
	require.Len(t, m.moves, 3)
	assert.Equal(t, 5.0, m.moves[0].target[3])
	assert.Equal(t, 6.0, m.moves[1].target[3])
	assert.Equal(t, 3.0, m.moves[2].target[3])
}

func TestToolsFollowM3M5(t *testing.T) {
	m := newFakeMachine(4)
	interp := NewInterpreter(m, xyze)

	require.NoError(t, Run(interp, "M3\nG1 X5\nM5\nG1 X6", nil))
	require.Len(t, m.moves, 2)
	assert.True(t, m.moves[0].tools.Has(0))
	assert.Zero(t, m.moves[1].tools)
}

func TestArcs(t *testing.T) {
	m := newFakeMachine(4)
	interp := NewInterpreter(m, xyze)

	require.NoError(t, Run(interp, "G1 X10 F1200\nG3 X0 Y10 I-10 J0\nG2 X0 Y10 I0 J-10", nil))
	require.Len(t, m.moves, 3)

	ccw := m.moves[1]
	assert.Equal(t, "arc", ccw.kind)
	assert.Equal(t, [2]float64{0, 0}, ccw.center)
	assert.InDelta(t, math.Pi/2, ccw.angle, 1e-9)
	assert.Equal(t, 20.0, ccw.speed)

	full := m.moves[2]
	assert.Equal(t, [2]float64{0, 0}, full.center)
	assert.InDelta(t, -2*math.Pi, full.angle, 1e-9)
}

func TestHomeAndSetPosition(t *testing.T) {
	m := newFakeMachine(4)
	interp := NewInterpreter(m, xyze)

	require.NoError(t, Run(interp, "G92 X5 Y6 Z7 E8\nG28 X\nG28", nil))
	require.Len(t, m.moves, 2)
	assert.Equal(t, []float64{0, 6, 7, 8}, m.moves[0].target)
	assert.Equal(t, []float64{0, 0, 0, 8}, m.moves[1].target)
}

func TestRunRetriesFullQueue(t *testing.T) {
	m := newFakeMachine(4)
	m.full = 3
	interp := NewInterpreter(m, xyze)

	retries := 0
	err := Run(interp, "G1 X1", func(err error) bool {
		retries++
		return errors.Is(err, motion.ErrQueueFull)
	})
	require.NoError(t, err)
	assert.Equal(t, 3, retries)
	assert.Len(t, m.moves, 1)

	m.full = 1
	err = Run(interp, "G1 X2", nil)
	assert.ErrorIs(t, err, motion.ErrQueueFull)
}

func TestUnsupportedCommands(t *testing.T) {
	interp := NewInterpreter(newFakeMachine(4), xyze)
	assert.Error(t, Run(interp, "G17", nil))
	assert.Error(t, Run(interp, "M104 S200", nil))
	assert.Error(t, Run(interp, "G2 X1", nil))
}
