package standalone

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gostep/core"
	"gostep/standalone/config"
	"gostep/standalone/motion"
)

// tickTrace is one stepped sub-movement as the sink saw it
type tickTrace struct {
	id   uint32
	secs float64
	rate [core.MaxSteppers]float64 // signed, steps/s
}

// trace records every emitted tick that moves the machine
func (h *harness) trace() *[]tickTrace {
	ticks := &[]tickTrace{}
	h.sink.onEmit = func() {
		if h.sink.lastTicks == 0 {
			return
		}
		tr := tickTrace{id: h.o.pending.Movement.ID, secs: float64(h.sink.lastTicks) / core.TimerFreq}
		for i, n := range h.sink.lastSteps {
			tr.rate[i] = float64(n) / tr.secs
			if h.sink.dir&(1<<uint(i)) != 0 {
				tr.rate[i] = -tr.rate[i]
			}
		}
		*ticks = append(*ticks, tr)
	}
	return ticks
}

// assertAxisLimits checks the per-axis limits over a run that starts and
// ends at rest. Between consecutive ticks an axis rate changes by no more
// than its acceleration over the longer tick, plus its jerk where the
// movement changes. A tick's step count is within one step of the exact
// displacement, which allows one step per tick on each side.
func assertAxisLimits(t *testing.T, cfg *config.MachineConfig, ticks []tickTrace) {
	t.Helper()
	require.NotEmpty(t, ticks)
	const slack = 1 + 1e-4

	first, last := ticks[0], ticks[len(ticks)-1]
	for i, axis := range cfg.Axes {
		jerk := axis.Jerk * axis.StepsPerUnit
		assert.LessOrEqual(t, math.Abs(first.rate[i]), jerk*slack, "axis %s starts above its jerk", axis.Name)
		assert.LessOrEqual(t, math.Abs(last.rate[i]), jerk*slack, "axis %s stops above its jerk", axis.Name)
	}

	for k := 1; k < len(ticks); k++ {
		prev, cur := ticks[k-1], ticks[k]
		longer := math.Max(prev.secs, cur.secs)
		for i, axis := range cfg.Axes {
			allowed := axis.Acceleration*axis.StepsPerUnit*longer*slack + 1/prev.secs + 1/cur.secs
			if cur.id != prev.id {
				allowed += axis.Jerk * axis.StepsPerUnit * slack
			}
			change := math.Abs(cur.rate[i] - prev.rate[i])
			if !assert.LessOrEqual(t, change, allowed, "axis %s tick %d (movement %d)", axis.Name, k, cur.id) {
				return
			}
		}
	}
}

var strategies = []string{config.RegulatorCore1, config.RegulatorCore2}

func TestAxisLimitsOnSingleLine(t *testing.T) {
	for _, name := range strategies {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, name)
			ticks := h.trace()
			require.NoError(t, h.o.Enqueue(lineRequest(point(0, 0), point(60, 0), 200)))
			require.NoError(t, h.o.Start())
			h.runIdle(t)

			assertAxisLimits(t, config.DefaultCartesianConfig(), *ticks)
			assert.Equal(t, int32(60*80), h.o.Position()[0])
		})
	}
}

func TestAxisLimitsAtCorner(t *testing.T) {
	for _, name := range strategies {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, name)
			ticks := h.trace()
			require.NoError(t, h.o.Enqueue(lineRequest(point(0, 0), point(50, 0), 200)))
			require.NoError(t, h.o.Enqueue(lineRequest(point(50, 0), point(50, 50), 200)))
			corner := h.o.queue.front()
			require.Equal(t, motion.BoundaryResolved, corner.Boundary.State())
			// x hands over to y: the corner is crossed at the 10 units/s jerk
			require.InDelta(t, 10.0, corner.JerkSpeed, 1)
			require.NoError(t, h.o.Start())
			h.runIdle(t)

			assertAxisLimits(t, config.DefaultCartesianConfig(), *ticks)
			pos := h.o.Position()
			assert.Equal(t, int32(50*80), pos[0])
			assert.Equal(t, int32(50*80), pos[1])
			assert.Equal(t, uint32(1), h.o.Stats().SealedBoundaries)
		})
	}
}

// threeLines queues three collinear 100 unit lines along x at 300 units/s
func threeLines(t *testing.T, h *harness) {
	t.Helper()
	for i := 0; i < 3; i++ {
		x := float64(i) * 100
		require.NoError(t, h.o.Enqueue(lineRequest(point(x, 0), point(x+100, 0), 300)))
	}
}

// near reports whether the pending sub-movement belongs to movement id and
// has less than left sub-movements after it
func (h *harness) near(id uint32, left float64) func() bool {
	return func() bool {
		return h.o.hasPending && h.o.pending.Movement.ID == id && h.o.pending.Remaining < left
	}
}

func TestLateStopMovesToNextMovement(t *testing.T) {
	for _, name := range strategies {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, name)
			ticks := h.trace()
			threeLines(t, h)
			require.NoError(t, h.o.Start())

			// braking from 300 units/s takes over a hundred sub-movements
			h.runUntil(h.near(1, 40))
			require.Equal(t, StateRunning, h.o.State())
			require.Greater(t, h.o.Regulator().BrakingDistance(), 40.0)
			h.o.Stop()
			require.Equal(t, StateStopPending, h.o.State())
			assert.Equal(t, uint32(2), h.o.stopAt.ID)
			h.runIdle(t)

			assertAxisLimits(t, config.DefaultCartesianConfig(), *ticks)
			assert.Equal(t, uint32(2), h.o.Stats().MovementsCompleted)
			assert.Equal(t, 1, h.o.QueueLen())
			assert.Equal(t, int32(200*80), h.o.Position()[0])
		})
	}
}

func TestEarlyStopKeepsMovement(t *testing.T) {
	h := newHarness(t, "")
	threeLines(t, h)
	require.NoError(t, h.o.Start())

	h.runUntil(h.near(1, 500))
	h.o.Stop()
	assert.Equal(t, uint32(1), h.o.stopAt.ID)
	h.runIdle(t)
	assert.Equal(t, int32(100*80), h.o.Position()[0])
	assert.Equal(t, 2, h.o.QueueLen())
}

func TestDiscardRefusedWithoutBrakingRoom(t *testing.T) {
	for _, name := range strategies {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, name)
			ticks := h.trace()
			threeLines(t, h)
			require.NoError(t, h.o.Start())

			// far from the end of the second movement: the third can go
			h.runUntil(h.near(1, 500))
			require.NoError(t, h.o.Discard())
			require.Equal(t, 2, h.o.QueueLen())
			require.NoError(t, h.o.Enqueue(lineRequest(point(200, 0), point(300, 0), 300)))

			// late in the second movement it is needed to brake
			h.runUntil(h.near(2, 40))
			require.Equal(t, StateRunning, h.o.State())
			second := h.o.queue.front()
			err := h.o.Discard()
			assert.ErrorIs(t, err, motion.ErrInvalidMovement)
			assert.Equal(t, 2, h.o.QueueLen())
			assert.Equal(t, motion.BoundaryResolved, second.Boundary.State())

			h.runIdle(t)
			assertAxisLimits(t, config.DefaultCartesianConfig(), *ticks)
			assert.Equal(t, uint32(3), h.o.Stats().MovementsCompleted)
			assert.Equal(t, int32(300*80), h.o.Position()[0])
		})
	}
}

func TestStopRestartsWhenEnqueuedDuringDrain(t *testing.T) {
	for _, name := range strategies {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, name)
			ticks := h.trace()
			require.NoError(t, h.o.Enqueue(lineRequest(point(0, 0), point(20, 0), 100)))
			require.NoError(t, h.o.Enqueue(lineRequest(point(20, 0), point(20, 20), 100)))
			require.NoError(t, h.o.Start())
			h.runUntil(func() bool { return h.sink.emits >= 20 })

			h.o.Stop()
			require.Equal(t, StateStopPending, h.o.State())
			require.NoError(t, h.o.Enqueue(lineRequest(point(20, 20), point(0, 20), 100)))
			h.runIdle(t)

			assert.Equal(t, uint32(3), h.o.Stats().MovementsCompleted)
			assert.Zero(t, h.o.QueueLen())
			// once at rest after the stop, once at the end
			assert.Equal(t, 2, h.sink.stops)
			pos := h.o.Position()
			assert.Zero(t, pos[0])
			assert.Equal(t, int32(20*80), pos[1])
			assertAxisLimits(t, config.DefaultCartesianConfig(), *ticks)
		})
	}
}
