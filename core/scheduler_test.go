package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetClock(t *testing.T, now uint32) {
	t.Helper()
	ResetTimers()
	SetTime(now)
	t.Cleanup(ResetTimers)
}

func TestScheduleTimerOrdersByWakeTime(t *testing.T) {
	resetClock(t, 0)

	var fired []int
	mk := func(id int, wake uint32) *Timer {
		return &Timer{WakeTime: wake, Handler: func(*Timer) uint8 {
			fired = append(fired, id)
			return SF_DONE
		}}
	}
	ScheduleTimer(mk(3, 300))
	ScheduleTimer(mk(1, 100))
	ScheduleTimer(mk(2, 200))

	wake, ok := NextWakeTime()
	require.True(t, ok)
	assert.Equal(t, uint32(100), wake)

	SetTime(250)
	ProcessTimers()
	assert.Equal(t, []int{1, 2}, fired)

	SetTime(300)
	ProcessTimers()
	assert.Equal(t, []int{1, 2, 3}, fired)

	_, ok = NextWakeTime()
	assert.False(t, ok)
}

func TestTimerOrderingAcrossWrap(t *testing.T) {
	resetClock(t, 0xFFFFFF00)

	var fired []uint32
	h := func(tm *Timer) uint8 {
		fired = append(fired, tm.WakeTime)
		return SF_DONE
	}
	ScheduleTimer(&Timer{WakeTime: 0x00000010, Handler: h})
	ScheduleTimer(&Timer{WakeTime: 0xFFFFFF80, Handler: h})

	SetTime(0x00000020)
	ProcessTimers()
	assert.Equal(t, []uint32{0xFFFFFF80, 0x00000010}, fired)
}

func TestRescheduleAndCancel(t *testing.T) {
	resetClock(t, 0)

	count := 0
	tick := &Timer{WakeTime: 10}
	tick.Handler = func(tm *Timer) uint8 {
		count++
		tm.WakeTime += 10
		return SF_RESCHEDULE
	}
	ScheduleTimer(tick)
	assert.True(t, IsScheduled(tick))

	rounds := RunUntil(55, nil)
	assert.Equal(t, 5, rounds)
	assert.Equal(t, 5, count)
	assert.Equal(t, uint32(50), GetTime())

	assert.True(t, CancelTimer(tick))
	assert.False(t, IsScheduled(tick))
	assert.False(t, CancelTimer(tick))

	assert.Equal(t, 0, RunUntil(1000, nil))
}

func TestRunUntilStopCondition(t *testing.T) {
	resetClock(t, 0)

	count := 0
	tick := &Timer{WakeTime: 1}
	tick.Handler = func(tm *Timer) uint8 {
		count++
		tm.WakeTime++
		return SF_RESCHEDULE
	}
	ScheduleTimer(tick)

	RunUntil(1<<30, func() bool { return count >= 3 })
	assert.Equal(t, 3, count)
}

func TestTimerFromUS(t *testing.T) {
	assert.Equal(t, uint32(12), TimerFromUS(1))
	// Would overflow a 32-bit intermediate.
	assert.Equal(t, uint32(12000000), TimerFromUS(1000000))
	assert.Equal(t, uint32(1000000), TimerToUS(12000000))
	assert.Equal(t, uint32(18), TimerFromUSFloat(1.5))
	assert.Equal(t, uint32(0), TimerFromUSFloat(-3))
}

func TestCriticalSectionNesting(t *testing.T) {
	assert.False(t, InCriticalSection())
	outer := DisableInterrupts()
	inner := DisableInterrupts()
	assert.True(t, InCriticalSection())
	RestoreInterrupts(inner)
	assert.True(t, InCriticalSection())
	RestoreInterrupts(outer)
	assert.False(t, InCriticalSection())
}
