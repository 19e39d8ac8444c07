package core

// Timer represents a scheduled event
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

var (
	timerList   *Timer
	currentTime uint32
)

// timeBefore reports whether a is strictly earlier than b on the wrapping
// 32-bit timer clock.
func timeBefore(a, b uint32) bool {
	return int32(a-b) < 0
}

// ScheduleTimer adds a timer to the schedule
func ScheduleTimer(t *Timer) {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)

	insertTimer(t)
}

// CancelTimer removes a timer from the schedule if it is queued.
// Returns true if the timer was found.
func CancelTimer(t *Timer) bool {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)

	if timerList == t {
		timerList = t.Next
		t.Next = nil
		return true
	}
	for cur := timerList; cur != nil; cur = cur.Next {
		if cur.Next == t {
			cur.Next = t.Next
			t.Next = nil
			return true
		}
	}
	return false
}

// IsScheduled reports whether t is currently in the timer list.
func IsScheduled(t *Timer) bool {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)

	for cur := timerList; cur != nil; cur = cur.Next {
		if cur == t {
			return true
		}
	}
	return false
}

// NextWakeTime returns the wake time of the earliest queued timer.
func NextWakeTime() (uint32, bool) {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)

	if timerList == nil {
		return 0, false
	}
	return timerList.WakeTime, true
}

// insertTimer inserts a timer in sorted order by WakeTime
func insertTimer(t *Timer) {
	if timerList == nil || timeBefore(t.WakeTime, timerList.WakeTime) {
		t.Next = timerList
		timerList = t
		return
	}

	current := timerList
	for current.Next != nil && !timeBefore(t.WakeTime, current.Next.WakeTime) {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// TimerDispatch processes due timers
func TimerDispatch() {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)

	for timerList != nil && !timeBefore(currentTime, timerList.WakeTime) {
		timer := timerList
		timerList = timer.Next
		timer.Next = nil

		result := timer.Handler(timer)

		if result == SF_RESCHEDULE {
			insertTimer(timer)
		}
	}
}

// ResetTimers drops every queued timer. Used by tests and on full reset.
func ResetTimers() {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)

	for timerList != nil {
		t := timerList
		timerList = t.Next
		t.Next = nil
	}
}
