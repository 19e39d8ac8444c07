package core

// Timer frequencies for common MCUs
const (
	TimerFreq = 12000000 // 12MHz default timer frequency
)

var (
	systemTicks uint32
	bootTime    uint64
)

// GetTime returns the current system time in timer ticks
func GetTime() uint32 {
	return getSystemTicks()
}

// SetTime sets the current system time (for testing/hardware integration)
func SetTime(ticks uint32) {
	setSystemTicks(ticks)
}

// GetUptime returns 64-bit uptime in timer ticks
func GetUptime() uint64 {
	return uint64(GetTime()) - bootTime
}

// TimerFromUS converts microseconds to timer ticks.
// Computed in 64 bits: durations above ~350us overflow a 32-bit product.
func TimerFromUS(us uint32) uint32 {
	return uint32(uint64(us) * TimerFreq / 1000000)
}

// TimerFromUSFloat converts a fractional microsecond duration to timer
// ticks, rounding to the nearest tick.
func TimerFromUSFloat(us float64) uint32 {
	if us <= 0 {
		return 0
	}
	return uint32(us*(TimerFreq/1000000.0) + 0.5)
}

// TimerToUS converts timer ticks to microseconds
func TimerToUS(ticks uint32) uint32 {
	return uint32(uint64(ticks) * 1000000 / TimerFreq)
}

// TimerInit initializes the system timer
func TimerInit() {
	bootTime = uint64(GetTime())
}

// ProcessTimers processes scheduled timers
func ProcessTimers() {
	currentTime = GetTime()
	TimerDispatch()
}

// RunUntil advances the clock from timer to timer, dispatching each one,
// until no timer is due before deadline or stop returns true. Host builds
// use it to play the role of the hardware timer interrupt.
// Returns the number of dispatch rounds.
func RunUntil(deadline uint32, stop func() bool) int {
	rounds := 0
	for {
		if stop != nil && stop() {
			return rounds
		}
		wake, ok := NextWakeTime()
		if !ok || timeBefore(deadline, wake) {
			return rounds
		}
		if timeBefore(GetTime(), wake) {
			SetTime(wake)
		}
		ProcessTimers()
		rounds++
	}
}
