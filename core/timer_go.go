//go:build !tinygo

package core

// getSystemTicks returns the simulated clock; host builds have no free
// running counter, time only moves through SetTime.
func getSystemTicks() uint32 {
	return systemTicks
}

// setSystemTicks sets the simulated clock
func setSystemTicks(ticks uint32) {
	systemTicks = ticks
}
