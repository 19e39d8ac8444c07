//go:build rp2040 || rp2350

package main

import (
	"runtime/volatile"
	"unsafe"

	"gostep/core"
)

// RP2040/RP2350 timer peripheral, a 64-bit microsecond counter
const (
	timerBase     = 0x40054000
	timerTIMERAWH = timerBase + 0x08 // raw high word
	timerTIMERAWL = timerBase + 0x0C // raw low word
)

var (
	timerRAWH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWH)))
	timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
)

// hardwareUptime reads the full counter. High is read twice to detect a
// rollover of the low word.
func hardwareUptime() uint64 {
	for {
		high1 := timerRAWH.Get()
		low := timerRAWL.Get()
		high2 := timerRAWH.Get()
		if high1 == high2 {
			return (uint64(high1) << 32) | uint64(low)
		}
	}
}

// updateSystemTime moves the core clock to the hardware time, in core
// timer ticks
func updateSystemTime() {
	core.SetTime(uint32(hardwareUptime() * (core.TimerFreq / 1000000)))
}
