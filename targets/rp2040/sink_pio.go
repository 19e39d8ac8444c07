//go:build (rp2040 || rp2350) && !easystepper

package main

import (
	"machine"

	"gostep/core"
	"gostep/targets/pio"
)

// Axis pins of the reference board: step on even GPIOs, dir on the next
var axisPins = []pio.AxisPins{
	{Step: machine.GP2, Dir: machine.GP3},
	{Step: machine.GP6, Dir: machine.GP7},
	{Step: machine.GP10, Dir: machine.GP11},
	{Step: machine.GP14, Dir: machine.GP15, InvertDir: true},
}

func newStepSink(axes int) (core.StepSink, error) {
	return pio.NewSink(axisPins[:axes])
}
