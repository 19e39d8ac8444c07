//go:build (rp2040 || rp2350) && easystepper

package main

import (
	"errors"
	"machine"

	"tinygo.org/x/drivers/easystepper"

	"gostep/core"
	stepper "gostep/targets/easystepper"
)

// Coil pins for 28BYJ-48 boards on ULN2003 drivers, one block of four per
// axis. Only two axes fit next to the USB and tool pins.
var coilPins = [][4]machine.Pin{
	{machine.GP2, machine.GP3, machine.GP4, machine.GP5},
	{machine.GP6, machine.GP7, machine.GP8, machine.GP9},
}

// 2048 full steps per turn; the RPM only bounds how long one Move(±1)
// takes, the core paces the steps
const (
	coilStepCount = 2048
	coilRPM       = 15
)

func newStepSink(axes int) (core.StepSink, error) {
	if axes > len(coilPins) {
		return nil, errors.New("easystepper build drives at most 2 axes")
	}
	configs := make([]easystepper.DeviceConfig, axes)
	for i := range configs {
		configs[i] = easystepper.DeviceConfig{
			Pin1:      coilPins[i][0],
			Pin2:      coilPins[i][1],
			Pin3:      coilPins[i][2],
			Pin4:      coilPins[i][3],
			StepCount: coilStepCount,
			RPM:       coilRPM,
			Mode:      easystepper.ModeFour,
		}
	}
	return stepper.NewSink(configs)
}
