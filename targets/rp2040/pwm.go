//go:build rp2040 || rp2350

package main

import (
	"machine"

	"gostep/core"
)

const pwmMax = 255

// pwmPeripheral abstracts over TinyGo's unexported *pwmGroup type
type pwmPeripheral interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
}

var pwmSlices = [8]pwmPeripheral{
	machine.PWM0, machine.PWM1, machine.PWM2, machine.PWM3,
	machine.PWM4, machine.PWM5, machine.PWM6, machine.PWM7,
}

// toolPWM drives tool outputs on the RP2040 PWM slices. GPIO pin N uses
// slice (N>>1)&7, channel A when N is even. Both channels of a slice
// share one period; the last configuration wins.
type toolPWM struct {
	channel    [32]uint8
	configured uint32 // pin bitmap
}

func (d *toolPWM) GetMaxValue() uint32 {
	return pwmMax
}

func (d *toolPWM) ConfigureHardwarePWM(pin core.PWMPin, cycleTicks uint32) (uint32, error) {
	if pin >= 32 {
		return 0, machine.ErrInvalidOutputPin
	}
	pwm := pwmSlices[(pin>>1)&7]
	period := uint64(cycleTicks) * 1e9 / core.TimerFreq
	if err := pwm.Configure(machine.PWMConfig{Period: period}); err != nil {
		return 0, err
	}
	channel, err := pwm.Channel(machine.Pin(pin))
	if err != nil {
		return 0, err
	}
	d.channel[pin] = channel
	d.configured |= 1 << pin
	return cycleTicks, nil
}

// SetDutyCycle runs from the tick handler; unconfigured pins are ignored
func (d *toolPWM) SetDutyCycle(pin core.PWMPin, value core.PWMValue) error {
	if pin >= 32 || d.configured&(1<<pin) == 0 {
		return nil
	}
	pwm := pwmSlices[(pin>>1)&7]
	pwm.Set(d.channel[pin], uint32(value)*pwm.Top()/pwmMax)
	return nil
}

// DisablePWM leaves the pin in PWM mode driven low
func (d *toolPWM) DisablePWM(pin core.PWMPin) error {
	if err := d.SetDutyCycle(pin, 0); err != nil {
		return err
	}
	if pin < 32 {
		d.configured &^= 1 << pin
	}
	return nil
}
