package main

import "gostep/core"

// simPWM stands in for the target PWM peripheral and keeps the peak duty
// cycle seen on each pin.
type simPWM struct {
	duty map[core.PWMPin]core.PWMValue
	peak map[core.PWMPin]core.PWMValue
}

func newSimPWM() *simPWM {
	return &simPWM{
		duty: make(map[core.PWMPin]core.PWMValue),
		peak: make(map[core.PWMPin]core.PWMValue),
	}
}

func (p *simPWM) ConfigureHardwarePWM(pin core.PWMPin, cycleTicks uint32) (uint32, error) {
	p.duty[pin] = 0
	return cycleTicks, nil
}

func (p *simPWM) SetDutyCycle(pin core.PWMPin, value core.PWMValue) error {
	p.duty[pin] = value
	if value > p.peak[pin] {
		p.peak[pin] = value
	}
	return nil
}

func (p *simPWM) GetMaxValue() uint32 {
	return 255
}

func (p *simPWM) DisablePWM(pin core.PWMPin) error {
	delete(p.duty, pin)
	return nil
}
