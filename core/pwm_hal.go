package core

import "errors"

// PWMPin identifies a hardware pin capable of PWM output
type PWMPin uint32

// PWMValue is the duty cycle value (0 to PWM_MAX)
type PWMValue uint32

// PWMDriver is the abstract PWM interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type PWMDriver interface {
	// ConfigureHardwarePWM configures a pin for hardware PWM output
	// cycleTicks: PWM period in timer ticks
	// Returns the actual cycle ticks used (may be adjusted for hardware constraints)
	ConfigureHardwarePWM(pin PWMPin, cycleTicks uint32) (uint32, error)

	// SetDutyCycle sets the PWM duty cycle for a pin
	// value: 0 (fully off) to GetMaxValue() (fully on)
	SetDutyCycle(pin PWMPin, value PWMValue) error

	// GetMaxValue returns the maximum PWM value (e.g., 255 for 8-bit)
	GetMaxValue() uint32

	// DisablePWM disables PWM on a pin and returns it to GPIO mode
	DisablePWM(pin PWMPin) error
}

// ToolPowerSink receives tool power updates from the motion core.
// power is in the tool's own units, already clamped to [0, max].
type ToolPowerSink interface {
	SetToolPower(tool int, power float64)
}

// PWMToolSink drives tool outputs through a PWMDriver. Tool i maps to Pins[i]
// and MaxPower[i] is the power mapped to a full duty cycle.
type PWMToolSink struct {
	Driver   PWMDriver
	Pins     []PWMPin
	MaxPower []float64
}

// NewPWMToolSink configures every pin for PWM output and sets it to zero.
func NewPWMToolSink(driver PWMDriver, pins []PWMPin, maxPower []float64, cycleTicks uint32) (*PWMToolSink, error) {
	if len(pins) != len(maxPower) {
		return nil, errors.New("tool pin and max power counts differ")
	}
	for _, pin := range pins {
		if _, err := driver.ConfigureHardwarePWM(pin, cycleTicks); err != nil {
			return nil, err
		}
		if err := driver.SetDutyCycle(pin, 0); err != nil {
			return nil, err
		}
	}
	return &PWMToolSink{Driver: driver, Pins: pins, MaxPower: maxPower}, nil
}

// SetToolPower converts power to a duty cycle. Unknown tools are ignored.
func (s *PWMToolSink) SetToolPower(tool int, power float64) {
	if tool < 0 || tool >= len(s.Pins) {
		return
	}
	value := PWMValue(0)
	if max := s.MaxPower[tool]; max > 0 && power > 0 {
		if power > max {
			power = max
		}
		value = PWMValue(power / max * float64(s.Driver.GetMaxValue()))
	}
	// Errors cannot be reported from the tick handler; the next update retries.
	_ = s.Driver.SetDutyCycle(s.Pins[tool], value)
}

// Global singleton used by core code.
var pwmDriver PWMDriver

// SetPWMDriver is called by target-specific code to register its driver.
func SetPWMDriver(d PWMDriver) {
	pwmDriver = d
}

// MustPWM returns the configured driver or panics if missing.
func MustPWM() PWMDriver {
	if pwmDriver == nil {
		panic("PWM driver not configured")
	}
	return pwmDriver
}
