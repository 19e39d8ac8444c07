package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gostep/core"
)

// Regulator strategy names
const (
	RegulatorCore1 = "core1"
	RegulatorCore2 = "core2"
)

// Queue capacity limits; the queues are fixed arrays of this size.
const (
	MaxMovementQueueSize    = 16
	MaxSubMovementQueueSize = 16
	MaxSpeedGroupAxes       = 3
)

// AxisConfig is the static configuration of one stepper axis
type AxisConfig struct {
	Name         string  `json:"name"`
	StepsPerUnit float64 `json:"steps_per_unit"` // steps per high-level unit
	MaxSpeed     float64 `json:"max_speed"`      // units/s
	Acceleration float64 `json:"acceleration"`   // units/s^2
	Jerk         float64 `json:"jerk"`           // instantaneous speed change, units/s
}

// SpeedGroupConfig names up to three axes whose combined distance defines
// one regulated speed
type SpeedGroupConfig struct {
	Name     string   `json:"name"`
	Axes     []string `json:"axes"`
	MaxSpeed float64  `json:"max_speed"` // units/s
}

// ToolConfig describes a speed-proportional tool output (laser, spindle, extrusion heater...)
type ToolConfig struct {
	Name                   string  `json:"name"`
	LinearPowerCoefficient float64 `json:"linear_power_coefficient"` // power per unit/s of regulated speed
	MaxPower               float64 `json:"max_power"`
	PWMPin                 uint32  `json:"pwm_pin"`
}

// DistanceConfig is the per-tick step distance band of a sub-movement
type DistanceConfig struct {
	Min    int32 `json:"min"`
	Target int32 `json:"target"`
	Max    int32 `json:"max"`
}

// MachineConfig represents the complete motion core configuration
type MachineConfig struct {
	Kinematics  string             `json:"kinematics"` // "cartesian", "corexy"
	Axes        []AxisConfig       `json:"axes"`
	SpeedGroups []SpeedGroupConfig `json:"speed_groups"`
	Tools       []ToolConfig       `json:"tools"`

	Regulator            string         `json:"regulator"`
	MovementQueueSize    int            `json:"movement_queue_size"`
	SubMovementQueueSize int            `json:"sub_movement_queue_size"`
	Distance             DistanceConfig `json:"distance"`

	// Increment adaptation
	DefaultIncrement       float64 `json:"default_increment"`
	MaxIncrementIterations int     `json:"max_increment_iterations"`
	MaxRescaleRetries      int     `json:"max_rescale_retries"`
}

// ValidationError reports one invalid configuration field
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return "config: " + e.Field + ": " + e.Msg
}

// LoadConfig parses a JSON configuration string and returns a MachineConfig
func LoadConfig(jsonData []byte) (*MachineConfig, error) {
	var config MachineConfig

	err := json.Unmarshal(jsonData, &config)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyDefaults fills in missing configuration values with sensible defaults
func applyDefaults(config *MachineConfig) {
	if config.Kinematics == "" {
		config.Kinematics = "cartesian"
	}
	if config.Regulator == "" {
		config.Regulator = RegulatorCore2
	}
	if config.MovementQueueSize == 0 {
		config.MovementQueueSize = 8
	}
	if config.SubMovementQueueSize == 0 {
		config.SubMovementQueueSize = 8
	}
	if config.Distance == (DistanceConfig{}) {
		config.Distance = DistanceConfig{Min: 9, Target: 11, Max: 13}
	}
	if config.DefaultIncrement == 0 {
		config.DefaultIncrement = 0.1
	}
	if config.MaxIncrementIterations == 0 {
		config.MaxIncrementIterations = 32
	}
	if config.MaxRescaleRetries == 0 {
		config.MaxRescaleRetries = 16
	}

	for i := range config.Axes {
		axis := &config.Axes[i]
		if axis.StepsPerUnit == 0 {
			axis.StepsPerUnit = 80.0
		}
		if axis.MaxSpeed == 0 {
			axis.MaxSpeed = 300.0
		}
		if axis.Acceleration == 0 {
			axis.Acceleration = 1000.0
		}
		if axis.Jerk == 0 {
			axis.Jerk = 10.0
		}
	}

	// Group 0 covers every axis by convention.
	if len(config.SpeedGroups) == 0 && len(config.Axes) > 0 {
		group := SpeedGroupConfig{Name: "all", MaxSpeed: 0}
		for i := 0; i < len(config.Axes) && i < MaxSpeedGroupAxes; i++ {
			group.Axes = append(group.Axes, config.Axes[i].Name)
		}
		config.SpeedGroups = append(config.SpeedGroups, group)
	}
	for i := range config.SpeedGroups {
		if config.SpeedGroups[i].MaxSpeed == 0 {
			config.SpeedGroups[i].MaxSpeed = 300.0
		}
	}

	for i := range config.Tools {
		if config.Tools[i].MaxPower == 0 {
			config.Tools[i].MaxPower = 1.0
		}
	}
}

// Validate checks ranges and cross references. All problems are reported
// together.
func (c *MachineConfig) Validate() error {
	var errs []error
	bad := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)})
	}

	switch c.Kinematics {
	case "cartesian", "corexy":
	default:
		bad("kinematics", "unsupported kinematics %q", c.Kinematics)
	}
	switch c.Regulator {
	case RegulatorCore1, RegulatorCore2:
	default:
		bad("regulator", "unknown strategy %q", c.Regulator)
	}

	if len(c.Axes) == 0 {
		bad("axes", "at least one axis is required")
	}
	if len(c.Axes) > core.MaxSteppers {
		bad("axes", "%d axes configured, at most %d supported", len(c.Axes), core.MaxSteppers)
	}
	if c.Kinematics == "corexy" && len(c.Axes) < 2 {
		bad("axes", "corexy needs at least two axes")
	}
	seen := make(map[string]bool, len(c.Axes))
	for i, axis := range c.Axes {
		field := fmt.Sprintf("axes[%d]", i)
		if axis.Name == "" {
			bad(field+".name", "missing")
		} else if seen[strings.ToLower(axis.Name)] {
			bad(field+".name", "duplicate axis %q", axis.Name)
		}
		seen[strings.ToLower(axis.Name)] = true
		if axis.StepsPerUnit <= 0 {
			bad(field+".steps_per_unit", "must be positive")
		}
		if axis.MaxSpeed <= 0 {
			bad(field+".max_speed", "must be positive")
		}
		if axis.Acceleration <= 0 {
			bad(field+".acceleration", "must be positive")
		}
		if axis.Jerk <= 0 {
			bad(field+".jerk", "must be positive")
		}
	}

	for i, group := range c.SpeedGroups {
		field := fmt.Sprintf("speed_groups[%d]", i)
		if len(group.Axes) == 0 || len(group.Axes) > MaxSpeedGroupAxes {
			bad(field+".axes", "must name 1 to %d axes", MaxSpeedGroupAxes)
		}
		for _, name := range group.Axes {
			if c.AxisIndex(name) < 0 {
				bad(field+".axes", "unknown axis %q", name)
			}
		}
		if group.MaxSpeed <= 0 {
			bad(field+".max_speed", "must be positive")
		}
	}

	for i, tool := range c.Tools {
		field := fmt.Sprintf("tools[%d]", i)
		if tool.LinearPowerCoefficient < 0 {
			bad(field+".linear_power_coefficient", "must not be negative")
		}
		if tool.MaxPower <= 0 {
			bad(field+".max_power", "must be positive")
		}
	}
	if len(c.Tools) > core.MaxSteppers {
		bad("tools", "at most %d tools supported", core.MaxSteppers)
	}

	if c.MovementQueueSize < 2 || c.MovementQueueSize > MaxMovementQueueSize {
		bad("movement_queue_size", "must be within [2, %d]", MaxMovementQueueSize)
	}
	if c.SubMovementQueueSize < 2 || c.SubMovementQueueSize > MaxSubMovementQueueSize {
		bad("sub_movement_queue_size", "must be within [2, %d]", MaxSubMovementQueueSize)
	}

	d := c.Distance
	if d.Min <= 0 || d.Min > d.Target || d.Target > d.Max || d.Max > 255 {
		bad("distance", "need 0 < min <= target <= max <= 255, got %d/%d/%d", d.Min, d.Target, d.Max)
	}
	if c.DefaultIncrement <= 0 {
		bad("default_increment", "must be positive")
	}
	if c.MaxIncrementIterations <= 0 {
		bad("max_increment_iterations", "must be positive")
	}
	if c.MaxRescaleRetries <= 0 {
		bad("max_rescale_retries", "must be positive")
	}

	return errors.Join(errs...)
}

// AxisIndex returns the index of the named axis, or -1
func (c *MachineConfig) AxisIndex(name string) int {
	for i, axis := range c.Axes {
		if strings.EqualFold(axis.Name, name) {
			return i
		}
	}
	return -1
}

// DefaultCartesianConfig returns a default configuration for a Cartesian printer
func DefaultCartesianConfig() *MachineConfig {
	config := &MachineConfig{
		Kinematics: "cartesian",
		Axes: []AxisConfig{
			{Name: "x", StepsPerUnit: 80.0, MaxSpeed: 300.0, Acceleration: 3000.0, Jerk: 10.0},
			{Name: "y", StepsPerUnit: 80.0, MaxSpeed: 300.0, Acceleration: 3000.0, Jerk: 10.0},
			{Name: "z", StepsPerUnit: 400.0, MaxSpeed: 10.0, Acceleration: 100.0, Jerk: 0.4},
			{Name: "e", StepsPerUnit: 96.0, MaxSpeed: 50.0, Acceleration: 5000.0, Jerk: 5.0},
		},
		SpeedGroups: []SpeedGroupConfig{
			{Name: "xyz", Axes: []string{"x", "y", "z"}, MaxSpeed: 300.0},
			{Name: "e", Axes: []string{"e"}, MaxSpeed: 50.0},
		},
		Tools: []ToolConfig{
			{Name: "laser", LinearPowerCoefficient: 0.005, MaxPower: 1.0, PWMPin: 10},
		},
		Regulator: RegulatorCore2,
	}
	applyDefaults(config)
	return config
}
