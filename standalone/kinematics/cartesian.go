package kinematics

import (
	"errors"

	"gostep/core"
	"gostep/standalone/config"
)

// Cartesian implements a 1:1 mapping between high-level axes and steppers
type Cartesian struct {
	stepsPerUnit [core.MaxSteppers]float64
	count        int
	names        []string
}

// NewCartesian creates a new Cartesian kinematics instance
func NewCartesian(cfg *config.MachineConfig) (*Cartesian, error) {
	if len(cfg.Axes) == 0 || len(cfg.Axes) > core.MaxSteppers {
		return nil, errors.New("cartesian: bad axis count")
	}
	k := &Cartesian{count: len(cfg.Axes), names: axisNames(cfg)}
	for i, axis := range cfg.Axes {
		k.stepsPerUnit[i] = axis.StepsPerUnit
	}
	return k, nil
}

// Translate scales every axis by its steps-per-unit
func (k *Cartesian) Translate(pos []float64, steps []int32) {
	for i := 0; i < k.count && i < len(pos) && i < len(steps); i++ {
		steps[i] = toSteps(pos[i] * k.stepsPerUnit[i])
	}
}

// GetAxisNames returns the axis names for Cartesian kinematics
func (k *Cartesian) GetAxisNames() []string {
	return k.names
}
