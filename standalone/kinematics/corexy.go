package kinematics

import (
	"errors"

	"gostep/core"
	"gostep/standalone/config"
)

// CoreXY drives the first two steppers from X+Y and X-Y; remaining axes map 1:1
type CoreXY struct {
	stepsPerUnit [core.MaxSteppers]float64
	count        int
	names        []string
}

// NewCoreXY creates a new CoreXY kinematics instance
func NewCoreXY(cfg *config.MachineConfig) (*CoreXY, error) {
	if len(cfg.Axes) < 2 || len(cfg.Axes) > core.MaxSteppers {
		return nil, errors.New("corexy: bad axis count")
	}
	k := &CoreXY{count: len(cfg.Axes), names: axisNames(cfg)}
	for i, axis := range cfg.Axes {
		k.stepsPerUnit[i] = axis.StepsPerUnit
	}
	return k, nil
}

// Translate computes the A/B belt positions from X/Y
func (k *CoreXY) Translate(pos []float64, steps []int32) {
	if len(pos) < 2 || len(steps) < 2 {
		return
	}
	x, y := pos[0], pos[1]
	steps[0] = toSteps((x + y) * k.stepsPerUnit[0])
	steps[1] = toSteps((x - y) * k.stepsPerUnit[1])
	for i := 2; i < k.count && i < len(pos) && i < len(steps); i++ {
		steps[i] = toSteps(pos[i] * k.stepsPerUnit[i])
	}
}

// GetAxisNames returns the stepper names
func (k *CoreXY) GetAxisNames() []string {
	return k.names
}
