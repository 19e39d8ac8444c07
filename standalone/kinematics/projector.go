package kinematics

import (
	"errors"
	"math"

	"gostep/core"
	"gostep/standalone/config"
)

// NoAxis fills unused slots of a speed group
const NoAxis = -1

// SpeedGroup is a resolved speed group: up to three axis indices
type SpeedGroup struct {
	Axes     [config.MaxSpeedGroupAxes]int
	MaxSpeed float64
}

// Projector holds the per-axis limits and speed groups of a machine and
// projects distance vectors onto speed groups.
type Projector struct {
	axes   [core.MaxSteppers]config.AxisConfig
	count  int
	groups []SpeedGroup
}

// NewProjector resolves the configured speed groups
func NewProjector(cfg *config.MachineConfig) (*Projector, error) {
	if len(cfg.Axes) > core.MaxSteppers {
		return nil, errors.New("projector: too many axes")
	}
	p := &Projector{count: len(cfg.Axes)}
	copy(p.axes[:], cfg.Axes)

	for _, gc := range cfg.SpeedGroups {
		g := SpeedGroup{MaxSpeed: gc.MaxSpeed}
		for i := range g.Axes {
			g.Axes[i] = NoAxis
		}
		for i, name := range gc.Axes {
			if i >= len(g.Axes) {
				return nil, errors.New("projector: speed group " + gc.Name + " has too many axes")
			}
			idx := cfg.AxisIndex(name)
			if idx < 0 {
				return nil, errors.New("projector: unknown axis " + name)
			}
			g.Axes[i] = idx
		}
		p.groups = append(p.groups, g)
	}
	if len(p.groups) == 0 {
		return nil, errors.New("projector: no speed group")
	}
	return p, nil
}

// Project returns the Euclidean norm of distances restricted to the
// group's axes. Missing axes and out of range indices contribute zero.
func (p *Projector) Project(group int, distances []float64) float64 {
	if group < 0 || group >= len(p.groups) {
		return 0
	}
	sum := 0.0
	for _, axis := range p.groups[group].Axes {
		if axis < 0 || axis >= len(distances) {
			continue
		}
		d := distances[axis]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// AxisConfig returns the configuration of axis, or a zero value when out of range
func (p *Projector) AxisConfig(axis int) config.AxisConfig {
	if axis < 0 || axis >= p.count {
		return config.AxisConfig{}
	}
	return p.axes[axis]
}

// NumAxes returns the number of configured axes
func (p *Projector) NumAxes() int {
	return p.count
}

// NumGroups returns the number of speed groups
func (p *Projector) NumGroups() int {
	return len(p.groups)
}

// Group returns the speed group at index i
func (p *Projector) Group(i int) (SpeedGroup, bool) {
	if i < 0 || i >= len(p.groups) {
		return SpeedGroup{}, false
	}
	return p.groups[i], true
}
