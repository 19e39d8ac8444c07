package kinematics

import (
	"errors"
	"math"

	"gostep/standalone/config"
)

// Kinematics translates high-level positions into stepper coordinates.
// Translate is called from the tick handler and must not allocate.
type Kinematics interface {
	// Translate converts a high-level position into absolute step coordinates
	Translate(pos []float64, steps []int32)

	// GetAxisNames returns the names of the axes, in stepper order
	GetAxisNames() []string
}

// New builds the translation function named by the configuration
func New(cfg *config.MachineConfig) (Kinematics, error) {
	switch cfg.Kinematics {
	case "cartesian":
		return NewCartesian(cfg)
	case "corexy":
		return NewCoreXY(cfg)
	default:
		return nil, errors.New("unsupported kinematics: " + cfg.Kinematics)
	}
}

// toSteps rounds a scaled coordinate to the nearest step
func toSteps(v float64) int32 {
	return int32(math.Floor(v + 0.5))
}

func axisNames(cfg *config.MachineConfig) []string {
	names := make([]string, len(cfg.Axes))
	for i, axis := range cfg.Axes {
		names[i] = axis.Name
	}
	return names
}
