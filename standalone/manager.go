package standalone

import (
	"errors"
	"fmt"
	"log/slog"

	"gostep/internal/log"
	"gostep/standalone/config"
	"gostep/standalone/motion"
)

// Manager builds the motion core from a machine configuration and tracks
// the planned high-level position, so callers can queue lines and arcs
// without writing trajectory functions.
type Manager struct {
	config *config.MachineConfig
	opts   Options
	orch   *Orchestrator
	logger *slog.Logger

	// planned position at the end of the last queued movement
	position []float64
	scratch  []float64
	delta    []float64
}

// NewManager creates a new manager from JSON configuration
func NewManager(configData []byte, opts Options) (*Manager, error) {
	cfg, err := config.LoadConfig(configData)
	if err != nil {
		return nil, err
	}

	return NewManagerWithConfig(cfg, opts)
}

// NewManagerWithConfig creates a manager with an existing config
func NewManagerWithConfig(cfg *config.MachineConfig, opts Options) (*Manager, error) {
	if opts.Logger == nil {
		opts.Logger = log.L()
	}
	orch, err := NewOrchestrator(cfg, opts)
	if err != nil {
		return nil, err
	}

	n := len(cfg.Axes)
	return &Manager{
		config:   cfg,
		opts:     opts,
		orch:     orch,
		logger:   opts.Logger,
		position: make([]float64, n),
		scratch:  make([]float64, n),
		delta:    make([]float64, n),
	}, nil
}

// Orchestrator returns the motion core
func (m *Manager) Orchestrator() *Orchestrator {
	return m.orch
}

// Config returns the active configuration
func (m *Manager) Config() *config.MachineConfig {
	return m.config
}

// Position returns a copy of the planned position
func (m *Manager) Position() []float64 {
	return append([]float64(nil), m.position...)
}

// idle reports whether nothing is queued or stepping
func (m *Manager) idle() bool {
	return m.orch.State() == StateIdle && m.orch.QueueLen() == 0
}

// SetPosition redefines the planned position without moving
func (m *Manager) SetPosition(pos []float64) error {
	if !m.idle() {
		return motion.ErrNotIdle
	}
	if len(pos) != len(m.position) {
		return fmt.Errorf("%w: %d coordinates for %d axes", motion.ErrInvalidMovement, len(pos), len(m.position))
	}
	copy(m.position, pos)
	return nil
}

// Reconfigure rebuilds the motion core for a new configuration. The
// machine must be idle with an empty queue.
func (m *Manager) Reconfigure(cfg *config.MachineConfig) error {
	if !m.idle() {
		return motion.ErrNotIdle
	}
	orch, err := NewOrchestrator(cfg, m.opts)
	if err != nil {
		return err
	}
	n := len(cfg.Axes)
	position := make([]float64, n)
	copy(position, m.position)

	m.config = cfg
	m.orch = orch
	m.position = position
	m.scratch = make([]float64, n)
	m.delta = make([]float64, n)
	m.logger.Info("motion core reconfigured", "kinematics", cfg.Kinematics, "axes", n, "regulator", cfg.Regulator)
	return nil
}

// Line queues a straight movement to target at speed units/s. Movements
// shorter than one sub-movement are dropped and the planned position is
// left unchanged.
func (m *Manager) Line(target []float64, speed float64, tools motion.Signature) error {
	if len(target) != len(m.position) {
		return fmt.Errorf("%w: %d coordinates for %d axes", motion.ErrInvalidMovement, len(target), len(m.position))
	}
	for i := range target {
		m.delta[i] = target[i] - m.position[i]
	}
	group, ok := m.speedGroup(m.delta)
	if !ok {
		return nil
	}
	return m.enqueue(LinePath(m.position, target), group, speed, tools)
}

// Arc queues a circular movement around center in the plane of the first
// two axes, turning by angle radians. The other axes move linearly to
// their value in to, which may be nil.
func (m *Manager) Arc(center [2]float64, angle float64, to []float64, speed float64, tools motion.Signature) error {
	if len(m.position) < 2 {
		return fmt.Errorf("%w: arcs need two axes", motion.ErrInvalidMovement)
	}
	if to != nil && len(to) != len(m.position) {
		return fmt.Errorf("%w: %d coordinates for %d axes", motion.ErrInvalidMovement, len(to), len(m.position))
	}
	traj := ArcPath(m.position, to, center, angle)

	// the midpoint picks the group, the end point of a full turn would not
	traj(0.5, m.scratch)
	for i := range m.scratch {
		m.delta[i] = m.scratch[i] - m.position[i]
	}
	group, ok := m.speedGroup(m.delta)
	if !ok {
		return nil
	}
	return m.enqueue(traj, group, speed, tools)
}

// speedGroup returns the first group the movement has a distance in
func (m *Manager) speedGroup(delta []float64) (int, bool) {
	for g := 0; g < m.orch.proj.NumGroups(); g++ {
		if m.orch.proj.Project(g, delta) > 0 {
			return g, true
		}
	}
	return 0, false
}

func (m *Manager) enqueue(traj motion.TrajectoryFunc, group int, speed float64, tools motion.Signature) error {
	err := m.orch.Enqueue(&motion.Request{
		Begin:      0,
		End:        1,
		Trajectory: traj,
		SpeedGroup: group,
		Speed:      speed,
		Tools:      tools,
	})
	if errors.Is(err, motion.ErrMicroMovement) {
		m.logger.Debug("micro-movement dropped", "group", group)
		return nil
	}
	if err != nil {
		return err
	}
	traj(1, m.position)
	return nil
}
