package kinematics

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gostep/standalone/config"
)

func TestCartesianTranslate(t *testing.T) {
	cfg := config.DefaultCartesianConfig()
	k, err := New(cfg)
	require.NoError(t, err)

	steps := make([]int32, len(cfg.Axes))
	k.Translate([]float64{1, -0.5, 0.0124, 2}, steps)

	assert.Equal(t, int32(1*cfg.Axes[0].StepsPerUnit), steps[0])
	assert.Equal(t, int32(-0.5*cfg.Axes[1].StepsPerUnit), steps[1])
	assert.Equal(t, []string{"x", "y", "z", "e"}, k.GetAxisNames())
}

func TestCoreXYTranslate(t *testing.T) {
	cfg := config.DefaultCartesianConfig()
	cfg.Kinematics = "corexy"
	k, err := New(cfg)
	require.NoError(t, err)

	steps := make([]int32, len(cfg.Axes))
	k.Translate([]float64{1, 1, 0, 0}, steps)
	assert.Equal(t, int32(2*cfg.Axes[0].StepsPerUnit), steps[0])
	assert.Equal(t, int32(0), steps[1])
}

func TestUnsupportedKinematics(t *testing.T) {
	cfg := config.DefaultCartesianConfig()
	cfg.Kinematics = "delta"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestProjectGroup(t *testing.T) {
	p, err := NewProjector(config.DefaultCartesianConfig())
	require.NoError(t, err)

	// xyz group ignores the extruder
	assert.InDelta(t, 5.0, p.Project(0, []float64{3, 4, 0, 100}), 1e-12)
	// e group sees only the extruder
	assert.InDelta(t, 100.0, p.Project(1, []float64{3, 4, 0, -100}), 1e-12)
}

func TestProjectOutOfRange(t *testing.T) {
	p, err := NewProjector(config.DefaultCartesianConfig())
	require.NoError(t, err)

	// short vectors contribute zero for missing axes
	assert.InDelta(t, 3.0, p.Project(0, []float64{3}), 1e-12)
	assert.Zero(t, p.Project(-1, []float64{1, 1, 1}))
	assert.Zero(t, p.Project(99, []float64{1, 1, 1}))
	assert.Equal(t, config.AxisConfig{}, p.AxisConfig(42))
	assert.Equal(t, config.AxisConfig{}, p.AxisConfig(-1))
}

func TestProjectProperties(t *testing.T) {
	p, err := NewProjector(config.DefaultCartesianConfig())
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 500; i++ {
		d := []float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
		neg := []float64{-d[0], -d[1], -d[2], -d[3]}
		a := p.Project(0, d)
		assert.GreaterOrEqual(t, a, 0.0)
		assert.InDelta(t, a, p.Project(0, neg), 1e-12)
		for _, v := range d[:3] {
			assert.LessOrEqual(t, math.Abs(v), a+1e-12)
		}
	}
}

func TestProjectorRejectsUnknownAxis(t *testing.T) {
	cfg := config.DefaultCartesianConfig()
	cfg.SpeedGroups[0].Axes = []string{"x", "w"}
	_, err := NewProjector(cfg)
	assert.Error(t, err)
}
