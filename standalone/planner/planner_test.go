package planner

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gostep/standalone/config"
	"gostep/standalone/kinematics"
	"gostep/standalone/motion"
)

func testMachine(t *testing.T) (*config.MachineConfig, kinematics.Kinematics, *kinematics.Projector) {
	t.Helper()
	cfg, err := config.LoadConfig([]byte(`{
		"axes": [
			{"name": "a", "steps_per_unit": 80, "max_speed": 200, "acceleration": 500, "jerk": 10},
			{"name": "b", "steps_per_unit": 80, "max_speed": 200, "acceleration": 500, "jerk": 10}
		]
	}`))
	require.NoError(t, err)
	kin, err := kinematics.New(cfg)
	require.NoError(t, err)
	proj, err := kinematics.NewProjector(cfg)
	require.NoError(t, err)
	return cfg, kin, proj
}

// line returns a straight trajectory from p0 to p1 over [0, 1]
func line(p0, p1 [2]float64) motion.TrajectoryFunc {
	return func(t float64, pos []float64) {
		pos[0] = p0[0] + (p1[0]-p0[0])*t
		pos[1] = p0[1] + (p1[1]-p0[1])*t
	}
}

func newMovement(traj motion.TrajectoryFunc, begin, end float64) *motion.Movement {
	m := &motion.Movement{}
	m.Load(1, &motion.Request{Begin: begin, End: end, Trajectory: traj, Speed: 100})
	return m
}

func TestIncrementConverges(t *testing.T) {
	cfg, kin, _ := testMachine(t)
	ic := NewIncrementComputer(kin, cfg)

	m := newMovement(line([2]float64{0, 0}, [2]float64{50, 20}), 0, 1)
	require.NoError(t, ic.DetermineIncrements(m))

	d := ic.StepDistance(m.PreProcess, 0, m.BeginIncrement)
	assert.GreaterOrEqual(t, d, cfg.Distance.Min)
	assert.LessOrEqual(t, d, cfg.Distance.Max)
	d = ic.StepDistance(m.PreProcess, 1-m.EndIncrement, 1)
	assert.GreaterOrEqual(t, d, cfg.Distance.Min)
	assert.LessOrEqual(t, d, cfg.Distance.Max)

	// 4000 steps on the longest axis at roughly 11 per tick
	assert.InDelta(t, 4000/11, m.EstimatedTicks, 40)
}

func TestIncrementReverseRange(t *testing.T) {
	cfg, kin, _ := testMachine(t)
	ic := NewIncrementComputer(kin, cfg)

	m := newMovement(line([2]float64{0, 0}, [2]float64{10, 0}), 1, 0)
	require.NoError(t, ic.DetermineIncrements(m))
	d := ic.StepDistance(m.PreProcess, 1, 1-m.BeginIncrement)
	assert.GreaterOrEqual(t, d, cfg.Distance.Min)
	assert.LessOrEqual(t, d, cfg.Distance.Max)
}

func TestIncrementConvergesOnRandomArcs(t *testing.T) {
	cfg, kin, _ := testMachine(t)
	ic := NewIncrementComputer(kin, cfg)
	rng := rand.New(rand.NewSource(11))

	for i := 0; i < 50; i++ {
		r := 5 + rng.Float64()*50
		phase := rng.Float64() * 2 * math.Pi
		arc := func(t float64, pos []float64) {
			pos[0] = r * math.Cos(phase+t)
			pos[1] = r * math.Sin(phase+t)
		}
		m := newMovement(arc, 0, math.Pi/2)
		err := ic.DetermineIncrements(m)
		if err != nil {
			assert.ErrorIs(t, err, motion.ErrMicroMovement)
			continue
		}
		d := ic.StepDistance(arc, 0, m.BeginIncrement)
		assert.GreaterOrEqual(t, d, cfg.Distance.Min, "radius %f", r)
		assert.LessOrEqual(t, d, cfg.Distance.Max, "radius %f", r)
	}
}

func TestMicroMovement(t *testing.T) {
	cfg, kin, _ := testMachine(t)
	ic := NewIncrementComputer(kin, cfg)

	// 0.05 units is 4 steps, below the minimum distance
	m := newMovement(line([2]float64{0, 0}, [2]float64{0.05, 0}), 0, 1)
	assert.ErrorIs(t, ic.DetermineIncrements(m), motion.ErrMicroMovement)

	still := newMovement(line([2]float64{3, 3}, [2]float64{3, 3}), 0, 1)
	assert.ErrorIs(t, ic.DetermineIncrements(still), motion.ErrMicroMovement)

	empty := newMovement(line([2]float64{0, 0}, [2]float64{10, 0}), 0.5, 0.5)
	assert.ErrorIs(t, ic.DetermineIncrements(empty), motion.ErrMicroMovement)
}

func TestSingleSubMovementSegment(t *testing.T) {
	cfg, kin, _ := testMachine(t)
	ic := NewIncrementComputer(kin, cfg)

	// 0.14 units is 11 steps: the whole range is one sub-movement
	m := newMovement(line([2]float64{0, 0}, [2]float64{0.14, 0}), 0, 1)
	require.NoError(t, ic.DetermineIncrements(m))
	assert.Equal(t, 1.0, m.BeginIncrement)
	assert.Equal(t, 1, m.EstimatedTicks)
}

func TestRunawayTrajectory(t *testing.T) {
	cfg, kin, _ := testMachine(t)
	ic := NewIncrementComputer(kin, cfg)

	// a step function: any increment either moves nothing or jumps far
	jump := func(t float64, pos []float64) {
		pos[0] = 0
		if t > 1e-9 {
			pos[0] = 100
		}
		pos[1] = 0
	}
	m := newMovement(jump, 0, 1)
	assert.ErrorIs(t, ic.DetermineIncrements(m), motion.ErrRunawayTrajectory)
}

func TestSaveEndingData(t *testing.T) {
	cfg, kin, proj := testMachine(t)
	ic := NewIncrementComputer(kin, cfg)
	jp := NewJerkPlanner(kin, proj)

	m := newMovement(line([2]float64{0, 0}, [2]float64{30, -40}), 0, 1)
	require.NoError(t, ic.DetermineIncrements(m))
	jp.SaveEndingData(m)

	assert.Greater(t, m.EndDistance, 0.0)
	assert.Less(t, m.EndSteps[1], int32(0))
	// ratios are steps per unit of movement distance: 80 * direction cosine
	assert.InDelta(t, 80*0.6, m.EndRatios[0], 5)
	assert.InDelta(t, -80*0.8, m.EndRatios[1], 5)
	assert.InDelta(t, m.BeginRatios[0], m.EndRatios[0], 5)
}

func TestBoundarySpeedConcreteScenario(t *testing.T) {
	_, kin, proj := testMachine(t)
	jp := NewJerkPlanner(kin, proj)

	prev, next := &motion.Movement{}, &motion.Movement{}
	prev.EndRatios[0] = 1.0
	next.BeginRatios[0] = 0.4
	prev.Regulation.Speed = 150
	next.Regulation.Speed = 150

	assert.InDelta(t, 10*80/0.6, jp.BoundarySpeed(prev, next), 1e-9)
	require.True(t, jp.ResolveBoundary(next, prev))
	// unconstrained by the axis
	assert.Equal(t, 150.0, prev.JerkSpeed)

	next.BeginRatios[0] = 0.1
	assert.InDelta(t, 888.888, jp.BoundarySpeed(prev, next), 1e-3)
}

func TestBoundarySpeedIsTight(t *testing.T) {
	_, kin, proj := testMachine(t)
	jp := NewJerkPlanner(kin, proj)
	rng := rand.New(rand.NewSource(5))

	for i := 0; i < 200; i++ {
		prev, next := &motion.Movement{}, &motion.Movement{}
		for a := 0; a < 2; a++ {
			prev.EndRatios[a] = (rng.Float64()*2 - 1) * 80
			next.BeginRatios[a] = (rng.Float64()*2 - 1) * 80
		}
		speed := jp.BoundarySpeed(prev, next)

		tight := false
		for a := 0; a < 2; a++ {
			axis := proj.AxisConfig(a)
			change := math.Abs(prev.EndRatios[a]-next.BeginRatios[a]) * speed
			limit := axis.Jerk * axis.StepsPerUnit
			assert.LessOrEqual(t, change, limit*(1+1e-9))
			if math.Abs(change-limit) < 1e-6*limit {
				tight = true
			}
		}
		assert.True(t, tight)
	}
}

func TestResolveBoundaryOffsets(t *testing.T) {
	_, kin, proj := testMachine(t)
	jp := NewJerkPlanner(kin, proj)

	prev, next := &motion.Movement{}, &motion.Movement{}
	prev.EndRatios = [motion.MaxSteppers]float64{80, 20}
	prev.EndSteps = [motion.MaxSteppers]int32{11, 3}
	next.BeginRatios = [motion.MaxSteppers]float64{60, 40}
	prev.Regulation.Speed = 1000
	next.Regulation.Speed = 1000

	require.True(t, jp.ResolveBoundary(next, prev))
	// both axes change by 20 steps/unit: 800/20
	assert.InDelta(t, 40.0, prev.JerkSpeed, 1e-9)
	v := 40.0 * 80
	assert.InDelta(t, v*v/(2*500*80), prev.JerkOffsets[0], 1e-9)
	assert.Equal(t, 0, prev.JerkReferenceAxis)
	assert.InDelta(t, prev.JerkOffsets[0]/11, prev.JerkReferenceOffset, 1e-9)
	assert.Equal(t, motion.BoundaryResolved, prev.Boundary.State())
	assert.False(t, next.StartsFromRest)
}

func TestResolveAfterSeal(t *testing.T) {
	_, kin, proj := testMachine(t)
	jp := NewJerkPlanner(kin, proj)

	prev, next := &motion.Movement{}, &motion.Movement{}
	prev.Regulation.Speed = 100
	next.Regulation.Speed = 100
	require.True(t, prev.Boundary.Seal())

	assert.False(t, jp.ResolveBoundary(next, prev))
	assert.True(t, next.StartsFromRest)
	assert.Equal(t, motion.BoundarySealed, prev.Boundary.State())
}
