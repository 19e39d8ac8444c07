package stepgen

import (
	"math"

	"gostep/core"
	"gostep/standalone/config"
	"gostep/standalone/kinematics"
	"gostep/standalone/motion"
	"gostep/standalone/regulator"
)

// MovementSource hands the pipeline the committed movement that follows
// the one it just finished producing.
type MovementSource interface {
	// NextMovement returns the committed movement queued after the movement
	// with id afterID, or nil when there is none yet.
	NextMovement(afterID uint32) *motion.Movement
}

// Stats are the pipeline counters
type Stats struct {
	Produced uint32 // accepted sub-movements
	Rescales uint32 // increment rescales
	Sealed   uint32 // tails produced before a successor was linked
}

// Pipeline keeps a small ring of pre-computed sub-movements ahead of the
// stepping loop. Fill runs from the tick handler and from Start; it never
// allocates.
type Pipeline struct {
	kin        kinematics.Kinematics
	proj       *kinematics.Projector
	reg        regulator.Regulator
	src        MovementSource
	n          int
	band       config.DistanceConfig
	maxRetries int

	ring     [config.MaxSubMovementQueueSize]motion.SubMovement
	capacity int
	head     int
	count    int

	cur       *motion.Movement
	curID     uint32
	index     float64
	inc       float64
	exhausted bool
	hold      bool
	holdID    uint32
	scale     float64 // nominal sub-movements per unit of parameter

	// last accepted position
	target [motion.MaxSteppers]int32
	pos    [motion.MaxAxes]float64

	delta  [motion.MaxSteppers]int32
	hdelta [motion.MaxAxes]float64

	stats Stats
}

// NewPipeline creates a sub-movement pipeline
func NewPipeline(kin kinematics.Kinematics, proj *kinematics.Projector, reg regulator.Regulator, src MovementSource, cfg *config.MachineConfig) *Pipeline {
	p := &Pipeline{
		kin:        kin,
		proj:       proj,
		reg:        reg,
		src:        src,
		n:          proj.NumAxes(),
		band:       cfg.Distance,
		maxRetries: cfg.MaxRescaleRetries,
		capacity:   cfg.SubMovementQueueSize,
	}
	if p.capacity <= 0 || p.capacity > len(p.ring) {
		p.capacity = len(p.ring)
	}
	return p
}

// Reset drops every pre-computed sub-movement and detaches the movement
func (p *Pipeline) Reset() {
	for i := range p.ring {
		p.ring[i].Reset()
	}
	p.head = 0
	p.count = 0
	p.cur = nil
	p.curID = 0
	p.index = 0
	p.inc = 0
	p.exhausted = false
	p.hold = false
	p.holdID = 0
	p.scale = 0
}

// Begin starts producing m from rest. The start position is the trajectory
// evaluated at m.Begin, after m.Init has run.
func (p *Pipeline) Begin(m *motion.Movement) {
	p.Reset()
	p.enter(m)
	m.Trajectory(m.Begin, p.pos[:p.n])
	p.kin.Translate(p.pos[:p.n], p.target[:p.n])
}

func (p *Pipeline) enter(m *motion.Movement) {
	p.cur = m
	p.curID = m.ID
	p.index = m.Begin
	p.inc = m.BeginIncrement
	p.exhausted = false
	p.scale = 0
	if span := math.Abs(m.End - m.Begin); span > 0 && m.EstimatedTicks > 0 {
		p.scale = float64(m.EstimatedTicks) / span
	} else if m.BeginIncrement > 0 {
		p.scale = 1 / m.BeginIncrement
	}
	if m.Init != nil {
		m.Init()
	}
}

// Fill produces sub-movements until the ring is full or no further
// movement may be entered.
func (p *Pipeline) Fill() error {
	for p.count < p.capacity && p.cur != nil {
		if p.exhausted {
			next := p.src.NextMovement(p.curID)
			if next == nil || (p.hold && int32(next.ID-p.holdID) > 0) {
				return nil
			}
			p.enter(next)
		}
		if err := p.produce(); err != nil {
			return err
		}
	}
	return nil
}

// produce computes and validates the next candidate of the current
// movement. The increment is rescaled by target/observed until the step
// distance falls within the band.
func (p *Pipeline) produce() error {
	m := p.cur
	dir := 1.0
	if m.Reverse() {
		dir = -1.0
	}
	slot := &p.ring[(p.head+p.count)%p.capacity]

	for retry := 0; ; retry++ {
		cand := p.index + dir*p.inc
		last := false
		if (m.End-cand)*dir <= p.inc*1e-6 {
			// never extrapolate past the end
			cand = m.End
			last = true
		}

		slot.Reset()
		slot.Movement = m
		slot.Index = cand
		m.Trajectory(cand, slot.Position[:p.n])
		p.kin.Translate(slot.Position[:p.n], slot.Target[:p.n])
		for i := 0; i < p.n; i++ {
			p.delta[i] = slot.Target[i] - p.target[i]
			p.hdelta[i] = slot.Position[i] - p.pos[i]
		}
		slot.SetDelta(&p.delta, p.n)
		slot.MovementDistance = p.proj.Project(m.SpeedGroup, p.hdelta[:p.n])
		p.reg.InitialiseSubMovement(slot)

		observed := slot.MaxDistance
		if observed <= p.band.Max && (observed >= p.band.Min || last) {
			p.accept(slot, cand, dir, last)
			return nil
		}
		if retry >= p.maxRetries {
			slot.Reset()
			return motion.ErrRunawayTrajectory
		}

		ratio := 2.0
		if observed > 0 {
			ratio = float64(p.band.Target) / float64(observed)
		}
		p.inc *= ratio
		p.reg.Rescaled(ratio)
		p.stats.Rescales++
		core.RecordTiming(core.EvtRescale, uint8(m.ID), core.GetTime(), uint32(observed), uint32(retry))
	}
}

func (p *Pipeline) accept(slot *motion.SubMovement, cand, dir float64, last bool) {
	m := p.cur
	p.target = slot.Target
	p.pos = slot.Position
	p.index = cand
	slot.Last = last

	if last {
		slot.Remaining = 0
		p.exhausted = true
		if m.Boundary.Close() {
			p.stats.Sealed++
			core.RecordTiming(core.EvtBoundarySealed, uint8(m.ID), core.GetTime(), m.ID, 0)
		}
	} else {
		slot.Remaining = p.endJerkDistance((m.End - cand) * dir)
	}

	p.count++
	p.stats.Produced++
}

// endJerkDistance converts the parameter distance left in the movement
// into nominal sub-movements. Candidates strictly advance, so the result
// strictly decreases; it stays positive until the last sub-movement even
// when rescales make the movement take more sub-movements than estimated.
func (p *Pipeline) endJerkDistance(left float64) float64 {
	return left * p.scale
}

// Pop copies the oldest sub-movement into dst and releases its slot
func (p *Pipeline) Pop(dst *motion.SubMovement) bool {
	if p.count == 0 {
		return false
	}
	*dst = p.ring[p.head]
	p.ring[p.head].Reset()
	p.head = (p.head + 1) % p.capacity
	p.count--
	return true
}

// Len returns the number of sub-movements ready to be stepped
func (p *Pipeline) Len() int {
	return p.count
}

// Current returns the movement being produced
func (p *Pipeline) Current() *motion.Movement {
	return p.cur
}

// Exhausted reports whether the tail of the current movement was produced
func (p *Pipeline) Exhausted() bool {
	return p.exhausted
}

// HoldAfter stops the pipeline from entering movements queued after the
// movement with the given id
func (p *Pipeline) HoldAfter(id uint32) {
	p.hold = true
	p.holdID = id
}

// Release lifts a hold
func (p *Pipeline) Release() {
	p.hold = false
}

// Held reports whether the pipeline is held
func (p *Pipeline) Held() bool {
	return p.hold
}

// Stats returns the pipeline counters
func (p *Pipeline) Stats() Stats {
	return p.stats
}
