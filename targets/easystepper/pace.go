// Package easystepper drives small unipolar steppers (28BYJ-48 and the
// like) wired to four GPIO pins through tinygo.org/x/drivers/easystepper.
// The driver steps with blocking sleeps, so each axis runs its own worker
// that replays the core's sub-movements: the steps of a sub-movement are
// spread evenly over its duration, and a sub-movement without steps for
// the axis still takes its time, which keeps the axes in lockstep.
package easystepper

import (
	"sync"
	"sync/atomic"
	"time"

	"gostep/core"
)

// segmentDepth is how many sub-movements an axis worker may lag behind
const segmentDepth = 64

// coil is the part of easystepper.Device the workers use
type coil interface {
	Move(steps int32)
	Off()
}

type segment struct {
	steps int32
	dur   time.Duration
	gen   uint32
}

// Sink implements core.StepSink on top of four-wire stepper devices. Each
// device must be configured fast enough that a single Move(±1) finishes
// within the shortest step interval the axis max speed asks for; the
// remainder of every interval is slept away by the worker.
type Sink struct {
	coils   []coil
	queues  []chan segment
	gen     atomic.Uint32
	overrun atomic.Uint32
	sleep   func(time.Duration)
	now     func() time.Duration
	wg      sync.WaitGroup
}

func newSink(coils []coil, sleep func(time.Duration), now func() time.Duration) *Sink {
	s := &Sink{
		coils:  coils,
		queues: make([]chan segment, len(coils)),
		sleep:  sleep,
		now:    now,
	}
	for i := range coils {
		s.queues[i] = make(chan segment, segmentDepth)
		s.wg.Add(1)
		go s.run(i)
	}
	return s
}

// ticksToDuration converts core timer ticks to wall time
func ticksToDuration(ticks uint32) time.Duration {
	return time.Duration(uint64(ticks) * uint64(time.Second) / core.TimerFreq)
}

func (s *Sink) run(i int) {
	defer s.wg.Done()
	c := s.coils[i]
	for seg := range s.queues[i] {
		if seg.gen != s.gen.Load() {
			continue
		}
		if seg.steps == 0 {
			s.sleep(seg.dur)
			continue
		}
		n, dir := seg.steps, int32(1)
		if n < 0 {
			n, dir = -n, -1
		}
		interval := seg.dur / time.Duration(n)
		for k := int32(0); k < n; k++ {
			start := s.now()
			c.Move(dir)
			if rest := interval - (s.now() - start); rest > 0 {
				s.sleep(rest)
			}
			if seg.gen != s.gen.Load() {
				break
			}
		}
		if len(s.queues[i]) == 0 {
			c.Off()
		}
	}
	c.Off()
}

// Emit implements core.StepSink. It never blocks: a sub-movement that
// finds an axis queue full is dropped for that axis and counted.
func (s *Sink) Emit(dir uint8, steps *[core.MaxSteppers]uint8, ticks uint32) {
	dur := ticksToDuration(ticks)
	gen := s.gen.Load()
	for i, q := range s.queues {
		n := int32(steps[i])
		if dir&(1<<uint(i)) != 0 {
			n = -n
		}
		select {
		case q <- segment{steps: n, dur: dur, gen: gen}:
		default:
			s.overrun.Add(1)
		}
	}
}

// Stop drops every queued sub-movement; a step in progress finishes
func (s *Sink) Stop() {
	s.gen.Add(1)
}

// GetName implements core.StepSink
func (s *Sink) GetName() string {
	return "easystepper"
}

// Overruns returns how many axis sub-movements were dropped on a full queue
func (s *Sink) Overruns() uint32 {
	return s.overrun.Load()
}

// Close stops the workers once their queues are played out
func (s *Sink) Close() {
	for _, q := range s.queues {
		close(q)
	}
	s.wg.Wait()
}
