package standalone

import (
	"sync/atomic"

	"gostep/standalone/config"
	"gostep/standalone/motion"
)

// movementQueue is a fixed single-producer single-consumer ring of
// movements. The foreground reserves the slot after the newest movement,
// fills it outside any critical section and commits it inside one; the
// tick handler only ever sees committed slots. head and count are only
// written by their owner under the interrupt lock, and stay atomic so the
// queries can read them without one.
type movementQueue struct {
	slots    [config.MaxMovementQueueSize]motion.Movement
	capacity uint32
	head     atomic.Uint32 // index of the oldest committed movement
	count    atomic.Uint32 // committed movements
	locked   atomic.Bool
}

func (q *movementQueue) init(capacity int) {
	if capacity <= 0 || capacity > len(q.slots) {
		capacity = len(q.slots)
	}
	q.capacity = uint32(capacity)
	for i := range q.slots {
		q.slots[i].Reset()
	}
	q.head.Store(0)
	q.count.Store(0)
	q.locked.Store(false)
}

func (q *movementQueue) len() int {
	return int(q.count.Load())
}

func (q *movementQueue) at(i uint32) *motion.Movement {
	return &q.slots[(q.head.Load()+i)%q.capacity]
}

// reserve returns the slot after the newest movement, or nil when full.
// The slot stays the same across pops and resets until it is committed.
func (q *movementQueue) reserve() *motion.Movement {
	n := q.count.Load()
	if n >= q.capacity {
		return nil
	}
	return q.at(n)
}

func (q *movementQueue) commit() {
	q.count.Add(1)
}

// front returns the oldest movement: the one being stepped while running
func (q *movementQueue) front() *motion.Movement {
	if q.count.Load() == 0 {
		return nil
	}
	return q.at(0)
}

// newest returns the most recently committed movement
func (q *movementQueue) newest() *motion.Movement {
	n := q.count.Load()
	if n == 0 {
		return nil
	}
	return q.at(n - 1)
}

// pop releases the oldest movement (consumer side)
func (q *movementQueue) pop() {
	if q.count.Load() == 0 {
		return
	}
	q.at(0).Reset()
	q.head.Store((q.head.Load() + 1) % q.capacity)
	q.count.Add(^uint32(0))
}

// dropNewest releases the newest movement (producer side)
func (q *movementQueue) dropNewest() {
	n := q.count.Load()
	if n == 0 {
		return
	}
	q.at(n - 1).Reset()
	q.count.Add(^uint32(0))
}

// after returns the committed movement following m, or nil
func (q *movementQueue) after(m *motion.Movement) *motion.Movement {
	n := q.count.Load()
	for i := uint32(0); i+1 < n; i++ {
		if q.at(i) == m {
			return q.at(i + 1)
		}
	}
	return nil
}

// before returns the committed movement preceding m, or nil
func (q *movementQueue) before(m *motion.Movement) *motion.Movement {
	n := q.count.Load()
	for i := uint32(1); i < n; i++ {
		if q.at(i) == m {
			return q.at(i - 1)
		}
	}
	return nil
}

// NextMovement returns the oldest committed movement with an id after
// afterID. Ids are assigned in enqueue order and compared wrap-safe.
func (q *movementQueue) NextMovement(afterID uint32) *motion.Movement {
	n := q.count.Load()
	for i := uint32(0); i < n; i++ {
		if m := q.at(i); int32(m.ID-afterID) > 0 {
			return m
		}
	}
	return nil
}

// reset drops every committed movement. A slot reserved by the producer
// keeps its position.
func (q *movementQueue) reset() {
	n := q.count.Load()
	for i := uint32(0); i < n; i++ {
		q.at(i).Reset()
	}
	q.head.Store((q.head.Load() + n) % q.capacity)
	q.count.Store(0)
	q.locked.Store(false)
}

// ids appends the ids of the committed movements, oldest first
func (q *movementQueue) ids(dst []uint32) []uint32 {
	n := q.count.Load()
	for i := uint32(0); i < n; i++ {
		dst = append(dst, q.at(i).ID)
	}
	return dst
}
