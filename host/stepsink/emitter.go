package stepsink

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"gostep/core"
	"gostep/protocol"
)

// Emitter plays the external pulse emitter: it decodes a frame stream and
// integrates the steps. The simulator uses it to check what went over the
// wire.
type Emitter struct {
	dec  *protocol.FrameDecoder
	fifo *protocol.FifoBuffer
	buf  [256]byte

	Session  uuid.UUID
	Position [core.MaxSteppers]int64
	Ticks    uint64 // timer ticks spanned by the received steps
	Records  uint32
	Stops    uint32
}

// NewEmitter creates an emitter at the origin
func NewEmitter() *Emitter {
	e := &Emitter{fifo: protocol.NewFifoBuffer(1024)}
	e.dec = protocol.NewFrameDecoder(e.handle)
	return e
}

func (e *Emitter) handle(r *protocol.Record) error {
	switch r.ID {
	case protocol.RecordSession:
		id, err := uuid.FromBytes(r.Session)
		if err != nil {
			return fmt.Errorf("emitter: bad session: %w", err)
		}
		e.Session = id
	case protocol.RecordStep:
		for i, n := range r.Steps {
			if i >= core.MaxSteppers {
				break
			}
			if r.Dir&(1<<uint(i)) != 0 {
				e.Position[i] -= int64(n)
			} else {
				e.Position[i] += int64(n)
			}
		}
		e.Ticks += uint64(r.Ticks)
		e.Records++
	case protocol.RecordStop:
		e.Stops++
	}
	return nil
}

// Feed decodes data
func (e *Emitter) Feed(data []byte) error {
	for len(data) > 0 {
		n := e.fifo.Write(data)
		data = data[n:]
		if err := e.dec.Receive(e.fifo); err != nil {
			return err
		}
		if n == 0 && e.fifo.Free() == 0 {
			return errors.New("emitter: frame larger than the input buffer")
		}
	}
	return nil
}

// Drain reads r until it reports io.EOF and decodes everything
func (e *Emitter) Drain(r io.Reader) error {
	for {
		n, err := r.Read(e.buf[:])
		if n > 0 {
			if ferr := e.Feed(e.buf[:n]); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

// Stats returns the decoder counters
func (e *Emitter) Stats() protocol.DecoderStats {
	return e.dec.Stats()
}
