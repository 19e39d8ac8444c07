// Package stepsink streams the stepping loop's ticks to an external pulse
// emitter over a byte stream.
package stepsink

import (
	"fmt"
	"io"

	"github.com/google/uuid"

	"gostep/core"
	"gostep/protocol"
)

// Stats are the serial sink counters
type Stats struct {
	Ticks  uint32
	Bytes  uint64
	Stops  uint32
	Errors uint32
}

// SerialSink encodes every emitted tick into protocol frames and writes
// them to w. It runs from the simulated timer on the host; the first
// write error is kept and later ticks are dropped.
type SerialSink struct {
	w       io.Writer
	enc     *protocol.FrameEncoder
	axes    int
	session uuid.UUID
	err     error
	stats   Stats
}

// NewSerialSink opens a stream on w tagged with session and sends the
// session record. Only the first axes step counts are sent per tick.
func NewSerialSink(w io.Writer, axes int, session uuid.UUID) (*SerialSink, error) {
	if axes <= 0 || axes > core.MaxSteppers {
		return nil, fmt.Errorf("stepsink: %d axes out of range", axes)
	}
	s := &SerialSink{
		w:       w,
		enc:     protocol.NewFrameEncoder(),
		axes:    axes,
		session: session,
	}
	if err := s.enc.Session(session[:]); err != nil {
		return nil, err
	}
	s.write()
	if s.err != nil {
		return nil, s.err
	}
	return s, nil
}

// Emit implements core.StepSink
func (s *SerialSink) Emit(dir uint8, steps *[core.MaxSteppers]uint8, ticks uint32) {
	if s.err != nil {
		return
	}
	if err := s.enc.Step(dir, steps[:s.axes], ticks); err != nil {
		s.fail(err)
		return
	}
	s.stats.Ticks++
	s.write()
}

// Stop implements core.StepSink. Pending ticks are flushed ahead of the
// stop record.
func (s *SerialSink) Stop() {
	if s.err != nil {
		return
	}
	if err := s.enc.Stop(); err != nil {
		s.fail(err)
		return
	}
	s.stats.Stops++
	s.write()
}

// GetName implements core.StepSink
func (s *SerialSink) GetName() string {
	return "serial"
}

// Flush sends the partially filled frame
func (s *SerialSink) Flush() error {
	if s.err != nil {
		return s.err
	}
	if err := s.enc.Flush(); err != nil {
		s.fail(err)
		return err
	}
	s.write()
	return s.err
}

func (s *SerialSink) write() {
	data := s.enc.Take()
	if len(data) == 0 {
		return
	}
	n, err := s.w.Write(data)
	s.stats.Bytes += uint64(n)
	if err == nil && n < len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		s.fail(err)
	}
}

func (s *SerialSink) fail(err error) {
	s.stats.Errors++
	if s.err == nil {
		s.err = fmt.Errorf("stepsink: %w", err)
	}
}

// Err returns the first write or encoding error
func (s *SerialSink) Err() error {
	return s.err
}

// Session returns the stream's session id
func (s *SerialSink) Session() uuid.UUID {
	return s.session
}

// Stats returns the sink counters
func (s *SerialSink) Stats() Stats {
	return s.stats
}
