package protocol

import "errors"

// ErrFrameOverflow is returned when completed frames were not taken in time
var ErrFrameOverflow = errors.New("protocol: frame buffer overflow")

// FrameEncoder batches records into frames. Completed frames accumulate
// until Take; nothing is allocated after construction.
type FrameEncoder struct {
	payload ScratchOutput
	record  ScratchOutput
	frames  ScratchOutput
	seq     uint8
	dropped uint32
}

// NewFrameEncoder creates an encoder starting at sequence zero
func NewFrameEncoder() *FrameEncoder {
	return &FrameEncoder{}
}

// Session queues a session record and closes the frame, so the emitter
// sees it before any step.
func (e *FrameEncoder) Session(id []byte) error {
	e.record.Reset()
	EncodeVLQUint(&e.record, RecordSession)
	EncodeVLQBytes(&e.record, id)
	if err := e.add(); err != nil {
		return err
	}
	return e.Flush()
}

// Step queues one tick. Only the first axes counts of steps are sent.
func (e *FrameEncoder) Step(dir uint8, steps []uint8, ticks uint32) error {
	if len(steps) > MaxAxes {
		steps = steps[:MaxAxes]
	}
	e.record.Reset()
	EncodeVLQUint(&e.record, RecordStep)
	EncodeVLQUint(&e.record, uint32(dir))
	EncodeVLQUint(&e.record, ticks)
	EncodeVLQBytes(&e.record, steps)
	return e.add()
}

// Stop queues a stop record and closes the frame
func (e *FrameEncoder) Stop() error {
	e.record.Reset()
	EncodeVLQUint(&e.record, RecordStop)
	if err := e.add(); err != nil {
		return err
	}
	return e.Flush()
}

func (e *FrameEncoder) add() error {
	rec := e.record.Result()
	if e.payload.CurPosition()+len(rec) > MessagePayloadMax {
		if err := e.Flush(); err != nil {
			return err
		}
	}
	e.payload.Output(rec)
	return nil
}

// Flush closes the open frame, if any
func (e *FrameEncoder) Flush() error {
	payload := e.payload.Result()
	if len(payload) == 0 {
		return nil
	}
	e.payload.Reset()

	length := len(payload) + MessageLengthMin
	if length > e.frames.Room() {
		e.dropped++
		return ErrFrameOverflow
	}

	cursor := e.frames.CurPosition()
	e.frames.Output([]byte{uint8(length), MessageDest | e.seq})
	e.frames.Output(payload)
	crc := CRC16(e.frames.DataSince(cursor))
	e.frames.Output([]byte{uint8(crc >> 8), uint8(crc), MessageValueSync})
	e.seq = (e.seq + 1) & MessageSeqMask
	return nil
}

// Take returns the completed frames and clears them. The slice is valid
// until the next encoder call.
func (e *FrameEncoder) Take() []byte {
	out := e.frames.Result()
	e.frames.Reset()
	return out
}

// Dropped returns the number of frames lost to overflow
func (e *FrameEncoder) Dropped() uint32 {
	return e.dropped
}

// DecoderStats are the frame decoder counters
type DecoderStats struct {
	Frames    uint32
	Records   uint32
	BadFrames uint32 // length, CRC or sync errors
	Lost      uint32 // sequence gaps
}

// FrameDecoder parses a byte stream into records, resynchronising on the
// sync byte after any corruption.
type FrameDecoder struct {
	handler func(*Record) error
	synced  bool
	started bool
	nextSeq uint8
	stats   DecoderStats
}

// NewFrameDecoder creates a decoder calling handler for every record
func NewFrameDecoder(handler func(*Record) error) *FrameDecoder {
	return &FrameDecoder{handler: handler, synced: true}
}

// Receive consumes every complete frame available in input. A handler
// error stops processing of the frame and is returned.
func (d *FrameDecoder) Receive(input InputBuffer) error {
	data := input.Data()
	var herr error

	for len(data) > 0 && herr == nil {
		if !d.synced {
			i := 0
			for i < len(data) && data[i] != MessageValueSync {
				i++
			}
			if i == len(data) {
				data = nil
				break
			}
			data = data[i+1:]
			d.synced = true
			continue
		}

		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}
		if len(data) < MessageLengthMin {
			break
		}

		msgLen := int(data[MessagePositionLen])
		seq := data[MessagePositionSeq]
		if msgLen < MessageLengthMin || msgLen > MessageLengthMax || seq&^MessageSeqMask != MessageDest {
			d.desync()
			continue
		}
		if len(data) < msgLen {
			break
		}
		if data[msgLen-MessageTrailerSync] != MessageValueSync {
			d.desync()
			continue
		}
		frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 | uint16(data[msgLen-MessageTrailerCRC+1])
		if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
			d.desync()
			continue
		}

		frame := data[MessageHeaderSize : msgLen-MessageTrailerSize]
		data = data[msgLen:]

		seq &= MessageSeqMask
		if d.started && seq != d.nextSeq {
			d.stats.Lost++
		}
		d.started = true
		d.nextSeq = (seq + 1) & MessageSeqMask
		d.stats.Frames++
		herr = d.parseFrame(frame)
	}

	consumed := input.Available() - len(data)
	if consumed > 0 {
		input.Pop(consumed)
	}
	return herr
}

func (d *FrameDecoder) desync() {
	d.synced = false
	d.stats.BadFrames++
}

// parseFrame extracts and dispatches the records of a frame
func (d *FrameDecoder) parseFrame(frame []byte) error {
	var rec Record
	for len(frame) > 0 {
		id, err := DecodeVLQUint(&frame)
		if err != nil {
			d.stats.BadFrames++
			return nil
		}
		rec = Record{ID: id}
		switch id {
		case RecordSession:
			rec.Session, err = DecodeVLQBytes(&frame)
		case RecordStep:
			var dir uint32
			if dir, err = DecodeVLQUint(&frame); err == nil {
				rec.Dir = uint8(dir)
				if rec.Ticks, err = DecodeVLQUint(&frame); err == nil {
					rec.Steps, err = DecodeVLQBytes(&frame)
				}
			}
		case RecordStop:
		default:
			err = ErrInvalidVLQ
		}
		if err != nil {
			// the rest of the frame cannot be trusted
			d.stats.BadFrames++
			return nil
		}

		d.stats.Records++
		if d.handler != nil {
			if err := d.handler(&rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// Stats returns the decoder counters
func (d *FrameDecoder) Stats() DecoderStats {
	return d.stats
}

// Reset forgets the sequence and synchronisation state
func (d *FrameDecoder) Reset() {
	d.synced = true
	d.started = false
	d.nextSeq = 0
}
