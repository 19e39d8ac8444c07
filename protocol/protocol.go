// Package protocol implements the framing used to stream per-tick step
// data to an external pulse emitter.
//
// A frame is: length, sequence, records, CRC16 (big endian), sync byte.
// Records start with a VLQ record id.
package protocol

// Version of the step stream format
const Version = "1"

// Frame layout
const (
	MessageMax         = 512 // scratch buffer size
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePayloadMax  = MessageLengthMax - MessageLengthMin
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
	MessageSeqMask     = 0x0F
)

// Record ids
const (
	// RecordSession opens a stream: VLQ bytes holding the session id.
	RecordSession uint32 = 1
	// RecordStep is one tick: VLQ dir mask, VLQ ticks, VLQ bytes holding
	// the per-axis step counts.
	RecordStep uint32 = 2
	// RecordStop tells the emitter to halt all outputs.
	RecordStop uint32 = 3
)

// MaxAxes is the number of step counts a step record can carry
const MaxAxes = 8

// Record is one decoded record. Slices point into the frame and are only
// valid during the handler call.
type Record struct {
	ID      uint32
	Session []byte
	Dir     uint8
	Ticks   uint32
	Steps   []byte
}
