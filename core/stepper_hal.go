package core

// MaxSteppers is the maximum number of stepper axes driven by one motion core
const MaxSteppers = 8

// StepSink consumes the per-tick output of the motion core and turns it into
// step pulses. Implementations can use GPIO, PIO, a serial link to an
// external pulse emitter, or a recorder in tests.
type StepSink interface {
	// Emit is called once per stepped sub-movement from the tick handler.
	// dir: bit i set means axis i moves in the negative direction
	// steps: elementary step count per axis, magnitude only
	// ticks: duration of the sub-movement in timer ticks; pulses for the
	// axis should be spread over this window
	// Must be fast and must not block or allocate.
	Emit(dir uint8, steps *[MaxSteppers]uint8, ticks uint32)

	// Stop immediately halts any pending pulse output
	Stop()

	// GetName returns backend implementation name
	GetName() string
}

// StepSinkInfo provides information about available sinks
type StepSinkInfo struct {
	Name          string
	MaxStepRate   uint32 // Maximum steps/second per axis
	MinPulseNs    uint32 // Minimum step pulse width (ns)
	TypicalJitter uint32 // Typical timing jitter (ns)
}

// NullSink discards all output. Used when no pulse emitter is attached.
type NullSink struct{}

func (NullSink) Emit(dir uint8, steps *[MaxSteppers]uint8, ticks uint32) {}
func (NullSink) Stop()                                        {}
func (NullSink) GetName() string                              { return "null" }
