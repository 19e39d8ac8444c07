package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TimingEvent captures a timing-critical event for post-mortem analysis
type TimingEvent struct {
	EventType uint8  // Event type code
	OID       uint8  // Movement slot or axis, event dependent
	Clock     uint32 // System clock at event
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtTick           = 1 // Sub-movement stepped: v1=duration ticks, v2=signature
	EvtSwitch         = 2 // Movement switched in: v1=movement id
	EvtForcedDecel    = 3 // Regulator forced a deceleration: v1=end distance, v2=jerk distance
	EvtRescale        = 4 // Pipeline rescaled the increment: v1=observed distance
	EvtStop           = 5 // Stepping routine went idle
	EvtEmergencyStop  = 6 // Emergency stop: v1=cause code
	EvtTimerPast      = 7 // Tick scheduled in the past
	EvtBoundarySealed = 8 // Movement tail produced before its successor arrived
)

const (
	TimingRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {}

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false

	// Timing capture ring buffer (non-blocking, for post-mortem)
	timingRing     [TimingRingSize]TimingEvent
	timingRingHead uint8
	timingEnabled  bool = true

	// Async debug output channel
	debugChan chan string
)

// SetDebugWriter sets the platform-specific debug output function
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// InitAsyncDebug starts the async debug output goroutine
func InitAsyncDebug() {
	debugChan = make(chan string, 16)
	go debugOutputWorker()
}

func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues a debug message for async output (non-blocking).
// Drops the message when the channel is full.
func DebugAsync(msg string) {
	if debugChan != nil {
		select {
		case debugChan <- msg:
		default:
		}
	}
}

// RecordTiming captures a timing event in the ring buffer.
// Safe to call from the tick handler: no allocation, no locking.
func RecordTiming(eventType, oid uint8, clock, value1, value2 uint32) {
	if !timingEnabled {
		return
	}
	idx := timingRingHead
	timingRing[idx] = TimingEvent{
		EventType: eventType,
		OID:       oid,
		Clock:     clock,
		Value1:    value1,
		Value2:    value2,
	}
	timingRingHead = (idx + 1) % TimingRingSize
}

// TimingEvents copies the ring, oldest first, into dst and returns the
// number of non-empty events written.
func TimingEvents(dst []TimingEvent) int {
	n := 0
	start := timingRingHead
	for i := uint8(0); i < TimingRingSize && n < len(dst); i++ {
		evt := timingRing[(start+i)%TimingRingSize]
		if evt.EventType == 0 {
			continue
		}
		dst[n] = evt
		n++
	}
	return n
}

// EventName returns the printable name of a timing event code
func EventName(eventType uint8) string {
	switch eventType {
	case EvtTick:
		return "TICK"
	case EvtSwitch:
		return "SWITCH"
	case EvtForcedDecel:
		return "FORCED_DECEL"
	case EvtRescale:
		return "RESCALE"
	case EvtStop:
		return "STOP"
	case EvtEmergencyStop:
		return "EMERGENCY_STOP!"
	case EvtTimerPast:
		return "TIMER_PAST!"
	case EvtBoundarySealed:
		return "SEALED"
	default:
		return "UNKNOWN"
	}
}

// DumpTimingRing outputs the timing ring buffer (call on shutdown/error)
func DumpTimingRing() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[TIMING] === Timing Ring Dump ===")

	start := timingRingHead
	for i := uint8(0); i < TimingRingSize; i++ {
		evt := &timingRing[(start+i)%TimingRingSize]
		if evt.EventType == 0 {
			continue
		}

		debugPrintln("[TIMING] " + EventName(evt.EventType) +
			" oid=" + itoa(int(evt.OID)) +
			" clock=" + utoa(evt.Clock) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	debugPrintln("[TIMING] === End Dump ===")
}

// ClearTimingRing clears the timing buffer
func ClearTimingRing() {
	for i := range timingRing {
		timingRing[i] = TimingEvent{}
	}
	timingRingHead = 0
}
