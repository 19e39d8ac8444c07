package protocol

// InputBuffer is the byte source a FrameDecoder consumes
type InputBuffer interface {
	// Data returns the unread bytes as one contiguous slice
	Data() []byte

	// Available returns the number of unread bytes
	Available() int

	// Pop drops n bytes from the front
	Pop(n int)
}

// OutputBuffer is the byte sink the VLQ encoders write to
type OutputBuffer interface {
	Output(data []byte)
	CurPosition() int
	DataSince(pos int) []byte
}

// SliceInputBuffer reads from a caller-owned slice
type SliceInputBuffer struct {
	data []byte
}

// NewSliceInputBuffer wraps data
func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

func (s *SliceInputBuffer) Data() []byte {
	return s.data
}

func (s *SliceInputBuffer) Available() int {
	return len(s.data)
}

func (s *SliceInputBuffer) Pop(n int) {
	s.data = s.data[min(n, len(s.data)):]
}

// ScratchOutput is an OutputBuffer over a fixed MessageMax byte array.
// It never grows: writes past the end are truncated and flagged, so the
// frame encoder can run inside the tick handler.
type ScratchOutput struct {
	buf       [MessageMax]byte
	n         int
	truncated bool
}

// NewScratchOutput returns an empty scratch buffer
func NewScratchOutput() *ScratchOutput {
	return new(ScratchOutput)
}

func (s *ScratchOutput) Output(data []byte) {
	n := copy(s.buf[s.n:], data)
	s.n += n
	if n < len(data) {
		s.truncated = true
	}
}

func (s *ScratchOutput) CurPosition() int {
	return s.n
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos < 0 || pos > s.n {
		return nil
	}
	return s.buf[pos:s.n]
}

// Room returns how many more bytes fit
func (s *ScratchOutput) Room() int {
	return len(s.buf) - s.n
}

// Truncated reports whether a write was cut short since the last Reset
func (s *ScratchOutput) Truncated() bool {
	return s.truncated
}

// Result returns everything written since the last Reset
func (s *ScratchOutput) Result() []byte {
	return s.buf[:s.n]
}

func (s *ScratchOutput) Reset() {
	s.n = 0
	s.truncated = false
}

// FifoBuffer is a byte ring sized once at construction. One slot is kept
// free to tell a full ring from an empty one.
type FifoBuffer struct {
	buf         []byte
	read, write int
}

// NewFifoBuffer creates a ring holding up to capacity-1 bytes
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write copies as much of data as fits and returns the count
func (f *FifoBuffer) Write(data []byte) int {
	n := min(len(data), f.Free())
	first := copy(f.buf[f.write:], data[:n])
	copy(f.buf, data[first:n])
	f.write = (f.write + n) % len(f.buf)
	return n
}

// Read moves up to len(data) bytes out of the ring
func (f *FifoBuffer) Read(data []byte) int {
	n := min(len(data), f.Available())
	first := copy(data[:n], f.buf[f.read:])
	copy(data[first:n], f.buf)
	f.read = (f.read + n) % len(f.buf)
	return n
}

func (f *FifoBuffer) Available() int {
	return (f.write - f.read + len(f.buf)) % len(f.buf)
}

// Free returns how many bytes Write would accept
func (f *FifoBuffer) Free() int {
	return len(f.buf) - 1 - f.Available()
}

// Data returns the unread bytes. A wrapped ring is rotated in place so
// the bytes start at offset zero; nothing is allocated.
func (f *FifoBuffer) Data() []byte {
	if f.read > f.write {
		n := f.Available()
		reverseBytes(f.buf[:f.read])
		reverseBytes(f.buf[f.read:])
		reverseBytes(f.buf)
		f.read, f.write = 0, n
	}
	return f.buf[f.read:f.write]
}

func (f *FifoBuffer) Pop(n int) {
	n = min(n, f.Available())
	f.read = (f.read + n) % len(f.buf)
}

func (f *FifoBuffer) Reset() {
	f.read, f.write = 0, 0
}

func reverseBytes(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
