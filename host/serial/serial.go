package serial

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

// Port represents a serial port interface. The native implementation wraps
// github.com/tarm/serial; Loopback keeps the stream in memory for the
// simulator and tests.
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate; USB CDC emitters ignore it
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultConfig returns the configuration of a step emitter on device
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        921600,
		ReadTimeout: 100,
	}
}

// ErrClosed is returned by a closed Loopback
var ErrClosed = errors.New("serial: port closed")

// Loopback is an in-memory Port: bytes written are read back in order.
// Read returns io.EOF when no data is pending.
type Loopback struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	written int64
	closed  bool
}

// NewLoopback creates an empty loopback port
func NewLoopback() *Loopback {
	return &Loopback{}
}

func (l *Loopback) Read(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrClosed
	}
	return l.buf.Read(b)
}

func (l *Loopback) Write(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrClosed
	}
	l.written += int64(len(b))
	return l.buf.Write(b)
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *Loopback) Flush() error {
	return nil
}

// Written returns the total number of bytes written
func (l *Loopback) Written() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written
}
