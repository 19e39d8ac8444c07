package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collected struct {
	session []byte
	steps   [][]byte
	dirs    []uint8
	ticks   []uint32
	stops   int
}

func (c *collected) handle(r *Record) error {
	switch r.ID {
	case RecordSession:
		c.session = append([]byte(nil), r.Session...)
	case RecordStep:
		c.steps = append(c.steps, append([]byte(nil), r.Steps...))
		c.dirs = append(c.dirs, r.Dir)
		c.ticks = append(c.ticks, r.Ticks)
	case RecordStop:
		c.stops++
	}
	return nil
}

func encodeRun(t *testing.T, n int) []byte {
	t.Helper()
	e := NewFrameEncoder()
	var out []byte
	require.NoError(t, e.Session([]byte("0123456789abcdef")))
	for i := 0; i < n; i++ {
		require.NoError(t, e.Step(uint8(i), []uint8{uint8(i), 11, 0, 9}, uint32(1000*i+7)))
		out = append(out, e.Take()...)
	}
	require.NoError(t, e.Stop())
	return append(out, e.Take()...)
}

func TestFrameRoundTrip(t *testing.T) {
	stream := encodeRun(t, 40)

	var c collected
	d := NewFrameDecoder(c.handle)
	require.NoError(t, d.Receive(NewSliceInputBuffer(stream)))

	assert.Equal(t, []byte("0123456789abcdef"), c.session)
	require.Len(t, c.steps, 40)
	for i := range c.steps {
		assert.Equal(t, []byte{uint8(i), 11, 0, 9}, c.steps[i])
		assert.Equal(t, uint8(i), c.dirs[i])
		assert.Equal(t, uint32(1000*i+7), c.ticks[i])
	}
	assert.Equal(t, 1, c.stops)

	stats := d.Stats()
	assert.Greater(t, stats.Frames, uint32(2))
	assert.Equal(t, uint32(42), stats.Records)
	assert.Zero(t, stats.BadFrames)
	assert.Zero(t, stats.Lost)
}

func TestFramesRespectLengthLimit(t *testing.T) {
	stream := encodeRun(t, 100)
	for len(stream) > 0 {
		length := int(stream[0])
		require.GreaterOrEqual(t, length, MessageLengthMin)
		require.LessOrEqual(t, length, MessageLengthMax)
		assert.Equal(t, byte(MessageValueSync), stream[length-1])
		stream = stream[length:]
	}
}

func TestDecoderByteAtATime(t *testing.T) {
	stream := encodeRun(t, 25)

	var c collected
	d := NewFrameDecoder(c.handle)
	fifo := NewFifoBuffer(128)
	for _, b := range stream {
		require.Equal(t, 1, fifo.Write([]byte{b}))
		require.NoError(t, d.Receive(fifo))
	}
	assert.Len(t, c.steps, 25)
	assert.Equal(t, 1, c.stops)
	assert.Zero(t, fifo.Available())
}

func TestDecoderResynchronises(t *testing.T) {
	stream := encodeRun(t, 30)
	first := int(stream[0]) // the session frame
	second := first + int(stream[first])

	// corrupt the first step frame's payload
	stream[first+3] ^= 0x55

	var c collected
	d := NewFrameDecoder(c.handle)
	require.NoError(t, d.Receive(NewSliceInputBuffer(append([]byte{0x00, 0x42, MessageValueSync}, stream...))))

	stats := d.Stats()
	assert.GreaterOrEqual(t, stats.BadFrames, uint32(1))
	assert.Equal(t, uint32(1), stats.Lost)
	assert.NotEmpty(t, c.session)
	assert.Less(t, len(c.steps), 30)
	assert.Equal(t, 1, c.stops)

	// everything after the damaged frame arrived
	var rest collected
	d2 := NewFrameDecoder(rest.handle)
	require.NoError(t, d2.Receive(NewSliceInputBuffer(stream[second:])))
	assert.Equal(t, rest.steps, c.steps)
}

func TestEncoderOverflow(t *testing.T) {
	e := NewFrameEncoder()
	var err error
	for i := 0; i < 200 && err == nil; i++ {
		err = e.Step(1, []uint8{11, 11, 11, 11}, 165000)
	}
	assert.ErrorIs(t, err, ErrFrameOverflow)
	assert.Equal(t, uint32(1), e.Dropped())
	assert.NotEmpty(t, e.Take())
	assert.Empty(t, e.Take())
}
