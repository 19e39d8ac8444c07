package stepsink

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gostep/core"
	"gostep/host/serial"
)

func TestSerialSinkToEmitter(t *testing.T) {
	port := serial.NewLoopback()
	session := uuid.New()
	sink, err := NewSerialSink(port, 3, session)
	require.NoError(t, err)
	var _ core.StepSink = sink

	var want [core.MaxSteppers]int64
	var ticks uint64
	for i := 0; i < 100; i++ {
		steps := [core.MaxSteppers]uint8{11, uint8(i % 13), 3, 99}
		dir := uint8(0)
		if i%3 == 0 {
			dir = 0x02
		}
		sink.Emit(dir, &steps, uint32(16000+i))
		want[0] += 11
		if dir&0x02 != 0 {
			want[1] -= int64(i % 13)
		} else {
			want[1] += int64(i % 13)
		}
		want[2] += 3
		ticks += uint64(16000 + i)
	}
	sink.Stop()
	require.NoError(t, sink.Err())

	em := NewEmitter()
	require.NoError(t, em.Drain(port))

	assert.Equal(t, session, em.Session)
	assert.Equal(t, want, em.Position)
	assert.Zero(t, em.Position[3], "axes beyond the sink's count are not sent")
	assert.Equal(t, ticks, em.Ticks)
	assert.Equal(t, uint32(100), em.Records)
	assert.Equal(t, uint32(1), em.Stops)
	assert.Zero(t, em.Stats().BadFrames)

	stats := sink.Stats()
	assert.Equal(t, uint32(100), stats.Ticks)
	assert.Equal(t, uint64(port.Written()), stats.Bytes)
}

func TestSerialSinkFlush(t *testing.T) {
	var buf bytes.Buffer
	sink, err := NewSerialSink(&buf, 2, uuid.New())
	require.NoError(t, err)
	before := buf.Len()

	steps := [core.MaxSteppers]uint8{1, 1}
	sink.Emit(0, &steps, 100)
	assert.Equal(t, before, buf.Len(), "a single tick stays in the open frame")
	require.NoError(t, sink.Flush())
	assert.Greater(t, buf.Len(), before)
}

type failingWriter struct{ after int }

func (w *failingWriter) Write(b []byte) (int, error) {
	if w.after <= 0 {
		return 0, errors.New("unplugged")
	}
	w.after--
	return len(b), nil
}

func TestSerialSinkKeepsFirstError(t *testing.T) {
	sink, err := NewSerialSink(&failingWriter{after: 1}, 4, uuid.New())
	require.NoError(t, err)

	steps := [core.MaxSteppers]uint8{11, 11, 11, 11}
	for i := 0; i < 50; i++ {
		sink.Emit(0, &steps, 12000)
	}
	sink.Stop()
	assert.ErrorContains(t, sink.Err(), "unplugged")
	assert.Equal(t, uint32(1), sink.Stats().Errors)
	assert.Zero(t, sink.Stats().Stops)
}

func TestNewSerialSinkValidates(t *testing.T) {
	_, err := NewSerialSink(&bytes.Buffer{}, 0, uuid.New())
	assert.Error(t, err)
	_, err = NewSerialSink(&failingWriter{}, 2, uuid.New())
	assert.ErrorContains(t, err, "unplugged")
}
