package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSliceInputBuffer(t *testing.T) {
	buf := NewSliceInputBuffer([]byte{1, 2, 3, 4, 5})
	assert.Equal(t, 5, buf.Available())

	buf.Pop(2)
	assert.Equal(t, 3, buf.Available())
	assert.Equal(t, []byte{3, 4, 5}, buf.Data())

	buf.Pop(10)
	assert.Zero(t, buf.Available())
}

func TestScratchOutput(t *testing.T) {
	scratch := NewScratchOutput()
	scratch.Output([]byte{1, 2, 3})
	scratch.Output([]byte{4, 5})
	assert.Equal(t, 5, scratch.CurPosition())
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, scratch.Result())
	assert.Equal(t, []byte{3, 4, 5}, scratch.DataSince(2))
	assert.Nil(t, scratch.DataSince(6))
	assert.Equal(t, MessageMax-5, scratch.Room())

	scratch.Reset()
	assert.Zero(t, scratch.CurPosition())
	assert.Equal(t, MessageMax, scratch.Room())
}

func TestScratchOutputTruncates(t *testing.T) {
	scratch := NewScratchOutput()
	scratch.Output(make([]byte, MessageMax-2))
	require.False(t, scratch.Truncated())

	scratch.Output([]byte{7, 8, 9})
	assert.True(t, scratch.Truncated())
	assert.Zero(t, scratch.Room())
	assert.Equal(t, []byte{7, 8}, scratch.DataSince(MessageMax-2))

	scratch.Reset()
	assert.False(t, scratch.Truncated())
}

func TestFifoBuffer(t *testing.T) {
	fifo := NewFifoBuffer(10)
	assert.Zero(t, fifo.Available())

	assert.Equal(t, 5, fifo.Write([]byte{1, 2, 3, 4, 5}))
	assert.Equal(t, 5, fifo.Available())

	readBuf := make([]byte, 3)
	assert.Equal(t, 3, fifo.Read(readBuf))
	assert.Equal(t, []byte{1, 2, 3}, readBuf)

	fifo.Pop(1)
	assert.Equal(t, 1, fifo.Available())

	// one slot stays free
	fifo.Reset()
	assert.Equal(t, 9, fifo.Write(make([]byte, 12)))
	assert.Zero(t, fifo.Free())
}

func TestFifoBufferWrapAround(t *testing.T) {
	fifo := NewFifoBuffer(5)
	fifo.Write([]byte{1, 2, 3, 4})
	fifo.Read(make([]byte, 2))

	assert.Equal(t, 2, fifo.Write([]byte{5, 6}))
	assert.Equal(t, []byte{3, 4, 5, 6}, fifo.Data())

	all := make([]byte, 4)
	assert.Equal(t, 4, fifo.Read(all))
	assert.Equal(t, []byte{3, 4, 5, 6}, all)
	assert.Zero(t, fifo.Available())
}

func TestFifoBufferDataDoesNotAllocate(t *testing.T) {
	fifo := NewFifoBuffer(8)
	fifo.Write([]byte{1, 2, 3, 4, 5, 6})
	fifo.Pop(5)
	fifo.Write([]byte{7, 8, 9, 10})

	allocs := testing.AllocsPerRun(10, func() {
		_ = fifo.Data()
	})
	assert.Zero(t, allocs)
	assert.Equal(t, []byte{6, 7, 8, 9, 10}, fifo.Data())

	// the ring keeps working after being rotated
	assert.Equal(t, 2, fifo.Write([]byte{11, 12}))
	fifo.Pop(3)
	assert.Equal(t, []byte{9, 10, 11, 12}, fifo.Data())
}
