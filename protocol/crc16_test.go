package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC16Empty(t *testing.T) {
	assert.Equal(t, uint16(0xFFFF), CRC16(nil))
}

func TestCRC16Consistency(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	assert.Equal(t, CRC16(data), CRC16(data))
}

func TestCRC16DetectsSingleBitFlips(t *testing.T) {
	data := []byte{5, MessageDest, 0x02, 0x0B, 0x42}
	want := CRC16(data)
	for i := range data {
		for bit := 0; bit < 8; bit++ {
			data[i] ^= 1 << uint(bit)
			assert.NotEqual(t, want, CRC16(data), "byte %d bit %d", i, bit)
			data[i] ^= 1 << uint(bit)
		}
	}
}
