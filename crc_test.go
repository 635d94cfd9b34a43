package onewire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC8DallasTestVector(t *testing.T) {
	data := []byte{0x02, 0x1C, 0xB8, 0x01, 0x00, 0x00, 0x00}
	trailer := CRC8(data, 0)

	full := append(append([]byte{}, data...), trailer)
	assert.Equal(t, byte(0), CRC8(full, 0))
}

func TestCRC8BitwiseMatchesBytewise(t *testing.T) {
	data := []byte{0x10, 0x08, 0x03, 0x36, 0x07, 0x45}

	byteCRC := CRC8(data, 0)

	var bitCRC byte
	for _, b := range data {
		for i := 0; i < 8; i++ {
			bitCRC = CRC8Bit(bitCRC, (b>>i)&0x01)
		}
	}

	assert.Equal(t, byteCRC, bitCRC)
}

func TestCRC16ZeroBlock(t *testing.T) {
	data := make([]byte, 8)
	got := CRC16(data, 0)
	assert.Equal(t, uint16(0), got)
}

func TestCRC16BitwiseMatchesBytewise(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05}

	byteCRC := CRC16(data, 0)

	var bitCRC uint16
	for _, b := range data {
		for i := 0; i < 8; i++ {
			bitCRC = CRC16Bit(bitCRC, (b>>i)&0x01)
		}
	}

	assert.Equal(t, byteCRC, bitCRC)
}
