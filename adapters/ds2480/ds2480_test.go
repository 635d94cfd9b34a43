package ds2480

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackTriplet(t *testing.T) {
	type vector struct {
		tree uint64
		last int
		data []byte
	}

	tests := []vector{
		{tree: 0x01, last: 0, data: []byte{0x02}},
		{tree: 0x01, last: 1, data: []byte{0x0A}},
		{tree: 0x01, last: 64, data: []byte{0x02}},
		{tree: 0x01, last: 63, data: []byte{0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x80}},
	}

	assert := assert.New(t)

	for _, test := range tests {
		expect := make([]byte, 16)
		copy(expect, test.data)

		got := packTriplet(test.tree, test.last)
		assert.Equal(expect, got)
	}
}

// TestUnpackTripletSyntheticReply decodes a hand-built reply buffer rather
// than round-tripping packTriplet's own output, so a bug shared between
// pack and unpack can't cancel itself out and hide.
func TestUnpackTripletSyntheticReply(t *testing.T) {
	// Bit 5 is the only discrepancy: the chip saw both a 0 and a 1 there
	// and resolved toward 0 (romBit=0, conflictBit=1). Every other bit is
	// unanimous agreement on 0 (romBit=0, conflictBit=0).
	reply := make([]byte, 16)
	idx := uint(5 * 2)
	reply[idx/8] |= 1 << (idx % 8)

	rom, discrepancy := unpackTriplet(reply)
	assert.Equal(t, uint64(0), rom)
	assert.Equal(t, 5, discrepancy)
}

// TestUnpackTripletSyntheticReplyNoDiscrepancy decodes a reply where every
// bit position has unanimous agreement, several of them on a 1, and
// confirms no discrepancy is reported.
func TestUnpackTripletSyntheticReplyNoDiscrepancy(t *testing.T) {
	reply := make([]byte, 16)
	for _, bit := range []uint{0, 3, 7, 40} {
		idx := bit*2 + 1
		reply[idx/8] |= 1 << (idx % 8)
	}

	rom, discrepancy := unpackTriplet(reply)
	assert.Equal(t, uint64(1<<0|1<<3|1<<7|1<<40), rom)
	assert.Equal(t, 64, discrepancy)
}

func TestStreamingBaudForEscalatesBySize(t *testing.T) {
	assert.Equal(t, 9600, streamingBaudFor(1, 0))
	assert.Equal(t, 19200, streamingBaudFor(8, 0))
	assert.Equal(t, 57600, streamingBaudFor(32, 0))
	assert.Equal(t, 115200, streamingBaudFor(200, 0))
	assert.Equal(t, 38400, streamingBaudFor(200, 38400), "configured baud always wins")
}
