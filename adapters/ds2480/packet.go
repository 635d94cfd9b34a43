package ds2480

// streamingBaudTable picks a baud rate to escalate to before a data-mode
// transfer of a given size, so a multi-byte Block() or a 16-byte search
// frame doesn't pay 9600-baud latency on every bit. Below the first tier
// the mode-switch and re-settle overhead of a baud change isn't worth it.
var streamingBaudTable = []struct {
	minBytes int
	baud     int
}{
	{8, 19200},
	{32, 57600},
	{128, 115200},
}

// streamingBaudFor returns the baud rate a transfer of n bytes should run
// at. configured, when non-zero, is the operator's defaultBaud override
// (spec config knob) and always wins.
func streamingBaudFor(n int, configured int) int {
	if configured != 0 {
		return configured
	}
	baud := 9600
	for _, tier := range streamingBaudTable {
		if n >= tier.minBytes {
			baud = tier.baud
		}
	}
	return baud
}

// maxStreamingBaud returns the ceiling baud rate streamingBaudTable can
// reach, or configured when the operator has pinned one. Every search
// pass requests this baud regardless of the 16-byte triplet frame's own
// size tier: a search runs hundreds of these frames back to back, so it
// always pays for the fastest link the operator allows.
func maxStreamingBaud(configured int) int {
	if configured != 0 {
		return configured
	}
	return streamingBaudTable[len(streamingBaudTable)-1].baud
}

// packTriplet encodes the search accelerator frame the DS2480B expects: for
// each of the 64 ROM bits i, bit i*2+1 of the frame is the discrepancy
// direction and bit i*2 is a don't-care placeholder. Directions below
// conflictAt are taken from known, the direction at conflictAt itself is
// forced to 1, and every direction past it is 0. The frame is 16 bytes
// (128 bits).
func packTriplet(known uint64, conflictAt int) []byte {
	data := make([]byte, 16)
	for i := 0; i < conflictAt && i < 64; i++ {
		idx := uint(i*2 + 1)
		byteOff := idx / 8
		bitOff := idx % 8
		data[byteOff] |= byte((known>>uint(i))&1) << bitOff
	}
	if conflictAt >= 0 && conflictAt < 64 {
		idx := uint(conflictAt*2 + 1)
		byteOff := idx / 8
		bitOff := idx % 8
		data[byteOff] |= 1 << bitOff
	}
	return data
}

func setBit(data []byte, idx uint)      { data[idx/8] |= 1 << (idx % 8) }
func clearBit(data []byte, idx uint)    { data[idx/8] &^= 1 << (idx % 8) }
func getBit(data []byte, idx uint) byte { return (data[idx/8] >> (idx % 8)) & 1 }

// packStrongAccess encodes the 24-byte (192-bit) directed strong-access
// frame the chip uses at overdrive speed for a one-shot presence/alarm
// check in place of the triplet search: every ROM bit position gets a
// 3-bit slot, all idle-high (0xFF) except the third bit of each slot, which
// carries addr's own bit at that position — so the only device that can
// answer every slot is the one being addressed.
func packStrongAccess(addr uint64) []byte {
	data := make([]byte, 24)
	for i := range data {
		data[i] = 0xFF
	}
	for i := 0; i < 64; i++ {
		pos := uint(i*3 + 2)
		if (addr>>uint(i))&1 == 0 {
			clearBit(data, pos)
		}
	}
	return data
}

// unpackStrongAccess checks a 24-byte strong-access reply against addr: the
// last 8 ROM-bit slots (56-63, the CRC byte) must each echo back the
// id/complement pair a device actually holding that bit would produce.
// Any slot reporting both id and complement set means no device answered
// at all. At least 8 of 8 matching slots is required to call it present.
func unpackStrongAccess(reply []byte, addr uint64) bool {
	goodBits := 0
	for i := 56; i < 64; i++ {
		pos := uint(i * 3)
		idBit := getBit(reply, pos)
		compBit := getBit(reply, pos+1)
		tst := idBit<<1 | compBit
		s := byte((addr >> uint(i)) & 1)
		switch {
		case tst == 0x03:
			return false
		case s == 1 && tst == 0x02:
			goodBits++
		case s == 0 && tst == 0x01:
			goodBits++
		}
	}
	return goodBits >= 8
}

// unpackTriplet decodes a 16-byte search accelerator reply into the 64-bit
// ROM value the chip settled on and the bit position of the highest
// discrepancy that was resolved toward 0 (64 if there is none, i.e. the
// search is exhausted / unambiguous).
func unpackTriplet(reply []byte) (rom uint64, discrepancy int) {
	discrepancy = 64
	lastZero := -1
	for i := uint(0); i < 64; i++ {
		idx := i * 2
		byteOff := idx / 8
		bitOff := idx % 8

		romBit := (reply[byteOff] >> (bitOff + 1)) & 1
		conflictBit := (reply[byteOff] >> bitOff) & 1

		rom |= uint64(romBit) << i

		if conflictBit != 0 && romBit == 0 {
			lastZero = int(i)
		}
	}
	if lastZero >= 0 {
		discrepancy = lastZero
	}
	return rom, discrepancy
}
