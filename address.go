package onewire

import (
	"encoding/hex"
	"fmt"
)

// RomAddress is the 64-bit identifier of a 1-Wire slave. Byte 0 is the
// family code, bytes 1..6 are a unique serial, and byte 7 is the CRC-8 of
// bytes 0..6. A valid address always satisfies CRC8(bytes[:], 0) == 0.
type RomAddress [8]byte

// Family returns the slave family code (byte 0 of the address).
func (a RomAddress) Family() byte {
	return a[0]
}

// Bytes returns the address as an 8-byte slice, byte 0 first.
func (a RomAddress) Bytes() []byte {
	b := make([]byte, 8)
	copy(b, a[:])
	return b
}

// String returns the canonical 16-hex-digit form of the address, byte 0
// first.
func (a RomAddress) String() string {
	return hex.EncodeToString(a[:])
}

// Uint64 packs the address into a 64-bit integer with byte 0 as the
// least-significant byte (the "long form" from the data model).
func (a RomAddress) Uint64() uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = (v << 8) | uint64(a[i])
	}
	return v
}

// Valid reports whether the address's trailing CRC-8 checks out.
func (a RomAddress) Valid() bool {
	return CRC8(a[:], 0) == 0
}

// Equal reports byte-wise equality.
func (a RomAddress) Equal(other RomAddress) bool {
	return a == other
}

// AddressFromBytes builds a RomAddress from an 8-byte buffer, byte 0 first,
// and validates its CRC-8.
func AddressFromBytes(b []byte) (RomAddress, error) {
	var a RomAddress
	if len(b) != 8 {
		return a, NewError("addressFromBytes", KindInvalidArgument,
			fmt.Errorf("expected 8 bytes, got %d", len(b)))
	}
	copy(a[:], b)
	if !a.Valid() {
		return a, NewError("addressFromBytes", KindCRC, fmt.Errorf("crc8 check failed for %s", a))
	}
	return a, nil
}

// AddressFromUint64 unpacks the long form (byte 0 is the least-significant
// byte) into a RomAddress and validates its CRC-8.
func AddressFromUint64(v uint64) (RomAddress, error) {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
	return AddressFromBytes(b)
}

// ParseAddress parses the canonical 16-hex-digit string form into a
// RomAddress and validates its CRC-8.
func ParseAddress(s string) (RomAddress, error) {
	var a RomAddress
	if len(s) != 16 {
		return a, NewError("parseAddress", KindInvalidArgument,
			fmt.Errorf("expected 16 hex digits, got %q", s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, NewError("parseAddress", KindInvalidArgument, err)
	}
	return AddressFromBytes(b)
}

// NewAddress builds a RomAddress from a family code and a 6-byte serial,
// computing and appending the CRC-8 trailer. This is how a simulator or
// test fixture manufactures a valid address without hand-computing its CRC.
func NewAddress(family byte, serial [6]byte) RomAddress {
	var a RomAddress
	a[0] = family
	copy(a[1:7], serial[:])
	a[7] = CRC8(a[:7], 0)
	return a
}
