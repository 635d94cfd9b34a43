package onewire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddressRoundTrip(t *testing.T) {
	assert := assert.New(t)

	a := NewAddress(0x10, [6]byte{0x08, 0x03, 0x36, 0x07, 0x45, 0x00})
	assert.True(a.Valid())
	assert.Equal(byte(0x10), a.Family())

	s := a.String()
	b, err := ParseAddress(s)
	if assert.NoError(err) {
		assert.Equal(a, b)
	}

	v := a.Uint64()
	c, err := AddressFromUint64(v)
	if assert.NoError(err) {
		assert.Equal(a, c)
	}

	d, err := AddressFromBytes(a.Bytes())
	if assert.NoError(err) {
		assert.Equal(a, d)
	}
}

func TestAddressInvalid(t *testing.T) {
	assert := assert.New(t)

	bad := []byte{0x10, 0x08, 0x03, 0x36, 0x07, 0x45, 0x00, 0x09}
	_, err := AddressFromBytes(bad)
	assert.Error(err)

	_, err = ParseAddress("not-16-hex-chars")
	assert.Error(err)

	_, err = ParseAddress("zz03360745001009")
	assert.Error(err)
}

func TestAddressEquality(t *testing.T) {
	a := NewAddress(0x28, [6]byte{1, 2, 3, 4, 5, 6})
	b := NewAddress(0x28, [6]byte{1, 2, 3, 4, 5, 6})
	c := NewAddress(0x28, [6]byte{1, 2, 3, 4, 5, 7})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}
