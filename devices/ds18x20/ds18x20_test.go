package ds18x20

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onewirenet/ds2480"
)

// fakeAdapter is a minimal onewire.Adapter stand-in that answers Block()
// calls from a scripted scratchpad, so device logic can be tested without
// a real DS2480B on the wire.
type fakeAdapter struct {
	scratchpad []byte
	resets     int
	selected   onewire.RomAddress
}

func (f *fakeAdapter) SearchFirst(ctx context.Context) (bool, error) { return false, nil }
func (f *fakeAdapter) SearchNext(ctx context.Context) (bool, error)  { return false, nil }
func (f *fakeAdapter) Address() onewire.RomAddress                   { return onewire.RomAddress{} }
func (f *fakeAdapter) TargetFamily(family byte)                      {}
func (f *fakeAdapter) TargetFamilies(families []byte)                {}
func (f *fakeAdapter) ExcludeFamily(family byte)                     {}
func (f *fakeAdapter) ExcludeFamilies(families []byte)               {}
func (f *fakeAdapter) TargetAllFamilies()                            {}
func (f *fakeAdapter) SetSearchOnlyAlarming(only bool)                {}
func (f *fakeAdapter) SetNoResetSearch(skip bool)                     {}
func (f *fakeAdapter) SetSearchAllDevices()                           {}
func (f *fakeAdapter) IsPresent(ctx context.Context, addr onewire.RomAddress) (bool, error) {
	return true, nil
}
func (f *fakeAdapter) IsAlarming(ctx context.Context, addr onewire.RomAddress) (bool, error) {
	return false, nil
}
func (f *fakeAdapter) Select(ctx context.Context, addr onewire.RomAddress) error {
	f.selected = addr
	return nil
}
func (f *fakeAdapter) AssertSelect(ctx context.Context, addr onewire.RomAddress) error {
	f.selected = addr
	return nil
}
func (f *fakeAdapter) Reset(ctx context.Context) (onewire.ResetResult, error) {
	f.resets++
	return onewire.ResetPresence, nil
}
func (f *fakeAdapter) PutBit(ctx context.Context, bit bool) error { return nil }
func (f *fakeAdapter) GetBit(ctx context.Context) (bool, error)   { return false, nil }
func (f *fakeAdapter) PutByte(ctx context.Context, b byte) error  { return nil }
func (f *fakeAdapter) GetByte(ctx context.Context) (byte, error)  { return 0, nil }
func (f *fakeAdapter) Block(ctx context.Context, buf []byte) error {
	switch buf[0] {
	case cmdReadScratchpad:
		copy(buf[1:], f.scratchpad)
	}
	return nil
}
func (f *fakeAdapter) SetSpeed(speed onewire.Speed) error { return nil }
func (f *fakeAdapter) Speed() onewire.Speed               { return onewire.SpeedRegular }
func (f *fakeAdapter) SetPowerDuration(d onewire.PowerArming) error { return nil }
func (f *fakeAdapter) StartPowerDelivery(ctx context.Context, arming onewire.PowerArming) (bool, error) {
	return true, nil
}
func (f *fakeAdapter) SetProgramPulseDuration(d onewire.PowerArming) error { return nil }
func (f *fakeAdapter) StartProgramPulse(ctx context.Context, arming onewire.PowerArming) (bool, error) {
	return true, nil
}
func (f *fakeAdapter) StartBreak(ctx context.Context) error     { return nil }
func (f *fakeAdapter) SetPowerNormal(ctx context.Context) error { return nil }
func (f *fakeAdapter) BeginExclusive(ctx context.Context) (context.Context, error) {
	return ctx, nil
}
func (f *fakeAdapter) EndExclusive(ctx context.Context) {}
func (f *fakeAdapter) CanOverdrive() bool                { return false }
func (f *fakeAdapter) CanFlex() bool                      { return false }
func (f *fakeAdapter) CanProgram() bool                   { return false }
func (f *fakeAdapter) CanDeliverPower() bool              { return false }
func (f *fakeAdapter) CanDeliverSmartPower() bool         { return false }
func (f *fakeAdapter) CanBreak() bool                     { return false }
func (f *fakeAdapter) CanHyperdrive() bool                { return false }
func (f *fakeAdapter) AdapterName() string                { return "fake" }
func (f *fakeAdapter) PortName() string                    { return "fake" }
func (f *fakeAdapter) Version() (string, error)            { return "", nil }
func (f *fakeAdapter) AdapterAddress(ctx context.Context) string { return "<not available>" }

func scratchpadFor(tempRaw int16, family byte) []byte {
	buf := make([]byte, 9)
	buf[0] = byte(tempRaw)
	buf[1] = byte(tempRaw >> 8)
	buf[4] = 0x7F // 12-bit resolution config byte on a DS18B20
	buf[8] = onewire.CRC8(buf[:8], 0)
	return buf
}

func TestLastTempDS18B20(t *testing.T) {
	addr := onewire.NewAddress(FamilyDS18B20, [6]byte{1, 2, 3, 4, 5, 6})
	fa := &fakeAdapter{scratchpad: scratchpadFor(0x0191, FamilyDS18B20)} // 25.0625C

	dev, err := New(fa, addr)
	require.NoError(t, err)

	temp, err := dev.LastTemp(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 25.0625, temp, 0.001)
	assert.Equal(t, addr, fa.selected)
}

func TestLastTempBadCRC(t *testing.T) {
	addr := onewire.NewAddress(FamilyDS18B20, [6]byte{1, 2, 3, 4, 5, 6})
	sp := scratchpadFor(0x0191, FamilyDS18B20)
	sp[8] ^= 0xFF // corrupt the CRC
	fa := &fakeAdapter{scratchpad: sp}

	dev, err := New(fa, addr)
	require.NoError(t, err)

	_, err = dev.LastTemp(context.Background())
	assert.Error(t, err)
}

func TestNewRejectsUnknownFamily(t *testing.T) {
	addr := onewire.NewAddress(0x01, [6]byte{1, 2, 3, 4, 5, 6})
	_, err := New(&fakeAdapter{}, addr)
	assert.Error(t, err)
}

func TestConvertAllResetsBusOnce(t *testing.T) {
	fa := &fakeAdapter{}
	err := ConvertAll(context.Background(), fa)
	require.NoError(t, err)
	assert.Equal(t, 1, fa.resets)
}
