package ds2480

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onewirenet/ds2480"
)

// fakeChip simulates enough of a DS2480B's behavior — command/data mode
// framing, the bare master-reset timing byte, the config/verify burst, and
// the search-accelerator and strong-access bus protocols — to exercise
// this package's wire-level code without real hardware.
type fakeChip struct {
	devices  []onewire.RomAddress
	alarming map[onewire.RomAddress]bool

	mode  chipMode
	speed byte

	searchAlarmOnly  bool
	suppressNextReply bool

	accelArmed bool
	accelBuf   []byte

	strongRemaining int
	strongBuf       []byte

	config      map[byte]byte
	currentBaud int

	// pulseCmds records every Pulse command byte observed, in order, so
	// tests can assert the stop/start-no-prime/stop teardown sequence (or
	// the immediate-arm sequence) was actually sent.
	pulseCmds []byte

	// writeBauds records the baud in effect for every Write call, so tests
	// can confirm a large Block() escalated the streaming baud.
	writeBauds []int
}

func newFakeChip(devices ...onewire.RomAddress) *fakeChip {
	return &fakeChip{
		devices:     devices,
		alarming:    map[onewire.RomAddress]bool{},
		config:      map[byte]byte{},
		currentBaud: 9600,
	}
}

func (c *fakeChip) present() []onewire.RomAddress {
	var out []onewire.RomAddress
	for _, d := range c.devices {
		if !c.searchAlarmOnly || c.alarming[d] {
			out = append(out, d)
		}
	}
	return out
}

func (c *fakeChip) resetResult() byte {
	if len(c.devices) == 0 {
		return 3 // no-presence
	}
	for _, d := range c.devices {
		if c.alarming[d] {
			return 2 // alarm
		}
	}
	return 1 // presence
}

// handleBreak is what a real chip does on the line-level BREAK condition:
// it resets straight into command mode and abandons whatever framing was
// in progress. The bare reset timing byte that always follows a BREAK gets
// no reply — the chip is still auto-detecting the baud rate it was sent
// at.
func (c *fakeChip) handleBreak() {
	c.mode = modeIsCommand
	c.accelArmed = false
	c.strongRemaining = 0
	c.suppressNextReply = true
}

func (c *fakeChip) handleWrite(p []byte, rx *bytes.Buffer) {
	c.writeBauds = append(c.writeBauds, c.currentBaud)
	for i := 0; i < len(p); {
		b := p[i]
		switch {
		case c.mode != modeIsData && b == modeData:
			c.mode = modeIsData
			i++
		case c.mode == modeIsData && b == modeCommand:
			if i+1 < len(p) && p[i+1] == modeCommand {
				c.handleDataByte(modeCommand, rx)
				i += 2
				continue
			}
			c.mode = modeIsCommand
			i++
		case c.mode == modeIsCommand:
			c.handleCommandByte(b, rx)
			i++
		default:
			c.handleDataByte(b, rx)
			i++
		}
	}
}

func (c *fakeChip) handleCommandByte(b byte, rx *bytes.Buffer) {
	suppress := c.suppressNextReply
	c.suppressNextReply = false

	var reply byte
	switch {
	case b&0xF3 == cmdReset:
		c.speed = (b >> 2) & 0x03
		c.accelArmed = false
		c.strongRemaining = 0
		reply = 0x0C | c.resetResult()
	case b == cmdSearchAccelOff:
		c.accelArmed = false
		return
	case b&0xF3 == cmdSearchAccelOn:
		c.accelArmed = true
		c.accelBuf = c.accelBuf[:0]
		c.strongRemaining = 0
		return
	case b&0xE3 == cmdBitIO:
		read := b&0x10 != 0
		spd := (b >> 2) & 0x03
		bitVal := byte(1)
		if !read {
			bitVal = (b >> 4) & 0x01
		}
		reply = 0x90 | (spd << 2) | bitVal
	case b == cmdPulseTerminate:
		reply = 0x00
	case b == pulseCmd(pulseTypeStrongPullup, false) || b == pulseCmd(pulseTypeStrongPullup, true) ||
		b == pulseCmd(pulseTypeProgram, false) || b == pulseCmd(pulseTypeProgram, true):
		c.pulseCmds = append(c.pulseCmds, b)
		reply = 0x00
	case b&0x81 == 0x01:
		c.handleConfig(b, rx, suppress)
		return
	default:
		reply = 0x00
	}
	if !suppress {
		rx.WriteByte(reply)
	}
}

func (c *fakeChip) handleConfig(b byte, rx *bytes.Buffer, suppress bool) {
	param := (b >> 4) & 0x07
	value := (b >> 1) & 0x07
	var reply byte
	if param == cfgREAD {
		if value == cfgBAUD {
			reply = baudParamCode[c.currentBaud] << 1
		}
	} else {
		c.config[param] = value
	}
	if !suppress {
		rx.WriteByte(reply)
	}
}

// handleDataByte implements plain echo for ordinary data-mode traffic
// (match-ROM, scratchpad reads/writes), and switches to the search
// accelerator's 16-byte triplet framing or the 24-byte strong-access
// framing when the preceding bytes armed one of them.
func (c *fakeChip) handleDataByte(b byte, rx *bytes.Buffer) {
	if c.accelArmed {
		c.accelBuf = append(c.accelBuf, b)
		if len(c.accelBuf) == 16 {
			rx.Write(c.runTripletSearch(c.accelBuf))
			c.accelBuf = c.accelBuf[:0]
		}
		return
	}
	if c.strongRemaining > 0 {
		c.strongBuf = append(c.strongBuf, b)
		c.strongRemaining--
		if c.strongRemaining == 0 {
			rx.Write(c.runStrongAccess(c.strongBuf))
		}
		return
	}

	rx.WriteByte(b)
	if b == romSearchCmd || b == romAlarmCmd {
		c.searchAlarmOnly = b == romAlarmCmd
		c.strongRemaining = 24
		c.strongBuf = c.strongBuf[:0]
	}
}

// runTripletSearch plays the Appnote-187 triplet search against the
// chip's current participant list: for each ROM bit, it reports whether
// any remaining participant holds a 0, a 1, or both (a genuine
// discrepancy, resolved toward whatever direction bit the frame sent for
// that position), filtering participants down to whichever branch won.
func (c *fakeChip) runTripletSearch(frame []byte) []byte {
	participants := c.present()
	reply := make([]byte, 16)

	for i := 0; i < 64; i++ {
		idx := uint(i*2 + 1)
		direction := getBit(frame, idx)

		var zeros, ones []onewire.RomAddress
		for _, d := range participants {
			if (d.Uint64()>>uint(i))&1 == 0 {
				zeros = append(zeros, d)
			} else {
				ones = append(ones, d)
			}
		}

		var romBit, conflictBit byte
		switch {
		case len(zeros) > 0 && len(ones) > 0:
			conflictBit = 1
			romBit = direction
			if direction == 0 {
				participants = zeros
			} else {
				participants = ones
			}
		case len(zeros) > 0:
			participants = zeros
		case len(ones) > 0:
			romBit = 1
			participants = ones
		default:
			romBit, conflictBit = 1, 1
		}

		ridx := uint(i * 2)
		if romBit != 0 {
			setBit(reply, ridx+1)
		}
		if conflictBit != 0 {
			setBit(reply, ridx)
		}
	}
	return reply
}

// runStrongAccess plays the unaccelerated, fully-directed search the
// strong-access command uses: every bit of the target address is sent up
// front (packStrongAccess's third bit of each 3-bit slot), and the reply's
// first two bits of each slot report which values are still present among
// participants matching every direction bit seen so far.
func (c *fakeChip) runStrongAccess(frame []byte) []byte {
	participants := c.present()
	reply := make([]byte, 24)

	for i := 0; i < 64; i++ {
		direction := getBit(frame, uint(i*3+2))

		hasZero, hasOne := false, false
		for _, d := range participants {
			if (d.Uint64()>>uint(i))&1 == 0 {
				hasZero = true
			} else {
				hasOne = true
			}
		}
		if hasOne {
			setBit(reply, uint(i*3))
		}
		if hasZero {
			setBit(reply, uint(i*3+1))
		}

		var filtered []onewire.RomAddress
		for _, d := range participants {
			if byte((d.Uint64()>>uint(i))&1) == direction {
				filtered = append(filtered, d)
			}
		}
		participants = filtered
	}
	return reply
}

// fakeHandle implements serialPort over a fakeChip. One is created per
// simulated baud change (Link.SetBaud closes and reopens the port), all
// sharing the same chip so device state survives a baud switch.
type fakeHandle struct {
	chip   *fakeChip
	baud   int
	rx     *bytes.Buffer
	closed bool
}

func newFakeOpenPort(chip *fakeChip) func(name string, baud int) (serialPort, error) {
	return func(name string, baud int) (serialPort, error) {
		chip.currentBaud = baud
		return &fakeHandle{chip: chip, baud: baud, rx: &bytes.Buffer{}}, nil
	}
}

func (h *fakeHandle) Write(p []byte) (int, error) {
	if h.closed {
		return 0, io.ErrClosedPipe
	}
	// SendBreak drops to 300 baud and writes a single zero byte to hold
	// the line low; that's the break emulation this transport uses since
	// tarm/serial exposes no real break primitive.
	if h.baud == 300 && len(p) == 1 && p[0] == 0x00 {
		h.chip.handleBreak()
		return len(p), nil
	}
	h.chip.handleWrite(p, h.rx)
	return len(p), nil
}

func (h *fakeHandle) Read(p []byte) (int, error) {
	if h.closed {
		return 0, io.ErrClosedPipe
	}
	if h.rx.Len() == 0 {
		return 0, io.EOF
	}
	return h.rx.Read(p)
}

func (h *fakeHandle) Close() error {
	h.closed = true
	return nil
}

func (h *fakeHandle) Flush() error {
	h.rx.Reset()
	return nil
}

func newTestAdapter(chip *fakeChip) *Adapter {
	cfg := Config{Port: "fake0"}
	st := newState()
	link := NewLink(cfg.Port, false)
	link.openPort = newFakeOpenPort(chip)
	return &Adapter{cfg: cfg, link: link, framer: newFramer(link, st), state: st}
}

func TestOpenRunsMasterResetAndVerify(t *testing.T) {
	chip := newFakeChip()
	a := newTestAdapter(chip)
	require.NoError(t, a.Open(context.Background()))
	defer a.Close()

	assert.Equal(t, 9600, a.link.Baud())

	result, err := a.Reset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, onewire.ResetNoPresence, result)
	assert.Equal(t, "DS2480B", a.state.version)
	assert.True(t, a.CanProgram())
}

func TestScenarioEmptyBusEnumeration(t *testing.T) {
	chip := newFakeChip()
	a := newTestAdapter(chip)
	require.NoError(t, a.Open(context.Background()))
	defer a.Close()

	found, err := a.SearchFirst(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestScenarioTwoDeviceSearchOrder(t *testing.T) {
	d1 := onewire.NewAddress(0x10, [6]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06})
	d2 := onewire.NewAddress(0x28, [6]byte{0x11, 0x12, 0x13, 0x14, 0x15, 0x16})
	chip := newFakeChip(d1, d2)
	a := newTestAdapter(chip)
	require.NoError(t, a.Open(context.Background()))
	defer a.Close()

	var found []onewire.RomAddress
	ok, err := a.SearchFirst(context.Background())
	require.NoError(t, err)
	for ok {
		found = append(found, a.Address())
		ok, err = a.SearchNext(context.Background())
		require.NoError(t, err)
	}

	lo, hi := d1, d2
	if lo.Uint64() > hi.Uint64() {
		lo, hi = hi, lo
	}
	require.Len(t, found, 2)
	assert.Equal(t, lo, found[0])
	assert.Equal(t, hi, found[1])

	// The search is exhausted; one more pass reports nothing.
	again, err := a.SearchNext(context.Background())
	require.NoError(t, err)
	assert.False(t, again)
}

func TestScenarioSelectAndBlock(t *testing.T) {
	d1 := onewire.NewAddress(0x10, [6]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06})
	chip := newFakeChip(d1)
	a := newTestAdapter(chip)
	require.NoError(t, a.Open(context.Background()))
	defer a.Close()

	require.NoError(t, a.AssertSelect(context.Background(), d1))

	buf := []byte{0xAA, 0xBB, 0xCC}
	require.NoError(t, a.Block(context.Background(), buf))
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, buf)
}

func TestScenarioStrongPullupArming(t *testing.T) {
	chip := newFakeChip()
	a := newTestAdapter(chip)
	require.NoError(t, a.Open(context.Background()))
	defer a.Close()

	ctx := context.Background()

	accepted, err := a.StartPowerDelivery(ctx, onewire.ArmAfterNextByte)
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.Equal(t, onewire.PowerStrongPullup, a.state.power)
	assert.Empty(t, chip.pulseCmds, "pulse must not engage before the armed byte goes out")

	require.NoError(t, a.PutByte(ctx, 0x44))
	assert.Equal(t, onewire.ArmNow, a.state.armPower, "arming clears once triggered")
	assert.Equal(t, []byte{pulseCmd(pulseTypeStrongPullup, true)}, chip.pulseCmds)

	require.NoError(t, a.SetPowerNormal(ctx))
	assert.Equal(t, onewire.PowerNormal, a.state.power)
	assert.Equal(t, []byte{
		pulseCmd(pulseTypeStrongPullup, true),
		pulseCmd(pulseTypeStrongPullup, false),
		pulseCmd(pulseTypeStrongPullup, true),
		pulseCmd(pulseTypeStrongPullup, false),
	}, chip.pulseCmds)
}

func TestScenarioBaudEscalatesForLargeBlock(t *testing.T) {
	d1 := onewire.NewAddress(0x10, [6]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06})
	chip := newFakeChip(d1)
	a := newTestAdapter(chip)
	require.NoError(t, a.Open(context.Background()))
	defer a.Close()

	require.NoError(t, a.AssertSelect(context.Background(), d1))

	buf := make([]byte, 40)
	for i := range buf {
		buf[i] = 0xFF
	}
	require.NoError(t, a.Block(context.Background(), buf))

	assert.Contains(t, chip.writeBauds, 57600)
	assert.Equal(t, 9600, a.link.Baud(), "Block restores 9600 when it's done")
}

func TestIsPresentForcesExactAddress(t *testing.T) {
	d1 := onewire.NewAddress(0x10, [6]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06})
	d2 := onewire.NewAddress(0x28, [6]byte{0x11, 0x12, 0x13, 0x14, 0x15, 0x16})
	chip := newFakeChip(d1, d2)
	a := newTestAdapter(chip)
	require.NoError(t, a.Open(context.Background()))
	defer a.Close()

	present, err := a.IsPresent(context.Background(), d1)
	require.NoError(t, err)
	assert.True(t, present)

	ghost := onewire.NewAddress(0x10, [6]byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA})
	present, err = a.IsPresent(context.Background(), ghost)
	require.NoError(t, err)
	assert.False(t, present)
}

func TestOverdriveIsPresentUsesStrongAccess(t *testing.T) {
	d1 := onewire.NewAddress(0x10, [6]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06})
	chip := newFakeChip(d1)
	a := newTestAdapter(chip)
	require.NoError(t, a.Open(context.Background()))
	defer a.Close()
	require.NoError(t, a.SetSpeed(onewire.SpeedOverdrive))

	present, err := a.IsPresent(context.Background(), d1)
	require.NoError(t, err)
	assert.True(t, present)

	ghost := onewire.NewAddress(0x10, [6]byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA})
	present, err = a.IsPresent(context.Background(), ghost)
	require.NoError(t, err)
	assert.False(t, present)
}
