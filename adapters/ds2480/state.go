package ds2480

import (
	"time"

	"github.com/onewirenet/ds2480"
)

// Wire-protocol bytes. Names and values come straight off the DS2480B
// datasheet's command table.
const (
	modeData      byte = 0xE1
	modeCommand   byte = 0xE3
	modeStopPulse byte = 0xF1

	cmdReset          byte = 0xC1
	cmdBitIO          byte = 0x81
	cmdPulse          byte = 0xED
	cmdPulseTerminate byte = 0xF1
	cmdConfig         byte = 0x01
	cmdSearchAccelOn  byte = 0xB1
	cmdSearchAccelOff byte = 0xA1

	// Configuration parameter group selectors, per the command-byte layout
	// CMD_CONFIG | (param<<4) | (value<<1). cfgREAD paired with a target
	// param in the value field reads that parameter back instead of
	// setting it.
	cfgREAD  byte = 0x00
	cfgPDSRC byte = 0x01
	cfgPPD   byte = 0x02
	cfgSPUD  byte = 0x03
	cfgW1LT  byte = 0x04
	cfgW0RT  byte = 0x05
	cfgLOAD  byte = 0x06
	cfgBAUD  byte = 0x07

	// pulseTypeStrongPullup and pulseTypeProgram select which of the two
	// pulse rails cmdPulse drives, the TYPE field in the Pulse command
	// row (spec-table 5V/strong-pullup vs 12V/program-voltage).
	pulseTypeStrongPullup byte = 0
	pulseTypeProgram      byte = 1
)

// verifyTiming holds the pull-down slew rate, write-1-low time, and sample
// offset/write-0-recovery time Verify configures before its baud/bit-io
// check, one set per 1-Wire speed (DS2480B.pdf p.13 defaults).
var verifyTiming = map[onewire.Speed]struct{ slew, write1Low, sampleOffset byte }{
	onewire.SpeedRegular:   {slew: 0, write1Low: 0, sampleOffset: 0},
	onewire.SpeedFlex:      {slew: 0, write1Low: 0, sampleOffset: 0},
	onewire.SpeedOverdrive: {slew: 0, write1Low: 1, sampleOffset: 0},
}

// baudParamCode is the chip's configuration-parameter encoding for each
// baud rate it can run at, used both to set the baud parameter and to
// check a CFG_READ|CFG_BAUD read-back during Verify.
var baudParamCode = map[int]byte{
	9600:   0,
	19200:  1,
	57600:  2,
	115200: 3,
}

// loadMap is the chip's current-limit encoding for strong pull-up,
// keyed in microamps. 0 maps to the chip's own power-on default.
var loadMap = map[int]byte{
	0:    0,
	1800: 0,
	2100: 1,
	2400: 2,
	2700: 3,
	3000: 4,
	3300: 5,
	3600: 6,
	3900: 7,
}

// speedBits maps onewire.Speed to the two-bit speed field used in the reset
// and bit-I/O command bytes.
var speedBits = map[onewire.Speed]byte{
	onewire.SpeedRegular:   0,
	onewire.SpeedFlex:      1,
	onewire.SpeedOverdrive: 2,
}

// ppdMap and spudMap are the chip's encoding of program-pulse and
// strong-pullup durations (DS2480B.pdf p.13), indexed by state.pulseDuration
// and state.powerDuration. Nothing in this package sets those two fields, so
// they stay 0 and select the "infinite" code.
var ppdMap = map[time.Duration]byte{
	32 * time.Microsecond:   0,
	64 * time.Microsecond:   1,
	128 * time.Microsecond:  2,
	256 * time.Microsecond:  3,
	512 * time.Microsecond:  4,
	1024 * time.Microsecond: 5,
	2048 * time.Microsecond: 6,
	0:                       7, // "infinite" (held until explicitly stopped)
}

var spudMap = map[time.Duration]byte{
	16400 * time.Microsecond: 0,
	65500 * time.Microsecond: 1,
	131 * time.Millisecond:   2,
	262 * time.Millisecond:   3,
	524 * time.Millisecond:   4,
	1048 * time.Millisecond:  5,
	0:                        7, // "infinite"
}

// chipMode tracks which framing mode (command vs data) the chip is
// currently expecting bytes in.
type chipMode int

const (
	modeUnknown chipMode = iota
	modeIsCommand
	modeIsData
)

// state is the adapter's mutable view of the chip: what speed/baud it
// thinks the chip is running at, what's armed for the next power-level
// change, and the search cursor and family filters. It has no serial I/O of its
// own; Framer and PacketBuilder read and update it.
type state struct {
	mode chipMode

	speed    onewire.Speed
	power    onewire.PowerLevel
	armPower onewire.PowerArming
	armPulse onewire.PowerArming

	pulseDuration time.Duration
	powerDuration time.Duration

	revision byte // 1-Wire reset reply byte the chip variant was decoded from (set by Reset)
	version  string

	// search cursor, carried across SearchFirst/SearchNext calls.
	lastDiscrepancy       int
	lastFamilyDiscrepancy int
	lastDeviceFlag        bool
	lastAddress           onewire.RomAddress

	targetFamilies  map[byte]bool
	excludeFamilies map[byte]bool
	onlyAlarming    bool
	noResetSearch   bool
}

func newState() *state {
	return &state{
		speed:                 onewire.SpeedRegular,
		power:                 onewire.PowerNormal,
		targetFamilies:        map[byte]bool{},
		excludeFamilies:       map[byte]bool{},
		lastDiscrepancy:       -1,
		lastFamilyDiscrepancy: -1,
	}
}

func (s *state) resetSearch() {
	s.lastDiscrepancy = -1
	s.lastFamilyDiscrepancy = -1
	s.lastDeviceFlag = false
	s.lastAddress = onewire.RomAddress{}
}
