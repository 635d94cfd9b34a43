package onewire

import "context"

// Adapter is the public operation surface a 1-Wire host adapter exposes to
// the device-container layer. ds2480.Adapter is the concrete DS2480B-backed
// implementation.
type Adapter interface {
	// Enumeration.
	SearchFirst(ctx context.Context) (bool, error)
	SearchNext(ctx context.Context) (bool, error)
	Address() RomAddress
	TargetFamily(family byte)
	TargetFamilies(families []byte)
	ExcludeFamily(family byte)
	ExcludeFamilies(families []byte)
	TargetAllFamilies()
	SetSearchOnlyAlarming(only bool)
	SetNoResetSearch(skip bool)
	SetSearchAllDevices()

	// Per-device.
	IsPresent(ctx context.Context, addr RomAddress) (bool, error)
	IsAlarming(ctx context.Context, addr RomAddress) (bool, error)
	Select(ctx context.Context, addr RomAddress) error
	AssertSelect(ctx context.Context, addr RomAddress) error

	// Raw 1-Wire I/O.
	Reset(ctx context.Context) (ResetResult, error)
	PutBit(ctx context.Context, bit bool) error
	GetBit(ctx context.Context) (bool, error)
	PutByte(ctx context.Context, b byte) error
	GetByte(ctx context.Context) (byte, error)
	Block(ctx context.Context, buf []byte) error

	// Speed and power.
	SetSpeed(speed Speed) error
	Speed() Speed
	SetPowerDuration(d PowerArming) error
	StartPowerDelivery(ctx context.Context, arming PowerArming) (bool, error)
	SetProgramPulseDuration(d PowerArming) error
	StartProgramPulse(ctx context.Context, arming PowerArming) (bool, error)
	StartBreak(ctx context.Context) error
	SetPowerNormal(ctx context.Context) error

	// Locking.
	BeginExclusive(ctx context.Context) (context.Context, error)
	EndExclusive(ctx context.Context)

	// Capability probes.
	CanOverdrive() bool
	CanFlex() bool
	CanProgram() bool
	CanDeliverPower() bool
	CanDeliverSmartPower() bool
	CanBreak() bool
	CanHyperdrive() bool

	// Diagnostics.
	AdapterName() string
	PortName() string
	Version() (string, error)
	// AdapterAddress identifies the specific physical adapter by reading
	// its own embedded ROM, returning "<not available>" when that's not
	// possible.
	AdapterAddress(ctx context.Context) string
}

// SwitchDevice is the minimal interface a DS2409-class coupler/switch
// container must satisfy for OWPath to open and close paths through it. It
// is intentionally narrow: full device-container implementations live
// outside this module, this is the seam they plug into.
type SwitchDevice interface {
	Address() RomAddress
	// ReadState reads the switch's current latch/state snapshot.
	ReadState(ctx context.Context, adapter Adapter) ([]byte, error)
	// WriteState commits a (possibly modified) state snapshot back to the
	// switch.
	WriteState(ctx context.Context, adapter Adapter, state []byte) error
	// SetLatchState mutates state in place, setting channel's latch to on
	// or off. smart requests smart-on behavior (only meaningful when on is
	// true and HasSmartOn is true).
	SetLatchState(channel Channel, on bool, smart bool, state []byte) error
	// HasSmartOn reports whether this switch supports smart-on latching.
	HasSmartOn() bool
}

// Channel identifies one output channel of a DS2409-class coupler.
type Channel byte

const (
	ChannelMain Channel = 0
	ChannelAux  Channel = 1
)

func (c Channel) String() string {
	switch c {
	case ChannelMain:
		return "main"
	case ChannelAux:
		return "aux"
	default:
		return "unknown"
	}
}
