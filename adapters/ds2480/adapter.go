package ds2480

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/onewirenet/ds2480"
)

// Config holds the operator-facing knobs for an Adapter: ByteBangRead for
// the serial read strategy, DefaultBaud to pin a streaming baud rate
// instead of letting the adapter pick one by transfer size, and
// PullupMicroamp to override the strong pull-up current limit.
type Config struct {
	Port           string
	ByteBangRead   bool
	DefaultBaud    int
	PullupMicroamp int
}

// Adapter is the DS2480B-backed implementation of onewire.Adapter. It owns
// the serial link, the chip's framing/mode state, the search cursor, and
// the exclusive lock that BeginExclusive/EndExclusive hand to callers;
// individual operations do not take that lock themselves.
type Adapter struct {
	cfg    Config
	link   *Link
	framer *Framer
	state  *state
	lock   exclusiveLock
}

var _ onewire.Adapter = (*Adapter)(nil)

// New builds an Adapter for cfg.Port. It does not open the port; call Open.
func New(cfg Config) *Adapter {
	st := newState()
	link := NewLink(cfg.Port, cfg.ByteBangRead)
	return &Adapter{
		cfg:    cfg,
		link:   link,
		framer: newFramer(link, st),
		state:  st,
	}
}

// Open opens the serial port and runs the master-reset handshake so the
// chip starts from a known state.
func (a *Adapter) Open(ctx context.Context) error {
	if err := a.link.Open(); err != nil {
		return err
	}
	if err := a.framer.MasterReset(ctx); err != nil {
		a.link.Close()
		return err
	}
	if err := a.applyPullupLoad(ctx); err != nil {
		a.link.Close()
		return err
	}
	return nil
}

// applyPullupLoad sets the strong pull-up current limit if the caller asked
// for one other than the chip's power-on default.
func (a *Adapter) applyPullupLoad(ctx context.Context) error {
	if a.cfg.PullupMicroamp == 0 {
		return nil
	}
	code, ok := loadMap[a.cfg.PullupMicroamp]
	if !ok {
		return ds2480Err("open", onewire.KindInvalidArgument,
			fmt.Errorf("unsupported pull-up current %dua", a.cfg.PullupMicroamp))
	}
	_, err := a.framer.SendCommand(ctx, cmdConfig|(cfgLOAD<<4)|(code<<1), 1)
	return err
}

// Close closes the serial port.
func (a *Adapter) Close() error {
	return a.link.Close()
}

// --- Retry / re-verify ---

// isTransient reports whether err is the kind of failure a re-verify might
// recover from: a dropped byte, a bad echo, a short read. Anything else
// (no-presence, a short bus, CRC, an invalid argument) means the bus or the
// caller is wrong, not the adapter, and retrying would just repeat it.
func isTransient(err error) bool {
	var derr *onewire.Error
	if !errors.As(err, &derr) {
		return false
	}
	return derr.Kind == onewire.KindIO || derr.Kind == onewire.KindProtocolEcho
}

// withRetry runs op; on a transient failure it silently re-verifies the
// chip is still there and tries op exactly once more. A second transient
// failure, or a re-verify that itself fails, means the adapter needs to be
// reopened — it surfaces as KindAdapterLost instead of the original error.
// A non-transient failure of the retry is returned as is.
func (a *Adapter) withRetry(ctx context.Context, op func() error) error {
	err := op()
	if err == nil || !isTransient(err) {
		return err
	}

	if verr := a.framer.MasterReset(ctx); verr != nil {
		return ds2480Err("withRetry", onewire.KindAdapterLost,
			fmt.Errorf("adapter unresponsive after %v: re-verify failed: %w", err, verr))
	}

	if err2 := op(); err2 != nil {
		if isTransient(err2) {
			return ds2480Err("withRetry", onewire.KindAdapterLost,
				fmt.Errorf("adapter unresponsive after re-verify: %w", err2))
		}
		return err2
	}
	return nil
}

// --- Enumeration ---

func (a *Adapter) SearchFirst(ctx context.Context) (bool, error) {
	a.state.resetSearch()
	// A single targeted family can be jumped to directly: seed the cursor
	// with the family byte and lastDiscrepancy=64, so the first pass's
	// direction frame follows the family's bits and takes the 0 branch
	// everywhere after them, dropping straight into that family's subtree
	// instead of walking the rest of the bus first.
	if len(a.state.targetFamilies) == 1 {
		for family := range a.state.targetFamilies {
			a.state.lastDiscrepancy = 64
			a.state.lastAddress = onewire.RomAddress{family}
		}
	}
	return a.searchAtMaxBaud(ctx, a.romCommand())
}

func (a *Adapter) SearchNext(ctx context.Context) (bool, error) {
	return a.searchAtMaxBaud(ctx, a.romCommand())
}

// searchAtMaxBaud escalates to the configured ceiling baud for the whole
// search pass (it may run hundreds of triplet frames before this call
// returns) and restores 9600 afterward, regardless of how the search
// itself recurses internally.
func (a *Adapter) searchAtMaxBaud(ctx context.Context, romCmd byte) (bool, error) {
	baud := maxStreamingBaud(a.cfg.DefaultBaud)
	if err := a.link.SetBaud(baud); err != nil {
		return false, err
	}
	defer a.link.SetBaud(9600)
	return a.search(ctx, romCmd)
}

func (a *Adapter) romCommand() byte {
	if a.state.onlyAlarming {
		return romAlarmCmd
	}
	return romSearchCmd
}

func (a *Adapter) Address() onewire.RomAddress {
	return a.state.lastAddress
}

func (a *Adapter) TargetFamily(family byte) {
	a.state.targetFamilies = map[byte]bool{family: true}
	a.state.excludeFamilies = map[byte]bool{}
}

func (a *Adapter) TargetFamilies(families []byte) {
	a.state.targetFamilies = make(map[byte]bool, len(families))
	for _, f := range families {
		a.state.targetFamilies[f] = true
	}
	a.state.excludeFamilies = map[byte]bool{}
}

func (a *Adapter) ExcludeFamily(family byte) {
	a.state.excludeFamilies[family] = true
}

func (a *Adapter) ExcludeFamilies(families []byte) {
	for _, f := range families {
		a.state.excludeFamilies[f] = true
	}
}

func (a *Adapter) TargetAllFamilies() {
	a.state.targetFamilies = map[byte]bool{}
	a.state.excludeFamilies = map[byte]bool{}
}

func (a *Adapter) SetSearchOnlyAlarming(only bool) {
	a.state.onlyAlarming = only
}

func (a *Adapter) SetNoResetSearch(skip bool) {
	a.state.noResetSearch = skip
}

func (a *Adapter) SetSearchAllDevices() {
	a.state.onlyAlarming = false
	a.state.noResetSearch = false
	a.TargetAllFamilies()
}

// --- Per-device ---

// IsPresent forces every bit of the search toward addr's own address (no
// device gets a chance to pull the search off it) and reports whether the
// chip echoed that exact address back, i.e. a device answering to it is
// actually on the bus. At overdrive speed it instead uses the chip's
// 24-byte strong-access command, which checks presence in a single pass
// without walking the full triplet search.
func (a *Adapter) IsPresent(ctx context.Context, addr onewire.RomAddress) (bool, error) {
	if a.state.speed == onewire.SpeedOverdrive {
		return a.strongAccessPresent(ctx, romSearchCmd, addr)
	}
	if _, err := a.Reset(ctx); err != nil {
		return false, err
	}
	var rom uint64
	err := a.withRetry(ctx, func() error {
		var ierr error
		rom, _, ierr = a.framer.triplet(ctx, romSearchCmd, addr.Uint64(), 64)
		return ierr
	})
	if err != nil {
		return false, err
	}
	return rom == addr.Uint64(), nil
}

func (a *Adapter) IsAlarming(ctx context.Context, addr onewire.RomAddress) (bool, error) {
	if a.state.speed == onewire.SpeedOverdrive {
		return a.strongAccessPresent(ctx, romAlarmCmd, addr)
	}
	if _, err := a.Reset(ctx); err != nil {
		return false, err
	}
	var rom uint64
	err := a.withRetry(ctx, func() error {
		var ierr error
		rom, _, ierr = a.framer.triplet(ctx, romAlarmCmd, addr.Uint64(), 64)
		return ierr
	})
	if err != nil {
		return false, err
	}
	return rom == addr.Uint64(), nil
}

// strongAccessPresent runs the chip's 24-byte directed strong-access
// command at overdrive speed: one pass that checks a single address is on
// the bus without walking the full triplet search, which the chip doesn't
// support running at overdrive timing.
func (a *Adapter) strongAccessPresent(ctx context.Context, romCmd byte, addr onewire.RomAddress) (bool, error) {
	if _, err := a.Reset(ctx); err != nil {
		return false, err
	}

	frame := packStrongAccess(addr.Uint64())
	var reply []byte
	err := a.withRetry(ctx, func() error {
		// romCmd goes out unescaped (it can never equal the mode-switch
		// byte), but frame is 192 bits of addressing data and has to be
		// escaped exactly like any other data-mode payload: a byte that
		// happens to equal 0xE3 would otherwise desync the chip's framing.
		tx := a.framer.ensureMode(modeIsData)
		tx = append(tx, romCmd)
		tx = append(tx, escapeData(frame)...)
		rx, ierr := a.framer.RawExchange(ctx, tx, 1+len(frame), modeIsData)
		if ierr != nil {
			return ierr
		}
		if rx[0] != romCmd {
			return ds2480Err("strongAccess", onewire.KindProtocolEcho, errMismatchedEcho(romCmd, rx[0]))
		}
		reply = rx[1:]
		return nil
	})
	if err != nil {
		return false, err
	}
	return unpackStrongAccess(reply, addr.Uint64()), nil
}

// matchROM is the 1-Wire ROM command that selects exactly one device by
// address; every slave not matching the following 8 bytes drops off the
// conversation until the next reset.
const matchROM byte = 0x55

// Select issues reset + match-ROM(addr), without verifying the reset saw a
// presence pulse first.
func (a *Adapter) Select(ctx context.Context, addr onewire.RomAddress) error {
	if _, err := a.Reset(ctx); err != nil {
		return err
	}
	return a.sendAndVerify(ctx, append([]byte{matchROM}, addr.Bytes()...))
}

// AssertSelect is Select but fails with KindNoPresence if the reset
// preceding it didn't see a device on the line at all.
func (a *Adapter) AssertSelect(ctx context.Context, addr onewire.RomAddress) error {
	result, err := a.Reset(ctx)
	if err != nil {
		return err
	}
	if result != onewire.ResetPresence && result != onewire.ResetAlarm {
		return ds2480Err("assertSelect", onewire.KindNoPresence,
			fmt.Errorf("no device answered reset before selecting %s", addr)).WithAddress(addr)
	}
	return a.sendAndVerify(ctx, append([]byte{matchROM}, addr.Bytes()...))
}

// sendAndVerify writes tx in data mode and confirms the chip echoed it back
// byte for byte; a mismatch means a slave drove the line against us, which
// on a ROM command means line noise or a wiring fault, not a bug here.
func (a *Adapter) sendAndVerify(ctx context.Context, tx []byte) error {
	return a.withRetry(ctx, func() error {
		reply, err := a.framer.SendData(ctx, tx)
		if err != nil {
			return err
		}
		for i := range tx {
			if reply[i] != tx[i] {
				return ds2480Err("sendAndVerify", onewire.KindProtocolEcho,
					fmt.Errorf("byte %d: echo 0x%02x != sent 0x%02x", i, reply[i], tx[i]))
			}
		}
		return nil
	})
}

// --- Raw 1-Wire I/O ---

// Reset issues a 1-Wire reset and, on every successful run, decodes the
// chip variant and revision out of the reply's fixed header: bit 3 is
// always set, bits 4-2 name the chip (0b010 DS2480, 0b011 DS2480B), and
// bits 0-1 carry the reset result.
func (a *Adapter) Reset(ctx context.Context) (onewire.ResetResult, error) {
	a.state.armPower, a.state.armPulse = onewire.ArmNow, onewire.ArmNow

	var reply []byte
	err := a.withRetry(ctx, func() error {
		var ierr error
		reply, ierr = a.framer.SendCommand(ctx, cmdReset|(speedBits[a.state.speed]<<2), 1)
		return ierr
	})
	if err != nil {
		return onewire.ResetNoPresence, err
	}
	if reply[0]&0x08 != 0x08 {
		return onewire.ResetNoPresence, ds2480Err("reset", onewire.KindProtocolEcho,
			fmt.Errorf("unexpected reset reply 0x%02x", reply[0]))
	}
	switch (reply[0] & 0x1C) >> 2 {
	case 2:
		a.state.version = "DS2480"
	case 3:
		a.state.version = "DS2480B"
	default:
		return onewire.ResetNoPresence, ds2480Err("reset", onewire.KindProtocolEcho,
			fmt.Errorf("unrecognized chip variant in reply 0x%02x", reply[0]))
	}
	a.state.revision = reply[0]

	switch reply[0] & 0x03 {
	case 0:
		return onewire.ResetShort, nil
	case 1:
		return onewire.ResetPresence, nil
	case 2:
		return onewire.ResetAlarm, nil
	default:
		return onewire.ResetNoPresence, nil
	}
}

func (a *Adapter) PutBit(ctx context.Context, bit bool) error {
	tx := cmdBitIO | (speedBits[a.state.speed] << 2)
	if bit {
		tx |= 1 << 4
	}
	if err := a.withRetry(ctx, func() error {
		reply, err := a.framer.SendCommand(ctx, tx, 1)
		if err != nil {
			return err
		}
		if reply[0]&0xF0 != 0x90 {
			return ds2480Err("putBit", onewire.KindProtocolEcho, fmt.Errorf("unexpected bit reply 0x%02x", reply[0]))
		}
		return nil
	}); err != nil {
		return err
	}
	return a.triggerArmedPower(ctx, onewire.ArmAfterNextBit)
}

func (a *Adapter) GetBit(ctx context.Context) (bool, error) {
	tx := cmdBitIO | (1 << 4) | (speedBits[a.state.speed] << 2)
	var bit bool
	err := a.withRetry(ctx, func() error {
		reply, ierr := a.framer.SendCommand(ctx, tx, 1)
		if ierr != nil {
			return ierr
		}
		if reply[0]&0xF0 != 0x90 {
			return ds2480Err("getBit", onewire.KindProtocolEcho, fmt.Errorf("unexpected bit reply 0x%02x", reply[0]))
		}
		bit = reply[0]&0x01 != 0
		return nil
	})
	if err != nil {
		return bit, err
	}
	if err := a.triggerArmedPower(ctx, onewire.ArmAfterNextBit); err != nil {
		return bit, err
	}
	return bit, nil
}

func (a *Adapter) PutByte(ctx context.Context, b byte) error {
	baud := streamingBaudFor(1, a.cfg.DefaultBaud)
	if err := a.link.SetBaud(baud); err != nil {
		return err
	}
	defer a.link.SetBaud(9600)
	if err := a.withRetry(ctx, func() error {
		reply, err := a.framer.SendData(ctx, []byte{b})
		if err != nil {
			return err
		}
		if reply[0] != b {
			return ds2480Err("putByte", onewire.KindProtocolEcho, fmt.Errorf("echo 0x%02x != sent 0x%02x", reply[0], b))
		}
		return nil
	}); err != nil {
		return err
	}
	return a.triggerArmedPower(ctx, onewire.ArmAfterNextByte)
}

func (a *Adapter) GetByte(ctx context.Context) (byte, error) {
	var b byte
	err := a.withRetry(ctx, func() error {
		reply, ierr := a.framer.SendData(ctx, []byte{0xFF})
		if ierr != nil {
			return ierr
		}
		b = reply[0]
		return nil
	})
	if err != nil {
		return b, err
	}
	if err := a.triggerArmedPower(ctx, onewire.ArmAfterNextByte); err != nil {
		return b, err
	}
	return b, nil
}

func (a *Adapter) Block(ctx context.Context, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	baud := streamingBaudFor(len(buf), a.cfg.DefaultBaud)
	if err := a.link.SetBaud(baud); err != nil {
		return err
	}
	defer a.link.SetBaud(9600)
	return a.withRetry(ctx, func() error {
		reply, err := a.framer.SendData(ctx, buf)
		if err != nil {
			return err
		}
		copy(buf, reply)
		return nil
	})
}

// --- Speed and power ---

func (a *Adapter) SetSpeed(speed onewire.Speed) error {
	if _, ok := speedBits[speed]; !ok {
		return ds2480Err("setSpeed", onewire.KindInvalidArgument, fmt.Errorf("unknown speed %v", speed))
	}
	a.state.speed = speed
	return nil
}

func (a *Adapter) Speed() onewire.Speed {
	return a.state.speed
}

func (a *Adapter) SetPowerDuration(d onewire.PowerArming) error {
	a.state.armPower = d
	return nil
}

// pulseCmd builds a Pulse command byte for pulseType (pulseTypeStrongPullup
// or pulseTypeProgram): start=false asks the chip to stop whichever pulse is
// active, start=true asks it to begin one now. The TYPE/ARM bit positions
// aren't independently pinned by any retrieved source; this packing keeps
// the four resulting values (0xED/0xEF/0xFD/0xFF) distinct from every other
// command byte the chip recognizes.
func pulseCmd(pulseType byte, start bool) byte {
	b := cmdPulse | (pulseType << 4)
	if start {
		b |= 1 << 1
	}
	return b
}

// sendPulse issues a single Pulse command exchange. checkReply asks it to
// validate the echo's low status bits; the stop/start-no-prime legs of a
// teardown sequence skip that check since only the final echo matters.
func (a *Adapter) sendPulse(ctx context.Context, pulseType byte, start bool, checkReply bool) error {
	cmd := pulseCmd(pulseType, start)
	reply, err := a.framer.SendCommand(ctx, cmd, 1)
	if err != nil {
		return err
	}
	if checkReply && reply[0]&0x07 != 0 {
		return ds2480Err("pulse", onewire.KindProtocolEcho, fmt.Errorf("unexpected pulse reply 0x%02x", reply[0]))
	}
	return nil
}

// triggerArmedPower fires whatever power-level transition is armed for this
// I/O boundary (bit or byte) and clears the flag back to ArmNow: putBit and
// putByte both need this, since armOnNextBit/armOnNextByte trigger on
// either the strong-pullup or the program-pulse arming, whichever is set.
func (a *Adapter) triggerArmedPower(ctx context.Context, boundary onewire.PowerArming) error {
	if a.state.armPower == boundary {
		a.state.armPower = onewire.ArmNow
		if err := a.sendPulse(ctx, pulseTypeStrongPullup, true, true); err != nil {
			return err
		}
	}
	if a.state.armPulse == boundary {
		a.state.armPulse = onewire.ArmNow
		if err := a.sendPulse(ctx, pulseTypeProgram, true, true); err != nil {
			return err
		}
	}
	return nil
}

// StartPowerDelivery arms strong pull-up. With arming == ArmNow the pulse
// engages immediately; with AfterNextBit/AfterNextByte it engages on the I/O
// call that follows, via triggerArmedPower.
func (a *Adapter) StartPowerDelivery(ctx context.Context, arming onewire.PowerArming) (bool, error) {
	a.state.armPower = arming
	a.state.power = onewire.PowerStrongPullup
	cmd := cmdConfig | (cfgSPUD << 4) | (spudMap[a.state.powerDuration] << 1)
	reply, err := a.framer.SendCommand(ctx, cmd, 1)
	if err != nil {
		return false, err
	}
	accepted := reply[0]&0x01 == 0
	if arming == onewire.ArmNow {
		if err := a.sendPulse(ctx, pulseTypeStrongPullup, true, true); err != nil {
			return false, err
		}
	}
	return accepted, nil
}

func (a *Adapter) SetProgramPulseDuration(d onewire.PowerArming) error {
	a.state.armPulse = d
	return nil
}

// StartProgramPulse arms the 12V program pulse, engaging it immediately for
// arming == ArmNow or deferring to the next bit/byte boundary otherwise.
func (a *Adapter) StartProgramPulse(ctx context.Context, arming onewire.PowerArming) (bool, error) {
	a.state.armPulse = arming
	a.state.power = onewire.PowerProgramPulse
	cmd := cmdConfig | (cfgPPD << 4) | (ppdMap[a.state.pulseDuration] << 1)
	reply, err := a.framer.SendCommand(ctx, cmd, 1)
	if err != nil {
		return false, err
	}
	accepted := reply[0]&0x01 == 0
	if arming == onewire.ArmNow {
		if err := a.sendPulse(ctx, pulseTypeProgram, true, true); err != nil {
			return false, err
		}
	}
	return accepted, nil
}

// StartBreak drops DTR & RTS and holds them down 200ms, per the adapter's
// break-level power control. This is a line-level power operation, not the
// UART break signal SendBreak emulates for master-reset.
func (a *Adapter) StartBreak(ctx context.Context) error {
	a.state.power = onewire.PowerBreak
	if err := a.link.DropLines(); err != nil {
		return err
	}
	time.Sleep(200 * time.Millisecond)
	return nil
}

// stopPulseSequence cleanly ends a strong-pullup or program-pulse: the chip
// can't drop straight from pulsing to idle with one command, so this sends
// stop, start-no-prime, stop again, and only checks the echo of that final
// command.
func (a *Adapter) stopPulseSequence(ctx context.Context, pulseType byte) error {
	if err := a.sendPulse(ctx, pulseType, false, false); err != nil {
		return err
	}
	if err := a.sendPulse(ctx, pulseType, true, false); err != nil {
		return err
	}
	if err := a.sendPulse(ctx, pulseType, false, true); err != nil {
		return err
	}
	a.state.power = onewire.PowerNormal
	a.state.armPower, a.state.armPulse = onewire.ArmNow, onewire.ArmNow
	return nil
}

// recoverFromBreak re-asserts DTR & RTS, sleeps 300ms, and re-runs adapter
// detection — a completely different recovery path from the strong-pullup
// and program-pulse teardown, since Break never left the chip mid-pulse.
func (a *Adapter) recoverFromBreak(ctx context.Context) error {
	if err := a.link.PowerCycle(); err != nil {
		return err
	}
	if err := a.framer.MasterReset(ctx); err != nil {
		return err
	}
	a.state.power = onewire.PowerNormal
	return nil
}

// SetPowerNormal returns the bus to normal 5V drive. The recovery path
// depends on which power level is active: Break recovers by re-asserting
// the line and re-running adapter detection, while StrongPullup/ProgramPulse
// recover by running the Pulse-command stop sequence.
func (a *Adapter) SetPowerNormal(ctx context.Context) error {
	switch a.state.power {
	case onewire.PowerBreak:
		return a.recoverFromBreak(ctx)
	case onewire.PowerStrongPullup:
		return a.stopPulseSequence(ctx, pulseTypeStrongPullup)
	case onewire.PowerProgramPulse:
		return a.stopPulseSequence(ctx, pulseTypeProgram)
	default:
		a.state.power = onewire.PowerNormal
		return nil
	}
}

// --- Locking ---

func (a *Adapter) BeginExclusive(ctx context.Context) (context.Context, error) {
	return a.lock.Acquire(ctx)
}

func (a *Adapter) EndExclusive(ctx context.Context) {
	a.lock.Release(ctx)
}

// --- Capability probes ---

func (a *Adapter) CanOverdrive() bool { return true }
func (a *Adapter) CanFlex() bool      { return true }

// CanProgram reports true once a reset has decoded a revision byte off the
// chip, and false before that. It does not inspect any program-voltage bit
// in that byte.
func (a *Adapter) CanProgram() bool           { return a.state.revision != 0 }
func (a *Adapter) CanDeliverPower() bool      { return true }
func (a *Adapter) CanDeliverSmartPower() bool { return false }
func (a *Adapter) CanBreak() bool             { return true }
func (a *Adapter) CanHyperdrive() bool        { return false }

// --- Diagnostics ---

func (a *Adapter) AdapterName() string {
	return a.state.version
}

func (a *Adapter) PortName() string {
	return a.cfg.Port
}

func (a *Adapter) Version() (string, error) {
	if a.state.version == "" {
		return "", ds2480Err("version", onewire.KindInvalidArgument, fmt.Errorf("no reset has decoded the chip variant yet"))
	}
	return fmt.Sprintf("%s rev=0x%02x", a.state.version, a.state.revision), nil
}

// family09ID is the DS1982/DS2502-class EPROM iButton family code the
// adapter's own identification button is built from.
const family09ID byte = 0x09

// extendedReadPageCmd is the 1-Wire command that reads an EPROM page
// together with its row address, so the CRC8 the device appends covers
// both.
const extendedReadPageCmd byte = 0xC3

// AdapterAddress identifies this specific adapter by reading its own
// embedded family-0x09 iButton: it searches the bus restricted to family
// 0x09, selects the device it finds, reads page zero with its address and
// CRC8 trailer, and checks the page is not factory-blank. It returns
// "<not available>" if no such device is found or the page doesn't check
// out — this is a best-effort diagnostic, nothing else in the driver
// depends on it succeeding.
func (a *Adapter) AdapterAddress(ctx context.Context) string {
	const notAvailable = "<not available>"

	savedTargets, savedExcludes := a.state.targetFamilies, a.state.excludeFamilies
	savedOnlyAlarming, savedDiscrepancy := a.state.onlyAlarming, a.state.lastDiscrepancy
	savedFamilyDiscrepancy, savedLastDevice := a.state.lastFamilyDiscrepancy, a.state.lastDeviceFlag
	savedLastAddress := a.state.lastAddress
	defer func() {
		a.state.targetFamilies, a.state.excludeFamilies = savedTargets, savedExcludes
		a.state.onlyAlarming = savedOnlyAlarming
		a.state.lastDiscrepancy, a.state.lastFamilyDiscrepancy = savedDiscrepancy, savedFamilyDiscrepancy
		a.state.lastDeviceFlag, a.state.lastAddress = savedLastDevice, savedLastAddress
	}()

	a.TargetFamily(family09ID)
	a.SetSearchOnlyAlarming(false)

	found, err := a.SearchFirst(ctx)
	for err == nil && found {
		addr := a.Address()
		if addr.Family() == family09ID {
			if s, ok := a.readIdentificationPage(ctx, addr); ok {
				return s
			}
		}
		found, err = a.SearchNext(ctx)
	}
	return notAvailable
}

// readIdentificationPage selects addr and reads its page zero, checking
// the two CRC8 trailers the extended-read-page command appends (one over
// the command+address, one over the 32-byte page) and rejecting a
// factory-blank (all-0xFF) page.
func (a *Adapter) readIdentificationPage(ctx context.Context, addr onewire.RomAddress) (string, bool) {
	if err := a.Select(ctx, addr); err != nil {
		return "", false
	}

	buf := make([]byte, 37)
	buf[0] = extendedReadPageCmd
	buf[1] = 0x00
	buf[2] = 0x00
	for i := 3; i < len(buf); i++ {
		buf[i] = 0xFF
	}
	cmdCRC := onewire.CRC8(buf[0:3], 0)

	if err := a.Block(ctx, buf); err != nil {
		return "", false
	}

	if onewire.CRC8(buf[3:4], cmdCRC) != 0 {
		return "", false
	}
	if onewire.CRC8(buf[4:37], 0) != 0 {
		return "", false
	}

	page := buf[4:36]
	blank := true
	for _, b := range page {
		if b != 0xFF {
			blank = false
			break
		}
	}
	if blank {
		return "", false
	}
	return addr.String(), true
}
