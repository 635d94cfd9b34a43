package ds2480

import (
	"context"

	"github.com/onewirenet/ds2480"
)

// romSearchCmd and romAlarmCmd are the 1-Wire ROM-level commands that open
// a search accelerator pass: 0xF0 walks every device, 0xEC walks only
// devices currently in an alarm state.
const (
	romSearchCmd byte = 0xF0
	romAlarmCmd  byte = 0xEC
)

// triplet runs one DS2480B search-accelerator pass: it writes the ROM
// search command, arms the accelerator, streams the 16-byte direction
// frame built from known/conflictAt, and decodes the reply into the
// 64-bit ROM value the bus settled on plus the next unresolved
// discrepancy bit.
func (f *Framer) triplet(ctx context.Context, romCmd byte, known uint64, conflictAt int) (uint64, int, error) {
	frame := packTriplet(known, conflictAt)

	// romCmd is 1-Wire traffic, not a chip command — it has to go out in
	// data mode like any other byte on the bus, before the accelerator
	// gets armed.
	tx := f.ensureMode(modeIsData)
	tx = append(tx, romCmd)
	tx = append(tx, modeCommand, cmdSearchAccelOn|(speedBits[f.state.speed]<<2))
	tx = append(tx, modeData)
	tx = append(tx, frame...)
	tx = append(tx, modeCommand, cmdSearchAccelOff)

	rx, err := f.RawExchange(ctx, tx, 1+len(frame), modeIsCommand)
	if err != nil {
		return 0, 0, err
	}
	if rx[0] != romCmd {
		return 0, 0, ds2480Err("search", onewire.KindProtocolEcho, errMismatchedEcho(romCmd, rx[0]))
	}

	rom, discrepancy := unpackTriplet(rx[1:])
	return rom, discrepancy, nil
}

// search runs the full Appnote-187 triplet search loop starting from the
// engine's saved lastDiscrepancy cursor, applying family target/exclude
// filters along the way, and returns the next matching address.
func (a *Adapter) search(ctx context.Context, romCmd byte) (bool, error) {
	st := a.state

	if st.lastDeviceFlag {
		if st.lastFamilyDiscrepancy >= 0 {
			// The targeted family's subtree looked exhausted, but that was
			// only true down to the family byte — promote the stashed
			// cursor and keep walking the rest of the address.
			st.lastDiscrepancy = st.lastFamilyDiscrepancy
			st.lastFamilyDiscrepancy = -1
			st.lastDeviceFlag = false
		} else {
			st.resetSearch()
			return false, nil
		}
	}

	if !st.noResetSearch {
		result, err := a.Reset(ctx)
		if err != nil {
			return false, err
		}
		if result != onewire.ResetPresence && result != onewire.ResetAlarm {
			st.resetSearch()
			return false, nil
		}
	}

	// The DS2480B's search accelerator runs all 64 triplets for this pass
	// in hardware in a single exchange; the direction frame built from
	// lastDiscrepancy replays lastAddress's bits below it, takes the 1
	// branch at it, and takes the 0 branch at any discrepancy past it.
	var known uint64
	var discrepancy int
	err := a.withRetry(ctx, func() error {
		var ierr error
		known, discrepancy, ierr = a.framer.triplet(ctx, romCmd, st.lastAddress.Uint64(), st.lastDiscrepancy)
		return ierr
	})
	if err != nil {
		return false, err
	}

	addr, err := onewire.AddressFromUint64(known)
	if err != nil {
		// A CRC failure here means line noise corrupted the search; treat
		// it like "no device", the caller can retry.
		st.resetSearch()
		return false, err
	}

	st.lastDiscrepancy = discrepancy
	st.lastAddress = addr

	if discrepancy == 64 {
		st.lastDeviceFlag = true
		st.lastDiscrepancy = -1
	} else if discrepancy < 8 && len(st.targetFamilies) == 1 {
		// The only discrepancy left to resolve lies inside the family
		// byte. Stash the cursor and mark this pass as the last one; the
		// next call promotes it back and carries on walking from there,
		// so the remaining branches are still searched and familyMatches
		// drops any address outside the targeted family.
		st.lastFamilyDiscrepancy = discrepancy
		st.lastDiscrepancy = -1
		st.lastDeviceFlag = true
	}

	if !familyMatches(addr, st) {
		return a.search(ctx, romCmd)
	}

	return true, nil
}

func familyMatches(addr onewire.RomAddress, st *state) bool {
	fam := addr.Family()
	if st.excludeFamilies[fam] {
		return false
	}
	if len(st.targetFamilies) == 0 {
		return true
	}
	return st.targetFamilies[fam]
}

type mismatchedEcho struct {
	want, got byte
}

func (e *mismatchedEcho) Error() string {
	return "search command echo mismatch"
}

func errMismatchedEcho(want, got byte) error {
	return &mismatchedEcho{want: want, got: got}
}
