package ds2480

import (
	"context"
	"fmt"
	"time"

	"github.com/onewirenet/ds2480"
)

// Framer owns the command-mode/data-mode byte framing the DS2480B protocol
// is built on: which mode the chip is currently listening in, how to switch
// it, how 0xE3 must be escaped inside a data-mode stream, and the
// master-reset handshake that gets the chip into a known state after power-up
// or after too many verify failures.
type Framer struct {
	link  *Link
	state *state
}

func newFramer(link *Link, st *state) *Framer {
	return &Framer{link: link, state: st}
}

// ensureMode returns the mode-switch byte to prepend if the chip isn't
// already in want (nil otherwise), and records want as the current mode.
func (f *Framer) ensureMode(want chipMode) []byte {
	if f.state.mode == want {
		return nil
	}
	f.state.mode = want
	if want == modeIsCommand {
		return []byte{modeCommand}
	}
	return []byte{modeData}
}

// escapeData doubles every literal 0xE3 in data so the chip can't mistake
// it for a mode-switch byte.
func escapeData(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		out = append(out, b)
		if b == modeCommand {
			out = append(out, b)
		}
	}
	return out
}

// SendCommand writes a single command-mode byte and reads back replyLen
// reply bytes.
func (f *Framer) SendCommand(ctx context.Context, cmd byte, replyLen int) ([]byte, error) {
	tx := append(f.ensureMode(modeIsCommand), cmd)
	if err := f.link.Flush(); err != nil {
		return nil, err
	}
	if err := f.link.Write(tx); err != nil {
		return nil, err
	}
	if replyLen == 0 {
		return nil, nil
	}
	rx := make([]byte, replyLen)
	if err := f.link.ReadFull(ctx, rx); err != nil {
		return nil, err
	}
	return rx, nil
}

// SendCommands writes several command-mode bytes back to back and reads
// back one reply byte per command (the shape every DS2480B command-mode
// byte replies with).
func (f *Framer) SendCommands(ctx context.Context, cmds []byte) ([]byte, error) {
	tx := append(f.ensureMode(modeIsCommand), cmds...)
	if err := f.link.Flush(); err != nil {
		return nil, err
	}
	if err := f.link.Write(tx); err != nil {
		return nil, err
	}
	rx := make([]byte, len(cmds))
	if err := f.link.ReadFull(ctx, rx); err != nil {
		return nil, err
	}
	return rx, nil
}

// SendData writes data-mode bytes (escaping any literal 0xE3) and reads
// back one echo byte per input byte — the chip always echoes data-mode
// traffic, bit for bit, whether it was a read or a write slot.
func (f *Framer) SendData(ctx context.Context, data []byte) ([]byte, error) {
	tx := append(f.ensureMode(modeIsData), escapeData(data)...)
	if err := f.link.Flush(); err != nil {
		return nil, err
	}
	if err := f.link.Write(tx); err != nil {
		return nil, err
	}
	rx := make([]byte, len(data))
	if err := f.link.ReadFull(ctx, rx); err != nil {
		return nil, err
	}
	return rx, nil
}

// RawExchange writes tx exactly as given — the caller is responsible for
// embedding any mode-switch bytes itself — and reads back rxLen bytes,
// leaving anything further unread (it will be discarded by the next
// operation's Flush). finalMode records what mode the chip is left in, so
// later calls don't re-send a redundant mode switch. Its callers are the
// search command sequence, which interleaves data-mode and command-mode
// bytes in a single transaction where only the data-mode echoes matter,
// and the overdrive strong-access presence check.
func (f *Framer) RawExchange(ctx context.Context, tx []byte, rxLen int, finalMode chipMode) ([]byte, error) {
	if err := f.link.Flush(); err != nil {
		return nil, err
	}
	if err := f.link.Write(tx); err != nil {
		return nil, err
	}
	f.state.mode = finalMode
	if rxLen == 0 {
		return nil, nil
	}
	rx := make([]byte, rxLen)
	if err := f.link.ReadFull(ctx, rx); err != nil {
		return nil, err
	}
	return rx, nil
}

// masterResetOnce asserts BREAK for at least 2ms, flushes whatever noise
// that produced on the line, then writes the bare reset timing byte. The
// chip produces no reply to this byte — it is a line-timing signal, not a
// framed command — so nothing is read back here. Verify is what actually
// confirms the chip came up correctly.
func (f *Framer) masterResetOnce(ctx context.Context) error {
	if err := f.link.SetBaud(9600); err != nil {
		return err
	}
	if err := f.link.SendBreak(2 * time.Millisecond); err != nil {
		return err
	}
	if err := f.link.Flush(); err != nil {
		return err
	}

	f.state.speed = onewire.SpeedRegular
	f.state.mode = modeIsCommand
	tx := []byte{cmdReset | (speedBits[f.state.speed] << 2)}
	if err := f.link.Write(tx); err != nil {
		return err
	}
	return f.link.Flush()
}

// MasterReset runs the BREAK handshake that puts the chip into a known
// command-mode state at 9600 baud, then confirms it landed there with
// Verify. A failed Verify retries the handshake once; if that also fails it
// escalates to a power-cycle before a final Verify attempt.
func (f *Framer) MasterReset(ctx context.Context) error {
	if err := f.masterResetOnce(ctx); err != nil {
		return err
	}
	if err := f.Verify(ctx); err == nil {
		return nil
	}

	if err := f.masterResetOnce(ctx); err != nil {
		return err
	}
	if err := f.Verify(ctx); err == nil {
		return nil
	}

	if err := f.link.PowerCycle(); err != nil {
		return err
	}
	f.state.mode = modeUnknown
	if err := f.masterResetOnce(ctx); err != nil {
		return err
	}
	return f.Verify(ctx)
}

// Verify confirms the chip is alive and listening at the baud this Link
// believes it's at: it sets the pull-down slew rate, write-1-low time, and
// sample-offset/write-0-recovery time for the current speed, reads the baud
// parameter back, and runs a single read-bit 1-Wire operation, all in one
// burst. A verified chip echoes its own baud-rate code and a bit-I/O reply
// with the fixed 0b1001 header nibble.
func (f *Framer) Verify(ctx context.Context) error {
	timing := verifyTiming[f.state.speed]
	cmds := []byte{
		cmdConfig | (cfgPDSRC << 4) | (timing.slew << 1),
		cmdConfig | (cfgW1LT << 4) | (timing.write1Low << 1),
		cmdConfig | (cfgW0RT << 4) | (timing.sampleOffset << 1),
		cmdConfig | (cfgREAD << 4) | (cfgBAUD << 1),
		cmdBitIO | (1 << 4) | (speedBits[f.state.speed] << 2),
	}
	reply, err := f.SendCommands(ctx, cmds)
	if err != nil {
		return err
	}

	baudCode, ok := baudParamCode[f.link.Baud()]
	if !ok {
		return ds2480Err("verify", onewire.KindInvalidArgument,
			fmt.Errorf("no parameter code for baud %d", f.link.Baud()))
	}
	if reply[3]&0xF1 != 0 || reply[3]&0x0E != baudCode<<1 {
		return ds2480Err("verify", onewire.KindProtocolEcho,
			fmt.Errorf("baud read-back mismatch: 0x%02x", reply[3]))
	}
	if reply[4]&0xF0 != 0x90 {
		return ds2480Err("verify", onewire.KindProtocolEcho,
			fmt.Errorf("unexpected bit-io reply 0x%02x", reply[4]))
	}
	return nil
}
