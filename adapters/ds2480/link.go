// Package ds2480 implements the DS2480B serial-to-1-Wire adapter protocol:
// command/data mode framing, the master-reset handshake, packet building,
// and the 1-Wire search algorithm, wired together into an onewire.Adapter.
package ds2480

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"

	"github.com/onewirenet/ds2480"
)

// serialPort is the slice of *serial.Port this package actually uses. It
// exists so tests can swap in a simulated DS2480B without opening a real
// port; *serial.Port satisfies it with no changes.
type serialPort interface {
	io.ReadWriteCloser
	Flush() error
}

// Link is the serial transport underneath the DS2480B framer. It owns the
// open port, tracks the baud rate the chip is currently listening at (so
// SetBaud is a no-op when nothing changed), and applies the adapter's
// read-timeout formula.
type Link struct {
	portName string
	byteBang bool

	port serialPort
	baud int

	// openPort opens the transport at the given baud. Defaults to the real
	// tarm/serial driver; tests override it to attach a fake chip.
	openPort func(name string, baud int) (serialPort, error)

	// Logf, if set, receives one line per wire-level operation. nil by
	// default; nothing in this module sets it.
	Logf func(format string, args ...interface{})
}

// NewLink creates a Link for portName. byteBang selects the read strategy
// SerialLink.readWithTimeout used in the original adapter: when true, bytes
// are read one at a time (needed on some USB-serial bridges whose driver
// buffers short reads badly); when false, a single buffered read is issued
// for the whole expected length.
func NewLink(portName string, byteBang bool) *Link {
	return &Link{portName: portName, byteBang: byteBang, openPort: openRealSerial}
}

func openRealSerial(name string, baud int) (serialPort, error) {
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: 0}
	return serial.OpenPort(cfg)
}

func (l *Link) logf(format string, args ...interface{}) {
	if l.Logf != nil {
		l.Logf(format, args...)
	}
}

// Open opens the serial port at baud 9600, 8N1 — the speed every DS2480B
// powers up listening at.
func (l *Link) Open() error {
	if l.port != nil {
		return ds2480Err("open", onewire.KindInvalidArgument, fmt.Errorf("port already open"))
	}
	port, err := l.openPort(l.portName, 9600)
	if err != nil {
		return ds2480Err("open", onewire.KindIO, err).WithPort(l.portName)
	}
	l.port = port
	l.baud = 9600
	return nil
}

// Close closes the underlying port. Closing twice is a no-op.
func (l *Link) Close() error {
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	if err != nil {
		return ds2480Err("close", onewire.KindIO, err).WithPort(l.portName)
	}
	return nil
}

// Flush discards unread input. The framer calls this before every request
// so a stale byte from a prior aborted transaction can never be mistaken
// for part of the next reply.
func (l *Link) Flush() error {
	if err := l.port.Flush(); err != nil {
		return ds2480Err("flush", onewire.KindIO, err).WithPort(l.portName)
	}
	return nil
}

// Write writes all of tx to the port.
func (l *Link) Write(tx []byte) error {
	l.logf("ds2480: tx % x", tx)
	n, err := l.port.Write(tx)
	if err != nil {
		return ds2480Err("write", onewire.KindIO, err).WithPort(l.portName)
	}
	if n != len(tx) {
		return ds2480Err("write", onewire.KindIO, fmt.Errorf("short write: %d of %d bytes", n, len(tx)))
	}
	return nil
}

// readTimeout is the serial wait budget for reading n bytes: 20ms per byte
// plus an 800ms floor, matching the timing the adapter's firmware needs to
// finish a bus operation and queue its reply.
func readTimeout(n int) time.Duration {
	budget := time.Duration(n)*20*time.Millisecond + 800*time.Millisecond
	return budget
}

// ReadFull reads exactly len(rx) bytes, bounded by ctx and by the
// length-scaled timeout, into rx.
func (l *Link) ReadFull(ctx context.Context, rx []byte) error {
	if len(rx) == 0 {
		return nil
	}

	deadline := time.Now().Add(readTimeout(len(rx)))
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	errCh := make(chan error, 1)
	go func() {
		if l.byteBang {
			errCh <- l.readByteBang(rx)
		} else {
			_, err := io.ReadFull(l.port, rx)
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return ds2480Err("read", onewire.KindIO, err).WithPort(l.portName)
		}
		l.logf("ds2480: rx % x", rx)
		return nil
	case <-time.After(time.Until(deadline)):
		return ds2480Err("read", onewire.KindIO, fmt.Errorf("timed out waiting for %d bytes", len(rx))).WithPort(l.portName)
	case <-ctx.Done():
		return ds2480Err("read", onewire.KindIO, ctx.Err()).WithPort(l.portName)
	}
}

// readByteBang reads rx one byte at a time. Some USB-serial bridges deliver
// bytes from a DS2480B reply in single-byte USB frames; issuing one read
// per byte avoids the bridge's driver coalescing a short final read into a
// timeout instead of a partial success.
func (l *Link) readByteBang(rx []byte) error {
	for i := range rx {
		if _, err := io.ReadFull(l.port, rx[i:i+1]); err != nil {
			return err
		}
	}
	return nil
}

// SendBreak asserts a true line break for at least holdFor, the first step
// of the master-reset handshake. tarm/serial exposes no break primitive, so
// it is emulated the way a byte-banging host has to: the port is dropped to
// a baud low enough that writing a single zero byte holds the line low for
// longer than holdFor, then restored.
func (l *Link) SendBreak(holdFor time.Duration) error {
	// At 300 baud a 0x00 byte (1 start + 8 data + 1 stop, all but the stop
	// bit low) holds the line low for 9 bit-times: ~30ms. That
	// comfortably covers the >=2ms the chip requires.
	breakBaud := 300
	if err := l.setBaudLocked(breakBaud); err != nil {
		return err
	}
	if err := l.Write([]byte{0x00}); err != nil {
		return err
	}
	time.Sleep(holdFor)
	return l.setBaudLocked(9600)
}

// SetBaud reprograms the port's baud rate. It is a no-op if baud already
// matches, since PacketBuilder calls it before every streaming operation.
func (l *Link) SetBaud(baud int) error {
	return l.setBaudLocked(baud)
}

func (l *Link) setBaudLocked(baud int) error {
	if l.baud == baud {
		return nil
	}
	if err := l.port.Close(); err != nil {
		return ds2480Err("setBaud", onewire.KindIO, err).WithPort(l.portName)
	}
	port, err := l.openPort(l.portName, baud)
	if err != nil {
		return ds2480Err("setBaud", onewire.KindIO, err).WithPort(l.portName)
	}
	l.port = port
	l.baud = baud
	return nil
}

// Baud returns the baud rate the link believes the chip is listening at.
func (l *Link) Baud() int {
	return l.baud
}

// DropLines closes the port, letting DTR/RTS fall — the drop half of the
// break-level power control. tarm/serial exposes no direct DTR/RTS
// primitive, so closing the port is the closest approximation this
// transport offers; it does not reopen, unlike PowerCycle, so the line
// stays down until the caller re-asserts it.
func (l *Link) DropLines() error {
	if l.port == nil {
		return nil
	}
	if err := l.port.Close(); err != nil {
		return ds2480Err("dropLines", onewire.KindIO, err).WithPort(l.portName)
	}
	l.port = nil
	return nil
}

// PowerCycle drops and reopens the port, approximating the original
// adapter's DTR/RTS power-reset escalation. tarm/serial exposes no DTR/RTS
// control, so a close/reopen at 9600 is the closest equivalent this
// transport can offer; some USB-serial bridges re-power the attached device
// on port close, which is the effect being approximated here.
func (l *Link) PowerCycle() error {
	if l.port != nil {
		_ = l.port.Close()
		l.port = nil
	}
	time.Sleep(300 * time.Millisecond)
	port, err := l.openPort(l.portName, 9600)
	if err != nil {
		return ds2480Err("powerCycle", onewire.KindIO, err).WithPort(l.portName)
	}
	l.port = port
	l.baud = 9600
	return nil
}
