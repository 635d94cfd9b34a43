package onewire

import "fmt"

// Kind classifies the errors this driver can return. It names a kind of
// failure, not a concrete type: every error returned by the root package
// and adapters/ds2480 is an *Error with one of these Kinds. The
// devices/ds18x20 container returns plain errors of its own.
type Kind int

const (
	// KindIO is an underlying serial read/write failure, timeout, or a
	// port that isn't open.
	KindIO Kind = iota
	// KindProtocolEcho is an adapter reply with wrong reserved bits,
	// wrong length, or one that disagrees with the command sent.
	KindProtocolEcho
	// KindNoPresence is a 1-Wire reset that returned no-presence when a
	// slave was required.
	KindNoPresence
	// KindBusShort is a 1-Wire reset that returned a short condition.
	KindBusShort
	// KindCRC is a scratchpad/page/ROM CRC verification failure.
	KindCRC
	// KindNotSupported is a capability not available on this adapter.
	KindNotSupported
	// KindInvalidArgument is a programming error: out-of-range value,
	// mismatched-adapter path operation, and the like.
	KindInvalidArgument
	// KindAdapterLost means repeated verify failures; the port should be
	// closed and reopened before further use.
	KindAdapterLost
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindProtocolEcho:
		return "protocol-echo"
	case KindNoPresence:
		return "no-presence"
	case KindBusShort:
		return "bus-short"
	case KindCRC:
		return "crc"
	case KindNotSupported:
		return "not-supported"
	case KindInvalidArgument:
		return "invalid-argument"
	case KindAdapterLost:
		return "adapter-lost"
	default:
		return "unknown"
	}
}

// Error is the single error type this module returns. It carries the
// target RomAddress and port name when applicable, so a caller can log or
// restart the right subtree.
type Error struct {
	Kind    Kind
	Op      string
	Port    string
	Address *RomAddress
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("onewire: %s: %s", e.Op, e.Kind)
	if e.Port != "" {
		msg += fmt.Sprintf(" port=%s", e.Port)
	}
	if e.Address != nil {
		msg += fmt.Sprintf(" addr=%s", e.Address.String())
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same Kind, so callers
// can write errors.Is(err, &onewire.Error{Kind: onewire.KindNoPresence}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds an *Error for op/kind, optionally wrapping cause.
func NewError(op string, kind Kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

// WithPort returns a copy of e annotated with the port name.
func (e *Error) WithPort(port string) *Error {
	c := *e
	c.Port = port
	return &c
}

// WithAddress returns a copy of e annotated with the target address.
func (e *Error) WithAddress(addr RomAddress) *Error {
	c := *e
	a := addr
	c.Address = &a
	return &c
}

// Sentinel kind markers for errors.Is matching, e.g.:
//
//	if errors.Is(err, onewire.ErrNoPresence) { ... }
var (
	ErrIO              = &Error{Kind: KindIO}
	ErrProtocolEcho    = &Error{Kind: KindProtocolEcho}
	ErrNoPresence      = &Error{Kind: KindNoPresence}
	ErrBusShort        = &Error{Kind: KindBusShort}
	ErrCRC             = &Error{Kind: KindCRC}
	ErrNotSupported    = &Error{Kind: KindNotSupported}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrAdapterLost     = &Error{Kind: KindAdapterLost}
)
