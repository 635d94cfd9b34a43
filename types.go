package onewire

// Speed is the 1-Wire signalling speed class. Regular is the adapter's
// state after any master reset.
type Speed int

const (
	SpeedRegular Speed = iota
	SpeedFlex
	SpeedOverdrive
)

func (s Speed) String() string {
	switch s {
	case SpeedRegular:
		return "regular"
	case SpeedFlex:
		return "flex"
	case SpeedOverdrive:
		return "overdrive"
	default:
		return "unknown"
	}
}

// PowerLevel is the current drive state of the 1-Wire line.
type PowerLevel int

const (
	PowerNormal PowerLevel = iota
	PowerStrongPullup
	PowerBreak
	PowerProgramPulse
)

func (p PowerLevel) String() string {
	switch p {
	case PowerNormal:
		return "normal"
	case PowerStrongPullup:
		return "strong-pullup"
	case PowerBreak:
		return "break"
	case PowerProgramPulse:
		return "program-pulse"
	default:
		return "unknown"
	}
}

// PowerArming controls when a requested power-level change takes effect.
type PowerArming int

const (
	ArmNow PowerArming = iota
	ArmAfterNextBit
	ArmAfterNextByte
)

// ResetResult is the outcome of a 1-Wire reset pulse.
type ResetResult int

const (
	ResetNoPresence ResetResult = iota
	ResetPresence
	ResetAlarm
	ResetShort
)

func (r ResetResult) String() string {
	switch r {
	case ResetNoPresence:
		return "no-presence"
	case ResetPresence:
		return "presence"
	case ResetAlarm:
		return "alarm"
	case ResetShort:
		return "short"
	default:
		return "unknown"
	}
}
