// internal/pump/types.go
package pump

import (
	"fmt"
	"time"
)

// Status is the categorical state shown for one pump.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusReady
	StatusRunning
	StatusTrip
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "READY"
	case StatusRunning:
		return "RUNNING"
	case StatusTrip:
		return "TRIP"
	default:
		return "UNKNOWN"
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "READY":
		*s = StatusReady
	case "RUNNING":
		*s = StatusRunning
	case "TRIP":
		*s = StatusTrip
	case "UNKNOWN", "":
		*s = StatusUnknown
	default:
		return fmt.Errorf("pump: unknown status %q", b)
	}
	return nil
}

// Fault tells why a snapshot carries no live data.
type Fault uint8

const (
	FaultNone Fault = iota
	FaultConnect
	FaultBusy
	FaultLinkLost
	FaultProtocol
)

func (f Fault) String() string {
	switch f {
	case FaultNone:
		return ""
	case FaultConnect:
		return "connect"
	case FaultBusy:
		return "busy"
	case FaultLinkLost:
		return "link_lost"
	default:
		return "protocol"
	}
}

func (f Fault) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// BitRef addresses one bit of the block.
type BitRef struct {
	Byte int   `yaml:"byte" json:"byte"`
	Bit  uint8 `yaml:"bit" json:"bit"`
}

// DeviceLayout is where one pump lives in the block.
// Bit positions differ per pump; they are wired, not conventional.
type DeviceLayout struct {
	ID   int
	Name string

	FlagByte   int
	ReadyBit   uint8
	RunningBit uint8
	TripBit    uint8

	PressureOffset int
	SetpointOffset int
}

// Reading is one pump's decoded state for one cycle.
type Reading struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Ready    bool    `json:"ready"`
	Running  bool    `json:"running"`
	Trip     bool    `json:"trip"`
	Pressure float64 `json:"pressure"`
	Setpoint float64 `json:"setpoint"`
	Status   Status  `json:"status"`
}

// Snapshot is one cycle's complete reading of all pumps.
// Immutable once published; Readings must not be modified by consumers.
type Snapshot struct {
	At        time.Time `json:"timestamp"`
	Connected bool      `json:"connected"`
	Alarm     bool      `json:"alarm"`
	Fault     Fault     `json:"fault,omitempty"`
	Error     string    `json:"error,omitempty"`
	Readings  []Reading `json:"pumps"`
}

// OK reports whether the snapshot carries live data.
func (s Snapshot) OK() bool { return s.Fault == FaultNone && s.Connected }
