// internal/poller/types.go
package poller

import (
	"time"

	"github.com/tamzrod/pump-monitor/internal/pump"
)

// State is the connection state of the acquisition loop.
type State int32

const (
	StateDisconnected State = iota
	StateConnected
	StateReading
	StateErrorBackoff
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateReading:
		return "READING"
	case StateErrorBackoff:
		return "ERROR_BACKOFF"
	default:
		return "DISCONNECTED"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Config is the minimal runtime config the poller needs.
type Config struct {
	Interval time.Duration

	// Geometry of the one read per cycle.
	BlockID int
	Offset  int
	Block   pump.Block

	// MaxRetries is the number of read attempts per cycle (not extra retries).
	MaxRetries     int
	RetryDelay     time.Duration
	ReconnectPause time.Duration
}
