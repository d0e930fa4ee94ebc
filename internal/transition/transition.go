// internal/transition/transition.go
package transition

import (
	"time"

	"github.com/google/uuid"

	"github.com/tamzrod/pump-monitor/internal/pump"
)

// Kind is the edge a pump's trip flag took.
type Kind string

const (
	KindTrip        Kind = "TRIP"
	KindTripCleared Kind = "TRIP_CLEARED"
)

// Event is one trip edge of one pump.
type Event struct {
	ID         string    `json:"id"`
	DeviceID   int       `json:"pump_id"`
	DeviceName string    `json:"pump_name"`
	Kind       Kind      `json:"event_type"`
	Pressure   float64   `json:"pressure"`
	Setpoint   float64   `json:"pressure_setpoint"`
	At         time.Time `json:"timestamp"`
}

// State is the last seen trip flag per device id.
// The zero value means "no pump tripped".
type State map[int]bool

// Clone returns an independent copy.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Detector compares consecutive snapshots.
type Detector struct {
	// SuppressOnError holds the previous state across error snapshots instead of
	// reading their zeroed trip flags as "cleared". A trip still clears on the
	// first live snapshot after the link returns. Connect failures never reach
	// detection in either mode: no block was read, so there is nothing to compare.
	SuppressOnError bool

	newID func() string
}

// Detect returns the events of curr relative to prev and the state to carry forward.
// prev is never modified.
func (d Detector) Detect(prev State, curr pump.Snapshot) ([]Event, State) {
	if curr.Fault == pump.FaultConnect || (d.SuppressOnError && !curr.OK()) {
		return nil, prev.Clone()
	}

	newID := d.newID
	if newID == nil {
		newID = uuid.NewString
	}

	next := make(State, len(curr.Readings))
	var events []Event

	for _, r := range curr.Readings {
		was := prev[r.ID]
		next[r.ID] = r.Trip

		var kind Kind
		switch {
		case r.Trip && !was:
			kind = KindTrip
		case !r.Trip && was:
			kind = KindTripCleared
		default:
			continue
		}

		events = append(events, Event{
			ID:         newID(),
			DeviceID:   r.ID,
			DeviceName: r.Name,
			Kind:       kind,
			Pressure:   r.Pressure,
			Setpoint:   r.Setpoint,
			At:         curr.At,
		})
	}

	return events, next
}
