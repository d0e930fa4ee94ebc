// internal/status/tracker.go
package status

import "github.com/tamzrod/pump-monitor/internal/pump"

// Tracker derives the link status block from the snapshot stream.
// Runner-owned: not safe for concurrent use.
type Tracker struct {
	cur Snapshot
}

// NewTracker starts in the boot state (health unknown).
func NewTracker() *Tracker {
	return &Tracker{cur: Snapshot{Health: HealthUnknown}}
}

func (t *Tracker) Current() Snapshot { return t.cur }

// Observe folds one acquisition result in and reports whether the block changed.
// seconds_in_error resets on recovery; it only advances on Tick.
func (t *Tracker) Observe(snap pump.Snapshot) (Snapshot, bool) {
	next := t.cur
	if snap.OK() {
		next = Snapshot{Health: HealthOK}
	} else {
		next.Health = HealthError
		next.LastErrorCode = ErrorCode(snap.Fault)
		if next.LastErrorCode == 0 {
			// disconnected without a classified fault
			next.LastErrorCode = ErrorCode(pump.FaultConnect)
		}
	}

	changed := next != t.cur
	t.cur = next
	return next, changed
}

// Tick advances seconds_in_error by one while not healthy. Call at 1 Hz.
func (t *Tracker) Tick() (Snapshot, bool) {
	if t.cur.Healthy() || t.cur.SecondsInError >= MaxSecondsInError {
		return t.cur, false
	}
	t.cur.SecondsInError++
	return t.cur, true
}
