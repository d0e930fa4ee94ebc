// internal/pump/resolve.go
package pump

// Resolve maps the three lamp flags to one status.
// First match wins: ready, then running, then trip.
// More than one flag set is physically unexpected and simply resolves by that order.
func Resolve(ready, running, trip bool) Status {
	switch {
	case ready:
		return StatusReady
	case running:
		return StatusRunning
	case trip:
		return StatusTrip
	default:
		return StatusUnknown
	}
}
