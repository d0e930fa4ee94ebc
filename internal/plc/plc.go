// internal/plc/plc.go
package plc

import (
	"context"
	"errors"
	"fmt"
)

// Session is one open connection to a controller.
// Implementations are NOT required to be safe for concurrent use:
// the poller serializes every call.
type Session interface {
	// ReadRange reads length bytes of data block `block` starting at offset.
	// Errors must be classifiable via KindOf.
	ReadRange(block, offset, length int) ([]byte, error)

	// Connected reports whether the transport is still believed to be alive.
	Connected() bool

	Close() error
}

// Dialer opens a new session. ONE attempt per call, no retries.
type Dialer func(ctx context.Context) (Session, error)

// Kind classifies a read failure for the retry state machine.
type Kind int

const (
	// KindOther aborts the cycle without retry.
	KindOther Kind = iota
	// KindBusy means the controller refused the request for now (job pending).
	KindBusy
	// KindLinkLost means the transport is gone and the session must be reopened.
	KindLinkLost
)

func (k Kind) String() string {
	switch k {
	case KindBusy:
		return "busy"
	case KindLinkLost:
		return "link_lost"
	default:
		return "other"
	}
}

// ErrNotConnected is returned by sessions used after their transport died.
var ErrNotConnected = errors.New("plc: not connected")

// ReadError is the only error shape consumers of this package inspect.
type ReadError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *ReadError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("plc %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("plc %s (%s): %v", e.Kind, e.Op, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Busy marks err as a transient busy response.
func Busy(op string, err error) error { return classified(KindBusy, op, err) }

// LinkLost marks err as a transport failure.
func LinkLost(op string, err error) error { return classified(KindLinkLost, op, err) }

// Other marks err as a non-retryable protocol failure.
func Other(op string, err error) error { return classified(KindOther, op, err) }

func classified(k Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ReadError{Kind: k, Op: op, Err: err}
}

// KindOf returns the classification of err.
// Unclassified errors are KindOther, except ErrNotConnected which is KindLinkLost.
func KindOf(err error) Kind {
	var re *ReadError
	if errors.As(err, &re) {
		return re.Kind
	}
	if errors.Is(err, ErrNotConnected) {
		return KindLinkLost
	}
	return KindOther
}
