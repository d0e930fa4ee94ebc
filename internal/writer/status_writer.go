// internal/writer/status_writer.go
package writer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tamzrod/pump-monitor/internal/status"
)

// StatusWriter is the delivery-only contract for the link status block.
// It receives a snapshot and writes it verbatim.
type StatusWriter interface {
	WriteStatus(s status.Snapshot) error
}

// linkStatusWriter writes the block incrementally: a full block (name
// included) on first use and after any failure, single slots otherwise.
type linkStatusWriter struct {
	plan *StatusPlan
	cli  endpointClient

	needFull bool
	last     status.Snapshot
	nameRegs []uint16
}

// NewStatusWriter builds a status writer if the plan opts in.
func NewStatusWriter(plan Plan, cli endpointClient) (StatusWriter, bool) {
	if plan.Status == nil {
		return nil, false
	}
	return &linkStatusWriter{
		plan:     plan.Status,
		cli:      cli,
		needFull: true,
		last:     status.Snapshot{Health: status.HealthUnknown},
		nameRegs: status.EncodeName(plan.Status.DeviceName),
	}, true
}

func (sw *linkStatusWriter) WriteStatus(s status.Snapshot) error {
	if sw.cli == nil {
		return errors.New("status writer: missing client")
	}
	base := sw.plan.BaseSlot * status.SlotsPerDevice

	if sw.needFull {
		if err := sw.cli.WriteRegisters(sw.plan.UnitID, base, s.Block(sw.nameRegs)); err != nil {
			return fmt.Errorf("status writer: full block write failed: %w", err)
		}
		sw.needFull = false
		sw.last = s
		return nil
	}

	slots := []struct {
		name string
		slot uint16
		want uint16
		have *uint16
	}{
		{"health", status.SlotHealthCode, s.Health, &sw.last.Health},
		{"last_error", status.SlotLastErrorCode, s.LastErrorCode, &sw.last.LastErrorCode},
		{"seconds_in_error", status.SlotSecondsInError, s.SecondsInError, &sw.last.SecondsInError},
	}

	var errs []string
	for _, sl := range slots {
		if *sl.have == sl.want {
			continue
		}
		if err := sw.cli.WriteRegisters(sw.plan.UnitID, base+sl.slot, []uint16{sl.want}); err != nil {
			errs = append(errs, fmt.Sprintf("slot%d %s write failed: %v", sl.slot, sl.name, err))
			continue
		}
		*sl.have = sl.want
	}

	if len(errs) > 0 {
		// partial failure: the target may hold anything, re-assert next time
		sw.needFull = true
		return errors.New("status writer: " + strings.Join(errs, " | "))
	}
	return nil
}
