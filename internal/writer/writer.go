// internal/writer/writer.go
package writer

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tamzrod/pump-monitor/internal/pump"
)

// endpointClient is the exact contract the writers use.
type endpointClient interface {
	WriteCoils(unitID uint8, addr uint16, bits []bool) error
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}

type mirrorWriter struct {
	plan Plan
	cli  endpointClient
}

func New(plan Plan, cli endpointClient) Writer {
	return &mirrorWriter{plan: plan, cli: cli}
}

// Write delivers one snapshot: all pump registers in one request, then all coils.
// Error snapshots are mirrored too (UNKNOWN, zeroed); the status block says why.
func (w *mirrorWriter) Write(snap pump.Snapshot) error {
	if w.cli == nil {
		return fmt.Errorf("writer: missing client for endpoint %s", w.plan.Endpoint)
	}

	var errs []string

	regs := EncodeRegisters(w.plan.Devices, snap.Readings)
	if err := w.cli.WriteRegisters(w.plan.UnitID, w.plan.BaseAddress, regs); err != nil {
		errs = append(errs, fmt.Sprintf(
			"registers ep=%s unit=%d addr=%d err=%v",
			w.plan.Endpoint, w.plan.UnitID, w.plan.BaseAddress, err,
		))
	}

	coils := EncodeCoils(w.plan.Devices, snap)
	if err := w.cli.WriteCoils(w.plan.UnitID, w.plan.BaseAddress, coils); err != nil {
		errs = append(errs, fmt.Sprintf(
			"coils ep=%s unit=%d addr=%d err=%v",
			w.plan.Endpoint, w.plan.UnitID, w.plan.BaseAddress, err,
		))
	}

	if len(errs) > 0 {
		return errors.New("writer: " + strings.Join(errs, " | "))
	}
	return nil
}

// EncodeRegisters lays readings out per device slot. Readings are matched by id;
// a device without a reading stays zero.
func EncodeRegisters(devices []pump.DeviceLayout, readings []pump.Reading) []uint16 {
	byID := make(map[int]pump.Reading, len(readings))
	for _, r := range readings {
		byID[r.ID] = r
	}

	regs := make([]uint16, len(devices)*RegsPerDevice)
	for i, d := range devices {
		base := i * RegsPerDevice
		regs[base+RegDeviceID] = uint16(d.ID)

		r, ok := byID[d.ID]
		if !ok {
			continue
		}

		regs[base+RegStatus] = uint16(r.Status)
		regs[base+RegFlags] = flagWord(r)
		putFloat(regs[base+RegPressure:], r.Pressure)
		putFloat(regs[base+RegSetpoint:], r.Setpoint)
		regs[base+RegPressureX100] = scaled(r.Pressure)
	}
	return regs
}

// EncodeCoils returns the alarm coil followed by ready/running/trip per device.
func EncodeCoils(devices []pump.DeviceLayout, snap pump.Snapshot) []bool {
	byID := make(map[int]pump.Reading, len(snap.Readings))
	for _, r := range snap.Readings {
		byID[r.ID] = r
	}

	coils := make([]bool, CoilDevicesStart+len(devices)*CoilsPerDevice)
	coils[CoilAlarm] = snap.Alarm
	for i, d := range devices {
		r := byID[d.ID]
		at := CoilDevicesStart + i*CoilsPerDevice
		coils[at] = r.Ready
		coils[at+1] = r.Running
		coils[at+2] = r.Trip
	}
	return coils
}

func flagWord(r pump.Reading) uint16 {
	var w uint16
	if r.Ready {
		w |= 1 << 0
	}
	if r.Running {
		w |= 1 << 1
	}
	if r.Trip {
		w |= 1 << 2
	}
	return w
}

func putFloat(dst []uint16, v float64) {
	bits := math.Float32bits(float32(v))
	dst[0] = uint16(bits >> 16)
	dst[1] = uint16(bits)
}

func scaled(v float64) uint16 {
	x := math.Round(v * 100)
	switch {
	case math.IsNaN(x) || x <= 0:
		return 0
	case x >= math.MaxUint16:
		return math.MaxUint16
	default:
		return uint16(x)
	}
}
