// internal/pump/block.go
package pump

import (
	"errors"
	"fmt"
	"math"

	"github.com/robinson/gos7"
)

// realSize is the width of an S7 REAL (IEEE-754, big-endian on the wire).
const realSize = 4

// ErrBlockSize means the controller returned a buffer that does not match the table.
var ErrBlockSize = errors.New("pump: block size mismatch")

// s7 is the S7 value codec. Stateless.
var s7 gos7.Helper

// Block is the layout table of one data block.
type Block struct {
	Size    int
	Alarm   BitRef
	Devices []DeviceLayout
}

// DefaultBlock returns the DB39 table of the plant: 70 bytes, seven pumps,
// global alarm on bit 0 of byte 0.
func DefaultBlock() Block {
	return Block{
		Size:  70,
		Alarm: BitRef{Byte: 0, Bit: 0},
		Devices: []DeviceLayout{
			{ID: 1, Name: "LINE 3&5 UPS FAN COIL UNITS", FlagByte: 0, ReadyBit: 1, RunningBit: 2, TripBit: 3, PressureOffset: 2, SetpointOffset: 6},
			{ID: 2, Name: "CAN Line UPS Room AHU 1", FlagByte: 10, ReadyBit: 0, RunningBit: 1, TripBit: 2, PressureOffset: 12, SetpointOffset: 16},
			{ID: 3, Name: "GREENFIELD LV UPS ROOM", FlagByte: 20, ReadyBit: 0, RunningBit: 1, TripBit: 2, PressureOffset: 22, SetpointOffset: 26},
			{ID: 4, Name: "CAN LINE UPS ROOM AHU 2", FlagByte: 30, ReadyBit: 0, RunningBit: 2, TripBit: 1, PressureOffset: 32, SetpointOffset: 36},
			{ID: 5, Name: "LINE 7 BLOW MOULD SPARE", FlagByte: 40, ReadyBit: 1, RunningBit: 0, TripBit: 2, PressureOffset: 42, SetpointOffset: 46},
			{ID: 6, Name: "GREENFIELD LV UPS ROOM AHU & 2", FlagByte: 50, ReadyBit: 0, RunningBit: 1, TripBit: 2, PressureOffset: 52, SetpointOffset: 56},
			{ID: 7, Name: "LINE 7 BLOWMOULD", FlagByte: 60, ReadyBit: 0, RunningBit: 1, TripBit: 2, PressureOffset: 62, SetpointOffset: 66},
		},
	}
}

// Check verifies every address of the table fits inside Size.
func (b Block) Check() error {
	if b.Size <= 0 {
		return fmt.Errorf("pump: block size must be > 0")
	}
	if len(b.Devices) == 0 {
		return fmt.Errorf("pump: at least one device required")
	}
	if err := b.checkBit("alarm", b.Alarm.Byte, b.Alarm.Bit); err != nil {
		return err
	}

	seen := make(map[int]bool, len(b.Devices))
	for _, d := range b.Devices {
		if seen[d.ID] {
			return fmt.Errorf("pump: duplicate device id %d", d.ID)
		}
		seen[d.ID] = true

		name := fmt.Sprintf("device %d", d.ID)
		for _, bit := range []struct {
			what string
			pos  uint8
		}{
			{"ready", d.ReadyBit},
			{"running", d.RunningBit},
			{"trip", d.TripBit},
		} {
			if err := b.checkBit(name+" "+bit.what, d.FlagByte, bit.pos); err != nil {
				return err
			}
		}
		if d.ReadyBit == d.RunningBit || d.ReadyBit == d.TripBit || d.RunningBit == d.TripBit {
			return fmt.Errorf("pump: %s: ready/running/trip bits must be distinct", name)
		}
		if err := b.checkReal(name+" pressure", d.PressureOffset); err != nil {
			return err
		}
		if err := b.checkReal(name+" setpoint", d.SetpointOffset); err != nil {
			return err
		}
	}
	return nil
}

func (b Block) checkBit(what string, byteOff int, bit uint8) error {
	if byteOff < 0 || byteOff >= b.Size {
		return fmt.Errorf("pump: %s byte %d outside block of %d bytes", what, byteOff, b.Size)
	}
	if bit > 7 {
		return fmt.Errorf("pump: %s bit %d out of range 0-7", what, bit)
	}
	return nil
}

func (b Block) checkReal(what string, off int) error {
	if off < 0 || off+realSize > b.Size {
		return fmt.Errorf("pump: %s offset %d outside block of %d bytes", what, off, b.Size)
	}
	return nil
}

// Decode interprets one raw block. Pure and deterministic; the table must have
// passed Check. A buffer of the wrong length is the only failure.
func (b Block) Decode(raw []byte) ([]Reading, bool, error) {
	if len(raw) != b.Size {
		return nil, false, fmt.Errorf("%w: got %d bytes, want %d", ErrBlockSize, len(raw), b.Size)
	}

	out := make([]Reading, len(b.Devices))
	for i, d := range b.Devices {
		flags := raw[d.FlagByte]

		r := Reading{
			ID:       d.ID,
			Name:     d.Name,
			Ready:    s7.GetBoolAt(flags, uint(d.ReadyBit)),
			Running:  s7.GetBoolAt(flags, uint(d.RunningBit)),
			Trip:     s7.GetBoolAt(flags, uint(d.TripBit)),
			Pressure: round2(s7.GetRealAt(raw, d.PressureOffset)),
			Setpoint: round2(s7.GetRealAt(raw, d.SetpointOffset)),
		}
		r.Status = Resolve(r.Ready, r.Running, r.Trip)
		out[i] = r
	}

	alarm := s7.GetBoolAt(raw[b.Alarm.Byte], uint(b.Alarm.Bit))
	return out, alarm, nil
}

// Encode is the inverse of Decode. Readings are matched to layouts by position.
func (b Block) Encode(readings []Reading, alarm bool) []byte {
	raw := make([]byte, b.Size)

	for i, d := range b.Devices {
		if i >= len(readings) {
			break
		}
		r := readings[i]

		f := raw[d.FlagByte]
		f = s7.SetBoolAt(f, uint(d.ReadyBit), r.Ready)
		f = s7.SetBoolAt(f, uint(d.RunningBit), r.Running)
		f = s7.SetBoolAt(f, uint(d.TripBit), r.Trip)
		raw[d.FlagByte] = f

		s7.SetRealAt(raw, d.PressureOffset, float32(r.Pressure))
		s7.SetRealAt(raw, d.SetpointOffset, float32(r.Setpoint))
	}

	raw[b.Alarm.Byte] = s7.SetBoolAt(raw[b.Alarm.Byte], uint(b.Alarm.Bit), alarm)
	return raw
}

// ErrorReadings returns the zero-valued readings of a failed cycle.
func (b Block) ErrorReadings() []Reading {
	out := make([]Reading, len(b.Devices))
	for i, d := range b.Devices {
		out[i] = Reading{ID: d.ID, Name: d.Name, Status: StatusUnknown}
	}
	return out
}

// round2 rounds to two decimals. Non-finite values become 0 so snapshots
// stay JSON-encodable.
func round2(v float32) float64 {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return math.Round(f*100) / 100
}
