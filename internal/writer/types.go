// internal/writer/types.go
package writer

import "github.com/tamzrod/pump-monitor/internal/pump"

// Register map of one pump inside the mirror. Fixed; not configurable.
const (
	RegsPerDevice = 8

	RegStatus       = 0 // pump.Status code
	RegFlags        = 1 // bit0 ready, bit1 running, bit2 trip
	RegPressure     = 2 // float32, two words, high word first
	RegSetpoint     = 4 // float32, two words, high word first
	RegPressureX100 = 6 // pressure * 100, saturated to 0..65535
	RegDeviceID     = 7
)

// Coil map: coil 0 is the global alarm, then three coils per pump.
const (
	CoilAlarm        = 0
	CoilsPerDevice   = 3
	CoilDevicesStart = 1
)

// StatusPlan places the link status block. Optional.
type StatusPlan struct {
	UnitID     uint8
	BaseSlot   uint16
	DeviceName string
}

// Plan is the fully-built write plan of the mirror.
type Plan struct {
	Endpoint    string
	UnitID      uint8
	BaseAddress uint16
	Devices     []pump.DeviceLayout
	Status      *StatusPlan
}

// Writer republishes snapshots into a target.
type Writer interface {
	Write(snap pump.Snapshot) error
}
