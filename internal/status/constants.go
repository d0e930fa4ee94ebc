// internal/status/constants.go
package status

import "github.com/tamzrod/pump-monitor/internal/pump"

// Link status block layout constants.
// These values define the register protocol and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerDevice is the fixed number of registers per status block.
const SlotsPerDevice = 20

// ---- SLOT INDICES ----

const (
	SlotHealthCode     = 0
	SlotLastErrorCode  = 1
	SlotSecondsInError = 2
)

// Slots 3-10 are reserved.
const (
	SlotReservedStart = 3
	SlotReservedEnd   = 10
)

// ---- DEVICE NAME ----

// The name always sits at the END of the block.
const (
	SlotDeviceNameStart = 11
	SlotDeviceNameSlots = 8
	SlotDeviceNameEnd   = SlotDeviceNameStart + SlotDeviceNameSlots - 1
	DeviceNameMaxChars  = 16
)

// MaxSecondsInError is where seconds_in_error saturates. It never wraps.
const MaxSecondsInError = 65535

// ---- HEALTH CODES ----

const (
	HealthUnknown  uint16 = 0
	HealthOK       uint16 = 1
	HealthError    uint16 = 2
	HealthStale    uint16 = 3
	HealthDisabled uint16 = 4
)

// ---- ERROR CODES ----

// ErrorCode maps an acquisition fault to last_error_code.
func ErrorCode(f pump.Fault) uint16 {
	switch f {
	case pump.FaultNone:
		return 0
	case pump.FaultConnect:
		return 1
	case pump.FaultBusy:
		return 2
	case pump.FaultLinkLost:
		return 3
	case pump.FaultProtocol:
		return 4
	default:
		return 0xFFFF
	}
}
