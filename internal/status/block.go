// internal/status/block.go
package status

// Snapshot is the live part of the link status block: what the mirror
// reports about the controller link, not about any pump.
type Snapshot struct {
	Health         uint16
	LastErrorCode  uint16
	SecondsInError uint16
}

func (s Snapshot) Healthy() bool { return s.Health == HealthOK }

// Block renders the full status block. name comes from EncodeName and may be nil.
func (s Snapshot) Block(name []uint16) []uint16 {
	regs := make([]uint16, SlotsPerDevice)
	regs[SlotHealthCode] = s.Health
	regs[SlotLastErrorCode] = s.LastErrorCode
	regs[SlotSecondsInError] = s.SecondsInError
	copy(regs[SlotDeviceNameStart:SlotDeviceNameEnd+1], name)
	return regs
}

// EncodeName packs up to 16 ASCII characters into the 8 name slots,
// two per register, high byte first. Non-printable bytes become '?'.
func EncodeName(name string) []uint16 {
	out := make([]uint16, SlotDeviceNameSlots)

	b := []byte(name)
	if len(b) > DeviceNameMaxChars {
		b = b[:DeviceNameMaxChars]
	}
	for i := 0; i < len(b); i += 2 {
		hi, lo := printable(b[i]), byte(0)
		if i+1 < len(b) {
			lo = printable(b[i+1])
		}
		out[i/2] = uint16(hi)<<8 | uint16(lo)
	}
	return out
}

func printable(c byte) byte {
	if c < 0x20 || c > 0x7E {
		return '?'
	}
	return c
}
