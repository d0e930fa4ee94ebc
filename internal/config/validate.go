// internal/config/validate.go
package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/tamzrod/pump-monitor/internal/pump"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}

	// ------------------------------------------------------------
	// CONTROLLER
	// ------------------------------------------------------------

	if !cfg.PLC.Simulate && strings.TrimSpace(cfg.PLC.Address) == "" {
		return fmt.Errorf("plc: address required (or plc.simulate: true)")
	}
	if cfg.PLC.Rack < 0 || cfg.PLC.Rack > 7 {
		return fmt.Errorf("plc: rack %d out of range 0-7", cfg.PLC.Rack)
	}
	if cfg.PLC.Slot != nil && (*cfg.PLC.Slot < 0 || *cfg.PLC.Slot > 31) {
		return fmt.Errorf("plc: slot %d out of range 0-31", *cfg.PLC.Slot)
	}
	if cfg.PLC.TimeoutMs < 0 || cfg.PLC.IdleTimeoutMs < 0 {
		return fmt.Errorf("plc: timeouts must be >= 0")
	}

	// ------------------------------------------------------------
	// BLOCK GEOMETRY
	// ------------------------------------------------------------

	if cfg.Block.DB < 0 || cfg.Block.Offset < 0 || cfg.Block.Size < 0 {
		return fmt.Errorf("block: db, offset and size must be >= 0")
	}
	if len(cfg.Devices) > 0 && cfg.Block.Size == 0 {
		return fmt.Errorf("block: size required with a custom devices table")
	}
	for _, d := range cfg.Devices {
		if strings.TrimSpace(d.Name) == "" {
			return fmt.Errorf("device %d: name required", d.ID)
		}
	}

	// ------------------------------------------------------------
	// ACQUISITION
	// ------------------------------------------------------------

	a := cfg.Acquisition
	if a.IntervalMs < 0 || a.MaxRetries < 0 || a.RetryDelayMs < 0 || a.ReconnectPauseMs < 0 {
		return fmt.Errorf("acquisition: values must be >= 0")
	}
	if cfg.History.Every < 0 {
		return fmt.Errorf("history: every must be >= 0")
	}

	// ------------------------------------------------------------
	// SURFACES
	// ------------------------------------------------------------

	if cfg.HTTP.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.HTTP.Listen); err != nil {
			return fmt.Errorf("http: listen %q: %w", cfg.HTTP.Listen, err)
		}
	}
	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt: qos %d out of range 0-2", cfg.MQTT.QoS)
	}
	if err := validateMirror(cfg.Mirror); err != nil {
		return err
	}

	// ------------------------------------------------------------
	// EFFECTIVE LAYOUT TABLE (after defaults)
	// ------------------------------------------------------------

	eff := *cfg
	Normalize(&eff)
	if err := eff.PumpBlock().Check(); err != nil {
		return fmt.Errorf("devices: %w", err)
	}

	return nil
}

func validateMirror(m MirrorConfig) error {
	if m.Endpoint == "" {
		if m.StatusSlot != nil {
			return fmt.Errorf("mirror: status_slot is set but no endpoint is defined")
		}
		return nil
	}
	if m.TimeoutMs < 0 {
		return fmt.Errorf("mirror: timeout_ms must be >= 0")
	}

	// device_name sanity (ASCII only)
	for i := 0; i < len(m.DeviceName); i++ {
		if m.DeviceName[i] > 0x7F {
			return fmt.Errorf("mirror: device_name must contain ASCII characters only")
		}
	}
	return nil
}

// PumpBlock builds the layout table. Call on a normalized config.
func (c *Config) PumpBlock() pump.Block {
	b := pump.Block{Size: c.Block.Size}
	if c.Block.Alarm != nil {
		b.Alarm = pump.BitRef{Byte: c.Block.Alarm.Byte, Bit: c.Block.Alarm.Bit}
	}
	for _, d := range c.Devices {
		b.Devices = append(b.Devices, pump.DeviceLayout(d))
	}
	return b
}
