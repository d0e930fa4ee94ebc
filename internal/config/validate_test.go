// internal/config/validate_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/pump-monitor/internal/pump"
)

// helper to build a minimal valid config quickly
func minimal() *Config {
	return &Config{PLC: PLCConfig{Address: "192.168.1.10"}}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// ---- tests ----

func TestValidate_MinimalUsesBuiltInTable(t *testing.T) {
	cfg := minimal()
	require.NoError(t, Validate(cfg))

	Normalize(cfg)
	assert.Equal(t, pump.DefaultBlock(), cfg.PumpBlock())
	assert.Equal(t, 39, cfg.Block.DB)
	assert.Equal(t, 1, *cfg.PLC.Slot)
	assert.Equal(t, 1000, cfg.Acquisition.IntervalMs)
	assert.Equal(t, 3, cfg.Acquisition.MaxRetries)
	assert.Equal(t, 60, cfg.History.Every)
	assert.True(t, *cfg.Transitions.SuppressOnError)
	assert.Equal(t, ":5000", cfg.HTTP.Listen)
	assert.Equal(t, "pump_events.db", cfg.Store.Path)
}

func TestValidate_DoesNotMutate(t *testing.T) {
	cfg := minimal()
	require.NoError(t, Validate(cfg))

	assert.Nil(t, cfg.Devices)
	assert.Nil(t, cfg.PLC.Slot)
	assert.Zero(t, cfg.Block.Size)
	assert.Zero(t, cfg.Acquisition.IntervalMs)
}

func TestValidate_AddressOrSimulate(t *testing.T) {
	assert.Error(t, Validate(&Config{}))
	assert.NoError(t, Validate(&Config{PLC: PLCConfig{Simulate: true}}))
}

func TestValidate_Rejects(t *testing.T) {
	slot := 40
	status := uint16(2)

	cases := map[string]func(c *Config){
		"rack":              func(c *Config) { c.PLC.Rack = 9 },
		"slot":              func(c *Config) { c.PLC.Slot = &slot },
		"negative retries":  func(c *Config) { c.Acquisition.MaxRetries = -1 },
		"negative history":  func(c *Config) { c.History.Every = -1 },
		"listen":            func(c *Config) { c.HTTP.Listen = "5000" },
		"qos":               func(c *Config) { c.MQTT.QoS = 3 },
		"status w/o mirror": func(c *Config) { c.Mirror.StatusSlot = &status },
		"non-ascii name": func(c *Config) {
			c.Mirror.Endpoint = "127.0.0.1:502"
			c.Mirror.DeviceName = "Pumpé"
		},
		"custom table without size": func(c *Config) {
			c.Devices = []DeviceConfig{{ID: 1, Name: "P1", ReadyBit: 0, RunningBit: 1, TripBit: 2, PressureOffset: 2, SetpointOffset: 6}}
		},
		"unnamed device": func(c *Config) {
			c.Block.Size = 10
			c.Devices = []DeviceConfig{{ID: 1, ReadyBit: 0, RunningBit: 1, TripBit: 2, PressureOffset: 2, SetpointOffset: 6}}
		},
		"real past end": func(c *Config) {
			c.Block.Size = 8
			c.Devices = []DeviceConfig{{ID: 1, Name: "P1", ReadyBit: 0, RunningBit: 1, TripBit: 2, PressureOffset: 2, SetpointOffset: 6}}
		},
		"shared bit": func(c *Config) {
			c.Block.Size = 10
			c.Devices = []DeviceConfig{{ID: 1, Name: "P1", ReadyBit: 1, RunningBit: 1, TripBit: 2, PressureOffset: 2, SetpointOffset: 6}}
		},
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := minimal()
			mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestNormalize_TruncatesMirrorName(t *testing.T) {
	cfg := minimal()
	cfg.Mirror.Endpoint = "127.0.0.1:502"
	cfg.Mirror.DeviceName = "PUMP HOUSE NORTH WING"
	require.NoError(t, Validate(cfg))

	Normalize(cfg)
	assert.Equal(t, "PUMP HOUSE NORTH", cfg.Mirror.DeviceName)
	assert.Equal(t, 5000, cfg.Mirror.TimeoutMs)
}

func TestLoad_CustomTable(t *testing.T) {
	path := writeFile(t, `
plc:
  address: 10.0.0.5
  rack: 0
  slot: 2
block:
  db: 12
  size: 10
  alarm: {byte: 0, bit: 7}
devices:
  - id: 1
    name: FEED PUMP
    flag_byte: 0
    ready_bit: 0
    running_bit: 1
    trip_bit: 2
    pressure_offset: 2
    setpoint_offset: 6
acquisition:
  interval_ms: 250
transitions:
  suppress_on_error: false
mqtt:
  broker: tcp://localhost:1883
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))
	Normalize(cfg)

	b := cfg.PumpBlock()
	assert.Equal(t, 10, b.Size)
	assert.Equal(t, pump.BitRef{Byte: 0, Bit: 7}, b.Alarm)
	require.Len(t, b.Devices, 1)
	assert.Equal(t, "FEED PUMP", b.Devices[0].Name)

	assert.Equal(t, 2, *cfg.PLC.Slot)
	assert.Equal(t, 12, cfg.Block.DB)
	assert.Equal(t, 250, cfg.Acquisition.IntervalMs)
	assert.False(t, *cfg.Transitions.SuppressOnError)
	assert.Equal(t, "pump-monitor", cfg.MQTT.TopicPrefix)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "plc:\n  adress: 10.0.0.5\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Len(t, cfg.Devices, 7)
	assert.NoError(t, cfg.PumpBlock().Check())
}
