// internal/config/config.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	PLC         PLCConfig         `yaml:"plc"`
	Block       BlockConfig       `yaml:"block"`
	Devices     []DeviceConfig    `yaml:"devices"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Transitions TransitionConfig  `yaml:"transitions"`
	History     HistoryConfig     `yaml:"history"`
	Store       StoreConfig       `yaml:"store"`
	HTTP        HTTPConfig        `yaml:"http"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Mirror      MirrorConfig      `yaml:"mirror"`
}

// ---- CONTROLLER ----

type PLCConfig struct {
	Address       string `yaml:"address"` // host or host:port (ISO-on-TCP, 102)
	Rack          int    `yaml:"rack"`
	Slot          *int   `yaml:"slot"` // nil => 1
	TimeoutMs     int    `yaml:"timeout_ms"`
	IdleTimeoutMs int    `yaml:"idle_timeout_ms"`

	// Simulate replaces the controller with an in-process plant.
	Simulate bool `yaml:"simulate"`
}

// ---- DATA BLOCK ----

type BlockConfig struct {
	DB     int        `yaml:"db"`
	Offset int        `yaml:"offset"`
	Size   int        `yaml:"size"`
	Alarm  *BitConfig `yaml:"alarm"` // nil => byte 0 bit 0
}

type BitConfig struct {
	Byte int   `yaml:"byte"`
	Bit  uint8 `yaml:"bit"`
}

// DeviceConfig is one row of the layout table.
// An empty devices list means the built-in plant table.
type DeviceConfig struct {
	ID             int    `yaml:"id"`
	Name           string `yaml:"name"`
	FlagByte       int    `yaml:"flag_byte"`
	ReadyBit       uint8  `yaml:"ready_bit"`
	RunningBit     uint8  `yaml:"running_bit"`
	TripBit        uint8  `yaml:"trip_bit"`
	PressureOffset int    `yaml:"pressure_offset"`
	SetpointOffset int    `yaml:"setpoint_offset"`
}

// ---- ACQUISITION ----

type AcquisitionConfig struct {
	IntervalMs       int `yaml:"interval_ms"`
	MaxRetries       int `yaml:"max_retries"`
	RetryDelayMs     int `yaml:"retry_delay_ms"`
	ReconnectPauseMs int `yaml:"reconnect_pause_ms"`
}

type TransitionConfig struct {
	// SuppressOnError keeps trip state across failed cycles (nil => true).
	SuppressOnError *bool `yaml:"suppress_on_error"`
}

// ---- HISTORY / STORE ----

type HistoryConfig struct {
	Every    int  `yaml:"every"` // cycles between history rows
	OnError  bool `yaml:"on_error"`
	Disabled bool `yaml:"disabled"`
}

type StoreConfig struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

// ---- OUTER SURFACES ----

type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// MQTTConfig is optional; empty broker disables MQTT.
type MQTTConfig struct {
	Broker           string `yaml:"broker"`
	ClientID         string `yaml:"client_id"`
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	TopicPrefix      string `yaml:"topic_prefix"`
	QoS              byte   `yaml:"qos"`
	PublishSnapshots bool   `yaml:"publish_snapshots"`
}

// MirrorConfig is optional; empty endpoint disables the Modbus mirror.
type MirrorConfig struct {
	Endpoint    string `yaml:"endpoint"`
	UnitID      uint8  `yaml:"unit_id"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	BaseAddress uint16 `yaml:"base_address"`

	// Link status block (optional, opt-in)
	StatusSlot *uint16 `yaml:"status_slot"`
	DeviceName string  `yaml:"device_name"`
}

// Load reads and decodes a YAML file. Unknown keys are rejected.
// It does not validate; callers run Validate then Normalize.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open: %w", err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Default returns a normalized config for the built-in plant table.
func Default() *Config {
	cfg := &Config{}
	Normalize(cfg)
	return cfg
}
