// internal/config/normalize.go
package config

import "github.com/tamzrod/pump-monitor/internal/pump"

const (
	DefaultDB               = 39
	DefaultSlot             = 1
	DefaultTimeoutMs        = 5000
	DefaultIntervalMs       = 1000
	DefaultMaxRetries       = 3
	DefaultRetryDelayMs     = 500
	DefaultReconnectPauseMs = 500
	DefaultHistoryEvery     = 60
	DefaultStorePath        = "pump_events.db"
	DefaultListen           = ":5000"
	DefaultTopicPrefix      = "pump-monitor"
	DefaultClientID         = "pump-monitor"
	DefaultDeviceNameChars  = 16
)

// Normalize applies post-validation defaults.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	// ---- controller ----
	if cfg.PLC.Slot == nil {
		slot := DefaultSlot
		cfg.PLC.Slot = &slot
	}
	if cfg.PLC.TimeoutMs == 0 {
		cfg.PLC.TimeoutMs = DefaultTimeoutMs
	}

	// ---- block + table ----
	// The built-in table is only taken as a whole; a custom table must
	// bring its own size.
	if len(cfg.Devices) == 0 {
		def := pump.DefaultBlock()
		for _, d := range def.Devices {
			cfg.Devices = append(cfg.Devices, DeviceConfig(d))
		}
		if cfg.Block.Size == 0 {
			cfg.Block.Size = def.Size
		}
	}
	if cfg.Block.DB == 0 {
		cfg.Block.DB = DefaultDB
	}
	if cfg.Block.Alarm == nil {
		cfg.Block.Alarm = &BitConfig{}
	}

	// ---- acquisition ----
	a := &cfg.Acquisition
	if a.IntervalMs == 0 {
		a.IntervalMs = DefaultIntervalMs
	}
	if a.MaxRetries == 0 {
		a.MaxRetries = DefaultMaxRetries
	}
	if a.RetryDelayMs == 0 {
		a.RetryDelayMs = DefaultRetryDelayMs
	}
	if a.ReconnectPauseMs == 0 {
		a.ReconnectPauseMs = DefaultReconnectPauseMs
	}

	if cfg.Transitions.SuppressOnError == nil {
		on := true
		cfg.Transitions.SuppressOnError = &on
	}

	// ---- history / store ----
	if cfg.History.Every == 0 {
		cfg.History.Every = DefaultHistoryEvery
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath
	}

	// ---- surfaces ----
	if cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = DefaultListen
	}
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.TopicPrefix == "" {
			cfg.MQTT.TopicPrefix = DefaultTopicPrefix
		}
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = DefaultClientID
		}
	}
	if cfg.Mirror.Endpoint != "" {
		if cfg.Mirror.TimeoutMs == 0 {
			cfg.Mirror.TimeoutMs = DefaultTimeoutMs
		}
		// ASCII already validated; register block holds 16 characters
		if len(cfg.Mirror.DeviceName) > DefaultDeviceNameChars {
			cfg.Mirror.DeviceName = cfg.Mirror.DeviceName[:DefaultDeviceNameChars]
		}
	}
}
