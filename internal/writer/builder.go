// internal/writer/builder.go
package writer

import (
	"errors"
	"time"

	cfg "github.com/tamzrod/pump-monitor/internal/config"
	"github.com/tamzrod/pump-monitor/internal/pump"
	wmodbus "github.com/tamzrod/pump-monitor/internal/writer/modbus"
)

// BuildPlan converts the mirror config into a write plan.
// Assumes config has passed Validate and Normalize.
func BuildPlan(m cfg.MirrorConfig, block pump.Block) (Plan, error) {
	if m.Endpoint == "" {
		return Plan{}, errors.New("writer: mirror endpoint required")
	}

	plan := Plan{
		Endpoint:    m.Endpoint,
		UnitID:      m.UnitID,
		BaseAddress: m.BaseAddress,
		Devices:     block.Devices,
	}
	if m.StatusSlot != nil {
		plan.Status = &StatusPlan{
			UnitID:     m.UnitID,
			BaseSlot:   *m.StatusSlot,
			DeviceName: m.DeviceName,
		}
	}
	return plan, nil
}

// BuildEndpointClient creates the TCP client of the mirror target.
func BuildEndpointClient(m cfg.MirrorConfig) (*wmodbus.EndpointClient, error) {
	return wmodbus.NewEndpointClient(wmodbus.Config{
		Endpoint: m.Endpoint,
		Timeout:  time.Duration(m.TimeoutMs) * time.Millisecond,
	})
}
