// internal/poller/builder.go
package poller

import (
	"log/slog"
	"time"

	cfg "github.com/tamzrod/pump-monitor/internal/config"
	"github.com/tamzrod/pump-monitor/internal/metrics"
	"github.com/tamzrod/pump-monitor/internal/plc"
	"github.com/tamzrod/pump-monitor/internal/plc/s7"
	"github.com/tamzrod/pump-monitor/internal/plc/sim"
)

// Build constructs a Poller from a validated, normalized config and wires the
// session lifecycle. No connection is opened here: the first cycle dials, and
// a controller that is down at startup is just a disconnected first snapshot.
func Build(c *cfg.Config, log *slog.Logger, m *metrics.Metrics) (*Poller, func() error, error) {
	block := c.PumpBlock()

	var dial plc.Dialer
	if c.PLC.Simulate {
		dial = sim.New(block, c.Block.DB).Scripted().Dialer()
	} else {
		// dialer: ONE attempt per call
		dial = s7.Dialer(s7.Config{
			Address:     c.PLC.Address,
			Rack:        c.PLC.Rack,
			Slot:        *c.PLC.Slot,
			Timeout:     ms(c.PLC.TimeoutMs),
			IdleTimeout: ms(c.PLC.IdleTimeoutMs),
		})
	}

	p, err := New(Config{
		Interval:       ms(c.Acquisition.IntervalMs),
		BlockID:        c.Block.DB,
		Offset:         c.Block.Offset,
		Block:          block,
		MaxRetries:     c.Acquisition.MaxRetries,
		RetryDelay:     ms(c.Acquisition.RetryDelayMs),
		ReconnectPause: ms(c.Acquisition.ReconnectPauseMs),
	}, dial, log, m)
	if err != nil {
		return nil, nil, err
	}

	return p, p.Close, nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
