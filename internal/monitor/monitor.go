// internal/monitor/monitor.go
package monitor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tamzrod/pump-monitor/internal/metrics"
	"github.com/tamzrod/pump-monitor/internal/publish"
	"github.com/tamzrod/pump-monitor/internal/pump"
	"github.com/tamzrod/pump-monitor/internal/transition"
)

// Monitor turns the poller's snapshot stream into published output.
// It is the only writer of the transition state; Step and Run must not
// be called from more than one goroutine.
type Monitor struct {
	detector  transition.Detector
	publisher *publish.Publisher
	log       *slog.Logger
	metrics   *metrics.Metrics

	state transition.State
}

func New(d transition.Detector, p *publish.Publisher, log *slog.Logger, m *metrics.Metrics) (*Monitor, error) {
	if p == nil {
		return nil, errors.New("monitor: publisher required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		detector:  d,
		publisher: p,
		log:       log.With("component", "monitor"),
		metrics:   m,
		state:     transition.State{},
	}, nil
}

// Step handles one snapshot: detect transitions, then publish.
func (m *Monitor) Step(ctx context.Context, snap pump.Snapshot) []transition.Event {
	events, next := m.detector.Detect(m.state, snap)
	m.state = next

	for _, e := range events {
		m.metrics.Event(string(e.Kind))
		m.log.Info("transition",
			"pump_id", e.DeviceID,
			"pump", e.DeviceName,
			"kind", string(e.Kind),
			"pressure", e.Pressure,
			"setpoint", e.Setpoint,
		)
	}

	m.metrics.Tripped(m.tripped())
	m.publisher.Publish(ctx, snap, events)
	return events
}

// Run consumes snapshots until ctx is done or in is closed.
func (m *Monitor) Run(ctx context.Context, in <-chan pump.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-in:
			if !ok {
				return
			}
			m.Step(ctx, snap)
		}
	}
}

func (m *Monitor) tripped() int {
	n := 0
	for _, trip := range m.state {
		if trip {
			n++
		}
	}
	return n
}
