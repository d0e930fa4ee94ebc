// internal/writer/runner.go
package writer

import (
	"context"
	"log/slog"
	"time"

	"github.com/tamzrod/pump-monitor/internal/metrics"
	"github.com/tamzrod/pump-monitor/internal/pump"
	"github.com/tamzrod/pump-monitor/internal/status"
)

// Mirror drives the data writer and the optional status writer from a
// snapshot stream. Runner-owned state; one goroutine.
type Mirror struct {
	data    Writer
	status  StatusWriter // nil when disabled
	tracker *status.Tracker
	log     *slog.Logger
	metrics *metrics.Metrics

	// Tick is the seconds_in_error clock (1 Hz unless overridden in tests).
	Tick time.Duration
}

func NewMirror(plan Plan, cli endpointClient, log *slog.Logger, m *metrics.Metrics) *Mirror {
	if log == nil {
		log = slog.Default()
	}
	sw, _ := NewStatusWriter(plan, cli)
	return &Mirror{
		data:    New(plan, cli),
		status:  sw,
		tracker: status.NewTracker(),
		log:     log.With("component", "mirror", "endpoint", plan.Endpoint),
		metrics: m,
		Tick:    time.Second,
	}
}

func (m *Mirror) SinkName() string { return "mirror" }

// Run writes every snapshot received on in until ctx is done or in closes.
func (m *Mirror) Run(ctx context.Context, in <-chan pump.Snapshot) {
	tick := time.NewTicker(m.Tick)
	defer tick.Stop()

	// full block write on start (identity re-assert)
	m.writeStatus(m.tracker.Current())

	for {
		select {
		case <-ctx.Done():
			return

		case snap, ok := <-in:
			if !ok {
				return
			}
			m.Handle(snap)

		case <-tick.C:
			if s, changed := m.tracker.Tick(); changed {
				m.writeStatus(s)
			}
		}
	}
}

// Handle delivers one snapshot and updates the status block when it changed.
func (m *Mirror) Handle(snap pump.Snapshot) {
	if err := m.data.Write(snap); err != nil {
		m.metrics.SinkFailure(m.SinkName())
		m.log.Warn("mirror write failed", "err", err)
	}
	if s, changed := m.tracker.Observe(snap); changed {
		m.writeStatus(s)
	}
}

func (m *Mirror) writeStatus(s status.Snapshot) {
	if m.status == nil {
		return
	}
	if err := m.status.WriteStatus(s); err != nil {
		m.metrics.SinkFailure(m.SinkName())
		m.log.Warn("status write failed", "err", err)
	}
}
