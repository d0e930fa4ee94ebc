// internal/poller/runner.go
package poller

import (
	"context"
	"time"

	"github.com/tamzrod/pump-monitor/internal/pump"
)

// Run acquires once immediately, then once per tick, and emits every snapshot
// (ok or error) on out. One goroutine. No overlap: a slow cycle swallows ticks.
// Returns only when ctx is done; the session is closed on the way out.
func (p *Poller) Run(ctx context.Context, out chan<- pump.Snapshot) {
	defer func() {
		if err := p.Close(); err != nil {
			p.log.Warn("close session", "err", err)
		}
	}()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		snap := p.Acquire(ctx)

		select {
		case <-ctx.Done():
			return
		case out <- snap:
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
