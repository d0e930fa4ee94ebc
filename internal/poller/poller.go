// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tamzrod/pump-monitor/internal/metrics"
	"github.com/tamzrod/pump-monitor/internal/plc"
	"github.com/tamzrod/pump-monitor/internal/pump"
)

// Poller owns the controller session and turns every cycle into a Snapshot.
//
// The session is used under mu for the whole acquisition (dial, read, retries),
// so two reads never overlap on the wire. Acquire is safe for concurrent use;
// extra callers queue on the lock.
type Poller struct {
	cfg     Config
	dial    plc.Dialer
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.Mutex
	session plc.Session

	state atomic.Int32
}

// New creates a poller with immutable config.
func New(cfg Config, dial plc.Dialer, log *slog.Logger, m *metrics.Metrics) (*Poller, error) {
	if dial == nil {
		return nil, errors.New("poller: dialer required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if cfg.MaxRetries <= 0 {
		return nil, errors.New("poller: max retries must be > 0")
	}
	if cfg.RetryDelay < 0 || cfg.ReconnectPause < 0 {
		return nil, errors.New("poller: delays must be >= 0")
	}
	if err := cfg.Block.Check(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	return &Poller{
		cfg:     cfg,
		dial:    dial,
		log:     log.With("component", "poller"),
		metrics: m,
		now:     time.Now,
	}, nil
}

// State returns the current connection state without waiting for the lock.
func (p *Poller) State() State {
	return State(p.state.Load())
}

func (p *Poller) setState(s State) {
	p.state.Store(int32(s))
}

// Acquire performs exactly one acquisition cycle.
// It never fails: every failure is folded into an error snapshot.
func (p *Poller) Acquire(ctx context.Context) pump.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	at := p.now()

	raw, fault, err := p.readLocked(ctx)
	if err == nil {
		readings, alarm, derr := p.cfg.Block.Decode(raw)
		if derr == nil {
			p.metrics.Cycle(true, time.Since(start))
			return pump.Snapshot{
				At:        at,
				Connected: true,
				Alarm:     alarm,
				Readings:  readings,
			}
		}
		// fixed-size reads make this unreachable unless the driver misbehaves
		p.metrics.ReadError("decode")
		fault, err = pump.FaultProtocol, derr
	}

	if p.session != nil {
		p.setState(StateErrorBackoff)
	} else {
		p.setState(StateDisconnected)
	}

	p.log.Warn("acquisition failed",
		"fault", fault.String(),
		"state", p.State().String(),
		"err", err,
	)
	p.metrics.Cycle(false, time.Since(start))

	return pump.Snapshot{
		At:        at,
		Connected: false,
		Fault:     fault,
		Error:     err.Error(),
		Readings:  p.cfg.Block.ErrorReadings(),
	}
}

// readLocked is the retry/reconnect state machine. Caller holds p.mu.
func (p *Poller) readLocked(ctx context.Context) ([]byte, pump.Fault, error) {
	if p.session == nil {
		p.setState(StateDisconnected)
		if err := p.connectLocked(ctx); err != nil {
			return nil, pump.FaultConnect, err
		}
	}

	var (
		lastErr     error
		lastFault   = pump.FaultProtocol
		reconnected bool
	)

	for attempt := 1; attempt <= p.cfg.MaxRetries; attempt++ {
		p.setState(StateReading)

		var (
			raw []byte
			err error
		)
		if !p.session.Connected() {
			err = plc.LinkLost("db_read", plc.ErrNotConnected)
		} else {
			raw, err = p.session.ReadRange(p.cfg.BlockID, p.cfg.Offset, p.cfg.Block.Size)
		}
		if err == nil {
			p.setState(StateConnected)
			return raw, pump.FaultNone, nil
		}

		kind := plc.KindOf(err)
		p.metrics.ReadError(kind.String())
		lastErr = err

		switch kind {
		case plc.KindBusy:
			lastFault = pump.FaultBusy
			p.log.Warn("controller busy", "attempt", attempt, "max", p.cfg.MaxRetries, "err", err)
			if attempt == p.cfg.MaxRetries {
				break
			}
			p.metrics.Retry()
			if serr := sleep(ctx, p.cfg.RetryDelay); serr != nil {
				return nil, lastFault, serr
			}

		case plc.KindLinkLost:
			lastFault = pump.FaultLinkLost
			p.log.Warn("connection lost", "attempt", attempt, "err", err)
			p.dropLocked()

			// one reopen per cycle; further recovery waits for the next tick
			if reconnected || attempt == p.cfg.MaxRetries {
				return nil, lastFault, err
			}
			reconnected = true

			p.metrics.Reconnect()
			if serr := sleep(ctx, p.cfg.ReconnectPause); serr != nil {
				return nil, lastFault, serr
			}
			if cerr := p.connectLocked(ctx); cerr != nil {
				return nil, lastFault, cerr
			}

		default:
			p.log.Error("read error", "attempt", attempt, "err", err)
			return nil, pump.FaultProtocol, err
		}
	}

	return nil, lastFault, lastErr
}

// connectLocked opens a new session. Caller holds p.mu.
func (p *Poller) connectLocked(ctx context.Context) error {
	s, err := p.dial(ctx)
	if err != nil {
		p.metrics.ReadError("connect")
		p.log.Warn("connect failed", "err", err)
		return err
	}
	p.session = s
	p.setState(StateConnected)
	p.log.Info("connected", "block", p.cfg.BlockID)
	return nil
}

// dropLocked force-closes the session. Caller holds p.mu.
func (p *Poller) dropLocked() {
	if p.session != nil {
		if err := p.session.Close(); err != nil {
			p.log.Debug("close after link loss", "err", err)
		}
		p.session = nil
	}
	p.setState(StateDisconnected)
}

// Close closes the session once any in-flight acquisition is done.
func (p *Poller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.session != nil {
		err = p.session.Close()
		p.session = nil
	}
	p.setState(StateDisconnected)
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
