// internal/plc/sim/plant.go
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/tamzrod/pump-monitor/internal/plc"
	"github.com/tamzrod/pump-monitor/internal/pump"
)

// Plant is an in-process controller holding one data block.
// It encodes its pumps with the same layout table the decoder uses.
type Plant struct {
	mu sync.Mutex

	block    pump.Block
	blockID  int
	readings []pump.Reading
	alarm    bool

	// scripted plant: advance one phase step per read
	scripted bool
	tick     int

	faults  []plc.Kind
	refuse  int
	dials   int
	reads   int
	session *session
}

// New creates a plant whose pumps all sit at READY with zero pressure.
func New(block pump.Block, blockID int) *Plant {
	rs := make([]pump.Reading, len(block.Devices))
	for i, d := range block.Devices {
		rs[i] = pump.Reading{ID: d.ID, Name: d.Name, Ready: true}
	}
	return &Plant{block: block, blockID: blockID, readings: rs}
}

// Scripted makes the plant cycle every pump through READY, RUNNING and TRIP,
// one step per read, phase-shifted per pump.
func (p *Plant) Scripted() *Plant {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripted = true
	return p
}

// Set replaces the state of one pump (by position).
func (p *Plant) Set(i int, r pump.Reading) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.readings) {
		return
	}
	r.ID = p.block.Devices[i].ID
	r.Name = p.block.Devices[i].Name
	p.readings[i] = r
}

// SetAlarm sets the global alarm bit.
func (p *Plant) SetAlarm(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alarm = on
}

// Inject queues failures returned by the next reads, in order.
func (p *Plant) Inject(kinds ...plc.Kind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.faults = append(p.faults, kinds...)
}

// RefuseDials makes the next n dial attempts fail.
func (p *Plant) RefuseDials(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refuse = n
}

// Stats returns how many dials and successful reads the plant served.
func (p *Plant) Stats() (dials, reads int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dials, p.reads
}

// Dialer returns a plc.Dialer bound to this plant.
func (p *Plant) Dialer() plc.Dialer {
	return func(ctx context.Context) (plc.Session, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p.mu.Lock()
		defer p.mu.Unlock()

		p.dials++
		if p.refuse > 0 {
			p.refuse--
			return nil, plc.LinkLost("connect", errors.New("sim: connection refused"))
		}
		if p.session != nil {
			p.session.alive = false
		}
		p.session = &session{plant: p, alive: true}
		return p.session, nil
	}
}

type session struct {
	plant *Plant
	alive bool
}

func (s *session) ReadRange(block, offset, length int) ([]byte, error) {
	p := s.plant
	p.mu.Lock()
	defer p.mu.Unlock()

	if !s.alive {
		return nil, plc.LinkLost("db_read", plc.ErrNotConnected)
	}

	if len(p.faults) > 0 {
		k := p.faults[0]
		p.faults = p.faults[1:]
		switch k {
		case plc.KindBusy:
			return nil, plc.Busy("db_read", errors.New("sim: job pending"))
		case plc.KindLinkLost:
			s.alive = false
			return nil, plc.LinkLost("db_read", errors.New("sim: connection reset"))
		default:
			return nil, plc.Other("db_read", errors.New("sim: address out of range"))
		}
	}

	if block != p.blockID {
		return nil, plc.Other("db_read", fmt.Errorf("sim: unknown data block %d", block))
	}

	if p.scripted {
		p.step()
	}

	raw := p.block.Encode(p.readings, p.alarm)
	if offset < 0 || offset+length > len(raw) {
		return nil, plc.Other("db_read", fmt.Errorf("sim: range %d+%d outside block of %d bytes", offset, length, len(raw)))
	}
	p.reads++

	out := make([]byte, length)
	copy(out, raw[offset:offset+length])
	return out, nil
}

func (s *session) Connected() bool {
	s.plant.mu.Lock()
	defer s.plant.mu.Unlock()
	return s.alive
}

func (s *session) Close() error {
	s.plant.mu.Lock()
	defer s.plant.mu.Unlock()
	s.alive = false
	return nil
}

// phase lengths in steps
const (
	readySteps   = 10
	runningSteps = 40
	tripSteps    = 8
	cycleSteps   = readySteps + runningSteps + tripSteps
)

// step advances the scripted plant. Caller holds p.mu.
func (p *Plant) step() {
	p.tick++
	anyTrip := false

	for i := range p.readings {
		r := &p.readings[i]
		sp := 4.0 + float64(i)*0.5
		phase := (p.tick + i*17) % cycleSteps

		r.Ready, r.Running, r.Trip = false, false, false
		r.Setpoint = sp

		switch {
		case phase < readySteps:
			r.Ready = true
			r.Pressure = sp * 0.4
		case phase < readySteps+runningSteps:
			r.Running = true
			r.Pressure = sp + 0.3*math.Sin(float64(p.tick+i)/5)
		default:
			r.Trip = true
			r.Pressure = 0
			anyTrip = true
		}
	}

	p.alarm = anyTrip
}
