// internal/plc/sim/plant_test.go
package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/pump-monitor/internal/plc"
	"github.com/tamzrod/pump-monitor/internal/pump"
)

func TestPlant_ReadDecodesBack(t *testing.T) {
	b := pump.DefaultBlock()
	p := New(b, 39)
	p.Set(3, pump.Reading{Trip: true, Pressure: 1.5, Setpoint: 6})
	p.SetAlarm(true)

	s, err := p.Dialer()(context.Background())
	require.NoError(t, err)

	raw, err := s.ReadRange(39, 0, b.Size)
	require.NoError(t, err)

	rs, alarm, err := b.Decode(raw)
	require.NoError(t, err)
	assert.True(t, alarm)
	assert.Equal(t, pump.StatusTrip, rs[3].Status)
	assert.Equal(t, 1.5, rs[3].Pressure)
	assert.Equal(t, pump.StatusReady, rs[0].Status)
}

func TestPlant_InjectedFaults(t *testing.T) {
	b := pump.DefaultBlock()
	p := New(b, 39)
	p.Inject(plc.KindBusy, plc.KindOther, plc.KindLinkLost)

	s, err := p.Dialer()(context.Background())
	require.NoError(t, err)

	_, err = s.ReadRange(39, 0, b.Size)
	assert.Equal(t, plc.KindBusy, plc.KindOf(err))
	_, err = s.ReadRange(39, 0, b.Size)
	assert.Equal(t, plc.KindOther, plc.KindOf(err))
	_, err = s.ReadRange(39, 0, b.Size)
	assert.Equal(t, plc.KindLinkLost, plc.KindOf(err))

	assert.False(t, s.Connected())
	_, err = s.ReadRange(39, 0, b.Size)
	assert.Equal(t, plc.KindLinkLost, plc.KindOf(err))
}

func TestPlant_RefuseDials(t *testing.T) {
	p := New(pump.DefaultBlock(), 39)
	p.RefuseDials(1)

	_, err := p.Dialer()(context.Background())
	assert.Equal(t, plc.KindLinkLost, plc.KindOf(err))

	_, err = p.Dialer()(context.Background())
	assert.NoError(t, err)

	dials, _ := p.Stats()
	assert.Equal(t, 2, dials)
}

func TestPlant_ScriptedCyclesThroughTrip(t *testing.T) {
	b := pump.DefaultBlock()
	p := New(b, 39).Scripted()

	s, err := p.Dialer()(context.Background())
	require.NoError(t, err)

	seen := map[pump.Status]bool{}
	for i := 0; i < cycleSteps; i++ {
		raw, err := s.ReadRange(39, 0, b.Size)
		require.NoError(t, err)
		rs, _, err := b.Decode(raw)
		require.NoError(t, err)
		seen[rs[0].Status] = true
	}

	assert.True(t, seen[pump.StatusReady])
	assert.True(t, seen[pump.StatusRunning])
	assert.True(t, seen[pump.StatusTrip])
}
