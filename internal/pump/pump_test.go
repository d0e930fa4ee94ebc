// internal/pump/pump_test.go
package pump

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_PriorityChain(t *testing.T) {
	for _, running := range []bool{false, true} {
		for _, trip := range []bool{false, true} {
			assert.Equal(t, StatusReady, Resolve(true, running, trip))
		}
	}
	for _, trip := range []bool{false, true} {
		assert.Equal(t, StatusRunning, Resolve(false, true, trip))
	}
	assert.Equal(t, StatusTrip, Resolve(false, false, true))
	assert.Equal(t, StatusUnknown, Resolve(false, false, false))
}

func TestDefaultBlock_Check(t *testing.T) {
	require.NoError(t, DefaultBlock().Check())
}

func TestBlock_CheckRejectsBadTables(t *testing.T) {
	b := DefaultBlock()
	b.Devices[0].PressureOffset = 68 // 68+4 > 70
	assert.Error(t, b.Check())

	b = DefaultBlock()
	b.Devices[1].TripBit = 8
	assert.Error(t, b.Check())

	b = DefaultBlock()
	b.Devices[2].RunningBit = b.Devices[2].ReadyBit
	assert.Error(t, b.Check())

	b = DefaultBlock()
	b.Devices[3].ID = 1
	assert.Error(t, b.Check())
}

func TestDecode_PerDeviceBitLayout(t *testing.T) {
	b := DefaultBlock()
	raw := make([]byte, b.Size)

	// pump 1: byte 0 = alarm(0) + trip(3)
	raw[0] = 1<<0 | 1<<3
	// pump 4: bit 1 is TRIP on this pump, not running
	raw[30] = 1 << 1
	// pump 5: bit 0 is RUNNING on this pump, not ready
	raw[40] = 1 << 0

	readings, alarm, err := b.Decode(raw)
	require.NoError(t, err)
	require.Len(t, readings, 7)

	assert.True(t, alarm)

	assert.True(t, readings[0].Trip)
	assert.False(t, readings[0].Ready)
	assert.Equal(t, StatusTrip, readings[0].Status)

	assert.True(t, readings[3].Trip)
	assert.False(t, readings[3].Running)
	assert.Equal(t, StatusTrip, readings[3].Status)

	assert.True(t, readings[4].Running)
	assert.False(t, readings[4].Ready)
	assert.Equal(t, StatusRunning, readings[4].Status)

	for _, i := range []int{1, 2, 5, 6} {
		assert.Equal(t, StatusUnknown, readings[i].Status, "pump %d", readings[i].ID)
	}
}

func TestDecode_SizeMismatch(t *testing.T) {
	_, _, err := DefaultBlock().Decode(make([]byte, 69))
	assert.ErrorIs(t, err, ErrBlockSize)
}

func TestDecode_TotalAndDeterministic(t *testing.T) {
	b := DefaultBlock()
	rng := rand.New(rand.NewSource(39))

	for i := 0; i < 500; i++ {
		raw := make([]byte, b.Size)
		rng.Read(raw)

		first, a1, err := b.Decode(raw)
		require.NoError(t, err)
		second, a2, err := b.Decode(raw)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, a1, a2)

		_, err = json.Marshal(first)
		require.NoError(t, err)
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	b := DefaultBlock()

	in := []Reading{
		{ID: 1, Ready: true, Pressure: 3.14159, Setpoint: 4.5},
		{ID: 2, Running: true, Pressure: 5.005, Setpoint: 5},
		{ID: 3, Trip: true, Pressure: 0, Setpoint: 2.25},
		{ID: 4, Trip: true, Pressure: 1.2, Setpoint: 6.75},
		{ID: 5, Running: true, Pressure: 7.891, Setpoint: 8},
		{ID: 6, Pressure: 12.3456, Setpoint: 12},
		{ID: 7, Ready: true, Running: true, Pressure: -1.5, Setpoint: 0.01},
	}

	raw := b.Encode(in, true)
	out, alarm, err := b.Decode(raw)
	require.NoError(t, err)
	assert.True(t, alarm)

	for i := range in {
		assert.Equal(t, in[i].Ready, out[i].Ready, "pump %d ready", i+1)
		assert.Equal(t, in[i].Running, out[i].Running, "pump %d running", i+1)
		assert.Equal(t, in[i].Trip, out[i].Trip, "pump %d trip", i+1)
		assert.InDelta(t, in[i].Pressure, out[i].Pressure, 0.005+1e-6, "pump %d pressure", i+1)
		assert.InDelta(t, in[i].Setpoint, out[i].Setpoint, 0.005+1e-6, "pump %d setpoint", i+1)
		assert.Equal(t, Resolve(in[i].Ready, in[i].Running, in[i].Trip), out[i].Status)
		assert.Equal(t, b.Devices[i].Name, out[i].Name)
	}
}

func TestErrorReadings(t *testing.T) {
	b := DefaultBlock()
	rs := b.ErrorReadings()
	require.Len(t, rs, len(b.Devices))
	for i, r := range rs {
		assert.Equal(t, b.Devices[i].ID, r.ID)
		assert.Equal(t, StatusUnknown, r.Status)
		assert.False(t, r.Trip)
		assert.Zero(t, r.Pressure)
	}
}

func TestStatus_JSON(t *testing.T) {
	out, err := json.Marshal(Reading{ID: 1, Status: StatusRunning})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"status":"RUNNING"`)
}

func TestStatus_TextRoundTrip(t *testing.T) {
	for _, s := range []Status{StatusUnknown, StatusReady, StatusRunning, StatusTrip} {
		b, err := s.MarshalText()
		require.NoError(t, err)

		var got Status
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, s, got)
	}

	var bad Status
	assert.Error(t, bad.UnmarshalText([]byte("STOPPED")))
}
