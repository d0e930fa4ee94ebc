// internal/dashboard/server_test.go
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/pump-monitor/internal/metrics"
	"github.com/tamzrod/pump-monitor/internal/publish"
	"github.com/tamzrod/pump-monitor/internal/pump"
	"github.com/tamzrod/pump-monitor/internal/store"
	"github.com/tamzrod/pump-monitor/internal/transition"
)

type fakeQueries struct {
	filter  store.EventFilter
	since   time.Time
	pumpID  int
	events  []transition.Event
	trips   int
	history []store.HistoryRow
	health  map[int]store.Health
	err     error
}

func (f *fakeQueries) Events(_ context.Context, filter store.EventFilter) ([]transition.Event, error) {
	f.filter = filter
	return f.events, f.err
}

func (f *fakeQueries) TripCount(_ context.Context, _ store.EventFilter) (int, error) {
	return f.trips, f.err
}

func (f *fakeQueries) History(_ context.Context, since time.Time, pumpID int) ([]store.HistoryRow, error) {
	f.since, f.pumpID = since, pumpID
	return f.history, f.err
}

func (f *fakeQueries) DeviceHealth(_ context.Context, since time.Time, ids []int) (map[int]store.Health, error) {
	f.since = since
	return f.health, f.err
}

var now = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	srv  *httptest.Server
	feed *publish.Feed
	hub  *Hub
	q    *fakeQueries
}

func newFixture(t *testing.T, q *fakeQueries) *fixture {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	feed := publish.NewFeed(nil)
	hub := NewHub(nil, nil)
	go hub.Run(ctx)

	opts := Options{
		Hub:     hub,
		Latest:  feed.Latest,
		Devices: pump.DefaultBlock().Devices,
		Metrics: metrics.New(),
	}
	if q != nil {
		opts.Queries = q
	}
	s, err := NewServer(opts)
	require.NoError(t, err)
	s.now = func() time.Time { return now }
	s.started = now.Add(-(26*time.Hour + 5*time.Minute))

	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)

	return &fixture{srv: ts, feed: feed, hub: hub, q: q}
}

func (f *fixture) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func liveSnapshot() pump.Snapshot {
	s := pump.Snapshot{At: now, Connected: true, Readings: pump.DefaultBlock().ErrorReadings()}
	s.Readings[0] = pump.Reading{ID: 1, Name: "LINE 3&5 UPS FAN COIL UNITS", Running: true, Pressure: 4.5, Setpoint: 5, Status: pump.StatusRunning}
	return s
}

func TestStatus_NoDataYet(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/api/status", nil))
}

func TestStatus_ReturnsLatest(t *testing.T) {
	f := newFixture(t, nil)
	f.feed.Publish(liveSnapshot())

	var got map[string]any
	require.Equal(t, http.StatusOK, f.get(t, "/api/status", &got))
	assert.Equal(t, true, got["connected"])
	pumps := got["pumps"].([]any)
	require.Len(t, pumps, 7)
	assert.Equal(t, "RUNNING", pumps[0].(map[string]any)["status"])
}

func TestTripEvents_FilterAndTotal(t *testing.T) {
	q := &fakeQueries{
		events: []transition.Event{{DeviceID: 2, Kind: transition.KindTrip, At: now}},
		trips:  9,
	}
	f := newFixture(t, q)

	var got tripEventsResponse
	require.Equal(t, http.StatusOK, f.get(t, "/api/trip-events?pump_id=2&start_date=2026-04-01&end_date=2026-04-03", &got))
	assert.Equal(t, 9, got.TotalTrips)
	require.Len(t, got.Events, 1)

	assert.Equal(t, 2, q.filter.PumpID)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), q.filter.From)
	assert.Equal(t, time.Date(2026, 4, 3, 23, 59, 59, 0, time.UTC), q.filter.To)
}

func TestTripEvents_AllPumpsAndEmpty(t *testing.T) {
	q := &fakeQueries{}
	f := newFixture(t, q)

	var got map[string]any
	require.Equal(t, http.StatusOK, f.get(t, "/api/trip-events?pump_id=all", &got))
	assert.Equal(t, []any{}, got["events"])
	assert.Zero(t, q.filter.PumpID)
}

func TestTripEvents_BadInput(t *testing.T) {
	f := newFixture(t, &fakeQueries{})
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/trip-events?start_date=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/trip-events?pump_id=x", nil))
}

func TestTripEvents_StoreDisabledOrFailing(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, newFixture(t, nil).get(t, "/api/trip-events", nil))

	f := newFixture(t, &fakeQueries{err: errors.New("database is locked")})
	var got map[string]string
	assert.Equal(t, http.StatusInternalServerError, f.get(t, "/api/trip-events", &got))
	assert.Contains(t, got["error"], "locked")
}

func TestPressureHistory_WindowAndPump(t *testing.T) {
	q := &fakeQueries{history: []store.HistoryRow{{PumpID: 3, Pressure: 2}}}
	f := newFixture(t, q)

	var rows []store.HistoryRow
	require.Equal(t, http.StatusOK, f.get(t, "/api/pressure-history?hours=6&pump_id=3", &rows))
	assert.Len(t, rows, 1)
	assert.Equal(t, now.Add(-6*time.Hour), q.since)
	assert.Equal(t, 3, q.pumpID)

	require.Equal(t, http.StatusOK, f.get(t, "/api/pressure-history", &rows))
	assert.Equal(t, now.Add(-24*time.Hour), q.since)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/pressure-history?hours=0", nil))
}

func TestPumpHealth_JoinsLiveAndStored(t *testing.T) {
	last := now.Add(-2 * time.Hour)
	q := &fakeQueries{health: map[int]store.Health{1: {PumpID: 1, TripCount: 2, LastTrip: &last}}}
	f := newFixture(t, q)
	f.feed.Publish(liveSnapshot())

	var got pumpHealthResponse
	require.Equal(t, http.StatusOK, f.get(t, "/api/pump-health", &got))

	assert.True(t, got.Connected)
	assert.Equal(t, "26h 5m", got.Uptime)
	require.Len(t, got.Pumps, 7)

	p1 := got.Pumps[0]
	assert.Equal(t, 1, p1.PumpID)
	assert.True(t, p1.IsRunning)
	assert.Equal(t, 4.5, p1.Pressure)
	assert.Equal(t, 2, p1.TripCount24h)
	require.NotNil(t, p1.LastTrip)
	assert.True(t, last.Equal(*p1.LastTrip))

	assert.Nil(t, got.Pumps[6].LastTrip)
	assert.Equal(t, now.Add(-24*time.Hour), q.since)
}

func TestPumpHealth_BeforeFirstSnapshot(t *testing.T) {
	f := newFixture(t, nil)

	var got pumpHealthResponse
	require.Equal(t, http.StatusOK, f.get(t, "/api/pump-health", &got))
	assert.False(t, got.Connected)
	for _, p := range got.Pumps {
		assert.Equal(t, pump.StatusUnknown, p.Status)
	}
}

func TestMetricsAndHealthz(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, http.StatusNoContent, f.get(t, "/healthz", nil))
}

func TestWebSocket_InitialSnapshotThenPushes(t *testing.T) {
	f := newFixture(t, nil)
	f.feed.Publish(liveSnapshot())

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first map[string]any
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "snapshot", first["type"])

	// the hub registers asynchronously; keep broadcasting until one arrives
	ev := transition.Event{DeviceID: 4, Kind: transition.KindTrip}
	got := make(chan map[string]any, 1)
	go func() {
		var m map[string]any
		if conn.ReadJSON(&m) == nil {
			got <- m
		}
	}()

	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case m := <-got:
			assert.Equal(t, "event", m["type"])
			payload := m["payload"].(map[string]any)
			assert.Equal(t, "TRIP", payload["event_type"])
			return
		case <-tick.C:
			require.NoError(t, f.hub.AppendEvent(context.Background(), ev))
		case <-timeout:
			t.Fatal("no event pushed")
		}
	}
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(Options{})
	assert.Error(t, err)
}

func TestUptime(t *testing.T) {
	assert.Equal(t, "0h 0m", uptime(59*time.Second))
	assert.Equal(t, "1h 1m", uptime(61*time.Minute))
}
