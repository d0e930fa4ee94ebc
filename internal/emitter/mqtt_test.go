// internal/emitter/mqtt_test.go
package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/pump-monitor/internal/metrics"
	"github.com/tamzrod/pump-monitor/internal/pump"
	"github.com/tamzrod/pump-monitor/internal/transition"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu        sync.Mutex
	connected bool
	fail      error
	sent      []message
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, message{topic, qos, retained, payload.([]byte)})
	return newToken(c.fail)
}

func (c *fakeClient) messages() []message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]message(nil), c.sent...)
}

func newTestEmitter(c *fakeClient) *MQTTEmitter {
	e := NewMQTTEmitter(Config{TopicPrefix: "plant/pumps", QoS: 1}, nil, nil)
	e.client = c
	return e
}

func TestAppendEvent_TopicAndPayload(t *testing.T) {
	c := &fakeClient{connected: true}
	e := newTestEmitter(c)

	ev := transition.Event{
		ID:         "e-1",
		DeviceID:   4,
		DeviceName: "CAN LINE UPS ROOM AHU 2",
		Kind:       transition.KindTrip,
		Pressure:   0.75,
		Setpoint:   6,
		At:         time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, e.AppendEvent(context.Background(), ev))

	msgs := c.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "plant/pumps/events/4", msgs[0].topic)
	assert.Equal(t, byte(1), msgs[0].qos)
	assert.False(t, msgs[0].retained)

	var got map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].payload, &got))
	assert.Equal(t, "TRIP", got["event_type"])
	assert.Equal(t, "CAN LINE UPS ROOM AHU 2", got["pump_name"])
	assert.Equal(t, 0.75, got["pressure"])

}

func TestPublishSnapshot_Retained(t *testing.T) {
	c := &fakeClient{connected: true}
	e := newTestEmitter(c)

	snap := pump.Snapshot{Connected: true, Readings: []pump.Reading{{ID: 1, Status: pump.StatusReady}}}
	require.NoError(t, e.PublishSnapshot(snap))

	msgs := c.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "plant/pumps/snapshot", msgs[0].topic)
	assert.True(t, msgs[0].retained)
	assert.Contains(t, string(msgs[0].payload), `"status":"READY"`)
}

func TestPublish_NotConnected(t *testing.T) {
	c := &fakeClient{connected: false}
	e := newTestEmitter(c)

	err := e.AppendEvent(context.Background(), transition.Event{DeviceID: 1})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, c.messages())
}

func TestPublish_BrokerError(t *testing.T) {
	c := &fakeClient{connected: true, fail: errors.New("not authorized")}
	e := newTestEmitter(c)

	err := e.PublishSnapshot(pump.Snapshot{})
	assert.ErrorContains(t, err, "not authorized")
}

func TestRun_PublishesUntilClosed(t *testing.T) {
	c := &fakeClient{connected: true}
	e := newTestEmitter(c)

	in := make(chan pump.Snapshot, 2)
	in <- pump.Snapshot{}
	in <- pump.Snapshot{}
	close(in)

	e.Run(context.Background(), in)
	assert.Len(t, c.messages(), 2)
}

func TestRun_CountsSnapshotDeliveries(t *testing.T) {
	m := metrics.New()
	c := &fakeClient{connected: false}
	e := NewMQTTEmitter(Config{TopicPrefix: "plant/pumps"}, nil, m)
	e.client = c

	in := make(chan pump.Snapshot, 1)
	in <- pump.Snapshot{}
	close(in)
	e.Run(context.Background(), in)

	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(`
# HELP pump_monitor_sink_failures_total Failed deliveries to downstream sinks.
# TYPE pump_monitor_sink_failures_total counter
pump_monitor_sink_failures_total{sink="mqtt_snapshot"} 1
`), "pump_monitor_sink_failures_total"))
}

func TestTopics(t *testing.T) {
	e := NewMQTTEmitter(Config{TopicPrefix: "x"}, nil, nil)
	assert.Equal(t, "x/status", e.StatusTopic())
	assert.Equal(t, "x/events/12", e.EventTopic(12))
}
