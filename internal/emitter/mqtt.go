// internal/emitter/mqtt.go
package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tamzrod/pump-monitor/internal/metrics"
	"github.com/tamzrod/pump-monitor/internal/pump"
	"github.com/tamzrod/pump-monitor/internal/transition"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

var ErrNotConnected = errors.New("emitter: mqtt not connected")

type Config struct {
	Broker           string
	ClientID         string
	Username         string
	Password         string
	TopicPrefix      string
	QoS              byte
	PublishSnapshots bool
}

// client is the part of mqtt.Client the emitter uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
}

// MQTTEmitter publishes transition events and, optionally, every snapshot.
// It implements publish.EventSink.
type MQTTEmitter struct {
	cfg    Config
	log    *slog.Logger
	client  client
	raw     mqtt.Client
	metrics *metrics.Metrics
}

// snapshotSink labels the snapshot stream in the sink metrics; events are
// counted by the publisher under SinkName.
const snapshotSink = "mqtt_snapshot"

func NewMQTTEmitter(cfg Config, log *slog.Logger, m *metrics.Metrics) *MQTTEmitter {
	if log == nil {
		log = slog.Default()
	}
	return &MQTTEmitter{
		cfg:     cfg,
		log:     log.With("component", "emitter", "broker", cfg.Broker),
		metrics: m,
	}
}

// Topic layout under the prefix.
func (e *MQTTEmitter) EventTopic(pumpID int) string {
	return e.cfg.TopicPrefix + "/events/" + strconv.Itoa(pumpID)
}
func (e *MQTTEmitter) SnapshotTopic() string { return e.cfg.TopicPrefix + "/snapshot" }
func (e *MQTTEmitter) StatusTopic() string   { return e.cfg.TopicPrefix + "/status" }

// Connect dials the broker. Paho reconnects on its own afterwards; the
// retained status topic flips to "offline" through the will when we vanish.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(e.cfg.Broker)
	opts.SetClientID(e.cfg.ClientID)
	if e.cfg.Username != "" {
		opts.SetUsername(e.cfg.Username)
		opts.SetPassword(e.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetWill(e.StatusTopic(), "offline", 1, true)

	opts.OnConnect = func(c mqtt.Client) {
		e.log.Info("mqtt connection established", "client_id", e.cfg.ClientID)
		c.Publish(e.StatusTopic(), 1, true, "online")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		e.log.Warn("mqtt connection lost, will auto-reconnect", "err", err)
	}

	e.raw = mqtt.NewClient(opts)
	e.client = e.raw

	e.log.Info("connecting to mqtt broker")
	token := e.raw.Connect()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	case <-time.After(connectTimeout):
		// ConnectRetry keeps trying in the background
		e.log.Warn("mqtt connect still pending", "timeout", connectTimeout)
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("emitter: mqtt connect: %w", err)
	}
	return nil
}

func (e *MQTTEmitter) Disconnect() {
	if e.raw != nil && e.raw.IsConnected() {
		e.raw.Publish(e.StatusTopic(), 1, true, "offline").WaitTimeout(publishTimeout)
		e.raw.Disconnect(250)
		e.log.Info("mqtt disconnected")
	}
}

func (e *MQTTEmitter) SinkName() string { return "mqtt" }

// AppendEvent publishes one transition event.
func (e *MQTTEmitter) AppendEvent(_ context.Context, ev transition.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("emitter: marshal event: %w", err)
	}
	return e.publish(e.EventTopic(ev.DeviceID), e.cfg.QoS, false, payload)
}

// PublishSnapshot publishes snap retained, so late subscribers see the current state.
func (e *MQTTEmitter) PublishSnapshot(snap pump.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("emitter: marshal snapshot: %w", err)
	}
	return e.publish(e.SnapshotTopic(), 0, true, payload)
}

// Run publishes snapshots from in until ctx is done or in closes.
func (e *MQTTEmitter) Run(ctx context.Context, in <-chan pump.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-in:
			if !ok {
				return
			}
			if err := e.PublishSnapshot(snap); err != nil {
				e.metrics.SinkFailure(snapshotSink)
				e.log.Debug("snapshot publish failed", "err", err)
				continue
			}
			e.metrics.SinkDelivery(snapshotSink)
		}
	}
}

func (e *MQTTEmitter) publish(topic string, qos byte, retained bool, payload []byte) error {
	if e.client == nil || !e.client.IsConnected() {
		return ErrNotConnected
	}

	token := e.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("emitter: publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("emitter: publish %s: %w", topic, err)
	}

	e.log.Debug("published", "topic", topic, "qos", qos, "size", len(payload))
	return nil
}
