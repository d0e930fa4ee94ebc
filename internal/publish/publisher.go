// internal/publish/publisher.go
package publish

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tamzrod/pump-monitor/internal/metrics"
	"github.com/tamzrod/pump-monitor/internal/pump"
	"github.com/tamzrod/pump-monitor/internal/transition"
)

const (
	// DefaultHistoryEvery is the history cadence in published snapshots.
	DefaultHistoryEvery = 60
	// DefaultQueueSize is the backlog each sink may hold before deliveries drop.
	DefaultQueueSize = 64
	// DefaultSinkTimeout bounds one delivery to one sink.
	DefaultSinkTimeout = 5 * time.Second
)

var ErrQueueFull = errors.New("publish: sink queue full")

// EventSink persists transition events. Append-only.
type EventSink interface {
	AppendEvent(ctx context.Context, e transition.Event) error
}

// HistorySink persists point-in-time readings. Append-only.
type HistorySink interface {
	AppendHistory(ctx context.Context, snap pump.Snapshot) error
}

// Named sinks carry a label for logs and the sink metrics.
type Named interface {
	SinkName() string
}

type Config struct {
	// HistoryEvery writes history on every Nth eligible snapshot. 0 disables history.
	HistoryEvery int
	// HistoryOnError also records error snapshots as history rows.
	HistoryOnError bool
	// QueueSize per sink (0 => DefaultQueueSize).
	QueueSize int
	// SinkTimeout per delivery (0 => DefaultSinkTimeout).
	SinkTimeout time.Duration
}

// Publisher delivers one cycle's output to every destination.
// Publish is called from the monitor goroutine only. Sinks are fed through
// their own bounded queue and goroutine, so a slow sink costs dropped
// deliveries, never acquisition cadence.
type Publisher struct {
	cfg     Config
	feed    *Feed
	log     *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	events  []*sinkQueue
	history []*sinkQueue
	closed  bool

	count uint64
}

func NewPublisher(cfg Config, feed *Feed, log *slog.Logger, m *metrics.Metrics) (*Publisher, error) {
	if feed == nil {
		return nil, errors.New("publish: feed required")
	}
	if cfg.HistoryEvery < 0 || cfg.QueueSize < 0 || cfg.SinkTimeout < 0 {
		return nil, errors.New("publish: history every, queue size and sink timeout must be >= 0")
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.SinkTimeout == 0 {
		cfg.SinkTimeout = DefaultSinkTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{
		cfg:     cfg,
		feed:    feed,
		log:     log.With("component", "publish"),
		metrics: m,
	}, nil
}

func (p *Publisher) AddEventSink(s EventSink) {
	if s == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.events = append(p.events, p.startQueue(&sinkQueue{name: sinkName(s), eventSink: s}))
}

func (p *Publisher) AddHistorySink(s HistorySink) {
	if s == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.history = append(p.history, p.startQueue(&sinkQueue{name: sinkName(s), historySink: s}))
}

// Publish pushes snap to the feed, queues every event for each event sink,
// and queues history on every Nth eligible snapshot. It never waits on a sink.
func (p *Publisher) Publish(_ context.Context, snap pump.Snapshot, events []transition.Event) {
	p.feed.Publish(snap)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	for _, e := range events {
		e := e
		for _, q := range p.events {
			sink := q.eventSink
			p.enqueue(q, delivery{
				action: "append event",
				attrs:  []any{"pump_id", e.DeviceID, "kind", string(e.Kind)},
				run:    func(ctx context.Context) error { return sink.AppendEvent(ctx, e) },
			})
		}
	}

	if !p.historyDue(snap) {
		return
	}
	for _, q := range p.history {
		sink := q.historySink
		p.enqueue(q, delivery{
			action: "append history",
			run:    func(ctx context.Context) error { return sink.AppendHistory(ctx, snap) },
		})
	}
}

// historyDue advances the cadence only on snapshots that may become history,
// so an outage shifts the next row instead of swallowing it.
func (p *Publisher) historyDue(snap pump.Snapshot) bool {
	if p.cfg.HistoryEvery == 0 || len(p.history) == 0 {
		return false
	}
	if !snap.OK() && !p.cfg.HistoryOnError {
		return false
	}
	p.count++
	return p.count%uint64(p.cfg.HistoryEvery) == 0
}

// Latest returns the last published snapshot. It never touches the controller.
func (p *Publisher) Latest() (pump.Snapshot, bool) {
	return p.feed.Latest()
}

// Flush waits until every queued delivery has been attempted.
func (p *Publisher) Flush() {
	p.mu.Lock()
	queues := append(append([]*sinkQueue(nil), p.events...), p.history...)
	p.mu.Unlock()

	for _, q := range queues {
		q.pending.Wait()
	}
}

// Close drains every queue and stops the sink goroutines. Later publishes
// still reach the feed but no sink. Safe to call more than once.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	queues := append(append([]*sinkQueue(nil), p.events...), p.history...)
	p.mu.Unlock()

	for _, q := range queues {
		close(q.ch)
		<-q.done
	}
}

// ---- sink queues ----

type delivery struct {
	action string
	attrs  []any
	run    func(ctx context.Context) error
}

type sinkQueue struct {
	name        string
	eventSink   EventSink
	historySink HistorySink

	ch      chan delivery
	pending sync.WaitGroup
	done    chan struct{}
}

// startQueue allocates q's channel and starts its drain goroutine. Caller holds p.mu.
func (p *Publisher) startQueue(q *sinkQueue) *sinkQueue {
	q.ch = make(chan delivery, p.cfg.QueueSize)
	q.done = make(chan struct{})
	go p.drain(q)
	return q
}

// enqueue hands d to q without blocking. Caller holds p.mu.
func (p *Publisher) enqueue(q *sinkQueue, d delivery) {
	q.pending.Add(1)
	select {
	case q.ch <- d:
	default:
		q.pending.Done()
		p.fail(q.name, d.action, ErrQueueFull, d.attrs...)
	}
}

func (p *Publisher) drain(q *sinkQueue) {
	defer close(q.done)
	for d := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.SinkTimeout)
		err := d.run(ctx)
		cancel()

		if err != nil {
			p.fail(q.name, d.action, err, d.attrs...)
		} else {
			p.metrics.SinkDelivery(q.name)
		}
		q.pending.Done()
	}
}

func (p *Publisher) fail(name, action string, err error, attrs ...any) {
	p.metrics.SinkFailure(name)
	p.log.Error(action, append([]any{"sink", name, "err", err}, attrs...)...)
}

func sinkName(sink any) string {
	if n, ok := sink.(Named); ok {
		return n.SinkName()
	}
	return "unknown"
}
