// internal/publish/feed.go
package publish

import (
	"errors"
	"sync"

	"github.com/tamzrod/pump-monitor/internal/metrics"
	"github.com/tamzrod/pump-monitor/internal/pump"
)

var (
	ErrFeedClosed = errors.New("publish: feed closed")
	ErrSubscribed = errors.New("publish: subscriber already exists")
)

// Feed fans snapshots out to subscribers with a drop-old policy:
// each subscriber holds at most one pending snapshot, the newest.
// Publishing never blocks on a slow subscriber; replaced snapshots are
// counted per subscriber in feed_dropped_total.
type Feed struct {
	mu      sync.RWMutex
	subs    map[string]*Subscription
	latest  *pump.Snapshot
	closed  bool
	metrics *metrics.Metrics
}

func NewFeed(m *metrics.Metrics) *Feed {
	return &Feed{subs: make(map[string]*Subscription), metrics: m}
}

// Subscription receives the latest snapshot. C is closed on Unsubscribe or Feed.Close.
type Subscription struct {
	id string

	mu     sync.Mutex
	ch     chan pump.Snapshot
	closed bool
}

func (s *Subscription) C() <-chan pump.Snapshot { return s.ch }

// set replaces the pending snapshot, if any, and reports whether one was dropped.
func (s *Subscription) set(snap pump.Snapshot) (dropped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case <-s.ch:
		dropped = true
	default:
	}
	s.ch <- snap
	return dropped
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Subscribe registers id. A subscriber joining after the first publish
// immediately holds the latest snapshot.
func (f *Feed) Subscribe(id string) (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrFeedClosed
	}
	if _, ok := f.subs[id]; ok {
		return nil, ErrSubscribed
	}

	s := &Subscription{id: id, ch: make(chan pump.Snapshot, 1)}
	if f.latest != nil {
		s.ch <- *f.latest
	}
	f.subs[id] = s
	return s, nil
}

func (f *Feed) Unsubscribe(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.subs[id]; ok {
		s.close()
		delete(f.subs, id)
	}
}

// Publish stores snap as the latest value and hands it to every subscriber.
func (f *Feed) Publish(snap pump.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.latest = &snap
	for _, s := range f.subs {
		if s.set(snap) {
			f.metrics.FeedDropped(s.id)
		}
	}
}

// Latest returns the most recently published snapshot.
func (f *Feed) Latest() (pump.Snapshot, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.latest == nil {
		return pump.Snapshot{}, false
	}
	return *f.latest, true
}

func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Close closes every subscription. Later publishes are ignored.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	for id, s := range f.subs {
		s.close()
		delete(f.subs, id)
	}
}
