// Package eventbus implements the Event Bus: a single-process
// publish/subscribe log backed by a bounded ring buffer, fanning out to
// per-subscriber bounded queues that drop their oldest entry rather than
// stall the publisher or any other subscriber.
package eventbus

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/cloudorch/orchestrator/internal/model"
)

const (
	defaultRingCapacity       = 1000
	defaultSubscriberQueueCap = 64
	defaultHeartbeatInterval  = 15 * time.Second
)

// Config tunes the bus's buffer sizes and heartbeat cadence. Values
// normally come from internal/config.EventsConfig.
type Config struct {
	RingCapacity            int
	SubscriberQueueCapacity int
	HeartbeatInterval       time.Duration
}

func (c Config) ringCapacity() int {
	if c.RingCapacity <= 0 {
		return defaultRingCapacity
	}
	return c.RingCapacity
}

func (c Config) subscriberQueueCapacity() int {
	if c.SubscriberQueueCapacity <= 0 {
		return defaultSubscriberQueueCap
	}
	return c.SubscriberQueueCapacity
}

func (c Config) heartbeatInterval() time.Duration {
	if c.HeartbeatInterval <= 0 {
		return defaultHeartbeatInterval
	}
	return c.HeartbeatInterval
}

// EventHeartbeat is the synthetic event type emitted on the configured
// heartbeat interval so clients can detect a dead connection.
const EventHeartbeat = "heartbeat"

// Subscription is a live handle to the bus's fan-out. Events reads the
// feed; Dropped reports how many events this subscription has lost to
// queue pressure.
type Subscription struct {
	id      uint64
	ch      chan model.Event
	dropped uint64
	mu      sync.Mutex
	bus     *Bus
}

// Events returns the channel future and replayed events arrive on. It is
// closed by Unsubscribe.
func (s *Subscription) Events() <-chan model.Event {
	return s.ch
}

// Dropped returns the number of events this subscription has lost
// because its queue was full when they were published.
func (s *Subscription) Dropped() uint64 {
	return atomic.LoadUint64(&s.dropped)
}

func (s *Subscription) deliver(ev model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case s.ch <- ev:
		return
	default:
	}

	select {
	case <-s.ch:
		atomic.AddUint64(&s.dropped, 1)
	default:
	}

	select {
	case s.ch <- ev:
	default:
		atomic.AddUint64(&s.dropped, 1)
	}
}

// Bus is a ring-buffered publish/subscribe log. A Bus value is safe for
// concurrent use.
type Bus struct {
	config Config

	mu       sync.Mutex
	ring     []model.Event
	writeIdx int
	count    int
	nextSeq  uint64

	subMu     sync.Mutex
	subs      map[uint64]*Subscription
	nextSubID uint64

	stopHeartbeat chan struct{}
	heartbeatOnce sync.Once
}

// New constructs a Bus and starts its heartbeat loop.
func New(config Config) *Bus {
	b := &Bus{
		config:        config,
		ring:          make([]model.Event, config.ringCapacity()),
		subs:          make(map[uint64]*Subscription),
		stopHeartbeat: make(chan struct{}),
	}
	go b.runHeartbeat()
	return b
}

// Close stops the heartbeat loop and closes every subscriber channel.
func (b *Bus) Close() {
	b.heartbeatOnce.Do(func() { close(b.stopHeartbeat) })

	b.subMu.Lock()
	defer b.subMu.Unlock()
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}

func (b *Bus) runHeartbeat() {
	ticker := time.NewTicker(b.config.heartbeatInterval())
	defer ticker.Stop()
	for {
		select {
		case <-b.stopHeartbeat:
			return
		case <-ticker.C:
			b.Publish(model.Event{Type: EventHeartbeat})
		}
	}
}

// Publish appends event to the ring buffer (overwriting the oldest entry
// once full) and fans it out to every current subscriber. It never
// blocks: a subscriber with a full queue has its oldest queued event
// dropped instead. Publish assigns EventID and Timestamp when unset, so
// callers need only set Type and Payload.
func (b *Bus) Publish(event model.Event) model.Event {
	b.mu.Lock()
	b.nextSeq++
	if event.EventID == "" {
		event.EventID = strconv.FormatUint(b.nextSeq, 10)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.ring[b.writeIdx] = event
	b.writeIdx = (b.writeIdx + 1) % len(b.ring)
	if b.count < len(b.ring) {
		b.count++
	}
	b.mu.Unlock()

	b.subMu.Lock()
	targets := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		targets = append(targets, sub)
	}
	b.subMu.Unlock()

	var wg conc.WaitGroup
	for _, sub := range targets {
		sub := sub
		wg.Go(func() { sub.deliver(event) })
	}
	wg.Wait()

	return event
}

// Subscribe hands the caller a live feed of future events. When replay is
// positive, up to replay of the most recently published events (oldest
// first) are delivered on the new subscription before any future event.
func (b *Bus) Subscribe(replay int) *Subscription {
	sub := &Subscription{
		ch:  make(chan model.Event, b.config.subscriberQueueCapacity()),
		bus: b,
	}

	b.subMu.Lock()
	b.nextSubID++
	sub.id = b.nextSubID
	b.subs[sub.id] = sub
	b.subMu.Unlock()

	if replay > 0 {
		b.mu.Lock()
		events := b.recentLocked(replay)
		b.mu.Unlock()
		for _, ev := range events {
			sub.deliver(ev)
		}
	}

	return sub
}

// Unsubscribe releases sub's slot in the bus. Its channel is closed; the
// caller must stop reading from Events after calling this.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.ch)
}

// Recent returns a snapshot of the most recently published events, oldest
// first, capped at limit (and at the ring's capacity).
func (b *Bus) Recent(limit int) []model.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recentLocked(limit)
}

func (b *Bus) recentLocked(limit int) []model.Event {
	if limit <= 0 || limit > b.count {
		limit = b.count
	}
	out := make([]model.Event, limit)
	// The ring's oldest live entry sits at writeIdx when full, or at
	// index 0 when it has never wrapped.
	start := (b.writeIdx - b.count + len(b.ring)) % len(b.ring)
	first := (start + b.count - limit) % len(b.ring)
	for i := 0; i < limit; i++ {
		out[i] = b.ring[(first+i)%len(b.ring)]
	}
	return out
}
