// Package eventbus fans session lifecycle events out to subscribers.
//
// Publishing never blocks: when a subscriber channel is full the event is
// dropped for that subscriber and counted. Lifecycle events are rare, so a
// channel with a handful of slots is enough for any reasonable consumer.
//
//	bus := eventbus.New()
//	defer bus.Close()
//
//	events := make(chan eventbus.Event, 8)
//	bus.Subscribe("ui", events)
//
//	for ev := range events {
//	    log.Printf("%s: %s", ev.SessionID, ev.Kind)
//	}
package eventbus

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Bus distributes lifecycle events to multiple subscribers.
type Bus interface {
	// Subscribe registers a channel to receive events.
	// Returns error if id already exists or if bus is closed.
	Subscribe(id string, ch chan<- Event) error

	// Unsubscribe removes a subscriber by id.
	// Returns error if id not found or if bus is closed.
	Unsubscribe(id string) error

	// Publish sends ev to all subscribers (non-blocking).
	// Publishing on a closed bus is a no-op.
	Publish(ev Event)

	// Stats returns current bus statistics snapshot.
	Stats() BusStats

	// Close stops the bus. Subscriber channels are not closed.
	Close() error
}

var (
	// ErrSubscriberExists is returned when Subscribe is called with a duplicate id.
	ErrSubscriberExists = errors.New("eventbus: subscriber id already exists")

	// ErrSubscriberNotFound is returned when Unsubscribe is called with unknown id.
	ErrSubscriberNotFound = errors.New("eventbus: subscriber id not found")

	// ErrBusClosed is returned when operations are attempted on a closed bus.
	ErrBusClosed = errors.New("eventbus: bus is closed")

	// ErrNilChannel is returned when Subscribe is called with a nil channel.
	ErrNilChannel = errors.New("eventbus: subscriber channel cannot be nil")
)

// BusStats contains global and per-subscriber metrics.
type BusStats struct {
	// TotalPublished is the number of Publish() calls
	TotalPublished uint64

	// TotalSent is the sum of events sent to all subscribers
	TotalSent uint64

	// TotalDropped is the sum of events dropped across all subscribers
	TotalDropped uint64

	// Subscribers contains per-subscriber breakdown
	Subscribers map[string]SubscriberStats
}

// SubscriberStats tracks metrics for a single subscriber.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

type subscriberStats struct {
	sent    atomic.Uint64
	dropped atomic.Uint64
}

type bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan<- Event
	stats       map[string]*subscriberStats
	closed      bool

	totalPublished atomic.Uint64
}

// New creates a new event bus.
func New() Bus {
	return &bus{
		subscribers: make(map[string]chan<- Event),
		stats:       make(map[string]*subscriberStats),
	}
}

func (b *bus) Subscribe(id string, ch chan<- Event) error {
	if ch == nil {
		return ErrNilChannel
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}

	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}

	b.subscribers[id] = ch
	b.stats[id] = &subscriberStats{}

	return nil
}

func (b *bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}

	if _, exists := b.subscribers[id]; !exists {
		return ErrSubscriberNotFound
	}

	delete(b.subscribers, id)
	delete(b.stats, id)

	return nil
}

// Publish sends ev to all subscribers without blocking.
//
// For each subscriber:
//   - If channel has space: event is sent, Sent counter incremented
//   - If channel is full: event is dropped, Dropped counter incremented
func (b *bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	b.totalPublished.Add(1)

	for id, ch := range b.subscribers {
		select {
		case ch <- ev:
			b.stats[id].sent.Add(1)
		default:
			b.stats[id].dropped.Add(1)
		}
	}
}

func (b *bus) Stats() BusStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := BusStats{
		TotalPublished: b.totalPublished.Load(),
		Subscribers:    make(map[string]SubscriberStats, len(b.stats)),
	}

	for id, stats := range b.stats {
		sent := stats.sent.Load()
		dropped := stats.dropped.Load()

		result.TotalSent += sent
		result.TotalDropped += dropped
		result.Subscribers[id] = SubscriberStats{Sent: sent, Dropped: dropped}
	}

	return result
}

// Close is idempotent. It does NOT close subscriber channels; each
// subscriber owns its channel.
func (b *bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	return nil
}
