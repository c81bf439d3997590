// Package broker holds the relay's write path: the single-writer Writer
// and the lossy Broadcast Bus that fans published events out to every
// connection. It generalizes the teacher's publish.S / publisher.I
// registry (orly.dev/publish, orly.dev/interfaces/publisher) from a
// type-keyed dispatcher to a straightforward per-subscriber fan-out,
// since this relay only ever broadcasts one message type.
package broker

import (
	"sync"

	"brokerly.dev/event"
)

// DefaultBacklog is the default buffered channel capacity per
// subscriber.
const DefaultBacklog = 64

// Bus is a lossy multi-producer multi-consumer broadcast channel: every
// Publish fans out to every registered subscriber's buffered channel; a
// subscriber that can't keep up is cut loose rather than made to block
// the publisher.
type Bus struct {
	mu      sync.Mutex
	backlog int
	subs    map[uint64]chan *event.E
	nextID  uint64
}

// NewBus creates a Bus whose subscriber channels have the given backlog
// capacity (DefaultBacklog if backlog <= 0).
func NewBus(backlog int) *Bus {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	return &Bus{backlog: backlog, subs: map[uint64]chan *event.E{}}
}

// Subscribe registers a new receiver and returns its id (for
// Unsubscribe) and its receive channel. The channel closing with no
// further events is the lagged signal (the same one-shot closed-channel
// idiom the Cancellation Plane uses): the Connection Handler answers it
// with a "resync required" NOTICE and ends the connection, so the client
// resyncs by reconnecting and re-issuing its subscriptions.
func (b *Bus) Subscribe() (id uint64, ch <-chan *event.E) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id = b.nextID
	c := make(chan *event.E, b.backlog)
	b.subs[id] = c
	return id, c
}

// Unsubscribe removes and closes a subscriber's channel. Safe to call
// more than once or after the subscriber was already dropped for
// lagging.
func (b *Bus) Unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(c)
	}
}

// Publish fans e out to every subscriber. A subscriber whose channel is
// already full has lagged past its backlog: its channel is closed and it
// is dropped from the bus rather than ever blocking the publisher. The
// Connection Handler observes the close, emits a NOTICE, and closes the
// connection.
func (b *Bus) Publish(e *event.E) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, c := range b.subs {
		select {
		case c <- e:
		default:
			close(c)
			delete(b.subs, id)
		}
	}
}

// Len reports the number of active subscribers, for diagnostics.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
