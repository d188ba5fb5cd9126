// Package events provides an in-process publish/subscribe hub for
// conversation events. Subscribers follow one topic, usually a tenant's
// conversation; each event is stamped with a per-topic sequence number
// before delivery.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/rhuss/trianswer/pkg/api"
)

// DefaultBufferSize is the per-subscriber channel capacity.
const DefaultBufferSize = 64

// Hub fans events out to topic subscribers. Delivery never blocks
// the publisher: an event that does not fit a subscriber's buffer is
// dropped for that subscriber and counted.
type Hub struct {
	mu         sync.Mutex
	subs       map[string]map[int]chan api.Event
	seq        map[string]int64
	nextID     int
	bufferSize int
	closed     bool

	// OnDrop, when set before the first Publish, is called for every
	// dropped delivery.
	OnDrop func()

	dropped atomic.Int64
}

// NewHub creates a hub. bufferSize <= 0 selects DefaultBufferSize.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		subs:       make(map[string]map[int]chan api.Event),
		seq:        make(map[string]int64),
		bufferSize: bufferSize,
	}
}

// Subscribe returns a channel of events for topic and a cancel
// func that unsubscribes and closes the channel. Cancel is idempotent.
// Subscribing to a closed hub returns an already closed channel.
func (h *Hub) Subscribe(topic string) (<-chan api.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan api.Event, h.bufferSize)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[int]chan api.Event)
	}
	h.subs[topic][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() { h.unsubscribe(topic, id) })
	}
}

func (h *Hub) unsubscribe(topic string, id int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subs[topic]
	ch, ok := subs[id]
	if !ok {
		return
	}
	delete(subs, id)
	close(ch)
	if len(subs) == 0 {
		delete(h.subs, topic)
	}
}

// Publish stamps ev with the next sequence number of topic and delivers
// it. It returns the stamped event. Publishing on a closed hub is a no-op.
func (h *Hub) Publish(topic string, ev api.Event) api.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ev
	}
	h.seq[topic]++
	ev.SequenceNumber = h.seq[topic]

	for _, ch := range h.subs[topic] {
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
			if h.OnDrop != nil {
				h.OnDrop()
			}
		}
	}
	return ev
}

// Subscribers returns the number of subscribers of topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[topic])
}

// Dropped returns how many deliveries were dropped on full buffers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close closes every subscriber channel. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for topic, subs := range h.subs {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(h.subs, topic)
	}
}
