// Package bus implements a typed publish/subscribe fan-out for decoded
// packets and store-derived notifications. Subscribers are invoked
// synchronously in registration order; a subscription returns a cancel
// handle, and unsubscribing is idempotent.
package bus

import "sync"

// Event is anything published on the bus. The driver publishes decoded
// packet events (*codec.SynthesizePacket etc.); the store publishes
// ChannelChanged and MachineTypeChanged, and the command layer publishes
// OutputToggleTimedOut. Framing, decode and validation errors are not
// published: they are counted in metrics and logged.
type Event any

// Handler receives a published event. Handlers run synchronously on the
// publisher's goroutine and must not block indefinitely: a slow handler
// delays delivery to handlers registered after it, but correctness only
// requires that it not reorder delivery to others.
type Handler func(Event)

// Cancel unsubscribes the handler it was returned for. Calling Cancel more
// than once is a no-op.
type Cancel func()

type subscription struct {
	id      uint64
	handler Handler
}

// Bus fans out published events to all current subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
}

// New returns an empty Bus.
func New() *Bus { return &Bus{} }

// Subscribe registers h and returns a Cancel handle to later remove it.
func (b *Bus) Subscribe(h Handler) Cancel {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every currently registered subscriber, in
// registration order, synchronously on the caller's goroutine.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()
	for _, s := range subs {
		s.handler(ev)
	}
}

// Count returns the number of currently registered subscribers.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
