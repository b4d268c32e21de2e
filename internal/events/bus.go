// Package events carries controller lifecycle notifications to in-process
// observers. Publishing never blocks the control loop: a slow subscriber
// loses events rather than stalling execution.
package events

import (
	"sync"
)

// Bus is a channel-based pub-sub fanout over lifecycle events.
type Bus struct {
	mu     sync.RWMutex
	subs   []chan Event
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a channel receiving every published event. bufSize
// defaults to 256 when non-positive. Subscribing after Close yields a
// closed channel.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	if bufSize <= 0 {
		bufSize = 256
	}
	ch := make(chan Event, bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers the event to every subscriber whose buffer has room.
// Full buffers drop the event for that subscriber.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close closes all subscriber channels. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
}
