// Package broadcast fans values out to any number of subscribers.
//
// Delivery is at-most-once: a subscriber whose buffer is full misses the
// value instead of blocking the publisher. Each subscriber sees values in
// publish order.
package broadcast

import "sync"

// Broadcaster distributes published values to subscribers
type Broadcaster[T any] struct {
	mu     sync.RWMutex
	subs   map[uint64]chan T
	next   uint64
	closed bool
}

// New creates an empty broadcaster
func New[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[uint64]chan T)}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// cancel function unregisters it and closes the channel; it is safe to call
// more than once.
func (b *Broadcaster[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan T, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	key := b.next
	b.next++
	b.subs[key] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[key]; ok {
				delete(b.subs, key)
				close(sub)
			}
		})
	}
}

// Publish delivers v to every subscriber that has room for it and returns
// the number of subscribers that missed it.
func (b *Broadcaster[T]) Publish(v T) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}

	missed := 0
	for _, ch := range b.subs {
		select {
		case ch <- v:
		default:
			missed++
		}
	}
	return missed
}

// Len returns the number of active subscribers
func (b *Broadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later Subscribe calls receive a
// closed channel.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for key, ch := range b.subs {
		delete(b.subs, key)
		close(ch)
	}
}
