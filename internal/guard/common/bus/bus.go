// Package bus implements a minimal typed publish/subscribe primitive.
// Delivery is asynchronous: publishers never wait on subscribers, which
// keeps event fan-out off the synchronous decision path.
package bus

import "sync"

// Topic is a single-event-type channel between a publisher and any number
// of subscribers.
type Topic[T any] struct {
	mu   sync.RWMutex
	subs map[uint64]func(T)
	next uint64
}

// New creates an empty Topic.
func New[T any]() *Topic[T] {
	return &Topic[T]{subs: make(map[uint64]func(T))}
}

// Subscribe registers fn and returns a cancel function that removes the
// subscription. Cancel is safe to call more than once.
func (t *Topic[T]) Subscribe(fn func(T)) (cancel func()) {
	t.mu.Lock()
	id := t.next
	t.next++
	t.subs[id] = fn
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
		})
	}
}

// Publish delivers v to every current subscriber, each on its own
// goroutine. Ordering across concurrent publishes is not guaranteed.
func (t *Topic[T]) Publish(v T) {
	t.mu.RLock()
	fns := make([]func(T), 0, len(t.subs))
	for _, fn := range t.subs {
		fns = append(fns, fn)
	}
	t.mu.RUnlock()

	for _, fn := range fns {
		go fn(v)
	}
}

// Len returns the number of active subscriptions.
func (t *Topic[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}
