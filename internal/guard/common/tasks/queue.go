// Package tasks provides the bounded background queue that carries
// fire-and-forget work (recording, UI notifications) off the synchronous
// decision path.
package tasks

import (
	"sync"
	"sync/atomic"

	"github.com/haukened/surfguard/internal/guard/common/log"
)

// Queue runs submitted functions on a single worker goroutine, preserving
// submission order. Submit never blocks: when the queue is full the task is
// dropped and counted, because delaying the caller is worse than losing a
// background recording.
type Queue struct {
	mu      sync.RWMutex
	ch      chan func()
	closed  bool
	logger  log.Logger
	dropped atomic.Uint64
	done    chan struct{}
}

// New creates a Queue with the given capacity and starts its worker.
// Capacity must be at least 1.
func New(capacity int, logger log.Logger) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue{
		ch:     make(chan func(), capacity),
		logger: logger,
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for fn := range q.ch {
		fn()
	}
}

// Submit enqueues fn for background execution. Returns false when the task
// was dropped (queue full or closed).
func (q *Queue) Submit(fn func()) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.dropped.Add(1)
		return false
	}
	select {
	case q.ch <- fn:
		return true
	default:
		n := q.dropped.Add(1)
		q.logger.Warn(map[string]any{"dropped": n}, "task queue full, dropping task")
		return false
	}
}

// Dropped returns the number of tasks dropped so far.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Close stops accepting tasks and waits for queued ones to finish.
// Safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()
	<-q.done
}
