// Package ring implements the bounded multi-producer/multi-consumer event
// queue between the storage hooks and the worker pool: non-blocking
// enqueue (fails fast on Full), blocking dequeue with a per-call timeout,
// and a shutdown signal that wakes every blocked consumer.
//
// Built on sync.Mutex/sync.Cond. A lock-free MPMC would serve too, but
// nothing here needs it: producers only touch the lock for the few
// instructions of an enqueue, and consumers spend their time parked on the
// condvar anyway.
package ring

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrFull is returned by Enqueue when the buffer already holds
	// Capacity items.
	ErrFull = errors.New("ring: buffer full")
	// ErrTimeout is returned by Dequeue when no item arrives before the
	// requested timeout elapses.
	ErrTimeout = errors.New("ring: dequeue timeout")
	// ErrShutdown is returned by Dequeue once Shutdown has been called
	// and the buffer has drained, and by Enqueue on any call after
	// Shutdown.
	ErrShutdown = errors.New("ring: shut down")
)

// Buffer is a fixed-capacity FIFO queue safe for concurrent producers and
// consumers.
type Buffer[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []T
	head     int
	count    int
	capacity int
	shutdown bool
}

// New returns an empty Buffer with room for capacity items.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	b := &Buffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Enqueue appends item to the tail of the queue. It never blocks: if the
// queue is already full it returns ErrFull immediately so a producer (the
// storage engine's write path) is never slowed down by the backup
// subsystem.
func (b *Buffer[T]) Enqueue(item T) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shutdown {
		return ErrShutdown
	}
	if b.count == b.capacity {
		return ErrFull
	}
	tail := (b.head + b.count) % b.capacity
	b.items[tail] = item
	b.count++
	b.cond.Broadcast()
	return nil
}

// Dequeue blocks until an item is available, the timeout elapses, or the
// buffer is shut down.
func (b *Buffer[T]) Dequeue(timeout time.Duration) (T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	deadline := time.Now().Add(timeout)
	for b.count == 0 && !b.shutdown {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return zero, ErrTimeout
		}
		timer := time.AfterFunc(remaining, func() {
			b.mu.Lock()
			b.cond.Broadcast()
			b.mu.Unlock()
		})
		b.cond.Wait()
		timer.Stop()
	}
	if b.count == 0 {
		// Woken only because of shutdown, with nothing left to drain.
		return zero, ErrShutdown
	}

	item := b.items[b.head]
	b.items[b.head] = zero
	b.head = (b.head + 1) % b.capacity
	b.count--
	return item, nil
}

// Shutdown wakes every blocked consumer with ErrShutdown (once the queue
// has drained) and causes all subsequent Enqueue calls to fail. Idempotent.
func (b *Buffer[T]) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shutdown = true
	b.cond.Broadcast()
}

// Len returns the number of items currently queued.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the buffer's fixed capacity.
func (b *Buffer[T]) Cap() int { return b.capacity }
