// Package gateway implements the lock-free API/engine message gateway
// (spec §4.6): two single-producer/single-consumer FIFOs per engine
// state, timestamped message delivery with late-clamping, and the WAHP
// "when-all-have-processed" barrier protocol.
package gateway

import "sync/atomic"

// FIFO is a lock-free single-producer/single-consumer ring buffer of T,
// generalized from the same index-pair-of-atomics design used by
// units.RingBuffer for xinsert streams (spec §4.7) to any payload type.
// Write is only ever called from the producer side, Read only from the
// consumer side; capacity is fixed at construction, matching spec §5's
// "no allocation from the engine context."
type FIFO[T any] struct {
	buf        []T
	writeIndex atomic.Uint64
	readIndex  atomic.Uint64
}

// NewFIFO returns a FIFO able to hold capacity pending items.
func NewFIFO[T any](capacity int) *FIFO[T] {
	return &FIFO[T]{buf: make([]T, capacity)}
}

func (f *FIFO[T]) cap() uint64 { return uint64(len(f.buf)) }

// TryWrite appends one item, returning false (OVERFLOW, spec §5) if the
// FIFO is full rather than blocking or allocating.
func (f *FIFO[T]) TryWrite(v T) bool {
	w := f.writeIndex.Load()
	r := f.readIndex.Load()
	if w-r >= f.cap() {
		return false
	}
	f.buf[w%f.cap()] = v
	f.writeIndex.Store(w + 1)
	return true
}

// TryRead removes and returns one item, or the zero value and false if
// empty.
func (f *FIFO[T]) TryRead() (T, bool) {
	var zero T
	r := f.readIndex.Load()
	w := f.writeIndex.Load()
	if r >= w {
		return zero, false
	}
	v := f.buf[r%f.cap()]
	f.buf[r%f.cap()] = zero
	f.readIndex.Store(r + 1)
	return v, true
}

// Len reports the number of items currently queued.
func (f *FIFO[T]) Len() int { return int(f.writeIndex.Load() - f.readIndex.Load()) }

// DrainAll calls fn for every currently queued item, in order.
func (f *FIFO[T]) DrainAll(fn func(T)) {
	for {
		v, ok := f.TryRead()
		if !ok {
			return
		}
		fn(v)
	}
}
