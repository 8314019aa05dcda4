package units

import "sync/atomic"

// RingBuffer is a lock-free single-producer/single-consumer float32
// ring, backing an xinsert stream client (spec §4.7: "an optional
// stream handle with a lock-free FIFO for buffered producer/consumer
// access").
type RingBuffer struct {
	buf        []float32
	writeIndex atomic.Uint64
	readIndex  atomic.Uint64
}

func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{buf: make([]float32, capacity)}
}

func (r *RingBuffer) cap() uint64 { return uint64(len(r.buf)) }

// Write appends as many samples as fit, returning the count written.
func (r *RingBuffer) Write(samples []float32) int {
	w := r.writeIndex.Load()
	readIdx := r.readIndex.Load()
	free := r.cap() - (w - readIdx)
	n := uint64(len(samples))
	if n > free {
		n = free
	}
	for i := uint64(0); i < n; i++ {
		r.buf[(w+i)%r.cap()] = samples[i]
	}
	r.writeIndex.Store(w + n)
	return int(n)
}

// Read consumes up to len(out) samples, returning the count read.
func (r *RingBuffer) Read(out []float32) int {
	rIdx := r.readIndex.Load()
	w := r.writeIndex.Load()
	avail := w - rIdx
	n := uint64(len(out))
	if n > avail {
		n = avail
	}
	for i := uint64(0); i < n; i++ {
		out[i] = r.buf[(rIdx+i)%r.cap()]
	}
	r.readIndex.Store(rIdx + n)
	return int(n)
}

// Available reports how many samples are pending for the reader.
func (r *RingBuffer) Available() int {
	return int(r.writeIndex.Load() - r.readIndex.Load())
}
