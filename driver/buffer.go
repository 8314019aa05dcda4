package driver

import (
	"sync"

	"github.com/olofson/a2core/pool"
)

// Buffer is a client-pumped Audio driver with no real device: Run is
// called explicitly (by a render.Renderer or a substate's host voice)
// instead of a hardware callback thread (spec §6 "'buffer' (client-
// pumped via Run(frames)), the latter used for off-line rendering and
// substate composition").
type Buffer struct {
	mu sync.Mutex

	channels int
	frames   int
	fn       ProcessFunc

	busBufs []*pool.Buffer
	// Interleaved holds the most recent Run's output, one call's worth
	// of frames*channels samples, for the caller to consume (write to a
	// WAV encoder, accumulate into a render target, etc).
	Interleaved []float32
}

func (b *Buffer) Open(samplerate, channels, bufferFrames int, fn ProcessFunc) error {
	b.channels = channels
	b.frames = bufferFrames
	b.fn = fn
	b.busBufs = make([]*pool.Buffer, channels)
	for i := range b.busBufs {
		b.busBufs[i] = new(pool.Buffer)
	}
	b.Interleaved = make([]float32, bufferFrames*channels)
	return nil
}

// Run renders one fragment of up to the driver's configured buffer
// size (frames may be smaller, for a final partial fragment), leaving
// the interleaved result in b.Interleaved.
func (b *Buffer) Run(frames int) error {
	if frames > b.frames {
		frames = b.frames
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fn(b.busBufs, frames); err != nil {
		return err
	}
	interleave(b.Interleaved, b.busBufs, b.channels, frames)
	return nil
}

func (b *Buffer) Close() error   { return nil }
func (b *Buffer) Destroy() error { return nil }
func (b *Buffer) Lock()          { b.mu.Lock() }
func (b *Buffer) Unlock()        { b.mu.Unlock() }
