// Package pool implements fixed-size block recycling for the engine's
// audio path: sample buffers, VM call-stack frames, event nodes and
// voice structs are all drawn from generic free-list pools so that, per
// spec §3 "Invariants", no memory allocation happens on the engine
// thread between audio fragments.
//
// A Pool[T] pre-allocates its blocks with Grow (called only at state
// creation, or from outside the real-time path) and thereafter only
// ever moves blocks between the free list and callers via Get/Put.
package pool

// Pool recycles fixed-size values of type T without further allocation
// once primed. T is typically *Something; Pool stores pointers so Put
// doesn't need the zero value to "reset" anything itself.
type Pool[T any] struct {
	free  []T
	new   func() T
	reset func(T)

	grown int
	gets  int
	puts  int
}

// New creates a pool whose blocks are produced by newFn and cleared by
// resetFn (resetFn may be nil if nothing needs clearing).
func New[T any](newFn func() T, resetFn func(T)) *Pool[T] {
	return &Pool[T]{new: newFn, reset: resetFn}
}

// Grow allocates n additional blocks and adds them to the free list.
// This is the only method allowed to allocate; callers must invoke it
// outside the audio callback (at startup, or under the system driver's
// RTAlloc hook for controlled background growth).
func (p *Pool[T]) Grow(n int) {
	for i := 0; i < n; i++ {
		p.free = append(p.free, p.new())
	}
	p.grown += n
}

// Get removes and returns a block from the free list, or the zero value
// and false if the pool is exhausted (callers map this to OOMEMORY).
func (p *Pool[T]) Get() (T, bool) {
	var zero T
	n := len(p.free)
	if n == 0 {
		return zero, false
	}
	v := p.free[n-1]
	p.free[n-1] = zero
	p.free = p.free[:n-1]
	p.gets++
	return v, true
}

// Put returns a block to the free list.
func (p *Pool[T]) Put(v T) {
	if p.reset != nil {
		p.reset(v)
	}
	p.free = append(p.free, v)
	p.puts++
}

// Available reports the number of blocks currently free.
func (p *Pool[T]) Available() int { return len(p.free) }

// NetChange is Puts-minus-Gets since creation; spec §8 requires this to
// be >= 0 for the engine thread's pools in steady state (no leaks).
func (p *Pool[T]) NetChange() int { return p.puts - p.gets }

// MaxFrag is A2_MAXFRAG: the largest number of frames any single unit
// Process call, or any single audio buffer fragment, may cover.
const MaxFrag = 256

// Buffer is one fixed-size audio sample block, the unit of recycling
// for the bus pool.
type Buffer [MaxFrag]float32

// Bus is a small channel-count + buffer-pointer-array struct (spec §3
// "Bus"): one master bus plus one scratch bus per nesting level.
type Bus struct {
	Channels int
	Buffers  []*Buffer
}

// NewBusPool returns a pool of zeroed Buffers suitable for Bus.Buffers.
func NewBusPool() *Pool[*Buffer] {
	return New(
		func() *Buffer { return new(Buffer) },
		func(b *Buffer) { *b = Buffer{} },
	)
}

// MaxNesting is the maximum voice-tree depth (spec §3: "up to 255").
const MaxNesting = 255

// SVLUTSize is A2_SV_LUT_SIZE, the size of the direct subvoice-ID
// lookup table (spec §4.3).
const SVLUTSize = 16
