// Package driver implements the audio/system driver plugin contract
// (spec §6 "Audio driver contract", "System driver contract"): a thin
// callback seam the engine installs its own per-fragment processing
// into, with both a real-time (PortAudio) and a client-pumped ("buffer")
// implementation, grounded on the original source's a2_audiodriver
// struct and, for the PortAudio call pattern, on the retrieval pack's
// own blocking-stream usage.
package driver

import "github.com/olofson/a2core/pool"

// ProcessFunc is the callback an Audio installs itself as: render
// `frames` samples into buffers, one *pool.Buffer per channel, each
// at least `frames` long (spec §6 "The engine installs itself as
// Process; the driver invokes it once per buffer with a frame count").
type ProcessFunc func(buffers []*pool.Buffer, frames int) error

// Audio is the audio driver plugin contract (spec §6). Real-time
// drivers run Process from their own callback thread; buffer drivers
// are pumped explicitly via Run, for off-line rendering and substate
// composition.
type Audio interface {
	// Open starts the driver at the given sample rate/channel count,
	// with bufferFrames as its native fragment size, installing fn as
	// the per-fragment render callback.
	Open(samplerate, channels, bufferFrames int, fn ProcessFunc) error
	// Close stops the stream but leaves the driver instance reusable.
	Close() error
	// Destroy releases the driver instance entirely.
	Destroy() error
	// Lock/Unlock serialize engine-context processing against the
	// driver's own callback thread (spec: "LockAllStates/UnlockAllStates
	// ... take the audio driver's lock on each state").
	Lock()
	Unlock()
}

// MIDI is the MIDI driver plugin contract (spec §6 "MIDI driver
// contract"): Poll is called once per audio callback and translates
// buffered MIDI bytes into Send calls on a configured target voice.
type MIDI interface {
	Poll(frames int) error
}

// NopMIDI is a MIDI driver that never produces events, used when no
// MIDI driver is configured (spec: MIDI driver plugins are "a callback
// contract only", out of scope to implement for real).
type NopMIDI struct{}

func (NopMIDI) Poll(frames int) error { return nil }

// System is the system driver plugin contract (spec §6 "System driver
// contract"): used during init/teardown and, in the default config,
// from the engine context for pool growth.
type System interface {
	RTAlloc(size int) []byte
	RTFree(buf []byte)
}

// DefaultSystem bypasses straight to Go's allocator, per spec's
// "Implementations may bypass to malloc/free" allowance — RTFree is a
// no-op since the garbage collector reclaims it.
type DefaultSystem struct{}

func (DefaultSystem) RTAlloc(size int) []byte { return make([]byte, size) }
func (DefaultSystem) RTFree(buf []byte)       {}
