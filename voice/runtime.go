// Package voice implements the hierarchical voice graph and DSP
// scheduling (spec §4.3): voice instantiation, recursive per-fragment
// processing, and the unit-instantiation ("INITV") algorithm of §4.2.
package voice

import (
	"github.com/olofson/a2core/errors"
	"github.com/olofson/a2core/fixed"
	"github.com/olofson/a2core/pool"
	"github.com/olofson/a2core/program"
	"github.com/olofson/a2core/unit"
	"github.com/olofson/a2core/wave"
)

// ErrorSink receives engine-context errors for posting to the API
// (spec §7 "Errors arising in the engine thread... are posted via
// toapi as ERROR messages").
type ErrorSink func(err error, voiceHandle int32)

// Runtime is the shared substrate every Voice in a tree is processed
// against: pools, the unit-descriptor registry, scratch buses, object
// resolvers, and the global sample clock. One Runtime per engine state
// (spec §2 "State/substate"); substates get their own Runtime sharing
// the parent's unit registry.
type Runtime struct {
	SampleRate int

	Registry *unit.Registry

	bufPool *pool.Pool[*pool.Buffer]
	voicePool *pool.Pool[*Voice]

	scratch [pool.MaxNesting]*pool.Bus

	ResolveWave    func(handle int32) *wave.Wave
	ResolveProgram func(handle int32) *program.Program

	now fixed.P8

	OnError ErrorSink

	// OnVoiceBound is called once a START event's spawned subvoice is
	// ready, binding it to the pre-allocated "new-voice" handle the API
	// call already returned (spec §3 Invariants: "after one audio
	// callback, TypeOf(h) == voice").
	OnVoiceBound func(handle int32, v *Voice)
}

// NewRuntime builds a Runtime at the given sample rate, using reg as
// the (already-populated) unit descriptor registry.
func NewRuntime(samplerate int, reg *unit.Registry) *Runtime {
	rt := &Runtime{SampleRate: samplerate, Registry: reg}
	rt.bufPool = pool.NewBusPool()
	rt.bufPool.Grow(256)
	rt.voicePool = pool.New(func() *Voice { return &Voice{} }, func(v *Voice) { v.reset() })
	rt.voicePool.Grow(64)
	return rt
}

// Now returns the runtime's current absolute sample-frame clock.
func (rt *Runtime) Now() fixed.P8 { return rt.now }

// Advance moves the runtime clock forward by frames (called once per
// processed fragment by the owning engine state).
func (rt *Runtime) Advance(frames int) { rt.now = rt.now.Add(fixed.FromFrames(int64(frames))) }

func (rt *Runtime) getBuffer() (*pool.Buffer, error) {
	b, ok := rt.bufPool.Get()
	if !ok {
		rt.bufPool.Grow(32) // emergency growth (allocates; not logged)
		b, ok = rt.bufPool.Get()
		if !ok {
			return nil, errors.New(errors.OOMEMORY, "voice.getBuffer")
		}
	}
	return b, nil
}

func (rt *Runtime) putBuffer(b *pool.Buffer) { rt.bufPool.Put(b) }

// scratchBus returns (allocating on first use) the scratch bus for
// nesting level, sized to at least minChannels (spec §3 "Scratch buses
// are sized to the maximum of any unit's in/out count...").
func (rt *Runtime) scratchBus(level, minChannels int) (*pool.Bus, error) {
	if level < 0 || level >= pool.MaxNesting {
		return nil, errors.New(errors.VOICENEST, "voice.scratchBus")
	}
	bus := rt.scratch[level]
	if bus == nil {
		bus = &pool.Bus{}
		rt.scratch[level] = bus
	}
	for bus.Channels < minChannels {
		buf, err := rt.getBuffer()
		if err != nil {
			return nil, err
		}
		bus.Buffers = append(bus.Buffers, buf)
		bus.Channels++
	}
	return bus, nil
}

func (rt *Runtime) newVoice() (*Voice, error) {
	v, ok := rt.voicePool.Get()
	if !ok {
		return nil, errors.New(errors.VOICEALLOC, "voice.newVoice")
	}
	return v, nil
}

func (rt *Runtime) freeVoice(v *Voice) { rt.voicePool.Put(v) }

func (rt *Runtime) reportError(err error, voiceHandle int32) {
	if rt.OnError != nil {
		rt.OnError(err, voiceHandle)
	}
}
