// Package rchm implements the engine's typed, reference-counted handle
// table (spec §4.1): a fixed-capacity growable array of slots, each
// carrying a type tag, a small user-flag byte, a refcount and a payload.
//
// The name echoes the "RCHM" (ref-counted handle manager) the original
// engine's error codes alias into (spec: "These first codes should
// match RCHM_errors").
package rchm

import (
	"sync"

	"github.com/olofson/a2core/errors"
)

// Type is the 16-bit type tag stored per slot.
type Type uint16

const (
	TNone Type = iota
	TBank
	TWave
	TProgram
	TUnitDescriptor
	TString
	TConstant
	TStream
	TXIClient
	TNewVoice
	TVoice
	TDetached
)

// String names a type tag, matching the original engine's a2_TypeName
// table (used by the CLI's -x/-xr export-tree printer).
func (t Type) String() string {
	switch t {
	case TBank:
		return "bank"
	case TWave:
		return "wave"
	case TProgram:
		return "program"
	case TUnitDescriptor:
		return "unit"
	case TString:
		return "string"
	case TConstant:
		return "constant"
	case TStream:
		return "stream"
	case TXIClient:
		return "xiclient"
	case TNewVoice:
		return "new-voice"
	case TVoice:
		return "voice"
	case TDetached:
		return "detached"
	default:
		return "none"
	}
}

// UserBits are the small per-handle flag byte.
type UserBits uint8

const (
	Locked UserBits = 1 << iota
	APIOwned
	Attached
)

// Handle is an integer index into the table.
type Handle int32

const Invalid Handle = 0

// Destructor is invoked when a slot's refcount reaches zero. Returning
// errors.REFUSE means destruction needs a round trip (voices, xinsert
// clients): the framework retains the slot, the caller must later call
// Manager.Detach once the engine confirms removal.
type Destructor func(payload any) error

type slot struct {
	typ      Type
	bits     UserBits
	refcount int32
	payload  any
	destroy  Destructor
	free     bool
	nextFree int32
}

// Manager is the handle table. Safe for concurrent Get/Retain from
// multiple API-context callers; New/Release/Free/Detach are expected to
// be called from whichever single context owns the handle's lifecycle
// (API thread for API-owned handles, engine thread for engine-managed
// ones), matching spec §5's ownership model.
type Manager struct {
	mu        sync.RWMutex
	slots     []slot
	freeHead  int32
	destroyed int32 // destroyed-but-refcounted (i.e. REFUSE) sentinel marker
}

func NewManager(capacity int) *Manager {
	m := &Manager{freeHead: -1}
	if capacity > 0 {
		m.grow(capacity)
	}
	return m
}

func (m *Manager) grow(n int) {
	base := int32(len(m.slots))
	for i := int32(0); i < int32(n); i++ {
		idx := base + i
		m.slots = append(m.slots, slot{free: true, nextFree: m.freeHead})
		m.freeHead = idx
	}
}

// New allocates a handle for payload, tagged typ, with the given
// initial user bits and reference count (spec: New(payload, type,
// user_bits, initial_refcount)).
func (m *Manager) New(payload any, typ Type, bits UserBits, initialRefcount int32, destroy Destructor) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.freeHead < 0 {
		m.grow(len(m.slots) + 64)
		if m.freeHead < 0 {
			return Invalid, errors.New(errors.OOHANDLES, "rchm.New")
		}
	}
	idx := m.freeHead
	m.freeHead = m.slots[idx].nextFree
	m.slots[idx] = slot{
		typ:      typ,
		bits:     bits,
		refcount: initialRefcount,
		payload:  payload,
		destroy:  destroy,
	}
	return Handle(idx + 1), nil
}

func (m *Manager) index(h Handle) (int32, bool) {
	if h <= Invalid || int(h) > len(m.slots) {
		return 0, false
	}
	return int32(h) - 1, true
}

// Info is a read-only snapshot of a slot, returned by Get.
type Info struct {
	Type     Type
	Bits     UserBits
	Refcount int32
	Payload  any
}

// Get returns the slot's info, or ok=false if the handle is invalid,
// free, or (per spec invariant) refcount==0 and not LOCKED.
func (m *Manager) Get(h Handle) (Info, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.index(h)
	if !ok {
		return Info{}, false
	}
	s := &m.slots[idx]
	if s.free {
		return Info{}, false
	}
	if s.refcount <= 0 && s.bits&Locked == 0 {
		return Info{}, false
	}
	return Info{Type: s.typ, Bits: s.bits, Refcount: s.refcount, Payload: s.payload}, true
}

// TypeOf is a convenience wrapper used by the API and by tests asserting
// the lifecycle scenarios in spec §8.2.
func (m *Manager) TypeOf(h Handle) Type {
	info, ok := m.Get(h)
	if !ok {
		return TNone
	}
	return info.Type
}

// Retain increments the refcount.
func (m *Manager) Retain(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.index(h)
	if !ok || m.slots[idx].free {
		return errors.New(errors.INVALIDHANDLE, "rchm.Retain")
	}
	m.slots[idx].refcount++
	return nil
}

// Release decrements the refcount. At zero, the type's destructor runs;
// if it returns errors.REFUSE-coded error, the slot is left in place
// (still refcount==0, so Get will report it unreachable per the
// invariant) pending a later Detach call from the engine.
func (m *Manager) Release(h Handle) error {
	m.mu.Lock()
	idx, ok := m.index(h)
	if !ok || m.slots[idx].free {
		m.mu.Unlock()
		return errors.New(errors.INVALIDHANDLE, "rchm.Release")
	}
	s := &m.slots[idx]
	if s.refcount <= 0 {
		m.mu.Unlock()
		return errors.New(errors.DEADHANDLE, "rchm.Release")
	}
	s.refcount--
	destroy := s.destroy
	payload := s.payload
	refcount := s.refcount
	m.mu.Unlock()

	if refcount > 0 || destroy == nil {
		return nil
	}
	if err := destroy(payload); err != nil {
		if e, ok := err.(*errors.Error); ok && e.Code == errors.REFUSE {
			return nil // deferred destruction pending Detach
		}
		return err
	}
	return m.Free(h)
}

// Detach retypes a slot whose underlying object the engine has finished
// destroying (after a REFUSE) to TDetached, so subsequent Gets fail
// gracefully rather than touching a freed payload (spec §4.1).
func (m *Manager) Detach(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.index(h)
	if !ok || m.slots[idx].free {
		return
	}
	m.slots[idx].typ = TDetached
	m.slots[idx].payload = nil
	m.slots[idx].bits &^= Locked
}

// Bind retypes and re-targets a slot in place, used to promote a
// pre-allocated TNewVoice handle (spec: "START... binding it to a
// pre-allocated handle of type new-voice") to TVoice once the engine
// thread has actually spawned the voice, without disturbing the
// handle's refcount or user bits.
func (m *Manager) Bind(h Handle, typ Type, payload any, destroy Destructor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.index(h)
	if !ok || m.slots[idx].free {
		return errors.New(errors.INVALIDHANDLE, "rchm.Bind")
	}
	m.slots[idx].typ = typ
	m.slots[idx].payload = payload
	m.slots[idx].destroy = destroy
	return nil
}

// Free forces a slot back to the free list regardless of refcount
// (engine-side forced cleanup).
func (m *Manager) Free(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.index(h)
	if !ok || m.slots[idx].free {
		return errors.New(errors.FREEHANDLE, "rchm.Free")
	}
	m.slots[idx] = slot{free: true, nextFree: m.freeHead}
	m.freeHead = idx
	return nil
}

// SetBits ORs additional user flag bits onto the slot.
func (m *Manager) SetBits(h Handle, bits UserBits) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx, ok := m.index(h); ok && !m.slots[idx].free {
		m.slots[idx].bits |= bits
	}
}

// ClearBits clears user flag bits on the slot.
func (m *Manager) ClearBits(h Handle, bits UserBits) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx, ok := m.index(h); ok && !m.slots[idx].free {
		m.slots[idx].bits &^= bits
	}
}
