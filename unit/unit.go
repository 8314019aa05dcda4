// Package unit implements the generic DSP-unit instance runtime (spec
// §4.2 "Unit runtime"): descriptors, the process-time instance header,
// control-register ports, and the shared descriptor registry.
package unit

import (
	"sync"

	"github.com/olofson/a2core/errors"
	"github.com/olofson/a2core/fixed"
	"github.com/olofson/a2core/pool"
)

// Flags are descriptor-level capability/behavior bits (spec §4.2).
type Flags uint32

const (
	MatchIO Flags = 1 << iota
	XInsert
	ProcAdd
)

// WriteFunc is a control register's write callback: invoked on a VM
// write to a wired register with the value and its sub-sample
// start/duration (spec §3 "Control-register port").
type WriteFunc func(inst *Instance, value float64, start, duration fixed.P8)

// RegisterDesc names one control register a unit instance owns.
type RegisterDesc struct {
	Name    string
	Default float64
	Write   WriteFunc // nil if the register is not independently wired (rare)
}

// ControlOutputDesc names one control-output port a unit can drive.
type ControlOutputDesc struct {
	Name string
}

// ConstantDesc is a compile-time named constant a unit's descriptor
// exposes (e.g. a waveform-type enum value).
type ConstantDesc struct {
	Name  string
	Value float64
}

// State is per-engine-state shared data OpenState/CloseState may
// populate (e.g. a shared wavetable cache); opaque to the framework.
type State any

// Descriptor fully describes a unit "class" (spec §4.2).
type Descriptor struct {
	Name          string
	Flags         Flags
	Registers     []RegisterDesc
	ControlOutputs []ControlOutputDesc
	Constants     []ConstantDesc
	MinInputs     int
	MaxInputs     int
	MinOutputs    int
	MaxOutputs    int

	// Initialize installs the Process variant on inst and sets up any
	// instance-local state (inst.State). flags carries PROC_ADD when
	// the unit must mix additively into its outputs.
	Initialize func(inst *Instance, samplerate int, sharedState State, flags Flags) error
	// Deinitialize releases instance-local resources, if any.
	Deinitialize func(inst *Instance)
	// OpenState/CloseState run under the registry mutex, once per
	// registry: OpenState on the registry's first OpenState call and
	// CloseState when its last state closes.
	OpenState  func() (State, error)
	CloseState func(State)
}

// ProcessFunc renders `frames` samples starting at `offset` within the
// current fragment (spec §4.2 "Per-process call contract").
type ProcessFunc func(inst *Instance, offset, frames int)

// Port binds a control register's write callback to a specific unit
// instance (spec §3 "Control-register port"): (unit_instance*,
// write_callback).
type Port struct {
	Inst  *Instance
	Write WriteFunc
}

// Instance is the runtime unit-instance header (spec §3 "Unit
// instance"). Unit-specific state lives in State.
type Instance struct {
	Desc    *Descriptor
	NInputs  int
	NOutputs int
	Inputs   []*pool.Buffer
	Outputs  []*pool.Buffer
	// Regs is the slice of the voice register file this instance owns
	// as control registers, in descriptor-declared order.
	Regs []int
	// IsOutputTerminal marks the unit whose outputs ARE the voice's
	// own output buffers (wire-to-voice-output autowiring target).
	IsOutputTerminal bool
	Process          ProcessFunc
	State            any
	// ControlOut holds each declared control output's last-rendered
	// value (one slot per Descriptor.ControlOutputs entry), written by
	// Process and read by the voice graph's wire propagation.
	ControlOut []float64
}

// Registry is the process-wide unit-descriptor table (spec §9 "Global
// state": "explicit open_registry/close_registry reference counting").
// Registration must complete before any substate is created.
type Registry struct {
	mu    sync.Mutex
	byName map[string]*Descriptor
	states map[*Descriptor]State
	refs   int
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Descriptor), states: make(map[*Descriptor]State)}
}

// Register adds a descriptor under the registry mutex.
func (r *Registry) Register(d *Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[d.Name] = d
}

// Lookup finds a descriptor by name.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byName[name]
	return d, ok
}

// OpenState runs every registered descriptor's OpenState hook once,
// incrementing the registry's reference count; it is idempotent for
// repeated opens beyond the first.
func (r *Registry) OpenState() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs++
	if r.refs > 1 {
		return nil
	}
	for _, d := range r.byName {
		if d.OpenState == nil {
			continue
		}
		st, err := d.OpenState()
		if err != nil {
			return errors.New(errors.OOMEMORY, "unit.OpenState:"+d.Name)
		}
		r.states[d] = st
	}
	return nil
}

// CloseState decrements the reference count, running CloseState hooks
// once it reaches zero.
func (r *Registry) CloseState() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs--
	if r.refs > 0 {
		return
	}
	for d, st := range r.states {
		if d.CloseState != nil {
			d.CloseState(st)
		}
	}
	r.states = make(map[*Descriptor]State)
}

func (r *Registry) stateFor(d *Descriptor) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[d]
}
