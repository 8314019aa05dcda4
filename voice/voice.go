package voice

import (
	"github.com/olofson/a2core/errors"
	"github.com/olofson/a2core/event"
	"github.com/olofson/a2core/fixed"
	"github.com/olofson/a2core/pool"
	"github.com/olofson/a2core/program"
	"github.com/olofson/a2core/unit"
	"github.com/olofson/a2core/vm"
)

// Flags are per-voice behavior bits (spec §3 "Voice").
type Flags uint8

const (
	FlagAttached Flags = 1 << iota
	FlagAPIOwned
	FlagInlineUnit
)

// Voice is a running instance of a program (spec §3 "Voice", GLOSSARY
// "Voice"): VM + DSP unit chain + subvoices + event queue.
type Voice struct {
	rt *Runtime

	Program *program.Program
	VM      *vm.VM

	Units []*unit.Instance
	ports map[int]unit.Port // register index -> control-register port
	wires []wire            // control-output -> register propagation (resolved in instantiate)

	parent    *Voice
	subvoices []*Voice
	svLUT     [pool.SVLUTSize]*Voice

	Events event.Queue

	Handle int32 // engine-assigned handle number; 0 if none
	VID    int   // this voice's VID within its parent's subvoice namespace
	Level  int   // nesting depth

	Flags Flags

	Output pool.Bus

	initialized bool
	inlineUnit  *unit.Instance
}

func (v *Voice) reset() { *v = Voice{} }

// New allocates a voice from rt's pool and binds it to p, to run
// starting at absolute time `start` with channel count `outChannels`,
// beginning execution at function index entryFunc (spec §4.3 "Voice
// lifecycle").
func New(rt *Runtime, parent *Voice, p *program.Program, start fixed.P8, outChannels, entryFunc int, args []fixed.P16) (*Voice, error) {
	v, err := rt.newVoice()
	if err != nil {
		return nil, err
	}
	v.rt = rt
	v.Program = p
	v.parent = parent
	v.Level = 0
	if parent != nil {
		v.Level = parent.Level + 1
	}
	v.VM = vm.NewAt(p, start, entryFunc)
	v.ports = make(map[int]unit.Port)
	v.Output.Channels = outChannels
	for i := 0; i < outChannels; i++ {
		buf, err := rt.getBuffer()
		if err != nil {
			return nil, err
		}
		v.Output.Buffers = append(v.Output.Buffers, buf)
	}
	if entryFunc >= 0 && entryFunc < len(p.Functions) {
		f := &p.Functions[entryFunc]
		for i := 0; i < f.Argc && i < len(args); i++ {
			reg := f.FirstArgReg + i
			if reg >= 0 && reg < vm.NumRegisters {
				v.VM.Regs[reg] = args[i]
			}
		}
	}
	return v, nil
}

// Attach appends v to parent's subvoice list, giving it the next
// sequential VID (its list position) and installing it in the direct
// LUT when that VID is small enough (spec §4.3 "Subvoice
// identification"). Spawn then moves a VM-spawned voice to the VID the
// program named.
func (parent *Voice) Attach(v *Voice) {
	v.parent = parent
	v.VID = len(parent.subvoices)
	parent.subvoices = append(parent.subvoices, v)
	if v.VID < pool.SVLUTSize {
		parent.svLUT[v.VID] = v
	}
}

// Subvoices returns v's current subvoice list, for the owning engine
// state to drive ProcessVoices over the root voice's tree.
func (v *Voice) Subvoices() []*Voice { return v.subvoices }

// SetSubvoices replaces v's subvoice list with the (pruned) result of a
// ProcessVoices pass.
func (v *Voice) SetSubvoices(svs []*Voice) { v.subvoices = svs }

// subvoiceByVID resolves a VID via the direct LUT, falling back to
// linear scan (spec §4.3).
func (v *Voice) subvoiceByVID(vid int) *Voice {
	if vid >= 0 && vid < pool.SVLUTSize && v.svLUT[vid] != nil {
		return v.svLUT[vid]
	}
	for _, sv := range v.subvoices {
		if sv.VID == vid {
			return sv
		}
	}
	return nil
}

// Terminal reports whether the voice has reached a state from which it
// will be recycled once pending work clears (spec §4.3 "Termination
// states").
func (v *Voice) Terminal() bool {
	return v.VM.State() == vm.Finalizing && len(v.subvoices) == 0
}

// ----- vm.Host implementation -----

// CommitRegister implements vm.Host: if reg is wired to a control port,
// invoke its write callback; otherwise it's a plain register, already
// updated in v.VM.Regs, and there is nothing further to do.
func (v *Voice) CommitRegister(reg int, value float64, start, duration fixed.P8) {
	if p, ok := v.ports[reg]; ok {
		p.Write(p.Inst, value, start, duration)
	}
}

// Spawn implements vm.Host's SPAWN family: spawns a subvoice running
// programHandle from entry point `entry`, attached under `vid` unless
// anonymous, and flagged FlagAttached unless detached.
func (v *Voice) Spawn(vid int, programHandle int32, entry int, args []fixed.P16, detached, anonymous bool) error {
	sv, err := v.spawn(programHandle, entry, args, detached, anonymous)
	if err == nil && !anonymous && sv.VID != vid {
		if sv.VID < pool.SVLUTSize && v.svLUT[sv.VID] == sv {
			v.svLUT[sv.VID] = nil
		}
		sv.VID = vid
		if vid >= 0 && vid < pool.SVLUTSize {
			v.svLUT[vid] = sv
		}
	}
	return err
}

// SpawnVoice is the API-initiated counterpart to Spawn: used by the
// engine's PLAY/START dispatch (spec: "PLAY (spawn detached subvoice
// under target), START (spawn attached subvoice, binding it to a
// pre-allocated handle)"), where the caller needs the new subvoice back
// to bind it to a handle, unlike the VM SPAWN opcode which only reports
// success/failure to the running program.
func (v *Voice) SpawnVoice(programHandle int32, entry int, args []fixed.P16, detached, anonymous bool) (*Voice, error) {
	return v.spawn(programHandle, entry, args, detached, anonymous)
}

func (v *Voice) spawn(programHandle int32, entry int, args []fixed.P16, detached, anonymous bool) (*Voice, error) {
	p := v.rt.ResolveProgram(programHandle)
	if p == nil {
		return nil, errors.New(errors.BADENTRY, "voice.Spawn")
	}
	entryFunc := 0
	if entry > 0 && entry < program.NumEntryPoints && p.EntryPoints[entry] >= 0 {
		entryFunc = p.EntryPoints[entry]
	}
	start := v.rt.Now()
	sv, err := New(v.rt, v, p, start, v.Output.Channels, entryFunc, args)
	if err != nil {
		v.rt.reportError(err, v.Handle)
		return nil, err
	}
	sv.VM.Regs[vm.RegTick] = v.VM.Regs[vm.RegTick] // inherit tick length

	switch {
	case anonymous:
		sv.parent = v
		v.subvoices = append(v.subvoices, sv)
		sv.VID = -1 // unreachable by VID: WAIT/SEND/KILL can't target it
	default:
		v.Attach(sv)
	}
	if !detached {
		sv.Flags |= FlagAttached
	}
	return sv, nil
}

// Send implements vm.Host's SEND family.
func (v *Voice) Send(vid int, entry int, args []fixed.P16, toSelf, toAll bool) error {
	targets := v.sendTargets(vid, toSelf, toAll)
	for _, t := range targets {
		t.deliverMessage(entry, args)
	}
	return nil
}

func (v *Voice) sendTargets(vid int, toSelf, toAll bool) []*Voice {
	if toSelf {
		return []*Voice{v}
	}
	if toAll {
		return v.subvoices
	}
	if sv := v.subvoiceByVID(vid); sv != nil {
		return []*Voice{sv}
	}
	return nil
}

// deliverMessage queues a SEND event for immediate-ish delivery; actual
// interrupt dispatch happens in ProcessFragment's event-draining step
// (spec §4.4 "Calls and interrupts").
func (v *Voice) deliverMessage(entry int, args []fixed.P16) {
	e, _ := v.Events.New(event.Send, v.rt.Now(), v.rt.Now())
	e.EntryPoint = entry
	e.Argc = len(args)
	for i, a := range args {
		if i < len(e.Args) {
			e.Args[i] = a
		}
	}
}

// Kill implements vm.Host's KILL family: a hard stop, no fade (spec §5
// "Cancellation").
func (v *Voice) Kill(vid int, all bool) error {
	if all {
		for _, sv := range v.subvoices {
			sv.VM.SetState(vm.Finalizing)
			sv.Events.Clear()
		}
		return nil
	}
	if sv := v.subvoiceByVID(vid); sv != nil {
		sv.VM.SetState(vm.Finalizing)
		sv.Events.Clear()
	}
	return nil
}

// Detach implements vm.Host's DETACH family: clears FlagAttached on the
// addressed subvoice(s) without killing them. No other code reads
// FlagAttached, so an attached and a detached voice terminate the same
// way: when its program ends and its own subvoices are gone.
func (v *Voice) Detach(vid int, all bool) error {
	if all {
		for _, sv := range v.subvoices {
			sv.Flags &^= FlagAttached
		}
		return nil
	}
	if sv := v.subvoiceByVID(vid); sv != nil {
		sv.Flags &^= FlagAttached
	}
	return nil
}

// Wait implements vm.Host's WAIT: true once the named subvoice is gone.
func (v *Voice) Wait(vid int) bool {
	return v.subvoiceByVID(vid) == nil
}

// Debug implements vm.Host's DEBUG/DEBUGR: the value is discarded;
// nothing logs it.
func (v *Voice) Debug(value fixed.P16) { _ = value }

func (v *Voice) Now() fixed.P8   { return v.rt.Now() }
func (v *Voice) SampleRate() int { return v.rt.SampleRate }

// InitVoice implements vm.Host's INITV: instantiate the voice's units
// and control wires (spec §4.2).
func (v *Voice) InitVoice() error {
	if v.initialized {
		return nil
	}
	return v.instantiate()
}
