package voice

import (
	"github.com/olofson/a2core/errors"
	"github.com/olofson/a2core/event"
	"github.com/olofson/a2core/fixed"
	"github.com/olofson/a2core/units"
	"github.com/olofson/a2core/vm"
)

// ProcessFragment renders `frames` samples into v's output buffers,
// interleaving event delivery and VM stepping with per-unit DSP
// processing (spec §4.3 "Per-fragment processing"). It does not
// recurse into subvoices; callers use ProcessVoices for the full tree.
func (v *Voice) ProcessFragment(frames int) error {
	for _, buf := range v.Output.Buffers {
		for i := 0; i < frames; i++ {
			buf[i] = 0
		}
	}
	if v.VM.State() == vm.Finalizing {
		return nil
	}

	start := v.rt.Now()
	s := 0
	for s < frames {
		now := start.Add(fixed.FromFrames(int64(s)))

		if ht, ok := v.Events.HeadTime(); ok && ht <= now {
			v.Events.DrainUpTo(now, v.handleEvent)
		}

		if v.VM.State() == vm.Running && v.VM.WakeTime() < now.Add(fixed.FromFrames(1)) {
			switch v.VM.Run(v, v.rt.SampleRate) {
			case vm.ResultError:
				v.rt.reportError(v.VM.LastError(), v.Handle)
				v.VM.SetState(vm.Finalizing)
			case vm.ResultEnded:
				v.VM.SetState(vm.Finalizing)
			}
		}

		step := frames - s
		switch v.VM.State() {
		case vm.Running, vm.Waiting:
			if wake := v.VM.WakeTime(); wake > now {
				if wf := int(wake.Sub(now).Frames()); wf > 0 && wf < step {
					step = wf
				}
			}
		}
		if ht, ok := v.Events.HeadTime(); ok && ht > now {
			if ef := int(ht.Sub(now).Frames()); ef > 0 && ef < step {
				step = ef
			}
		}
		if step <= 0 {
			step = 1
		}

		for _, u := range v.Units {
			u.Process(u, s, step)
		}
		v.propagateWires(now, fixed.FromFrames(int64(step)))

		s += step
		if v.VM.State() == vm.Finalizing {
			break
		}
	}
	return nil
}

// propagateWires copies each resolved wire's source control output into
// its target register's port, committing the write with the fragment
// step's sub-sample start/duration (spec §4.2 "wires").
func (v *Voice) propagateWires(start, duration fixed.P8) {
	for _, w := range v.wires {
		if w.srcOutput < 0 || w.srcOutput >= len(w.srcUnit.ControlOut) {
			continue
		}
		val := w.srcUnit.ControlOut[w.srcOutput]
		v.VM.Regs[w.reg] = fixed.FromFloat16(val)
		v.CommitRegister(w.reg, val, start, duration)
	}
}

// callMessageHandler invokes the message-handler entry point ep (if
// bound) as a VM interrupt, per spec §4.4 "Calls and interrupts". A
// handler that executes a timing instruction or fails is a program
// error: the voice is killed and the error reported.
func (v *Voice) callMessageHandler(ep int, args []fixed.P16) {
	if ep < 0 || ep >= len(v.Program.EntryPoints) {
		return
	}
	if fn := v.Program.EntryPoints[ep]; fn >= 0 {
		switch v.VM.CallMessageHandler(fn, args, v, v.rt.SampleRate) {
		case vm.ResultTimeAdvanced:
			v.rt.reportError(errors.New(errors.ILLEGALOP, "voice.callMessageHandler"), v.Handle)
			v.VM.SetState(vm.Finalizing)
		case vm.ResultError:
			v.rt.reportError(v.VM.LastError(), v.Handle)
			v.VM.SetState(vm.Finalizing)
		}
	}
}

// handleEvent applies one drained event to the voice (spec §4.5 "Event
// actions").
func (v *Voice) handleEvent(e *event.Event) {
	switch e.Action {
	case event.Kill:
		v.VM.SetState(vm.Finalizing)
		v.Events.Clear()
	case event.KillSub:
		_ = v.Kill(e.TargetVID, false)
	case event.Send:
		v.callMessageHandler(e.EntryPoint, e.Args[:e.Argc])
	case event.SendSub:
		if sv := v.subvoiceByVID(e.TargetVID); sv != nil {
			sv.callMessageHandler(e.EntryPoint, e.Args[:e.Argc])
		}
	case event.Play:
		// PLAY: spawn a detached, anonymous subvoice under v; the
		// caller gets no handle back and cannot later address it.
		if _, err := v.SpawnVoice(e.ProgramHandle, e.EntryPoint, e.Args[:e.Argc], true, true); err != nil {
			v.rt.reportError(err, v.Handle)
		}
	case event.Start:
		// START: spawn an attached subvoice and bind it to the
		// pre-allocated "new-voice" handle the API call already
		// returned to its caller.
		sv, err := v.SpawnVoice(e.ProgramHandle, e.EntryPoint, e.Args[:e.Argc], false, false)
		if err != nil {
			v.rt.reportError(err, v.Handle)
			return
		}
		sv.Handle = e.NewHandle
		sv.Flags |= FlagAPIOwned
		if v.rt.OnVoiceBound != nil {
			v.rt.OnVoiceBound(e.NewHandle, sv)
		}
	case event.Release:
		v.Flags &^= FlagAPIOwned
	case event.AddXIC:
		if e.UnitIndex >= 0 && e.UnitIndex < len(v.Units) {
			if c, ok := e.Client.(*units.Client); ok {
				units.AddClient(v.Units[e.UnitIndex], c)
			}
		}
	case event.RemoveXIC:
		if e.UnitIndex >= 0 && e.UnitIndex < len(v.Units) {
			if c, ok := e.Client.(*units.Client); ok {
				units.RemoveClient(v.Units[e.UnitIndex], c)
			}
		}
	case event.WAHP:
		// Barrier acknowledgement is per engine state, not per
		// voice; the engine's Cycle handles MsgWAHP directly rather
		// than routing it through any voice's event queue.
	}
}

// ProcessVoices renders frames samples for every voice in voices,
// recursing into each voice's subvoices after the voice itself (post
// order); a voice with inlineUnit set has its subvoices skipped here,
// and no code sets inlineUnit, so no inline-unit recursion takes place.
// It prunes voices that have reached a terminal
// state back to the runtime's pool (spec §4.3 "Subvoice recursion").
// onPrune, if non-nil, is called for every voice pruned this pass
// (before it is returned to the pool), so the owning engine state can
// detach any handle bound to it.
func ProcessVoices(voices []*Voice, frames int, onPrune func(*Voice)) []*Voice {
	kept := voices[:0]
	for _, v := range voices {
		_ = v.ProcessFragment(frames)

		if v.inlineUnit == nil {
			v.subvoices = ProcessVoices(v.subvoices, frames, onPrune)
		}

		if v.Terminal() {
			if v.parent != nil && v.VID >= 0 && v.VID < len(v.parent.svLUT) {
				v.parent.svLUT[v.VID] = nil
			}
			if onPrune != nil {
				onPrune(v)
			}
			v.rt.freeVoice(v)
			continue
		}
		kept = append(kept, v)
	}
	return kept
}
