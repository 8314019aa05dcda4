// Package engine implements the top-level state/substate container
// (spec §2 "State/substate"), the default root/group driver programs,
// and the per-fragment master callback that ties the voice graph,
// gateway, and unit registry together (spec §4.3 "master callback").
package engine

import (
	"github.com/olofson/a2core/program"
	"github.com/olofson/a2core/vm"
)

// RootProgram builds the default root voice program: a panmix unit
// (collecting whatever the root's subvoices write into it, since the
// root voice itself has no oscillator of its own) feeding an xinsert
// unit (unit index 1, for ADDXIC clients) wired to the voice's own
// output (spec §2 "Root driver: Default root voice
// program wiring master panmix and sink"). Built via program.Builder
// since the A2S compiler is out of scope (spec §1).
//
// Its entry function does the minimum any A2S-compiled program's entry
// function does for a purely structural voice: INITV to instantiate
// the unit chain, then SLEEP — the voice has nothing of its own to run
// and is woken only by SPAWN/SEND messages delivered through its event
// queue, which ProcessFragment drains regardless of VM run-state.
func RootProgram(channels int) *program.Program {
	b := program.NewBuilder("root")
	b.Unit("panmix", channels, program.Default)
	b.Unit("xinsert", program.MatchOutput, program.WireToVoiceOutput)
	b.Func(0, 0, 0,
		uint32(vm.Encode(vm.OpINITV, 0, 0)),
		uint32(vm.Encode(vm.OpSLEEP, 0, 0)),
	)
	return b.Build()
}

// GroupProgram builds a sub-group driver program: same panmix/xinsert
// shape as the root, used for substates and API-created voice groups
// that need their own scratch mix point without their own oscillator
// (spec §2 "group-driver variant for sub-groups").
func GroupProgram(channels int) *program.Program {
	return RootProgram(channels)
}
