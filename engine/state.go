package engine

import (
	"github.com/olofson/a2core/bank"
	"github.com/olofson/a2core/config"
	"github.com/olofson/a2core/errors"
	"github.com/olofson/a2core/event"
	"github.com/olofson/a2core/fixed"
	"github.com/olofson/a2core/gateway"
	"github.com/olofson/a2core/logx"
	"github.com/olofson/a2core/program"
	"github.com/olofson/a2core/rchm"
	"github.com/olofson/a2core/unit"
	"github.com/olofson/a2core/units"
	"github.com/olofson/a2core/voice"
	"github.com/olofson/a2core/wave"
)

// SharedState is the process-wide data every engine State (root and
// substates alike) shares: the unit descriptor registry and the handle
// table objects (waves, programs, voices) are registered into (spec §2
// "State/substate": substates share the parent's unit registry; spec §9
// "Global state").
type SharedState struct {
	Registry *unit.Registry
	Handles  *rchm.Manager
	Root     *bank.Bank
}

// NewSharedState registers every built-in unit descriptor and opens a
// handle table sized for handleCapacity objects (spec §5 "Registration
// of new unit descriptors... must happen before any substate is
// created").
func NewSharedState(handleCapacity int) *SharedState {
	reg := unit.NewRegistry()
	units.RegisterBuiltins(reg)
	return &SharedState{
		Registry: reg,
		Handles:  rchm.NewManager(handleCapacity),
		Root:     bank.New("root"),
	}
}

func (sh *SharedState) resolveWave(h int32) *wave.Wave {
	info, ok := sh.Handles.Get(rchm.Handle(h))
	if !ok || info.Type != rchm.TWave {
		return nil
	}
	w, _ := info.Payload.(*wave.Wave)
	return w
}

func (sh *SharedState) resolveProgram(h int32) *program.Program {
	info, ok := sh.Handles.Get(rchm.Handle(h))
	if !ok || info.Type != rchm.TProgram {
		return nil
	}
	p, _ := info.Payload.(*program.Program)
	return p
}

func (sh *SharedState) resolveVoice(h int32) *voice.Voice {
	if h == 0 {
		return nil
	}
	info, ok := sh.Handles.Get(rchm.Handle(h))
	if !ok || (info.Type != rchm.TVoice && info.Type != rchm.TNewVoice) {
		return nil
	}
	v, _ := info.Payload.(*voice.Voice)
	return v
}

// LoadProgram registers p in the shared handle table, returning a
// handle PLAY/START/SPAWN can address it by.
func (sh *SharedState) LoadProgram(p *program.Program) (rchm.Handle, error) {
	return sh.Handles.New(p, rchm.TProgram, 0, 1, nil)
}

// LoadNamedProgram loads p and exports it under name in the root bank,
// for lookup by the CLI's -p/-M switches and the -x export-tree dump
// (spec §6 "CLI surface", §3 "Banks own children via a name->handle
// export table").
func (sh *SharedState) LoadNamedProgram(name string, p *program.Program) (rchm.Handle, error) {
	h, err := sh.LoadProgram(p)
	if err != nil {
		return rchm.Invalid, err
	}
	sh.Root.Export(name, h)
	return h, nil
}

// Lookup resolves a root-bank export name to its handle.
func (sh *SharedState) Lookup(name string) (rchm.Handle, bool) {
	return sh.Root.Lookup(name)
}

// Exports lists every name exported from the root bank.
func (sh *SharedState) Exports() []string {
	return sh.Root.Names()
}

// LoadWave registers w in the shared handle table. Its destructor
// unloads the wave (silencing any oscillator still referencing it) and
// refuses immediate destruction (spec §5 "Wave retirement"): the
// caller must drive a WAHP round (State.RetireWave) before the handle
// is actually detached and the backing memory released.
func (sh *SharedState) LoadWave(w *wave.Wave) (rchm.Handle, error) {
	return sh.Handles.New(w, rchm.TWave, 0, 1, func(payload any) error {
		payload.(*wave.Wave).Unload()
		return errors.New(errors.REFUSE, "engine.wave")
	})
}

// State is one engine state (root, or a substate sharing the root's
// registry and handle table) together with its own gateway, voice
// runtime and root voice (spec §2 "State/substate").
type State struct {
	Shared *SharedState
	Config config.Config

	GW *gateway.Interface
	RT *voice.Runtime

	Root *voice.Voice

	Parent    *State
	Substates []*State

	// WAHP is only populated on the root state: it tracks in-flight
	// barriers across every live state in the tree (spec §4.6).
	WAHP *gateway.Tracker

	Log *logx.Logger

	pendingWAHPAcks []uint64
}

// NewState builds the root engine state: opens the unit registry,
// instantiates the default root driver program, and wires the
// runtime's error/voice-binding hooks back into this state (spec §4.3
// "Root driver").
func NewState(cfg config.Config) (*State, error) {
	shared := NewSharedState(cfg.VoicePoolSize * 2)
	return newState(shared, cfg, nil)
}

// NewSubstate builds a substate sharing parent's registry and handle
// table but with its own gateway, runtime and root voice (spec §2
// "substates... independent timing domains sharing global objects").
func NewSubstate(parent *State, cfg config.Config) (*State, error) {
	return newState(parent.Shared, cfg, parent)
}

func newState(shared *SharedState, cfg config.Config, parent *State) (*State, error) {
	if err := shared.Registry.OpenState(); err != nil {
		return nil, err
	}
	rt := voice.NewRuntime(cfg.SampleRate, shared.Registry)
	rt.ResolveWave = shared.resolveWave
	rt.ResolveProgram = shared.resolveProgram

	s := &State{
		Shared: shared,
		Config: cfg,
		Parent: parent,
		Log:    logx.ForSite("engine"),
		RT:     rt,
	}
	rt.OnError = s.postError
	rt.OnVoiceBound = s.onVoiceBound
	s.GW = gateway.NewInterface(cfg.SampleRate, cfg.FromAPISize, cfg.ToAPISize, rt.Now)

	prog := RootProgram(cfg.Channels)
	if parent != nil {
		prog = GroupProgram(cfg.Channels)
	}
	root, err := voice.New(rt, nil, prog, rt.Now(), cfg.Channels, 0, nil)
	if err != nil {
		shared.Registry.CloseState()
		return nil, err
	}
	if err := root.InitVoice(); err != nil {
		shared.Registry.CloseState()
		return nil, err
	}
	s.Root = root

	if parent == nil {
		s.WAHP = gateway.NewTracker()
	} else {
		parent.Substates = append(parent.Substates, s)
	}
	return s, nil
}

func (s *State) rootAncestor() *State {
	for s.Parent != nil {
		s = s.Parent
	}
	return s
}

// liveStateCount returns the number of states in this state's tree
// (root plus every substate), used to size a WAHP barrier.
func (s *State) liveStateCount() int {
	root := s.rootAncestor()
	return 1 + len(root.Substates)
}

func (s *State) postError(err error, voiceHandle int32) {
	code := 0
	site := err.Error()
	if e, ok := err.(*errors.Error); ok {
		code = int(e.Code)
		site = e.Site
	}
	s.Log.With("voice", voiceHandle).Warn("engine error", "code", code)
	s.GW.ToAPI.TryWrite(gateway.Message{
		Kind:    gateway.MsgError,
		Target:  voiceHandle,
		ErrCode: code,
		Site:    site,
	})
}

func (s *State) onVoiceBound(handle int32, v *voice.Voice) {
	if handle == 0 {
		return
	}
	s.Shared.Handles.Bind(rchm.Handle(handle), rchm.TVoice, v, func(payload any) error {
		sv := payload.(*voice.Voice)
		if !sv.Terminal() {
			return errors.New(errors.REFUSE, "engine.voice")
		}
		return nil
	})
}

// RetireWave drives a WAHP round for retiring h: posts a WAHP barrier
// message into every live state sharing this handle table, and detaches
// the handle (freeing its backing memory for real) once every state
// has acknowledged having processed at least one cycle since (spec §5
// "Wave retirement", §4.6).
func (s *State) RetireWave(h rchm.Handle) {
	root := s.rootAncestor()
	n := root.liveStateCount()
	barrier := root.WAHP.New(n, func() {
		root.Shared.Handles.Detach(h)
	})
	msg := gateway.Message{Kind: gateway.MsgWAHP, WAHPID: barrier.ID}
	root.GW.FromAPI.TryWrite(msg)
	for _, sub := range root.Substates {
		sub.GW.FromAPI.TryWrite(msg)
	}
}

// Play posts a PLAY event: spawn a detached, anonymous subvoice under
// parent running p from entry, with no handle returned (spec: "PLAY
// (spawn detached subvoice under target)").
func (s *State) Play(parent int32, p rchm.Handle, entry int, args []fixed.P16) bool {
	return s.postSpawn(gateway.MsgPlay, parent, p, entry, args, 0)
}

// Start posts a START event and pre-allocates the "new-voice" handle
// the spawned subvoice will be bound to once the engine thread actually
// creates it (spec: "START (spawn attached subvoice, binding it to a
// pre-allocated handle of type new-voice)").
func (s *State) Start(parent int32, p rchm.Handle, entry int, args []fixed.P16) (rchm.Handle, error) {
	h, err := s.Shared.Handles.New(nil, rchm.TNewVoice, rchm.APIOwned, 1, nil)
	if err != nil {
		return rchm.Invalid, err
	}
	if !s.postSpawn(gateway.MsgStart, parent, p, entry, args, int32(h)) {
		s.Shared.Handles.Free(h)
		return rchm.Invalid, errors.New(errors.OOHANDLES, "engine.Start")
	}
	return h, nil
}

func (s *State) postSpawn(kind gateway.Kind, parent int32, p rchm.Handle, entry int, args []fixed.P16, newHandle int32) bool {
	m := gateway.Message{Kind: kind, Target: parent, ProgramHandle: int32(p), EntryPoint: entry, NewHandle: newHandle}
	m.Argc = len(args)
	for i, a := range args {
		if i < len(m.Args) {
			m.Args[i] = a
		}
	}
	return s.GW.Send(m)
}

// Send posts a SEND event: invoke entry's message handler on the
// addressed voice directly.
func (s *State) Send(voiceHandle int32, entry int, args []fixed.P16) bool {
	return s.postMessage(gateway.MsgSend, voiceHandle, 0, entry, args)
}

// SendSub posts a SENDSUB event: invoke entry's message handler on the
// subvoice identified by vid under parent.
func (s *State) SendSub(parent int32, vid, entry int, args []fixed.P16) bool {
	return s.postMessage(gateway.MsgSendSub, parent, vid, entry, args)
}

func (s *State) postMessage(kind gateway.Kind, target int32, vid, entry int, args []fixed.P16) bool {
	m := gateway.Message{Kind: kind, Target: target, VID: vid, EntryPoint: entry}
	m.Argc = len(args)
	for i, a := range args {
		if i < len(m.Args) {
			m.Args[i] = a
		}
	}
	return s.GW.Send(m)
}

// Kill posts a KILL event, a hard stop with no fade on the addressed
// voice itself.
func (s *State) Kill(voiceHandle int32) bool {
	return s.GW.Send(gateway.Message{Kind: gateway.MsgKill, Target: voiceHandle})
}

// KillSub posts a KILLSUB event, killing the subvoice identified by vid
// under parent.
func (s *State) KillSub(parent int32, vid int) bool {
	return s.GW.Send(gateway.Message{Kind: gateway.MsgKillSub, Target: parent, VID: vid})
}

// AddXIC posts an ADDXIC event, registering c on the xinsert unit at
// unitIndex within the addressed voice's unit chain.
func (s *State) AddXIC(voiceHandle int32, unitIndex int, c *units.Client) bool {
	return s.GW.Send(gateway.Message{Kind: gateway.MsgAddXIC, Target: voiceHandle, UnitIndex: unitIndex, Client: c})
}

// RemoveXIC posts a REMOVEXIC event, unregistering c.
func (s *State) RemoveXIC(voiceHandle int32, unitIndex int, c *units.Client) bool {
	return s.GW.Send(gateway.Message{Kind: gateway.MsgRemoveXIC, Target: voiceHandle, UnitIndex: unitIndex, Client: c})
}

// Release posts a RELEASE event: the API no longer holds a handle to
// the addressed voice, though it may continue running to completion.
func (s *State) Release(voiceHandle int32) bool {
	return s.GW.Send(gateway.Message{Kind: gateway.MsgRelease, Target: voiceHandle})
}

// Cycle processes one audio fragment of `frames` samples: it drains
// the gateway's fromapi queue into the addressed voices' event queues
// (observing delivery margins and reporting LATEMESSAGE for messages
// stamped before the fragment start), advances and processes the voice
// tree, posting MsgDetach through toapi for each pruned voice that had
// a handle, then acknowledges any drained WAHP barriers directly on the
// root state's Tracker (spec §4.3 "master callback").
func (s *State) Cycle(frames int) {
	cycleStart := s.RT.Now()

	s.GW.FromAPI.DrainAll(func(m gateway.Message) {
		if m.Kind == gateway.MsgWAHP {
			s.pendingWAHPAcks = append(s.pendingWAHPAcks, m.WAHPID)
			return
		}
		s.GW.Stats.Observe(m.Timestamp - cycleStart)
		if m.Timestamp < cycleStart {
			s.postError(errors.New(errors.LATEMESSAGE, "engine.Cycle"), m.Target)
		}
		s.dispatch(m)
	})

	s.Root.ProcessFragment(frames)
	s.Root.SetSubvoices(voice.ProcessVoices(s.Root.Subvoices(), frames, func(v *voice.Voice) {
		if v.Handle != 0 {
			s.Shared.Handles.Detach(rchm.Handle(v.Handle))
			s.GW.ToAPI.TryWrite(gateway.Message{Kind: gateway.MsgDetach, Target: v.Handle})
		}
	}))
	s.RT.Advance(frames)

	for _, ack := range s.pendingWAHPAcks {
		s.rootAncestor().WAHP.Ack(ack)
	}
	s.pendingWAHPAcks = s.pendingWAHPAcks[:0]
}

func (s *State) dispatch(m gateway.Message) {
	target := s.Root
	if m.Target != 0 {
		if v := s.Shared.resolveVoice(m.Target); v != nil {
			target = v
		}
	}
	now := s.RT.Now()

	switch m.Kind {
	case gateway.MsgPlay, gateway.MsgStart:
		action := event.Play
		if m.Kind == gateway.MsgStart {
			action = event.Start
		}
		e, _ := target.Events.New(action, m.Timestamp, now)
		e.ProgramHandle = m.ProgramHandle
		e.EntryPoint = m.EntryPoint
		e.Argc = m.Argc
		e.Args = m.Args
		e.NewHandle = m.NewHandle
	case gateway.MsgSend, gateway.MsgSendSub:
		action := event.Send
		if m.Kind == gateway.MsgSendSub {
			action = event.SendSub
		}
		e, _ := target.Events.New(action, m.Timestamp, now)
		e.EntryPoint = m.EntryPoint
		e.Argc = m.Argc
		e.Args = m.Args
		e.TargetVID = m.VID
	case gateway.MsgKill:
		e, _ := target.Events.New(event.Kill, m.Timestamp, now)
		e.TargetVID = m.VID
	case gateway.MsgKillSub:
		e, _ := target.Events.New(event.KillSub, m.Timestamp, now)
		e.TargetVID = m.VID
	case gateway.MsgRelease:
		target.Events.New(event.Release, m.Timestamp, now)
	case gateway.MsgAddXIC, gateway.MsgRemoveXIC:
		action := event.AddXIC
		if m.Kind == gateway.MsgRemoveXIC {
			action = event.RemoveXIC
		}
		e, _ := target.Events.New(action, m.Timestamp, now)
		e.UnitIndex = m.UnitIndex
		e.Client = m.Client
	}
}

// Close shuts the state down: closes its registry reference and detaches
// it from its parent's substate list, if any.
func (s *State) Close() {
	s.Shared.Registry.CloseState()
	if s.Parent == nil {
		return
	}
	subs := s.Parent.Substates
	for i, sub := range subs {
		if sub == s {
			s.Parent.Substates = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}
