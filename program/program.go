// Package program implements the program/function/structure-item data
// model a voice instantiates from (spec §3 "Program", "Function").
package program

// Channel-count sentinels used in structure items' input/output specs
// (spec §3: "match-output", "wire-to-voice-output", "default").
const (
	MatchOutput      = -1
	WireToVoiceOutput = -2
	Default          = -3
)

// StructureItem is one entry in a program's voice-structure list: a
// unit declaration or a control wire (spec §3 "Program").
type StructureItem struct {
	// Unit declaration fields (IsWire == false).
	UnitName string
	NInputs  int // one of the sentinels above, or an explicit count
	NOutputs int

	// Control wire fields (IsWire == true): wires (unit_index,
	// coutput_index) to a voice register.
	IsWire       bool
	SourceUnit   int
	SourceOutput int
	TargetReg    int
}

// NewUnit returns a unit-declaration structure item.
func NewUnit(name string, nin, nout int) StructureItem {
	return StructureItem{UnitName: name, NInputs: nin, NOutputs: nout}
}

// NewWire returns a control-wire structure item.
func NewWire(sourceUnit, sourceOutput, targetReg int) StructureItem {
	return StructureItem{IsWire: true, SourceUnit: sourceUnit, SourceOutput: sourceOutput, TargetReg: targetReg}
}

// MaxArgs is the maximum number of arguments (and pending pushed args)
// a function/entry point accepts (spec §4.4 "PUSH... up to 8 pending
// args").
const MaxArgs = 8

// NumEntryPoints is the number of message-handler entry-point slots
// (spec §3: "functions 1..N ... indexed 0..7 via a separate entry-point
// table").
const NumEntryPoints = 8

// Function is a contiguous 32-bit instruction stream plus calling
// metadata (spec §3 "Function").
type Function struct {
	Code         []uint32
	Argc         int
	Defaults     [MaxArgs]float64
	FirstArgReg  int
	TopRegister  int // highest register touched; sizes the call-stack save area
}

// Program is an ordered structure-item list plus a function array
// (spec §3 "Program"): function 0 is the entry point, functions 1..N
// are callable/message-handler entry points indexed via EntryPoints.
type Program struct {
	Name       string
	Structure  []StructureItem
	Functions  []Function
	EntryPoints [NumEntryPoints]int // index into Functions, or -1 if unset
}

// New returns an empty program with all entry points unset.
func New(name string) *Program {
	p := &Program{Name: name}
	for i := range p.EntryPoints {
		p.EntryPoints[i] = -1
	}
	return p
}

// Builder provides a small fluent API for constructing programs in Go
// (the A2S source compiler is out of scope, spec §1, but the engine's
// root/group drivers and tests still need to build programs).
type Builder struct {
	p *Program
}

func NewBuilder(name string) *Builder { return &Builder{p: New(name)} }

func (b *Builder) Unit(name string, nin, nout int) *Builder {
	b.p.Structure = append(b.p.Structure, NewUnit(name, nin, nout))
	return b
}

func (b *Builder) Wire(sourceUnit, sourceOutput, targetReg int) *Builder {
	b.p.Structure = append(b.p.Structure, NewWire(sourceUnit, sourceOutput, targetReg))
	return b
}

// Func appends a function built from raw 32-bit words and returns its
// index (0 == entry point by convention).
func (b *Builder) Func(argc, firstArgReg, topReg int, code ...uint32) int {
	b.p.Functions = append(b.p.Functions, Function{
		Code: code, Argc: argc, FirstArgReg: firstArgReg, TopRegister: topReg,
	})
	return len(b.p.Functions) - 1
}

// EntryPoint binds message-handler slot ep (0..7) to function index fn.
func (b *Builder) EntryPoint(ep, fn int) *Builder {
	b.p.EntryPoints[ep] = fn
	return b
}

func (b *Builder) Build() *Program { return b.p }
