package vm

import (
	"github.com/olofson/a2core/errors"
	"github.com/olofson/a2core/fixed"
	"github.com/olofson/a2core/program"
)

// NumRegisters is the per-voice register file size (spec §4.4).
const NumRegisters = 32

// RegTick and RegTranspose are the two fixed registers (spec §4.4).
const (
	RegTick      = 0
	RegTranspose = 1
	FirstArgReg  = 2
)

// InstructionLimit is A2_INSLIMIT: the max instructions a voice may run
// back-to-back without a timing instruction before it is killed with
// OVERLOAD (spec §4.4 "Instruction budget").
const InstructionLimit = 100000

// RunState is a voice's VM/scheduling state (spec §4.3 "Termination states").
type RunState uint8

const (
	Running RunState = iota
	Waiting
	Interrupt
	Ending
	Finalizing
)

// Host is the set of callbacks the VM needs from its owning voice to
// have any effect beyond its own register file: committing control
// register writes to DSP units, and the subvoice/messaging operations.
// Defined here (rather than importing package voice) to keep vm free of
// a dependency cycle; package voice implements Host.
type Host interface {
	CommitRegister(reg int, value float64, start, duration fixed.P8)
	Spawn(vid int, programHandle int32, entry int, args []fixed.P16, detached, anonymous bool) error
	Send(vid int, entry int, args []fixed.P16, toSelf, toAll bool) error
	Kill(vid int, all bool) error
	Detach(vid int, all bool) error
	Wait(vid int) bool // true once the named subvoice has finished
	Debug(value fixed.P16)
	Now() fixed.P8
	SampleRate() int
	InitVoice() error // runs INITV's unit/wire instantiation
}

type frame struct {
	savedRegs   [NumRegisters]fixed.P16
	returnPC    int
	returnFunc  int
	isInterrupt bool
	savedWake   fixed.P8
}

// VM is one voice's bytecode interpreter state (spec §3 "Voice": "VM
// state").
type VM struct {
	Regs [NumRegisters]fixed.P16

	Program  *program.Program
	funcIdx  int
	pc       int
	wakeTime fixed.P8

	state RunState
	stack []frame

	dirty    [NumRegisters]bool
	anyDirty bool

	pushArgs []fixed.P16

	insnBudget int

	lastError error
}

// New returns a VM ready to run p's entry function (function 0) from
// its first instruction, with wakeTime initialized to start.
func New(p *program.Program, start fixed.P8) *VM {
	return NewAt(p, start, 0)
}

// NewAt is New, but starts execution at function funcIdx instead of
// function 0 (spec §4.3 "Spawning at a named entry point" — SPAWN's
// entry argument selects which of the program's functions the new
// voice begins running).
func NewAt(p *program.Program, start fixed.P8, funcIdx int) *VM {
	v := &VM{Program: p, funcIdx: funcIdx, wakeTime: start, state: Running}
	v.Regs[RegTick] = fixed.FromFloat16(125.0) // 125ms/tick default (120 BPM, 16th notes)
	return v
}

func (v *VM) State() RunState     { return v.state }
func (v *VM) WakeTime() fixed.P8  { return v.wakeTime }
func (v *VM) LastError() error    { return v.lastError }
func (v *VM) SetState(s RunState) { v.state = s }

func (v *VM) markDirty(reg int) {
	if reg < 0 || reg >= NumRegisters {
		return
	}
	v.dirty[reg] = true
	v.anyDirty = true
}

func (v *VM) currentFunc() *program.Function {
	if v.funcIdx < 0 || v.funcIdx >= len(v.Program.Functions) {
		return nil
	}
	return &v.Program.Functions[v.funcIdx]
}

func (v *VM) fetch() (Word, bool) {
	fn := v.currentFunc()
	if fn == nil || v.pc >= len(fn.Code) {
		return 0, false
	}
	w := Word(fn.Code[v.pc])
	v.pc++
	return w, true
}

func (v *VM) fetchImmediate() uint32 {
	fn := v.currentFunc()
	if fn == nil || v.pc >= len(fn.Code) {
		return 0
	}
	imm := fn.Code[v.pc]
	v.pc++
	return imm
}

// commitAll flushes every dirty register to the host with the given
// sub-sample start/duration (spec §4.4 "Register-write tracking").
func (v *VM) commitAll(host Host, start, duration fixed.P8) {
	if !v.anyDirty {
		return
	}
	for r := 0; r < NumRegisters; r++ {
		if v.dirty[r] {
			host.CommitRegister(r, v.Regs[r].Float(), start, duration)
			v.dirty[r] = false
		}
	}
	v.anyDirty = false
}

func (v *VM) commitOne(host Host, reg int, start, duration fixed.P8) {
	host.CommitRegister(reg, v.Regs[reg].Float(), start, duration)
	v.dirty[reg] = false
}

// StepResult describes why Run returned control to the voice scheduler.
type StepResult uint8

const (
	ResultTimeAdvanced StepResult = iota
	ResultEnded
	ResultWaiting
	ResultError
	ResultInterruptReturned
)

// Run executes instructions for voice v against host until a timing
// instruction advances wakeTime, the program ends/returns, or the
// instruction budget is exhausted (OVERLOAD). samplerate is needed to
// convert ms/tick-based timing instructions to 24.8 frame counts.
func (v *VM) Run(host Host, samplerate int) StepResult {
	if v.state == Waiting || v.state == Finalizing {
		return ResultWaiting
	}
	v.insnBudget = InstructionLimit
	for {
		if v.insnBudget <= 0 {
			v.lastError = errors.New(errors.OVERLOAD, "vm.Run")
			v.state = Ending
			return ResultError
		}
		v.insnBudget--

		w, ok := v.fetch()
		if !ok {
			// Ran off the end of a function body without RETURN/END:
			// treat as RETURN.
			if !v.doReturn(host) {
				v.state = Ending
				return ResultEnded
			}
			continue
		}
		op := w.Op()
		if !op.Valid() {
			v.lastError = errors.New(errors.ILLEGALOP, "vm.Run")
			v.state = Ending
			return ResultError
		}

		var imm uint32
		if LongForm(op) {
			imm = v.fetchImmediate()
		}

		switch op {
		case OpNOP:
			// no-op

		case OpEND:
			v.state = Ending
			return ResultEnded

		case OpRETURN:
			if !v.doReturn(host) {
				v.state = Ending
				return ResultEnded
			}
			if v.state == Interrupt {
				return ResultInterruptReturned
			}

		case OpCALL:
			v.doCall(int(w.A1()), int(w.A2()), false)

		case OpJUMP:
			v.pc = int(w.A2())

		case OpLOOP:
			r := int(w.A1())
			v.Regs[r] -= fixed.FromInt16(1)
			if v.Regs[r].Int() > 0 {
				v.pc = int(w.A2())
			}

		case OpJZ, OpJNZ, OpJGT, OpJGE, OpJLT, OpJLE:
			r := int(w.A1())
			val := v.Regs[r]
			var take bool
			switch op {
			case OpJZ:
				take = val == 0
			case OpJNZ:
				take = val != 0
			case OpJGT:
				take = val > 0
			case OpJGE:
				take = val >= 0
			case OpJLT:
				take = val < 0
			case OpJLE:
				take = val <= 0
			}
			if take {
				v.pc = int(w.A2())
			}

		case OpDELAY, OpDELAYR, OpTDELAY, OpTDELAYR:
			var ms float64
			switch op {
			case OpDELAY:
				ms = fixed.P16(imm).Float()
			case OpDELAYR:
				ms = v.Regs[w.A1()].Float()
			case OpTDELAY:
				ms = fixed.P16(imm).Float() * v.Regs[RegTick].Float()
			case OpTDELAYR:
				ms = v.Regs[w.A1()].Float() * v.Regs[RegTick].Float()
			}
			dur := fixed.FromMS(ms, samplerate)
			start := v.wakeTime.Frac()
			v.commitAll(host, fixed.P8(start), dur)
			v.wakeTime = v.wakeTime.Add(dur)
			return ResultTimeAdvanced

		case OpSLEEP:
			v.state = Waiting
			return ResultWaiting

		case OpWAKE:
			v.state = Running

		case OpFORCE:
			// Forces immediate re-evaluation; no state change needed
			// in this model since Run is always called fresh.

		case OpADD, OpADDI, OpSUB, OpSUBI, OpMUL, OpMULI, OpDIV, OpDIVI,
			OpMOD, OpMODI, OpQUANT, OpQUANTI, OpRAND, OpRANDI, OpP2R, OpP2RI:
			if err := v.doArith(op, w, imm, samplerate); err != nil {
				v.lastError = err
				v.state = Ending
				return ResultError
			}

		case OpNEG:
			v.Regs[w.A1()] = -v.Regs[w.A1()]
			v.markDirty(int(w.A1()))

		case OpCEQ, OpCNE, OpCGT, OpCGE, OpCLT, OpCLE:
			a, b := v.Regs[w.A1()], v.Regs[w.A2()]
			var t bool
			switch op {
			case OpCEQ:
				t = a == b
			case OpCNE:
				t = a != b
			case OpCGT:
				t = a > b
			case OpCGE:
				t = a >= b
			case OpCLT:
				t = a < b
			case OpCLE:
				t = a <= b
			}
			if t {
				v.Regs[w.A1()] = fixed.P16One
			} else {
				v.Regs[w.A1()] = 0
			}
			v.markDirty(int(w.A1()))

		case OpAND, OpOR, OpXOR:
			a := v.Regs[w.A1()] != 0
			b := v.Regs[w.A2()] != 0
			var r bool
			switch op {
			case OpAND:
				r = a && b
			case OpOR:
				r = a || b
			case OpXOR:
				r = a != b
			}
			v.Regs[w.A1()] = boolReg(r)
			v.markDirty(int(w.A1()))

		case OpNOT:
			v.Regs[w.A1()] = boolReg(v.Regs[w.A1()] == 0)
			v.markDirty(int(w.A1()))

		case OpSET:
			r := int(w.A1())
			v.commitOne(host, r, v.subSampleStart(), 0)

		case OpSETALL:
			v.commitAll(host, v.subSampleStart(), 0)

		case OpRAMP:
			r := int(w.A1())
			v.Regs[r] = fixed.P16(imm)
			dur := fixed.FromMS(float64(w.A2()), samplerate)
			v.commitOne(host, r, v.subSampleStart(), dur)

		case OpRAMPR:
			r := int(w.A1())
			v.Regs[r] = v.Regs[w.A2()]
			dur := fixed.FromMS(float64(fixed.P16(imm).Int()), samplerate)
			v.commitOne(host, r, v.subSampleStart(), dur)

		case OpRAMPALL:
			dur := fixed.FromMS(float64(w.A2()), samplerate)
			v.commitAll(host, v.subSampleStart(), dur)

		case OpPUSH:
			v.pushArgs = append(v.pushArgs, fixed.P16(imm))
		case OpPUSHR:
			v.pushArgs = append(v.pushArgs, v.Regs[w.A1()])

		case OpSPAWN, OpSPAWND, OpSPAWNA:
			vid := int(w.A1())
			err := host.Spawn(vid, int32(imm), int(w.A2()), v.takeArgs(), op == OpSPAWND, op == OpSPAWNA)
			if err != nil {
				v.lastError = err
			}
		case OpSPAWNR:
			vid := int(v.Regs[w.A1()].Int())
			err := host.Spawn(vid, int32(imm), int(w.A2()), v.takeArgs(), false, false)
			if err != nil {
				v.lastError = err
			}

		case OpSEND:
			if err := host.Send(int(w.A1()), int(w.A2()), v.takeArgs(), false, false); err != nil {
				v.lastError = err
			}
		case OpSENDSUB:
			if err := host.Send(0, int(w.A2()), v.takeArgs(), true, false); err != nil {
				v.lastError = err
			}
		case OpSENDA:
			if err := host.Send(0, int(w.A2()), v.takeArgs(), false, true); err != nil {
				v.lastError = err
			}
		case OpSENDS:
			if err := host.Send(0, int(w.A2()), v.takeArgs(), true, false); err != nil {
				v.lastError = err
			}

		case OpWAIT:
			if !host.Wait(int(w.A1())) {
				v.pc-- // retry this instruction on the next Run, until the subvoice is gone
				return ResultWaiting
			}

		case OpKILL:
			_ = host.Kill(int(w.A1()), false)
		case OpKILLA:
			_ = host.Kill(0, true)
		case OpDETACH:
			_ = host.Detach(int(w.A1()), false)
		case OpDETACHA:
			_ = host.Detach(0, true)

		case OpDEBUG:
			host.Debug(fixed.P16(imm))
		case OpDEBUGR:
			host.Debug(v.Regs[w.A1()])

		case OpINITV:
			if err := host.InitVoice(); err != nil {
				v.lastError = err
				v.state = Ending
				return ResultError
			}

		case OpSIZEOF:
			v.Regs[w.A1()] = fixed.FromInt16(0)
			v.markDirty(int(w.A1()))

		default:
			v.lastError = errors.New(errors.ILLEGALOP, "vm.Run")
			v.state = Ending
			return ResultError
		}
	}
}

func boolReg(b bool) fixed.P16 {
	if b {
		return fixed.P16One
	}
	return 0
}

func (v *VM) subSampleStart() fixed.P8 {
	return fixed.P8(v.wakeTime.Frac())
}

func (v *VM) takeArgs() []fixed.P16 {
	a := v.pushArgs
	v.pushArgs = nil
	return a
}

func (v *VM) doCall(fn, _ int, interrupt bool) {
	if len(v.stack) > 256 {
		v.lastError = errors.New(errors.STACKOVERFLOW, "vm.doCall")
		v.state = Ending
		return
	}
	fr := frame{returnPC: v.pc, returnFunc: v.funcIdx, isInterrupt: interrupt, savedWake: v.wakeTime}
	fr.savedRegs = v.Regs
	v.stack = append(v.stack, fr)
	v.bindArgs(fn)
	v.funcIdx = fn
	v.pc = 0
}

// bindArgs copies any pushed arguments (or the function's declared
// defaults) into its argument registers (spec §3 "Function": "argument
// count and default values").
func (v *VM) bindArgs(fn int) {
	if fn < 0 || fn >= len(v.Program.Functions) {
		return
	}
	f := &v.Program.Functions[fn]
	args := v.takeArgs()
	for i := 0; i < f.Argc; i++ {
		reg := f.FirstArgReg + i
		if reg < 0 || reg >= NumRegisters {
			continue
		}
		if i < len(args) {
			v.Regs[reg] = args[i]
		} else {
			v.Regs[reg] = fixed.FromFloat16(f.Defaults[i])
		}
	}
}

// CallMessageHandler runs function fn as a message-handler interrupt:
// saves the full register window and current wake_time, runs until
// RETURN, then restores both (spec §4.4 "Calls and interrupts": "the
// interrupt does not consume musical time"). Message handlers may not
// execute timing instructions; Run enforces that by simply never
// resuming a wake-time change inside Interrupt state (callers are
// expected to treat a ResultTimeAdvanced return from an interrupt call
// as a program error, per spec).
func (v *VM) CallMessageHandler(fn int, args []fixed.P16, host Host, samplerate int) StepResult {
	savedState := v.state
	v.state = Interrupt
	v.pushArgs = args
	v.doCall(fn, 0, true)
	res := v.Run(host, samplerate)
	v.state = savedState
	return res
}

// doReturn pops the call stack, restoring the caller's registers, PC
// and function. Returns false if the stack is empty (top-level return
// ends the program).
func (v *VM) doReturn(host Host) bool {
	if len(v.stack) == 0 {
		return false
	}
	n := len(v.stack)
	fr := v.stack[n-1]
	v.stack = v.stack[:n-1]
	v.Regs = fr.savedRegs
	v.pc = fr.returnPC
	v.funcIdx = fr.returnFunc
	if fr.isInterrupt {
		v.wakeTime = fr.savedWake
	}
	return true
}
