package voice

import (
	"github.com/olofson/a2core/errors"
	"github.com/olofson/a2core/pool"
	"github.com/olofson/a2core/program"
	"github.com/olofson/a2core/unit"
	"github.com/olofson/a2core/vm"
)

// wire is a resolved control-output-to-register connection (spec §4.2
// "wire a unit's control output to a voice register").
type wire struct {
	srcUnit   *unit.Instance
	srcOutput int
	reg       int
}

// instantiate runs the INITV algorithm (spec §4.2): walk the program's
// structure list in order, resolve the channel-count sentinels,
// allocate and initialize one unit.Instance per declaration, assign
// each unit's control registers into the voice's register file above
// the registers the program's functions actually use, and bind wires.
//
// The last unit declaration must resolve to the voice's own output
// (NOutputs == program.WireToVoiceOutput); MATCH_IO units require
// ninputs == noutputs.
func (v *Voice) instantiate() error {
	if len(v.Program.Structure) == 0 {
		return errors.New(errors.NOUNITS, "voice.instantiate")
	}

	nextReg := v.topRegisterInUse() + 1
	var prevOutputs []*pool.Buffer
	sawTerminal := false

	for _, item := range v.Program.Structure {
		if item.IsWire {
			v.wires = append(v.wires, wire{
				srcUnit:   v.Units[item.SourceUnit],
				srcOutput: item.SourceOutput,
				reg:       item.TargetReg,
			})
			continue
		}

		desc, ok := v.rt.Registry.Lookup(item.UnitName)
		if !ok {
			return errors.New(errors.BADENTRY, "voice.instantiate:"+item.UnitName)
		}

		ninputs := resolveCount(item.NInputs, len(prevOutputs), desc.MinInputs)
		terminal := item.NOutputs == program.WireToVoiceOutput
		noutputs := resolveCount(item.NOutputs, ninputs, desc.MinOutputs)
		if desc.Flags&unit.MatchIO != 0 && ninputs != noutputs && !terminal {
			return errors.New(errors.IODONTMATCH, "voice.instantiate:"+item.UnitName)
		}

		inst := &unit.Instance{Desc: desc, NInputs: ninputs}
		inst.Inputs = prevOutputs
		if terminal {
			inst.Outputs = v.Output.Buffers
			inst.NOutputs = len(v.Output.Buffers)
			inst.IsOutputTerminal = true
			sawTerminal = true
		} else {
			sawTerminal = false
			bus, err := v.rt.scratchBus(v.Level, noutputs)
			if err != nil {
				return err
			}
			inst.Outputs = bus.Buffers[:noutputs]
			inst.NOutputs = noutputs
		}
		if len(desc.ControlOutputs) > 0 {
			inst.ControlOut = make([]float64, len(desc.ControlOutputs))
		}

		flags := desc.Flags
		if desc.MaxInputs == 0 && len(prevOutputs) > 0 && !terminal {
			// Input-less unit inside an ongoing chain: mix into the
			// chain's buffers instead of replacing them.
			flags |= unit.ProcAdd
		}
		if desc.Initialize != nil {
			if err := desc.Initialize(inst, v.rt.SampleRate, nil, flags); err != nil {
				return err
			}
		}

		for _, rd := range desc.Registers {
			if nextReg >= vm.NumRegisters {
				return errors.New(errors.STACKOVERFLOW, "voice.instantiate:registers")
			}
			inst.Regs = append(inst.Regs, nextReg)
			v.ports[nextReg] = unit.Port{Inst: inst, Write: rd.Write}
			if rd.Write != nil {
				rd.Write(inst, rd.Default, 0, 0)
			}
			nextReg++
		}

		v.Units = append(v.Units, inst)
		prevOutputs = inst.Outputs
	}

	if !sawTerminal {
		return errors.New(errors.NOOUTPUT, "voice.instantiate")
	}
	v.initialized = true
	return nil
}

// resolveCount turns a structure-item channel-count field (an explicit
// count or one of program's sentinels) into a concrete channel count.
func resolveCount(n, matchValue, defaultValue int) int {
	switch n {
	case program.MatchOutput:
		if matchValue > 0 {
			return matchValue
		}
		return 1
	case program.WireToVoiceOutput:
		return matchValue
	case program.Default:
		if defaultValue > 0 {
			return defaultValue
		}
		return 1
	default:
		return n
	}
}

// topRegisterInUse returns the highest VM register the program's
// functions touch, so unit control registers are assigned strictly
// above it and never alias a register the bytecode itself uses.
func (v *Voice) topRegisterInUse() int {
	top := vm.FirstArgReg
	for i := range v.Program.Functions {
		if t := v.Program.Functions[i].TopRegister; t > top {
			top = t
		}
	}
	return top
}
