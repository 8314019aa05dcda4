// dbgunit prints/logs its control register writes and passes audio
// through unchanged; grounded on original_source/src/units/dbgunit.c.
package units

import (
	"github.com/olofson/a2core/fixed"
	"github.com/olofson/a2core/unit"
)

// DebugSink receives (name, value) pairs from a dbgunit instance's
// register writes; nil disables logging (the default no-op).
type DebugSink func(name string, value float64)

type dbgunitState struct {
	sink DebugSink
}

var DbgunitDescriptor = &unit.Descriptor{
	Name:       "dbgunit",
	Flags:      unit.MatchIO,
	MinInputs:  0,
	MaxInputs:  8,
	MinOutputs: 0,
	MaxOutputs: 8,
	Registers: []unit.RegisterDesc{
		{Name: "value", Default: 0, Write: dbgunitWriteValue},
	},
	Initialize: func(inst *unit.Instance, samplerate int, shared unit.State, flags unit.Flags) error {
		inst.State = &dbgunitState{}
		inst.Process = dbgunitProcess
		return nil
	},
}

// SetSink attaches (or clears, with nil) the debug output sink for inst.
func SetSink(inst *unit.Instance, sink DebugSink) {
	inst.State.(*dbgunitState).sink = sink
}

func dbgunitWriteValue(inst *unit.Instance, value float64, start, duration fixed.P8) {
	st := inst.State.(*dbgunitState)
	if st.sink != nil {
		st.sink("value", value)
	}
}

func dbgunitProcess(inst *unit.Instance, offset, frames int) {
	n := len(inst.Inputs)
	if n > len(inst.Outputs) {
		n = len(inst.Outputs)
	}
	for ch := 0; ch < n; ch++ {
		if inst.Inputs[ch] != inst.Outputs[ch] {
			copy(inst.Outputs[ch][offset:offset+frames], inst.Inputs[ch][offset:offset+frames])
		}
	}
}
