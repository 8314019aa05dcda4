// waveshaper applies a tanh-style soft-clip drive to its input,
// grounded on the general unit contract (spec §4.2); the original's
// waveshaper unit is not among the files retained in original_source,
// so this is a standard drive/shape implementation of the same class.
package units

import (
	"math"

	"github.com/olofson/a2core/fixed"
	"github.com/olofson/a2core/ramp"
	"github.com/olofson/a2core/unit"
)

type waveshaperState struct {
	drive *ramp.Ramper
}

var WaveshaperDescriptor = &unit.Descriptor{
	Name:       "waveshaper",
	Flags:      unit.MatchIO,
	MinInputs:  1,
	MaxInputs:  2,
	MinOutputs: 1,
	MaxOutputs: 2,
	Registers: []unit.RegisterDesc{
		{Name: "drive", Default: 1.0, Write: WaveshaperWriteDrive},
	},
	Initialize: func(inst *unit.Instance, samplerate int, shared unit.State, flags unit.Flags) error {
		inst.State = &waveshaperState{drive: ramp.New(1.0)}
		if flags&unit.ProcAdd != 0 {
			inst.Process = waveshaperProcessAdd
		} else {
			inst.Process = waveshaperProcessReplace
		}
		return nil
	},
}

func WaveshaperWriteDrive(inst *unit.Instance, value float64, start, duration fixed.P8) {
	inst.State.(*waveshaperState).drive.Set(value, start, duration)
}

func waveshaperRender(inst *unit.Instance, offset, frames int, add bool) {
	st := inst.State.(*waveshaperState)
	st.drive.Prepare(frames)
	n := len(inst.Inputs)
	if n > len(inst.Outputs) {
		n = len(inst.Outputs)
	}
	for i := 0; i < frames; i++ {
		drive := st.drive.Step()
		for ch := 0; ch < n; ch++ {
			x := float64(inst.Inputs[ch][offset+i]) * drive
			y := math.Tanh(x)
			if add {
				inst.Outputs[ch][offset+i] += float32(y)
			} else {
				inst.Outputs[ch][offset+i] = float32(y)
			}
		}
	}
}

func waveshaperProcessReplace(inst *unit.Instance, offset, frames int) {
	waveshaperRender(inst, offset, frames, false)
}

func waveshaperProcessAdd(inst *unit.Instance, offset, frames int) {
	waveshaperRender(inst, offset, frames, true)
}
