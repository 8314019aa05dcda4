// filter12 is a 12dB/octave (2-pole) state-variable filter, grounded on
// original_source/src/units/filter12.c.
package units

import (
	"math"

	"github.com/olofson/a2core/fixed"
	"github.com/olofson/a2core/ramp"
	"github.com/olofson/a2core/unit"
)

type filter12State struct {
	cutoff *ramp.Ramper
	q      *ramp.Ramper
	low, band [2]float64 // per channel (MaxInputs is 2)
	samplerate int
}

// Filter12Descriptor implements a state-variable filter that outputs
// its low-pass response; MATCH_IO since it processes each channel
// independently.
var Filter12Descriptor = &unit.Descriptor{
	Name:       "filter12",
	Flags:      unit.MatchIO,
	MinInputs:  1,
	MaxInputs:  2,
	MinOutputs: 1,
	MaxOutputs: 2,
	Registers: []unit.RegisterDesc{
		{Name: "cutoff", Default: 1000, Write: Filter12WriteCutoff},
		{Name: "q", Default: 1.0, Write: Filter12WriteQ},
	},
	Initialize: func(inst *unit.Instance, samplerate int, shared unit.State, flags unit.Flags) error {
		inst.State = &filter12State{
			cutoff:     ramp.New(1000),
			q:          ramp.New(1.0),
			samplerate: samplerate,
		}
		if flags&unit.ProcAdd != 0 {
			inst.Process = filter12ProcessAdd
		} else {
			inst.Process = filter12ProcessReplace
		}
		return nil
	},
}

func Filter12WriteCutoff(inst *unit.Instance, value float64, start, duration fixed.P8) {
	inst.State.(*filter12State).cutoff.Set(value, start, duration)
}

func Filter12WriteQ(inst *unit.Instance, value float64, start, duration fixed.P8) {
	inst.State.(*filter12State).q.Set(value, start, duration)
}

func filter12Render(inst *unit.Instance, offset, frames int, add bool) {
	st := inst.State.(*filter12State)
	st.cutoff.Prepare(frames)
	st.q.Prepare(frames)
	n := len(inst.Inputs)
	if n > len(inst.Outputs) {
		n = len(inst.Outputs)
	}
	for i := 0; i < frames; i++ {
		cutoff := st.cutoff.Step()
		q := st.q.Step()
		if cutoff < 1 {
			cutoff = 1
		}
		f := 2 * math.Sin(math.Pi*cutoff/float64(st.samplerate))
		if f > 1 {
			f = 1
		}
		damp := 1.0
		if q > 0 {
			damp = 1.0 / q
		}
		for ch := 0; ch < n; ch++ {
			in := float64(inst.Inputs[ch][offset+i])
			high := in - st.low[ch] - damp*st.band[ch]
			st.band[ch] += f * high
			st.low[ch] += f * st.band[ch]
			if add {
				inst.Outputs[ch][offset+i] += float32(st.low[ch])
			} else {
				inst.Outputs[ch][offset+i] = float32(st.low[ch])
			}
		}
	}
}

func filter12ProcessReplace(inst *unit.Instance, offset, frames int) {
	filter12Render(inst, offset, frames, false)
}

func filter12ProcessAdd(inst *unit.Instance, offset, frames int) {
	filter12Render(inst, offset, frames, true)
}
