package units

import (
	"math"

	"github.com/olofson/a2core/fixed"
	"github.com/olofson/a2core/ramp"
	"github.com/olofson/a2core/unit"
)

type panmixState struct {
	gain *ramp.Ramper
	pan  *ramp.Ramper // -1 (left) .. +1 (right)
}

// PanmixDescriptor is the default root-driver mix unit: sums its inputs
// to mono then pans/gains into a stereo output bus (spec §2 "Root
// driver": "wiring master panmix and sink").
var PanmixDescriptor = &unit.Descriptor{
	Name:       "panmix",
	MinInputs:  1,
	MaxInputs:  8,
	MinOutputs: 2,
	MaxOutputs: 2,
	Registers: []unit.RegisterDesc{
		{Name: "gain", Default: 1.0, Write: PanmixWriteGain},
		{Name: "pan", Default: 0.0, Write: PanmixWritePan},
	},
	Initialize: func(inst *unit.Instance, samplerate int, shared unit.State, flags unit.Flags) error {
		inst.State = &panmixState{gain: ramp.New(1.0), pan: ramp.New(0.0)}
		if flags&unit.ProcAdd != 0 {
			inst.Process = panmixProcessAdd
		} else {
			inst.Process = panmixProcessReplace
		}
		return nil
	},
}

func PanmixWriteGain(inst *unit.Instance, value float64, start, duration fixed.P8) {
	inst.State.(*panmixState).gain.Set(value, start, duration)
}

func PanmixWritePan(inst *unit.Instance, value float64, start, duration fixed.P8) {
	inst.State.(*panmixState).pan.Set(value, start, duration)
}

func panmixRender(inst *unit.Instance, offset, frames int, add bool) {
	st := inst.State.(*panmixState)
	st.gain.Prepare(frames)
	st.pan.Prepare(frames)
	if len(inst.Outputs) < 2 {
		return
	}
	left, right := inst.Outputs[0], inst.Outputs[1]
	for i := 0; i < frames; i++ {
		var mono float32
		for _, in := range inst.Inputs {
			mono += in[offset+i]
		}
		gain := st.gain.Step()
		pan := st.pan.Step()
		// equal-power pan law
		angle := (pan + 1) * math.Pi / 4
		l := float32(math.Cos(angle) * gain)
		r := float32(math.Sin(angle) * gain)
		if add {
			left[offset+i] += mono * l
			right[offset+i] += mono * r
		} else {
			left[offset+i] = mono * l
			right[offset+i] = mono * r
		}
	}
}

func panmixProcessReplace(inst *unit.Instance, offset, frames int) {
	panmixRender(inst, offset, frames, false)
}

func panmixProcessAdd(inst *unit.Instance, offset, frames int) {
	panmixRender(inst, offset, frames, true)
}
