package units

import (
	"github.com/olofson/a2core/fixed"
	"github.com/olofson/a2core/unit"
)

type envelopeStage struct {
	target float64
	rate   float64 // change per sample
}

type envelopeState struct {
	value   float64
	running bool
	rate    float64
	target  float64
}

// EnvelopeDescriptor is a simple one-segment-at-a-time linear envelope
// generator: writing "target" starts a ramp to a new level over the
// write's commit duration (e.g. a RAMP instruction's ms; the "time"
// register has no write callback and is not read);
// Process renders its current value into every output sample
// (additive mode mixes it onto existing control signals). Grounded on
// the unit-interface contract in spec §4.2; envelopes are named in
// spec §1's list of built-ins but not otherwise normatively specified.
var EnvelopeDescriptor = &unit.Descriptor{
	Name:       "envelope",
	MinInputs:  0,
	MaxInputs:  0,
	MinOutputs: 1,
	MaxOutputs: 1,
	Registers: []unit.RegisterDesc{
		{Name: "target", Default: 0, Write: EnvelopeWriteTarget},
		{Name: "time", Default: 0}, // duration is carried on the "target" write's own commit
	},
	Initialize: func(inst *unit.Instance, samplerate int, shared unit.State, flags unit.Flags) error {
		inst.State = &envelopeState{}
		if flags&unit.ProcAdd != 0 {
			inst.Process = envelopeProcessAdd
		} else {
			inst.Process = envelopeProcessReplace
		}
		return nil
	},
}

// EnvelopeWriteTarget retargets the envelope; the ramp duration is the
// commit's own `duration` argument, from which this unit derives its
// per-sample rate.
func EnvelopeWriteTarget(inst *unit.Instance, value float64, start, duration fixed.P8) {
	st := inst.State.(*envelopeState)
	st.target = value
	frames := duration.Frames()
	if frames <= 0 {
		st.value = value
		st.running = false
		return
	}
	st.rate = (value - st.value) / float64(frames)
	st.running = true
}

func envelopeRender(inst *unit.Instance, offset, frames int, add bool) {
	st := inst.State.(*envelopeState)
	out := inst.Outputs[0]
	for i := 0; i < frames; i++ {
		if st.running {
			st.value += st.rate
			if (st.rate >= 0 && st.value >= st.target) || (st.rate < 0 && st.value <= st.target) {
				st.value = st.target
				st.running = false
			}
		}
		if add {
			out[offset+i] += float32(st.value)
		} else {
			out[offset+i] = float32(st.value)
		}
	}
}

func envelopeProcessReplace(inst *unit.Instance, offset, frames int) {
	envelopeRender(inst, offset, frames, false)
}

func envelopeProcessAdd(inst *unit.Instance, offset, frames int) {
	envelopeRender(inst, offset, frames, true)
}
