// delay is a single-tap feedback delay line, grounded on the general
// unit contract (spec §4.2).
package units

import (
	"github.com/olofson/a2core/fixed"
	"github.com/olofson/a2core/ramp"
	"github.com/olofson/a2core/unit"
)

type delayState struct {
	buf        []float32
	pos        int
	delaySamps *ramp.Ramper
	feedback   *ramp.Ramper
	samplerate int
}

const maxDelaySeconds = 2.0

var DelayDescriptor = &unit.Descriptor{
	Name:       "delay",
	Flags:      unit.MatchIO,
	MinInputs:  1,
	MaxInputs:  2,
	MinOutputs: 1,
	MaxOutputs: 2,
	Registers: []unit.RegisterDesc{
		{Name: "time", Default: 0.25, Write: DelayWriteTime},
		{Name: "feedback", Default: 0.3, Write: DelayWriteFeedback},
	},
	Initialize: func(inst *unit.Instance, samplerate int, shared unit.State, flags unit.Flags) error {
		inst.State = &delayState{
			buf:        make([]float32, int(float64(samplerate)*maxDelaySeconds)),
			delaySamps: ramp.New(float64(samplerate) * 0.25),
			feedback:   ramp.New(0.3),
			samplerate: samplerate,
		}
		if flags&unit.ProcAdd != 0 {
			inst.Process = delayProcessAdd
		} else {
			inst.Process = delayProcessReplace
		}
		return nil
	},
}

// DelayWriteTime converts a time-in-seconds control value to samples
// before ramping, using the samplerate captured in the instance's
// state at Initialize time.
func DelayWriteTime(inst *unit.Instance, value float64, start, duration fixed.P8) {
	st := inst.State.(*delayState)
	st.delaySamps.Set(value*float64(st.samplerate), start, duration)
}

func DelayWriteFeedback(inst *unit.Instance, value float64, start, duration fixed.P8) {
	inst.State.(*delayState).feedback.Set(value, start, duration)
}

func delayRender(inst *unit.Instance, offset, frames int, add bool) {
	st := inst.State.(*delayState)
	st.delaySamps.Prepare(frames)
	st.feedback.Prepare(frames)
	n := len(inst.Inputs)
	if n > len(inst.Outputs) {
		n = len(inst.Outputs)
	}
	bufLen := len(st.buf)
	for i := 0; i < frames; i++ {
		d := int(st.delaySamps.Step())
		if d < 1 {
			d = 1
		}
		if d >= bufLen {
			d = bufLen - 1
		}
		fb := st.feedback.Step()
		readPos := (st.pos - d + bufLen) % bufLen
		delayed := st.buf[readPos]
		var in float32
		for ch := 0; ch < n; ch++ {
			in += inst.Inputs[ch][offset+i]
		}
		st.buf[st.pos] = in + delayed*float32(fb)
		st.pos = (st.pos + 1) % bufLen
		for ch := 0; ch < n; ch++ {
			out := inst.Inputs[ch][offset+i] + delayed
			if add {
				inst.Outputs[ch][offset+i] += out
			} else {
				inst.Outputs[ch][offset+i] = out
			}
		}
	}
}

func delayProcessReplace(inst *unit.Instance, offset, frames int) {
	delayRender(inst, offset, frames, false)
}

func delayProcessAdd(inst *unit.Instance, offset, frames int) {
	delayRender(inst, offset, frames, true)
}
