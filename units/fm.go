// fm is a two-operator FM pair (modulator feeding a carrier's phase),
// grounded on original_source/src/units/fm.c's operator-pair design,
// simplified to a fixed 2-op topology.
package units

import (
	"math"

	"github.com/olofson/a2core/fixed"
	"github.com/olofson/a2core/ramp"
	"github.com/olofson/a2core/unit"
)

type fmState struct {
	modPhase, carPhase float64
	modRate, carRate   *ramp.Ramper
	modIndex           *ramp.Ramper
	ratio              float64
	samplerate         int
}

var FMDescriptor = &unit.Descriptor{
	Name:       "fm",
	MinInputs:  0,
	MaxInputs:  0,
	MinOutputs: 1,
	MaxOutputs: 2,
	Registers: []unit.RegisterDesc{
		{Name: "carrier", Default: 440, Write: fmWriteCarrier},
		{Name: "ratio", Default: 1.0, Write: fmWriteRatio},
		{Name: "index", Default: 1.0, Write: fmWriteIndex},
	},
	Initialize: func(inst *unit.Instance, samplerate int, shared unit.State, flags unit.Flags) error {
		inst.State = &fmState{
			modRate:    ramp.New(440.0 / float64(samplerate)),
			carRate:    ramp.New(440.0 / float64(samplerate)),
			modIndex:   ramp.New(1.0),
			ratio:      1.0,
			samplerate: samplerate,
		}
		if flags&unit.ProcAdd != 0 {
			inst.Process = fmProcessAdd
		} else {
			inst.Process = fmProcessReplace
		}
		return nil
	},
}

func fmWriteCarrier(inst *unit.Instance, value float64, start, duration fixed.P8) {
	st := inst.State.(*fmState)
	st.carRate.Set(value/float64(st.samplerate), start, duration)
	st.modRate.Set(value*st.ratio/float64(st.samplerate), start, duration)
}

func fmWriteRatio(inst *unit.Instance, value float64, start, duration fixed.P8) {
	inst.State.(*fmState).ratio = value
}

func fmWriteIndex(inst *unit.Instance, value float64, start, duration fixed.P8) {
	inst.State.(*fmState).modIndex.Set(value, start, duration)
}

func fmRender(inst *unit.Instance, offset, frames int, add bool) {
	st := inst.State.(*fmState)
	st.modRate.Prepare(frames)
	st.carRate.Prepare(frames)
	st.modIndex.Prepare(frames)
	for i := 0; i < frames; i++ {
		modRate := st.modRate.Step()
		carRate := st.carRate.Step()
		index := st.modIndex.Step()
		modOut := math.Sin(2 * math.Pi * st.modPhase)
		sample := math.Sin(2*math.Pi*st.carPhase + index*modOut)
		st.modPhase += modRate
		st.carPhase += carRate
		if st.modPhase >= 1 {
			st.modPhase -= math.Floor(st.modPhase)
		}
		if st.carPhase >= 1 {
			st.carPhase -= math.Floor(st.carPhase)
		}
		for _, out := range inst.Outputs {
			if add {
				out[offset+i] += float32(sample)
			} else {
				out[offset+i] = float32(sample)
			}
		}
	}
}

func fmProcessReplace(inst *unit.Instance, offset, frames int) {
	fmRender(inst, offset, frames, false)
}

func fmProcessAdd(inst *unit.Instance, offset, frames int) {
	fmRender(inst, offset, frames, true)
}
