// Package units implements the built-in DSP units (spec §4.2's closing
// paragraph: "specified via the unit interface contract, not
// individually"). Each unit here is a minimal-but-real implementation
// grounded on the corresponding file under original_source/src/units/.
package units

import (
	"github.com/olofson/a2core/fixed"
	"github.com/olofson/a2core/ramp"
	"github.com/olofson/a2core/unit"
	"github.com/olofson/a2core/wave"
)

// WaveSource resolves a wave by name for units that play waves (the
// bank/object lookup path is out of this package's scope; callers
// inject a resolver via WState).
type WaveSource interface {
	Wave(name string) *wave.Wave
}

// WState is the per-engine-state OpenState payload for wtosc: a shared
// wave source plus the samplerate it was opened at.
type WState struct {
	Waves      WaveSource
	SampleRate int
}

type wtoscState struct {
	w          *wave.Wave
	samplerate int
	phase      float64 // 0..1
	rate       *ramp.Ramper // playback rate in cycles/sample, ramped by pitch writes
	amp        *ramp.Ramper
	pitch      fixed.P16
}

// WtoscDescriptor is the mip-mapped wavetable oscillator unit (spec
// GLOSSARY "Mipmap"; original_source/src/units/wtosc.c).
var WtoscDescriptor = &unit.Descriptor{
	Name:       "wtosc",
	MinInputs:  0,
	MaxInputs:  0,
	MinOutputs: 1,
	MaxOutputs: 2,
	Registers: []unit.RegisterDesc{
		{Name: "pitch", Default: 0, Write: WtoscWritePitch},
		{Name: "amplitude", Default: 1.0, Write: WtoscWriteAmplitude},
		{Name: "wave", Default: 0}, // selected via SelectWave, not a runtime control write
	},
	Initialize: func(inst *unit.Instance, samplerate int, shared unit.State, flags unit.Flags) error {
		st := &wtoscState{
			samplerate: samplerate,
			rate:       ramp.New(1.0 / float64(samplerate)),
			amp:        ramp.New(1.0),
		}
		if ws, ok := shared.(*WState); ok && ws != nil {
			// No wave is resolved here; the oscillator stays silent
			// until SelectWave gives it one.
			_ = ws
		}
		inst.State = st
		if flags&unit.ProcAdd != 0 {
			inst.Process = wtoscProcessAdd
		} else {
			inst.Process = wtoscProcessReplace
		}
		return nil
	},
}

// SelectWave points an already-initialized wtosc instance at w,
// resetting phase. Exposed for the voice instantiation path / tests,
// since wave selection in the real engine goes through a VM register
// write of a wave handle, which this package does not itself resolve.
func SelectWave(inst *unit.Instance, w *wave.Wave) {
	st := inst.State.(*wtoscState)
	st.w = w
	st.phase = 0
}

// WtoscWritePitch is the control-register write callback for "pitch": it
// re-targets the rate ramper (spec §3 "Control-register port").
func WtoscWritePitch(inst *unit.Instance, value float64, start, duration fixed.P8) {
	st := inst.State.(*wtoscState)
	st.pitch = fixed.FromFloat16(value)
	basePeriod := 1.0
	if st.w != nil && st.w.Period > 0 {
		basePeriod = float64(st.w.Period)
	}
	period := fixed.PitchToPeriod(st.pitch, basePeriod)
	st.rate.Set(1.0/period, start, duration)
}

// WtoscWriteAmplitude is the control-register write callback for
// "amplitude".
func WtoscWriteAmplitude(inst *unit.Instance, value float64, start, duration fixed.P8) {
	st := inst.State.(*wtoscState)
	st.amp.Set(value, start, duration)
}

func wtoscRender(inst *unit.Instance, offset, frames int, add bool) {
	st := inst.State.(*wtoscState)
	st.rate.Prepare(frames)
	st.amp.Prepare(frames)
	if st.w == nil || st.w.NLevels == 0 || st.w.Unloaded() {
		if !add {
			for _, out := range inst.Outputs {
				for i := 0; i < frames; i++ {
					out[offset+i] = 0
				}
			}
		}
		return
	}
	// Mip selection: the first level at which one output sample steps
	// over at most one wave sample at the current rate.
	lvl := st.w.Levels[0]
	for l := 1; l < st.w.NLevels && st.rate.Value()*float64(lvl.Length) > 1; l++ {
		lvl = st.w.Levels[l]
	}
	n := lvl.Length
	for i := 0; i < frames; i++ {
		rate := st.rate.Step()
		a := st.amp.Step()
		idx := int(st.phase * float64(n))
		sample := float64(lvl.At(idx%n)) * a
		for _, out := range inst.Outputs {
			if add {
				out[offset+i] += float32(sample)
			} else {
				out[offset+i] = float32(sample)
			}
		}
		st.phase += rate
		for st.phase >= 1 {
			st.phase -= 1
		}
		for st.phase < 0 {
			st.phase += 1
		}
	}
}

func wtoscProcessReplace(inst *unit.Instance, offset, frames int) {
	wtoscRender(inst, offset, frames, false)
}

func wtoscProcessAdd(inst *unit.Instance, offset, frames int) {
	wtoscRender(inst, offset, frames, true)
}
