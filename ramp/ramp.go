// Package ramp implements the per-control linear ramp device that
// bridges the VM's integer-tick time axis with audio-rate DSP (spec §3
// "Ramper", §9 "Sub-sample scheduling with integer time").
package ramp

import "github.com/olofson/a2core/fixed"

// Ramper holds (value, target, per_sample_delta, frames_remaining_24_8)
// per spec §3. It is initialized to a constant value and thereafter
// only ever touched by Set (new target from the VM) and Prepare
// (recompute slope for the frames about to be rendered) plus the
// per-sample Step the owning unit calls during Process.
type Ramper struct {
	value   float64
	target  float64
	delta   float64 // per-sample delta for the *current* Process call
	remain  fixed.P8
	start   fixed.P8 // sub-sample start offset given to Set; stored, not applied by Prepare/Step
	pending bool     // true once Set has been called and Prepare hasn't consumed it yet
}

// New returns a Ramper initialized to a constant value.
func New(value float64) *Ramper {
	return &Ramper{value: value, target: value}
}

// Value returns the ramp's current value.
func (r *Ramper) Value() float64 { return r.value }

// Set records a new target, reached duration24_8 sub-samples after the
// start of the next Process call (spec §3). start24_8 is stored but not
// applied: stepping begins at the first sample of that call, with no
// sub-sample offset.
func (r *Ramper) Set(target float64, start24_8, duration24_8 fixed.P8) {
	r.target = target
	r.start = start24_8
	if duration24_8 < 0 {
		duration24_8 = 0
	}
	r.remain = duration24_8
	r.pending = true
}

// Prepare recomputes the per-sample delta for the next `frames` samples
// about to be rendered, always over the ramp's own remaining frames, so
// a ramp that runs past the fragment keeps its slope into the next
// Process call ("acceptable stretching," per
// spec §3 and the §9 Open Question resolution: linear ramps with
// sample-accurate start and linear extrapolation past the fragment).
func (r *Ramper) Prepare(frames int) {
	if !r.pending && r.remain <= 0 {
		r.delta = 0
		return
	}
	r.pending = false

	remainFrames := r.remain.Frames()
	if r.remain.Frac() != 0 {
		remainFrames++ // conservative: count a partial frame as a whole one
	}
	if remainFrames <= 0 {
		r.value = r.target
		r.delta = 0
		r.remain = 0
		return
	}

	// Delta is computed over the ramp's own remaining span: a ramp that
	// ends inside this fragment is then held at target for the
	// remainder, and one that runs past it continues at the same slope.
	r.delta = (r.target - r.value) / float64(remainFrames)
}

// Step advances the ramp by one sample and returns the new value. The
// owning unit calls this once per output sample while remain > 0;
// after remain reaches zero the unit should just read Value().
func (r *Ramper) Step() float64 {
	if r.remain > 0 {
		r.value += r.delta
		r.remain -= fixed.FromFrames(1)
		if r.remain <= 0 {
			r.value = r.target
		}
	}
	return r.value
}

// Active reports whether the ramp still has frames remaining.
func (r *Ramper) Active() bool { return r.remain > 0 || r.pending }

// SetImmediate jumps straight to a value with no ramping (used by VM
// SET/SETALL, which commit instantly).
func (r *Ramper) SetImmediate(value float64) {
	r.value = value
	r.target = value
	r.remain = 0
	r.pending = false
}
