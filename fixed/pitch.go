package fixed

import "math"

// PitchToPeriod converts a linear pitch value (P16, in octaves relative
// to 1.0/octave = P16One) plus a reference period in samples into a
// playback period in samples, for the VM's pitch-to-period arithmetic
// instruction (spec §4.4) and wtosc-style oscillators.
//
// Grounded on original_source/src/pitch.c's a2_P2If (exponential
// pitch-to-multiplier), simplified from its fixed-point LUT to a direct
// math.Exp2 call: correctness matters more than matching the original's
// table-interpolation performance trick for a non-hard-real-time target.
func PitchToPeriod(pitch P16, referencePeriod float64) float64 {
	return referencePeriod / math.Exp2(pitch.Float())
}

// PitchToRate is the inverse shape: given a pitch and a reference
// playback rate (phase increment per sample for period==1), returns the
// scaled rate.
func PitchToRate(pitch P16, referenceRate float64) float64 {
	return referenceRate * math.Exp2(pitch.Float())
}
