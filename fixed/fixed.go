// Package fixed implements the fixed-point number representations used
// throughout the engine: 16.16 for VM registers and control values, and
// 24.8 for sample-frame timestamps (spec §9 "Sub-sample scheduling with
// integer time").
package fixed

import "math"

// P16 is a 16.16 fixed-point value.
type P16 int32

const P16One P16 = 1 << 16

func FromFloat16(f float64) P16 { return P16(math.Round(f * 65536)) }
func (v P16) Float() float64    { return float64(v) / 65536 }
func (v P16) Int() int32        { return int32(v) >> 16 }
func FromInt16(i int32) P16     { return P16(i) << 16 }

// P8 is a 24.8 fixed-point sample-frame timestamp/duration: 24 bits of
// whole frames, 8 bits of sub-sample fraction.
type P8 int64

const FracBits = 8
const FracOne P8 = 1 << FracBits

func FromFrames(frames int64) P8 { return P8(frames) << FracBits }
func FromSeconds(sec float64, samplerate int) P8 {
	return P8(math.Round(sec * float64(samplerate) * float64(FracOne)))
}
func FromMS(ms float64, samplerate int) P8 {
	return FromSeconds(ms/1000.0, samplerate)
}

// Frames returns the whole-frame part, truncating the fraction.
func (t P8) Frames() int64 { return int64(t) >> FracBits }

// Frac returns the sub-sample fraction in [0, FracOne).
func (t P8) Frac() int64 { return int64(t) & (int64(FracOne) - 1) }

func (t P8) Add(d P8) P8 { return t + d }
func (t P8) Sub(d P8) P8 { return t - d }

func (t P8) Seconds(samplerate int) float64 {
	return float64(t) / float64(FracOne) / float64(samplerate)
}
