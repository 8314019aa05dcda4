// Package render implements off-line rendering: pumping an engine
// state's master callback through a client-driven driver.Buffer
// instead of a real audio device, and writing the result out as a WAV
// file (spec §6 "'buffer' driver ... used for off-line rendering").
package render

import (
	"fmt"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/lestrrat-go/strftime"

	"github.com/olofson/a2core/driver"
	"github.com/olofson/a2core/engine"
	"github.com/olofson/a2core/pool"
)

// Renderer drives an engine.State with a driver.Buffer instead of a
// real audio device, suitable for batch rendering to a file or for a
// substate hosted inline inside a parent's own Cycle.
type Renderer struct {
	State  *engine.State
	Buffer *driver.Buffer

	samplerate int
	channels   int

	// StopLevel, if non-zero, ends Run early once every channel's
	// peak has stayed at or below it for StopGrace consecutive
	// frames (CLI surface "-sl<level>": stop once output falls
	// silent).
	StopLevel float32
	StopGrace int64

	silentFrames int64
	RenderedFrames int64
}

// New builds a Renderer over a freshly opened buffer driver bound to
// st's configured sample rate and channel count.
func New(st *engine.State) (*Renderer, error) {
	r := &Renderer{
		State:      st,
		Buffer:     &driver.Buffer{},
		samplerate: st.Config.SampleRate,
		channels:   st.Config.Channels,
	}
	fn := func(buffers []*pool.Buffer, frames int) error {
		st.Cycle(frames)
		n := len(buffers)
		if len(st.Root.Output.Buffers) < n {
			n = len(st.Root.Output.Buffers)
		}
		for ch := 0; ch < n; ch++ {
			copy(buffers[ch][:frames], st.Root.Output.Buffers[ch][:frames])
		}
		return nil
	}
	if err := r.Buffer.Open(st.Config.SampleRate, st.Config.Channels, st.Config.BufferFrames, fn); err != nil {
		return nil, err
	}
	return r, nil
}

// Run renders totalFrames frames in BufferFrames-sized fragments,
// calling emit with each fragment's interleaved result as it becomes
// available. If r.StopLevel is set, Run returns early once the signal
// has been silent for StopGrace frames.
func (r *Renderer) Run(totalFrames int64, emit func(interleaved []float32, frames int)) error {
	frag := r.State.Config.BufferFrames
	for r.RenderedFrames < totalFrames {
		n := frag
		if remaining := totalFrames - r.RenderedFrames; int64(n) > remaining {
			n = int(remaining)
		}
		if err := r.Buffer.Run(n); err != nil {
			return err
		}
		r.RenderedFrames += int64(n)
		if emit != nil {
			emit(r.Buffer.Interleaved[:n*r.channels], n)
		}
		if r.StopLevel > 0 && r.silentSince(n) {
			return nil
		}
	}
	return nil
}

func (r *Renderer) silentSince(frames int) bool {
	peak := float32(0)
	for _, s := range r.Buffer.Interleaved[:frames*r.channels] {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	if peak <= r.StopLevel {
		r.silentFrames += int64(frames)
	} else {
		r.silentFrames = 0
	}
	return r.silentFrames >= r.StopGrace
}

// RenderToFile renders totalFrames frames and writes them as a 16-bit
// PCM WAV file at path, using github.com/go-audio/wav the way the
// rest of the retrieval pack's audio-handling manifests pull it in for
// exactly this job.
func (r *Renderer) RenderToFile(path string, totalFrames int64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, r.samplerate, 16, r.channels, 1)
	defer enc.Close()

	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: r.channels, SampleRate: r.samplerate},
		Data:   make([]int, 0, r.State.Config.BufferFrames*r.channels),
	}
	return r.Run(totalFrames, func(interleaved []float32, frames int) {
		buf.Data = buf.Data[:0]
		for _, s := range interleaved {
			v := int(s * 32767)
			if v > 32767 {
				v = 32767
			} else if v < -32768 {
				v = -32768
			}
			buf.Data = append(buf.Data, v)
		}
		_ = enc.Write(buf)
	})
}

// TimestampedPath expands a strftime pattern against the current time
// to produce an output filename, mirroring logx.OpenRotated's use of
// the same library for rotated log names.
func TimestampedPath(dir, pattern string) (string, error) {
	f, err := strftime.New(pattern)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%c%s", dir, os.PathSeparator, f.FormatString(time.Now())), nil
}
