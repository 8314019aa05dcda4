package driver

import (
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/olofson/a2core/pool"
)

// PortAudio is a real-time Audio driver backed by gordonklaus/portaudio,
// using its blocking-stream API (spec §6: audio drivers "may be
// real-time (audio callback-driven)"). A background goroutine pumps the
// render callback and writes the interleaved result to the device,
// since the blocking API, unlike the native PortAudio callback API,
// gives Go the pump loop rather than a C-thread callback.
type PortAudio struct {
	mu     sync.Mutex
	stream *portaudio.Stream

	channels int
	frames   int

	out      []float32 // interleaved device buffer
	busBufs  []*pool.Buffer
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Open initializes PortAudio, opens a default device stream and starts
// the pump goroutine. samplerate/channels/bufferFrames describe the
// requested stream shape; fn is invoked once per fragment to fill the
// engine's own per-channel buffers before they're interleaved out.
func (p *PortAudio) Open(samplerate, channels, bufferFrames int, fn ProcessFunc) error {
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	p.channels = channels
	p.frames = bufferFrames
	p.out = make([]float32, bufferFrames*channels)
	p.busBufs = make([]*pool.Buffer, channels)
	for i := range p.busBufs {
		p.busBufs[i] = new(pool.Buffer)
	}

	stream, err := portaudio.OpenDefaultStream(0, channels, float64(samplerate), bufferFrames, p.out)
	if err != nil {
		portaudio.Terminate()
		return err
	}
	p.stream = stream
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return err
	}

	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	go p.pump(fn)
	return nil
}

func (p *PortAudio) pump(fn ProcessFunc) {
	defer close(p.doneCh)
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}
		p.mu.Lock()
		err := fn(p.busBufs, p.frames)
		if err == nil {
			interleave(p.out, p.busBufs, p.channels, p.frames)
			err = p.stream.Write()
		}
		p.mu.Unlock()
		if err != nil {
			return
		}
	}
}

func interleave(out []float32, bufs []*pool.Buffer, channels, frames int) {
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			out[i*channels+ch] = bufs[ch][i]
		}
	}
}

// Close stops the stream and the pump goroutine, leaving PortAudio
// itself initialized for a subsequent Open.
func (p *PortAudio) Close() error {
	if p.stream == nil {
		return nil
	}
	close(p.stopCh)
	<-p.doneCh
	err := p.stream.Stop()
	p.stream.Close()
	p.stream = nil
	return err
}

// Destroy tears down the PortAudio library handle entirely.
func (p *PortAudio) Destroy() error {
	return portaudio.Terminate()
}

func (p *PortAudio) Lock()   { p.mu.Lock() }
func (p *PortAudio) Unlock() { p.mu.Unlock() }
