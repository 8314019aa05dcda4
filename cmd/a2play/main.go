// Command a2play is the command line player (spec §6 "CLI surface"):
// opens an engine state against a configured audio driver, starts one
// or more programs on the root voice and pumps messages until a stop
// condition is reached, grounded on cmd/direwolf/main.go's pflag usage
// and original_source/a2play/a2play.c's switch semantics and
// print_exports behavior.
package main

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/pflag"

	"github.com/olofson/a2core/config"
	"github.com/olofson/a2core/driver"
	"github.com/olofson/a2core/engine"
	"github.com/olofson/a2core/fixed"
	"github.com/olofson/a2core/pool"
	"github.com/olofson/a2core/program"
	"github.com/olofson/a2core/rchm"
	"github.com/olofson/a2core/render"
	"github.com/olofson/a2core/vm"
	"github.com/olofson/a2core/wave"
)

func main() {
	audioDriver := pflag.StringP("driver", "d", "", "Audio driver: portaudio or buffer (default from config)")
	midiDriver := pflag.StringP("mididriver", "m", "", "MIDI driver name (none implemented; accepted for compatibility)")
	bufferFrames := pflag.IntP("buffer", "b", 0, "Audio buffer size (frames)")
	sampleRate := pflag.IntP("rate", "r", 0, "Audio sample rate (Hz)")
	channels := pflag.IntP("channels", "c", 0, "Number of audio channels")
	play := pflag.StringP("play", "p", "", "Run program <name>[,arg[,arg[,...]]] on the root voice")
	midiHandler := pflag.StringP("midihandler", "M", "", "Like -p, but bind as a MIDI handler (no-op without a MIDI driver)")
	stdin := pflag.BoolP("stdin", "s", false, "Read input from stdin (unsupported: no A2S compiler in this build)")
	stopTime := pflag.Float64P("stoptime", "t", 0, "Stop after this many seconds (original CLI surface: -st)")
	stopLevel := pflag.Float64P("stoplevel", "l", 0, "Stop once output falls and stays below this level, 0..1; honoured by the offline buffer driver only (original CLI surface: -sl)")
	showExports := pflag.BoolP("exports", "x", false, "Print loaded module exports")
	showRootExports := pflag.BoolP("rootexports", "R", false, "Print engine root exports (original CLI surface: -xr)")
	showPrivate := pflag.BoolP("private", "P", false, "Accepted for compatibility; no effect, private symbols are not modeled (original CLI surface: -xp)")
	showVersion := pflag.BoolP("version", "v", false, "Print version and exit")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "a2play - Audiality 2 core engine command line player.\n\n")
		fmt.Fprintf(os.Stderr, "Usage: a2play [switches]\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *showVersion {
		fmt.Println("a2play (github.com/olofson/a2core)")
		return
	}
	if *stdin {
		fmt.Fprintln(os.Stderr, "a2play: -s/--stdin is unsupported; this build has no A2S compiler.")
		os.Exit(1)
	}

	cfg := config.Default()
	if *audioDriver != "" {
		cfg.AudioDriver = *audioDriver
	}
	if *midiDriver != "" {
		cfg.MIDIDriver = *midiDriver
	}
	if *bufferFrames > 0 {
		cfg.BufferFrames = *bufferFrames
	}
	if *sampleRate > 0 {
		cfg.SampleRate = *sampleRate
	}
	if *channels > 0 {
		cfg.Channels = *channels
	}

	st, err := engine.NewState(cfg)
	if err != nil {
		fail(err)
	}

	beepHandle, err := loadBeepProgram(st)
	if err != nil {
		fail(err)
	}

	if *showRootExports {
		printExports(st, "root", st.Shared.Exports(), *showPrivate)
	}
	if *showExports {
		printExports(st, "beep", []string{"beep"}, *showPrivate)
	}

	requested := false
	if *play != "" {
		if err := startProgram(st, *play, beepHandle); err != nil {
			fail(err)
		}
		requested = true
	}
	if *midiHandler != "" {
		if err := startProgram(st, *midiHandler, beepHandle); err != nil {
			fail(err)
		}
		requested = true
	}
	if !requested {
		if err := startProgram(st, "beep", beepHandle); err != nil {
			fail(err)
		}
	}

	if cfg.AudioDriver == "buffer" {
		runOffline(st, cfg, *stopTime, *stopLevel)
	} else {
		runRealtime(st, cfg, *stopTime)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "a2play: ERROR: %v\n", err)
	os.Exit(100)
}

// loadBeepProgram builds and registers the one built-in demo program
// this CLI can play without an A2S compiler: a single-cycle sine wave
// through a wtosc oscillator and envelope, panned out through the root
// mix. Grounded on original_source/a2play's implicit "Song" default
// entry point, substituted here since there is no loader for real
// .a2s modules in this build.
func loadBeepProgram(st *engine.State) (rchm.Handle, error) {
	samples := make([]float32, 128)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * float64(i) / float64(len(samples))))
	}
	w := wave.NewSingleCycle(samples, true)
	w.BuildMipmaps()
	if _, err := st.Shared.LoadWave(w); err != nil {
		return rchm.Invalid, err
	}

	b := program.NewBuilder("beep")
	b.Unit("wtosc", 0, 1)
	b.Unit("envelope", 0, 1)
	b.Unit("panmix", 1, program.WireToVoiceOutput)
	b.Func(1, 0, 1,
		uint32(vm.Encode(vm.OpINITV, 0, 0)),
		uint32(vm.Encode(vm.OpSLEEP, 0, 0)),
	)
	b.EntryPoint(0, 0)

	return st.Shared.LoadNamedProgram("beep", b.Build())
}

func startProgram(st *engine.State, spec string, fallback rchm.Handle) error {
	name, args := parsePlaySpec(spec)
	h := fallback
	if name != "" && name != "beep" {
		if found, ok := st.Shared.Lookup(name); ok {
			h = found
		}
	}
	fmt.Printf("a2play: Playing %s...\n", name)
	fargs := make([]fixed.P16, len(args))
	for i, a := range args {
		fargs[i] = fixed.FromFloat16(a)
	}
	st.Play(int32(st.Root.Handle), h, 0, fargs)
	return nil
}

func parsePlaySpec(spec string) (string, []float64) {
	parts := strings.Split(spec, ",")
	name := parts[0]
	args := make([]float64, 0, len(parts)-1)
	for _, p := range parts[1:] {
		if v, err := strconv.ParseFloat(p, 64); err == nil {
			args = append(args, v)
		}
	}
	return name, args
}

func printExports(st *engine.State, label string, names []string, private bool) {
	fmt.Printf("%s exports:\n", label)
	for _, n := range names {
		h, ok := st.Shared.Lookup(n)
		if !ok {
			continue
		}
		info, _ := st.Shared.Handles.Get(h)
		fmt.Printf("  %-24s %s\n", n, info.Type)
	}
	_ = private // private-symbol namespace is not modeled separately in this build
}

func mixToDriverBuffers(st *engine.State, buffers []*pool.Buffer, frames int) {
	st.Cycle(frames)
	n := len(buffers)
	if len(st.Root.Output.Buffers) < n {
		n = len(st.Root.Output.Buffers)
	}
	for ch := 0; ch < n; ch++ {
		copy(buffers[ch][:frames], st.Root.Output.Buffers[ch][:frames])
	}
}

func runRealtime(st *engine.State, cfg config.Config, stopTime float64) {
	audio := &driver.PortAudio{}
	var playedFrames atomic.Int64
	stopFrames := int64(stopTime * float64(cfg.SampleRate))

	if err := audio.Open(cfg.SampleRate, cfg.Channels, cfg.BufferFrames, func(buffers []*pool.Buffer, frames int) error {
		mixToDriverBuffers(st, buffers, frames)
		playedFrames.Add(int64(frames))
		return nil
	}); err != nil {
		fail(err)
	}
	fmt.Println("a2play: Realtime mode.")

	for stopFrames <= 0 || playedFrames.Load() < stopFrames {
		time.Sleep(10 * time.Millisecond)
	}

	audio.Close()
	audio.Destroy()
	fmt.Printf("a2play: Stopped. %d sample frames played.\n", playedFrames.Load())
}

func runOffline(st *engine.State, cfg config.Config, stopTime, stopLevel float64) {
	r, err := render.New(st)
	if err != nil {
		fail(err)
	}
	r.StopLevel = float32(stopLevel)
	r.StopGrace = int64(0.25 * float64(cfg.SampleRate))

	total := int64(stopTime * float64(cfg.SampleRate))
	if total <= 0 {
		total = int64(10 * cfg.SampleRate)
	}
	path, err := render.TimestampedPath(".", "a2play-%Y%m%d-%H%M%S.wav")
	if err != nil {
		fail(err)
	}
	if err := r.RenderToFile(path, total); err != nil {
		fail(err)
	}
	fmt.Printf("a2play: Offline mode. Wrote %s (%d sample frames).\n", path, r.RenderedFrames)
}
