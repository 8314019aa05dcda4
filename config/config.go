// Package config loads the engine's on-disk defaults. The teacher's
// own src/config.go hand-parses a bespoke key/value format; this
// module keeps the "one struct, one loader, sane defaults" shape but
// backs it with YAML, matching the rest of the retrieval pack's
// preference for a real parsing library over bespoke line scanning.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the engine defaults a driver/engine.State is built from
// (spec.md §6 "Open/Close" parameters and §2's pool-sizing knobs).
type Config struct {
	SampleRate   int    `yaml:"sample_rate"`
	Channels     int    `yaml:"channels"`
	BufferFrames int    `yaml:"buffer_frames"`
	AudioDriver  string `yaml:"audio_driver"` // "portaudio" or "buffer"
	MIDIDriver   string `yaml:"midi_driver"`  // "" disables MIDI

	VoicePoolSize  int `yaml:"voice_pool_size"`
	BufferPoolSize int `yaml:"buffer_pool_size"`
	EventPoolSize  int `yaml:"event_pool_size"`

	FromAPISize int `yaml:"fromapi_fifo_size"`
	ToAPISize   int `yaml:"toapi_fifo_size"`

	LogDir string `yaml:"log_dir"`
}

// Default returns the engine's built-in defaults, used when no file is
// given or a file omits a field (Load unmarshals the file on top of
// Default(), so omitted fields keep these values).
func Default() Config {
	return Config{
		SampleRate:     48000,
		Channels:       2,
		BufferFrames:   256, // pool.MaxFrag
		AudioDriver:    "portaudio",
		VoicePoolSize:  256,
		BufferPoolSize: 512,
		EventPoolSize:  1024,
		FromAPISize:    4096,
		ToAPISize:      4096,
	}
}

// Load reads a YAML config file at path, overlaying it onto Default.
// A missing path is not an error; callers get pure defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
