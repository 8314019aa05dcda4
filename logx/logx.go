// Package logx wraps charmbracelet/log for the engine's structured
// logging. The teacher's go.mod already commits to this dependency
// (doismellburning/samoyed's own hand-rolled text_color_set/dw_printf
// colorizer predates adopting it); this module uses it directly instead
// of reimplementing terminal coloring.
package logx

import (
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

// Logger is the engine-wide structured logger. Call sites attach
// context with With (voice handle, state name, action site) the way
// the teacher's dw_printf call sites carry a channel number and color.
type Logger = log.Logger

var base = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	TimeFormat:      "15:04:05.000",
})

// New returns the base engine logger.
func New() *Logger { return base }

// ForVoice returns a logger with the voice handle attached as a field,
// for engine-thread error/debug reporting (spec §7: errors arising in
// the engine thread are posted with their originating voice).
func ForVoice(handle int32) *Logger {
	return base.With("voice", handle)
}

// ForSite returns a logger tagged with an action-site string (spec §7
// "action site"), mirroring the original engine's A2_LOGPRE-style
// call-site tags.
func ForSite(site string) *Logger {
	return base.With("site", site)
}

// SetLevel adjusts the base logger's minimum level (no CLI flag calls
// it; a2play's -d selects the audio driver).
func SetLevel(l log.Level) { base.SetLevel(l) }

// OpenRotated opens (creating parent directories as needed) a log file
// named by expanding the strftime pattern against the current time —
// daily rotation is simply a "%Y-%m-%d" in the pattern, same trick the
// teacher's own log_init uses for its daily packet logs, but driven by
// a real formatter instead of hand-rolled date math.
func OpenRotated(dir, pattern string) (*os.File, error) {
	f, err := strftime.New(pattern)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	name := f.FormatString(time.Now())
	return os.OpenFile(dir+string(os.PathSeparator)+name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
