package gateway

import (
	"github.com/olofson/a2core/fixed"
)

// Interface is one client's view of an engine state's gateway: the two
// FIFOs plus the client-side timestamp cursor used to schedule future
// messages (grounded on original_source/src/interface.c's
// a2_API_Timestamp*/a2_common_Timestamp* family).
type Interface struct {
	FromAPI *FIFO[Message] // API writes, engine reads
	ToAPI   *FIFO[Message] // engine writes, API reads

	samplerate int
	timestamp  fixed.P8 // ii->timestamp
	nudge      fixed.P8 // ii->nudge_adjust

	// now returns the engine's current absolute time; nil in pure
	// off-line/API-only contexts, where TimestampNow falls back to the
	// cursor itself (a2_API_TimestampNow's non-realtime branch).
	now func() fixed.P8

	Stats DeliveryStats
}

// NewInterface returns an Interface over freshly allocated FIFOs of the
// given capacities (spec §5: FIFO writes are non-blocking and never
// allocate once constructed).
func NewInterface(samplerate, fromAPICap, toAPICap int, now func() fixed.P8) *Interface {
	return &Interface{
		FromAPI:    NewFIFO[Message](fromAPICap),
		ToAPI:      NewFIFO[Message](toAPICap),
		samplerate: samplerate,
		now:        now,
	}
}

// TimestampNow returns the engine's current time if this Interface is
// bound to a live engine clock, otherwise the client's own cursor
// (a2_API_TimestampNow / a2_RT_TimestampNow).
func (in *Interface) TimestampNow() fixed.P8 {
	if in.now != nil {
		return in.now()
	}
	return in.timestamp
}

// TimestampGet returns the client's current scheduling cursor
// (a2_common_TimestampGet).
func (in *Interface) TimestampGet() fixed.P8 { return in.timestamp }

// TimestampSet moves the cursor to an absolute time
// (a2_common_TimestampSet); callers should not move it backwards.
func (in *Interface) TimestampSet(ts fixed.P8) fixed.P8 {
	old := in.timestamp
	in.timestamp = ts
	return old
}

// TimestampBump advances the cursor by dt, folding in any pending
// nudge adjustment and clamping so it never runs backwards
// (a2_common_TimestampBump).
func (in *Interface) TimestampBump(dt fixed.P8) fixed.P8 {
	old := in.timestamp
	dt += in.nudge
	if dt < 0 {
		in.nudge = dt
		dt = 0
	} else {
		in.nudge = 0
	}
	in.timestamp += dt
	return old
}

// TimestampNudge computes a fractional correction toward "intended"
// (now minus offset), to be folded into the next TimestampBump, used
// for gradual drift correction rather than a hard jump
// (a2_API_TimestampNudge/a2_RT_TimestampNudge).
func (in *Interface) TimestampNudge(offset fixed.P8, amount float64) fixed.P8 {
	intended := in.TimestampNow() - offset
	diff := intended - in.timestamp
	in.nudge = fixed.P8(float64(diff) * amount)
	return in.nudge
}

// MSToTimestamp and TimestampToMS convert between milliseconds and the
// 24.8 sample-frame timestamp unit (a2_common_ms2Timestamp /
// a2_common_Timestamp2ms).
func (in *Interface) MSToTimestamp(ms float64) fixed.P8 {
	return fixed.FromMS(ms, in.samplerate)
}

func (in *Interface) TimestampToMS(ts fixed.P8) float64 {
	return ts.Seconds(in.samplerate) * 1000.0
}

// Send enqueues a message to the engine at the client's current
// timestamp cursor, returning false (OVERFLOW, spec §5) if fromapi is
// full.
func (in *Interface) Send(m Message) bool {
	m.Timestamp = in.timestamp
	return in.FromAPI.TryWrite(m)
}

// PumpMessages drains toapi, dispatching each message to fn (spec
// §4.6: "the API drains these synchronously on PumpMessages").
func (in *Interface) PumpMessages(fn func(Message)) {
	in.ToAPI.DrainAll(fn)
}

// DeliveryStats tracks late-delivery margins for fromapi messages
// (spec §4.6 "statistics: min/max/avg deadline margin per averaging
// window").
type DeliveryStats struct {
	Count    int64
	LateCount int64
	MinMargin fixed.P8
	MaxMargin fixed.P8
	sumMargin fixed.P8
}

// Observe records one delivered message's margin (ts - bufferStart);
// negative means late. Called by the engine's delivery-policy step.
func (s *DeliveryStats) Observe(margin fixed.P8) {
	if s.Count == 0 || margin < s.MinMargin {
		s.MinMargin = margin
	}
	if s.Count == 0 || margin > s.MaxMargin {
		s.MaxMargin = margin
	}
	s.sumMargin += margin
	s.Count++
	if margin < 0 {
		s.LateCount++
	}
}

// AvgMargin returns the running average margin, 0 if nothing observed.
func (s *DeliveryStats) AvgMargin() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.sumMargin) / float64(s.Count)
}
