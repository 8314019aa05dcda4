package gateway

import (
	"sync"
	"sync/atomic"
)

// Barrier tracks one in-flight WAHP ("when-all-have-processed") round:
// the API posts a WAHP message into every live state's fromapi, each
// state acknowledges it directly on the shared Tracker at the end of
// the cycle that drained it (no message is echoed back via toapi), and
// OnComplete fires once every targeted state has acknowledged (spec
// §4.6, §5 "End-of-cycle events
// (WAHP) execute only after at least one sample was processed in the
// cycle").
type Barrier struct {
	ID         uint64
	remaining  atomic.Int32
	OnComplete func()
}

// Ack records one state's acknowledgement; fires OnComplete exactly
// once, when the last outstanding state reports in.
func (b *Barrier) Ack() {
	if b.remaining.Add(-1) == 0 && b.OnComplete != nil {
		b.OnComplete()
	}
}

// Tracker manages the set of in-flight barriers, shared by the API
// (which creates them) and the engine states (which acknowledge them
// from their own Cycle, under the Tracker's mutex), since
// a client may post more than one WAHP before earlier ones complete
// (e.g. overlapping wave/program retirements).
type Tracker struct {
	mu       sync.Mutex
	nextID   uint64
	barriers map[uint64]*Barrier
}

func NewTracker() *Tracker {
	return &Tracker{barriers: make(map[uint64]*Barrier)}
}

// New creates and registers a barrier awaiting acknowledgement from
// nStates live states, returning it for the caller to post into each
// state's fromapi (as a Message with Kind MsgWAHP and WAHPID set).
func (t *Tracker) New(nStates int, onComplete func()) *Barrier {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	b := &Barrier{ID: t.nextID, OnComplete: onComplete}
	b.remaining.Store(int32(nStates))
	t.barriers[b.ID] = b
	return b
}

// Ack looks up the barrier with the given ID (a drained MsgWAHP
// message's WAHPID) and acknowledges it, removing it from the tracker
// once complete.
func (t *Tracker) Ack(id uint64) {
	t.mu.Lock()
	b := t.barriers[id]
	if b != nil && b.remaining.Load() <= 1 {
		delete(t.barriers, id)
	}
	t.mu.Unlock()
	if b != nil {
		b.Ack()
	}
}
