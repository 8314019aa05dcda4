// Package event implements the per-voice, timestamp-ordered event
// queue (spec §4.5) backed by a free-list pool of singly-linked nodes
// (spec §2 "Event system").
package event

import "github.com/olofson/a2core/fixed"

// Action identifies what an event asks the voice runtime to do.
type Action uint8

const (
	Play Action = iota
	Start
	Send
	SendSub
	Release
	Kill
	KillSub
	AddXIC
	RemoveXIC
	WAHP
)

// Event is a singly-linked queue node (spec §3 "Event"). Its payload
// fields are a union in the sense spec §3 describes ("play/start/send:
// program or entry point and up to 8 int arguments; ... xinsert
// add/remove"); only the fields relevant to Action are meaningful for
// any given event.
type Event struct {
	next      *Event
	Action    Action
	Flags     uint32
	Timestamp fixed.P8
	EntryPoint int
	Args      [8]fixed.P16
	Argc      int
	// TargetVID addresses a direct subvoice by VID for Send/SendSub/Kill.
	TargetVID int
	// ProgramHandle names the program a Play/Start event instantiates.
	ProgramHandle int32
	// NewHandle is the pre-allocated "new-voice" handle a Start event
	// binds its spawned voice to once instantiation succeeds.
	NewHandle int32
	// UnitIndex addresses an xinsert unit instance (by position in the
	// voice's Units slice) for AddXIC/RemoveXIC.
	UnitIndex int
	// Client carries the *units.Client payload for AddXIC/RemoveXIC;
	// opaque here to avoid an import cycle between event and units.
	Client any
}

// Pool recycles Event nodes through its own intrusive free list
// (independent of package pool); get allocates a new node when the list
// is empty.
type Pool struct {
	free *Event
}

func (p *Pool) get() *Event {
	if p.free == nil {
		return &Event{}
	}
	e := p.free
	p.free = e.next
	*e = Event{}
	return e
}

func (p *Pool) put(e *Event) {
	e.next = p.free
	p.free = e
}

// Queue is a per-voice, strictly non-decreasing (by Timestamp) singly
// linked event list.
type Queue struct {
	head *Event
	pool Pool
}

// Empty reports whether the queue has no pending events.
func (q *Queue) Empty() bool { return q.head == nil }

// HeadTime returns the earliest pending event's timestamp, and false if
// the queue is empty.
func (q *Queue) HeadTime() (fixed.P8, bool) {
	if q.head == nil {
		return 0, false
	}
	return q.head.Timestamp, true
}

// Insert inserts e in order by Timestamp (spec: "send_event(queue, e)
// inserts e in order by timestamp"). Equal timestamps are FIFO (new
// event goes after existing ones with the same stamp), per spec §5
// ordering guarantees.
func (q *Queue) Insert(e *Event) {
	e.next = nil
	if q.head == nil || e.Timestamp < q.head.Timestamp {
		e.next = q.head
		q.head = e
		return
	}
	cur := q.head
	for cur.next != nil && cur.next.Timestamp <= e.Timestamp {
		cur = cur.next
	}
	e.next = cur.next
	cur.next = e
}

// New allocates (from the queue's node pool) and inserts a new event,
// clamping ts to now and returning true in "late" if ts < now (spec:
// "an early event is clamped to now and reported as a late-delivery
// warning").
func (q *Queue) New(action Action, ts, now fixed.P8) (ev *Event, late bool) {
	late = ts < now
	if late {
		ts = now
	}
	e := q.pool.get()
	e.Action = action
	e.Timestamp = ts
	q.Insert(e)
	return e, late
}

// DrainUpTo removes and returns, in order, all events with Timestamp <=
// now, recycling each node's memory back to the pool as fn returns.
func (q *Queue) DrainUpTo(now fixed.P8, fn func(*Event)) {
	for q.head != nil && q.head.Timestamp <= now {
		e := q.head
		q.head = e.next
		fn(e)
		q.pool.put(e)
	}
}

// Clear drains and discards every pending event (used on hard voice
// termination/kill).
func (q *Queue) Clear() {
	for q.head != nil {
		e := q.head
		q.head = e.next
		q.pool.put(e)
	}
}
