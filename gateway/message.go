package gateway

import "github.com/olofson/a2core/fixed"

// Kind tags a gateway message's payload (spec §9 "tagged sums... the
// engine FIFO framing specifies a size prefix precisely because payload
// size varies with action" — in Go the tag plus a fixed-size argument
// array stands in for that variable-length framing).
type Kind uint8

const (
	// fromapi kinds (spec §4.5 "Event actions delivered from the API")
	MsgPlay Kind = iota
	MsgStart
	MsgSend
	MsgSendSub
	MsgKill
	MsgKillSub
	MsgAddXIC
	MsgRemoveXIC
	MsgRelease
	MsgWAHP

	// toapi kinds (spec §4.6 "Engine→API notifications")
	MsgDetach
	MsgXICRemoved
	MsgError
	MsgWAHPAck
)

// Message is one fromapi/toapi gateway entry (spec §3 "Event"-adjacent
// wire shape, and §4.6).
type Message struct {
	Kind      Kind
	Timestamp fixed.P8
	Target    int32 // handle this message addresses
	VID       int   // subvoice VID, for Send/SendSub/Kill/KillSub
	EntryPoint int
	Args      [8]fixed.P16
	Argc      int

	// Play/Start-only fields.
	ProgramHandle int32
	NewHandle     int32 // pre-allocated "new-voice" handle, for Start

	// AddXIC/RemoveXIC-only fields.
	UnitIndex int
	Client    any // *units.Client; kept opaque to avoid a domain import

	// toapi-only fields
	ErrCode int
	Site    string
	WAHPID  uint64
}
