// xinsert hosts pluggable client callbacks for audio taps, sinks,
// sources and inserts (spec §4.7).
package units

import (
	"github.com/olofson/a2core/pool"
	"github.com/olofson/a2core/unit"
)

// ClientFlags describe what an xinsert client does.
type ClientFlags uint8

const (
	ClientRead ClientFlags = 1 << iota
	ClientWrite
	ClientStream
	ClientSilent
)

// Callback is invoked once per Process call with the unit's own
// input/output buffers for the fragment being rendered.
type Callback func(inOut []*pool.Buffer, offset, frames int)

// Client is one registered xinsert participant (spec §4.7).
type Client struct {
	Flags    ClientFlags
	Callback Callback
	UserData any
	Stream   *RingBuffer
}

type xinsertState struct {
	clients []*Client
}

// XInsertDescriptor passes its input straight through to its output
// (MATCH_IO) while giving any registered clients a chance to tap/write
// (spec §4.7).
var XInsertDescriptor = &unit.Descriptor{
	Name:       "xinsert",
	Flags:      unit.MatchIO | unit.XInsert,
	MinInputs:  1,
	MaxInputs:  8,
	MinOutputs: 1,
	MaxOutputs: 8,
	Initialize: func(inst *unit.Instance, samplerate int, shared unit.State, flags unit.Flags) error {
		inst.State = &xinsertState{}
		inst.Process = xinsertProcess
		return nil
	},
}

// AddClient registers a new client on an xinsert instance (spec event
// action ADDXIC).
func AddClient(inst *unit.Instance, c *Client) {
	st := inst.State.(*xinsertState)
	st.clients = append(st.clients, c)
}

// RemoveClient removes a previously registered client (event action
// REMOVEXIC).
func RemoveClient(inst *unit.Instance, c *Client) {
	st := inst.State.(*xinsertState)
	for i, cc := range st.clients {
		if cc == c {
			st.clients = append(st.clients[:i], st.clients[i+1:]...)
			return
		}
	}
}

func hasWriteClient(st *xinsertState) bool {
	for _, c := range st.clients {
		if c.Flags&ClientWrite != 0 {
			return true
		}
	}
	return false
}

// xinsertProcess chooses between pure-tap (read-only clients, bypass)
// and full insert processing (any WRITE client present), per spec
// §4.7's "Process variant is chosen based on whether any WRITE clients
// are present."
func xinsertProcess(inst *unit.Instance, offset, frames int) {
	st := inst.State.(*xinsertState)
	n := len(inst.Inputs)
	if n > len(inst.Outputs) {
		n = len(inst.Outputs)
	}
	for ch := 0; ch < n; ch++ {
		in, out := inst.Inputs[ch], inst.Outputs[ch]
		if in != out {
			copy(out[offset:offset+frames], in[offset:offset+frames])
		}
	}
	write := hasWriteClient(st)
	for _, c := range st.clients {
		if c.Callback == nil {
			continue
		}
		bufs := inst.Outputs
		if !write && c.Flags&ClientWrite == 0 {
			bufs = inst.Inputs
		}
		c.Callback(bufs, offset, frames)
	}
}
