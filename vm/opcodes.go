package vm

// Op is a VM opcode (spec §4.4 "Opcode set").
type Op uint8

const (
	OpNOP Op = iota

	// Flow control
	OpEND
	OpRETURN
	OpCALL
	OpJUMP
	OpLOOP // decrement a1, branch to a2 if still positive
	OpJZ
	OpJNZ
	OpJGT
	OpJGE
	OpJLT
	OpJLE

	// Timing
	OpDELAY   // long-form immediate=ms, advance wake_time
	OpDELAYR  // a1=register holding ms
	OpTDELAY  // long-form immediate=ticks
	OpTDELAYR // a1=register holding ticks

	// Message control
	OpSLEEP
	OpWAKE
	OpFORCE

	// Arithmetic: dest=a1, long-form immediate or a2=source register
	OpADD
	OpADDI
	OpSUB
	OpSUBI
	OpMUL
	OpMULI
	OpDIV
	OpDIVI
	OpMOD
	OpMODI
	OpQUANT
	OpQUANTI
	OpRAND
	OpRANDI
	OpP2R // pitch to rate/period: dest=a1, reference a2=source register (P2RI: long-form immediate)
	OpP2RI
	OpNEG

	// Comparisons: dest=a1, a2=rhs register; writes 1.0/0.0
	OpCEQ
	OpCNE
	OpCGT
	OpCGE
	OpCLT
	OpCLE

	// Boolean
	OpAND
	OpOR
	OpXOR
	OpNOT

	// Unit control
	OpSET     // a1=reg, commits instantly
	OpSETALL  // commits all dirty control registers instantly
	OpRAMP    // a1=reg, long-form immediate target, a2=duration ms
	OpRAMPR   // a1=reg, a2=source register holding target; long-form=duration ms
	OpRAMPALL // a2=duration ms for all dirty registers

	// Argument stack
	OpPUSH  // long-form immediate
	OpPUSHR // a1=register

	// Subvoice ops
	OpSPAWN   // a1=VID, long-form=program handle, entry a2
	OpSPAWNR  // a1=VID register, a2=entry point; long-form=program handle
	OpSPAWND  // detached variant of SPAWN
	OpSPAWNA  // anonymous (no VID) variant of SPAWN
	OpSEND    // a1=VID, a2=entry point
	OpSENDSUB // send to self-as-subvoice: a2=entry point
	OpSENDA   // send to all subvoices: a2=entry point
	OpSENDS   // send to own message handler: a2=entry point
	OpWAIT    // a1=VID, wait for that subvoice to finish
	OpKILL    // a1=VID
	OpKILLA   // kill all subvoices
	OpDETACH  // a1=VID
	OpDETACHA // detach all subvoices

	// Debug
	OpDEBUG  // long-form immediate
	OpDEBUGR // a1=register

	// Special
	OpINITV  // instantiate voice units/wires; run once at program start
	OpSIZEOF // a1=dest reg, a2=object kind

	opCount
)

// LongForm reports whether op is followed by a second word carrying a
// full 32-bit immediate operand (spec §4.4 "Word format").
func LongForm(op Op) bool {
	switch op {
	case OpDELAY, OpTDELAY, OpADDI, OpSUBI, OpMULI, OpDIVI, OpMODI,
		OpQUANTI, OpRANDI, OpP2RI, OpRAMP, OpRAMPR, OpPUSH, OpDEBUG, OpSPAWN, OpSPAWNR, OpSPAWND, OpSPAWNA:
		return true
	default:
		return false
	}
}

var names = [opCount]string{
	OpNOP: "nop", OpEND: "end", OpRETURN: "return", OpCALL: "call",
	OpJUMP: "jump", OpLOOP: "loop", OpJZ: "jz", OpJNZ: "jnz", OpJGT: "jgt",
	OpJGE: "jge", OpJLT: "jlt", OpJLE: "jle", OpDELAY: "delay",
	OpDELAYR: "delayr", OpTDELAY: "tdelay", OpTDELAYR: "tdelayr",
	OpSLEEP: "sleep", OpWAKE: "wake", OpFORCE: "force", OpADD: "add",
	OpADDI: "addi", OpSUB: "sub", OpSUBI: "subi", OpMUL: "mul",
	OpMULI: "muli", OpDIV: "div", OpDIVI: "divi", OpMOD: "mod",
	OpMODI: "modi", OpQUANT: "quant", OpQUANTI: "quanti", OpRAND: "rand",
	OpRANDI: "randi", OpP2R: "p2r", OpP2RI: "p2ri", OpNEG: "neg",
	OpCEQ: "ceq", OpCNE: "cne", OpCGT: "cgt", OpCGE: "cge", OpCLT: "clt",
	OpCLE: "cle", OpAND: "and", OpOR: "or", OpXOR: "xor", OpNOT: "not",
	OpSET: "set", OpSETALL: "setall", OpRAMP: "ramp", OpRAMPR: "rampr",
	OpRAMPALL: "rampall", OpPUSH: "push", OpPUSHR: "pushr",
	OpSPAWN: "spawn", OpSPAWNR: "spawnr", OpSPAWND: "spawnd",
	OpSPAWNA: "spawna", OpSEND: "send", OpSENDSUB: "sendsub",
	OpSENDA: "senda", OpSENDS: "sends", OpWAIT: "wait", OpKILL: "kill",
	OpKILLA: "killa", OpDETACH: "detach", OpDETACHA: "detacha",
	OpDEBUG: "debug", OpDEBUGR: "debugr", OpINITV: "initv",
	OpSIZEOF: "sizeof",
}

func (op Op) String() string {
	if int(op) < len(names) && names[op] != "" {
		return names[op]
	}
	return "illegal"
}

func (op Op) Valid() bool { return op < opCount }
