package vm

import (
	"math/rand"

	"github.com/olofson/a2core/errors"
	"github.com/olofson/a2core/fixed"
)

// doArith implements the immediate/register forms of add, subtract,
// multiply, divide, modulo, quantize, random, and pitch-to-period/rate
// (spec §4.4 "Arithmetic"). Destination is always a1; the operand is
// either the long-form immediate or register a2, depending on op.
func (v *VM) doArith(op Op, w Word, imm uint32, samplerate int) error {
	dest := int(w.A1())
	var operand fixed.P16
	if LongForm(op) {
		operand = fixed.P16(imm)
	} else {
		operand = v.Regs[w.A2()]
	}
	a := v.Regs[dest]

	switch op {
	case OpADD, OpADDI:
		v.Regs[dest] = a + operand
	case OpSUB, OpSUBI:
		v.Regs[dest] = a - operand
	case OpMUL, OpMULI:
		v.Regs[dest] = fixed.FromFloat16(a.Float() * operand.Float())
	case OpDIV, OpDIVI:
		if operand == 0 {
			return errors.New(errors.DIVBYZERO, "vm.doArith")
		}
		v.Regs[dest] = fixed.FromFloat16(a.Float() / operand.Float())
	case OpMOD, OpMODI:
		if operand == 0 {
			return errors.New(errors.DIVBYZERO, "vm.doArith")
		}
		v.Regs[dest] = a % operand
	case OpQUANT, OpQUANTI:
		if operand == 0 {
			v.Regs[dest] = a
		} else {
			q := int64(a) / int64(operand)
			v.Regs[dest] = fixed.P16(q) * operand
		}
	case OpRAND, OpRANDI:
		v.Regs[dest] = fixed.FromFloat16(rand.Float64() * operand.Float())
	case OpP2R, OpP2RI:
		v.Regs[dest] = fixed.FromFloat16(fixed.PitchToRate(a, operand.Float()))
	}
	v.markDirty(dest)
	return nil
}
