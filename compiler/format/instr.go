package format

import (
	"github.com/nikandfor/hacked/hfmt"

	"github.com/slowlang/ppcrec/compiler/asm/amd64"
	"github.com/slowlang/ppcrec/compiler/iml"
)

// AppendInstr appends one instruction in a readable form.
// After allocation registers are shown by their host names.
func AppendInstr(b []byte, c *iml.Context, x iml.Instr) []byte {
	reg := func(r iml.Reg) any {
		if !r.Valid() {
			return "_"
		}

		if !c.Allocated {
			return r
		}

		if r.IsFloat() {
			return amd64.XReg(r.ID()).String() + "." + r.Format().String()
		}

		return amd64.Reg(r.ID()).String() + "." + r.Format().String()
	}

	switch x := x.(type) {
	case *iml.NameToReg:
		b = hfmt.Appendf(b, "%v = load_name %v", reg(x.Dst), x.Name)
	case *iml.RegToName:
		b = hfmt.Appendf(b, "store_name %v = %v", x.Name, reg(x.Src))
	case *iml.RR:
		b = hfmt.Appendf(b, "%v = %v %v", reg(x.Dst), x.Op, reg(x.A))
		b = appendCR(b, x.CR)
	case *iml.RRR:
		b = hfmt.Appendf(b, "%v = %v %v, %v", reg(x.Dst), x.Op, reg(x.A), reg(x.B))
		b = appendCR(b, x.CR)
	case *iml.RRRCarry:
		b = hfmt.Appendf(b, "%v, %v = %v %v, %v", reg(x.Dst), reg(x.Carry), x.Op, reg(x.A), reg(x.B))
		b = appendCR(b, x.CR)
	case *iml.RRS32:
		b = hfmt.Appendf(b, "%v = %v %v, %#x", reg(x.Dst), x.Op, reg(x.A), x.Imm)
		b = appendCR(b, x.CR)
	case *iml.RRS32Carry:
		b = hfmt.Appendf(b, "%v, %v = %v %v, %#x", reg(x.Dst), reg(x.Carry), x.Op, reg(x.A), x.Imm)
		b = appendCR(b, x.CR)
	case *iml.RS32:
		b = hfmt.Appendf(b, "%v = %v %#x", reg(x.Dst), x.Op, x.Imm)
	case *iml.Compare:
		b = hfmt.Appendf(b, "%v = cmp.%v %v, %v", reg(x.Dst), x.Cond, reg(x.A), reg(x.B))
	case *iml.CompareS32:
		b = hfmt.Appendf(b, "%v = cmp.%v %v, %#x", reg(x.Dst), x.Cond, reg(x.A), x.Imm)
	case *iml.CompareFlags:
		if x.UseImm {
			b = hfmt.Appendf(b, "flags = cmp %v, %#x", reg(x.A), x.Imm)
		} else {
			b = hfmt.Appendf(b, "flags = cmp %v, %v", reg(x.A), reg(x.B))
		}
	case *iml.CondJump:
		b = hfmt.Appendf(b, "jump_if %v == %v", reg(x.Cond), x.MustBeTrue)
	case *iml.FlagsJump:
		b = hfmt.Appendf(b, "jump_if flags.%v", x.Cond)
	case *iml.Jump:
		b = append(b, "jump"...)
	case *iml.Load:
		b = hfmt.Appendf(b, "%v = mem%d[%v + %v + %#x]", reg(x.Dst), x.Size, reg(x.Base), reg(x.Index), x.Offset)
		b = appendMemFlags(b, x.SignExtend, x.SwapEndian)
	case *iml.Store:
		b = hfmt.Appendf(b, "mem%d[%v + %v + %#x] = %v", x.Size, reg(x.Base), reg(x.Index), x.Offset, reg(x.Src))
		b = appendMemFlags(b, false, x.SwapEndian)
	case *iml.AtomicCmpStore:
		b = hfmt.Appendf(b, "%v = cas [%v] %v -> %v", reg(x.Result), reg(x.EA), reg(x.Expected), reg(x.New))
	case *iml.Call:
		b = hfmt.Appendf(b, "%v = call %#x(%v, %v, %v)", reg(x.Result), x.Target, reg(x.Args[0]), reg(x.Args[1]), reg(x.Args[2]))
	case *iml.Macro:
		b = hfmt.Appendf(b, "macro %v %#x %#x %#x", x.Op, x.Param, x.Param2, x.Param3)
	case *iml.CRLogic:
		b = hfmt.Appendf(b, "cr%d = %v cr%d, cr%d", x.D, x.Op, x.A, x.B)
	case *iml.FPRLoad:
		b = hfmt.Appendf(b, "%v, %v = fload.%v [%v + %v + %#x]", reg(x.Dst), reg(x.Dst2), x.Mode, reg(x.Base), reg(x.Index), x.Offset)
		b = appendQuant(b, x.Mode, x.GQRIndex, x.Scale, x.NotExpanded)
	case *iml.FPRStore:
		b = hfmt.Appendf(b, "fstore.%v [%v + %v + %#x] = %v, %v", x.Mode, reg(x.Base), reg(x.Index), x.Offset, reg(x.Src), reg(x.Src2))
		b = appendQuant(b, x.Mode, x.GQRIndex, x.Scale, x.NotExpanded)
	case *iml.FPRUnary:
		b = hfmt.Appendf(b, "%v = %v %v", reg(x.Reg), x.Op, reg(x.Reg))
	case *iml.FPRRR:
		b = hfmt.Appendf(b, "%v = %v %v", reg(x.Dst), x.Op, reg(x.A))
	case *iml.FPRRRR:
		b = hfmt.Appendf(b, "%v = %v %v, %v", reg(x.Dst), x.Op, reg(x.A), reg(x.B))
	case *iml.FPRRRRR:
		b = hfmt.Appendf(b, "%v = %v %v, %v, %v", reg(x.Dst), x.Op, reg(x.A), reg(x.B), reg(x.C))
	case *iml.FPRCompare:
		b = hfmt.Appendf(b, "%v = fcmp.%v %v, %v", reg(x.Dst), x.Cond, reg(x.A), reg(x.B))
		b = appendCR(b, x.CR)
	case *iml.NoOp:
		b = append(b, "nop"...)
	case *iml.DebugBreak:
		b = append(b, "debug_break"...)
	default:
		b = hfmt.Appendf(b, "%T", x)
	}

	return b
}

func appendCR(b []byte, cr iml.CRUpdate) []byte {
	if !cr.Enabled {
		return b
	}

	b = hfmt.Appendf(b, "  -> cr%d", cr.Field)

	if cr.IgnoreMask != 0 {
		b = hfmt.Appendf(b, " ignore %04b", cr.IgnoreMask)
	}

	return b
}

func appendMemFlags(b []byte, sext, swap bool) []byte {
	if sext {
		b = append(b, " sext"...)
	}

	if swap {
		b = append(b, " be"...)
	}

	return b
}

func appendQuant(b []byte, mode iml.FPRMode, gqr uint8, scale int8, notExpanded bool) []byte {
	if mode.Quantized() {
		b = hfmt.Appendf(b, " gqr%d", gqr)
	}

	if scale != 0 {
		b = hfmt.Appendf(b, " scale %d", scale)
	}

	if notExpanded {
		b = append(b, " raw"...)
	}

	return b
}
