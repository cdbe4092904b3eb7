package back

import (
	"tlog.app/go/errors"

	"github.com/slowlang/ppcrec/compiler/asm/amd64"
	"github.com/slowlang/ppcrec/compiler/iml"
)

func (g *gen) nameToReg(x *iml.NameToReg) error {
	off, w, ok := nameSlot(x.Name)
	if !ok {
		return errors.Wrap(ErrUnsupported, "name %v", x.Name)
	}

	m := hcpu(off)

	switch {
	case x.Dst.IsFloat():
		g.a.MovsdLoad(xmm(x.Dst), m)
	case w == amd64.W8:
		g.a.MovzxLoad(gpr(x.Dst), amd64.W8, m)
	case w == amd64.W64 && width(x.Dst) == amd64.W64:
		g.a.Load(amd64.W64, gpr(x.Dst), m)
	default:
		g.a.Load(amd64.W32, gpr(x.Dst), m)
	}

	return nil
}

func (g *gen) regToName(x *iml.RegToName) error {
	off, w, ok := nameSlot(x.Name)
	if !ok {
		return errors.Wrap(ErrUnsupported, "name %v", x.Name)
	}

	m := hcpu(off)

	switch {
	case x.Src.IsFloat():
		g.a.MovsdStore(m, xmm(x.Src))
	case w == amd64.W8:
		g.a.Store(amd64.W8, m, gpr(x.Src))
	case w == amd64.W64:
		g.a.Store(amd64.W64, m, gpr(x.Src))
	default:
		g.a.Store(amd64.W32, m, gpr(x.Src))
	}

	return nil
}

// mov copies src to dst unless they are the same register.
func (g *gen) mov(w amd64.Width, dst, src amd64.Reg) {
	if dst != src {
		g.a.MovRR(w, dst, src)
	}
}

func (g *gen) rr(x *iml.RR) error {
	dst, a := gpr(x.Dst), gpr(x.A)
	w := width(x.Dst)

	switch x.Op {
	case iml.OpAssign:
		if w == amd64.W8 {
			g.a.Movzx(dst, amd64.W8, a)
			break
		}

		g.mov(w, dst, a)
	case iml.OpSExt8:
		g.a.Movsx(dst, amd64.W8, a)
	case iml.OpSExt16:
		g.a.Movsx(dst, amd64.W16, a)
	case iml.OpZExt8:
		g.a.Movzx(dst, amd64.W8, a)
	case iml.OpZExt16:
		g.a.Movzx(dst, amd64.W16, a)
	case iml.OpByteReverse:
		g.mov(amd64.W32, dst, a)
		g.a.Bswap(amd64.W32, dst)
	case iml.OpNeg:
		g.mov(amd64.W32, dst, a)
		g.a.UnaryR(amd64.NEG, amd64.W32, dst)
	case iml.OpNot:
		g.mov(amd64.W32, dst, a)
		g.a.UnaryR(amd64.NOT, amd64.W32, dst)
	case iml.OpCntlz:
		if g.o.Features.LZCNT {
			g.a.Lzcnt(amd64.W32, dst, a)
			break
		}

		// bsr gives the index of the highest bit, 31-idx == idx^31; zero input gives 63^31 == 32
		g.a.Bsr(amd64.W32, dst, a)
		g.skip(amd64.CCNE, func() { g.a.MovImm32(dst, 63) })
		g.a.AluRI(amd64.XOR, amd64.W32, dst, 31)
	default:
		return errors.Wrap(ErrUnsupported, "r_r %v", x.Op)
	}

	g.crUpdate(x.CR, x.Dst)

	return nil
}

func aluOp(op iml.Op) (amd64.ALU, bool) {
	switch op {
	case iml.OpAdd:
		return amd64.ADD, true
	case iml.OpSub:
		return amd64.SUB, true
	case iml.OpAnd:
		return amd64.AND, true
	case iml.OpOr:
		return amd64.OR, true
	case iml.OpXor:
		return amd64.XOR, true
	}

	return 0, false
}

func shiftOp(op iml.Op) (amd64.Shift, bool) {
	switch op {
	case iml.OpShl:
		return amd64.SHL, true
	case iml.OpShrU:
		return amd64.SHR, true
	case iml.OpShrS:
		return amd64.SAR, true
	case iml.OpRotl:
		return amd64.ROL, true
	}

	return 0, false
}

func (g *gen) rrr(x *iml.RRR) error {
	dst, a, b := gpr(x.Dst), gpr(x.A), gpr(x.B)
	w := width(x.Dst)

	if alu, ok := aluOp(x.Op); ok {
		switch {
		case dst == a:
			g.a.AluRR(alu, w, dst, b)
		case dst == b && x.Op.Commutative():
			g.a.AluRR(alu, w, dst, a)
		case dst == b:
			// dst = a - dst
			g.a.UnaryR(amd64.NEG, w, dst)
			g.a.AluRR(amd64.ADD, w, dst, a)
		default:
			g.a.MovRR(w, dst, a)
			g.a.AluRR(alu, w, dst, b)
		}

		g.crUpdate(x.CR, x.Dst)

		return nil
	}

	switch x.Op {
	case iml.OpMul:
		switch {
		case dst == a:
			g.a.ImulRR(w, dst, b)
		case dst == b:
			g.a.ImulRR(w, dst, a)
		default:
			g.a.MovRR(w, dst, a)
			g.a.ImulRR(w, dst, b)
		}
	case iml.OpDivS, iml.OpDivU:
		g.divide(x)
	case iml.OpMulHiS, iml.OpMulHiU:
		op := amd64.MUL
		if x.Op == iml.OpMulHiS {
			op = amd64.IMUL
		}

		g.mov(amd64.W32, amd64.RAX, a)
		g.a.UnaryR(op, amd64.W32, b)
		g.mov(amd64.W32, dst, amd64.RDX)
	case iml.OpShl, iml.OpShrU, iml.OpShrS:
		g.shiftVar(x)
	case iml.OpRotl:
		if dst == b && dst != a {
			g.a.MovRR(amd64.W32, RegTemp, a)
			g.a.ShiftCL(amd64.ROL, amd64.W32, RegTemp)
			g.a.MovRR(amd64.W32, dst, RegTemp)

			break
		}

		iml.Assert(b == amd64.RCX, "rotate count in %v", b)

		g.mov(amd64.W32, dst, a)
		g.a.ShiftCL(amd64.ROL, amd64.W32, dst)
	default:
		return errors.Wrap(ErrUnsupported, "r_r_r %v", x.Op)
	}

	g.crUpdate(x.CR, x.Dst)

	return nil
}

// divide leaves 0 for division by zero and the negated dividend
// for signed division by -1, where the host would trap.
func (g *gen) divide(x *iml.RRR) {
	dst, a, b := gpr(x.Dst), gpr(x.A), gpr(x.B)
	signed := x.Op == iml.OpDivS

	g.mov(amd64.W32, amd64.RAX, a)

	g.a.TestRR(amd64.W32, b, b)
	zero := g.forward(amd64.CCE)

	var done []func()

	if signed {
		g.a.AluRI(amd64.CMP, amd64.W32, b, -1)
		div := g.forward(amd64.CCNE)

		g.a.UnaryR(amd64.NEG, amd64.W32, amd64.RAX)
		done = append(done, g.forwardJmp())

		div()
		g.a.Cdq(amd64.W32)
		g.a.UnaryR(amd64.IDIV, amd64.W32, b)
	} else {
		g.a.AluRR(amd64.XOR, amd64.W32, amd64.RDX, amd64.RDX)
		g.a.UnaryR(amd64.DIV, amd64.W32, b)
	}

	done = append(done, g.forwardJmp())

	zero()
	g.a.AluRR(amd64.XOR, amd64.W32, amd64.RAX, amd64.RAX)

	for _, d := range done {
		d()
	}

	g.mov(amd64.W32, dst, amd64.RAX)
}

// shiftVar shifts by a register amount. Amounts 32 to 63 shift everything out,
// so the shift is done in 64 bits on a zero or sign extended copy.
func (g *gen) shiftVar(x *iml.RRR) {
	dst, a, b := gpr(x.Dst), gpr(x.A), gpr(x.B)
	op, _ := shiftOp(x.Op)

	if x.Op == iml.OpShrS {
		g.a.Movsxd(RegTemp, a)
	} else {
		g.a.MovRR(amd64.W32, RegTemp, a)
	}

	if g.o.Features.BMI2 {
		g.a.ShiftX(op, amd64.W64, RegTemp, RegTemp, b)
	} else {
		iml.Assert(b == amd64.RCX, "shift count in %v", b)

		g.a.ShiftCL(op, amd64.W64, RegTemp)
	}

	g.a.MovRR(amd64.W32, dst, RegTemp)
}

func (g *gen) rrs32(x *iml.RRS32) error {
	dst, a := gpr(x.Dst), gpr(x.A)
	w := width(x.Dst)

	if alu, ok := aluOp(x.Op); ok {
		g.mov(w, dst, a)
		g.a.AluRI(alu, w, dst, x.Imm)

		g.crUpdate(x.CR, x.Dst)

		return nil
	}

	if sh, ok := shiftOp(x.Op); ok {
		g.mov(amd64.W32, dst, a)

		if n := uint8(x.Imm & 31); n != 0 {
			g.a.ShiftRI(sh, amd64.W32, dst, n)
		}

		g.crUpdate(x.CR, x.Dst)

		return nil
	}

	switch x.Op {
	case iml.OpMul:
		g.a.ImulRRI(amd64.W32, dst, a, x.Imm)
	default:
		return errors.Wrap(ErrUnsupported, "r_r_s32 %v", x.Op)
	}

	g.crUpdate(x.CR, x.Dst)

	return nil
}

// carryIn sets the host carry flag from a 0/1 register.
func (g *gen) carryIn(carry iml.Reg) {
	g.a.MovRR(amd64.W32, RegTemp, gpr(carry))
	g.a.UnaryR(amd64.NEG, amd64.W32, RegTemp)
}

func (g *gen) carryOut(carry iml.Reg) {
	g.a.Setcc(amd64.CCB, gpr(carry))
	g.a.Movzx(gpr(carry), amd64.W8, gpr(carry))
}

func (g *gen) rrrCarry(x *iml.RRRCarry) error {
	switch x.Op {
	case iml.OpAddCarry:
		g.carryIn(x.Carry)
		g.a.MovRR(amd64.W32, RegTemp, gpr(x.A))
		g.a.AluRR(amd64.ADC, amd64.W32, RegTemp, gpr(x.B))
	case iml.OpAddCarryOut:
		g.a.MovRR(amd64.W32, RegTemp, gpr(x.A))
		g.a.AluRR(amd64.ADD, amd64.W32, RegTemp, gpr(x.B))
	default:
		return errors.Wrap(ErrUnsupported, "r_r_r_carry %v", x.Op)
	}

	g.carryOut(x.Carry)
	g.a.MovRR(amd64.W32, gpr(x.Dst), RegTemp)

	g.crUpdate(x.CR, x.Dst)

	return nil
}

func (g *gen) rrs32Carry(x *iml.RRS32Carry) error {
	switch x.Op {
	case iml.OpAddCarry:
		g.carryIn(x.Carry)
		g.a.MovRR(amd64.W32, RegTemp, gpr(x.A))
		g.a.AluRI(amd64.ADC, amd64.W32, RegTemp, x.Imm)
	case iml.OpAddCarryOut:
		g.a.MovRR(amd64.W32, RegTemp, gpr(x.A))
		g.a.AluRI(amd64.ADD, amd64.W32, RegTemp, x.Imm)
	default:
		return errors.Wrap(ErrUnsupported, "r_r_s32_carry %v", x.Op)
	}

	g.carryOut(x.Carry)
	g.a.MovRR(amd64.W32, gpr(x.Dst), RegTemp)

	g.crUpdate(x.CR, x.Dst)

	return nil
}

func (g *gen) rs32(x *iml.RS32) error {
	if x.Op != iml.OpAssign {
		return errors.Wrap(ErrUnsupported, "r_s32 %v", x.Op)
	}

	if width(x.Dst) == amd64.W64 {
		g.a.MovImm64(gpr(x.Dst), uint64(int64(x.Imm)))
	} else {
		g.a.MovImm32(gpr(x.Dst), uint32(x.Imm))
	}

	return nil
}

// crUpdate sets LT, GT and EQ of the CR field from the signed result
// and copies XER.SO into its SO bit. Ignored bits are not written.
func (g *gen) crUpdate(cr iml.CRUpdate, res iml.Reg) {
	if !cr.Active() {
		return
	}

	base := 4 * int(cr.Field)

	g.a.TestRR(amd64.W32, gpr(res), gpr(res))

	for i, c := range [3]amd64.CC{amd64.CCL, amd64.CCG, amd64.CCE} {
		if cr.IgnoreMask&(1<<i) == 0 {
			g.a.SetccMem(c, crBit(base+i))
		}
	}

	if cr.IgnoreMask&(1<<iml.CRBitSO) == 0 {
		g.a.MovzxLoad(RegTemp, amd64.W8, hcpu(OffXERSO))
		g.a.Store(amd64.W8, crBit(base+iml.CRBitSO), RegTemp)
	}
}

func (g *gen) crLogic(x *iml.CRLogic) error {
	a, b, d := crBit(int(x.A)), crBit(int(x.B)), crBit(int(x.D))

	load := func(m amd64.Mem, invert bool) {
		g.a.MovzxLoad(RegTemp, amd64.W8, m)

		if invert {
			g.a.AluRI(amd64.XOR, amd64.W32, RegTemp, 1)
		}
	}

	var (
		op     amd64.ALU
		invert bool
	)

	switch x.Op {
	case iml.OpCRAnd, iml.OpCRNand:
		op, invert = amd64.AND, x.Op == iml.OpCRNand
		load(a, false)
	case iml.OpCROr, iml.OpCRNor:
		op, invert = amd64.OR, x.Op == iml.OpCRNor
		load(a, false)
	case iml.OpCRXor, iml.OpCREqv:
		op, invert = amd64.XOR, x.Op == iml.OpCREqv
		load(a, false)
	case iml.OpCRAndC, iml.OpCROrC:
		op = amd64.AND
		if x.Op == iml.OpCROrC {
			op = amd64.OR
		}

		load(b, true)
		g.a.AluRM(op, amd64.W8, RegTemp, a)
		g.a.Store(amd64.W8, d, RegTemp)

		return nil
	default:
		return errors.Wrap(ErrUnsupported, "cr logic %v", x.Op)
	}

	g.a.AluRM(op, amd64.W8, RegTemp, b)

	if invert {
		g.a.AluRI(amd64.XOR, amd64.W8, RegTemp, 1)
	}

	g.a.Store(amd64.W8, d, RegTemp)

	return nil
}
