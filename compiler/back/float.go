package back

import (
	"tlog.app/go/errors"

	"github.com/slowlang/ppcrec/compiler/asm/amd64"
	"github.com/slowlang/ppcrec/compiler/iml"
)

// loadSwapped loads a big endian value into RegTemp.
func (g *gen) loadSwapped(w amd64.Width, m amd64.Mem) {
	if g.o.Features.MOVBE {
		g.a.MovbeLoad(w, RegTemp, m)
		return
	}

	g.a.Load(w, RegTemp, m)
	g.a.Bswap(w, RegTemp)
}

// storeSwapped stores RegTemp big endian. RegTemp is destroyed.
func (g *gen) storeSwapped(w amd64.Width, m amd64.Mem) {
	if g.o.Features.MOVBE {
		g.a.MovbeStore(w, m, RegTemp)
		return
	}

	g.swap(w, RegTemp)
	g.a.Store(w, m, RegTemp)
}

func offset(m amd64.Mem, d int32) amd64.Mem {
	m.Disp += d
	return m
}

func scaleSlot(table int32, scale int8) amd64.Mem {
	return rdata(table + 8*int32(scale&63))
}

func (g *gen) fprLoad(x *iml.FPRLoad) error {
	switch x.Mode {
	case iml.FPRModeF32Int:
		return errors.Wrap(ErrUnsupported, "load mode %v", x.Mode)
	case iml.FPRModePSGeneric:
		return g.psqHelper(x.Base, x.Index, x.GQR, x.Offset, x.Dst2.Valid(), RDataPSQLoad, func() {
			g.a.MovsdLoad(xmm(x.Dst), hcpu(OffScratchPS))

			if x.Dst2.Valid() {
				g.a.MovsdLoad(xmm(x.Dst2), hcpu(OffScratchPS+8))
			}
		})
	}

	elem := int32(x.Mode.ElemSize())

	return g.withEA(x.Base, x.Index, x.Offset, func(m amd64.Mem) {
		g.fprLoadElem(x, xmm(x.Dst), m)

		if x.Dst2.Valid() {
			g.fprLoadElem(x, xmm(x.Dst2), offset(m, elem))
		}
	})
}

func (g *gen) fprLoadElem(x *iml.FPRLoad, dst amd64.XReg, m amd64.Mem) {
	switch x.Mode {
	case iml.FPRModeF64:
		g.loadSwapped(amd64.W64, m)
		g.a.MovqXR(dst, RegTemp)

		return
	case iml.FPRModeF32, iml.FPRModePSF32:
		g.loadSwapped(amd64.W32, m)
		g.a.MovdXR(dst, RegTemp)

		if !x.NotExpanded {
			g.a.Cvtss2sd(dst, dst)
		}

		return
	case iml.FPRModePSU8:
		g.a.MovzxLoad(RegTemp, amd64.W8, m)
	case iml.FPRModePSS8:
		g.a.MovsxLoad(RegTemp, amd64.W8, m)
	case iml.FPRModePSU16, iml.FPRModePSS16:
		g.a.MovzxLoad(RegTemp, amd64.W16, m)
		g.a.ShiftRI(amd64.ROR, amd64.W16, RegTemp, 8)

		if x.Mode == iml.FPRModePSS16 {
			g.a.Movsx(RegTemp, amd64.W16, RegTemp)
		} else {
			g.a.Movzx(RegTemp, amd64.W16, RegTemp)
		}
	default:
		iml.Unreachable(x.Mode)
	}

	g.a.Cvtsi2sd(dst, RegTemp)

	if x.Scale != 0 {
		g.a.MovsdLoad(XTemp, scaleSlot(RDataDequant, x.Scale))
		g.a.ArithSD(amd64.MULSD, dst, XTemp)
	}
}

func (g *gen) fprStore(x *iml.FPRStore) error {
	if x.Mode == iml.FPRModePSGeneric {
		g.a.MovsdStore(hcpu(OffScratchPS), xmm(x.Src))

		if x.Src2.Valid() {
			g.a.MovsdStore(hcpu(OffScratchPS+8), xmm(x.Src2))
		}

		return g.psqHelper(x.Base, x.Index, x.GQR, x.Offset, x.Src2.Valid(), RDataPSQStore, nil)
	}

	elem := int32(x.Mode.ElemSize())

	return g.withEA(x.Base, x.Index, x.Offset, func(m amd64.Mem) {
		g.fprStoreElem(x, xmm(x.Src), m)

		if x.Src2.Valid() {
			g.fprStoreElem(x, xmm(x.Src2), offset(m, elem))
		}
	})
}

func (g *gen) fprStoreElem(x *iml.FPRStore, src amd64.XReg, m amd64.Mem) {
	switch x.Mode {
	case iml.FPRModeF64:
		g.a.MovqRX(RegTemp, src)
		g.storeSwapped(amd64.W64, m)

		return
	case iml.FPRModeF32, iml.FPRModePSF32:
		if x.NotExpanded {
			g.a.MovdRX(RegTemp, src)
		} else {
			g.a.Cvtsd2ss(XTemp, src)
			g.a.MovdRX(RegTemp, XTemp)
		}

		g.storeSwapped(amd64.W32, m)

		return
	case iml.FPRModeF32Int:
		g.a.MovdRX(RegTemp, src)
		g.storeSwapped(amd64.W32, m)

		return
	}

	// quantize: scale, clamp to the mode range, truncate
	g.a.Movapd(XTemp, src)

	if x.Scale != 0 {
		g.a.MovsdLoad(XTemp2, scaleSlot(RDataQuant, x.Scale))
		g.a.ArithSD(amd64.MULSD, XTemp, XTemp2)
	}

	g.a.MovsdLoad(XTemp2, rdata(RDataQuantMin+8*int32(x.Mode)))
	g.a.ArithSD(amd64.MAXSD, XTemp, XTemp2)
	g.a.MovsdLoad(XTemp2, rdata(RDataQuantMax+8*int32(x.Mode)))
	g.a.ArithSD(amd64.MINSD, XTemp, XTemp2)
	g.a.Cvttsd2si(RegTemp, XTemp)

	switch x.Mode {
	case iml.FPRModePSU8, iml.FPRModePSS8:
		g.a.Store(amd64.W8, m, RegTemp)
	case iml.FPRModePSU16, iml.FPRModePSS16:
		g.storeSwapped(amd64.W16, m)
	default:
		iml.Unreachable(x.Mode)
	}
}

// psqHelper calls a paired single helper for a quantization format
// known only at runtime. The GQR value is already in esi.
func (g *gen) psqHelper(base, index, gqr iml.Reg, off int32, paired bool, helper int32, after func()) error {
	iml.Assert(gpr(gqr) == amd64.RSI, "gqr in %v", gpr(gqr))

	switch {
	case base.Valid() && index.Valid():
		g.a.Lea(amd64.W32, amd64.RDI, amd64.MI(gpr(base), gpr(index), 1, off))
	case base.Valid():
		g.a.Lea(amd64.W32, amd64.RDI, amd64.M(gpr(base), off))
	case index.Valid():
		g.a.Lea(amd64.W32, amd64.RDI, amd64.M(gpr(index), off))
	default:
		g.a.MovImm32(amd64.RDI, uint32(off))
	}

	var p uint32
	if paired {
		p = 1
	}

	g.a.MovRR(amd64.W64, amd64.RDX, RegHCPU)
	g.a.MovImm32(amd64.RCX, p)
	g.a.CallMem(rdata(helper))

	if after != nil {
		after()
	}

	return nil
}

// float64 bits of math.MaxInt32
const maxInt32F64 = 0x41df_ffff_ffc0_0000

// fprOp applies a unary op to r in place.
func (g *gen) fprOp(op iml.Op, r amd64.XReg) error {
	switch op {
	case iml.OpFExpandF32ToF64:
		g.a.Cvtss2sd(r, r)
	case iml.OpFRoundToSingle:
		g.a.Cvtsd2ss(r, r)
		g.a.Cvtss2sd(r, r)
	case iml.OpFLoadOne:
		g.a.MovImm64(RegTemp, 0x3ff0_0000_0000_0000)
		g.a.MovqXR(r, RegTemp)
	case iml.OpFNeg:
		g.a.BitPDMem(amd64.XORPD, r, rdata(RDataSignMask))
	case iml.OpFAbs:
		g.a.BitPDMem(amd64.ANDPD, r, rdata(RDataAbsMask))
	case iml.OpFNegAbs:
		g.a.BitPDMem(amd64.ORPD, r, rdata(RDataSignMask))
	case iml.OpFCtiwz:
		// cvttsd2si yields 0x80000000 for NaN and both overflows,
		// fctiwz saturates positive ones to 0x7fffffff. minsd keeps a NaN source.
		g.a.MovImm64(RegTemp, maxInt32F64)
		g.a.MovqXR(XTemp, RegTemp)
		g.a.ArithSD(amd64.MINSD, XTemp, r)
		g.a.Cvttsd2si(RegTemp, XTemp)
		g.a.MovdXR(r, RegTemp)
	default:
		return errors.Wrap(ErrUnsupported, "fpr unary %v", op)
	}

	return nil
}

func (g *gen) fprUnary(x *iml.FPRUnary) error {
	return g.fprOp(x.Op, xmm(x.Reg))
}

func (g *gen) fprRR(x *iml.FPRRR) error {
	dst, a := xmm(x.Dst), xmm(x.A)

	if dst != a {
		g.a.Movapd(dst, a)
	}

	if x.Op == iml.OpFAssign {
		return nil
	}

	return g.fprOp(x.Op, dst)
}

func sseOp(op iml.Op) (amd64.SSEOp, bool) {
	switch op {
	case iml.OpFAdd:
		return amd64.ADDSD, true
	case iml.OpFSub:
		return amd64.SUBSD, true
	case iml.OpFMul:
		return amd64.MULSD, true
	case iml.OpFDiv:
		return amd64.DIVSD, true
	}

	return 0, false
}

func (g *gen) fprRRR(x *iml.FPRRRR) error {
	op, ok := sseOp(x.Op)
	if !ok {
		return errors.Wrap(ErrUnsupported, "fpr r_r_r %v", x.Op)
	}

	dst, a, b := xmm(x.Dst), xmm(x.A), xmm(x.B)

	switch {
	case dst == a:
		g.a.ArithSD(op, dst, b)
	case dst == b && x.Op.Commutative():
		g.a.ArithSD(op, dst, a)
	case dst == b:
		g.a.Movapd(XTemp, a)
		g.a.ArithSD(op, XTemp, b)
		g.a.Movapd(dst, XTemp)
	default:
		g.a.Movapd(dst, a)
		g.a.ArithSD(op, dst, b)
	}

	return nil
}

// fprRRRR computes a*c+b or a*c-b with separate roundings.
// The guest fused forms round once, so results may differ in the last bit.
// FMA3 is not among the detected host features.
func (g *gen) fprRRRR(x *iml.FPRRRRR) error {
	var op amd64.SSEOp

	switch x.Op {
	case iml.OpFMulAdd:
		op = amd64.ADDSD
	case iml.OpFMulSub:
		op = amd64.SUBSD
	default:
		return errors.Wrap(ErrUnsupported, "fpr r_r_r_r %v", x.Op)
	}

	g.a.Movapd(XTemp, xmm(x.A))
	g.a.ArithSD(amd64.MULSD, XTemp, xmm(x.C))
	g.a.ArithSD(op, XTemp, xmm(x.B))
	g.a.Movapd(xmm(x.Dst), XTemp)

	return nil
}

// fprCompare uses ucomisd flags: unordered sets ZF, PF and CF at once,
// so LT and EQ are masked with "not parity".
func (g *gen) fprCompare(x *iml.FPRCompare) {
	g.a.Ucomisd(xmm(x.A), xmm(x.B))

	if !x.CR.Enabled {
		dst := gpr(x.Dst)

		switch x.Cond {
		case iml.FCondLT:
			g.a.Setcc(amd64.CCB, dst)
		case iml.FCondGT:
			g.a.Setcc(amd64.CCA, dst)
		case iml.FCondEQ:
			g.a.Setcc(amd64.CCE, dst)
		case iml.FCondUO:
			g.a.Setcc(amd64.CCP, dst)
		}

		if x.Cond == iml.FCondLT || x.Cond == iml.FCondEQ {
			g.a.Setcc(amd64.CCNP, RegTemp)
			g.a.AluRR(amd64.AND, amd64.W8, dst, RegTemp)
		}

		g.a.Movzx(dst, amd64.W8, dst)

		return
	}

	base := 4 * int(x.CR.Field)
	keep := func(bit int) bool { return x.CR.IgnoreMask&(1<<bit) == 0 }

	ccs := [4]amd64.CC{
		iml.CRBitLT: amd64.CCB,
		iml.CRBitGT: amd64.CCA,
		iml.CRBitEQ: amd64.CCE,
		iml.CRBitSO: amd64.CCP,
	}

	for bit, c := range ccs {
		if keep(bit) {
			g.a.SetccMem(c, crBit(base+bit))
		}
	}

	if !keep(iml.CRBitLT) && !keep(iml.CRBitEQ) {
		return
	}

	g.a.Setcc(amd64.CCNP, RegTemp)

	for _, bit := range []int{iml.CRBitLT, iml.CRBitEQ} {
		if keep(bit) {
			g.a.AluMR(amd64.AND, amd64.W8, crBit(base+bit), RegTemp)
		}
	}
}
