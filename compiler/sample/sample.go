// Package sample holds small hand built IML functions
// shaped like front-end output for common guest code.
package sample

import (
	"github.com/slowlang/ppcrec/compiler/iml"
)

type Func struct {
	Name  string
	Descr string
	Build func() *iml.Context
}

var All = []Func{
	{"loop", "counted loop summing words with a cycle check", Loop},
	{"copy", "indexed word copy", Copy},
	{"min", "if-else diamond", Min},
	{"arith", "divide, high multiply, shifts, rotate, cntlz and carries", Arith},
	{"float", "double and single loads, fused multiply-add, compare into cr1", Float},
	{"paired", "paired single loads and stores through GQRs", Paired},
	{"call", "host call followed by an HLE exit", Call},
	{"cr", "CR logic and record forms, indirect call through CTR", CR},
}

func Find(name string) (Func, bool) {
	for _, f := range All {
		if f.Name == name {
			return f, true
		}
	}

	return Func{}, false
}

func gpr(c *iml.Context, n int) iml.Reg { return c.NewReg(iml.FormatI32, iml.NameGPR(n)) }
func fpr(c *iml.Context, n int) iml.Reg { return c.NewReg(iml.FormatF64, iml.NameFPR(n)) }

func cr(field uint8) iml.CRUpdate { return iml.CRUpdate{Enabled: true, Field: field} }

// Loop is
//
//	li r5, 0
//	loop: lwz r6, 0(r3); add r5, r5, r6; addi r3, r3, 4; subic. r4, r4, 1; bne loop
//	blr
func Loop() *iml.Context {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	entry := c.NewSegment()
	check := c.NewSegment()
	body := c.NewSegment()
	exit := c.NewSegment()
	leave := c.NewSegment()

	entry.Enterable = true
	entry.EnterAddr = 0x8000_3000
	entry.PPCAddr = 0x8000_3000
	check.PPCAddr = 0x8000_3004
	body.PPCAddr = 0x8000_3004
	exit.PPCAddr = 0x8000_3018

	r3, r4, r5, r6 := gpr(c, 3), gpr(c, 4), gpr(c, 5), gpr(c, 6)
	cond := c.NewReg(iml.FormatI32, iml.NameNone)

	b.Begin(entry).
		MovImm(r5, 0).
		FallThrough(check)

	b.Begin(check).
		Macro(iml.MacroCountCycles, 5, 0).
		Macro(iml.MacroCycleCheck, 0, 0)

	check.SetLinkBranchTaken(leave)
	check.SetLinkBranchNotTaken(body)

	b.Begin(body).
		Load(r6, r3, 0, 32).
		RRR(iml.OpAdd, r5, r5, r6).
		RRI(iml.OpAdd, r3, r3, 4).
		Emit(&iml.RRS32{Op: iml.OpSub, Dst: r4, A: r4, Imm: 1, CR: cr(0)}).
		CmpImm(iml.CondNE, cond, r4, 0).
		CondJump(cond, true, check, exit)

	b.Begin(exit).
		Macro(iml.MacroBLR, 0, 0)

	b.Begin(leave).
		Macro(iml.MacroLeave, 0x8000_3004, 0)

	return c
}

// Copy is a word copy loop indexed by r6 up to r5 bytes.
func Copy() *iml.Context {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	entry := c.NewSegment()
	body := c.NewSegment()
	exit := c.NewSegment()

	entry.Enterable = true
	entry.EnterAddr = 0x8000_4000

	r3, r4, r5, r6, r7 := gpr(c, 3), gpr(c, 4), gpr(c, 5), gpr(c, 6), gpr(c, 7)
	cond := c.NewReg(iml.FormatI32, iml.NameNone)

	b.Begin(entry).
		MovImm(r6, 0).
		FallThrough(body)

	b.Begin(body).
		Emit(&iml.Load{Dst: r7, Base: r4, Index: r6, Size: 32, SwapEndian: true}).
		Emit(&iml.Store{Src: r7, Base: r3, Index: r6, Size: 32, SwapEndian: true}).
		RRI(iml.OpAdd, r6, r6, 4).
		Cmp(iml.CondLTU, cond, r6, r5).
		CondJump(cond, true, body, exit)

	b.Begin(exit).
		Macro(iml.MacroBLR, 0, 0)

	return c
}

// Min sets r5 to the signed minimum of r3 and r4.
func Min() *iml.Context {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s0 := c.NewSegment()
	s1 := c.NewSegment()
	s2 := c.NewSegment()
	s3 := c.NewSegment()

	s0.Enterable = true
	s0.EnterAddr = 0x8000_5000

	r3, r4, r5 := gpr(c, 3), gpr(c, 4), gpr(c, 5)
	cond := c.NewReg(iml.FormatI32, iml.NameNone)

	b.Begin(s0).
		Cmp(iml.CondLTS, cond, r3, r4).
		CondJump(cond, true, s1, s2)

	b.Begin(s1).
		Mov(r5, r3).
		Jump(s3)

	b.Begin(s2).
		Mov(r5, r4).
		FallThrough(s3)

	b.Begin(s3).
		Macro(iml.MacroBLR, 0, 0)

	return c
}

func Arith() *iml.Context {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s := c.NewSegment()
	s.Enterable = true
	s.EnterAddr = 0x8000_6000

	var r [12]iml.Reg
	for i := 3; i < len(r); i++ {
		r[i] = gpr(c, i)
	}

	ca := c.NewReg(iml.FormatI32, iml.NameXERCA)

	b.Begin(s).
		RRR(iml.OpDivS, r[3], r[3], r[4]).
		RRR(iml.OpDivU, r[4], r[4], r[5]).
		RRR(iml.OpMulHiU, r[5], r[5], r[6]).
		RRR(iml.OpShl, r[7], r[7], r[8]).
		RRR(iml.OpShrS, r[9], r[9], r[8]).
		RRR(iml.OpRotl, r[10], r[10], r[8]).
		R(iml.OpCntlz, r[11], r[11]).
		Emit(&iml.RRS32Carry{Op: iml.OpAddCarryOut, Dst: r[3], A: r[3], Carry: ca, Imm: -1}).
		Emit(&iml.RRRCarry{Op: iml.OpAddCarry, Dst: r[4], A: r[4], B: r[3], Carry: ca, CR: cr(0)}).
		RRR(iml.OpSub, r[6], r[7], r[6]).
		Macro(iml.MacroBLR, 0, 0)

	return c
}

// Float computes f3 = frsp(f1*f2 + f3), compares it with f1 and stores f3 and -f3.
func Float() *iml.Context {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s := c.NewSegment()
	s.Enterable = true
	s.EnterAddr = 0x8000_7000

	r3 := gpr(c, 3)
	f1, f2, f3, f4 := fpr(c, 1), fpr(c, 2), fpr(c, 3), fpr(c, 4)

	b.Begin(s).
		Emit(&iml.FPRLoad{Dst: f1, Base: r3, Offset: 0, Mode: iml.FPRModeF64}).
		Emit(&iml.FPRLoad{Dst: f2, Base: r3, Offset: 8, Mode: iml.FPRModeF32}).
		Emit(&iml.FPRRRRR{Op: iml.OpFMulAdd, Dst: f3, A: f1, B: f3, C: f2}).
		Emit(&iml.FPRUnary{Op: iml.OpFRoundToSingle, Reg: f3}).
		Emit(&iml.FPRCompare{A: f3, B: f1, CR: cr(1)}).
		Emit(&iml.FPRStore{Src: f3, Base: r3, Offset: 16, Mode: iml.FPRModeF64}).
		Emit(&iml.FPRRR{Op: iml.OpFNeg, Dst: f4, A: f3}).
		Emit(&iml.FPRRRR{Op: iml.OpFDiv, Dst: f4, A: f1, B: f4}).
		Emit(&iml.FPRStore{Src: f4, Base: r3, Offset: 24, Mode: iml.FPRModeF32}).
		Macro(iml.MacroBLR, 0, 0)

	return c
}

// Paired loads one pair through a GQR unknown at compile time
// and one through an OS preset GQR, adds them and stores quantized.
func Paired() *iml.Context {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s := c.NewSegment()
	s.Enterable = true
	s.EnterAddr = 0x8000_8000

	r3, r4 := gpr(c, 3), gpr(c, 4)
	gqr := c.NewReg(iml.FormatI32, iml.NameNone)

	f1 := fpr(c, 1)
	f1p := c.NewReg(iml.FormatF64, iml.NameFPRPS1(1))
	f2 := fpr(c, 2)
	f2p := c.NewReg(iml.FormatF64, iml.NameFPRPS1(2))

	b.Begin(s).
		LoadName(gqr, iml.NameGQR(7)).
		Emit(&iml.FPRLoad{Dst: f1, Dst2: f1p, Base: r3, GQR: gqr, GQRIndex: 7, Mode: iml.FPRModePSGeneric}).
		Emit(&iml.FPRLoad{Dst: f2, Dst2: f2p, Base: r3, Offset: 8, GQRIndex: 2, Mode: iml.FPRModePSGeneric}).
		Emit(&iml.FPRRRR{Op: iml.OpFAdd, Dst: f1, A: f1, B: f2}).
		Emit(&iml.FPRRRR{Op: iml.OpFAdd, Dst: f1p, A: f1p, B: f2p}).
		Emit(&iml.FPRStore{Src: f1, Src2: f1p, Base: r4, GQRIndex: 5, Mode: iml.FPRModePSGeneric}).
		Emit(&iml.FPRStore{Src: f2, Src2: f2p, Base: r4, Offset: 8, Mode: iml.FPRModePSF32}).
		Macro(iml.MacroBLR, 0, 0)

	return c
}

// Call calls a host function with r3 and r4, accumulates into r5
// and exits through an HLE handler.
func Call() *iml.Context {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s := c.NewSegment()
	s.Enterable = true
	s.EnterAddr = 0x8000_9000

	r3, r4, r5 := gpr(c, 3), gpr(c, 4), gpr(c, 5)

	b.Begin(s).
		RRI(iml.OpAdd, r5, r5, 1).
		Emit(&iml.Call{Target: 0x7f00_0000_1000, Result: r3, Args: [3]iml.Reg{r3, r4}}).
		RRR(iml.OpAdd, r5, r5, r3).
		Macro(iml.MacroHLE, 0x8000_9010, 7)

	return c
}

func CR() *iml.Context {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s := c.NewSegment()
	s.Enterable = true
	s.EnterAddr = 0x8000_a000

	r3, r4, r5 := gpr(c, 3), gpr(c, 4), gpr(c, 5)

	b.Begin(s).
		Emit(&iml.RRR{Op: iml.OpAdd, Dst: r3, A: r4, B: r5, CR: cr(0)}).
		Emit(&iml.CRLogic{Op: iml.OpCROr, D: 6, A: 0, B: 2}).
		Emit(&iml.RR{Op: iml.OpNeg, Dst: r4, A: r3, CR: cr(1)}).
		Emit(&iml.CRLogic{Op: iml.OpCRAndC, D: 2, A: 4, B: 6}).
		Emit(&iml.CRLogic{Op: iml.OpCREqv, D: 3, A: 3, B: 3}).
		Macro(iml.MacroBCTRL, 0x8000_a014, 0)

	return c
}
