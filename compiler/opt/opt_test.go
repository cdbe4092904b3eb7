package opt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/ppcrec/compiler/config"
	"github.com/slowlang/ppcrec/compiler/iml"
)

func TestFloatCopyFusion(t *testing.T) {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s := c.NewSegment()
	base := c.NewReg(iml.FormatI32, iml.NameGPR(3))
	f := c.NewReg(iml.FormatF64, iml.NameNone)

	ld := &iml.FPRLoad{Dst: f, Base: base, Mode: iml.FPRModeF32}
	st := &iml.FPRStore{Src: f, Base: base, Offset: 4, Mode: iml.FPRModeF32}

	b.Begin(s).
		Emit(ld).
		Emit(&iml.NoOp{}).
		Emit(st).
		Macro(iml.MacroBLR, 0, 0)

	OptimizeDirectFloatCopies(context.Background(), c)

	assert.True(t, ld.NotExpanded)
	assert.True(t, st.NotExpanded)

	require.Len(t, s.Instrs, 5)
	assert.Same(t, ld, s.Instrs[0])
	assert.Same(t, st, s.Instrs[2])
	assert.Equal(t, &iml.FPRUnary{Op: iml.OpFExpandF32ToF64, Reg: f}, s.Instrs[3])

	OptimizeDirectFloatCopies(context.Background(), c)
	assert.Len(t, s.Instrs, 5, "second run changes nothing")
}

func TestFloatCopyNonMatching(t *testing.T) {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s := c.NewSegment()
	base := c.NewReg(iml.FormatI32, iml.NameGPR(3))
	f := c.NewReg(iml.FormatF64, iml.NameNone)
	g := c.NewReg(iml.FormatF64, iml.NameFPR(1))

	ld := &iml.FPRLoad{Dst: f, Base: base, Mode: iml.FPRModeF32}
	st := &iml.FPRStore{Src: f, Base: base, Offset: 4, Mode: iml.FPRModeF32}

	b.Begin(s).
		Emit(ld).
		Emit(&iml.FPRRRR{Op: iml.OpFAdd, Dst: g, A: f, B: f}).
		Emit(st).
		Macro(iml.MacroBLR, 0, 0)

	OptimizeDirectFloatCopies(context.Background(), c)

	assert.False(t, ld.NotExpanded)
	assert.False(t, st.NotExpanded)
	assert.Len(t, s.Instrs, 4)

	// store out of the window
	c = iml.NewContext()
	b = iml.NewBuilder(c)
	s = c.NewSegment()
	base = c.NewReg(iml.FormatI32, iml.NameGPR(3))
	f = c.NewReg(iml.FormatF64, iml.NameNone)

	ld = &iml.FPRLoad{Dst: f, Base: base, Mode: iml.FPRModeF32}
	b.Begin(s).Emit(ld)

	for range Window {
		b.Emit(&iml.NoOp{})
	}

	b.Emit(&iml.FPRStore{Src: f, Base: base, Mode: iml.FPRModeF32})

	OptimizeDirectFloatCopies(context.Background(), c)
	assert.False(t, ld.NotExpanded)
}

func TestIntegerCopy(t *testing.T) {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s := c.NewSegment()
	base := c.NewReg(iml.FormatI32, iml.NameGPR(3))
	r := c.NewReg(iml.FormatI32, iml.NameNone)

	b.Begin(s).
		Load(r, base, 0, 32).
		Store(r, base, 8, 32).
		Macro(iml.MacroBLR, 0, 0)

	OptimizeDirectIntegerCopies(context.Background(), c)

	require.Len(t, s.Instrs, 4)
	assert.False(t, s.Instrs[0].(*iml.Load).SwapEndian)
	assert.False(t, s.Instrs[1].(*iml.Store).SwapEndian)
	assert.Equal(t, &iml.RR{Op: iml.OpByteReverse, Dst: r, A: r}, s.Instrs[2])
}

func TestIntegerCopyStoreAddressUsesValue(t *testing.T) {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s := c.NewSegment()
	base := c.NewReg(iml.FormatI32, iml.NameGPR(3))
	r := c.NewReg(iml.FormatI32, iml.NameNone)

	b.Begin(s).
		Load(r, base, 0, 32).
		Emit(&iml.Store{Src: r, Base: r, Size: 32, SwapEndian: true})

	OptimizeDirectIntegerCopies(context.Background(), c)

	assert.True(t, s.Instrs[0].(*iml.Load).SwapEndian)
	assert.Len(t, s.Instrs, 2)
}

// crGraph builds s0 (add with cr0 update) falling through to s1.
func crGraph(t *testing.T, tail func(b *iml.Builder, c *iml.Context)) (*iml.Context, *iml.RRR) {
	t.Helper()

	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s0, s1 := c.NewSegment(), c.NewSegment()
	r := c.NewReg(iml.FormatI32, iml.NameGPR(3))

	add := &iml.RRR{Op: iml.OpAdd, Dst: r, A: r, B: r, CR: iml.CRUpdate{Enabled: true, Field: 0}}

	b.Begin(s0).Emit(add).FallThrough(s1)
	b.Begin(s1)
	tail(b, c)

	require.NoError(t, c.Validate())

	return c, add
}

func TestCRIgnoreMask(t *testing.T) {
	c, add := crGraph(t, func(b *iml.Builder, c *iml.Context) {
		r := c.NewReg(iml.FormatI32, iml.NameGPR(4))

		b.Emit(&iml.RRS32{Op: iml.OpAdd, Dst: r, A: r, Imm: 1, CR: iml.CRUpdate{Enabled: true, Field: 0}})
		b.Macro(iml.MacroBLR, 0, 0)
	})

	OptimizeCRBits(context.Background(), c)

	assert.Equal(t, uint8(0xf), add.CR.IgnoreMask)
	assert.False(t, add.CR.Active())
	assert.False(t, add.HasSideEffects())
}

func TestCRIgnoreMaskKeepsReadBit(t *testing.T) {
	c, add := crGraph(t, func(b *iml.Builder, c *iml.Context) {
		r := c.NewReg(iml.FormatI32, iml.NameGPR(4))
		gt := c.NewReg(iml.FormatI32, iml.NameNone)

		b.LoadName(gt, iml.NameCR(iml.CRBitGT))
		b.Emit(&iml.RRS32{Op: iml.OpAdd, Dst: r, A: gt, Imm: 1, CR: iml.CRUpdate{Enabled: true, Field: 0}})
		b.Macro(iml.MacroBLR, 0, 0)
	})

	OptimizeCRBits(context.Background(), c)

	assert.Equal(t, uint8(0b1101), add.CR.IgnoreMask)
	assert.True(t, add.CR.Active())
}

func TestCRConservativeAtExit(t *testing.T) {
	c, add := crGraph(t, func(b *iml.Builder, c *iml.Context) {
		b.Macro(iml.MacroBLR, 0, 0)
	})

	OptimizeCRBits(context.Background(), c)

	assert.Zero(t, add.CR.IgnoreMask)
}

func TestCRLoopTerminates(t *testing.T) {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s0 := c.NewSegment()
	r := c.NewReg(iml.FormatI32, iml.NameGPR(3))
	cond := c.NewReg(iml.FormatI32, iml.NameNone)

	add := &iml.RRS32{Op: iml.OpAdd, Dst: r, A: r, Imm: 1, CR: iml.CRUpdate{Enabled: true, Field: 1}}

	s1 := c.NewSegment()

	b.Begin(s0).
		Emit(add).
		CmpImm(iml.CondLTS, cond, r, 10).
		CondJump(cond, true, s0, s1)

	b.Begin(s1).Macro(iml.MacroBLR, 0, 0)

	OptimizeCRBits(context.Background(), c)

	assert.Zero(t, add.CR.IgnoreMask, "exit path observes cr1")
}

func TestCRRemovesDeadStores(t *testing.T) {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s := c.NewSegment()
	r := c.NewReg(iml.FormatI32, iml.NameGPR(3))

	b.Begin(s).
		StoreName(iml.NameCR(2), r).
		Emit(&iml.CRLogic{Op: iml.OpCROr, D: 1, A: 4, B: 5}).
		Emit(&iml.RRS32{Op: iml.OpAdd, Dst: r, A: r, Imm: 1, CR: iml.CRUpdate{Enabled: true, Field: 0}}).
		Macro(iml.MacroBLR, 0, 0)

	OptimizeCRBits(context.Background(), c)

	require.Len(t, s.Instrs, 2)
	assert.IsType(t, &iml.RRS32{}, s.Instrs[0])

	assert.Equal(t, uint32(0xf), s.CRWritten&0xf)
}

func TestGQRSpecialization(t *testing.T) {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s := c.NewSegment()
	base := c.NewReg(iml.FormatI32, iml.NameGPR(3))
	gqr := c.NewReg(iml.FormatI32, iml.NameNone)
	f := c.NewReg(iml.FormatF64, iml.NameFPR(1))
	f2 := c.NewReg(iml.FormatF64, iml.NameFPRPS1(1))

	l0 := &iml.FPRLoad{Dst: f, Dst2: f2, Base: base, GQR: gqr, GQRIndex: 0, Mode: iml.FPRModePSGeneric}
	l2 := &iml.FPRLoad{Dst: f, Dst2: f2, Base: base, GQR: gqr, GQRIndex: 2, Mode: iml.FPRModePSGeneric}
	l3 := &iml.FPRLoad{Dst: f, Dst2: f2, Base: base, GQR: gqr, GQRIndex: 3, Mode: iml.FPRModePSGeneric}
	s5 := &iml.FPRStore{Src: f, Src2: f2, Base: base, GQR: gqr, GQRIndex: 5, Mode: iml.FPRModePSGeneric}
	l7 := &iml.FPRLoad{Dst: f, Dst2: f2, Base: base, GQR: gqr, GQRIndex: 7, Mode: iml.FPRModePSGeneric}

	b.Begin(s).
		Emit(l0).
		Emit(l2).
		Emit(l3).
		Emit(s5).
		Emit(l7).
		StoreName(iml.NameSPR(iml.SPRUGQR0+3), base).
		Macro(iml.MacroBLR, 0, 0)

	OptimizeGQRLoadStore(context.Background(), c, config.Default())

	assert.Equal(t, iml.FPRModePSF32, l0.Mode)
	assert.False(t, l0.GQR.Valid())

	assert.Equal(t, iml.FPRModePSU8, l2.Mode)
	assert.False(t, l2.GQR.Valid())

	assert.Equal(t, iml.FPRModePSGeneric, l3.Mode, "gqr3 is written by the function")
	assert.True(t, l3.GQR.Valid())

	assert.Equal(t, iml.FPRModePSS16, s5.Mode)

	assert.Equal(t, iml.FPRModePSGeneric, l7.Mode, "gqr7 is unknown")
}

func TestGQR0Written(t *testing.T) {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s := c.NewSegment()
	base := c.NewReg(iml.FormatI32, iml.NameGPR(3))
	gqr := c.NewReg(iml.FormatI32, iml.NameNone)
	f := c.NewReg(iml.FormatF64, iml.NameFPR(1))
	f2 := c.NewReg(iml.FormatF64, iml.NameFPRPS1(1))

	l0 := &iml.FPRLoad{Dst: f, Dst2: f2, Base: base, GQR: gqr, GQRIndex: 0, Mode: iml.FPRModePSGeneric}
	s2 := &iml.FPRStore{Src: f, Src2: f2, Base: base, GQR: gqr, GQRIndex: 2, Mode: iml.FPRModePSGeneric}

	b.Begin(s).
		StoreName(iml.NameSPR(iml.SPRGQR0), base).
		Emit(l0).
		Emit(s2).
		Macro(iml.MacroBLR, 0, 0)

	OptimizeGQRLoadStore(context.Background(), c, config.Default())

	assert.Equal(t, iml.FPRModePSGeneric, l0.Mode, "gqr0 is written by the function")
	assert.True(t, l0.GQR.Valid())

	assert.Equal(t, iml.FPRModePSU8, s2.Mode)
}

func TestQuantScale(t *testing.T) {
	assert.Equal(t, int8(0), QuantScale(0))
	assert.Equal(t, int8(5), QuantScale(5))
	assert.Equal(t, int8(-1), QuantScale(0x3f))
	assert.Equal(t, int8(-32), QuantScale(0x20))
}

func flagGraph(t *testing.T, mustBeTrue bool, between func(b *iml.Builder, a iml.Reg)) (*iml.Segment, *iml.CompareS32) {
	t.Helper()

	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s0, s1, s2 := c.NewSegment(), c.NewSegment(), c.NewSegment()
	a := c.NewReg(iml.FormatI32, iml.NameGPR(3))
	x := c.NewReg(iml.FormatI32, iml.NameGPR(4))
	cond := c.NewReg(iml.FormatI32, iml.NameNone)

	cmp := &iml.CompareS32{Cond: iml.CondLTS, Dst: cond, A: a, Imm: 10}

	b.Begin(s0).Emit(cmp).RRI(iml.OpAdd, x, x, 1)
	between(b, a)
	b.CondJump(cond, mustBeTrue, s2, s1)

	b.Begin(s1).Macro(iml.MacroBLR, 0, 0)
	b.Begin(s2).Macro(iml.MacroBLR, 0, 0)

	ReorderForFlagReuse(context.Background(), c)

	require.NoError(t, c.Validate())

	return s0, cmp
}

func TestFlagReuse(t *testing.T) {
	s, _ := flagGraph(t, true, func(*iml.Builder, iml.Reg) {})

	require.Len(t, s.Instrs, 3)
	assert.IsType(t, &iml.RRS32{}, s.Instrs[0])
	assert.Equal(t, iml.CondLTS, s.Instrs[1].(*iml.CompareFlags).Cond)
	assert.True(t, s.Instrs[1].(*iml.CompareFlags).UseImm)
	assert.Equal(t, &iml.FlagsJump{Cond: iml.CondLTS}, s.Instrs[2])

	s, _ = flagGraph(t, false, func(*iml.Builder, iml.Reg) {})
	assert.Equal(t, &iml.FlagsJump{Cond: iml.CondGES}, s.Instrs[2])
}

func TestFlagReuseDependency(t *testing.T) {
	s, cmp := flagGraph(t, true, func(b *iml.Builder, a iml.Reg) {
		b.RRI(iml.OpAdd, a, a, 1)
	})

	assert.Same(t, cmp, s.Instrs[0])
	assert.IsType(t, &iml.CondJump{}, s.Suffix())
}

func TestDeadCode(t *testing.T) {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s := c.NewSegment()
	a := c.NewReg(iml.FormatI32, iml.NameGPR(3))
	tmp := c.NewReg(iml.FormatI32, iml.NameNone)
	used := c.NewReg(iml.FormatI32, iml.NameNone)

	b.Begin(s).
		RRI(iml.OpAdd, tmp, a, 1).
		RRI(iml.OpAdd, used, a, 2).
		RRI(iml.OpAdd, a, used, 0).
		Macro(iml.MacroBLR, 0, 0)

	RemoveDeadCode(context.Background(), c)

	require.Len(t, s.Instrs, 3)
	assert.Equal(t, used, s.Instrs[0].(*iml.RRS32).Dst)
}

func TestDeadCodeKeepsLoopCarried(t *testing.T) {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s0 := c.NewSegment()
	s1 := c.NewSegment()
	a := c.NewReg(iml.FormatI32, iml.NameGPR(3))
	acc := c.NewReg(iml.FormatI32, iml.NameNone)

	b.Begin(s0).
		RRR(iml.OpAdd, a, a, acc).
		RRI(iml.OpAdd, acc, a, 1).
		CondJump(a, true, s0, s1)
	b.Begin(s1).Macro(iml.MacroBLR, 0, 0)

	RemoveDeadCode(context.Background(), c)

	assert.Len(t, s0.Instrs, 3, "acc is read before written, so it is live around the loop")
}

func TestRun(t *testing.T) {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s := c.NewSegment()
	base := c.NewReg(iml.FormatI32, iml.NameGPR(3))
	r := c.NewReg(iml.FormatI32, iml.NameNone)

	b.Begin(s).
		Load(r, base, 0, 32).
		Store(r, base, 8, 32).
		Macro(iml.MacroBLR, 0, 0)

	o := config.Default()
	o.Passes.IntegerCopies = false

	err := Run(context.Background(), c, o)
	require.NoError(t, err)

	assert.Len(t, s.Instrs, 3)
	assert.True(t, s.Instrs[0].(*iml.Load).SwapEndian)
}
