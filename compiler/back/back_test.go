package back

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/arch/x86/x86asm"

	"github.com/slowlang/ppcrec/compiler/config"
	"github.com/slowlang/ppcrec/compiler/iml"
	"github.com/slowlang/ppcrec/compiler/ra"
)

type decoded struct {
	pc   int
	inst x86asm.Inst
}

func disasm(t *testing.T, code []byte) (r []decoded) {
	t.Helper()

	for pc := 0; pc < len(code); {
		inst, err := x86asm.Decode(code[pc:], 64)
		require.NoError(t, err, "at %#x: % x", pc, code[pc:min(pc+16, len(code))])
		require.NotZero(t, inst.Op, "at %#x: truncated % x", pc, code[pc:min(pc+16, len(code))])

		r = append(r, decoded{pc: pc, inst: inst})
		pc += inst.Len
	}

	return r
}

func ops(insts []decoded) map[x86asm.Op]int {
	m := map[x86asm.Op]int{}

	for _, d := range insts {
		m[d.inst.Op]++
	}

	return m
}

func generate(t *testing.T, c *iml.Context, o *config.Options) *Native {
	t.Helper()

	if o == nil {
		o = config.Default()
	}

	ctx := context.Background()

	_, err := ra.Allocate(ctx, c, o)
	require.NoError(t, err)

	n, err := Generate(ctx, c, o)
	require.NoError(t, err)

	return n
}

// loop builds a counted loop over r3 that returns through LR.
func loop() (*iml.Context, *iml.Segment) {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s0 := c.NewSegment()
	s1 := c.NewSegment()

	s0.Enterable = true
	s0.EnterAddr = 0x8000_1000

	r3 := c.NewReg(iml.FormatI32, iml.NameGPR(3))
	cond := c.NewReg(iml.FormatI32, iml.NameNone)

	b.Begin(s0).
		RRI(iml.OpAdd, r3, r3, 1).
		CmpImm(iml.CondLTS, cond, r3, 10).
		CondJump(cond, true, s0, s1)

	b.Begin(s1).
		Macro(iml.MacroBLR, 0, 0)

	return c, s0
}

func TestGenerateLoop(t *testing.T) {
	c, s0 := loop()
	n := generate(t, c, nil)

	require.Len(t, n.SegmentOffsets, len(c.Segments))
	assert.Equal(t, 0, n.SegmentOffsets[0])
	assert.Equal(t, map[uint32]int{0x8000_1000: n.SegmentOffsets[s0.Index]}, n.Entries)

	starts := map[int]bool{}
	for _, off := range n.SegmentOffsets {
		starts[off] = true
	}

	insts := disasm(t, n.Code)

	jumps := 0

	for _, d := range insts {
		switch d.inst.Op {
		case x86asm.JMP, x86asm.JNE, x86asm.JE:
		default:
			continue
		}

		rel, ok := d.inst.Args[0].(x86asm.Rel)
		if !ok {
			continue // jump table
		}

		jumps++

		target := d.pc + d.inst.Len + int(rel)
		assert.True(t, starts[target], "jump at %#x to %#x is not a segment start", d.pc, target)
	}

	assert.NotZero(t, jumps)

	m := ops(insts)
	assert.NotZero(t, m[x86asm.CMP])
	assert.NotZero(t, m[x86asm.SETL])
}

func TestGenerateUnallocated(t *testing.T) {
	c, _ := loop()

	_, err := Generate(context.Background(), c, config.Default())
	assert.Error(t, err)
}

func TestGenerateUnsupported(t *testing.T) {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s := c.NewSegment()

	r3 := c.NewReg(iml.FormatI32, iml.NameGPR(3))
	r4 := c.NewReg(iml.FormatI32, iml.NameGPR(4))

	b.Begin(s).
		Emit(&iml.Load{Dst: r4, Base: r3, Size: 64}).
		Macro(iml.MacroBLR, 0, 0)

	o := config.Default()

	_, err := ra.Allocate(context.Background(), c, o)
	require.NoError(t, err)

	_, err = Generate(context.Background(), c, o)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func memoryAccess() *iml.Context {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s := c.NewSegment()

	r3 := c.NewReg(iml.FormatI32, iml.NameGPR(3))
	r4 := c.NewReg(iml.FormatI32, iml.NameGPR(4))
	r5 := c.NewReg(iml.FormatI32, iml.NameGPR(5))

	b.Begin(s).
		Load(r4, r3, 8, 32).
		Load(r5, r3, 12, 16).
		RRR(iml.OpAdd, r4, r4, r5).
		Store(r4, r3, 16, 32).
		Macro(iml.MacroBLR, 0, 0)

	return c
}

func TestGenerateMemoryFeatures(t *testing.T) {
	n := generate(t, memoryAccess(), nil)
	m := ops(disasm(t, n.Code))

	assert.Zero(t, m[x86asm.MOVBE])
	assert.Equal(t, 2, m[x86asm.BSWAP])
	assert.Equal(t, 1, m[x86asm.ROR])

	o := config.Default()
	o.Features.MOVBE = true

	n = generate(t, memoryAccess(), o)
	m = ops(disasm(t, n.Code))

	assert.Equal(t, 3, m[x86asm.MOVBE])
	assert.Zero(t, m[x86asm.BSWAP])
	assert.Zero(t, m[x86asm.ROR])
}

func TestGenerateDivide(t *testing.T) {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s := c.NewSegment()

	r3 := c.NewReg(iml.FormatI32, iml.NameGPR(3))
	r4 := c.NewReg(iml.FormatI32, iml.NameGPR(4))
	r5 := c.NewReg(iml.FormatI32, iml.NameGPR(5))

	b.Begin(s).
		RRR(iml.OpDivS, r5, r3, r4).
		Macro(iml.MacroBLR, 0, 0)

	n := generate(t, c, nil)
	insts := disasm(t, n.Code)
	m := ops(insts)

	assert.Equal(t, 1, m[x86asm.IDIV])
	assert.Equal(t, 1, m[x86asm.CDQ])
	assert.Equal(t, 1, m[x86asm.NEG])

	for _, d := range insts {
		if d.inst.Op != x86asm.IDIV {
			continue
		}

		assert.NotEqual(t, x86asm.EAX, d.inst.Args[0])
		assert.NotEqual(t, x86asm.EDX, d.inst.Args[0])
	}
}

func TestGenerateCtiwzSaturates(t *testing.T) {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s := c.NewSegment()

	f1 := c.NewReg(iml.FormatF64, iml.NameFPR(1))

	b.Begin(s).
		Emit(&iml.FPRUnary{Op: iml.OpFCtiwz, Reg: f1}).
		Macro(iml.MacroBLR, 0, 0)

	n := generate(t, c, nil)
	insts := disasm(t, n.Code)
	m := ops(insts)

	assert.Equal(t, 1, m[x86asm.MINSD])
	assert.Equal(t, 1, m[x86asm.CVTTSD2SI])

	var limit bool
	var seen []x86asm.Op

	for _, d := range insts {
		if d.inst.Op == x86asm.MOV && d.inst.Args[1] == x86asm.Imm(0x41df_ffff_ffc0_0000) {
			limit = true
		}

		if d.inst.Op == x86asm.MINSD || d.inst.Op == x86asm.CVTTSD2SI {
			seen = append(seen, d.inst.Op)
		}
	}

	assert.True(t, limit, "max int32 constant loaded")
	assert.Equal(t, []x86asm.Op{x86asm.MINSD, x86asm.CVTTSD2SI}, seen)
}

func TestGenerateFloatCompare(t *testing.T) {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s := c.NewSegment()

	f1 := c.NewReg(iml.FormatF64, iml.NameFPR(1))
	f2 := c.NewReg(iml.FormatF64, iml.NameFPR(2))

	b.Begin(s).
		Emit(&iml.FPRRRR{Op: iml.OpFSub, Dst: f1, A: f2, B: f1}).
		Emit(&iml.FPRCompare{A: f1, B: f2, CR: iml.CRUpdate{Enabled: true, Field: 1}}).
		Macro(iml.MacroBLR, 0, 0)

	n := generate(t, c, nil)
	insts := disasm(t, n.Code)
	m := ops(insts)

	assert.Equal(t, 1, m[x86asm.UCOMISD])
	assert.Equal(t, 1, m[x86asm.SUBSD])
	assert.Equal(t, 1, m[x86asm.SETB])
	assert.Equal(t, 1, m[x86asm.SETA])
	assert.Equal(t, 1, m[x86asm.SETE])
	assert.Equal(t, 1, m[x86asm.SETP])
	assert.Equal(t, 1, m[x86asm.SETNP])
	assert.Equal(t, 2, m[x86asm.AND])

	// setcc before the parity fixup
	var seen []x86asm.Op

	for _, d := range insts {
		switch d.inst.Op {
		case x86asm.SETB, x86asm.SETNP, x86asm.AND:
			seen = append(seen, d.inst.Op)
		}
	}

	assert.Equal(t, []x86asm.Op{x86asm.SETB, x86asm.SETNP, x86asm.AND, x86asm.AND}, seen)
}

func TestGenerateDeterministic(t *testing.T) {
	c1, _ := loop()
	c2, _ := loop()

	n1 := generate(t, c1, nil)
	n2 := generate(t, c2, nil)

	assert.Equal(t, n1.Code, n2.Code)
	assert.Equal(t, n1.SegmentOffsets, n2.SegmentOffsets)
}
