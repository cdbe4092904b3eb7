package ra

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/ppcrec/compiler/asm/amd64"
	"github.com/slowlang/ppcrec/compiler/config"
	"github.com/slowlang/ppcrec/compiler/format"
	"github.com/slowlang/ppcrec/compiler/iml"
)

type transfers struct {
	loads, stores map[int]int // segment index -> count
}

func countTransfers(c *iml.Context, n iml.Name) (t transfers) {
	t.loads = map[int]int{}
	t.stores = map[int]int{}

	for _, s := range c.Segments {
		for _, x := range s.Instrs {
			switch x := x.(type) {
			case *iml.NameToReg:
				if x.Name == n {
					t.loads[s.Index]++
				}
			case *iml.RegToName:
				if x.Name == n {
					t.stores[s.Index]++
				}
			}
		}
	}

	return t
}

func allocate(t *testing.T, c *iml.Context, o *config.Options) *Result {
	t.Helper()

	if o == nil {
		o = config.Default()
	}

	res, err := Allocate(context.Background(), c, o)
	require.NoError(t, err)
	require.NoError(t, res.Verify())
	require.True(t, c.Allocated)

	return res
}

func TestLinePressure(t *testing.T) {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s := c.NewSegment()

	var regs []iml.Reg

	for i := 0; i < 16; i++ {
		r := c.NewReg(iml.FormatI32, iml.NameGPR(i))
		regs = append(regs, r)

		b.Begin(s).RRI(iml.OpAdd, r, r, int32(i))
	}

	acc := c.NewReg(iml.FormatI32, iml.NameGPR(31))

	b.MovImm(acc, 0)

	for _, r := range regs {
		b.RRR(iml.OpAdd, acc, acc, r)
	}

	b.Macro(iml.MacroBLR, 0, 0)

	allocate(t, c, nil)

	for _, x := range s.Instrs {
		var u iml.Usage
		x.Usage(&u)

		for _, r := range u.Regs() {
			assert.True(t, GPRPool.Has(PhysReg(r.ID())), "%v uses %v", x, r)
		}
	}

	for i := range regs {
		tr := countTransfers(c, iml.NameGPR(i))
		assert.GreaterOrEqual(t, tr.loads[0], 1, "r%d", i)
		assert.GreaterOrEqual(t, tr.stores[0], 1, "r%d", i)
	}
}

func TestDiamondConnected(t *testing.T) {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s0 := c.NewSegment()
	s1 := c.NewSegment()
	s2 := c.NewSegment()
	s3 := c.NewSegment()

	r3 := c.NewReg(iml.FormatI32, iml.NameGPR(3))
	r4 := c.NewReg(iml.FormatI32, iml.NameGPR(4))
	cond := c.NewReg(iml.FormatI32, iml.NameNone)

	b.Begin(s0).
		RRI(iml.OpAdd, r3, r3, 1).
		CmpImm(iml.CondEQ, cond, r3, 0).
		CondJump(cond, true, s2, s1)

	b.Begin(s1).
		RRI(iml.OpAdd, r3, r3, 2).
		Jump(s3)

	b.Begin(s2).
		RRI(iml.OpAdd, r3, r3, 3).
		FallThrough(s3)

	b.Begin(s3).
		RRR(iml.OpAdd, r4, r3, r3).
		Macro(iml.MacroBLR, 0, 0)

	res := allocate(t, c, nil)

	tr := countTransfers(c, iml.NameGPR(3))
	assert.Equal(t, map[int]int{0: 1}, tr.loads)
	assert.Equal(t, map[int]int{3: 1}, tr.stores)

	var phys []PhysReg

	for _, s := range c.Segments {
		for _, r := range res.Ranges(s.Index) {
			if r.Reg == r3.ID() {
				phys = append(phys, r.Phys)
			}
		}
	}

	require.Len(t, phys, 4)

	for _, p := range phys {
		assert.Equal(t, phys[0], p)
	}
}

func TestLoopStoreDelayed(t *testing.T) {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s0 := c.NewSegment()
	s1 := c.NewSegment()
	s2 := c.NewSegment()

	r3 := c.NewReg(iml.FormatI32, iml.NameGPR(3))
	cond := c.NewReg(iml.FormatI32, iml.NameNone)

	b.Begin(s0).FallThrough(s1)

	b.Begin(s1).
		RRI(iml.OpAdd, r3, r3, 1).
		CmpImm(iml.CondLTS, cond, r3, 100).
		CondJump(cond, true, s1, s2)

	b.Begin(s2).
		Macro(iml.MacroBLR, 0, 0)

	allocate(t, c, nil)

	assert.Equal(t, 0, s0.LoopDepth)
	assert.Equal(t, 1, s1.LoopDepth)
	assert.Equal(t, 0, s2.LoopDepth)

	tr := countTransfers(c, iml.NameGPR(3))
	assert.Equal(t, map[int]int{0: 1}, tr.loads, "preloaded before the loop")
	assert.Equal(t, map[int]int{2: 1}, tr.stores, "stored after the loop")

	require.NotEmpty(t, s2.Instrs)
	assert.IsType(t, &iml.RegToName{}, s2.Instrs[0])
}

func TestFixedRegisters(t *testing.T) {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s := c.NewSegment()

	a := c.NewReg(iml.FormatI32, iml.NameGPR(3))
	a2 := c.NewReg(iml.FormatI32, iml.NameGPR(4))
	keep := c.NewReg(iml.FormatI32, iml.NameGPR(6))
	cnt := c.NewReg(iml.FormatI32, iml.NameGPR(7))
	ret := c.NewReg(iml.FormatI32, iml.NameNone)

	call := &iml.Call{Target: 0x1000, Result: ret, Args: [3]iml.Reg{a, a2, iml.InvalidReg}}
	add := &iml.RRR{Op: iml.OpAdd, Dst: ret, A: ret, B: keep}
	shl := &iml.RRR{Op: iml.OpShl, Dst: ret, A: ret, B: cnt}

	b.Begin(s).
		RRI(iml.OpAdd, a, a, 1).
		RRI(iml.OpAdd, keep, keep, 2).
		Emit(call).
		Emit(add).
		Emit(shl).
		Mov(a, ret).
		Macro(iml.MacroBLR, 0, 0)

	allocate(t, c, nil)

	assert.Equal(t, iml.RegID(amd64.RDI), call.Args[0].ID())
	assert.Equal(t, iml.RegID(amd64.RSI), call.Args[1].ID())
	assert.Equal(t, iml.RegID(amd64.RAX), call.Result.ID())
	assert.Equal(t, iml.RegID(amd64.RCX), shl.B.ID())

	assert.Contains(t, []iml.RegID{iml.RegID(amd64.RBX), iml.RegID(amd64.R12)}, add.B.ID(), "lives across the call")
}

func TestCallResultAliasesArg(t *testing.T) {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s := c.NewSegment()

	a := c.NewReg(iml.FormatI32, iml.NameGPR(3))
	a2 := c.NewReg(iml.FormatI32, iml.NameGPR(4))

	call := &iml.Call{Target: 0x1000, Result: a, Args: [3]iml.Reg{a, a2, a}}

	b.Begin(s).
		RRI(iml.OpAdd, a, a, 1).
		Emit(call).
		Macro(iml.MacroBLR, 0, 0)

	allocate(t, c, nil)

	assert.Equal(t, iml.RegID(amd64.RDI), call.Args[0].ID())
	assert.Equal(t, iml.RegID(amd64.RSI), call.Args[1].ID())
	assert.Equal(t, iml.RegID(amd64.RDX), call.Args[2].ID())
	assert.Equal(t, iml.RegID(amd64.RAX), call.Result.ID())

	at := slices.Index(s.Instrs, iml.Instr(call))
	require.GreaterOrEqual(t, at, 0)
	require.Less(t, at+1, len(s.Instrs))

	mov, ok := s.Instrs[at+1].(*iml.RR)
	require.True(t, ok, "result copied out: %v", s.Instrs[at+1])
	assert.Equal(t, iml.OpAssign, mov.Op)
	assert.Equal(t, iml.RegID(amd64.RAX), mov.A.ID())
}

func TestAtomicExpectedAliasesAddress(t *testing.T) {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s := c.NewSegment()

	ea := c.NewReg(iml.FormatI32, iml.NameGPR(3))
	val := c.NewReg(iml.FormatI32, iml.NameGPR(4))
	res := c.NewReg(iml.FormatI32, iml.NameGPR(5))

	cas := &iml.AtomicCmpStore{Result: res, EA: ea, Expected: ea, New: val}

	b.Begin(s).
		Emit(cas).
		Macro(iml.MacroBLR, 0, 0)

	allocate(t, c, nil)

	assert.Equal(t, iml.RegID(amd64.RAX), cas.Expected.ID())
	assert.NotEqual(t, iml.RegID(amd64.RAX), cas.EA.ID())
	assert.NotEqual(t, iml.RegID(amd64.RAX), cas.New.ID())
}

func TestAvailableHoleIgnoresEarlierClobber(t *testing.T) {
	c := iml.NewContext()
	s := c.NewSegment()

	al := &allocator{c: c, o: config.Default()}
	al.clobbers = []map[int]hostConstraints{{0: {clobber: GPRVolatile}}}

	r := al.a.newRange(s, 1, false)
	r.Locs = []Loc{{Index: 2, Write: true}, {Index: 3, Read: true}, {Index: 6, Read: true}}
	r.Start = WritePos(2)
	r.End = ReadPos(6)

	for p := PhysReg(0); p < 16; p++ {
		if !GPRPool.Has(p) {
			continue
		}

		x := al.a.newRange(s, iml.RegID(2+p), false)
		x.Locs = []Loc{{Index: 5, Read: true}, {Index: 7, Read: true}}
		x.Start = ReadPos(5)
		x.End = ReadPos(7)
		x.Phys = p
	}

	var apply func()

	al.availableHole(r, GPRPool, 1, func(_ string, _ int, f func()) { apply = f })
	require.NotNil(t, apply)

	apply()

	assert.Equal(t, PhysReg(amd64.RAX), r.Phys)
	assert.Len(t, r.Locs, 2)
	assert.Equal(t, ReadPos(3), r.End)
}

func TestShiftCountConstraint(t *testing.T) {
	shl := &iml.RRR{Op: iml.OpShl, Dst: iml.GPR32(1), A: iml.GPR32(1), B: iml.GPR32(2)}

	hc := constraintsOf(shl, config.Features{})
	require.Len(t, hc.reqs, 1)
	assert.Equal(t, fixedReq{shl.B, Only(amd64.RCX)}, hc.reqs[0])

	hc = constraintsOf(shl, config.Features{BMI2: true})
	assert.Empty(t, hc.reqs)

	rotl := &iml.RRR{Op: iml.OpRotl, Dst: iml.GPR32(1), A: iml.GPR32(1), B: iml.GPR32(2)}

	hc = constraintsOf(rotl, config.Features{BMI2: true})
	assert.Len(t, hc.reqs, 1, "no rotate by register in BMI2")

	div := &iml.RRR{Op: iml.OpDivU, Dst: iml.GPR32(1), A: iml.GPR32(1), B: iml.GPR32(2)}

	hc = constraintsOf(div, config.Features{})
	assert.Equal(t, Regs(amd64.RAX, amd64.RDX), hc.clobber)
}

func TestContradictingFixed(t *testing.T) {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s := c.NewSegment()

	v := c.NewReg(iml.FormatI32, iml.NameGPR(5))
	r := c.NewReg(iml.FormatI32, iml.NameGPR(6))

	call := &iml.Call{Target: 0x2000, Args: [3]iml.Reg{v}}
	shl := &iml.RRR{Op: iml.OpShl, Dst: r, A: r, B: v}

	b.Begin(s).
		Emit(call).
		Emit(shl).
		Macro(iml.MacroBLR, 0, 0)

	allocate(t, c, nil)

	assert.Equal(t, iml.RegID(amd64.RDI), call.Args[0].ID())
	assert.Equal(t, iml.RegID(amd64.RCX), shl.B.ID())
}

func TestReshapeBuffer(t *testing.T) {
	c := iml.NewContext()
	b := iml.NewBuilder(c)

	s0 := c.NewSegment()
	s1 := c.NewSegment()
	s2 := c.NewSegment()

	cond := c.NewReg(iml.FormatI32, iml.NameGPR(3))

	b.Begin(s0).CondJump(cond, true, s2, s1)
	b.Begin(s1).FallThrough(s2)
	b.Begin(s2).Macro(iml.MacroBLR, 0, 0)

	// s0 -> s2 taken and s0 -> s1 -> s2: s1 has one predecessor, no buffer
	reshape(context.Background(), c)
	require.Len(t, c.Segments, 3)

	c2 := iml.NewContext()
	b = iml.NewBuilder(c2)

	t0 := c2.NewSegment()
	t1 := c2.NewSegment()
	t2 := c2.NewSegment()

	cond = c2.NewReg(iml.FormatI32, iml.NameGPR(3))

	b.Begin(t0).CondJump(cond, true, t2, t1)
	b.Begin(t1).CondJump(cond, false, t0, t2)
	b.Begin(t2).Macro(iml.MacroBLR, 0, 0)

	reshape(context.Background(), c2)
	require.NoError(t, c2.Validate())

	require.Len(t, c2.Segments, 4)
	buf := c2.Segments[2]
	assert.Empty(t, buf.Instrs)
	assert.Same(t, buf, t1.Next)
	assert.Same(t, t2, buf.Next)

	assert.Equal(t, 1, t0.LoopDepth)
	assert.Equal(t, 1, t1.LoopDepth)
	assert.Equal(t, 0, t2.LoopDepth)
}

func TestArenaSplit(t *testing.T) {
	c := iml.NewContext()
	s := c.NewSegment()

	var a arena

	r := a.newRange(s, 1, false)
	r.Locs = []Loc{{Index: 0, Write: true}, {Index: 3, Read: true}, {Index: 7, Read: true, Write: true}}
	r.Fixed = []Fixed{{Index: 7, Allowed: Only(amd64.RCX)}}
	r.Start = r.Locs[0].First()
	r.End = r.Locs[2].Last()

	tail := a.split(r, 2)

	assert.Equal(t, WritePos(0), r.Start)
	assert.Equal(t, ReadPos(3), r.End)
	assert.Empty(t, r.Fixed)

	assert.Equal(t, ReadPos(7), tail.Start)
	assert.Equal(t, WritePos(7), tail.End)
	assert.Equal(t, []Fixed{{Index: 7, Allowed: Only(amd64.RCX)}}, tail.Fixed)
	assert.Equal(t, NoPhys, tail.Phys)
	assert.False(t, r.Overlaps(tail))
}

func TestDeterministic(t *testing.T) {
	build := func() *iml.Context {
		c := iml.NewContext()
		b := iml.NewBuilder(c)

		s0 := c.NewSegment()
		s1 := c.NewSegment()
		s2 := c.NewSegment()

		var regs []iml.Reg
		for i := 0; i < 14; i++ {
			regs = append(regs, c.NewReg(iml.FormatI32, iml.NameGPR(i)))
		}

		cond := c.NewReg(iml.FormatI32, iml.NameNone)

		b.Begin(s0)
		for _, r := range regs {
			b.RRI(iml.OpAdd, r, r, 1)
		}

		b.FallThrough(s1)

		b.Begin(s1)
		for i := range regs[1:] {
			b.RRR(iml.OpXor, regs[i], regs[i], regs[i+1])
		}

		b.CmpImm(iml.CondNE, cond, regs[0], 0).
			CondJump(cond, true, s1, s2)

		b.Begin(s2).Macro(iml.MacroBLR, 0, 0)

		return c
	}

	dump := func(c *iml.Context) (l []string) {
		for _, s := range c.Segments {
			for _, x := range s.Instrs {
				l = append(l, string(format.AppendInstr(nil, c, x)))
			}
		}

		return l
	}

	c1, c2 := build(), build()

	allocate(t, c1, nil)
	allocate(t, c2, nil)

	assert.Equal(t, dump(c1), dump(c2))
}
