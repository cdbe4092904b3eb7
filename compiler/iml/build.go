package iml

// Builder appends instructions to a segment.
// It is what front-ends and tests use to produce well formed IML.
type Builder struct {
	*Context
	Seg *Segment
}

func NewBuilder(c *Context) *Builder {
	return &Builder{Context: c}
}

// Begin starts emitting into s.
func (b *Builder) Begin(s *Segment) *Builder {
	b.Seg = s
	return b
}

func (b *Builder) add(x Instr) *Builder {
	Assert(b.Seg != nil, "builder has no segment")
	Assert(b.Seg.Suffix() == nil, "segment %d already ends with a suffix", b.Seg.Index)

	b.Seg.AppendInstr(x)

	return b
}

func (b *Builder) Emit(x Instr) *Builder { return b.add(x) }

func (b *Builder) LoadName(dst Reg, n Name) *Builder {
	return b.add(&NameToReg{Dst: dst, Name: n})
}

func (b *Builder) StoreName(n Name, src Reg) *Builder {
	return b.add(&RegToName{Name: n, Src: src})
}

func (b *Builder) Mov(dst, a Reg) *Builder {
	return b.add(&RR{Op: OpAssign, Dst: dst, A: a})
}

func (b *Builder) R(op Op, dst, a Reg) *Builder {
	return b.add(&RR{Op: op, Dst: dst, A: a})
}

func (b *Builder) RRR(op Op, dst, a, c Reg) *Builder {
	return b.add(&RRR{Op: op, Dst: dst, A: a, B: c})
}

func (b *Builder) RRI(op Op, dst, a Reg, imm int32) *Builder {
	return b.add(&RRS32{Op: op, Dst: dst, A: a, Imm: imm})
}

func (b *Builder) MovImm(dst Reg, imm int32) *Builder {
	return b.add(&RS32{Op: OpAssign, Dst: dst, Imm: imm})
}

func (b *Builder) Cmp(c Cond, dst, a, x Reg) *Builder {
	return b.add(&Compare{Cond: c, Dst: dst, A: a, B: x})
}

func (b *Builder) CmpImm(c Cond, dst, a Reg, imm int32) *Builder {
	return b.add(&CompareS32{Cond: c, Dst: dst, A: a, Imm: imm})
}

func (b *Builder) Load(dst, base Reg, off int32, size uint8) *Builder {
	return b.add(&Load{Dst: dst, Base: base, Offset: off, Size: size, SwapEndian: size > 8})
}

func (b *Builder) Store(src, base Reg, off int32, size uint8) *Builder {
	return b.add(&Store{Src: src, Base: base, Offset: off, Size: size, SwapEndian: size > 8})
}

// CondJump ends the segment with a conditional branch to taken,
// falling through to next.
func (b *Builder) CondJump(cond Reg, mustBeTrue bool, taken, next *Segment) *Builder {
	b.add(&CondJump{Cond: cond, MustBeTrue: mustBeTrue})

	b.Seg.SetLinkBranchTaken(taken)
	b.Seg.SetLinkBranchNotTaken(next)

	return b
}

func (b *Builder) Jump(taken *Segment) *Builder {
	b.add(&Jump{})

	b.Seg.SetLinkBranchTaken(taken)

	return b
}

// FallThrough links the segment to next without a suffix.
func (b *Builder) FallThrough(next *Segment) *Builder {
	b.Seg.SetLinkBranchNotTaken(next)
	return b
}

func (b *Builder) Macro(op MacroOp, param, param2 uint32) *Builder {
	return b.add(&Macro{Op: op, Param: param, Param2: param2})
}
