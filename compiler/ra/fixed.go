package ra

import (
	"context"
	"slices"

	"tlog.app/go/tlog"

	"github.com/slowlang/ppcrec/compiler/asm/amd64"
	"github.com/slowlang/ppcrec/compiler/config"
	"github.com/slowlang/ppcrec/compiler/iml"
)

type (
	fixedReq struct {
		reg     iml.Reg
		allowed PhysSet
	}

	// hostConstraints is what one instruction demands from the host registers.
	hostConstraints struct {
		reqs []fixedReq

		// clobbered registers lose their value inside the instruction
		clobber  PhysSet
		clobberF PhysSet
	}
)

// constraintsOf is the fixed register table of the x86-64 backend.
func constraintsOf(x iml.Instr, f config.Features) (hc hostConstraints) {
	switch x := x.(type) {
	case *iml.RRR:
		switch x.Op {
		case iml.OpShl, iml.OpShrU, iml.OpShrS:
			if !f.BMI2 {
				hc.reqs = append(hc.reqs, fixedReq{x.B, Only(amd64.RCX)})
			}
		case iml.OpRotl:
			hc.reqs = append(hc.reqs, fixedReq{x.B, Only(amd64.RCX)})
		case iml.OpDivS, iml.OpDivU, iml.OpMulHiS, iml.OpMulHiU:
			hc.clobber = Regs(amd64.RAX, amd64.RDX)
			hc.reqs = append(hc.reqs, fixedReq{x.B, GPRPool &^ hc.clobber})
		}
	case *iml.AtomicCmpStore:
		hc.clobber = Only(amd64.RAX)
		hc.reqs = append(hc.reqs,
			fixedReq{x.Expected, Only(amd64.RAX)},
			fixedReq{x.EA, GPRPool &^ hc.clobber},
			fixedReq{x.New, GPRPool &^ hc.clobber},
		)
	case *iml.FPRLoad:
		if x.Mode == iml.FPRModePSGeneric {
			hc.clobber = GPRVolatile
			hc.clobberF = FPRVolatile
			hc.reqs = append(hc.reqs, fixedReq{x.GQR, Only(amd64.RSI)})
		}
	case *iml.FPRStore:
		if x.Mode == iml.FPRModePSGeneric {
			hc.clobber = GPRVolatile
			hc.clobberF = FPRVolatile
			hc.reqs = append(hc.reqs, fixedReq{x.GQR, Only(amd64.RSI)})
		}
	case *iml.Call:
		hc.clobber = GPRVolatile
		hc.clobberF = FPRVolatile

		for i, r := range x.Args {
			if r.Valid() {
				hc.reqs = append(hc.reqs, fixedReq{r, Only(CallArgs[i])})
			}
		}

		if x.Result.Valid() {
			hc.reqs = append(hc.reqs, fixedReq{x.Result, Only(amd64.RAX)})
		}
	}

	return hc
}

// separateFixed gives every fixed operand slot of an instruction its own
// virtual register, so one range never needs two host registers at once.
// A call result aliasing an argument gets a fresh register copied back after
// the call, a register passed twice or as both compare and address operand
// of an atomic is copied before the instruction.
func separateFixed(ctx context.Context, c *iml.Context) {
	tr := tlog.SpanFromContext(ctx)

	copyIn := func(s *iml.Segment, i int, r *iml.Reg) int {
		tmp := c.NewReg(r.Format(), iml.NameNone)
		s.InsertInstr(i, &iml.RR{Op: iml.OpAssign, Dst: tmp, A: *r})
		*r = tmp

		return i + 1
	}

	for _, s := range c.Segments {
		for i := 0; i < len(s.Instrs); i++ {
			switch x := s.Instrs[i].(type) {
			case *iml.Call:
				for k := range x.Args {
					for j := 0; j < k; j++ {
						if x.Args[k].Valid() && x.Args[k].Same(x.Args[j]) {
							i = copyIn(s, i, &x.Args[k])

							tr.V("ra_reshape").Printw("call argument copied", "seg", s.Index, "arg", k)

							break
						}
					}
				}

				if !x.Result.Valid() || !slices.ContainsFunc(x.Args[:], x.Result.Same) {
					continue
				}

				res := x.Result
				tmp := c.NewReg(res.Format(), iml.NameNone)
				x.Result = tmp

				s.InsertInstr(i+1, &iml.RR{Op: iml.OpAssign, Dst: res, A: tmp})
				i++

				tr.V("ra_reshape").Printw("call result separated", "seg", s.Index, "reg", res)
			case *iml.AtomicCmpStore:
				if x.Expected.Same(x.EA) || x.Expected.Same(x.New) {
					i = copyIn(s, i, &x.Expected)
				}
			}
		}
	}
}

// collectFixed attaches fixed requirements to the ranges accessing
// the register at the instruction and returns per segment clobber tables.
func (al *allocator) collectFixed() {
	al.clobbers = make([]map[int]hostConstraints, len(al.c.Segments))

	for _, s := range al.c.Segments {
		rs := al.a.segRanges(s)

		for i, x := range s.Instrs {
			hc := constraintsOf(x, al.o.Features)
			if len(hc.reqs) == 0 && hc.clobber == 0 && hc.clobberF == 0 {
				continue
			}

			if al.clobbers[s.Index] == nil {
				al.clobbers[s.Index] = map[int]hostConstraints{}
			}

			al.clobbers[s.Index][i] = hc

			for _, q := range hc.reqs {
				r := findAccess(rs, q.reg.ID(), i)
				iml.Assert(r != nil, "seg %d instr %d: no range for fixed reg %v", s.Index, i, q.reg)

				r.Fixed = append(r.Fixed, Fixed{Index: i, Allowed: q.allowed})
			}
		}
	}
}

func findAccess(rs []*Range, reg iml.RegID, i int) *Range {
	for _, r := range rs {
		if r.Reg != reg {
			continue
		}

		_, ok := slices.BinarySearchFunc(r.Locs, i, func(l Loc, i int) int { return l.Index - i })
		if ok {
			return r
		}
	}

	return nil
}

// clobbered returns the host registers r can't hold because
// an instruction inside it destroys them.
func (al *allocator) clobbered(r *Range) (s PhysSet) {
	for i, hc := range al.clobbers[r.Seg.Index] {
		if !r.Covers(ReadPos(i)) || !r.Covers(WritePos(i)) || r.writesAt(i) {
			continue
		}

		if r.Float {
			s |= hc.clobberF
		} else {
			s |= hc.clobber
		}
	}

	return s
}

// resolveFixed makes fixed requirements satisfiable:
// connected ranges with requirements are exploded into segment local ones,
// ranges with contradicting requirements are cut around each requirement,
// and ranges allowing a single register get it in advance.
func (al *allocator) resolveFixed(ctx context.Context) {
	tr := tlog.SpanFromContext(ctx)

	for _, r := range al.a.ranges {
		if r.dead || len(r.Fixed) == 0 || al.a.local(r) {
			continue
		}

		al.explode(r)
	}

	var queue []*Range

	for _, r := range al.a.ranges {
		if !r.dead && len(r.Fixed) != 0 {
			queue = append(queue, r)
		}
	}

	for len(queue) != 0 {
		r := queue[0]
		queue = queue[1:]

		if r.Allowed(al.pool(r))&^al.clobbered(r) == 0 {
			tr.V("ra_split").Printw("contradicting fixed requirements", "range", r)

			queue = append(queue, al.isolateFixed(r)...)

			continue
		}

		p, ok := r.Allowed(al.pool(r)).Single()
		if !ok {
			continue
		}

		if x := al.assignedConflict(r, p); x != nil {
			tr.V("ra_split").Printw("fixed register taken", "range", r, "by", x)

			iml.Assert(len(x.Fixed) != 0, "pre-assigned range without requirements")

			x.Phys = NoPhys

			queue = append(queue, al.isolateFixed(r)...)
			queue = append(queue, al.isolateFixed(x)...)

			continue
		}

		r.Phys = p

		tr.V("ra_assign").Printw("pre-assigned", "range", r, "phys", p)
	}
}

// assignedConflict finds an assigned range in the same segment overlapping r holding p.
func (al *allocator) assignedConflict(r *Range, p PhysReg) *Range {
	for _, x := range al.a.segRanges(r.Seg) {
		if x != r && x.Float == r.Float && x.Phys == p && x.Overlaps(r) {
			return x
		}
	}

	return nil
}

// isolateFixed cuts r so every location with a requirement is a range of its own.
// Returns the pieces which still have requirements.
func (al *allocator) isolateFixed(r *Range) (res []*Range) {
	iml.Assert(al.a.local(r), "isolating connected range %v", r.ID)

	cur := r

	for {
		k := slices.IndexFunc(cur.Locs, func(l Loc) bool { return fixedAt(cur, l.Index) })
		if k < 0 {
			break
		}

		if k > 0 {
			cur = al.a.split(cur, k)
			continue
		}

		if len(cur.Locs) == 1 {
			res = append(res, cur)
			break
		}

		next := al.a.split(cur, 1)
		res = append(res, cur)
		cur = next
	}

	if len(res) == 1 && res[0] == r && len(r.Locs) == 1 {
		iml.Assert(r.Allowed(al.pool(r))&^al.clobbered(r) != 0, "unsatisfiable fixed requirement at seg %d instr %d", r.Seg.Index, r.Locs[0].Index)
	}

	return res
}

func fixedAt(r *Range, i int) bool {
	return slices.ContainsFunc(r.Fixed, func(f Fixed) bool { return f.Index == i })
}
