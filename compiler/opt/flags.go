package opt

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/slowlang/ppcrec/compiler/iml"
)

// ReorderForFlagReuse moves a compare whose only consumer is the segment's
// conditional jump down to the jump and fuses both, so the backend branches
// on host flags instead of materializing a boolean.
func ReorderForFlagReuse(ctx context.Context, c *iml.Context) {
	tr := tlog.SpanFromContext(ctx)

	reads := readCounts(c)

	for _, s := range c.Segments {
		j, ok := s.Suffix().(*iml.CondJump)
		if !ok {
			continue
		}

		k := lastWriter(s, j.Cond)
		if k < 0 {
			continue
		}

		cmp, ok := fuseCompare(s.Instrs[k])
		if !ok {
			continue
		}

		if reads[j.Cond.ID()] != 1 || c.PeekRegName(j.Cond.ID()).Persistent() {
			continue
		}

		if !canSink(s.Instrs[k+1:len(s.Instrs)-1], cmp) {
			continue
		}

		cond := cmp.Cond
		if !j.MustBeTrue {
			cond = cond.Negate()
		}

		last := len(s.Instrs) - 1

		s.Instrs[last] = cmp
		s.AppendInstr(&iml.FlagsJump{Cond: cond})
		s.RemoveInstr(k)

		tr.V("opt_flags").Printw("compare fused", "seg", s.Index, "from", k, "cond", cond)
	}
}

func fuseCompare(x iml.Instr) (*iml.CompareFlags, bool) {
	switch x := x.(type) {
	case *iml.Compare:
		if x.A.Same(x.Dst) || x.B.Same(x.Dst) {
			return nil, false
		}

		return &iml.CompareFlags{Cond: x.Cond, A: x.A, B: x.B}, true
	case *iml.CompareS32:
		if x.A.Same(x.Dst) {
			return nil, false
		}

		return &iml.CompareFlags{Cond: x.Cond, A: x.A, Imm: x.Imm, UseImm: true}, true
	}

	return nil, false
}

// lastWriter returns the index of the last body instruction writing r.
func lastWriter(s *iml.Segment, r iml.Reg) int {
	var u iml.Usage

	for k := s.BodyLen() - 1; k >= 0; k-- {
		u.Reset()
		s.Instrs[k].Usage(&u)

		if u.IsWritten(r) {
			return k
		}
	}

	return -1
}

// canSink checks the compare operands keep their values over l
// and nothing in l is a barrier the compare may not pass.
func canSink(l []iml.Instr, cmp *iml.CompareFlags) bool {
	var u iml.Usage

	for _, x := range l {
		switch x.(type) {
		case *iml.Call, *iml.DebugBreak, *iml.AtomicCmpStore:
			return false
		}

		u.Reset()
		x.Usage(&u)

		if u.IsWritten(cmp.A) || cmp.B.Valid() && u.IsWritten(cmp.B) {
			return false
		}
	}

	return true
}

// readCounts counts every read of every virtual register in the function.
func readCounts(c *iml.Context) []int {
	cnt := make([]int, c.NumRegs())

	var u iml.Usage

	for _, s := range c.Segments {
		for _, x := range s.Instrs {
			u.Reset()
			x.Usage(&u)

			for _, r := range u.Reads {
				cnt[r.ID()]++
			}

			for _, r := range u.ReadWrites {
				cnt[r.ID()]++
			}
		}
	}

	return cnt
}
