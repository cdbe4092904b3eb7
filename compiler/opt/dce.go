package opt

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/slowlang/ppcrec/compiler/iml"
	"github.com/slowlang/ppcrec/compiler/set"
)

// RemoveDeadCode drops side effect free instructions whose results
// are segment local temporaries nobody reads.
//
// A register is segment local if it lives in one segment only,
// is not bound to guest state, and is written before it is read there.
func RemoveDeadCode(ctx context.Context, c *iml.Context) {
	tr := tlog.SpanFromContext(ctx)

	local := localTemporaries(c)

	var u iml.Usage

	for _, s := range c.Segments {
		var live set.Bits[iml.RegID]

		for i := len(s.Instrs) - 1; i >= 0; i-- {
			x := s.Instrs[i]

			u.Reset()
			x.Usage(&u)

			if !x.HasSideEffects() && len(u.Writes)+len(u.ReadWrites) != 0 && dead(u, local, live) {
				tr.V("opt_dce").Printw("dead instruction", "seg", s.Index, "instr", i, "type", tlog.FormatNext("%T"), x)

				s.RemoveInstr(i)

				continue
			}

			for _, r := range u.Writes {
				live.Clear(r.ID())
			}

			for _, r := range u.Reads {
				live.Set(r.ID())
			}

			for _, r := range u.ReadWrites {
				live.Set(r.ID())
			}
		}
	}
}

func dead(u iml.Usage, local []bool, live set.Bits[iml.RegID]) bool {
	for _, r := range u.Writes {
		if !local[r.ID()] || live.IsSet(r.ID()) {
			return false
		}
	}

	for _, r := range u.ReadWrites {
		if !local[r.ID()] || live.IsSet(r.ID()) {
			return false
		}
	}

	return true
}

func localTemporaries(c *iml.Context) []bool {
	n := c.NumRegs()

	seg := make([]int, n)
	local := make([]bool, n)

	for i := range seg {
		seg[i] = -1
		local[i] = !c.PeekRegName(iml.RegID(i)).Persistent()
	}

	var u iml.Usage

	for _, s := range c.Segments {
		for _, x := range s.Instrs {
			u.Reset()
			x.Usage(&u)

			for _, r := range u.Regs() {
				id := r.ID()

				switch {
				case seg[id] == -1:
					seg[id] = s.Index

					if u.IsRead(r) {
						local[id] = false
					}
				case seg[id] != s.Index:
					local[id] = false
				}
			}
		}
	}

	return local
}
