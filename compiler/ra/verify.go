package ra

import (
	"tlog.app/go/errors"

	"github.com/slowlang/ppcrec/compiler/iml"
)

// Verify checks the allocation: every range has a register of its pool,
// overlapping ranges of different clusters never share a register,
// fixed requirements and clobbers are respected.
func (res *Result) Verify() error {
	for _, s := range res.c.Segments {
		rs := res.a.segRanges(s)

		for i, r := range rs {
			pool := GPRPool
			if r.Float {
				pool = FPRPool
			}

			if !pool.Has(r.Phys) {
				return errors.New("seg %d: range %d of reg %d has no register: %d", s.Index, r.ID, r.Reg, r.Phys)
			}

			for _, f := range r.Fixed {
				if !f.Allowed.Has(r.Phys) {
					return errors.New("seg %d instr %d: reg %d in %d, want one of %#x", s.Index, f.Index, r.Reg, r.Phys, uint32(f.Allowed))
				}
			}

			if res.al.clobbered(r).Has(r.Phys) {
				return errors.New("seg %d: range %d of reg %d lives through a clobber of %d", s.Index, r.ID, r.Reg, r.Phys)
			}

			for _, x := range rs[i+1:] {
				if x.Float == r.Float && x.Phys == r.Phys && x.Cluster != r.Cluster && x.Overlaps(r) {
					return errors.New("seg %d: regs %d and %d share host reg %d at %d..%d and %d..%d",
						s.Index, r.Reg, x.Reg, r.Phys, r.Start, r.End, x.Start, x.End)
				}
			}
		}
	}

	return nil
}

// verifyEmitted checks nothing was placed after a segment suffix.
func verifyEmitted(c *iml.Context) error {
	for _, s := range c.Segments {
		for j, x := range s.Instrs {
			if iml.IsSuffix(x) && j != len(s.Instrs)-1 {
				return errors.New("seg %d: %T emitted after the suffix", s.Index, s.Instrs[j+1])
			}
		}
	}

	return nil
}
