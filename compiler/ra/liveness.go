package ra

import (
	"context"
	"slices"

	"tlog.app/go/tlog"

	"github.com/slowlang/ppcrec/compiler/iml"
)

// Lookahead is how far from the end of a segment the last use may be
// for the register to be kept live into the successor.
const Lookahead = 45

// usage is the abstract liveness of one register in one segment:
// every access plus the decisions of stitching.
type usage struct {
	reg  iml.RegID
	locs []Loc

	connIn  bool // value arrives from all predecessors
	connOut bool // value stays in the register past the suffix
	preload bool // loaded before the suffix for a loop header
	exitExt bool // loop exit extension: no accesses, store target only

	r *Range
}

func (u *usage) firstRead() bool { return len(u.locs) != 0 && u.locs[0].Read }
func (u *usage) last() int       { return u.locs[len(u.locs)-1].Index }

func (u *usage) hasWrite() bool {
	for _, l := range u.locs {
		if l.Write {
			return true
		}
	}

	return false
}

type segUsage struct {
	list  []*usage // sorted by reg
	byReg map[iml.RegID]*usage
}

func (su *segUsage) get(r iml.RegID) *usage { return su.byReg[r] }

func (su *segUsage) add(u *usage) {
	su.byReg[u.reg] = u

	i, _ := slices.BinarySearchFunc(su.list, u.reg, func(x *usage, r iml.RegID) int { return int(x.reg - r) })
	su.list = slices.Insert(su.list, i, u)
}

// abstractLiveness collects register accesses per segment with a single linear scan.
func abstractLiveness(c *iml.Context) []*segUsage {
	res := make([]*segUsage, len(c.Segments))

	var u iml.Usage

	for _, s := range c.Segments {
		su := &segUsage{byReg: map[iml.RegID]*usage{}}
		res[s.Index] = su

		for i, x := range s.Instrs {
			u.Reset()
			x.Usage(&u)

			for _, r := range u.Regs() {
				us := su.byReg[r.ID()]
				if us == nil {
					us = &usage{reg: r.ID()}
					su.add(us)
				}

				if n := len(us.locs); n == 0 || us.locs[n-1].Index != i {
					us.locs = append(us.locs, Loc{Index: i})
				}

				l := &us.locs[len(us.locs)-1]
				l.Read = l.Read || u.IsRead(r)
				l.Write = l.Write || u.IsWritten(r)
			}
		}
	}

	return res
}

// connectable reports whether registers may stay live over the edges leaving p.
// Macros leave the function or call out, so everything must be in names there.
func connectable(p *iml.Segment) bool {
	_, macro := p.Suffix().(*iml.Macro)

	return !macro
}

// stitch decides which register values flow between segments in registers.
// A segment entry is connected when every predecessor keeps the value live
// to its end, or is a loop preheader which can load it just before leaving.
func stitch(ctx context.Context, c *iml.Context, us []*segUsage) {
	tr := tlog.SpanFromContext(ctx)

	for _, s := range c.Segments {
		if s.Enterable || len(s.Prev) == 0 {
			continue
		}

		for _, u := range us[s.Index].list {
			if !u.firstRead() {
				continue
			}

			if !entryConnectable(s, u.reg, us) {
				continue
			}

			u.connIn = true

			for _, p := range s.Prev {
				pu := us[p.Index].get(u.reg)
				if pu == nil {
					pu = &usage{reg: u.reg, preload: true}
					us[p.Index].add(pu)
				}

				pu.connOut = true
			}

			tr.V("ra_stitch").Printw("entry connected", "seg", s.Index, "reg", u.reg, "preds", len(s.Prev))
		}
	}

	for _, l := range c.Segments {
		if l.LoopDepth == 0 || !connectable(l) {
			continue
		}

		for _, u := range us[l.Index].list {
			if !u.hasWrite() || !c.PeekRegName(u.reg).Persistent() {
				continue
			}

			if !u.connOut && l.BodyLen()-u.last() > Lookahead {
				continue
			}

			for _, e := range l.Succs() {
				if e.LoopDepth >= l.LoopDepth || len(e.Prev) != 1 || e.Enterable || us[e.Index].get(u.reg) != nil {
					continue
				}

				us[e.Index].add(&usage{reg: u.reg, connIn: true, exitExt: true})
				u.connOut = true

				tr.V("ra_stitch").Printw("loop exit extended", "loop", l.Index, "exit", e.Index, "reg", u.reg)
			}
		}
	}
}

func entryConnectable(s *iml.Segment, reg iml.RegID, us []*segUsage) bool {
	for _, p := range s.Prev {
		if !connectable(p) {
			return false
		}

		pu := us[p.Index].get(reg)

		switch {
		case pu != nil && (pu.connOut || len(pu.locs) == 0):
		case pu != nil && p.BodyLen()-pu.last() <= Lookahead:
		case pu == nil && p.LoopDepth < s.LoopDepth:
		default:
			return false
		}
	}

	return true
}

// materialize turns usages into ranges and links connected ones into clusters.
func materialize(c *iml.Context, a *arena, us []*segUsage) {
	for _, s := range c.Segments {
		for _, u := range us[s.Index].list {
			r := a.newRange(s, u.reg, c.RegIsFloat(u.reg))
			r.Locs = u.locs
			u.r = r

			switch {
			case u.connIn:
				r.Start = PosStart
			case u.preload:
				r.Start = ReadPos(s.BodyLen())
			default:
				r.Start = u.locs[0].First()
			}

			switch {
			case u.exitExt:
				r.End = PosStart
			case u.connOut:
				r.End = PosEnd
			default:
				r.End = u.locs[len(u.locs)-1].Last()
			}
		}
	}

	for _, s := range c.Segments {
		for _, u := range us[s.Index].list {
			if !u.connIn {
				continue
			}

			for _, p := range s.Prev {
				pu := us[p.Index].get(u.reg)
				iml.Assert(pu != nil && pu.connOut, "seg %d: reg %d connected without predecessor range in %d", s.Index, u.reg, p.Index)

				a.connect(u.r, pu.r)
			}
		}
	}
}
