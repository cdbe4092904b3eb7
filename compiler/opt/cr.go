package opt

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/slowlang/ppcrec/compiler/iml"
)

// CRScanDepth bounds how many segments deep the overwrite scan follows successors.
const CRScanDepth = 16

const crAll = ^uint32(0)

// crAccess returns the CR bits x reads and writes, in execution order:
// reads happen before writes.
func crAccess(x iml.Instr) (rd, wr uint32) {
	switch x := x.(type) {
	case *iml.NameToReg:
		if x.Name.IsCR() {
			rd = 1 << x.Name.Index()
		}
	case *iml.RegToName:
		if x.Name.IsCR() {
			wr = 1 << x.Name.Index()
		}
	case *iml.CRLogic:
		rd = 1<<x.A | 1<<x.B
		wr = 1 << x.D
	case *iml.RR:
		wr = x.CR.Mask()
	case *iml.RRR:
		wr = x.CR.Mask()
	case *iml.RRRCarry:
		wr = x.CR.Mask()
	case *iml.RRS32:
		wr = x.CR.Mask()
	case *iml.RRS32Carry:
		wr = x.CR.Mask()
	case *iml.FPRCompare:
		wr = x.CR.Mask()
	case *iml.Call:
		rd = crAll
	case *iml.Macro:
		// leaving the function or calling out: anything may be observed
		if x.Op.Branching() {
			rd = crAll
		}
	}

	return rd, wr
}

type crPass struct {
	c *iml.Context
}

// OptimizeCRBits marks CR bits which are overwritten on every path before
// anybody reads them. Updates keep the remaining bits in IgnoreMask,
// CR name stores and CR logic results which are never observed are removed.
func OptimizeCRBits(ctx context.Context, c *iml.Context) {
	tr := tlog.SpanFromContext(ctx)

	p := crPass{c: c}

	for _, s := range c.Segments {
		s.CRRead, s.CRWritten = segmentCR(s)
	}

	for _, s := range c.Segments {
		for i := 0; i < len(s.Instrs); i++ {
			_, wr := crAccess(s.Instrs[i])
			if wr == 0 {
				continue
			}

			ign := p.ignorable(s, i, wr)
			if ign == 0 {
				continue
			}

			tr.V("opt_cr").Printw("cr bits ignored", "seg", s.Index, "instr", i, "bits", tlog.FormatNext("%#x"), ign)

			switch x := s.Instrs[i].(type) {
			case *iml.RegToName, *iml.CRLogic:
				s.RemoveInstr(i)
				i--
			case *iml.RR:
				setIgnore(&x.CR, ign)
			case *iml.RRR:
				setIgnore(&x.CR, ign)
			case *iml.RRRCarry:
				setIgnore(&x.CR, ign)
			case *iml.RRS32:
				setIgnore(&x.CR, ign)
			case *iml.RRS32Carry:
				setIgnore(&x.CR, ign)
			case *iml.FPRCompare:
				setIgnore(&x.CR, ign)
			default:
				iml.Unreachable(x)
			}
		}
	}
}

func setIgnore(u *iml.CRUpdate, ign uint32) {
	u.IgnoreMask |= uint8(ign >> (u.Field * 4) & 0xf)
}

// segmentCR computes bits read before any write, and all bits written.
func segmentCR(s *iml.Segment) (read, written uint32) {
	for _, x := range s.Instrs {
		rd, wr := crAccess(x)

		read |= rd &^ written
		written |= wr
	}

	return read, written
}

// ignorable returns the subset of bits written by instruction i
// which are overwritten before being read on every path.
func (p *crPass) ignorable(s *iml.Segment, i int, bits uint32) (ign uint32) {
	pending := bits

	for _, x := range s.Instrs[i+1:] {
		if pending == 0 {
			return ign
		}

		rd, wr := crAccess(x)

		pending &^= rd
		ign |= pending & wr
		pending &^= wr
	}

	if pending == 0 {
		return ign
	}

	return ign | p.overwrittenInSuccessors(s, pending, 0)
}

func (p *crPass) overwrittenInSuccessors(s *iml.Segment, bits uint32, depth int) uint32 {
	succ := s.Succs()

	if s.Uncertain || len(succ) == 0 || depth >= CRScanDepth {
		return 0
	}

	res := bits

	for _, t := range succ {
		res &= p.overwritten(t, res, depth+1)

		if res == 0 {
			break
		}
	}

	return res
}

// overwritten returns the subset of bits which are written before being read
// on every path starting at the entry of s.
func (p *crPass) overwritten(s *iml.Segment, bits uint32, depth int) uint32 {
	res := bits & s.CRWritten &^ s.CRRead
	through := bits &^ s.CRWritten &^ s.CRRead

	if through != 0 {
		res |= p.overwrittenInSuccessors(s, through, depth)
	}

	return res
}
