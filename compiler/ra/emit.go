package ra

import (
	"slices"

	"github.com/slowlang/ppcrec/compiler/iml"
)

type edge struct {
	stores []*Range
	loads  []*Range
}

// emit inserts name loads and stores at range boundaries and replaces
// virtual registers by host registers in every segment.
func (al *allocator) emit() {
	for _, s := range al.c.Segments {
		al.emitSegment(s)
	}

	al.c.Allocated = true
}

func (al *allocator) emitSegment(s *iml.Segment) {
	rs := al.a.segRanges(s)
	n := s.BodyLen()

	phys := map[physKey]PhysReg{}

	for _, r := range rs {
		iml.Assert(r.Phys != NoPhys, "seg %d: unassigned range %v", s.Index, r.ID)

		for _, l := range r.Locs {
			phys[physKey{r.Reg, l.Index}] = r.Phys
		}
	}

	for i, x := range s.Instrs {
		x.Rewrite(func(r iml.Reg) iml.Reg {
			p, ok := phys[physKey{r.ID(), i}]
			iml.Assert(ok, "seg %d instr %d: no host register for %v", s.Index, i, r)

			return r.WithID(iml.RegID(p))
		})
	}

	// before[i] goes in front of instruction i, after[i] right behind it.
	before := make([]edge, len(s.Instrs)+1)
	after := make([]edge, len(s.Instrs)+1)

	for _, r := range rs {
		switch {
		case r.Start == PosStart:
			if !r.NoLoad {
				before[0].loads = append(before[0].loads, r)
			}
		case r.Start.IsRead():
			if !r.NoLoad {
				before[r.Start.Instr()].loads = append(before[r.Start.Instr()].loads, r)
			}
		default:
			iml.Assert(r.NoLoad, "seg %d: range %v starts at a write but loads", s.Index, r.ID)
		}

		if !r.HasStore || r.StoreDelayed {
			continue
		}

		switch {
		case r.End == PosStart:
			before[0].stores = append(before[0].stores, r)
		case r.End == PosEnd:
			before[n].stores = append(before[n].stores, r)
		case r.End.IsRead():
			before[r.End.Instr()].stores = append(before[r.End.Instr()].stores, r)
		default:
			after[r.End.Instr()].stores = append(after[r.End.Instr()].stores, r)
		}
	}

	out := make([]iml.Instr, 0, len(s.Instrs)+len(rs))

	for i := 0; i <= len(s.Instrs); i++ {
		out = al.appendEdge(out, before[i])

		if i == len(s.Instrs) {
			break
		}

		out = append(out, s.Instrs[i])
		out = al.appendEdge(out, after[i])
	}

	s.Instrs = out
}

type physKey struct {
	reg iml.RegID
	i   int
}

func (al *allocator) appendEdge(out []iml.Instr, e edge) []iml.Instr {
	byID := func(x, y *Range) int { return int(x.ID - y.ID) }

	slices.SortFunc(e.stores, byID)
	slices.SortFunc(e.loads, byID)

	for _, r := range e.stores {
		out = append(out, &iml.RegToName{Name: al.c.RegName(r.Reg), Src: al.hostReg(r)})
	}

	for _, r := range e.loads {
		out = append(out, &iml.NameToReg{Dst: al.hostReg(r), Name: al.c.RegName(r.Reg)})
	}

	return out
}

// hostReg is the view name transfers use: 32 bits for guest integer
// registers, full width for temporaries and floats.
func (al *allocator) hostReg(r *Range) iml.Reg {
	id := iml.RegID(r.Phys)

	if r.Float {
		return iml.FPR(id)
	}

	name := al.c.RegName(r.Reg)
	if name.IsGPR() || name == iml.NameXERCA {
		return iml.GPR32(id)
	}

	return iml.GPR64(id)
}
