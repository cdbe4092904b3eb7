package iml

import (
	"slices"

	"tlog.app/go/tlog/tlwire"
)

// Segment is a basic block of IML instructions.
type Segment struct {
	Index int

	Instrs []Instr

	Next  *Segment // branch not taken, or fall through
	Taken *Segment
	Prev  []*Segment

	// Uncertain means control may leave through an edge the graph does not model.
	Uncertain bool

	// Enterable segments can be entered from outside the function at EnterAddr.
	Enterable bool
	EnterAddr uint32

	PPCAddr   uint32
	LoopDepth int

	// CR bits read before written, and written, in this segment.
	CRRead    uint32
	CRWritten uint32
}

func (s *Segment) AppendInstr(x ...Instr) {
	s.Instrs = append(s.Instrs, x...)
}

// InsertInstr inserts x before position at.
func (s *Segment) InsertInstr(at int, x ...Instr) {
	s.Instrs = slices.Insert(s.Instrs, at, x...)
}

func (s *Segment) RemoveInstr(at int) {
	s.Instrs = slices.Delete(s.Instrs, at, at+1)
}

// Suffix returns the control transfer instruction ending the segment, if any.
func (s *Segment) Suffix() Instr {
	if len(s.Instrs) == 0 {
		return nil
	}

	x := s.Instrs[len(s.Instrs)-1]
	if !IsSuffix(x) {
		return nil
	}

	return x
}

// BodyLen is the number of instructions before the suffix.
func (s *Segment) BodyLen() int {
	if s.Suffix() != nil {
		return len(s.Instrs) - 1
	}

	return len(s.Instrs)
}

// Succs returns the distinct successors, not taken edge first.
func (s *Segment) Succs() []*Segment {
	var l []*Segment

	if s.Next != nil {
		l = append(l, s.Next)
	}

	if s.Taken != nil && s.Taken != s.Next {
		l = append(l, s.Taken)
	}

	return l
}

func (s *Segment) SetLinkBranchTaken(t *Segment) {
	old := s.Taken
	s.Taken = t

	s.relink(old, t)
}

func (s *Segment) SetLinkBranchNotTaken(t *Segment) {
	old := s.Next
	s.Next = t

	s.relink(old, t)
}

// RemoveLinks drops both outgoing edges.
func (s *Segment) RemoveLinks() {
	s.SetLinkBranchTaken(nil)
	s.SetLinkBranchNotTaken(nil)
}

func (s *Segment) relink(old, t *Segment) {
	if old == t {
		return
	}

	if old != nil && old != s.Next && old != s.Taken {
		i := slices.Index(old.Prev, s)
		Assert(i >= 0, "segment %d missing from predecessors of %d", s.Index, old.Index)

		old.Prev = slices.Delete(old.Prev, i, i+1)
	}

	if t != nil && !slices.Contains(t.Prev, s) {
		t.Prev = append(t.Prev, s)
	}
}

// IsLeaf reports segments leaving the function without successors.
func (s *Segment) IsLeaf() bool {
	return s.Next == nil && s.Taken == nil
}

func (s *Segment) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	if s == nil {
		return e.AppendNil(b)
	}

	b = e.AppendMap(b, 3)
	b = e.AppendKeyInt(b, "seg", s.Index)
	b = e.AppendKeyInt(b, "instrs", len(s.Instrs))
	b = e.AppendKeyInt(b, "loop", s.LoopDepth)

	return b
}
