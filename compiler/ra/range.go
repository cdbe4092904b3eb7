package ra

import (
	"slices"

	"tlog.app/go/tlog/tlwire"

	"github.com/slowlang/ppcrec/compiler/iml"
)

type (
	// Pos is an instruction edge position inside a segment:
	// 2i is where instruction i reads its operands, 2i+1 where it writes them.
	Pos int32

	RangeID   int32
	ClusterID int32

	// Loc is one access of the range's register.
	Loc struct {
		Index       int
		Read, Write bool
	}

	// Fixed restricts the host register at the instruction Index.
	Fixed struct {
		Index   int
		Allowed PhysSet
	}

	// Range is the liveness of one virtual register inside one segment.
	// Ranges of one cluster are connected across segment edges
	// and share a host register.
	Range struct {
		ID      RangeID
		Reg     iml.RegID
		Seg     *iml.Segment
		Float   bool
		Cluster ClusterID

		Start, End Pos

		Locs  []Loc
		Fixed []Fixed

		Phys PhysReg

		// NoLoad: the value arrives in the register, no load from the name.
		NoLoad bool
		// HasStore: the value is written back to the name at End.
		HasStore bool
		// StoreDelayed: the store was moved into the successor ranges.
		StoreDelayed bool

		inheritedDirty bool
		dead           bool
	}
)

const (
	PosStart Pos = -1
	PosEnd   Pos = 1 << 30

	NoRange RangeID = -1
)

func ReadPos(i int) Pos  { return Pos(2 * i) }
func WritePos(i int) Pos { return Pos(2*i + 1) }

// Instr is the instruction index the position belongs to.
func (p Pos) Instr() int { return int(p) / 2 }

func (p Pos) IsRead() bool { return p >= 0 && p%2 == 0 }

func (l Loc) First() Pos {
	if l.Read {
		return ReadPos(l.Index)
	}

	return WritePos(l.Index)
}

func (l Loc) Last() Pos {
	if l.Write {
		return WritePos(l.Index)
	}

	return ReadPos(l.Index)
}

// Overlaps reports whether two inclusive intervals intersect.
func (r *Range) Overlaps(x *Range) bool {
	return r.Start <= x.End && x.Start <= r.End
}

// Covers reports whether r is live at p.
func (r *Range) Covers(p Pos) bool {
	return r.Start <= p && p <= r.End
}

func (r *Range) HasWrite() bool {
	for _, l := range r.Locs {
		if l.Write {
			return true
		}
	}

	return false
}

func (r *Range) writesAt(i int) bool {
	j, ok := slices.BinarySearchFunc(r.Locs, i, func(l Loc, i int) int { return l.Index - i })

	return ok && r.Locs[j].Write
}

// Allowed is the intersection of all fixed requirements.
func (r *Range) Allowed(pool PhysSet) PhysSet {
	for _, f := range r.Fixed {
		pool &= f.Allowed
	}

	return pool
}

func (r *Range) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	if r == nil {
		return e.AppendNil(b)
	}

	b = e.AppendMap(b, 6)
	b = e.AppendKeyInt(b, "id", int(r.ID))
	b = e.AppendKeyInt(b, "reg", int(r.Reg))
	b = e.AppendKeyInt(b, "seg", r.Seg.Index)
	b = e.AppendKeyInt(b, "start", int(r.Start))
	b = e.AppendKeyInt(b, "end", int(r.End))
	b = e.AppendKeyInt(b, "phys", int(r.Phys))

	return b
}

// arena owns every range and cluster of one allocation.
type arena struct {
	ranges   []*Range
	clusters [][]RangeID
	bySeg    [][]RangeID
}

func (a *arena) get(id RangeID) *Range { return a.ranges[id] }

func (a *arena) newRange(seg *iml.Segment, reg iml.RegID, float bool) *Range {
	r := &Range{
		ID:      RangeID(len(a.ranges)),
		Reg:     reg,
		Seg:     seg,
		Float:   float,
		Cluster: ClusterID(len(a.clusters)),
		Phys:    NoPhys,
	}

	a.ranges = append(a.ranges, r)
	a.clusters = append(a.clusters, []RangeID{r.ID})

	for len(a.bySeg) <= seg.Index {
		a.bySeg = append(a.bySeg, nil)
	}

	a.bySeg[seg.Index] = append(a.bySeg[seg.Index], r.ID)

	return r
}

// connect merges the clusters of x and y.
func (a *arena) connect(x, y *Range) {
	if x.Cluster == y.Cluster {
		return
	}

	to, from := x.Cluster, y.Cluster
	if len(a.clusters[to]) < len(a.clusters[from]) {
		to, from = from, to
	}

	for _, id := range a.clusters[from] {
		a.ranges[id].Cluster = to
	}

	a.clusters[to] = append(a.clusters[to], a.clusters[from]...)
	a.clusters[from] = nil
}

func (a *arena) cluster(r *Range) []RangeID {
	return a.clusters[r.Cluster]
}

func (a *arena) local(r *Range) bool {
	return len(a.clusters[r.Cluster]) == 1
}

// segRanges returns live ranges of segment s sorted by start, then register.
func (a *arena) segRanges(s *iml.Segment) []*Range {
	if s.Index >= len(a.bySeg) {
		return nil
	}

	l := make([]*Range, 0, len(a.bySeg[s.Index]))

	for _, id := range a.bySeg[s.Index] {
		if r := a.ranges[id]; !r.dead {
			l = append(l, r)
		}
	}

	slices.SortFunc(l, func(x, y *Range) int {
		if x.Start != y.Start {
			return int(x.Start - y.Start)
		}

		if x.Reg != y.Reg {
			return int(x.Reg - y.Reg)
		}

		return int(x.ID - y.ID)
	})

	return l
}

func (a *arena) remove(r *Range) {
	a.detach(r)
	r.dead = true
}

func (a *arena) detach(r *Range) {
	l := a.clusters[r.Cluster]
	i := slices.Index(l, r.ID)
	a.clusters[r.Cluster] = slices.Delete(l, i, i+1)
}

// isolate moves r into a cluster of its own and trims the sentinel ends
// to its real accesses. Ranges without accesses disappear.
func (a *arena) isolate(r *Range) {
	if !a.local(r) {
		a.detach(r)
		r.Cluster = ClusterID(len(a.clusters))
		a.clusters = append(a.clusters, []RangeID{r.ID})
	}

	if len(r.Locs) == 0 {
		a.remove(r)
		return
	}

	if r.Start == PosStart {
		r.Start = r.Locs[0].First()
	}

	if r.End == PosEnd {
		r.End = r.Locs[len(r.Locs)-1].Last()
	}
}

// split cuts local range r before location k. r keeps locations [0, k),
// the returned range gets [k, len). The tail starts unassigned.
func (a *arena) split(r *Range, k int) *Range {
	iml.Assert(a.local(r), "split of connected range %v", r.ID)
	iml.Assert(k > 0 && k < len(r.Locs), "bad split point %d of %d", k, len(r.Locs))

	t := a.newRange(r.Seg, r.Reg, r.Float)

	t.Locs = slices.Clone(r.Locs[k:])
	t.Start = t.Locs[0].First()
	t.End = r.End

	r.Locs = r.Locs[:k:k]
	r.End = r.Locs[k-1].Last()

	if r.Start == PosStart {
		r.Start = r.Locs[0].First()
	}

	if t.End == PosEnd {
		t.End = t.Locs[len(t.Locs)-1].Last()
	}

	for _, f := range r.Fixed {
		if f.Index >= t.Locs[0].Index {
			t.Fixed = append(t.Fixed, f)
		}
	}

	r.Fixed = slices.DeleteFunc(r.Fixed, func(f Fixed) bool { return f.Index >= t.Locs[0].Index })

	return t
}
