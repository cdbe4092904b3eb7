package ra

import (
	"context"

	"nikand.dev/go/heap"
	"tlog.app/go/tlog"

	"github.com/slowlang/ppcrec/compiler/config"
	"github.com/slowlang/ppcrec/compiler/iml"
)

// MaxIterations bounds the sweep restarts per segment.
const MaxIterations = 100000

type allocator struct {
	c *iml.Context
	o *config.Options

	a arena

	clobbers []map[int]hostConstraints
}

func (al *allocator) pool(r *Range) PhysSet {
	if r.Float {
		return FPRPool
	}

	return GPRPool
}

// weight estimates how often a segment runs.
func weight(s *iml.Segment) int {
	return 1 << min(2*s.LoopDepth, 20)
}

// allocateAll runs the main loop over segments, deepest loops first.
func (al *allocator) allocateAll(ctx context.Context) {
	q := heap.Heap[*iml.Segment]{Less: func(d []*iml.Segment, i, j int) bool {
		if d[i].LoopDepth != d[j].LoopDepth {
			return d[i].LoopDepth > d[j].LoopDepth
		}

		return d[i].Index < d[j].Index
	}}

	for _, s := range al.c.Segments {
		q.Push(s)
	}

	for q.Len() != 0 {
		al.allocateSegment(ctx, q.Pop())
	}
}

func (al *allocator) allocateSegment(ctx context.Context, s *iml.Segment) {
	tr := tlog.SpanFromContext(ctx)

	for iter := 0; ; iter++ {
		iml.Assert(iter < MaxIterations, "seg %d: register allocation does not converge", s.Index)

		edited := false

		for _, r := range al.a.segRanges(s) {
			if r.Phys != NoPhys {
				continue
			}

			if cand := al.candidates(r); cand != 0 {
				p := cand.Lowest()
				al.assign(r, p)

				tr.V("ra_assign").Printw("assigned", "range", r, "phys", p, "cluster", len(al.a.cluster(r)))

				continue
			}

			al.resolveConflict(ctx, r)
			edited = true

			break
		}

		if !edited {
			return
		}
	}
}

func (al *allocator) assign(r *Range, p PhysReg) {
	for _, id := range al.a.cluster(r) {
		al.a.get(id).Phys = p
	}
}

// candidates returns the registers every member of r's cluster may hold.
func (al *allocator) candidates(r *Range) PhysSet {
	set := al.pool(r)

	for _, id := range al.a.cluster(r) {
		m := al.a.get(id)

		set = m.Allowed(set)
		set &^= al.clobbered(m)

		for _, x := range al.a.segRanges(m.Seg) {
			if x.Phys == NoPhys || x.Float != m.Float || x.Cluster == m.Cluster || !x.Overlaps(m) {
				continue
			}

			set &^= 1 << x.Phys
		}
	}

	return set
}

// blockers returns assigned ranges of r's segment overlapping r and holding p.
func (al *allocator) blockers(r *Range, p PhysReg) (l []*Range) {
	for _, x := range al.a.segRanges(r.Seg) {
		if x.Phys == p && x.Float == r.Float && x.Cluster != r.Cluster && x.Overlaps(r) {
			l = append(l, x)
		}
	}

	return l
}

type strategy struct {
	name  string
	cost  int
	apply func()
}

// resolveConflict picks the cheapest edit making progress for r, which got no register.
func (al *allocator) resolveConflict(ctx context.Context, r *Range) {
	tr := tlog.SpanFromContext(ctx)

	var best *strategy

	consider := func(name string, cost int, apply func()) {
		if best == nil || cost < best.cost {
			best = &strategy{name: name, cost: cost, apply: apply}
		}
	}

	w := weight(r.Seg)
	usable := r.Allowed(al.pool(r)) &^ al.clobbered(r)

	if al.a.local(r) {
		al.holeCut(r, usable, w, consider)
		al.availableHole(r, usable, w, consider)

		if len(r.Locs) > 1 {
			consider("split all", w*2*len(r.Locs)+1, func() {
				for len(r.Locs) > 1 {
					r = al.a.split(r, 1)
				}
			})
		}
	} else {
		consider("explode self", al.explodeCost(r), func() { al.explode(r) })
	}

	seen := map[ClusterID]bool{}

	for p := PhysReg(0); p < 16; p++ {
		if !usable.Has(p) {
			continue
		}

		for _, b := range al.blockers(r, p) {
			if al.a.local(b) || seen[b.Cluster] {
				continue
			}

			seen[b.Cluster] = true

			consider("explode other", al.explodeCost(b), func() {
				al.explode(b)
				b.Phys = NoPhys
			})
		}
	}

	iml.Assert(best != nil, "seg %d: no way to allocate reg %d at %d..%d", r.Seg.Index, r.Reg, r.Start, r.End)

	tr.V("ra_split").Printw("resolve conflict", "range", r, "strategy", best.name, "cost", best.cost)

	best.apply()
}

// holeCut evicts a local range from a register for the duration of r,
// if it does not touch the register inside r.
func (al *allocator) holeCut(r *Range, usable PhysSet, w int, consider func(string, int, func())) {
	for p := PhysReg(0); p < 16; p++ {
		if !usable.Has(p) {
			continue
		}

		bl := al.blockers(r, p)
		if len(bl) != 1 || !al.a.local(bl[0]) {
			continue
		}

		b := bl[0]

		k := 0
		for k < len(b.Locs) && b.Locs[k].Last() < r.Start {
			k++
		}

		if k == 0 || k == len(b.Locs) || b.Locs[k].First() <= r.End {
			continue
		}

		cost := w
		if (&Range{Locs: b.Locs[:k]}).HasWrite() {
			cost += w
		}

		consider("hole cut", cost, func() {
			al.a.split(b, k)
			r.Phys = p
		})
	}
}

// availableHole assigns a register free for a prefix of r and cuts r there.
func (al *allocator) availableHole(r *Range, usable PhysSet, w int, consider func(string, int, func())) {
	bestK, bestP := 0, NoPhys

	for p := PhysReg(0); p < 16; p++ {
		if !al.pool(r).Has(p) {
			continue
		}

		limit := r.End + 1

		for _, b := range al.blockers(r, p) {
			limit = min(limit, b.Start)
		}

		for i, hc := range al.clobbers[r.Seg.Index] {
			if !r.Covers(ReadPos(i)) || !r.Covers(WritePos(i)) {
				continue
			}

			cl := hc.clobber
			if r.Float {
				cl = hc.clobberF
			}

			if cl.Has(p) && !r.writesAt(i) {
				limit = min(limit, ReadPos(i))
			}
		}

		// fixed requirements always sit on locations of r
		for _, f := range r.Fixed {
			if !f.Allowed.Has(p) {
				limit = min(limit, ReadPos(f.Index))
			}
		}

		if limit <= r.Start {
			continue
		}

		k := 0
		for k < len(r.Locs) && r.Locs[k].Last() < limit {
			k++
		}

		if k > bestK && k < len(r.Locs) {
			bestK, bestP = k, p
		}
	}

	if bestP == NoPhys {
		return
	}

	cost := w
	if (&Range{Locs: r.Locs[:bestK]}).HasWrite() {
		cost += w
	}

	consider("available hole", cost, func() {
		al.a.split(r, bestK)
		r.Phys = bestP
	})
}

// explodeCost is the number of loads and stores needed at the
// connections of the cluster, weighted by segment.
func (al *allocator) explodeCost(r *Range) (cost int) {
	for _, id := range al.a.cluster(r) {
		m := al.a.get(id)

		if m.Start == PosStart {
			cost += weight(m.Seg)
		}

		if m.End == PosEnd {
			cost += weight(m.Seg)
		}
	}

	return cost
}

// explode breaks the cluster of r into segment local ranges.
// Assigned members keep their register.
func (al *allocator) explode(r *Range) {
	l := append([]RangeID(nil), al.a.cluster(r)...)

	for _, id := range l {
		al.a.isolate(al.a.get(id))
	}
}
