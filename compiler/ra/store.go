package ra

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/slowlang/ppcrec/compiler/iml"
	"github.com/slowlang/ppcrec/compiler/set"
)

// StoreMotionDepth bounds how many segments a store may be delayed through.
const StoreMotionDepth = 30

// computeFlags decides which ranges load their value and which store it back.
func (al *allocator) computeFlags() {
	loads := map[iml.RegID]bool{}

	for _, r := range al.a.ranges {
		if r.dead {
			continue
		}

		connIn := r.Start == PosStart

		r.NoLoad = connIn || len(r.Locs) != 0 && r.Start == r.Locs[0].First() && !r.Locs[0].Read

		if !r.NoLoad {
			loads[r.Reg] = true
		}
	}

	for _, r := range al.a.ranges {
		if r.dead {
			continue
		}

		dirty := r.HasWrite() || r.inheritedDirty

		r.HasStore = dirty && (al.c.PeekRegName(r.Reg).Persistent() || loads[r.Reg])
	}
}

// storeMotion moves stores at the end of connected ranges into
// successors when that is expected to run less often, out of loops mostly.
func (al *allocator) storeMotion(ctx context.Context) {
	tr := tlog.SpanFromContext(ctx)

	var busy set.Bits[int]

	for _, r := range al.a.ranges {
		if r.dead || !r.HasStore || r.StoreDelayed || r.End != PosEnd {
			continue
		}

		if al.delayStore(r, 0, &busy) && tr.If("ra_store") {
			tr.Printw("store delayed", "range", r)
		}
	}
}

func (al *allocator) delayStore(r *Range, depth int, busy *set.Bits[int]) bool {
	_, succ := al.delayCost(r, depth, busy)
	if succ == nil {
		return false
	}

	r.StoreDelayed = true

	for _, t := range succ {
		if t.HasStore {
			continue
		}

		t.HasStore = true
		t.inheritedDirty = true

		if t.End == PosEnd {
			al.delayStore(t, depth+1, busy)
		}
	}

	return true
}

// delayCost returns the cost of storing r's value from r onwards,
// and the successor ranges taking over the store if delaying is not worse.
func (al *allocator) delayCost(r *Range, depth int, busy *set.Bits[int]) (int, []*Range) {
	local := weight(r.Seg)

	if r.End != PosEnd || depth >= StoreMotionDepth || r.Seg.Uncertain {
		return local, nil
	}

	succ, ok := al.connectedSuccs(r)
	if !ok {
		return local, nil
	}

	busy.Set(int(r.ID))
	defer busy.Clear(int(r.ID))

	sum := 0

	for _, t := range succ {
		if busy.IsSet(int(t.ID)) || t.HasStore {
			continue
		}

		c, _ := al.delayCost(t, depth+1, busy)
		sum += c
	}

	if sum > local {
		return local, nil
	}

	return sum, succ
}

// connectedSuccs returns the range of the same cluster at the entry of each successor.
func (al *allocator) connectedSuccs(r *Range) ([]*Range, bool) {
	succs := r.Seg.Succs()
	if len(succs) == 0 {
		return nil, false
	}

	res := make([]*Range, 0, len(succs))

next:
	for _, s := range succs {
		for _, x := range al.a.segRanges(s) {
			if x.Cluster == r.Cluster && x.Start == PosStart {
				res = append(res, x)
				continue next
			}
		}

		return nil, false
	}

	return res, true
}
