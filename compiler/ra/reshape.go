package ra

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/slowlang/ppcrec/compiler/iml"
	"github.com/slowlang/ppcrec/compiler/set"
)

// LoopScanDepth bounds the back edge search of loop detection.
const LoopScanDepth = 8

// reshape inserts empty buffer segments on not taken edges of conditional
// branches into merge points, so every such edge owns a block where spill
// code can go, and computes loop depths.
func reshape(ctx context.Context, c *iml.Context) {
	tr := tlog.SpanFromContext(ctx)

	for i := len(c.Segments) - 1; i >= 0; i-- {
		s := c.Segments[i]
		t := s.Next

		if t == nil || s.Taken == nil || len(t.Prev) < 2 {
			continue
		}

		buf := c.InsertSegments(s.Index+1, 1)[0]
		buf.PPCAddr = t.PPCAddr

		s.SetLinkBranchNotTaken(buf)
		buf.SetLinkBranchNotTaken(t)

		tr.V("ra_reshape").Printw("buffer segment", "after", s.Index, "to", t.Index)
	}

	for _, s := range c.Segments {
		s.LoopDepth = 0
	}

	for _, h := range c.Segments {
		body := loopBody(h)

		body.Range(func(i int) bool {
			c.Segments[i].LoopDepth++
			return true
		})
	}
}

// loopBody returns the segments on paths from h back to h
// which only go forward in layout order except for the closing edge.
func loopBody(h *iml.Segment) (body set.Bits[int]) {
	path := make([]*iml.Segment, 0, LoopScanDepth)

	var walk func(s *iml.Segment)
	walk = func(s *iml.Segment) {
		for _, t := range s.Succs() {
			switch {
			case t == h:
				body.Set(h.Index)

				for _, p := range path {
					body.Set(p.Index)
				}
			case t.Index > s.Index && len(path) < LoopScanDepth:
				path = append(path, t)
				walk(t)
				path = path[:len(path)-1]
			}
		}
	}

	walk(h)

	return body
}
