package ra

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/ppcrec/compiler/config"
	"github.com/slowlang/ppcrec/compiler/format"
	"github.com/slowlang/ppcrec/compiler/iml"
)

// Result keeps the final ranges for inspection after allocation.
// Positions refer to instruction indexes before loads and stores were inserted.
type Result struct {
	c  *iml.Context
	a  *arena
	al *allocator
}

// Allocate replaces virtual registers of c by host registers.
func Allocate(ctx context.Context, c *iml.Context, o *config.Options) (res *Result, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "ra: allocate", "segments", len(c.Segments), "regs", c.NumRegs())
	defer tr.Finish("err", &err)

	if c.Allocated {
		return nil, errors.New("already allocated")
	}

	err = c.Validate()
	if err != nil {
		return nil, errors.Wrap(err, "validate input")
	}

	reshape(ctx, c)
	separateFixed(ctx, c)

	al := &allocator{c: c, o: o}

	us := abstractLiveness(c)
	stitch(ctx, c, us)
	materialize(c, &al.a, us)

	al.collectFixed()
	al.resolveFixed(ctx)
	al.allocateAll(ctx)

	al.computeFlags()
	al.storeMotion(ctx)

	res = &Result{c: c, a: &al.a, al: al}

	if tr.If("dump_ranges") {
		b := format.DumpContext(nil, c, format.Opts{Overlay: res.Overlay})
		tr.Printw("ranges", "dump", b)
	}

	if o.Verify {
		err = res.Verify()
		iml.Assert(err == nil, "allocation: %v", err)
	}

	al.emit()

	if o.Verify {
		err = verifyEmitted(c)
		iml.Assert(err == nil, "allocation: %v", err)
	}

	tr.V("ra_assign").Printw("allocated", "ranges", len(al.a.ranges))

	return res, nil
}

// Ranges returns live ranges of segment seg sorted by start.
func (res *Result) Ranges(seg int) []*Range {
	return res.a.segRanges(res.c.Segments[seg])
}

// Overlay describes ranges of a segment for the debug dump.
func (res *Result) Overlay(seg int) []format.RangeInfo {
	rs := res.Ranges(seg)
	l := make([]format.RangeInfo, len(rs))

	for i, r := range rs {
		l[i] = format.RangeInfo{
			Reg:       r.Reg,
			Name:      res.c.PeekRegName(r.Reg),
			Float:     r.Float,
			Start:     int(r.Start),
			End:       int(r.End),
			Phys:      int(r.Phys),
			Load:      !r.NoLoad,
			Store:     r.HasStore && !r.StoreDelayed,
			Delayed:   r.StoreDelayed,
			Connected: !res.a.local(r),
		}
	}

	return l
}
