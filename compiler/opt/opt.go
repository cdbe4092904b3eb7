package opt

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/ppcrec/compiler/config"
	"github.com/slowlang/ppcrec/compiler/iml"
)

// Window is how far copy fusion looks ahead for the matching store.
const Window = 25

// Run applies the enabled passes in order. Every pass rewrites
// the whole segment graph in place.
func Run(ctx context.Context, c *iml.Context, o *config.Options) (err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "opt: run", "segments", len(c.Segments))
	defer tr.Finish("err", &err)

	p := o.Passes

	if p.FloatCopies {
		OptimizeDirectFloatCopies(ctx, c)
	}

	if p.IntegerCopies {
		OptimizeDirectIntegerCopies(ctx, c)
	}

	if p.CRBits {
		OptimizeCRBits(ctx, c)
	}

	if p.GQR {
		OptimizeGQRLoadStore(ctx, c, o)
	}

	if p.FlagReuse {
		ReorderForFlagReuse(ctx, c)
	}

	if p.DeadCode {
		RemoveDeadCode(ctx, c)
	}

	err = c.Validate()
	if err != nil {
		return errors.Wrap(err, "validate")
	}

	return nil
}

// untouched reports whether instructions in l neither read nor write r.
func untouched(l []iml.Instr, r iml.Reg) bool {
	var u iml.Usage

	for _, x := range l {
		u.Reset()
		x.Usage(&u)

		if u.Uses(r) {
			return false
		}
	}

	return true
}
