package opt

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/slowlang/ppcrec/compiler/config"
	"github.com/slowlang/ppcrec/compiler/iml"
)

// GQR field layout. Loads use the upper half, stores the lower one.
const (
	gqrLoadTypeShift   = 16
	gqrLoadScaleShift  = 24
	gqrStoreTypeShift  = 0
	gqrStoreScaleShift = 8
)

// QuantMode maps a GQR type field to the fixed paired single mode.
func QuantMode(typ uint32) (iml.FPRMode, bool) {
	switch typ & 7 {
	case 0:
		return iml.FPRModePSF32, true
	case 4:
		return iml.FPRModePSU8, true
	case 5:
		return iml.FPRModePSU16, true
	case 6:
		return iml.FPRModePSS8, true
	case 7:
		return iml.FPRModePSS16, true
	}

	return 0, false
}

// QuantScale sign extends the 6 bit scale field.
func QuantScale(v uint32) int8 {
	return int8(v&0x3f<<2) >> 2
}

// OptimizeGQRLoadStore turns generic paired single accesses into fixed format ones
// where the controlling GQR value is known for the whole function.
func OptimizeGQRLoadStore(ctx context.Context, c *iml.Context, o *config.Options) {
	tr := tlog.SpanFromContext(ctx)

	written := gqrWritten(c)

	known := func(i uint8) (uint32, bool) {
		if written&(1<<i) != 0 {
			return 0, false
		}

		return o.GQR(int(i))
	}

	for _, s := range c.Segments {
		for i, x := range s.Instrs {
			switch x := x.(type) {
			case *iml.FPRLoad:
				if x.Mode != iml.FPRModePSGeneric {
					continue
				}

				v, ok := known(x.GQRIndex)
				if !ok {
					continue
				}

				m, ok := QuantMode(v >> gqrLoadTypeShift)
				if !ok {
					continue
				}

				x.Mode = m
				x.Scale = QuantScale(v >> gqrLoadScaleShift)
				x.GQR = iml.InvalidReg

				tr.V("opt_gqr").Printw("psq load specialized", "seg", s.Index, "instr", i, "gqr", x.GQRIndex, "mode", m, "scale", x.Scale)
			case *iml.FPRStore:
				if x.Mode != iml.FPRModePSGeneric {
					continue
				}

				v, ok := known(x.GQRIndex)
				if !ok {
					continue
				}

				m, ok := QuantMode(v >> gqrStoreTypeShift)
				if !ok {
					continue
				}

				x.Mode = m
				x.Scale = QuantScale(v >> gqrStoreScaleShift)
				x.GQR = iml.InvalidReg

				tr.V("opt_gqr").Printw("psq store specialized", "seg", s.Index, "instr", i, "gqr", x.GQRIndex, "mode", m, "scale", x.Scale)
			}
		}
	}
}

// gqrWritten returns a mask of GQRs the function may modify.
func gqrWritten(c *iml.Context) (m uint8) {
	for _, s := range c.Segments {
		for _, x := range s.Instrs {
			st, ok := x.(*iml.RegToName)
			if !ok || !st.Name.IsSPR() {
				continue
			}

			spr := st.Name.Index()

			switch {
			case spr >= iml.SPRGQR0 && spr < iml.SPRGQR0+8:
				m |= 1 << (spr - iml.SPRGQR0)
			case spr >= iml.SPRUGQR0 && spr < iml.SPRUGQR0+8:
				m |= 1 << (spr - iml.SPRUGQR0)
			}
		}
	}

	return m
}
