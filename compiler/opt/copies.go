package opt

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/slowlang/ppcrec/compiler/iml"
)

// OptimizeDirectFloatCopies finds a single precision load into a register
// which is only stored back as a single within the window.
// Both keep the raw single and the expansion to double is done once after the store.
func OptimizeDirectFloatCopies(ctx context.Context, c *iml.Context) {
	tr := tlog.SpanFromContext(ctx)

	for _, s := range c.Segments {
		for i := 0; i < s.BodyLen(); i++ {
			ld, ok := s.Instrs[i].(*iml.FPRLoad)
			if !ok || ld.Mode != iml.FPRModeF32 || ld.NotExpanded || ld.Dst2.Valid() {
				continue
			}

			j := findFloatStore(s, i, ld.Dst)
			if j < 0 {
				continue
			}

			st := s.Instrs[j].(*iml.FPRStore)

			ld.NotExpanded = true
			st.NotExpanded = true

			s.InsertInstr(j+1, &iml.FPRUnary{Op: iml.OpFExpandF32ToF64, Reg: ld.Dst})

			tr.V("opt_copies").Printw("float copy", "seg", s.Index, "load", i, "store", j, "reg", ld.Dst)
		}
	}
}

func findFloatStore(s *iml.Segment, i int, r iml.Reg) int {
	end := min(i+1+Window, s.BodyLen())

	for j := i + 1; j < end; j++ {
		st, ok := s.Instrs[j].(*iml.FPRStore)
		if !ok || st.Mode != iml.FPRModeF32 || !st.Src.Same(r) || st.Src2.Valid() || st.NotExpanded {
			continue
		}

		if !untouched(s.Instrs[i+1:j], r) {
			return -1
		}

		return j
	}

	return -1
}

// OptimizeDirectIntegerCopies finds a byte swapping 32 bit load whose value
// is only stored back byte swapped. Both accesses become native order
// and one byte reverse after the store restores the register value.
func OptimizeDirectIntegerCopies(ctx context.Context, c *iml.Context) {
	tr := tlog.SpanFromContext(ctx)

	for _, s := range c.Segments {
		for i := 0; i < s.BodyLen(); i++ {
			ld, ok := s.Instrs[i].(*iml.Load)
			if !ok || ld.Size != 32 || !ld.SwapEndian || ld.SignExtend {
				continue
			}

			j := findIntegerStore(s, i, ld.Dst)
			if j < 0 {
				continue
			}

			st := s.Instrs[j].(*iml.Store)

			ld.SwapEndian = false
			st.SwapEndian = false

			s.InsertInstr(j+1, &iml.RR{Op: iml.OpByteReverse, Dst: ld.Dst, A: ld.Dst})

			tr.V("opt_copies").Printw("integer copy", "seg", s.Index, "load", i, "store", j, "reg", ld.Dst)
		}
	}
}

func findIntegerStore(s *iml.Segment, i int, r iml.Reg) int {
	end := min(i+1+Window, s.BodyLen())

	for j := i + 1; j < end; j++ {
		st, ok := s.Instrs[j].(*iml.Store)
		if !ok || st.Size != 32 || !st.SwapEndian || !st.Src.Same(r) {
			continue
		}

		if st.Base.Same(r) || st.Index.Same(r) {
			return -1
		}

		if !untouched(s.Instrs[i+1:j], r) {
			return -1
		}

		return j
	}

	return -1
}
