package back

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"
	"tlog.app/go/tlog/tlwire"

	"github.com/slowlang/ppcrec/compiler/asm/amd64"
	"github.com/slowlang/ppcrec/compiler/config"
	"github.com/slowlang/ppcrec/compiler/iml"
)

type (
	// Native is the generated code of one function.
	Native struct {
		Code []byte

		// SegmentOffsets[i] is where segment i starts in Code.
		SegmentOffsets []int

		// Entries maps guest addresses of enterable segments to code offsets.
		Entries map[uint32]int
	}

	reloc struct {
		at  int // rel32 field offset
		seg int
	}

	gen struct {
		c *iml.Context
		o *config.Options
		a amd64.Asm

		s      *iml.Segment
		relocs []reloc
	}
)

// ErrUnsupported is returned for legal IML the backend has no encoding for.
// The caller is expected to fall back to the interpreter.
var ErrUnsupported = errors.New("unsupported")

// Generate translates an allocated context to x86-64 machine code.
func Generate(ctx context.Context, c *iml.Context, o *config.Options) (n *Native, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "back: generate", "segments", len(c.Segments))
	defer tr.Finish("err", &err)

	if !c.Allocated {
		return nil, errors.New("registers are not allocated")
	}

	g := &gen{c: c, o: o}

	n = &Native{
		SegmentOffsets: make([]int, len(c.Segments)),
		Entries:        map[uint32]int{},
	}

	for _, s := range c.Segments {
		n.SegmentOffsets[s.Index] = g.a.Len()

		if s.Enterable {
			n.Entries[s.EnterAddr] = g.a.Len()
		}

		err = g.segment(s)
		if err != nil {
			return nil, errors.Wrap(err, "segment %d", s.Index)
		}
	}

	g.resolve(ctx, n.SegmentOffsets)

	n.Code = g.a.Bytes()

	tr.Printw("generated", "size", len(n.Code), "relocs", len(g.relocs), "entries", len(n.Entries))

	return n, nil
}

func (g *gen) segment(s *iml.Segment) (err error) {
	g.s = s

	for i, x := range s.Instrs {
		err = g.instr(x)
		if err != nil {
			return errors.Wrap(err, "instr %d: %T", i, x)
		}
	}

	if s.Suffix() == nil && s.Next != nil {
		g.jumpTo(s.Next)
	}

	return nil
}

// resolve patches jumps once every segment has its offset.
func (g *gen) resolve(ctx context.Context, offsets []int) {
	tr := tlog.SpanFromContext(ctx)

	for _, r := range g.relocs {
		g.a.Patch32(r.at, amd64.Rel32(r.at, offsets[r.seg]))

		if tr.If("back_reloc") {
			tr.Printw("reloc", "at", r.at, "seg", r.seg, "target", offsets[r.seg])
		}
	}
}

// jumpTo jumps to t unless it is laid out right after the current segment.
func (g *gen) jumpTo(t *iml.Segment) {
	if t.Index == g.s.Index+1 {
		return
	}

	at := g.a.Jmp()
	g.relocs = append(g.relocs, reloc{at: at, seg: t.Index})
}

func (g *gen) jccTo(cc amd64.CC, t *iml.Segment) {
	at := g.a.Jcc(cc)
	g.relocs = append(g.relocs, reloc{at: at, seg: t.Index})
}

// skip emits a short conditional jump over whatever body emits.
func (g *gen) skip(cc amd64.CC, body func()) {
	g.a.Jcc8(cc, 0)
	at := g.a.Len()

	body()

	n := g.a.Len() - at
	iml.Assert(n <= 127, "short jump over %d bytes", n)

	g.a.Bytes()[at-1] = byte(n)
}

// forward emits a near conditional jump patched by the returned function
// to the position where it is called.
func (g *gen) forward(cc amd64.CC) (here func()) {
	at := g.a.Jcc(cc)

	return func() { g.a.Patch32(at, amd64.Rel32(at, g.a.Len())) }
}

func (g *gen) forwardJmp() (here func()) {
	at := g.a.Jmp()

	return func() { g.a.Patch32(at, amd64.Rel32(at, g.a.Len())) }
}

func (g *gen) instr(x iml.Instr) error {
	switch x := x.(type) {
	case *iml.NameToReg:
		return g.nameToReg(x)
	case *iml.RegToName:
		return g.regToName(x)
	case *iml.RR:
		return g.rr(x)
	case *iml.RRR:
		return g.rrr(x)
	case *iml.RRRCarry:
		return g.rrrCarry(x)
	case *iml.RRS32:
		return g.rrs32(x)
	case *iml.RRS32Carry:
		return g.rrs32Carry(x)
	case *iml.RS32:
		return g.rs32(x)
	case *iml.Compare:
		g.a.AluRR(amd64.CMP, width(x.A), gpr(x.A), gpr(x.B))
		g.setcc(cc(x.Cond), x.Dst)
	case *iml.CompareS32:
		g.a.AluRI(amd64.CMP, width(x.A), gpr(x.A), x.Imm)
		g.setcc(cc(x.Cond), x.Dst)
	case *iml.CompareFlags:
		if x.UseImm {
			g.a.AluRI(amd64.CMP, width(x.A), gpr(x.A), x.Imm)
		} else {
			g.a.AluRR(amd64.CMP, width(x.A), gpr(x.A), gpr(x.B))
		}
	case *iml.FlagsJump:
		g.jccTo(cc(x.Cond), g.s.Taken)
		g.jumpTo(g.s.Next)
	case *iml.CondJump:
		g.a.TestRR(amd64.W32, gpr(x.Cond), gpr(x.Cond))

		c := amd64.CCNE
		if !x.MustBeTrue {
			c = amd64.CCE
		}

		g.jccTo(c, g.s.Taken)
		g.jumpTo(g.s.Next)
	case *iml.Jump:
		g.jumpTo(g.s.Taken)
	case *iml.Load:
		return g.load(x)
	case *iml.Store:
		return g.store(x)
	case *iml.AtomicCmpStore:
		g.atomicCmpStore(x)
	case *iml.Call:
		g.a.MovImm64(amd64.RAX, x.Target)
		g.a.CallR(amd64.RAX)
	case *iml.Macro:
		return g.macro(x)
	case *iml.CRLogic:
		return g.crLogic(x)
	case *iml.FPRLoad:
		return g.fprLoad(x)
	case *iml.FPRStore:
		return g.fprStore(x)
	case *iml.FPRUnary:
		return g.fprUnary(x)
	case *iml.FPRRR:
		return g.fprRR(x)
	case *iml.FPRRRR:
		return g.fprRRR(x)
	case *iml.FPRRRRR:
		return g.fprRRRR(x)
	case *iml.FPRCompare:
		g.fprCompare(x)
	case *iml.NoOp:
	case *iml.DebugBreak:
		g.a.Int3()
	default:
		return errors.Wrap(ErrUnsupported, "%T", x)
	}

	return nil
}

func gpr(r iml.Reg) amd64.Reg  { return amd64.Reg(r.ID()) }
func xmm(r iml.Reg) amd64.XReg { return amd64.XReg(r.ID()) }

func width(r iml.Reg) amd64.Width {
	switch r.Format() {
	case iml.FormatI8:
		return amd64.W8
	case iml.FormatI16:
		return amd64.W16
	case iml.FormatI64:
		return amd64.W64
	default:
		return amd64.W32
	}
}

func cc(c iml.Cond) amd64.CC {
	switch c {
	case iml.CondEQ:
		return amd64.CCE
	case iml.CondNE:
		return amd64.CCNE
	case iml.CondLTS:
		return amd64.CCL
	case iml.CondLES:
		return amd64.CCLE
	case iml.CondGTS:
		return amd64.CCG
	case iml.CondGES:
		return amd64.CCGE
	case iml.CondLTU:
		return amd64.CCB
	case iml.CondLEU:
		return amd64.CCBE
	case iml.CondGTU:
		return amd64.CCA
	case iml.CondGEU:
		return amd64.CCAE
	}

	iml.Unreachable(c)

	return 0
}

// setcc materializes a condition as 0 or 1 in dst.
func (g *gen) setcc(c amd64.CC, dst iml.Reg) {
	g.a.Setcc(c, gpr(dst))
	g.a.Movzx(gpr(dst), amd64.W8, gpr(dst))
}

func (n *Native) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	if n == nil {
		return e.AppendNil(b)
	}

	b = e.AppendMap(b, 3)
	b = e.AppendKeyInt(b, "size", len(n.Code))
	b = e.AppendKeyInt(b, "segments", len(n.SegmentOffsets))
	b = e.AppendKeyInt(b, "entries", len(n.Entries))

	return b
}
