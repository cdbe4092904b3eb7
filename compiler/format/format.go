package format

import (
	"github.com/nikandfor/hacked/hfmt"

	"github.com/slowlang/ppcrec/compiler/asm/amd64"
	"github.com/slowlang/ppcrec/compiler/iml"
)

type (
	// RangeInfo is one liveness range as the allocator reports it.
	// Start and End are edge positions: 2i reads of instruction i, 2i+1 writes,
	// -1 the segment entry and 1<<30 its exit.
	RangeInfo struct {
		Reg   iml.RegID
		Name  iml.Name
		Float bool

		Start, End int
		Phys       int

		Load, Store bool
		Delayed     bool
		Connected   bool
	}

	Opts struct {
		// Overlay returns the ranges of a segment, if set.
		Overlay func(seg int) []RangeInfo

		// NoInstrs prints segment headers and ranges only.
		NoInstrs bool
	}
)

const (
	posStart = -1
	posEnd   = 1 << 30
)

// DumpContext appends a listing of every segment of c.
func DumpContext(b []byte, c *iml.Context, o Opts) []byte {
	for i, s := range c.Segments {
		if i != 0 {
			b = append(b, '\n')
		}

		b = DumpSegment(b, c, s, o)
	}

	return b
}

// DumpSegment appends a listing of one segment.
func DumpSegment(b []byte, c *iml.Context, s *iml.Segment, o Opts) []byte {
	b = hfmt.Appendf(b, "seg %d  ppc %#08x  depth %d", s.Index, s.PPCAddr, s.LoopDepth)

	if s.Enterable {
		b = hfmt.Appendf(b, "  enter %#08x", s.EnterAddr)
	}

	if s.Uncertain {
		b = append(b, "  uncertain"...)
	}

	b = append(b, '\n')

	b = append(b, "  prev"...)
	for _, p := range s.Prev {
		b = hfmt.Appendf(b, " %d", p.Index)
	}

	if s.Next != nil {
		b = hfmt.Appendf(b, "  next %d", s.Next.Index)
	}

	if s.Taken != nil {
		b = hfmt.Appendf(b, "  taken %d", s.Taken.Index)
	}

	b = append(b, '\n')

	var ranges []RangeInfo
	if o.Overlay != nil {
		ranges = o.Overlay(s.Index)
	}

	if !o.NoInstrs {
		for i, x := range s.Instrs {
			st := len(b)

			b = hfmt.Appendf(b, "  %3d  ", i)
			b = AppendInstr(b, c, x)

			if len(ranges) != 0 {
				b = appendLive(b, st, ranges, i)
			}

			b = append(b, '\n')
		}
	}

	for _, r := range ranges {
		b = appendRange(b, r)
	}

	return b
}

// appendLive pads the line started at st and lists ranges live at instruction i.
func appendLive(b []byte, st int, ranges []RangeInfo, i int) []byte {
	const col = 56

	for len(b)-st < col {
		b = append(b, ' ')
	}

	b = append(b, "|"...)

	for _, r := range ranges {
		if r.End < 2*i || r.Start > 2*i+1 {
			continue
		}

		b = hfmt.Appendf(b, " %s=%s", regName(r.Reg, r.Float), physName(r.Phys, r.Float))
	}

	return b
}

func appendRange(b []byte, r RangeInfo) []byte {
	b = hfmt.Appendf(b, "  range %-6s %-8s %-5s ", regName(r.Reg, r.Float), r.Name.String(), physName(r.Phys, r.Float))
	b = appendPos(b, r.Start)
	b = append(b, ".."...)
	b = appendPos(b, r.End)

	flag := func(ok bool, s string) {
		if ok {
			b = append(b, ' ')
			b = append(b, s...)
		}
	}

	flag(r.Load, "load")
	flag(r.Store, "store")
	flag(r.Delayed, "delayed")
	flag(r.Connected, "conn")

	return append(b, '\n')
}

func appendPos(b []byte, p int) []byte {
	switch {
	case p == posStart:
		return append(b, "entry"...)
	case p == posEnd:
		return append(b, "exit"...)
	case p%2 == 0:
		return hfmt.Appendf(b, "%d.r", p/2)
	default:
		return hfmt.Appendf(b, "%d.w", p/2)
	}
}

func regName(id iml.RegID, float bool) string {
	if float {
		return string(hfmt.Appendf(nil, "f%d", id))
	}

	return string(hfmt.Appendf(nil, "r%d", id))
}

func physName(p int, float bool) string {
	switch {
	case p < 0:
		return "-"
	case float:
		return amd64.XReg(p).String()
	default:
		return amd64.Reg(p).String()
	}
}
