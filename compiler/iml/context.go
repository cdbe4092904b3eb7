package iml

import (
	"slices"

	"tlog.app/go/errors"
)

// Context is the state of one function compilation.
// It is owned by a single compiler and never shared.
type Context struct {
	Segments []*Segment

	// Allocated is set once virtual registers were replaced by host registers.
	Allocated bool

	names    []Name // RegID -> name
	regFloat []bool
	nextTemp int
}

func NewContext() *Context {
	return &Context{}
}

// NewSegment appends an empty segment.
func (c *Context) NewSegment() *Segment {
	s := &Segment{Index: len(c.Segments)}
	c.Segments = append(c.Segments, s)

	return s
}

// InsertSegments inserts n empty segments at index at and renumbers.
func (c *Context) InsertSegments(at, n int) []*Segment {
	l := make([]*Segment, n)
	for i := range l {
		l[i] = &Segment{}
	}

	c.Segments = slices.Insert(c.Segments, at, l...)
	c.renumber()

	return l
}

func (c *Context) renumber() {
	for i, s := range c.Segments {
		s.Index = i
	}
}

// NewReg allocates a virtual register with the given view.
// Register cached names bind the register to guest state;
// NameNone gives an anonymous temporary.
func (c *Context) NewReg(format Format, name Name) Reg {
	base := FormatI64
	if format == FormatF32 || format == FormatF64 {
		base = FormatF64
	}

	id := RegID(len(c.names))

	Assert(name == NameNone || name.RegisterCached(), "name %v is memory resident", name)

	c.names = append(c.names, name)
	c.regFloat = append(c.regFloat, base == FormatF64)

	return MakeReg(base, format, id)
}

// NumRegs is the number of virtual registers allocated so far.
func (c *Context) NumRegs() int { return len(c.names) }

// RegName returns the backing name of a virtual register.
// Anonymous registers get a fresh temporary name on first request.
func (c *Context) RegName(id RegID) Name {
	Assert(int(id) < len(c.names), "unknown reg %d", id)

	if c.names[id] == NameNone {
		c.names[id] = NameTemporary(c.nextTemp)
		c.nextTemp++
	}

	return c.names[id]
}

// PeekRegName returns the name without assigning a temporary.
func (c *Context) PeekRegName(id RegID) Name {
	if int(id) >= len(c.names) {
		return NameNone
	}

	return c.names[id]
}

// RegIsFloat reports the register class of a virtual register.
func (c *Context) RegIsFloat(id RegID) bool {
	return c.regFloat[id]
}

// NumTemporaries is the number of temporary names handed out.
func (c *Context) NumTemporaries() int { return c.nextTemp }

// Validate checks the structural invariants of the segment graph.
func (c *Context) Validate() error {
	for i, s := range c.Segments {
		if s.Index != i {
			return errors.New("segment %d has index %d", i, s.Index)
		}

		for _, t := range s.Succs() {
			if !slices.Contains(t.Prev, s) {
				return errors.New("segment %d: missing back link from %d", i, t.Index)
			}
		}

		for _, p := range s.Prev {
			if p.Next != s && p.Taken != s {
				return errors.New("segment %d: stale predecessor %d", i, p.Index)
			}
		}

		for j, x := range s.Instrs {
			if IsSuffix(x) && j != len(s.Instrs)-1 {
				return errors.New("segment %d: suffix %T at %d is not last", i, x, j)
			}

			if _, ok := x.(*CompareFlags); ok && !c.flagsConsumed(s, j) {
				return errors.New("segment %d: flags compare at %d is not followed by a flags jump", i, j)
			}
		}

		suf := s.Suffix()

		switch {
		case suf != nil && IsConditional(suf):
			if s.Taken == nil || s.Next == nil {
				return errors.New("segment %d: conditional branch needs two successors", i)
			}
		case suf != nil && IsBranch(suf):
			if s.Taken == nil || s.Next != nil {
				return errors.New("segment %d: jump needs exactly a taken successor", i)
			}
		case suf != nil:
			if !s.IsLeaf() && !s.Uncertain {
				return errors.New("segment %d: leaving macro with successors", i)
			}
		default:
			if s.Taken != nil {
				return errors.New("segment %d: taken edge without a branch", i)
			}
		}
	}

	return nil
}

func (c *Context) flagsConsumed(s *Segment, j int) bool {
	for _, x := range s.Instrs[j+1:] {
		switch x.(type) {
		case *FlagsJump:
			return true
		case *NameToReg, *RegToName:
			// plain moves keep host flags
		default:
			return false
		}
	}

	return false
}
