// Package parse reads IML listings: a line oriented text form of a function
// used to feed the compiler from files and tests.
//
//	# comment
//	reg a i32 r3         # virtual register bound to a guest name
//	reg t i32            # anonymous temporary
//
//	seg loop ppc 0x80003000 enter 0x80003000
//		a = add a, 0x1 -> cr0
//		t = cmp.ne a, 0
//		jump_if t == true -> loop, exit
//	seg exit
//		macro blr
//
// Instructions are written the way format.AppendInstr prints them.
// Control flow suffixes name their successors after ->, segments
// without a suffix may continue with "fallthrough -> label".
package parse

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/ppcrec/compiler/iml"
)

type (
	State struct {
		c *iml.Context

		regs  map[string]iml.Reg
		segs  map[string]*iml.Segment
		links []link

		cur *iml.Segment
	}

	link struct {
		l     *line
		at    token
		s     *iml.Segment
		taken string
		next  string
	}

	// Error is a syntax or semantic error at a source position.
	Error struct {
		File      string
		Line, Col int
		Err       error
	}
)

func ParseFile(ctx context.Context, name string) (*iml.Context, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	c, err := Parse(ctx, data)
	if e, ok := err.(*Error); ok {
		e.File = name
	}

	return c, err
}

// Parse builds a validated context from a listing.
func Parse(ctx context.Context, text []byte) (c *iml.Context, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "parse", "size", len(text))
	defer tr.Finish("err", &err)

	st := New()

	for n, b := range bytes.Split(text, []byte("\n")) {
		l, err := lex(b, n+1)
		if err != nil {
			return nil, err
		}

		if l.eol() {
			continue
		}

		err = st.line(ctx, l)
		if err != nil {
			return nil, err
		}
	}

	err = st.resolve()
	if err != nil {
		return nil, err
	}

	err = st.c.Validate()
	if err != nil {
		return nil, errors.Wrap(err, "validate")
	}

	tr.Printw("parsed", "segments", len(st.c.Segments), "regs", st.c.NumRegs())

	return st.c, nil
}

func New() *State {
	return &State{
		c:    iml.NewContext(),
		regs: map[string]iml.Reg{},
		segs: map[string]*iml.Segment{},
	}
}

func (st *State) line(ctx context.Context, l *line) error {
	switch l.peek().text {
	case "reg":
		l.next()
		return st.declReg(l)
	case "seg":
		l.next()
		return st.declSeg(ctx, l)
	}

	if st.cur == nil {
		return l.errorf(l.peek(), "instruction outside of a segment")
	}

	at := l.peek()

	x, err := st.instr(l)
	if err != nil {
		return err
	}

	if x == nil { // fallthrough
		return nil
	}

	if st.cur.Suffix() != nil {
		return l.errorf(at, "instruction after the end of segment")
	}

	st.cur.AppendInstr(x)

	return nil
}

// declReg declares a virtual register: reg NAME FORMAT [GUEST].
func (st *State) declReg(l *line) error {
	at := l.peek()

	id, err := l.word()
	if err != nil {
		return err
	}

	if _, ok := st.regs[id]; ok || id == "_" {
		return l.errorf(at, "register %q redeclared", id)
	}

	t := l.peek()

	fs, err := l.word()
	if err != nil {
		return err
	}

	f, ok := iml.ParseFormat(fs)
	if !ok {
		return l.errorf(t, "unknown format %q", fs)
	}

	name := iml.NameNone

	if !l.eol() {
		t = l.peek()

		ns, err := l.word()
		if err != nil {
			return err
		}

		name, ok = iml.ParseName(ns)
		if !ok {
			return l.errorf(t, "unknown name %q", ns)
		}

		if !name.RegisterCached() {
			return l.errorf(t, "%v is memory resident, use load_name", name)
		}
	}

	if err = l.end(); err != nil {
		return err
	}

	st.regs[id] = st.c.NewReg(f, name)

	return nil
}

// declSeg starts a segment: seg LABEL [ppc ADDR] [enter ADDR].
func (st *State) declSeg(ctx context.Context, l *line) error {
	t := l.next()
	if t.kind != tWord && t.kind != tNum {
		return l.errorf(t, "segment label expected")
	}

	if _, ok := st.segs[t.text]; ok {
		return l.errorf(t, "segment %q redefined", t.text)
	}

	s := st.c.NewSegment()
	st.segs[t.text] = s
	st.cur = s

	for !l.eol() {
		kw := l.peek()

		switch {
		case l.accept("ppc"):
			v, err := l.num()
			if err != nil {
				return err
			}

			s.PPCAddr = uint32(v)
		case l.accept("enter"):
			v, err := l.num()
			if err != nil {
				return err
			}

			s.Enterable = true
			s.EnterAddr = uint32(v)
		default:
			return l.errorf(kw, "unexpected %q", kw.text)
		}
	}

	tlog.SpanFromContext(ctx).V("parse").Printw("segment", "label", t.text, "index", s.Index, "line", l.n)

	return nil
}

// targets parses "-> taken[, next]" into a pending link.
func (st *State) targets(l *line, taken, next bool) error {
	at := l.peek()

	if err := l.expect("->"); err != nil {
		return err
	}

	lk := link{l: l, at: at, s: st.cur}

	label := func() (string, error) {
		t := l.next()
		if t.kind != tWord && t.kind != tNum {
			return "", l.errorf(t, "segment label expected")
		}

		return t.text, nil
	}

	var err error

	if taken {
		if lk.taken, err = label(); err != nil {
			return err
		}
	}

	if taken && next {
		if err = l.expect(","); err != nil {
			return err
		}
	}

	if next {
		if lk.next, err = label(); err != nil {
			return err
		}
	}

	st.links = append(st.links, lk)

	return nil
}

func (st *State) resolve() error {
	for _, lk := range st.links {
		find := func(label string) (*iml.Segment, error) {
			s, ok := st.segs[label]
			if !ok {
				return nil, lk.l.errorf(lk.at, "unknown segment %q", label)
			}

			return s, nil
		}

		if lk.taken != "" {
			t, err := find(lk.taken)
			if err != nil {
				return err
			}

			lk.s.SetLinkBranchTaken(t)
		}

		if lk.next != "" {
			n, err := find(lk.next)
			if err != nil {
				return err
			}

			lk.s.SetLinkBranchNotTaken(n)
		}
	}

	return nil
}

func (e *Error) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s:%d:%d: %v", e.File, e.Line, e.Col, e.Err)
	}

	return fmt.Sprintf("%d:%d: %v", e.Line, e.Col, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
