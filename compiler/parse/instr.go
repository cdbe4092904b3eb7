package parse

import (
	"math"
	"strconv"
	"strings"

	"github.com/slowlang/ppcrec/compiler/iml"
)

// instr parses one instruction. It returns nil for fallthrough,
// which only links the current segment.
func (st *State) instr(l *line) (iml.Instr, error) {
	t := l.peek()

	if _, ok := st.regs[t.text]; ok {
		return st.assign(l)
	}

	switch t.text {
	case "store_name":
		l.next()
		return st.storeName(l)
	case "fstore":
		return nil, l.errorf(t, "fstore needs a mode")
	case "flags":
		l.next()
		return st.flags(l)
	case "jump_if":
		l.next()
		return st.jumpIf(l)
	case "jump":
		l.next()
		return &iml.Jump{}, st.targetsEnd(l, true, false)
	case "fallthrough":
		l.next()
		return nil, st.targetsEnd(l, false, true)
	case "macro":
		l.next()
		return st.macro(l)
	case "nop":
		l.next()
		return &iml.NoOp{}, l.end()
	case "debug_break":
		l.next()
		return &iml.DebugBreak{}, l.end()
	}

	switch {
	case strings.HasPrefix(t.text, "fstore."):
		l.next()
		return st.fstore(l, t)
	case strings.HasPrefix(t.text, "mem"):
		l.next()
		return st.store(l, t)
	}

	if _, ok := crBit(t.text); ok {
		return st.crLogic(l)
	}

	return st.assign(l)
}

func (st *State) targetsEnd(l *line, taken, next bool) error {
	if err := st.targets(l, taken, next); err != nil {
		return err
	}

	return l.end()
}

func (st *State) reg(l *line) (iml.Reg, error) {
	t := l.next()
	if t.kind != tWord {
		return iml.InvalidReg, l.errorf(t, "register expected")
	}

	if t.text == "_" {
		return iml.InvalidReg, nil
	}

	r, ok := st.regs[t.text]
	if !ok {
		return iml.InvalidReg, l.errorf(t, "undeclared register %q", t.text)
	}

	return r, nil
}

// typed checks the register kind: float or integer.
func (st *State) typed(l *line, float bool) (iml.Reg, error) {
	t := l.peek()

	r, err := st.reg(l)
	if err != nil {
		return r, err
	}

	if r.Valid() && r.IsFloat() != float {
		kind := "integer"
		if float {
			kind = "float"
		}

		return r, l.errorf(t, "%s register expected", kind)
	}

	return r, nil
}

func (st *State) gpr(l *line) (iml.Reg, error) { return st.typed(l, false) }
func (st *State) fpr(l *line) (iml.Reg, error) { return st.typed(l, true) }

func (st *State) imm32(l *line) (int32, error) {
	t := l.peek()

	v, err := l.num()
	if err != nil {
		return 0, err
	}

	if v < math.MinInt32 || v > math.MaxUint32 {
		return 0, l.errorf(t, "immediate out of range: %d", v)
	}

	return int32(v), nil
}

// storeName: store_name NAME = reg
func (st *State) storeName(l *line) (iml.Instr, error) {
	n, err := st.name(l)
	if err != nil {
		return nil, err
	}

	if err = l.expect("="); err != nil {
		return nil, err
	}

	src, err := st.reg(l)
	if err != nil {
		return nil, err
	}

	return &iml.RegToName{Name: n, Src: src}, l.end()
}

func (st *State) name(l *line) (iml.Name, error) {
	t := l.next()

	n, ok := iml.ParseName(t.text)
	if !ok || n == iml.NameNone {
		return 0, l.errorf(t, "guest name expected")
	}

	return n, nil
}

// flags: flags = cmp a, b|imm
func (st *State) flags(l *line) (iml.Instr, error) {
	if err := l.expect("="); err != nil {
		return nil, err
	}

	if err := l.expect("cmp"); err != nil {
		return nil, err
	}

	a, err := st.gpr(l)
	if err != nil {
		return nil, err
	}

	if err = l.expect(","); err != nil {
		return nil, err
	}

	x := &iml.CompareFlags{A: a}

	if l.peek().kind == tNum {
		x.UseImm = true
		x.Imm, err = st.imm32(l)
	} else {
		x.B, err = st.gpr(l)
	}

	if err != nil {
		return nil, err
	}

	return x, l.end()
}

// jumpIf: jump_if reg == true|false -> T, N
// or jump_if flags.COND -> T, N
func (st *State) jumpIf(l *line) (x iml.Instr, err error) {
	t := l.peek()

	if c, ok := strings.CutPrefix(t.text, "flags."); ok {
		l.next()

		cond, ok := iml.ParseCond(c)
		if !ok {
			return nil, l.errorf(t, "unknown condition %q", c)
		}

		x = &iml.FlagsJump{Cond: cond}
	} else {
		r, err := st.gpr(l)
		if err != nil {
			return nil, err
		}

		if err = l.expect("=="); err != nil {
			return nil, err
		}

		b := l.next()
		v, err := strconv.ParseBool(b.text)
		if err != nil || b.kind != tWord {
			return nil, l.errorf(b, "true or false expected")
		}

		x = &iml.CondJump{Cond: r, MustBeTrue: v}
	}

	return x, st.targetsEnd(l, true, true)
}

// macro: macro OP [p1 [p2 [p3]]] [-> T, N]
func (st *State) macro(l *line) (iml.Instr, error) {
	t := l.peek()

	s, err := l.word()
	if err != nil {
		return nil, err
	}

	op, ok := iml.ParseMacroOp(s)
	if !ok {
		return nil, l.errorf(t, "unknown macro %q", s)
	}

	x := &iml.Macro{Op: op}

	var p [3]int64

	for i := 0; i < len(p) && l.peek().kind == tNum; i++ {
		if p[i], err = l.num(); err != nil {
			return nil, err
		}
	}

	x.Param = uint32(p[0])
	x.Param2 = uint32(p[1])
	x.Param3 = uint16(p[2])

	switch op {
	case iml.MacroCycleCheck:
		err = st.targetsEnd(l, true, true)
	case iml.MacroCountCycles:
		err = l.end()
	default:
		err = l.end()
	}

	return x, err
}

// crLogic: crD = op crA, crB
func (st *State) crLogic(l *line) (iml.Instr, error) {
	bit := func() (uint8, error) {
		t := l.next()

		b, ok := crBit(t.text)
		if !ok {
			return 0, l.errorf(t, "cr bit expected")
		}

		return b, nil
	}

	d, err := bit()
	if err != nil {
		return nil, err
	}

	if err = l.expect("="); err != nil {
		return nil, err
	}

	t := l.peek()

	s, err := l.word()
	if err != nil {
		return nil, err
	}

	op, ok := iml.ParseOp(s)
	if !ok || op < iml.OpCRAnd || op > iml.OpCREqv {
		return nil, l.errorf(t, "cr logic op expected")
	}

	a, err := bit()
	if err != nil {
		return nil, err
	}

	if err = l.expect(","); err != nil {
		return nil, err
	}

	b, err := bit()
	if err != nil {
		return nil, err
	}

	return &iml.CRLogic{Op: op, D: d, A: a, B: b}, l.end()
}

func crBit(s string) (uint8, bool) {
	n, ok := strings.CutPrefix(s, "cr")
	if !ok {
		return 0, false
	}

	v, err := strconv.ParseUint(n, 10, 8)
	if err != nil || v >= 32 {
		return 0, false
	}

	return uint8(v), true
}

// crField parses "-> crN [ignore BITS]" if present.
func (st *State) crField(l *line) (cr iml.CRUpdate, err error) {
	if !l.accept("->") {
		return cr, nil
	}

	t := l.next()

	f, ok := strings.CutPrefix(t.text, "cr")
	v, err := strconv.ParseUint(f, 10, 8)
	if !ok || err != nil || v >= 8 {
		return cr, l.errorf(t, "cr field expected")
	}

	cr.Enabled = true
	cr.Field = uint8(v)

	if l.accept("ignore") {
		t = l.next()

		v, err = strconv.ParseUint(t.text, 2, 8)
		if err != nil || t.kind != tNum || v > 0xf {
			return cr, l.errorf(t, "binary mask expected")
		}

		cr.IgnoreMask = uint8(v)
	}

	return cr, nil
}

// addr parses "[base + index + off]". Any part may be omitted.
func (st *State) addr(l *line) (base, index iml.Reg, off int32, err error) {
	if err = l.expect("["); err != nil {
		return
	}

	regs := 0

	for {
		t := l.peek()

		switch {
		case t.kind == tNum:
			v, err := st.imm32(l)
			if err != nil {
				return base, index, off, err
			}

			off += v
		case t.kind == tWord:
			r, err := st.gpr(l)
			if err != nil {
				return base, index, off, err
			}

			if r.Valid() {
				if regs == 2 {
					return base, index, off, l.errorf(t, "too many address registers")
				}

				if regs == 0 {
					base = r
				} else {
					index = r
				}

				regs++
			}
		default:
			return base, index, off, l.errorf(t, "address term expected")
		}

		if l.accept("]") {
			return base, index, off, nil
		}

		if err = l.expect("+"); err != nil {
			return
		}
	}
}

func memSize(l *line, t token, pref string) (uint8, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(t.text, pref), 10, 8)
	if err != nil || v != 8 && v != 16 && v != 32 && v != 64 {
		return 0, l.errorf(t, "bad memory access %q", t.text)
	}

	return uint8(v), nil
}

// store: memN[addr] = reg [be]
func (st *State) store(l *line, t token) (iml.Instr, error) {
	size, err := memSize(l, t, "mem")
	if err != nil {
		return nil, err
	}

	x := &iml.Store{Size: size}

	x.Base, x.Index, x.Offset, err = st.addr(l)
	if err != nil {
		return nil, err
	}

	if err = l.expect("="); err != nil {
		return nil, err
	}

	if x.Src, err = st.gpr(l); err != nil {
		return nil, err
	}

	x.SwapEndian = l.accept("be")

	return x, l.end()
}

type quant struct {
	gqr         iml.Reg
	gqrIndex    uint8
	scale       int8
	notExpanded bool
}

// quantFlags parses "[gqrN] [scale N] [raw] [with REG]".
// with names the register holding the GQR value of ps.gqr accesses.
func (st *State) quantFlags(l *line) (q quant, err error) {
	for !l.eol() {
		t := l.next()

		switch {
		case strings.HasPrefix(t.text, "gqr"):
			v, err := strconv.ParseUint(t.text[3:], 10, 8)
			if err != nil || v >= 8 {
				return q, l.errorf(t, "bad gqr %q", t.text)
			}

			q.gqrIndex = uint8(v)
		case t.text == "scale":
			v, err := l.num()
			if err != nil {
				return q, err
			}

			if v < -32 || v > 31 {
				return q, l.errorf(t, "scale out of range: %d", v)
			}

			q.scale = int8(v)
		case t.text == "raw":
			q.notExpanded = true
		case t.text == "with":
			if q.gqr, err = st.gpr(l); err != nil {
				return q, err
			}
		default:
			return q, l.errorf(t, "unexpected %q", t.text)
		}
	}

	return q, nil
}

func fprMode(l *line, t token, pref string) (iml.FPRMode, error) {
	s := strings.TrimPrefix(t.text, pref)

	m, ok := iml.ParseFPRMode(s)
	if !ok {
		return 0, l.errorf(t, "unknown mode %q", s)
	}

	return m, nil
}

// fstore: fstore.MODE [addr] = src[, src2] [quant flags]
func (st *State) fstore(l *line, t token) (iml.Instr, error) {
	mode, err := fprMode(l, t, "fstore.")
	if err != nil {
		return nil, err
	}

	x := &iml.FPRStore{Mode: mode, Src2: iml.InvalidReg}

	x.Base, x.Index, x.Offset, err = st.addr(l)
	if err != nil {
		return nil, err
	}

	if err = l.expect("="); err != nil {
		return nil, err
	}

	if x.Src, err = st.fpr(l); err != nil {
		return nil, err
	}

	if l.accept(",") {
		if x.Src2, err = st.fpr(l); err != nil {
			return nil, err
		}
	}

	q, err := st.quantFlags(l)
	if err != nil {
		return nil, err
	}

	x.GQR, x.GQRIndex, x.Scale, x.NotExpanded = q.gqr, q.gqrIndex, q.scale, q.notExpanded

	if mode == iml.FPRModePSGeneric && !x.GQR.Valid() {
		return nil, l.errorf(t, "ps.gqr store needs a gqr register")
	}

	return x, nil
}

// assign parses the instructions writing registers: dst[, dst2] = rhs.
func (st *State) assign(l *line) (iml.Instr, error) {
	at := l.peek()

	dst, err := st.reg(l)
	if err != nil {
		return nil, err
	}

	dst2 := iml.InvalidReg
	pair := false

	if l.accept(",") {
		pair = true

		if dst2, err = st.reg(l); err != nil {
			return nil, err
		}
	}

	if err = l.expect("="); err != nil {
		return nil, err
	}

	t := l.peek()
	if t.kind != tWord {
		return nil, l.errorf(t, "operation expected")
	}

	l.next()

	single := func(x iml.Instr, err error) (iml.Instr, error) {
		if err == nil && pair {
			err = l.errorf(at, "%s has one destination", t.text)
		}

		return x, err
	}

	switch {
	case t.text == "load_name":
		n, err := st.name(l)
		if err != nil {
			return nil, err
		}

		return single(&iml.NameToReg{Dst: dst, Name: n}, l.end())
	case strings.HasPrefix(t.text, "mem"):
		return single(st.load(l, t, dst))
	case strings.HasPrefix(t.text, "fload."):
		return st.fload(l, t, dst, dst2)
	case t.text == "cas":
		return single(st.cas(l, dst))
	case t.text == "call":
		return single(st.call(l, dst))
	case strings.HasPrefix(t.text, "cmp."):
		return single(st.compare(l, t, dst))
	case strings.HasPrefix(t.text, "fcmp."):
		return single(st.fcompare(l, t, dst))
	}

	op, ok := iml.ParseOp(t.text)
	if !ok {
		return nil, l.errorf(t, "unknown operation %q", t.text)
	}

	if op.IsFloat() {
		return single(st.fop(l, t, op, dst))
	}

	if op >= iml.OpCRAnd {
		return nil, l.errorf(t, "cr logic works on cr bits")
	}

	if op == iml.OpAddCarry || op == iml.OpAddCarryOut {
		if !pair {
			return nil, l.errorf(t, "%v needs a carry destination", op)
		}

		return st.carry(l, op, dst, dst2)
	}

	return single(st.op(l, t, op, dst))
}

// load: memN[addr] [sext] [be]
func (st *State) load(l *line, t token, dst iml.Reg) (iml.Instr, error) {
	size, err := memSize(l, t, "mem")
	if err != nil {
		return nil, err
	}

	x := &iml.Load{Dst: dst, Size: size}

	x.Base, x.Index, x.Offset, err = st.addr(l)
	if err != nil {
		return nil, err
	}

	x.SignExtend = l.accept("sext")
	x.SwapEndian = l.accept("be")

	return x, l.end()
}

// fload: dst[, dst2] = fload.MODE [addr] [quant flags]
func (st *State) fload(l *line, t token, dst, dst2 iml.Reg) (iml.Instr, error) {
	mode, err := fprMode(l, t, "fload.")
	if err != nil {
		return nil, err
	}

	if !dst.IsFloat() || dst2.Valid() && !dst2.IsFloat() {
		return nil, l.errorf(t, "fload writes float registers")
	}

	x := &iml.FPRLoad{Dst: dst, Dst2: dst2, Mode: mode}

	x.Base, x.Index, x.Offset, err = st.addr(l)
	if err != nil {
		return nil, err
	}

	q, err := st.quantFlags(l)
	if err != nil {
		return nil, err
	}

	x.GQR, x.GQRIndex, x.Scale, x.NotExpanded = q.gqr, q.gqrIndex, q.scale, q.notExpanded

	if mode == iml.FPRModePSGeneric && !x.GQR.Valid() {
		return nil, l.errorf(t, "ps.gqr load needs a gqr register")
	}

	return x, nil
}

// cas: dst = cas [ea] expected -> new
func (st *State) cas(l *line, dst iml.Reg) (iml.Instr, error) {
	x := &iml.AtomicCmpStore{Result: dst}

	if err := l.expect("["); err != nil {
		return nil, err
	}

	var err error

	if x.EA, err = st.gpr(l); err != nil {
		return nil, err
	}

	if err = l.expect("]"); err != nil {
		return nil, err
	}

	if x.Expected, err = st.gpr(l); err != nil {
		return nil, err
	}

	if err = l.expect("->"); err != nil {
		return nil, err
	}

	if x.New, err = st.gpr(l); err != nil {
		return nil, err
	}

	return x, l.end()
}

// call: dst = call ADDR(a, b, c)
func (st *State) call(l *line, dst iml.Reg) (iml.Instr, error) {
	v, err := l.num()
	if err != nil {
		return nil, err
	}

	x := &iml.Call{Target: uint64(v), Result: dst}

	if err = l.expect("("); err != nil {
		return nil, err
	}

	for i := 0; !l.accept(")"); i++ {
		t := l.peek()

		if i == len(x.Args) {
			return nil, l.errorf(t, "too many arguments")
		}

		if i != 0 {
			if err = l.expect(","); err != nil {
				return nil, err
			}
		}

		if x.Args[i], err = st.gpr(l); err != nil {
			return nil, err
		}
	}

	return x, l.end()
}

// compare: dst = cmp.COND a, b|imm
func (st *State) compare(l *line, t token, dst iml.Reg) (iml.Instr, error) {
	c, ok := iml.ParseCond(strings.TrimPrefix(t.text, "cmp."))
	if !ok {
		return nil, l.errorf(t, "unknown condition %q", t.text)
	}

	a, err := st.gpr(l)
	if err != nil {
		return nil, err
	}

	if err = l.expect(","); err != nil {
		return nil, err
	}

	if l.peek().kind == tNum {
		imm, err := st.imm32(l)
		if err != nil {
			return nil, err
		}

		return &iml.CompareS32{Cond: c, Dst: dst, A: a, Imm: imm}, l.end()
	}

	b, err := st.gpr(l)
	if err != nil {
		return nil, err
	}

	return &iml.Compare{Cond: c, Dst: dst, A: a, B: b}, l.end()
}

// fcompare: dst = fcmp.FC a, b [-> crN [ignore BITS]]
func (st *State) fcompare(l *line, t token, dst iml.Reg) (iml.Instr, error) {
	c, ok := iml.ParseFCond(strings.TrimPrefix(t.text, "fcmp."))
	if !ok {
		return nil, l.errorf(t, "unknown condition %q", t.text)
	}

	x := &iml.FPRCompare{Cond: c, Dst: dst}

	var err error

	if x.A, err = st.fpr(l); err != nil {
		return nil, err
	}

	if err = l.expect(","); err != nil {
		return nil, err
	}

	if x.B, err = st.fpr(l); err != nil {
		return nil, err
	}

	if x.CR, err = st.crField(l); err != nil {
		return nil, err
	}

	if x.CR.Enabled == dst.Valid() {
		return nil, l.errorf(t, "fcmp writes either a register or a cr field")
	}

	return x, l.end()
}

// op parses integer operations by their operand shape:
// op a, op a, b, op a, imm or op imm.
func (st *State) op(l *line, t token, op iml.Op, dst iml.Reg) (iml.Instr, error) {
	if dst.IsFloat() {
		return nil, l.errorf(t, "%v writes an integer register", op)
	}

	var x iml.Instr

	if l.peek().kind == tNum {
		imm, err := st.imm32(l)
		if err != nil {
			return nil, err
		}

		return &iml.RS32{Op: op, Dst: dst, Imm: imm}, l.end()
	}

	a, err := st.gpr(l)
	if err != nil {
		return nil, err
	}

	var cr *iml.CRUpdate

	switch {
	case !l.accept(","):
		rr := &iml.RR{Op: op, Dst: dst, A: a}
		x, cr = rr, &rr.CR
	case l.peek().kind == tNum:
		imm, err := st.imm32(l)
		if err != nil {
			return nil, err
		}

		rr := &iml.RRS32{Op: op, Dst: dst, A: a, Imm: imm}
		x, cr = rr, &rr.CR
	default:
		b, err := st.gpr(l)
		if err != nil {
			return nil, err
		}

		rr := &iml.RRR{Op: op, Dst: dst, A: a, B: b}
		x, cr = rr, &rr.CR
	}

	if *cr, err = st.crField(l); err != nil {
		return nil, err
	}

	return x, l.end()
}

// carry: dst, ca = adc|addc a, b|imm
func (st *State) carry(l *line, op iml.Op, dst, ca iml.Reg) (iml.Instr, error) {
	a, err := st.gpr(l)
	if err != nil {
		return nil, err
	}

	if err = l.expect(","); err != nil {
		return nil, err
	}

	var (
		x  iml.Instr
		cr *iml.CRUpdate
	)

	if l.peek().kind == tNum {
		imm, err := st.imm32(l)
		if err != nil {
			return nil, err
		}

		rr := &iml.RRS32Carry{Op: op, Dst: dst, A: a, Carry: ca, Imm: imm}
		x, cr = rr, &rr.CR
	} else {
		b, err := st.gpr(l)
		if err != nil {
			return nil, err
		}

		rr := &iml.RRRCarry{Op: op, Dst: dst, A: a, B: b, Carry: ca}
		x, cr = rr, &rr.CR
	}

	if *cr, err = st.crField(l); err != nil {
		return nil, err
	}

	return x, l.end()
}

// fop parses float operations with zero to three operands.
// A single operand equal to the destination is an in place op.
func (st *State) fop(l *line, t token, op iml.Op, dst iml.Reg) (iml.Instr, error) {
	if !dst.IsFloat() {
		return nil, l.errorf(t, "%v writes a float register", op)
	}

	var args []iml.Reg

	for !l.eol() {
		if len(args) != 0 {
			if err := l.expect(","); err != nil {
				return nil, err
			}
		}

		r, err := st.fpr(l)
		if err != nil {
			return nil, err
		}

		args = append(args, r)
	}

	var x iml.Instr

	switch {
	case len(args) == 0 && op == iml.OpFLoadOne:
		x = &iml.FPRUnary{Op: op, Reg: dst}
	case len(args) == 1 && args[0] == dst:
		x = &iml.FPRUnary{Op: op, Reg: dst}
	case len(args) == 1:
		x = &iml.FPRRR{Op: op, Dst: dst, A: args[0]}
	case len(args) == 2:
		x = &iml.FPRRRR{Op: op, Dst: dst, A: args[0], B: args[1]}
	case len(args) == 3:
		x = &iml.FPRRRRR{Op: op, Dst: dst, A: args[0], B: args[1], C: args[2]}
	default:
		return nil, l.errorf(t, "%v: bad operand count %d", op, len(args))
	}

	return x, nil
}
