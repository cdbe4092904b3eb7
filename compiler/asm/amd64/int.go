package amd64

type (
	// ALU is the /digit of the classic arithmetic group.
	ALU uint8

	// Shift is the /digit of the shift and rotate group.
	Shift uint8

	// Unary is the /digit of the F7 group.
	Unary uint8
)

const (
	ADD ALU = iota
	OR
	ADC
	SBB
	AND
	SUB
	XOR
	CMP
)

const (
	ROL Shift = 0
	ROR Shift = 1
	SHL Shift = 4
	SHR Shift = 5
	SAR Shift = 7
)

const (
	NOT  Unary = 2
	NEG  Unary = 3
	MUL  Unary = 4
	IMUL Unary = 5
	DIV  Unary = 6
	IDIV Unary = 7
)

func fitsInt8(x int32) bool { return x >= -128 && x <= 127 }

// MovRR copies src into dst. A 32 bit move zeroes the upper half.
func (a *Asm) MovRR(w Width, dst, src Reg) {
	a.emit(intEnc(w, byteVariant(w, 0x89)), uint8(src), rmReg(dst))
}

// Load is mov dst, [m].
func (a *Asm) Load(w Width, dst Reg, m Mem) {
	a.emit(intEnc(w, byteVariant(w, 0x8b)), uint8(dst), rmMem(m))
}

// Store is mov [m], src.
func (a *Asm) Store(w Width, m Mem, src Reg) {
	a.emit(intEnc(w, byteVariant(w, 0x89)), uint8(src), rmMem(m))
}

// MovImm32 loads a 32 bit constant zero extended.
func (a *Asm) MovImm32(dst Reg, imm uint32) {
	if dst.high() {
		a.b = append(a.b, 0x41)
	}

	a.b = append(a.b, 0xb8+dst.low())
	a.imm32(imm)
}

// MovImm64 picks the shortest form that produces the constant.
func (a *Asm) MovImm64(dst Reg, imm uint64) {
	switch {
	case imm>>32 == 0:
		a.MovImm32(dst, uint32(imm))
	case int64(imm) >= -1<<31 && int64(imm) < 1<<31:
		a.emit(intEnc(W64, 0xc7), 0, rmReg(dst))
		a.imm32(uint32(imm))
	default:
		rex := byte(0x48)
		if dst.high() {
			rex |= 1
		}

		a.b = append(a.b, rex, 0xb8+dst.low())
		a.imm64(imm)
	}
}

// StoreImm is mov [m], imm. W64 sign extends a 32 bit immediate.
func (a *Asm) StoreImm(w Width, m Mem, imm int32) {
	a.emit(intEnc(w, byteVariant(w, 0xc7)), 0, rmMem(m))
	a.immW(w, imm)
}

func (a *Asm) immW(w Width, imm int32) {
	switch w {
	case W8:
		a.b = append(a.b, byte(imm))
	case W16:
		a.imm16(uint16(imm))
	default:
		a.imm32(uint32(imm))
	}
}

// Movzx zero extends an 8 or 16 bit source into a 32 bit register.
func (a *Asm) Movzx(dst Reg, from Width, src Reg) {
	a.emit(encoding{op: []byte{0x0f, extOp(0xb6, from)}, byteOp: from == W8}, uint8(dst), rmReg(src))
}

func (a *Asm) MovzxLoad(dst Reg, from Width, m Mem) {
	a.emit(encoding{op: []byte{0x0f, extOp(0xb6, from)}}, uint8(dst), rmMem(m))
}

// Movsx sign extends an 8 or 16 bit source into a 32 bit register.
func (a *Asm) Movsx(dst Reg, from Width, src Reg) {
	a.emit(encoding{op: []byte{0x0f, extOp(0xbe, from)}, byteOp: from == W8}, uint8(dst), rmReg(src))
}

func (a *Asm) MovsxLoad(dst Reg, from Width, m Mem) {
	a.emit(encoding{op: []byte{0x0f, extOp(0xbe, from)}}, uint8(dst), rmMem(m))
}

// Movsxd sign extends a 32 bit register into 64 bits.
func (a *Asm) Movsxd(dst, src Reg) {
	a.emit(encoding{w: true, op: []byte{0x63}}, uint8(dst), rmReg(src))
}

func extOp(op byte, from Width) byte {
	if from == W16 {
		return op + 1
	}

	return op
}

// MovbeLoad loads and byte swaps in one instruction.
func (a *Asm) MovbeLoad(w Width, dst Reg, m Mem) {
	a.emit(intEnc(w, 0x0f, 0x38, 0xf0), uint8(dst), rmMem(m))
}

func (a *Asm) MovbeStore(w Width, m Mem, src Reg) {
	a.emit(intEnc(w, 0x0f, 0x38, 0xf1), uint8(src), rmMem(m))
}

// Bswap reverses bytes of a 32 or 64 bit register.
func (a *Asm) Bswap(w Width, r Reg) {
	rex := byte(0)
	if w == W64 {
		rex |= 0x08
	}
	if r.high() {
		rex |= 0x01
	}
	if rex != 0 {
		a.b = append(a.b, 0x40|rex)
	}

	a.b = append(a.b, 0x0f, 0xc8+r.low())
}

// Lea is lea dst, [m].
func (a *Asm) Lea(w Width, dst Reg, m Mem) {
	a.emit(intEnc(w, 0x8d), uint8(dst), rmMem(m))
}

// AluRR is op dst, src.
func (a *Asm) AluRR(op ALU, w Width, dst, src Reg) {
	a.emit(intEnc(w, byteVariant(w, byte(op)<<3|1)), uint8(src), rmReg(dst))
}

// AluRM is op dst, [m].
func (a *Asm) AluRM(op ALU, w Width, dst Reg, m Mem) {
	a.emit(intEnc(w, byteVariant(w, byte(op)<<3|3)), uint8(dst), rmMem(m))
}

// AluMR is op [m], src.
func (a *Asm) AluMR(op ALU, w Width, m Mem, src Reg) {
	a.emit(intEnc(w, byteVariant(w, byte(op)<<3|1)), uint8(src), rmMem(m))
}

// AluRI is op dst, imm using the short immediate form when it fits.
func (a *Asm) AluRI(op ALU, w Width, dst Reg, imm int32) {
	a.aluImm(op, w, rmReg(dst), imm)
}

// AluMI is op [m], imm.
func (a *Asm) AluMI(op ALU, w Width, m Mem, imm int32) {
	a.aluImm(op, w, rmMem(m), imm)
}

func (a *Asm) aluImm(op ALU, w Width, o rm, imm int32) {
	switch {
	case w == W8:
		a.emit(intEnc(w, 0x80), uint8(op), o)
		a.b = append(a.b, byte(imm))
	case fitsInt8(imm):
		a.emit(intEnc(w, 0x83), uint8(op), o)
		a.b = append(a.b, byte(imm))
	default:
		a.emit(intEnc(w, 0x81), uint8(op), o)
		a.immW(w, imm)
	}
}

// TestRR is test a, b.
func (a *Asm) TestRR(w Width, x, y Reg) {
	a.emit(intEnc(w, byteVariant(w, 0x85)), uint8(y), rmReg(x))
}

func (a *Asm) TestRI(w Width, r Reg, imm int32) {
	a.emit(intEnc(w, byteVariant(w, 0xf7)), 0, rmReg(r))
	a.immW(w, imm)
}

func (a *Asm) TestMI(w Width, m Mem, imm int32) {
	a.emit(intEnc(w, byteVariant(w, 0xf7)), 0, rmMem(m))
	a.immW(w, imm)
}

// ImulRR is the two operand signed multiply dst *= src.
func (a *Asm) ImulRR(w Width, dst, src Reg) {
	a.emit(intEnc(w, 0x0f, 0xaf), uint8(dst), rmReg(src))
}

// ImulRRI is dst = src * imm.
func (a *Asm) ImulRRI(w Width, dst, src Reg, imm int32) {
	if fitsInt8(imm) {
		a.emit(intEnc(w, 0x6b), uint8(dst), rmReg(src))
		a.b = append(a.b, byte(imm))

		return
	}

	a.emit(intEnc(w, 0x69), uint8(dst), rmReg(src))
	a.imm32(uint32(imm))
}

// UnaryR applies not, neg, mul, imul, div or idiv to r.
// The multiply and divide forms use rdx:rax implicitly.
func (a *Asm) UnaryR(op Unary, w Width, r Reg) {
	a.emit(intEnc(w, byteVariant(w, 0xf7)), uint8(op), rmReg(r))
}

// Cdq sign extends eax into edx, or rax into rdx for W64.
func (a *Asm) Cdq(w Width) {
	if w == W64 {
		a.b = append(a.b, 0x48)
	}

	a.b = append(a.b, 0x99)
}

// ShiftCL shifts r by cl.
func (a *Asm) ShiftCL(op Shift, w Width, r Reg) {
	a.emit(intEnc(w, byteVariant(w, 0xd3)), uint8(op), rmReg(r))
}

// ShiftRI shifts r by a constant.
func (a *Asm) ShiftRI(op Shift, w Width, r Reg, n uint8) {
	a.emit(intEnc(w, byteVariant(w, 0xc1)), uint8(op), rmReg(r))
	a.b = append(a.b, n)
}

// ShiftX is the BMI2 three operand shift dst = src op count.
// Only SHL, SHR and SAR have such a form.
func (a *Asm) ShiftX(op Shift, w Width, dst, src, count Reg) {
	var pp byte

	switch op {
	case SHL:
		pp = 1 // 66
	case SHR:
		pp = 3 // F2
	case SAR:
		pp = 2 // F3
	default:
		panic("amd64: no bmi2 form for shift")
	}

	a.vex3(pp, w == W64, uint8(dst), uint8(count), rmReg(src), 0xf7)
}

// Lzcnt counts leading zero bits. Requires the LZCNT feature.
func (a *Asm) Lzcnt(w Width, dst, src Reg) {
	e := intEnc(w, 0x0f, 0xbd)
	e.prefix = 0xf3

	a.emit(e, uint8(dst), rmReg(src))
}

// Bsr finds the highest set bit. dst is undefined if src is zero.
func (a *Asm) Bsr(w Width, dst, src Reg) {
	a.emit(intEnc(w, 0x0f, 0xbd), uint8(dst), rmReg(src))
}

// Setcc sets the low byte of r to the condition.
func (a *Asm) Setcc(cc CC, r Reg) {
	a.emit(encoding{byteOp: true, op: []byte{0x0f, 0x90 + byte(cc)}}, 0, rmReg(r))
}

// SetccMem stores the condition as a byte at m.
func (a *Asm) SetccMem(cc CC, m Mem) {
	a.emit(encoding{op: []byte{0x0f, 0x90 + byte(cc)}}, 0, rmMem(m))
}

// LockCmpxchg is lock cmpxchg [m], src comparing with eax.
func (a *Asm) LockCmpxchg(w Width, m Mem, src Reg) {
	e := intEnc(w, 0x0f, 0xb1)
	e.prefix = 0xf0

	a.emit(e, uint8(src), rmMem(m))
}

// Jcc emits a conditional jump with a zero rel32 and returns the offset of the field.
func (a *Asm) Jcc(cc CC) int {
	a.b = append(a.b, 0x0f, 0x80+byte(cc))
	at := len(a.b)
	a.imm32(0)

	return at
}

// Jcc8 emits a short conditional jump over n bytes.
func (a *Asm) Jcc8(cc CC, n int8) {
	a.b = append(a.b, 0x70+byte(cc), byte(n))
}

// Jmp emits jmp rel32 and returns the offset of the field.
func (a *Asm) Jmp() int {
	a.b = append(a.b, 0xe9)
	at := len(a.b)
	a.imm32(0)

	return at
}

// JmpMem is an indirect jmp through memory.
func (a *Asm) JmpMem(m Mem) {
	a.emit(encoding{op: []byte{0xff}}, 4, rmMem(m))
}

// CallMem is an indirect call through memory.
func (a *Asm) CallMem(m Mem) {
	a.emit(encoding{op: []byte{0xff}}, 2, rmMem(m))
}

// CallR calls the address in r.
func (a *Asm) CallR(r Reg) {
	a.emit(encoding{op: []byte{0xff}}, 2, rmReg(r))
}

func (a *Asm) Ret()  { a.b = append(a.b, 0xc3) }
func (a *Asm) Int3() { a.b = append(a.b, 0xcc) }
func (a *Asm) Nop()  { a.b = append(a.b, 0x90) }

// Rel32 is the displacement a rel32 field at `at` needs to reach target.
func Rel32(at, target int) int32 {
	return int32(target - (at + 4))
}
