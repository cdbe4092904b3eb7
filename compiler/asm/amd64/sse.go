package amd64

// SSE2 scalar double and single forms. Every helper takes
// the destination first, Intel style.

func sse(prefix byte, op ...byte) encoding {
	return encoding{prefix: prefix, op: append([]byte{0x0f}, op...)}
}

func (a *Asm) MovsdLoad(dst XReg, m Mem)  { a.emit(sse(0xf2, 0x10), uint8(dst), rmMem(m)) }
func (a *Asm) MovsdStore(m Mem, src XReg) { a.emit(sse(0xf2, 0x11), uint8(src), rmMem(m)) }
func (a *Asm) MovssLoad(dst XReg, m Mem)  { a.emit(sse(0xf3, 0x10), uint8(dst), rmMem(m)) }
func (a *Asm) MovssStore(m Mem, src XReg) { a.emit(sse(0xf3, 0x11), uint8(src), rmMem(m)) }

// Movapd copies the whole register.
func (a *Asm) Movapd(dst, src XReg) { a.emit(sse(0x66, 0x28), uint8(dst), rmX(src)) }

// MovqXR moves a 64 bit GPR into the low lane, zeroing the rest.
func (a *Asm) MovqXR(dst XReg, src Reg) {
	e := sse(0x66, 0x6e)
	e.w = true

	a.emit(e, uint8(dst), rmReg(src))
}

// MovqRX moves the low 64 bits into a GPR.
func (a *Asm) MovqRX(dst Reg, src XReg) {
	e := sse(0x66, 0x7e)
	e.w = true

	a.emit(e, uint8(src), rmReg(dst))
}

// MovdXR moves a 32 bit GPR into the low lane.
func (a *Asm) MovdXR(dst XReg, src Reg) { a.emit(sse(0x66, 0x6e), uint8(dst), rmReg(src)) }

// MovdRX moves the low 32 bits into a GPR.
func (a *Asm) MovdRX(dst Reg, src XReg) { a.emit(sse(0x66, 0x7e), uint8(src), rmReg(dst)) }

func (a *Asm) Cvtss2sd(dst, src XReg) { a.emit(sse(0xf3, 0x5a), uint8(dst), rmX(src)) }
func (a *Asm) Cvtsd2ss(dst, src XReg) { a.emit(sse(0xf2, 0x5a), uint8(dst), rmX(src)) }

// Cvttsd2si truncates to a signed 32 bit integer.
func (a *Asm) Cvttsd2si(dst Reg, src XReg) { a.emit(sse(0xf2, 0x2c), uint8(dst), rmX(src)) }

// Cvtsi2sd converts a signed 32 bit integer.
func (a *Asm) Cvtsi2sd(dst XReg, src Reg) { a.emit(sse(0xf2, 0x2a), uint8(dst), rmReg(src)) }

// SSEOp is a scalar double arithmetic opcode.
type SSEOp byte

const (
	ADDSD SSEOp = 0x58
	MULSD SSEOp = 0x59
	SUBSD SSEOp = 0x5c
	MINSD SSEOp = 0x5d
	DIVSD SSEOp = 0x5e
	MAXSD SSEOp = 0x5f
)

// ArithSD is op dst, src on scalar doubles.
func (a *Asm) ArithSD(op SSEOp, dst, src XReg) { a.emit(sse(0xf2, byte(op)), uint8(dst), rmX(src)) }

// Ucomisd compares low doubles: ZF, PF, CF with PF set on unordered.
func (a *Asm) Ucomisd(x, y XReg) { a.emit(sse(0x66, 0x2e), uint8(x), rmX(y)) }

// PackedOp is a bitwise packed double opcode.
type PackedOp byte

const (
	ANDPD  PackedOp = 0x54
	ANDNPD PackedOp = 0x55
	ORPD   PackedOp = 0x56
	XORPD  PackedOp = 0x57
)

func (a *Asm) BitPD(op PackedOp, dst, src XReg) { a.emit(sse(0x66, byte(op)), uint8(dst), rmX(src)) }

// BitPDMem uses a 16 byte aligned constant at m.
func (a *Asm) BitPDMem(op PackedOp, dst XReg, m Mem) {
	a.emit(sse(0x66, byte(op)), uint8(dst), rmMem(m))
}
