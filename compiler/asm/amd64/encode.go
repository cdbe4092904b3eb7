package amd64

import (
	"encoding/binary"
	"fmt"
)

// Asm accumulates encoded instructions.
type Asm struct {
	b []byte
}

func (a *Asm) Len() int      { return len(a.b) }
func (a *Asm) Bytes() []byte { return a.b }
func (a *Asm) Reset()        { a.b = a.b[:0] }

func (a *Asm) Byte(x ...byte) { a.b = append(a.b, x...) }

func (a *Asm) imm16(v uint16) { a.b = binary.LittleEndian.AppendUint16(a.b, v) }
func (a *Asm) imm32(v uint32) { a.b = binary.LittleEndian.AppendUint32(a.b, v) }
func (a *Asm) imm64(v uint64) { a.b = binary.LittleEndian.AppendUint64(a.b, v) }

// Patch32 overwrites a 32 bit field at offset at.
func (a *Asm) Patch32(at int, v int32) {
	binary.LittleEndian.PutUint32(a.b[at:], uint32(v))
}

// rm is the r/m operand: a register number or a memory reference.
type rm struct {
	reg uint8
	mem *Mem
}

func rmReg(r Reg) rm   { return rm{reg: uint8(r)} }
func rmX(x XReg) rm    { return rm{reg: uint8(x)} }
func rmMem(m Mem) rm   { return rm{mem: &m} }
func (o rm) isMem() bool { return o.mem != nil }

type encoding struct {
	prefix byte // mandatory or lock prefix, 0 if none
	w      bool
	byteOp bool // 8 bit operation: SPL..DIL need an empty REX
	op     []byte
}

// emit writes prefix, REX, opcode, ModRM, SIB and displacement.
func (a *Asm) emit(e encoding, reg uint8, o rm) {
	if e.prefix != 0 {
		a.b = append(a.b, e.prefix)
	}

	rex := byte(0)
	if e.w {
		rex |= 0x08
	}
	if reg >= 8 {
		rex |= 0x04
	}

	force := e.byteOp && reg >= 4 && reg < 8

	if o.isMem() {
		m := o.mem
		if m.HasIndex && m.Index >= 8 {
			rex |= 0x02
		}
		if m.Base >= 8 {
			rex |= 0x01
		}
	} else {
		if o.reg >= 8 {
			rex |= 0x01
		}
		if e.byteOp && o.reg >= 4 && o.reg < 8 {
			force = true
		}
	}

	if rex != 0 || force {
		a.b = append(a.b, 0x40|rex)
	}

	a.b = append(a.b, e.op...)

	if !o.isMem() {
		a.b = append(a.b, 0xc0|(reg&7)<<3|o.reg&7)
		return
	}

	a.modrmMem(reg&7, *o.mem)
}

func (a *Asm) modrmMem(reg uint8, m Mem) {
	if m.HasIndex && m.Index == RSP {
		panic("amd64: rsp can't be an index register")
	}

	base := m.Base.low()

	var mod byte

	switch {
	case m.Disp == 0 && base != 5:
		mod = 0x00
	case m.Disp >= -128 && m.Disp <= 127:
		mod = 0x40
	default:
		mod = 0x80
	}

	if m.HasIndex || base == 4 {
		a.b = append(a.b, mod|reg<<3|4)

		index := byte(4)
		if m.HasIndex {
			index = m.Index.low()
		}

		a.b = append(a.b, scaleBits(m.Scale)<<6|index<<3|base)
	} else {
		a.b = append(a.b, mod|reg<<3|base)
	}

	switch mod {
	case 0x40:
		a.b = append(a.b, byte(int8(m.Disp)))
	case 0x80:
		a.imm32(uint32(m.Disp))
	}
}

func scaleBits(s uint8) byte {
	switch s {
	case 0, 1:
		return 0
	case 2:
		return 1
	case 4:
		return 2
	case 8:
		return 3
	}

	panic(fmt.Sprintf("amd64: bad scale %d", s))
}

// intEnc picks operand size prefix and REX.W for width w.
func intEnc(w Width, op ...byte) encoding {
	e := encoding{op: op}

	switch w {
	case W8:
		e.byteOp = true
	case W16:
		e.prefix = 0x66
	case W64:
		e.w = true
	}

	return e
}

// byteVariant turns the 32 bit form of an opcode into its 8 bit form (op-1).
func byteVariant(w Width, op byte) byte {
	if w == W8 {
		return op - 1
	}

	return op
}

// vex3 emits a three byte VEX prefix: map 0F38, no vector length.
func (a *Asm) vex3(pp byte, w bool, reg, vvvv uint8, o rm, op byte) {
	r := byte(0x80)
	if reg >= 8 {
		r = 0
	}

	x := byte(0x40)
	b := byte(0x20)

	if o.isMem() {
		if o.mem.HasIndex && o.mem.Index >= 8 {
			x = 0
		}
		if o.mem.Base >= 8 {
			b = 0
		}
	} else if o.reg >= 8 {
		b = 0
	}

	wb := byte(0)
	if w {
		wb = 0x80
	}

	a.b = append(a.b, 0xc4, r|x|b|0x02, wb|(^vvvv&0xf)<<3|pp, op)

	if !o.isMem() {
		a.b = append(a.b, 0xc0|(reg&7)<<3|o.reg&7)
		return
	}

	a.modrmMem(reg&7, *o.mem)
}
