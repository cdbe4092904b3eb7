package iml

import (
	"fmt"

	"tlog.app/go/tlog/tlwire"
)

type (
	// Format is the width and kind of a register view.
	Format uint8

	// RegID is a virtual register number before allocation
	// and a host register number after it.
	RegID int32

	// Reg identifies a register plus the view used by an instruction.
	//
	//	bits  0..19  ID
	//	bits 20..23  Format
	//	bits 24..27  BaseFormat
	Reg uint32
)

const (
	FormatInvalid Format = iota
	FormatI8
	FormatI16
	FormatI32
	FormatI64
	FormatF32
	FormatF64
)

const (
	regIDBits  = 20
	regIDMask  = 1<<regIDBits - 1
	MaxRegID   = regIDMask
	fmtShift   = 20
	baseShift  = 24
	formatMask = 0xf
)

// InvalidReg has FormatInvalid as its base format.
const InvalidReg Reg = 0

// MakeReg builds a register view. Format must fit into base.
func MakeReg(base, format Format, id RegID) Reg {
	Assert(base == FormatI64 || base == FormatF64, "bad base format %v", base)
	Assert(format.fits(base), "format %v does not fit base %v", format, base)
	Assert(id >= 0 && id <= MaxRegID, "reg id out of range: %d", id)

	return Reg(uint32(id)&regIDMask | uint32(format)<<fmtShift | uint32(base)<<baseShift)
}

func GPR32(id RegID) Reg { return MakeReg(FormatI64, FormatI32, id) }
func GPR64(id RegID) Reg { return MakeReg(FormatI64, FormatI64, id) }
func GPR8(id RegID) Reg  { return MakeReg(FormatI64, FormatI8, id) }
func FPR(id RegID) Reg   { return MakeReg(FormatF64, FormatF64, id) }

func (r Reg) ID() RegID          { return RegID(r & regIDMask) }
func (r Reg) Format() Format     { return Format(r >> fmtShift & formatMask) }
func (r Reg) BaseFormat() Format { return Format(r >> baseShift & formatMask) }
func (r Reg) Valid() bool        { return r.BaseFormat() != FormatInvalid }
func (r Reg) IsFloat() bool      { return r.BaseFormat() == FormatF64 }

// Same reports whether both views refer to the same register.
func (r Reg) Same(x Reg) bool {
	return r.Valid() && x.Valid() && r.ID() == x.ID() && r.IsFloat() == x.IsFloat()
}

// WithID keeps the view and replaces the register number.
func (r Reg) WithID(id RegID) Reg {
	return MakeReg(r.BaseFormat(), r.Format(), id)
}

// WithFormat returns another view of the same register.
func (r Reg) WithFormat(f Format) Reg {
	return MakeReg(r.BaseFormat(), f, r.ID())
}

func (f Format) fits(base Format) bool {
	switch base {
	case FormatI64:
		return f >= FormatI8 && f <= FormatI64
	case FormatF64:
		return f == FormatF32 || f == FormatF64
	}

	return false
}

// Bits is the width of the view in bits.
func (f Format) Bits() int {
	switch f {
	case FormatI8:
		return 8
	case FormatI16:
		return 16
	case FormatI32, FormatF32:
		return 32
	case FormatI64, FormatF64:
		return 64
	}

	return 0
}

func (f Format) String() string {
	switch f {
	case FormatI8:
		return "i8"
	case FormatI16:
		return "i16"
	case FormatI32:
		return "i32"
	case FormatI64:
		return "i64"
	case FormatF32:
		return "f32"
	case FormatF64:
		return "f64"
	default:
		return "invalid"
	}
}

func (r Reg) String() string {
	if !r.Valid() {
		return "r?"
	}

	p := 'r'
	if r.IsFloat() {
		p = 'f'
	}

	return fmt.Sprintf("%c%d.%v", p, r.ID(), r.Format())
}

func (r Reg) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	if !r.Valid() {
		return e.AppendNil(b)
	}

	return e.AppendFormat(b, "%v", r)
}
