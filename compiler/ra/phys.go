package ra

import (
	"math/bits"

	"tlog.app/go/tlog/tlwire"

	"github.com/slowlang/ppcrec/compiler/asm/amd64"
)

type (
	// PhysReg is a host register number: amd64 encoding order for GPRs,
	// xmm index for floats.
	PhysReg int8

	// PhysSet is a set of host registers of one class.
	PhysSet uint32
)

const NoPhys PhysReg = -1

// Register pools. RBP holds the guest CPU state, R13 the guest memory base,
// R15 the recompiler data, R14 and XMM14/15 are backend scratch registers.
var (
	GPRPool = Regs(amd64.RAX, amd64.RCX, amd64.RDX, amd64.RBX, amd64.RSI, amd64.RDI,
		amd64.R8, amd64.R9, amd64.R10, amd64.R11, amd64.R12)

	FPRPool PhysSet = 1<<14 - 1

	// GPRVolatile is clobbered by host calls.
	GPRVolatile = Regs(amd64.RAX, amd64.RCX, amd64.RDX, amd64.RSI, amd64.RDI,
		amd64.R8, amd64.R9, amd64.R10, amd64.R11)

	FPRVolatile PhysSet = 1<<16 - 1

	// CallArgs are the host argument registers in order.
	CallArgs = [3]amd64.Reg{amd64.RDI, amd64.RSI, amd64.RDX}
)

func Regs(l ...amd64.Reg) (s PhysSet) {
	for _, r := range l {
		s |= 1 << r
	}

	return s
}

func Only(r amd64.Reg) PhysSet { return 1 << r }

func (s PhysSet) Has(r PhysReg) bool { return r >= 0 && s&(1<<r) != 0 }
func (s PhysSet) Len() int           { return bits.OnesCount32(uint32(s)) }

// Lowest returns the lowest numbered register or NoPhys.
func (s PhysSet) Lowest() PhysReg {
	if s == 0 {
		return NoPhys
	}

	return PhysReg(bits.TrailingZeros32(uint32(s)))
}

// Single returns the only register of a one element set.
func (s PhysSet) Single() (PhysReg, bool) {
	if s.Len() != 1 {
		return NoPhys, false
	}

	return s.Lowest(), true
}

func (s PhysSet) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	return e.AppendFormat(b, "%#x", uint32(s))
}
