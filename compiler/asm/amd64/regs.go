package amd64

import "fmt"

type (
	// Reg is a general purpose register in encoding order.
	Reg uint8

	// XReg is an SSE register.
	XReg uint8

	// Width is an integer operand size in bits.
	Width uint8

	// CC is an x86 condition code nibble.
	CC uint8
)

const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

const (
	W8  Width = 8
	W16 Width = 16
	W32 Width = 32
	W64 Width = 64
)

const (
	CCO  CC = 0x0
	CCNO CC = 0x1
	CCB  CC = 0x2 // below, carry
	CCAE CC = 0x3
	CCE  CC = 0x4
	CCNE CC = 0x5
	CCBE CC = 0x6
	CCA  CC = 0x7
	CCS  CC = 0x8
	CCNS CC = 0x9
	CCP  CC = 0xa // parity: unordered after ucomisd
	CCNP CC = 0xb
	CCL  CC = 0xc
	CCGE CC = 0xd
	CCLE CC = 0xe
	CCG  CC = 0xf
)

// Negate flips the condition.
func (c CC) Negate() CC { return c ^ 1 }

var regNames = [16]string{"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi", "r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15"}

func (r Reg) String() string {
	if int(r) < len(regNames) {
		return regNames[r]
	}

	return fmt.Sprintf("reg%d", uint8(r))
}

func (x XReg) String() string { return fmt.Sprintf("xmm%d", uint8(x)) }

func (r Reg) low() byte   { return byte(r) & 7 }
func (r Reg) high() bool  { return r >= R8 }
func (x XReg) low() byte  { return byte(x) & 7 }
func (x XReg) high() bool { return x >= 8 }

// Mem is an effective address [Base + Index*Scale + Disp].
type Mem struct {
	Base     Reg
	Index    Reg
	Scale    uint8
	HasIndex bool
	Disp     int32
}

// M constructs [base + disp].
func M(base Reg, disp int32) Mem {
	return Mem{Base: base, Disp: disp, Scale: 1}
}

// MI constructs [base + index*scale + disp].
func MI(base, index Reg, scale uint8, disp int32) Mem {
	return Mem{Base: base, Index: index, Scale: scale, HasIndex: true, Disp: disp}
}
