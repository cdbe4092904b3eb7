package iml

import "fmt"

type (
	// Op is the semantic opcode of an instruction.
	// Which ops are legal depends on the operand shape.
	Op uint8

	// Cond is an integer comparison.
	Cond uint8

	// FCond is one of the four PowerPC floating point compare outcomes.
	FCond uint8

	MacroOp uint8

	// FPRMode is the in-memory format of a float load or store.
	FPRMode uint8
)

const (
	OpInvalid Op = iota

	OpAssign
	OpSExt8
	OpSExt16
	OpZExt8
	OpZExt16
	OpByteReverse
	OpNeg
	OpNot
	OpCntlz

	OpAdd
	OpSub
	OpMul
	OpDivS
	OpDivU
	OpMulHiS
	OpMulHiU
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShrU
	OpShrS
	OpRotl

	OpAddCarry    // carry in and out
	OpAddCarryOut // carry out only

	OpCRAnd
	OpCROr
	OpCRXor
	OpCRNor
	OpCRNand
	OpCRAndC
	OpCROrC
	OpCREqv

	OpFAssign
	OpFNeg
	OpFAbs
	OpFNegAbs
	OpFRoundToSingle
	OpFExpandF32ToF64
	OpFLoadOne
	OpFCtiwz
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv
	OpFMulAdd
	OpFMulSub

	opCount
)

var opNames = [opCount]string{
	OpInvalid:         "invalid",
	OpAssign:          "mov",
	OpSExt8:           "sext8",
	OpSExt16:          "sext16",
	OpZExt8:           "zext8",
	OpZExt16:          "zext16",
	OpByteReverse:     "bswap",
	OpNeg:             "neg",
	OpNot:             "not",
	OpCntlz:           "cntlz",
	OpAdd:             "add",
	OpSub:             "sub",
	OpMul:             "mul",
	OpDivS:            "divs",
	OpDivU:            "divu",
	OpMulHiS:          "mulhs",
	OpMulHiU:          "mulhu",
	OpAnd:             "and",
	OpOr:              "or",
	OpXor:             "xor",
	OpShl:             "shl",
	OpShrU:            "shr",
	OpShrS:            "sar",
	OpRotl:            "rotl",
	OpAddCarry:        "adc",
	OpAddCarryOut:     "addc",
	OpCRAnd:           "crand",
	OpCROr:            "cror",
	OpCRXor:           "crxor",
	OpCRNor:           "crnor",
	OpCRNand:          "crnand",
	OpCRAndC:          "crandc",
	OpCROrC:           "crorc",
	OpCREqv:           "creqv",
	OpFAssign:         "fmov",
	OpFNeg:            "fneg",
	OpFAbs:            "fabs",
	OpFNegAbs:         "fnabs",
	OpFRoundToSingle:  "frsp",
	OpFExpandF32ToF64: "fexpand",
	OpFLoadOne:        "fone",
	OpFCtiwz:          "fctiwz",
	OpFAdd:            "fadd",
	OpFSub:            "fsub",
	OpFMul:            "fmul",
	OpFDiv:            "fdiv",
	OpFMulAdd:         "fmadd",
	OpFMulSub:         "fmsub",
}

func (op Op) String() string {
	if op < opCount {
		return opNames[op]
	}

	return fmt.Sprintf("op%d", uint8(op))
}

// Commutative ops may swap their two source operands.
func (op Op) Commutative() bool {
	switch op {
	case OpAdd, OpMul, OpAnd, OpOr, OpXor, OpMulHiS, OpMulHiU, OpFAdd, OpFMul:
		return true
	}

	return false
}

const (
	CondEQ Cond = iota
	CondNE
	CondLTS
	CondLES
	CondGTS
	CondGES
	CondLTU
	CondLEU
	CondGTU
	CondGEU
)

// Negate returns the condition that holds exactly when c does not.
func (c Cond) Negate() Cond {
	switch c {
	case CondEQ:
		return CondNE
	case CondNE:
		return CondEQ
	case CondLTS:
		return CondGES
	case CondGES:
		return CondLTS
	case CondLES:
		return CondGTS
	case CondGTS:
		return CondLES
	case CondLTU:
		return CondGEU
	case CondGEU:
		return CondLTU
	case CondLEU:
		return CondGTU
	case CondGTU:
		return CondLEU
	}

	Unreachable(c)

	return c
}

func (c Cond) String() string {
	return [...]string{"eq", "ne", "lt", "le", "gt", "ge", "ltu", "leu", "gtu", "geu"}[c]
}

const (
	FCondLT FCond = iota
	FCondGT
	FCondEQ
	FCondUO
)

func (c FCond) String() string {
	return [...]string{"lt", "gt", "eq", "uo"}[c]
}

const (
	MacroBLR MacroOp = iota
	MacroBLRL
	MacroBCTR
	MacroBCTRL
	MacroBL
	MacroBFar
	MacroLeave
	MacroHLE
	MacroCountCycles
	MacroCycleCheck
)

func (m MacroOp) String() string {
	return [...]string{"blr", "blrl", "bctr", "bctrl", "bl", "b_far", "leave", "hle", "count_cycles", "cycle_check"}[m]
}

// Branching macros transfer control away and end their segment.
func (m MacroOp) Branching() bool {
	return m != MacroCountCycles
}

const (
	FPRModeF32 FPRMode = iota
	FPRModeF64
	FPRModeF32Int // stfiwx: low word of the double, raw

	FPRModePSF32
	FPRModePSU8
	FPRModePSS8
	FPRModePSU16
	FPRModePSS16
	FPRModePSGeneric // format taken from the GQR at runtime
)

func (m FPRMode) String() string {
	return [...]string{"f32", "f64", "f32int", "ps.f32", "ps.u8", "ps.s8", "ps.u16", "ps.s16", "ps.gqr"}[m]
}

// Quantized reports the paired single modes.
func (m FPRMode) Quantized() bool { return m >= FPRModePSF32 }

// ElemSize is the size in bytes of one element in memory.
func (m FPRMode) ElemSize() int {
	switch m {
	case FPRModeF64:
		return 8
	case FPRModeF32, FPRModeF32Int, FPRModePSF32:
		return 4
	case FPRModePSU8, FPRModePSS8:
		return 1
	case FPRModePSU16, FPRModePSS16:
		return 2
	}

	return 0
}
