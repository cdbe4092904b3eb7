package back

import (
	"github.com/slowlang/ppcrec/compiler/asm/amd64"
	"github.com/slowlang/ppcrec/compiler/iml"
)

// Register roles of generated code. The execution engine enters code
// with these set up and RSP 16 byte aligned.
const (
	RegHCPU    = amd64.RBP // guest CPU state
	RegMemBase = amd64.R13 // guest memory base
	RegData    = amd64.R15 // recompiler data, jump table at offset 0
	RegTemp    = amd64.R14

	XTemp  amd64.XReg = 15
	XTemp2 amd64.XReg = 14
)

// Guest CPU state layout relative to RegHCPU.
const (
	OffGPR       = 0x000 // 32 x uint32
	OffFPR       = 0x100 // 32 x {ps0, ps1 float64}
	OffCR        = 0x300 // 32 x byte, one per bit
	OffXERCA     = 0x320 // byte
	OffXERSO     = 0x321 // byte
	OffIP        = 0x330 // uint32
	OffCycles    = 0x334 // int32, remaining cycles
	OffScratchPS = 0x340 // 2 x float64, paired single helper exchange
	OffSPR       = 0x800 // 0x400 x uint32
	OffTemporary = 0x1800
	MaxTemporary = 0x800
	HCPUSize     = OffTemporary + 8*MaxTemporary
)

// Recompiler data layout relative to RegData. Negative offsets precede the jump table.
const (
	RDataLeave      = -0x8   // leave recompiled code, resume at hCPU IP
	RDataHLE        = -0x10  // func(ip, hleID uint32, hcpu uintptr)
	RDataPSQLoad    = -0x18  // func(ea, gqr uint32, hcpu uintptr, paired uint32), result in OffScratchPS
	RDataPSQStore   = -0x20  // func(ea, gqr uint32, hcpu uintptr, paired uint32), values in OffScratchPS
	RDataSignMask   = -0x40  // 16 byte aligned float64 sign bit pair
	RDataAbsMask    = -0x50  // 16 byte aligned ^sign pair
	RDataQuantMin   = -0x100 // float64 per mode, indexed by FPRMode
	RDataQuantMax   = -0x180
	RDataDequant    = -0x400 // 64 x float64: 2^-s for scale s, indexed by s&63
	RDataQuant      = -0x600 // 64 x float64: 2^s
	RDataJumpTable  = 0      // 8 byte entry per guest instruction, [addr*2]
	RDataHeaderSize = 0x600
)

// nameSlot returns the hCPU offset of a name and the width it is kept in.
// Width 0 means a float64 slot.
func nameSlot(n iml.Name) (off int32, w amd64.Width, ok bool) {
	switch {
	case n.IsGPR():
		return OffGPR + 4*int32(n.Index()), amd64.W32, true
	case n.IsFPR():
		return OffFPR + 16*int32(n.Index()), 0, true
	case n.IsFPRPS1():
		return OffFPR + 16*int32(n.Index()) + 8, 0, true
	case n.IsCR():
		return OffCR + int32(n.Index()), amd64.W8, true
	case n == iml.NameXERCA:
		return OffXERCA, amd64.W8, true
	case n == iml.NameXERSO:
		return OffXERSO, amd64.W8, true
	case n.IsSPR():
		return OffSPR + 4*int32(n.Index()), amd64.W32, true
	case n.IsTemporary():
		return OffTemporary + 8*int32(n.Index()), amd64.W64, true
	}

	return 0, 0, false
}

func crBit(bit int) amd64.Mem { return amd64.M(RegHCPU, OffCR+int32(bit)) }

func hcpu(off int32) amd64.Mem { return amd64.M(RegHCPU, off) }

func rdata(off int32) amd64.Mem { return amd64.M(RegData, off) }
