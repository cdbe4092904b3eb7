package iml

import "fmt"

// Name identifies persistent guest state a virtual register is loaded from and stored to.
type Name uint32

const (
	NameNone Name = 0

	nameGPR       Name = 0x100
	nameFPR       Name = 0x200
	nameFPRPS1    Name = 0x300
	nameCR        Name = 0x400
	nameTemporary Name = 0x800
	nameSPR       Name = 0x1000

	NameXERCA Name = 0x500
	NameXERSO Name = 0x501

	nameSPREnd = nameSPR + 0x400
)

// SPR numbers used by the recompiler.
const (
	SPRXER = 1
	SPRLR  = 8
	SPRCTR = 9

	SPRUGQR0 = 896
	SPRGQR0  = 912
)

// CR bit order inside a field.
const (
	CRBitLT = iota
	CRBitGT
	CRBitEQ
	CRBitSO
)

func NameGPR(n int) Name       { return nameGPR + Name(n) }
func NameFPR(n int) Name       { return nameFPR + Name(n) }
func NameFPRPS1(n int) Name    { return nameFPRPS1 + Name(n) }
func NameCR(bit int) Name      { return nameCR + Name(bit) }
func NameSPR(n int) Name       { return nameSPR + Name(n) }
func NameTemporary(n int) Name { return nameTemporary + Name(n) }

// NameGQR is the name of the graphics quantization register i.
func NameGQR(i int) Name { return NameSPR(SPRGQR0 + i) }

func (n Name) IsGPR() bool       { return n >= nameGPR && n < nameGPR+32 }
func (n Name) IsFPR() bool       { return n >= nameFPR && n < nameFPR+32 }
func (n Name) IsFPRPS1() bool    { return n >= nameFPRPS1 && n < nameFPRPS1+32 }
func (n Name) IsCR() bool        { return n >= nameCR && n < nameCR+32 }
func (n Name) IsSPR() bool       { return n >= nameSPR && n < nameSPREnd }
func (n Name) IsTemporary() bool { return n >= nameTemporary && n < nameTemporary+0x800 }

// Index is the register, bit or SPR number inside the name's group.
func (n Name) Index() int {
	switch {
	case n.IsGPR():
		return int(n - nameGPR)
	case n.IsFPR():
		return int(n - nameFPR)
	case n.IsFPRPS1():
		return int(n - nameFPRPS1)
	case n.IsCR():
		return int(n - nameCR)
	case n.IsSPR():
		return int(n - nameSPR)
	case n.IsTemporary():
		return int(n - nameTemporary)
	}

	return 0
}

// RegisterCached names live in virtual registers managed by the allocator.
// Other names are memory resident and only touched by explicit NameToReg / RegToName.
func (n Name) RegisterCached() bool {
	return n.IsGPR() || n.IsFPR() || n.IsFPRPS1() || n.IsTemporary() || n == NameXERCA
}

// Persistent names are guest state: a modified value must reach memory.
func (n Name) Persistent() bool {
	return n != NameNone && !n.IsTemporary()
}

func (n Name) String() string {
	switch {
	case n == NameNone:
		return "-"
	case n.IsGPR():
		return fmt.Sprintf("r%d", n.Index())
	case n.IsFPR():
		return fmt.Sprintf("f%d.ps0", n.Index())
	case n.IsFPRPS1():
		return fmt.Sprintf("f%d.ps1", n.Index())
	case n.IsCR():
		return fmt.Sprintf("cr%d.%s", n.Index()/4, [4]string{"lt", "gt", "eq", "so"}[n.Index()%4])
	case n == NameXERCA:
		return "xer.ca"
	case n == NameXERSO:
		return "xer.so"
	case n.IsSPR():
		switch i := n.Index(); {
		case i == SPRLR:
			return "lr"
		case i == SPRCTR:
			return "ctr"
		case i == SPRXER:
			return "xer"
		case i >= SPRGQR0 && i < SPRGQR0+8:
			return fmt.Sprintf("gqr%d", i-SPRGQR0)
		default:
			return fmt.Sprintf("spr%d", i)
		}
	case n.IsTemporary():
		return fmt.Sprintf("tmp%d", n.Index())
	}

	return fmt.Sprintf("name%#x", uint32(n))
}
