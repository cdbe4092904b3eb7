package iml

type (
	// Instr is one IML instruction. Each operand shape is its own type,
	// so a type switch over Instr is the dispatch every pass uses.
	//
	// Usage and Rewrite must visit exactly the same register slots.
	Instr interface {
		Usage(u *Usage)
		Rewrite(fn func(Reg) Reg)
		HasSideEffects() bool
	}

	// CRUpdate makes an integer op also set a CR field from
	// the signed comparison of its result with zero, plus XER.SO.
	CRUpdate struct {
		Enabled    bool
		Field      uint8
		IgnoreMask uint8 // bit i set: CR bit Field*4+i is never observed
	}

	NameToReg struct {
		Dst  Reg
		Name Name
	}

	RegToName struct {
		Name Name
		Src  Reg
	}

	RR struct {
		Op     Op
		Dst, A Reg
		CR     CRUpdate
	}

	RRR struct {
		Op        Op
		Dst, A, B Reg
		CR        CRUpdate
	}

	RRRCarry struct {
		Op               Op
		Dst, A, B, Carry Reg
		CR               CRUpdate
	}

	RRS32 struct {
		Op     Op
		Dst, A Reg
		Imm    int32
		CR     CRUpdate
	}

	RRS32Carry struct {
		Op            Op
		Dst, A, Carry Reg
		Imm           int32
		CR            CRUpdate
	}

	RS32 struct {
		Op  Op
		Dst Reg
		Imm int32
	}

	// Compare sets Dst to 1 if A Cond B holds, 0 otherwise.
	Compare struct {
		Cond      Cond
		Dst, A, B Reg
	}

	CompareS32 struct {
		Cond   Cond
		Dst, A Reg
		Imm    int32
	}

	// CompareFlags sets host flags only. It is produced by flag reuse
	// and is always immediately consumed by the FlagsJump suffix.
	CompareFlags struct {
		Cond   Cond
		A, B   Reg
		Imm    int32
		UseImm bool
	}

	// CondJump takes the branch if Cond != 0 equals MustBeTrue.
	CondJump struct {
		Cond       Reg
		MustBeTrue bool
	}

	FlagsJump struct {
		Cond Cond
	}

	Jump struct{}

	// Load reads guest memory at Base + Index + Offset.
	Load struct {
		Dst, Base, Index Reg
		Offset           int32
		Size             uint8 // bits: 8, 16 or 32
		SignExtend       bool
		SwapEndian       bool
	}

	Store struct {
		Src, Base, Index Reg
		Offset           int32
		Size             uint8
		SwapEndian       bool
	}

	// AtomicCmpStore stores New at EA if the word there equals Expected.
	// Result is 1 on success.
	AtomicCmpStore struct {
		Result, EA, Expected, New Reg
	}

	// Call calls a host function. It does not observe register cached guest state.
	Call struct {
		Target uint64
		Result Reg
		Args   [3]Reg
	}

	Macro struct {
		Op     MacroOp
		Param  uint32
		Param2 uint32
		Param3 uint16
	}

	// CRLogic combines CR bits A and B into bit D.
	CRLogic struct {
		Op      Op
		D, A, B uint8
	}

	FPRLoad struct {
		Dst, Dst2        Reg // Dst2 is ps1 of paired loads, may be invalid
		Base, Index, GQR Reg
		Offset           int32
		Mode             FPRMode
		GQRIndex         uint8
		Scale            int8 // dequantization exponent of fixed quantized modes
		NotExpanded      bool // keep the raw single, skip float to double
	}

	FPRStore struct {
		Src, Src2        Reg
		Base, Index, GQR Reg
		Offset           int32
		Mode             FPRMode
		GQRIndex         uint8
		Scale            int8
		NotExpanded      bool
	}

	// FPRUnary works in place.
	FPRUnary struct {
		Op  Op
		Reg Reg
	}

	FPRRR struct {
		Op     Op
		Dst, A Reg
	}

	FPRRRR struct {
		Op        Op
		Dst, A, B Reg
	}

	// FPRRRRR computes A*C+B (or A*C-B).
	FPRRRRR struct {
		Op           Op
		Dst, A, B, C Reg
	}

	// FPRCompare writes the boolean Cond result into Dst,
	// or all four bits of a CR field if CR is enabled.
	FPRCompare struct {
		Cond      FCond
		Dst, A, B Reg
		CR        CRUpdate
	}

	NoOp struct{}

	DebugBreak struct{}
)

// Active reports whether the update writes any observed bit.
func (c CRUpdate) Active() bool {
	return c.Enabled && c.IgnoreMask&0xf != 0xf
}

// Mask is the set of CR bits written, as a 32 bit mask.
func (c CRUpdate) Mask() uint32 {
	if !c.Enabled {
		return 0
	}

	return 0xf << (c.Field * 4)
}

func (x *NameToReg) Usage(u *Usage) { u.write(x.Dst) }
func (x *RegToName) Usage(u *Usage) { u.read(x.Src) }
func (x *RR) Usage(u *Usage)        { u.read(x.A); u.write(x.Dst) }
func (x *RRR) Usage(u *Usage)       { u.read(x.A, x.B); u.write(x.Dst) }

func (x *RRRCarry) Usage(u *Usage) {
	u.read(x.A, x.B)
	u.write(x.Dst)
	u.readWrite(x.Carry)
}

func (x *RRS32) Usage(u *Usage) { u.read(x.A); u.write(x.Dst) }

func (x *RRS32Carry) Usage(u *Usage) {
	u.read(x.A)
	u.write(x.Dst)

	switch x.Op {
	case OpAddCarry:
		u.readWrite(x.Carry)
	case OpAddCarryOut:
		u.write(x.Carry)
	default:
		Unreachable(x)
	}
}

func (x *RS32) Usage(u *Usage)         { u.write(x.Dst) }
func (x *Compare) Usage(u *Usage)      { u.read(x.A, x.B); u.write(x.Dst) }
func (x *CompareS32) Usage(u *Usage)   { u.read(x.A); u.write(x.Dst) }
func (x *CompareFlags) Usage(u *Usage) { u.read(x.A, x.B) }
func (x *CondJump) Usage(u *Usage)     { u.read(x.Cond) }
func (x *FlagsJump) Usage(u *Usage)    {}
func (x *Jump) Usage(u *Usage)         {}
func (x *Load) Usage(u *Usage)         { u.read(x.Base, x.Index); u.write(x.Dst) }
func (x *Store) Usage(u *Usage)        { u.read(x.Src, x.Base, x.Index) }

func (x *AtomicCmpStore) Usage(u *Usage) {
	u.read(x.EA, x.Expected, x.New)
	u.write(x.Result)
}

func (x *Call) Usage(u *Usage)    { u.read(x.Args[:]...); u.write(x.Result) }
func (x *Macro) Usage(u *Usage)   {}
func (x *CRLogic) Usage(u *Usage) {}

func (x *FPRLoad) Usage(u *Usage) {
	u.read(x.Base, x.Index, x.GQR)
	u.write(x.Dst, x.Dst2)
}

func (x *FPRStore) Usage(u *Usage) { u.read(x.Src, x.Src2, x.Base, x.Index, x.GQR) }

func (x *FPRUnary) Usage(u *Usage) {
	if x.Op == OpFLoadOne {
		u.write(x.Reg)
		return
	}

	u.readWrite(x.Reg)
}

func (x *FPRRR) Usage(u *Usage)      { u.read(x.A); u.write(x.Dst) }
func (x *FPRRRR) Usage(u *Usage)     { u.read(x.A, x.B); u.write(x.Dst) }
func (x *FPRRRRR) Usage(u *Usage)    { u.read(x.A, x.B, x.C); u.write(x.Dst) }
func (x *FPRCompare) Usage(u *Usage) { u.read(x.A, x.B); u.write(x.Dst) }
func (x *NoOp) Usage(u *Usage)       {}
func (x *DebugBreak) Usage(u *Usage) {}

func (x *NameToReg) Rewrite(fn func(Reg) Reg) { rw(fn, &x.Dst) }
func (x *RegToName) Rewrite(fn func(Reg) Reg) { rw(fn, &x.Src) }
func (x *RR) Rewrite(fn func(Reg) Reg)        { rw(fn, &x.Dst, &x.A) }
func (x *RRR) Rewrite(fn func(Reg) Reg)       { rw(fn, &x.Dst, &x.A, &x.B) }
func (x *RRRCarry) Rewrite(fn func(Reg) Reg)  { rw(fn, &x.Dst, &x.A, &x.B, &x.Carry) }
func (x *RRS32) Rewrite(fn func(Reg) Reg)     { rw(fn, &x.Dst, &x.A) }
func (x *RRS32Carry) Rewrite(fn func(Reg) Reg) {
	rw(fn, &x.Dst, &x.A, &x.Carry)
}
func (x *RS32) Rewrite(fn func(Reg) Reg)         { rw(fn, &x.Dst) }
func (x *Compare) Rewrite(fn func(Reg) Reg)      { rw(fn, &x.Dst, &x.A, &x.B) }
func (x *CompareS32) Rewrite(fn func(Reg) Reg)   { rw(fn, &x.Dst, &x.A) }
func (x *CompareFlags) Rewrite(fn func(Reg) Reg) { rw(fn, &x.A, &x.B) }
func (x *CondJump) Rewrite(fn func(Reg) Reg)     { rw(fn, &x.Cond) }
func (x *FlagsJump) Rewrite(fn func(Reg) Reg)    {}
func (x *Jump) Rewrite(fn func(Reg) Reg)         {}
func (x *Load) Rewrite(fn func(Reg) Reg)         { rw(fn, &x.Dst, &x.Base, &x.Index) }
func (x *Store) Rewrite(fn func(Reg) Reg)        { rw(fn, &x.Src, &x.Base, &x.Index) }
func (x *AtomicCmpStore) Rewrite(fn func(Reg) Reg) {
	rw(fn, &x.Result, &x.EA, &x.Expected, &x.New)
}
func (x *Call) Rewrite(fn func(Reg) Reg) {
	rw(fn, &x.Result, &x.Args[0], &x.Args[1], &x.Args[2])
}
func (x *Macro) Rewrite(fn func(Reg) Reg)   {}
func (x *CRLogic) Rewrite(fn func(Reg) Reg) {}
func (x *FPRLoad) Rewrite(fn func(Reg) Reg) {
	rw(fn, &x.Dst, &x.Dst2, &x.Base, &x.Index, &x.GQR)
}
func (x *FPRStore) Rewrite(fn func(Reg) Reg) {
	rw(fn, &x.Src, &x.Src2, &x.Base, &x.Index, &x.GQR)
}
func (x *FPRUnary) Rewrite(fn func(Reg) Reg)   { rw(fn, &x.Reg) }
func (x *FPRRR) Rewrite(fn func(Reg) Reg)      { rw(fn, &x.Dst, &x.A) }
func (x *FPRRRR) Rewrite(fn func(Reg) Reg)     { rw(fn, &x.Dst, &x.A, &x.B) }
func (x *FPRRRRR) Rewrite(fn func(Reg) Reg)    { rw(fn, &x.Dst, &x.A, &x.B, &x.C) }
func (x *FPRCompare) Rewrite(fn func(Reg) Reg) { rw(fn, &x.Dst, &x.A, &x.B) }
func (x *NoOp) Rewrite(fn func(Reg) Reg)       {}
func (x *DebugBreak) Rewrite(fn func(Reg) Reg) {}

func (x *NameToReg) HasSideEffects() bool      { return false }
func (x *RegToName) HasSideEffects() bool      { return true }
func (x *RR) HasSideEffects() bool             { return x.CR.Active() }
func (x *RRR) HasSideEffects() bool            { return x.CR.Active() }
func (x *RRRCarry) HasSideEffects() bool       { return x.CR.Active() }
func (x *RRS32) HasSideEffects() bool          { return x.CR.Active() }
func (x *RRS32Carry) HasSideEffects() bool     { return x.CR.Active() }
func (x *RS32) HasSideEffects() bool           { return false }
func (x *Compare) HasSideEffects() bool        { return false }
func (x *CompareS32) HasSideEffects() bool     { return false }
func (x *CompareFlags) HasSideEffects() bool   { return true }
func (x *CondJump) HasSideEffects() bool       { return true }
func (x *FlagsJump) HasSideEffects() bool      { return true }
func (x *Jump) HasSideEffects() bool           { return true }
func (x *Load) HasSideEffects() bool           { return false }
func (x *Store) HasSideEffects() bool          { return true }
func (x *AtomicCmpStore) HasSideEffects() bool { return true }
func (x *Call) HasSideEffects() bool           { return true }
func (x *Macro) HasSideEffects() bool          { return true }
func (x *CRLogic) HasSideEffects() bool        { return true }
func (x *FPRLoad) HasSideEffects() bool        { return false }
func (x *FPRStore) HasSideEffects() bool       { return true }
func (x *FPRUnary) HasSideEffects() bool       { return false }
func (x *FPRRR) HasSideEffects() bool          { return false }
func (x *FPRRRR) HasSideEffects() bool         { return false }
func (x *FPRRRRR) HasSideEffects() bool        { return false }
func (x *FPRCompare) HasSideEffects() bool     { return x.CR.Active() }
func (x *NoOp) HasSideEffects() bool           { return false }
func (x *DebugBreak) HasSideEffects() bool     { return true }

// IsSuffix reports instructions that may transfer control away.
// They are last in their segment and nothing may be placed after them.
func IsSuffix(x Instr) bool {
	switch x := x.(type) {
	case *CondJump, *FlagsJump, *Jump:
		return true
	case *Macro:
		return x.Op.Branching()
	}

	return false
}

// IsBranch reports suffix instructions with a taken edge.
func IsBranch(x Instr) bool {
	switch x := x.(type) {
	case *CondJump, *FlagsJump, *Jump:
		return true
	case *Macro:
		return x.Op == MacroCycleCheck
	}

	return false
}

// IsConditional reports branches that may also fall through.
func IsConditional(x Instr) bool {
	switch x := x.(type) {
	case *CondJump, *FlagsJump:
		return true
	case *Macro:
		return x.Op == MacroCycleCheck
	}

	return false
}

func rw(fn func(Reg) Reg, regs ...*Reg) {
	for _, r := range regs {
		if r.Valid() {
			*r = fn(*r)
		}
	}
}
