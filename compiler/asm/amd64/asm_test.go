package amd64

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/arch/x86/x86asm"
)

func decode(t *testing.T, b []byte) x86asm.Inst {
	t.Helper()

	inst, err := x86asm.Decode(b, 64)
	require.NoError(t, err, "% x", b)
	require.Equal(t, len(b), inst.Len, "% x", b)

	return inst
}

func TestDecodeRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name string
		emit func(a *Asm)
		op   x86asm.Op
		args []x86asm.Arg
	}{
		{"mov32", func(a *Asm) { a.MovRR(W32, RAX, RCX) }, x86asm.MOV, []x86asm.Arg{x86asm.EAX, x86asm.ECX}},
		{"mov64_high", func(a *Asm) { a.MovRR(W64, R9, R12) }, x86asm.MOV, []x86asm.Arg{x86asm.R9, x86asm.R12}},
		{"add_imm8", func(a *Asm) { a.AluRI(ADD, W32, RBX, 5) }, x86asm.ADD, []x86asm.Arg{x86asm.EBX, x86asm.Imm(5)}},
		{"xor_rr", func(a *Asm) { a.AluRR(XOR, W32, R10, R11) }, x86asm.XOR, []x86asm.Arg{x86asm.R10L, x86asm.R11L}},
		{"cmp_rr", func(a *Asm) { a.AluRR(CMP, W32, RSI, RDI) }, x86asm.CMP, []x86asm.Arg{x86asm.ESI, x86asm.EDI}},
		{"test", func(a *Asm) { a.TestRR(W32, RDX, RDX) }, x86asm.TEST, []x86asm.Arg{x86asm.EDX, x86asm.EDX}},
		{"imul", func(a *Asm) { a.ImulRR(W32, RAX, R8) }, x86asm.IMUL, []x86asm.Arg{x86asm.EAX, x86asm.R8L}},
		{"neg", func(a *Asm) { a.UnaryR(NEG, W32, RCX) }, x86asm.NEG, []x86asm.Arg{x86asm.ECX}},
		{"div", func(a *Asm) { a.UnaryR(DIV, W32, RBX) }, x86asm.DIV, []x86asm.Arg{x86asm.EBX}},
		{"shl_cl", func(a *Asm) { a.ShiftCL(SHL, W32, RDX) }, x86asm.SHL, []x86asm.Arg{x86asm.EDX, x86asm.CL}},
		{"sar_imm", func(a *Asm) { a.ShiftRI(SAR, W32, RAX, 3) }, x86asm.SAR, []x86asm.Arg{x86asm.EAX, x86asm.Imm(3)}},
		{"bswap", func(a *Asm) { a.Bswap(W32, R11) }, x86asm.BSWAP, []x86asm.Arg{x86asm.R11L}},
		{"movzx8", func(a *Asm) { a.Movzx(RAX, W8, RCX) }, x86asm.MOVZX, []x86asm.Arg{x86asm.EAX, x86asm.CL}},
		{"movsx16", func(a *Asm) { a.Movsx(RDX, W16, RBX) }, x86asm.MOVSX, []x86asm.Arg{x86asm.EDX, x86asm.BX}},
		{"bsr", func(a *Asm) { a.Bsr(W32, RAX, RCX) }, x86asm.BSR, []x86asm.Arg{x86asm.EAX, x86asm.ECX}},
		{"ret", func(a *Asm) { a.Ret() }, x86asm.RET, nil},
		{"addsd", func(a *Asm) { a.ArithSD(ADDSD, 1, 2) }, x86asm.ADDSD, []x86asm.Arg{x86asm.X1, x86asm.X2}},
		{"mulsd_high", func(a *Asm) { a.ArithSD(MULSD, 9, 3) }, x86asm.MULSD, []x86asm.Arg{x86asm.X9, x86asm.X3}},
		{"ucomisd", func(a *Asm) { a.Ucomisd(0, 13) }, x86asm.UCOMISD, []x86asm.Arg{x86asm.X0, x86asm.X13}},
		{"cvtss2sd", func(a *Asm) { a.Cvtss2sd(4, 4) }, x86asm.CVTSS2SD, []x86asm.Arg{x86asm.X4, x86asm.X4}},
		{"cvtsd2ss", func(a *Asm) { a.Cvtsd2ss(14, 1) }, x86asm.CVTSD2SS, []x86asm.Arg{x86asm.X14, x86asm.X1}},
		{"maxsd", func(a *Asm) { a.ArithSD(MAXSD, 15, 14) }, x86asm.MAXSD, []x86asm.Arg{x86asm.X15, x86asm.X14}},
		{"xorpd", func(a *Asm) { a.BitPD(XORPD, 2, 2) }, x86asm.XORPD, []x86asm.Arg{x86asm.X2, x86asm.X2}},
		{"movapd", func(a *Asm) { a.Movapd(15, 0) }, x86asm.MOVAPD, []x86asm.Arg{x86asm.X15, x86asm.X0}},
		{"cvttsd2si", func(a *Asm) { a.Cvttsd2si(RAX, 1) }, x86asm.CVTTSD2SI, []x86asm.Arg{x86asm.EAX, x86asm.X1}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var a Asm
			tc.emit(&a)

			inst := decode(t, a.Bytes())
			assert.Equal(t, tc.op, inst.Op)

			for i, arg := range tc.args {
				assert.Equal(t, arg, inst.Args[i], "arg %d", i)
			}
		})
	}
}

func TestMemoryOperands(t *testing.T) {
	for _, tc := range []struct {
		name string
		emit func(a *Asm)
		want []byte
	}{
		// r13 base needs a zero disp8
		{"r13_base", func(a *Asm) { a.Load(W32, RAX, M(R13, 0)) }, []byte{0x41, 0x8b, 0x45, 0x00}},
		// rsp and r12 bases need a SIB byte
		{"r12_base", func(a *Asm) { a.Load(W32, RAX, M(R12, 8)) }, []byte{0x41, 0x8b, 0x44, 0x24, 0x08}},
		{"rbp_disp32", func(a *Asm) { a.Store(W32, M(RBP, 0x200), RCX) }, []byte{0x89, 0x8d, 0x00, 0x02, 0x00, 0x00}},
		{"index", func(a *Asm) { a.Load(W32, RDX, MI(R13, RCX, 1, 0)) }, []byte{0x41, 0x8b, 0x54, 0x0d, 0x00}},
		{"movbe", func(a *Asm) { a.MovbeLoad(W32, RAX, MI(R13, RCX, 1, 0)) }, []byte{0x41, 0x0f, 0x38, 0xf0, 0x44, 0x0d, 0x00}},
		{"setcc_sil", func(a *Asm) { a.Setcc(CCE, RSI) }, []byte{0x40, 0x0f, 0x94, 0xc6}},
		{"shlx", func(a *Asm) { a.ShiftX(SHL, W32, RAX, RCX, RDX) }, []byte{0xc4, 0xe2, 0x69, 0xf7, 0xc1}},
		{"lzcnt", func(a *Asm) { a.Lzcnt(W32, RAX, RCX) }, []byte{0xf3, 0x0f, 0xbd, 0xc1}},
		{"movsd_r14", func(a *Asm) { a.MovsdLoad(1, M(R14, 0)) }, []byte{0xf2, 0x41, 0x0f, 0x10, 0x0e}},
		{"lock_cmpxchg", func(a *Asm) { a.LockCmpxchg(W32, MI(R13, RDX, 1, 0), RBX) }, []byte{0xf0, 0x41, 0x0f, 0xb1, 0x5c, 0x15, 0x00}},
		{"and_mem_byte", func(a *Asm) { a.AluMR(AND, W8, M(RBP, 0x300), R14) }, []byte{0x44, 0x20, 0xb5, 0x00, 0x03, 0x00, 0x00}},
		{"jmp_table", func(a *Asm) { a.JmpMem(MI(R15, RAX, 2, 0)) }, []byte{0x41, 0xff, 0x24, 0x47}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var a Asm
			tc.emit(&a)

			assert.Equal(t, tc.want, a.Bytes())
		})
	}
}

func TestMovImm(t *testing.T) {
	var a Asm

	a.MovImm64(RAX, 5)
	assert.Equal(t, []byte{0xb8, 5, 0, 0, 0}, a.Bytes())

	a.Reset()
	a.MovImm64(R9, 0xffff_ffff_ffff_fff0)
	inst := decode(t, a.Bytes())
	assert.Equal(t, x86asm.MOV, inst.Op)
	assert.Equal(t, x86asm.R9, inst.Args[0])

	a.Reset()
	a.MovImm64(RCX, 0x1234_5678_9abc)
	assert.Len(t, a.Bytes(), 10)
}

func TestJumpPatch(t *testing.T) {
	var a Asm

	at := a.Jcc(CCNE)
	a.Nop()
	a.Nop()
	a.Patch32(at, Rel32(at, a.Len()))

	inst := decode(t, a.Bytes()[:6])
	assert.Equal(t, x86asm.JNE, inst.Op)
	assert.Equal(t, x86asm.Rel(2), inst.Args[0])

	assert.Equal(t, CCE, CCNE.Negate())
	assert.Equal(t, CCP, CCNP.Negate())
}
