package format

import (
	"github.com/nikandfor/hacked/hfmt"
	"golang.org/x/arch/x86/x86asm"
)

// Disassemble appends an Intel syntax listing of 64 bit code.
// Undecodable bytes are shown one at a time,
// including truncated instructions the decoder reports as a lone prefix.
func Disassemble(b []byte, code []byte) []byte {
	for pc := 0; pc < len(code); {
		inst, err := x86asm.Decode(code[pc:], 64)
		if err != nil || inst.Op == 0 {
			b = hfmt.Appendf(b, "0x%04x: %-16s db 0x%02x\n", pc, hexBytes(code[pc:pc+1]), code[pc])
			pc++

			continue
		}

		b = hfmt.Appendf(b, "0x%04x: %-16s %s\n", pc, hexBytes(code[pc:pc+inst.Len]), x86asm.IntelSyntax(inst, uint64(pc), nil))
		pc += inst.Len
	}

	return b
}

func hexBytes(p []byte) string {
	const digits = "0123456789abcdef"

	b := make([]byte, 0, 2*len(p))

	for _, x := range p {
		b = append(b, digits[x>>4], digits[x&0xf])
	}

	return string(b)
}
