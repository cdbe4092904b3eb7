package parse

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/ppcrec/compiler"
	"github.com/slowlang/ppcrec/compiler/iml"
)

func TestParseLoop(t *testing.T) {
	c, err := ParseFile(context.Background(), "testdata/loop.iml")
	require.NoError(t, err)

	require.Len(t, c.Segments, 5)
	assert.Equal(t, 5, c.NumRegs())

	entry, check, body, exit, leave := c.Segments[0], c.Segments[1], c.Segments[2], c.Segments[3], c.Segments[4]

	assert.True(t, entry.Enterable)
	assert.Equal(t, uint32(0x8000_3000), entry.EnterAddr)
	assert.Equal(t, uint32(0x8000_3018), exit.PPCAddr)
	assert.Same(t, check, entry.Next)
	assert.Nil(t, entry.Taken)

	assert.Same(t, leave, check.Taken)
	assert.Same(t, body, check.Next)

	assert.Same(t, check, body.Taken)
	assert.Same(t, exit, body.Next)
	assert.ElementsMatch(t, []*iml.Segment{entry, body}, check.Prev)

	assert.True(t, exit.IsLeaf())
	assert.True(t, leave.IsLeaf())

	require.Len(t, body.Instrs, 6)

	ld, ok := body.Instrs[0].(*iml.Load)
	require.True(t, ok, "%T", body.Instrs[0])
	assert.Equal(t, uint8(32), ld.Size)
	assert.True(t, ld.SwapEndian)
	assert.False(t, ld.Index.Valid())

	sub, ok := body.Instrs[3].(*iml.RRS32)
	require.True(t, ok, "%T", body.Instrs[3])
	assert.Equal(t, iml.OpSub, sub.Op)
	assert.Equal(t, int32(1), sub.Imm)
	assert.Equal(t, iml.CRUpdate{Enabled: true, Field: 0, IgnoreMask: 0b0100}, sub.CR)

	cmp, ok := body.Instrs[4].(*iml.CompareS32)
	require.True(t, ok, "%T", body.Instrs[4])
	assert.Equal(t, iml.CondNE, cmp.Cond)

	j, ok := body.Suffix().(*iml.CondJump)
	require.True(t, ok)
	assert.True(t, j.MustBeTrue)

	m, ok := leave.Suffix().(*iml.Macro)
	require.True(t, ok)
	assert.Equal(t, iml.MacroLeave, m.Op)
	assert.Equal(t, uint32(0x8000_3004), m.Param)
}

func TestParseForms(t *testing.T) {
	c, err := ParseFile(context.Background(), "testdata/mixed.iml")
	require.NoError(t, err)

	require.Len(t, c.Segments, 3)

	var (
		carry  int
		flags  bool
		fused  bool
		unary  bool
		fcmp   *iml.FPRCompare
		crl    *iml.CRLogic
		call   *iml.Call
		stores int
	)

	for _, s := range c.Segments {
		for _, x := range s.Instrs {
			switch x := x.(type) {
			case *iml.RRS32Carry:
				carry++
				assert.Equal(t, iml.OpAddCarryOut, x.Op)
				assert.Equal(t, int32(-1), x.Imm)
			case *iml.RRRCarry:
				carry++
				assert.Equal(t, iml.OpAddCarry, x.Op)
				assert.True(t, x.CR.Enabled)
			case *iml.CompareFlags:
				flags = true
				assert.True(t, x.UseImm)
				assert.Equal(t, int32(0x20), x.Imm)
			case *iml.FPRRRRR:
				fused = true
			case *iml.FPRUnary:
				unary = true
				assert.Equal(t, iml.OpFNeg, x.Op)
			case *iml.FPRCompare:
				fcmp = x
			case *iml.CRLogic:
				crl = x
			case *iml.Call:
				call = x
			case *iml.Store:
				stores++
				assert.Equal(t, uint8(8), x.Size)
				assert.Equal(t, int32(-4), x.Offset)
				assert.False(t, x.SwapEndian)
			}
		}
	}

	assert.Equal(t, 2, carry)
	assert.True(t, flags)
	assert.True(t, fused)
	assert.True(t, unary)
	assert.Equal(t, 1, stores)

	require.NotNil(t, fcmp)
	assert.False(t, fcmp.Dst.Valid())
	assert.Equal(t, iml.CRUpdate{Enabled: true, Field: 1, IgnoreMask: 0b1000}, fcmp.CR)

	require.NotNil(t, crl)
	assert.Equal(t, iml.CRLogic{Op: iml.OpCROr, D: 6, A: 4, B: 5}, *crl)

	require.NotNil(t, call)
	assert.Equal(t, uint64(0x7f00_0000_1000), call.Target)
	assert.True(t, call.Args[1].Valid())
	assert.False(t, call.Args[2].Valid())

	_, ok := c.Segments[0].Suffix().(*iml.FlagsJump)
	assert.True(t, ok)
}

func TestParseCompile(t *testing.T) {
	for _, name := range []string{"testdata/loop.iml", "testdata/mixed.iml"} {
		t.Run(name, func(t *testing.T) {
			c, err := ParseFile(context.Background(), name)
			require.NoError(t, err)

			n, err := compiler.Compile(context.Background(), c, nil)
			require.NoError(t, err)

			assert.NotEmpty(t, n.Code)
			assert.NotEmpty(t, n.Entries)
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		text string
		line int
		col  int
	}{
		{"outside", "a = add a, b", 1, 1},
		{"format", "reg a u32", 1, 7},
		{"redeclared", "reg a i32\nreg a i32", 2, 5},
		{"memory_name", "reg a i32 lr", 1, 11},
		{"undeclared", "reg a i32\nseg s\n\ta = add a, b", 3, 13},
		{"unknown_op", "reg a i32\nseg s\n\ta = frob a", 3, 6},
		{"float_dst", "reg a i32\nreg f f64\nseg s\n\tf = add a, a", 4, 6},
		{"char", "seg s\n\tnop $", 2, 6},
		{"after_suffix", "seg s\n\tmacro blr\n\tnop", 3, 2},
		{"unknown_label", "seg s\n\tjump -> nowhere", 2, 7},
		{"ignore_mask", "reg a i32\nseg s\n\ta = neg a -> cr0 ignore 12", 3, 26},
		{"carry_dst", "reg a i32\nseg s\n\ta = adc a, a", 3, 6},
		{"segment_twice", "seg s\nseg s", 2, 5},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(context.Background(), []byte(tc.text))
			require.Error(t, err)

			var pe *Error
			require.True(t, errors.As(err, &pe), "%v", err)

			assert.Equal(t, tc.line, pe.Line, "%v", err)
			assert.Equal(t, tc.col, pe.Col, "%v", err)
		})
	}
}

func TestParseValidate(t *testing.T) {
	// flags compare separated from its jump
	_, err := Parse(context.Background(), []byte("reg a i32\nseg s\n\tjump_if a == true -> s, s\nseg t\n\tflags = cmp a, 1\n\tnop\n\tjump_if flags.eq -> s, s"))
	require.Error(t, err)

	var pe *Error
	assert.False(t, errors.As(err, &pe))
}

func TestParseFileError(t *testing.T) {
	_, err := ParseFile(context.Background(), "testdata/missing.iml")
	assert.Error(t, err)
}
