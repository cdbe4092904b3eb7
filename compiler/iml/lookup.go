package iml

import (
	"strconv"
	"strings"
)

// ParseOp is the inverse of Op.String.
func ParseOp(s string) (Op, bool) {
	for op := OpInvalid + 1; op < opCount; op++ {
		if opNames[op] == s {
			return op, true
		}
	}

	return OpInvalid, false
}

// IsFloat reports the ops working on float registers.
func (op Op) IsFloat() bool { return op >= OpFAssign && op < opCount }

func ParseCond(s string) (Cond, bool) {
	for c := CondEQ; c <= CondGEU; c++ {
		if c.String() == s {
			return c, true
		}
	}

	return 0, false
}

func ParseFCond(s string) (FCond, bool) {
	for c := FCondLT; c <= FCondUO; c++ {
		if c.String() == s {
			return c, true
		}
	}

	return 0, false
}

func ParseMacroOp(s string) (MacroOp, bool) {
	for m := MacroBLR; m <= MacroCycleCheck; m++ {
		if m.String() == s {
			return m, true
		}
	}

	return 0, false
}

func ParseFPRMode(s string) (FPRMode, bool) {
	for m := FPRModeF32; m <= FPRModePSGeneric; m++ {
		if m.String() == s {
			return m, true
		}
	}

	return 0, false
}

func ParseFormat(s string) (Format, bool) {
	for f := FormatI8; f <= FormatF64; f++ {
		if f.String() == s {
			return f, true
		}
	}

	return FormatInvalid, false
}

// ParseName is the inverse of Name.String.
func ParseName(s string) (Name, bool) {
	num := func(pref string, max int) (int, bool) {
		if !strings.HasPrefix(s, pref) {
			return 0, false
		}

		n, err := strconv.Atoi(s[len(pref):])
		if err != nil || n < 0 || n >= max {
			return 0, false
		}

		return n, true
	}

	switch s {
	case "-":
		return NameNone, true
	case "xer.ca":
		return NameXERCA, true
	case "xer.so":
		return NameXERSO, true
	case "lr":
		return NameSPR(SPRLR), true
	case "ctr":
		return NameSPR(SPRCTR), true
	case "xer":
		return NameSPR(SPRXER), true
	}

	if reg, bit, ok := strings.Cut(s, "."); ok && strings.HasPrefix(reg, "cr") {
		f, err := strconv.Atoi(reg[2:])
		if err != nil || f < 0 || f >= 8 {
			return 0, false
		}

		for i, b := range [4]string{"lt", "gt", "eq", "so"} {
			if b == bit {
				return NameCR(4*f + i), true
			}
		}

		return 0, false
	}

	if r, ps, ok := strings.Cut(s, "."); ok {
		s = r

		n, ok := num("f", 32)
		if !ok {
			return 0, false
		}

		switch ps {
		case "ps0":
			return NameFPR(n), true
		case "ps1":
			return NameFPRPS1(n), true
		}

		return 0, false
	}

	if n, ok := num("r", 32); ok {
		return NameGPR(n), true
	}

	if n, ok := num("gqr", 8); ok {
		return NameGQR(n), true
	}

	if n, ok := num("spr", int(nameSPREnd-nameSPR)); ok {
		return NameSPR(n), true
	}

	if n, ok := num("tmp", 0x800); ok {
		return NameTemporary(n), true
	}

	return 0, false
}
