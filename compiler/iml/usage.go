package iml

// Usage lists the registers an instruction touches.
// A write to a view narrower than 32 bits keeps the upper part
// of the register and is recorded as a read-write.
type Usage struct {
	Reads      []Reg
	Writes     []Reg
	ReadWrites []Reg
}

// UsageOf is a convenience wrapper allocating a fresh Usage.
func UsageOf(x Instr) Usage {
	var u Usage
	x.Usage(&u)

	return u
}

func (u *Usage) Reset() {
	u.Reads = u.Reads[:0]
	u.Writes = u.Writes[:0]
	u.ReadWrites = u.ReadWrites[:0]
}

func (u *Usage) read(regs ...Reg) {
	for _, r := range regs {
		if r.Valid() {
			u.Reads = append(u.Reads, r)
		}
	}
}

func (u *Usage) write(regs ...Reg) {
	for _, r := range regs {
		if !r.Valid() {
			continue
		}

		if f := r.Format(); f == FormatI8 || f == FormatI16 {
			u.ReadWrites = append(u.ReadWrites, r)
			continue
		}

		u.Writes = append(u.Writes, r)
	}
}

func (u *Usage) readWrite(regs ...Reg) {
	for _, r := range regs {
		if r.Valid() {
			u.ReadWrites = append(u.ReadWrites, r)
		}
	}
}

// IsRead reports whether the value of r before the instruction is used.
func (u *Usage) IsRead(r Reg) bool {
	return contains(u.Reads, r) || contains(u.ReadWrites, r)
}

// IsWritten reports whether r holds a new value after the instruction.
func (u *Usage) IsWritten(r Reg) bool {
	return contains(u.Writes, r) || contains(u.ReadWrites, r)
}

// Uses reports any access to r.
func (u *Usage) Uses(r Reg) bool {
	return u.IsRead(r) || u.IsWritten(r)
}

// Regs returns every register slot, in reads, writes, read-writes order.
func (u *Usage) Regs() []Reg {
	l := make([]Reg, 0, len(u.Reads)+len(u.Writes)+len(u.ReadWrites))
	l = append(l, u.Reads...)
	l = append(l, u.Writes...)
	l = append(l, u.ReadWrites...)

	return l
}

// RewriteGPR replaces integer registers found in m.
func RewriteGPR(x Instr, m map[RegID]RegID) {
	x.Rewrite(func(r Reg) Reg {
		if r.IsFloat() {
			return r
		}

		if id, ok := m[r.ID()]; ok {
			return r.WithID(id)
		}

		return r
	})
}

// ReplaceFPR replaces float registers found in m.
func ReplaceFPR(x Instr, m map[RegID]RegID) {
	x.Rewrite(func(r Reg) Reg {
		if !r.IsFloat() {
			return r
		}

		if id, ok := m[r.ID()]; ok {
			return r.WithID(id)
		}

		return r
	})
}

func contains(l []Reg, r Reg) bool {
	for _, x := range l {
		if x.Same(r) {
			return true
		}
	}

	return false
}
