package back

import (
	"tlog.app/go/errors"

	"github.com/slowlang/ppcrec/compiler/asm/amd64"
	"github.com/slowlang/ppcrec/compiler/iml"
)

// ea returns the host address of guest Base + Index + Offset.
// It may use RegTemp.
func (g *gen) ea(base, index iml.Reg, off int32) amd64.Mem {
	switch {
	case base.Valid() && index.Valid():
		g.a.Lea(amd64.W32, RegTemp, amd64.MI(gpr(base), gpr(index), 1, 0))

		return amd64.MI(RegMemBase, RegTemp, 1, off)
	case index.Valid():
		return amd64.MI(RegMemBase, gpr(index), 1, off)
	case base.Valid():
		return amd64.MI(RegMemBase, gpr(base), 1, off)
	}

	g.a.MovImm32(RegTemp, uint32(off))

	return amd64.MI(RegMemBase, RegTemp, 1, 0)
}

// withEA calls fn with the address while keeping RegTemp free for data.
// A two register address is formed by adding index to base for the access.
func (g *gen) withEA(base, index iml.Reg, off int32, fn func(m amd64.Mem)) error {
	switch {
	case base.Valid() && index.Valid():
		b, i := gpr(base), gpr(index)

		if b == i {
			fn(amd64.MI(RegMemBase, b, 2, off))
			break
		}

		g.a.AluRR(amd64.ADD, amd64.W32, b, i)
		fn(amd64.MI(RegMemBase, b, 1, off))
		g.a.AluRR(amd64.SUB, amd64.W32, b, i)
	case index.Valid():
		fn(amd64.MI(RegMemBase, gpr(index), 1, off))
	case base.Valid():
		fn(amd64.MI(RegMemBase, gpr(base), 1, off))
	case off >= 0:
		fn(amd64.M(RegMemBase, off))
	default:
		return errors.Wrap(ErrUnsupported, "absolute address %#x", uint32(off))
	}

	return nil
}

func (g *gen) load(x *iml.Load) error {
	dst := gpr(x.Dst)
	m := g.ea(x.Base, x.Index, x.Offset)

	switch {
	case x.Size == 8 && x.SignExtend:
		g.a.MovsxLoad(dst, amd64.W8, m)
	case x.Size == 8:
		g.a.MovzxLoad(dst, amd64.W8, m)
	case x.Size == 16:
		switch {
		case !x.SwapEndian && x.SignExtend:
			g.a.MovsxLoad(dst, amd64.W16, m)
			return nil
		case !x.SwapEndian:
			g.a.MovzxLoad(dst, amd64.W16, m)
			return nil
		case g.o.Features.MOVBE:
			g.a.MovbeLoad(amd64.W16, dst, m)
		default:
			g.a.MovzxLoad(dst, amd64.W16, m)
			g.a.ShiftRI(amd64.ROR, amd64.W16, dst, 8)
		}

		if x.SignExtend {
			g.a.Movsx(dst, amd64.W16, dst)
		} else {
			g.a.Movzx(dst, amd64.W16, dst)
		}
	case x.Size == 32:
		switch {
		case !x.SwapEndian:
			g.a.Load(amd64.W32, dst, m)
		case g.o.Features.MOVBE:
			g.a.MovbeLoad(amd64.W32, dst, m)
		default:
			g.a.Load(amd64.W32, dst, m)
			g.a.Bswap(amd64.W32, dst)
		}
	default:
		return errors.Wrap(ErrUnsupported, "load size %d", x.Size)
	}

	return nil
}

func (g *gen) store(x *iml.Store) error {
	src := gpr(x.Src)

	var w amd64.Width

	switch x.Size {
	case 8:
		w = amd64.W8
	case 16:
		w = amd64.W16
	case 32:
		w = amd64.W32
	default:
		return errors.Wrap(ErrUnsupported, "store size %d", x.Size)
	}

	switch {
	case w == amd64.W8 || !x.SwapEndian:
		g.a.Store(w, g.ea(x.Base, x.Index, x.Offset), src)
	case g.o.Features.MOVBE:
		g.a.MovbeStore(w, g.ea(x.Base, x.Index, x.Offset), src)
	case !x.Base.Valid() && !x.Index.Valid():
		// swap the source in place and restore it
		m := g.ea(x.Base, x.Index, x.Offset)

		g.swap(w, src)
		g.a.Store(w, m, src)
		g.swap(w, src)
	default:
		g.a.MovRR(amd64.W32, RegTemp, src)
		g.swap(w, RegTemp)

		return g.withEA(x.Base, x.Index, x.Offset, func(m amd64.Mem) {
			g.a.Store(w, m, RegTemp)
		})
	}

	return nil
}

func (g *gen) swap(w amd64.Width, r amd64.Reg) {
	if w == amd64.W16 {
		g.a.ShiftRI(amd64.ROR, amd64.W16, r, 8)
		return
	}

	g.a.Bswap(w, r)
}

// atomicCmpStore expects Expected in eax. The comparison is done
// on the big endian representation, so both operands are swapped.
func (g *gen) atomicCmpStore(x *iml.AtomicCmpStore) {
	iml.Assert(gpr(x.Expected) == amd64.RAX, "expected value in %v", gpr(x.Expected))

	g.a.Bswap(amd64.W32, amd64.RAX)
	g.a.MovRR(amd64.W32, RegTemp, gpr(x.New))
	g.a.Bswap(amd64.W32, RegTemp)
	g.a.LockCmpxchg(amd64.W32, amd64.MI(RegMemBase, gpr(x.EA), 1, 0), RegTemp)

	g.setcc(amd64.CCE, x.Result)
}

func sprSlot(spr int) amd64.Mem {
	off, _, _ := nameSlot(iml.NameSPR(spr))

	return hcpu(off)
}

// jumpTable continues at the guest address in eax.
func (g *gen) jumpTable() {
	g.a.JmpMem(amd64.MI(RegData, amd64.RAX, 2, RDataJumpTable))
}

func (g *gen) macro(x *iml.Macro) error {
	lr, ctr := sprSlot(iml.SPRLR), sprSlot(iml.SPRCTR)

	switch x.Op {
	case iml.MacroBLR:
		g.a.Load(amd64.W32, amd64.RAX, lr)
		g.jumpTable()
	case iml.MacroBLRL:
		g.a.Load(amd64.W32, amd64.RAX, lr)
		g.a.StoreImm(amd64.W32, lr, int32(x.Param))
		g.jumpTable()
	case iml.MacroBCTR:
		g.a.Load(amd64.W32, amd64.RAX, ctr)
		g.jumpTable()
	case iml.MacroBCTRL:
		g.a.StoreImm(amd64.W32, lr, int32(x.Param))
		g.a.Load(amd64.W32, amd64.RAX, ctr)
		g.jumpTable()
	case iml.MacroBL:
		g.a.StoreImm(amd64.W32, lr, int32(x.Param2))
		g.a.MovImm32(amd64.RAX, x.Param)
		g.jumpTable()
	case iml.MacroBFar:
		g.a.MovImm32(amd64.RAX, x.Param)
		g.jumpTable()
	case iml.MacroLeave:
		g.a.StoreImm(amd64.W32, hcpu(OffIP), int32(x.Param))
		g.a.JmpMem(rdata(RDataLeave))
	case iml.MacroHLE:
		g.a.StoreImm(amd64.W32, hcpu(OffIP), int32(x.Param))
		g.a.MovImm32(amd64.RDI, x.Param)
		g.a.MovImm32(amd64.RSI, x.Param2)
		g.a.MovRR(amd64.W64, amd64.RDX, RegHCPU)
		g.a.CallMem(rdata(RDataHLE))
		g.a.Load(amd64.W32, amd64.RAX, hcpu(OffIP))
		g.jumpTable()
	case iml.MacroCountCycles:
		g.a.AluMI(amd64.SUB, amd64.W32, hcpu(OffCycles), int32(x.Param))
	case iml.MacroCycleCheck:
		g.a.AluMI(amd64.CMP, amd64.W32, hcpu(OffCycles), 0)
		g.jccTo(amd64.CCL, g.s.Taken)
		g.jumpTo(g.s.Next)
	default:
		return errors.Wrap(ErrUnsupported, "macro %v", x.Op)
	}

	return nil
}
