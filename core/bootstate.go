package core

import (
	"github.com/mnemos-dev/gbcore/core/cpu"
	"github.com/mnemos-dev/gbcore/core/memory"
)

// Model selects which hardware revision's post-boot register values and
// WRAM seed are used when no boot ROM is supplied.
type Model int

const (
	ModelDMG Model = iota
	ModelDMG0
	ModelMGB
	ModelCGB0
	ModelCGBE
)

type regSet struct {
	af, bc, de, hl, sp uint16
	wramSeed           uint32
}

// powerOnRegs holds the register file a real boot ROM leaves behind right
// before jumping to 0x0100, per model/revision. Values differ mainly in A
// (the boot ROM hands back a revision fingerprint in A) and the CGB mode
// flag folded into B.
var powerOnRegs = map[Model]regSet{
	ModelDMG0: {af: 0x0100, bc: 0xFF13, de: 0x00C1, hl: 0x8403, sp: 0xFFFE, wramSeed: 0x1234},
	ModelDMG:  {af: 0x01B0, bc: 0x0013, de: 0x00D8, hl: 0x014D, sp: 0xFFFE, wramSeed: 0xABCD},
	ModelMGB:  {af: 0xFFB0, bc: 0x0013, de: 0x00D8, hl: 0x014D, sp: 0xFFFE, wramSeed: 0xABCD},
	ModelCGB0: {af: 0x1180, bc: 0x0000, de: 0xFF56, hl: 0x000D, sp: 0xFFFE, wramSeed: 0x5678},
	ModelCGBE: {af: 0x1180, bc: 0x0000, de: 0x0008, hl: 0x007C, sp: 0xFFFE, wramSeed: 0x5678},
}

// ApplyBootState sets the CPU's register file and seeds WRAM as if the
// model's boot ROM had just run and handed off to the cartridge at 0x0100.
// Call this only when no real boot ROM image was installed via
// mem.SetBootROM; a real boot ROM produces this same state by execution.
func ApplyBootState(c *cpu.CPU, mem *memory.MMU, model Model) {
	regs, ok := powerOnRegs[model]
	if !ok {
		regs = powerOnRegs[ModelDMG]
	}

	c.SetAF(regs.af)
	c.SetBC(regs.bc)
	c.SetDE(regs.de)
	c.SetHL(regs.hl)
	c.SetSP(regs.sp)
	c.SetPC(0x0100)

	mem.SeedWRAM(regs.wramSeed)
}

// defaultModelFor picks DMG or CGBE based on the cartridge's CGB flag; the
// caller can override with a more specific model/revision via ApplyBootState.
func defaultModelFor(mem *memory.MMU) Model {
	if mem.CGB() {
		return ModelCGBE
	}
	return ModelDMG
}
