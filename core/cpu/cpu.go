// Package cpu implements the Sharp SM83 core: register file, instruction
// decoder and the M-cycle accurate bus/interrupt schedule described in the
// core specification.
package cpu

import "github.com/mnemos-dev/gbcore/core/memory"

// Flag is one of the 4 bits of the F register that hardware actually uses.
type Flag uint8

const (
	flagZ Flag = 0x80
	flagN Flag = 0x40
	flagH Flag = 0x20
	flagC Flag = 0x10
)

// CPU holds the SM83 register file and drives mem one M-cycle at a time.
type CPU struct {
	mem *memory.MMU

	a, f, b, c, d, e, h, l uint8
	sp, pc                 uint16

	ime      bool
	imeDelay int8 // instructions remaining until IME takes effect; -1 = none pending
	halted   bool
	haltBug  bool

	cycles uint64 // free-running M-cycle counter, for debuggers
}

// New returns a CPU wired to the given MMU. Register reset values are the
// caller's responsibility (see core.bootstate), matching the teacher's
// separation of CPU construction from power-on state.
func New(mem *memory.MMU) *CPU {
	return &CPU{mem: mem, imeDelay: -1}
}

func (c *CPU) GetPC() uint16  { return c.pc }
func (c *CPU) SetPC(v uint16) { c.pc = v }
func (c *CPU) GetSP() uint16  { return c.sp }
func (c *CPU) SetSP(v uint16) { c.sp = v }
func (c *CPU) Cycles() uint64 { return c.cycles }
func (c *CPU) IsHalted() bool { return c.halted }
func (c *CPU) IME() bool      { return c.ime }

func (c *CPU) SetAF(v uint16) { c.a = uint8(v >> 8); c.f = uint8(v) & 0xF0 }
func (c *CPU) SetBC(v uint16) { c.b = uint8(v >> 8); c.c = uint8(v) }
func (c *CPU) SetDE(v uint16) { c.d = uint8(v >> 8); c.e = uint8(v) }
func (c *CPU) SetHL(v uint16) { c.h = uint8(v >> 8); c.l = uint8(v) }
func (c *CPU) GetAF() uint16  { return uint16(c.a)<<8 | uint16(c.f) }
func (c *CPU) GetBC() uint16  { return uint16(c.b)<<8 | uint16(c.c) }
func (c *CPU) GetDE() uint16  { return uint16(c.d)<<8 | uint16(c.e) }
func (c *CPU) GetHL() uint16  { return uint16(c.h)<<8 | uint16(c.l) }
func (c *CPU) GetA() uint8    { return c.a }
func (c *CPU) GetF() uint8    { return c.f }

func (c *CPU) flag(fl Flag) bool { return c.f&uint8(fl) != 0 }

func (c *CPU) setFlag(fl Flag, set bool) {
	if set {
		c.f |= uint8(fl)
	} else {
		c.f &^= uint8(fl)
	}
	c.f &= 0xF0
}

// --- bus primitives, each one M-cycle ---

func (c *CPU) tick() {
	c.mem.Tick(1)
	c.cycles++
}

func (c *CPU) readTick(addr uint16) uint8 {
	v := c.mem.Read(addr)
	c.tick()
	return v
}

func (c *CPU) writeTick(addr uint16, v uint8) {
	c.mem.Write(addr, v)
	c.tick()
}

// delay consumes one M-cycle with no bus transaction (internal cycles).
func (c *CPU) delay() { c.tick() }

func (c *CPU) fetch8() uint8 {
	v := c.readTick(c.pc)
	c.pc++
	return v
}

func (c *CPU) fetch16() uint16 {
	lo := c.fetch8()
	hi := c.fetch8()
	return uint16(hi)<<8 | uint16(lo)
}

func (c *CPU) push(v uint16) {
	c.sp--
	c.writeTick(c.sp, uint8(v>>8))
	c.sp--
	c.writeTick(c.sp, uint8(v))
}

func (c *CPU) pop() uint16 {
	lo := c.readTick(c.sp)
	c.sp++
	hi := c.readTick(c.sp)
	c.sp++
	return uint16(hi)<<8 | uint16(lo)
}

// Step executes exactly one "unit" of CPU progress: either an interrupt
// dispatch, one M-cycle of HALT, one M-cycle of DMA/speed-switch stall, or
// one full instruction. Returns the number of M-cycles consumed.
func (c *CPU) Step() int {
	before := c.cycles

	// GDMA stalls the CPU entirely; the PPU/timer/APU keep advancing because
	// mem.Tick still runs underneath.
	if c.mem.Stalled() {
		c.tick()
		return int(c.cycles - before)
	}

	// EI's one-instruction delay: armed the instruction *after* EI, takes
	// effect only once that following instruction has fully executed.
	if c.imeDelay >= 0 {
		if c.imeDelay == 0 {
			c.ime = true
			c.imeDelay = -1
		} else {
			c.imeDelay--
		}
	}

	ifReg := c.mem.Read(0xFF0F)
	ieReg := c.mem.Read(0xFFFF)
	pending := ifReg & ieReg & 0x1F

	if c.halted {
		if pending != 0 {
			c.halted = false
		} else {
			c.tick()
			return int(c.cycles - before)
		}
	}

	if c.ime && pending != 0 {
		c.dispatchInterrupt(pending)
		return int(c.cycles - before)
	}

	opcode := c.fetch8()
	if c.haltBug {
		// the HALT bug re-fetches the same opcode byte without having moved PC
		c.pc--
		c.haltBug = false
	}
	c.execute(opcode)

	return int(c.cycles - before)
}

func (c *CPU) dispatchInterrupt(pending uint8) {
	var bitPos uint8
	var vector uint16
	switch {
	case pending&0x01 != 0:
		bitPos, vector = 0, 0x40
	case pending&0x02 != 0:
		bitPos, vector = 1, 0x48
	case pending&0x04 != 0:
		bitPos, vector = 2, 0x50
	case pending&0x08 != 0:
		bitPos, vector = 3, 0x58
	case pending&0x10 != 0:
		bitPos, vector = 4, 0x60
	}

	ifReg := c.mem.Read(0xFF0F)
	c.mem.Write(0xFF0F, ifReg&^(1<<bitPos))
	c.ime = false

	c.delay()
	c.delay()
	c.push(c.pc)
	c.pc = vector
	c.delay()
}

// enterHalt applies the HALT-bug rule from spec §4.1.
func (c *CPU) enterHalt() {
	ifReg := c.mem.Read(0xFF0F)
	ieReg := c.mem.Read(0xFFFF)
	if !c.ime && (ifReg&ieReg&0x1F) != 0 {
		c.haltBug = true
		c.halted = false
		return
	}
	c.halted = true
}

// stop handles the CGB speed switch (STOP 0x10 xx); DMG STOP is otherwise a no-op here.
func (c *CPU) stop() {
	c.fetch8() // the second STOP byte
	if c.mem.StopSpeedSwitchArmed() {
		c.mem.ClearSpeedSwitchArmed()
		c.mem.SetDoubleSpeed(!c.mem.DoubleSpeed())
	}
}

func (c *CPU) armEI() { c.imeDelay = 1 }

func (c *CPU) armDI() {
	c.ime = false
	c.imeDelay = -1
}
