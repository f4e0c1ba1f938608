package core

import (
	"github.com/mnemos-dev/gbcore/core/addr"
	"github.com/mnemos-dev/gbcore/core/cpu"
	"github.com/mnemos-dev/gbcore/core/memory"
)

// BusInterface defines the interface for component communication
type BusInterface interface {
	Read(address uint16) byte
	Write(address uint16, value byte)
	RequestInterrupt(interrupt addr.Interrupt)
}

// Bus provides centralized component communication. The MMU owns the
// PPU/APU/timer/serial/joypad directly, so Bus only wires the CPU to it.
type Bus struct {
	CPU *cpu.CPU
	MMU *memory.MMU
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Read(address uint16) byte {
	return b.MMU.Read(address)
}

func (b *Bus) Write(address uint16, value byte) {
	b.MMU.Write(address, value)
}

// TickInstruction executes one CPU "step" (an instruction, a HALT/DMA-stall
// M-cycle, or an interrupt dispatch); the CPU ticks the MMU (and in turn the
// PPU/APU/timer/serial) once per M-cycle as it goes. Returns the number of
// M-cycles consumed.
func (b *Bus) TickInstruction() int {
	return b.CPU.Step()
}

func (b *Bus) RequestInterrupt(interrupt addr.Interrupt) {
	b.MMU.RequestInterrupt(interrupt)
}

func (b *Bus) ReadBit(index uint8, address uint16) bool {
	return b.MMU.ReadBit(index, address)
}
