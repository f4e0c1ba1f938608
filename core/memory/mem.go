package memory

import (
	"fmt"
	"log/slog"

	"github.com/mnemos-dev/gbcore/core/addr"
	"github.com/mnemos-dev/gbcore/core/audio"
	"github.com/mnemos-dev/gbcore/core/bit"
	"github.com/mnemos-dev/gbcore/core/serial"
	"github.com/mnemos-dev/gbcore/core/video"
)

type memRegion uint8

const (
	regionROM memRegion = iota
	regionVRAM
	regionExtRAM
	regionWRAM
	regionEcho
	regionOAM
	regionUnused
	regionIO
	regionHRAM
)

// SerialPort is the minimal interface for a serial device connected to SB/SC.
type SerialPort interface {
	Write(address uint16, value byte)
	Read(address uint16) byte
	// Tick advances the port by one M-cycle; divPrev/divNow are the timer's
	// internal divider value before/after it, so an internal-clock transfer
	// can shift bits on the divider's own falling edges (spec §4.6).
	Tick(divPrev, divNow uint16, doubleSpeed bool)
	Reset()
}

const (
	oamDMAStartDelayDots = 8   // 2 M-cycles before the first byte lands (spec §4.4)
	oamDMADotsPerByte    = 4   // 1 M-cycle per copied byte
	oamDMATotalBytes     = 160 // sprite table size
)

// MMU routes the CPU's 16-bit address space to the PPU, APU, timer, serial
// port, joypad, cartridge/MBC, and CGB-only collaborators (HDMA, WRAM/VRAM
// banking, double-speed switch). It is the sole owner of all subsystems;
// the CPU holds only a reference to it.
type MMU struct {
	cart      *Cartridge
	mbc       MBC
	regionMap [256]memRegion

	ppu    *video.PPU
	apu    *audio.APU
	timer  Timer
	serial SerialPort
	joypad *Joypad

	wram     [8][0x1000]byte
	wramBank uint8 // SVBK low 3 bits, CGB only; 0 reads back as 1
	hram     [0x7F]byte
	ifReg    uint8
	ieReg    uint8

	bootROM        []byte
	bootROMEnabled bool

	cgb              bool
	key1             uint8
	doubleSpeed      bool
	speedSwitchArmed bool

	dmaActive     bool
	dmaStartDelay int
	dmaElapsed    int
	dmaSource     uint16
	dmaProgress   int
	lastDMAByte   byte

	hdmaSrc       uint16
	hdmaDst       uint16
	hdmaBlocks    uint8 // blocks remaining, minus 1 (as stored in HDMA5)
	hdmaActive    bool
	hdmaIsGeneral bool
	gdmaStall     int

	ff72, ff73, ff74, ff75 byte
}

// New creates an MMU with no cartridge loaded, as if a Game Boy were powered
// on with an empty cartridge slot.
func New() *MMU {
	return newMMU(false)
}

// NewCGB creates an MMU in Game Boy Color mode.
func NewCGB() *MMU {
	return newMMU(true)
}

func newMMU(cgb bool) *MMU {
	mmu := &MMU{
		cart:     NewCartridge(),
		apu:      audio.New(),
		cgb:      cgb,
		wramBank: 1,
	}
	mmu.ppu = video.New(mmu.RequestInterrupt, cgb, video.DefaultTuning())
	mmu.ppu.SetHBlankHook(mmu.stepHDMABlock)
	mmu.ppu.SetLCDDisableHook(mmu.flushHDMA)
	mmu.joypad = NewJoypad(func() { mmu.RequestInterrupt(addr.JoypadInterrupt) })
	var serialOpts []serial.LogSinkOption
	if cgb {
		serialOpts = append(serialOpts, serial.WithCGB())
	}
	mmu.serial = serial.NewLogSink(func() { mmu.RequestInterrupt(addr.SerialInterrupt) }, serialOpts...)
	mmu.timer = *NewTimer(func() { mmu.RequestInterrupt(addr.TimerInterrupt) })
	initRegionMap(mmu)
	return mmu
}

// NewWithCartridge creates an MMU with the given cartridge loaded, selecting
// the CGB/DMG mode and MBC implementation from the cartridge header.
func NewWithCartridge(cart *Cartridge) *MMU {
	mmu := newMMU(cart.CGB())
	mmu.cart = cart

	switch cart.mbcType {
	case NoMBCType:
		mmu.mbc = NewNoMBC(cart.data)
	case MBC1Type, MBC1MultiType:
		mmu.mbc = NewMBC1(cart.data, cart.hasBattery, cart.ramBankCount)
	case MBC2Type:
		mmu.mbc = NewMBC2(cart.data)
	case MBC3Type:
		mmu.mbc = NewMBC3(cart.data, cart.hasRTC, cart.ramBankCount)
	case MBC5Type:
		mmu.mbc = NewMBC5(cart.data, cart.hasRumble, cart.ramBankCount)
	case MBCUnknownType:
		panic("unsupported MBC type: unknown")
	default:
		panic(fmt.Sprintf("unsupported MBC type: %d", cart.mbcType))
	}

	return mmu
}

// CGB reports whether this MMU was constructed in Game Boy Color mode.
func (m *MMU) CGB() bool { return m.cgb }

// OAMIncDecCheck reports the DMG OAM-corruption glitch triggered when the
// CPU's IDU lands a 16-bit register increment/decrement on an OAM address
// while the PPU's Mode-2 scanner is running (spec §4.4), e.g. `LD A,[HL+]`
// with HL in OAM, or a bare `INC HL`/`DEC HL`.
func (m *MMU) OAMIncDecCheck(address uint16) {
	if address < addr.OAMStart || address > 0xFEFF {
		return
	}
	m.ppu.TriggerOAMCorruption(address, video.OAMBugIncDec)
}

// SeedWRAM fills work RAM with a deterministic-but-unspecified pattern
// derived from seed, matching real hardware's uninitialized-RAM power-on
// noise closely enough for test ROMs that checksum it without relying on
// any particular value.
func (m *MMU) SeedWRAM(seed uint32) {
	x := seed
	if x == 0 {
		x = 1
	}
	next := func() uint32 {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		return x
	}
	for bank := range m.wram {
		for i := range m.wram[bank] {
			m.wram[bank][i] = byte(next())
		}
	}
}

// PPU exposes the video core for host backends (framebuffer/frame_ready).
func (m *MMU) PPU() *video.PPU { return m.ppu }

// Joypad exposes the input collaborator so host backends can press/release keys.
func (m *MMU) Joypad() *Joypad { return m.joypad }

// SetBootROM installs a boot ROM overlay (256 bytes DMG, 2304 bytes CGB),
// active until any write lands on addr.BANK.
func (m *MMU) SetBootROM(data []byte) {
	m.bootROM = data
	m.bootROMEnabled = len(data) > 0
}

// SetTimerSeed initializes the internal timer divider seed and DIV register.
func (m *MMU) SetTimerSeed(seed uint16) {
	m.timer.SetSeed(seed)
}

// Tick advances every dot-driven collaborator by the dots corresponding to
// mCycles M-cycles of CPU time, and steps the OAM DMA scheduler and any
// pending GDMA stall. Order is load-bearing: Timer, then APU, then PPU, so
// that a TIMA overflow interrupt and a STAT interrupt raised on the same
// dot land in the order real hardware's shared dot clock produces, and so
// the APU's frame sequencer observes the timer's divider before the PPU
// (which never reads it) gets a chance to run.
func (m *MMU) Tick(mCycles int) {
	dotsPerM := 4
	if m.doubleSpeed {
		dotsPerM = 2
	}
	dots := mCycles * dotsPerM

	divPrev := m.timer.DIV16()
	m.timer.Tick(dots)
	divNow := m.timer.DIV16()

	m.apu.Tick(divPrev, divNow, m.doubleSpeed)
	m.ppu.Tick(dots)
	if m.serial != nil {
		m.serial.Tick(divPrev, divNow, m.doubleSpeed)
	}
	m.stepOAMDMA(dots)

	if m.gdmaStall > 0 {
		m.gdmaStall -= dots
		if m.gdmaStall < 0 {
			m.gdmaStall = 0
		}
	}
}

// Stalled reports whether the CPU must idle this M-cycle; true only while a
// GDMA copy's modeled stall duration has not yet elapsed (spec §4.4). OAM
// DMA does not stall the CPU on real hardware — it only restricts the bus.
func (m *MMU) Stalled() bool { return m.gdmaStall > 0 }

func (m *MMU) DoubleSpeed() bool          { return m.doubleSpeed }
func (m *MMU) SetDoubleSpeed(v bool)      { m.doubleSpeed = v }
func (m *MMU) StopSpeedSwitchArmed() bool { return m.cgb && m.speedSwitchArmed }
func (m *MMU) ClearSpeedSwitchArmed()     { m.speedSwitchArmed = false }

func initRegionMap(m *MMU) {
	for i := 0x00; i <= 0x7F; i++ {
		m.regionMap[i] = regionROM
	}
	for i := 0x80; i <= 0x9F; i++ {
		m.regionMap[i] = regionVRAM
	}
	for i := 0xA0; i <= 0xBF; i++ {
		m.regionMap[i] = regionExtRAM
	}
	for i := 0xC0; i <= 0xDF; i++ {
		m.regionMap[i] = regionWRAM
	}
	for i := 0xE0; i <= 0xFD; i++ {
		m.regionMap[i] = regionEcho
	}
	m.regionMap[0xFE] = regionOAM
	m.regionMap[0xFF] = regionIO
}

// RequestInterrupt sets the interrupt flag (IF register) of the chosen interrupt to 1.
func (m *MMU) RequestInterrupt(interrupt addr.Interrupt) {
	var bitPos uint8
	switch interrupt {
	case addr.VBlankInterrupt:
		bitPos = 0
	case addr.LCDSTATInterrupt:
		bitPos = 1
	case addr.TimerInterrupt:
		bitPos = 2
	case addr.SerialInterrupt:
		bitPos = 3
	case addr.JoypadInterrupt:
		bitPos = 4
	default:
		panic(fmt.Sprintf("Unknown interrupt: 0x%02X", uint8(interrupt)))
	}
	m.ifReg = bit.Set(bitPos, m.ifReg)
}

func (m *MMU) ReadBit(index uint8, address uint16) bool {
	return bit.IsSet(index, m.Read(address))
}

func (m *MMU) SetBit(index uint8, address uint16, set bool) {
	value := m.Read(address)
	if set {
		value = bit.Set(index, value)
	} else {
		value = bit.Reset(index, value)
	}
	m.Write(address, value)
}

func (m *MMU) wramBankIndex() uint8 {
	bank := m.wramBank & 0x07
	if bank == 0 {
		bank = 1
	}
	return bank
}

func (m *MMU) Read(address uint16) byte {
	if m.dmaActive && m.dmaStartDelay <= 0 && address < 0xFF80 {
		return m.lastDMAByte
	}
	return m.regionRead(address)
}

func (m *MMU) regionRead(address uint16) byte {
	if m.bootROMEnabled && address < uint16(len(m.bootROM)) && m.regionMap[address>>8] == regionROM {
		return m.bootROM[address]
	}

	switch m.regionMap[address>>8] {
	case regionROM, regionExtRAM:
		if m.mbc == nil {
			slog.Warn("Reading from ROM/external RAM with no cartridge", "addr", fmt.Sprintf("0x%04X", address))
			return 0xFF
		}
		return m.mbc.Read(address)
	case regionVRAM:
		return m.ppu.ReadVRAM(address)
	case regionWRAM:
		return m.readWRAM(address)
	case regionEcho:
		return m.readWRAM(address - 0x2000)
	case regionOAM:
		if address <= addr.OAMEnd {
			return m.ppu.ReadOAM(address)
		}
		return 0xFF
	case regionIO:
		return m.readIO(address)
	default:
		panic(fmt.Sprintf("Attempted read at unmapped address: 0x%X", address))
	}
}

func (m *MMU) readWRAM(address uint16) byte {
	if address < 0xD000 {
		return m.wram[0][address-0xC000]
	}
	return m.wram[m.wramBankIndex()][address-0xD000]
}

func (m *MMU) writeWRAM(address uint16, value byte) {
	if address < 0xD000 {
		m.wram[0][address-0xC000] = value
		return
	}
	m.wram[m.wramBankIndex()][address-0xD000] = value
}

func (m *MMU) readIO(address uint16) byte {
	switch {
	case address == addr.P1:
		return m.joypad.Read()
	case address == addr.SB || address == addr.SC:
		return m.serial.Read(address)
	case address == addr.DIV || address == addr.TIMA || address == addr.TMA || address == addr.TAC:
		return m.timer.Read(address)
	case address >= addr.AudioStart && address <= addr.AudioEnd:
		return m.apu.ReadRegister(address)
	case address == addr.IF:
		return m.ifReg | 0xE0
	case address == addr.IE:
		return m.ieReg
	case isPPURegister(address):
		return m.ppu.ReadRegister(address)
	case address == addr.DMA:
		return byte(m.dmaSource >> 8)
	case address == addr.KEY1:
		if !m.cgb {
			return 0xFF
		}
		return (m.key1 & 0x81) | 0x7E
	case address == addr.HDMA5:
		if !m.cgb {
			return 0xFF
		}
		if m.hdmaActive {
			return m.hdmaBlocks & 0x7F
		}
		return 0x80 | (m.hdmaBlocks & 0x7F)
	case address == addr.SVBK:
		if !m.cgb {
			return 0xFF
		}
		return 0xF8 | m.wramBank
	case address == addr.RP:
		return 0xFF
	case address == addr.FF72:
		return m.ff72
	case address == addr.FF73:
		return m.ff73
	case address == addr.FF74:
		return m.ff74
	case address == addr.FF75:
		return m.ff75 | 0x8F
	case address == addr.BANK:
		if m.bootROMEnabled {
			return 0x00
		}
		return 0x01
	case address >= 0xFF80:
		return m.hram[address-0xFF80]
	default:
		return 0xFF
	}
}

func isPPURegister(address uint16) bool {
	switch address {
	case addr.LCDC, addr.STAT, addr.SCY, addr.SCX, addr.LY, addr.LYC,
		addr.BGP, addr.OBP0, addr.OBP1, addr.WY, addr.WX,
		addr.VBK, addr.BGPI, addr.BGPD, addr.OBPI, addr.OBPD, addr.OPRI:
		return true
	default:
		return false
	}
}

func (m *MMU) Write(address uint16, value byte) {
	switch m.regionMap[address>>8] {
	case regionROM:
		if m.mbc == nil {
			slog.Warn("Writing to ROM with no cartridge", "addr", fmt.Sprintf("0x%04X", address), "value", fmt.Sprintf("0x%02X", value))
			return
		}
		m.mbc.Write(address, value)
	case regionExtRAM:
		if m.mbc == nil {
			slog.Warn("Writing to external RAM with no cartridge", "addr", fmt.Sprintf("0x%04X", address), "value", fmt.Sprintf("0x%02X", value))
			return
		}
		m.mbc.Write(address, value)
	case regionVRAM:
		m.ppu.WriteVRAM(address, value)
	case regionWRAM:
		m.writeWRAM(address, value)
	case regionEcho:
		m.writeWRAM(address-0x2000, value)
	case regionOAM:
		if address <= addr.OAMEnd {
			m.ppu.WriteOAM(address, value)
		}
	case regionIO:
		m.writeIO(address, value)
	default:
		panic(fmt.Sprintf("Attempted write at unmapped address: 0x%X", address))
	}
}

func (m *MMU) writeIO(address uint16, value byte) {
	switch {
	case address == addr.P1:
		m.joypad.Write(value)
	case address == addr.SB || address == addr.SC:
		m.serial.Write(address, value)
	case address == addr.DIV || address == addr.TIMA || address == addr.TMA || address == addr.TAC:
		m.timer.Write(address, value)
	case address >= addr.AudioStart && address <= addr.AudioEnd:
		m.apu.WriteRegister(address, value)
	case address == addr.IF:
		m.ifReg = value & 0x1F
	case address == addr.IE:
		m.ieReg = value
	case isPPURegister(address):
		m.ppu.WriteRegister(address, value)
	case address == addr.DMA:
		m.startOAMDMA(value)
	case address == addr.KEY1:
		if m.cgb {
			m.speedSwitchArmed = value&0x01 != 0
		}
	case address == addr.HDMA1:
		m.hdmaSrc = (m.hdmaSrc & 0x00FF) | uint16(value)<<8
	case address == addr.HDMA2:
		m.hdmaSrc = (m.hdmaSrc & 0xFF00) | uint16(value&0xF0)
	case address == addr.HDMA3:
		m.hdmaDst = (m.hdmaDst & 0x00FF) | uint16(value&0x1F)<<8
	case address == addr.HDMA4:
		m.hdmaDst = (m.hdmaDst & 0xFF00) | uint16(value&0xF0)
	case address == addr.HDMA5:
		m.startHDMA(value)
	case address == addr.SVBK:
		if m.cgb {
			m.wramBank = value & 0x07
		}
	case address == addr.RP:
		// infrared port, not modeled
	case address == addr.FF72:
		m.ff72 = value
	case address == addr.FF73:
		m.ff73 = value
	case address == addr.FF74:
		m.ff74 = value
	case address == addr.FF75:
		m.ff75 = value & 0x70
	case address == addr.BANK:
		m.bootROMEnabled = false
	case address >= 0xFF80:
		m.hram[address-0xFF80] = value
	}
}

// --- OAM DMA: 2 M-cycle start delay, then 1 byte copied per M-cycle,
// with the CPU's bus (outside HRAM) observing the most recently copied
// byte for the duration (spec §4.4 bus-conflict model). ---

func (m *MMU) startOAMDMA(value byte) {
	m.dmaSource = uint16(value) << 8
	m.dmaActive = true
	m.dmaStartDelay = oamDMAStartDelayDots
	m.dmaElapsed = 0
	m.dmaProgress = 0
}

func (m *MMU) stepOAMDMA(dots int) {
	if !m.dmaActive {
		return
	}
	if m.dmaStartDelay > 0 {
		m.dmaStartDelay -= dots
		if m.dmaStartDelay > 0 {
			return
		}
		dots = -m.dmaStartDelay
		m.dmaStartDelay = 0
	}

	m.dmaElapsed += dots
	for m.dmaElapsed >= oamDMADotsPerByte && m.dmaProgress < oamDMATotalBytes {
		value := m.regionRead(m.dmaSource + uint16(m.dmaProgress))
		m.lastDMAByte = value
		m.ppu.WriteOAMBypass(m.dmaProgress, value)
		m.dmaProgress++
		m.dmaElapsed -= oamDMADotsPerByte
	}
	if m.dmaProgress >= oamDMATotalBytes {
		m.dmaActive = false
	}
}

// --- CGB HDMA/GDMA ---

func (m *MMU) startHDMA(value byte) {
	if !m.cgb {
		return
	}
	if m.hdmaActive && value&0x80 == 0 {
		// writing bit7=0 while an HDMA transfer is in progress cancels it
		m.hdmaActive = false
		m.hdmaBlocks |= 0x80
		return
	}

	m.hdmaBlocks = value & 0x7F
	general := value&0x80 == 0
	m.hdmaIsGeneral = general

	if general {
		blocks := int(m.hdmaBlocks) + 1
		m.copyHDMABlocks(blocks)
		dotsPerBlock := 8
		if m.doubleSpeed {
			dotsPerBlock = 16
		}
		m.gdmaStall = blocks * dotsPerBlock
		m.hdmaActive = false
	} else {
		m.hdmaActive = true
	}
}

// stepHDMABlock copies one 16-byte block per visible HBlank while an HDMA
// (as opposed to GDMA) transfer is active; registered as the PPU's
// HBlank hook.
func (m *MMU) stepHDMABlock() {
	if !m.hdmaActive {
		return
	}
	m.copyHDMABlocks(1)
	if m.hdmaBlocks == 0 {
		m.hdmaActive = false
		m.hdmaBlocks = 0x7F
		return
	}
	m.hdmaBlocks--
}

func (m *MMU) copyHDMABlocks(blocks int) {
	dst := 0x8000 | (m.hdmaDst & 0x1FF0)
	for b := 0; b < blocks; b++ {
		for i := 0; i < 16; i++ {
			value := m.regionRead(m.hdmaSrc)
			m.ppu.WriteVRAMBypass(dst, value)
			m.hdmaSrc++
			dst++
		}
	}
	m.hdmaDst = dst & 0x1FF0
}

// flushHDMA completes any remaining HDMA blocks immediately when the LCD is
// disabled mid-transfer (spec §4.4, scenario 6).
func (m *MMU) flushHDMA() {
	if !m.hdmaActive {
		return
	}
	m.copyHDMABlocks(int(m.hdmaBlocks) + 1)
	m.hdmaActive = false
	m.hdmaBlocks = 0x7F
}

// --- joypad bridging for host backends using the legacy key enum ---

func (m *MMU) HandleKeyPress(key JoypadKey) { m.joypad.Press(key) }

func (m *MMU) HandleKeyRelease(key JoypadKey) { m.joypad.Release(key) }
