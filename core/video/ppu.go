package video

import (
	"github.com/mnemos-dev/gbcore/core/addr"
	"github.com/mnemos-dev/gbcore/core/bit"
)

// Mode is the PPU's current rendering stage, matching STAT bits 1-0.
type Mode uint8

const (
	ModeHBlank   Mode = 0
	ModeVBlank   Mode = 1
	ModeOAMScan  Mode = 2
	ModeTransfer Mode = 3
)

const (
	dotsPerLine    = 456
	oamScanDots    = 80
	linesPerFrame  = 154
	vblankStartLY  = 144
	mode3BaseDots  = 172
	lcdStartupDots = 912
)

// lcdStartupBounds are the 6 sub-dot boundaries of the DMG LCD-on startup
// sequence (spec §4.4), with two LY transitions at fixed offsets within it.
var lcdStartupBounds = [6]int{80, 252, 456, 536, 708, 912}

// PPU implements the dot-accurate Game Boy/Game Boy Color video core: the
// mode state machine, OAM scan, and Mode 3 BG/window/sprite pixel pipeline.
// It exclusively owns VRAM and OAM; the MMU routes CPU-facing accesses
// through its gated Read/Write entry points.
type PPU struct {
	vram     [2][0x2000]byte
	vramBank uint8
	oam      [160]byte

	lcdc, stat, scy, scx, ly, lyc, wy, wx, bgp, obp0, obp1 uint8

	// CGB-only state
	cgb        bool
	bgpi, obpi uint8
	bgPalette  [64]byte
	objPalette [64]byte
	opri       uint8

	mode      Mode
	modeClock int

	lyForComparison int
	statIRQLine     bool

	lineSprites    []Sprite
	oamScanEntry   int
	winLineCounter int
	windowUsedLine bool
	hblankTarget   int

	fetch fetcher
	logs  mode3Logs

	lcdWasOff    bool
	startupDot   int
	startupStage int
	inStartup    bool

	frameBuf   *FrameBuffer
	frameReady bool

	tuning           TuningConfig
	requestInterrupt func(addr.Interrupt)

	// onHBlankEnd, if set, is called once per visible scanline right after
	// Mode 3 completes, used by the MMU to drive one HDMA block copy.
	onHBlankEnd func()
	// onLCDDisable, if set, is called when LCDC.7 is cleared, used by the
	// MMU to flush any in-progress HDMA transfer immediately.
	onLCDDisable func()
}

// SetHBlankHook registers the callback driven once per visible scanline's
// Mode 3 -> Mode 0 transition.
func (p *PPU) SetHBlankHook(fn func()) { p.onHBlankEnd = fn }

// SetLCDDisableHook registers the callback driven when LCDC.7 is cleared.
func (p *PPU) SetLCDDisableHook(fn func()) { p.onLCDDisable = fn }

// Mode reports the PPU's current STAT mode.
func (p *PPU) Mode() Mode { return p.mode }

// LY reports the current scanline. It reads 153 for the whole of line 153;
// only the LYC comparison value is reset to 0 early on that line.
func (p *PPU) LY() uint8 { return p.ly }

// New creates a PPU. requestInterrupt is called to set IF bits; cgb selects
// Game Boy Color register/palette behavior.
func New(requestInterrupt func(addr.Interrupt), cgb bool, tuning TuningConfig) *PPU {
	p := &PPU{
		frameBuf:         NewFrameBuffer(),
		requestInterrupt: requestInterrupt,
		cgb:              cgb,
		tuning:           tuning,
		mode:             ModeOAMScan,
		lineSprites:      make([]Sprite, 0, 10),
	}
	return p
}

func (p *PPU) FrameBuffer() *FrameBuffer { return p.frameBuf }
func (p *PPU) FrameReady() bool          { return p.frameReady }
func (p *PPU) ClearFrameReady()          { p.frameReady = false }

// --- VRAM/OAM access, gated per spec §4.2 ---

func (p *PPU) VRAMReadAccessible() bool  { return p.mode != ModeTransfer }
func (p *PPU) VRAMWriteAccessible() bool { return p.mode != ModeTransfer }
func (p *PPU) OAMReadAccessible() bool   { return p.mode != ModeOAMScan && p.mode != ModeTransfer }
func (p *PPU) OAMWriteAccessible() bool  { return p.mode != ModeOAMScan && p.mode != ModeTransfer }

func (p *PPU) ReadVRAM(address uint16) byte {
	if !p.VRAMReadAccessible() {
		return 0xFF
	}
	return p.vram[p.vramBank][address-0x8000]
}

func (p *PPU) WriteVRAM(address uint16, value byte) {
	if !p.VRAMWriteAccessible() {
		return
	}
	p.vram[p.vramBank][address-0x8000] = value
}

// WriteVRAMBypass is used by HDMA/GDMA, which bypasses Mode 3 write gating.
func (p *PPU) WriteVRAMBypass(address uint16, value byte) {
	p.vram[p.vramBank][address-0x8000] = value
}

// ReadVRAMBank reads VRAM from an explicit bank, bypassing the access gate;
// used by the HDMA source-side copy and by debug tooling.
func (p *PPU) ReadVRAMBank(bank uint8, address uint16) byte {
	return p.vram[bank&1][address-0x8000]
}

// ReadOAM services a CPU read of OAM. The OAM-corruption glitch triggers on
// the address hitting the bus even when the read itself is blocked (spec
// §4.4), so the access kind is always reported before the accessibility gate.
func (p *PPU) ReadOAM(address uint16) byte {
	p.TriggerOAMCorruption(address, OAMBugRead)
	if !p.OAMReadAccessible() {
		return 0xFF
	}
	return p.oam[address-addr.OAMStart]
}

func (p *PPU) WriteOAM(address uint16, value byte) {
	p.TriggerOAMCorruption(address, OAMBugWrite)
	if !p.OAMWriteAccessible() {
		return
	}
	p.oam[address-addr.OAMStart] = value
}

// WriteOAMBypass is used by OAM DMA, which bypasses the Mode 2/3 write gate.
func (p *PPU) WriteOAMBypass(index int, value byte) {
	p.oam[index] = value
}

// ReadOAMBypass is used by the OAM DMA bus-conflict model to let the PPU's
// Mode-2 scanner observe the multiplexed DMA bus (spec §4.4).
func (p *PPU) ReadOAMBypass(index int) byte {
	return p.oam[index]
}

// --- register I/O ---

func (p *PPU) ReadRegister(address uint16) byte {
	switch address {
	case addr.LCDC:
		return p.lcdc
	case addr.STAT:
		return 0x80 | p.stat&0x78 | p.statModeBits()
	case addr.SCY:
		return p.scy
	case addr.SCX:
		return p.scx
	case addr.LY:
		return p.ly
	case addr.LYC:
		return p.lyc
	case addr.BGP:
		return p.bgp
	case addr.OBP0:
		return p.obp0
	case addr.OBP1:
		return p.obp1
	case addr.WY:
		return p.wy
	case addr.WX:
		return p.wx
	case addr.VBK:
		return 0xFE | p.vramBank
	case addr.BGPI:
		return p.bgpi
	case addr.BGPD:
		return p.bgPalette[p.bgpi&0x3F]
	case addr.OBPI:
		return p.obpi
	case addr.OBPD:
		return p.objPalette[p.obpi&0x3F]
	case addr.OPRI:
		return p.opri
	default:
		return 0xFF
	}
}

func (p *PPU) statModeBits() byte {
	if !p.lcdOn() {
		return 0
	}
	mode := byte(p.mode)
	lycEq := byte(0)
	if p.lyForComparison == int(p.lyc) {
		lycEq = 1
	}
	return mode | lycEq<<2
}

func (p *PPU) WriteRegister(address uint16, value byte) {
	switch address {
	case addr.LCDC:
		p.writeLCDC(value)
	case addr.STAT:
		p.stat = value & 0x78
		p.updateStatIRQ()
	case addr.SCY:
		p.scy = value
		p.recordMode3Write(&p.logs.scy, value)
	case addr.SCX:
		p.scx = value
		p.recordMode3Write(&p.logs.scx, value)
	case addr.LY:
		// read-only on real hardware
	case addr.LYC:
		p.lyc = value
		p.updateStatIRQ()
	case addr.BGP:
		p.bgp = value
		p.recordMode3Write(&p.logs.bgp, value)
	case addr.OBP0:
		p.obp0 = value
		p.recordMode3Write(&p.logs.obp0, value)
	case addr.OBP1:
		p.obp1 = value
	case addr.WY:
		p.wy = value
		p.recordMode3Write(&p.logs.wy, value)
	case addr.WX:
		p.wx = value
		p.recordMode3Write(&p.logs.wx, value)
	case addr.VBK:
		p.vramBank = value & 1
	case addr.BGPI:
		p.bgpi = value & 0xBF
	case addr.BGPD:
		if p.mode != ModeTransfer {
			p.bgPalette[p.bgpi&0x3F] = value
		}
		if p.bgpi&0x80 != 0 {
			p.bgpi = (p.bgpi & 0x80) | ((p.bgpi + 1) & 0x3F)
		}
	case addr.OBPI:
		p.obpi = value & 0xBF
	case addr.OBPD:
		if p.mode != ModeTransfer {
			p.objPalette[p.obpi&0x3F] = value
		}
		if p.obpi&0x80 != 0 {
			p.obpi = (p.obpi & 0x80) | ((p.obpi + 1) & 0x3F)
		}
	case addr.OPRI:
		p.opri = value & 1
	}
}

func (p *PPU) recordMode3Write(log *eventLog, value uint8) {
	if p.mode == ModeTransfer {
		log.record(p.modeClock, value)
	}
}

func (p *PPU) lcdOn() bool { return p.lcdc&0x80 != 0 }

func (p *PPU) writeLCDC(value byte) {
	wasOn := p.lcdOn()
	p.lcdc = value
	p.recordMode3Write(&p.logs.lcdc, value)

	if wasOn && !p.lcdOn() {
		if p.onLCDDisable != nil {
			p.onLCDDisable()
		}
		p.mode = ModeHBlank
		p.modeClock = 0
		p.ly = 0
		p.lyForComparison = 0
		p.winLineCounter = 0
		p.inStartup = false
		p.frameBuf.Clear()
		return
	}
	if !wasOn && p.lcdOn() {
		if p.cgb {
			p.mode = ModeOAMScan
			p.modeClock = 0
			return
		}
		p.inStartup = true
		p.startupDot = 0
		p.startupStage = 0
		p.mode = ModeHBlank
		p.modeClock = 0
	}
}

func (p *PPU) updateStatIRQ() {
	if !p.lcdOn() {
		return
	}
	lycEq := p.lyForComparison == int(p.lyc)
	line := (p.mode == ModeHBlank && bit.IsSet(3, p.stat)) ||
		(p.mode == ModeVBlank && bit.IsSet(4, p.stat)) ||
		(p.mode == ModeOAMScan && bit.IsSet(5, p.stat)) ||
		(lycEq && bit.IsSet(6, p.stat))

	if line && !p.statIRQLine {
		p.requestInterrupt(addr.LCDSTATInterrupt)
	}
	p.statIRQLine = line
}
