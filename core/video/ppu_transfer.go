package video

import (
	"sort"

	"github.com/mnemos-dev/gbcore/core/addr"
	"github.com/mnemos-dev/gbcore/core/bit"
)

// Tick advances the PPU by the given number of dots (T-cycles), stepping
// the mode state machine and, during Mode 3, the pixel fetcher one dot at
// a time.
func (p *PPU) Tick(dots int) {
	for i := 0; i < dots; i++ {
		p.stepDot()
	}
}

func (p *PPU) stepDot() {
	if p.inStartup {
		p.stepStartup()
		return
	}
	if !p.lcdOn() {
		return
	}
	switch p.mode {
	case ModeOAMScan:
		p.stepOAMScan()
	case ModeTransfer:
		p.stepTransfer()
	case ModeHBlank:
		p.stepHBlank()
	case ModeVBlank:
		p.stepVBlank()
	}
}

// --- Mode 2: OAM scan ---

func (p *PPU) stepOAMScan() {
	if p.modeClock%2 == 0 && p.oamScanEntry < 40 {
		base := p.oamScanEntry * 4
		height := 8
		if bit.IsSet(2, p.lcdc) {
			height = 16
		}
		top := int(p.oam[base]) - 16
		if top <= int(p.ly) && int(p.ly) < top+height && len(p.lineSprites) < 10 {
			p.lineSprites = append(p.lineSprites, readSpriteFromOAM(&p.oam, p.lcdc, p.oamScanEntry))
		}
		p.oamScanEntry++
	}
	p.modeClock++
	if p.modeClock >= oamScanDots {
		p.enterTransfer()
	}
}

func (p *PPU) enterOAMScan() {
	p.mode = ModeOAMScan
	p.modeClock = 0
	p.oamScanEntry = 0
	p.lineSprites = p.lineSprites[:0]
	if p.ly == 0 {
		p.winLineCounter = 0
	}
	p.updateStatIRQ()
}

// --- Mode 3: pixel transfer ---

func (p *PPU) enterTransfer() {
	dmgOrder := !p.cgb || p.opri&1 != 0
	if dmgOrder {
		sort.SliceStable(p.lineSprites, func(i, j int) bool {
			if p.lineSprites[i].X != p.lineSprites[j].X {
				return p.lineSprites[i].X < p.lineSprites[j].X
			}
			return p.lineSprites[i].OAMIndex < p.lineSprites[j].OAMIndex
		})
	} else {
		sort.SliceStable(p.lineSprites, func(i, j int) bool {
			return p.lineSprites[i].OAMIndex < p.lineSprites[j].OAMIndex
		})
	}

	p.mode = ModeTransfer
	p.modeClock = 0
	p.windowUsedLine = false
	p.fetch.reset(p.scx)
	if bit.IsSet(5, p.lcdc) && p.wx == 0 && p.scx&7 != 0 {
		p.fetch.renderDelay += p.tuning.WX0PenaltyDots
	}
	p.logs.beginScanline(p.lcdc, p.scx, p.scy, p.wx, p.wy, p.bgp, p.obp0)
	p.updateStatIRQ()
}

func (p *PPU) stepTransfer() {
	p.stepFetcherDot()
	p.modeClock++
	if p.fetch.lcdX >= FramebufferWidth {
		p.enterHBlank(p.modeClock)
	}
}

// stepFetcherDot advances the Mode 3 pipeline by one dot: window
// activation, sprite insertion/stall, BG/window tile fetch progression,
// and pixel emission, in that order (spec §4.4).
func (p *PPU) stepFetcherDot() {
	f := &p.fetch

	if !f.usingWindow && bit.IsSet(5, p.lcdc) && int(p.ly) >= int(p.wy) && p.wx <= 166 {
		if f.positionInLine+7 == int(p.wx) {
			f.restartForWindow()
			if !p.windowUsedLine {
				p.winLineCounter++
				p.windowUsedLine = true
			}
		}
	}

	if bit.IsSet(1, p.lcdc) && !f.spriteActive {
		for f.nextSpriteSlot < len(p.lineSprites) {
			s := p.lineSprites[f.nextSpriteSlot]
			if f.positionInLine == int(s.X) {
				f.spriteActive = true
				f.spriteIdx = f.nextSpriteSlot
				f.spriteDotsLeft = p.tuning.SpriteFetchStallDots
				break
			} else if f.positionInLine > int(s.X) {
				f.nextSpriteSlot++
				continue
			}
			break
		}
	}

	if f.spriteActive {
		f.spriteDotsLeft--
		if f.spriteDotsLeft <= 0 {
			p.mergeSprite(p.lineSprites[f.spriteIdx])
			f.spriteActive = false
			f.nextSpriteSlot++
		}
		f.positionInLine++
		return
	}

	p.stepFetchStage()

	if f.renderDelay > 0 {
		f.renderDelay--
	} else if f.positionInLine >= 0 && f.lcdX < FramebufferWidth && len(f.bgFIFO) > 0 {
		bgpx := f.bgFIFO[0]
		ov := f.overlay[0]
		f.bgFIFO = f.bgFIFO[1:]
		f.overlay = f.overlay[1:]

		p.frameBuf.SetPixel(uint(f.lcdX), uint(p.ly), p.resolveColor(bgpx, ov))
		p.logs.recordPop(p.modeClock, f.lcdX)
		f.lcdX++
	}

	f.positionInLine++
}

func (p *PPU) stepFetchStage() {
	f := &p.fetch
	switch f.stage {
	case stageTile:
		f.subDot++
		if f.subDot >= 2 {
			f.subDot = 0
			p.fetchTileIndex()
			f.stage = stageLo
		}
	case stageLo:
		f.subDot++
		if f.subDot >= 2 {
			f.subDot = 0
			p.fetchLowByte()
			f.stage = stageHi
		}
	case stageHi:
		f.subDot++
		if f.subDot >= 2 {
			f.subDot = 0
			p.fetchHighByte()
			f.stage = stagePush
		}
	case stagePush:
		if len(f.bgFIFO) == 0 {
			p.pushRow()
			f.stage = stageTile
		}
	}
}

func (p *PPU) fetchTileIndex() {
	f := &p.fetch
	var mapBase uint16
	var xTile, yTile, rowInTile int
	if f.usingWindow {
		mapBase = addr.TileMap0
		if bit.IsSet(6, p.lcdc) {
			mapBase = addr.TileMap1
		}
		xTile = f.tileCol & 31
		line := p.winLineCounter - 1
		if line < 0 {
			line = 0
		}
		yTile = (line / 8) & 31
		rowInTile = line % 8
	} else {
		mapBase = addr.TileMap0
		if bit.IsSet(3, p.lcdc) {
			mapBase = addr.TileMap1
		}
		xTile = ((int(p.scx) / 8) + f.tileCol) & 31
		row := int(p.ly) + int(p.scy)
		yTile = (row / 8) & 31
		rowInTile = row % 8
	}

	mapAddr := mapBase + uint16(yTile*32+xTile)
	f.tileIndex = p.ReadVRAMBank(0, mapAddr)
	f.tileAttr = 0
	if p.cgb {
		f.tileAttr = p.ReadVRAMBank(1, mapAddr)
		if bit.IsSet(6, f.tileAttr) {
			rowInTile = 7 - rowInTile
		}
	}
	f.rowInTile = rowInTile
	f.tileCol++
}

func (p *PPU) tileDataAddress() uint16 {
	f := &p.fetch
	var base uint16
	var idx int
	if bit.IsSet(4, p.lcdc) {
		base, idx = addr.TileData0, int(f.tileIndex)
	} else {
		base, idx = addr.TileData2, int(int8(f.tileIndex))
	}
	return base + uint16(idx*16) + uint16(f.rowInTile*2)
}

func (p *PPU) fetchLowByte() {
	f := &p.fetch
	bank := uint8(0)
	if p.cgb && bit.IsSet(3, f.tileAttr) {
		bank = 1
	}
	f.loByte = p.ReadVRAMBank(bank, p.tileDataAddress())
}

func (p *PPU) fetchHighByte() {
	f := &p.fetch
	if !bit.IsSet(4, p.lcdc) {
		// TILE_SEL glitch: LCDC.4 toggled off mid-fetch corrupts the high
		// byte to the tile index itself rather than the real bitplane.
		f.hiByte = f.tileIndex
		return
	}
	bank := uint8(0)
	if p.cgb && bit.IsSet(3, f.tileAttr) {
		bank = 1
	}
	f.hiByte = p.ReadVRAMBank(bank, p.tileDataAddress()+1)
}

func (p *PPU) pushRow() {
	f := &p.fetch
	tr := TileRow{Low: f.loByte, High: f.hiByte}
	xFlip := p.cgb && bit.IsSet(5, f.tileAttr)
	priority := p.cgb && bit.IsSet(7, f.tileAttr)
	paletteIdx := f.tileAttr & 0x7

	for i := 0; i < 8; i++ {
		var color int
		if xFlip {
			color = tr.GetPixelFlipped(i)
		} else {
			color = tr.GetPixel(i)
		}
		f.bgFIFO = append(f.bgFIFO, bgPixel{color: uint8(color), priority: priority, paletteIndex: paletteIdx})
		f.overlay = append(f.overlay, spriteOverlay{})
	}
}

// mergeSprite overlays one sprite's 8 pixels onto the FIFO window currently
// queued, skipping slots a higher-priority sprite (processed earlier,
// since lineSprites is sorted) already claimed.
func (p *PPU) mergeSprite(s Sprite) {
	f := &p.fetch
	row := int(p.ly) - int(s.Y)
	if row < 0 || row >= s.Height {
		return
	}
	if s.FlipY {
		row = s.Height - 1 - row
	}
	tileIndex := s.TileIndex
	if s.Height == 16 {
		tileIndex &= 0xFE
		if row >= 8 {
			tileIndex |= 1
			row -= 8
		}
	}
	bank := uint8(0)
	if p.cgb && bit.IsSet(3, s.Flags) {
		bank = 1
	}
	base := addr.TileData0 + uint16(tileIndex)*16 + uint16(row*2)
	tr := TileRow{Low: p.ReadVRAMBank(bank, base), High: p.ReadVRAMBank(bank, base+1)}

	for px := 0; px < 8 && px < len(f.overlay); px++ {
		var color int
		if s.FlipX {
			color = tr.GetPixelFlipped(px)
		} else {
			color = tr.GetPixel(px)
		}
		if color == 0 || f.overlay[px].present {
			continue
		}
		f.overlay[px] = spriteOverlay{
			present:     true,
			color:       uint8(color),
			behind:      s.BehindBG,
			paletteOBP1: s.PaletteOBP1,
			cgbPalette:  s.Flags & 0x7,
		}
	}
}

func (p *PPU) resolveColor(bgpx bgPixel, ov spriteOverlay) GBColor {
	if !p.cgb {
		bgEnabled := bit.IsSet(0, p.lcdc)
		bgColor := bgpx.color
		if !bgEnabled {
			bgColor = 0
		}
		objWins := ov.present && !(ov.behind && bgColor != 0)
		if objWins {
			obp := p.obp0
			if ov.paletteOBP1 {
				obp = p.obp1
			}
			return ByteToColor((obp >> (ov.color * 2)) & 3)
		}
		return ByteToColor((p.bgp >> (bgColor * 2)) & 3)
	}

	masterPriority := bit.IsSet(0, p.lcdc)
	objWins := ov.present
	if objWins && masterPriority {
		bgBlocks := bgpx.color != 0 && (bgpx.priority || ov.behind)
		objWins = !bgBlocks
	}
	if objWins {
		return cgbPaletteColor(&p.objPalette, ov.cgbPalette, ov.color)
	}
	return cgbPaletteColor(&p.bgPalette, bgpx.paletteIndex, bgpx.color)
}

// cgbPaletteColor converts a CGB palette RAM entry (RGB555, little-endian)
// to the framebuffer's packed 0x00RRGGBB format.
func cgbPaletteColor(ram *[64]byte, palette, color uint8) GBColor {
	offset := int(palette&0x7)*8 + int(color&0x3)*2
	lo := ram[offset]
	hi := ram[offset+1]
	raw := uint16(lo) | uint16(hi)<<8
	r5 := raw & 0x1F
	g5 := (raw >> 5) & 0x1F
	b5 := (raw >> 10) & 0x1F
	r8 := uint32(r5)<<3 | uint32(r5)>>2
	g8 := uint32(g5)<<3 | uint32(g5)>>2
	b8 := uint32(b5)<<3 | uint32(b5)>>2
	return GBColor(r8<<16 | g8<<8 | b8)
}

// --- Mode 0: HBlank ---

func (p *PPU) enterHBlank(transferDots int) {
	p.mode = ModeHBlank
	p.hblankTarget = dotsPerLine - oamScanDots - transferDots
	if p.hblankTarget < 0 {
		p.hblankTarget = 0
	}
	p.modeClock = 0
	if p.onHBlankEnd != nil {
		p.onHBlankEnd()
	}
	p.updateStatIRQ()
}

func (p *PPU) stepHBlank() {
	p.modeClock++
	if p.modeClock >= p.hblankTarget {
		p.advanceLine()
	}
}

func (p *PPU) advanceLine() {
	if p.ly == vblankStartLY-1 {
		p.ly = vblankStartLY
		p.enterVBlank()
		return
	}
	p.ly++
	p.lyForComparison = int(p.ly)
	p.updateStatIRQ()
	p.enterOAMScan()
}

// --- Mode 1: VBlank ---

func (p *PPU) enterVBlank() {
	p.mode = ModeVBlank
	p.modeClock = 0
	p.lyForComparison = int(p.ly)
	p.requestInterrupt(addr.VBlankInterrupt)

	// DMG/CGB both assert the Mode-2 STAT source for one tick on VBlank
	// entry, in addition to the Mode-1 source (mooneye vblank_stat_intr).
	lycEq := p.lyForComparison == int(p.lyc)
	line := bit.IsSet(4, p.stat) || bit.IsSet(5, p.stat) || (lycEq && bit.IsSet(6, p.stat))
	if line && !p.statIRQLine {
		p.requestInterrupt(addr.LCDSTATInterrupt)
	}
	p.statIRQLine = line

	p.frameReady = true
}

func (p *PPU) stepVBlank() {
	p.modeClock++

	if p.ly == 153 {
		switch p.modeClock {
		case 8:
			p.lyForComparison = 0
			p.updateStatIRQ()
		case 9:
			if p.cgb {
				p.lyForComparison = 153
				p.updateStatIRQ()
			}
		}
	}

	if p.modeClock >= dotsPerLine {
		p.modeClock = 0
		if p.ly == 153 {
			p.ly = 0
			p.lyForComparison = 0
			p.updateStatIRQ()
			p.enterOAMScan()
			return
		}
		p.ly++
		p.lyForComparison = int(p.ly)
		p.updateStatIRQ()
	}
}

// --- DMG LCD-on startup sequence ---

func (p *PPU) stepStartup() {
	p.startupDot++
	if p.startupDot == lcdStartupBounds[2] {
		p.ly = 1
	}
	if p.startupDot >= lcdStartupDots {
		p.inStartup = false
		p.ly = 0
		p.lyForComparison = 0
		p.modeClock = 0
		p.enterOAMScan()
	}
}
