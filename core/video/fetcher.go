package video

// fetchStage enumerates the BG/window fetcher's micro-steps (spec §4.4);
// each of tile/lo/hi takes 2 dots, push is instantaneous once the FIFO has
// drained enough to accept a new tile's worth of pixels.
type fetchStage uint8

const (
	stageTile fetchStage = iota
	stageLo
	stageHi
	stagePush
)

// spriteFetchStage enumerates the micro-sequence used to fetch one sprite's
// attributes and bitplanes once the pipeline stalls for it.
type spriteFetchStage uint8

const (
	spriteAttr0 spriteFetchStage = iota
	spriteAttr1
	spriteLow0
	spriteLow1
	spriteHigh
	spriteDone
)

// bgPixel is one queued background/window pixel awaiting emission.
type bgPixel struct {
	color        uint8 // 2-bit color index, pre-palette
	priority     bool  // CGB BG-to-OBJ priority bit (tile attribute bit 7)
	paletteIndex uint8 // CGB BG palette RAM index (tile attribute bits 0-2)
}

// spriteOverlay is the sprite pixel, if any, merged onto a bgFIFO slot.
// Kept as a parallel slice so sprite-to-sprite priority (first writer wins,
// since lineSprites is pre-sorted) is a simple "already present" check.
type spriteOverlay struct {
	present     bool
	color       uint8 // 2-bit color index, pre-palette; 0 would not be present (transparent)
	behind      bool  // OBJ-to-BG priority bit: sprite loses to non-zero BG color
	paletteOBP1 bool  // DMG: OBP0 vs OBP1
	cgbPalette  uint8 // CGB: OBJ palette RAM index (OAM attribute bits 0-2)
}

// fetcher holds all Mode 3 pixel-pipeline state for the scanline in progress.
type fetcher struct {
	positionInLine int // -16 .. 160, per spec §4.4
	lcdX           int
	renderDelay    int

	stage     fetchStage
	subDot    int // 0 or 1 within the current 2-dot stage
	tileIndex uint8
	tileAttr  uint8
	loByte    uint8
	hiByte    uint8
	tileCol   int // tiles fetched so far this scanline/window-restart
	rowInTile int // 0-7, the tile row currently being fetched

	bgFIFO      []bgPixel
	overlay     []spriteOverlay // parallel to bgFIFO
	usingWindow bool

	// sprite insertion
	spriteActive   bool
	spriteStage    spriteFetchStage
	spriteDotsLeft int
	spriteIdx      int // index into lineSprites currently being fetched
	nextSpriteSlot int // first lineSprites entry not yet considered for insertion
}

func (f *fetcher) reset(scx uint8) {
	f.positionInLine = -16
	f.lcdX = 0
	f.renderDelay = int(scx & 7)
	f.stage = stageTile
	f.subDot = 0
	f.tileCol = 0
	f.bgFIFO = f.bgFIFO[:0]
	f.overlay = f.overlay[:0]
	f.usingWindow = false
	f.spriteActive = false
	f.nextSpriteSlot = 0
}

// restartForWindow discards queued BG pixels and restarts the fetcher at
// the tile-index stage, switching subsequent fetches to the window map.
func (f *fetcher) restartForWindow() {
	f.stage = stageTile
	f.subDot = 0
	f.tileCol = 0
	f.bgFIFO = f.bgFIFO[:0]
	f.overlay = f.overlay[:0]
	f.usingWindow = true
}
