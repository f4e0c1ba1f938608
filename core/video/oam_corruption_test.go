package video

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mnemos-dev/gbcore/core/addr"
)

func noopInterrupt(addr.Interrupt) {}

func newTestPPU(cgb bool) *PPU {
	return New(noopInterrupt, cgb, DefaultTuning())
}

func fillOAM(p *PPU, v byte) {
	for i := range p.oam {
		p.oam[i] = v
	}
}

func oamAddr(offset int) uint16 { return addr.OAMStart + uint16(offset) }

func TestOAMCorruption_NoOpOutsideModeTwo(t *testing.T) {
	p := newTestPPU(false)
	p.mode = ModeHBlank
	fillOAM(p, 0xAA)

	before := p.oam
	p.TriggerOAMCorruption(oamAddr(2*oamRowBytes), OAMBugWrite)
	assert.Equal(t, before, p.oam, "no corruption outside Mode 2")
}

func TestOAMCorruption_NoOpOnCGB(t *testing.T) {
	p := newTestPPU(true)
	p.mode = ModeOAMScan
	fillOAM(p, 0xAA)

	before := p.oam
	p.TriggerOAMCorruption(oamAddr(2*oamRowBytes), OAMBugWrite)
	assert.Equal(t, before, p.oam, "DMG-only bug must not fire on CGB")
}

func TestOAMCorruption_Row0NeverCorrupts(t *testing.T) {
	p := newTestPPU(false)
	p.mode = ModeOAMScan
	p.modeClock = 0
	fillOAM(p, 0xAA)

	before := p.oam
	p.TriggerOAMCorruption(oamAddr(0), OAMBugRead)
	assert.Equal(t, before, p.oam, "row 0 has no preceding row to mix with")
}

func TestOAMCorruption_FinalMCycleDoesNotGlitch(t *testing.T) {
	p := newTestPPU(false)
	p.mode = ModeOAMScan
	p.modeClock = oamScanDots - 4
	fillOAM(p, 0xAA)

	before := p.oam
	p.TriggerOAMCorruption(oamAddr(2*oamRowBytes), OAMBugWrite)
	assert.Equal(t, before, p.oam, "the last M-cycle of the OAM scan must not glitch")
}

func TestOAMCorruption_WriteMixesTwoPrecedingRows(t *testing.T) {
	p := newTestPPU(false)
	p.mode = ModeOAMScan
	p.modeClock = 0
	for i := range p.oam {
		p.oam[i] = byte(i)
	}

	row := 3
	p.TriggerOAMCorruption(oamAddr(row*oamRowBytes), OAMBugWrite)

	a := rowWords(&p.oam, row)
	b := rowWords(&p.oam, row-1)
	c := rowWords(&p.oam, row-2)
	assert.Equal(t, a, b, "write glitch mirrors the touched row into the row before it")
	assert.Equal(t, a, c, "write glitch mirrors the touched row into the row two before it")
}

func TestOAMCorruption_IncDecSmearsOneRowFurther(t *testing.T) {
	p := newTestPPU(false)
	p.mode = ModeOAMScan
	p.modeClock = 0
	for i := range p.oam {
		p.oam[i] = byte(i)
	}

	row := 4
	before := rowWords(&p.oam, row-3)
	p.TriggerOAMCorruption(oamAddr(row*oamRowBytes), OAMBugIncDec)

	after := rowWords(&p.oam, row-3)
	assert.NotEqual(t, before, after, "the IDU variant also smears into a fourth row back")
}

func TestOAMCorruption_IncDecNoSmearWithoutFourthRow(t *testing.T) {
	p := newTestPPU(false)
	p.mode = ModeOAMScan
	p.modeClock = 0
	for i := range p.oam {
		p.oam[i] = byte(i)
	}

	row := 2
	beforeRow0 := rowWords(&p.oam, 0)
	p.TriggerOAMCorruption(oamAddr(row*oamRowBytes), OAMBugIncDec)
	afterRow0 := rowWords(&p.oam, 0)
	assert.Equal(t, beforeRow0, afterRow0, "no fourth preceding row exists, so row 0 is untouched")
}

func TestOAMCorruption_ReadMergesTouchedAndPrecedingRow(t *testing.T) {
	p := newTestPPU(false)
	p.mode = ModeOAMScan
	p.modeClock = 0
	for i := range p.oam {
		p.oam[i] = byte(i)
	}

	row := 2
	beforeA := rowWords(&p.oam, row)
	beforeB := rowWords(&p.oam, row-1)

	p.TriggerOAMCorruption(oamAddr(row*oamRowBytes), OAMBugRead)

	afterA := rowWords(&p.oam, row)
	afterB := rowWords(&p.oam, row-1)
	assert.Equal(t, afterA, afterB, "read glitch leaves the touched row equal to the merged preceding row")
	assert.NotEqual(t, beforeA, afterA)
	assert.Equal(t, beforeB, afterB, "with this fill the preceding row already holds every bit of a&c, so b|(a&c) leaves it unchanged")
}

func TestReadOAM_TriggersCorruptionEvenWhenBlocked(t *testing.T) {
	p := newTestPPU(false)
	p.mode = ModeOAMScan
	p.modeClock = 0
	for i := range p.oam {
		p.oam[i] = byte(i)
	}

	row := 2
	before := rowWords(&p.oam, row)
	v := p.ReadOAM(oamAddr(row * oamRowBytes))

	assert.Equal(t, uint8(0xFF), v, "reads during Mode 2 are still blocked")
	after := rowWords(&p.oam, row)
	assert.NotEqual(t, before, after, "the glitch fires on the address hitting the bus regardless of the blocked read")
}
