package video

// OAMBugAccess identifies which kind of CPU access triggered the DMG
// OAM-scan corruption glitch (spec §4.4): a plain read or write of an OAM
// address, or the IDU-driven variant from a 16-bit register increment or
// decrement whose result lands in OAM (e.g. `LD A,[HL+]` with HL in OAM).
type OAMBugAccess int

const (
	OAMBugRead OAMBugAccess = iota
	OAMBugWrite
	OAMBugIncDec
)

const (
	oamRowBytes = 8
	oamRowWords = oamRowBytes / 2
	oamRowCount = 160 / oamRowBytes
)

// TriggerOAMCorruption applies the DMG OAM-scan corruption glitch if address
// is touched by the CPU while the PPU's Mode-2 scanner is racing it. This is
// a DMG-only bug (CGB's OAM controller isn't susceptible), it never fires on
// the last M-cycle of Mode 2, and row 0 can never corrupt since there is no
// preceding row to mix with (spec §4.4).
func (p *PPU) TriggerOAMCorruption(address uint16, access OAMBugAccess) {
	if p.cgb || p.mode != ModeOAMScan {
		return
	}
	// the final M-cycle of the 80-dot OAM scan does not glitch.
	if p.modeClock >= oamScanDots-4 {
		return
	}

	row := int(address&0xFF) / oamRowBytes
	applyOAMCorruption(&p.oam, row, access)
}

// applyOAMCorruption mixes the OAM row touched by a racing CPU access with
// its one or two preceding rows, per the bitwise glitch families documented
// by the mealybug/BullyGB OAM-bug research: a plain read/write mixes the
// touched row with the row before it and the row two before it, and the
// IDU-driven increment/decrement variant additionally smears the result
// into the row three before it.
func applyOAMCorruption(oam *[160]byte, row int, access OAMBugAccess) {
	if row < 2 || row >= oamRowCount {
		return
	}

	a := rowWords(oam, row)
	b := rowWords(oam, row-1)
	c := rowWords(oam, row-2)

	switch access {
	case OAMBugRead:
		for i := 0; i < oamRowWords; i++ {
			b[i] |= a[i] & c[i]
			a[i] = b[i]
		}
		writeRowWords(oam, row, a)
		writeRowWords(oam, row-1, b)
	case OAMBugWrite, OAMBugIncDec:
		for i := 0; i < oamRowWords; i++ {
			v := ((a[i] ^ c[i]) & (b[i] ^ c[i])) ^ c[i]
			a[i], b[i], c[i] = v, v, v
		}
		writeRowWords(oam, row, a)
		writeRowWords(oam, row-1, b)
		writeRowWords(oam, row-2, c)

		if access == OAMBugIncDec && row >= 3 {
			d := rowWords(oam, row-3)
			for i := 0; i < oamRowWords; i++ {
				d[i] = a[i]
			}
			writeRowWords(oam, row-3, d)
		}
	}
}

func rowWords(oam *[160]byte, row int) [oamRowWords]uint16 {
	var words [oamRowWords]uint16
	base := row * oamRowBytes
	for i := 0; i < oamRowWords; i++ {
		words[i] = uint16(oam[base+i*2]) | uint16(oam[base+i*2+1])<<8
	}
	return words
}

func writeRowWords(oam *[160]byte, row int, words [oamRowWords]uint16) {
	base := row * oamRowBytes
	for i := 0; i < oamRowWords; i++ {
		oam[base+i*2] = byte(words[i])
		oam[base+i*2+1] = byte(words[i] >> 8)
	}
}
