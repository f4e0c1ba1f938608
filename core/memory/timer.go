package memory

import "github.com/mnemos-dev/gbcore/core/addr"

// timerBitForTAC maps TAC's 2-bit frequency selector to the DIV bit whose
// falling edge clocks TIMA (spec §4.3).
var timerBitForTAC = [4]uint8{9, 3, 5, 7}

// Timer encapsulates the Game Boy DIV/TIMA/TMA/TAC behavior. TIMA advances
// on the falling edge of (timer_enable & selected DIV bit); this is
// implemented as an edge-detector over the raw AND term so that DIV writes
// and TAC writes can both cause a glitchy increment, per spec §4.3.
type Timer struct {
	div16 uint16 // internal 16-bit counter; DIV is the upper byte
	tima  uint8
	tma   uint8
	tac   uint8

	lastEdgeBit bool
	reloading   bool // true during the 1 M-cycle window between overflow and reload
	reloadDelay int  // dots remaining until reload
	interrupt   func()
}

func NewTimer(irq func()) *Timer {
	return &Timer{interrupt: irq}
}

func (t *Timer) SetSeed(seed uint16) {
	t.div16 = seed
	t.lastEdgeBit = t.edgeTerm()
}

func (t *Timer) edgeTerm() bool {
	if t.tac&0x04 == 0 {
		return false
	}
	bitPos := timerBitForTAC[t.tac&0x03]
	return (t.div16>>bitPos)&1 != 0
}

// Tick advances the timer by the given number of dots (not M-cycles — the
// PPU/APU/Timer trio all step in dots, per spec §5).
func (t *Timer) Tick(dots int) {
	for i := 0; i < dots; i++ {
		if t.reloading {
			t.reloadDelay--
			if t.reloadDelay <= 0 {
				t.tima = t.tma
				t.reloading = false
				if t.interrupt != nil {
					t.interrupt()
				}
			}
		}

		t.div16++
		edge := t.edgeTerm()
		if t.lastEdgeBit && !edge {
			t.incrementTIMA()
		}
		t.lastEdgeBit = edge
	}
}

func (t *Timer) incrementTIMA() {
	if t.tima == 0xFF {
		t.tima = 0
		t.reloading = true
		t.reloadDelay = 4
		return
	}
	t.tima++
}

// DIV16 exposes the internal 16-bit divider (DIV is just its upper byte) so
// other dot-driven collaborators (the APU's frame sequencer) can derive
// falling edges of the same shared counter instead of keeping their own.
func (t *Timer) DIV16() uint16 { return t.div16 }

func (t *Timer) Read(address uint16) byte {
	switch address {
	case addr.DIV:
		return byte(t.div16 >> 8)
	case addr.TIMA:
		return t.tima
	case addr.TMA:
		return t.tma
	case addr.TAC:
		return t.tac | 0xF8
	default:
		return 0xFF
	}
}

func (t *Timer) Write(address uint16, value byte) {
	switch address {
	case addr.DIV:
		t.div16 = 0
		edge := t.edgeTerm()
		if t.lastEdgeBit && !edge {
			t.incrementTIMA()
		}
		t.lastEdgeBit = edge
	case addr.TIMA:
		// writes during the reload window are ignored (spec §4.3, scenario 1)
		if !t.reloading {
			t.tima = value
		}
	case addr.TMA:
		t.tma = value
		if t.reloading {
			t.tima = value
		}
	case addr.TAC:
		prevEdge := t.edgeTerm()
		t.tac = value & 0x07
		edge := t.edgeTerm()
		if prevEdge && !edge {
			t.incrementTIMA()
		}
		t.lastEdgeBit = edge
	}
}
