package serial

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mnemos-dev/gbcore/core/addr"
)

// driveDiv ticks the sink one M-cycle at a time (4 dots, normal speed),
// walking div forward so Tick's edge detector sees a continuous divider.
func driveDiv(s *LogSink, div *uint16, mCycles int) {
	for i := 0; i < mCycles; i++ {
		s.Tick(*div, *div+4, false)
		*div += 4
	}
}

func TestLogSink_InternalClockTransferShiftsOnDIVEdge(t *testing.T) {
	irqCount := 0
	s := NewLogSink(func() { irqCount++ })

	s.Write(addr.SB, 0xAA)
	s.Write(addr.SC, 0x81) // start + internal clock

	var div uint16
	// DMG normal speed shifts on DIV bit 8 falling edge: one bit every 512
	// dots (128 M-cycles). 8 bits need 8*128 = 1024 M-cycles; a handful
	// short of that must not yet complete the transfer.
	driveDiv(s, &div, 8*128-1)
	assert.Equal(t, byte(0x81), s.Read(addr.SC), "transfer still pending just before the 8th edge")
	assert.Equal(t, 0, irqCount)

	driveDiv(s, &div, 1)
	assert.Equal(t, byte(0x01), s.Read(addr.SC), "start bit clears once the 8th bit has shifted")
	assert.Equal(t, 1, irqCount, "completion raises the serial interrupt")
	assert.Equal(t, byte(0xFF), s.Read(addr.SB), "no link partner answers, so SB reads back all 1s")
}

func TestLogSink_ExternalClockStaysPending(t *testing.T) {
	s := NewLogSink(func() {})
	s.Write(addr.SB, 0x55)
	s.Write(addr.SC, 0x80) // start, external clock

	var div uint16
	driveDiv(s, &div, 8*128*4)
	assert.Equal(t, byte(0x80), s.Read(addr.SC), "an external-clock transfer never completes without a link partner pulsing it")
}

func TestLogSink_CGBDoubleSpeedUsesFasterClockBit(t *testing.T) {
	s := NewLogSink(func() {}, WithCGB())
	s.Tick(0, 0, true) // prime double-speed mode before the transfer starts
	s.Write(addr.SB, 0x00)
	s.Write(addr.SC, 0x81)

	var div uint16
	// bit 7's period (256 dots) is half of bit 8's (512 dots), but double
	// speed also halves the dots per M-cycle (2 instead of 4), so the two
	// effects cancel and the same M-cycle count still spans 8 edges.
	for i := 0; i < 8*128-1; i++ {
		s.Tick(div, div+2, true)
		div += 2
	}
	assert.Equal(t, byte(0x81), s.Read(addr.SC))
	s.Tick(div, div+2, true)
	assert.Equal(t, byte(0x01), s.Read(addr.SC), "double-speed CGB transfer completes on the faster bit")
}

func TestClockBitIndex(t *testing.T) {
	assert.Equal(t, uint(8), clockBitIndex(false, false, false))
	assert.Equal(t, uint(7), clockBitIndex(false, true, false))
	assert.Equal(t, uint(8), clockBitIndex(true, false, false))
	assert.Equal(t, uint(7), clockBitIndex(true, true, false))
	assert.Equal(t, uint(3), clockBitIndex(true, false, true))
	assert.Equal(t, uint(2), clockBitIndex(true, true, true))
}
