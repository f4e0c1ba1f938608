package serial

import (
	"log/slog"

	"github.com/mnemos-dev/gbcore/core/addr"
	"github.com/mnemos-dev/gbcore/core/bit"
)

// LogSink implements a dummy serial device that just logs outgoing bytes as
// text. Handy for debugging test roms that output to serial. With no link
// partner attached it behaves like a disconnected cable: incoming bits read
// back as 1, so a completed transfer always receives 0xFF on SB.
type LogSink struct {
	irqHandler  func()
	sb, sc      byte
	logger      *slog.Logger
	cgb         bool
	doubleSpeed bool

	transfer *transferState

	// settings
	defaultRX byte // byte shifted into SB when no link partner answers

	// Optional line buffer for readable output
	line []byte
}

// transferState tracks an in-progress 8-bit shift, clocked by the falling
// edge of the DIV bit selected by clockBit (spec §4.6): internal-clock
// transfers shift one bit per edge of the shared divider the timer exposes,
// rather than completing after a fixed cycle count.
type transferState struct {
	remainingBits   uint8
	outgoing        byte
	pendingIncoming byte
	internalClock   bool
	fastClock       bool
	clockBit        uint
	lastEdge        bool
	edgeInit        bool // lastEdge not yet primed from the live divider
}

type LogSinkOption func(*LogSink)

// WithCGB marks the sink as running in CGB mode, which changes the clock
// bit the internal clock shifts on (spec §4.6) and exposes the fast-clock
// bit of SC.
func WithCGB() LogSinkOption { return func(s *LogSink) { s.cgb = true } }

// NewLogSink creates a new logging serial device.
// The passed function is called when a transfer is completed, should be wired
// to request the Serial interrupt.
func NewLogSink(irq func(), opts ...LogSinkOption) *LogSink {
	s := &LogSink{
		irqHandler: irq,
		defaultRX:  0xFF,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Reset()
	return s
}

func (s *LogSink) Write(address uint16, value byte) {
	switch address {
	case addr.SB:
		s.sb = value
	case addr.SC:
		s.sc = value
		s.maybeStartTransfer()
	default:
		panic("serial.LogSink: invalid write address")
	}
}

func (s *LogSink) Read(address uint16) byte {
	switch address {
	case addr.SB:
		return s.sb
	case addr.SC:
		return s.sc
	default:
		panic("serial.LogSink: invalid read address")
	}
}

// Tick advances the serial shift register by the dots corresponding to one
// M-cycle. divPrev/divNow are the timer's 16-bit internal divider value
// before/after this M-cycle, mirroring the APU's frame-sequencer wiring: a
// transfer shifts one bit each time the selected DIV bit falls, not on a
// fixed cycle countdown.
func (s *LogSink) Tick(divPrev, divNow uint16, doubleSpeed bool) {
	s.doubleSpeed = doubleSpeed

	t := s.transfer
	if t == nil || !t.internalClock {
		return
	}

	if !t.edgeInit {
		t.lastEdge = (divPrev>>t.clockBit)&1 != 0
		t.edgeInit = true
	}

	ticks := divNow - divPrev
	for i := uint16(0); i < ticks; i++ {
		div := divPrev + i + 1
		edge := (div>>t.clockBit)&1 != 0
		if t.lastEdge && !edge {
			if s.shiftBit(t) {
				s.completeTransfer()
				return
			}
		}
		t.lastEdge = edge
	}
}

// shiftBit shifts one bit in/out of SB and reports whether the 8-bit
// transfer is now complete.
func (s *LogSink) shiftBit(t *transferState) bool {
	incomingBit := t.pendingIncoming & 0x80
	t.pendingIncoming <<= 1
	s.sb = (s.sb << 1) | (incomingBit >> 7)
	t.remainingBits--
	return t.remainingBits == 0
}

func (s *LogSink) Reset() {
	s.sb = 0x00
	s.sc = 0x00
	s.transfer = nil
	s.line = s.line[:0]
}

func (s *LogSink) maybeStartTransfer() {
	if s.transfer != nil {
		return
	}
	// a transfer starts on the start bit (SC.7) regardless of clock source;
	// an external-clock transfer just stays pending since no link partner
	// is attached to pulse it.
	if !bit.IsSet(7, s.sc) {
		return
	}

	// log the outgoing byte as text; buffer until newline for readability
	b := s.sb
	if b == 0 || b == '\n' || b == '\r' {
		if len(s.line) > 0 {
			s.logger.Info("serial", "line", string(s.line))
			s.line = s.line[:0]
		}
	} else {
		s.line = append(s.line, b)
	}

	internalClock := bit.IsSet(0, s.sc)
	fastClock := bit.IsSet(1, s.sc)
	t := &transferState{
		remainingBits:   8,
		outgoing:        s.sb,
		pendingIncoming: s.defaultRX,
		internalClock:   internalClock,
		fastClock:       fastClock,
		clockBit:        clockBitIndex(s.cgb, s.doubleSpeed, fastClock),
	}
	s.transfer = t

	if !internalClock {
		// external clock: only a link partner's pulses can complete this,
		// and none is attached, so the transfer stays pending with bit 7
		// asserted until the host cancels it.
		return
	}
}

// clockBitIndex returns which DIV bit the internal clock shifts on. DMG has
// no fast-clock bit: bit 8 at normal speed, bit 7 in double speed. CGB adds
// the fast-clock bit (SC bit 1), which moves the shift to bit 3 (bit 2 in
// double speed), 32 times the normal shift rate in each speed mode.
func clockBitIndex(cgb, doubleSpeed, fastClock bool) uint {
	if !cgb {
		if doubleSpeed {
			return 7
		}
		return 8
	}
	switch {
	case !fastClock && !doubleSpeed:
		return 8
	case !fastClock && doubleSpeed:
		return 7
	case fastClock && !doubleSpeed:
		return 3
	default: // fastClock && doubleSpeed
		return 2
	}
}

func (s *LogSink) completeTransfer() {
	s.sb = s.defaultRX
	// Clear start bit (bit7) to indicate completion
	s.sc = bit.Clear(7, s.sc)
	s.transfer = nil
	if s.irqHandler != nil {
		s.irqHandler()
	}
}
