package video

// eventLogCapacity bounds each register's per-scanline write log (spec §9:
// "maximum of 64 events per register per scanline, last-slot-replace on
// overflow").
const eventLogCapacity = 64

// regEvent is a single timestamped register write observed during Mode 3.
type regEvent struct {
	dot   int
	value uint8
}

// eventLog is a bounded, append-mostly ring for one register's writes
// during the current scanline. Overflow replaces the last slot rather than
// wrapping, since downstream sampling only needs the final state of each
// timestamp bucket and the log is always scanned linearly (counts are tiny
// in practice, per spec §9).
type eventLog struct {
	events [eventLogCapacity]regEvent
	count  int
	reset  uint8 // value in effect at mode_clock==0
}

func (l *eventLog) clear(initial uint8) {
	l.count = 0
	l.reset = initial
}

func (l *eventLog) record(dot int, value uint8) {
	if l.count < eventLogCapacity {
		l.events[l.count] = regEvent{dot: dot, value: value}
		l.count++
		return
	}
	l.events[eventLogCapacity-1] = regEvent{dot: dot, value: value}
}

// valueAt reconstructs the effective register value at the given dot by
// scanning for the last write timestamped at or before it.
func (l *eventLog) valueAt(dot int) uint8 {
	value := l.reset
	for i := 0; i < l.count; i++ {
		if l.events[i].dot > dot {
			break
		}
		value = l.events[i].value
	}
	return value
}

// popEvent timestamps a dot on which a visible pixel was emitted, mapped
// back to its output-X coordinate so palette/LCDC transitions recorded in
// the logs above can be attributed to a framebuffer column.
type popEvent struct {
	dot int
	x   int
}

// mode3Logs bundles the per-register event logs plus the pop-event trace
// used to reconstruct each output pixel's effective register state.
type mode3Logs struct {
	lcdc, scx, scy, wx, wy, bgp, obp0 eventLog
	pops                              [FramebufferWidth]popEvent
	popCount                          int
}

func (m *mode3Logs) beginScanline(lcdc, scx, scy, wx, wy, bgp, obp0 uint8) {
	m.lcdc.clear(lcdc)
	m.scx.clear(scx)
	m.scy.clear(scy)
	m.wx.clear(wx)
	m.wy.clear(wy)
	m.bgp.clear(bgp)
	m.obp0.clear(obp0)
	m.popCount = 0
}

func (m *mode3Logs) recordPop(dot, x int) {
	if m.popCount < FramebufferWidth {
		m.pops[m.popCount] = popEvent{dot: dot, x: x}
		m.popCount++
	}
}
