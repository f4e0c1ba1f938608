package memory

import "github.com/mnemos-dev/gbcore/core/bit"

// JoypadKey represents a key on the Gameboy joypad
type JoypadKey uint8

const (
	JoypadRight JoypadKey = iota
	JoypadLeft
	JoypadUp
	JoypadDown
	JoypadA
	JoypadB
	JoypadSelect
	JoypadStart
)

// Joypad represents the Gameboy joypad 4-bit matrix with its two select lines.
// Bit i=0 means pressed, matching the host-facing SetState order: Right,
// Left, Up, Down, A, B, Select, Start (spec §6).
type Joypad struct {
	buttons  uint8 // low nibble: A,B,Select,Start, 0=pressed
	dpad     uint8 // low nibble: Right,Left,Up,Down, 0=pressed
	selector uint8 // raw bits 4-5 as last written
	irq      func()
}

func NewJoypad(irq func()) *Joypad {
	return &Joypad{buttons: 0x0F, dpad: 0x0F, irq: irq}
}

func (j *Joypad) selectDpad() bool    { return j.selector&0x10 == 0 }
func (j *Joypad) selectButtons() bool { return j.selector&0x20 == 0 }

// Read returns the full P1 register value, bits 6-7 forced high.
func (j *Joypad) Read() uint8 {
	result := uint8(0xC0) | j.selector&0x30
	switch {
	case j.selectButtons() && j.selectDpad():
		result |= j.buttons & j.dpad & 0x0F
	case j.selectButtons():
		result |= j.buttons & 0x0F
	case j.selectDpad():
		result |= j.dpad & 0x0F
	default:
		result |= 0x0F
	}
	return result
}

// Write sets the joypad select lines (bits 4-5 only are writable).
func (j *Joypad) Write(value uint8) {
	j.selector = value & 0x30
}

// SetState updates all 8 buttons at once, bit i=0 meaning pressed, in the
// order Right, Left, Up, Down, A, B, Select, Start.
func (j *Joypad) SetState(state uint8) {
	newDpad := (state & 0x0F) | 0xF0
	newButtons := (state >> 4) | 0xF0

	fallingDpad := j.dpad &^ newDpad
	fallingButtons := j.buttons &^ newButtons

	j.dpad = newDpad
	j.buttons = newButtons

	selectedFalling := (fallingDpad&0x0F != 0 && j.selectDpad()) ||
		(fallingButtons&0x0F != 0 && j.selectButtons())
	if selectedFalling && j.irq != nil {
		j.irq()
	}
}

// Press updates the joypad state when a key is pressed, raising the joypad
// IRQ if the line is currently selected (falling edge).
func (j *Joypad) Press(key JoypadKey) {
	switch key {
	case JoypadRight, JoypadLeft, JoypadUp, JoypadDown:
		j.dpad = bit.Reset(uint8(key), j.dpad)
		j.maybeIRQ(j.selectDpad())
	default:
		j.buttons = bit.Reset(uint8(key-JoypadA), j.buttons)
		j.maybeIRQ(j.selectButtons())
	}
}

// Release updates the joypad state when a key is released.
func (j *Joypad) Release(key JoypadKey) {
	switch key {
	case JoypadRight, JoypadLeft, JoypadUp, JoypadDown:
		j.dpad = bit.Set(uint8(key), j.dpad)
	default:
		j.buttons = bit.Set(uint8(key-JoypadA), j.buttons)
	}
}

func (j *Joypad) maybeIRQ(selected bool) {
	if selected && j.irq != nil {
		j.irq()
	}
}
