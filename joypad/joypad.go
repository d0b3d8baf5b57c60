// Package joypad implements the NES controller's 8-bit shift-register
// protocol: https://www.nesdev.org/wiki/Standard_controller
package joypad

// Button bit positions within the shift register. Reads with the
// strobe released walk these from bit 0 upward, giving the canonical
// read order A, B, Select, Start, Up, Down, Left, Right.
const (
	BUTTON_A = 1 << iota
	BUTTON_B
	BUTTON_SELECT
	BUTTON_START
	BUTTON_UP
	BUTTON_DOWN
	BUTTON_LEFT
	BUTTON_RIGHT
)

// Joypad is one standard NES controller.
type Joypad struct {
	state      uint8
	shiftIndex uint8
	strobe     bool
}

func New() *Joypad {
	return &Joypad{}
}

// Set toggles a single button bit on or off.
func (j *Joypad) Set(button uint8, enabled bool) {
	if enabled {
		j.state |= button
	} else {
		j.state &^= button
	}
}

// SetStrobeMode is called on writes to 0x4016. Rising to true re-arms
// the shift register at bit 0; while held true every Get() re-reads
// bit 0 (button A) without advancing.
func (j *Joypad) SetStrobeMode(mode bool) {
	if mode && !j.strobe {
		j.shiftIndex = 0
	}
	j.strobe = mode
}

// Get returns the next bit of the shift register. While strobe is
// held high, the index never advances, so every read returns button
// A. Once released, each read advances the index, wrapping after the
// 8th bit back to 0.
func (j *Joypad) Get() uint8 {
	bit := (j.state >> j.shiftIndex) & 0x01
	if !j.strobe {
		j.shiftIndex = (j.shiftIndex + 1) % 8
	}
	return bit
}
