// Package gpiocdev drives the matrix from Linux GPIO lines through the
// GPIO character device (uAPI v2).
package gpiocdev

import (
	"errors"

	"github.com/Alia5/lt3/device/keyboard"
	"github.com/Alia5/lt3/matrix"
)

var ErrUnsupported = errors.New("gpio character device is only available on linux")

// Config selects the chip and line offsets.
type Config struct {
	Chip     string
	Rows     []uint32
	Cols     []uint32
	Led      int // -1 for none
	Consumer string
}

// Pins is an opened set of matrix lines.
type Pins struct {
	Cols  []matrix.InputPin
	Rows  []matrix.OutputPin
	Leds  keyboard.Leds
	close func() error
}

// Close releases every requested line.
func (p *Pins) Close() error {
	if p.close == nil {
		return nil
	}
	return p.close()
}
