package keyboard

// Leds receives the lock-key LED state written by the host.
type Leds interface {
	CapsLock(active bool)
}

// LedsFunc adapts a function to Leds.
type LedsFunc func(capsLock bool)

func (f LedsFunc) CapsLock(active bool) { f(active) }

type nopLeds struct{}

func (nopLeds) CapsLock(bool) {}

// NopLeds ignores LED updates.
var NopLeds Leds = nopLeds{}
