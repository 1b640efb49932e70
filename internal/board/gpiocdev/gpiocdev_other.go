//go:build !linux

package gpiocdev

import "log/slog"

// OpenPins is unavailable on this platform.
func OpenPins(Config, *slog.Logger) (*Pins, error) {
	return nil, ErrUnsupported
}
