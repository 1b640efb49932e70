package usb

import (
	"context"
	"errors"
)

// ErrStall is returned by a transfer handler for a request the endpoint
// does not support. The server reports it to the host as -EPIPE.
var ErrStall = errors.New("endpoint stalled")

// Device is the minimal interface a device must implement.
type Device interface {
	// HandleTransfer processes a non-EP0 (interrupt/bulk) transfer.
	// ep is the endpoint number without direction, dir is usbip.DirIn or
	// usbip.DirOut. An IN transfer may block until data is available and
	// must return when ctx is cancelled (the host unlinked the URB).
	HandleTransfer(ctx context.Context, ep uint32, dir uint32, out []byte) ([]byte, error)
	GetDescriptor() *Descriptor
}

// ControlHandler is implemented by devices that answer EP0 requests
// themselves. Requests it does not handle fall back to the server's
// standard enumeration handling.
type ControlHandler interface {
	HandleControl(setup Setup, out []byte) (data []byte, handled bool)
}

// Resetter is implemented by devices that need to drop host state when the
// USB-IP client disconnects.
type Resetter interface {
	Reset()
}
