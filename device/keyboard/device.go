// Package keyboard implements the LT-3 as a USB boot keyboard: key codes,
// the 8 byte input report, the HID class state and the USB device served
// over USB-IP.
package keyboard

import (
	"context"
	"log/slog"

	"github.com/Alia5/lt3/sched"
	"github.com/Alia5/lt3/usb"
	"github.com/Alia5/lt3/usbip"
)

// Device exposes the keyboard class to the USB-IP server. Every host
// request runs as a USB priority task under the class lock: control and
// OUT transfers as usb_rx, IN completions as usb_tx.
type Device struct {
	descriptor usb.Descriptor
	ep         *Endpoint
	class      *sched.Resource[Class]
	rx         *sched.Task
	tx         *sched.Task
	logger     *slog.Logger
}

// New builds the endpoint, the class resource and the USB tasks. users are
// the priorities of the other tasks that will lock the class.
func New(s *sched.Scheduler, leds Leds, logger *slog.Logger, users ...sched.Priority) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	ep := NewEndpoint(ReportSize)
	users = append(users, sched.PriorityUSB)
	return &Device{
		descriptor: Descriptor(),
		ep:         ep,
		class:      sched.NewResource(s, NewClass(ep, leds, logger), users...),
		rx:         s.NewTask("usb_rx", sched.PriorityUSB, nil),
		tx:         s.NewTask("usb_tx", sched.PriorityUSB, nil),
		logger:     logger,
	}
}

// Class returns the shared class resource.
func (d *Device) Class() *sched.Resource[Class] { return d.class }

func (d *Device) GetDescriptor() *usb.Descriptor { return &d.descriptor }

// HandleTransfer serves the interrupt endpoints. An IN poll waits until the
// firmware writes a report or the host unlinks the request.
func (d *Device) HandleTransfer(ctx context.Context, ep uint32, dir uint32, out []byte) ([]byte, error) {
	switch {
	case ep == EndpointIn && dir == usbip.DirIn:
		p, err := d.ep.Take(ctx)
		if err != nil {
			return nil, err
		}
		if ctx.Err() != nil {
			d.ep.Requeue(p)
			return nil, ctx.Err()
		}
		d.tx.Exec(func(c *sched.Context) {
			d.class.Lock(c, func(cl *Class) { cl.TxComplete() })
		})
		return p, nil
	case ep == EndpointOut && dir == usbip.DirOut:
		d.rx.Exec(func(c *sched.Context) {
			d.class.Lock(c, func(cl *Class) { cl.SetOutputReport(out) })
		})
		return nil, nil
	}
	d.logger.Debug("transfer on unknown endpoint", "ep", ep, "dir", dir)
	return nil, usb.ErrStall
}

// HandleControl routes EP0 requests to the class.
func (d *Device) HandleControl(setup usb.Setup, out []byte) (data []byte, handled bool) {
	d.rx.Exec(func(c *sched.Context) {
		d.class.Lock(c, func(cl *Class) { data, handled = cl.HandleSetup(setup, out) })
	})
	return data, handled
}

// Reset drops host state after a disconnect.
func (d *Device) Reset() {
	d.rx.Exec(func(c *sched.Context) {
		d.class.Lock(c, func(cl *Class) { cl.Reset() })
	})
}
