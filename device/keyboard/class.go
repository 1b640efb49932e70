package keyboard

import (
	"errors"
	"log/slog"

	"github.com/Alia5/lt3/usb"
)

// HID class request codes.
const (
	RequestGetReport   = 0x01
	RequestGetIdle     = 0x02
	RequestGetProtocol = 0x03
	RequestSetReport   = 0x09
	RequestSetIdle     = 0x0A
	RequestSetProtocol = 0x0B
)

// Report types (high byte of wValue in GET_REPORT/SET_REPORT).
const (
	ReportTypeInput   = 0x01
	ReportTypeOutput  = 0x02
	ReportTypeFeature = 0x03
)

// Protocols selected with SET_PROTOCOL.
const (
	ProtocolBoot   = 0x00
	ProtocolReport = 0x01
)

var ErrNotConfigured = errors.New("usb device not configured")

// Class is the keyboard's USB transport state: the current report slot,
// the host-negotiated HID settings and the LED state. It is shared between
// the tick task and the USB tasks and is only reached through its lock.
type Class struct {
	ep     *Endpoint
	leds   Leds
	logger *slog.Logger

	report     Report
	pending    bool
	configured bool
	protocol   uint8
	idle       uint8
	ledState   uint8
	sent       uint64
}

// NewClass returns an unconfigured class writing to ep.
func NewClass(ep *Endpoint, leds Leds, logger *slog.Logger) Class {
	if leds == nil {
		leds = NopLeds
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Class{ep: ep, leds: leds, logger: logger, protocol: ProtocolReport}
}

// SetKeyboardReport stores r as the current report and reports whether it
// differs from the previous one. A changed report stays pending until a
// Write succeeds.
func (c *Class) SetKeyboardReport(r Report) bool {
	if r == c.report {
		return false
	}
	c.report = r
	c.pending = true
	return true
}

// Pending reports whether the current report has not reached the endpoint.
func (c *Class) Pending() bool { return c.pending }

// Write hands a packet to the IN endpoint. It returns 0 with a nil error
// when the endpoint still holds the previous packet.
func (c *Class) Write(p []byte) (int, error) {
	if !c.configured {
		return 0, ErrNotConfigured
	}
	n := c.ep.Put(p)
	if n > 0 {
		c.pending = false
	}
	return n, nil
}

// TxComplete records that the host collected a packet.
func (c *Class) TxComplete() { c.sent++ }

// Reset returns to the unconfigured state after a bus reset or disconnect.
// The current report is kept and will be resent once configured again.
func (c *Class) Reset() {
	c.ep.Flush()
	c.configured = false
	c.protocol = ProtocolReport
	c.idle = 0
	c.pending = c.report != Report{}
	c.setLeds(0)
}

func (c *Class) Report() Report   { return c.report }
func (c *Class) Configured() bool { return c.configured }
func (c *Class) Protocol() uint8  { return c.protocol }
func (c *Class) IdleRate() uint8  { return c.idle }
func (c *Class) LedState() uint8  { return c.ledState }
func (c *Class) Sent() uint64     { return c.sent }
func (c *Class) CapsLockOn() bool { return c.ledState&LEDCapsLock != 0 }

// SetOutputReport applies the host's LED output report.
func (c *Class) SetOutputReport(data []byte) {
	if len(data) == 0 {
		return
	}
	c.setLeds(data[0])
}

func (c *Class) setLeds(state uint8) {
	c.ledState = state
	c.leds.CapsLock(state&LEDCapsLock != 0)
}

// HandleSetup answers the control requests the class owns: configuration
// selection and the HID class requests of the keyboard interface.
func (c *Class) HandleSetup(setup usb.Setup, data []byte) ([]byte, bool) {
	if setup.IsStandard() && setup.Recipient() == usb.RecipientDevice {
		switch setup.Request {
		case usb.RequestSetConfiguration:
			c.configured = setup.Value != 0
			c.logger.Debug("SET_CONFIGURATION", "value", setup.Value)
			return nil, true
		case usb.RequestGetConfiguration:
			if c.configured {
				return []byte{usb.ConfigValue}, true
			}
			return []byte{0}, true
		}
		return nil, false
	}
	if !setup.IsClass() || setup.Recipient() != usb.RecipientInterface || uint8(setup.Index) != InterfaceNumber {
		return nil, false
	}

	switch setup.Request {
	case RequestGetReport:
		switch uint8(setup.Value >> 8) {
		case ReportTypeInput:
			return setup.Clip(c.report.Bytes()), true
		case ReportTypeOutput:
			return setup.Clip([]byte{c.ledState}), true
		}
		return nil, false
	case RequestSetReport:
		if uint8(setup.Value>>8) != ReportTypeOutput {
			return nil, false
		}
		c.logger.Debug("SET_REPORT", "len", len(data))
		c.SetOutputReport(data)
		return nil, true
	case RequestGetIdle:
		return setup.Clip([]byte{c.idle}), true
	case RequestSetIdle:
		c.idle = uint8(setup.Value >> 8)
		c.logger.Debug("SET_IDLE", "rate", c.idle)
		return nil, true
	case RequestGetProtocol:
		return setup.Clip([]byte{c.protocol}), true
	case RequestSetProtocol:
		c.protocol = uint8(setup.Value)
		c.logger.Debug("SET_PROTOCOL", "protocol", c.protocol)
		return nil, true
	}
	return nil, false
}
