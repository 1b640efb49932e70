package usb

import "time"

// ServerConfig is the USB-IP side of the run command.
type ServerConfig struct {
	Addr              string        `help:"USB-IP server listen address" default:":3240" env:"LT3_USB_ADDR"`
	BusID             uint32        `help:"USB-IP bus number the keyboard is exported on" default:"1" env:"LT3_USB_BUS_ID"`
	AutoAttach        bool          `help:"Attach the keyboard to this machine with the usbip tool once the server is up" default:"false" env:"LT3_USB_AUTO_ATTACH"`
	ConnectionTimeout time.Duration `kong:"-"`
}
