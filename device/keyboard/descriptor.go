package keyboard

import "github.com/Alia5/lt3/usb"

// Identity of the LT-3.
const (
	VendorID     = 0x27db
	ProductID    = 0x16c0
	Manufacturer = "Null"
	Product      = "LT-3"
	SerialNumber = "0001"
)

// Interface and endpoint layout.
const (
	InterfaceNumber = 0
	EndpointIn      = 1
	EndpointOut     = 1
	PollIntervalMs  = 1
)

// HID interface codes.
const (
	ClassHID         = 0x03
	SubclassBoot     = 0x01
	ProtocolKeyboard = 0x01
)

// ReportDescriptor describes the boot keyboard input report and the LED
// output report.
var ReportDescriptor = []byte{
	0x05, 0x01, // Usage Page (Generic Desktop)
	0x09, 0x06, // Usage (Keyboard)
	0xA1, 0x01, // Collection (Application)
	0x05, 0x07, //   Usage Page (Keyboard/Keypad)
	0x19, 0xE0, //   Usage Minimum (Left Control)
	0x29, 0xE7, //   Usage Maximum (Right GUI)
	0x15, 0x00, //   Logical Minimum (0)
	0x25, 0x01, //   Logical Maximum (1)
	0x75, 0x01, //   Report Size (1)
	0x95, 0x08, //   Report Count (8)
	0x81, 0x02, //   Input (Data, Variable, Absolute) modifiers
	0x95, 0x01, //   Report Count (1)
	0x75, 0x08, //   Report Size (8)
	0x81, 0x01, //   Input (Constant) reserved
	0x95, 0x05, //   Report Count (5)
	0x75, 0x01, //   Report Size (1)
	0x05, 0x08, //   Usage Page (LEDs)
	0x19, 0x01, //   Usage Minimum (Num Lock)
	0x29, 0x05, //   Usage Maximum (Kana)
	0x91, 0x02, //   Output (Data, Variable, Absolute) LEDs
	0x95, 0x01, //   Report Count (1)
	0x75, 0x03, //   Report Size (3)
	0x91, 0x01, //   Output (Constant) padding
	0x95, 0x06, //   Report Count (6)
	0x75, 0x08, //   Report Size (8)
	0x15, 0x00, //   Logical Minimum (0)
	0x26, 0xFF, 0x00, // Logical Maximum (255)
	0x05, 0x07, //   Usage Page (Keyboard/Keypad)
	0x19, 0x00, //   Usage Minimum (0)
	0x2A, 0xFF, 0x00, // Usage Maximum (255)
	0x81, 0x00, //   Input (Data, Array) keys
	0xC0, // End Collection
}

// Descriptor returns the full-speed device descriptor set.
func Descriptor() usb.Descriptor {
	return usb.Descriptor{
		Device: usb.DeviceDescriptor{
			BcdUSB:             0x0200,
			BMaxPacketSize0:    8,
			IDVendor:           VendorID,
			IDProduct:          ProductID,
			BcdDevice:          0x0100,
			IManufacturer:      1,
			IProduct:           2,
			ISerialNumber:      3,
			BNumConfigurations: 1,
			Speed:              usb.SpeedFull,
		},
		Interfaces: []usb.InterfaceConfig{{
			Descriptor: usb.InterfaceDescriptor{
				BInterfaceNumber:   InterfaceNumber,
				BNumEndpoints:      2,
				BInterfaceClass:    ClassHID,
				BInterfaceSubClass: SubclassBoot,
				BInterfaceProtocol: ProtocolKeyboard,
			},
			HIDDescriptor: usb.HIDDescriptor{
				BcdHID:            0x0111,
				WDescriptorLength: uint16(len(ReportDescriptor)),
			}.Bytes(),
			HIDReport: ReportDescriptor,
			Endpoints: []usb.EndpointDescriptor{
				{BEndpointAddress: 0x80 | EndpointIn, BMAttributes: usb.EndpointInterrupt, WMaxPacketSize: ReportSize, BInterval: PollIntervalMs},
				{BEndpointAddress: EndpointOut, BMAttributes: usb.EndpointInterrupt, WMaxPacketSize: 1, BInterval: PollIntervalMs},
			},
		}},
		Strings: map[uint8]string{
			1: Manufacturer,
			2: Product,
			3: SerialNumber,
		},
	}
}
