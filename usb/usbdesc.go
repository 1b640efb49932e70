// Package usb contains helpers for building USB descriptors and decoding
// control requests.
package usb

import (
	"bytes"
	"encoding/binary"
)

// Descriptor type constants.
const (
	DeviceDescType    = 0x01
	ConfigDescType    = 0x02
	StringDescType    = 0x03
	InterfaceDescType = 0x04
	EndpointDescType  = 0x05
	HIDDescType       = 0x21
	ReportDescType    = 0x22
)

// Descriptor lengths in bytes.
const (
	DeviceDescLen    = 18
	ConfigDescLen    = 9
	InterfaceDescLen = 9
	EndpointDescLen  = 7
	HIDDescLen       = 9
)

// Endpoint transfer types (bmAttributes).
const (
	EndpointControl     = 0x00
	EndpointIsochronous = 0x01
	EndpointBulk        = 0x02
	EndpointInterrupt   = 0x03
)

// Device speeds as reported in the USB-IP device list.
const (
	SpeedLow  = 1
	SpeedFull = 2
	SpeedHigh = 3
)

// Configuration defaults shared by every exported device.
const (
	ConfigValue          = 1
	ConfigAttrBusPowered = 0x80
	ConfigMaxPower100mA  = 50 // 2 mA units
)

// Descriptor holds the static descriptor set of a device.
type Descriptor struct {
	Device     DeviceDescriptor
	Interfaces []InterfaceConfig
	Strings    map[uint8]string
}

// InterfaceConfig holds all descriptors of a single interface.
type InterfaceConfig struct {
	Descriptor    InterfaceDescriptor
	Endpoints     []EndpointDescriptor
	HIDDescriptor []byte // class descriptor (0x21), optional
	HIDReport     []byte // report descriptor (0x22), optional
}

// EncodeStringDescriptor converts a UTF-8 string to a USB string descriptor:
//
//	Byte 0: bLength
//	Byte 1: bDescriptorType (0x03)
//	Bytes 2+: UTF-16LE text
func EncodeStringDescriptor(s string) []byte {
	runes := []rune(s)
	buf := make([]byte, 2+len(runes)*2)
	buf[0] = uint8(len(buf))
	buf[1] = StringDescType
	for i, r := range runes {
		buf[2+i*2] = uint8(r)
		buf[2+i*2+1] = uint8(r >> 8)
	}
	return buf
}

// LangIDs is string descriptor zero advertising US English.
var LangIDs = []byte{0x04, StringDescType, 0x09, 0x04}

// DeviceDescriptor is the standard device descriptor.
type DeviceDescriptor struct {
	BcdUSB             uint16
	BDeviceClass       uint8
	BDeviceSubClass    uint8
	BDeviceProtocol    uint8
	BMaxPacketSize0    uint8
	IDVendor           uint16
	IDProduct          uint16
	BcdDevice          uint16
	IManufacturer      uint8
	IProduct           uint8
	ISerialNumber      uint8
	BNumConfigurations uint8
	Speed              uint32 // USB-IP only, not part of the descriptor
}

// Bytes returns the 18 byte device descriptor.
func (d *Descriptor) Bytes() []byte {
	var b bytes.Buffer
	b.WriteByte(DeviceDescLen)
	b.WriteByte(DeviceDescType)
	_ = binary.Write(&b, binary.LittleEndian, d.Device.BcdUSB)
	b.WriteByte(d.Device.BDeviceClass)
	b.WriteByte(d.Device.BDeviceSubClass)
	b.WriteByte(d.Device.BDeviceProtocol)
	b.WriteByte(d.Device.BMaxPacketSize0)
	_ = binary.Write(&b, binary.LittleEndian, d.Device.IDVendor)
	_ = binary.Write(&b, binary.LittleEndian, d.Device.IDProduct)
	_ = binary.Write(&b, binary.LittleEndian, d.Device.BcdDevice)
	b.WriteByte(d.Device.IManufacturer)
	b.WriteByte(d.Device.IProduct)
	b.WriteByte(d.Device.ISerialNumber)
	b.WriteByte(d.Device.BNumConfigurations)
	return b.Bytes()
}

// ConfigBytes returns the full configuration descriptor: header, then for
// every interface its descriptor, HID class descriptor and endpoints.
func (d *Descriptor) ConfigBytes() []byte {
	var b bytes.Buffer
	h := ConfigHeader{
		BNumInterfaces:      uint8(len(d.Interfaces)),
		BConfigurationValue: ConfigValue,
		BMAttributes:        ConfigAttrBusPowered,
		BMaxPower:           ConfigMaxPower100mA,
	}
	h.Write(&b)
	for _, iface := range d.Interfaces {
		iface.Descriptor.Write(&b)
		b.Write(iface.HIDDescriptor)
		for _, ep := range iface.Endpoints {
			ep.Write(&b)
		}
	}
	data := b.Bytes()
	binary.LittleEndian.PutUint16(data[2:4], uint16(len(data)))
	return data
}

// String returns the string descriptor at index i, or nil if undefined.
func (d *Descriptor) String(i uint8) []byte {
	if i == 0 {
		return LangIDs
	}
	s, ok := d.Strings[i]
	if !ok {
		return nil
	}
	return EncodeStringDescriptor(s)
}

// ConfigHeader is the 9 byte configuration descriptor header.
type ConfigHeader struct {
	WTotalLength        uint16 // patched after building
	BNumInterfaces      uint8
	BConfigurationValue uint8
	IConfiguration      uint8
	BMAttributes        uint8
	BMaxPower           uint8
}

func (h ConfigHeader) Write(b *bytes.Buffer) {
	b.WriteByte(ConfigDescLen)
	b.WriteByte(ConfigDescType)
	_ = binary.Write(b, binary.LittleEndian, h.WTotalLength)
	b.WriteByte(h.BNumInterfaces)
	b.WriteByte(h.BConfigurationValue)
	b.WriteByte(h.IConfiguration)
	b.WriteByte(h.BMAttributes)
	b.WriteByte(h.BMaxPower)
}

// InterfaceDescriptor is the 9 byte interface descriptor.
type InterfaceDescriptor struct {
	BInterfaceNumber   uint8
	BAlternateSetting  uint8
	BNumEndpoints      uint8
	BInterfaceClass    uint8
	BInterfaceSubClass uint8
	BInterfaceProtocol uint8
	IInterface         uint8
}

func (i InterfaceDescriptor) Write(b *bytes.Buffer) {
	b.WriteByte(InterfaceDescLen)
	b.WriteByte(InterfaceDescType)
	b.WriteByte(i.BInterfaceNumber)
	b.WriteByte(i.BAlternateSetting)
	b.WriteByte(i.BNumEndpoints)
	b.WriteByte(i.BInterfaceClass)
	b.WriteByte(i.BInterfaceSubClass)
	b.WriteByte(i.BInterfaceProtocol)
	b.WriteByte(i.IInterface)
}

// EndpointDescriptor is the 7 byte endpoint descriptor.
type EndpointDescriptor struct {
	BEndpointAddress uint8
	BMAttributes     uint8
	WMaxPacketSize   uint16
	BInterval        uint8
}

func (e EndpointDescriptor) Write(b *bytes.Buffer) {
	b.WriteByte(EndpointDescLen)
	b.WriteByte(EndpointDescType)
	b.WriteByte(e.BEndpointAddress)
	b.WriteByte(e.BMAttributes)
	_ = binary.Write(b, binary.LittleEndian, e.WMaxPacketSize)
	b.WriteByte(e.BInterval)
}

// HIDDescriptor is the HID class descriptor (0x21) with one subordinate
// report descriptor.
type HIDDescriptor struct {
	BcdHID            uint16
	BCountryCode      uint8
	WDescriptorLength uint16 // report descriptor length
}

// Bytes returns the 9 byte class descriptor.
func (h HIDDescriptor) Bytes() []byte {
	var b bytes.Buffer
	b.WriteByte(HIDDescLen)
	b.WriteByte(HIDDescType)
	_ = binary.Write(&b, binary.LittleEndian, h.BcdHID)
	b.WriteByte(h.BCountryCode)
	b.WriteByte(1)
	b.WriteByte(ReportDescType)
	_ = binary.Write(&b, binary.LittleEndian, h.WDescriptorLength)
	return b.Bytes()
}
