package usb

import (
	"encoding/binary"
	"fmt"
)

// Standard request codes.
const (
	RequestGetStatus        = 0x00
	RequestClearFeature     = 0x01
	RequestSetFeature       = 0x03
	RequestSetAddress       = 0x05
	RequestGetDescriptor    = 0x06
	RequestSetDescriptor    = 0x07
	RequestGetConfiguration = 0x08
	RequestSetConfiguration = 0x09
	RequestGetInterface     = 0x0A
	RequestSetInterface     = 0x0B
)

// bmRequestType fields.
const (
	RequestDirIn = 0x80

	RequestTypeStandard = 0x00
	RequestTypeClass    = 0x01
	RequestTypeVendor   = 0x02

	RecipientDevice    = 0x00
	RecipientInterface = 0x01
	RecipientEndpoint  = 0x02
)

// SetupLen is the length of a control SETUP packet.
const SetupLen = 8

// Setup is a decoded control SETUP packet.
type Setup struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
}

// ParseSetup decodes the 8 SETUP bytes carried in a USB-IP CMD_SUBMIT.
func ParseSetup(b []byte) (Setup, error) {
	if len(b) != SetupLen {
		return Setup{}, fmt.Errorf("setup packet: want %d bytes, got %d", SetupLen, len(b))
	}
	return Setup{
		RequestType: b[0],
		Request:     b[1],
		Value:       binary.LittleEndian.Uint16(b[2:4]),
		Index:       binary.LittleEndian.Uint16(b[4:6]),
		Length:      binary.LittleEndian.Uint16(b[6:8]),
	}, nil
}

// Bytes encodes the packet back to wire form.
func (s Setup) Bytes() [SetupLen]byte {
	var b [SetupLen]byte
	b[0] = s.RequestType
	b[1] = s.Request
	binary.LittleEndian.PutUint16(b[2:4], s.Value)
	binary.LittleEndian.PutUint16(b[4:6], s.Index)
	binary.LittleEndian.PutUint16(b[6:8], s.Length)
	return b
}

func (s Setup) IsIn() bool       { return s.RequestType&RequestDirIn != 0 }
func (s Setup) Type() uint8      { return (s.RequestType >> 5) & 0x03 }
func (s Setup) Recipient() uint8 { return s.RequestType & 0x1F }

func (s Setup) IsStandard() bool { return s.Type() == RequestTypeStandard }
func (s Setup) IsClass() bool    { return s.Type() == RequestTypeClass }

// DescriptorType is the high byte of wValue in GET_DESCRIPTOR.
func (s Setup) DescriptorType() uint8 { return uint8(s.Value >> 8) }

// DescriptorIndex is the low byte of wValue in GET_DESCRIPTOR.
func (s Setup) DescriptorIndex() uint8 { return uint8(s.Value) }

// Clip truncates data to wLength.
func (s Setup) Clip(data []byte) []byte {
	if int(s.Length) < len(data) {
		return data[:s.Length]
	}
	return data
}

func (s Setup) String() string {
	return fmt.Sprintf("bm=%#02x req=%#02x val=%#04x idx=%#04x len=%d",
		s.RequestType, s.Request, s.Value, s.Index, s.Length)
}
