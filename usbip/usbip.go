// Package usbip implements the USB-IP wire format (network byte order).
package usbip

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Wire constants.
const (
	Version = 0x0111

	// Management commands
	OpReqDevlist = 0x8005
	OpRepDevlist = 0x0005
	OpReqImport  = 0x8003
	OpRepImport  = 0x0003

	// URB commands
	CmdSubmitCode = 0x00000001
	CmdUnlinkCode = 0x00000002
	RetSubmitCode = 0x00000003
	RetUnlinkCode = 0x00000004

	// Directions used in usbip_header_basic.direction
	DirOut = 0x00000000
	DirIn  = 0x00000001
)

// Sizes of the fixed parts of the protocol.
const (
	MgmtHeaderLen = 8
	BusIDLen      = 32
	PathLen       = 256
	URBHeaderLen  = 0x30
	DeviceLen     = 312
)

// URB status codes (negated Linux errno).
const (
	StatusOK         = 0
	StatusConnReset  = -104 // -ECONNRESET
	StatusPipe       = -32  // -EPIPE, stalled endpoint
	StatusShutdown   = -108 // -ESHUTDOWN
	StatusNoEntry    = -2   // -ENOENT
	StatusBadRequest = -22  // -EINVAL
)

var ErrVersion = errors.New("unsupported usbip version")

// MgmtHeader is the 8 byte header of management ops (devlist/import).
type MgmtHeader struct {
	Version uint16
	Command uint16
	Status  uint32
}

func (h *MgmtHeader) Write(w io.Writer) error {
	return binary.Write(w, binary.BigEndian, h)
}

// ReadMgmtHeader reads a management header and checks its version.
func ReadMgmtHeader(r io.Reader) (MgmtHeader, error) {
	var h MgmtHeader
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		return h, err
	}
	if h.Version != Version {
		return h, fmt.Errorf("%w: %#04x", ErrVersion, h.Version)
	}
	return h, nil
}

// DevListReplyHeader follows MgmtHeader in OP_REP_DEVLIST.
type DevListReplyHeader struct {
	NDevices uint32
}

func (d *DevListReplyHeader) Write(w io.Writer) error {
	return binary.Write(w, binary.BigEndian, d)
}

// ExportMeta carries the USB-IP bus identity of an exported device.
type ExportMeta struct {
	Path     [PathLen]byte
	USBBusId [BusIDLen]byte
	BusId    uint32
	DevId    uint32
}

// BusID returns USBBusId as a string.
func (m *ExportMeta) BusID() string { return cString(m.USBBusId[:]) }

// PathString returns Path as a string.
func (m *ExportMeta) PathString() string { return cString(m.Path[:]) }

// ExportedDevice describes one exported device in devlist/import replies.
type ExportedDevice struct {
	ExportMeta
	Speed uint32

	IDVendor            uint16
	IDProduct           uint16
	BcdDevice           uint16
	BDeviceClass        uint8
	BDeviceSubClass     uint8
	BDeviceProtocol     uint8
	BConfigurationValue uint8
	BNumConfigurations  uint8
	BNumInterfaces      uint8

	// Interfaces is only sent in devlist replies.
	Interfaces []InterfaceDesc
}

type InterfaceDesc struct {
	Class    uint8
	SubClass uint8
	Protocol uint8
}

// deviceWire is the fixed 312 byte device record.
type deviceWire struct {
	ExportMeta
	Speed               uint32
	IDVendor            uint16
	IDProduct           uint16
	BcdDevice           uint16
	BDeviceClass        uint8
	BDeviceSubClass     uint8
	BDeviceProtocol     uint8
	BConfigurationValue uint8
	BNumConfigurations  uint8
	BNumInterfaces      uint8
}

func (d *ExportedDevice) wire() deviceWire {
	return deviceWire{
		ExportMeta:          d.ExportMeta,
		Speed:               d.Speed,
		IDVendor:            d.IDVendor,
		IDProduct:           d.IDProduct,
		BcdDevice:           d.BcdDevice,
		BDeviceClass:        d.BDeviceClass,
		BDeviceSubClass:     d.BDeviceSubClass,
		BDeviceProtocol:     d.BDeviceProtocol,
		BConfigurationValue: d.BConfigurationValue,
		BNumConfigurations:  d.BNumConfigurations,
		BNumInterfaces:      d.BNumInterfaces,
	}
}

// WriteDevlist writes the device entry of OP_REP_DEVLIST, interface
// triplets included.
func (d *ExportedDevice) WriteDevlist(w io.Writer) error {
	if err := d.WriteImport(w); err != nil {
		return err
	}
	for _, iface := range d.Interfaces {
		if _, err := w.Write([]byte{iface.Class, iface.SubClass, iface.Protocol, 0}); err != nil {
			return err
		}
	}
	return nil
}

// WriteImport writes the device entry of OP_REP_IMPORT (ends at
// bNumInterfaces).
func (d *ExportedDevice) WriteImport(w io.Writer) error {
	wire := d.wire()
	return binary.Write(w, binary.BigEndian, &wire)
}

// ReadExportedDevice reads one device record. withInterfaces selects the
// devlist form that carries interface triplets.
func ReadExportedDevice(r io.Reader, withInterfaces bool) (ExportedDevice, error) {
	var wire deviceWire
	if err := binary.Read(r, binary.BigEndian, &wire); err != nil {
		return ExportedDevice{}, err
	}
	d := ExportedDevice{
		ExportMeta:          wire.ExportMeta,
		Speed:               wire.Speed,
		IDVendor:            wire.IDVendor,
		IDProduct:           wire.IDProduct,
		BcdDevice:           wire.BcdDevice,
		BDeviceClass:        wire.BDeviceClass,
		BDeviceSubClass:     wire.BDeviceSubClass,
		BDeviceProtocol:     wire.BDeviceProtocol,
		BConfigurationValue: wire.BConfigurationValue,
		BNumConfigurations:  wire.BNumConfigurations,
		BNumInterfaces:      wire.BNumInterfaces,
	}
	if !withInterfaces {
		return d, nil
	}
	buf := make([]byte, 4*int(wire.BNumInterfaces))
	if _, err := io.ReadFull(r, buf); err != nil {
		return d, err
	}
	for i := 0; i < len(buf); i += 4 {
		d.Interfaces = append(d.Interfaces, InterfaceDesc{Class: buf[i], SubClass: buf[i+1], Protocol: buf[i+2]})
	}
	return d, nil
}

// HeaderBasic is common to all URB commands and replies.
type HeaderBasic struct {
	Command uint32
	Seqnum  uint32
	Devid   uint32
	Dir     uint32
	Ep      uint32
}

// CmdSubmit is the 0x30 byte header of USBIP_CMD_SUBMIT.
type CmdSubmit struct {
	Basic             HeaderBasic
	TransferFlags     uint32
	TransferBufferLen uint32
	StartFrame        uint32
	NumberOfPackets   uint32
	Interval          uint32
	Setup             [8]byte
}

func (c *CmdSubmit) Write(w io.Writer) error {
	return binary.Write(w, binary.BigEndian, c)
}

// RetSubmit is the 0x30 byte header of USBIP_RET_SUBMIT.
type RetSubmit struct {
	Basic           HeaderBasic
	Status          int32
	ActualLength    uint32
	StartFrame      uint32
	NumberOfPackets uint32
	ErrorCount      uint32
	Padding         [8]byte
}

func (r *RetSubmit) Write(w io.Writer) error {
	return binary.Write(w, binary.BigEndian, r)
}

// CmdUnlink is the 0x30 byte USBIP_CMD_UNLINK.
type CmdUnlink struct {
	Basic        HeaderBasic
	UnlinkSeqnum uint32
	Padding      [24]byte
}

func (c *CmdUnlink) Write(w io.Writer) error {
	return binary.Write(w, binary.BigEndian, c)
}

// RetUnlink is the 0x30 byte USBIP_RET_UNLINK.
type RetUnlink struct {
	Basic   HeaderBasic
	Status  int32
	Padding [24]byte
}

func (r *RetUnlink) Write(w io.Writer) error {
	return binary.Write(w, binary.BigEndian, r)
}

// URB is one decoded client command. Exactly one of Submit or Unlink is set.
type URB struct {
	Submit *CmdSubmit
	Unlink *CmdUnlink
	// Payload holds the OUT data following a submit.
	Payload []byte
}

// ReadURB reads one command from the URB stream, including the OUT payload
// of a submit. maxPayload bounds the accepted transfer length.
func ReadURB(r io.Reader, maxPayload uint32) (URB, error) {
	var hdr [URBHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return URB{}, err
	}
	cmd := binary.BigEndian.Uint32(hdr[0:4])
	switch cmd {
	case CmdSubmitCode:
		var c CmdSubmit
		_ = binary.Read(bytes.NewReader(hdr[:]), binary.BigEndian, &c)
		u := URB{Submit: &c}
		if c.Basic.Dir == DirOut && c.TransferBufferLen > 0 {
			if c.TransferBufferLen > maxPayload {
				return u, fmt.Errorf("submit seq=%d: transfer length %d exceeds %d", c.Basic.Seqnum, c.TransferBufferLen, maxPayload)
			}
			u.Payload = make([]byte, c.TransferBufferLen)
			if _, err := io.ReadFull(r, u.Payload); err != nil {
				return u, fmt.Errorf("read OUT payload: %w", err)
			}
		}
		return u, nil
	case CmdUnlinkCode:
		var c CmdUnlink
		_ = binary.Read(bytes.NewReader(hdr[:]), binary.BigEndian, &c)
		return URB{Unlink: &c}, nil
	default:
		return URB{}, fmt.Errorf("unsupported URB command %#x", cmd)
	}
}

// ReadRet reads one server reply header. For an IN submit reply the
// payload is read too.
func ReadRet(r io.Reader) (*RetSubmit, *RetUnlink, []byte, error) {
	var hdr [URBHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, nil, nil, err
	}
	switch cmd := binary.BigEndian.Uint32(hdr[0:4]); cmd {
	case RetSubmitCode:
		var ret RetSubmit
		_ = binary.Read(bytes.NewReader(hdr[:]), binary.BigEndian, &ret)
		var data []byte
		if ret.Basic.Dir == DirIn && ret.ActualLength > 0 {
			data = make([]byte, ret.ActualLength)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, nil, nil, err
			}
		}
		return &ret, nil, data, nil
	case RetUnlinkCode:
		var ret RetUnlink
		_ = binary.Read(bytes.NewReader(hdr[:]), binary.BigEndian, &ret)
		return nil, &ret, nil, nil
	default:
		return nil, nil, nil, fmt.Errorf("unexpected reply command %#x", cmd)
	}
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
