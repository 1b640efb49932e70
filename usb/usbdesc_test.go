package usb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/lt3/usb"
)

func testDescriptor() *usb.Descriptor {
	return &usb.Descriptor{
		Device: usb.DeviceDescriptor{
			BcdUSB:             0x0200,
			BMaxPacketSize0:    8,
			IDVendor:           0x27db,
			IDProduct:          0x16c0,
			IManufacturer:      1,
			IProduct:           2,
			BNumConfigurations: 1,
		},
		Interfaces: []usb.InterfaceConfig{{
			Descriptor: usb.InterfaceDescriptor{
				BNumEndpoints:      1,
				BInterfaceClass:    0x03,
				BInterfaceSubClass: 0x01,
				BInterfaceProtocol: 0x01,
			},
			HIDDescriptor: usb.HIDDescriptor{BcdHID: 0x0111, WDescriptorLength: 63}.Bytes(),
			Endpoints: []usb.EndpointDescriptor{
				{BEndpointAddress: 0x81, BMAttributes: usb.EndpointInterrupt, WMaxPacketSize: 8, BInterval: 1},
			},
		}},
		Strings: map[uint8]string{1: "Null", 2: "LT-3"},
	}
}

func TestDeviceBytes(t *testing.T) {
	b := testDescriptor().Bytes()
	require.Len(t, b, usb.DeviceDescLen)
	assert.Equal(t, []byte{18, 0x01, 0x00, 0x02, 0, 0, 0, 8, 0xdb, 0x27, 0xc0, 0x16, 0, 0, 1, 2, 0, 1}, b)
}

func TestConfigBytes(t *testing.T) {
	b := testDescriptor().ConfigBytes()
	want := usb.ConfigDescLen + usb.InterfaceDescLen + usb.HIDDescLen + usb.EndpointDescLen
	require.Len(t, b, want)
	assert.Equal(t, byte(want), b[2])
	assert.Equal(t, byte(0), b[3])
	assert.Equal(t, byte(1), b[4], "bNumInterfaces")
	assert.Equal(t, byte(usb.InterfaceDescType), b[usb.ConfigDescLen+1])
	hid := b[usb.ConfigDescLen+usb.InterfaceDescLen:]
	assert.Equal(t, []byte{9, 0x21, 0x11, 0x01, 0, 1, 0x22, 63, 0}, hid[:usb.HIDDescLen])
	ep := hid[usb.HIDDescLen:]
	assert.Equal(t, []byte{7, 0x05, 0x81, 0x03, 8, 0, 1}, ep)
}

func TestStrings(t *testing.T) {
	d := testDescriptor()
	assert.Equal(t, usb.LangIDs, d.String(0))
	assert.Equal(t, []byte{10, 0x03, 'N', 0, 'u', 0, 'l', 0, 'l', 0}, d.String(1))
	assert.Nil(t, d.String(9))
}

func TestParseSetup(t *testing.T) {
	s, err := usb.ParseSetup([]byte{0xA1, 0x01, 0x00, 0x01, 0x00, 0x00, 0x08, 0x00})
	require.NoError(t, err)
	assert.True(t, s.IsIn())
	assert.True(t, s.IsClass())
	assert.Equal(t, uint8(usb.RecipientInterface), s.Recipient())
	assert.Equal(t, uint16(0x0100), s.Value)
	assert.Equal(t, uint8(0x01), s.DescriptorType())
	assert.Equal(t, []byte{1, 2}, s.Clip([]byte{1, 2, 3})[:2])
	assert.Len(t, s.Clip(make([]byte, 20)), 8)

	b := s.Bytes()
	assert.Equal(t, []byte{0xA1, 0x01, 0x00, 0x01, 0x00, 0x00, 0x08, 0x00}, b[:])

	_, err = usb.ParseSetup([]byte{1, 2})
	assert.Error(t, err)
}
