package usbip_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/lt3/usbip"
)

func TestMgmtHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpReqDevlist}).Write(&buf))
	assert.Equal(t, []byte{0x01, 0x11, 0x80, 0x05, 0, 0, 0, 0}, buf.Bytes())

	h, err := usbip.ReadMgmtHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint16(usbip.OpReqDevlist), h.Command)

	_, err = usbip.ReadMgmtHeader(bytes.NewReader([]byte{0x01, 0x06, 0x80, 0x05, 0, 0, 0, 0}))
	assert.ErrorIs(t, err, usbip.ErrVersion)
}

func TestExportedDevice(t *testing.T) {
	d := usbip.ExportedDevice{
		Speed:               2,
		IDVendor:            0x27db,
		IDProduct:           0x16c0,
		BConfigurationValue: 1,
		BNumConfigurations:  1,
		BNumInterfaces:      1,
		Interfaces:          []usbip.InterfaceDesc{{Class: 3, SubClass: 1, Protocol: 1}},
	}
	copy(d.USBBusId[:], "1-1")
	copy(d.Path[:], "/sys/devices/lt3/usb1/1-1")
	d.BusId, d.DevId = 1, 1

	var imp bytes.Buffer
	require.NoError(t, d.WriteImport(&imp))
	require.Equal(t, usbip.DeviceLen, imp.Len())
	raw := imp.Bytes()
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(raw[288:292]))
	assert.Equal(t, uint16(0x27db), binary.BigEndian.Uint16(raw[300:302]))
	assert.Equal(t, byte(1), raw[311])

	var list bytes.Buffer
	require.NoError(t, d.WriteDevlist(&list))
	require.Equal(t, usbip.DeviceLen+4, list.Len())

	got, err := usbip.ReadExportedDevice(&list, true)
	require.NoError(t, err)
	assert.Equal(t, "1-1", got.BusID())
	assert.Equal(t, "/sys/devices/lt3/usb1/1-1", got.PathString())
	assert.Equal(t, d.Interfaces, got.Interfaces)
	assert.Equal(t, uint16(0x16c0), got.IDProduct)
}

func TestReadURB(t *testing.T) {
	var buf bytes.Buffer
	sub := usbip.CmdSubmit{
		Basic:             usbip.HeaderBasic{Command: usbip.CmdSubmitCode, Seqnum: 7, Dir: usbip.DirOut, Ep: 1},
		TransferBufferLen: 1,
	}
	require.NoError(t, sub.Write(&buf))
	require.Equal(t, usbip.URBHeaderLen, buf.Len())
	buf.WriteByte(0x02)
	unl := usbip.CmdUnlink{Basic: usbip.HeaderBasic{Command: usbip.CmdUnlinkCode, Seqnum: 8}, UnlinkSeqnum: 7}
	require.NoError(t, unl.Write(&buf))

	u, err := usbip.ReadURB(&buf, 64)
	require.NoError(t, err)
	require.NotNil(t, u.Submit)
	assert.Equal(t, uint32(7), u.Submit.Basic.Seqnum)
	assert.Equal(t, []byte{0x02}, u.Payload)

	u, err = usbip.ReadURB(&buf, 64)
	require.NoError(t, err)
	require.NotNil(t, u.Unlink)
	assert.Equal(t, uint32(7), u.Unlink.UnlinkSeqnum)
}

func TestReadURBRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	sub := usbip.CmdSubmit{
		Basic:             usbip.HeaderBasic{Command: usbip.CmdSubmitCode, Dir: usbip.DirOut},
		TransferBufferLen: 4096,
	}
	require.NoError(t, sub.Write(&buf))
	_, err := usbip.ReadURB(&buf, 64)
	assert.Error(t, err)

	buf.Reset()
	buf.Write(make([]byte, usbip.URBHeaderLen))
	_, err = usbip.ReadURB(&buf, 64)
	assert.Error(t, err)
}

func TestReadRet(t *testing.T) {
	var buf bytes.Buffer
	ret := usbip.RetSubmit{
		Basic:        usbip.HeaderBasic{Command: usbip.RetSubmitCode, Seqnum: 3, Dir: usbip.DirIn, Ep: 1},
		ActualLength: 8,
	}
	require.NoError(t, ret.Write(&buf))
	buf.Write([]byte{0x02, 0, 0, 0, 0, 0, 0, 0})
	unl := usbip.RetUnlink{Basic: usbip.HeaderBasic{Command: usbip.RetUnlinkCode, Seqnum: 4}, Status: usbip.StatusConnReset}
	require.NoError(t, unl.Write(&buf))

	sub, _, data, err := usbip.ReadRet(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), sub.Basic.Seqnum)
	assert.Equal(t, []byte{0x02, 0, 0, 0, 0, 0, 0, 0}, data)

	_, u, _, err := usbip.ReadRet(&buf)
	require.NoError(t, err)
	assert.Equal(t, int32(usbip.StatusConnReset), u.Status)
}
