package usb_test

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/lt3/device/keyboard"
	"github.com/Alia5/lt3/internal/log"
	srvusb "github.com/Alia5/lt3/internal/server/usb"
	"github.com/Alia5/lt3/sched"
	lt3testing "github.com/Alia5/lt3/testing"
	"github.com/Alia5/lt3/usb"
	"github.com/Alia5/lt3/usbip"
	"github.com/Alia5/lt3/virtualbus"
)

type harness struct {
	dev    *keyboard.Device
	tick   *sched.Task
	busID  string
	client *lt3testing.TestUsbIpClient
}

func (h *harness) withClass(f func(cl *keyboard.Class)) {
	h.tick.Exec(func(c *sched.Context) {
		h.dev.Class().Lock(c, f)
	})
}

func startServer(t *testing.T, busNum uint32) *harness {
	t.Helper()
	logger := slog.New(log.NewHandler(io.Discard, io.Discard, slog.LevelError))

	s := sched.New(logger)
	dev := keyboard.New(s, nil, logger, sched.PriorityTick)
	tick := s.NewTask("tick", sched.PriorityTick, nil)

	bus, err := virtualbus.New(busNum)
	require.NoError(t, err)
	_, meta, err := bus.Add(dev)
	require.NoError(t, err)

	srv := srvusb.New(srvusb.ServerConfig{Addr: "127.0.0.1:0"}, logger, log.NewRaw(nil))
	require.NoError(t, srv.AddBus(bus))
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe() }()
	select {
	case <-srv.Ready():
	case err := <-done:
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() {
		_ = bus.Close()
		_ = srv.Close()
		<-done
	})

	return &harness{
		dev:    dev,
		tick:   tick,
		busID:  meta.BusID(),
		client: lt3testing.NewUsbIpClient(t, srv.Addr().String()),
	}
}

func TestDevList(t *testing.T) {
	h := startServer(t, 11)

	devs, err := h.client.ListDevices()
	require.NoError(t, err)
	require.Len(t, devs, 1)
	d := devs[0]
	assert.Equal(t, "11-1", d.BusID())
	assert.Equal(t, uint32(11), d.BusId)
	assert.Equal(t, uint32(1), d.DevId)
	assert.Equal(t, uint16(keyboard.VendorID), d.IDVendor)
	assert.Equal(t, uint16(keyboard.ProductID), d.IDProduct)
	assert.Equal(t, uint8(1), d.BNumInterfaces)
	assert.Equal(t, []usbip.InterfaceDesc{{Class: 3, SubClass: 1, Protocol: 1}}, d.Interfaces)
}

func TestImportUnknownBus(t *testing.T) {
	h := startServer(t, 12)

	_, err := h.client.AttachDevice("12-9")
	assert.ErrorContains(t, err, "rejected")
}

func TestControlRequests(t *testing.T) {
	h := startServer(t, 13)
	imp, err := h.client.AttachDevice(h.busID)
	require.NoError(t, err)
	defer imp.Conn.Close()
	assert.Equal(t, uint16(keyboard.VendorID), imp.Exported.IDVendor)
	assert.Empty(t, imp.Exported.Interfaces)

	data, err := h.client.Control(imp.Conn, usb.Setup{
		RequestType: usb.RequestDirIn, Request: usb.RequestGetDescriptor,
		Value: usb.DeviceDescType << 8, Length: 64,
	}, nil)
	require.NoError(t, err)
	require.Len(t, data, 18)
	assert.Equal(t, []byte{0xdb, 0x27, 0xc0, 0x16}, data[8:12])

	data, err = h.client.Control(imp.Conn, usb.Setup{
		RequestType: usb.RequestDirIn, Request: usb.RequestGetDescriptor,
		Value: usb.StringDescType<<8 | 2, Length: 255,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{10, usb.StringDescType, 'L', 0, 'T', 0, '-', 0, '3', 0}, data)

	data, err = h.client.Control(imp.Conn, usb.Setup{
		RequestType: usb.RequestDirIn | usb.RecipientInterface, Request: usb.RequestGetDescriptor,
		Value: usb.ReportDescType << 8, Length: 255,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, keyboard.ReportDescriptor, data)

	data, err = h.client.Control(imp.Conn, usb.Setup{
		RequestType: usb.RequestDirIn, Request: usb.RequestGetDescriptor,
		Value: usb.ConfigDescType << 8, Length: 9,
	}, nil)
	require.NoError(t, err)
	assert.Len(t, data, 9)

	_, err = h.client.Control(imp.Conn, usb.Setup{Request: usb.RequestSetConfiguration, Value: 1}, nil)
	require.NoError(t, err)
	h.withClass(func(cl *keyboard.Class) { assert.True(t, cl.Configured()) })

	_, err = h.client.Control(imp.Conn, usb.Setup{
		RequestType: usb.RequestDirIn | usb.RequestTypeVendor<<5, Request: 0x42, Length: 4,
	}, nil)
	var se *lt3testing.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, int32(usbip.StatusPipe), se.Status)
}

func TestInterruptTransfers(t *testing.T) {
	h := startServer(t, 14)
	imp, err := h.client.AttachDevice(h.busID)
	require.NoError(t, err)
	defer imp.Conn.Close()
	_, err = h.client.Control(imp.Conn, usb.Setup{Request: usb.RequestSetConfiguration, Value: 1}, nil)
	require.NoError(t, err)

	seq, err := h.client.Send(imp.Conn, usbip.DirIn, keyboard.EndpointIn, 64, nil, [8]byte{})
	require.NoError(t, err)
	h.withClass(func(cl *keyboard.Class) {
		cl.SetKeyboardReport(keyboard.Report{0x01, 0, 0x04})
		n, err := cl.Write(cl.Report().Bytes())
		require.NoError(t, err)
		require.Equal(t, keyboard.ReportSize, n)
	})
	ret, _, data, err := h.client.Receive(imp.Conn, time.Second)
	require.NoError(t, err)
	require.NotNil(t, ret)
	assert.Equal(t, seq, ret.Basic.Seqnum)
	assert.Equal(t, uint32(usbip.DirIn), ret.Basic.Dir)
	assert.Equal(t, uint32(keyboard.EndpointIn), ret.Basic.Ep)
	assert.Equal(t, []byte{0x01, 0, 0x04, 0, 0, 0, 0, 0}, data)

	_, err = h.client.Submit(imp.Conn, usbip.DirOut, keyboard.EndpointOut, 0, []byte{keyboard.LEDCapsLock}, [8]byte{}, time.Second)
	require.NoError(t, err)
	h.withClass(func(cl *keyboard.Class) { assert.True(t, cl.CapsLockOn()) })
}

func TestUnlinkPendingPoll(t *testing.T) {
	h := startServer(t, 15)
	imp, err := h.client.AttachDevice(h.busID)
	require.NoError(t, err)
	defer imp.Conn.Close()

	seq, err := h.client.Send(imp.Conn, usbip.DirIn, keyboard.EndpointIn, 64, nil, [8]byte{})
	require.NoError(t, err)
	useq, err := h.client.Unlink(imp.Conn, seq)
	require.NoError(t, err)

	ret, unl, _, err := h.client.Receive(imp.Conn, time.Second)
	require.NoError(t, err)
	assert.Nil(t, ret)
	require.NotNil(t, unl)
	assert.Equal(t, useq, unl.Basic.Seqnum)
	assert.Equal(t, int32(usbip.StatusConnReset), unl.Status)

	// Unlinking something already gone still answers, with status 0.
	useq, err = h.client.Unlink(imp.Conn, seq)
	require.NoError(t, err)
	_, unl, _, err = h.client.Receive(imp.Conn, time.Second)
	require.NoError(t, err)
	require.NotNil(t, unl)
	assert.Equal(t, useq, unl.Basic.Seqnum)
	assert.Equal(t, int32(usbip.StatusOK), unl.Status)
}

func TestDisconnectResetsClass(t *testing.T) {
	h := startServer(t, 16)
	imp, err := h.client.AttachDevice(h.busID)
	require.NoError(t, err)
	_, err = h.client.Control(imp.Conn, usb.Setup{Request: usb.RequestSetConfiguration, Value: 1}, nil)
	require.NoError(t, err)
	require.NoError(t, imp.Conn.Close())

	assert.Eventually(t, func() bool {
		configured := true
		h.withClass(func(cl *keyboard.Class) { configured = cl.Configured() })
		return !configured
	}, 2*time.Second, 5*time.Millisecond)
}
