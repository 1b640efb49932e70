package e2e_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/lt3/device/keyboard"
	"github.com/Alia5/lt3/firmware"
	"github.com/Alia5/lt3/internal/board"
	"github.com/Alia5/lt3/internal/log"
	"github.com/Alia5/lt3/internal/server/usb"
	"github.com/Alia5/lt3/matrix"
	"github.com/Alia5/lt3/sched"
	lt3testing "github.com/Alia5/lt3/testing"
	usbdesc "github.com/Alia5/lt3/usb"
	"github.com/Alia5/lt3/usbip"
	"github.com/Alia5/lt3/virtualbus"
)

func TestKeyboardOverUSBIP(t *testing.T) {
	logger := slog.New(log.NewHandler(io.Discard, io.Discard, slog.LevelError))

	b, err := board.Open(board.Config{Kind: board.KindVirtual}, logger)
	require.NoError(t, err)
	m, err := matrix.New(b.Cols, b.Rows)
	require.NoError(t, err)

	s := sched.New(logger)
	dev := keyboard.New(s, b.Leds, logger, sched.PriorityTick)
	app, err := firmware.New(s, firmware.DefaultConfig(), m, board.Layers, dev.Class(), logger)
	require.NoError(t, err)

	bus, err := virtualbus.New(7)
	require.NoError(t, err)
	_, meta, err := bus.Add(dev)
	require.NoError(t, err)
	srv := usb.New(usb.ServerConfig{Addr: "127.0.0.1:0"}, logger, log.NewRaw(nil))
	require.NoError(t, srv.AddBus(bus))
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe() }()
	<-srv.Ready()

	ctx, cancel := context.WithCancel(t.Context())
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		_ = s.Run(ctx)
	}()
	defer func() {
		cancel()
		<-schedDone
		_ = bus.Close()
		_ = srv.Close()
		assert.NoError(t, <-done)
	}()

	client := lt3testing.NewUsbIpClient(t, srv.Addr().String())
	imp, err := client.AttachDevice(meta.BusID())
	require.NoError(t, err)
	defer imp.Conn.Close()
	_, err = client.Control(imp.Conn, usbdesc.Setup{Request: usbdesc.RequestSetConfiguration, Value: 1}, nil)
	require.NoError(t, err)

	steps := []struct {
		name   string
		closed [board.Cols]bool
		want   []byte
	}{
		{name: "shift", closed: [board.Cols]bool{true, false}, want: []byte{0x02, 0, 0, 0, 0, 0, 0, 0}},
		{name: "shift+ctrl", closed: [board.Cols]bool{true, true}, want: []byte{0x03, 0, 0, 0, 0, 0, 0, 0}},
		{name: "ctrl", closed: [board.Cols]bool{false, true}, want: []byte{0x01, 0, 0, 0, 0, 0, 0, 0}},
		{name: "released", want: make([]byte, 8)},
	}
	for _, st := range steps {
		for col, closed := range st.closed {
			b.Grid.Set(0, col, closed)
		}
		got, err := client.PollInputReport(imp.Conn, keyboard.EndpointIn, st.want, 2*time.Second)
		require.NoError(t, err, st.name)
		assert.Equal(t, st.want, got, st.name)
	}

	_, err = client.Submit(imp.Conn, usbip.DirOut, keyboard.EndpointOut, 0, []byte{keyboard.LEDCapsLock}, [8]byte{}, time.Second)
	require.NoError(t, err)
	assert.True(t, b.Grid.CapsLockOn())

	st := app.Stats()
	assert.GreaterOrEqual(t, st.ReportsSent, uint64(len(steps)))
	assert.Zero(t, st.ScanErrors)
}
