package keyboard_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/lt3/device/keyboard"
	"github.com/Alia5/lt3/usb"
)

type ledRecorder struct{ states []bool }

func (l *ledRecorder) CapsLock(active bool) { l.states = append(l.states, active) }

func configure(t *testing.T, c *keyboard.Class) {
	t.Helper()
	_, ok := c.HandleSetup(usb.Setup{Request: usb.RequestSetConfiguration, Value: 1}, nil)
	require.True(t, ok)
	require.True(t, c.Configured())
}

func TestWriteRequiresConfiguration(t *testing.T) {
	ep := keyboard.NewEndpoint(keyboard.ReportSize)
	c := keyboard.NewClass(ep, nil, nil)

	assert.True(t, c.SetKeyboardReport(keyboard.Report{0x02}))
	n, err := c.Write(c.Report().Bytes())
	assert.ErrorIs(t, err, keyboard.ErrNotConfigured)
	assert.Zero(t, n)
	assert.True(t, c.Pending())
	assert.False(t, ep.Busy())
}

func TestSetKeyboardReportReportsChange(t *testing.T) {
	c := keyboard.NewClass(keyboard.NewEndpoint(keyboard.ReportSize), nil, nil)
	assert.False(t, c.SetKeyboardReport(keyboard.Report{}))
	assert.True(t, c.SetKeyboardReport(keyboard.Report{0x01}))
	assert.False(t, c.SetKeyboardReport(keyboard.Report{0x01}))
	assert.True(t, c.SetKeyboardReport(keyboard.Report{}))
}

func TestWriteBusy(t *testing.T) {
	ep := keyboard.NewEndpoint(keyboard.ReportSize)
	c := keyboard.NewClass(ep, nil, nil)
	configure(t, &c)

	c.SetKeyboardReport(keyboard.Report{0x02})
	n, err := c.Write(c.Report().Bytes())
	require.NoError(t, err)
	assert.Equal(t, keyboard.ReportSize, n)
	assert.False(t, c.Pending())

	c.SetKeyboardReport(keyboard.Report{0x03})
	n, err = c.Write(c.Report().Bytes())
	require.NoError(t, err)
	assert.Zero(t, n, "previous packet not collected")
	assert.True(t, c.Pending())

	p, err := ep.Take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0, 0, 0, 0, 0, 0, 0}, p)

	n, err = c.Write(c.Report().Bytes())
	require.NoError(t, err)
	assert.Equal(t, keyboard.ReportSize, n)
	assert.False(t, c.Pending())
}

func TestHIDRequests(t *testing.T) {
	leds := &ledRecorder{}
	c := keyboard.NewClass(keyboard.NewEndpoint(keyboard.ReportSize), leds, nil)
	configure(t, &c)
	c.SetKeyboardReport(keyboard.Report{0x01, 0, 0x04})

	const classIn = usb.RequestDirIn | usb.RequestTypeClass<<5 | usb.RecipientInterface
	const classOut = usb.RequestTypeClass<<5 | usb.RecipientInterface

	data, ok := c.HandleSetup(usb.Setup{RequestType: classIn, Request: keyboard.RequestGetReport, Value: keyboard.ReportTypeInput << 8, Length: 8}, nil)
	require.True(t, ok)
	assert.Equal(t, []byte{0x01, 0, 0x04, 0, 0, 0, 0, 0}, data)

	_, ok = c.HandleSetup(usb.Setup{RequestType: classOut, Request: keyboard.RequestSetIdle, Value: 125 << 8}, nil)
	require.True(t, ok)
	data, ok = c.HandleSetup(usb.Setup{RequestType: classIn, Request: keyboard.RequestGetIdle, Length: 1}, nil)
	require.True(t, ok)
	assert.Equal(t, []byte{125}, data)

	assert.Equal(t, uint8(keyboard.ProtocolReport), c.Protocol())
	_, ok = c.HandleSetup(usb.Setup{RequestType: classOut, Request: keyboard.RequestSetProtocol, Value: keyboard.ProtocolBoot}, nil)
	require.True(t, ok)
	data, _ = c.HandleSetup(usb.Setup{RequestType: classIn, Request: keyboard.RequestGetProtocol, Length: 1}, nil)
	assert.Equal(t, []byte{keyboard.ProtocolBoot}, data)

	_, ok = c.HandleSetup(usb.Setup{RequestType: classOut, Request: keyboard.RequestSetReport, Value: keyboard.ReportTypeOutput << 8, Length: 1}, []byte{keyboard.LEDCapsLock | keyboard.LEDNumLock})
	require.True(t, ok)
	assert.True(t, c.CapsLockOn())
	assert.Equal(t, uint8(0x03), c.LedState())
	assert.Equal(t, []bool{true}, leds.states)

	_, ok = c.HandleSetup(usb.Setup{RequestType: classOut, Request: keyboard.RequestSetIdle, Index: 3}, nil)
	assert.False(t, ok, "other interface")
	_, ok = c.HandleSetup(usb.Setup{RequestType: classOut, Request: 0x42}, nil)
	assert.False(t, ok)
}

func TestReset(t *testing.T) {
	leds := &ledRecorder{}
	ep := keyboard.NewEndpoint(keyboard.ReportSize)
	c := keyboard.NewClass(ep, leds, nil)
	configure(t, &c)
	c.SetKeyboardReport(keyboard.Report{0x02})
	_, err := c.Write(c.Report().Bytes())
	require.NoError(t, err)
	c.SetOutputReport([]byte{keyboard.LEDCapsLock})

	c.Reset()
	assert.False(t, c.Configured())
	assert.False(t, ep.Busy())
	assert.True(t, c.Pending(), "held keys are resent after reconfiguration")
	assert.False(t, c.CapsLockOn())
	assert.Equal(t, []bool{true, false}, leds.states)
}

func TestEndpoint(t *testing.T) {
	ep := keyboard.NewEndpoint(2)
	assert.Equal(t, 2, ep.Put([]byte{1, 2, 3}))
	assert.Zero(t, ep.Put([]byte{4}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ep.Take(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	p, err := ep.Take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, p)

	assert.True(t, ep.Requeue(p))
	assert.False(t, ep.Requeue([]byte{9}))
	ep.Flush()
	assert.False(t, ep.Busy())

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = ep.Take(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
