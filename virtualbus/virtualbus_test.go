package virtualbus_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/lt3/usb"
	"github.com/Alia5/lt3/virtualbus"
)

type stubDevice struct{ name string }

func (d *stubDevice) HandleTransfer(context.Context, uint32, uint32, []byte) ([]byte, error) {
	return nil, usb.ErrStall
}

func (d *stubDevice) GetDescriptor() *usb.Descriptor { return &usb.Descriptor{} }

func TestAddAssignsLowestFreeID(t *testing.T) {
	vb, err := virtualbus.New(41)
	require.NoError(t, err)
	defer vb.Close()

	a, b := &stubDevice{"a"}, &stubDevice{"b"}
	_, metaA, err := vb.Add(a)
	require.NoError(t, err)
	ctxB, metaB, err := vb.Add(b)
	require.NoError(t, err)
	assert.Equal(t, "41-1", metaA.BusID())
	assert.Equal(t, "41-2", metaB.BusID())
	assert.Equal(t, "/sys/devices/platform/lt3/usb41/41-2", metaB.PathString())

	_, _, err = vb.Add(a)
	assert.ErrorIs(t, err, virtualbus.ErrDeviceExists)

	require.NoError(t, vb.Remove(b))
	assert.Error(t, ctxB.Err())
	assert.ErrorIs(t, vb.Remove(b), virtualbus.ErrDeviceMissing)

	c := &stubDevice{"c"}
	_, metaC, err := vb.Add(c)
	require.NoError(t, err)
	assert.Equal(t, "41-2", metaC.BusID())

	got, _, ok := vb.Lookup("41-2")
	require.True(t, ok)
	assert.Same(t, c, got.Dev)
	_, _, ok = vb.Lookup("41-9")
	assert.False(t, ok)
	assert.Len(t, vb.GetAllDeviceMetas(), 2)
}

func TestBusNumbersAreUnique(t *testing.T) {
	vb, err := virtualbus.New(42)
	require.NoError(t, err)

	_, err = virtualbus.New(42)
	assert.ErrorIs(t, err, virtualbus.ErrBusInUse)

	ctx, _, err := vb.Add(&stubDevice{})
	require.NoError(t, err)
	require.NoError(t, vb.Close())
	assert.Error(t, ctx.Err())

	again, err := virtualbus.New(42)
	require.NoError(t, err)
	require.NoError(t, again.Close())

	_, err = virtualbus.New(0)
	assert.Error(t, err)
}
