// Package virtualbus assigns USB-IP bus and device numbers to exported
// devices.
package virtualbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Alia5/lt3/usb"
	"github.com/Alia5/lt3/usbip"
)

const basepath = "/sys/devices/platform/lt3/usb"

var (
	ErrBusInUse      = errors.New("bus number already allocated")
	ErrDeviceExists  = errors.New("device already registered on this bus")
	ErrDeviceMissing = errors.New("device not found")
)

var (
	allocatedBusIds = make(map[uint32]bool)
	globalMutex     sync.Mutex
)

// VirtualBus holds the devices exported under one bus number.
type VirtualBus struct {
	mutex           sync.Mutex
	busId           uint32
	allocatedDevIDs map[uint32]bool
	devices         []busDevice
}

// DeviceMeta exposes a registered device and its export metadata.
type DeviceMeta struct {
	Dev  usb.Device
	Meta usbip.ExportMeta
}

type busDevice struct {
	dev    usb.Device
	meta   usbip.ExportMeta
	ctx    context.Context
	cancel context.CancelFunc
}

// New reserves busId. Bus numbers are process wide.
func New(busId uint32) (*VirtualBus, error) {
	if busId == 0 {
		return nil, fmt.Errorf("bus number must be positive")
	}
	globalMutex.Lock()
	defer globalMutex.Unlock()
	if allocatedBusIds[busId] {
		return nil, fmt.Errorf("%w: %d", ErrBusInUse, busId)
	}
	allocatedBusIds[busId] = true
	return &VirtualBus{busId: busId, allocatedDevIDs: make(map[uint32]bool)}, nil
}

// Add registers dev under the lowest free device number. The returned
// context is cancelled when the device is removed or the bus is closed.
func (vb *VirtualBus) Add(dev usb.Device) (context.Context, usbip.ExportMeta, error) {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()

	for _, d := range vb.devices {
		if d.dev == dev {
			return nil, usbip.ExportMeta{}, ErrDeviceExists
		}
	}
	var devID uint32
	for i := uint32(1); ; i++ {
		if !vb.allocatedDevIDs[i] {
			devID = i
			vb.allocatedDevIDs[i] = true
			break
		}
	}

	busDevID := fmt.Sprintf("%d-%d", vb.busId, devID)
	var meta usbip.ExportMeta
	copy(meta.Path[:], fmt.Sprintf("%s%d/%s", basepath, vb.busId, busDevID))
	copy(meta.USBBusId[:], busDevID)
	meta.BusId = vb.busId
	meta.DevId = devID

	ctx, cancel := context.WithCancel(context.Background())
	vb.devices = append(vb.devices, busDevice{dev: dev, meta: meta, ctx: ctx, cancel: cancel})
	return ctx, meta, nil
}

// Lookup finds a device by its USB-IP bus id ("bus-dev").
func (vb *VirtualBus) Lookup(busID string) (DeviceMeta, context.Context, bool) {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()
	for _, d := range vb.devices {
		if d.meta.BusID() == busID {
			return DeviceMeta{Dev: d.dev, Meta: d.meta}, d.ctx, true
		}
	}
	return DeviceMeta{}, nil, false
}

// GetAllDeviceMetas returns a snapshot of registered devices.
func (vb *VirtualBus) GetAllDeviceMetas() []DeviceMeta {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()
	out := make([]DeviceMeta, 0, len(vb.devices))
	for _, d := range vb.devices {
		out = append(out, DeviceMeta{Dev: d.dev, Meta: d.meta})
	}
	return out
}

// BusID returns the bus number.
func (vb *VirtualBus) BusID() uint32 {
	return vb.busId
}

// Remove unregisters dev and cancels its context.
func (vb *VirtualBus) Remove(dev usb.Device) error {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()
	for i, d := range vb.devices {
		if d.dev == dev {
			d.cancel()
			delete(vb.allocatedDevIDs, d.meta.DevId)
			vb.devices = append(vb.devices[:i], vb.devices[i+1:]...)
			return nil
		}
	}
	return ErrDeviceMissing
}

// Close cancels every device context and releases the bus number.
func (vb *VirtualBus) Close() error {
	vb.mutex.Lock()
	for _, d := range vb.devices {
		d.cancel()
	}
	vb.devices = nil
	vb.mutex.Unlock()

	globalMutex.Lock()
	defer globalMutex.Unlock()
	delete(allocatedBusIds, vb.busId)
	return nil
}
