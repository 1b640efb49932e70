//go:build linux

package gpiocdev

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/Alia5/lt3/device/keyboard"
	"github.com/Alia5/lt3/matrix"
)

// linux/gpio.h, uAPI v2.
const (
	linesMax        = 64
	maxNameSize     = 32
	lineNumAttrsMax = 10

	lineFlagInput      = 1 << 2
	lineFlagOutput     = 1 << 3
	lineFlagBiasPullUp = 1 << 8

	lineAttrIDOutputValues = 2
)

type lineAttribute struct {
	ID      uint32
	Padding uint32
	Value   uint64 // flags, values or debounce_period_us
}

type lineConfigAttribute struct {
	Attr lineAttribute
	Mask uint64
}

type lineConfig struct {
	Flags    uint64
	NumAttrs uint32
	Padding  [5]uint32
	Attrs    [lineNumAttrsMax]lineConfigAttribute
}

type lineRequest struct {
	Offsets         [linesMax]uint32
	Consumer        [maxNameSize]byte
	Config          lineConfig
	NumLines        uint32
	EventBufferSize uint32
	Padding         [5]uint32
	Fd              int32
}

type lineValues struct {
	Bits uint64
	Mask uint64
}

func iowr(nr, size uintptr) uintptr {
	return 3<<30 | size<<16 | 0xB4<<8 | nr
}

var (
	ioctlGetLine   = iowr(0x07, unsafe.Sizeof(lineRequest{}))
	ioctlGetValues = iowr(0x0E, unsafe.Sizeof(lineValues{}))
	ioctlSetValues = iowr(0x0F, unsafe.Sizeof(lineValues{}))
)

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// Chip is an open /dev/gpiochipN.
type Chip struct {
	f *os.File
}

// Open opens the chip device.
func Open(path string) (*Chip, error) {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &Chip{f: f}, nil
}

func (c *Chip) Close() error { return c.f.Close() }

// Lines is one line request. Index i refers to the i-th requested offset.
type Lines struct {
	mu      sync.Mutex
	fd      int
	offsets []uint32
	values  uint64
}

func (c *Chip) request(offsets []uint32, consumer string, cfg lineConfig) (*Lines, error) {
	if len(offsets) == 0 || len(offsets) > linesMax {
		return nil, fmt.Errorf("line count %d out of range", len(offsets))
	}
	var req lineRequest
	copy(req.Offsets[:], offsets)
	copy(req.Consumer[:maxNameSize-1], consumer)
	req.Config = cfg
	req.NumLines = uint32(len(offsets))
	if err := ioctl(int(c.f.Fd()), ioctlGetLine, unsafe.Pointer(&req)); err != nil {
		return nil, fmt.Errorf("request lines %v: %w", offsets, err)
	}
	return &Lines{fd: int(req.Fd), offsets: append([]uint32(nil), offsets...)}, nil
}

// RequestInputs requests pulled-up inputs.
func (c *Chip) RequestInputs(offsets []uint32, consumer string) (*Lines, error) {
	return c.request(offsets, consumer, lineConfig{Flags: lineFlagInput | lineFlagBiasPullUp})
}

// RequestOutputs requests outputs, all driven high initially.
func (c *Chip) RequestOutputs(offsets []uint32, consumer string) (*Lines, error) {
	all := uint64(1)<<len(offsets) - 1
	cfg := lineConfig{Flags: lineFlagOutput, NumAttrs: 1}
	cfg.Attrs[0] = lineConfigAttribute{
		Attr: lineAttribute{ID: lineAttrIDOutputValues, Value: all},
		Mask: all,
	}
	l, err := c.request(offsets, consumer, cfg)
	if err != nil {
		return nil, err
	}
	l.values = all
	return l, nil
}

// Get reads line i.
func (l *Lines) Get(i int) (bool, error) {
	v := lineValues{Mask: 1 << i}
	if err := ioctl(l.fd, ioctlGetValues, unsafe.Pointer(&v)); err != nil {
		return false, fmt.Errorf("read line %d: %w", l.offsets[i], err)
	}
	return v.Bits&(1<<i) != 0, nil
}

// Set drives line i.
func (l *Lines) Set(i int, high bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	v := lineValues{Mask: 1 << i}
	if high {
		v.Bits = 1 << i
	}
	if err := ioctl(l.fd, ioctlSetValues, unsafe.Pointer(&v)); err != nil {
		return fmt.Errorf("drive line %d: %w", l.offsets[i], err)
	}
	l.values = l.values&^(1<<i) | v.Bits
	return nil
}

func (l *Lines) Close() error { return unix.Close(l.fd) }

type inputPin struct {
	l *Lines
	i int
}

func (p inputPin) IsLow() (bool, error) {
	high, err := p.l.Get(p.i)
	return !high, err
}

type outputPin struct {
	l *Lines
	i int
}

func (p outputPin) SetLow() error  { return p.l.Set(p.i, false) }
func (p outputPin) SetHigh() error { return p.l.Set(p.i, true) }

type ledPin struct {
	l      *Lines
	logger *slog.Logger
}

func (p ledPin) CapsLock(active bool) {
	if err := p.l.Set(0, active); err != nil {
		p.logger.Warn("caps lock LED", "error", err)
	}
}

// OpenPins requests the row, column and LED lines described by cfg.
func OpenPins(cfg Config, logger *slog.Logger) (*Pins, error) {
	chip, err := Open(cfg.Chip)
	if err != nil {
		return nil, err
	}
	defer chip.Close()

	var closers []func() error
	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}

	cols, err := chip.RequestInputs(cfg.Cols, cfg.Consumer)
	if err != nil {
		return nil, err
	}
	closers = append(closers, cols.Close)
	rows, err := chip.RequestOutputs(cfg.Rows, cfg.Consumer)
	if err != nil {
		_ = closeAll()
		return nil, err
	}
	closers = append(closers, rows.Close)

	p := &Pins{Leds: keyboard.NopLeds, close: closeAll}
	for i := range cfg.Cols {
		p.Cols = append(p.Cols, inputPin{l: cols, i: i})
	}
	for i := range cfg.Rows {
		p.Rows = append(p.Rows, outputPin{l: rows, i: i})
	}
	if cfg.Led >= 0 {
		led, err := chip.RequestOutputs([]uint32{uint32(cfg.Led)}, cfg.Consumer)
		if err != nil {
			_ = closeAll()
			return nil, err
		}
		closers = append(closers, led.Close)
		if err := led.Set(0, false); err != nil {
			_ = closeAll()
			return nil, err
		}
		p.Leds = ledPin{l: led, logger: logger}
	}
	logger.Info("gpio lines requested", "chip", cfg.Chip, "rows", cfg.Rows, "cols", cfg.Cols, "led", cfg.Led)
	return p, nil
}

var _ matrix.InputPin = inputPin{}
var _ matrix.OutputPin = outputPin{}
