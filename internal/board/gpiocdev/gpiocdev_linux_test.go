//go:build linux

package gpiocdev

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestABILayout(t *testing.T) {
	assert.Equal(t, uintptr(16), unsafe.Sizeof(lineAttribute{}))
	assert.Equal(t, uintptr(24), unsafe.Sizeof(lineConfigAttribute{}))
	assert.Equal(t, uintptr(272), unsafe.Sizeof(lineConfig{}))
	assert.Equal(t, uintptr(592), unsafe.Sizeof(lineRequest{}))
	assert.Equal(t, uintptr(588), unsafe.Offsetof(lineRequest{}.Fd))
}

func TestIoctlNumbers(t *testing.T) {
	assert.Equal(t, uintptr(0xC250B407), ioctlGetLine)
	assert.Equal(t, uintptr(0xC010B40E), ioctlGetValues)
	assert.Equal(t, uintptr(0xC010B40F), ioctlSetValues)
}

func TestOpenMissingChip(t *testing.T) {
	_, err := OpenPins(Config{Chip: "/nonexistent/gpiochip9", Rows: []uint32{8}, Cols: []uint32{9, 10}, Led: -1}, nil)
	assert.Error(t, err)
}
