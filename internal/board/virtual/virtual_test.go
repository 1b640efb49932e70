package virtual_test

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/lt3/internal/board/virtual"
	"github.com/Alia5/lt3/matrix"
)

func TestGridScan(t *testing.T) {
	g := virtual.NewGrid(2, 3)
	m, err := matrix.New(g.Inputs(), g.Outputs())
	require.NoError(t, err)

	keys, err := m.Scan()
	require.NoError(t, err)
	assert.Equal(t, "..."+"/"+"...", keys.String())

	g.Set(0, 0, true)
	g.Set(1, 2, true)
	g.Set(5, 5, true)
	keys, err = m.Scan()
	require.NoError(t, err)
	assert.True(t, keys.Get(0, 0))
	assert.True(t, keys.Get(1, 2))
	assert.False(t, keys.Get(1, 0))
	assert.Equal(t, "X../..X", g.String())

	assert.False(t, g.Toggle(0, 0))
	g.Release()
	keys, err = m.Scan()
	require.NoError(t, err)
	assert.True(t, matrix.NewPressedKeys(2, 3).Equal(keys))
}

func TestGridLeds(t *testing.T) {
	g := virtual.NewGrid(1, 2)
	var seen []bool
	g.OnLed(func(on bool) { seen = append(seen, on) })
	g.CapsLock(true)
	assert.True(t, g.CapsLockOn())
	g.CapsLock(false)
	assert.Equal(t, []bool{true, false}, seen)
}

func TestTerminalKeys(t *testing.T) {
	g := virtual.NewGrid(1, 2)
	term := virtual.NewTerminal(g, os.Stdin, io.Discard, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.False(t, term.HandleKey('a'))
	assert.True(t, g.Closed(0, 0))
	assert.False(t, term.HandleKey('s'))
	assert.Equal(t, "switches [XX]  caps lock off", term.Status())

	assert.False(t, term.HandleKey('d'), "unmapped on a two column board")
	assert.False(t, term.HandleKey(' '))
	assert.Equal(t, "..", g.String())

	assert.True(t, term.HandleKey(0x1b))
	assert.True(t, term.HandleKey(0x03))
	assert.Contains(t, term.Help(), `row 0 = "as"`)
}
