// Package virtual simulates the switch matrix and LEDs of a board in
// memory.
package virtual

import (
	"strings"
	"sync"

	"github.com/Alia5/lt3/matrix"
)

// Grid is a rows x cols switch matrix with one diode per switch. A column
// pin reads low while any row holding a closed switch on it is driven low.
type Grid struct {
	mu       sync.Mutex
	rows     int
	cols     int
	closed   []bool
	rowLow   []bool
	capsLock bool
	ledHook  func(bool)
}

// NewGrid returns an open (nothing pressed) grid.
func NewGrid(rows, cols int) *Grid {
	return &Grid{
		rows:   rows,
		cols:   cols,
		closed: make([]bool, rows*cols),
		rowLow: make([]bool, rows),
	}
}

func (g *Grid) Rows() int { return g.rows }
func (g *Grid) Cols() int { return g.cols }

func (g *Grid) inRange(row, col int) bool {
	return row >= 0 && row < g.rows && col >= 0 && col < g.cols
}

// Set closes or opens the switch at row, col.
func (g *Grid) Set(row, col int, closed bool) {
	if !g.inRange(row, col) {
		return
	}
	g.mu.Lock()
	g.closed[row*g.cols+col] = closed
	g.mu.Unlock()
}

// Toggle flips the switch at row, col and returns its new state.
func (g *Grid) Toggle(row, col int) bool {
	if !g.inRange(row, col) {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	i := row*g.cols + col
	g.closed[i] = !g.closed[i]
	return g.closed[i]
}

// Closed reports the switch state.
func (g *Grid) Closed(row, col int) bool {
	if !g.inRange(row, col) {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed[row*g.cols+col]
}

// Release opens every switch.
func (g *Grid) Release() {
	g.mu.Lock()
	clear(g.closed)
	g.mu.Unlock()
}

// Inputs returns the column pins in scan order.
func (g *Grid) Inputs() []matrix.InputPin {
	out := make([]matrix.InputPin, g.cols)
	for c := range out {
		out[c] = colPin{g: g, col: c}
	}
	return out
}

// Outputs returns the row pins in scan order.
func (g *Grid) Outputs() []matrix.OutputPin {
	out := make([]matrix.OutputPin, g.rows)
	for r := range out {
		out[r] = rowPin{g: g, row: r}
	}
	return out
}

// CapsLock records the host's caps lock LED state.
func (g *Grid) CapsLock(active bool) {
	g.mu.Lock()
	g.capsLock = active
	hook := g.ledHook
	g.mu.Unlock()
	if hook != nil {
		hook(active)
	}
}

// CapsLockOn returns the last LED state written by the host.
func (g *Grid) CapsLockOn() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.capsLock
}

// OnLed registers a callback run after every LED update.
func (g *Grid) OnLed(f func(capsLock bool)) {
	g.mu.Lock()
	g.ledHook = f
	g.mu.Unlock()
}

// String renders the switch states, one line per row, X for closed.
func (g *Grid) String() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var b strings.Builder
	for r := 0; r < g.rows; r++ {
		if r > 0 {
			b.WriteByte('/')
		}
		for c := 0; c < g.cols; c++ {
			if g.closed[r*g.cols+c] {
				b.WriteByte('X')
			} else {
				b.WriteByte('.')
			}
		}
	}
	return b.String()
}

type rowPin struct {
	g   *Grid
	row int
}

func (p rowPin) SetLow() error {
	p.g.mu.Lock()
	p.g.rowLow[p.row] = true
	p.g.mu.Unlock()
	return nil
}

func (p rowPin) SetHigh() error {
	p.g.mu.Lock()
	p.g.rowLow[p.row] = false
	p.g.mu.Unlock()
	return nil
}

type colPin struct {
	g   *Grid
	col int
}

func (p colPin) IsLow() (bool, error) {
	p.g.mu.Lock()
	defer p.g.mu.Unlock()
	for r, low := range p.g.rowLow {
		if low && p.g.closed[r*p.g.cols+p.col] {
			return true, nil
		}
	}
	return false, nil
}
