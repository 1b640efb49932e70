// Package debounce turns raw matrix samples into press and release events.
package debounce

import (
	"errors"
	"fmt"

	"github.com/Alia5/lt3/layout"
	"github.com/Alia5/lt3/matrix"
)

// DefaultThreshold is the number of consecutive disagreeing samples needed to
// accept a change. At the default 1 kHz scan rate this is a 5 ms window.
const DefaultThreshold = 5

// ErrShape is returned when a sample does not match the debouncer's grid.
var ErrShape = errors.New("sample shape does not match debouncer")

// Config holds the debounce parameters.
type Config struct {
	Threshold int `help:"Consecutive samples a key must disagree with its latched state before the change is accepted" default:"5" env:"LT3_DEBOUNCE_THRESHOLD"`
}

// Debouncer keeps a per-key counter and the latched stable grid.
type Debouncer struct {
	rows, cols int
	threshold  int
	stable     []bool
	count      []int
	events     []layout.Event
}

// New returns a debouncer for a rows x cols grid with every key released.
func New(rows, cols int, cfg Config) (*Debouncer, error) {
	if cfg.Threshold < 1 {
		return nil, fmt.Errorf("debounce threshold must be at least 1, got %d", cfg.Threshold)
	}
	if rows <= 0 || cols <= 0 || rows > 256 || cols > 256 {
		return nil, fmt.Errorf("invalid debounce grid %dx%d", rows, cols)
	}
	return &Debouncer{
		rows:      rows,
		cols:      cols,
		threshold: cfg.Threshold,
		stable:    make([]bool, rows*cols),
		count:     make([]int, rows*cols),
		events:    make([]layout.Event, 0, rows*cols),
	}, nil
}

// Events feeds one raw sample and returns the accepted changes in row-major
// order. The returned slice is only valid until the next call.
func (d *Debouncer) Events(raw matrix.PressedKeys) ([]layout.Event, error) {
	if raw.Rows() != d.rows || raw.Cols() != d.cols {
		return nil, fmt.Errorf("%w: got %dx%d, want %dx%d", ErrShape, raw.Rows(), raw.Cols(), d.rows, d.cols)
	}
	d.events = d.events[:0]
	for r := 0; r < d.rows; r++ {
		for c := 0; c < d.cols; c++ {
			i := r*d.cols + c
			if raw.Get(r, c) == d.stable[i] {
				d.count[i] = 0
				continue
			}
			d.count[i]++
			if d.count[i] < d.threshold {
				continue
			}
			d.count[i] = 0
			d.stable[i] = !d.stable[i]
			if d.stable[i] {
				d.events = append(d.events, layout.Press(uint8(r), uint8(c)))
			} else {
				d.events = append(d.events, layout.Release(uint8(r), uint8(c)))
			}
		}
	}
	return d.events, nil
}

// Stable returns a snapshot of the latched grid.
func (d *Debouncer) Stable() matrix.PressedKeys {
	var pressed [][2]int
	for i, v := range d.stable {
		if v {
			pressed = append(pressed, [2]int{i / d.cols, i % d.cols})
		}
	}
	return matrix.NewPressedKeys(d.rows, d.cols, pressed...)
}

// Threshold returns the configured sample count.
func (d *Debouncer) Threshold() int { return d.threshold }
