// Package matrix scans a switch matrix wired as driven rows and pulled-up
// columns. A pressed switch pulls its column low while its row is driven low.
package matrix

import (
	"errors"
	"fmt"
	"iter"
)

// ErrScan is matched by every error returned from Scan.
var ErrScan = errors.New("matrix scan failed")

// InputPin is one column input. Columns are pulled up, so low means pressed.
type InputPin interface {
	IsLow() (bool, error)
}

// OutputPin is one row output. Low selects the row.
type OutputPin interface {
	SetLow() error
	SetHigh() error
}

// ScanError describes a pin failure during a scan. Row or Col is -1 when it
// does not apply.
type ScanError struct {
	Op  string
	Row int
	Col int
	Err error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("matrix %s (row %d, col %d): %v", e.Op, e.Row, e.Col, e.Err)
}

func (e *ScanError) Unwrap() []error { return []error{ErrScan, e.Err} }

// Matrix reads raw switch states. It keeps no state between scans.
type Matrix struct {
	cols []InputPin
	rows []OutputPin
}

// New builds a matrix from pins ordered by scan position and releases every row.
func New(cols []InputPin, rows []OutputPin) (*Matrix, error) {
	if len(cols) == 0 || len(rows) == 0 {
		return nil, fmt.Errorf("matrix needs at least one row and one column (got %dx%d)", len(rows), len(cols))
	}
	m := &Matrix{cols: cols, rows: rows}
	for i, r := range rows {
		if err := r.SetHigh(); err != nil {
			return nil, &ScanError{Op: "release", Row: i, Col: -1, Err: err}
		}
	}
	return m, nil
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return len(m.rows) }

// Cols returns the number of columns.
func (m *Matrix) Cols() int { return len(m.cols) }

// Scan selects each row in turn and samples every column, row-major.
// On error no partial grid is returned.
func (m *Matrix) Scan() (PressedKeys, error) {
	keys := PressedKeys{rows: len(m.rows), cols: len(m.cols), bits: make([]bool, len(m.rows)*len(m.cols))}
	for r, row := range m.rows {
		if err := row.SetLow(); err != nil {
			_ = row.SetHigh()
			return PressedKeys{}, &ScanError{Op: "select", Row: r, Col: -1, Err: err}
		}
		for c, col := range m.cols {
			low, err := col.IsLow()
			if err != nil {
				_ = row.SetHigh()
				return PressedKeys{}, &ScanError{Op: "read", Row: r, Col: c, Err: err}
			}
			keys.bits[r*keys.cols+c] = low
		}
		if err := row.SetHigh(); err != nil {
			return PressedKeys{}, &ScanError{Op: "release", Row: r, Col: -1, Err: err}
		}
	}
	return keys, nil
}

// PressedKeys is one scan snapshot. The zero value is an empty 0x0 grid.
type PressedKeys struct {
	rows, cols int
	bits       []bool
}

// NewPressedKeys returns a rows x cols grid with the listed positions set.
// Positions outside the grid are ignored.
func NewPressedKeys(rows, cols int, pressed ...[2]int) PressedKeys {
	k := PressedKeys{rows: rows, cols: cols, bits: make([]bool, rows*cols)}
	for _, p := range pressed {
		if p[0] >= 0 && p[0] < rows && p[1] >= 0 && p[1] < cols {
			k.bits[p[0]*cols+p[1]] = true
		}
	}
	return k
}

func (k PressedKeys) Rows() int { return k.rows }
func (k PressedKeys) Cols() int { return k.cols }

// Get reports whether (row, col) is pressed. Out of range positions are not.
func (k PressedKeys) Get(row, col int) bool {
	if row < 0 || row >= k.rows || col < 0 || col >= k.cols {
		return false
	}
	return k.bits[row*k.cols+col]
}

// Equal reports whether both grids have the same shape and contents.
func (k PressedKeys) Equal(o PressedKeys) bool {
	if k.rows != o.rows || k.cols != o.cols {
		return false
	}
	for i := range k.bits {
		if k.bits[i] != o.bits[i] {
			return false
		}
	}
	return true
}

// Pressed yields the pressed positions in row-major order.
func (k PressedKeys) Pressed() iter.Seq2[int, int] {
	return func(yield func(int, int) bool) {
		for i, b := range k.bits {
			if b && !yield(i/k.cols, i%k.cols) {
				return
			}
		}
	}
}

// With returns a copy with (row, col) set to v.
func (k PressedKeys) With(row, col int, v bool) PressedKeys {
	out := PressedKeys{rows: k.rows, cols: k.cols, bits: make([]bool, len(k.bits))}
	copy(out.bits, k.bits)
	if row >= 0 && row < k.rows && col >= 0 && col < k.cols {
		out.bits[row*k.cols+col] = v
	}
	return out
}

func (k PressedKeys) String() string {
	b := make([]byte, 0, k.rows*(k.cols+1))
	for r := 0; r < k.rows; r++ {
		if r > 0 {
			b = append(b, '/')
		}
		for c := 0; c < k.cols; c++ {
			if k.bits[r*k.cols+c] {
				b = append(b, 'X')
			} else {
				b = append(b, '.')
			}
		}
	}
	return string(b)
}
