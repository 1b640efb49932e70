package layout

import "fmt"

// EventKind distinguishes presses from releases.
type EventKind uint8

const (
	EventPress EventKind = iota
	EventRelease
)

// Event is a debounced state change at a matrix position.
type Event struct {
	Kind EventKind
	Row  uint8
	Col  uint8
}

// Press returns a press event at (row, col).
func Press(row, col uint8) Event { return Event{Kind: EventPress, Row: row, Col: col} }

// Release returns a release event at (row, col).
func Release(row, col uint8) Event { return Event{Kind: EventRelease, Row: row, Col: col} }

// IsPress reports whether e is a press.
func (e Event) IsPress() bool { return e.Kind == EventPress }

// Coord returns the event position.
func (e Event) Coord() (row, col uint8) { return e.Row, e.Col }

func (e Event) String() string {
	if e.IsPress() {
		return fmt.Sprintf("Press(%d,%d)", e.Row, e.Col)
	}
	return fmt.Sprintf("Release(%d,%d)", e.Row, e.Col)
}
