// Package layout resolves matrix events through a stack of layers into the
// set of held key codes.
package layout

import "github.com/Alia5/lt3/device/keyboard"

// effect records what a press at one position did so its release can undo it
// regardless of layer changes in between.
type effect struct {
	row, col uint8
	action   Action
}

// Layout tracks the active layer stack and held keys. It is not safe for
// concurrent use; the tick task owns it.
type Layout struct {
	layers  Layers
	stack   []int
	held    []effect
	now     uint64
	dropped uint64
	keys    []keyboard.KeyCode
}

// New returns a layout with only the base layer active.
func New(layers Layers) *Layout {
	return &Layout{
		layers: layers,
		stack:  []int{0},
		held:   make([]effect, 0, 16),
		keys:   make([]keyboard.KeyCode, 0, 16),
	}
}

// Event applies one debounced event.
//
// A press resolves against the topmost layer whose entry is not Trans. Key
// codes beyond the report's six non-modifier slots are dropped, so the keys
// accepted first keep their slots; a dropped press leaves nothing for its
// release to undo.
func (l *Layout) Event(e Event) {
	if !e.IsPress() {
		l.release(e.Row, e.Col)
		return
	}
	for _, h := range l.held {
		if h.row == e.Row && h.col == e.Col {
			return
		}
	}
	a := l.resolve(int(e.Row), int(e.Col))
	switch a.Kind {
	case ActionLayer:
		if a.Layer <= 0 || a.Layer >= len(l.layers) {
			return
		}
		l.stack = append(l.stack, a.Layer)
	case ActionKeyCode:
		if !a.Code.IsModifier() && !l.holds(a.Code) && l.slotsUsed() >= keyboard.KeySlots {
			l.dropped++
			return
		}
	default:
		return
	}
	l.held = append(l.held, effect{row: e.Row, col: e.Col, action: a})
}

func (l *Layout) resolve(row, col int) Action {
	for i := len(l.stack) - 1; i >= 0; i-- {
		a := l.layers.At(l.stack[i], row, col)
		if a.Kind != ActionTrans {
			return a
		}
	}
	return NoOp
}

func (l *Layout) release(row, col uint8) {
	for i, h := range l.held {
		if h.row != row || h.col != col {
			continue
		}
		l.held = append(l.held[:i], l.held[i+1:]...)
		if h.action.Kind == ActionLayer {
			l.popLayer(h.action.Layer)
		}
		return
	}
}

// popLayer removes the most recent activation of n; the base layer stays.
func (l *Layout) popLayer(n int) {
	for i := len(l.stack) - 1; i > 0; i-- {
		if l.stack[i] == n {
			l.stack = append(l.stack[:i], l.stack[i+1:]...)
			return
		}
	}
}

func (l *Layout) holds(code keyboard.KeyCode) bool {
	for _, h := range l.held {
		if h.action.Kind == ActionKeyCode && h.action.Code == code {
			return true
		}
	}
	return false
}

func (l *Layout) slotsUsed() int {
	n := 0
	for i, h := range l.held {
		if h.action.Kind != ActionKeyCode || h.action.Code.IsModifier() {
			continue
		}
		dup := false
		for _, p := range l.held[:i] {
			if p.action.Kind == ActionKeyCode && p.action.Code == h.action.Code {
				dup = true
				break
			}
		}
		if !dup {
			n++
		}
	}
	return n
}

// Tick advances internal time and returns the held key codes in the order
// they were accepted, without repeats. No action here is time based, so a
// tick without events leaves the held set unchanged. The returned slice is
// reused by the next call.
func (l *Layout) Tick() []keyboard.KeyCode {
	l.now++
	return l.Keycodes()
}

// Keycodes returns the held key codes without advancing time.
func (l *Layout) Keycodes() []keyboard.KeyCode {
	l.keys = l.keys[:0]
	for _, h := range l.held {
		if h.action.Kind != ActionKeyCode {
			continue
		}
		seen := false
		for _, k := range l.keys {
			if k == h.action.Code {
				seen = true
				break
			}
		}
		if !seen {
			l.keys = append(l.keys, h.action.Code)
		}
	}
	return l.keys
}

// ActiveLayer returns the top of the layer stack.
func (l *Layout) ActiveLayer() int { return l.stack[len(l.stack)-1] }

// Now returns the number of ticks processed.
func (l *Layout) Now() uint64 { return l.now }

// Dropped returns how many presses were discarded for lack of report slots.
func (l *Layout) Dropped() uint64 { return l.dropped }
