package layout

import (
	"fmt"

	"github.com/Alia5/lt3/device/keyboard"
)

// ActionKind selects which Action field is meaningful.
type ActionKind uint8

const (
	ActionNoOp ActionKind = iota
	ActionTrans
	ActionKeyCode
	ActionLayer
)

// Action is what a matrix position does on a layer.
type Action struct {
	Kind  ActionKind
	Code  keyboard.KeyCode // ActionKeyCode
	Layer int              // ActionLayer
}

// NoOp does nothing and stops the fall through.
var NoOp = Action{Kind: ActionNoOp}

// Trans falls through to the next layer down the stack.
var Trans = Action{Kind: ActionTrans}

// K sends a key code while held.
func K(code keyboard.KeyCode) Action { return Action{Kind: ActionKeyCode, Code: code} }

// L activates layer n while held.
func L(n int) Action { return Action{Kind: ActionLayer, Layer: n} }

func (a Action) String() string {
	switch a.Kind {
	case ActionTrans:
		return "Trans"
	case ActionKeyCode:
		return a.Code.String()
	case ActionLayer:
		return fmt.Sprintf("L(%d)", a.Layer)
	default:
		return "NoOp"
	}
}

// Layers is the layer table, indexed [layer][row][col]. It is plain data so
// boards and tests can substitute their own.
type Layers [][][]Action

// At returns the action at (layer, row, col), or NoOp when out of range.
func (l Layers) At(layer, row, col int) Action {
	if layer < 0 || layer >= len(l) {
		return NoOp
	}
	if row < 0 || row >= len(l[layer]) {
		return NoOp
	}
	if col < 0 || col >= len(l[layer][row]) {
		return NoOp
	}
	return l[layer][row][col]
}
