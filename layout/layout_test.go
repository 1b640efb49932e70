package layout_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	kb "github.com/Alia5/lt3/device/keyboard"
	"github.com/Alia5/lt3/layout"
)

var testLayers = layout.Layers{
	{
		{layout.K(kb.KeyLeftShift), layout.K(kb.KeyLeftCtrl), layout.L(1), layout.NoOp},
		{layout.K(kb.KeyA), layout.K(kb.KeyB), layout.K(kb.KeyC), layout.K(kb.KeyD)},
		{layout.K(kb.KeyE), layout.K(kb.KeyF), layout.K(kb.KeyG), layout.K(kb.KeyA)},
	},
	{
		{layout.Trans, layout.Trans, layout.Trans, layout.K(kb.KeyEscape)},
		{layout.K(kb.Key1), layout.Trans, layout.NoOp, layout.Trans},
		{layout.Trans, layout.Trans, layout.Trans, layout.Trans},
	},
}

func TestSingleKeys(t *testing.T) {
	l := layout.New(testLayers)
	assert.Empty(t, l.Tick())

	l.Event(layout.Press(0, 0))
	assert.Equal(t, []kb.KeyCode{kb.KeyLeftShift}, l.Tick())

	l.Event(layout.Press(0, 1))
	assert.Equal(t, []kb.KeyCode{kb.KeyLeftShift, kb.KeyLeftCtrl}, l.Tick())

	l.Event(layout.Release(0, 0))
	assert.Equal(t, []kb.KeyCode{kb.KeyLeftCtrl}, l.Tick())

	l.Event(layout.Release(0, 1))
	assert.Empty(t, l.Tick())
	assert.Equal(t, uint64(5), l.Now())
}

func TestTickIsIdempotent(t *testing.T) {
	l := layout.New(testLayers)
	l.Event(layout.Press(1, 0))
	l.Event(layout.Press(0, 0))
	first := append([]kb.KeyCode(nil), l.Tick()...)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, l.Tick())
	}
}

func TestLayerShift(t *testing.T) {
	l := layout.New(testLayers)

	l.Event(layout.Press(0, 2))
	assert.Equal(t, 1, l.ActiveLayer())
	assert.Empty(t, l.Tick(), "layer keys are not reported")

	l.Event(layout.Press(1, 0))
	l.Event(layout.Press(1, 1))
	l.Event(layout.Press(1, 2))
	l.Event(layout.Press(0, 3))
	assert.Equal(t, []kb.KeyCode{kb.Key1, kb.KeyB, kb.KeyEscape}, l.Tick(),
		"layer 1 overrides, Trans falls through, NoOp blocks")

	l.Event(layout.Release(0, 2))
	assert.Equal(t, 0, l.ActiveLayer())
	assert.Equal(t, []kb.KeyCode{kb.Key1, kb.KeyB, kb.KeyEscape}, l.Tick(),
		"keys pressed on a layer stay held after it is released")

	l.Event(layout.Release(1, 0))
	l.Event(layout.Release(0, 3))
	assert.Equal(t, []kb.KeyCode{kb.KeyB}, l.Tick(), "release undoes what the press did")
}

func TestDuplicateCodes(t *testing.T) {
	l := layout.New(testLayers)
	l.Event(layout.Press(1, 0))
	l.Event(layout.Press(2, 3))
	assert.Equal(t, []kb.KeyCode{kb.KeyA}, l.Tick())

	l.Event(layout.Release(1, 0))
	assert.Equal(t, []kb.KeyCode{kb.KeyA}, l.Tick(), "still held by the other position")

	l.Event(layout.Release(2, 3))
	assert.Empty(t, l.Tick())
}

func TestOverflowDropsNewest(t *testing.T) {
	l := layout.New(testLayers)
	for _, c := range [][2]uint8{{1, 0}, {1, 1}, {1, 2}, {1, 3}, {2, 0}, {2, 1}, {2, 2}} {
		l.Event(layout.Press(c[0], c[1]))
	}
	l.Event(layout.Press(0, 0))
	got := l.Tick()
	assert.Equal(t, []kb.KeyCode{kb.KeyA, kb.KeyB, kb.KeyC, kb.KeyD, kb.KeyE, kb.KeyF, kb.KeyLeftShift}, got,
		"seventh key is dropped, modifiers still accepted")
	assert.Equal(t, uint64(1), l.Dropped())

	report := kb.Render(got)
	assert.Equal(t, kb.Report{kb.ModLeftShift, 0, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09}, report)

	l.Event(layout.Release(2, 2))
	l.Event(layout.Release(1, 0))
	l.Event(layout.Press(2, 2))
	assert.Equal(t, []kb.KeyCode{kb.KeyB, kb.KeyC, kb.KeyD, kb.KeyE, kb.KeyF, kb.KeyLeftShift, kb.KeyG}, l.Tick(),
		"a freed slot accepts a new press")
}

func TestDeterminism(t *testing.T) {
	seq := []layout.Event{
		layout.Press(0, 0), layout.Press(1, 3), layout.Press(0, 2), layout.Press(1, 0),
		layout.Release(0, 2), layout.Press(2, 1), layout.Release(0, 0),
	}
	run := func() []kb.KeyCode {
		l := layout.New(testLayers)
		var out []kb.KeyCode
		for _, e := range seq {
			l.Event(e)
			out = append(out, l.Tick()...)
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestOutOfRange(t *testing.T) {
	l := layout.New(testLayers)
	l.Event(layout.Press(9, 9))
	l.Event(layout.Release(9, 9))
	l.Event(layout.Release(0, 0))
	assert.Empty(t, l.Tick())
	assert.Equal(t, layout.NoOp, testLayers.At(5, 0, 0))
}
