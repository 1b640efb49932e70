package keyboard

// ReportSize is the boot-protocol keyboard input report length.
const ReportSize = 8

// KeySlots is the number of simultaneous non-modifier keys a report carries.
const KeySlots = 6

// Report is the 8-byte boot keyboard input report.
//
// Report layout:
//
//	Byte 0: Modifiers (bit 0 LeftCtrl ... bit 7 RightGUI)
//	Byte 1: Reserved (0x00)
//	Bytes 2-7: Key codes, first-seen order, zero padded
type Report [ReportSize]byte

// Render builds the report for the held key codes. Modifier codes go to the
// bitmask, repeats are dropped and only the first KeySlots other codes are
// placed. Render has no side effects; equal input always yields an equal report.
func Render(keys []KeyCode) Report {
	var r Report
	n := 0
	for _, k := range keys {
		if k == KeyNone {
			continue
		}
		if k.IsModifier() {
			r[0] |= k.ModifierBit()
			continue
		}
		if n == KeySlots || r.has(k, n) {
			continue
		}
		r[2+n] = byte(k)
		n++
	}
	return r
}

func (r *Report) has(k KeyCode, n int) bool {
	for i := 0; i < n; i++ {
		if r[2+i] == byte(k) {
			return true
		}
	}
	return false
}

// Bytes returns the wire representation of the report.
func (r Report) Bytes() []byte {
	b := make([]byte, ReportSize)
	copy(b, r[:])
	return b
}

// Modifiers returns the modifier bitmask.
func (r Report) Modifiers() uint8 { return r[0] }

// Keys returns the occupied key slots.
func (r Report) Keys() []KeyCode {
	var out []KeyCode
	for _, b := range r[2:] {
		if b == 0 {
			break
		}
		out = append(out, KeyCode(b))
	}
	return out
}
