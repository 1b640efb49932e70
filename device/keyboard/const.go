package keyboard

import "fmt"

// KeyCode is a HID usage ID on the Keyboard/Keypad page (0x07).
type KeyCode uint8

// Modifier bitmasks for byte 0 of the boot report.
const (
	ModLeftCtrl   = 0x01
	ModLeftShift  = 0x02
	ModLeftAlt    = 0x04
	ModLeftGUI    = 0x08 // Windows/Command key
	ModRightCtrl  = 0x10
	ModRightShift = 0x20
	ModRightAlt   = 0x40
	ModRightGUI   = 0x80
)

// LED bitmasks of the output report.
const (
	LEDNumLock    = 0x01
	LEDCapsLock   = 0x02
	LEDScrollLock = 0x04
	LEDCompose    = 0x08
	LEDKana       = 0x10
)

// HID usage codes (USB HID Keyboard/Keypad usage page)
const (
	KeyNone KeyCode = 0x00

	// Letters A-Z
	KeyA KeyCode = 0x04
	KeyB KeyCode = 0x05
	KeyC KeyCode = 0x06
	KeyD KeyCode = 0x07
	KeyE KeyCode = 0x08
	KeyF KeyCode = 0x09
	KeyG KeyCode = 0x0A
	KeyH KeyCode = 0x0B
	KeyI KeyCode = 0x0C
	KeyJ KeyCode = 0x0D
	KeyK KeyCode = 0x0E
	KeyL KeyCode = 0x0F
	KeyM KeyCode = 0x10
	KeyN KeyCode = 0x11
	KeyO KeyCode = 0x12
	KeyP KeyCode = 0x13
	KeyQ KeyCode = 0x14
	KeyR KeyCode = 0x15
	KeyS KeyCode = 0x16
	KeyT KeyCode = 0x17
	KeyU KeyCode = 0x18
	KeyV KeyCode = 0x19
	KeyW KeyCode = 0x1A
	KeyX KeyCode = 0x1B
	KeyY KeyCode = 0x1C
	KeyZ KeyCode = 0x1D

	// Numbers 1-0 (top row)
	Key1 KeyCode = 0x1E
	Key2 KeyCode = 0x1F
	Key3 KeyCode = 0x20
	Key4 KeyCode = 0x21
	Key5 KeyCode = 0x22
	Key6 KeyCode = 0x23
	Key7 KeyCode = 0x24
	Key8 KeyCode = 0x25
	Key9 KeyCode = 0x26
	Key0 KeyCode = 0x27

	KeyEnter      KeyCode = 0x28
	KeyEscape     KeyCode = 0x29
	KeyBackspace  KeyCode = 0x2A
	KeyTab        KeyCode = 0x2B
	KeySpace      KeyCode = 0x2C
	KeyMinus      KeyCode = 0x2D // - and _
	KeyEqual      KeyCode = 0x2E // = and +
	KeyLeftBrace  KeyCode = 0x2F // [ and {
	KeyRightBrace KeyCode = 0x30 // ] and }
	KeyBackslash  KeyCode = 0x31 // \ and |
	KeySemicolon  KeyCode = 0x33 // ; and :
	KeyApostrophe KeyCode = 0x34 // ' and "
	KeyGrave      KeyCode = 0x35 // ` and ~
	KeyComma      KeyCode = 0x36 // , and <
	KeyPeriod     KeyCode = 0x37 // . and >
	KeySlash      KeyCode = 0x38 // / and ?
	KeyCapsLock   KeyCode = 0x39

	KeyF1  KeyCode = 0x3A
	KeyF2  KeyCode = 0x3B
	KeyF3  KeyCode = 0x3C
	KeyF4  KeyCode = 0x3D
	KeyF5  KeyCode = 0x3E
	KeyF6  KeyCode = 0x3F
	KeyF7  KeyCode = 0x40
	KeyF8  KeyCode = 0x41
	KeyF9  KeyCode = 0x42
	KeyF10 KeyCode = 0x43
	KeyF11 KeyCode = 0x44
	KeyF12 KeyCode = 0x45

	KeyPrintScreen KeyCode = 0x46
	KeyScrollLock  KeyCode = 0x47
	KeyPause       KeyCode = 0x48
	KeyInsert      KeyCode = 0x49
	KeyHome        KeyCode = 0x4A
	KeyPageUp      KeyCode = 0x4B
	KeyDelete      KeyCode = 0x4C
	KeyEnd         KeyCode = 0x4D
	KeyPageDown    KeyCode = 0x4E

	KeyRight KeyCode = 0x4F
	KeyLeft  KeyCode = 0x50
	KeyDown  KeyCode = 0x51
	KeyUp    KeyCode = 0x52

	KeyNumLock    KeyCode = 0x53
	KeyMute       KeyCode = 0x7F
	KeyVolumeUp   KeyCode = 0x80
	KeyVolumeDown KeyCode = 0x81

	// Modifiers. These never occupy a key slot; they map onto the bitmask.
	KeyLeftCtrl   KeyCode = 0xE0
	KeyLeftShift  KeyCode = 0xE1
	KeyLeftAlt    KeyCode = 0xE2
	KeyLeftGUI    KeyCode = 0xE3
	KeyRightCtrl  KeyCode = 0xE4
	KeyRightShift KeyCode = 0xE5
	KeyRightAlt   KeyCode = 0xE6
	KeyRightGUI   KeyCode = 0xE7
)

// IsModifier reports whether k is one of LeftCtrl..RightGUI.
func (k KeyCode) IsModifier() bool {
	return k >= KeyLeftCtrl && k <= KeyRightGUI
}

// ModifierBit returns the byte-0 bit for a modifier code, or 0 for anything else.
func (k KeyCode) ModifierBit() uint8 {
	if !k.IsModifier() {
		return 0
	}
	return 1 << (k - KeyLeftCtrl)
}

func (k KeyCode) String() string {
	if n, ok := KeyName[k]; ok {
		return n
	}
	return fmt.Sprintf("0x%02X", uint8(k))
}

// KeyName maps HID usage codes to human-readable key names.
var KeyName = map[KeyCode]string{
	KeyA: "A", KeyB: "B", KeyC: "C", KeyD: "D", KeyE: "E", KeyF: "F", KeyG: "G",
	KeyH: "H", KeyI: "I", KeyJ: "J", KeyK: "K", KeyL: "L", KeyM: "M", KeyN: "N",
	KeyO: "O", KeyP: "P", KeyQ: "Q", KeyR: "R", KeyS: "S", KeyT: "T", KeyU: "U",
	KeyV: "V", KeyW: "W", KeyX: "X", KeyY: "Y", KeyZ: "Z",

	Key1: "1", Key2: "2", Key3: "3", Key4: "4", Key5: "5",
	Key6: "6", Key7: "7", Key8: "8", Key9: "9", Key0: "0",

	KeyEnter:      "Enter",
	KeyEscape:     "Escape",
	KeyBackspace:  "Backspace",
	KeyTab:        "Tab",
	KeySpace:      "Space",
	KeyMinus:      "Minus",
	KeyEqual:      "Equal",
	KeyLeftBrace:  "LeftBrace",
	KeyRightBrace: "RightBrace",
	KeyBackslash:  "Backslash",
	KeySemicolon:  "Semicolon",
	KeyApostrophe: "Apostrophe",
	KeyGrave:      "Grave",
	KeyComma:      "Comma",
	KeyPeriod:     "Period",
	KeySlash:      "Slash",
	KeyCapsLock:   "CapsLock",

	KeyF1: "F1", KeyF2: "F2", KeyF3: "F3", KeyF4: "F4", KeyF5: "F5", KeyF6: "F6",
	KeyF7: "F7", KeyF8: "F8", KeyF9: "F9", KeyF10: "F10", KeyF11: "F11", KeyF12: "F12",

	KeyPrintScreen: "PrintScreen",
	KeyScrollLock:  "ScrollLock",
	KeyPause:       "Pause",
	KeyInsert:      "Insert",
	KeyHome:        "Home",
	KeyPageUp:      "PageUp",
	KeyDelete:      "Delete",
	KeyEnd:         "End",
	KeyPageDown:    "PageDown",

	KeyRight: "Right",
	KeyLeft:  "Left",
	KeyDown:  "Down",
	KeyUp:    "Up",

	KeyNumLock:    "NumLock",
	KeyMute:       "Mute",
	KeyVolumeUp:   "VolumeUp",
	KeyVolumeDown: "VolumeDown",

	KeyLeftCtrl:   "LeftCtrl",
	KeyLeftShift:  "LeftShift",
	KeyLeftAlt:    "LeftAlt",
	KeyLeftGUI:    "LeftGUI",
	KeyRightCtrl:  "RightCtrl",
	KeyRightShift: "RightShift",
	KeyRightAlt:   "RightAlt",
	KeyRightGUI:   "RightGUI",
}
