package renderer

// InputEvent is a low-level input event dispatched to a webview.
type InputEvent interface {
	isInputEvent()
}

// MouseButtonAction is the press state of a mouse button.
type MouseButtonAction int

const (
	MouseDown MouseButtonAction = iota
	MouseUp
)

// MouseButton identifies a button.
type MouseButton int

const (
	MouseLeft MouseButton = iota
	MouseMiddle
	MouseRight
)

// MouseButtonEvent is a press or release at device coordinates.
type MouseButtonEvent struct {
	Action MouseButtonAction
	Button MouseButton
	X, Y   float64
}

// MouseMoveEvent moves the pointer to device coordinates.
type MouseMoveEvent struct {
	X, Y float64
}

// WheelEvent scrolls by pixel deltas at a point. Positive DY moves the
// content down, i.e. scrolls the view up.
type WheelEvent struct {
	DX, DY float64
	X, Y   float64
}

// KeyState is the press state of a key.
type KeyState int

const (
	KeyDown KeyState = iota
	KeyUp
)

// Key is either a named key or a single character.
type Key struct {
	Named NamedKey
	// Char is set when Named is KeyCharacter.
	Char string
}

// NamedKey enumerates non-printing keys.
type NamedKey int

const (
	KeyCharacter NamedKey = iota
	KeyEnter
	KeyTab
	KeyEscape
	KeyBackspace
	KeyDelete
	KeyArrowUp
	KeyArrowDown
	KeyArrowLeft
	KeyArrowRight
	KeyHome
	KeyEnd
	KeyPageUp
	KeyPageDown
)

var namedKeyNames = map[NamedKey]string{
	KeyEnter:      "Enter",
	KeyTab:        "Tab",
	KeyEscape:     "Escape",
	KeyBackspace:  "Backspace",
	KeyDelete:     "Delete",
	KeyArrowUp:    "ArrowUp",
	KeyArrowDown:  "ArrowDown",
	KeyArrowLeft:  "ArrowLeft",
	KeyArrowRight: "ArrowRight",
	KeyHome:       "Home",
	KeyEnd:        "End",
	KeyPageUp:     "PageUp",
	KeyPageDown:   "PageDown",
}

// CharacterKey builds a printable key.
func CharacterKey(s string) Key {
	return Key{Named: KeyCharacter, Char: s}
}

// String is the DOM KeyboardEvent.key value.
func (k Key) String() string {
	if k.Named == KeyCharacter {
		return k.Char
	}
	return namedKeyNames[k.Named]
}

// KeyboardEvent is a key press or release.
type KeyboardEvent struct {
	State KeyState
	Key   Key
}

func (MouseButtonEvent) isInputEvent() {}
func (MouseMoveEvent) isInputEvent()   {}
func (WheelEvent) isInputEvent()       {}
func (KeyboardEvent) isInputEvent()    {}
