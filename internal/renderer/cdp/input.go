package cdp

import (
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/pagedriver/internal/renderer"
)

// keyDef is what Chrome needs to synthesize a key: the DOM key and code, the
// legacy virtual key code and the text inserted on key down.
type keyDef struct {
	key  string
	code string
	vk   int64
	text string
}

var namedKeyDefs = map[renderer.NamedKey]keyDef{
	renderer.KeyEnter:      {"Enter", "Enter", 13, "\r"},
	renderer.KeyTab:        {"Tab", "Tab", 9, ""},
	renderer.KeyEscape:     {"Escape", "Escape", 27, ""},
	renderer.KeyBackspace:  {"Backspace", "Backspace", 8, ""},
	renderer.KeyDelete:     {"Delete", "Delete", 46, ""},
	renderer.KeyArrowUp:    {"ArrowUp", "ArrowUp", 38, ""},
	renderer.KeyArrowDown:  {"ArrowDown", "ArrowDown", 40, ""},
	renderer.KeyArrowLeft:  {"ArrowLeft", "ArrowLeft", 37, ""},
	renderer.KeyArrowRight: {"ArrowRight", "ArrowRight", 39, ""},
	renderer.KeyHome:       {"Home", "Home", 36, ""},
	renderer.KeyEnd:        {"End", "End", 35, ""},
	renderer.KeyPageUp:     {"PageUp", "PageUp", 33, ""},
	renderer.KeyPageDown:   {"PageDown", "PageDown", 34, ""},
}

func lookupKey(k renderer.Key) keyDef {
	if def, ok := namedKeyDefs[k.Named]; ok {
		return def
	}
	def := keyDef{key: k.Char, text: k.Char}
	if len(k.Char) == 1 {
		c := k.Char[0]
		switch {
		case c >= 'a' && c <= 'z':
			def.code, def.vk = "Key"+string(c-'a'+'A'), int64(c-'a'+'A')
		case c >= 'A' && c <= 'Z':
			def.code, def.vk = "Key"+string(c), int64(c)
		case c >= '0' && c <= '9':
			def.code, def.vk = "Digit"+string(c), int64(c)
		case c == ' ':
			def.code, def.vk = "Space", 32
		}
	}
	return def
}

// inputActions translates an input event into the CDP commands that replay it.
func inputActions(ev renderer.InputEvent) chromedp.Tasks {
	switch e := ev.(type) {
	case renderer.MouseButtonEvent:
		typ := input.MousePressed
		if e.Action == renderer.MouseUp {
			typ = input.MouseReleased
		}
		return chromedp.Tasks{
			input.DispatchMouseEvent(typ, e.X, e.Y).
				WithButton(mouseButton(e.Button)).
				WithClickCount(1),
		}
	case renderer.MouseMoveEvent:
		return chromedp.Tasks{input.DispatchMouseEvent(input.MouseMoved, e.X, e.Y)}
	case renderer.WheelEvent:
		// Chrome's deltas follow the scroll direction; ours follow the content.
		return chromedp.Tasks{
			input.DispatchMouseEvent(input.MouseWheel, e.X, e.Y).
				WithDeltaX(-e.DX).
				WithDeltaY(-e.DY),
		}
	case renderer.KeyboardEvent:
		def := lookupKey(e.Key)
		if e.State == renderer.KeyUp {
			return chromedp.Tasks{
				input.DispatchKeyEvent(input.KeyUp).
					WithKey(def.key).
					WithCode(def.code).
					WithWindowsVirtualKeyCode(def.vk),
			}
		}
		typ := input.KeyRawDown
		if def.text != "" {
			typ = input.KeyDown
		}
		p := input.DispatchKeyEvent(typ).
			WithKey(def.key).
			WithCode(def.code).
			WithWindowsVirtualKeyCode(def.vk)
		if def.text != "" {
			p = p.WithText(def.text).WithUnmodifiedText(def.text)
		}
		return chromedp.Tasks{p}
	}
	return nil
}

func mouseButton(b renderer.MouseButton) input.MouseButton {
	switch b {
	case renderer.MouseMiddle:
		return input.Middle
	case renderer.MouseRight:
		return input.Right
	default:
		return input.Left
	}
}
