package engine

import (
	"github.com/xkilldash9x/pagedriver/api/schemas"
	"github.com/xkilldash9x/pagedriver/internal/renderer"
)

// namedKeys maps API key names onto renderer keys.
var namedKeys = map[string]renderer.NamedKey{
	"Enter":      renderer.KeyEnter,
	"Tab":        renderer.KeyTab,
	"Escape":     renderer.KeyEscape,
	"Backspace":  renderer.KeyBackspace,
	"Delete":     renderer.KeyDelete,
	"ArrowUp":    renderer.KeyArrowUp,
	"ArrowDown":  renderer.KeyArrowDown,
	"ArrowLeft":  renderer.KeyArrowLeft,
	"ArrowRight": renderer.KeyArrowRight,
	"Home":       renderer.KeyHome,
	"End":        renderer.KeyEnd,
	"PageUp":     renderer.KeyPageUp,
	"PageDown":   renderer.KeyPageDown,
}

// ParseKeyName maps a key name such as "Enter", "Space" or "a" to a key.
// Anything unrecognized is sent as a character.
func ParseKeyName(name string) renderer.Key {
	if k, ok := namedKeys[name]; ok {
		return renderer.Key{Named: k}
	}
	if name == "Space" {
		return renderer.CharacterKey(" ")
	}
	return renderer.CharacterKey(name)
}

// press sends a key down and up and waits briefly for the repaint.
func (e *PageEngine) press(p *pageState, key renderer.Key) {
	p.webview.NotifyInputEvent(renderer.KeyboardEvent{State: renderer.KeyDown, Key: key})
	p.webview.NotifyInputEvent(renderer.KeyboardEvent{State: renderer.KeyUp, Key: key})
	e.driver.WaitForFrame(p.delegate, inputFrameTimeout)
}

// Click presses and releases the left button at viewport coordinates.
func (e *PageEngine) Click(x, y float64) error {
	p, err := e.attached()
	if err != nil {
		return err
	}
	e.click(p, x, y)
	return nil
}

func (e *PageEngine) click(p *pageState, x, y float64) {
	p.webview.NotifyInputEvent(renderer.MouseButtonEvent{Action: renderer.MouseDown, Button: renderer.MouseLeft, X: x, Y: y})
	p.webview.NotifyInputEvent(renderer.MouseButtonEvent{Action: renderer.MouseUp, Button: renderer.MouseLeft, X: x, Y: y})
	e.driver.WaitForFrame(p.delegate, inputFrameTimeout)
}

// ClickSelector clicks the centre of the first element matching selector.
func (e *PageEngine) ClickSelector(selector string) error {
	p, err := e.attached()
	if err != nil {
		return err
	}
	v, err := e.evaluate(p, centerScript(selector), e.opts.Timeout)
	if err != nil {
		return err
	}
	if renderer.IsNullish(v) {
		return schemas.SelectorNotFoundError(selector)
	}
	coords, err := numbers(v, 2, "getBoundingClientRect")
	if err != nil {
		return err
	}
	e.click(p, coords[0], coords[1])
	return nil
}

// TypeText sends one key press per rune of text.
func (e *PageEngine) TypeText(text string) error {
	p, err := e.attached()
	if err != nil {
		return err
	}
	for _, r := range text {
		e.press(p, renderer.CharacterKey(string(r)))
	}
	return nil
}

// KeyPress sends a single named key or character.
func (e *PageEngine) KeyPress(name string) error {
	p, err := e.attached()
	if err != nil {
		return err
	}
	e.press(p, ParseKeyName(name))
	return nil
}

// MouseMove moves the pointer to viewport coordinates.
func (e *PageEngine) MouseMove(x, y float64) error {
	p, err := e.attached()
	if err != nil {
		return err
	}
	p.webview.NotifyInputEvent(renderer.MouseMoveEvent{X: x, Y: y})
	e.driver.WaitForFrame(p.delegate, inputFrameTimeout)
	return nil
}

// Scroll wheels the viewport by pixel deltas. Positive dy scrolls down.
func (e *PageEngine) Scroll(dx, dy float64) error {
	p, err := e.attached()
	if err != nil {
		return err
	}
	p.webview.NotifyInputEvent(renderer.WheelEvent{
		DX: -dx,
		DY: -dy,
		X:  float64(p.width) / 2,
		Y:  float64(p.height) / 2,
	})
	e.driver.WaitForFrame(p.delegate, inputFrameTimeout)
	e.driver.WaitForIdle(p.delegate, scrollIdleWindow, scrollIdleMax)
	return nil
}

// ScrollToSelector centres the first element matching selector in the
// viewport.
func (e *PageEngine) ScrollToSelector(selector string) error {
	p, err := e.attached()
	if err != nil {
		return err
	}
	v, err := e.evaluate(p, scrollIntoViewScript(selector), e.opts.Timeout)
	if err != nil {
		return err
	}
	switch v {
	case renderer.Boolean(true):
		e.driver.WaitForFrame(p.delegate, inputFrameTimeout)
		return nil
	case renderer.Null{}, renderer.Undefined{}:
		return schemas.SelectorNotFoundError(selector)
	}
	return schemas.NewError(schemas.KindJSError, "unexpected scrollIntoView result: %s", describe(v))
}
