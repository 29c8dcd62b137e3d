package sim

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xkilldash9x/pagedriver/internal/renderer"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// lineScroll is the distance an arrow key scrolls the page.
const lineScroll = 40

func (d *document) handleInput(ev renderer.InputEvent) {
	if d.dead {
		return
	}
	switch e := ev.(type) {
	case renderer.MouseButtonEvent:
		d.mouseButton(e)
	case renderer.MouseMoveEvent:
		d.mouseMove(e.X, e.Y)
	case renderer.WheelEvent:
		d.wheel(e)
	case renderer.KeyboardEvent:
		d.key(e)
	}
}

func (d *document) mouseInit(x, y float64, button, buttons, detail int) map[string]interface{} {
	return map[string]interface{}{
		"bubbles":    true,
		"cancelable": true,
		"clientX":    x,
		"clientY":    y,
		"screenX":    x,
		"screenY":    y,
		"pageX":      x + d.scrollX,
		"pageY":      y + d.scrollY,
		"button":     button,
		"buttons":    buttons,
		"detail":     detail,
		"view":       d.vm.GlobalObject(),
	}
}

func (d *document) mouseButton(e renderer.MouseButtonEvent) {
	target := d.hitTest(e.X+d.scrollX, e.Y+d.scrollY)
	if target == nil {
		return
	}
	button := int(e.Button)
	switch e.Action {
	case renderer.MouseDown:
		d.pressed = target
		ev := d.newEvent("MouseEvent", "mousedown", d.mouseInit(e.X, e.Y, button, 1<<button, 1))
		if d.dispatch(target, ev) && e.Button == renderer.MouseLeft {
			d.setFocus(focusableAncestor(target))
		}
	case renderer.MouseUp:
		d.dispatch(target, d.newEvent("MouseEvent", "mouseup", d.mouseInit(e.X, e.Y, button, 0, 1)))
		pressed := d.pressed
		d.pressed = nil
		if pressed == nil || d.dead {
			return
		}
		clickTarget := commonAncestor(pressed, target)
		if clickTarget == nil {
			return
		}
		switch e.Button {
		case renderer.MouseLeft:
			d.click(clickTarget, e.X, e.Y)
		case renderer.MouseRight:
			d.dispatch(clickTarget, d.newEvent("MouseEvent", "contextmenu", d.mouseInit(e.X, e.Y, button, 0, 1)))
		default:
			d.dispatch(clickTarget, d.newEvent("MouseEvent", "auxclick", d.mouseInit(e.X, e.Y, button, 0, 1)))
		}
	}
}

func commonAncestor(a, b *html.Node) *html.Node {
	for n := a; n != nil; n = n.Parent {
		if isAncestor(n, b) {
			return n
		}
	}
	return nil
}

func focusableAncestor(n *html.Node) *html.Node {
	for a := n; a != nil; a = a.Parent {
		if a.Type == html.ElementNode && isFocusable(a) {
			return a
		}
	}
	return nil
}

// click fires click at n and runs its activation behavior unless a listener
// cancelled it.
func (d *document) click(n *html.Node, x, y float64) {
	if n.Type == html.ElementNode && isDisabled(n) {
		return
	}
	ev := d.newEvent("MouseEvent", "click", d.mouseInit(x, y, 0, 0, 1))
	if !d.dispatch(n, ev) || d.dead {
		return
	}
	d.activate(n)
}

// activate runs the default action of the nearest activatable element at or
// above n.
func (d *document) activate(n *html.Node) {
	for a := n; a != nil; a = a.Parent {
		if a.Type != html.ElementNode {
			continue
		}
		switch a.DataAtom {
		case atom.Input:
			switch inputType(a) {
			case "checkbox":
				d.setChecked(a, !d.isChecked(a))
				d.fireChange(a)
			case "radio":
				if !d.isChecked(a) {
					d.setChecked(a, true)
					d.fireChange(a)
				}
			case "submit", "image":
				if form := d.ownerForm(a); form != nil {
					d.submitForm(form, a)
				}
			case "reset":
				if form := d.ownerForm(a); form != nil {
					d.resetForm(form)
				}
			}
			return
		case atom.Button:
			form := d.ownerForm(a)
			if form == nil {
				return
			}
			switch inputType(a) {
			case "submit":
				d.submitForm(form, a)
			case "reset":
				d.resetForm(form)
			}
			return
		case atom.A, atom.Area:
			if href, ok := getAttr(a, "href"); ok {
				d.followLink(a, href)
			}
			return
		case atom.Label:
			if ctl := d.labelControl(a); ctl != nil && ctl != n && !isAncestor(ctl, n) {
				d.click(ctl, 0, 0)
			}
			return
		case atom.Select, atom.Textarea:
			return
		}
	}
}

func (d *document) fireChange(n *html.Node) {
	d.dispatch(n, d.newEvent("Event", "input", map[string]interface{}{"bubbles": true}))
	d.dispatch(n, d.newEvent("Event", "change", map[string]interface{}{"bubbles": true}))
}

// followLink navigates for an activated anchor. target=_blank asks the
// embedder for a new view.
func (d *document) followLink(a *html.Node, href string) {
	if _, err := d.resolve(href); err != nil && !strings.HasPrefix(strings.TrimSpace(href), "#") {
		return
	}
	if target, _ := getAttr(a, "target"); strings.EqualFold(target, "_blank") {
		d.openWindow(d.vm.ToValue(href))
		return
	}
	d.assignLocation(href, false)
}

// --- focus ---

func isFocusable(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if isDisabled(n) {
		return false
	}
	switch n.DataAtom {
	case atom.Input:
		return inputType(n) != "hidden"
	case atom.Select, atom.Textarea, atom.Button:
		return true
	case atom.A, atom.Area:
		if hasAttr(n, "href") {
			return true
		}
	}
	if hasAttr(n, "tabindex") {
		return true
	}
	if v, ok := getAttr(n, "contenteditable"); ok && v != "false" {
		return true
	}
	return false
}

// setFocus moves focus to n, or clears it for nil, firing blur, focusout,
// focus and focusin. Leaving a text control whose value changed fires change.
func (d *document) setFocus(n *html.Node) {
	if n == d.focus {
		return
	}
	if old := d.focus; old != nil {
		d.commitChange(old)
		d.focus = nil
		d.dispatch(old, d.newEvent("FocusEvent", "blur", nil))
		d.dispatch(old, d.newEvent("FocusEvent", "focusout", map[string]interface{}{"bubbles": true}))
	}
	if n != nil && !d.dead && isAncestor(d.root, n) {
		d.focus = n
		d.focusValue = d.valueOf(n)
		d.dispatch(n, d.newEvent("FocusEvent", "focus", nil))
		d.dispatch(n, d.newEvent("FocusEvent", "focusin", map[string]interface{}{"bubbles": true}))
	}
	d.view.markDirty()
}

// commitChange fires change when a text control's value differs from the
// value it had when it gained focus.
func (d *document) commitChange(n *html.Node) {
	if !isTextControl(n) {
		return
	}
	if v := d.valueOf(n); v != d.focusValue {
		d.focusValue = v
		d.dispatch(n, d.newEvent("Event", "change", map[string]interface{}{"bubbles": true}))
	}
}

// moveFocus advances focus in document order, wrapping at the end.
func (d *document) moveFocus(backward bool) {
	lr := d.ensureLayout()
	var order []*html.Node
	walkElements(d.root, func(n *html.Node) {
		if _, laidOut := lr.rects[n]; laidOut && isFocusable(n) {
			if v, ok := getAttr(n, "tabindex"); ok && strings.HasPrefix(strings.TrimSpace(v), "-") {
				return
			}
			order = append(order, n)
		}
	})
	if len(order) == 0 {
		return
	}
	idx := -1
	for i, n := range order {
		if n == d.focus {
			idx = i
		}
	}
	switch {
	case backward && idx <= 0:
		idx = len(order) - 1
	case backward:
		idx--
	default:
		idx = (idx + 1) % len(order)
	}
	d.setFocus(order[idx])
	d.scrollIntoView(order[idx], "nearest")
}

// --- pointer motion ---

func (d *document) mouseMove(x, y float64) {
	target := d.hitTest(x+d.scrollX, y+d.scrollY)
	if target == nil {
		return
	}
	if target != d.hover {
		if prev := d.hover; prev != nil && isAncestor(d.root, prev) {
			d.dispatch(prev, d.newEvent("MouseEvent", "mouseout", d.mouseInit(x, y, 0, 0, 0)))
		}
		d.hover = target
		d.dispatch(target, d.newEvent("MouseEvent", "mouseover", d.mouseInit(x, y, 0, 0, 0)))
	}
	d.dispatch(target, d.newEvent("MouseEvent", "mousemove", d.mouseInit(x, y, 0, 0, 0)))
}

func (d *document) wheel(e renderer.WheelEvent) {
	target := d.hitTest(e.X+d.scrollX, e.Y+d.scrollY)
	init := d.mouseInit(e.X, e.Y, 0, 0, 0)
	init["deltaX"] = -e.DX
	init["deltaY"] = -e.DY
	init["deltaMode"] = 0
	if !d.dispatch(target, d.newEvent("WheelEvent", "wheel", init)) || d.dead {
		return
	}
	d.scrollTo(d.scrollX-e.DX, d.scrollY-e.DY)
}

// --- keyboard ---

var keyCodes = map[renderer.NamedKey]int{
	renderer.KeyEnter:      13,
	renderer.KeyTab:        9,
	renderer.KeyEscape:     27,
	renderer.KeyBackspace:  8,
	renderer.KeyDelete:     46,
	renderer.KeyArrowLeft:  37,
	renderer.KeyArrowUp:    38,
	renderer.KeyArrowRight: 39,
	renderer.KeyArrowDown:  40,
	renderer.KeyHome:       36,
	renderer.KeyEnd:        35,
	renderer.KeyPageUp:     33,
	renderer.KeyPageDown:   34,
}

// keyCode returns the legacy keyCode and the KeyboardEvent.code of k.
func keyCode(k renderer.Key) (int, string) {
	if k.Named != renderer.KeyCharacter {
		return keyCodes[k.Named], k.String()
	}
	r, _ := utf8.DecodeRuneInString(k.Char)
	switch {
	case r == ' ':
		return 32, "Space"
	case r >= 'a' && r <= 'z':
		return int(r - 32), "Key" + string(r-32)
	case r >= 'A' && r <= 'Z':
		return int(r), "Key" + string(r)
	case r >= '0' && r <= '9':
		return int(r), "Digit" + string(r)
	}
	return int(r), ""
}

func (d *document) key(e renderer.KeyboardEvent) {
	target := d.focus
	if target == nil {
		target = d.body()
	}
	if target == nil {
		target = d.documentElement()
	}
	if target == nil {
		return
	}
	code, codeName := keyCode(e.Key)
	init := map[string]interface{}{
		"key":        e.Key.String(),
		"code":       codeName,
		"keyCode":    code,
		"which":      code,
		"bubbles":    true,
		"cancelable": true,
		"view":       d.vm.GlobalObject(),
	}
	if e.State == renderer.KeyUp {
		d.dispatch(target, d.newEvent("KeyboardEvent", "keyup", init))
		return
	}
	if !d.dispatch(target, d.newEvent("KeyboardEvent", "keydown", init)) || d.dead {
		return
	}

	switch e.Key.Named {
	case renderer.KeyCharacter:
		if e.Key.Char == "" {
			return
		}
		init["charCode"] = code
		if !d.dispatch(target, d.newEvent("KeyboardEvent", "keypress", init)) || d.dead {
			return
		}
		if isTextControl(target) {
			d.insertText(target, e.Key.Char)
		} else if e.Key.Char == " " {
			switch {
			case target.DataAtom == atom.Button || target.DataAtom == atom.Input && !isTextControl(target):
				d.click(target, 0, 0)
			case target == d.body():
				d.scrollTo(d.scrollX, d.scrollY+float64(d.view.surface.height)*0.875)
			}
		}
	case renderer.KeyEnter:
		init["charCode"] = 13
		if !d.dispatch(target, d.newEvent("KeyboardEvent", "keypress", init)) || d.dead {
			return
		}
		d.activateEnter(target)
	case renderer.KeyBackspace:
		if isTextControl(target) {
			d.deleteBackward(target)
		}
	case renderer.KeyTab:
		d.moveFocus(false)
	case renderer.KeyEscape:
	default:
		if !isTextControl(target) {
			d.scrollByKey(e.Key.Named)
		}
	}
}

func (d *document) scrollByKey(k renderer.NamedKey) {
	page := float64(d.view.surface.height) * 0.875
	x, y := d.scrollX, d.scrollY
	switch k {
	case renderer.KeyArrowDown:
		y += lineScroll
	case renderer.KeyArrowUp:
		y -= lineScroll
	case renderer.KeyArrowRight:
		x += lineScroll
	case renderer.KeyArrowLeft:
		x -= lineScroll
	case renderer.KeyPageDown:
		y += page
	case renderer.KeyPageUp:
		y -= page
	case renderer.KeyHome:
		y = 0
	case renderer.KeyEnd:
		y = d.ensureLayout().height
	default:
		return
	}
	d.scrollTo(x, y)
}

func (d *document) editable(n *html.Node) bool {
	return isTextControl(n) && !hasAttr(n, "readonly") && !isDisabled(n)
}

func (d *document) insertText(n *html.Node, s string) {
	if !d.editable(n) {
		return
	}
	v := d.valueOf(n) + s
	if attr, ok := getAttr(n, "maxlength"); ok {
		if limit, err := strconv.Atoi(strings.TrimSpace(attr)); err == nil && limit >= 0 && utf8.RuneCountInString(v) > limit {
			return
		}
	}
	st := d.control(n)
	st.value, st.dirty = v, true
	d.invalidate()
	d.dispatch(n, d.newEvent("InputEvent", "input", map[string]interface{}{
		"bubbles": true, "data": s, "inputType": "insertText",
	}))
}

func (d *document) deleteBackward(n *html.Node) {
	if !d.editable(n) {
		return
	}
	v := d.valueOf(n)
	if v == "" {
		return
	}
	_, size := utf8.DecodeLastRuneInString(v)
	st := d.control(n)
	st.value, st.dirty = v[:len(v)-size], true
	d.invalidate()
	d.dispatch(n, d.newEvent("InputEvent", "input", map[string]interface{}{
		"bubbles": true, "inputType": "deleteContentBackward",
	}))
}

// activateEnter runs the Enter key default: a newline in a textarea,
// activation for buttons and links, implicit submission for other inputs.
func (d *document) activateEnter(n *html.Node) {
	switch {
	case n.DataAtom == atom.Textarea:
		d.insertText(n, "\n")
	case n.DataAtom == atom.Button, n.DataAtom == atom.A && hasAttr(n, "href"):
		d.click(n, 0, 0)
	case n.DataAtom == atom.Input:
		switch inputType(n) {
		case "submit", "button", "reset", "image", "checkbox", "radio":
			d.click(n, 0, 0)
			return
		}
		d.commitChange(n)
		form := d.ownerForm(n)
		if form == nil || d.dead {
			return
		}
		if btn := d.defaultButton(form); btn != nil {
			d.click(btn, 0, 0)
			return
		}
		d.submitForm(form, nil)
	}
}

func (d *document) defaultButton(form *html.Node) *html.Node {
	for _, n := range d.formControls(form) {
		switch {
		case n.DataAtom == atom.Button && inputType(n) == "submit",
			n.DataAtom == atom.Input && (inputType(n) == "submit" || inputType(n) == "image"):
			return n
		}
	}
	return nil
}
