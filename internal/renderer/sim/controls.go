package sim

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dop251/goja"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// controlState is the live state of a form control that is not reflected
// in its attributes.
type controlState struct {
	value      string
	dirty      bool
	checked    bool
	checkedSet bool
	selected   int
	selectSet  bool
	files      goja.Value
}

func (d *document) control(n *html.Node) *controlState {
	st, ok := d.controls[n]
	if !ok {
		st = &controlState{}
		d.controls[n] = st
	}
	return st
}

func inputType(n *html.Node) string {
	t, _ := getAttr(n, "type")
	t = strings.ToLower(strings.TrimSpace(t))
	switch n.DataAtom {
	case atom.Button:
		if t == "reset" || t == "button" {
			return t
		}
		return "submit"
	case atom.Input:
		switch t {
		case "", "datetime":
			return "text"
		}
		return t
	}
	return t
}

func isTextControl(n *html.Node) bool {
	if n == nil {
		return false
	}
	switch n.DataAtom {
	case atom.Textarea:
		return true
	case atom.Input:
		switch inputType(n) {
		case "text", "search", "email", "url", "tel", "password", "number", "date", "time",
			"datetime-local", "month", "week", "color":
			return true
		}
	}
	return false
}

func isFormControl(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Input, atom.Button, atom.Select, atom.Textarea, atom.Fieldset, atom.Output, atom.Object:
		return true
	}
	return false
}

func isDisabled(n *html.Node) bool {
	if !isFormControl(n) && n.DataAtom != atom.Option {
		return false
	}
	for a := n; a != nil; a = a.Parent {
		if a.Type == html.ElementNode && hasAttr(a, "disabled") && (a == n || a.DataAtom == atom.Fieldset || a.DataAtom == atom.Select) {
			return true
		}
	}
	return false
}

func buttonLabel(n *html.Node) string {
	if v, ok := getAttr(n, "value"); ok {
		return v
	}
	switch inputType(n) {
	case "reset":
		return "Reset"
	case "submit":
		return "Submit"
	}
	return ""
}

func options(sel *html.Node) []*html.Node {
	var out []*html.Node
	walkElements(sel, func(n *html.Node) {
		if n.DataAtom == atom.Option {
			out = append(out, n)
		}
	})
	return out
}

func optionLabel(opt *html.Node) string {
	if v, ok := getAttr(opt, "label"); ok && v != "" {
		return v
	}
	return strings.Join(strings.Fields(textContent(opt)), " ")
}

func optionValue(opt *html.Node) string {
	if v, ok := getAttr(opt, "value"); ok {
		return v
	}
	return strings.Join(strings.Fields(textContent(opt)), " ")
}

func ownerSelect(opt *html.Node) *html.Node {
	for a := opt.Parent; a != nil; a = a.Parent {
		if a.DataAtom == atom.Select {
			return a
		}
	}
	return nil
}

// ownerForm is the form a control submits with: its form attribute, or the
// nearest ancestor form.
func (d *document) ownerForm(n *html.Node) *html.Node {
	if id, ok := getAttr(n, "form"); ok && id != "" {
		return findFirst(d.root, func(f *html.Node) bool {
			fid, _ := getAttr(f, "id")
			return f.DataAtom == atom.Form && fid == id
		})
	}
	for a := n.Parent; a != nil; a = a.Parent {
		if a.DataAtom == atom.Form {
			return a
		}
	}
	return nil
}

func (d *document) formControls(form *html.Node) []*html.Node {
	var out []*html.Node
	walkElements(d.root, func(n *html.Node) {
		if n == form || !isFormControl(n) {
			return
		}
		if d.ownerForm(n) == form {
			out = append(out, n)
		}
	})
	return out
}

func (d *document) valueOf(n *html.Node) string {
	switch n.DataAtom {
	case atom.Input:
		switch inputType(n) {
		case "checkbox", "radio":
			if v, ok := getAttr(n, "value"); ok {
				return v
			}
			return "on"
		case "file":
			return d.fileValue(n)
		}
		if st, ok := d.controls[n]; ok && st.dirty {
			return st.value
		}
		v, _ := getAttr(n, "value")
		return v
	case atom.Textarea:
		if st, ok := d.controls[n]; ok && st.dirty {
			return st.value
		}
		return strings.TrimPrefix(textContent(n), "\n")
	case atom.Select:
		if opt := d.selectedOption(n); opt != nil {
			return optionValue(opt)
		}
		return ""
	case atom.Option:
		return optionValue(n)
	}
	v, _ := getAttr(n, "value")
	return v
}

func (d *document) setValue(n *html.Node, v string) {
	switch n.DataAtom {
	case atom.Input, atom.Textarea:
		if n.DataAtom == atom.Input {
			switch inputType(n) {
			case "checkbox", "radio", "submit", "button", "reset", "hidden", "image":
				setAttr(n, "value", v)
				d.invalidate()
				return
			case "file":
				if v == "" {
					d.control(n).files = nil
				}
				return
			}
		}
		st := d.control(n)
		st.value, st.dirty = v, true
		if n == d.focus {
			d.focusValue = v
		}
	case atom.Select:
		idx := -1
		for i, opt := range options(n) {
			if optionValue(opt) == v {
				idx = i
				break
			}
		}
		d.selectIndex(n, idx)
	default:
		setAttr(n, "value", v)
	}
	d.invalidate()
}

// fileValue mirrors the browser's fake path for the first chosen file.
func (d *document) fileValue(n *html.Node) string {
	st, ok := d.controls[n]
	if !ok || st.files == nil {
		return ""
	}
	obj, ok := st.files.(*goja.Object)
	if !ok || obj.Get("length").ToInteger() == 0 {
		return ""
	}
	first, ok := obj.Get("0").(*goja.Object)
	if !ok {
		return ""
	}
	return `C:\fakepath\` + first.Get("name").String()
}

func (d *document) isChecked(n *html.Node) bool {
	if st, ok := d.controls[n]; ok && st.checkedSet {
		return st.checked
	}
	return hasAttr(n, "checked")
}

// setChecked updates a checkbox or radio. Checking a radio unchecks the rest
// of its group.
func (d *document) setChecked(n *html.Node, on bool) {
	st := d.control(n)
	st.checked, st.checkedSet = on, true
	if on && inputType(n) == "radio" {
		name, _ := getAttr(n, "name")
		form := d.ownerForm(n)
		walkElements(d.root, func(o *html.Node) {
			if o == n || o.DataAtom != atom.Input || inputType(o) != "radio" {
				return
			}
			oname, _ := getAttr(o, "name")
			if name != "" && oname == name && d.ownerForm(o) == form {
				ost := d.control(o)
				ost.checked, ost.checkedSet = false, true
			}
		})
	}
	d.invalidate()
}

func (d *document) selectedIndex(sel *html.Node) int {
	opts := options(sel)
	if st, ok := d.controls[sel]; ok && st.selectSet {
		if st.selected < len(opts) {
			return st.selected
		}
		return -1
	}
	for i, opt := range opts {
		if hasAttr(opt, "selected") {
			return i
		}
	}
	if len(opts) > 0 && !hasAttr(sel, "multiple") {
		return 0
	}
	return -1
}

func (d *document) selectIndex(sel *html.Node, idx int) {
	st := d.control(sel)
	st.selected, st.selectSet = idx, true
	d.invalidate()
}

func (d *document) selectedOption(sel *html.Node) *html.Node {
	idx := d.selectedIndex(sel)
	opts := options(sel)
	if idx < 0 || idx >= len(opts) {
		return nil
	}
	return opts[idx]
}

// installControls adds the form-control members to the element prototype.
func (d *document) installControls() {
	p := d.elementProto
	vm := d.vm

	d.accessor(p, "value", func(n *html.Node) goja.Value {
		switch n.DataAtom {
		case atom.Input, atom.Textarea, atom.Select, atom.Option, atom.Button, atom.Output, atom.Li:
			if n.DataAtom == atom.Li {
				v, _ := getAttr(n, "value")
				i, _ := strconv.Atoi(v)
				return vm.ToValue(i)
			}
			return d.str(d.valueOf(n))
		}
		return goja.Undefined()
	}, func(n *html.Node, v goja.Value) {
		s := ""
		if !goja.IsNull(v) && !goja.IsUndefined(v) {
			s = v.String()
		}
		d.setValue(n, s)
	})
	d.accessor(p, "defaultValue", func(n *html.Node) goja.Value {
		if n.DataAtom == atom.Textarea {
			return d.str(textContent(n))
		}
		v, _ := getAttr(n, "value")
		return d.str(v)
	}, func(n *html.Node, v goja.Value) {
		if n.DataAtom == atom.Textarea {
			setText(n, v.String())
		} else {
			setAttr(n, "value", v.String())
		}
		d.invalidate()
	})
	d.accessor(p, "checked", func(n *html.Node) goja.Value {
		if n.DataAtom != atom.Input {
			return goja.Undefined()
		}
		return vm.ToValue(d.isChecked(n))
	}, func(n *html.Node, v goja.Value) {
		if n.DataAtom == atom.Input {
			d.setChecked(n, v.ToBoolean())
		}
	})
	d.accessor(p, "defaultChecked", func(n *html.Node) goja.Value {
		return vm.ToValue(hasAttr(n, "checked"))
	}, func(n *html.Node, v goja.Value) {
		if v.ToBoolean() {
			setAttr(n, "checked", "")
		} else {
			removeAttr(n, "checked")
		}
		d.invalidate()
	})
	d.accessor(p, "type", func(n *html.Node) goja.Value {
		switch n.DataAtom {
		case atom.Input, atom.Button:
			return d.str(inputType(n))
		case atom.Select:
			if hasAttr(n, "multiple") {
				return d.str("select-multiple")
			}
			return d.str("select-one")
		case atom.Textarea:
			return d.str("textarea")
		}
		t, _ := getAttr(n, "type")
		return d.str(t)
	}, func(n *html.Node, v goja.Value) {
		setAttr(n, "type", v.String())
		d.invalidate()
	})

	d.accessor(p, "options", func(n *html.Node) goja.Value {
		if n.DataAtom != atom.Select {
			return goja.Undefined()
		}
		return d.nodeList(options(n))
	}, nil)
	d.accessor(p, "selectedOptions", func(n *html.Node) goja.Value {
		if n.DataAtom != atom.Select {
			return goja.Undefined()
		}
		var out []*html.Node
		if opt := d.selectedOption(n); opt != nil {
			out = append(out, opt)
		}
		return d.nodeList(out)
	}, nil)
	d.accessor(p, "selectedIndex", func(n *html.Node) goja.Value {
		if n.DataAtom != atom.Select {
			return goja.Undefined()
		}
		return vm.ToValue(d.selectedIndex(n))
	}, func(n *html.Node, v goja.Value) {
		if n.DataAtom == atom.Select {
			d.selectIndex(n, int(v.ToInteger()))
		}
	})
	d.accessor(p, "selected", func(n *html.Node) goja.Value {
		if n.DataAtom != atom.Option {
			return goja.Undefined()
		}
		sel := ownerSelect(n)
		return vm.ToValue(sel != nil && d.selectedOption(sel) == n)
	}, func(n *html.Node, v goja.Value) {
		sel := ownerSelect(n)
		if n.DataAtom != atom.Option || sel == nil {
			return
		}
		for i, opt := range options(sel) {
			if opt == n {
				if v.ToBoolean() {
					d.selectIndex(sel, i)
				} else if d.selectedIndex(sel) == i {
					d.selectIndex(sel, -1)
				}
				return
			}
		}
	})
	d.accessor(p, "defaultSelected", func(n *html.Node) goja.Value {
		return vm.ToValue(hasAttr(n, "selected"))
	}, nil)
	d.accessor(p, "index", func(n *html.Node) goja.Value {
		if sel := ownerSelect(n); sel != nil && n.DataAtom == atom.Option {
			for i, opt := range options(sel) {
				if opt == n {
					return vm.ToValue(i)
				}
			}
		}
		return goja.Undefined()
	}, nil)
	d.accessor(p, "text", func(n *html.Node) goja.Value {
		if n.DataAtom == atom.Option {
			return d.str(optionLabel(n))
		}
		return d.str(textContent(n))
	}, func(n *html.Node, v goja.Value) {
		setText(n, v.String())
		d.invalidate()
	})
	d.accessor(p, "label", func(n *html.Node) goja.Value {
		if n.DataAtom == atom.Option {
			return d.str(optionLabel(n))
		}
		v, _ := getAttr(n, "label")
		return d.str(v)
	}, nil)

	d.accessor(p, "files", func(n *html.Node) goja.Value {
		if n.DataAtom != atom.Input || inputType(n) != "file" {
			return goja.Undefined()
		}
		st := d.control(n)
		if st.files == nil {
			mk, _ := goja.AssertFunction(vm.Get("__pd_fileList"))
			list, err := mk(goja.Undefined(), vm.NewArray())
			if err != nil {
				return goja.Null()
			}
			st.files = list
		}
		return st.files
	}, func(n *html.Node, v goja.Value) {
		if n.DataAtom == atom.Input && inputType(n) == "file" {
			d.control(n).files = v
			d.invalidate()
		}
	})

	d.accessor(p, "form", func(n *html.Node) goja.Value {
		if !isFormControl(n) && n.DataAtom != atom.Label && n.DataAtom != atom.Option {
			return goja.Undefined()
		}
		return d.wrap(d.ownerForm(n))
	}, nil)
	d.accessor(p, "elements", func(n *html.Node) goja.Value {
		if n.DataAtom != atom.Form {
			return goja.Undefined()
		}
		return d.nodeList(d.formControls(n))
	}, nil)
	d.accessor(p, "control", func(n *html.Node) goja.Value {
		if n.DataAtom != atom.Label {
			return goja.Undefined()
		}
		return d.wrap(d.labelControl(n))
	}, nil)

	d.method(p, "submit", func(n *html.Node, _ goja.FunctionCall) goja.Value {
		if n.DataAtom == atom.Form {
			d.navigateForm(n, nil)
		}
		return goja.Undefined()
	})
	d.method(p, "requestSubmit", func(n *html.Node, call goja.FunctionCall) goja.Value {
		if n.DataAtom == atom.Form {
			d.submitForm(n, d.argNode(call, 0))
		}
		return goja.Undefined()
	})
	d.method(p, "reset", func(n *html.Node, _ goja.FunctionCall) goja.Value {
		if n.DataAtom == atom.Form {
			d.resetForm(n)
		}
		return goja.Undefined()
	})
	noop := func(*html.Node, goja.FunctionCall) goja.Value { return goja.Undefined() }
	d.method(p, "select", noop)
	d.method(p, "setSelectionRange", noop)
	d.method(p, "setCustomValidity", noop)
	valid := func(*html.Node, goja.FunctionCall) goja.Value { return vm.ToValue(true) }
	d.method(p, "checkValidity", valid)
	d.method(p, "reportValidity", valid)
}

// labelControl is the control a label activates: its for target, or the
// first labelable descendant.
func (d *document) labelControl(label *html.Node) *html.Node {
	if id, ok := getAttr(label, "for"); ok {
		return findFirst(d.root, func(n *html.Node) bool {
			nid, _ := getAttr(n, "id")
			return nid == id && isFormControl(n)
		})
	}
	var found *html.Node
	walkElements(label, func(n *html.Node) {
		if found == nil && n != label && isFormControl(n) && !(n.DataAtom == atom.Input && inputType(n) == "hidden") {
			found = n
		}
	})
	return found
}

// --- forms ---

// submitForm fires submit and, unless it is cancelled, navigates with the
// form data.
func (d *document) submitForm(form, submitter *html.Node) {
	ev := d.newEvent("SubmitEvent", "submit", map[string]interface{}{"bubbles": true, "cancelable": true})
	if submitter != nil {
		_ = ev.Set("submitter", d.wrap(submitter))
	}
	if !d.dispatch(form, ev) || d.dead {
		return
	}
	d.navigateForm(form, submitter)
}

// navigateForm submits without firing events.
func (d *document) navigateForm(form, submitter *html.Node) {
	action, _ := getAttr(form, "action")
	method, _ := getAttr(form, "method")
	if submitter != nil {
		if v, ok := getAttr(submitter, "formaction"); ok {
			action = v
		}
		if v, ok := getAttr(submitter, "formmethod"); ok {
			method = v
		}
	}
	if strings.TrimSpace(action) == "" {
		action = d.url.String()
	}
	u, err := d.resolve(action)
	if err != nil {
		return
	}
	data := d.formData(form, submitter).Encode()
	req := getRequest(u)
	switch strings.ToLower(method) {
	case "post":
		req = request{method: http.MethodPost, url: u, body: data, contentType: "application/x-www-form-urlencoded"}
	case "dialog":
		return
	default:
		next := *u
		next.RawQuery, next.Fragment, next.RawFragment = data, "", ""
		req.url = &next
	}
	if strings.EqualFold(u.Scheme, "javascript") {
		d.assignLocation(action, false)
		return
	}
	v := d.view
	v.r.post(func() {
		if v.doc == d && !d.dead {
			v.load(req, navPush)
		}
	})
}

// formData collects the successful controls of form.
func (d *document) formData(form, submitter *html.Node) url.Values {
	values := url.Values{}
	for _, n := range d.formControls(form) {
		name, ok := getAttr(n, "name")
		if !ok || name == "" || isDisabled(n) {
			continue
		}
		switch n.DataAtom {
		case atom.Input:
			switch inputType(n) {
			case "submit", "image", "button", "reset":
				if n == submitter {
					values.Add(name, d.valueOf(n))
				}
			case "checkbox", "radio":
				if d.isChecked(n) {
					values.Add(name, d.valueOf(n))
				}
			case "file":
				values.Add(name, strings.TrimPrefix(d.fileValue(n), `C:\fakepath\`))
			default:
				values.Add(name, d.valueOf(n))
			}
		case atom.Button:
			if n == submitter {
				values.Add(name, d.valueOf(n))
			}
		case atom.Select:
			if opt := d.selectedOption(n); opt != nil {
				values.Add(name, optionValue(opt))
			}
		case atom.Textarea:
			values.Add(name, d.valueOf(n))
		}
	}
	return values
}

func (d *document) resetForm(form *html.Node) {
	ev := d.newEvent("Event", "reset", map[string]interface{}{"bubbles": true, "cancelable": true})
	if !d.dispatch(form, ev) {
		return
	}
	for _, n := range d.formControls(form) {
		delete(d.controls, n)
	}
	d.invalidate()
}
