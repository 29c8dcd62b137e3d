package sim

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/xkilldash9x/pagedriver/internal/renderer"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// minInterval keeps a zero-delay setInterval from spinning the loop.
const minInterval = 4 * time.Millisecond

type jsTimer struct {
	timer    *time.Timer
	fn       goja.Value
	src      string
	args     []goja.Value
	interval time.Duration
	repeat   bool
}

type frameRequest struct {
	id int64
	fn goja.Value
}

// installWindow populates the global object.
func (d *document) installWindow() {
	vm := d.vm
	g := vm.GlobalObject()
	for _, alias := range []string{"window", "self", "top", "parent", "frames"} {
		_ = g.Set(alias, g)
	}
	_ = g.Set("document", d.wrap(d.root))
	_ = g.Set("name", "")
	_ = g.Set("opener", goja.Null())
	_ = g.Set("closed", false)
	_ = g.Set("devicePixelRatio", 1)

	d.global(g, "innerWidth", func() goja.Value { return vm.ToValue(d.view.surface.width) })
	d.global(g, "innerHeight", func() goja.Value { return vm.ToValue(d.view.surface.height) })
	d.global(g, "outerWidth", func() goja.Value { return vm.ToValue(d.view.surface.width) })
	d.global(g, "outerHeight", func() goja.Value { return vm.ToValue(d.view.surface.height) })
	d.global(g, "scrollX", func() goja.Value { return vm.ToValue(d.scrollX) })
	d.global(g, "scrollY", func() goja.Value { return vm.ToValue(d.scrollY) })
	d.global(g, "pageXOffset", func() goja.Value { return vm.ToValue(d.scrollX) })
	d.global(g, "pageYOffset", func() goja.Value { return vm.ToValue(d.scrollY) })

	location := d.locationObject()
	_ = g.DefineAccessorProperty("location",
		vm.ToValue(func(goja.FunctionCall) goja.Value { return location }),
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			d.assignLocation(call.Argument(0).String(), false)
			return goja.Undefined()
		}), goja.FLAG_FALSE, goja.FLAG_TRUE)
	_ = g.Set("history", d.historyObject())
	_ = g.Set("navigator", d.navigatorObject())
	_ = g.Set("screen", d.screenObject())
	_ = g.Set("console", d.consoleObject())

	performance := vm.NewObject()
	_ = performance.Set("now", func(goja.FunctionCall) goja.Value { return vm.ToValue(d.now()) })
	_ = performance.Set("timeOrigin", float64(d.created.UnixNano())/1e6)
	_ = g.Set("performance", performance)

	_ = g.Set("setTimeout", func(call goja.FunctionCall) goja.Value { return d.setTimer(call, false) })
	_ = g.Set("setInterval", func(call goja.FunctionCall) goja.Value { return d.setTimer(call, true) })
	_ = g.Set("clearTimeout", func(call goja.FunctionCall) goja.Value { d.clearTimer(call.Argument(0)); return goja.Undefined() })
	_ = g.Set("clearInterval", func(call goja.FunctionCall) goja.Value { d.clearTimer(call.Argument(0)); return goja.Undefined() })
	_ = g.Set("requestAnimationFrame", func(call goja.FunctionCall) goja.Value {
		d.frameSeq++
		d.frames = append(d.frames, frameRequest{id: d.frameSeq, fn: call.Argument(0)})
		return vm.ToValue(d.frameSeq)
	})
	_ = g.Set("cancelAnimationFrame", func(call goja.FunctionCall) goja.Value {
		id := call.Argument(0).ToInteger()
		for i, f := range d.frames {
			if f.id == id {
				d.frames = append(d.frames[:i:i], d.frames[i+1:]...)
				break
			}
		}
		return goja.Undefined()
	})

	_ = g.Set("alert", func(call goja.FunctionCall) goja.Value {
		d.showDialog(renderer.DialogAlert, messageArg(call.Argument(0)))
		return goja.Undefined()
	})
	_ = g.Set("confirm", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(d.showDialog(renderer.DialogConfirm, messageArg(call.Argument(0))))
	})
	_ = g.Set("prompt", func(call goja.FunctionCall) goja.Value {
		if !d.showDialog(renderer.DialogPrompt, messageArg(call.Argument(0))) {
			return goja.Null()
		}
		return vm.ToValue(messageArg(call.Argument(1)))
	})
	_ = g.Set("open", func(call goja.FunctionCall) goja.Value { return d.openWindow(call.Argument(0)) })
	_ = g.Set("close", func(goja.FunctionCall) goja.Value {
		v := d.view
		v.r.post(func() {
			if v.doc == d {
				v.Close()
			}
		})
		return goja.Undefined()
	})
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	_ = g.Set("focus", noop)
	_ = g.Set("blur", noop)
	_ = g.Set("print", noop)
	_ = g.Set("stop", noop)

	_ = g.Set("scrollTo", func(call goja.FunctionCall) goja.Value {
		x, y := scrollArgs(call, d.scrollX, d.scrollY, false)
		d.scrollTo(x, y)
		return goja.Undefined()
	})
	_ = g.Set("scroll", g.Get("scrollTo"))
	_ = g.Set("scrollBy", func(call goja.FunctionCall) goja.Value {
		dx, dy := scrollArgs(call, 0, 0, true)
		d.scrollTo(d.scrollX+dx, d.scrollY+dy)
		return goja.Undefined()
	})

	_ = g.Set("addEventListener", func(call goja.FunctionCall) goja.Value {
		d.addListener(windowTarget{}, call.Argument(0).String(), call.Argument(1), call.Argument(2))
		return goja.Undefined()
	})
	_ = g.Set("removeEventListener", func(call goja.FunctionCall) goja.Value {
		d.removeListener(windowTarget{}, call.Argument(0).String(), call.Argument(1), call.Argument(2))
		return goja.Undefined()
	})
	_ = g.Set("dispatchEvent", func(call goja.FunctionCall) goja.Value {
		ev, ok := call.Argument(0).(*goja.Object)
		if !ok {
			panic(vm.NewTypeError("parameter 1 is not of type 'Event'"))
		}
		return vm.ToValue(d.dispatchPath([]any{windowTarget{}}, ev))
	})

	_ = g.Set("btoa", func(call goja.FunctionCall) goja.Value {
		s := call.Argument(0).String()
		buf := make([]byte, 0, len(s))
		for _, r := range s {
			if r > 0xff {
				d.throwDOM("InvalidCharacterError", "The string to be encoded contains characters outside of the Latin1 range.")
			}
			buf = append(buf, byte(r))
		}
		return vm.ToValue(base64.StdEncoding.EncodeToString(buf))
	})
	_ = g.Set("atob", func(call goja.FunctionCall) goja.Value {
		s := strings.Map(dropSpace, call.Argument(0).String())
		data, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
			if err != nil {
				d.throwDOM("InvalidCharacterError", "The string to be decoded is not correctly encoded.")
			}
		}
		runes := make([]rune, len(data))
		for i, b := range data {
			runes[i] = rune(b)
		}
		return vm.ToValue(string(runes))
	})

	_ = g.Set("getComputedStyle", func(call goja.FunctionCall) goja.Value {
		n := d.unwrap(call.Argument(0))
		if n == nil || n.Type != html.ElementNode {
			panic(vm.NewTypeError("parameter 1 is not of type 'Element'"))
		}
		return d.computedStyleObject(n)
	})
	_ = g.Set("matchMedia", func(call goja.FunctionCall) goja.Value {
		mql := vm.NewObject()
		_ = mql.Set("media", call.Argument(0).String())
		_ = mql.Set("matches", false)
		_ = mql.Set("addListener", noop)
		_ = mql.Set("removeListener", noop)
		_ = mql.Set("addEventListener", noop)
		_ = mql.Set("removeEventListener", noop)
		return mql
	})

	_ = g.Set("__pd_fetch", func(call goja.FunctionCall) goja.Value {
		d.startFetch(call.Argument(0).String(), call.Argument(1).String(), call.Argument(2).String(),
			call.Argument(3).String(), call.Argument(4), call.Argument(5))
		return goja.Undefined()
	})
	_ = g.Set("__pd_parseURL", func(call goja.FunctionCall) goja.Value {
		return d.parseURLObject(call.Argument(0).String(), call.Argument(1).String())
	})
}

// global defines a read-only accessor on the global object.
func (d *document) global(g *goja.Object, name string, get func() goja.Value) {
	_ = g.DefineAccessorProperty(name, d.vm.ToValue(func(goja.FunctionCall) goja.Value { return get() }),
		nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
}

// now is milliseconds since the document was created.
func (d *document) now() float64 {
	return float64(time.Since(d.created).Microseconds()) / 1000
}

func messageArg(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return ""
	}
	return v.String()
}

// --- timers ---

func (d *document) setTimer(call goja.FunctionCall, repeat bool) goja.Value {
	t := &jsTimer{repeat: repeat}
	fn := call.Argument(0)
	if _, ok := goja.AssertFunction(fn); ok {
		t.fn = fn
	} else {
		t.src = fn.String()
	}
	ms := call.Argument(1).ToFloat()
	if math.IsNaN(ms) || ms < 0 {
		ms = 0
	}
	t.interval = time.Duration(ms * float64(time.Millisecond))
	if repeat && t.interval < minInterval {
		t.interval = minInterval
	}
	if len(call.Arguments) > 2 {
		t.args = append([]goja.Value(nil), call.Arguments[2:]...)
	}
	d.timerSeq++
	id := d.timerSeq
	d.timers[id] = t
	d.armTimer(id, t)
	return d.vm.ToValue(id)
}

func (d *document) armTimer(id int64, t *jsTimer) {
	r := d.view.r
	t.timer = time.AfterFunc(t.interval, func() {
		r.post(func() { d.fireTimer(id) })
	})
}

func (d *document) fireTimer(id int64) {
	t, ok := d.timers[id]
	if !ok || d.dead {
		return
	}
	if t.repeat {
		d.armTimer(id, t)
	} else {
		delete(d.timers, id)
	}
	var err error
	if t.fn != nil {
		_, err = d.call(t.fn, goja.Undefined(), t.args...)
	} else {
		_, err = d.run("<timer>", t.src)
	}
	if err != nil {
		d.reportError(err)
	}
}

func (d *document) clearTimer(v goja.Value) {
	id := v.ToInteger()
	if t, ok := d.timers[id]; ok {
		t.timer.Stop()
		delete(d.timers, id)
	}
}

// runAnimationFrames runs the callbacks queued before this pump.
func (d *document) runAnimationFrames() {
	if d.dead || len(d.frames) == 0 {
		return
	}
	frames := d.frames
	d.frames = nil
	ts := d.vm.ToValue(d.now())
	for _, f := range frames {
		if d.dead {
			return
		}
		if _, err := d.call(f.fn, goja.Undefined(), ts); err != nil {
			d.reportError(err)
		}
	}
}

// --- dialogs and popups ---

// showDialog raises a modal dialog and reports whether it was confirmed.
func (d *document) showDialog(kind renderer.DialogKind, msg string) bool {
	dlg := &dialog{kind: kind, message: msg}
	d.view.delegate.ShowDialog(d.view, dlg)
	return dlg.confirmed
}

func (d *document) openWindow(ref goja.Value) goja.Value {
	target := &url.URL{Scheme: "about", Opaque: "blank"}
	if raw := messageArg(ref); raw != "" {
		u, err := d.resolve(raw)
		if err != nil {
			d.throwDOM("SyntaxError", fmt.Sprintf("Unable to open a window with invalid URL '%s'.", raw))
		}
		target = u
	}
	req := &newViewRequest{r: d.view.r, url: target}
	d.view.delegate.RequestCreateNew(d.view, req)
	if req.built == nil {
		return goja.Null()
	}
	return d.windowProxy(req.built)
}

// windowProxy is the handle window.open returns for a popup.
func (d *document) windowProxy(wv renderer.WebView) goja.Value {
	vm := d.vm
	proxy := vm.NewObject()
	_ = proxy.DefineAccessorProperty("closed", vm.ToValue(func(goja.FunctionCall) goja.Value {
		if sv, ok := wv.(*webView); ok {
			return vm.ToValue(sv.closed)
		}
		return vm.ToValue(false)
	}), nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
	_ = proxy.Set("close", func(goja.FunctionCall) goja.Value {
		d.view.r.post(wv.Close)
		return goja.Undefined()
	})
	_ = proxy.Set("focus", func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	loc := vm.NewObject()
	_ = loc.DefineAccessorProperty("href", vm.ToValue(func(goja.FunctionCall) goja.Value {
		if u, ok := wv.URL(); ok {
			return vm.ToValue(u)
		}
		return vm.ToValue("about:blank")
	}), nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
	_ = proxy.Set("location", loc)
	return proxy
}

// --- location and history ---

func (d *document) locationObject() *goja.Object {
	vm := d.vm
	loc := vm.NewObject()
	part := func(name string, get func(u *url.URL) string, set func(v string)) {
		var setter goja.Value
		if set != nil {
			setter = vm.ToValue(func(call goja.FunctionCall) goja.Value {
				set(call.Argument(0).String())
				return goja.Undefined()
			})
		}
		_ = loc.DefineAccessorProperty(name, vm.ToValue(func(goja.FunctionCall) goja.Value {
			return vm.ToValue(get(d.url))
		}), setter, goja.FLAG_TRUE, goja.FLAG_TRUE)
	}
	part("href", func(u *url.URL) string { return u.String() }, func(v string) { d.assignLocation(v, false) })
	part("protocol", func(u *url.URL) string { return u.Scheme + ":" }, nil)
	part("host", func(u *url.URL) string { return u.Host }, nil)
	part("hostname", func(u *url.URL) string { return u.Hostname() }, nil)
	part("port", func(u *url.URL) string { return u.Port() }, nil)
	part("origin", origin, nil)
	part("pathname", func(u *url.URL) string {
		if u.Opaque != "" {
			return u.Opaque
		}
		return u.EscapedPath()
	}, nil)
	part("search", func(u *url.URL) string {
		if u.RawQuery == "" {
			return ""
		}
		return "?" + u.RawQuery
	}, func(v string) {
		next := *d.url
		next.RawQuery = strings.TrimPrefix(v, "?")
		d.assignLocation(next.String(), false)
	})
	part("hash", func(u *url.URL) string {
		if u.Fragment == "" {
			return ""
		}
		return "#" + u.EscapedFragment()
	}, func(v string) {
		next := *d.url
		next.Fragment = strings.TrimPrefix(v, "#")
		next.RawFragment = ""
		d.assignLocation(next.String(), false)
	})
	_ = loc.Set("assign", func(call goja.FunctionCall) goja.Value {
		d.assignLocation(call.Argument(0).String(), false)
		return goja.Undefined()
	})
	_ = loc.Set("replace", func(call goja.FunctionCall) goja.Value {
		d.assignLocation(call.Argument(0).String(), true)
		return goja.Undefined()
	})
	_ = loc.Set("reload", func(goja.FunctionCall) goja.Value {
		v := d.view
		v.r.post(func() {
			if v.doc == d {
				v.Reload()
			}
		})
		return goja.Undefined()
	})
	_ = loc.Set("toString", func(goja.FunctionCall) goja.Value { return vm.ToValue(d.url.String()) })
	return loc
}

func origin(u *url.URL) string {
	switch u.Scheme {
	case "http", "https":
		return u.Scheme + "://" + u.Host
	}
	return "null"
}

// assignLocation navigates the view away from this document. Fragment-only
// changes stay on the document and fire hashchange.
func (d *document) assignLocation(ref string, replace bool) {
	trimmed := strings.TrimSpace(ref)
	if strings.HasPrefix(strings.ToLower(trimmed), "javascript:") {
		src, err := url.PathUnescape(trimmed[len("javascript:"):])
		if err != nil {
			src = trimmed[len("javascript:"):]
		}
		d.view.r.post(func() {
			if _, err := d.run("<javascript-url>", src); err != nil {
				d.reportError(err)
			}
		})
		return
	}
	u, err := d.resolve(ref)
	if err != nil {
		d.throwDOM("SyntaxError", fmt.Sprintf("'%s' is not a valid URL.", ref))
	}
	v := d.view
	if u.Fragment != "" && sameDocument(u, d.url) {
		d.url = u
		if len(v.history) > 0 {
			if replace {
				v.history[v.index] = u
			} else {
				v.history = append(v.history[:v.index+1], u)
				v.index++
			}
		}
		if el := d.anchorTarget(u.Fragment); el != nil {
			d.scrollIntoView(el, "start")
		}
		v.r.post(func() { d.dispatchWindowEvent("hashchange") })
		return
	}
	kind := navPush
	if replace {
		kind = navReplace
	}
	v.r.post(func() {
		if v.doc == d && !d.dead {
			v.navigate(u, kind)
		}
	})
}

// anchorTarget finds the element a fragment points at: an id, then a named
// anchor.
func (d *document) anchorTarget(frag string) *html.Node {
	if frag == "" {
		return nil
	}
	if el := findFirst(d.root, func(n *html.Node) bool {
		id, ok := getAttr(n, "id")
		return ok && id == frag
	}); el != nil {
		return el
	}
	return findFirst(d.root, func(n *html.Node) bool {
		name, ok := getAttr(n, "name")
		return ok && n.DataAtom == atom.A && name == frag
	})
}

func sameDocument(a, b *url.URL) bool {
	x, y := *a, *b
	x.Fragment, x.RawFragment = "", ""
	y.Fragment, y.RawFragment = "", ""
	return x.String() == y.String()
}

func (d *document) historyObject() *goja.Object {
	vm := d.vm
	v := d.view
	h := vm.NewObject()
	state := goja.Null()
	_ = h.DefineAccessorProperty("length", vm.ToValue(func(goja.FunctionCall) goja.Value {
		return vm.ToValue(len(v.history))
	}), nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
	_ = h.DefineAccessorProperty("state", vm.ToValue(func(goja.FunctionCall) goja.Value {
		return state
	}), nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
	_ = h.Set("back", func(goja.FunctionCall) goja.Value { v.GoBack(1); return goja.Undefined() })
	_ = h.Set("forward", func(goja.FunctionCall) goja.Value { v.GoForward(1); return goja.Undefined() })
	_ = h.Set("go", func(call goja.FunctionCall) goja.Value {
		delta := int(call.Argument(0).ToInteger())
		switch {
		case delta == 0:
			v.Reload()
		case delta < 0:
			v.GoBack(-delta)
		default:
			v.GoForward(delta)
		}
		return goja.Undefined()
	})
	update := func(call goja.FunctionCall, push bool) goja.Value {
		state = call.Argument(0)
		target := d.url
		if raw := messageArg(call.Argument(2)); raw != "" && !goja.IsNull(call.Argument(2)) {
			u, err := d.resolve(raw)
			if err != nil || origin(u) != origin(d.url) {
				d.throwDOM("SecurityError", fmt.Sprintf("A history state object with URL '%s' cannot be created in a document with origin '%s'.", raw, origin(d.url)))
			}
			target = u
		}
		d.url = target
		if len(v.history) == 0 {
			return goja.Undefined()
		}
		if push {
			v.history = append(v.history[:v.index+1], target)
			v.index++
		} else {
			v.history[v.index] = target
		}
		return goja.Undefined()
	}
	_ = h.Set("pushState", func(call goja.FunctionCall) goja.Value { return update(call, true) })
	_ = h.Set("replaceState", func(call goja.FunctionCall) goja.Value { return update(call, false) })
	return h
}

func (d *document) navigatorObject() *goja.Object {
	vm := d.vm
	nav := vm.NewObject()
	_ = nav.Set("userAgent", d.view.r.ua)
	_ = nav.Set("appName", "Netscape")
	_ = nav.Set("appCodeName", "Mozilla")
	_ = nav.Set("appVersion", strings.TrimPrefix(d.view.r.ua, "Mozilla/"))
	_ = nav.Set("product", "Gecko")
	_ = nav.Set("platform", "Linux x86_64")
	_ = nav.Set("vendor", "")
	_ = nav.Set("language", "en-US")
	_ = nav.Set("languages", vm.NewArray("en-US", "en"))
	_ = nav.Set("onLine", true)
	_ = nav.Set("cookieEnabled", true)
	_ = nav.Set("webdriver", false)
	_ = nav.Set("hardwareConcurrency", runtime.NumCPU())
	_ = nav.Set("maxTouchPoints", 0)
	return nav
}

func (d *document) screenObject() *goja.Object {
	vm := d.vm
	s := vm.NewObject()
	size := func(name string, get func() int) {
		_ = s.DefineAccessorProperty(name, vm.ToValue(func(goja.FunctionCall) goja.Value {
			return vm.ToValue(get())
		}), nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
	}
	width := func() int { return d.view.surface.width }
	height := func() int { return d.view.surface.height }
	size("width", width)
	size("height", height)
	size("availWidth", width)
	size("availHeight", height)
	_ = s.Set("colorDepth", 24)
	_ = s.Set("pixelDepth", 24)
	return s
}

// --- console ---

func (d *document) consoleObject() *goja.Object {
	c := d.vm.NewObject()
	for _, name := range []string{"log", "info", "warn", "error", "debug", "trace", "dir", "table"} {
		level := renderer.ParseConsoleLevel(name)
		_ = c.Set(name, func(call goja.FunctionCall) goja.Value {
			d.console(level, d.formatArgs(call.Arguments))
			return goja.Undefined()
		})
	}
	_ = c.Set("assert", func(call goja.FunctionCall) goja.Value {
		if call.Argument(0).ToBoolean() {
			return goja.Undefined()
		}
		msg := "Assertion failed"
		if len(call.Arguments) > 1 {
			msg += ": " + d.formatArgs(call.Arguments[1:])
		}
		d.console(renderer.ConsoleError, msg)
		return goja.Undefined()
	})
	counts := make(map[string]int)
	_ = c.Set("count", func(call goja.FunctionCall) goja.Value {
		label := "default"
		if a := call.Argument(0); !goja.IsUndefined(a) {
			label = a.String()
		}
		counts[label]++
		d.console(renderer.ConsoleInfo, fmt.Sprintf("%s: %d", label, counts[label]))
		return goja.Undefined()
	})
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	for _, name := range []string{"group", "groupCollapsed", "groupEnd", "time", "timeEnd", "clear"} {
		_ = c.Set(name, noop)
	}
	return c
}

func (d *document) formatArgs(args []goja.Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = d.formatValue(a)
	}
	return strings.Join(parts, " ")
}

// formatValue renders a console argument: strings verbatim, nodes by tag and
// plain objects as JSON where possible.
func (d *document) formatValue(v goja.Value) string {
	obj, ok := v.(*goja.Object)
	if !ok {
		return messageArg(v)
	}
	if n := d.nodes[obj]; n != nil {
		if n.Type == html.ElementNode {
			return "<" + n.Data + ">"
		}
		return d.nodeName(n)
	}
	if _, isFn := goja.AssertFunction(obj); isFn || obj.ClassName() == "Error" {
		return obj.String()
	}
	stringify, _ := goja.AssertFunction(d.vm.Get("JSON").ToObject(d.vm).Get("stringify"))
	if out, err := stringify(goja.Undefined(), obj); err == nil && !goja.IsUndefined(out) {
		return out.String()
	}
	return obj.String()
}

// --- fetch ---

// startFetch backs the script-side fetch(). The response is delivered on a
// later pump through resolve or reject.
func (d *document) startFetch(raw, method, body, contentType string, resolve, reject goja.Value) {
	v := d.view
	fail := func(msg string) {
		v.r.post(func() {
			if !d.dead {
				if _, err := d.call(reject, goja.Undefined(), d.vm.ToValue(msg)); err != nil {
					d.reportError(err)
				}
			}
		})
	}
	u, err := d.resolve(raw)
	if err != nil {
		fail("Failed to parse URL from " + raw)
		return
	}
	load := &resourceLoad{req: renderer.ResourceRequest{Method: method, URL: u.String()}}
	v.delegate.LoadWebResource(v, load)
	if load.cancelled {
		fail("Failed to fetch")
		return
	}
	deliver := func(res *resource, err error) {
		if d.dead {
			return
		}
		if err != nil {
			if _, cerr := d.call(reject, goja.Undefined(), d.vm.ToValue("Failed to fetch")); cerr != nil {
				d.reportError(cerr)
			}
			return
		}
		headers := d.vm.NewObject()
		for k, vals := range res.header {
			_ = headers.Set(strings.ToLower(k), strings.Join(vals, ", "))
		}
		if res.contentType != "" {
			_ = headers.Set("content-type", res.contentType)
		}
		r := d.vm.NewObject()
		_ = r.Set("status", res.status)
		_ = r.Set("statusText", res.statusText)
		_ = r.Set("url", res.url.String())
		_ = r.Set("headers", headers)
		_ = r.Set("body", string(res.body))
		if _, cerr := d.call(resolve, goja.Undefined(), r); cerr != nil {
			d.reportError(cerr)
		}
	}
	loader := v.r.loader
	go func() {
		res, err := loader.fetch(context.Background(), request{method: method, url: u, body: body, contentType: contentType})
		v.r.post(func() { deliver(res, err) })
	}()
}

func (d *document) parseURLObject(raw, base string) goja.Value {
	var (
		u   *url.URL
		err error
	)
	if base != "" {
		var b *url.URL
		if b, err = url.Parse(base); err == nil {
			u, err = b.Parse(raw)
		}
	} else {
		u, err = url.Parse(raw)
	}
	if err != nil || u.Scheme == "" {
		panic(d.vm.NewTypeError(fmt.Sprintf("Failed to construct 'URL': Invalid URL '%s'", raw)))
	}
	obj := d.vm.NewObject()
	search, hash := "", ""
	if u.RawQuery != "" {
		search = "?" + u.RawQuery
	}
	if u.Fragment != "" {
		hash = "#" + u.EscapedFragment()
	}
	path := u.EscapedPath()
	if u.Opaque != "" {
		path = u.Opaque
	}
	_ = obj.Set("href", u.String())
	_ = obj.Set("protocol", u.Scheme+":")
	_ = obj.Set("host", u.Host)
	_ = obj.Set("hostname", u.Hostname())
	_ = obj.Set("port", u.Port())
	_ = obj.Set("origin", origin(u))
	_ = obj.Set("pathname", path)
	_ = obj.Set("search", search)
	_ = obj.Set("hash", hash)
	return obj
}

// --- scrolling ---

func scrollArgs(call goja.FunctionCall, x, y float64, relative bool) (float64, float64) {
	if opts, ok := call.Argument(0).(*goja.Object); ok && len(call.Arguments) == 1 {
		if v := opts.Get("left"); v != nil && !goja.IsUndefined(v) {
			x = v.ToFloat()
		}
		if v := opts.Get("top"); v != nil && !goja.IsUndefined(v) {
			y = v.ToFloat()
		}
		return x, y
	}
	if len(call.Arguments) >= 2 {
		return call.Argument(0).ToFloat(), call.Argument(1).ToFloat()
	}
	if relative {
		return 0, 0
	}
	return x, y
}

// scrollTo moves the viewport, clamped to the document, and queues a scroll
// event when the position changed.
func (d *document) scrollTo(x, y float64) {
	lr := d.ensureLayout()
	maxX := math.Max(0, lr.width-float64(d.view.surface.width))
	maxY := math.Max(0, lr.height-float64(d.view.surface.height))
	x = clampFloat(x, 0, maxX)
	y = clampFloat(y, 0, maxY)
	if x == d.scrollX && y == d.scrollY {
		return
	}
	d.scrollX, d.scrollY = x, y
	d.view.markDirty()
	d.view.r.post(func() {
		if !d.dead {
			d.dispatch(d.root, d.newEvent("Event", "scroll", map[string]interface{}{"bubbles": true}))
		}
	})
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
