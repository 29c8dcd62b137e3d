package sim

import (
	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

type eventPhase int

const (
	phaseCapture eventPhase = iota + 1
	phaseTarget
	phaseBubble
)

type listenerKey struct {
	target any
	typ    string
}

type listener struct {
	fn      goja.Value
	capture bool
	once    bool
	passive bool
}

// inlineHandler caches the compiled form of an on* attribute.
type inlineHandler struct {
	src string
	fn  goja.Value
}

func truthyProp(obj *goja.Object, key string) bool {
	v := obj.Get(key)
	return v != nil && v.ToBoolean()
}

func listenerOptions(v goja.Value) (capture, once, passive bool) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return false, false, false
	}
	if obj, ok := v.(*goja.Object); ok {
		return truthyProp(obj, "capture"), truthyProp(obj, "once"), truthyProp(obj, "passive")
	}
	return v.ToBoolean(), false, false
}

func isListener(fn goja.Value) bool {
	if fn == nil || goja.IsUndefined(fn) || goja.IsNull(fn) {
		return false
	}
	_, ok := fn.(*goja.Object)
	return ok
}

func (d *document) addListener(target any, typ string, fn, opts goja.Value) {
	if !isListener(fn) {
		return
	}
	capture, once, passive := listenerOptions(opts)
	key := listenerKey{target: target, typ: typ}
	for _, l := range d.listeners[key] {
		if l.capture == capture && l.fn.StrictEquals(fn) {
			return
		}
	}
	d.listeners[key] = append(d.listeners[key], &listener{fn: fn, capture: capture, once: once, passive: passive})
}

func (d *document) removeListener(target any, typ string, fn, opts goja.Value) {
	if !isListener(fn) {
		return
	}
	capture, _, _ := listenerOptions(opts)
	key := listenerKey{target: target, typ: typ}
	list := d.listeners[key]
	for i, l := range list {
		if l.capture == capture && l.fn.StrictEquals(fn) {
			d.listeners[key] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

func (d *document) dropListener(key listenerKey, target *listener) {
	list := d.listeners[key]
	for i, l := range list {
		if l == target {
			d.listeners[key] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// newEvent constructs a trusted event through the script-side constructor.
func (d *document) newEvent(ctor, typ string, init map[string]interface{}) *goja.Object {
	var initV goja.Value = goja.Undefined()
	if init != nil {
		initV = d.vm.ToValue(init)
	}
	obj, err := d.vm.New(d.vm.Get(ctor), d.vm.ToValue(typ), initV)
	if err != nil {
		d.logger.Warn("Failed to construct event", zap.String("constructor", ctor), zap.Error(err))
		obj = d.vm.NewObject()
		_ = obj.Set("type", typ)
	}
	_ = obj.Set("isTrusted", true)
	return obj
}

// dispatch fires ev at target through the capture, target and bubble phases.
// It reports false when a listener cancelled the event.
func (d *document) dispatch(target *html.Node, ev *goja.Object) bool {
	if target == nil {
		return true
	}
	var path []any
	for n := target; n != nil; n = n.Parent {
		path = append(path, n)
	}
	if path[len(path)-1] == d.root {
		path = append(path, windowTarget{})
	}
	return d.dispatchPath(path, ev)
}

func (d *document) dispatchWindowEvent(typ string) {
	if d.dead {
		return
	}
	d.dispatchPath([]any{windowTarget{}}, d.newEvent("Event", typ, nil))
}

func (d *document) dispatchPath(path []any, ev *goja.Object) bool {
	if d.dead {
		return false
	}
	target := d.targetValue(path[0])
	_ = ev.Set("target", target)
	_ = ev.Set("srcElement", target)
	_ = ev.Set("_stop", false)
	_ = ev.Set("_stopNow", false)
	items := make([]interface{}, len(path))
	for i, t := range path {
		items[i] = d.targetValue(t)
	}
	_ = ev.Set("_path", d.vm.NewArray(items...))

	for i := len(path) - 1; i > 0 && !truthyProp(ev, "_stop"); i-- {
		d.invoke(path[i], ev, phaseCapture)
	}
	if !truthyProp(ev, "_stop") {
		d.invoke(path[0], ev, phaseTarget)
	}
	if truthyProp(ev, "bubbles") {
		for i := 1; i < len(path) && !truthyProp(ev, "_stop"); i++ {
			d.invoke(path[i], ev, phaseBubble)
		}
	}
	_ = ev.Set("currentTarget", goja.Null())
	_ = ev.Set("eventPhase", 0)
	return !truthyProp(ev, "defaultPrevented")
}

func (d *document) invoke(target any, ev *goja.Object, phase eventPhase) {
	typ := ev.Get("type").String()
	current := d.targetValue(target)
	_ = ev.Set("currentTarget", current)
	_ = ev.Set("eventPhase", int(phase))

	key := listenerKey{target: target, typ: typ}
	for _, l := range append([]*listener(nil), d.listeners[key]...) {
		if d.dead {
			return
		}
		if (phase == phaseCapture && !l.capture) || (phase == phaseBubble && l.capture) {
			continue
		}
		if l.once {
			d.dropListener(key, l)
		}
		_ = ev.Set("_passive", l.passive)
		fn, this := l.fn, current
		if _, ok := goja.AssertFunction(fn); !ok {
			obj := fn.(*goja.Object)
			fn, this = obj.Get("handleEvent"), obj
		}
		if _, err := d.call(fn, this, ev); err != nil {
			d.reportError(err)
		}
		_ = ev.Set("_passive", false)
		if truthyProp(ev, "_stopNow") {
			return
		}
	}

	if phase == phaseCapture {
		return
	}
	if fn, ok := d.handlerFor(target, typ); ok {
		res := d.callHandler(fn, current, ev)
		if res != nil && res.StrictEquals(d.vm.ToValue(false)) && truthyProp(ev, "cancelable") {
			_ = ev.Set("defaultPrevented", true)
		}
	}
}

func (d *document) targetValue(t any) goja.Value {
	if n, ok := t.(*html.Node); ok {
		return d.wrap(n)
	}
	return d.vm.GlobalObject()
}

func (d *document) callHandler(fn, this goja.Value, ev *goja.Object) goja.Value {
	res, err := d.call(fn, this, ev)
	if err != nil {
		d.reportError(err)
		return nil
	}
	return res
}

func (d *document) handlerFor(target any, typ string) (goja.Value, bool) {
	if n, ok := target.(*html.Node); ok {
		return d.nodeHandler(n, typ)
	}
	return d.globalHandler(typ)
}

func (d *document) globalHandler(typ string) (goja.Value, bool) {
	v := d.vm.GlobalObject().Get("on" + typ)
	if v == nil {
		return nil, false
	}
	if _, ok := goja.AssertFunction(v); !ok {
		return nil, false
	}
	return v, true
}

func (d *document) nodeHandler(n *html.Node, typ string) (goja.Value, bool) {
	if fn, ok := d.handlers[n][typ]; ok {
		return fn, true
	}
	return d.attributeHandler(n, typ)
}

func (d *document) setNodeHandler(n *html.Node, typ string, v goja.Value) {
	if _, ok := goja.AssertFunction(v); !ok {
		delete(d.handlers[n], typ)
		return
	}
	m := d.handlers[n]
	if m == nil {
		m = make(map[string]goja.Value)
		d.handlers[n] = m
	}
	m[typ] = v
}

// attributeHandler compiles an on* attribute into a function taking event.
func (d *document) attributeHandler(n *html.Node, typ string) (goja.Value, bool) {
	src, ok := getAttr(n, "on"+typ)
	if !ok {
		return nil, false
	}
	if h, ok := d.inline[n][typ]; ok && h.src == src {
		return h.fn, h.fn != nil
	}
	var fn goja.Value
	ctor, _ := goja.AssertFunction(d.vm.Get("Function"))
	compiled, err := ctor(goja.Undefined(), d.vm.ToValue("event"), d.vm.ToValue(src))
	if err != nil {
		d.reportError(toScriptError(err))
	} else {
		fn = compiled
	}
	m := d.inline[n]
	if m == nil {
		m = make(map[string]inlineHandler)
		d.inline[n] = m
	}
	m[typ] = inlineHandler{src: src, fn: fn}
	return fn, fn != nil
}

// prelude defines the script-side constructors the DOM bridge relies on.
const prelude = `(function (global) {
'use strict';
var protos = global.__pd_protos;
global.__pd_protos = undefined;

function illegal() { throw new TypeError('Illegal constructor'); }
function defineCtor(name, proto) {
  var C = function () { illegal(); };
  C.prototype = proto;
  Object.defineProperty(proto, 'constructor', { value: C, writable: true, configurable: true });
  global[name] = C;
  return C;
}
var Node = defineCtor('Node', protos.Node);
Node.ELEMENT_NODE = 1; Node.TEXT_NODE = 3; Node.COMMENT_NODE = 8;
Node.DOCUMENT_NODE = 9; Node.DOCUMENT_FRAGMENT_NODE = 11;
var Element = defineCtor('Element', protos.Element);
defineCtor('CharacterData', protos.Text);
global.Text = global.CharacterData;
global.Comment = global.CharacterData;
defineCtor('Document', protos.Document);
global.HTMLElement = Element;
global.HTMLDocument = global.Document;
global.EventTarget = Node;
function tagCtor(name, tag) {
  var C = function () { illegal(); };
  C.prototype = protos.Element;
  Object.defineProperty(C, Symbol.hasInstance, {
    value: function (v) { return v instanceof Element && v.localName === tag; }
  });
  global[name] = C;
}
tagCtor('HTMLInputElement', 'input');
tagCtor('HTMLButtonElement', 'button');
tagCtor('HTMLSelectElement', 'select');
tagCtor('HTMLOptionElement', 'option');
tagCtor('HTMLTextAreaElement', 'textarea');
tagCtor('HTMLAnchorElement', 'a');
tagCtor('HTMLFormElement', 'form');
tagCtor('HTMLDivElement', 'div');
tagCtor('HTMLImageElement', 'img');

function DOMException(message, name) {
  var e = new Error(message === undefined ? '' : String(message));
  Object.setPrototypeOf(e, DOMException.prototype);
  e.name = name === undefined ? 'Error' : String(name);
  return e;
}
DOMException.prototype = Object.create(Error.prototype, {
  constructor: { value: DOMException, writable: true, configurable: true }
});
global.DOMException = DOMException;

function Event(type, init) {
  if (arguments.length < 1) {
    throw new TypeError("Failed to construct 'Event': 1 argument required, but only 0 present.");
  }
  init = init || {};
  this.type = String(type);
  this.bubbles = !!init.bubbles;
  this.cancelable = !!init.cancelable;
  this.composed = !!init.composed;
  this.defaultPrevented = false;
  this.isTrusted = false;
  this.target = null;
  this.currentTarget = null;
  this.srcElement = null;
  this.eventPhase = 0;
  this.timeStamp = performance.now();
  this._stop = false;
  this._stopNow = false;
  this._passive = false;
}
Event.NONE = 0; Event.CAPTURING_PHASE = 1; Event.AT_TARGET = 2; Event.BUBBLING_PHASE = 3;
Event.prototype.preventDefault = function () {
  if (this.cancelable && !this._passive) { this.defaultPrevented = true; }
};
Event.prototype.stopPropagation = function () { this._stop = true; };
Event.prototype.stopImmediatePropagation = function () { this._stop = true; this._stopNow = true; };
Event.prototype.initEvent = function (type, bubbles, cancelable) {
  this.type = String(type); this.bubbles = !!bubbles; this.cancelable = !!cancelable;
};
Event.prototype.composedPath = function () { return this._path ? this._path.slice() : []; };
Object.defineProperty(Event.prototype, 'returnValue', {
  get: function () { return !this.defaultPrevented; },
  set: function (v) { if (!v) { this.preventDefault(); } }
});
Object.defineProperty(Event.prototype, 'cancelBubble', {
  get: function () { return this._stop; },
  set: function (v) { if (v) { this._stop = true; } }
});
global.Event = Event;

function subEvent(name, parent, fields) {
  var C = function (type, init) {
    parent.call(this, type, init);
    init = init || {};
    for (var k in fields) {
      this[k] = init[k] !== undefined ? init[k] : fields[k];
    }
  };
  C.prototype = Object.create(parent.prototype, {
    constructor: { value: C, writable: true, configurable: true }
  });
  global[name] = C;
  return C;
}
var mods = { ctrlKey: false, shiftKey: false, altKey: false, metaKey: false };
function extend(a, b) { var o = {}; var k; for (k in a) { o[k] = a[k]; } for (k in b) { o[k] = b[k]; } return o; }
var UIEvent = subEvent('UIEvent', Event, { view: null, detail: 0 });
var MouseEvent = subEvent('MouseEvent', UIEvent, extend(mods, {
  screenX: 0, screenY: 0, clientX: 0, clientY: 0, pageX: 0, pageY: 0,
  offsetX: 0, offsetY: 0, button: 0, buttons: 0, relatedTarget: null
}));
subEvent('PointerEvent', MouseEvent, { pointerId: 1, pointerType: 'mouse', isPrimary: true });
subEvent('WheelEvent', MouseEvent, { deltaX: 0, deltaY: 0, deltaZ: 0, deltaMode: 0 });
subEvent('KeyboardEvent', UIEvent, extend(mods, {
  key: '', code: '', location: 0, repeat: false, isComposing: false, keyCode: 0, charCode: 0, which: 0
}));
subEvent('InputEvent', UIEvent, { data: null, inputType: '', isComposing: false });
subEvent('FocusEvent', UIEvent, { relatedTarget: null });
subEvent('CustomEvent', Event, { detail: null });
subEvent('SubmitEvent', Event, { submitter: null });

function utf8(s) {
  var out = [];
  for (var i = 0; i < s.length; i++) {
    var c = s.charCodeAt(i);
    if (c >= 0xD800 && c < 0xDC00 && i + 1 < s.length) {
      var lo = s.charCodeAt(i + 1);
      if (lo >= 0xDC00 && lo < 0xE000) { c = 0x10000 + ((c - 0xD800) << 10) + (lo - 0xDC00); i++; }
    }
    if (c < 0x80) { out.push(c); }
    else if (c < 0x800) { out.push(0xC0 | (c >> 6), 0x80 | (c & 63)); }
    else if (c < 0x10000) { out.push(0xE0 | (c >> 12), 0x80 | ((c >> 6) & 63), 0x80 | (c & 63)); }
    else { out.push(0xF0 | (c >> 18), 0x80 | ((c >> 12) & 63), 0x80 | ((c >> 6) & 63), 0x80 | (c & 63)); }
  }
  return out;
}
function fromUTF8(bytes) {
  var esc = '';
  for (var i = 0; i < bytes.length; i++) {
    esc += '%' + (bytes[i] < 16 ? '0' : '') + bytes[i].toString(16);
  }
  try { return decodeURIComponent(esc); } catch (e) {
    var s = '';
    for (var j = 0; j < bytes.length; j++) { s += String.fromCharCode(bytes[j]); }
    return s;
  }
}

function Blob(parts, opts) {
  opts = opts || {};
  var out = [];
  (parts || []).forEach(function (p) {
    var b;
    if (p instanceof Blob) { b = p._bytes; }
    else if (p instanceof ArrayBuffer) { b = new Uint8Array(p); }
    else if (ArrayBuffer.isView(p)) { b = new Uint8Array(p.buffer, p.byteOffset, p.byteLength); }
    else { b = utf8(String(p)); }
    for (var i = 0; i < b.length; i++) { out.push(b[i]); }
  });
  Object.defineProperty(this, '_bytes', { value: new Uint8Array(out) });
  this.size = out.length;
  this.type = opts.type ? String(opts.type).toLowerCase() : '';
}
Blob.prototype.text = function () { return Promise.resolve(fromUTF8(this._bytes)); };
Blob.prototype.arrayBuffer = function () { return Promise.resolve(this._bytes.slice().buffer); };
Blob.prototype.slice = function (start, end, type) {
  return new Blob([this._bytes.slice(start || 0, end === undefined ? this.size : end)], { type: type || '' });
};
global.Blob = Blob;

function File(bits, name, opts) {
  opts = opts || {};
  Blob.call(this, bits, opts);
  this.name = String(name);
  this.lastModified = opts.lastModified !== undefined ? opts.lastModified : Date.now();
}
File.prototype = Object.create(Blob.prototype, {
  constructor: { value: File, writable: true, configurable: true }
});
global.File = File;

function fileList(files) {
  files.item = function (i) { return files[i] || null; };
  return files;
}
function DataTransfer() {
  var files = fileList([]);
  var data = {};
  this.files = files;
  this.dropEffect = 'none';
  this.effectAllowed = 'all';
  this.items = {
    add: function (value, type) {
      if (value instanceof File) {
        files.push(value);
        return { kind: 'file', type: value.type, getAsFile: function () { return value; } };
      }
      data[String(type)] = String(value);
      return { kind: 'string', type: String(type) };
    },
    remove: function (i) { files.splice(i, 1); },
    clear: function () { files.length = 0; }
  };
  Object.defineProperty(this.items, 'length', { get: function () { return files.length; } });
  Object.defineProperty(this, '_data', { value: data });
}
DataTransfer.prototype.getData = function (t) { return this._data[t] || ''; };
DataTransfer.prototype.setData = function (t, v) { this._data[t] = String(v); };
DataTransfer.prototype.clearData = function (t) {
  if (t === undefined) { for (var k in this._data) { delete this._data[k]; } } else { delete this._data[t]; }
};
Object.defineProperty(DataTransfer.prototype, 'types', {
  get: function () { return Object.keys(this._data).concat(this.files.length ? ['Files'] : []); }
});
global.DataTransfer = DataTransfer;
global.__pd_fileList = fileList;

function Headers(init) {
  Object.defineProperty(this, '_h', { value: {} });
  if (init) { for (var k in init) { this._h[k.toLowerCase()] = String(init[k]); } }
}
Headers.prototype.get = function (k) {
  k = String(k).toLowerCase();
  return Object.prototype.hasOwnProperty.call(this._h, k) ? this._h[k] : null;
};
Headers.prototype.has = function (k) { return Object.prototype.hasOwnProperty.call(this._h, String(k).toLowerCase()); };
Headers.prototype.set = function (k, v) { this._h[String(k).toLowerCase()] = String(v); };
Headers.prototype.forEach = function (fn, self) {
  for (var k in this._h) { fn.call(self, this._h[k], k, this); }
};
global.Headers = Headers;

function Response(r) {
  this.status = r.status;
  this.statusText = r.statusText;
  this.ok = r.status >= 200 && r.status < 300;
  this.url = r.url;
  this.type = 'basic';
  this.redirected = false;
  this.headers = new Headers(r.headers);
  this.bodyUsed = false;
  Object.defineProperty(this, '_body', { value: r.body });
}
Response.prototype.text = function () { this.bodyUsed = true; return Promise.resolve(this._body); };
Response.prototype.json = function () {
  var body = this._body;
  this.bodyUsed = true;
  return new Promise(function (resolve) { resolve(JSON.parse(body)); });
};
Response.prototype.blob = function () { this.bodyUsed = true; return Promise.resolve(new Blob([this._body])); };
global.Response = Response;

global.fetch = function (input, init) {
  init = init || {};
  var url = (typeof input === 'object' && input !== null && input.url) ? input.url : String(input);
  var method = init.method ? String(init.method).toUpperCase() : 'GET';
  var body = (init.body === undefined || init.body === null) ? '' : String(init.body);
  var type = body ? new Headers(init.headers).get('content-type') || 'text/plain;charset=UTF-8' : '';
  return new Promise(function (resolve, reject) {
    __pd_fetch(url, method, body, type,
      function (r) { resolve(new Response(r)); },
      function (msg) { reject(new TypeError(msg)); });
  });
};

function URL(href, base) {
  var p = __pd_parseURL(String(href), base === undefined ? '' : String(base));
  for (var k in p) { this[k] = p[k]; }
}
URL.prototype.toString = function () { return this.href; };
URL.prototype.toJSON = function () { return this.href; };
global.URL = URL;

function Storage() { Object.defineProperty(this, '_d', { value: {} }); }
Storage.prototype.getItem = function (k) {
  k = String(k);
  return Object.prototype.hasOwnProperty.call(this._d, k) ? this._d[k] : null;
};
Storage.prototype.setItem = function (k, v) { this._d[String(k)] = String(v); };
Storage.prototype.removeItem = function (k) { delete this._d[String(k)]; };
Storage.prototype.clear = function () { for (var k in this._d) { delete this._d[k]; } };
Storage.prototype.key = function (i) { var ks = Object.keys(this._d); return i < ks.length ? ks[i] : null; };
Object.defineProperty(Storage.prototype, 'length', { get: function () { return Object.keys(this._d).length; } });
global.Storage = Storage;
global.localStorage = new Storage();
global.sessionStorage = new Storage();

function MutationObserver(cb) { this._cb = cb; }
MutationObserver.prototype.observe = function () {};
MutationObserver.prototype.disconnect = function () {};
MutationObserver.prototype.takeRecords = function () { return []; };
global.MutationObserver = MutationObserver;

global.Image = function (w, h) {
  var img = document.createElement('img');
  if (w !== undefined) { img.setAttribute('width', String(w)); }
  if (h !== undefined) { img.setAttribute('height', String(h)); }
  return img;
};
global.queueMicrotask = function (fn) { Promise.resolve().then(fn); };
document.createEvent = function () { return new Event(''); };
})(this);
`
