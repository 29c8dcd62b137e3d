package sim

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// handlerEvents are the event names exposed as on* properties on nodes.
var handlerEvents = []string{
	"click", "dblclick", "contextmenu", "mousedown", "mouseup", "mousemove",
	"mouseover", "mouseout", "wheel", "keydown", "keyup", "keypress",
	"input", "change", "submit", "reset", "focus", "blur", "scroll",
	"load", "error",
}

// installDOM builds the node prototypes and exposes the document.
func (d *document) installDOM() {
	vm := d.vm
	d.nodeProto = vm.NewObject()
	d.elementProto = vm.NewObject()
	d.textProto = vm.NewObject()
	d.documentProto = vm.NewObject()
	_ = d.elementProto.SetPrototype(d.nodeProto)
	_ = d.textProto.SetPrototype(d.nodeProto)
	_ = d.documentProto.SetPrototype(d.nodeProto)

	d.installNode()
	d.installElement()
	d.installControls()
	d.installText()
	d.installDocument()

	protos := vm.NewObject()
	_ = protos.Set("Node", d.nodeProto)
	_ = protos.Set("Element", d.elementProto)
	_ = protos.Set("Text", d.textProto)
	_ = protos.Set("Document", d.documentProto)
	_ = vm.Set("__pd_protos", protos)
}

// wrap returns the unique script object for n, creating it on first use.
func (d *document) wrap(n *html.Node) goja.Value {
	if n == nil {
		return goja.Null()
	}
	if obj, ok := d.objects[n]; ok {
		return obj
	}
	obj := d.vm.NewObject()
	switch n.Type {
	case html.ElementNode:
		_ = obj.SetPrototype(d.elementProto)
	case html.DocumentNode:
		if n == d.root {
			_ = obj.SetPrototype(d.documentProto)
		} else {
			_ = obj.SetPrototype(d.nodeProto)
		}
	case html.TextNode, html.CommentNode:
		_ = obj.SetPrototype(d.textProto)
	default:
		_ = obj.SetPrototype(d.nodeProto)
	}
	d.objects[n] = obj
	d.nodes[obj] = n
	return obj
}

func (d *document) unwrap(v goja.Value) *html.Node {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	return d.nodes[obj]
}

// self resolves the receiver of a DOM method.
func (d *document) self(call goja.FunctionCall) *html.Node {
	n := d.unwrap(call.This)
	if n == nil {
		panic(d.vm.NewTypeError("Illegal invocation"))
	}
	return n
}

func (d *document) argNode(call goja.FunctionCall, i int) *html.Node {
	n := d.unwrap(call.Argument(i))
	if n == nil {
		panic(d.vm.NewTypeError(fmt.Sprintf("parameter %d is not of type 'Node'", i+1)))
	}
	return n
}

// throwDOM raises a DOMException with the given name.
func (d *document) throwDOM(name, msg string) {
	ctor := d.vm.Get("DOMException")
	if ctor != nil {
		if obj, err := d.vm.New(ctor, d.vm.ToValue(msg), d.vm.ToValue(name)); err == nil {
			panic(obj)
		}
	}
	panic(d.vm.NewTypeError(name + ": " + msg))
}

func (d *document) method(obj *goja.Object, name string, fn func(n *html.Node, call goja.FunctionCall) goja.Value) {
	_ = obj.Set(name, func(call goja.FunctionCall) goja.Value {
		return fn(d.self(call), call)
	})
}

func (d *document) accessor(obj *goja.Object, name string, get func(n *html.Node) goja.Value, set func(n *html.Node, v goja.Value)) {
	var getter, setter goja.Value
	if get != nil {
		getter = d.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			return get(d.self(call))
		})
	}
	if set != nil {
		setter = d.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			set(d.self(call), call.Argument(0))
			return goja.Undefined()
		})
	}
	if err := obj.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
		d.logger.Error("Failed to define DOM property", zap.String("property", name), zap.Error(err))
	}
}

func (d *document) str(s string) goja.Value { return d.vm.ToValue(s) }

func (d *document) nodeList(nodes []*html.Node) goja.Value {
	items := make([]interface{}, len(nodes))
	for i, n := range nodes {
		items[i] = d.wrap(n)
	}
	return d.vm.NewArray(items...)
}

// --- Node ---

func (d *document) installNode() {
	p := d.nodeProto
	d.accessor(p, "nodeType", func(n *html.Node) goja.Value { return d.vm.ToValue(d.nodeType(n)) }, nil)
	d.accessor(p, "nodeName", func(n *html.Node) goja.Value { return d.str(d.nodeName(n)) }, nil)
	d.accessor(p, "parentNode", func(n *html.Node) goja.Value { return d.wrap(n.Parent) }, nil)
	d.accessor(p, "parentElement", func(n *html.Node) goja.Value {
		if n.Parent != nil && n.Parent.Type == html.ElementNode {
			return d.wrap(n.Parent)
		}
		return goja.Null()
	}, nil)
	d.accessor(p, "childNodes", func(n *html.Node) goja.Value { return d.nodeList(childNodes(n, false)) }, nil)
	d.accessor(p, "firstChild", func(n *html.Node) goja.Value { return d.wrap(n.FirstChild) }, nil)
	d.accessor(p, "lastChild", func(n *html.Node) goja.Value { return d.wrap(n.LastChild) }, nil)
	d.accessor(p, "nextSibling", func(n *html.Node) goja.Value { return d.wrap(n.NextSibling) }, nil)
	d.accessor(p, "previousSibling", func(n *html.Node) goja.Value { return d.wrap(n.PrevSibling) }, nil)
	d.accessor(p, "ownerDocument", func(n *html.Node) goja.Value {
		if n == d.root {
			return goja.Null()
		}
		return d.wrap(d.root)
	}, nil)
	d.accessor(p, "isConnected", func(n *html.Node) goja.Value { return d.vm.ToValue(isAncestor(d.root, n)) }, nil)
	d.accessor(p, "nodeValue", func(n *html.Node) goja.Value {
		if n.Type == html.TextNode || n.Type == html.CommentNode {
			return d.str(n.Data)
		}
		return goja.Null()
	}, func(n *html.Node, v goja.Value) {
		if n.Type == html.TextNode || n.Type == html.CommentNode {
			n.Data = v.String()
			d.invalidate()
		}
	})
	d.accessor(p, "textContent", func(n *html.Node) goja.Value {
		if n == d.root {
			return goja.Null()
		}
		return d.str(textContent(n))
	}, func(n *html.Node, v goja.Value) {
		d.setTextContent(n, v)
	})

	d.method(p, "appendChild", func(n *html.Node, call goja.FunctionCall) goja.Value {
		d.insert(n, d.argNode(call, 0), nil)
		return call.Argument(0)
	})
	d.method(p, "insertBefore", func(n *html.Node, call goja.FunctionCall) goja.Value {
		child := d.argNode(call, 0)
		var ref *html.Node
		if r := call.Argument(1); !goja.IsNull(r) && !goja.IsUndefined(r) {
			ref = d.argNode(call, 1)
			if ref.Parent != n {
				d.throwDOM("NotFoundError", "The node before which the new node is to be inserted is not a child of this node.")
			}
		}
		d.insert(n, child, ref)
		return call.Argument(0)
	})
	d.method(p, "removeChild", func(n *html.Node, call goja.FunctionCall) goja.Value {
		child := d.argNode(call, 0)
		if child.Parent != n {
			d.throwDOM("NotFoundError", "The node to be removed is not a child of this node.")
		}
		d.remove(child)
		return call.Argument(0)
	})
	d.method(p, "replaceChild", func(n *html.Node, call goja.FunctionCall) goja.Value {
		repl, old := d.argNode(call, 0), d.argNode(call, 1)
		if old.Parent != n {
			d.throwDOM("NotFoundError", "The node to be replaced is not a child of this node.")
		}
		if repl != old {
			next := old.NextSibling
			d.remove(old)
			d.insert(n, repl, next)
		}
		return call.Argument(1)
	})
	d.method(p, "cloneNode", func(n *html.Node, call goja.FunctionCall) goja.Value {
		return d.wrap(cloneNode(n, call.Argument(0).ToBoolean()))
	})
	d.method(p, "contains", func(n *html.Node, call goja.FunctionCall) goja.Value {
		other := d.unwrap(call.Argument(0))
		return d.vm.ToValue(other != nil && isAncestor(n, other))
	})
	d.method(p, "hasChildNodes", func(n *html.Node, call goja.FunctionCall) goja.Value {
		return d.vm.ToValue(n.FirstChild != nil)
	})
	d.method(p, "addEventListener", func(n *html.Node, call goja.FunctionCall) goja.Value {
		d.addListener(n, call.Argument(0).String(), call.Argument(1), call.Argument(2))
		return goja.Undefined()
	})
	d.method(p, "removeEventListener", func(n *html.Node, call goja.FunctionCall) goja.Value {
		d.removeListener(n, call.Argument(0).String(), call.Argument(1), call.Argument(2))
		return goja.Undefined()
	})
	d.method(p, "dispatchEvent", func(n *html.Node, call goja.FunctionCall) goja.Value {
		ev, ok := call.Argument(0).(*goja.Object)
		if !ok {
			panic(d.vm.NewTypeError("parameter 1 is not of type 'Event'"))
		}
		return d.vm.ToValue(d.dispatch(n, ev))
	})

	for _, name := range handlerEvents {
		typ := name
		d.accessor(p, "on"+typ, func(n *html.Node) goja.Value {
			if fn, ok := d.nodeHandler(n, typ); ok {
				return fn
			}
			return goja.Null()
		}, func(n *html.Node, v goja.Value) {
			d.setNodeHandler(n, typ, v)
		})
	}
}

func (d *document) nodeType(n *html.Node) int {
	switch n.Type {
	case html.ElementNode:
		return 1
	case html.TextNode:
		return 3
	case html.CommentNode:
		return 8
	case html.DocumentNode:
		if n == d.root {
			return 9
		}
		return 11
	case html.DoctypeNode:
		return 10
	}
	return 0
}

func (d *document) nodeName(n *html.Node) string {
	switch n.Type {
	case html.ElementNode:
		return strings.ToUpper(n.Data)
	case html.TextNode:
		return "#text"
	case html.CommentNode:
		return "#comment"
	case html.DocumentNode:
		if n == d.root {
			return "#document"
		}
		return "#document-fragment"
	case html.DoctypeNode:
		return n.Data
	}
	return ""
}

func childNodes(n *html.Node, elementsOnly bool) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !elementsOnly || c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// insert moves child under parent before ref. Fragments insert their children.
func (d *document) insert(parent, child, ref *html.Node) {
	if isAncestor(child, parent) {
		d.throwDOM("HierarchyRequestError", "The new child element contains the parent.")
	}
	if child.Type == html.DocumentNode {
		if child == d.root {
			d.throwDOM("HierarchyRequestError", "Nodes of type '#document' may not be inserted.")
		}
		for _, c := range childNodes(child, false) {
			child.RemoveChild(c)
			parent.InsertBefore(c, ref)
		}
		d.invalidate()
		return
	}
	if child == ref {
		return
	}
	d.remove(child)
	parent.InsertBefore(child, ref)
	d.invalidate()
}

func (d *document) remove(n *html.Node) {
	if n.Parent == nil {
		return
	}
	if d.focus != nil && isAncestor(n, d.focus) {
		d.focus = nil
	}
	detach(n)
	d.invalidate()
}

func (d *document) setTextContent(n *html.Node, v goja.Value) {
	text := ""
	if !goja.IsNull(v) && !goja.IsUndefined(v) {
		text = v.String()
	}
	switch n.Type {
	case html.TextNode, html.CommentNode:
		n.Data = text
	case html.ElementNode:
		if n.DataAtom == atom.Textarea {
			d.control(n).value, d.control(n).dirty = text, false
		}
		setText(n, text)
	default:
		return
	}
	d.invalidate()
}

// --- Text ---

func (d *document) installText() {
	p := d.textProto
	d.accessor(p, "data", func(n *html.Node) goja.Value { return d.str(n.Data) },
		func(n *html.Node, v goja.Value) {
			n.Data = v.String()
			d.invalidate()
		})
	d.accessor(p, "length", func(n *html.Node) goja.Value { return d.vm.ToValue(len([]rune(n.Data))) }, nil)
	d.accessor(p, "wholeText", func(n *html.Node) goja.Value { return d.str(n.Data) }, nil)
	d.method(p, "remove", func(n *html.Node, call goja.FunctionCall) goja.Value {
		d.remove(n)
		return goja.Undefined()
	})
}

// --- Element ---

func (d *document) installElement() {
	p := d.elementProto
	d.accessor(p, "tagName", func(n *html.Node) goja.Value { return d.str(strings.ToUpper(n.Data)) }, nil)
	d.accessor(p, "localName", func(n *html.Node) goja.Value { return d.str(n.Data) }, nil)
	d.reflect(p, "id", "id")
	d.reflect(p, "className", "class")
	d.reflect(p, "title", "title")
	d.reflect(p, "lang", "lang")
	d.reflect(p, "name", "name")
	d.reflect(p, "placeholder", "placeholder")
	d.reflect(p, "alt", "alt")
	d.reflect(p, "rel", "rel")
	d.reflect(p, "target", "target")
	d.reflect(p, "method", "method")
	d.reflect(p, "htmlFor", "for")
	d.reflectBool(p, "hidden", "hidden")
	d.reflectBool(p, "disabled", "disabled")
	d.reflectBool(p, "required", "required")
	d.reflectBool(p, "readOnly", "readonly")
	d.reflectBool(p, "multiple", "multiple")
	d.reflectURL(p, "href", "href")
	d.reflectURL(p, "src", "src")
	d.reflectURL(p, "action", "action")

	d.accessor(p, "classList", func(n *html.Node) goja.Value { return d.classList(n) }, nil)
	d.accessor(p, "style", func(n *html.Node) goja.Value { return d.styleObject(n) },
		func(n *html.Node, v goja.Value) {
			setAttr(n, "style", v.String())
			d.invalidate()
		})
	d.accessor(p, "dataset", func(n *html.Node) goja.Value {
		return d.vm.NewDynamicObject(&datasetObject{d: d, n: n})
	}, nil)
	d.accessor(p, "attributes", func(n *html.Node) goja.Value {
		items := make([]interface{}, 0, len(n.Attr))
		for _, a := range n.Attr {
			attr := d.vm.NewObject()
			_ = attr.Set("name", a.Key)
			_ = attr.Set("value", a.Val)
			items = append(items, attr)
		}
		return d.vm.NewArray(items...)
	}, nil)

	d.method(p, "getAttribute", func(n *html.Node, call goja.FunctionCall) goja.Value {
		if v, ok := getAttr(n, strings.ToLower(call.Argument(0).String())); ok {
			return d.str(v)
		}
		return goja.Null()
	})
	d.method(p, "setAttribute", func(n *html.Node, call goja.FunctionCall) goja.Value {
		setAttr(n, strings.ToLower(call.Argument(0).String()), call.Argument(1).String())
		d.invalidate()
		return goja.Undefined()
	})
	d.method(p, "removeAttribute", func(n *html.Node, call goja.FunctionCall) goja.Value {
		if removeAttr(n, strings.ToLower(call.Argument(0).String())) {
			d.invalidate()
		}
		return goja.Undefined()
	})
	d.method(p, "hasAttribute", func(n *html.Node, call goja.FunctionCall) goja.Value {
		return d.vm.ToValue(hasAttr(n, strings.ToLower(call.Argument(0).String())))
	})
	d.method(p, "toggleAttribute", func(n *html.Node, call goja.FunctionCall) goja.Value {
		name := strings.ToLower(call.Argument(0).String())
		on := !hasAttr(n, name)
		if f := call.Argument(1); !goja.IsUndefined(f) {
			on = f.ToBoolean()
		}
		if on {
			if !hasAttr(n, name) {
				setAttr(n, name, "")
			}
		} else {
			removeAttr(n, name)
		}
		d.invalidate()
		return d.vm.ToValue(on)
	})
	d.method(p, "getAttributeNames", func(n *html.Node, call goja.FunctionCall) goja.Value {
		names := make([]interface{}, len(n.Attr))
		for i, a := range n.Attr {
			names[i] = a.Key
		}
		return d.vm.NewArray(names...)
	})

	d.accessor(p, "innerHTML", func(n *html.Node) goja.Value { return d.str(renderChildren(n)) },
		func(n *html.Node, v goja.Value) {
			nodes := d.parseFragment(n, v.String())
			removeChildren(n)
			for _, c := range nodes {
				n.AppendChild(c)
			}
			d.invalidate()
		})
	d.accessor(p, "outerHTML", func(n *html.Node) goja.Value { return d.str(renderNode(n)) },
		func(n *html.Node, v goja.Value) {
			parent := n.Parent
			if parent == nil {
				return
			}
			ctx := parent
			if ctx.Type != html.ElementNode {
				ctx = d.body()
			}
			for _, c := range d.parseFragment(ctx, v.String()) {
				parent.InsertBefore(c, n)
			}
			d.remove(n)
		})
	d.accessor(p, "innerText", func(n *html.Node) goja.Value { return d.str(textContent(n)) },
		func(n *html.Node, v goja.Value) { d.setTextContent(n, v) })
	d.accessor(p, "outerText", func(n *html.Node) goja.Value { return d.str(textContent(n)) }, nil)

	d.accessor(p, "children", func(n *html.Node) goja.Value { return d.nodeList(childNodes(n, true)) }, nil)
	d.accessor(p, "childElementCount", func(n *html.Node) goja.Value { return d.vm.ToValue(len(childNodes(n, true))) }, nil)
	d.accessor(p, "firstElementChild", func(n *html.Node) goja.Value {
		return d.wrap(siblingElement(n.FirstChild, true))
	}, nil)
	d.accessor(p, "lastElementChild", func(n *html.Node) goja.Value {
		return d.wrap(siblingElement(n.LastChild, false))
	}, nil)
	d.accessor(p, "nextElementSibling", func(n *html.Node) goja.Value {
		return d.wrap(siblingElement(n.NextSibling, true))
	}, nil)
	d.accessor(p, "previousElementSibling", func(n *html.Node) goja.Value {
		return d.wrap(siblingElement(n.PrevSibling, false))
	}, nil)

	d.method(p, "querySelector", func(n *html.Node, call goja.FunctionCall) goja.Value {
		return d.wrap(d.queryFirst(n, call.Argument(0).String()))
	})
	d.method(p, "querySelectorAll", func(n *html.Node, call goja.FunctionCall) goja.Value {
		return d.nodeList(d.queryAll(n, call.Argument(0).String()))
	})
	d.method(p, "getElementsByTagName", func(n *html.Node, call goja.FunctionCall) goja.Value {
		return d.nodeList(elementsByTag(n, call.Argument(0).String()))
	})
	d.method(p, "getElementsByClassName", func(n *html.Node, call goja.FunctionCall) goja.Value {
		return d.nodeList(elementsByClass(n, call.Argument(0).String()))
	})
	d.method(p, "matches", func(n *html.Node, call goja.FunctionCall) goja.Value {
		return d.vm.ToValue(d.compile(call.Argument(0).String()).Match(n))
	})
	d.method(p, "closest", func(n *html.Node, call goja.FunctionCall) goja.Value {
		sel := d.compile(call.Argument(0).String())
		for c := n; c != nil && c.Type == html.ElementNode; c = c.Parent {
			if sel.Match(c) {
				return d.wrap(c)
			}
		}
		return goja.Null()
	})

	d.method(p, "remove", func(n *html.Node, call goja.FunctionCall) goja.Value {
		d.remove(n)
		return goja.Undefined()
	})
	d.method(p, "append", func(n *html.Node, call goja.FunctionCall) goja.Value {
		for _, arg := range call.Arguments {
			d.insert(n, d.nodeOrText(arg), nil)
		}
		return goja.Undefined()
	})
	d.method(p, "prepend", func(n *html.Node, call goja.FunctionCall) goja.Value {
		first := n.FirstChild
		for _, arg := range call.Arguments {
			d.insert(n, d.nodeOrText(arg), first)
		}
		return goja.Undefined()
	})
	d.method(p, "replaceWith", func(n *html.Node, call goja.FunctionCall) goja.Value {
		parent := n.Parent
		if parent == nil {
			return goja.Undefined()
		}
		next := n.NextSibling
		d.remove(n)
		for _, arg := range call.Arguments {
			d.insert(parent, d.nodeOrText(arg), next)
		}
		return goja.Undefined()
	})
	d.method(p, "insertAdjacentHTML", func(n *html.Node, call goja.FunctionCall) goja.Value {
		d.insertAdjacent(n, call.Argument(0).String(), call.Argument(1).String())
		return goja.Undefined()
	})

	d.method(p, "click", func(n *html.Node, call goja.FunctionCall) goja.Value {
		d.click(n, 0, 0)
		return goja.Undefined()
	})
	d.method(p, "focus", func(n *html.Node, call goja.FunctionCall) goja.Value {
		if isFocusable(n) {
			d.setFocus(n)
		}
		return goja.Undefined()
	})
	d.method(p, "blur", func(n *html.Node, call goja.FunctionCall) goja.Value {
		if d.focus == n {
			d.setFocus(nil)
		}
		return goja.Undefined()
	})

	d.method(p, "getBoundingClientRect", func(n *html.Node, call goja.FunctionCall) goja.Value {
		r, _ := d.rectOf(n)
		return d.domRect(r.x-d.scrollX, r.y-d.scrollY, r.w, r.h)
	})
	d.method(p, "scrollIntoView", func(n *html.Node, call goja.FunctionCall) goja.Value {
		d.scrollIntoView(n, scrollBlock(call.Argument(0)))
		return goja.Undefined()
	})
	d.accessor(p, "offsetWidth", func(n *html.Node) goja.Value { r, _ := d.rectOf(n); return d.vm.ToValue(int(r.w)) }, nil)
	d.accessor(p, "offsetHeight", func(n *html.Node) goja.Value { r, _ := d.rectOf(n); return d.vm.ToValue(int(r.h)) }, nil)
	d.accessor(p, "offsetTop", func(n *html.Node) goja.Value { r, _ := d.rectOf(n); return d.vm.ToValue(int(r.y)) }, nil)
	d.accessor(p, "offsetLeft", func(n *html.Node) goja.Value { r, _ := d.rectOf(n); return d.vm.ToValue(int(r.x)) }, nil)
	d.accessor(p, "clientWidth", func(n *html.Node) goja.Value {
		if n == d.documentElement() {
			return d.vm.ToValue(d.view.surface.width)
		}
		r, _ := d.rectOf(n)
		return d.vm.ToValue(int(r.w))
	}, nil)
	d.accessor(p, "clientHeight", func(n *html.Node) goja.Value {
		if n == d.documentElement() {
			return d.vm.ToValue(d.view.surface.height)
		}
		r, _ := d.rectOf(n)
		return d.vm.ToValue(int(r.h))
	}, nil)
	d.accessor(p, "scrollHeight", func(n *html.Node) goja.Value { return d.vm.ToValue(d.scrollHeight(n)) }, nil)
	d.accessor(p, "scrollWidth", func(n *html.Node) goja.Value { return d.vm.ToValue(d.scrollWidth(n)) }, nil)
	d.accessor(p, "scrollTop", func(n *html.Node) goja.Value {
		if n == d.documentElement() || n == d.body() {
			return d.vm.ToValue(d.scrollY)
		}
		return d.vm.ToValue(0)
	}, func(n *html.Node, v goja.Value) {
		if n == d.documentElement() || n == d.body() {
			d.scrollTo(d.scrollX, v.ToFloat())
		}
	})
}

// reflect exposes a string attribute as a property.
func (d *document) reflect(p *goja.Object, prop, attr string) {
	d.accessor(p, prop, func(n *html.Node) goja.Value {
		v, _ := getAttr(n, attr)
		return d.str(v)
	}, func(n *html.Node, v goja.Value) {
		setAttr(n, attr, v.String())
		d.invalidate()
	})
}

func (d *document) reflectBool(p *goja.Object, prop, attr string) {
	d.accessor(p, prop, func(n *html.Node) goja.Value {
		return d.vm.ToValue(hasAttr(n, attr))
	}, func(n *html.Node, v goja.Value) {
		if v.ToBoolean() {
			setAttr(n, attr, "")
		} else {
			removeAttr(n, attr)
		}
		d.invalidate()
	})
}

// reflectURL exposes a URL attribute resolved against the document URL.
func (d *document) reflectURL(p *goja.Object, prop, attr string) {
	d.accessor(p, prop, func(n *html.Node) goja.Value {
		v, ok := getAttr(n, attr)
		if !ok {
			if attr == "action" {
				return d.str(d.url.String())
			}
			return d.str("")
		}
		if u, err := d.url.Parse(strings.TrimSpace(v)); err == nil {
			return d.str(u.String())
		}
		return d.str(v)
	}, func(n *html.Node, v goja.Value) {
		setAttr(n, attr, v.String())
		d.invalidate()
	})
}

func siblingElement(n *html.Node, forward bool) *html.Node {
	for n != nil {
		if n.Type == html.ElementNode {
			return n
		}
		if forward {
			n = n.NextSibling
		} else {
			n = n.PrevSibling
		}
	}
	return nil
}

func (d *document) nodeOrText(v goja.Value) *html.Node {
	if n := d.unwrap(v); n != nil {
		return n
	}
	return &html.Node{Type: html.TextNode, Data: v.String()}
}

func (d *document) parseFragment(ctx *html.Node, src string) []*html.Node {
	if ctx == nil || ctx.Type != html.ElementNode {
		ctx = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}
	nodes, err := html.ParseFragment(strings.NewReader(src), ctx)
	if err != nil {
		d.throwDOM("SyntaxError", err.Error())
	}
	return nodes
}

func (d *document) insertAdjacent(n *html.Node, position, src string) {
	switch strings.ToLower(position) {
	case "beforebegin", "afterend":
		parent := n.Parent
		if parent == nil {
			return
		}
		ref := n
		if strings.EqualFold(position, "afterend") {
			ref = n.NextSibling
		}
		for _, c := range d.parseFragment(parent, src) {
			parent.InsertBefore(c, ref)
		}
	case "afterbegin":
		first := n.FirstChild
		for _, c := range d.parseFragment(n, src) {
			n.InsertBefore(c, first)
		}
	case "beforeend":
		for _, c := range d.parseFragment(n, src) {
			n.AppendChild(c)
		}
	default:
		d.throwDOM("SyntaxError", fmt.Sprintf("The value provided ('%s') is not one of 'beforeBegin', 'afterBegin', 'beforeEnd', or 'afterEnd'.", position))
	}
	d.invalidate()
}

// --- selectors ---

func (d *document) compile(sel string) cascadia.Selector {
	s, err := cascadia.Compile(sel)
	if err != nil {
		d.throwDOM("SyntaxError", fmt.Sprintf("'%s' is not a valid selector.", sel))
	}
	return s
}

// queryAll returns the descendants of scope matching sel in document order.
func (d *document) queryAll(scope *html.Node, sel string) []*html.Node {
	return goquery.NewDocumentFromNode(scope).FindMatcher(d.compile(sel)).Nodes
}

func (d *document) queryFirst(scope *html.Node, sel string) *html.Node {
	m := d.compile(sel)
	for c := scope.FirstChild; c != nil; c = c.NextSibling {
		if found := m.MatchFirst(c); found != nil {
			return found
		}
	}
	return nil
}

func elementsByTag(scope *html.Node, tag string) []*html.Node {
	tag = strings.ToLower(tag)
	var out []*html.Node
	walkElements(scope, func(n *html.Node) {
		if n != scope && (tag == "*" || n.Data == tag) {
			out = append(out, n)
		}
	})
	return out
}

func elementsByClass(scope *html.Node, names string) []*html.Node {
	want := strings.Fields(names)
	if len(want) == 0 {
		return nil
	}
	var out []*html.Node
	walkElements(scope, func(n *html.Node) {
		if n == scope {
			return
		}
		have, _ := getAttr(n, "class")
		classes := strings.Fields(have)
		for _, w := range want {
			if !containsString(classes, w) {
				return
			}
		}
		out = append(out, n)
	})
	return out
}

func walkElements(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkElements(c, fn)
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// --- classList and dataset ---

func (d *document) classList(n *html.Node) goja.Value {
	obj := d.vm.NewObject()
	tokens := func() []string {
		v, _ := getAttr(n, "class")
		return strings.Fields(v)
	}
	store := func(list []string) {
		setAttr(n, "class", strings.Join(list, " "))
		d.invalidate()
	}
	_ = obj.Set("contains", func(call goja.FunctionCall) goja.Value {
		return d.vm.ToValue(containsString(tokens(), call.Argument(0).String()))
	})
	_ = obj.Set("add", func(call goja.FunctionCall) goja.Value {
		list := tokens()
		for _, a := range call.Arguments {
			if !containsString(list, a.String()) {
				list = append(list, a.String())
			}
		}
		store(list)
		return goja.Undefined()
	})
	_ = obj.Set("remove", func(call goja.FunctionCall) goja.Value {
		var kept []string
		for _, t := range tokens() {
			drop := false
			for _, a := range call.Arguments {
				if a.String() == t {
					drop = true
				}
			}
			if !drop {
				kept = append(kept, t)
			}
		}
		store(kept)
		return goja.Undefined()
	})
	_ = obj.Set("toggle", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		list := tokens()
		has := containsString(list, name)
		want := !has
		if f := call.Argument(1); !goja.IsUndefined(f) {
			want = f.ToBoolean()
		}
		switch {
		case want && !has:
			store(append(list, name))
		case !want && has:
			var kept []string
			for _, t := range list {
				if t != name {
					kept = append(kept, t)
				}
			}
			store(kept)
		}
		return d.vm.ToValue(want)
	})
	_ = obj.Set("item", func(call goja.FunctionCall) goja.Value {
		list := tokens()
		i := int(call.Argument(0).ToInteger())
		if i < 0 || i >= len(list) {
			return goja.Null()
		}
		return d.str(list[i])
	})
	_ = obj.DefineAccessorProperty("length", d.vm.ToValue(func(goja.FunctionCall) goja.Value {
		return d.vm.ToValue(len(tokens()))
	}), nil, goja.FLAG_TRUE, goja.FLAG_FALSE)
	_ = obj.DefineAccessorProperty("value", d.vm.ToValue(func(goja.FunctionCall) goja.Value {
		v, _ := getAttr(n, "class")
		return d.str(v)
	}), nil, goja.FLAG_TRUE, goja.FLAG_FALSE)
	return obj
}

// datasetObject maps camelCase keys onto data-* attributes.
type datasetObject struct {
	d *document
	n *html.Node
}

func (o *datasetObject) Get(key string) goja.Value {
	if v, ok := getAttr(o.n, "data-"+kebab(key)); ok {
		return o.d.str(v)
	}
	return nil
}

func (o *datasetObject) Set(key string, val goja.Value) bool {
	setAttr(o.n, "data-"+kebab(key), val.String())
	o.d.invalidate()
	return true
}

func (o *datasetObject) Has(key string) bool { return hasAttr(o.n, "data-"+kebab(key)) }

func (o *datasetObject) Delete(key string) bool {
	removeAttr(o.n, "data-"+kebab(key))
	return true
}

func (o *datasetObject) Keys() []string {
	var keys []string
	for _, a := range o.n.Attr {
		if strings.HasPrefix(a.Key, "data-") {
			keys = append(keys, camel(strings.TrimPrefix(a.Key, "data-")))
		}
	}
	return keys
}

func kebab(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			sb.WriteByte('-')
			sb.WriteRune(r + ('a' - 'A'))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func camel(s string) string {
	parts := strings.Split(s, "-")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

// --- Document ---

func (d *document) installDocument() {
	p := d.documentProto
	d.accessor(p, "documentElement", func(*html.Node) goja.Value { return d.wrap(d.documentElement()) }, nil)
	d.accessor(p, "head", func(*html.Node) goja.Value { return d.wrap(d.head()) }, nil)
	d.accessor(p, "body", func(*html.Node) goja.Value { return d.wrap(d.body()) }, nil)
	d.accessor(p, "title", func(*html.Node) goja.Value { return d.str(d.title()) },
		func(_ *html.Node, v goja.Value) { d.setTitle(v.String()) })
	d.accessor(p, "URL", func(*html.Node) goja.Value { return d.str(d.url.String()) }, nil)
	d.accessor(p, "documentURI", func(*html.Node) goja.Value { return d.str(d.url.String()) }, nil)
	d.accessor(p, "baseURI", func(*html.Node) goja.Value { return d.str(d.url.String()) }, nil)
	d.accessor(p, "domain", func(*html.Node) goja.Value { return d.str(d.url.Hostname()) }, nil)
	d.accessor(p, "referrer", func(*html.Node) goja.Value { return d.str("") }, nil)
	d.accessor(p, "readyState", func(*html.Node) goja.Value { return d.str(d.readyState) }, nil)
	d.accessor(p, "characterSet", func(*html.Node) goja.Value { return d.str("UTF-8") }, nil)
	d.accessor(p, "contentType", func(*html.Node) goja.Value { return d.str("text/html") }, nil)
	d.accessor(p, "visibilityState", func(*html.Node) goja.Value { return d.str("visible") }, nil)
	d.accessor(p, "hidden", func(*html.Node) goja.Value { return d.vm.ToValue(false) }, nil)
	d.accessor(p, "defaultView", func(*html.Node) goja.Value { return d.vm.GlobalObject() }, nil)
	d.accessor(p, "scrollingElement", func(*html.Node) goja.Value { return d.wrap(d.documentElement()) }, nil)
	d.accessor(p, "activeElement", func(*html.Node) goja.Value {
		if d.focus != nil {
			return d.wrap(d.focus)
		}
		return d.wrap(d.body())
	}, nil)
	d.accessor(p, "location", func(*html.Node) goja.Value { return d.vm.Get("location") },
		func(_ *html.Node, v goja.Value) { d.assignLocation(v.String(), false) })
	d.accessor(p, "cookie", func(*html.Node) goja.Value {
		return d.str(d.view.r.cookies.get(d.url))
	}, func(_ *html.Node, v goja.Value) {
		d.view.r.cookies.set(d.url, v.String())
	})
	d.accessor(p, "forms", func(*html.Node) goja.Value { return d.nodeList(elementsByTag(d.root, "form")) }, nil)
	d.accessor(p, "images", func(*html.Node) goja.Value { return d.nodeList(elementsByTag(d.root, "img")) }, nil)
	d.accessor(p, "links", func(*html.Node) goja.Value { return d.nodeList(d.queryAll(d.root, "a[href], area[href]")) }, nil)
	d.accessor(p, "scripts", func(*html.Node) goja.Value { return d.nodeList(elementsByTag(d.root, "script")) }, nil)

	d.method(p, "getElementById", func(_ *html.Node, call goja.FunctionCall) goja.Value {
		id := call.Argument(0).String()
		return d.wrap(findFirst(d.root, func(n *html.Node) bool {
			v, ok := getAttr(n, "id")
			return ok && v == id
		}))
	})
	d.method(p, "getElementsByName", func(_ *html.Node, call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		var out []*html.Node
		walkElements(d.root, func(n *html.Node) {
			if v, ok := getAttr(n, "name"); ok && v == name {
				out = append(out, n)
			}
		})
		return d.nodeList(out)
	})
	d.method(p, "querySelector", func(n *html.Node, call goja.FunctionCall) goja.Value {
		return d.wrap(d.queryFirst(n, call.Argument(0).String()))
	})
	d.method(p, "querySelectorAll", func(n *html.Node, call goja.FunctionCall) goja.Value {
		return d.nodeList(d.queryAll(n, call.Argument(0).String()))
	})
	d.method(p, "getElementsByTagName", func(n *html.Node, call goja.FunctionCall) goja.Value {
		return d.nodeList(elementsByTag(n, call.Argument(0).String()))
	})
	d.method(p, "getElementsByClassName", func(n *html.Node, call goja.FunctionCall) goja.Value {
		return d.nodeList(elementsByClass(n, call.Argument(0).String()))
	})
	d.method(p, "createElement", func(_ *html.Node, call goja.FunctionCall) goja.Value {
		tag := strings.ToLower(call.Argument(0).String())
		return d.wrap(&html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))})
	})
	d.method(p, "createTextNode", func(_ *html.Node, call goja.FunctionCall) goja.Value {
		return d.wrap(&html.Node{Type: html.TextNode, Data: call.Argument(0).String()})
	})
	d.method(p, "createComment", func(_ *html.Node, call goja.FunctionCall) goja.Value {
		return d.wrap(&html.Node{Type: html.CommentNode, Data: call.Argument(0).String()})
	})
	d.method(p, "createDocumentFragment", func(*html.Node, goja.FunctionCall) goja.Value {
		return d.wrap(&html.Node{Type: html.DocumentNode})
	})
	d.method(p, "elementFromPoint", func(_ *html.Node, call goja.FunctionCall) goja.Value {
		x, y := call.Argument(0).ToFloat(), call.Argument(1).ToFloat()
		if x < 0 || y < 0 || x >= float64(d.view.surface.width) || y >= float64(d.view.surface.height) {
			return goja.Null()
		}
		return d.wrap(d.hitTest(x+d.scrollX, y+d.scrollY))
	})
	d.method(p, "hasFocus", func(*html.Node, goja.FunctionCall) goja.Value { return d.vm.ToValue(true) })
}
