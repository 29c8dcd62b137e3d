package sim

import (
	"math/big"
	"strconv"
	"time"

	"github.com/dop251/goja"
	"github.com/xkilldash9x/pagedriver/internal/renderer"
)

// maxValueDepth bounds nesting when converting script values.
const maxValueDepth = 32

// toJSValue converts a script value into the renderer's value model. DOM nodes
// become Element handles and the global object becomes a Window handle.
// Cycles and over-deep nesting collapse to null.
func (d *document) toJSValue(v goja.Value) renderer.JSValue {
	return d.convert(v, 0, make(map[*goja.Object]bool))
}

func (d *document) convert(v goja.Value, depth int, seen map[*goja.Object]bool) renderer.JSValue {
	if v == nil || goja.IsUndefined(v) {
		return renderer.Undefined{}
	}
	if goja.IsNull(v) {
		return renderer.Null{}
	}
	obj, isObj := v.(*goja.Object)
	if !isObj {
		switch x := v.Export().(type) {
		case bool:
			return renderer.Boolean(x)
		case int64:
			return renderer.Number(float64(x))
		case float64:
			return renderer.Number(x)
		case string:
			return renderer.String(x)
		case *big.Int:
			return renderer.String(x.String())
		}
		return renderer.String(v.String())
	}

	if n, ok := d.nodes[obj]; ok {
		return renderer.Element(d.nodeID(n))
	}
	if obj == d.vm.GlobalObject() {
		return renderer.Window(d.view.id)
	}
	if _, ok := goja.AssertFunction(obj); ok {
		return renderer.Undefined{}
	}
	if depth >= maxValueDepth || seen[obj] {
		return renderer.Null{}
	}
	seen[obj] = true
	defer delete(seen, obj)

	switch obj.ClassName() {
	case "Array":
		length := int(obj.Get("length").ToInteger())
		arr := make(renderer.Array, 0, length)
		for i := 0; i < length; i++ {
			item := d.safeGet(obj, strconv.Itoa(i))
			if _, isFn := goja.AssertFunction(item); isFn {
				arr = append(arr, renderer.Null{})
				continue
			}
			arr = append(arr, d.convert(item, depth+1, seen))
		}
		return arr
	case "Date":
		if t, ok := obj.Export().(time.Time); ok {
			return renderer.String(t.UTC().Format("2006-01-02T15:04:05.000Z"))
		}
	case "Error":
		return renderer.String(obj.String())
	case "Boolean", "Number", "String":
		return d.convert(primitiveOf(obj), depth, seen)
	}

	out := renderer.NewObject()
	for _, key := range obj.Keys() {
		item := d.safeGet(obj, key)
		if item == nil || goja.IsUndefined(item) {
			continue
		}
		if _, isFn := goja.AssertFunction(item); isFn {
			continue
		}
		out.Set(key, d.convert(item, depth+1, seen))
	}
	return out
}

// safeGet reads a property, treating a throwing getter as undefined.
func (d *document) safeGet(obj *goja.Object, key string) (v goja.Value) {
	defer func() {
		if recover() != nil {
			v = goja.Undefined()
		}
	}()
	return obj.Get(key)
}

func primitiveOf(obj *goja.Object) goja.Value {
	valueOf, ok := goja.AssertFunction(obj.Get("valueOf"))
	if !ok {
		return goja.Undefined()
	}
	v, err := valueOf(obj)
	if err != nil {
		return goja.Undefined()
	}
	return v
}
