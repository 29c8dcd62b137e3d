package renderer

// JSValue is the result of a script evaluation. It is a closed sum type: the
// only implementations are the types declared in this file.
type JSValue interface {
	isJSValue()
}

type (
	Undefined struct{}
	Null      struct{}
	Boolean   bool
	Number    float64
	String    string
	Array     []JSValue
)

// Object is a script object with its own enumerable properties in order.
type Object struct {
	Keys   []string
	Values map[string]JSValue
}

// Opaque handles to renderer-side objects. They cannot leave the renderer as
// live references.
type (
	Element    string
	ShadowRoot string
	Frame      string
	Window     string
)

func (Undefined) isJSValue()  {}
func (Null) isJSValue()       {}
func (Boolean) isJSValue()    {}
func (Number) isJSValue()     {}
func (String) isJSValue()     {}
func (Array) isJSValue()      {}
func (*Object) isJSValue()    {}
func (Element) isJSValue()    {}
func (ShadowRoot) isJSValue() {}
func (Frame) isJSValue()      {}
func (Window) isJSValue()     {}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{Values: make(map[string]JSValue)}
}

// Set adds or replaces a property, keeping first-insertion order.
func (o *Object) Set(key string, v JSValue) {
	if _, ok := o.Values[key]; !ok {
		o.Keys = append(o.Keys, key)
	}
	o.Values[key] = v
}

// Get returns a property value, or Undefined.
func (o *Object) Get(key string) JSValue {
	if v, ok := o.Values[key]; ok {
		return v
	}
	return Undefined{}
}

// Len is the number of properties.
func (o *Object) Len() int { return len(o.Keys) }

// Truthy reports whether v counts as a satisfied condition: true, a non-zero
// number, a non-empty string, or any array or object. Handles, null and
// undefined are falsy.
func Truthy(v JSValue) bool {
	switch x := v.(type) {
	case Boolean:
		return bool(x)
	case Number:
		// NaN != 0 holds, but NaN is falsy in script.
		return x == x && x != 0
	case String:
		return x != ""
	case Array, *Object:
		return true
	default:
		return false
	}
}

// IsNullish reports null or undefined.
func IsNullish(v JSValue) bool {
	switch v.(type) {
	case nil, Null, Undefined:
		return true
	}
	return false
}
