package engine

import (
	"fmt"
	"math"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/pagedriver/internal/renderer"
)

// jsonAPI writes strings the way a script engine would: no HTML escaping.
var jsonAPI = jsoniter.Config{EscapeHTML: false}.Froze()

// JSONString renders a script value as JSON text. undefined is written as the
// bare word undefined. Non-finite numbers become null. Renderer handles are
// written as the strings "[Element:<id>]", "[ShadowRoot:<id>]", "[Frame:<id>]"
// and "[Window:<id>]".
func JSONString(v renderer.JSValue) string {
	stream := jsonAPI.BorrowStream(nil)
	defer jsonAPI.ReturnStream(stream)
	writeValue(stream, v)
	return string(stream.Buffer())
}

func writeValue(stream *jsoniter.Stream, v renderer.JSValue) {
	switch x := v.(type) {
	case nil, renderer.Undefined:
		stream.WriteRaw("undefined")
	case renderer.Null:
		stream.WriteNil()
	case renderer.Boolean:
		stream.WriteBool(bool(x))
	case renderer.Number:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			stream.WriteNil()
			return
		}
		stream.WriteFloat64(f)
	case renderer.String:
		stream.WriteString(string(x))
	case renderer.Array:
		stream.WriteArrayStart()
		for i, item := range x {
			if i > 0 {
				stream.WriteMore()
			}
			writeValue(stream, item)
		}
		stream.WriteArrayEnd()
	case *renderer.Object:
		stream.WriteObjectStart()
		for i, k := range x.Keys {
			if i > 0 {
				stream.WriteMore()
			}
			stream.WriteObjectField(k)
			writeValue(stream, x.Values[k])
		}
		stream.WriteObjectEnd()
	case renderer.Element:
		stream.WriteString("[Element:" + string(x) + "]")
	case renderer.ShadowRoot:
		stream.WriteString("[ShadowRoot:" + string(x) + "]")
	case renderer.Frame:
		stream.WriteString("[Frame:" + string(x) + "]")
	case renderer.Window:
		stream.WriteString("[Window:" + string(x) + "]")
	default:
		stream.WriteString(fmt.Sprintf("[%T]", v))
	}
}

// jsString quotes s as a script string literal.
func jsString(s string) string {
	stream := jsonAPI.BorrowStream(nil)
	defer jsonAPI.ReturnStream(stream)
	stream.WriteString(s)
	return string(stream.Buffer())
}

// describe names a value for error messages.
func describe(v renderer.JSValue) string {
	return fmt.Sprintf("%T %s", v, JSONString(v))
}
