package cdp

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/chromedp/cdproto/runtime"
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/pagedriver/internal/renderer"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// byValueFunction is called on remote objects to pull a JSON copy of them.
const byValueFunction = `function() { return this; }`

// needsByValue reports whether obj is a plain object or array that has to be
// fetched by value to be converted.
func needsByValue(obj *runtime.RemoteObject) bool {
	if obj == nil || obj.Type != runtime.TypeObject || obj.ObjectID == "" {
		return false
	}
	switch obj.Subtype {
	case runtime.SubtypeNull, runtime.SubtypeNode:
		return false
	}
	return obj.ClassName != "Window"
}

// handleValue converts a remote object that can be represented without
// fetching it by value. ok is false for plain objects and arrays.
func handleValue(obj *runtime.RemoteObject) (v renderer.JSValue, ok bool, err error) {
	if obj == nil {
		return renderer.Undefined{}, true, nil
	}
	switch obj.Type {
	case runtime.TypeUndefined:
		return renderer.Undefined{}, true, nil
	case runtime.TypeFunction, runtime.TypeSymbol:
		return renderer.Undefined{}, true, nil
	case runtime.TypeBigint:
		n, err := strconv.ParseFloat(strings.TrimSuffix(string(obj.UnserializableValue), "n"), 64)
		if err != nil {
			return nil, false, fmt.Errorf("invalid bigint %q: %w", obj.UnserializableValue, err)
		}
		return renderer.Number(n), true, nil
	case runtime.TypeNumber:
		if obj.UnserializableValue != "" {
			return unserializableNumber(string(obj.UnserializableValue)), true, nil
		}
	case runtime.TypeObject:
		switch {
		case obj.Subtype == runtime.SubtypeNull:
			return renderer.Null{}, true, nil
		case obj.Subtype == runtime.SubtypeNode && obj.ClassName == "ShadowRoot":
			return renderer.ShadowRoot(obj.ObjectID), true, nil
		case obj.Subtype == runtime.SubtypeNode:
			return renderer.Element(obj.ObjectID), true, nil
		case obj.ClassName == "Window":
			return renderer.Window(obj.ObjectID), true, nil
		}
		if len(obj.Value) == 0 {
			return nil, false, nil
		}
	}
	v, err = decodeJSON([]byte(obj.Value))
	return v, err == nil, err
}

func unserializableNumber(s string) renderer.Number {
	switch s {
	case "NaN":
		return renderer.Number(math.NaN())
	case "Infinity":
		return renderer.Number(math.Inf(1))
	case "-Infinity":
		return renderer.Number(math.Inf(-1))
	case "-0":
		return renderer.Number(math.Copysign(0, -1))
	}
	n, _ := strconv.ParseFloat(s, 64)
	return renderer.Number(n)
}

// decodeJSON parses a by-value payload, keeping object key order.
func decodeJSON(data []byte) (renderer.JSValue, error) {
	if len(data) == 0 {
		return renderer.Undefined{}, nil
	}
	iter := jsoniter.ParseBytes(jsonAPI, data)
	v := readValue(iter)
	if iter.Error != nil {
		return nil, fmt.Errorf("failed to decode remote value: %w", iter.Error)
	}
	return v, nil
}

func readValue(iter *jsoniter.Iterator) renderer.JSValue {
	switch iter.WhatIsNext() {
	case jsoniter.NilValue:
		iter.Skip()
		return renderer.Null{}
	case jsoniter.BoolValue:
		return renderer.Boolean(iter.ReadBool())
	case jsoniter.NumberValue:
		return renderer.Number(iter.ReadFloat64())
	case jsoniter.StringValue:
		return renderer.String(iter.ReadString())
	case jsoniter.ArrayValue:
		arr := renderer.Array{}
		for iter.ReadArray() {
			arr = append(arr, readValue(iter))
		}
		return arr
	case jsoniter.ObjectValue:
		obj := renderer.NewObject()
		iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
			obj.Set(key, readValue(it))
			return true
		})
		return obj
	default:
		iter.ReportError("readValue", "unexpected token")
		return renderer.Undefined{}
	}
}

// exceptionError turns evaluation exception details into an error.
func exceptionError(d *runtime.ExceptionDetails) error {
	if d == nil {
		return nil
	}
	if d.Exception != nil && d.Exception.Description != "" {
		return fmt.Errorf("%s", d.Exception.Description)
	}
	if d.Exception != nil && len(d.Exception.Value) > 0 {
		var s string
		if jsonAPI.Unmarshal([]byte(d.Exception.Value), &s) == nil {
			return fmt.Errorf("Uncaught %s", s)
		}
		return fmt.Errorf("Uncaught %s", string(d.Exception.Value))
	}
	return fmt.Errorf("%s", d.Text)
}

// consoleText renders console arguments the way a console prints them.
func consoleText(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		switch {
		case arg == nil:
		case arg.Type == runtime.TypeString:
			var s string
			if jsonAPI.Unmarshal([]byte(arg.Value), &s) == nil {
				parts = append(parts, s)
				continue
			}
			parts = append(parts, string(arg.Value))
		case arg.UnserializableValue != "":
			parts = append(parts, string(arg.UnserializableValue))
		case len(arg.Value) > 0:
			parts = append(parts, string(arg.Value))
		case arg.Description != "":
			parts = append(parts, arg.Description)
		default:
			parts = append(parts, string(arg.Type))
		}
	}
	return strings.Join(parts, " ")
}
