package engine

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pagedriver/internal/renderer"
)

func TestJSONString(t *testing.T) {
	obj := renderer.NewObject()
	obj.Set("z", renderer.Number(1))
	obj.Set("a", renderer.Array{renderer.Null{}, renderer.Boolean(false)})
	obj.Set("z", renderer.Number(2))

	tests := []struct {
		name string
		in   renderer.JSValue
		want string
	}{
		{"undefined", renderer.Undefined{}, "undefined"},
		{"nil", nil, "undefined"},
		{"null", renderer.Null{}, "null"},
		{"true", renderer.Boolean(true), "true"},
		{"integer", renderer.Number(4), "4"},
		{"negative fraction", renderer.Number(-2.5), "-2.5"},
		{"large", renderer.Number(1e21), "1e+21"},
		{"NaN", renderer.Number(math.NaN()), "null"},
		{"infinity", renderer.Number(math.Inf(1)), "null"},
		{"string escapes", renderer.String("a\"b\\c\n\t"), `"a\"b\\c\n\t"`},
		{"markup", renderer.String("<p>&</p>"), `"<p>&</p>"`},
		{"empty array", renderer.Array{}, "[]"},
		{"nested undefined", renderer.Array{renderer.Undefined{}}, "[undefined]"},
		{"object order", obj, `{"z":2,"a":[null,false]}`},
		{"empty object", renderer.NewObject(), "{}"},
		{"element", renderer.Element("7"), `"[Element:7]"`},
		{"shadow root", renderer.ShadowRoot("s1"), `"[ShadowRoot:s1]"`},
		{"frame", renderer.Frame("f"), `"[Frame:f]"`},
		{"window", renderer.Window("w"), `"[Window:w]"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, JSONString(tc.in))
		})
	}
}

func TestJSStringRoundTrips(t *testing.T) {
	for _, s := range []string{"", "plain", `it's "quoted"`, "line\nbreak", "\x00\x1f", "ünïcødé ✓", "</script>"} {
		var back string
		require.NoError(t, json.Unmarshal([]byte(jsString(s)), &back), s)
		assert.Equal(t, s, back)
	}
}

// fuzzValue builds a bounded value tree from fuzz input.
func fuzzValue(c *fuzz.ConsumeFuzzer, depth int) (renderer.JSValue, error) {
	kind, err := c.GetInt()
	if err != nil {
		return nil, err
	}
	if depth > 4 {
		kind %= 5
	}
	switch abs(kind) % 9 {
	case 0:
		return renderer.Null{}, nil
	case 1:
		b, err := c.GetBool()
		return renderer.Boolean(b), err
	case 2:
		n, err := c.GetInt()
		return renderer.Number(float64(n) / 8), err
	case 3:
		s, err := c.GetString()
		return renderer.String(strings.ToValidUTF8(s, "?")), err
	case 4:
		s, err := c.GetString()
		return renderer.Element(strings.ToValidUTF8(s, "?")), err
	case 5, 6:
		n, err := c.GetInt()
		if err != nil {
			return nil, err
		}
		arr := renderer.Array{}
		for i := 0; i < abs(n)%4; i++ {
			v, err := fuzzValue(c, depth+1)
			if err != nil {
				return arr, nil
			}
			arr = append(arr, v)
		}
		return arr, nil
	default:
		n, err := c.GetInt()
		if err != nil {
			return nil, err
		}
		obj := renderer.NewObject()
		for i := 0; i < abs(n)%4; i++ {
			k, err := c.GetString()
			if err != nil {
				return obj, nil
			}
			v, err := fuzzValue(c, depth+1)
			if err != nil {
				return obj, nil
			}
			obj.Set(strings.ToValidUTF8(k, "?"), v)
		}
		return obj, nil
	}
}

func abs(n int) int {
	if n < 0 {
		if n == math.MinInt {
			return 0
		}
		return -n
	}
	return n
}

// FuzzJSONString checks that any value tree without undefined serializes to
// valid JSON that decodes back to the same shape.
func FuzzJSONString(f *testing.F) {
	f.Add([]byte{5, 0, 0, 0, 0, 0, 0, 0, 3})
	f.Add([]byte("object with some bytes to consume"))
	f.Fuzz(func(t *testing.T, data []byte) {
		c := fuzz.NewConsumer(data)
		v, err := fuzzValue(c, 0)
		if err != nil || v == nil {
			return
		}
		out := JSONString(v)
		require.True(t, json.Valid([]byte(out)), "invalid JSON: %s", out)

		var decoded interface{}
		require.NoError(t, json.Unmarshal([]byte(out), &decoded))
		switch v.(type) {
		case renderer.Array:
			assert.IsType(t, []interface{}{}, decoded)
		case *renderer.Object:
			assert.IsType(t, map[string]interface{}{}, decoded)
		case renderer.String, renderer.Element:
			assert.IsType(t, "", decoded)
		}
	})
}
