package cdp

import (
	"testing"

	"github.com/chromedp/cdproto/input"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pagedriver/internal/renderer"
)

func TestLookupKey(t *testing.T) {
	tests := []struct {
		name string
		key  renderer.Key
		want keyDef
	}{
		{"enter", renderer.Key{Named: renderer.KeyEnter}, keyDef{"Enter", "Enter", 13, "\r"}},
		{"tab", renderer.Key{Named: renderer.KeyTab}, keyDef{"Tab", "Tab", 9, ""}},
		{"lower letter", renderer.CharacterKey("a"), keyDef{"a", "KeyA", 'A', "a"}},
		{"upper letter", renderer.CharacterKey("Q"), keyDef{"Q", "KeyQ", 'Q', "Q"}},
		{"digit", renderer.CharacterKey("7"), keyDef{"7", "Digit7", '7', "7"}},
		{"space", renderer.CharacterKey(" "), keyDef{" ", "Space", 32, " "}},
		{"symbol", renderer.CharacterKey("é"), keyDef{key: "é", text: "é"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, lookupKey(tt.key))
		})
	}
}

func TestInputActionsMouse(t *testing.T) {
	tasks := inputActions(renderer.MouseButtonEvent{Action: renderer.MouseDown, Button: renderer.MouseRight, X: 10, Y: 20})
	require.Len(t, tasks, 1)
	p, ok := tasks[0].(*input.DispatchMouseEventParams)
	require.True(t, ok)
	assert.Equal(t, input.MousePressed, p.Type)
	assert.Equal(t, input.Right, p.Button)
	assert.Equal(t, int64(1), p.ClickCount)
	assert.Equal(t, 10.0, p.X)
	assert.Equal(t, 20.0, p.Y)

	tasks = inputActions(renderer.MouseButtonEvent{Action: renderer.MouseUp, Button: renderer.MouseLeft, X: 1, Y: 2})
	p = tasks[0].(*input.DispatchMouseEventParams)
	assert.Equal(t, input.MouseReleased, p.Type)
	assert.Equal(t, input.Left, p.Button)

	tasks = inputActions(renderer.MouseMoveEvent{X: 5, Y: 6})
	p = tasks[0].(*input.DispatchMouseEventParams)
	assert.Equal(t, input.MouseMoved, p.Type)
}

func TestInputActionsWheelInvertsDeltas(t *testing.T) {
	tasks := inputActions(renderer.WheelEvent{DX: 0, DY: -300, X: 400, Y: 300})
	require.Len(t, tasks, 1)
	p := tasks[0].(*input.DispatchMouseEventParams)
	assert.Equal(t, input.MouseWheel, p.Type)
	assert.Equal(t, 300.0, p.DeltaY)
	assert.Zero(t, p.DeltaX)
}

func TestInputActionsKeyboard(t *testing.T) {
	down := inputActions(renderer.KeyboardEvent{State: renderer.KeyDown, Key: renderer.CharacterKey("x")})
	require.Len(t, down, 1)
	p := down[0].(*input.DispatchKeyEventParams)
	assert.Equal(t, input.KeyDown, p.Type)
	assert.Equal(t, "x", p.Text)
	assert.Equal(t, "KeyX", p.Code)

	raw := inputActions(renderer.KeyboardEvent{State: renderer.KeyDown, Key: renderer.Key{Named: renderer.KeyArrowLeft}})
	p = raw[0].(*input.DispatchKeyEventParams)
	assert.Equal(t, input.KeyRawDown, p.Type)
	assert.Empty(t, p.Text)
	assert.Equal(t, int64(37), p.WindowsVirtualKeyCode)

	up := inputActions(renderer.KeyboardEvent{State: renderer.KeyUp, Key: renderer.CharacterKey("x")})
	p = up[0].(*input.DispatchKeyEventParams)
	assert.Equal(t, input.KeyUp, p.Type)
	assert.Empty(t, p.Text)
}
