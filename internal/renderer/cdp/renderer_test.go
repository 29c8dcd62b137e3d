package cdp

import (
	"net/url"
	"os/exec"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/pagedriver/api/schemas"
	"github.com/xkilldash9x/pagedriver/internal/engine"
	"github.com/xkilldash9x/pagedriver/internal/renderer"
	"github.com/xkilldash9x/pagedriver/internal/runloop"
)

func TestAllocatorOptions(t *testing.T) {
	base := len(chromedp.DefaultExecAllocatorOptions) + 5

	got := allocatorOptions(renderer.Options{Headless: true})
	assert.Len(t, got, base)

	got = allocatorOptions(renderer.Options{
		ExecPath:  "/opt/chrome/chrome",
		UserAgent: "pagedriver-test",
		Args:      []string{"--lang=de", "disable-gpu", "--", "="},
	})
	assert.Len(t, got, base+4, "blank flag names are skipped")
}

func TestNewRequiresWaker(t *testing.T) {
	_, err := New(renderer.Options{})
	assert.Error(t, err)
}

func TestSurface(t *testing.T) {
	r := &Renderer{}
	_, err := r.NewSurface(0, 10)
	assert.Error(t, err)

	s, err := r.NewSurface(640, 480)
	require.NoError(t, err)
	w, h := s.Size()
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)
	assert.NoError(t, s.MakeCurrent())
}

func TestDialogKind(t *testing.T) {
	d := &dialog{}
	d.Confirm()
	assert.True(t, d.accepted)
	d.Dismiss()
	assert.False(t, d.accepted)

	l := &resourceLoad{req: renderer.ResourceRequest{URL: "https://a.test/x.js"}}
	l.Cancel()
	assert.True(t, l.cancelled)
	assert.Equal(t, "https://a.test/x.js", l.Request().URL)
}

// findChrome returns a local Chrome or Chromium binary, or skips the test.
func findChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no Chrome or Chromium binary on PATH")
	return ""
}

func TestEngineAgainstChrome(t *testing.T) {
	path := findChrome(t)

	loop := runloop.NewEventLoop()
	r, err := New(renderer.Options{
		Waker:    loop.NewWaker(),
		Logger:   zaptest.NewLogger(t),
		ExecPath: path,
		Headless: true,
	})
	require.NoError(t, err)

	opts := schemas.PageOptions{Width: 800, Height: 600, Timeout: 20 * time.Second, Wait: 100 * time.Millisecond}
	eng := engine.New(r, loop, opts, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = eng.Shutdown() })

	doc := `<html><head><title>Chrome Page</title></head><body><h1 id="h">Hi</h1>` +
		`<script>console.log('from chrome')</script></body></html>`
	require.NoError(t, eng.Open("data:text/html,"+url.PathEscape(doc)))

	title, ok := eng.Title()
	require.True(t, ok)
	assert.Equal(t, "Chrome Page", title)

	got, err := eng.Evaluate(`({b: 1, a: [1, "x"]})`)
	require.NoError(t, err)
	assert.Equal(t, `{"b":1,"a":[1,"x"]}`, got)

	text, err := eng.ElementText("#h")
	require.NoError(t, err)
	assert.Equal(t, "Hi", text)

	_, err = eng.Evaluate("throw new Error('boom')")
	assert.ErrorIs(t, err, schemas.ErrJSError)

	png, err := eng.Screenshot()
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])

	msgs := eng.ConsoleMessages()
	require.NotEmpty(t, msgs)
	assert.Equal(t, "from chrome", msgs[0].Message)
}
