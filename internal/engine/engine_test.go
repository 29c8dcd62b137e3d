package engine

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/pagedriver/api/schemas"
	"github.com/xkilldash9x/pagedriver/internal/renderer"
	"github.com/xkilldash9x/pagedriver/internal/renderer/sim"
	"github.com/xkilldash9x/pagedriver/internal/runloop"
)

// -- Test documents --

const (
	basicHTML = `<html><head><title>Test Page</title></head><body>` +
		`<h1 id="heading" class="main" data-testid="main-heading">Hello World</h1>` +
		`<p>Some paragraph text</p>` +
		`<a href="https://example.com" id="link">Example Link</a>` +
		`</body></html>`

	formHTML = `<html><head><title>Form Page</title></head><body>` +
		`<input id="name-input" type="text" />` +
		`<button id="submit-btn" onclick="document.getElementById('result').textContent='clicked'">Submit</button>` +
		`<div id="result">not clicked</div>` +
		`</body></html>`

	navPageA = `<html><head><title>Page A</title></head><body><h1>Page A</h1></body></html>`
	navPageB = `<html><head><title>Page B</title></head><body><h1>Page B</h1></body></html>`

	consoleHTML = `<html><head><title>Console Page</title></head><body><script>` +
		`console.log('log message');` +
		`console.warn('warn message');` +
		`console.error('error message');` +
		`</script></body></html>`

	dynamicHTML = `<html><head><title>Dynamic Page</title></head><body>` +
		`<div id="container">Loading...</div><script>` +
		`setTimeout(function() {` +
		`  var el = document.createElement('div');` +
		`  el.id = 'delayed';` +
		`  el.textContent = 'I appeared';` +
		`  document.getElementById('container').appendChild(el);` +
		`}, 300);` +
		`</script></body></html>`

	tallHTML = `<html><head><title>Tall Page</title></head><body>` +
		`<div style="height:3000px;background:linear-gradient(red,blue);">Tall content</div>` +
		`<div id="bottom">Bottom</div>` +
		`</body></html>`

	conditionHTML = `<html><head><title>Condition Page</title></head><body><script>` +
		`window.ready = false;` +
		`setTimeout(function() { window.ready = true; }, 300);` +
		`</script></body></html>`

	controlsHTML = `<html><head><title>Controls</title></head><body>` +
		`<select id="color"><option value="red">Red</option><option value="green">Green</option></select>` +
		`<input id="upload" type="file">` +
		`<input id="text" type="text">` +
		`<script>` +
		`window.changes = [];` +
		`document.getElementById('color').addEventListener('change', function(e) { changes.push('color:' + e.target.value); });` +
		`document.getElementById('upload').addEventListener('change', function(e) { changes.push('upload:' + e.target.files.length); });` +
		`</script></body></html>`
)

func dataURL(doc string) string {
	return "data:text/html," + url.PathEscape(doc)
}

// -- Harness --

func testOptions() schemas.PageOptions {
	return schemas.PageOptions{
		Width:   800,
		Height:  600,
		Timeout: 5 * time.Second,
		Wait:    50 * time.Millisecond,
	}
}

func newTestEngine(t *testing.T, opts schemas.PageOptions) *PageEngine {
	t.Helper()
	loop := runloop.NewEventLoop()
	logger := zaptest.NewLogger(t)
	r, err := sim.New(renderer.Options{Waker: loop.NewWaker(), Logger: logger})
	require.NoError(t, err)
	e := New(r, loop, opts, logger)
	t.Cleanup(func() { _ = e.Shutdown() })
	return e
}

func openHTML(t *testing.T, e *PageEngine, doc string) {
	t.Helper()
	require.NoError(t, e.Open(dataURL(doc)), "open data: URL failed")
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Site</title><script src="/app.js"></script></head><body>ok</body></html>`)
	})
	mux.HandleFunc("/app.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		fmt.Fprint(w, `window.fromScript = true;`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// -- Lifecycle --

func TestOpenDataURL(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, basicHTML)

	title, ok := e.Title()
	require.True(t, ok)
	assert.Equal(t, "Test Page", title)

	u, ok := e.URL()
	require.True(t, ok)
	assert.Contains(t, u, "data:text/html")

	id, ok := e.ActivePageID()
	require.True(t, ok)
	assert.Equal(t, uint32(0), id)
}

func TestOpenInvalidURL(t *testing.T) {
	e := newTestEngine(t, testOptions())

	err := e.Open("not a valid url")
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrLoadFailed)
	assert.Contains(t, err.Error(), "invalid URL")
}

func TestOpenReusesWebView(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, navPageA)
	openHTML(t, e, navPageB)

	assert.Equal(t, 1, e.PageCount())
	title, _ := e.Title()
	assert.Equal(t, "Page B", title)
}

func TestURLAndTitleBeforeOpen(t *testing.T) {
	e := newTestEngine(t, testOptions())

	_, ok := e.URL()
	assert.False(t, ok)
	_, ok = e.Title()
	assert.False(t, ok)
}

func TestCloseThenURLIsUnset(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, basicHTML)
	_, ok := e.URL()
	require.True(t, ok)

	e.Close()
	_, ok = e.URL()
	assert.False(t, ok)
	_, ok = e.Title()
	assert.False(t, ok)
	_, ok = e.ActivePageID()
	assert.False(t, ok)
}

// -- Content --

func TestHTMLCapture(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, basicHTML)

	html, err := e.HTML()
	require.NoError(t, err)
	assert.Contains(t, html, "<h1")
	assert.Contains(t, html, "Hello World")
	assert.Contains(t, html, "Some paragraph text")
}

func TestEvaluate(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, basicHTML)

	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"number", "2 + 2", "4"},
		{"fraction", "1 / 4", "0.25"},
		{"string", "document.title", `"Test Page"`},
		{"markup is not escaped", "'<b>'", `"<b>"`},
		{"boolean", "1 < 2", "true"},
		{"null", "null", "null"},
		{"undefined", "undefined", "undefined"},
		{"array", "[1, 'two', false]", `[1,"two",false]`},
		{"object keeps key order", "({b: 1, a: {c: [null]}})", `{"b":1,"a":{"c":[null]}}`},
		{"promise", "Promise.resolve(7)", "7"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := e.Evaluate(tc.script)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluateElementHandle(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, basicHTML)

	got, err := e.Evaluate("document.getElementById('heading')")
	require.NoError(t, err)
	assert.Regexp(t, `^"\[Element:[^\]]+\]"$`, got)
}

func TestEvaluateErrors(t *testing.T) {
	opts := testOptions()
	opts.Timeout = 300 * time.Millisecond
	e := newTestEngine(t, opts)
	openHTML(t, e, basicHTML)

	_, err := e.Evaluate("throw new Error('boom')")
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrJSError)
	assert.Contains(t, err.Error(), "boom")

	_, err = e.Evaluate("new Promise(function() {})")
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrTimeout)
	assert.Equal(t, "timed out: script evaluation", err.Error())
}

func TestScreenshotReturnsPNG(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, basicHTML)

	data, err := e.Screenshot()
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")), "not a PNG")

	img, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 800, img.Bounds().Dx())
	assert.Equal(t, 600, img.Bounds().Dy())
}

func TestScreenshotFullPage(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, tallHTML)

	viewport, err := e.Screenshot()
	require.NoError(t, err)
	full, err := e.ScreenshotFullPage()
	require.NoError(t, err)
	assert.Greater(t, len(full), len(viewport), "full page capture should carry more data")

	img, err := imaging.Decode(bytes.NewReader(full))
	require.NoError(t, err)
	assert.Equal(t, 800, img.Bounds().Dx())
	assert.Greater(t, img.Bounds().Dy(), 3000)

	// The viewport is restored afterwards.
	after, err := e.Screenshot()
	require.NoError(t, err)
	img, err = imaging.Decode(bytes.NewReader(after))
	require.NoError(t, err)
	assert.Equal(t, 600, img.Bounds().Dy())
}

func TestScreenshotFullPageShortDocument(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, basicHTML)

	data, err := e.ScreenshotFullPage()
	require.NoError(t, err)
	img, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 600, img.Bounds().Dy())
}

func TestConsoleMessagesDrain(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, consoleHTML)

	msgs := e.ConsoleMessages()
	assert.Equal(t, []schemas.ConsoleMessage{
		{Level: "log", Message: "log message"},
		{Level: "warn", Message: "warn message"},
		{Level: "error", Message: "error message"},
	}, msgs)
	assert.Empty(t, e.ConsoleMessages(), "second drain should be empty")
}

func TestNetworkRequestsDrain(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, basicHTML)

	reqs := e.NetworkRequests()
	require.NotEmpty(t, reqs)
	assert.True(t, reqs[0].IsMainFrame)
	assert.Equal(t, "GET", reqs[0].Method)
	assert.Empty(t, e.NetworkRequests(), "second drain should be empty")
}

// -- Waits --

func TestWaitForSelector(t *testing.T) {
	e := newTestEngine(t, testOptions())

	t.Run("present", func(t *testing.T) {
		openHTML(t, e, basicHTML)
		start := time.Now()
		require.NoError(t, e.WaitForSelector("h1", 5*time.Second))
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("delayed", func(t *testing.T) {
		openHTML(t, e, dynamicHTML)
		require.NoError(t, e.WaitForSelector("#delayed", 5*time.Second))
		text, err := e.ElementText("#delayed")
		require.NoError(t, err)
		assert.Equal(t, "I appeared", text)
	})

	t.Run("never", func(t *testing.T) {
		openHTML(t, e, basicHTML)
		start := time.Now()
		err := e.WaitForSelector("#nonexistent", 400*time.Millisecond)
		assert.ErrorIs(t, err, schemas.ErrTimeout)
		assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
	})
}

func TestWaitForCondition(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, conditionHTML)

	require.NoError(t, e.WaitForCondition("window.ready === true", 5*time.Second))

	for _, expr := range []string{"1", "'x'", "[]", "({})"} {
		assert.NoError(t, e.WaitForCondition(expr, time.Second), expr)
	}
	for _, expr := range []string{"0", "''", "null", "undefined", "false"} {
		assert.ErrorIs(t, e.WaitForCondition(expr, 100*time.Millisecond), schemas.ErrTimeout, expr)
	}
}

func TestWaitFixed(t *testing.T) {
	e := newTestEngine(t, testOptions())

	start := time.Now()
	e.Wait(200 * time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestWaitForNavigation(t *testing.T) {
	e := newTestEngine(t, testOptions())
	target := dataURL(`<title>Nav End</title><body>Done</body>`)
	openHTML(t, e, fmt.Sprintf(`<html><head><title>Nav Start</title></head><body><script>`+
		`setTimeout(function() { window.location.href = %s; }, 300);`+
		`</script></body></html>`, jsString(target)))

	require.NoError(t, e.WaitForNavigation(5*time.Second))
	title, _ := e.Title()
	assert.Equal(t, "Nav End", title)
}

func TestWaitForNetworkIdle(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, basicHTML)

	start := time.Now()
	require.NoError(t, e.WaitForNetworkIdle(100*time.Millisecond, 2*time.Second))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

// -- Navigation --

func TestReload(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, basicHTML)
	_, err := e.Evaluate("window.marker = 1")
	require.NoError(t, err)

	require.NoError(t, e.Reload())
	title, _ := e.Title()
	assert.Equal(t, "Test Page", title)
	got, err := e.Evaluate("typeof window.marker")
	require.NoError(t, err)
	assert.Equal(t, `"undefined"`, got)
}

func TestGoBackAndForward(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, navPageA)
	openHTML(t, e, navPageB)

	moved, err := e.GoBack()
	require.NoError(t, err)
	assert.True(t, moved)
	title, _ := e.Title()
	assert.Equal(t, "Page A", title)

	moved, err = e.GoForward()
	require.NoError(t, err)
	assert.True(t, moved)
	title, _ = e.Title()
	assert.Equal(t, "Page B", title)
}

func TestHistoryWithoutEntries(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, basicHTML)

	moved, err := e.GoBack()
	require.NoError(t, err)
	assert.False(t, moved)

	moved, err = e.GoForward()
	require.NoError(t, err)
	assert.False(t, moved)
}

// -- Input --

func TestClickCoordinates(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, formHTML)

	rect, err := e.ElementRect("#submit-btn")
	require.NoError(t, err)
	x, y := rect.Center()
	require.NoError(t, e.Click(x, y))

	text, err := e.ElementText("#result")
	require.NoError(t, err)
	assert.Equal(t, "clicked", text)
}

func TestClickSelector(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, formHTML)

	require.NoError(t, e.ClickSelector("#submit-btn"))
	text, err := e.ElementText("#result")
	require.NoError(t, err)
	assert.Equal(t, "clicked", text)

	err = e.ClickSelector("#nonexistent")
	assert.ErrorIs(t, err, schemas.ErrSelectorNotFound)
	assert.Equal(t, "selector not found: #nonexistent", err.Error())
}

func TestTypeText(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, formHTML)

	require.NoError(t, e.ClickSelector("#name-input"))
	require.NoError(t, e.TypeText("hello"))

	got, err := e.Evaluate("document.getElementById('name-input').value")
	require.NoError(t, err)
	assert.Equal(t, `"hello"`, got)
}

func TestKeyPress(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, `<html><body><script>`+
		`window.keys = [];`+
		`document.addEventListener('keydown', function(ev) { keys.push(ev.key); });`+
		`</script></body></html>`)

	for _, k := range []string{"Enter", "Tab", "Space", "a"} {
		require.NoError(t, e.KeyPress(k))
	}
	got, err := e.Evaluate("keys")
	require.NoError(t, err)
	assert.Equal(t, `["Enter","Tab"," ","a"]`, got)
}

func TestParseKeyName(t *testing.T) {
	assert.Equal(t, renderer.Key{Named: renderer.KeyEnter}, ParseKeyName("Enter"))
	assert.Equal(t, renderer.Key{Named: renderer.KeyPageDown}, ParseKeyName("PageDown"))
	assert.Equal(t, renderer.CharacterKey(" "), ParseKeyName("Space"))
	assert.Equal(t, renderer.CharacterKey(" "), ParseKeyName(" "))
	assert.Equal(t, renderer.CharacterKey("q"), ParseKeyName("q"))
}

func TestMouseMove(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, `<html><body style="height:2000px"><script>`+
		`window.moves = [];`+
		`document.addEventListener('mousemove', function(ev) { moves.push([ev.clientX, ev.clientY]); });`+
		`</script></body></html>`)

	require.NoError(t, e.MouseMove(120, 80))
	got, err := e.Evaluate("moves[moves.length - 1]")
	require.NoError(t, err)
	assert.Equal(t, "[120,80]", got)
}

func TestScroll(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, tallHTML)

	require.NoError(t, e.Scroll(0, 500))
	got, err := e.Evaluate("window.scrollY")
	require.NoError(t, err)
	assert.Equal(t, "500", got)

	require.NoError(t, e.Scroll(0, -200))
	got, err = e.Evaluate("window.scrollY")
	require.NoError(t, err)
	assert.Equal(t, "300", got)
}

func TestScrollToSelector(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, tallHTML)

	require.NoError(t, e.ScrollToSelector("#bottom"))
	rect, err := e.ElementRect("#bottom")
	require.NoError(t, err)
	assert.Greater(t, rect.Y, 0.0)
	assert.Less(t, rect.Y, 600.0)

	assert.ErrorIs(t, e.ScrollToSelector("#nonexistent"), schemas.ErrSelectorNotFound)
}

// -- Forms --

func TestSelectOption(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, controlsHTML)

	require.NoError(t, e.SelectOption("#color", "green"))
	got, err := e.Evaluate("[document.getElementById('color').value, changes]")
	require.NoError(t, err)
	assert.Equal(t, `["green",["color:green"]]`, got)

	err = e.SelectOption("#color", "blue")
	assert.ErrorIs(t, err, schemas.ErrJSError)
	assert.Contains(t, err.Error(), "no option with value 'blue'")

	err = e.SelectOption("#text", "x")
	assert.ErrorIs(t, err, schemas.ErrJSError)
	assert.Contains(t, err.Error(), "is not a <select>")

	assert.ErrorIs(t, e.SelectOption("#missing", "x"), schemas.ErrSelectorNotFound)
}

func TestSetInputFiles(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, controlsHTML)

	files := []schemas.InputFile{
		{Name: "notes.txt", MimeType: "text/plain", Data: []byte("hello")},
		{Name: "it's \"quoted\".bin", MimeType: "application/octet-stream", Data: []byte{0, 1, 255}},
	}
	require.NoError(t, e.SetInputFiles("#upload", files))

	got, err := e.Evaluate(`(function() {
		var f = document.getElementById('upload').files;
		return [f.length, f[0].name, f[0].type, f[0].size, f[1].name, f[1].size, changes];
	})()`)
	require.NoError(t, err)
	assert.Equal(t, `[2,"notes.txt","text/plain",5,"it's \"quoted\".bin",3,["upload:2"]]`, got)

	got, err = e.Evaluate(`document.getElementById('upload').files[0].text()`)
	require.NoError(t, err)
	assert.Equal(t, `"hello"`, got)

	got, err = e.Evaluate(`document.getElementById('upload').files[1].arrayBuffer().then(function(b) {
		return Array.prototype.slice.call(new Uint8Array(b));
	})`)
	require.NoError(t, err)
	assert.Equal(t, `[0,1,255]`, got, "binary content survives the base64 round trip")

	err = e.SetInputFiles("#text", files)
	assert.ErrorIs(t, err, schemas.ErrJSError)
	assert.Contains(t, err.Error(), "is not an <input type=\"file\">")

	assert.ErrorIs(t, e.SetInputFiles("#missing", files), schemas.ErrSelectorNotFound)
}

// -- Cookies and interception --

func TestCookiesOnDataURL(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, basicHTML)

	cookies, err := e.GetCookies()
	require.NoError(t, err)
	assert.Empty(t, cookies)
	require.NoError(t, e.SetCookie("test=value; path=/"))
	require.NoError(t, e.ClearCookies())
}

func TestCookiesOverHTTP(t *testing.T) {
	srv := newSite(t)
	e := newTestEngine(t, testOptions())
	require.NoError(t, e.Open(srv.URL+"/"))

	require.NoError(t, e.SetCookie("a=1; path=/"))
	require.NoError(t, e.SetCookie("b=2; path=/"))
	cookies, err := e.GetCookies()
	require.NoError(t, err)
	assert.Contains(t, cookies, "a=1")
	assert.Contains(t, cookies, "b=2")

	require.NoError(t, e.ClearCookies())
	cookies, err = e.GetCookies()
	require.NoError(t, err)
	assert.Empty(t, cookies)
}

func TestBlockURLs(t *testing.T) {
	srv := newSite(t)
	e := newTestEngine(t, testOptions())

	id, err := e.NewPage()
	require.NoError(t, err)
	require.NoError(t, e.SwitchTo(id))
	e.BlockURLs([]string{".js"})
	require.NoError(t, e.Open(srv.URL+"/"))

	got, err := e.Evaluate("typeof window.fromScript")
	require.NoError(t, err)
	assert.Equal(t, `"undefined"`, got)

	var sawScript bool
	for _, r := range e.NetworkRequests() {
		if r.URL == srv.URL+"/app.js" {
			sawScript = true
			assert.False(t, r.IsMainFrame)
		}
	}
	assert.True(t, sawScript, "blocked requests are still recorded")

	e.ClearBlockedURLs()
	require.NoError(t, e.Reload())
	got, err = e.Evaluate("window.fromScript === true")
	require.NoError(t, err)
	assert.Equal(t, "true", got)
}

// -- Element info --

func TestElementInfo(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, basicHTML)

	rect, err := e.ElementRect("#heading")
	require.NoError(t, err)
	assert.Greater(t, rect.Width, 0.0)
	assert.Greater(t, rect.Height, 0.0)

	text, err := e.ElementText("#heading")
	require.NoError(t, err)
	assert.Equal(t, "Hello World", text)

	html, err := e.ElementHTML("#heading")
	require.NoError(t, err)
	assert.Contains(t, html, "<h1")
	assert.Contains(t, html, `id="heading"`)

	val, ok, err := e.ElementAttribute("#heading", "data-testid")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "main-heading", val)

	_, ok, err = e.ElementAttribute("#heading", "nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)

	for name, op := range map[string]func() error{
		"rect":      func() error { _, err := e.ElementRect("#nonexistent"); return err },
		"text":      func() error { _, err := e.ElementText("#nonexistent"); return err },
		"html":      func() error { _, err := e.ElementHTML("#nonexistent"); return err },
		"attribute": func() error { _, _, err := e.ElementAttribute("#nonexistent", "class"); return err },
	} {
		err := op()
		assert.ErrorIs(t, err, schemas.ErrSelectorNotFound, name)
		var pe *schemas.Error
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "#nonexistent", pe.Msg, name)
	}
}

// -- Absent pages --

// contentOps are the operations that need an attached page.
func contentOps(e *PageEngine) map[string]func() error {
	return map[string]func() error{
		"HTML":               func() error { _, err := e.HTML(); return err },
		"Evaluate":           func() error { _, err := e.Evaluate("1"); return err },
		"Screenshot":         func() error { _, err := e.Screenshot(); return err },
		"ScreenshotFullPage": func() error { _, err := e.ScreenshotFullPage(); return err },
		"Reload":             e.Reload,
		"GoBack":             func() error { _, err := e.GoBack(); return err },
		"GoForward":          func() error { _, err := e.GoForward(); return err },
		"Click":              func() error { return e.Click(0, 0) },
		"ClickSelector":      func() error { return e.ClickSelector("h1") },
		"TypeText":           func() error { return e.TypeText("a") },
		"KeyPress":           func() error { return e.KeyPress("Enter") },
		"MouseMove":          func() error { return e.MouseMove(0, 0) },
		"Scroll":             func() error { return e.Scroll(0, 10) },
		"ScrollToSelector":   func() error { return e.ScrollToSelector("h1") },
		"SelectOption":       func() error { return e.SelectOption("select", "a") },
		"SetInputFiles":      func() error { return e.SetInputFiles("input", nil) },
		"GetCookies":         func() error { _, err := e.GetCookies(); return err },
		"SetCookie":          func() error { return e.SetCookie("a=b") },
		"ClearCookies":       e.ClearCookies,
		"ElementRect":        func() error { _, err := e.ElementRect("h1"); return err },
		"ElementText":        func() error { _, err := e.ElementText("h1"); return err },
		"ElementAttribute":   func() error { _, _, err := e.ElementAttribute("h1", "id"); return err },
		"ElementHTML":        func() error { _, err := e.ElementHTML("h1"); return err },
		"WaitForSelector":    func() error { return e.WaitForSelector("h1", time.Second) },
		"WaitForCondition":   func() error { return e.WaitForCondition("true", time.Second) },
		"WaitForNavigation":  func() error { return e.WaitForNavigation(time.Second) },
		"WaitForNetworkIdle": func() error { return e.WaitForNetworkIdle(time.Millisecond, time.Second) },
	}
}

func assertNoPage(t *testing.T, e *PageEngine) {
	t.Helper()
	for name, op := range contentOps(e) {
		assert.ErrorIs(t, op(), schemas.ErrNoPage, name)
	}

	_, ok := e.URL()
	assert.False(t, ok)
	_, ok = e.Title()
	assert.False(t, ok)

	e.BlockURLs([]string{"test"})
	e.ClearBlockedURLs()
	e.Wait(10 * time.Millisecond)
	assert.Empty(t, e.ConsoleMessages())
	assert.Empty(t, e.NetworkRequests())
}

func TestOperationsBeforeOpen(t *testing.T) {
	e := newTestEngine(t, testOptions())
	assertNoPage(t, e)
}

func TestOperationsAfterClose(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, basicHTML)
	e.Close()
	assertNoPage(t, e)
}

func TestOperationsOnUnopenedPage(t *testing.T) {
	e := newTestEngine(t, testOptions())
	id, err := e.NewPage()
	require.NoError(t, err)
	require.NoError(t, e.SwitchTo(id))
	assertNoPage(t, e)
}

// -- Multi-page --

func TestMultiPageLifecycle(t *testing.T) {
	e := newTestEngine(t, testOptions())

	first, err := e.NewPage()
	require.NoError(t, err)
	second, err := e.NewPageWithSize(400, 300)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1}, []uint32{first, second})
	assert.Equal(t, 2, e.PageCount())
	_, ok := e.ActivePageID()
	assert.False(t, ok, "new pages are not activated")

	require.NoError(t, e.SwitchTo(first))
	openHTML(t, e, navPageA)
	require.NoError(t, e.SwitchTo(second))
	openHTML(t, e, navPageB)

	data, err := e.Screenshot()
	require.NoError(t, err)
	img, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())

	title, ok := e.PageTitle(first)
	require.True(t, ok)
	assert.Equal(t, "Page A", title)
	u, ok := e.PageURL(second)
	require.True(t, ok)
	assert.Contains(t, u, "data:text/html")

	assert.ErrorIs(t, e.SwitchTo(99), schemas.ErrNoPage)
	assert.ErrorIs(t, e.ClosePage(99), schemas.ErrNoPage)

	require.NoError(t, e.ClosePage(second))
	_, ok = e.ActivePageID()
	assert.False(t, ok, "closing the active page leaves no page active")
	assert.Equal(t, []uint32{first}, e.PageIDs())
	_, ok = e.PageTitle(second)
	assert.False(t, ok)

	third, err := e.NewPage()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), third, "ids are never reused")
	assert.Equal(t, []uint32{0, 2}, e.PageIDs())
}

func TestPopups(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, basicHTML)
	popup := dataURL(`<title>Popup</title><body>popup</body>`)

	got, err := e.Evaluate(fmt.Sprintf("window.open(%s) === null", jsString(popup)))
	require.NoError(t, err)
	assert.Equal(t, "true", got, "popups are blocked by default")
	assert.Empty(t, e.PopupPages())

	e.SetPopupHandling(true)
	_, err = e.Evaluate(fmt.Sprintf("window.open(%s); window.open(%s); 0", jsString(popup), jsString(dataURL(navPageA))))
	require.NoError(t, err)

	ids := e.PopupPages()
	assert.Equal(t, []uint32{1, 2}, ids)
	assert.Empty(t, e.PopupPages(), "the popup buffer is drained")
	assert.Equal(t, 3, e.PageCount())

	require.NoError(t, e.SwitchTo(ids[0]))
	require.NoError(t, e.WaitForCondition("document.title === 'Popup'", 5*time.Second))
	title, _ := e.PageTitle(ids[0])
	assert.Equal(t, "Popup", title)
	require.NoError(t, e.SwitchTo(ids[1]))
	require.NoError(t, e.WaitForCondition("document.title === 'Page A'", 5*time.Second))
}

func TestReset(t *testing.T) {
	e := newTestEngine(t, testOptions())
	openHTML(t, e, basicHTML)
	_, err := e.NewPage()
	require.NoError(t, err)
	e.SetPopupHandling(true)
	_, err = e.Evaluate("window.open('about:blank'); 0")
	require.NoError(t, err)

	e.Reset()
	assert.Equal(t, 0, e.PageCount())
	assert.Empty(t, e.PageIDs())
	_, ok := e.ActivePageID()
	assert.False(t, ok)
	assert.Empty(t, e.PopupPages())

	openHTML(t, e, navPageA)
	id, ok := e.ActivePageID()
	require.True(t, ok)
	assert.Equal(t, uint32(0), id, "ids restart after reset")
}

func TestLoadTimeoutKeepsPageAttached(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
		fmt.Fprint(w, "<title>Slow</title>")
	}))
	t.Cleanup(slow.Close)

	opts := testOptions()
	opts.Timeout = 300 * time.Millisecond
	e := newTestEngine(t, opts)
	openHTML(t, e, basicHTML)

	err := e.Open(slow.URL)
	assert.ErrorIs(t, err, schemas.ErrTimeout)
	assert.Equal(t, "timed out: page load", err.Error())
	assert.Equal(t, 1, e.PageCount())

	openHTML(t, e, navPageA)
	title, _ := e.Title()
	assert.Equal(t, "Page A", title)
}
