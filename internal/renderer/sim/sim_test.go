package sim

import (
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/pagedriver/internal/renderer"
	"github.com/xkilldash9x/pagedriver/internal/runloop"
)

const (
	basicHTML = `<!DOCTYPE html><html><head><title>Test Page</title></head><body>
<h1 id="heading" class="main" data-testid="main-heading">Hello World</h1>
<p>Some paragraph text.</p>
<a id="link" href="#section">Link</a>
</body></html>`

	formHTML = `<html><head><title>Form Page</title></head><body>
<input id="name-input" type="text" placeholder="Name">
<button id="submit-btn" onclick="document.getElementById('result').textContent = 'clicked'">Submit</button>
<div id="result">not clicked</div>
</body></html>`

	consoleHTML = `<html><body><script>
console.log('log message');
console.warn('warn message');
console.error('error message');
</script></body></html>`

	dynamicHTML = `<html><body><script>
setTimeout(function () {
  var el = document.createElement('div');
  el.id = 'delayed';
  el.textContent = 'Appeared';
  document.body.appendChild(el);
}, 200);
</script></body></html>`

	tallHTML = `<html><body><div style="height: 3000px; background: linear-gradient(red, blue)">Tall content</div></body></html>`
)

func dataURL(doc string) *url.URL {
	u, err := url.Parse("data:text/html," + url.PathEscape(doc))
	if err != nil {
		panic(err)
	}
	return u
}

type consoleEntry struct {
	level   renderer.ConsoleLevel
	message string
}

// recorder is a delegate that records what the renderer reports.
type recorder struct {
	loads    int
	frames   int
	console  []consoleEntry
	dialogs  []string
	requests []renderer.ResourceRequest
	popups   []string
	closed   bool

	onDialog func(renderer.Dialog)
	block    func(renderer.ResourceRequest) bool
}

func (r *recorder) NotifyLoadStatusChanged(_ renderer.WebView, status renderer.LoadStatus) {
	if status == renderer.LoadComplete {
		r.loads++
	}
}

func (r *recorder) NotifyNewFrameReady(wv renderer.WebView) {
	r.frames++
	wv.Paint()
}

func (r *recorder) ShowConsoleMessage(_ renderer.WebView, level renderer.ConsoleLevel, msg string) {
	r.console = append(r.console, consoleEntry{level: level, message: msg})
}

func (r *recorder) LoadWebResource(_ renderer.WebView, load renderer.ResourceLoad) {
	r.requests = append(r.requests, load.Request())
	if r.block != nil && r.block(load.Request()) {
		load.Cancel()
	}
}

func (r *recorder) ShowDialog(_ renderer.WebView, dlg renderer.Dialog) {
	r.dialogs = append(r.dialogs, dlg.Kind().String()+":"+dlg.Message())
	if r.onDialog != nil {
		r.onDialog(dlg)
	}
}

func (r *recorder) NotifyClosed(renderer.WebView) { r.closed = true }

func (r *recorder) RequestCreateNew(_ renderer.WebView, req renderer.NewWebViewRequest) {
	r.popups = append(r.popups, req.URL())
}

type harness struct {
	t   *testing.T
	r   *Renderer
	drv *runloop.Driver
	rec *recorder
	wv  renderer.WebView
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	loop := runloop.NewEventLoop()
	r, err := New(renderer.Options{Waker: loop.NewWaker(), Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Shutdown() })
	return &harness{t: t, r: r, drv: runloop.NewDriver(loop, r), rec: &recorder{}}
}

// open starts a view on u and waits for its load to complete.
func (h *harness) open(u *url.URL) {
	h.t.Helper()
	s, err := h.r.NewSurface(800, 600)
	require.NoError(h.t, err)
	wv, err := h.r.NewWebView(s, h.rec, u)
	require.NoError(h.t, err)
	h.wv = wv
	h.waitLoads(1)
}

func (h *harness) waitLoads(n int) {
	h.t.Helper()
	require.True(h.t, h.drv.SpinUntil(func() bool { return h.rec.loads >= n }, 5*time.Second), "load did not complete")
}

func (h *harness) eval(script string) (renderer.JSValue, error) {
	h.t.Helper()
	var (
		done bool
		val  renderer.JSValue
		err  error
	)
	h.wv.EvaluateJavaScript(script, func(v renderer.JSValue, e error) {
		val, err, done = v, e, true
	})
	require.True(h.t, h.drv.SpinUntil(func() bool { return done }, 5*time.Second), "evaluation did not complete")
	return val, err
}

func (h *harness) mustEval(script string) renderer.JSValue {
	h.t.Helper()
	v, err := h.eval(script)
	require.NoError(h.t, err)
	return v
}

// waitTrue polls a script condition.
func (h *harness) waitTrue(script string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if renderer.Truthy(h.mustEval(script)) {
			return true
		}
		h.drv.SpinFor(10 * time.Millisecond)
	}
	return false
}

func (h *harness) screenshot() *image.RGBA {
	h.t.Helper()
	var (
		done bool
		img  *image.RGBA
		err  error
	)
	h.wv.TakeScreenshot(func(i *image.RGBA, e error) { img, err, done = i, e, true })
	require.True(h.t, h.drv.SpinUntil(func() bool { return done }, 5*time.Second))
	require.NoError(h.t, err)
	return img
}

func (h *harness) input(events ...renderer.InputEvent) {
	for _, ev := range events {
		h.wv.NotifyInputEvent(ev)
	}
	h.drv.SpinFor(20 * time.Millisecond)
}

func TestDocumentBasics(t *testing.T) {
	h := newHarness(t)
	h.open(dataURL(basicHTML))

	title, ok := h.wv.Title()
	require.True(t, ok)
	assert.Equal(t, "Test Page", title)

	u, ok := h.wv.URL()
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(u, "data:text/html,"))

	assert.Equal(t, renderer.String("Hello World"), h.mustEval(`document.querySelector('#heading').textContent`))
	assert.Equal(t, renderer.String("main-heading"), h.mustEval(`document.getElementById('heading').dataset.testid`))
	assert.Equal(t, renderer.Number(1), h.mustEval(`document.querySelectorAll('h1.main').length`))
	assert.Equal(t, renderer.String("complete"), h.mustEval(`document.readyState`))
	assert.Equal(t, renderer.Boolean(true), h.mustEval(`document.getElementById('heading') instanceof HTMLElement`))
}

func TestEvaluateValueConversion(t *testing.T) {
	h := newHarness(t)
	h.open(dataURL(basicHTML))

	el := h.mustEval(`document.getElementById('heading')`)
	assert.IsType(t, renderer.Element(""), el)
	assert.Equal(t, el, h.mustEval(`document.querySelector('h1')`), "the same node maps to the same handle")

	assert.IsType(t, renderer.Window(""), h.mustEval(`window`))
	assert.Equal(t, renderer.Undefined{}, h.mustEval(`undefined`))
	assert.Equal(t, renderer.Null{}, h.mustEval(`null`))

	obj, ok := h.mustEval(`({a: 1, b: [true, 'x'], f: function () {}})`).(*renderer.Object)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, obj.Keys)
	assert.Equal(t, renderer.Number(1), obj.Get("a"))
	assert.Equal(t, renderer.Array{renderer.Boolean(true), renderer.String("x")}, obj.Get("b"))

	cyc, ok := h.mustEval(`(function () { var o = {name: 'o'}; o.self = o; return o; })()`).(*renderer.Object)
	require.True(t, ok)
	assert.Equal(t, renderer.Null{}, cyc.Get("self"))

	_, err := h.eval(`throw new Error('boom')`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	_, err = h.eval(`this is not javascript`)
	require.Error(t, err)
}

func TestEvaluatePromise(t *testing.T) {
	h := newHarness(t)
	h.open(dataURL(basicHTML))

	v := h.mustEval(`new Promise(function (resolve) { setTimeout(function () { resolve(42); }, 50); })`)
	assert.Equal(t, renderer.Number(42), v)

	_, err := h.eval(`Promise.reject(new Error('nope'))`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestScriptClickRunsInlineHandler(t *testing.T) {
	h := newHarness(t)
	h.open(dataURL(formHTML))

	assert.Equal(t, renderer.String("not clicked"), h.mustEval(`document.getElementById('result').textContent`))
	assert.Equal(t, renderer.String("clicked"), h.mustEval(
		`document.getElementById('submit-btn').click(); document.getElementById('result').textContent`))
}

func TestMouseClickHitsButton(t *testing.T) {
	h := newHarness(t)
	h.open(dataURL(formHTML))

	center, ok := h.mustEval(`(function () {
		var r = document.getElementById('submit-btn').getBoundingClientRect();
		return [r.left + r.width / 2, r.top + r.height / 2];
	})()`).(renderer.Array)
	require.True(t, ok)
	require.Len(t, center, 2)
	x, y := float64(center[0].(renderer.Number)), float64(center[1].(renderer.Number))

	h.input(
		renderer.MouseMoveEvent{X: x, Y: y},
		renderer.MouseButtonEvent{Action: renderer.MouseDown, Button: renderer.MouseLeft, X: x, Y: y},
		renderer.MouseButtonEvent{Action: renderer.MouseUp, Button: renderer.MouseLeft, X: x, Y: y},
	)
	assert.Equal(t, renderer.String("clicked"), h.mustEval(`document.getElementById('result').textContent`))
	assert.Equal(t, renderer.String("submit-btn"), h.mustEval(`document.activeElement.id`))
}

func TestKeyboardTyping(t *testing.T) {
	h := newHarness(t)
	h.open(dataURL(formHTML))

	h.mustEval(`window.inputs = 0;
		var el = document.getElementById('name-input');
		el.addEventListener('input', function () { window.inputs++; });
		el.focus();`)
	h.input(
		renderer.KeyboardEvent{State: renderer.KeyDown, Key: renderer.CharacterKey("h")},
		renderer.KeyboardEvent{State: renderer.KeyUp, Key: renderer.CharacterKey("h")},
		renderer.KeyboardEvent{State: renderer.KeyDown, Key: renderer.CharacterKey("i")},
		renderer.KeyboardEvent{State: renderer.KeyUp, Key: renderer.CharacterKey("i")},
		renderer.KeyboardEvent{State: renderer.KeyDown, Key: renderer.CharacterKey("!")},
		renderer.KeyboardEvent{State: renderer.KeyDown, Key: renderer.Key{Named: renderer.KeyBackspace}},
	)
	assert.Equal(t, renderer.String("hi"), h.mustEval(`document.getElementById('name-input').value`))
	assert.Equal(t, renderer.Number(4), h.mustEval(`window.inputs`))
}

func TestEnterKeyDefaults(t *testing.T) {
	h := newHarness(t)
	h.open(dataURL(formHTML))
	enter := func() {
		h.input(
			renderer.KeyboardEvent{State: renderer.KeyDown, Key: renderer.Key{Named: renderer.KeyEnter}},
			renderer.KeyboardEvent{State: renderer.KeyUp, Key: renderer.Key{Named: renderer.KeyEnter}},
		)
	}

	h.mustEval(`document.getElementById('submit-btn').focus()`)
	enter()
	assert.Equal(t, renderer.String("clicked"), h.mustEval(`document.getElementById('result').textContent`))

	h.mustEval(`var ta = document.createElement('textarea');
		ta.id = 'notes';
		document.body.appendChild(ta);
		ta.focus();`)
	h.input(renderer.KeyboardEvent{State: renderer.KeyDown, Key: renderer.CharacterKey("a")})
	enter()
	h.input(renderer.KeyboardEvent{State: renderer.KeyDown, Key: renderer.CharacterKey("b")})
	assert.Equal(t, renderer.String("a\nb"), h.mustEval(`document.getElementById('notes').value`))
}

func TestConsoleMessages(t *testing.T) {
	h := newHarness(t)
	h.open(dataURL(consoleHTML))

	require.Len(t, h.rec.console, 3)
	assert.Equal(t, consoleEntry{renderer.ConsoleLog, "log message"}, h.rec.console[0])
	assert.Equal(t, consoleEntry{renderer.ConsoleWarn, "warn message"}, h.rec.console[1])
	assert.Equal(t, consoleEntry{renderer.ConsoleError, "error message"}, h.rec.console[2])

	h.mustEval(`console.info('n =', 3, {a: 1})`)
	last := h.rec.console[len(h.rec.console)-1]
	assert.Equal(t, renderer.ConsoleInfo, last.level)
	assert.Equal(t, `n = 3 {"a":1}`, last.message)
}

func TestTimersMutateTheDocument(t *testing.T) {
	h := newHarness(t)
	h.open(dataURL(dynamicHTML))

	assert.Equal(t, renderer.Boolean(false), h.mustEval(`!!document.getElementById('delayed')`))
	assert.True(t, h.waitTrue(`!!document.getElementById('delayed')`, 3*time.Second))

	h.mustEval(`window.ticks = 0; window.iv = setInterval(function () { window.ticks++; }, 10);`)
	assert.True(t, h.waitTrue(`window.ticks >= 3`, 3*time.Second))
	h.mustEval(`clearInterval(window.iv); window.frozen = window.ticks;`)
	h.drv.SpinFor(60 * time.Millisecond)
	assert.Equal(t, renderer.Boolean(true), h.mustEval(`window.ticks === window.frozen`))
}

func TestLayoutAndScreenshot(t *testing.T) {
	h := newHarness(t)
	h.open(dataURL(tallHTML))

	assert.Equal(t, renderer.Number(3016), h.mustEval(
		`Math.max(document.documentElement.scrollHeight, document.body.scrollHeight)`))
	assert.Equal(t, renderer.Number(800), h.mustEval(`window.innerWidth`))

	img := h.screenshot()
	assert.Equal(t, image.Rect(0, 0, 800, 600), img.Rect)
	top := img.RGBAAt(400, 100)
	assert.Greater(t, top.R, uint8(200), "the gradient starts red")
	assert.Less(t, top.B, uint8(60))
	corner := img.RGBAAt(2, 2)
	assert.Equal(t, uint8(255), corner.G, "the body margin shows the white canvas")

	h.mustEval(`window.scrollTo(0, 2400)`)
	assert.Equal(t, renderer.Number(2400), h.mustEval(`window.scrollY`))
	bottom := h.screenshot().RGBAAt(100, 300)
	assert.Greater(t, bottom.B, bottom.R, "scrolling far down shows the blue end")

	h.mustEval(`window.scrollTo(0, 0)`)
	h.input(renderer.WheelEvent{DY: -200, X: 100, Y: 100})
	assert.Equal(t, renderer.Number(200), h.mustEval(`window.scrollY`))
}

func TestComputedStyleCascade(t *testing.T) {
	h := newHarness(t)
	h.open(dataURL(`<html><head><style>
		p { color: blue; }
		#special { color: #ff0000; }
		.hidden { display: none }
	</style></head><body>
		<p id="plain">a</p><p id="special" style="font-size: 20px">b</p><p class="hidden" id="gone">c</p>
	</body></html>`))

	assert.Equal(t, renderer.String("rgb(0, 0, 255)"), h.mustEval(`getComputedStyle(document.getElementById('plain')).color`))
	assert.Equal(t, renderer.String("rgb(255, 0, 0)"), h.mustEval(`getComputedStyle(document.getElementById('special')).color`))
	assert.Equal(t, renderer.String("20px"), h.mustEval(`getComputedStyle(document.getElementById('special')).fontSize`))
	assert.Equal(t, renderer.String("none"), h.mustEval(`getComputedStyle(document.getElementById('gone')).display`))
	assert.Equal(t, renderer.Number(0), h.mustEval(`document.getElementById('gone').getBoundingClientRect().height`))

	h.mustEval(`document.getElementById('plain').style.color = 'green'`)
	assert.Equal(t, renderer.String("rgb(0, 128, 0)"), h.mustEval(`getComputedStyle(document.getElementById('plain')).color`))
	assert.Equal(t, renderer.String("color: green;"), h.mustEval(`document.getElementById('plain').getAttribute('style')`))
}

func TestDialogs(t *testing.T) {
	h := newHarness(t)
	h.rec.onDialog = func(d renderer.Dialog) {
		if d.Kind() == renderer.DialogConfirm {
			d.Confirm()
		}
	}
	h.open(dataURL(basicHTML))

	assert.Equal(t, renderer.Boolean(true), h.mustEval(`confirm('sure?')`))
	assert.Equal(t, renderer.Undefined{}, h.mustEval(`alert('hi')`))
	assert.Equal(t, renderer.Null{}, h.mustEval(`prompt('name?')`))
	assert.Equal(t, []string{"confirm:sure?", "alert:hi", "prompt:name?"}, h.rec.dialogs)
}

func TestScriptNavigationAndHistory(t *testing.T) {
	h := newHarness(t)
	h.open(dataURL(basicHTML))

	target := "data:text/html," + url.PathEscape(`<title>Nav End</title><body>Done</body>`)
	h.mustEval(fmt.Sprintf(`setTimeout(function () { location.href = %q; }, 50)`, target))
	h.waitLoads(2)

	title, _ := h.wv.Title()
	assert.Equal(t, "Nav End", title)
	assert.True(t, h.wv.CanGoBack())
	assert.False(t, h.wv.CanGoForward())

	h.wv.GoBack(1)
	h.waitLoads(3)
	title, _ = h.wv.Title()
	assert.Equal(t, "Test Page", title)
	assert.True(t, h.wv.CanGoForward())
}

func TestFragmentNavigationStaysOnDocument(t *testing.T) {
	h := newHarness(t)
	h.open(dataURL(basicHTML))

	h.mustEval(`window.marker = 'kept'; window.hashes = 0;
		window.addEventListener('hashchange', function () { window.hashes++; });
		document.getElementById('link').click();`)
	h.drv.SpinFor(20 * time.Millisecond)
	assert.Equal(t, renderer.String("kept"), h.mustEval(`window.marker`))
	assert.Equal(t, renderer.String("#section"), h.mustEval(`location.hash`))
	assert.Equal(t, renderer.Number(1), h.mustEval(`window.hashes`))
}

func TestPopupsGoThroughTheDelegate(t *testing.T) {
	h := newHarness(t)
	h.open(dataURL(basicHTML))

	assert.Equal(t, renderer.Boolean(true), h.mustEval(`window.open('about:blank') === null`))
	assert.Equal(t, []string{"about:blank"}, h.rec.popups)
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Home</title><script src="/app.js"></script></head><body>
<form id="get" action="/search"><input name="q" value="hello"><button type="submit">Go</button></form>
<form id="post" action="/echo" method="post"><input name="q" value="posted"><input type="checkbox" name="c" value="yes" checked></form>
</body></html>`)
	})
	mux.HandleFunc("/app.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		fmt.Fprint(w, `window.fromScript = true;`)
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<title>%s</title>`, r.URL.Query().Get("q"))
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		fmt.Fprintf(w, `<title>%s %s %s</title>`, r.Method, r.PostForm.Get("q"), r.PostForm.Get("c"))
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int{"n": 3})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPPageScriptsAndCookies(t *testing.T) {
	srv := newSite(t)
	h := newHarness(t)
	u, _ := url.Parse(srv.URL + "/")
	h.open(u)

	assert.Equal(t, renderer.Boolean(true), h.mustEval(`window.fromScript === true`))
	assert.Equal(t, renderer.String("session=abc"), h.mustEval(`document.cookie`))

	h.mustEval(`document.cookie = 'theme=dark; path=/'`)
	cookies := string(h.mustEval(`document.cookie`).(renderer.String))
	assert.Contains(t, cookies, "session=abc")
	assert.Contains(t, cookies, "theme=dark")

	require.NotEmpty(t, h.rec.requests)
	assert.True(t, h.rec.requests[0].IsMainFrame)
}

func TestBlockedSubresource(t *testing.T) {
	srv := newSite(t)
	h := newHarness(t)
	h.rec.block = func(req renderer.ResourceRequest) bool { return strings.HasSuffix(req.URL, ".js") }
	u, _ := url.Parse(srv.URL + "/")
	h.open(u)

	assert.Equal(t, renderer.String("undefined"), h.mustEval(`typeof window.fromScript`))
	title, _ := h.wv.Title()
	assert.Equal(t, "Home", title)
}

func TestFetch(t *testing.T) {
	srv := newSite(t)
	h := newHarness(t)
	u, _ := url.Parse(srv.URL + "/")
	h.open(u)

	assert.Equal(t, renderer.Number(3), h.mustEval(`fetch('/data').then(function (r) { return r.json(); }).then(function (j) { return j.n; })`))
	assert.Equal(t, renderer.Number(200), h.mustEval(`fetch('/data').then(function (r) { return r.status; })`))
}

func TestFormSubmission(t *testing.T) {
	srv := newSite(t)

	t.Run("get by button click", func(t *testing.T) {
		h := newHarness(t)
		u, _ := url.Parse(srv.URL + "/")
		h.open(u)
		h.mustEval(`document.querySelector('#get button').click()`)
		h.waitLoads(2)
		title, _ := h.wv.Title()
		assert.Equal(t, "hello", title)
		cur, _ := h.wv.URL()
		assert.Contains(t, cur, "/search?q=hello")
	})

	t.Run("post by submit()", func(t *testing.T) {
		h := newHarness(t)
		u, _ := url.Parse(srv.URL + "/")
		h.open(u)
		h.mustEval(`document.getElementById('post').submit()`)
		h.waitLoads(2)
		title, _ := h.wv.Title()
		assert.Equal(t, "POST posted yes", title)
	})

	t.Run("cancelled submit stays", func(t *testing.T) {
		h := newHarness(t)
		u, _ := url.Parse(srv.URL + "/")
		h.open(u)
		h.mustEval(`document.getElementById('get').addEventListener('submit', function (e) { e.preventDefault(); });
			document.querySelector('#get button').click()`)
		h.drv.SpinFor(100 * time.Millisecond)
		title, _ := h.wv.Title()
		assert.Equal(t, "Home", title)
	})
}

func TestControls(t *testing.T) {
	h := newHarness(t)
	h.open(dataURL(`<html><body>
		<select id="s"><option value="a">A</option><option value="b" selected>B</option></select>
		<input type="checkbox" id="c">
		<label for="c" id="l">check</label>
		<input type="radio" name="r" id="r1" checked><input type="radio" name="r" id="r2">
		<textarea id="t">initial</textarea>
	</body></html>`))

	assert.Equal(t, renderer.String("b"), h.mustEval(`document.getElementById('s').value`))
	assert.Equal(t, renderer.Number(0), h.mustEval(`var s = document.getElementById('s'); s.value = 'a'; s.selectedIndex`))

	assert.Equal(t, renderer.Boolean(true), h.mustEval(`document.getElementById('l').click(); document.getElementById('c').checked`))
	assert.Equal(t, renderer.Boolean(false), h.mustEval(`document.getElementById('r2').checked = true; document.getElementById('r1').checked`))

	assert.Equal(t, renderer.String("initial"), h.mustEval(`document.getElementById('t').value`))
	assert.Equal(t, renderer.String("changed|initial"), h.mustEval(
		`var t = document.getElementById('t'); t.value = 'changed'; t.value + '|' + t.defaultValue`))
}

func TestCloseNotifiesDelegate(t *testing.T) {
	h := newHarness(t)
	h.open(dataURL(basicHTML))

	h.wv.Close()
	require.True(t, h.drv.SpinUntil(func() bool { return h.rec.closed }, time.Second))
	_, err := h.eval(`1`)
	assert.ErrorIs(t, err, errViewClosed)
}
