package scraper

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/pagedriver/api/schemas"
	"github.com/xkilldash9x/pagedriver/internal/config"
	"github.com/xkilldash9x/pagedriver/internal/renderer"
	"github.com/xkilldash9x/pagedriver/internal/renderer/sim"
)

const basicHTML = `<html><head><title>Actor Page</title></head>
<body><h1 id="heading">Hello</h1><a id="link" href="/next" data-kind="nav">next</a></body></html>`

func dataURL(doc string) string {
	return "data:text/html," + url.PathEscape(doc)
}

func testOptions() schemas.PageOptions {
	return schemas.PageOptions{Width: 800, Height: 600, Timeout: 5 * time.Second, Wait: 50 * time.Millisecond}
}

func simFactory(opts renderer.Options) (renderer.Renderer, error) {
	r, err := sim.New(opts)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// newTestPage builds an actor with a private sim renderer so tests do not
// compete for the process-wide registry slot.
func newTestPage(t *testing.T, opts ...Option) *Page {
	t.Helper()
	opts = append([]Option{WithRendererFactory(simFactory), WithLogger(zaptest.NewLogger(t))}, opts...)
	p, err := New(testOptions(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown() })
	return p
}

// panickyRenderer panics the first time a surface is requested.
type panickyRenderer struct {
	renderer.Renderer
	panicked bool
}

func (r *panickyRenderer) NewSurface(w, h int) (renderer.Surface, error) {
	if !r.panicked {
		r.panicked = true
		panic("surface allocation exploded")
	}
	return r.Renderer.NewSurface(w, h)
}

// -- Lifecycle --

func TestPageLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p, err := New(testOptions(), WithRendererFactory(simFactory), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID())

	require.NoError(t, p.Open(dataURL(basicHTML)))
	title, ok := p.Title()
	require.True(t, ok)
	assert.Equal(t, "Actor Page", title)

	require.NoError(t, p.Shutdown())
	require.NoError(t, p.Shutdown(), "Shutdown is idempotent")

	select {
	case <-p.Done():
	default:
		t.Fatal("worker still running after Shutdown")
	}

	_, err = p.Evaluate("1")
	assert.True(t, errors.Is(err, schemas.ErrChannelClosed), "got %v", err)
	assert.ErrorIs(t, p.Open(dataURL(basicHTML)), schemas.ErrChannelClosed)
	_, ok = p.URL()
	assert.False(t, ok)
	_, ok = p.ActivePageID()
	assert.False(t, ok)
}

func TestPageInitFailure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	boom := errors.New("no display")
	_, err := New(testOptions(), WithRendererFactory(func(renderer.Options) (renderer.Renderer, error) {
		return nil, boom
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrInitFailed)
	assert.ErrorIs(t, err, boom)
}

func TestPageUnknownBackend(t *testing.T) {
	_, err := New(testOptions(), WithBackend("does-not-exist"))
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrInitFailed)
	assert.ErrorIs(t, err, renderer.ErrUnknownBackend)
}

// The registry hands out one renderer per process; this is the only test in
// the package that goes through it.
func TestPageDefaultBackendOpensOnce(t *testing.T) {
	p, err := New(testOptions(), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown() })

	require.NoError(t, p.Open(dataURL(basicHTML)))
	got, err := p.Evaluate("document.title")
	require.NoError(t, err)
	assert.Equal(t, `"Actor Page"`, got)

	_, err = New(testOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrInitFailed)
	assert.ErrorIs(t, err, renderer.ErrAlreadyOpened)
}

// -- Command serving --

func TestPageConcurrentCallers(t *testing.T) {
	p := newTestPage(t)
	require.NoError(t, p.Open(dataURL(basicHTML)))

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		i := i
		g.Go(func() error {
			got, err := p.Evaluate(fmt.Sprintf("%d * 2", i))
			if err != nil {
				return err
			}
			if got != strconv.Itoa(i*2) {
				return fmt.Errorf("caller %d got %s", i, got)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestPageCommandsFromOneCallerAreOrdered(t *testing.T) {
	p := newTestPage(t)
	require.NoError(t, p.Open(dataURL(basicHTML)))

	_, err := p.Evaluate("window.trail = []")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, err := p.Evaluate(fmt.Sprintf("window.trail.push(%d)", i))
		require.NoError(t, err)
	}
	got, err := p.Evaluate("window.trail")
	require.NoError(t, err)
	assert.Equal(t, "[0,1,2,3,4,5,6,7,8,9]", got)
}

func TestPagePanicIsRecovered(t *testing.T) {
	p := newTestPage(t, WithRendererFactory(func(opts renderer.Options) (renderer.Renderer, error) {
		r, err := sim.New(opts)
		if err != nil {
			return nil, err
		}
		return &panickyRenderer{Renderer: r}, nil
	}))

	err := p.Open(dataURL(basicHTML))
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrInternal)
	assert.Contains(t, err.Error(), "surface allocation exploded")

	require.NoError(t, p.Open(dataURL(basicHTML)), "the worker keeps serving after a panic")
	title, ok := p.Title()
	assert.True(t, ok)
	assert.Equal(t, "Actor Page", title)
}

func TestPageOperationsWithoutPage(t *testing.T) {
	p := newTestPage(t)

	_, err := p.Evaluate("1")
	assert.ErrorIs(t, err, schemas.ErrNoPage)
	_, err = p.HTML()
	assert.ErrorIs(t, err, schemas.ErrNoPage)
	assert.ErrorIs(t, p.Click(1, 1), schemas.ErrNoPage)
	assert.ErrorIs(t, p.ClickSelector("#heading"), schemas.ErrNoPage)
	assert.ErrorIs(t, p.SwitchTo(3), schemas.ErrNoPage)

	msgs, err := p.ConsoleMessages()
	require.NoError(t, err)
	assert.Empty(t, msgs)
	require.NoError(t, p.BlockURLs([]string{"x"}), "block patterns without a page are ignored")
	require.NoError(t, p.Wait(10*time.Millisecond))
}

// -- Operations through the actor --

func TestPageElementOperations(t *testing.T) {
	p := newTestPage(t)
	require.NoError(t, p.Open(dataURL(basicHTML)))

	text, err := p.ElementText("#heading")
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)

	kind, ok, err := p.ElementAttribute("#link", "data-kind")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "nav", kind)

	_, ok, err = p.ElementAttribute("#link", "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = p.ElementAttribute("#nope", "id")
	assert.ErrorIs(t, err, schemas.ErrSelectorNotFound)

	rect, err := p.ElementRect("#heading")
	require.NoError(t, err)
	assert.Greater(t, rect.Width, 0.0)

	html, err := p.ElementHTML("#heading")
	require.NoError(t, err)
	assert.Equal(t, `<h1 id="heading">Hello</h1>`, html)

	png, err := p.Screenshot()
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])
}

func TestPageMultiplePages(t *testing.T) {
	p := newTestPage(t)
	require.NoError(t, p.Open(dataURL(basicHTML)))

	id, err := p.NewPageWithSize(400, 300)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id)

	ids, err := p.PageIDs()
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1}, ids)

	require.NoError(t, p.SwitchTo(id))
	active, ok := p.ActivePageID()
	require.True(t, ok)
	assert.Equal(t, id, active)

	_, ok = p.URL()
	assert.False(t, ok, "a page without a load has no URL")
	title, ok := p.PageTitle(0)
	require.True(t, ok)
	assert.Equal(t, "Actor Page", title)

	require.NoError(t, p.ClosePage(id))
	_, ok = p.ActivePageID()
	assert.False(t, ok)

	n, err := p.PageCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, p.Reset())
	n, err = p.PageCount()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPageBlockedURLsOption(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Site</title><script src="/tracker.js"></script></head><body>ok</body></html>`)
	})
	mux.HandleFunc("/tracker.js", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `window.tracked = true;`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p := newTestPage(t, WithBlockedURLs("tracker"))
	require.NoError(t, p.Open(srv.URL+"/"))

	got, err := p.Evaluate("typeof window.tracked")
	require.NoError(t, err)
	assert.Equal(t, `"undefined"`, got)

	reqs, err := p.NetworkRequests()
	require.NoError(t, err)
	require.NotEmpty(t, reqs)
	assert.True(t, reqs[0].IsMainFrame)
}

func TestFromConfig(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.RendererCfg.Backend = "cdp"
	cfg.RendererCfg.ExecPath = "/usr/bin/chromium"
	cfg.RendererCfg.Args = []string{"--mute-audio"}
	cfg.PageCfg.Popups = true
	cfg.PageCfg.BlockedURLs = []string{"ads."}

	s := defaultSettings()
	for _, o := range FromConfig(cfg) {
		o(&s)
	}
	assert.Equal(t, "cdp", s.backend)
	assert.Equal(t, "/usr/bin/chromium", s.execPath)
	assert.True(t, s.headless)
	assert.Equal(t, []string{"--mute-audio"}, s.args)
	assert.True(t, s.popups)
	assert.Equal(t, []string{"ads."}, s.blocked)
}
