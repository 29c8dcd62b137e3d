// Package sim is the embedded renderer backend. It parses documents with
// x/net/html, runs page scripts in goja, lays pages out as simple block and
// line boxes and paints them into RGBA frames, all without a browser binary.
//
// Like any renderer behind the renderer contract, it is single threaded:
// every method except the waker must be called from the goroutine that pumps
// SpinEventLoop, and delegate callbacks only fire inside SpinEventLoop.
package sim

import (
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/xkilldash9x/pagedriver/internal/renderer"
	"go.uber.org/zap"
)

// BackendName is the registry name of this backend.
const BackendName = "sim"

// DefaultUserAgent is reported by navigator.userAgent and sent on requests
// when no override is configured.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) pagedriver-sim/1.0"

func init() {
	renderer.Register(BackendName, func(opts renderer.Options) (renderer.Renderer, error) {
		return New(opts)
	})
}

var errShutdown = errors.New("renderer has been shut down")

// Renderer is the embedded renderer instance.
type Renderer struct {
	waker   renderer.Waker
	logger  *zap.Logger
	loader  *loader
	ua      string
	cookies *cookieJar

	mu     sync.Mutex
	tasks  []func()
	closed bool

	// views is only touched on the pumping goroutine.
	views []*webView
}

// New creates a renderer. The waker is required; it is how timers and
// network completions get the owner to pump again.
func New(opts renderer.Options) (*Renderer, error) {
	if opts.Waker == nil {
		return nil, errors.New("sim: a waker is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	cookies := newCookieJar()
	ld := newLoader(ua)
	ld.client.Jar = cookies.jar
	return &Renderer{
		waker:   opts.Waker,
		logger:  logger.Named("sim"),
		loader:  ld,
		ua:      ua,
		cookies: cookies,
	}, nil
}

// post queues fn to run on the next pump. Safe from any goroutine.
func (r *Renderer) post(fn func()) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.tasks = append(r.tasks, fn)
	r.mu.Unlock()
	r.waker.Wake()
}

// SpinEventLoop runs queued tasks, animation callbacks and settled script
// evaluations, then reports one new frame for every view that changed.
func (r *Renderer) SpinEventLoop() {
	r.mu.Lock()
	tasks := r.tasks
	r.tasks = nil
	r.mu.Unlock()

	for _, task := range tasks {
		r.runTask(task)
	}

	for _, v := range append([]*webView(nil), r.views...) {
		if v.closed {
			continue
		}
		r.runTask(v.runAnimationFrames)
		r.runTask(v.settleEvaluations)
		r.runTask(v.flushFrame)
	}
}

func (r *Renderer) runTask(task func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Recovered from panic in renderer task", zap.Any("panic", rec), zap.Stack("stack"))
		}
	}()
	task()
}

// NewSurface allocates an offscreen surface.
func (r *Renderer) NewSurface(width, height int) (renderer.Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid surface size %dx%d", width, height)
	}
	return &surface{width: width, height: height}, nil
}

// NewWebView binds a surface and delegate into a browsing session and starts
// loading u if it is not nil.
func (r *Renderer) NewWebView(s renderer.Surface, d renderer.Delegate, u *url.URL) (renderer.WebView, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, errShutdown
	}
	surf, ok := s.(*surface)
	if !ok {
		return nil, fmt.Errorf("surface %T does not belong to the sim renderer", s)
	}
	if d == nil {
		return nil, errors.New("a delegate is required")
	}
	id := uuid.NewString()
	v := &webView{
		r:        r,
		id:       id,
		surface:  surf,
		delegate: d,
		logger:   r.logger.With(zap.String("webview", id)),
	}
	v.doc = newDocument(v, &url.URL{Scheme: "about", Opaque: "blank"}, nil)
	r.views = append(r.views, v)
	if u != nil {
		v.Load(u)
	}
	return v, nil
}

func (r *Renderer) removeView(v *webView) {
	for i, other := range r.views {
		if other == v {
			r.views = append(r.views[:i], r.views[i+1:]...)
			return
		}
	}
}

// Shutdown closes every view and stops accepting work.
func (r *Renderer) Shutdown() error {
	for _, v := range append([]*webView(nil), r.views...) {
		v.teardown()
	}
	r.views = nil
	r.mu.Lock()
	r.closed = true
	r.tasks = nil
	r.mu.Unlock()
	r.loader.client.CloseIdleConnections()
	return nil
}

type surface struct {
	width, height int
}

func (s *surface) Size() (int, int) { return s.width, s.height }

// MakeCurrent is a no-op; frames are painted in memory.
func (s *surface) MakeCurrent() error { return nil }

var _ renderer.Renderer = (*Renderer)(nil)
