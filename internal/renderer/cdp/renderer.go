// Package cdp is the renderer backend that drives headless Chrome over the
// DevTools protocol.
//
// chromedp delivers protocol events on its own goroutines. This package only
// records them there and queues the matching delegate calls; the calls run
// when the owner pumps SpinEventLoop, which keeps the backend inside the
// single-threaded renderer contract.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagedriver/internal/renderer"
)

// BackendName is the registry name of this backend.
const BackendName = "cdp"

const (
	setupTimeout    = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func init() {
	renderer.Register(BackendName, func(opts renderer.Options) (renderer.Renderer, error) {
		return New(opts)
	})
}

// Renderer owns one Chrome process.
type Renderer struct {
	waker  renderer.Waker
	logger *zap.Logger

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu     sync.Mutex
	tasks  []func()
	views  map[target.ID]*webView
	closed bool
}

// allocatorOptions translates backend options into chromedp allocator flags.
func allocatorOptions(opts renderer.Options) []chromedp.ExecAllocatorOption {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	for _, arg := range opts.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if name == "" {
			continue
		}
		if len(parts) == 2 {
			allocOpts = append(allocOpts, chromedp.Flag(name, parts[1]))
		} else {
			allocOpts = append(allocOpts, chromedp.Flag(name, true))
		}
	}
	return allocOpts
}

// New launches Chrome and waits until it answers.
func New(opts renderer.Options) (*Renderer, error) {
	if opts.Waker == nil {
		return nil, errors.New("cdp: a waker is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("cdp")

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(opts)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Warnf),
	)

	r := &Renderer{
		waker:         opts.Waker,
		logger:        logger,
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		views:         make(map[target.ID]*webView),
	}

	// The first Run starts the browser and ties it to browserCtx, so it must not
	// carry a deadline.
	err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		c := chromedp.FromContext(ctx)
		return target.SetDiscoverTargets(true).Do(cdp.WithExecutor(ctx, c.Browser))
	}))
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	chromedp.ListenBrowser(browserCtx, r.onBrowserEvent)
	r.logger.Info("Browser launched.")
	return r, nil
}

// post queues fn for the next pump and wakes the owner. Safe from any
// goroutine.
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

// SpinEventLoop runs every queued delegate call.
func (r *Renderer) SpinEventLoop() {
	r.mu.Lock()
	tasks := r.tasks
	r.tasks = nil
	r.mu.Unlock()
	for _, task := range tasks {
		task()
	}
}

// NewSurface returns a viewport of the given size. Chrome paints off screen,
// so the surface only carries the size.
func (r *Renderer) NewSurface(width, height int) (renderer.Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid surface size %dx%d", width, height)
	}
	return &surface{width: width, height: height}, nil
}

// NewWebView opens a tab and starts loading u.
func (r *Renderer) NewWebView(s renderer.Surface, d renderer.Delegate, u *url.URL) (renderer.WebView, error) {
	ctx, cancel := chromedp.NewContext(r.browserCtx)
	v, err := r.attach(ctx, cancel, s, d)
	if err != nil {
		return nil, err
	}
	if u != nil {
		v.Load(u)
	}
	return v, nil
}

// attach prepares a tab context for use as a webview.
func (r *Renderer) attach(ctx context.Context, cancel context.CancelFunc, s renderer.Surface, d renderer.Delegate) (*webView, error) {
	sf, ok := s.(*surface)
	if !ok {
		cancel()
		return nil, fmt.Errorf("cdp: foreign surface %T", s)
	}
	v := newWebView(r, ctx, cancel, sf, d)
	chromedp.ListenTarget(ctx, v.onEvent)

	if err := chromedp.Run(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	setupCtx, setupCancel := context.WithTimeout(ctx, setupTimeout)
	defer setupCancel()
	if err := chromedp.Run(setupCtx, v.setupActions()); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to set up tab: %w", err)
	}
	id := v.target()

	r.mu.Lock()
	r.views[id] = v
	r.mu.Unlock()
	v.startWorker()
	r.logger.Debug("Tab attached.", zap.String("webview", v.id), zap.String("target", string(id)))
	return v, nil
}

func (r *Renderer) view(id target.ID) *webView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.views[id]
}

func (r *Renderer) forget(v *webView) {
	r.mu.Lock()
	delete(r.views, v.target())
	r.mu.Unlock()
}

// onBrowserEvent runs on a chromedp goroutine.
func (r *Renderer) onBrowserEvent(ev interface{}) {
	switch e := ev.(type) {
	case *target.EventTargetCreated:
		info := e.TargetInfo
		if info == nil || info.Type != "page" || info.OpenerID == "" {
			return
		}
		parent := r.view(info.OpenerID)
		if parent == nil {
			return
		}
		req := &popupRequest{r: r, info: info}
		r.post(func() {
			parent.delegate.RequestCreateNew(parent, req)
			if !req.built {
				r.logger.Debug("Popup not adopted, closing it.", zap.String("url", info.URL))
				go r.closeTarget(info.TargetID)
			}
		})
	case *target.EventTargetInfoChanged:
		if e.TargetInfo == nil {
			return
		}
		if v := r.view(e.TargetInfo.TargetID); v != nil {
			v.setInfo(e.TargetInfo.URL, e.TargetInfo.Title)
		}
	case *target.EventTargetDestroyed:
		if v := r.view(e.TargetID); v != nil {
			r.post(func() { v.delegate.NotifyClosed(v) })
		}
	}
}

// closeTarget closes a tab this renderer never adopted.
func (r *Renderer) closeTarget(id target.ID) {
	ctx, cancel := chromedp.NewContext(r.browserCtx, chromedp.WithTargetID(id))
	defer cancel()
	if err := chromedp.Run(ctx); err != nil {
		r.logger.Debug("Failed to attach to dropped popup.", zap.Error(err))
		return
	}
	if err := chromedp.Cancel(ctx); err != nil {
		r.logger.Debug("Failed to close dropped popup.", zap.Error(err))
	}
}

// Shutdown closes every tab and the browser.
func (r *Renderer) Shutdown() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.tasks = nil
	views := make([]*webView, 0, len(r.views))
	for _, v := range r.views {
		views = append(views, v)
	}
	r.views = map[target.ID]*webView{}
	r.mu.Unlock()

	for _, v := range views {
		v.stop()
	}

	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(r.browserCtx) }()
	var err error
	select {
	case err = <-done:
	case <-time.After(shutdownTimeout):
		err = fmt.Errorf("browser did not exit within %s", shutdownTimeout)
	}
	r.browserCancel()
	r.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Warn("Browser shutdown was not clean.", zap.Error(err))
		return err
	}
	r.logger.Info("Browser closed.")
	return nil
}

type surface struct {
	width, height int
}

func (s *surface) Size() (int, int) { return s.width, s.height }

// MakeCurrent is a no-op; Chrome owns its compositor.
func (s *surface) MakeCurrent() error { return nil }

// popupRequest is a tab opened by a page, waiting for the delegate to adopt it.
type popupRequest struct {
	r     *Renderer
	info  *target.Info
	built bool
}

func (p *popupRequest) URL() string { return p.info.URL }

func (p *popupRequest) Build(s renderer.Surface, d renderer.Delegate) (renderer.WebView, error) {
	ctx, cancel := chromedp.NewContext(p.r.browserCtx, chromedp.WithTargetID(p.info.TargetID))
	v, err := p.r.attach(ctx, cancel, s, d)
	if err != nil {
		return nil, err
	}
	p.built = true
	v.setInfo(p.info.URL, p.info.Title)
	return v, nil
}
