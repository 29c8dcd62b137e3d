package cdp

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"net/url"
	"sync"

	cdproto "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagedriver/internal/renderer"
)

// actionQueueSize bounds input and resize commands waiting for the tab.
const actionQueueSize = 256

// webView is one Chrome tab. Delegate calls are queued on the renderer and
// run inside SpinEventLoop; protocol commands run on background goroutines.
type webView struct {
	id       string
	r        *Renderer
	ctx      context.Context
	cancel   context.CancelFunc
	surface  *surface
	delegate renderer.Delegate
	logger   *zap.Logger

	// actions serializes commands whose order matters, such as input.
	actions  chan chromedp.Action
	quit     chan struct{}
	stopOnce sync.Once

	mu           sync.Mutex
	targetID     target.ID
	url          string
	title        string
	histIndex    int64
	history      []*page.NavigationEntry
	frameSession int64
}

func newWebView(r *Renderer, ctx context.Context, cancel context.CancelFunc, s *surface, d renderer.Delegate) *webView {
	id := uuid.NewString()
	return &webView{
		id:       id,
		r:        r,
		ctx:      ctx,
		cancel:   cancel,
		surface:  s,
		delegate: d,
		logger:   r.logger.With(zap.String("webview", id)),
		actions:  make(chan chromedp.Action, actionQueueSize),
		quit:     make(chan struct{}),
	}
}

func (v *webView) setupActions() chromedp.Tasks {
	return chromedp.Tasks{
		chromedp.ActionFunc(func(ctx context.Context) error {
			v.mu.Lock()
			v.targetID = chromedp.FromContext(ctx).Target.TargetID
			v.mu.Unlock()
			return nil
		}),
		page.Enable(),
		runtime.Enable(),
		fetch.Enable().WithPatterns([]*fetch.RequestPattern{
			{URLPattern: "*", RequestStage: fetch.RequestStageRequest},
		}),
		emulation.SetDeviceMetricsOverride(int64(v.surface.width), int64(v.surface.height), 1, false),
		page.StartScreencast().WithFormat(page.ScreencastFormatPng).WithEveryNthFrame(1),
	}
}

func (v *webView) startWorker() {
	go func() {
		for {
			select {
			case a := <-v.actions:
				v.run(a)
			case <-v.quit:
				return
			case <-v.ctx.Done():
				return
			}
		}
	}()
}

func (v *webView) enqueue(a chromedp.Action) {
	select {
	case v.actions <- a:
	case <-v.quit:
	}
}

// run executes actions on the tab, logging failures that are not caused by
// the tab going away.
func (v *webView) run(actions ...chromedp.Action) {
	if err := chromedp.Run(v.ctx, actions...); err != nil && v.ctx.Err() == nil {
		v.logger.Debug("Protocol command failed.", zap.Error(err))
	}
}

func (v *webView) target() target.ID {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.targetID
}

func (v *webView) setInfo(u, title string) {
	v.mu.Lock()
	v.url, v.title = u, title
	v.mu.Unlock()
}

// refreshHistory re-reads the tab's session history.
func (v *webView) refreshHistory() {
	var (
		idx     int64
		entries []*page.NavigationEntry
	)
	err := chromedp.Run(v.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		idx, entries, err = page.GetNavigationHistory().Do(ctx)
		return err
	}))
	if err != nil {
		if v.ctx.Err() == nil {
			v.logger.Debug("Failed to read navigation history.", zap.Error(err))
		}
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.histIndex, v.history = idx, entries
	if idx >= 0 && int(idx) < len(entries) {
		v.url = entries[idx].URL
		if entries[idx].Title != "" {
			v.title = entries[idx].Title
		}
	}
}

// onEvent runs on a chromedp goroutine. It must not block.
func (v *webView) onEvent(ev interface{}) {
	switch e := ev.(type) {
	case *page.EventFrameStartedLoading:
		if e.FrameID == cdproto.FrameID(v.target()) {
			v.r.post(func() { v.delegate.NotifyLoadStatusChanged(v, renderer.LoadStarted) })
		}
	case *page.EventDomContentEventFired:
		v.r.post(func() { v.delegate.NotifyLoadStatusChanged(v, renderer.LoadHeadParsed) })
	case *page.EventLoadEventFired:
		go func() {
			v.refreshHistory()
			v.r.post(func() { v.delegate.NotifyLoadStatusChanged(v, renderer.LoadComplete) })
		}()
	case *page.EventNavigatedWithinDocument:
		go v.refreshHistory()
	case *page.EventScreencastFrame:
		v.mu.Lock()
		v.frameSession = e.SessionID
		v.mu.Unlock()
		v.r.post(func() { v.delegate.NotifyNewFrameReady(v) })
	case *runtime.EventConsoleAPICalled:
		level := renderer.ParseConsoleLevel(string(e.Type))
		msg := consoleText(e.Args)
		v.r.post(func() { v.delegate.ShowConsoleMessage(v, level, msg) })
	case *fetch.EventRequestPaused:
		v.onRequestPaused(e)
	case *page.EventJavascriptDialogOpening:
		dlg := &dialog{kind: dialogKind(e.Type), message: e.Message}
		v.r.post(func() {
			v.delegate.ShowDialog(v, dlg)
			accept := dlg.accepted
			go v.run(page.HandleJavaScriptDialog(accept))
		})
	}
}

func (v *webView) onRequestPaused(e *fetch.EventRequestPaused) {
	if e.Request == nil {
		go v.run(fetch.ContinueRequest(e.RequestID))
		return
	}
	load := &resourceLoad{req: renderer.ResourceRequest{
		Method:      e.Request.Method,
		URL:         e.Request.URL + e.Request.URLFragment,
		IsMainFrame: e.ResourceType == network.ResourceTypeDocument && e.FrameID == cdproto.FrameID(v.target()),
	}}
	id := e.RequestID
	v.r.post(func() {
		v.delegate.LoadWebResource(v, load)
		if load.cancelled {
			go v.run(fetch.FailRequest(id, network.ErrorReasonBlockedByClient))
			return
		}
		go v.run(fetch.ContinueRequest(id))
	})
}

func dialogKind(t page.DialogType) renderer.DialogKind {
	switch t {
	case page.DialogTypeConfirm, page.DialogTypeBeforeunload:
		return renderer.DialogConfirm
	case page.DialogTypePrompt:
		return renderer.DialogPrompt
	default:
		return renderer.DialogAlert
	}
}

// -- renderer.WebView --

func (v *webView) ID() string { return v.id }

func (v *webView) Load(u *url.URL) {
	v.logger.Debug("Navigating.", zap.String("url", u.String()))
	go v.run(chromedp.Navigate(u.String()))
}

func (v *webView) Reload() {
	go v.run(page.Reload())
}

// historyEntry returns the id of the entry delta steps away.
func (v *webView) historyEntry(delta int) (int64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	idx := int(v.histIndex) + delta
	if idx < 0 || idx >= len(v.history) || delta == 0 {
		return 0, false
	}
	return v.history[idx].ID, true
}

func (v *webView) GoBack(steps int) {
	if id, ok := v.historyEntry(-steps); ok {
		go v.run(page.NavigateToHistoryEntry(id))
	}
}

func (v *webView) GoForward(steps int) {
	if id, ok := v.historyEntry(steps); ok {
		go v.run(page.NavigateToHistoryEntry(id))
	}
}

func (v *webView) CanGoBack() bool {
	_, ok := v.historyEntry(-1)
	return ok
}

func (v *webView) CanGoForward() bool {
	_, ok := v.historyEntry(1)
	return ok
}

func (v *webView) Resize(width, height int) {
	v.surface.width, v.surface.height = width, height
	v.enqueue(emulation.SetDeviceMetricsOverride(int64(width), int64(height), 1, false))
}

// Paint acknowledges the last screencast frame so Chrome sends the next one.
func (v *webView) Paint() {
	v.mu.Lock()
	session := v.frameSession
	v.mu.Unlock()
	go v.run(page.ScreencastFrameAck(session))
}

func (v *webView) NotifyInputEvent(ev renderer.InputEvent) {
	if actions := inputActions(ev); len(actions) > 0 {
		v.enqueue(actions)
	}
}

func (v *webView) EvaluateJavaScript(script string, cb func(renderer.JSValue, error)) {
	go func() {
		val, err := v.evaluate(script)
		v.r.post(func() { cb(val, err) })
	}()
}

func (v *webView) evaluate(script string) (renderer.JSValue, error) {
	var (
		res *runtime.RemoteObject
		exc *runtime.ExceptionDetails
	)
	err := chromedp.Run(v.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		res, exc, err = runtime.Evaluate(script).
			WithAwaitPromise(true).
			WithUserGesture(true).
			Do(ctx)
		if err != nil || exc != nil || !needsByValue(res) {
			return err
		}
		handle := res.ObjectID
		defer func() { _ = runtime.ReleaseObject(handle).Do(ctx) }()
		res, exc, err = runtime.CallFunctionOn(byValueFunction).
			WithObjectID(handle).
			WithReturnByValue(true).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	if exc != nil {
		return nil, exceptionError(exc)
	}
	val, _, err := handleValue(res)
	return val, err
}

func (v *webView) TakeScreenshot(cb func(*image.RGBA, error)) {
	go func() {
		img, err := v.screenshot()
		v.r.post(func() { cb(img, err) })
	}()
}

func (v *webView) screenshot() (*image.RGBA, error) {
	var buf []byte
	if err := chromedp.Run(v.ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba, nil
}

func (v *webView) URL() (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.url, v.url != ""
}

func (v *webView) Title() (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.title, v.url != ""
}

func (v *webView) Close() {
	v.stop()
}

// stop detaches the tab and closes it in the background.
func (v *webView) stop() {
	v.stopOnce.Do(func() {
		close(v.quit)
		v.r.forget(v)
		go func() {
			if err := chromedp.Cancel(v.ctx); err != nil && v.ctx.Err() == nil {
				v.logger.Debug("Failed to close tab.", zap.Error(err))
			}
			v.cancel()
		}()
	})
}

// -- Delegate payloads --

type resourceLoad struct {
	req       renderer.ResourceRequest
	cancelled bool
}

func (l *resourceLoad) Request() renderer.ResourceRequest { return l.req }
func (l *resourceLoad) Cancel()                           { l.cancelled = true }

type dialog struct {
	kind     renderer.DialogKind
	message  string
	accepted bool
}

func (d *dialog) Kind() renderer.DialogKind { return d.kind }
func (d *dialog) Message() string           { return d.message }
func (d *dialog) Confirm()                  { d.accepted = true }
func (d *dialog) Dismiss()                  { d.accepted = false }
