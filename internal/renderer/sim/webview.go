package sim

import (
	"context"
	"errors"
	"image"
	"image/draw"
	"net/url"

	"github.com/dop251/goja"
	"github.com/xkilldash9x/pagedriver/internal/renderer"
	"go.uber.org/zap"
)

var errViewClosed = errors.New("webview is closed")

type navKind int

const (
	navPush navKind = iota
	navReplace
	navTraverse
)

// webView is one browsing session of the sim renderer.
type webView struct {
	r        *Renderer
	id       string
	surface  *surface
	delegate renderer.Delegate
	logger   *zap.Logger

	history []*url.URL
	index   int
	navSeq  int

	doc       *document
	committed bool
	dirty     bool
	closed    bool
	frame     *image.RGBA

	evals []pendingEval
}

type pendingEval struct {
	promise *goja.Promise
	doc     *document
	cb      func(renderer.JSValue, error)
}

func (v *webView) ID() string { return v.id }

func (v *webView) Load(u *url.URL) {
	target := *u
	v.r.post(func() { v.navigate(&target, navPush) })
}

func (v *webView) Reload() {
	v.r.post(func() {
		if cur := v.currentEntry(); cur != nil {
			v.navigate(cur, navReplace)
		}
	})
}

func (v *webView) GoBack(steps int)    { v.traverse(-steps) }
func (v *webView) GoForward(steps int) { v.traverse(steps) }

func (v *webView) traverse(delta int) {
	v.r.post(func() {
		target := v.index + delta
		if delta == 0 || target < 0 || target >= len(v.history) {
			return
		}
		v.index = target
		v.navigate(v.history[target], navTraverse)
	})
}

func (v *webView) CanGoBack() bool    { return v.index > 0 && len(v.history) > 0 }
func (v *webView) CanGoForward() bool { return v.index < len(v.history)-1 }

func (v *webView) currentEntry() *url.URL {
	if len(v.history) == 0 {
		return nil
	}
	return v.history[v.index]
}

// navigate starts a GET load of u. Must run on the pumping goroutine.
func (v *webView) navigate(u *url.URL, kind navKind) {
	v.load(getRequest(u), kind)
}

func (v *webView) load(req request, kind navKind) {
	if v.closed {
		return
	}
	u := req.url
	v.navSeq++
	seq := v.navSeq
	v.delegate.NotifyLoadStatusChanged(v, renderer.LoadStarted)

	load := &resourceLoad{req: renderer.ResourceRequest{Method: req.method, URL: u.String(), IsMainFrame: true}}
	v.delegate.LoadWebResource(v, load)
	if load.cancelled {
		v.commit(errorPage(u, errors.New("blocked by client")), kind, seq)
		return
	}

	deliver := func(res *resource, err error) {
		if v.closed || seq != v.navSeq {
			return
		}
		if err != nil {
			v.logger.Debug("Main frame load failed", zap.String("url", u.String()), zap.Error(err))
			res = errorPage(u, err)
		}
		v.commit(res, kind, seq)
	}

	if isLocal(u) {
		res, err := v.r.loader.fetch(context.Background(), req)
		v.r.post(func() { deliver(res, err) })
		return
	}
	go func() {
		res, err := v.r.loader.fetch(context.Background(), req)
		v.r.post(func() { deliver(res, err) })
	}()
}

// commit replaces the current document with res and runs it to load.
func (v *webView) commit(res *resource, kind navKind, seq int) {
	switch kind {
	case navPush:
		if len(v.history) > 0 {
			v.history = v.history[:v.index+1]
		}
		v.history = append(v.history, res.url)
		v.index = len(v.history) - 1
	case navReplace:
		if len(v.history) == 0 {
			v.history = append(v.history, res.url)
		} else {
			v.history[v.index] = res.url
		}
	}

	if v.doc != nil {
		v.doc.teardown()
	}
	v.committed = true
	doc := newDocument(v, res.url, res)
	v.doc = doc
	v.markDirty()
	v.delegate.NotifyLoadStatusChanged(v, renderer.LoadHeadParsed)

	doc.loadSubresources(func() {
		if v.closed || seq != v.navSeq || v.doc != doc {
			return
		}
		doc.runScripts()
		doc.finishLoad()
		v.markDirty()
		v.delegate.NotifyLoadStatusChanged(v, renderer.LoadComplete)
	})
}

func (v *webView) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	if v.surface.width == width && v.surface.height == height {
		return
	}
	v.surface.width, v.surface.height = width, height
	v.doc.invalidate()
	doc := v.doc
	v.r.post(func() {
		if v.doc == doc {
			doc.dispatchWindowEvent("resize")
		}
	})
}

func (v *webView) markDirty() {
	if !v.closed {
		v.dirty = true
	}
}

// flushFrame reports one frame for a view that changed since the last pump.
func (v *webView) flushFrame() {
	if v.closed || !v.dirty || !v.committed {
		return
	}
	v.dirty = false
	v.delegate.NotifyNewFrameReady(v)
}

// Paint renders the current document into the view's frame buffer.
func (v *webView) Paint() {
	if v.closed {
		return
	}
	w, h := v.surface.width, v.surface.height
	if v.frame == nil || v.frame.Rect.Dx() != w || v.frame.Rect.Dy() != h {
		v.frame = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	v.doc.paint(v.frame)
}

func (v *webView) NotifyInputEvent(ev renderer.InputEvent) {
	v.r.post(func() {
		if v.closed {
			return
		}
		v.doc.handleInput(ev)
		v.markDirty()
	})
}

func (v *webView) EvaluateJavaScript(script string, cb func(renderer.JSValue, error)) {
	v.r.post(func() {
		if v.closed {
			cb(nil, errViewClosed)
			return
		}
		doc := v.doc
		val, err := doc.run("<evaluate>", script)
		if err != nil {
			cb(nil, err)
			return
		}
		if p, ok := val.Export().(*goja.Promise); ok {
			v.evals = append(v.evals, pendingEval{promise: p, doc: doc, cb: cb})
			return
		}
		cb(doc.toJSValue(val), nil)
	})
}

// settleEvaluations delivers evaluations whose promise has settled.
func (v *webView) settleEvaluations() {
	if len(v.evals) == 0 {
		return
	}
	remaining := v.evals[:0]
	for _, pe := range v.evals {
		if pe.doc.dead {
			pe.cb(nil, errors.New("document was replaced before the promise settled"))
			continue
		}
		switch pe.promise.State() {
		case goja.PromiseStateFulfilled:
			pe.cb(pe.doc.toJSValue(pe.promise.Result()), nil)
		case goja.PromiseStateRejected:
			pe.cb(nil, &scriptError{msg: "Uncaught (in promise) " + pe.doc.describe(pe.promise.Result())})
		default:
			remaining = append(remaining, pe)
		}
	}
	v.evals = remaining
}

func (v *webView) runAnimationFrames() {
	v.doc.runAnimationFrames()
}

func (v *webView) TakeScreenshot(cb func(*image.RGBA, error)) {
	v.r.post(func() {
		if v.closed {
			cb(nil, errViewClosed)
			return
		}
		v.Paint()
		out := image.NewRGBA(v.frame.Rect)
		draw.Draw(out, out.Rect, v.frame, image.Point{}, draw.Src)
		cb(out, nil)
	})
}

func (v *webView) URL() (string, bool) {
	if !v.committed || v.doc == nil {
		return "", false
	}
	return v.doc.url.String(), true
}

func (v *webView) Title() (string, bool) {
	if !v.committed || v.doc == nil {
		return "", false
	}
	t := v.doc.title()
	if t == "" {
		return "", false
	}
	return t, true
}

// Close tears the session down; the delegate hears about it on the next pump.
func (v *webView) Close() {
	if v.closed {
		return
	}
	v.teardown()
	v.r.removeView(v)
	v.r.post(func() { v.delegate.NotifyClosed(v) })
}

func (v *webView) teardown() {
	v.closed = true
	v.navSeq++
	if v.doc != nil {
		v.doc.teardown()
	}
	for _, pe := range v.evals {
		pe.cb(nil, errViewClosed)
	}
	v.evals = nil
}

// resourceLoad is the cancellable handle given to LoadWebResource.
type resourceLoad struct {
	req       renderer.ResourceRequest
	cancelled bool
}

func (l *resourceLoad) Request() renderer.ResourceRequest { return l.req }
func (l *resourceLoad) Cancel()                           { l.cancelled = true }

// dialog is a modal dialog raised by alert, confirm or prompt.
type dialog struct {
	kind      renderer.DialogKind
	message   string
	confirmed bool
	resolved  bool
}

func (d *dialog) Kind() renderer.DialogKind { return d.kind }
func (d *dialog) Message() string           { return d.message }

func (d *dialog) Confirm() {
	if !d.resolved {
		d.resolved, d.confirmed = true, true
	}
}

func (d *dialog) Dismiss() {
	if !d.resolved {
		d.resolved = true
	}
}

// newViewRequest is handed to RequestCreateNew by window.open.
type newViewRequest struct {
	r     *Renderer
	url   *url.URL
	built renderer.WebView
}

func (q *newViewRequest) URL() string { return q.url.String() }

func (q *newViewRequest) Build(s renderer.Surface, d renderer.Delegate) (renderer.WebView, error) {
	if q.built != nil {
		return q.built, nil
	}
	wv, err := q.r.NewWebView(s, d, q.url)
	if err != nil {
		return nil, err
	}
	q.built = wv
	return wv, nil
}

var (
	_ renderer.WebView           = (*webView)(nil)
	_ renderer.ResourceLoad      = (*resourceLoad)(nil)
	_ renderer.Dialog            = (*dialog)(nil)
	_ renderer.NewWebViewRequest = (*newViewRequest)(nil)
)
