package engine

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagedriver/api/schemas"
	"github.com/xkilldash9x/pagedriver/internal/renderer"
)

// pendingPopup is a session a page opened on its own, held until PopupPages
// gives it an id.
type pendingPopup struct {
	webview  renderer.WebView
	surface  renderer.Surface
	delegate *pageDelegate
	width    int
	height   int
}

// popupBuffer is shared by every delegate of one engine.
type popupBuffer struct {
	r       renderer.Renderer
	enabled bool
	pending []pendingPopup
}

func (b *popupBuffer) drain() []pendingPopup {
	out := b.pending
	b.pending = nil
	return out
}

// pageDelegate records what the renderer reports about one session. It is
// only touched on the goroutine that pumps the renderer.
type pageDelegate struct {
	logger *zap.Logger

	loadComplete bool
	frameCount   uint64
	// lastRequest is zero until the first resource load.
	lastRequest time.Time
	console     []schemas.ConsoleMessage
	requests    []schemas.NetworkRequest
	blocked     []string
	closed      bool

	popups *popupBuffer
	width  int
	height int
}

func newPageDelegate(popups *popupBuffer, width, height int, logger *zap.Logger) *pageDelegate {
	return &pageDelegate{
		logger: logger,
		popups: popups,
		width:  width,
		height: height,
	}
}

// FrameCount implements runloop.FrameSource.
func (d *pageDelegate) FrameCount() uint64 { return d.frameCount }

// LastRequestTime implements runloop.RequestClock.
func (d *pageDelegate) LastRequestTime() time.Time { return d.lastRequest }

func (d *pageDelegate) NotifyLoadStatusChanged(_ renderer.WebView, status renderer.LoadStatus) {
	if status == renderer.LoadComplete {
		d.loadComplete = true
	}
}

func (d *pageDelegate) NotifyNewFrameReady(wv renderer.WebView) {
	wv.Paint()
	d.frameCount++
}

func (d *pageDelegate) ShowConsoleMessage(_ renderer.WebView, level renderer.ConsoleLevel, message string) {
	d.console = append(d.console, schemas.ConsoleMessage{Level: level.String(), Message: message})
	d.logger.Debug("Page console", zap.String("level", level.String()), zap.String("message", message))
}

func (d *pageDelegate) LoadWebResource(_ renderer.WebView, load renderer.ResourceLoad) {
	req := load.Request()
	d.requests = append(d.requests, schemas.NetworkRequest{
		Method:      req.Method,
		URL:         req.URL,
		IsMainFrame: req.IsMainFrame,
	})
	d.lastRequest = time.Now()

	for _, pattern := range d.blocked {
		if strings.Contains(req.URL, pattern) {
			d.logger.Debug("Blocked request", zap.String("url", req.URL), zap.String("pattern", pattern))
			load.Cancel()
			return
		}
	}
}

func (d *pageDelegate) ShowDialog(_ renderer.WebView, dialog renderer.Dialog) {
	d.logger.Debug("Auto-resolving dialog",
		zap.Stringer("kind", dialog.Kind()),
		zap.String("message", dialog.Message()))
	if dialog.Kind() == renderer.DialogAlert {
		dialog.Confirm()
		return
	}
	dialog.Dismiss()
}

func (d *pageDelegate) NotifyClosed(renderer.WebView) {
	d.closed = true
}

// RequestCreateNew builds and buffers the popup when popups are enabled and
// otherwise drops the request, which blocks it.
func (d *pageDelegate) RequestCreateNew(_ renderer.WebView, req renderer.NewWebViewRequest) {
	if !d.popups.enabled {
		d.logger.Debug("Popup blocked", zap.String("url", req.URL()))
		return
	}
	surface, err := d.popups.r.NewSurface(d.width, d.height)
	if err != nil {
		d.logger.Warn("Failed to allocate popup surface", zap.Error(err))
		return
	}
	if err := surface.MakeCurrent(); err != nil {
		d.logger.Warn("Failed to activate popup surface", zap.Error(err))
		return
	}
	delegate := newPageDelegate(d.popups, d.width, d.height, d.logger)
	wv, err := req.Build(surface, delegate)
	if err != nil {
		d.logger.Warn("Failed to build popup webview", zap.String("url", req.URL()), zap.Error(err))
		return
	}
	d.popups.pending = append(d.popups.pending, pendingPopup{
		webview:  wv,
		surface:  surface,
		delegate: delegate,
		width:    d.width,
		height:   d.height,
	})
}

// drainConsole returns the buffered console messages and empties the buffer.
func (d *pageDelegate) drainConsole() []schemas.ConsoleMessage {
	out := d.console
	d.console = nil
	if out == nil {
		out = []schemas.ConsoleMessage{}
	}
	return out
}

// drainRequests returns the buffered requests and empties the buffer.
func (d *pageDelegate) drainRequests() []schemas.NetworkRequest {
	out := d.requests
	d.requests = nil
	if out == nil {
		out = []schemas.NetworkRequest{}
	}
	return out
}
