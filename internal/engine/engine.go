// Package engine sequences multi-step renderer work into synchronous page
// operations. A PageEngine owns the renderer and must only be used from the
// goroutine that created it; pkg/scraper wraps it for concurrent callers.
package engine

import (
	"bytes"
	"fmt"
	"image"
	"net/url"
	"sort"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagedriver/api/schemas"
	"github.com/xkilldash9x/pagedriver/internal/observability"
	"github.com/xkilldash9x/pagedriver/internal/renderer"
	"github.com/xkilldash9x/pagedriver/internal/runloop"
)

// Settle budgets for input actions. A missed repaint is not an error.
const (
	inputFrameTimeout = 2 * time.Second
	pollFrameTimeout  = 200 * time.Millisecond
	scrollIdleWindow  = 200 * time.Millisecond
	scrollIdleMax     = 2 * time.Second
)

// pageState is one tab. webview is nil until the first Open.
type pageState struct {
	webview  renderer.WebView
	surface  renderer.Surface
	delegate *pageDelegate
	width    int
	height   int
}

// PageEngine is the single-threaded session table. It is not safe for
// concurrent use.
type PageEngine struct {
	r      renderer.Renderer
	driver *runloop.Driver
	opts   schemas.PageOptions
	logger *zap.Logger

	pages     map[uint32]*pageState
	activeID  uint32
	hasActive bool
	nextID    uint32
	popups    *popupBuffer
}

// New builds an engine around an opened renderer. loop must be the event loop
// whose waker the renderer was opened with.
func New(r renderer.Renderer, loop *runloop.EventLoop, opts schemas.PageOptions, logger *zap.Logger) *PageEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := schemas.DefaultPageOptions()
	if opts.Width <= 0 {
		opts.Width = defaults.Width
	}
	if opts.Height <= 0 {
		opts.Height = defaults.Height
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	return &PageEngine{
		r:      r,
		driver: runloop.NewDriver(loop, r),
		opts:   opts,
		logger: logger.With(zap.String("component", "page_engine")),
		pages:  make(map[uint32]*pageState),
		popups: &popupBuffer{r: r},
	}
}

// Options returns the options the engine applies to every page.
func (e *PageEngine) Options() schemas.PageOptions { return e.opts }

// -- Active page helpers --

func (e *PageEngine) activePage() (*pageState, error) {
	if !e.hasActive {
		return nil, schemas.ErrNoPage
	}
	p, ok := e.pages[e.activeID]
	if !ok {
		return nil, schemas.ErrNoPage
	}
	return p, nil
}

// attached returns the active page only if it has a webview.
func (e *PageEngine) attached() (*pageState, error) {
	p, err := e.activePage()
	if err != nil {
		return nil, err
	}
	if p.webview == nil {
		return nil, schemas.ErrNoPage
	}
	return p, nil
}

func (e *PageEngine) createPage(width, height int) (uint32, error) {
	surface, err := e.r.NewSurface(width, height)
	if err != nil {
		return 0, schemas.WrapError(schemas.KindInitFailed, err, "rendering surface")
	}
	if err := surface.MakeCurrent(); err != nil {
		return 0, schemas.WrapError(schemas.KindInitFailed, err, "make current")
	}
	id := e.nextID
	e.nextID++
	e.pages[id] = &pageState{
		surface:  surface,
		delegate: newPageDelegate(e.popups, width, height, e.logger.With(zap.Uint32("page", id))),
		width:    width,
		height:   height,
	}
	observability.PagesOpen.Inc()
	return id, nil
}

func (e *PageEngine) removePage(id uint32) bool {
	p, ok := e.pages[id]
	if !ok {
		return false
	}
	if p.webview != nil {
		p.webview.Close()
	}
	delete(e.pages, id)
	observability.PagesOpen.Dec()
	return true
}

// waitForLoad spins until the active page reports a completed load and then
// lets it settle for the configured window.
func (e *PageEngine) waitForLoad(p *pageState) error {
	d := p.delegate
	if !e.driver.SpinUntil(func() bool { return d.loadComplete }, e.opts.Timeout) {
		observability.WaitTimeouts.WithLabelValues("load").Inc()
		e.logger.Warn("Page load timed out", zap.Duration("timeout", e.opts.Timeout))
		return schemas.TimeoutError("page load")
	}
	if e.opts.Wait > 0 {
		e.driver.WaitForIdle(d, e.opts.Wait, e.opts.Timeout)
	}
	return nil
}

// Open navigates the active page to rawURL, creating page 0 if the table is
// empty. On timeout the page stays attached so the caller can retry.
func (e *PageEngine) Open(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return schemas.WrapError(schemas.KindLoadFailed, err, "invalid URL")
	}
	if !u.IsAbs() {
		return schemas.NewError(schemas.KindLoadFailed, "invalid URL: %q is not absolute", rawURL)
	}

	if len(e.pages) == 0 {
		id, err := e.createPage(e.opts.Width, e.opts.Height)
		if err != nil {
			return err
		}
		e.activeID, e.hasActive = id, true
	}
	p, err := e.activePage()
	if err != nil {
		return err
	}

	e.logger.Debug("Opening page", zap.Uint32("page", e.activeID), zap.String("url", u.String()))
	p.delegate.loadComplete = false
	if p.webview != nil {
		p.webview.Load(u)
	} else {
		wv, err := e.r.NewWebView(p.surface, p.delegate, u)
		if err != nil {
			return schemas.WrapError(schemas.KindLoadFailed, err, "create webview")
		}
		p.webview = wv
	}
	return e.waitForLoad(p)
}

// evaluate runs script on p and waits for its completion value.
func (e *PageEngine) evaluate(p *pageState, script string, timeout time.Duration) (renderer.JSValue, error) {
	var (
		done   bool
		result renderer.JSValue
		evalEr error
	)
	p.webview.EvaluateJavaScript(script, func(v renderer.JSValue, err error) {
		result, evalEr, done = v, err, true
	})
	if !e.driver.SpinUntil(func() bool { return done }, timeout) {
		observability.WaitTimeouts.WithLabelValues("evaluate").Inc()
		return nil, schemas.TimeoutError("script evaluation")
	}
	if evalEr != nil {
		return nil, &schemas.Error{Kind: schemas.KindJSError, Msg: evalEr.Error()}
	}
	if result == nil {
		result = renderer.Undefined{}
	}
	return result, nil
}

// Evaluate runs script on the active page and returns its value as JSON.
// Renderer handles come back as placeholder strings such as "[Element:3]".
func (e *PageEngine) Evaluate(script string) (string, error) {
	p, err := e.attached()
	if err != nil {
		return "", err
	}
	v, err := e.evaluate(p, script, e.opts.Timeout)
	if err != nil {
		return "", err
	}
	return JSONString(v), nil
}

// EvaluateValue is Evaluate without the JSON step.
func (e *PageEngine) EvaluateValue(script string) (renderer.JSValue, error) {
	p, err := e.attached()
	if err != nil {
		return nil, err
	}
	return e.evaluate(p, script, e.opts.Timeout)
}

func (e *PageEngine) capture(p *pageState) ([]byte, error) {
	var (
		done   bool
		img    *image.RGBA
		capErr error
	)
	p.webview.TakeScreenshot(func(i *image.RGBA, err error) {
		img, capErr, done = i, err, true
	})
	if !e.driver.SpinUntil(func() bool { return done }, e.opts.Timeout) {
		observability.WaitTimeouts.WithLabelValues("screenshot").Inc()
		return nil, schemas.TimeoutError("screenshot")
	}
	if capErr != nil {
		return nil, schemas.WrapError(schemas.KindScreenshotFailed, capErr, "")
	}
	if img == nil {
		return nil, schemas.NewError(schemas.KindScreenshotFailed, "renderer returned no image")
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, schemas.WrapError(schemas.KindScreenshotFailed, err, "PNG encoding failed")
	}
	return buf.Bytes(), nil
}

// Screenshot captures the viewport of the active page as PNG.
func (e *PageEngine) Screenshot() ([]byte, error) {
	p, err := e.attached()
	if err != nil {
		return nil, err
	}
	return e.capture(p)
}

const documentHeightScript = "Math.max(document.documentElement.scrollHeight, document.body ? document.body.scrollHeight : 0)"

func (e *PageEngine) documentHeight(p *pageState) (int, bool) {
	v, err := e.evaluate(p, documentHeightScript, e.opts.Timeout)
	if err != nil {
		return 0, false
	}
	n, ok := v.(renderer.Number)
	if !ok {
		return 0, false
	}
	return int(n), true
}

// settleAfterResize waits for the repaint a resize triggers and then for the
// page to go quiet.
func (e *PageEngine) settleAfterResize(p *pageState) bool {
	if !e.driver.WaitForFrame(p.delegate, e.opts.Timeout) {
		return false
	}
	e.driver.WaitForIdle(p.delegate, e.opts.Wait, e.opts.Timeout)
	return true
}

// ScreenshotFullPage grows the viewport to the document height, captures it
// and restores the viewport. The height is re-measured once after the first
// resize; a document that keeps growing past that is captured at the second
// measurement.
func (e *PageEngine) ScreenshotFullPage() ([]byte, error) {
	p, err := e.attached()
	if err != nil {
		return nil, err
	}
	height, ok := e.documentHeight(p)
	if !ok || height <= p.height {
		return e.capture(p)
	}

	defer p.webview.Resize(p.width, p.height)

	p.webview.Resize(p.width, height)
	if !e.settleAfterResize(p) {
		return nil, schemas.NewError(schemas.KindScreenshotFailed, "timed out waiting for repaint after resize")
	}
	if again, ok := e.documentHeight(p); ok && again != height && again > p.height {
		e.logger.Debug("Document height changed after resize", zap.Int("before", height), zap.Int("after", again))
		p.webview.Resize(p.width, again)
		e.settleAfterResize(p)
	}
	return e.capture(p)
}

// HTML returns the serialized document of the active page.
func (e *PageEngine) HTML() (string, error) {
	p, err := e.attached()
	if err != nil {
		return "", err
	}
	v, err := e.evaluate(p, "document.documentElement.outerHTML", e.opts.Timeout)
	if err != nil {
		return "", err
	}
	s, ok := v.(renderer.String)
	if !ok {
		return "", schemas.NewError(schemas.KindJSError, "unexpected JS result type: %s", describe(v))
	}
	return string(s), nil
}

// URL is the active page's address, unset when no page is attached.
func (e *PageEngine) URL() (string, bool) {
	p, err := e.attached()
	if err != nil {
		return "", false
	}
	return p.webview.URL()
}

// Title is the active page's title, unset when no page is attached.
func (e *PageEngine) Title() (string, bool) {
	p, err := e.attached()
	if err != nil {
		return "", false
	}
	return p.webview.Title()
}

// ConsoleMessages drains the active page's console buffer.
func (e *PageEngine) ConsoleMessages() []schemas.ConsoleMessage {
	p, err := e.activePage()
	if err != nil {
		return []schemas.ConsoleMessage{}
	}
	return p.delegate.drainConsole()
}

// NetworkRequests drains the active page's request buffer.
func (e *PageEngine) NetworkRequests() []schemas.NetworkRequest {
	p, err := e.activePage()
	if err != nil {
		return []schemas.NetworkRequest{}
	}
	return p.delegate.drainRequests()
}

// Close drops the active page. No other page becomes active.
func (e *PageEngine) Close() {
	if !e.hasActive {
		return
	}
	e.removePage(e.activeID)
	e.hasActive = false
}

// Reset returns the table to its just-constructed state without touching the
// renderer itself.
func (e *PageEngine) Reset() {
	for id := range e.pages {
		e.removePage(id)
	}
	for _, pp := range e.popups.drain() {
		pp.webview.Close()
	}
	e.hasActive = false
	e.nextID = 0
	// Let close notifications from the dropped views drain.
	e.driver.SpinFor(runloop.SleepSlice)
}

// -- Multi-page --

// NewPage allocates a page with the default viewport. It has no document
// until it is switched to and opened.
func (e *PageEngine) NewPage() (uint32, error) {
	return e.createPage(e.opts.Width, e.opts.Height)
}

// NewPageWithSize allocates a page with its own viewport size.
func (e *PageEngine) NewPageWithSize(width, height int) (uint32, error) {
	return e.createPage(width, height)
}

// SwitchTo makes id the active page.
func (e *PageEngine) SwitchTo(id uint32) error {
	if _, ok := e.pages[id]; !ok {
		return schemas.ErrNoPage
	}
	e.activeID, e.hasActive = id, true
	return nil
}

// ClosePage drops id. If it was active, there is no active page afterwards.
func (e *PageEngine) ClosePage(id uint32) error {
	if !e.removePage(id) {
		return schemas.ErrNoPage
	}
	if e.hasActive && e.activeID == id {
		e.hasActive = false
	}
	return nil
}

// ActivePageID reports the active page, if any.
func (e *PageEngine) ActivePageID() (uint32, bool) {
	return e.activeID, e.hasActive
}

// PageIDs lists open pages in ascending order.
func (e *PageEngine) PageIDs() []uint32 {
	ids := make([]uint32, 0, len(e.pages))
	for id := range e.pages {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (e *PageEngine) PageCount() int { return len(e.pages) }

// SetPopupHandling turns popup capture on or off. Popups are blocked by
// default.
func (e *PageEngine) SetPopupHandling(enabled bool) {
	e.popups.enabled = enabled
}

// PopupPages adopts every buffered popup as a page, in the order the popups
// were opened, and returns their new ids.
func (e *PageEngine) PopupPages() []uint32 {
	pending := e.popups.drain()
	ids := make([]uint32, 0, len(pending))
	for _, pp := range pending {
		id := e.nextID
		e.nextID++
		pp.delegate.logger = e.logger.With(zap.Uint32("page", id))
		e.pages[id] = &pageState{
			webview:  pp.webview,
			surface:  pp.surface,
			delegate: pp.delegate,
			width:    pp.width,
			height:   pp.height,
		}
		observability.PagesOpen.Inc()
		ids = append(ids, id)
	}
	return ids
}

// PageURL reads a page's address without switching to it.
func (e *PageEngine) PageURL(id uint32) (string, bool) {
	p, ok := e.pages[id]
	if !ok || p.webview == nil {
		return "", false
	}
	return p.webview.URL()
}

// PageTitle reads a page's title without switching to it.
func (e *PageEngine) PageTitle(id uint32) (string, bool) {
	p, ok := e.pages[id]
	if !ok || p.webview == nil {
		return "", false
	}
	return p.webview.Title()
}

// Shutdown closes every page and shuts the renderer down. The engine is
// unusable afterwards.
func (e *PageEngine) Shutdown() error {
	e.Reset()
	if err := e.r.Shutdown(); err != nil {
		return fmt.Errorf("failed to shut down renderer: %w", err)
	}
	return nil
}
