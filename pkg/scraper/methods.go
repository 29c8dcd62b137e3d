package scraper

import (
	"time"

	"github.com/xkilldash9x/pagedriver/api/schemas"
	"github.com/xkilldash9x/pagedriver/internal/engine"
)

// optional carries a (value, present) pair across the worker boundary.
type optional[T any] struct {
	value T
	ok    bool
}

// -- Navigation and capture --

// Open navigates the active page to url and waits for the load to settle.
func (p *Page) Open(url string) error {
	return exec(p, "open", func(e *engine.PageEngine) error {
		if e.PageCount() == 0 && len(p.settings.blocked) > 0 {
			id, err := e.NewPage()
			if err != nil {
				return err
			}
			if err := e.SwitchTo(id); err != nil {
				return err
			}
			e.BlockURLs(p.settings.blocked)
		}
		return e.Open(url)
	})
}

// Evaluate runs script and returns its completion value as JSON text.
func (p *Page) Evaluate(script string) (string, error) {
	return call(p, "evaluate", func(e *engine.PageEngine) (string, error) {
		return e.Evaluate(script)
	})
}

// Screenshot returns a PNG of the viewport.
func (p *Page) Screenshot() ([]byte, error) {
	return call(p, "screenshot", func(e *engine.PageEngine) ([]byte, error) {
		return e.Screenshot()
	})
}

// ScreenshotFullPage returns a PNG of the whole scrollable document.
func (p *Page) ScreenshotFullPage() ([]byte, error) {
	return call(p, "screenshot_fullpage", func(e *engine.PageEngine) ([]byte, error) {
		return e.ScreenshotFullPage()
	})
}

// HTML returns the serialized document.
func (p *Page) HTML() (string, error) {
	return call(p, "html", func(e *engine.PageEngine) (string, error) {
		return e.HTML()
	})
}

// URL returns the active page's URL. It is empty when nothing is loaded or the
// worker is gone.
func (p *Page) URL() (string, bool) {
	v, err := call(p, "url", func(e *engine.PageEngine) (optional[string], error) {
		u, ok := e.URL()
		return optional[string]{u, ok}, nil
	})
	return v.value, err == nil && v.ok
}

// Title returns the active page's document title.
func (p *Page) Title() (string, bool) {
	v, err := call(p, "title", func(e *engine.PageEngine) (optional[string], error) {
		t, ok := e.Title()
		return optional[string]{t, ok}, nil
	})
	return v.value, err == nil && v.ok
}

// ConsoleMessages drains the console buffer of the active page.
func (p *Page) ConsoleMessages() ([]schemas.ConsoleMessage, error) {
	return call(p, "console_messages", func(e *engine.PageEngine) ([]schemas.ConsoleMessage, error) {
		return e.ConsoleMessages(), nil
	})
}

// NetworkRequests drains the request log of the active page.
func (p *Page) NetworkRequests() ([]schemas.NetworkRequest, error) {
	return call(p, "network_requests", func(e *engine.PageEngine) ([]schemas.NetworkRequest, error) {
		return e.NetworkRequests(), nil
	})
}

// Close closes the active page.
func (p *Page) Close() error {
	return exec(p, "close", func(e *engine.PageEngine) error {
		e.Close()
		return nil
	})
}

// Reset closes every page and restarts page numbering at zero.
func (p *Page) Reset() error {
	return exec(p, "reset", func(e *engine.PageEngine) error {
		e.Reset()
		return nil
	})
}

// -- Waits --

// WaitForSelector waits until selector matches an element.
func (p *Page) WaitForSelector(selector string, timeout time.Duration) error {
	return exec(p, "wait_for_selector", func(e *engine.PageEngine) error {
		return e.WaitForSelector(selector, timeout)
	})
}

// WaitForCondition waits until expr evaluates truthy.
func (p *Page) WaitForCondition(expr string, timeout time.Duration) error {
	return exec(p, "wait_for_condition", func(e *engine.PageEngine) error {
		return e.WaitForCondition(expr, timeout)
	})
}

// Wait keeps the renderer running for d.
func (p *Page) Wait(d time.Duration) error {
	return exec(p, "wait", func(e *engine.PageEngine) error {
		e.Wait(d)
		return nil
	})
}

// WaitForNavigation waits for the next completed load.
func (p *Page) WaitForNavigation(timeout time.Duration) error {
	return exec(p, "wait_for_navigation", func(e *engine.PageEngine) error {
		return e.WaitForNavigation(timeout)
	})
}

// WaitForNetworkIdle waits until no request has started for idle.
func (p *Page) WaitForNetworkIdle(idle, timeout time.Duration) error {
	return exec(p, "wait_for_network_idle", func(e *engine.PageEngine) error {
		return e.WaitForNetworkIdle(idle, timeout)
	})
}

// -- Input --

// Click clicks at viewport coordinates.
func (p *Page) Click(x, y float64) error {
	return exec(p, "click", func(e *engine.PageEngine) error { return e.Click(x, y) })
}

// ClickSelector clicks the centre of the first match of selector.
func (p *Page) ClickSelector(selector string) error {
	return exec(p, "click_selector", func(e *engine.PageEngine) error { return e.ClickSelector(selector) })
}

// TypeText types text one character at a time.
func (p *Page) TypeText(text string) error {
	return exec(p, "type_text", func(e *engine.PageEngine) error { return e.TypeText(text) })
}

// KeyPress presses a named key such as "Enter" or a single character.
func (p *Page) KeyPress(key string) error {
	return exec(p, "key_press", func(e *engine.PageEngine) error { return e.KeyPress(key) })
}

// MouseMove moves the pointer.
func (p *Page) MouseMove(x, y float64) error {
	return exec(p, "mouse_move", func(e *engine.PageEngine) error { return e.MouseMove(x, y) })
}

// Scroll scrolls by pixel deltas; positive dy scrolls down.
func (p *Page) Scroll(dx, dy float64) error {
	return exec(p, "scroll", func(e *engine.PageEngine) error { return e.Scroll(dx, dy) })
}

// ScrollToSelector scrolls the first match of selector into the centre.
func (p *Page) ScrollToSelector(selector string) error {
	return exec(p, "scroll_to_selector", func(e *engine.PageEngine) error { return e.ScrollToSelector(selector) })
}

// SelectOption picks an option of a <select> by value.
func (p *Page) SelectOption(selector, value string) error {
	return exec(p, "select_option", func(e *engine.PageEngine) error { return e.SelectOption(selector, value) })
}

// SetInputFiles attaches files to a file input.
func (p *Page) SetInputFiles(selector string, files []schemas.InputFile) error {
	return exec(p, "set_input_files", func(e *engine.PageEngine) error { return e.SetInputFiles(selector, files) })
}

// -- Cookies and interception --

func (p *Page) GetCookies() (string, error) {
	return call(p, "get_cookies", func(e *engine.PageEngine) (string, error) { return e.GetCookies() })
}

func (p *Page) SetCookie(cookie string) error {
	return exec(p, "set_cookie", func(e *engine.PageEngine) error { return e.SetCookie(cookie) })
}

func (p *Page) ClearCookies() error {
	return exec(p, "clear_cookies", func(e *engine.PageEngine) error { return e.ClearCookies() })
}

// BlockURLs cancels later requests of the active page whose URL contains any
// of patterns. It returns once the patterns are in place.
func (p *Page) BlockURLs(patterns []string) error {
	return exec(p, "block_urls", func(e *engine.PageEngine) error {
		e.BlockURLs(patterns)
		return nil
	})
}

func (p *Page) ClearBlockedURLs() error {
	return exec(p, "clear_blocked_urls", func(e *engine.PageEngine) error {
		e.ClearBlockedURLs()
		return nil
	})
}

// -- History --

func (p *Page) Reload() error {
	return exec(p, "reload", func(e *engine.PageEngine) error { return e.Reload() })
}

// GoBack reports false when there was no entry to go back to.
func (p *Page) GoBack() (bool, error) {
	return call(p, "go_back", func(e *engine.PageEngine) (bool, error) { return e.GoBack() })
}

func (p *Page) GoForward() (bool, error) {
	return call(p, "go_forward", func(e *engine.PageEngine) (bool, error) { return e.GoForward() })
}

// -- Element info --

func (p *Page) ElementRect(selector string) (schemas.ElementRect, error) {
	return call(p, "element_rect", func(e *engine.PageEngine) (schemas.ElementRect, error) {
		return e.ElementRect(selector)
	})
}

func (p *Page) ElementText(selector string) (string, error) {
	return call(p, "element_text", func(e *engine.PageEngine) (string, error) { return e.ElementText(selector) })
}

// ElementAttribute returns ("", false, nil) when the element has no such
// attribute.
func (p *Page) ElementAttribute(selector, attribute string) (string, bool, error) {
	v, err := call(p, "element_attribute", func(e *engine.PageEngine) (optional[string], error) {
		s, ok, err := e.ElementAttribute(selector, attribute)
		return optional[string]{s, ok}, err
	})
	return v.value, v.ok, err
}

func (p *Page) ElementHTML(selector string) (string, error) {
	return call(p, "element_html", func(e *engine.PageEngine) (string, error) { return e.ElementHTML(selector) })
}

// -- Multiple pages --

// NewPage adds a page at the default viewport size without loading anything.
func (p *Page) NewPage() (uint32, error) {
	return call(p, "new_page", func(e *engine.PageEngine) (uint32, error) { return e.NewPage() })
}

func (p *Page) NewPageWithSize(width, height int) (uint32, error) {
	return call(p, "new_page", func(e *engine.PageEngine) (uint32, error) {
		return e.NewPageWithSize(width, height)
	})
}

func (p *Page) SwitchTo(id uint32) error {
	return exec(p, "switch_to", func(e *engine.PageEngine) error { return e.SwitchTo(id) })
}

// ClosePage closes page id. Closing the active page leaves no page active.
func (p *Page) ClosePage(id uint32) error {
	return exec(p, "close_page", func(e *engine.PageEngine) error { return e.ClosePage(id) })
}

func (p *Page) ActivePageID() (uint32, bool) {
	v, err := call(p, "active_page_id", func(e *engine.PageEngine) (optional[uint32], error) {
		id, ok := e.ActivePageID()
		return optional[uint32]{id, ok}, nil
	})
	return v.value, err == nil && v.ok
}

func (p *Page) PageIDs() ([]uint32, error) {
	return call(p, "page_ids", func(e *engine.PageEngine) ([]uint32, error) { return e.PageIDs(), nil })
}

func (p *Page) PageCount() (int, error) {
	return call(p, "page_count", func(e *engine.PageEngine) (int, error) { return e.PageCount(), nil })
}

// SetPopupHandling turns capture of window.open pages on or off.
func (p *Page) SetPopupHandling(enabled bool) error {
	return exec(p, "set_popup_handling", func(e *engine.PageEngine) error {
		e.SetPopupHandling(enabled)
		return nil
	})
}

// PopupPages adopts captured popups as pages and returns their ids.
func (p *Page) PopupPages() ([]uint32, error) {
	return call(p, "popup_pages", func(e *engine.PageEngine) ([]uint32, error) { return e.PopupPages(), nil })
}

func (p *Page) PageURL(id uint32) (string, bool) {
	v, err := call(p, "page_url", func(e *engine.PageEngine) (optional[string], error) {
		u, ok := e.PageURL(id)
		return optional[string]{u, ok}, nil
	})
	return v.value, err == nil && v.ok
}

func (p *Page) PageTitle(id uint32) (string, bool) {
	v, err := call(p, "page_title", func(e *engine.PageEngine) (optional[string], error) {
		t, ok := e.PageTitle(id)
		return optional[string]{t, ok}, nil
	})
	return v.value, err == nil && v.ok
}
