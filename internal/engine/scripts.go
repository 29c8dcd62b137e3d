package engine

import (
	"encoding/base64"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagedriver/api/schemas"
	"github.com/xkilldash9x/pagedriver/internal/renderer"
)

// queryScript wraps body in a function with el bound to the first match of
// selector; body runs only when there is a match, otherwise the function
// returns missing.
func queryScript(selector, missing, body string) string {
	return "(function() { var el = document.querySelector(" + jsString(selector) + "); " +
		"if (!el) return " + missing + "; " + body + " })()"
}

func centerScript(selector string) string {
	return queryScript(selector, "null",
		"var r = el.getBoundingClientRect(); return [r.left + r.width/2, r.top + r.height/2];")
}

func scrollIntoViewScript(selector string) string {
	return queryScript(selector, "null",
		"el.scrollIntoView({behavior: 'instant', block: 'center'}); return true;")
}

// numbers reads an array of exactly n numbers.
func numbers(v renderer.JSValue, n int, what string) ([]float64, error) {
	arr, ok := v.(renderer.Array)
	if !ok || len(arr) != n {
		return nil, schemas.NewError(schemas.KindJSError, "unexpected %s result: %s", what, describe(v))
	}
	out := make([]float64, n)
	for i, item := range arr {
		num, ok := item.(renderer.Number)
		if !ok {
			return nil, schemas.NewError(schemas.KindJSError, "invalid %s value: %s", what, describe(item))
		}
		out[i] = float64(num)
	}
	return out, nil
}

// runStatusScript runs a script that answers with a status word such as
// "ok" or "not_found" and maps the word onto an error.
func (e *PageEngine) runStatusScript(selector, script string, failures map[string]string) error {
	p, err := e.attached()
	if err != nil {
		return err
	}
	v, err := e.evaluate(p, script, e.opts.Timeout)
	if err != nil {
		return err
	}
	s, ok := v.(renderer.String)
	if !ok {
		return schemas.NewError(schemas.KindJSError, "unexpected result: %s", describe(v))
	}
	switch status := string(s); status {
	case "ok":
		return nil
	case "not_found":
		return schemas.SelectorNotFoundError(selector)
	default:
		if msg, known := failures[status]; known {
			return &schemas.Error{Kind: schemas.KindJSError, Msg: msg}
		}
		return schemas.NewError(schemas.KindJSError, "unexpected result: %q", status)
	}
}

// SelectOption selects the option with the given value in a <select> and
// fires input and change.
func (e *PageEngine) SelectOption(selector, value string) error {
	val := jsString(value)
	script := queryScript(selector, "'not_found'", strings.Join([]string{
		"if (el.tagName !== 'SELECT') return 'not_select';",
		"var opt = Array.from(el.options).find(function(o) { return o.value === " + val + "; });",
		"if (!opt) return 'no_option';",
		"el.value = " + val + ";",
		"el.dispatchEvent(new Event('input', {bubbles: true}));",
		"el.dispatchEvent(new Event('change', {bubbles: true}));",
		"return 'ok';",
	}, " "))
	return e.runStatusScript(selector, script, map[string]string{
		"not_select": fmt.Sprintf("element '%s' is not a <select>", selector),
		"no_option":  fmt.Sprintf("no option with value '%s' in '%s'", value, selector),
	})
}

// SetInputFiles attaches files to an <input type="file"> and fires change.
func (e *PageEngine) SetInputFiles(selector string, files []schemas.InputFile) error {
	entries := make([]string, len(files))
	for i, f := range files {
		entries[i] = fmt.Sprintf("{name:%s,mime:%s,b64:'%s'}",
			jsString(f.Name), jsString(f.MimeType), base64.StdEncoding.EncodeToString(f.Data))
	}
	script := queryScript(selector, "'not_found'", strings.Join([]string{
		"if (el.type !== 'file') return 'not_file';",
		"var dt = new DataTransfer();",
		"var files = [" + strings.Join(entries, ",") + "];",
		"for (var i = 0; i < files.length; i++) {",
		"  var f = files[i];",
		"  var raw = atob(f.b64);",
		"  var bytes = new Uint8Array(raw.length);",
		"  for (var j = 0; j < raw.length; j++) bytes[j] = raw.charCodeAt(j);",
		"  dt.items.add(new File([bytes], f.name, {type: f.mime}));",
		"}",
		"el.files = dt.files;",
		"el.dispatchEvent(new Event('change', {bubbles: true}));",
		"return 'ok';",
	}, " "))
	return e.runStatusScript(selector, script, map[string]string{
		"not_file": fmt.Sprintf("element '%s' is not an <input type=\"file\">", selector),
	})
}

// -- Cookies --

// GetCookies returns document.cookie of the active page.
func (e *PageEngine) GetCookies() (string, error) {
	p, err := e.attached()
	if err != nil {
		return "", err
	}
	v, err := e.evaluate(p, "document.cookie", e.opts.Timeout)
	if err != nil {
		return "", err
	}
	s, ok := v.(renderer.String)
	if !ok {
		return "", schemas.NewError(schemas.KindJSError, "unexpected cookie result: %s", describe(v))
	}
	return string(s), nil
}

// SetCookie assigns a Set-Cookie style string to document.cookie.
func (e *PageEngine) SetCookie(cookie string) error {
	p, err := e.attached()
	if err != nil {
		return err
	}
	_, err = e.evaluate(p, "document.cookie = "+jsString(cookie), e.opts.Timeout)
	return err
}

const clearCookiesScript = `(function() {
  var cookies = document.cookie.split(';');
  for (var i = 0; i < cookies.length; i++) {
    var name = cookies[i].split('=')[0].trim();
    if (name) {
      document.cookie = name + '=;expires=Thu, 01 Jan 1970 00:00:00 GMT;path=/';
    }
  }
})()`

// ClearCookies expires every cookie visible to the active page.
func (e *PageEngine) ClearCookies() error {
	p, err := e.attached()
	if err != nil {
		return err
	}
	_, err = e.evaluate(p, clearCookiesScript, e.opts.Timeout)
	return err
}

// -- Request interception --

// BlockURLs cancels future requests of the active page whose URL contains
// any of patterns. Without an active page it does nothing.
func (e *PageEngine) BlockURLs(patterns []string) {
	p, err := e.activePage()
	if err != nil {
		return
	}
	p.delegate.blocked = append([]string(nil), patterns...)
	e.logger.Debug("Blocking URL patterns", zap.Strings("patterns", patterns))
}

// ClearBlockedURLs removes every block pattern of the active page.
func (e *PageEngine) ClearBlockedURLs() {
	p, err := e.activePage()
	if err != nil {
		return
	}
	p.delegate.blocked = nil
}

// -- Navigation --

// Reload reloads the active page and waits for the load.
func (e *PageEngine) Reload() error {
	p, err := e.attached()
	if err != nil {
		return err
	}
	p.delegate.loadComplete = false
	p.webview.Reload()
	return e.waitForLoad(p)
}

// GoBack moves one entry back. It reports false when there is no history.
func (e *PageEngine) GoBack() (bool, error) {
	p, err := e.attached()
	if err != nil {
		return false, err
	}
	if !p.webview.CanGoBack() {
		return false, nil
	}
	p.delegate.loadComplete = false
	p.webview.GoBack(1)
	if err := e.waitForLoad(p); err != nil {
		return false, err
	}
	return true, nil
}

// GoForward moves one entry forward. It reports false when there is none.
func (e *PageEngine) GoForward() (bool, error) {
	p, err := e.attached()
	if err != nil {
		return false, err
	}
	if !p.webview.CanGoForward() {
		return false, nil
	}
	p.delegate.loadComplete = false
	p.webview.GoForward(1)
	if err := e.waitForLoad(p); err != nil {
		return false, err
	}
	return true, nil
}

// -- Element info --

// ElementRect returns the bounding box of the first match of selector.
func (e *PageEngine) ElementRect(selector string) (schemas.ElementRect, error) {
	p, err := e.attached()
	if err != nil {
		return schemas.ElementRect{}, err
	}
	script := queryScript(selector, "null",
		"var r = el.getBoundingClientRect(); return [r.x, r.y, r.width, r.height];")
	v, err := e.evaluate(p, script, e.opts.Timeout)
	if err != nil {
		return schemas.ElementRect{}, err
	}
	if renderer.IsNullish(v) {
		return schemas.ElementRect{}, schemas.SelectorNotFoundError(selector)
	}
	n, err := numbers(v, 4, "rect")
	if err != nil {
		return schemas.ElementRect{}, err
	}
	return schemas.ElementRect{X: n[0], Y: n[1], Width: n[2], Height: n[3]}, nil
}

// elementString evaluates a string-valued property of the first match.
func (e *PageEngine) elementString(selector, expr, what string) (string, error) {
	p, err := e.attached()
	if err != nil {
		return "", err
	}
	v, err := e.evaluate(p, queryScript(selector, "null", "return "+expr+";"), e.opts.Timeout)
	if err != nil {
		return "", err
	}
	switch x := v.(type) {
	case renderer.String:
		return string(x), nil
	case renderer.Null, renderer.Undefined:
		return "", schemas.SelectorNotFoundError(selector)
	}
	return "", schemas.NewError(schemas.KindJSError, "unexpected %s result: %s", what, describe(v))
}

// ElementText returns the textContent of the first match of selector.
func (e *PageEngine) ElementText(selector string) (string, error) {
	return e.elementString(selector, "el.textContent", "text")
}

// ElementHTML returns the outerHTML of the first match of selector.
func (e *PageEngine) ElementHTML(selector string) (string, error) {
	return e.elementString(selector, "el.outerHTML", "html")
}

// ElementAttribute returns an attribute of the first match of selector. The
// boolean is false when the element exists but has no such attribute.
func (e *PageEngine) ElementAttribute(selector, attribute string) (string, bool, error) {
	p, err := e.attached()
	if err != nil {
		return "", false, err
	}
	script := queryScript(selector, "undefined", "return el.getAttribute("+jsString(attribute)+");")
	v, err := e.evaluate(p, script, e.opts.Timeout)
	if err != nil {
		return "", false, err
	}
	switch x := v.(type) {
	case renderer.String:
		return string(x), true, nil
	case renderer.Null:
		return "", false, nil
	case renderer.Undefined:
		return "", false, schemas.SelectorNotFoundError(selector)
	}
	return "", false, schemas.NewError(schemas.KindJSError, "unexpected attribute result: %s", describe(v))
}
