package sim

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dop251/goja"
	"github.com/xkilldash9x/pagedriver/internal/renderer"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/errgroup"
)

// scriptBudget bounds a single top-level script run before it is interrupted.
const scriptBudget = 10 * time.Second

var errDocumentGone = errors.New("document has been unloaded")

// scriptError is an exception thrown by page script.
type scriptError struct {
	msg string
}

func (e *scriptError) Error() string { return e.msg }

// windowTarget is the event-target key of the window.
type windowTarget struct{}

// document is one loaded page: its DOM, its script runtime and its layout.
type document struct {
	view    *webView
	url     *url.URL
	root    *html.Node
	vm      *goja.Runtime
	logger  *zap.Logger
	created time.Time

	dead       bool
	readyState string
	depth      int

	// Identity map between DOM nodes and their script wrappers.
	objects map[*html.Node]*goja.Object
	nodes   map[*goja.Object]*html.Node
	ids     map[*html.Node]string
	idSeq   int

	nodeProto, elementProto, textProto, documentProto *goja.Object

	listeners map[any][]*listener
	handlers  map[*html.Node]map[string]goja.Value
	inline    map[*html.Node]map[string]inlineHandler
	controls  map[*html.Node]*controlState
	external  map[*html.Node]string

	timers   map[int64]*jsTimer
	timerSeq int64
	frames   []frameRequest
	frameSeq int64

	focus      *html.Node
	focusValue string
	hover      *html.Node
	pressed    *html.Node
	scrollX    float64
	scrollY    float64
	layout     *layoutResult
}

func newDocument(v *webView, u *url.URL, res *resource) *document {
	d := &document{
		view:       v,
		url:        u,
		vm:         goja.New(),
		logger:     v.logger,
		created:    time.Now(),
		readyState: "loading",
		objects:    make(map[*html.Node]*goja.Object),
		nodes:      make(map[*goja.Object]*html.Node),
		ids:        make(map[*html.Node]string),
		listeners:  make(map[any][]*listener),
		handlers:   make(map[*html.Node]map[string]goja.Value),
		inline:     make(map[*html.Node]map[string]inlineHandler),
		controls:   make(map[*html.Node]*controlState),
		external:   make(map[*html.Node]string),
		timers:     make(map[int64]*jsTimer),
	}
	d.root = parseResource(res)
	d.installDOM()
	d.installWindow()
	if _, err := d.vm.RunScript("<prelude>", prelude); err != nil {
		d.logger.Error("Failed to install script prelude", zap.Error(err))
	}
	return d
}

// parseResource builds a DOM for res. Non-HTML text is shown preformatted.
func parseResource(res *resource) *html.Node {
	var body []byte
	contentType := "text/html"
	if res != nil {
		body = res.body
		if res.contentType != "" {
			contentType = res.contentType
		}
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/html"
	}
	if mediaType != "text/html" && mediaType != "application/xhtml+xml" && strings.HasPrefix(mediaType, "text/") {
		body = []byte("<html><head></head><body><pre>" + htmlEscape(string(body)) + "</pre></body></html>")
	}
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		// html.Parse only fails on reader errors.
		root, _ = html.Parse(strings.NewReader(""))
	}
	return root
}

// subresource is an external script or stylesheet referenced by the page.
type subresource struct {
	node *html.Node
	url  *url.URL
	body string
	err  error
}

// loadSubresources fetches external scripts and stylesheets, then calls done
// on the pumping goroutine.
func (d *document) loadSubresources(done func()) {
	var pending []*subresource
	sel := goquery.NewDocumentFromNode(d.root).Find(`script[src], link[rel~="stylesheet"][href]`)
	for _, n := range sel.Nodes {
		attr := "src"
		if n.DataAtom == atom.Link {
			attr = "href"
		}
		raw, _ := getAttr(n, attr)
		u, err := d.resolve(raw)
		if err != nil {
			continue
		}
		load := &resourceLoad{req: renderer.ResourceRequest{Method: "GET", URL: u.String()}}
		d.view.delegate.LoadWebResource(d.view, load)
		if load.cancelled {
			continue
		}
		pending = append(pending, &subresource{node: n, url: u})
	}

	finish := func() {
		for _, sr := range pending {
			if sr.err != nil {
				d.console(renderer.ConsoleError, "Failed to load resource: "+sr.url.String())
				continue
			}
			d.external[sr.node] = sr.body
		}
		done()
	}
	if len(pending) == 0 {
		d.view.r.post(finish)
		return
	}

	loader := d.view.r.loader
	go func() {
		g, ctx := errgroup.WithContext(context.Background())
		g.SetLimit(6)
		for _, sr := range pending {
			sr := sr
			g.Go(func() error {
				res, err := loader.fetch(ctx, getRequest(sr.url))
				if err != nil {
					sr.err = err
					return nil
				}
				sr.body = string(res.body)
				return nil
			})
		}
		_ = g.Wait()
		d.view.r.post(finish)
	}()
}

// runScripts executes classic scripts in document order.
func (d *document) runScripts() {
	scripts := goquery.NewDocumentFromNode(d.root).Find("script").Nodes
	for _, n := range scripts {
		if d.dead {
			return
		}
		if !isScriptType(n) {
			continue
		}
		name := "<inline>"
		var src string
		if raw, ok := getAttr(n, "src"); ok {
			body, fetched := d.external[n]
			if !fetched {
				continue
			}
			name, src = raw, body
		} else {
			src = textContent(n)
		}
		if _, err := d.run(name, src); err != nil {
			d.reportError(err)
		}
	}
}

func isScriptType(n *html.Node) bool {
	t, ok := getAttr(n, "type")
	if !ok {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "", "text/javascript", "application/javascript", "module", "text/ecmascript":
		return true
	}
	return false
}

// finishLoad fires DOMContentLoaded and load.
func (d *document) finishLoad() {
	if d.dead {
		return
	}
	d.readyState = "interactive"
	d.dispatch(d.root, d.newEvent("Event", "DOMContentLoaded", map[string]interface{}{"bubbles": true}))
	d.readyState = "complete"
	d.dispatchWindowEvent("load")
	if body := d.body(); body != nil {
		if _, hasProp := d.globalHandler("load"); !hasProp {
			if fn, ok := d.attributeHandler(body, "load"); ok {
				d.callHandler(fn, d.vm.GlobalObject(), d.newEvent("Event", "load", nil))
			}
		}
	}
}

// run evaluates src as a top-level script.
func (d *document) run(name, src string) (goja.Value, error) {
	if d.dead {
		return nil, errDocumentGone
	}
	defer d.enter()()
	v, err := d.vm.RunScript(name, src)
	if err != nil {
		return nil, toScriptError(err)
	}
	return v, nil
}

// call invokes a script callable with the same protections as run.
func (d *document) call(fn goja.Value, this goja.Value, args ...goja.Value) (goja.Value, error) {
	if d.dead {
		return nil, errDocumentGone
	}
	callable, ok := goja.AssertFunction(fn)
	if !ok {
		return nil, &scriptError{msg: "TypeError: value is not a function"}
	}
	defer d.enter()()
	v, err := callable(this, args...)
	if err != nil {
		return nil, toScriptError(err)
	}
	return v, nil
}

// enter arms the interrupt watchdog for the outermost script entry.
func (d *document) enter() func() {
	d.depth++
	if d.depth > 1 {
		return func() { d.depth-- }
	}
	var (
		mu       sync.Mutex
		finished bool
	)
	vm := d.vm
	t := time.AfterFunc(scriptBudget, func() {
		mu.Lock()
		defer mu.Unlock()
		if !finished {
			vm.Interrupt("script exceeded its time budget")
		}
	})
	return func() {
		d.depth--
		mu.Lock()
		finished = true
		mu.Unlock()
		t.Stop()
		vm.ClearInterrupt()
	}
}

func toScriptError(err error) error {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		if v := ex.Value(); v != nil {
			return &scriptError{msg: v.String()}
		}
		return &scriptError{msg: ex.Error()}
	}
	var intr *goja.InterruptedError
	if errors.As(err, &intr) {
		return &scriptError{msg: "script interrupted: " + intr.Error()}
	}
	return &scriptError{msg: err.Error()}
}

// reportError surfaces an uncaught exception on the console.
func (d *document) reportError(err error) {
	d.console(renderer.ConsoleError, "Uncaught "+err.Error())
}

func (d *document) console(level renderer.ConsoleLevel, msg string) {
	if d.dead || d.view.closed {
		return
	}
	d.logger.Debug("Page console", zap.Stringer("level", level), zap.String("message", msg))
	d.view.delegate.ShowConsoleMessage(d.view, level, msg)
}

// describe renders a thrown or rejected value for an error message.
func (d *document) describe(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	return v.String()
}

// invalidate drops the cached layout and schedules a frame.
func (d *document) invalidate() {
	d.layout = nil
	d.view.markDirty()
}

func (d *document) teardown() {
	if d.dead {
		return
	}
	d.dead = true
	for id, t := range d.timers {
		t.timer.Stop()
		delete(d.timers, id)
	}
	d.frames = nil
	d.vm.Interrupt("document unloaded")
}

func (d *document) resolve(ref string) (*url.URL, error) {
	ref = strings.TrimSpace(ref)
	u, err := d.url.Parse(ref)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("cannot resolve %q against %s", ref, d.url)
	}
	return u, nil
}

// title is the collapsed text of the first <title>.
func (d *document) title() string {
	n := findFirst(d.root, func(n *html.Node) bool { return n.DataAtom == atom.Title })
	if n == nil {
		return ""
	}
	return strings.Join(strings.Fields(textContent(n)), " ")
}

func (d *document) setTitle(t string) {
	n := findFirst(d.root, func(n *html.Node) bool { return n.DataAtom == atom.Title })
	if n == nil {
		head := d.head()
		if head == nil {
			return
		}
		n = &html.Node{Type: html.ElementNode, Data: "title", DataAtom: atom.Title}
		head.AppendChild(n)
	}
	setText(n, t)
}

func (d *document) documentElement() *html.Node {
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

func (d *document) head() *html.Node {
	return childByAtom(d.documentElement(), atom.Head)
}

func (d *document) body() *html.Node {
	return childByAtom(d.documentElement(), atom.Body)
}

// nodeID returns the stable handle string of n within this document.
func (d *document) nodeID(n *html.Node) string {
	if id, ok := d.ids[n]; ok {
		return id
	}
	d.idSeq++
	id := strconv.Itoa(d.idSeq)
	d.ids[n] = id
	return id
}

// --- tree helpers ---

func childByAtom(parent *html.Node, a atom.Atom) *html.Node {
	if parent == nil {
		return nil
	}
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
	}
	return nil
}

func findFirst(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode && pred(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, pred); found != nil {
			return found
		}
	}
	return nil
}

func getAttr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) bool {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return true
		}
	}
	return false
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := getAttr(n, key)
	return ok
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode || n.Type == html.CommentNode {
		return n.Data
	}
	return goquery.NewDocumentFromNode(n).Text()
}

func setText(n *html.Node, text string) {
	removeChildren(n)
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}

func removeChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
}

func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

func isAncestor(ancestor, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

func cloneNode(n *html.Node, deep bool) *html.Node {
	clone := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	if deep {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			clone.AppendChild(cloneNode(c, true))
		}
	}
	return clone
}

func renderNode(n *html.Node) string {
	var sb strings.Builder
	_ = html.Render(&sb, n)
	return sb.String()
}

func renderChildren(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&sb, c)
	}
	return sb.String()
}
