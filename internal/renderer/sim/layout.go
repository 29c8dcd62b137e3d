package sim

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dop251/goja"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Text metrics of the layout font, as fractions of the font size.
const (
	charAdvance = 0.55
	lineSpacing = 1.2
)

type rect struct {
	x, y, w, h float64
}

func (r rect) contains(x, y float64) bool {
	return x >= r.x && x < r.x+r.w && y >= r.y && y < r.y+r.h
}

func (r rect) union(o rect) rect {
	x0, y0 := math.Min(r.x, o.x), math.Min(r.y, o.y)
	x1, y1 := math.Max(r.x+r.w, o.x+o.w), math.Max(r.y+r.h, o.y+o.h)
	return rect{x: x0, y: y0, w: x1 - x0, h: y1 - y0}
}

type opKind int

const (
	opBox opKind = iota
	opText
	opCheck
)

// paintOp is one display-list entry in document coordinates. Ops are in
// paint order; later ops are on top for hit testing.
type paintOp struct {
	kind   opKind
	node   *html.Node
	r      rect
	fill   colorValue
	grad   *gradient
	border [4]float64
	stroke colorValue
	text   string
	size   float64
	round  bool
}

// layoutResult is the laid-out document for the current viewport.
type layoutResult struct {
	width, height float64
	canvas        colorValue
	rects         map[*html.Node]rect
	styles        map[*html.Node]*computedStyle
	ops           []paintOp
}

type edges struct {
	t, r, b, l float64
}

func (d *document) ensureLayout() *layoutResult {
	if d.layout == nil {
		d.layout = d.computeLayout()
	}
	return d.layout
}

func (d *document) computeLayout() *layoutResult {
	vw, vh := float64(d.view.surface.width), float64(d.view.surface.height)
	res := &layoutResult{
		width:  vw,
		height: vh,
		canvas: white,
		rects:  make(map[*html.Node]rect),
		styles: make(map[*html.Node]*computedStyle),
	}
	root := d.documentElement()
	if root == nil {
		return res
	}
	lo := &layouter{d: d, res: res, sheets: d.collectSheets(), vw: vw, vh: vh}
	rs := lo.style(root, nil)
	h := lo.block(root, rs, 0, 0, vw)
	res.height = math.Max(vh, h)
	for _, r := range res.rects {
		res.width = math.Max(res.width, r.x+r.w)
	}

	// The root background, or failing that the body's, paints the canvas.
	if c, ok := backgroundColor(rs); ok && c.A > 0 {
		res.canvas = c
	} else if body := d.body(); body != nil {
		if bs, ok := res.styles[body]; ok {
			if c, ok := backgroundColor(bs); ok && c.A > 0 {
				res.canvas = c
			}
		}
	}
	return res
}

type layouter struct {
	d      *document
	res    *layoutResult
	sheets []*styleSheet
	vw, vh float64
}

func (lo *layouter) style(n *html.Node, parent *computedStyle) *computedStyle {
	cs := computeStyle(n, parent, lo.sheets)
	lo.res.styles[n] = cs
	return cs
}

func (lo *layouter) length(cs *computedStyle, prop string, ref float64) (float64, bool) {
	v := cs.get(prop, "auto")
	if v == "auto" {
		return 0, false
	}
	return parseLength(v, cs.fontSize, ref, lo.vw, lo.vh), true
}

func (lo *layouter) box(cs *computedStyle, prefix, suffix string, ref float64) edges {
	side := func(s string) float64 {
		v, _ := lo.length(cs, prefix+"-"+s+suffix, ref)
		return v
	}
	return edges{t: side("top"), r: side("right"), b: side("bottom"), l: side("left")}
}

func (lo *layouter) borders(cs *computedStyle) edges {
	b := lo.box(cs, "border", "-width", 0)
	if strings.Contains(cs.get("border-style", ""), "none") {
		return edges{}
	}
	return b
}

func isBlockDisplay(display string) bool {
	switch display {
	case "block", "list-item", "table", "flex", "grid", "table-row", "table-row-group",
		"table-header-group", "table-footer-group", "flow-root":
		return true
	}
	return false
}

// block lays out n as a block box whose margin edge starts at (x, y) within
// avail width. It returns the height of the margin box.
func (lo *layouter) block(n *html.Node, cs *computedStyle, x, y, avail float64) float64 {
	m := lo.box(cs, "margin", "", avail)
	p := lo.box(cs, "padding", "", avail)
	b := lo.borders(cs)
	width := avail - m.l - m.r - b.l - b.r - p.l - p.r
	if w, ok := lo.length(cs, "width", avail); ok {
		width = w
		if cs.get("box-sizing", "") == "border-box" {
			width -= b.l + b.r + p.l + p.r
		}
	}
	if mw, ok := lo.length(cs, "max-width", avail); ok && cs.get("max-width", "") != "none" && width > mw {
		width = mw
	}
	width = math.Max(0, width)

	bx, by := x+m.l, y+m.t
	cx, cy := bx+b.l+p.l, by+b.t+p.t
	idx := lo.reserve()
	contentH := lo.children(n, cs, cx, cy, width)
	if h, ok := lo.length(cs, "height", lo.vh); ok {
		contentH = h
		if cs.get("box-sizing", "") == "border-box" {
			contentH = math.Max(0, h-b.t-b.b-p.t-p.b)
		}
	}
	if mh, ok := lo.length(cs, "min-height", lo.vh); ok && contentH < mh {
		contentH = mh
	}
	box := rect{x: bx, y: by, w: width + p.l + p.r + b.l + b.r, h: contentH + p.t + p.b + b.t + b.b}
	lo.res.rects[n] = box
	lo.fillBox(idx, n, cs, box, b)
	return m.t + box.h + m.b
}

func (lo *layouter) reserve() int {
	lo.res.ops = append(lo.res.ops, paintOp{kind: opBox})
	return len(lo.res.ops) - 1
}

func (lo *layouter) fillBox(idx int, n *html.Node, cs *computedStyle, box rect, b edges) {
	op := paintOp{kind: opBox, node: n, r: box, border: [4]float64{b.t, b.r, b.b, b.l}, stroke: black}
	if c, ok := parseColor(cs.get("border-color", "")); ok {
		op.stroke = c
	} else {
		op.stroke = cs.color
	}
	if !cs.hidden {
		if c, ok := backgroundColor(cs); ok {
			op.fill = c
		}
		op.grad = parseGradient(cs.get("background-image", ""))
	} else {
		op.border = [4]float64{}
	}
	if n == lo.d.documentElement() {
		// Painted by the canvas.
		op.fill, op.grad = colorValue{}, nil
	}
	lo.res.ops[idx] = op
}

func backgroundColor(cs *computedStyle) (colorValue, bool) {
	return parseColor(cs.get("background-color", "transparent"))
}

// children lays out the content of a block container and returns its height.
func (lo *layouter) children(n *html.Node, cs *computedStyle, cx, cy, width float64) float64 {
	y := cy
	var line *lineBox
	flush := func() {
		if line != nil {
			y = line.finish()
			line = nil
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if line == nil && !cs.pre && strings.TrimSpace(c.Data) == "" {
				continue
			}
			if line == nil {
				line = &lineBox{lo: lo, block: n, x0: cx, y: y, width: width}
			}
			line.text(c, cs)
		case html.ElementNode:
			ccs := lo.style(c, cs)
			if ccs.display == "none" || c.DataAtom == atom.Head {
				continue
			}
			if isBlockDisplay(ccs.display) {
				flush()
				y += lo.block(c, ccs, cx, y, width)
				continue
			}
			if line == nil {
				line = &lineBox{lo: lo, block: n, x0: cx, y: y, width: width}
			}
			line.inline(c, ccs)
		}
	}
	flush()
	return y - cy
}

// lineBox places inline content into successive lines.
type lineBox struct {
	lo    *layouter
	block *html.Node
	x0    float64
	y     float64
	width float64
	cx    float64
	h     float64
	used  bool
}

func lineHeight(cs *computedStyle) float64 {
	if v := cs.get("line-height", "normal"); v != "normal" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f * cs.fontSize
		}
		if px := parseLength(v, cs.fontSize, cs.fontSize, 0, 0); px > 0 {
			return px
		}
	}
	return math.Round(cs.fontSize * lineSpacing)
}

func textWidth(s string, fontSize float64) float64 {
	return float64(utf8.RuneCountInString(s)) * fontSize * charAdvance
}

func (lb *lineBox) newline(minHeight float64) {
	lb.y += math.Max(lb.h, minHeight)
	lb.cx, lb.h, lb.used = 0, 0, false
}

func (lb *lineBox) finish() float64 {
	if lb.used || lb.h > 0 {
		lb.y += lb.h
	}
	return lb.y
}

// reserveWidth wraps before an item of width w that does not fit.
func (lb *lineBox) reserveWidth(w float64) {
	if lb.cx > 0 && lb.cx+w > lb.width {
		lb.newline(0)
	}
}

func (lb *lineBox) text(t *html.Node, cs *computedStyle) {
	lh := lineHeight(cs)
	space := textWidth(" ", cs.fontSize)
	if cs.pre {
		for i, ln := range strings.Split(t.Data, "\n") {
			if i > 0 {
				lb.newline(lh)
			}
			if ln != "" {
				lb.place(t.Parent, strings.ReplaceAll(ln, "\t", "    "), cs, lh)
			}
		}
		return
	}
	words := strings.Fields(t.Data)
	if len(words) == 0 {
		if lb.cx > 0 {
			lb.cx += space
		}
		return
	}
	if lb.cx > 0 && startsWithSpace(t.Data) {
		lb.cx += space
	}
	for i, w := range words {
		lb.reserveWidth(textWidth(w, cs.fontSize))
		lb.place(t.Parent, w, cs, lh)
		if i < len(words)-1 || endsWithSpace(t.Data) {
			lb.cx += space
		}
	}
}

func startsWithSpace(s string) bool { return s != "" && isSpace(s[0]) }
func endsWithSpace(s string) bool   { return s != "" && isSpace(s[len(s)-1]) }

// place emits one run of text at the cursor.
func (lb *lineBox) place(owner *html.Node, s string, cs *computedStyle, lh float64) {
	w := textWidth(s, cs.fontSize)
	r := rect{x: lb.x0 + lb.cx, y: lb.y, w: w, h: lh}
	if !cs.hidden {
		lb.lo.res.ops = append(lb.lo.res.ops, paintOp{kind: opText, node: owner, r: r, text: s, size: cs.fontSize, fill: cs.color})
	}
	lb.extend(owner, r)
	lb.cx += w
	lb.h = math.Max(lb.h, lh)
	lb.used = true
}

// extend grows the boxes of the inline ancestors of owner to cover r.
func (lb *lineBox) extend(owner *html.Node, r rect) {
	rects := lb.lo.res.rects
	for a := owner; a != nil && a != lb.block; a = a.Parent {
		if old, ok := rects[a]; ok {
			rects[a] = old.union(r)
		} else {
			rects[a] = r
		}
	}
}

func (lb *lineBox) inline(el *html.Node, cs *computedStyle) {
	switch {
	case el.DataAtom == atom.Br:
		lb.newline(lineHeight(cs))
		return
	case strings.HasPrefix(cs.display, "inline-") || isReplaced(el):
		lb.inlineBlock(el, cs)
		return
	}
	idx := lb.lo.reserve()
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			lb.text(c, cs)
		case html.ElementNode:
			ccs := lb.lo.style(c, cs)
			if ccs.display == "none" {
				continue
			}
			if isBlockDisplay(ccs.display) {
				lb.newline(0)
				lb.y += lb.lo.block(c, ccs, lb.x0, lb.y, lb.width)
				if r, ok := lb.lo.res.rects[c]; ok {
					lb.extend(el, r)
				}
				continue
			}
			lb.inline(c, ccs)
		}
	}
	if r, ok := lb.lo.res.rects[el]; ok {
		lb.lo.fillBox(idx, el, cs, r, edges{})
	}
}

func isReplaced(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Input, atom.Button, atom.Select, atom.Textarea, atom.Img:
		return true
	}
	return false
}

// inlineBlock places a control, an image or a display:inline-block element
// as one atomic box on the line.
func (lb *lineBox) inlineBlock(el *html.Node, cs *computedStyle) {
	lo := lb.lo
	m := lo.box(cs, "margin", "", lb.width)
	p := lo.box(cs, "padding", "", lb.width)
	b := lo.borders(cs)
	lh := lineHeight(cs)

	cw, ch := lo.d.intrinsicSize(el, cs, lh)
	if w, ok := lo.length(cs, "width", lb.width); ok {
		cw = w
		if cs.get("box-sizing", "") == "border-box" {
			cw = math.Max(0, w-b.l-b.r-p.l-p.r)
		}
	}
	if h, ok := lo.length(cs, "height", lo.vh); ok {
		ch = h
		if cs.get("box-sizing", "") == "border-box" {
			ch = math.Max(0, h-b.t-b.b-p.t-p.b)
		}
	}
	outerW := m.l + b.l + p.l + cw + p.r + b.r + m.r
	lb.reserveWidth(outerW)

	x := lb.x0 + lb.cx + m.l
	y := lb.y + m.t
	if !isReplaced(el) {
		// Generic inline-block: lay its content out as a block of the
		// shrink-to-fit width.
		h := lo.block(el, cs, lb.x0+lb.cx, lb.y, outerW)
		lb.cx += outerW
		lb.h = math.Max(lb.h, h)
		lb.used = true
		if r, ok := lo.res.rects[el]; ok {
			lb.extend(el.Parent, r)
		}
		return
	}

	box := rect{x: x, y: y, w: b.l + p.l + cw + p.r + b.r, h: b.t + p.t + ch + p.b + b.b}
	idx := lo.reserve()
	lo.fillBox(idx, el, cs, box, b)
	lo.res.rects[el] = box
	lo.d.paintControl(lo, el, cs, rect{x: x + b.l + p.l, y: y + b.t + p.t, w: cw, h: ch})

	lb.cx += outerW
	lb.h = math.Max(lb.h, m.t+box.h+m.b)
	lb.used = true
	lb.extend(el.Parent, box)
}

// intrinsicSize is the content size of a replaced or inline-block element.
func (d *document) intrinsicSize(el *html.Node, cs *computedStyle, lh float64) (float64, float64) {
	attrPx := func(key string) (float64, bool) {
		v, ok := getAttr(el, key)
		if !ok {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(v), "px"), 64)
		return f, err == nil
	}
	switch el.DataAtom {
	case atom.Input:
		switch inputType(el) {
		case "checkbox", "radio":
			return 13, 13
		case "submit", "button", "reset":
			return textWidth(buttonLabel(el), cs.fontSize), lh
		case "image":
			w, _ := attrPx("width")
			h, _ := attrPx("height")
			return w, h
		}
		size := 20.0
		if v, ok := attrPx("size"); ok && v > 0 {
			size = v
		}
		return size * cs.fontSize * charAdvance * 0.65, lh
	case atom.Button:
		return textWidth(strings.Join(strings.Fields(textContent(el)), " "), cs.fontSize), lh
	case atom.Select:
		widest := 0.0
		for _, opt := range options(el) {
			widest = math.Max(widest, textWidth(optionLabel(opt), cs.fontSize))
		}
		return widest + 20, lh
	case atom.Textarea:
		cols, rows := 20.0, 2.0
		if v, ok := attrPx("cols"); ok && v > 0 {
			cols = v
		}
		if v, ok := attrPx("rows"); ok && v > 0 {
			rows = v
		}
		return cols * cs.fontSize * charAdvance, rows * lh
	case atom.Img:
		w, _ := attrPx("width")
		h, _ := attrPx("height")
		return w, h
	}
	width := 0.0
	for _, line := range strings.Split(strings.TrimSpace(textContent(el)), "\n") {
		width = math.Max(width, textWidth(strings.Join(strings.Fields(line), " "), cs.fontSize))
	}
	return width, lh
}

// paintControl emits the content of a form control inside its content box.
func (d *document) paintControl(lo *layouter, el *html.Node, cs *computedStyle, content rect) {
	if cs.hidden {
		return
	}
	emit := func(s string, clr colorValue) {
		if s == "" {
			return
		}
		lo.res.ops = append(lo.res.ops, paintOp{kind: opText, node: el, r: content, text: s, size: cs.fontSize, fill: clr})
	}
	switch el.DataAtom {
	case atom.Input:
		switch inputType(el) {
		case "checkbox", "radio":
			op := paintOp{kind: opCheck, node: el, r: content, fill: white, stroke: gray, round: inputType(el) == "radio"}
			if d.isChecked(el) {
				op.fill = checkBlue
			}
			lo.res.ops = append(lo.res.ops, op)
		case "submit", "button", "reset":
			emit(buttonLabel(el), cs.color)
		case "password":
			emit(strings.Repeat("•", utf8.RuneCountInString(d.valueOf(el))), cs.color)
		case "file", "hidden", "image":
		default:
			if v := d.valueOf(el); v != "" {
				emit(v, cs.color)
			} else if ph, ok := getAttr(el, "placeholder"); ok {
				emit(ph, gray)
			}
		}
	case atom.Textarea:
		v := d.valueOf(el)
		if v == "" {
			ph, _ := getAttr(el, "placeholder")
			emit(ph, gray)
			return
		}
		lh := lineHeight(cs)
		for i, line := range strings.Split(v, "\n") {
			r := content
			r.y += float64(i) * lh
			r.h = lh
			if r.y+r.h > content.y+content.h {
				break
			}
			lo.res.ops = append(lo.res.ops, paintOp{kind: opText, node: el, r: r, text: line, size: cs.fontSize, fill: cs.color})
		}
	case atom.Select:
		if opt := d.selectedOption(el); opt != nil {
			emit(optionLabel(opt), cs.color)
		}
	case atom.Button:
		emit(strings.Join(strings.Fields(textContent(el)), " "), cs.color)
	}
}

// --- geometry queries ---

func (d *document) rectOf(n *html.Node) (rect, bool) {
	lr := d.ensureLayout()
	if n == d.root {
		n = d.documentElement()
	}
	r, ok := lr.rects[n]
	return r, ok
}

func (d *document) domRect(x, y, w, h float64) goja.Value {
	obj := d.vm.NewObject()
	set := func(k string, v float64) { _ = obj.Set(k, v) }
	set("x", x)
	set("y", y)
	set("width", w)
	set("height", h)
	set("top", y)
	set("left", x)
	set("right", x+w)
	set("bottom", y+h)
	_ = obj.Set("toJSON", func(goja.FunctionCall) goja.Value {
		out := d.vm.NewObject()
		for _, k := range []string{"x", "y", "width", "height", "top", "right", "bottom", "left"} {
			_ = out.Set(k, obj.Get(k))
		}
		return out
	})
	return obj
}

// scrollHeight reports the scrollable height. The root element reports the
// whole document.
func (d *document) scrollHeight(n *html.Node) int {
	lr := d.ensureLayout()
	if n == d.documentElement() || n == d.root {
		return int(math.Ceil(lr.height))
	}
	r, _ := d.rectOf(n)
	return int(math.Ceil(r.h))
}

func (d *document) scrollWidth(n *html.Node) int {
	lr := d.ensureLayout()
	if n == d.documentElement() || n == d.root {
		return int(math.Ceil(lr.width))
	}
	r, _ := d.rectOf(n)
	return int(math.Ceil(r.w))
}

// scrollBlock reads the block alignment of a scrollIntoView argument.
func scrollBlock(arg goja.Value) string {
	if arg == nil || goja.IsUndefined(arg) || goja.IsNull(arg) {
		return "start"
	}
	if obj, ok := arg.(*goja.Object); ok {
		if v := obj.Get("block"); v != nil && !goja.IsUndefined(v) {
			return v.String()
		}
		return "start"
	}
	if !arg.ToBoolean() {
		return "end"
	}
	return "start"
}

func (d *document) scrollIntoView(n *html.Node, block string) {
	r, ok := d.rectOf(n)
	if !ok {
		return
	}
	vh := float64(d.view.surface.height)
	y := d.scrollY
	switch block {
	case "start":
		y = r.y
	case "end":
		y = r.y + r.h - vh
	case "nearest":
		if r.y < d.scrollY {
			y = r.y
		} else if r.y+r.h > d.scrollY+vh {
			y = r.y + r.h - vh
		}
	default:
		y = r.y + r.h/2 - vh/2
	}
	d.scrollTo(d.scrollX, y)
}

// hitTest returns the topmost element painted at document point (x, y).
func (d *document) hitTest(x, y float64) *html.Node {
	lr := d.ensureLayout()
	for i := len(lr.ops) - 1; i >= 0; i-- {
		op := lr.ops[i]
		if op.node == nil || op.node.Type != html.ElementNode {
			continue
		}
		if cs, ok := lr.styles[op.node]; ok && cs.get("pointer-events", "") == "none" {
			continue
		}
		if op.r.contains(x, y) {
			return op.node
		}
	}
	if body := d.body(); body != nil {
		return body
	}
	return d.documentElement()
}
