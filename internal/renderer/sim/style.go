package sim

import (
	"fmt"
	"image/color"
	"sort"
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/dop251/goja"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const baseFontSize = 16.0

// styleOrigin orders declarations in the cascade.
type styleOrigin int

const (
	originUserAgent styleOrigin = iota
	originAuthor
	originInline
)

type declaration struct {
	prop      string
	value     string
	important bool
}

type cssRule struct {
	selectors cascadia.SelectorGroup
	decls     []declaration
}

type styleSheet struct {
	rules []cssRule
}

// cascaded is one matched declaration with its cascade position.
type cascaded struct {
	decl        declaration
	origin      styleOrigin
	specificity cascadia.Specificity
	order       int
}

// computedStyle is the resolved style of one element.
type computedStyle struct {
	props    map[string]string
	display  string
	color    color.NRGBA
	fontSize float64
	hidden   bool
	pre      bool
}

func (cs *computedStyle) get(prop, fallback string) string {
	if v, ok := cs.props[prop]; ok && v != "" {
		return v
	}
	return fallback
}

const userAgentCSS = `
html, body, div, p, h1, h2, h3, h4, h5, h6, ul, ol, li, form, header, footer,
section, article, nav, main, aside, pre, blockquote, fieldset, table, tbody,
thead, tfoot, tr, dl, dt, dd, figure, figcaption, hr, address, details,
summary, legend, center { display: block }
head, script, style, title, meta, link, template, noscript, base, datalist { display: none }
[hidden], input[type=hidden] { display: none }
input, button, select, textarea, img, td, th { display: inline-block }
li { display: list-item }
body { margin: 8px }
h1 { font-size: 2em; margin: 0.67em 0; font-weight: bold }
h2 { font-size: 1.5em; margin: 0.83em 0; font-weight: bold }
h3 { font-size: 1.17em; margin: 1em 0; font-weight: bold }
h4 { margin: 1.33em 0; font-weight: bold }
h5 { font-size: 0.83em; margin: 1.67em 0; font-weight: bold }
h6 { font-size: 0.67em; margin: 2.33em 0; font-weight: bold }
p, ul, ol, blockquote, dl, figure { margin: 1em 0 }
pre { margin: 1em 0; white-space: pre }
ul, ol { padding-left: 40px }
b, strong, th { font-weight: bold }
a { color: #0000ee }
hr { border: 1px inset #eeeeee; margin: 0.5em 0 }
button, input, select, textarea { font-size: 13.333px }
button, input[type=submit], input[type=button], input[type=reset] {
  background-color: #efefef; border: 2px outset #767676; padding: 1px 6px
}
input, textarea, select { background-color: #ffffff; border: 2px inset #767676; padding: 1px 2px }
td, th { padding: 1px }
`

var userAgentSheet = parseStyleSheet(userAgentCSS)

// parseStyleSheet reads rule sets. At-rules are skipped with their blocks and
// rules whose selectors cascadia cannot compile are dropped.
func parseStyleSheet(src string) *styleSheet {
	sheet := &styleSheet{}
	p := &cssParser{input: src}
	for {
		p.skipSpaceAndComments()
		if p.eof() {
			break
		}
		if p.current() == '@' {
			p.skipAtRule()
			continue
		}
		start := p.pos
		p.skipTo('{')
		selText := strings.TrimSpace(p.input[start:p.pos])
		if p.eof() {
			break
		}
		p.pos++
		start = p.pos
		p.skipBlock('{', '}')
		end := p.pos - 1
		if end < start {
			end = start
		}
		body := p.input[start:end]
		group, err := cascadia.ParseGroup(selText)
		if err != nil || len(group) == 0 {
			continue
		}
		decls := parseDeclarations(body)
		if len(decls) > 0 {
			sheet.rules = append(sheet.rules, cssRule{selectors: group, decls: decls})
		}
	}
	return sheet
}

type cssParser struct {
	input string
	pos   int
}

func (p *cssParser) eof() bool     { return p.pos >= len(p.input) }
func (p *cssParser) current() byte { return p.input[p.pos] }

func (p *cssParser) skipSpaceAndComments() {
	for !p.eof() {
		switch {
		case isSpace(p.current()):
			p.pos++
		case strings.HasPrefix(p.input[p.pos:], "/*"):
			end := strings.Index(p.input[p.pos+2:], "*/")
			if end < 0 {
				p.pos = len(p.input)
			} else {
				p.pos += end + 4
			}
		default:
			return
		}
	}
}

func (p *cssParser) skipTo(target byte) {
	for !p.eof() && p.current() != target {
		if q := p.current(); q == '"' || q == '\'' {
			p.skipQuoted(q)
			continue
		}
		p.pos++
	}
}

// skipBlock consumes up to and including the close matching an already
// consumed open.
func (p *cssParser) skipBlock(open, close byte) {
	depth := 1
	for !p.eof() {
		c := p.current()
		if c == '"' || c == '\'' {
			p.skipQuoted(c)
			continue
		}
		p.pos++
		if c == open {
			depth++
		} else if c == close {
			depth--
			if depth == 0 {
				return
			}
		}
	}
}

func (p *cssParser) skipQuoted(quote byte) {
	p.pos++
	for !p.eof() {
		c := p.current()
		p.pos++
		if c == '\\' {
			p.pos++
		} else if c == quote {
			return
		}
	}
}

func (p *cssParser) skipAtRule() {
	for !p.eof() {
		switch p.current() {
		case '{':
			p.pos++
			p.skipBlock('{', '}')
			return
		case ';':
			p.pos++
			return
		}
		p.pos++
	}
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' }

// parseDeclarations splits "a: b; c: d" respecting parentheses and quotes.
func parseDeclarations(body string) []declaration {
	var decls []declaration
	for _, part := range splitTopLevel(body, ';') {
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		prop := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.TrimSpace(kv[1])
		important := false
		if strings.HasSuffix(strings.ToLower(val), "!important") {
			important = true
			val = strings.TrimSpace(val[:len(val)-len("!important")])
		}
		if prop == "" || val == "" {
			continue
		}
		decls = append(decls, declaration{prop: prop, value: val, important: important})
	}
	return decls
}

func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// collectSheets gathers <style> elements and fetched stylesheet links in
// document order.
func (d *document) collectSheets() []*styleSheet {
	var sheets []*styleSheet
	walkElements(d.root, func(n *html.Node) {
		switch n.DataAtom {
		case atom.Style:
			sheets = append(sheets, parseStyleSheet(textContent(n)))
		case atom.Link:
			if body, ok := d.external[n]; ok {
				sheets = append(sheets, parseStyleSheet(body))
			}
		}
	})
	return sheets
}

// computeStyle cascades every matching declaration for n, following the
// user-agent, author, inline order with !important inverting origins.
func computeStyle(n *html.Node, parent *computedStyle, sheets []*styleSheet) *computedStyle {
	var decls []cascaded
	order := 0
	apply := func(sheet *styleSheet, origin styleOrigin) {
		for _, rule := range sheet.rules {
			var best cascadia.Specificity
			matched := false
			for _, sel := range rule.selectors {
				if sel.Match(n) {
					if s := sel.Specificity(); !matched || best.Less(s) {
						best = s
					}
					matched = true
				}
			}
			if !matched {
				continue
			}
			for _, decl := range rule.decls {
				decls = append(decls, cascaded{decl: decl, origin: origin, specificity: best, order: order})
				order++
			}
		}
	}
	apply(userAgentSheet, originUserAgent)
	for _, sheet := range sheets {
		apply(sheet, originAuthor)
	}
	if inline, ok := getAttr(n, "style"); ok {
		for _, decl := range parseDeclarations(inline) {
			decls = append(decls, cascaded{decl: decl, origin: originInline, specificity: cascadia.Specificity{1, 0, 0}, order: order})
			order++
		}
	}

	sort.SliceStable(decls, func(i, j int) bool {
		a, b := decls[i], decls[j]
		if pa, pb := cascadePriority(a), cascadePriority(b); pa != pb {
			return pa < pb
		}
		if a.specificity != b.specificity {
			return a.specificity.Less(b.specificity)
		}
		return a.order < b.order
	})

	props := make(map[string]string)
	for _, c := range decls {
		expandInto(props, c.decl.prop, c.decl.value)
	}
	return resolveStyle(props, parent)
}

func cascadePriority(c cascaded) int {
	switch c.origin {
	case originUserAgent:
		if c.decl.important {
			return 5
		}
		return 1
	case originAuthor:
		if c.decl.important {
			return 4
		}
		return 2
	default:
		if c.decl.important {
			return 4
		}
		return 3
	}
}

// expandInto stores one declaration, expanding the shorthands layout uses.
func expandInto(props map[string]string, prop, value string) {
	switch prop {
	case "margin", "padding":
		expandBox(props, prop, "", value)
	case "border-width":
		expandBox(props, "border", "-width", value)
	case "border", "border-top", "border-right", "border-bottom", "border-left":
		width, clr := "", ""
		for _, tok := range strings.Fields(value) {
			switch {
			case tok == "none" || tok == "hidden":
				width = "0"
			case isLength(tok) || tok == "thin" || tok == "medium" || tok == "thick":
				width = tok
			default:
				if _, ok := parseColor(tok); ok {
					clr = tok
				}
			}
		}
		if width == "" {
			width = "medium"
		}
		sides := []string{"top", "right", "bottom", "left"}
		if prop != "border" {
			sides = []string{strings.TrimPrefix(prop, "border-")}
		}
		for _, side := range sides {
			props["border-"+side+"-width"] = width
		}
		if clr != "" {
			props["border-color"] = clr
		}
	case "background":
		if strings.Contains(value, "gradient(") {
			props["background-image"] = value
			return
		}
		for _, tok := range splitColorTokens(value) {
			if _, ok := parseColor(tok); ok {
				props["background-color"] = tok
				return
			}
		}
	default:
		props[prop] = value
	}
}

func expandBox(props map[string]string, prefix, suffix, value string) {
	parts := strings.Fields(value)
	var t, r, b, l string
	switch len(parts) {
	case 1:
		t, r, b, l = parts[0], parts[0], parts[0], parts[0]
	case 2:
		t, r, b, l = parts[0], parts[1], parts[0], parts[1]
	case 3:
		t, r, b, l = parts[0], parts[1], parts[2], parts[1]
	case 4:
		t, r, b, l = parts[0], parts[1], parts[2], parts[3]
	default:
		return
	}
	props[prefix+"-top"+suffix] = t
	props[prefix+"-right"+suffix] = r
	props[prefix+"-bottom"+suffix] = b
	props[prefix+"-left"+suffix] = l
}

// splitColorTokens splits on spaces outside parentheses so rgb(1, 2, 3)
// stays whole.
func splitColorTokens(value string) []string {
	var out []string
	for _, tok := range splitTopLevel(value, ' ') {
		if tok = strings.TrimSpace(tok); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

func resolveStyle(props map[string]string, parent *computedStyle) *computedStyle {
	cs := &computedStyle{
		props:    props,
		color:    color.NRGBA{A: 255},
		fontSize: baseFontSize,
		display:  "inline",
	}
	parentSize := baseFontSize
	if parent != nil {
		cs.color = parent.color
		cs.fontSize = parent.fontSize
		cs.hidden = parent.hidden
		cs.pre = parent.pre
		parentSize = parent.fontSize
	}
	if v, ok := props["display"]; ok {
		cs.display = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := props["color"]; ok {
		if c, ok := parseColor(v); ok {
			cs.color = c
		}
	}
	if v, ok := props["font-size"]; ok {
		cs.fontSize = fontSizeOf(v, parentSize)
	}
	if v, ok := props["visibility"]; ok {
		cs.hidden = v == "hidden" || v == "collapse"
	}
	if v, ok := props["white-space"]; ok {
		cs.pre = strings.HasPrefix(v, "pre")
	}
	return cs
}

var fontKeywords = map[string]float64{
	"xx-small": 9, "x-small": 10, "small": 13, "medium": 16,
	"large": 18, "x-large": 24, "xx-large": 32,
}

func fontSizeOf(v string, parentSize float64) float64 {
	v = strings.TrimSpace(strings.ToLower(v))
	if size, ok := fontKeywords[v]; ok {
		return size
	}
	switch v {
	case "smaller":
		return parentSize / 1.2
	case "larger":
		return parentSize * 1.2
	}
	if size := parseLength(v, parentSize, parentSize, 0, 0); size > 0 {
		return size
	}
	return parentSize
}

func isLength(tok string) bool {
	if tok == "0" {
		return true
	}
	for _, unit := range []string{"px", "em", "rem", "%", "vw", "vh", "pt"} {
		if strings.HasSuffix(tok, unit) {
			_, err := strconv.ParseFloat(strings.TrimSuffix(tok, unit), 64)
			return err == nil
		}
	}
	return false
}

// parseLength resolves a CSS length to pixels. Percentages resolve against
// ref; unitless numbers are pixels.
func parseLength(value string, fontSize, ref, vw, vh float64) float64 {
	value = strings.TrimSpace(strings.ToLower(value))
	switch value {
	case "", "auto", "normal", "none":
		return 0
	case "thin":
		return 1
	case "medium":
		return 3
	case "thick":
		return 5
	}
	num := func(suffix string) (float64, bool) {
		if !strings.HasSuffix(value, suffix) {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(value, suffix)), 64)
		return f, err == nil
	}
	if f, ok := num("%"); ok {
		return ref * f / 100
	}
	if f, ok := num("px"); ok {
		return f
	}
	if f, ok := num("rem"); ok {
		return f * baseFontSize
	}
	if f, ok := num("em"); ok {
		return f * fontSize
	}
	if f, ok := num("pt"); ok {
		return f * 4 / 3
	}
	if f, ok := num("vw"); ok {
		return vw * f / 100
	}
	if f, ok := num("vh"); ok {
		return vh * f / 100
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return 0
}

// --- colors ---

var cssColors = map[string]color.NRGBA{
	"black":   {0, 0, 0, 255},
	"white":   {255, 255, 255, 255},
	"red":     {255, 0, 0, 255},
	"green":   {0, 128, 0, 255},
	"lime":    {0, 255, 0, 255},
	"blue":    {0, 0, 255, 255},
	"yellow":  {255, 255, 0, 255},
	"cyan":    {0, 255, 255, 255},
	"aqua":    {0, 255, 255, 255},
	"magenta": {255, 0, 255, 255},
	"fuchsia": {255, 0, 255, 255},
	"gray":    {128, 128, 128, 255},
	"grey":    {128, 128, 128, 255},
	"silver":  {192, 192, 192, 255},
	"maroon":  {128, 0, 0, 255},
	"olive":   {128, 128, 0, 255},
	"navy":    {0, 0, 128, 255},
	"purple":  {128, 0, 128, 255},
	"teal":    {0, 128, 128, 255},
	"orange":  {255, 165, 0, 255},
	"pink":    {255, 192, 203, 255},
	"brown":   {165, 42, 42, 255},
	"gold":    {255, 215, 0, 255},
	"indigo":  {75, 0, 130, 255},
	"violet":  {238, 130, 238, 255},
	"coral":   {255, 127, 80, 255},
	"salmon":  {250, 128, 114, 255},
	"khaki":   {240, 230, 140, 255},
	"crimson": {220, 20, 60, 255},
	"tomato":  {255, 99, 71, 255},

	"lightgray":   {211, 211, 211, 255},
	"lightgrey":   {211, 211, 211, 255},
	"darkgray":    {169, 169, 169, 255},
	"darkgrey":    {169, 169, 169, 255},
	"lightblue":   {173, 216, 230, 255},
	"darkblue":    {0, 0, 139, 255},
	"lightgreen":  {144, 238, 144, 255},
	"darkgreen":   {0, 100, 0, 255},
	"darkred":     {139, 0, 0, 255},
	"whitesmoke":  {245, 245, 245, 255},
	"transparent": {0, 0, 0, 0},
}

// parseColor understands named colors, #rgb[a], #rrggbb[aa] and rgb[a]().
func parseColor(value string) (color.NRGBA, bool) {
	value = strings.TrimSpace(strings.ToLower(value))
	if c, ok := cssColors[value]; ok {
		return c, true
	}
	if strings.HasPrefix(value, "#") {
		return parseHexColor(value)
	}
	if strings.HasPrefix(value, "rgb") {
		return parseRGBColor(value)
	}
	return color.NRGBA{A: 255}, false
}

func parseHexColor(hex string) (color.NRGBA, bool) {
	hex = strings.TrimPrefix(hex, "#")
	for i := 0; i < len(hex); i++ {
		if !isHex(hex[i]) {
			return color.NRGBA{}, false
		}
	}
	c := color.NRGBA{A: 255}
	switch len(hex) {
	case 3, 4:
		c.R = hexDigit(hex[0]) * 17
		c.G = hexDigit(hex[1]) * 17
		c.B = hexDigit(hex[2]) * 17
		if len(hex) == 4 {
			c.A = hexDigit(hex[3]) * 17
		}
	case 6, 8:
		c.R = hexDigit(hex[0])<<4 | hexDigit(hex[1])
		c.G = hexDigit(hex[2])<<4 | hexDigit(hex[3])
		c.B = hexDigit(hex[4])<<4 | hexDigit(hex[5])
		if len(hex) == 8 {
			c.A = hexDigit(hex[6])<<4 | hexDigit(hex[7])
		}
	default:
		return color.NRGBA{}, false
	}
	return c, true
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func hexDigit(c byte) uint8 {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

func parseRGBColor(value string) (color.NRGBA, bool) {
	open, end := strings.IndexByte(value, '('), strings.LastIndexByte(value, ')')
	if open < 0 || end < open {
		return color.NRGBA{}, false
	}
	parts := strings.FieldsFunc(value[open+1:end], func(r rune) bool {
		return r == ',' || r == ' ' || r == '/'
	})
	if len(parts) < 3 || len(parts) > 4 {
		return color.NRGBA{}, false
	}
	c := color.NRGBA{
		R: colorComponent(parts[0], false),
		G: colorComponent(parts[1], false),
		B: colorComponent(parts[2], false),
		A: 255,
	}
	if len(parts) == 4 {
		c.A = colorComponent(parts[3], true)
	}
	return c, true
}

func colorComponent(value string, isAlpha bool) uint8 {
	value = strings.TrimSpace(value)
	if strings.HasSuffix(value, "%") {
		percent, err := strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64)
		if err != nil {
			return 0
		}
		return uint8(clampFloat(percent/100*255+0.5, 0, 255))
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		if isAlpha {
			return 255
		}
		return 0
	}
	if isAlpha {
		return uint8(clampFloat(f*255+0.5, 0, 255))
	}
	return uint8(clampFloat(f+0.5, 0, 255))
}

func cssColorString(c color.NRGBA) string {
	if c.A == 255 {
		return fmt.Sprintf("rgb(%d, %d, %d)", c.R, c.G, c.B)
	}
	return fmt.Sprintf("rgba(%d, %d, %d, %g)", c.R, c.G, c.B, float64(c.A)/255)
}

// --- gradients ---

type gradient struct {
	horizontal bool
	stops      []color.NRGBA
}

// parseGradient reads linear-gradient([direction,] color, color, ...).
// Only vertical and horizontal directions are distinguished.
func parseGradient(value string) *gradient {
	i := strings.Index(value, "linear-gradient(")
	if i < 0 {
		return nil
	}
	inner := value[i+len("linear-gradient("):]
	if end := strings.LastIndexByte(inner, ')'); end >= 0 {
		inner = inner[:end]
	}
	g := &gradient{}
	for idx, arg := range splitTopLevel(inner, ',') {
		arg = strings.TrimSpace(arg)
		if idx == 0 && (strings.HasPrefix(arg, "to ") || strings.HasSuffix(arg, "deg")) {
			switch arg {
			case "to right", "to left", "90deg", "270deg":
				g.horizontal = true
			}
			continue
		}
		tokens := splitColorTokens(arg)
		if len(tokens) == 0 {
			continue
		}
		if c, ok := parseColor(tokens[0]); ok {
			g.stops = append(g.stops, c)
		}
	}
	if len(g.stops) < 2 {
		return nil
	}
	return g
}

// at interpolates the gradient at t in [0, 1].
func (g *gradient) at(t float64) color.NRGBA {
	t = clampFloat(t, 0, 1)
	segments := float64(len(g.stops) - 1)
	pos := t * segments
	i := int(pos)
	if i >= len(g.stops)-1 {
		return g.stops[len(g.stops)-1]
	}
	f := pos - float64(i)
	a, b := g.stops[i], g.stops[i+1]
	lerp := func(x, y uint8) uint8 { return uint8(float64(x) + (float64(y)-float64(x))*f + 0.5) }
	return color.NRGBA{R: lerp(a.R, b.R), G: lerp(a.G, b.G), B: lerp(a.B, b.B), A: lerp(a.A, b.A)}
}

// --- script-facing style objects ---

// inlineStyle exposes an element's style attribute as CSSStyleDeclaration.
type inlineStyle struct {
	d *document
	n *html.Node
}

func (d *document) styleObject(n *html.Node) goja.Value {
	return d.vm.NewDynamicObject(&inlineStyle{d: d, n: n})
}

func (s *inlineStyle) decls() []declaration {
	v, _ := getAttr(s.n, "style")
	return parseDeclarations(v)
}

func (s *inlineStyle) lookup(prop string) string {
	for _, decl := range s.decls() {
		if decl.prop == prop {
			return decl.value
		}
	}
	return ""
}

func (s *inlineStyle) store(prop, value string) {
	var parts []string
	found := false
	for _, decl := range s.decls() {
		if decl.prop == prop {
			found = true
			if value == "" {
				continue
			}
			decl.value = value
		}
		parts = append(parts, decl.prop+": "+decl.value+";")
	}
	if !found && value != "" {
		parts = append(parts, prop+": "+value+";")
	}
	if len(parts) == 0 {
		removeAttr(s.n, "style")
	} else {
		setAttr(s.n, "style", strings.Join(parts, " "))
	}
	s.d.invalidate()
}

func cssProperty(key string) string {
	if key == "cssFloat" {
		return "float"
	}
	if strings.HasPrefix(key, "--") {
		return key
	}
	return kebab(key)
}

func (s *inlineStyle) Get(key string) goja.Value {
	vm := s.d.vm
	switch key {
	case "cssText":
		v, _ := getAttr(s.n, "style")
		return vm.ToValue(v)
	case "length":
		return vm.ToValue(len(s.decls()))
	case "getPropertyValue":
		return vm.ToValue(func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(s.lookup(strings.ToLower(call.Argument(0).String())))
		})
	case "setProperty":
		return vm.ToValue(func(call goja.FunctionCall) goja.Value {
			s.store(strings.ToLower(call.Argument(0).String()), messageArg(call.Argument(1)))
			return goja.Undefined()
		})
	case "removeProperty":
		return vm.ToValue(func(call goja.FunctionCall) goja.Value {
			prop := strings.ToLower(call.Argument(0).String())
			old := s.lookup(prop)
			s.store(prop, "")
			return vm.ToValue(old)
		})
	case "item":
		return vm.ToValue(func(call goja.FunctionCall) goja.Value {
			decls := s.decls()
			i := int(call.Argument(0).ToInteger())
			if i < 0 || i >= len(decls) {
				return vm.ToValue("")
			}
			return vm.ToValue(decls[i].prop)
		})
	}
	return vm.ToValue(s.lookup(cssProperty(key)))
}

func (s *inlineStyle) Set(key string, val goja.Value) bool {
	if key == "cssText" {
		setAttr(s.n, "style", val.String())
		s.d.invalidate()
		return true
	}
	v := ""
	if !goja.IsNull(val) && !goja.IsUndefined(val) {
		v = val.String()
	}
	s.store(cssProperty(key), v)
	return true
}

func (s *inlineStyle) Has(key string) bool { return s.lookup(cssProperty(key)) != "" }

func (s *inlineStyle) Delete(key string) bool {
	s.store(cssProperty(key), "")
	return true
}

func (s *inlineStyle) Keys() []string {
	decls := s.decls()
	keys := make([]string, len(decls))
	for i, decl := range decls {
		keys[i] = camel(decl.prop)
	}
	return keys
}

// computedStyleObject is the read-only result of getComputedStyle.
func (d *document) computedStyleObject(n *html.Node) goja.Value {
	lr := d.ensureLayout()
	cs, ok := lr.styles[n]
	if !ok {
		cs = computeStyle(n, nil, d.collectSheets())
	}
	r := lr.rects[n]
	values := map[string]string{
		"display":          cs.display,
		"visibility":       "visible",
		"color":            cssColorString(cs.color),
		"background-color": "rgba(0, 0, 0, 0)",
		"background-image": cs.get("background-image", "none"),
		"font-size":        fmt.Sprintf("%gpx", cs.fontSize),
		"font-weight":      cs.get("font-weight", "400"),
		"position":         cs.get("position", "static"),
		"opacity":          cs.get("opacity", "1"),
		"white-space":      cs.get("white-space", "normal"),
		"width":            fmt.Sprintf("%gpx", r.w),
		"height":           fmt.Sprintf("%gpx", r.h),
	}
	if cs.hidden {
		values["visibility"] = "hidden"
	}
	if bg, ok := parseColor(cs.get("background-color", "transparent")); ok {
		values["background-color"] = cssColorString(bg)
		if bg.A == 0 {
			values["background-color"] = "rgba(0, 0, 0, 0)"
		}
	}
	for prop, v := range cs.props {
		if _, set := values[prop]; !set {
			values[prop] = v
		}
	}
	obj := d.vm.NewObject()
	for prop, v := range values {
		_ = obj.Set(prop, v)
		_ = obj.Set(camel(prop), v)
	}
	_ = obj.Set("getPropertyValue", func(call goja.FunctionCall) goja.Value {
		return d.vm.ToValue(values[strings.ToLower(call.Argument(0).String())])
	})
	return obj
}
