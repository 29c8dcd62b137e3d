package sim

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

type colorValue = color.NRGBA

var (
	white     = colorValue{R: 255, G: 255, B: 255, A: 255}
	black     = colorValue{A: 255}
	gray      = colorValue{R: 118, G: 118, B: 118, A: 255}
	checkBlue = colorValue{R: 0, G: 117, B: 255, A: 255}
)

// glyphFace is the one bitmap face every font size is drawn with.
var glyphFace = basicfont.Face7x13

// paint rasterizes the visible part of the document into img.
func (d *document) paint(img *image.RGBA) {
	lr := d.ensureLayout()
	draw.Draw(img, img.Bounds(), image.NewUniform(lr.canvas), image.Point{}, draw.Src)
	view := img.Bounds()
	for _, op := range lr.ops {
		r := toPixels(op.r, d.scrollX, d.scrollY)
		if !r.Overlaps(view) {
			continue
		}
		switch op.kind {
		case opBox:
			paintBox(img, r, op)
		case opText:
			paintText(img, r, op)
		case opCheck:
			fillRect(img, r, op.fill)
			strokeRect(img, r, [4]int{1, 1, 1, 1}, op.stroke)
		}
	}
}

func toPixels(r rect, scrollX, scrollY float64) image.Rectangle {
	x0 := int(math.Round(r.x - scrollX))
	y0 := int(math.Round(r.y - scrollY))
	return image.Rect(x0, y0, x0+int(math.Round(r.w)), y0+int(math.Round(r.h)))
}

func paintBox(img *image.RGBA, r image.Rectangle, op paintOp) {
	switch {
	case op.grad != nil:
		paintGradient(img, r, op.grad)
	case op.fill.A > 0:
		fillRect(img, r, op.fill)
	}
	widths := [4]int{}
	stroked := false
	for i, w := range op.border {
		widths[i] = int(math.Round(w))
		stroked = stroked || widths[i] > 0
	}
	if stroked {
		strokeRect(img, r, widths, op.stroke)
	}
}

func fillRect(img *image.RGBA, r image.Rectangle, c colorValue) {
	if c.A == 0 {
		return
	}
	op := draw.Over
	if c.A == 255 {
		op = draw.Src
	}
	draw.Draw(img, r.Intersect(img.Bounds()), image.NewUniform(c), image.Point{}, op)
}

// strokeRect draws borders inside r with per-side widths top, right, bottom,
// left.
func strokeRect(img *image.RGBA, r image.Rectangle, w [4]int, c colorValue) {
	fillRect(img, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+w[0]), c)
	fillRect(img, image.Rect(r.Max.X-w[1], r.Min.Y, r.Max.X, r.Max.Y), c)
	fillRect(img, image.Rect(r.Min.X, r.Max.Y-w[2], r.Max.X, r.Max.Y), c)
	fillRect(img, image.Rect(r.Min.X, r.Min.Y, r.Min.X+w[3], r.Max.Y), c)
}

// paintGradient fills r row by row (or column by column) so that only the
// visible slice is interpolated.
func paintGradient(img *image.RGBA, r image.Rectangle, g *gradient) {
	clip := r.Intersect(img.Bounds())
	if clip.Empty() {
		return
	}
	if g.horizontal {
		span := math.Max(1, float64(r.Dx()-1))
		for x := clip.Min.X; x < clip.Max.X; x++ {
			c := g.at(float64(x-r.Min.X) / span)
			fillRect(img, image.Rect(x, clip.Min.Y, x+1, clip.Max.Y), c)
		}
		return
	}
	span := math.Max(1, float64(r.Dy()-1))
	for y := clip.Min.Y; y < clip.Max.Y; y++ {
		c := g.at(float64(y-r.Min.Y) / span)
		fillRect(img, image.Rect(clip.Min.X, y, clip.Max.X, y+1), c)
	}
}

func paintText(img *image.RGBA, r image.Rectangle, op paintOp) {
	metrics := glyphFace.Metrics()
	glyphH := (metrics.Ascent + metrics.Descent).Ceil()
	baseline := r.Min.Y + (r.Dy()-glyphH)/2 + metrics.Ascent.Ceil()
	dr := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(op.fill),
		Face: glyphFace,
		Dot:  fixed.P(r.Min.X, baseline),
	}
	dr.DrawString(op.text)
}
