package heatmap

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

type textAlign int

const (
	alignLeft textAlign = iota
	alignCenter
	alignRight
)

// drawText writes s with its baseline at y. x is the left edge, center or
// right edge depending on align.
func drawText(img *image.RGBA, s string, x, y int, c color.Color, align textAlign) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
	}
	width := d.MeasureString(s).Round()
	switch align {
	case alignCenter:
		x -= width / 2
	case alignRight:
		x -= width
	}
	d.Dot = fixed.P(x, y)
	d.DrawString(s)
}
