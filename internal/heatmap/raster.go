package heatmap

import (
	"image"
	"image/color"
	"math"
	"sort"
	"strconv"

	"heatflow/models"
)

const (
	axisLabelCount  = 10
	axisLabelMargin = 4
	// WaitingText is drawn when there is nothing to plot.
	WaitingText = "Waiting for data..."
)

var (
	backgroundColor  = color.RGBA{R: 10, G: 10, B: 15, A: 255}
	placeholderColor = color.RGBA{R: 0x55, G: 0x55, B: 0x55, A: 255}
	labelColor       = color.RGBA{R: 0x88, G: 0x88, B: 0x88, A: 255}
)

// Level is a column entry flattened for drawing.
type Level struct {
	Price float64
	Qty   float64
	Side  models.Side
}

// Extent is the vertical span of a level in price units. Top >= Bottom.
type Extent struct {
	Top    float64
	Bottom float64
}

// SortedLevels returns the column's levels ordered by price, highest first.
func SortedLevels(col models.Column) []Level {
	out := make([]Level, 0, len(col.Levels))
	for price, entry := range col.Levels {
		out = append(out, Level{Price: price, Qty: entry.Qty, Side: entry.Side})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price > out[j].Price })
	return out
}

// LevelExtents computes the span of each level from the midpoints to its
// neighbors. levels must be sorted descending. The outermost levels extend
// by half the gap to their only neighbor and a lone level spans ±0.5, so
// adjacent extents always share a boundary.
func LevelExtents(levels []Level) []Extent {
	n := len(levels)
	out := make([]Extent, n)
	if n == 0 {
		return out
	}
	if n == 1 {
		p := levels[0].Price
		out[0] = Extent{Top: p + 0.5, Bottom: p - 0.5}
		return out
	}
	for i := range levels {
		p := levels[i].Price
		var top, bottom float64
		switch i {
		case 0:
			gap := levels[0].Price - levels[1].Price
			top = p + gap*0.5
			bottom = (p + levels[1].Price) / 2
		case n - 1:
			gap := levels[i-1].Price - p
			top = (levels[i-1].Price + p) / 2
			bottom = p - gap*0.5
		default:
			top = (levels[i-1].Price + p) / 2
			bottom = (p + levels[i+1].Price) / 2
		}
		out[i] = Extent{Top: top, Bottom: bottom}
	}
	return out
}

// Render rasterizes the buffer through the viewport into a width x height
// RGBA image. It never fails: degenerate input yields the placeholder frame.
func Render(buf *Buffer, vp *Viewport, width, height int) *image.RGBA {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fill(img, backgroundColor)

	priceMin, priceMax := vp.EffectiveBounds(buf)
	if buf.Len() == 0 || !usableRange(priceMin, priceMax) {
		drawText(img, WaitingText, width/2, height/2, placeholderColor, alignCenter)
		return img
	}

	priceRange := priceMax - priceMin
	h := float64(height)
	priceToY := func(p float64) int {
		y := math.Floor((1 - (p-priceMin)/priceRange) * h)
		// keep the int conversion in range when zoomed far out of the data
		if y < -1 {
			return -1
		}
		if y > h {
			return height
		}
		return int(y)
	}

	colWidth := ColumnWidth(width, buf.Capacity())
	timeShift := int(math.Floor(vp.TimeOffset + 0.5))
	maxQty := buf.MaxQty()
	n := buf.Len()

	for ci, col := range buf.Columns() {
		x0 := width - (n-ci-timeShift)*colWidth
		if x0+colWidth <= 0 || x0 >= width {
			continue
		}

		levels := SortedLevels(col)
		extents := LevelExtents(levels)
		for li, level := range levels {
			c := ColorFor(level.Side, math.Sqrt(level.Qty/maxQty))

			yTop := priceToY(extents[li].Top)
			yBot := priceToY(extents[li].Bottom)
			yStart := max(0, min(yTop, yBot))
			yEnd := min(height-1, max(yTop, yBot))

			xStart := max(0, x0)
			xEnd := min(width, x0+colWidth)
			for y := yStart; y <= yEnd; y++ {
				for px := xStart; px < xEnd; px++ {
					setPixel(img, px, y, c)
				}
			}
		}
	}

	drawAxisLabels(img, priceMin, priceRange)
	return img
}

func drawAxisLabels(img *image.RGBA, priceMin, priceRange float64) {
	width := img.Rect.Dx()
	h := float64(img.Rect.Dy())
	for i := 0; i <= axisLabelCount; i++ {
		frac := float64(i) / axisLabelCount
		price := priceMin + priceRange*frac
		y := int(math.Round(h-frac*h)) + axisLabelMargin
		drawText(img, strconv.FormatFloat(price, 'f', 2, 64), width-axisLabelMargin, y, labelColor, alignRight)
	}
}

func fill(img *image.RGBA, c color.RGBA) {
	pix := img.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i] = c.R
		pix[i+1] = c.G
		pix[i+2] = c.B
		pix[i+3] = c.A
	}
}

func setPixel(img *image.RGBA, x, y int, c color.RGBA) {
	i := img.PixOffset(x, y)
	img.Pix[i] = c.R
	img.Pix[i+1] = c.G
	img.Pix[i+2] = c.B
	img.Pix[i+3] = c.A
}
