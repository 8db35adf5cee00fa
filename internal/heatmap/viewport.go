package heatmap

import "math"

const (
	zoomOutFactor = 1.1
	zoomInFactor  = 0.9
)

// Viewport is the user's pan/zoom state. It lives independently of the
// Buffer and survives buffer resets.
type Viewport struct {
	PriceMin   float64 `json:"price_min"`
	PriceMax   float64 `json:"price_max"`
	TimeOffset float64 `json:"time_offset"`
	AutoFollow bool    `json:"auto_follow"`
}

// PanAnchor is the viewport state captured when a drag starts. Every move of
// the same drag is applied relative to it.
type PanAnchor struct {
	TimeOffset float64
	PriceMin   float64
	PriceMax   float64
}

// NewViewport returns a viewport that follows the data.
func NewViewport() *Viewport {
	return &Viewport{AutoFollow: true}
}

// EffectiveBounds resolves the price range used for drawing.
func (v *Viewport) EffectiveBounds(buf *Buffer) (float64, float64) {
	if v.AutoFollow {
		return buf.Bounds()
	}
	return v.PriceMin, v.PriceMax
}

func usableRange(lo, hi float64) bool {
	if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return false
	}
	return hi > lo
}

// storableRange reports whether lo and hi can be kept as explicit bounds:
// a usable range whose width is itself finite.
func storableRange(lo, hi float64) bool {
	return usableRange(lo, hi) && !math.IsInf(hi-lo, 0)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Zoom scales the visible price range around the price under the cursor.
// mouseFractionY is 0 at the top of the canvas and 1 at the bottom. A
// positive deltaSign zooms out. Zoom does nothing while the effective range
// is unusable (for example an empty buffer in auto-follow mode) or when the
// result would overflow or collapse.
func (v *Viewport) Zoom(buf *Buffer, mouseFractionY, deltaSign float64) {
	curMin, curMax := v.EffectiveBounds(buf)
	if !usableRange(curMin, curMax) {
		return
	}
	f := clampUnit(mouseFractionY)
	rng := curMax - curMin

	priceAtMouse := curMax - f*rng

	factor := zoomInFactor
	if deltaSign > 0 {
		factor = zoomOutFactor
	}
	newRange := rng * factor

	newMax := priceAtMouse + f*newRange
	newMin := priceAtMouse - (1-f)*newRange
	if !storableRange(newMin, newMax) {
		return
	}
	v.PriceMax, v.PriceMin = newMax, newMin
	v.AutoFollow = false
}

// BeginPan captures the state a drag is measured against.
func (v *Viewport) BeginPan(buf *Buffer) PanAnchor {
	lo, hi := v.EffectiveBounds(buf)
	return PanAnchor{TimeOffset: v.TimeOffset, PriceMin: lo, PriceMax: hi}
}

// Pan applies a drag of (dx, dy) pixels measured from the anchor's start
// position. The time axis moves by whole or fractional columns; the price
// range moves by the same fraction of its height as the drag. Pan adopts the
// anchor's bounds and leaves auto-follow; only an anchor without finite
// bounds (no data yet) keeps following. A shift that would overflow keeps the
// anchor's bounds.
func (v *Viewport) Pan(anchor PanAnchor, dx, dy float64, colWidthPx, heightPx int) {
	if colWidthPx < 1 {
		colWidthPx = 1
	}
	if offset := anchor.TimeOffset + dx/float64(colWidthPx); isFinite(offset) {
		v.TimeOffset = offset
	}

	lo, hi := anchor.PriceMin, anchor.PriceMax
	if !isFinite(lo) || !isFinite(hi) {
		return
	}
	if heightPx >= 1 && usableRange(lo, hi) {
		delta := dy / float64(heightPx) * (hi - lo)
		if storableRange(lo+delta, hi+delta) {
			lo, hi = lo+delta, hi+delta
		}
	}
	v.PriceMin, v.PriceMax = lo, hi
	v.AutoFollow = false
}

// Reset returns to following the data at the newest column.
func (v *Viewport) Reset() {
	v.AutoFollow = true
	v.TimeOffset = 0
}

// ColumnWidth is the pixel width of one column for a canvas of width pixels.
func ColumnWidth(width, capacity int) int {
	if capacity < 1 {
		capacity = 1
	}
	w := width / capacity
	if w < 1 {
		return 1
	}
	return w
}
