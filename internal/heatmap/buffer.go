package heatmap

import (
	"math"

	"heatflow/models"
)

const (
	// DefaultCapacity is the number of columns retained when none is configured.
	DefaultCapacity = 500
	// boundsLookback is how many of the newest columns feed the price range.
	boundsLookback = 30
	boundsPadding  = 0.1
)

// Buffer is the rolling sequence of heatmap columns, oldest first.
//
// The price range follows only the newest boundsLookback columns while the
// quantity scale spans every retained column. Keep the two windows distinct.
// Buffer is not safe for concurrent use; it is owned by the engine loop.
type Buffer struct {
	columns  []models.Column
	capacity int

	dataPriceMin float64
	dataPriceMax float64
	maxQty       float64
}

// NewBuffer creates an empty buffer holding at most capacity columns.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		columns:      make([]models.Column, 0, capacity),
		capacity:     capacity,
		dataPriceMin: math.Inf(1),
		dataPriceMax: math.Inf(-1),
		maxQty:       1,
	}
}

// Push appends col, evicting the oldest column when full, and recomputes the
// data bounds and quantity scale.
func (b *Buffer) Push(col models.Column) {
	if len(b.columns) == b.capacity {
		// shift in place; keeps the backing array bounded at capacity
		copy(b.columns, b.columns[1:])
		b.columns[len(b.columns)-1] = col
	} else {
		b.columns = append(b.columns, col)
	}
	b.recompute()
}

func (b *Buffer) recompute() {
	pMin := math.Inf(1)
	pMax := math.Inf(-1)

	lookback := boundsLookback
	if len(b.columns) < lookback {
		lookback = len(b.columns)
	}
	for _, c := range b.columns[len(b.columns)-lookback:] {
		for price := range c.Levels {
			if price < pMin {
				pMin = price
			}
			if price > pMax {
				pMax = price
			}
		}
	}

	mQty := 1.0
	for _, c := range b.columns {
		for _, entry := range c.Levels {
			if entry.Qty > mQty {
				mQty = entry.Qty
			}
		}
	}

	if pMin > pMax {
		// window holds no levels
		b.dataPriceMin = math.Inf(1)
		b.dataPriceMax = math.Inf(-1)
	} else {
		padding := (pMax - pMin) * boundsPadding
		b.dataPriceMin = pMin - padding
		b.dataPriceMax = pMax + padding
	}
	b.maxQty = mQty
}

// Reset drops every column. Capacity is kept.
func (b *Buffer) Reset() {
	b.columns = b.columns[:0]
	b.dataPriceMin = math.Inf(1)
	b.dataPriceMax = math.Inf(-1)
	b.maxQty = 1
}

func (b *Buffer) Len() int      { return len(b.columns) }
func (b *Buffer) Capacity() int { return b.capacity }

// At returns the column at index i, 0 being the oldest.
func (b *Buffer) At(i int) models.Column { return b.columns[i] }

// Columns exposes the retained columns oldest first. Callers must not modify
// the returned slice.
func (b *Buffer) Columns() []models.Column { return b.columns }

// Bounds returns the padded price range of the recent columns. An empty
// window yields (+Inf, -Inf).
func (b *Buffer) Bounds() (float64, float64) { return b.dataPriceMin, b.dataPriceMax }

// MaxQty is the largest quantity across all retained columns, never below 1.
func (b *Buffer) MaxQty() float64 { return b.maxQty }
