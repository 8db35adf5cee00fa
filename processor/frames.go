package processor

import (
	"sync"
	"time"

	"heatflow/internal/heatmap"
	"heatflow/models"
)

// PriceBounds is a finite price range.
type PriceBounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// ViewState is an immutable copy of the engine's view, safe to hand to other
// goroutines.
type ViewState struct {
	Viewport    heatmap.Viewport `json:"viewport"`
	Bounds      *PriceBounds     `json:"bounds,omitempty"`
	Columns     int              `json:"columns"`
	Capacity    int              `json:"capacity"`
	MaxQty      float64          `json:"max_qty"`
	Orders      int              `json:"orders"`
	Width       int              `json:"width"`
	Height      int              `json:"height"`
	ColumnWidth int              `json:"column_width"`
	GestureID   string           `json:"gesture_id,omitempty"`
}

// Frame is one rendered heatmap together with the state it was drawn from.
type Frame struct {
	Seq        uint64
	PNG        []byte
	Width      int
	Height     int
	RenderedAt time.Time
	View       ViewState
	Orders     []models.OrderEntry // newest first
}

// FrameSink receives every frame the engine renders.
type FrameSink interface {
	Publish(Frame)
}

// FrameStore keeps the latest published frame. It is safe for concurrent use.
type FrameStore struct {
	mu     sync.RWMutex
	latest Frame
	ok     bool
}

func NewFrameStore() *FrameStore {
	return &FrameStore{}
}

func (s *FrameStore) Publish(f Frame) {
	s.mu.Lock()
	s.latest = f
	s.ok = true
	s.mu.Unlock()
}

// Latest returns the most recent frame and whether one was published yet.
// Frames are never mutated after publishing, so the result may be shared.
func (s *FrameStore) Latest() (Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.ok
}

// Orders returns up to limit orders of the latest frame, newest first.
// limit <= 0 returns all of them.
func (s *FrameStore) Orders(limit int) []models.OrderEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orders := s.latest.Orders
	if limit > 0 && limit < len(orders) {
		orders = orders[:limit]
	}
	out := make([]models.OrderEntry, len(orders))
	copy(out, orders)
	return out
}
