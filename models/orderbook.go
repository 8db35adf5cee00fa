package models

import (
	"fmt"
	"math"
)

// PriceLevel represents a single price level in an order book snapshot
type PriceLevel struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

// Snapshot represents the complete order book state at one point in time.
// Bids and asks are not guaranteed to be sorted.
type Snapshot struct {
	Timestamp int64        `json:"timestamp"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
}

// Side identifies which half of the book a heatmap level came from.
type Side uint8

const (
	SideBid Side = iota
	SideAsk
)

func (s Side) String() string {
	switch s {
	case SideBid:
		return "bid"
	case SideAsk:
		return "ask"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// LevelEntry is the value stored for a rounded price inside a Column.
type LevelEntry struct {
	Qty  float64
	Side Side
}

// Column is one time slice of merged bid and ask levels keyed by price
// rounded to cents. It is never modified after being pushed to a buffer.
type Column struct {
	Timestamp int64
	Levels    map[float64]LevelEntry
}

// RoundPrice quantizes a price to two decimals. Distinct sub-cent prices
// collapse onto the same key.
func RoundPrice(price float64) float64 {
	return math.Round(price*100) / 100
}

// NewColumn merges a snapshot into a column. Bids are written before asks so
// an ask wins when both round to the same price.
func NewColumn(s Snapshot) Column {
	levels := make(map[float64]LevelEntry, len(s.Bids)+len(s.Asks))
	for _, b := range s.Bids {
		levels[RoundPrice(b.Price)] = LevelEntry{Qty: b.Qty, Side: SideBid}
	}
	for _, a := range s.Asks {
		levels[RoundPrice(a.Price)] = LevelEntry{Qty: a.Qty, Side: SideAsk}
	}
	return Column{Timestamp: s.Timestamp, Levels: levels}
}
