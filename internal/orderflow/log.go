// Package orderflow keeps the bounded log of individual order events shown
// next to the heatmap.
package orderflow

import "heatflow/models"

// DefaultCapacity is the number of orders retained when none is configured.
const DefaultCapacity = 200

// Log retains the most recent orders in arrival order. It is owned by a
// single goroutine; readers on other goroutines receive copies.
type Log struct {
	items []models.OrderEntry
	limit int
}

func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{limit: capacity, items: make([]models.OrderEntry, 0, capacity)}
}

// Append adds orders to the end of the log and drops the oldest entries
// beyond capacity.
func (l *Log) Append(orders ...models.OrderEntry) {
	if len(orders) == 0 {
		return
	}
	l.items = append(l.items, orders...)
	if len(l.items) > l.limit {
		// keep the most recent entries only
		l.items = append(l.items[:0], l.items[len(l.items)-l.limit:]...)
	}
}

// Snapshot returns a copy of the log, oldest first.
func (l *Log) Snapshot() []models.OrderEntry {
	out := make([]models.OrderEntry, len(l.items))
	copy(out, l.items)
	return out
}

// Recent returns up to n orders, newest first. n <= 0 returns every order.
func (l *Log) Recent(n int) []models.OrderEntry {
	if n <= 0 || n > len(l.items) {
		n = len(l.items)
	}
	out := make([]models.OrderEntry, 0, n)
	for i := len(l.items) - 1; i >= len(l.items)-n; i-- {
		out = append(out, l.items[i])
	}
	return out
}

func (l *Log) Len() int      { return len(l.items) }
func (l *Log) Capacity() int { return l.limit }

// Reset drops every order.
func (l *Log) Reset() {
	l.items = l.items[:0]
}
