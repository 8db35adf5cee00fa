package orderflow

import (
	"testing"

	"heatflow/models"
)

func order(price float64) models.OrderEntry {
	return models.OrderEntry{
		Price:     price,
		Qty:       1,
		Side:      models.OrderSideBuy,
		Action:    models.OrderActionAdd,
		OrderType: models.OrderTypeLimit,
	}
}

func TestLogKeepsMostRecent(t *testing.T) {
	l := NewLog(200)
	for i := 0; i < 210; i++ {
		l.Append(order(float64(i)))
	}

	if l.Len() != 200 {
		t.Fatalf("expected 200 orders, got %d", l.Len())
	}
	snap := l.Snapshot()
	for i, o := range snap {
		if want := float64(i + 10); o.Price != want {
			t.Fatalf("order %d price = %v, want %v", i, o.Price, want)
		}
	}
}

func TestLogAppendBatchLargerThanCapacity(t *testing.T) {
	l := NewLog(3)
	l.Append(order(1), order(2), order(3), order(4), order(5))

	snap := l.Snapshot()
	if len(snap) != 3 || snap[0].Price != 3 || snap[2].Price != 5 {
		t.Fatalf("unexpected log contents %+v", snap)
	}
}

func TestLogRecentNewestFirst(t *testing.T) {
	l := NewLog(10)
	for i := 1; i <= 5; i++ {
		l.Append(order(float64(i)))
	}

	recent := l.Recent(3)
	if len(recent) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(recent))
	}
	for i, want := range []float64{5, 4, 3} {
		if recent[i].Price != want {
			t.Errorf("recent[%d] = %v, want %v", i, recent[i].Price, want)
		}
	}
	if got := len(l.Recent(0)); got != 5 {
		t.Fatalf("Recent(0) returned %d orders, want all 5", got)
	}
	if got := len(l.Recent(50)); got != 5 {
		t.Fatalf("Recent(50) returned %d orders, want 5", got)
	}
}

func TestLogSnapshotIsCopy(t *testing.T) {
	l := NewLog(5)
	l.Append(order(1))
	snap := l.Snapshot()
	snap[0].Price = 99

	if l.Snapshot()[0].Price != 1 {
		t.Fatal("snapshot shares storage with the log")
	}
}

func TestLogDefaultsAndReset(t *testing.T) {
	l := NewLog(-1)
	if l.Capacity() != DefaultCapacity {
		t.Fatalf("capacity = %d, want %d", l.Capacity(), DefaultCapacity)
	}
	l.Append(order(1), order(2))
	l.Reset()
	if l.Len() != 0 {
		t.Fatalf("reset left %d orders", l.Len())
	}
}
