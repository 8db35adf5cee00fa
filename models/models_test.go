package models

import (
	"encoding/json"
	"testing"
)

func TestNewColumnMergesAndRounds(t *testing.T) {
	col := NewColumn(Snapshot{
		Timestamp: 7,
		Bids:      []PriceLevel{{Price: 100, Qty: 5}, {Price: 99, Qty: 3}},
		Asks:      []PriceLevel{{Price: 101, Qty: 4}},
	})
	if col.Timestamp != 7 {
		t.Fatalf("unexpected timestamp: %d", col.Timestamp)
	}
	if len(col.Levels) != 3 {
		t.Fatalf("expected 3 levels, got %d", len(col.Levels))
	}
	for price, side := range map[float64]Side{100: SideBid, 99: SideBid, 101: SideAsk} {
		entry, ok := col.Levels[price]
		if !ok {
			t.Fatalf("missing level %.2f", price)
		}
		if entry.Side != side {
			t.Errorf("level %.2f side = %s, want %s", price, entry.Side, side)
		}
	}
}

func TestNewColumnAskOverwritesBidOnCollision(t *testing.T) {
	col := NewColumn(Snapshot{
		Bids: []PriceLevel{{Price: 100.001, Qty: 5}},
		Asks: []PriceLevel{{Price: 100.004, Qty: 2}},
	})
	if len(col.Levels) != 1 {
		t.Fatalf("expected collision into 1 level, got %d", len(col.Levels))
	}
	entry := col.Levels[100]
	if entry.Side != SideAsk || entry.Qty != 2 {
		t.Fatalf("expected ask to win, got %+v", entry)
	}
}

func TestOrderEntryJSON(t *testing.T) {
	raw := []byte(`{"price":100.5,"qty":3,"side":"SELL","action":"SEEKER_ADD","orderType":"ICEBERG"}`)
	var o OrderEntry
	if err := json.Unmarshal(raw, &o); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if o.Side != OrderSideSell || o.Action != OrderActionSeekerAdd || o.OrderType != OrderTypeIceberg {
		t.Fatalf("unexpected enums: %+v", o)
	}

	out, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != string(raw) {
		t.Fatalf("marshal = %s, want %s", out, raw)
	}
}

func TestOrderEntryRejectsUnknownEnum(t *testing.T) {
	var o OrderEntry
	if err := json.Unmarshal([]byte(`{"side":"HOLD"}`), &o); err == nil {
		t.Fatal("expected error for unknown side")
	}
	if err := json.Unmarshal([]byte(`{"action":"CANCEL"}`), &o); err == nil {
		t.Fatal("expected error for unknown action")
	}
	if err := json.Unmarshal([]byte(`{"orderType":"FOK"}`), &o); err == nil {
		t.Fatal("expected error for unknown order type")
	}
}
