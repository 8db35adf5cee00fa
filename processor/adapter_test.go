package processor

import (
	"errors"
	"math"
	"testing"

	"heatflow/internal/heatmap"
	"heatflow/internal/orderflow"
	"heatflow/internal/wire"
	"heatflow/models"
)

func jsonMessage(s string) models.RawFeedMessage {
	return models.RawFeedMessage{Source: "test", Encoding: models.EncodingJSON, Data: []byte(s)}
}

func TestDecodeJSONSnapshotIntoBuffer(t *testing.T) {
	raw := jsonMessage(`{"type":"snapshot","timestamp":1,"bids":[{"price":100,"qty":5},{"price":99,"qty":3}],"asks":[{"price":101,"qty":4}]}`)

	msg, err := DecodeMessage(raw)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if msg.Type != models.MessageTypeSnapshot || msg.Snapshot == nil {
		t.Fatalf("unexpected message %+v", msg)
	}

	buf := heatmap.NewBuffer(10)
	if !Apply(msg, buf, orderflow.NewLog(0)) {
		t.Fatal("snapshot should change state")
	}

	if buf.Len() != 1 {
		t.Fatalf("buffer len = %d, want 1", buf.Len())
	}
	if got := len(buf.At(0).Levels); got != 3 {
		t.Fatalf("column has %d levels, want 3", got)
	}
	if buf.MaxQty() != 5 {
		t.Fatalf("maxQty = %v, want 5", buf.MaxQty())
	}
	lo, hi := buf.Bounds()
	if math.Abs(lo-98.8) > 1e-9 || math.Abs(hi-101.2) > 1e-9 {
		t.Fatalf("bounds = [%v, %v], want [98.8, 101.2]", lo, hi)
	}
}

func TestDecodeJSONOrders(t *testing.T) {
	raw := jsonMessage(`{"type":"orders","orders":[{"price":100.5,"qty":3,"side":"BUY","action":"ADD","orderType":"LIMIT"},{"price":101,"qty":1,"side":"SELL","action":"REMOVE","orderType":"MARKET"}]}`)

	msg, err := DecodeMessage(raw)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if len(msg.Orders) != 2 {
		t.Fatalf("decoded %d orders, want 2", len(msg.Orders))
	}
	first := msg.Orders[0]
	if first.Side != models.OrderSideBuy || first.Action != models.OrderActionAdd || first.OrderType != models.OrderTypeLimit {
		t.Fatalf("unexpected first order %+v", first)
	}
}

func TestDecodeRejectsBadMessages(t *testing.T) {
	cases := []struct {
		name string
		raw  models.RawFeedMessage
	}{
		{"malformed json", jsonMessage(`{"type":"snapshot",`)},
		{"unknown type", jsonMessage(`{"type":"trades"}`)},
		{"missing type", jsonMessage(`{"bids":[]}`)},
		{"bad side", jsonMessage(`{"type":"orders","orders":[{"price":1,"qty":1,"side":"LONG","action":"ADD","orderType":"LIMIT"}]}`)},
		{"short wire snapshot", models.RawFeedMessage{Encoding: models.EncodingWireSnapshot, Data: []byte{1, 2, 3}}},
		{"short wire orders", models.RawFeedMessage{Encoding: models.EncodingWireOrders, Data: []byte{1}}},
		{"unknown encoding", models.RawFeedMessage{Encoding: "protobuf", Data: []byte("{}")}},
		{"decoded without payload", models.RawFeedMessage{Encoding: models.EncodingDecoded}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if msg, err := DecodeMessage(tc.raw); err == nil {
				t.Fatalf("expected error, got %+v", msg)
			}
		})
	}
}

func TestDecodeUnknownTypeIsTyped(t *testing.T) {
	_, err := DecodeMessage(jsonMessage(`{"type":"heartbeat"}`))
	if !errors.Is(err, ErrUnknownMessageType) {
		t.Fatalf("expected ErrUnknownMessageType, got %v", err)
	}
}

func TestDecodeWireEncodings(t *testing.T) {
	snap := models.Snapshot{
		Timestamp: 7,
		Bids:      []models.PriceLevel{{Price: 100, Qty: 5}},
		Asks:      []models.PriceLevel{{Price: 101, Qty: 2}},
	}
	msg, err := DecodeMessage(models.RawFeedMessage{
		Encoding: models.EncodingWireSnapshot,
		Data:     wire.EncodeSnapshot(wire.SnapshotHeader{PairID: 1, Timestamp: 7}, snap),
	})
	if err != nil {
		t.Fatalf("wire snapshot: %v", err)
	}
	if msg.Type != models.MessageTypeSnapshot || len(msg.Snapshot.Bids) != 1 || msg.Snapshot.Asks[0].Price != 101 {
		t.Fatalf("unexpected snapshot %+v", msg.Snapshot)
	}

	orders := []wire.WireOrder{{PairID: 1, Time: 9, OrderEntry: models.OrderEntry{
		Price: 100, Qty: 2, Side: models.OrderSideSell, Action: models.OrderActionModify, OrderType: models.OrderTypeStop,
	}}}
	msg, err = DecodeMessage(models.RawFeedMessage{
		Encoding: models.EncodingWireOrders,
		Data:     wire.EncodeOrders(wire.OrdersHeader{PairID: 1, Seq: 3}, orders),
	})
	if err != nil {
		t.Fatalf("wire orders: %v", err)
	}
	if len(msg.Orders) != 1 || msg.Orders[0] != orders[0].OrderEntry {
		t.Fatalf("unexpected orders %+v", msg.Orders)
	}
}

func TestSnapshotToColumnSkipsNonFiniteLevels(t *testing.T) {
	col := SnapshotToColumn(models.Snapshot{
		Bids: []models.PriceLevel{{Price: math.NaN(), Qty: 1}, {Price: 100, Qty: 2}},
		Asks: []models.PriceLevel{{Price: 101, Qty: math.Inf(1)}, {Price: 102, Qty: 1}},
	})
	if len(col.Levels) != 2 {
		t.Fatalf("column levels = %+v, want 2 finite levels", col.Levels)
	}
	if _, ok := col.Levels[100]; !ok {
		t.Fatal("finite bid missing")
	}
	if _, ok := col.Levels[102]; !ok {
		t.Fatal("finite ask missing")
	}
}

func TestApplyOrdersKeepsNewest(t *testing.T) {
	log := orderflow.NewLog(200)
	buf := heatmap.NewBuffer(10)
	for i := 0; i < 210; i++ {
		msg := &models.FeedMessage{Type: models.MessageTypeOrders, Orders: []models.OrderEntry{{Price: float64(i), Qty: 1}}}
		if !Apply(msg, buf, log) {
			t.Fatal("orders should change state")
		}
	}
	if log.Len() != 200 {
		t.Fatalf("log len = %d, want 200", log.Len())
	}
	if got := log.Snapshot()[0].Price; got != 10 {
		t.Fatalf("oldest kept price = %v, want 10", got)
	}
	if buf.Len() != 0 {
		t.Fatal("orders must not touch the buffer")
	}
}

func TestApplyIgnoresEmptyMessages(t *testing.T) {
	buf := heatmap.NewBuffer(10)
	log := orderflow.NewLog(10)
	if Apply(&models.FeedMessage{Type: models.MessageTypeOrders}, buf, log) {
		t.Fatal("empty order batch should not mark state dirty")
	}
	if Apply(&models.FeedMessage{Type: models.MessageTypeSnapshot}, buf, log) {
		t.Fatal("snapshot message without snapshot should be ignored")
	}
}
