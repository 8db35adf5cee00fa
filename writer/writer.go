// Package writer publishes generated feed messages to the transports the
// heatflow readers consume: NATS in the packed wire format, JSON over Kafka,
// Redis pub/sub and a websocket hub.
package writer

import (
	"context"
	"encoding/json"
	"fmt"

	"heatflow/models"
)

// Sink drains a channel of feed messages until Stop or context cancellation.
type Sink interface {
	Start(ctx context.Context) error
	Stop()
}

// EncodeJSON renders msg in the inbound JSON shape the adapter decodes.
func EncodeJSON(msg models.FeedMessage) ([]byte, error) {
	switch msg.Type {
	case models.MessageTypeSnapshot:
		if msg.Snapshot == nil {
			return nil, fmt.Errorf("snapshot message without snapshot")
		}
		return json.Marshal(models.SnapshotMessage{
			Type:      models.MessageTypeSnapshot,
			Timestamp: msg.Snapshot.Timestamp,
			Bids:      nonNil(msg.Snapshot.Bids),
			Asks:      nonNil(msg.Snapshot.Asks),
		})
	case models.MessageTypeOrders:
		orders := msg.Orders
		if orders == nil {
			orders = []models.OrderEntry{}
		}
		return json.Marshal(models.OrderMessage{Type: models.MessageTypeOrders, Orders: orders})
	default:
		return nil, fmt.Errorf("unknown message type %q", msg.Type)
	}
}

func nonNil(levels []models.PriceLevel) []models.PriceLevel {
	if levels == nil {
		return []models.PriceLevel{}
	}
	return levels
}
