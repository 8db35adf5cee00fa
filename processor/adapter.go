package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"heatflow/internal/heatmap"
	"heatflow/internal/orderflow"
	"heatflow/internal/wire"
	"heatflow/models"
)

// ErrUnknownMessageType is returned for JSON messages whose "type" is neither
// "snapshot" nor "orders".
var ErrUnknownMessageType = errors.New("unknown message type")

type envelope struct {
	Type string `json:"type"`
}

// DecodeMessage turns a raw feed message into a FeedMessage. Any error means
// the whole message must be dropped.
func DecodeMessage(raw models.RawFeedMessage) (*models.FeedMessage, error) {
	switch raw.Encoding {
	case models.EncodingDecoded:
		if raw.Message == nil {
			return nil, fmt.Errorf("decoded message from %s carries no payload", raw.Source)
		}
		switch raw.Message.Type {
		case models.MessageTypeSnapshot:
			if raw.Message.Snapshot == nil {
				return nil, fmt.Errorf("snapshot message without snapshot")
			}
		case models.MessageTypeOrders:
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, raw.Message.Type)
		}
		return raw.Message, nil

	case models.EncodingJSON, "":
		return decodeJSON(raw.Data)

	case models.EncodingWireSnapshot:
		_, snap, err := wire.DecodeSnapshot(raw.Data)
		if err != nil {
			return nil, err
		}
		return &models.FeedMessage{Type: models.MessageTypeSnapshot, Snapshot: &snap}, nil

	case models.EncodingWireOrders:
		_, orders, err := wire.DecodeOrders(raw.Data)
		if err != nil {
			return nil, err
		}
		return &models.FeedMessage{Type: models.MessageTypeOrders, Orders: wire.Entries(orders)}, nil

	default:
		return nil, fmt.Errorf("unsupported encoding %q", raw.Encoding)
	}
}

func decodeJSON(data []byte) (*models.FeedMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse message envelope: %w", err)
	}

	switch env.Type {
	case models.MessageTypeSnapshot:
		var msg models.SnapshotMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("failed to parse snapshot: %w", err)
		}
		return &models.FeedMessage{
			Type: models.MessageTypeSnapshot,
			Snapshot: &models.Snapshot{
				Timestamp: msg.Timestamp,
				Bids:      msg.Bids,
				Asks:      msg.Asks,
			},
		}, nil

	case models.MessageTypeOrders:
		var msg models.OrderMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("failed to parse orders: %w", err)
		}
		return &models.FeedMessage{Type: models.MessageTypeOrders, Orders: msg.Orders}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
}

// SnapshotToColumn converts a snapshot into a heatmap column. Levels with a
// non-finite price or quantity are skipped.
func SnapshotToColumn(s models.Snapshot) models.Column {
	return models.NewColumn(models.Snapshot{
		Timestamp: s.Timestamp,
		Bids:      finiteLevels(s.Bids),
		Asks:      finiteLevels(s.Asks),
	})
}

func finiteLevels(levels []models.PriceLevel) []models.PriceLevel {
	for i, l := range levels {
		if !finite(l.Price) || !finite(l.Qty) {
			out := make([]models.PriceLevel, 0, len(levels)-1)
			out = append(out, levels[:i]...)
			for _, rest := range levels[i+1:] {
				if finite(rest.Price) && finite(rest.Qty) {
					out = append(out, rest)
				}
			}
			return out
		}
	}
	return levels
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// IngestSnapshot pushes one snapshot into the rolling buffer.
func IngestSnapshot(buf *heatmap.Buffer, s models.Snapshot) {
	buf.Push(SnapshotToColumn(s))
}

// IngestOrders appends orders to the order log.
func IngestOrders(log *orderflow.Log, orders []models.OrderEntry) {
	log.Append(orders...)
}

// Apply routes a decoded message to the buffer or the order log. It reports
// whether visible state changed.
func Apply(msg *models.FeedMessage, buf *heatmap.Buffer, log *orderflow.Log) bool {
	switch msg.Type {
	case models.MessageTypeSnapshot:
		if msg.Snapshot == nil {
			return false
		}
		IngestSnapshot(buf, *msg.Snapshot)
		return true
	case models.MessageTypeOrders:
		if len(msg.Orders) == 0 {
			return false
		}
		IngestOrders(log, msg.Orders)
		return true
	default:
		return false
	}
}
