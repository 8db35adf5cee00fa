// Package wire reads and writes the packed little-endian book formats
// published on the NATS bus by the matching engine.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"heatflow/models"
)

const (
	SnapshotHeaderSize = 20 // pairId(8) + timestamp(8) + numBids(2) + numAsks(2)
	LevelSize          = 12 // price(8) + qty(4)
	OrdersHeaderSize   = 20 // type(1) + pairId(4) + seq(8) + count(4) + pad(3)
	OrderSize          = 40 // pairId(8) + price(8) + time(8) + qty(4) + side(4) + type(4) + action(4)

	// OrdersMessageType is the only batch type the bus carries.
	OrdersMessageType = 1
)

// ErrShortBuffer is returned when a payload is smaller than its header
// announces.
var ErrShortBuffer = errors.New("wire: short buffer")

// SnapshotHeader carries the fields of a snapshot that are not price levels.
type SnapshotHeader struct {
	PairID    int64
	Timestamp uint64
}

// OrdersHeader carries the batch metadata of an orders message.
type OrdersHeader struct {
	PairID uint32
	Seq    uint64
}

// WireOrder is an order event with the bus-level fields kept.
type WireOrder struct {
	PairID int64
	Time   uint64
	models.OrderEntry
}

// DecodeSnapshot parses a packed snapshot. Quantities are integral on the
// bus and widened to float64.
func DecodeSnapshot(data []byte) (SnapshotHeader, models.Snapshot, error) {
	if len(data) < SnapshotHeaderSize {
		return SnapshotHeader{}, models.Snapshot{}, fmt.Errorf("snapshot header: %w (%d bytes)", ErrShortBuffer, len(data))
	}

	hdr := SnapshotHeader{
		PairID:    int64(binary.LittleEndian.Uint64(data[0:8])),
		Timestamp: binary.LittleEndian.Uint64(data[8:16]),
	}
	numBids := int(binary.LittleEndian.Uint16(data[16:18]))
	numAsks := int(binary.LittleEndian.Uint16(data[18:20]))

	expected := SnapshotHeaderSize + (numBids+numAsks)*LevelSize
	if len(data) < expected {
		return hdr, models.Snapshot{}, fmt.Errorf("snapshot levels: %w (got %d, need %d)", ErrShortBuffer, len(data), expected)
	}

	snap := models.Snapshot{
		Timestamp: int64(hdr.Timestamp),
		Bids:      make([]models.PriceLevel, numBids),
		Asks:      make([]models.PriceLevel, numAsks),
	}
	offset := SnapshotHeaderSize
	for i := range snap.Bids {
		snap.Bids[i] = readLevel(data[offset : offset+LevelSize])
		offset += LevelSize
	}
	for i := range snap.Asks {
		snap.Asks[i] = readLevel(data[offset : offset+LevelSize])
		offset += LevelSize
	}
	return hdr, snap, nil
}

func readLevel(b []byte) models.PriceLevel {
	return models.PriceLevel{
		Price: math.Float64frombits(binary.LittleEndian.Uint64(b[0:8])),
		Qty:   float64(int32(binary.LittleEndian.Uint32(b[8:12]))),
	}
}

// DecodeOrders parses a packed order batch. A batch containing an unknown
// side, action or type code is rejected as a whole.
func DecodeOrders(data []byte) (OrdersHeader, []WireOrder, error) {
	if len(data) < OrdersHeaderSize {
		return OrdersHeader{}, nil, fmt.Errorf("orders header: %w (%d bytes)", ErrShortBuffer, len(data))
	}
	if data[0] != OrdersMessageType {
		return OrdersHeader{}, nil, fmt.Errorf("unexpected orders message type %d", data[0])
	}

	hdr := OrdersHeader{
		PairID: binary.LittleEndian.Uint32(data[1:5]),
		Seq:    binary.LittleEndian.Uint64(data[5:13]),
	}
	count := int(binary.LittleEndian.Uint32(data[13:17]))

	if count > (len(data)-OrdersHeaderSize)/OrderSize {
		return hdr, nil, fmt.Errorf("orders body: %w (got %d bytes for %d orders)", ErrShortBuffer, len(data), count)
	}

	out := make([]WireOrder, count)
	offset := OrdersHeaderSize
	for i := range out {
		b := data[offset : offset+OrderSize]
		rawSide := binary.LittleEndian.Uint32(b[28:32])
		rawType := binary.LittleEndian.Uint32(b[32:36])
		rawAction := binary.LittleEndian.Uint32(b[36:40])
		side, orderType, action := models.OrderSide(rawSide), models.OrderType(rawType), models.OrderAction(rawAction)
		if rawSide > math.MaxUint8 || rawType > math.MaxUint8 || rawAction > math.MaxUint8 ||
			!side.Valid() || !orderType.Valid() || !action.Valid() {
			return hdr, nil, fmt.Errorf("order %d: unknown code (side=%d type=%d action=%d)", i, rawSide, rawType, rawAction)
		}

		out[i] = WireOrder{
			PairID: int64(binary.LittleEndian.Uint64(b[0:8])),
			Time:   binary.LittleEndian.Uint64(b[16:24]),
			OrderEntry: models.OrderEntry{
				Price:     math.Float64frombits(binary.LittleEndian.Uint64(b[8:16])),
				Qty:       float64(int32(binary.LittleEndian.Uint32(b[24:28]))),
				Side:      side,
				Action:    action,
				OrderType: orderType,
			},
		}
		offset += OrderSize
	}
	return hdr, out, nil
}

// Entries strips the bus-level fields.
func Entries(orders []WireOrder) []models.OrderEntry {
	out := make([]models.OrderEntry, len(orders))
	for i, o := range orders {
		out[i] = o.OrderEntry
	}
	return out
}

// EncodeSnapshot packs a snapshot. Quantities are truncated to int32 and at
// most math.MaxUint16 levels per side are written.
func EncodeSnapshot(hdr SnapshotHeader, snap models.Snapshot) []byte {
	bids := capLevels(snap.Bids)
	asks := capLevels(snap.Asks)

	buf := make([]byte, SnapshotHeaderSize+(len(bids)+len(asks))*LevelSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(hdr.PairID))
	binary.LittleEndian.PutUint64(buf[8:16], hdr.Timestamp)
	binary.LittleEndian.PutUint16(buf[16:18], uint16(len(bids)))
	binary.LittleEndian.PutUint16(buf[18:20], uint16(len(asks)))

	offset := SnapshotHeaderSize
	for _, lvl := range append(bids, asks...) {
		binary.LittleEndian.PutUint64(buf[offset:offset+8], math.Float64bits(lvl.Price))
		binary.LittleEndian.PutUint32(buf[offset+8:offset+12], uint32(int32(lvl.Qty)))
		offset += LevelSize
	}
	return buf
}

func capLevels(levels []models.PriceLevel) []models.PriceLevel {
	if len(levels) > math.MaxUint16 {
		levels = levels[:math.MaxUint16]
	}
	return levels[:len(levels):len(levels)]
}

// EncodeOrders packs an order batch.
func EncodeOrders(hdr OrdersHeader, orders []WireOrder) []byte {
	buf := make([]byte, OrdersHeaderSize+len(orders)*OrderSize)
	buf[0] = OrdersMessageType
	binary.LittleEndian.PutUint32(buf[1:5], hdr.PairID)
	binary.LittleEndian.PutUint64(buf[5:13], hdr.Seq)
	binary.LittleEndian.PutUint32(buf[13:17], uint32(len(orders)))

	offset := OrdersHeaderSize
	for _, o := range orders {
		b := buf[offset : offset+OrderSize]
		binary.LittleEndian.PutUint64(b[0:8], uint64(o.PairID))
		binary.LittleEndian.PutUint64(b[8:16], math.Float64bits(o.Price))
		binary.LittleEndian.PutUint64(b[16:24], o.Time)
		binary.LittleEndian.PutUint32(b[24:28], uint32(int32(o.Qty)))
		binary.LittleEndian.PutUint32(b[28:32], uint32(o.Side))
		binary.LittleEndian.PutUint32(b[32:36], uint32(o.OrderType))
		binary.LittleEndian.PutUint32(b[36:40], uint32(o.Action))
		offset += OrderSize
	}
	return buf
}
