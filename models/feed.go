package models

import "time"

const (
	MessageTypeSnapshot = "snapshot"
	MessageTypeOrders   = "orders"
)

// Encodings a feed source can hand to the engine.
const (
	EncodingJSON         = "json"
	EncodingWireSnapshot = "wire-snapshot"
	EncodingWireOrders   = "wire-orders"
	EncodingDecoded      = "decoded"
)

// FeedMessage is a decoded inbound message. Exactly one of Snapshot or
// Orders is meaningful, depending on Type.
type FeedMessage struct {
	Type     string
	Snapshot *Snapshot
	Orders   []OrderEntry
}

// RawFeedMessage wraps whatever a feed source received before decoding.
// Sources that already produce structured data set Message and use
// EncodingDecoded.
type RawFeedMessage struct {
	Source    string
	Encoding  string
	Data      []byte
	Message   *FeedMessage
	Timestamp time.Time
}

// SnapshotMessage is the JSON shape of a snapshot on the wire.
type SnapshotMessage struct {
	Type      string       `json:"type"`
	Timestamp int64        `json:"timestamp"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
}

// OrderMessage is the JSON shape of an order batch on the wire.
type OrderMessage struct {
	Type   string       `json:"type"`
	Orders []OrderEntry `json:"orders"`
}
