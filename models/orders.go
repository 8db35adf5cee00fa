package models

import "fmt"

/////////////////////////////////////////////////////////////////////////////
////////////////////////////////// ENUMS ////////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// OrderSide is the aggressor side of an order event.
type OrderSide uint8

const (
	OrderSideBuy OrderSide = iota + 1
	OrderSideSell
)

// OrderAction describes what happened to an order.
type OrderAction uint8

const (
	OrderActionSeekerAdd OrderAction = iota
	OrderActionAdd
	OrderActionRemove
	OrderActionModify
)

// OrderType is the order kind reported by the feed.
type OrderType uint8

const (
	OrderTypeLimit OrderType = iota + 1
	OrderTypeMarket
	OrderTypeIceberg
	OrderTypeStop
)

var (
	orderSideNames   = map[OrderSide]string{OrderSideBuy: "BUY", OrderSideSell: "SELL"}
	orderActionNames = map[OrderAction]string{
		OrderActionSeekerAdd: "SEEKER_ADD",
		OrderActionAdd:       "ADD",
		OrderActionRemove:    "REMOVE",
		OrderActionModify:    "MODIFY",
	}
	orderTypeNames = map[OrderType]string{
		OrderTypeLimit:   "LIMIT",
		OrderTypeMarket:  "MARKET",
		OrderTypeIceberg: "ICEBERG",
		OrderTypeStop:    "STOP",
	}
)

func (s OrderSide) String() string {
	if name, ok := orderSideNames[s]; ok {
		return name
	}
	return fmt.Sprintf("OrderSide(%d)", uint8(s))
}

func (s OrderSide) Valid() bool {
	_, ok := orderSideNames[s]
	return ok
}

func (s OrderSide) MarshalText() ([]byte, error) {
	name, ok := orderSideNames[s]
	if !ok {
		return nil, fmt.Errorf("invalid order side %d", uint8(s))
	}
	return []byte(name), nil
}

func (s *OrderSide) UnmarshalText(text []byte) error {
	for k, v := range orderSideNames {
		if v == string(text) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown order side %q", text)
}

func (a OrderAction) String() string {
	if name, ok := orderActionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("OrderAction(%d)", uint8(a))
}

func (a OrderAction) Valid() bool {
	_, ok := orderActionNames[a]
	return ok
}

func (a OrderAction) MarshalText() ([]byte, error) {
	name, ok := orderActionNames[a]
	if !ok {
		return nil, fmt.Errorf("invalid order action %d", uint8(a))
	}
	return []byte(name), nil
}

func (a *OrderAction) UnmarshalText(text []byte) error {
	for k, v := range orderActionNames {
		if v == string(text) {
			*a = k
			return nil
		}
	}
	return fmt.Errorf("unknown order action %q", text)
}

func (t OrderType) String() string {
	if name, ok := orderTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("OrderType(%d)", uint8(t))
}

func (t OrderType) Valid() bool {
	_, ok := orderTypeNames[t]
	return ok
}

func (t OrderType) MarshalText() ([]byte, error) {
	name, ok := orderTypeNames[t]
	if !ok {
		return nil, fmt.Errorf("invalid order type %d", uint8(t))
	}
	return []byte(name), nil
}

func (t *OrderType) UnmarshalText(text []byte) error {
	for k, v := range orderTypeNames {
		if v == string(text) {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("unknown order type %q", text)
}

/////////////////////////////////////////////////////////////////////////////
////////////////////////////////// ORDERS ///////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// OrderEntry is one order event as shown in the order-flow log.
type OrderEntry struct {
	Price     float64     `json:"price"`
	Qty       float64     `json:"qty"`
	Side      OrderSide   `json:"side"`
	Action    OrderAction `json:"action"`
	OrderType OrderType   `json:"orderType"`
}
