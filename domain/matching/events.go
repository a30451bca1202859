package matching

import (
	"github.com/cockroachdb/errors"

	"ladder/domain/orderbook"
)

type EventType uint8

const (
	EventOrderPlaced EventType = iota + 1
	EventOrderCanceled
	EventTrade
	EventOrderRejected
)

var eventNames = map[EventType]string{
	EventOrderPlaced:   "order_placed",
	EventOrderCanceled: "order_canceled",
	EventTrade:         "trade",
	EventOrderRejected: "order_rejected",
}

func (t EventType) String() string {
	if n, ok := eventNames[t]; ok {
		return n
	}
	return "unknown"
}

func (t EventType) MarshalText() ([]byte, error) {
	n, ok := eventNames[t]
	if !ok {
		return nil, errors.Newf("unknown event type %d", uint8(t))
	}
	return []byte(n), nil
}

func (t *EventType) UnmarshalText(b []byte) error {
	for k, v := range eventNames {
		if v == string(b) {
			*t = k
			return nil
		}
	}
	return errors.Newf("unknown event type %q", b)
}

type TradeID uint64

// Trade is immutable once emitted. Price is always the maker's price.
type Trade struct {
	ID          TradeID            `json:"trade_id"`
	Price       int64              `json:"price"`
	Size        int64              `json:"size"`
	Maker       orderbook.OrderID  `json:"resting_order_id"`
	Taker       orderbook.OrderID  `json:"taker_order_id"`
	TakerSide   orderbook.Side     `json:"taker_side"`
	MakerClient orderbook.ClientID `json:"maker_client_id"`
	TakerClient orderbook.ClientID `json:"taker_client_id"`
}

type OrderPlaced struct {
	OrderID  orderbook.OrderID  `json:"order_id"`
	ClientID orderbook.ClientID `json:"client_id"`
	Side     orderbook.Side     `json:"side"`
	Price    int64              `json:"price"`
	Quantity int64              `json:"quantity"`
}

const (
	ReasonClientCancel    = "client_cancel"
	ReasonMarketRemainder = "market_remainder"
)

type OrderCanceled struct {
	OrderID   orderbook.OrderID `json:"order_id"`
	Remaining int64             `json:"remaining"`
	Reason    string            `json:"reason"`
}

type OrderRejected struct {
	ClientID orderbook.ClientID `json:"client_id"`
	Reason   string             `json:"reason"`
}

// Event is one engine output. Exactly one payload field is set, matching Type.
// Seq orders every event the engine has emitted.
type Event struct {
	Seq      uint64         `json:"seq"`
	Type     EventType      `json:"type"`
	Placed   *OrderPlaced   `json:"placed,omitempty"`
	Canceled *OrderCanceled `json:"canceled,omitempty"`
	Trade    *Trade         `json:"trade,omitempty"`
	Rejected *OrderRejected `json:"rejected,omitempty"`
}
