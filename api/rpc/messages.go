// Package rpc defines the order-entry gRPC service without generated
// code: plain Go messages carried by a JSON codec and a hand-written
// service descriptor.
package rpc

// Prices travel as decimal strings; the server converts them to ticks.

type PlaceOrderRequest struct {
	ClientID uint64 `json:"client_id"`
	// Side is bid/buy or ask/sell.
	Side string `json:"side"`
	// Type is limit (default) or market. Price is ignored for market.
	Type  string `json:"type,omitempty"`
	Price string `json:"price,omitempty"`
	Qty   int64  `json:"qty"`
}

type TradeReport struct {
	TradeID        uint64 `json:"trade_id"`
	Price          string `json:"price"`
	Size           int64  `json:"size"`
	RestingOrderID uint64 `json:"resting_order_id"`
	TakerOrderID   uint64 `json:"taker_order_id"`
}

type PlaceOrderResponse struct {
	OrderID   uint64        `json:"order_id"`
	Status    string        `json:"status"`
	Remaining int64         `json:"remaining"`
	Trades    []TradeReport `json:"trades"`
}

type CancelOrderRequest struct {
	OrderID uint64 `json:"order_id"`
}

type CancelOrderResponse struct {
	OrderID   uint64 `json:"order_id"`
	Remaining int64  `json:"remaining"`
}

type GetDepthRequest struct {
	// Levels per side; 0 uses the server default.
	Levels int `json:"levels,omitempty"`
}

type Level struct {
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
	Orders   int    `json:"orders"`
}

type GetDepthResponse struct {
	Symbol string  `json:"symbol"`
	Bids   []Level `json:"bids"`
	Asks   []Level `json:"asks"`
}
