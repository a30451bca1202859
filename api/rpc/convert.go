package rpc

import (
	"strings"

	"github.com/cockroachdb/errors"

	"ladder/domain/matching"
	"ladder/domain/orderbook"
	"ladder/domain/ticks"
)

// ErrInvalidRequest marks requests refused before reaching the book.
var ErrInvalidRequest = errors.New("invalid request")

// ToSubmit converts the request to an engine intent. Quantity and price
// sign are left to the engine so the rejection is journaled and emitted.
func (r *PlaceOrderRequest) ToSubmit(conv ticks.Converter) (matching.SubmitRequest, error) {
	side, err := orderbook.ParseSide(r.Side)
	if err != nil {
		return matching.SubmitRequest{}, errors.Mark(err, ErrInvalidRequest)
	}
	req := matching.SubmitRequest{
		Client: orderbook.ClientID(r.ClientID),
		Side:   side,
		Qty:    r.Qty,
	}

	switch strings.ToLower(r.Type) {
	case "market":
		req.Price = orderbook.Market()
	case "", "limit":
		if r.Price == "" {
			return req, errors.Mark(errors.New("limit order needs a price"), ErrInvalidRequest)
		}
		t, err := conv.ToTicks(r.Price)
		if err != nil {
			return req, errors.Mark(err, ErrInvalidRequest)
		}
		req.Price = orderbook.Limit(t)
	default:
		return req, errors.Mark(errors.Newf("unknown order type %q", r.Type), ErrInvalidRequest)
	}
	return req, nil
}

func NewPlaceOrderResponse(res matching.SubmitResult, conv ticks.Converter) *PlaceOrderResponse {
	out := &PlaceOrderResponse{
		OrderID:   uint64(res.OrderID),
		Status:    res.Status.String(),
		Remaining: res.Remaining,
		Trades:    make([]TradeReport, 0, len(res.Trades)),
	}
	for _, t := range res.Trades {
		out.Trades = append(out.Trades, TradeReport{
			TradeID:        uint64(t.ID),
			Price:          conv.Format(t.Price),
			Size:           t.Size,
			RestingOrderID: uint64(t.Maker),
			TakerOrderID:   uint64(t.Taker),
		})
	}
	return out
}

func NewDepthResponse(symbol string, d orderbook.Depth, conv ticks.Converter) *GetDepthResponse {
	return &GetDepthResponse{
		Symbol: symbol,
		Bids:   levels(d.Bids, conv),
		Asks:   levels(d.Asks, conv),
	}
}

func levels(in []orderbook.LevelDepth, conv ticks.Converter) []Level {
	out := make([]Level, 0, len(in))
	for _, l := range in {
		out = append(out, Level{Price: conv.Format(l.Price), Quantity: l.Quantity, Orders: l.Orders})
	}
	return out
}
