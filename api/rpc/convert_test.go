package rpc

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ladder/domain/matching"
	"ladder/domain/orderbook"
	"ladder/domain/ticks"
)

var cents = ticks.MustConverter("0.01")

func TestToSubmit(t *testing.T) {
	req, err := (&PlaceOrderRequest{ClientID: 4, Side: "buy", Price: "1.10", Qty: 2}).ToSubmit(cents)
	require.NoError(t, err)
	assert.Equal(t, matching.SubmitRequest{Client: 4, Side: orderbook.Bid, Price: orderbook.Limit(110), Qty: 2}, req)

	req, err = (&PlaceOrderRequest{Side: "ASK", Type: "market", Qty: 5}).ToSubmit(cents)
	require.NoError(t, err)
	assert.True(t, req.Price.IsMarket())
	assert.Equal(t, orderbook.Ask, req.Side)

	// sign checks stay with the engine
	req, err = (&PlaceOrderRequest{Side: "bid", Price: "-1", Qty: 0}).ToSubmit(cents)
	require.NoError(t, err)
	assert.Equal(t, int64(-100), req.Price.Ticks())
}

func TestToSubmitInvalid(t *testing.T) {
	for name, r := range map[string]PlaceOrderRequest{
		"side":      {Side: "long", Price: "1", Qty: 1},
		"type":      {Side: "bid", Type: "stop", Price: "1", Qty: 1},
		"no price":  {Side: "bid", Qty: 1},
		"off tick":  {Side: "bid", Price: "1.005", Qty: 1},
		"not a num": {Side: "bid", Price: "abc", Qty: 1},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := r.ToSubmit(cents)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRequest))
		})
	}
}

func TestResponses(t *testing.T) {
	res := matching.SubmitResult{
		OrderID:   8,
		Status:    matching.StatusPartiallyFilled,
		Remaining: 9,
		Trades:    []matching.Trade{{ID: 1, Price: 110, Size: 1, Maker: 2, Taker: 8}},
	}
	out := NewPlaceOrderResponse(res, cents)
	assert.Equal(t, "partially_filled", out.Status)
	assert.Equal(t, []TradeReport{{TradeID: 1, Price: "1.10", Size: 1, RestingOrderID: 2, TakerOrderID: 8}}, out.Trades)

	d := NewDepthResponse("LDR-USD", orderbook.Depth{
		Bids: []orderbook.LevelDepth{{Price: 100, Quantity: 3, Orders: 1}},
	}, cents)
	assert.Equal(t, []Level{{Price: "1.00", Quantity: 3, Orders: 1}}, d.Bids)
	assert.NotNil(t, d.Asks)
	assert.Empty(t, d.Asks)
}
