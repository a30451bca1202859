package service

import (
	"ladder/domain/orderbook"
	"ladder/snapshot"
)

// depthFromState aggregates the snapshot's orders, which are already
// grouped by side and level best first, into at most levels per side.
func depthFromState(snap *snapshot.Snapshot, levels int) orderbook.Depth {
	d := orderbook.Depth{
		Bids: []orderbook.LevelDepth{},
		Asks: []orderbook.LevelDepth{},
	}
	for _, o := range snap.State.Orders {
		side := &d.Bids
		if o.Side == orderbook.Ask {
			side = &d.Asks
		}
		n := len(*side)
		if n > 0 && (*side)[n-1].Price == o.Price {
			(*side)[n-1].Quantity += o.Remaining
			(*side)[n-1].Orders++
			continue
		}
		if levels > 0 && n == levels {
			continue
		}
		*side = append(*side, orderbook.LevelDepth{Price: o.Price, Quantity: o.Remaining, Orders: 1})
	}
	return d
}
