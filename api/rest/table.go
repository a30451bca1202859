package rest

import (
	"fmt"
	"strings"

	"ladder/domain/orderbook"
	"ladder/domain/ticks"
)

// RenderDepth prints the book as a ladder: asks above bids, highest
// price first, at most levels per side nearest the spread.
func RenderDepth(d orderbook.Depth, conv ticks.Converter, levels int) string {
	asks, bids := d.Asks, d.Bids
	if levels > 0 {
		asks = asks[:min(levels, len(asks))]
		bids = bids[:min(levels, len(bids))]
	}

	var b strings.Builder
	b.WriteString("Bid Qty |   Price | Ask Qty\n")
	b.WriteString("--------+---------+--------\n")
	for i := len(asks) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "%7s | %7s | %7d\n", "", conv.Format(asks[i].Price), asks[i].Quantity)
	}
	for _, l := range bids {
		fmt.Fprintf(&b, "%7d | %7s |\n", l.Quantity, conv.Format(l.Price))
	}
	return b.String()
}
