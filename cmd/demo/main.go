// Command demo walks a small book through resting, crossing, cancel and
// sweep, printing the ladder after each step.
package main

import (
	"context"
	"fmt"
	"os"

	"ladder/api/rest"
	"ladder/domain/matching"
	"ladder/domain/orderbook"
	"ladder/domain/ticks"
	"ladder/infra/logging"
	"ladder/service"
)

const levels = 5

type demo struct {
	svc  *service.OrderService
	conv ticks.Converter
}

func main() {
	d := &demo{
		svc:  service.NewOrderService(service.Options{Symbol: "DEMO", Logger: logging.NewWithWriter(os.Stderr, "warn")}),
		conv: ticks.MustConverter("0.01"),
	}
	if err := d.run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "demo: %+v\n", err)
		os.Exit(1)
	}
}

func (d *demo) run(ctx context.Context) error {
	const c1, c2 = orderbook.ClientID(1), orderbook.ClientID(2)

	for _, o := range []struct {
		client orderbook.ClientID
		side   orderbook.Side
		price  string
		qty    int64
	}{
		{c1, orderbook.Bid, "0.90", 5},
		{c1, orderbook.Bid, "1.00", 3},
		{c1, orderbook.Ask, "1.10", 3},
		{c1, orderbook.Ask, "1.20", 2},
		{c2, orderbook.Ask, "1.10", 2},
		{c2, orderbook.Ask, "1.30", 6},
	} {
		if _, err := d.place(ctx, o.client, o.side, o.price, o.qty); err != nil {
			return err
		}
	}
	d.show("Initial order book")

	res, err := d.place(ctx, c2, orderbook.Bid, "1.10", 2)
	if err != nil {
		return err
	}
	d.trades(res)
	d.show("After the trade")

	res, err = d.place(ctx, c1, orderbook.Bid, "0.80", 10)
	if err != nil {
		return err
	}
	fmt.Printf("Placed order <%d>\n", res.OrderID)
	d.show("New order book")

	if _, err := d.svc.CancelOrder(ctx, res.OrderID); err != nil {
		return err
	}
	fmt.Printf("Canceled order <%d>\n", res.OrderID)
	d.show("Order book back to previous state")

	fmt.Println("Taking all the liquidity on the ask side")
	res, err = d.place(ctx, c2, orderbook.Bid, "1.40", 20)
	if err != nil {
		return err
	}
	d.trades(res)
	fmt.Printf("Order placed <%d>, %d resting\n", res.OrderID, res.Remaining)
	d.show("After the trade")
	return nil
}

func (d *demo) place(ctx context.Context, client orderbook.ClientID, side orderbook.Side, price string, qty int64) (matching.SubmitResult, error) {
	t, err := d.conv.ToTicks(price)
	if err != nil {
		return matching.SubmitResult{}, err
	}
	return d.svc.PlaceOrder(ctx, matching.SubmitRequest{
		Client: client,
		Side:   side,
		Price:  orderbook.Limit(t),
		Qty:    qty,
	})
}

func (d *demo) trades(res matching.SubmitResult) {
	for _, t := range res.Trades {
		fmt.Printf("Trade #%d: %d @ %s, resting order %d, taker order %d\n",
			t.ID, t.Size, d.conv.Format(t.Price), t.Maker, t.Taker)
	}
}

func (d *demo) show(title string) {
	fmt.Printf("\n%s\n", title)
	fmt.Println(rest.RenderDepth(d.svc.Depth(levels), d.conv, levels))
}
