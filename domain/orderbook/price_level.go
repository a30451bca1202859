package orderbook

// PriceLevel is a FIFO queue at a single price. TotalQty is the sum of
// the remaining quantity of every queued order.
type PriceLevel struct {
	Price int64

	head *Order
	tail *Order

	TotalQty   int64
	OrderCount int
}

func (p *PriceLevel) Enqueue(o *Order) {
	o.level = p
	o.next = nil
	if p.head == nil {
		o.prev = nil
		p.head = o
		p.tail = o
	} else {
		p.tail.next = o
		o.prev = p.tail
		p.tail = o
	}
	p.TotalQty += o.Remaining
	p.OrderCount++
}

// unlink removes o from anywhere in the queue. Caller checks membership.
func (p *PriceLevel) unlink(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		p.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		p.tail = o.prev
	}

	p.TotalQty -= o.Remaining
	p.OrderCount--

	o.next = nil
	o.prev = nil
	o.level = nil
}

// Fill takes qty off a queued order and off the level aggregate.
func (p *PriceLevel) Fill(o *Order, qty int64) {
	o.Remaining -= qty
	p.TotalQty -= qty
}

func (p *PriceLevel) Empty() bool {
	return p.head == nil
}

// Head is the oldest order on the level.
func (p *PriceLevel) Head() *Order {
	return p.head
}

func (p *PriceLevel) contains(o *Order) bool {
	return o.level == p
}
