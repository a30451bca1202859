package orderbook

import "github.com/cockroachdb/errors"

// ErrOrderNotFound covers ids never issued, fully filled or canceled.
var ErrOrderNotFound = errors.New("order not found")

// Registry is the only id -> order index. Every resting order is in it,
// nothing else is.
type Registry struct {
	orders map[OrderID]*Order
}

func NewRegistry() *Registry {
	return &Registry{orders: make(map[OrderID]*Order)}
}

func (r *Registry) Insert(o *Order) error {
	if _, ok := r.orders[o.ID]; ok {
		return errors.AssertionFailedf("order %d registered twice", o.ID)
	}
	r.orders[o.ID] = o
	return nil
}

func (r *Registry) Erase(id OrderID) {
	delete(r.orders, id)
}

func (r *Registry) Lookup(id OrderID) (*Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, errors.Wrapf(ErrOrderNotFound, "order %d", id)
	}
	return o, nil
}

func (r *Registry) Len() int {
	return len(r.orders)
}
