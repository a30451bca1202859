package orderbook

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

type Side uint8

const (
	Bid Side = iota
	Ask
)

var ErrUnknownSide = errors.New("unknown side")

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return "side(" + strconv.Itoa(int(s)) + ")"
	}
}

func (s Side) Valid() bool {
	return s == Bid || s == Ask
}

func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// ParseSide accepts bid/buy and ask/sell, case-insensitive.
func ParseSide(v string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "bid", "buy":
		return Bid, nil
	case "ask", "sell":
		return Ask, nil
	}
	return 0, errors.Wrapf(ErrUnknownSide, "%q", v)
}

func (s Side) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, errors.Wrapf(ErrUnknownSide, "%d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	v, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

type priceKind uint8

const (
	limitPrice priceKind = iota
	marketPrice
)

// Price is either Limit(ticks) or Market. The zero value is Limit(0),
// which never passes validation.
type Price struct {
	kind  priceKind
	ticks int64
}

func Limit(ticks int64) Price {
	return Price{kind: limitPrice, ticks: ticks}
}

func Market() Price {
	return Price{kind: marketPrice}
}

func (p Price) IsMarket() bool {
	return p.kind == marketPrice
}

// Ticks is the limit price. It is 0 for market orders.
func (p Price) Ticks() int64 {
	return p.ticks
}

// Crosses reports whether an incoming order on side s at this price
// trades against a resting level priced at level. Equal prices cross.
func (p Price) Crosses(s Side, level int64) bool {
	if p.kind == marketPrice {
		return true
	}
	if s == Bid {
		return p.ticks >= level
	}
	return p.ticks <= level
}

func (p Price) String() string {
	if p.kind == marketPrice {
		return "MKT"
	}
	return strconv.FormatInt(p.ticks, 10)
}

type OrderID uint64

type ClientID uint64

// Order is a resting or in-flight order. Link fields are owned by the
// PriceLevel the order is queued on.
type Order struct {
	ID        OrderID
	Client    ClientID
	Side      Side
	Price     Price
	Qty       int64
	Remaining int64
	Seq       uint64

	level *PriceLevel
	next  *Order
	prev  *Order
}

func (o *Order) Filled() int64 {
	return o.Qty - o.Remaining
}

// Next walks the FIFO queue of the order's level. Read-only.
func (o *Order) Next() *Order {
	return o.next
}

// Resting reports whether the order is currently queued on a level.
func (o *Order) Resting() bool {
	return o.level != nil
}
