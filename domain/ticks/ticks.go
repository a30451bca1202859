// Package ticks converts between decimal prices and integer ticks.
package ticks

import (
	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrNotTickMultiple = errors.New("price is not a multiple of the tick size")
	ErrOutOfRange      = errors.New("price out of range")
)

// Converter maps decimal prices onto an integer tick grid.
type Converter struct {
	size   decimal.Decimal
	places int32
}

func NewConverter(tickSize string) (Converter, error) {
	size, err := decimal.NewFromString(tickSize)
	if err != nil {
		return Converter{}, errors.Wrapf(err, "tick size %q", tickSize)
	}
	if !size.IsPositive() {
		return Converter{}, errors.Newf("tick size %q must be positive", tickSize)
	}
	places := -size.Exponent()
	if places < 0 {
		places = 0
	}
	return Converter{size: size, places: places}, nil
}

func MustConverter(tickSize string) Converter {
	c, err := NewConverter(tickSize)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Converter) TickSize() decimal.Decimal { return c.size }

// ToTicks parses a decimal price and returns it in ticks. Prices off the
// tick grid are rejected rather than rounded.
func (c Converter) ToTicks(price string) (int64, error) {
	d, err := decimal.NewFromString(price)
	if err != nil {
		return 0, errors.Wrapf(err, "price %q", price)
	}
	return c.FromDecimal(d)
}

func (c Converter) FromDecimal(d decimal.Decimal) (int64, error) {
	if !d.Mod(c.size).IsZero() {
		return 0, errors.Wrapf(ErrNotTickMultiple, "%s / %s", d, c.size)
	}
	q := d.Div(c.size)
	if !q.BigInt().IsInt64() {
		return 0, errors.Wrapf(ErrOutOfRange, "%s", d)
	}
	return q.IntPart(), nil
}

func (c Converter) ToDecimal(t int64) decimal.Decimal {
	return decimal.NewFromInt(t).Mul(c.size)
}

// Format renders ticks with the tick size's number of decimal places.
func (c Converter) Format(t int64) string {
	return c.ToDecimal(t).StringFixed(c.places)
}
