package service

import (
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"ladder/domain/matching"
	"ladder/domain/orderbook"
)

// Journal payloads are protobuf wire messages written by hand:
//
//	place:  1 client (varint), 2 side (varint), 3 market (bool),
//	        4 price (zigzag), 5 qty (zigzag)
//	cancel: 1 order id (varint)
//
// Unknown fields are skipped so newer writers stay readable.
const (
	fieldClient protowire.Number = 1
	fieldSide   protowire.Number = 2
	fieldMarket protowire.Number = 3
	fieldPrice  protowire.Number = 4
	fieldQty    protowire.Number = 5

	fieldOrderID protowire.Number = 1
)

func encodePlace(req matching.SubmitRequest) []byte {
	b := make([]byte, 0, 32)
	b = protowire.AppendTag(b, fieldClient, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(req.Client))
	b = protowire.AppendTag(b, fieldSide, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(req.Side))
	if req.Price.IsMarket() {
		b = protowire.AppendTag(b, fieldMarket, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	b = protowire.AppendTag(b, fieldPrice, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(req.Price.Ticks()))
	b = protowire.AppendTag(b, fieldQty, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(req.Qty))
	return b
}

func decodePlace(b []byte) (matching.SubmitRequest, error) {
	var (
		req    matching.SubmitRequest
		market bool
		price  int64
	)
	err := walkVarints(b, func(num protowire.Number, v uint64) {
		switch num {
		case fieldClient:
			req.Client = orderbook.ClientID(v)
		case fieldSide:
			req.Side = orderbook.Side(v)
		case fieldMarket:
			market = protowire.DecodeBool(v)
		case fieldPrice:
			price = protowire.DecodeZigZag(v)
		case fieldQty:
			req.Qty = protowire.DecodeZigZag(v)
		}
	})
	if err != nil {
		return req, errors.Wrap(err, "decode place intent")
	}
	req.Price = orderbook.Limit(price)
	if market {
		req.Price = orderbook.Market()
	}
	return req, nil
}

func encodeCancel(id orderbook.OrderID) []byte {
	b := protowire.AppendTag(nil, fieldOrderID, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(id))
}

func decodeCancel(b []byte) (orderbook.OrderID, error) {
	var id orderbook.OrderID
	err := walkVarints(b, func(num protowire.Number, v uint64) {
		if num == fieldOrderID {
			id = orderbook.OrderID(v)
		}
	})
	return id, errors.Wrap(err, "decode cancel intent")
}

func walkVarints(b []byte, fn func(protowire.Number, uint64)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		if typ != protowire.VarintType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		fn(num, v)
	}
	return nil
}
