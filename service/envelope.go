package service

import (
	"encoding/json"

	"ladder/domain/matching"
)

const envelopeVersion = 1

// Envelope is the wire form of an engine event on the outbox, the
// broker and the live feed.
type Envelope struct {
	V      int    `json:"v"`
	Symbol string `json:"symbol"`
	matching.Event
}

func encodeEnvelope(symbol string, ev matching.Event) ([]byte, error) {
	return json.Marshal(Envelope{V: envelopeVersion, Symbol: symbol, Event: ev})
}

// DecodeEnvelope parses one envelope. Consumers of the feed and topic
// use it.
func DecodeEnvelope(b []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(b, &e)
	return e, err
}
