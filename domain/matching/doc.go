// Package matching is the single-instrument matching engine. It owns the
// order book, the id counters and event numbering, and runs submit and
// cancel atomically with respect to each other and to queries.
package matching
