// Package orderbook holds the resting side of a single-instrument book:
// a red-black price index per side, FIFO price levels and the id registry.
// Prices are integer ticks. Matching lives in package matching.
package orderbook
