// Package service is the only write entry point into the book. It
// journals each intent, runs it through the matching engine and hands
// the resulting events to the outbox and the live feed.
package service
