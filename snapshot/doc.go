// Package snapshot persists engine state as a gob file so recovery only
// replays the journal tail written after it.
package snapshot
