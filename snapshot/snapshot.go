package snapshot

import (
	"time"

	"ladder/domain/matching"
)

const fileName = "snapshot.bin"

// Snapshot is the engine state after journal record Seq was applied.
type Snapshot struct {
	Seq     uint64
	Symbol  string
	Created time.Time
	State   matching.State
}
