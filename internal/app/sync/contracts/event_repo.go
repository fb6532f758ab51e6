package contracts

import (
	"time"

	"cloud.google.com/go/spanner"
)

// EventRepo is the write-side repository interface for persisted sync
// run events. It returns Spanner mutations; it does not apply them.
type EventRepo interface {
	InsertMut(e *SyncEvent) *spanner.Mutation
}

// SyncEvent is one Success/Error event emitted by a synchronization
// run. The orchestrator enriches run outcomes into this structure.
type SyncEvent struct {
	EventID      string
	RunID        string
	EventType    string
	Kind         string
	PayloadJSON  string
	CreatedAtUTC time.Time
}
