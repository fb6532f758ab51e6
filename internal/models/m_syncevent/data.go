package m_syncevent

import (
	"time"

	"cloud.google.com/go/spanner"
)

// BuildInsertMap constructs a map with fields for a sync event row.
func BuildInsertMap(eventID, runID, eventType, kind, payload string, createdAt time.Time) map[string]interface{} {
	return map[string]interface{}{
		ColEventID:   eventID,
		ColRunID:     runID,
		ColEventType: eventType,
		ColKind:      kind,
		ColPayload:   payload,
		ColCreatedAt: createdAt,
	}
}

// InsertMutation constructs a mutation for the sync_events table.
func InsertMutation(values map[string]interface{}) *spanner.Mutation {
	cols := make([]string, 0, len(values))
	vals := make([]interface{}, 0, len(values))
	for c, v := range values {
		cols = append(cols, c)
		vals = append(vals, v)
	}
	return spanner.Insert(TableName, cols, vals)
}
