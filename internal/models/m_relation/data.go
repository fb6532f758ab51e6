package m_relation

import (
	"time"

	"cloud.google.com/go/spanner"
)

// BuildInsertMap prepares the canonical fields for inserting a relation.
func BuildInsertMap(relationID, kind, sourceID, targetID string, createdAt time.Time) map[string]interface{} {
	return map[string]interface{}{
		ColRelationID: relationID,
		ColKind:       kind,
		ColSourceID:   sourceID,
		ColTargetID:   targetID,
		ColCreatedAt:  createdAt,
	}
}

// InsertMutation builds a spanner.Insert mutation for a relation using
// a map of values. Expected keys are the column names in fields.go.
func InsertMutation(values map[string]interface{}) *spanner.Mutation {
	cols := make([]string, 0, len(values))
	vals := make([]interface{}, 0, len(values))
	for col, v := range values {
		cols = append(cols, col)
		vals = append(vals, v)
	}
	return spanner.Insert(TableName, cols, vals)
}

// DeleteMutation builds a delete by primary key.
func DeleteMutation(relationID string) *spanner.Mutation {
	return spanner.Delete(TableName, spanner.Key{relationID})
}
