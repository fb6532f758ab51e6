package m_syncevent

// Field constants for the sync_events table.
const (
	TableName = "sync_events"

	ColEventID   = "event_id"
	ColRunID     = "run_id"
	ColEventType = "event_type"
	ColKind      = "kind"
	ColPayload   = "payload"
	ColCreatedAt = "created_at"
)
