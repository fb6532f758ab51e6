package m_relation

// Field constants for the relations table.
const (
	TableName = "relations"

	ColRelationID = "relation_id"
	ColKind       = "kind"
	ColSourceID   = "source_id"
	ColTargetID   = "target_id"
	ColCreatedAt  = "created_at"
)

// BySourceIndex and ByTargetIndex back the unique lookups on either
// side of the mapping.
const (
	BySourceIndex = "relations_by_source"
	ByTargetIndex = "relations_by_target"
)
