package contracts

import (
	"context"

	"github.com/murkotick/marketplace-sync-service/internal/app/sync/domain"
)

// RelationRepo persists source-id -> target-id mappings. It is the one
// mutable shared resource crossing component boundaries; callers must
// not assume repository state is stable across an awaited remote call.
type RelationRepo interface {
	// Create persists a new relation. Returns false when a relation for
	// the same source id already exists.
	Create(ctx context.Context, rel *domain.Relation) (bool, error)

	GetBySourceIDs(ctx context.Context, kind domain.Kind, ids []string) ([]*domain.Relation, error)
	GetBySourceID(ctx context.Context, kind domain.Kind, id string) (*domain.Relation, error)

	GetByTargetIDs(ctx context.Context, kind domain.Kind, ids []string) ([]*domain.Relation, error)
	GetByTargetID(ctx context.Context, kind domain.Kind, id string) (*domain.Relation, error)

	// Destroy removes a relation. Provided for external callers; the
	// sync core never invokes it.
	Destroy(ctx context.Context, rel *domain.Relation) (bool, error)
}
