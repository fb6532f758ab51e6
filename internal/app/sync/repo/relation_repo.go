package repo

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/spanner"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/murkotick/marketplace-sync-service/internal/app/sync/domain"
	"github.com/murkotick/marketplace-sync-service/internal/models/m_relation"
	"github.com/murkotick/marketplace-sync-service/internal/pkg/clock"
)

// errRelationExists aborts the create transaction when a relation for
// the same source already exists; it never leaves this package.
var errRelationExists = errors.New("relation already exists")

// RelationRepo is the Spanner implementation of the relation
// repository. Unlike the write-side mutation builders, Create/Destroy
// apply their mutations themselves: the matching resolver requires a
// relation to be durable before the next fallback strategy runs.
type RelationRepo struct {
	client *spanner.Client
	clk    clock.Clock
}

func NewRelationRepo(client *spanner.Client, clk clock.Clock) *RelationRepo {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &RelationRepo{client: client, clk: clk}
}

// Create inserts the relation unless one already exists for the same
// (kind, source_id). The existence check and insert run in one
// read-write transaction.
func (r *RelationRepo) Create(ctx context.Context, rel *domain.Relation) (bool, error) {
	createdAt := rel.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.clk.Now()
	}

	_, err := r.client.ReadWriteTransaction(ctx, func(ctx context.Context, tx *spanner.ReadWriteTransaction) error {
		stmt := spanner.Statement{
			SQL: `SELECT relation_id FROM relations
			      WHERE kind = @kind AND source_id = @sourceId`,
			Params: map[string]interface{}{
				"kind":     string(rel.Kind),
				"sourceId": rel.SourceID,
			},
		}
		iter := tx.Query(ctx, stmt)
		defer iter.Stop()

		_, err := iter.Next()
		if err == nil {
			return errRelationExists
		}
		if err != iterator.Done {
			return err
		}

		values := m_relation.BuildInsertMap(
			uuid.New().String(),
			string(rel.Kind),
			rel.SourceID,
			rel.TargetID,
			createdAt.UTC(),
		)
		return tx.BufferWrite([]*spanner.Mutation{m_relation.InsertMutation(values)})
	})
	if errors.Is(err, errRelationExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *RelationRepo) GetBySourceIDs(ctx context.Context, kind domain.Kind, ids []string) ([]*domain.Relation, error) {
	return r.query(ctx, kind, m_relation.ColSourceID, ids)
}

func (r *RelationRepo) GetBySourceID(ctx context.Context, kind domain.Kind, id string) (*domain.Relation, error) {
	return r.queryOne(ctx, kind, m_relation.ColSourceID, id)
}

func (r *RelationRepo) GetByTargetIDs(ctx context.Context, kind domain.Kind, ids []string) ([]*domain.Relation, error) {
	return r.query(ctx, kind, m_relation.ColTargetID, ids)
}

func (r *RelationRepo) GetByTargetID(ctx context.Context, kind domain.Kind, id string) (*domain.Relation, error) {
	return r.queryOne(ctx, kind, m_relation.ColTargetID, id)
}

// Destroy deletes the relation matching both sides of rel. Provided
// for external callers; the sync core never invokes it.
func (r *RelationRepo) Destroy(ctx context.Context, rel *domain.Relation) (bool, error) {
	deleted := false
	_, err := r.client.ReadWriteTransaction(ctx, func(ctx context.Context, tx *spanner.ReadWriteTransaction) error {
		stmt := spanner.Statement{
			SQL: `SELECT relation_id FROM relations
			      WHERE kind = @kind AND source_id = @sourceId AND target_id = @targetId`,
			Params: map[string]interface{}{
				"kind":     string(rel.Kind),
				"sourceId": rel.SourceID,
				"targetId": rel.TargetID,
			},
		}
		iter := tx.Query(ctx, stmt)
		defer iter.Stop()

		row, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return err
		}

		var relationID string
		if err := row.Columns(&relationID); err != nil {
			return err
		}
		deleted = true
		return tx.BufferWrite([]*spanner.Mutation{m_relation.DeleteMutation(relationID)})
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func (r *RelationRepo) query(ctx context.Context, kind domain.Kind, byCol string, ids []string) ([]*domain.Relation, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	stmt := spanner.Statement{
		SQL: `SELECT kind, source_id, target_id, created_at
		      FROM relations
		      WHERE kind = @kind AND ` + byCol + ` IN UNNEST(@ids)`,
		Params: map[string]interface{}{
			"kind": string(kind),
			"ids":  ids,
		},
	}

	iter := r.client.Single().Query(ctx, stmt)
	defer iter.Stop()

	var out []*domain.Relation
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		rel, err := scanRelation(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, nil
}

func (r *RelationRepo) queryOne(ctx context.Context, kind domain.Kind, byCol, id string) (*domain.Relation, error) {
	rels, err := r.query(ctx, kind, byCol, []string{id})
	if err != nil {
		return nil, err
	}
	if len(rels) == 0 {
		return nil, nil
	}
	return rels[0], nil
}

func scanRelation(row *spanner.Row) (*domain.Relation, error) {
	var (
		kind      string
		sourceID  string
		targetID  string
		createdAt time.Time
	)
	if err := row.Columns(&kind, &sourceID, &targetID, &createdAt); err != nil {
		return nil, err
	}
	return &domain.Relation{
		Kind:      domain.Kind(kind),
		SourceID:  sourceID,
		TargetID:  targetID,
		CreatedAt: createdAt.UTC(),
	}, nil
}
