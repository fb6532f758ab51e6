// Package matching decides, for a batch of source entities, which ones
// already have a target record. It consults the persisted relation
// table first, then an ordered chain of fallback lookups (external
// code, designated attribute). Every fallback hit persists a relation
// immediately so subsequent runs take the cheap relation-table path.
package matching

import (
	"context"
	"fmt"

	contracts "github.com/murkotick/marketplace-sync-service/internal/app/sync/contracts"
	"github.com/murkotick/marketplace-sync-service/internal/app/sync/domain"
	"github.com/murkotick/marketplace-sync-service/internal/app/sync/retrieval"
)

// Match pairs a source entity with its resolved target. Target is nil
// when the match came from the relation table alone; the diff engine
// then only has the target id to address the update.
type Match struct {
	Source   *domain.Entity
	TargetID string
	Target   *domain.Entity
}

// Outcome is the resolver's split of one batch: Matched are update
// candidates, Unmatched are creation candidates, Failed are items that
// hit a non-not-found lookup error and take part in neither.
type Outcome struct {
	Matched   []Match
	Unmatched []*domain.Entity
	Failed    []*domain.ErrorRecord
}

// Resolver runs the fallback chain against a target adapter.
type Resolver struct {
	relations   contracts.RelationRepo
	fetcher     *retrieval.Fetcher
	attributeID string
}

// New wires a resolver. attributeID selects the designated attribute
// for the third fallback strategy; empty disables it.
func New(relations contracts.RelationRepo, fetcher *retrieval.Fetcher, attributeID string) (*Resolver, error) {
	if relations == nil {
		return nil, fmt.Errorf("matching: relation repository is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("matching: retrieval fetcher is required")
	}
	return &Resolver{relations: relations, fetcher: fetcher, attributeID: attributeID}, nil
}

// Resolve runs the chain: relation table, then external-code lookup,
// then attribute lookup. Strategies run strictly in that order and an
// item matched by an earlier strategy is never re-checked by a later
// one.
func (r *Resolver) Resolve(ctx context.Context, target contracts.Adapter, sources []*domain.Entity) (*Outcome, error) {
	out := &Outcome{}
	kind := target.Kind()

	// 1. One repository call for the whole batch.
	ids := make([]string, 0, len(sources))
	for _, s := range sources {
		ids = append(ids, s.ID)
	}
	rels, err := r.relations.GetBySourceIDs(ctx, kind, ids)
	if err != nil {
		return nil, fmt.Errorf("matching: load relations: %w", err)
	}
	targetBySource := make(map[string]string, len(rels))
	for _, rel := range rels {
		targetBySource[rel.SourceID] = rel.TargetID
	}

	unmatched := make([]*domain.Entity, 0, len(sources))
	for _, s := range sources {
		if targetID, ok := targetBySource[s.ID]; ok {
			out.Matched = append(out.Matched, Match{Source: s, TargetID: targetID})
			continue
		}
		unmatched = append(unmatched, s)
	}

	// 2. External-code lookup, when the adapter supports it.
	if cl, ok := target.(contracts.CodeLookup); ok && len(unmatched) > 0 {
		if key := cl.CodeFilterKey(); key != "" {
			unmatched, err = r.lookupStep(ctx, target, kind, unmatched, out,
				key,
				func(e *domain.Entity) string { return e.ExternalCode },
			)
			if err != nil {
				return nil, err
			}
		}
	}

	// 3. Designated-attribute lookup, when configured and supported.
	if al, ok := target.(contracts.AttributeLookup); ok && r.attributeID != "" && len(unmatched) > 0 {
		if key, filterable := al.AttributeFilterKey(r.attributeID); filterable {
			attrID := r.attributeID
			unmatched, err = r.lookupStep(ctx, target, kind, unmatched, out,
				key,
				func(e *domain.Entity) string { return e.Attribute(attrID) },
			)
			if err != nil {
				return nil, err
			}
		}
	}

	// 4. Whatever is left is a creation candidate.
	out.Unmatched = unmatched
	return out, nil
}

// lookupStep fetches targets for the unmatched sources by one filter
// value and persists a relation for every hit. It returns the sources
// that remain unmatched (value absent or genuinely not found).
func (r *Resolver) lookupStep(
	ctx context.Context,
	target contracts.Adapter,
	kind domain.Kind,
	unmatched []*domain.Entity,
	out *Outcome,
	filterKey string,
	valueOf func(*domain.Entity) string,
) ([]*domain.Entity, error) {
	tf, ok := target.(contracts.FilterFetcher)
	if !ok {
		return unmatched, nil
	}
	conv, ok := target.(contracts.Converter)
	if !ok {
		return unmatched, domain.ErrMissingConverter
	}

	// Sources without a usable value skip this strategy entirely.
	values := make([]string, 0, len(unmatched))
	sourcesByValue := make(map[string][]*domain.Entity, len(unmatched))
	remaining := make([]*domain.Entity, 0, len(unmatched))
	for _, s := range unmatched {
		v := valueOf(s)
		if v == "" {
			remaining = append(remaining, s)
			continue
		}
		if _, seen := sourcesByValue[v]; !seen {
			values = append(values, v)
		}
		sourcesByValue[v] = append(sourcesByValue[v], s)
	}
	if len(values) == 0 {
		return remaining, nil
	}

	results, err := r.fetcher.GetByFilter(ctx, tf, conv, filterKey, values, valueOf).Await(ctx)
	if err != nil {
		return nil, fmt.Errorf("matching: %s lookup: %w", filterKey, err)
	}

	for i, v := range values {
		res := results[i]
		for _, src := range sourcesByValue[v] {
			switch {
			case res.Failed() && res.Err.Kind == domain.KindNotFound:
				remaining = append(remaining, src)

			case res.Failed():
				rec := *res.Err
				rec.Value = src.ID
				out.Failed = append(out.Failed, &rec)

			default:
				if err := r.persistMatch(ctx, kind, src, res.Entity, out); err != nil {
					return nil, err
				}
			}
		}
	}
	return remaining, nil
}

// persistMatch stores the relation for a fallback hit before the item
// is treated as matched. The repository may already hold a relation
// created since our batch read; in that case its target wins.
func (r *Resolver) persistMatch(ctx context.Context, kind domain.Kind, src, tgt *domain.Entity, out *Outcome) error {
	created, err := r.relations.Create(ctx, &domain.Relation{
		SourceID: src.ID,
		TargetID: tgt.ID,
		Kind:     kind,
	})
	if err != nil {
		return fmt.Errorf("matching: persist relation %s -> %s: %w", src.ID, tgt.ID, err)
	}
	if created {
		out.Matched = append(out.Matched, Match{Source: src, TargetID: tgt.ID, Target: tgt})
		return nil
	}

	existing, err := r.relations.GetBySourceID(ctx, kind, src.ID)
	if err != nil {
		return fmt.Errorf("matching: re-read relation for %s: %w", src.ID, err)
	}
	m := Match{Source: src, TargetID: tgt.ID, Target: tgt}
	if existing != nil {
		m.TargetID = existing.TargetID
		if existing.TargetID != tgt.ID {
			m.Target = nil
		}
	}
	out.Matched = append(out.Matched, m)
	return nil
}
