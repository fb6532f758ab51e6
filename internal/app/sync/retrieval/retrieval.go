// Package retrieval fetches entities by lists of filter values in
// size-bounded batches, re-associating every requested value with its
// entity or a per-value error. Output always has one result per
// requested value.
package retrieval

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	contracts "github.com/murkotick/marketplace-sync-service/internal/app/sync/contracts"
	"github.com/murkotick/marketplace-sync-service/internal/app/sync/domain"
	"github.com/murkotick/marketplace-sync-service/internal/pkg/chunk"
	"github.com/murkotick/marketplace-sync-service/internal/pkg/future"
	"github.com/murkotick/marketplace-sync-service/internal/pkg/pool"
)

// defaultPageLimit bounds one page of a paginated remote fetch.
const defaultPageLimit = 100

// Fetcher issues filter and bulk fetches through the request pool.
type Fetcher struct {
	pool      *pool.Pool
	limits    chunk.Limits
	pageLimit int
}

// New validates the batching limits once, at construction.
func New(p *pool.Pool, limits chunk.Limits, pageLimit int) (*Fetcher, error) {
	if p == nil {
		return nil, fmt.Errorf("retrieval: pool is required")
	}
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	if pageLimit < 0 {
		return nil, fmt.Errorf("retrieval: page limit must not be negative, got %d", pageLimit)
	}
	if pageLimit == 0 {
		pageLimit = defaultPageLimit
	}
	return &Fetcher{pool: p, limits: limits, pageLimit: pageLimit}, nil
}

// GetByFilter fetches the entities matching values on the given filter
// key. Values are chunked under the byte budget, one pool task fetches
// each chunk (paging through all its result pages), and the settled
// chunks are re-associated so that the returned slice has exactly one
// result per requested value, in request order. A failed chunk turns
// every one of its values into an ErrorRecord carrying the classified
// reason; the future itself rejects only when every chunk failed.
//
// valueOf extracts the filter value an entity was matched by, so the
// re-association can detect not-found and duplicate conditions.
func (f *Fetcher) GetByFilter(
	ctx context.Context,
	src contracts.FilterFetcher,
	conv contracts.Converter,
	key string,
	values []string,
	valueOf func(*domain.Entity) string,
) *future.Future[[]domain.Result] {
	if conv == nil {
		return future.Rejected[[]domain.Result](domain.ErrMissingConverter)
	}

	chunks, err := chunk.BySize(values, f.limits)
	if err != nil {
		return future.Rejected[[]domain.Result](err)
	}
	if len(chunks) == 0 {
		return future.Resolved[[]domain.Result](nil)
	}

	futs := make([]*future.Future[[]*domain.Entity], len(chunks))
	for i, ch := range chunks {
		futs[i] = pool.Submit(f.pool, ctx, func(taskCtx context.Context) ([]*domain.Entity, error) {
			items, err := f.fetchPages(taskCtx, func(p contracts.Paging) (*contracts.RawPage, error) {
				return src.FetchByFilter(taskCtx, key, ch, p)
			})
			if err != nil {
				return nil, err
			}
			return convertAll(conv, items)
		})
	}

	settled := future.Settle(ctx, futs)
	return future.Then(settled, func(results []future.SettleResult[[]*domain.Entity]) ([]domain.Result, error) {
		out := make([]domain.Result, 0, len(values))
		for i, ch := range chunks {
			res := results[i]
			if res.State == future.StateRejected {
				for _, v := range ch {
					out = append(out, domain.Fail(domain.NewErrorRecord(v, res.Reason)))
				}
				continue
			}
			out = append(out, reassociate(ch, res.Value, valueOf)...)
		}
		return out, nil
	})
}

// FetchAll pulls every entity of the adapter's kind through the pool,
// accumulating pages with an explicit offset loop.
func (f *Fetcher) FetchAll(ctx context.Context, src contracts.BulkFetcher, conv contracts.Converter) *future.Future[[]*domain.Entity] {
	if conv == nil {
		return future.Rejected[[]*domain.Entity](domain.ErrMissingConverter)
	}
	return pool.Submit(f.pool, ctx, func(taskCtx context.Context) ([]*domain.Entity, error) {
		items, err := f.fetchPages(taskCtx, func(p contracts.Paging) (*contracts.RawPage, error) {
			return src.FetchAll(taskCtx, p)
		})
		if err != nil {
			return nil, err
		}
		return convertAll(conv, items)
	})
}

// fetchPages accumulates all pages of one fetch. Paging stops when a
// page comes back empty or the reported collection size is reached; a
// response without a size is treated as complete after the first short
// page.
func (f *Fetcher) fetchPages(ctx context.Context, fetch func(contracts.Paging) (*contracts.RawPage, error)) ([]*structpb.Struct, error) {
	var items []*structpb.Struct
	offset := 0
	for {
		page, err := fetch(contracts.Paging{Limit: f.pageLimit, Offset: offset})
		if err != nil {
			return nil, err
		}
		if page == nil || len(page.Items) == 0 {
			return items, nil
		}
		items = append(items, page.Items...)
		offset += len(page.Items)
		if page.Size > 0 && offset >= page.Size {
			return items, nil
		}
		if page.Size == 0 && len(page.Items) < f.pageLimit {
			return items, nil
		}
	}
}

func convertAll(conv contracts.Converter, items []*structpb.Struct) ([]*domain.Entity, error) {
	out := make([]*domain.Entity, 0, len(items))
	for _, item := range items {
		e, err := conv.ConvertEntity(item)
		if err != nil {
			return nil, fmt.Errorf("convert remote item: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// reassociate matches each requested value of one chunk against the
// entities the chunk's fetch returned. Per value: exactly one match
// yields the entity, none yields not_found, several yield duplicate.
func reassociate(requested []string, entities []*domain.Entity, valueOf func(*domain.Entity) string) []domain.Result {
	byValue := make(map[string][]*domain.Entity, len(entities))
	for _, e := range entities {
		v := valueOf(e)
		byValue[v] = append(byValue[v], e)
	}

	out := make([]domain.Result, 0, len(requested))
	for _, v := range requested {
		matches := byValue[v]
		switch len(matches) {
		case 0:
			out = append(out, domain.Fail(domain.NewErrorRecord(v, domain.ErrValueNotFound)))
		case 1:
			out = append(out, domain.OK(matches[0]))
		default:
			out = append(out, domain.Fail(domain.NewErrorRecord(v, domain.ErrDuplicateMatch)))
		}
	}
	return out
}
