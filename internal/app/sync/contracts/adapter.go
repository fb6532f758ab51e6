package contracts

import (
	"context"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/murkotick/marketplace-sync-service/internal/app/sync/domain"
)

// Paging carries explicit limit/offset for bulk pulls. The core pages
// with an accumulation loop; adapters only translate these values into
// the platform's paging parameters.
type Paging struct {
	Limit  int
	Offset int
}

// RawPage is one page of a remote response. Items keep the platform's
// raw shape; Size is the total collection size the API reported, used
// by the paging loop to decide whether more pages remain.
type RawPage struct {
	Items  []*structpb.Struct
	Size   int
	Limit  int
	Offset int
}

// Adapter identifies a platform integration. Everything else the core
// needs is expressed as optional capabilities below; components check
// which capabilities a given adapter implements instead of assuming a
// fixed surface.
type Adapter interface {
	Platform() string
	Kind() domain.Kind
}

// BulkFetcher pulls entities page by page without a filter.
type BulkFetcher interface {
	FetchAll(ctx context.Context, paging Paging) (*RawPage, error)
}

// FilterFetcher fetches entities matching any of the given values for
// one filter key. Values per call are already size-bounded by the core.
type FilterFetcher interface {
	FetchByFilter(ctx context.Context, key string, values []string, paging Paging) (*RawPage, error)
}

// Creator creates target records in one batched call. The returned
// page carries one item per payload, success or structured API error.
type Creator interface {
	Create(ctx context.Context, payloads []*domain.CreatePayload) (*RawPage, error)
}

// Updater updates target records in one batched call, same result
// shape as Creator.
type Updater interface {
	Update(ctx context.Context, payloads []*domain.UpdatePayload) (*RawPage, error)
}

// Converter owns the platform-specific parsing of raw items. The core
// never inspects raw payloads itself.
type Converter interface {
	ConvertEntity(item *structpb.Struct) (*domain.Entity, error)
	ConvertError(item *structpb.Struct) *domain.ErrorRecord
}

// CodeLookup marks an adapter whose platform can be filtered by an
// external/business code, and names the filter key to use.
type CodeLookup interface {
	CodeFilterKey() string
}

// AttributeLookup marks an adapter whose platform can be filtered by a
// designated attribute. It maps a configured attribute id to a filter
// key, or reports that the attribute is not filterable.
type AttributeLookup interface {
	AttributeFilterKey(attributeID string) (string, bool)
}
