package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"
)

// Kind names the business entity kinds the synchronizer reconciles.
type Kind string

const (
	KindOrder Kind = "order"
	KindStock Kind = "stock"
	KindPrice Kind = "price"
)

// Entity is a business record mirrored between the source system and
// the target marketplace. It is built once by an adapter's convert step
// and treated as immutable afterwards.
//
// ID is assigned by the system the entity was fetched from; Article and
// ExternalCode are business keys usable for fallback matching. Optional
// fields are pointers so "absent" is distinguishable from a zero value.
// Original keeps the raw remote payload for diagnostics.
type Entity struct {
	ID           string
	Kind         Kind
	Article      string
	ExternalCode string

	Status       string
	Description  string
	Moment       *time.Time
	ShipmentDate *time.Time
	Price        *decimal.Decimal
	Quantity     *decimal.Decimal
	Attributes   map[string]string

	Original *structpb.Struct
}

// Attribute returns the value of a designated attribute, or "".
func (e *Entity) Attribute(id string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[id]
}

// CreatePayload carries the fields for creating a target record from an
// unmatched source entity. It never carries a target id.
type CreatePayload struct {
	Kind         Kind
	SourceID     string
	Article      string
	ExternalCode string

	Status       string
	Description  string
	Moment       *time.Time
	ShipmentDate *time.Time
	Price        *decimal.Decimal
	Quantity     *decimal.Decimal
	Attributes   map[string]string
}

// UpdatePayload is a sparse update for an existing target record: only
// fields that differ from the target are populated. TargetID is always
// set.
type UpdatePayload struct {
	Kind     Kind
	SourceID string
	TargetID string

	Status       *string
	Description  *string
	Moment       *time.Time
	ShipmentDate *time.Time
	Price        *decimal.Decimal
	Quantity     *decimal.Decimal
	Attributes   map[string]string
}

// IsEmpty reports whether the payload carries no field changes.
func (u *UpdatePayload) IsEmpty() bool {
	return u.Status == nil &&
		u.Description == nil &&
		u.Moment == nil &&
		u.ShipmentDate == nil &&
		u.Price == nil &&
		u.Quantity == nil &&
		len(u.Attributes) == 0
}

// Relation maps a source entity id to its target counterpart. Created
// only after a match is established and never mutated; destruction is
// an explicit caller action outside this core.
type Relation struct {
	SourceID  string
	TargetID  string
	Kind      Kind
	CreatedAt time.Time
}

// Result is the per-item outcome of a batch operation: exactly one of
// Entity or Err is set. Batch outputs always have one Result per input
// item.
type Result struct {
	Entity *Entity
	Err    *ErrorRecord
}

// OK wraps a successfully retrieved or written entity.
func OK(e *Entity) Result {
	return Result{Entity: e}
}

// Fail wraps a per-item failure.
func Fail(rec *ErrorRecord) Result {
	return Result{Err: rec}
}

// Failed reports whether the result carries an error record.
func (r Result) Failed() bool {
	return r.Err != nil
}
