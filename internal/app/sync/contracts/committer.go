package contracts

import (
	"context"
	"time"

	commitplan "github.com/murkotick/marketplace-sync-service/internal/pkg/committer"
)

// Committer is the small abstraction the matching resolver and the
// orchestrator call to apply a collection of mutations atomically. It
// keeps them independent of Spanner driver details and lets tests swap
// in an in-memory implementation.
type Committer interface {
	// Apply atomically applies the provided mutation plan and returns
	// the commit timestamp (zero for an empty plan).
	Apply(ctx context.Context, plan *commitplan.Plan) (time.Time, error)
}
