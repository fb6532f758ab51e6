package committer

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/spanner"
)

// Adapter applies a Plan to Spanner in one read-write transaction.
type Adapter struct {
	client *spanner.Client
}

func NewAdapter(client *spanner.Client) *Adapter {
	return &Adapter{client: client}
}

// Apply atomically applies the plan's mutations and returns the commit
// timestamp. An empty plan commits nothing and returns the zero time.
func (a *Adapter) Apply(ctx context.Context, plan *Plan) (time.Time, error) {
	if plan == nil || plan.IsEmpty() {
		return time.Time{}, nil
	}

	if a.client == nil {
		return time.Time{}, fmt.Errorf("committer: spanner client is nil")
	}

	ts, err := a.client.ReadWriteTransaction(ctx, func(ctx context.Context, tx *spanner.ReadWriteTransaction) error {
		return tx.BufferWrite(plan.Mutations())
	})
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}
