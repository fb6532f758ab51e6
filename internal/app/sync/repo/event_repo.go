package repo

import (
	"cloud.google.com/go/spanner"

	contracts "github.com/murkotick/marketplace-sync-service/internal/app/sync/contracts"
	"github.com/murkotick/marketplace-sync-service/internal/models/m_syncevent"
)

// EventRepo is the Spanner implementation of the sync event repository.
// It returns *spanner.Mutation but never applies it.
type EventRepo struct{}

func NewEventRepo() *EventRepo {
	return &EventRepo{}
}

func (r *EventRepo) InsertMut(e *contracts.SyncEvent) *spanner.Mutation {
	if e == nil {
		return nil
	}

	values := m_syncevent.BuildInsertMap(
		e.EventID,
		e.RunID,
		e.EventType,
		e.Kind,
		e.PayloadJSON,
		e.CreatedAtUTC,
	)
	return m_syncevent.InsertMutation(values)
}
