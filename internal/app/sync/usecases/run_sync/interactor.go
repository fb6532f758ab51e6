package run_sync

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	contracts "github.com/murkotick/marketplace-sync-service/internal/app/sync/contracts"
	"github.com/murkotick/marketplace-sync-service/internal/app/sync/diff"
	"github.com/murkotick/marketplace-sync-service/internal/app/sync/domain"
	"github.com/murkotick/marketplace-sync-service/internal/app/sync/matching"
	"github.com/murkotick/marketplace-sync-service/internal/app/sync/retrieval"
	shared "github.com/murkotick/marketplace-sync-service/internal/app/sync/usecases/shared"
	"github.com/murkotick/marketplace-sync-service/internal/pkg/clock"
	commitplan "github.com/murkotick/marketplace-sync-service/internal/pkg/committer"
	"github.com/murkotick/marketplace-sync-service/internal/pkg/future"
	"github.com/murkotick/marketplace-sync-service/internal/pkg/pool"
)

// Event type names persisted with sync events.
const (
	EventSuccess = "sync.success"
	EventError   = "sync.error"
)

// Report is the outcome of one synchronization run. Creates and
// Updates hold one result per dispatched payload; ResolveFailed holds
// items that failed during matching and took part in neither batch.
type Report struct {
	RunID         string
	Creates       []domain.Result
	Updates       []domain.Result
	ResolveFailed []*domain.ErrorRecord
}

// Interactor drives one synchronization run for an entity kind: pull
// source entities, resolve matches, compute diffs, dispatch batched
// create/update calls through the pool, and persist one event per
// batch. Any panic or run-level error is caught at this boundary and
// reported as an Error event; relations persisted during matching are
// not rolled back.
type Interactor struct {
	Source    contracts.Adapter
	Target    contracts.Adapter
	Relations contracts.RelationRepo
	EventRepo contracts.EventRepo
	Committer contracts.Committer
	Fetcher   *retrieval.Fetcher
	Resolver  *matching.Resolver
	Pool      *pool.Pool
	Clock     clock.Clock
	Statuses  diff.StatusMap
}

func NewInteractor(
	source, target contracts.Adapter,
	relations contracts.RelationRepo,
	eventRepo contracts.EventRepo,
	committer contracts.Committer,
	fetcher *retrieval.Fetcher,
	resolver *matching.Resolver,
	p *pool.Pool,
	clk clock.Clock,
	statuses diff.StatusMap,
) (*Interactor, error) {
	if source == nil || target == nil {
		return nil, fmt.Errorf("run_sync: source and target adapters are required")
	}
	if source.Kind() != target.Kind() {
		return nil, fmt.Errorf("run_sync: adapter kinds differ: %s vs %s", source.Kind(), target.Kind())
	}
	if _, ok := source.(contracts.BulkFetcher); !ok {
		return nil, fmt.Errorf("run_sync: source adapter must support bulk fetch")
	}
	if _, ok := source.(contracts.Converter); !ok {
		return nil, domain.ErrMissingConverter
	}
	if relations == nil || eventRepo == nil || committer == nil || fetcher == nil || resolver == nil || p == nil {
		return nil, fmt.Errorf("run_sync: missing collaborator")
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Interactor{
		Source:    source,
		Target:    target,
		Relations: relations,
		EventRepo: eventRepo,
		Committer: committer,
		Fetcher:   fetcher,
		Resolver:  resolver,
		Pool:      p,
		Clock:     clk,
		Statuses:  statuses,
	}, nil
}

// Execute runs one synchronization pass. The returned error reflects a
// run-level failure that was already reported as an Error event; per-
// item failures live in the report, never abort siblings, and leave
// Execute's error nil.
func (it *Interactor) Execute(ctx context.Context) (report *Report, err error) {
	report = &Report{RunID: uuid.New().String()}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("run_sync: panic: %v", rec)
		}
		if err != nil {
			it.emitRunError(ctx, report.RunID, err)
		}
	}()

	// 1. Pull all source entities.
	sources, err := it.Fetcher.FetchAll(ctx, it.Source.(contracts.BulkFetcher), it.Source.(contracts.Converter)).Await(ctx)
	if err != nil {
		return report, fmt.Errorf("fetch source entities: %w", err)
	}
	if len(sources) == 0 {
		return report, nil
	}

	// 2. Resolve matches against the relation table and fallbacks.
	outcome, err := it.Resolver.Resolve(ctx, it.Target, sources)
	if err != nil {
		return report, fmt.Errorf("resolve matches: %w", err)
	}
	report.ResolveFailed = outcome.Failed

	// 3. Compute sparse updates and creation payloads.
	updates := make([]*domain.UpdatePayload, 0, len(outcome.Matched))
	for _, m := range outcome.Matched {
		if u := diff.Update(m.Source, m.Target, m.TargetID, it.Statuses); u != nil {
			updates = append(updates, u)
		}
	}
	creates := make([]*domain.CreatePayload, 0, len(outcome.Unmatched))
	for _, s := range outcome.Unmatched {
		creates = append(creates, diff.Create(s, it.Statuses))
	}

	// 4. Dispatch both batches through the pool and settle.
	var createFut, updateFut *future.Future[*contracts.RawPage]
	if len(creates) > 0 {
		createFut = it.submitCreate(ctx, creates)
	}
	if len(updates) > 0 {
		updateFut = it.submitUpdate(ctx, updates)
	}

	conv, _ := it.Target.(contracts.Converter)
	if createFut != nil {
		values := make([]string, len(creates))
		for i, c := range creates {
			values[i] = c.SourceID
		}
		report.Creates = it.collectBatch(ctx, createFut, conv, values)
	}
	if updateFut != nil {
		values := make([]string, len(updates))
		for i, u := range updates {
			values[i] = u.SourceID
		}
		report.Updates = it.collectBatch(ctx, updateFut, conv, values)
	}

	// 5. One event per dispatched batch, applied in a single plan.
	it.emitBatches(ctx, report)
	return report, nil
}

func (it *Interactor) submitCreate(ctx context.Context, creates []*domain.CreatePayload) *future.Future[*contracts.RawPage] {
	creator, ok := it.Target.(contracts.Creator)
	if !ok {
		return future.Rejected[*contracts.RawPage](fmt.Errorf("run_sync: target adapter does not support create"))
	}
	return pool.Submit(it.Pool, ctx, func(taskCtx context.Context) (*contracts.RawPage, error) {
		return creator.Create(taskCtx, creates)
	})
}

func (it *Interactor) submitUpdate(ctx context.Context, updates []*domain.UpdatePayload) *future.Future[*contracts.RawPage] {
	updater, ok := it.Target.(contracts.Updater)
	if !ok {
		return future.Rejected[*contracts.RawPage](fmt.Errorf("run_sync: target adapter does not support update"))
	}
	return pool.Submit(it.Pool, ctx, func(taskCtx context.Context) (*contracts.RawPage, error) {
		return updater.Update(taskCtx, updates)
	})
}

// collectBatch waits for one batch call and pairs the response items
// with the dispatched payloads. A rejected call yields one ErrorRecord
// per payload; a response item that is a structured API error becomes
// an api ErrorRecord for its payload.
func (it *Interactor) collectBatch(ctx context.Context, fut *future.Future[*contracts.RawPage], conv contracts.Converter, values []string) []domain.Result {
	page, err := fut.Await(ctx)
	if err != nil {
		out := make([]domain.Result, len(values))
		for i, v := range values {
			out[i] = domain.Fail(domain.NewErrorRecord(v, err))
		}
		return out
	}

	out := make([]domain.Result, 0, len(values))
	for i, v := range values {
		if conv == nil || page == nil || i >= len(page.Items) {
			out = append(out, domain.Fail(domain.NewErrorRecord(v,
				fmt.Errorf("run_sync: no response item for %s", v))))
			continue
		}
		item := page.Items[i]
		if rec := conv.ConvertError(item); rec != nil {
			attributed := *rec
			attributed.Value = v
			out = append(out, domain.Fail(&attributed))
			continue
		}
		entity, convErr := conv.ConvertEntity(item)
		if convErr != nil {
			out = append(out, domain.Fail(domain.NewErrorRecord(v, convErr)))
			continue
		}
		out = append(out, domain.OK(entity))
	}
	return out
}

// emitBatches persists one Success event per dispatched batch. Event
// emission is fire-and-forget: a failing committer does not fail the
// run.
func (it *Interactor) emitBatches(ctx context.Context, report *Report) {
	now := it.Clock.Now()
	plan := commitplan.NewPlan()

	addEvent := func(batch string, results []domain.Result) {
		if len(results) == 0 {
			return
		}
		payload, err := shared.MarshalResultsPayload(batch, results)
		if err != nil {
			return
		}
		plan.Add(it.EventRepo.InsertMut(&contracts.SyncEvent{
			EventID:      uuid.New().String(),
			RunID:        report.RunID,
			EventType:    EventSuccess,
			Kind:         string(it.Source.Kind()),
			PayloadJSON:  payload,
			CreatedAtUTC: now,
		}))
	}

	addEvent("update", report.Updates)
	addEvent("create", report.Creates)

	if len(report.ResolveFailed) > 0 {
		results := make([]domain.Result, 0, len(report.ResolveFailed))
		for _, rec := range report.ResolveFailed {
			results = append(results, domain.Fail(rec))
		}
		if payload, err := shared.MarshalResultsPayload("resolve", results); err == nil {
			plan.Add(it.EventRepo.InsertMut(&contracts.SyncEvent{
				EventID:      uuid.New().String(),
				RunID:        report.RunID,
				EventType:    EventError,
				Kind:         string(it.Source.Kind()),
				PayloadJSON:  payload,
				CreatedAtUTC: now,
			}))
		}
	}

	_, _ = it.Committer.Apply(ctx, plan)
}

func (it *Interactor) emitRunError(ctx context.Context, runID string, runErr error) {
	payload, err := shared.MarshalRunErrorPayload("run", runErr.Error())
	if err != nil {
		return
	}
	plan := commitplan.NewPlan()
	plan.Add(it.EventRepo.InsertMut(&contracts.SyncEvent{
		EventID:      uuid.New().String(),
		RunID:        runID,
		EventType:    EventError,
		Kind:         string(it.Source.Kind()),
		PayloadJSON:  payload,
		CreatedAtUTC: it.Clock.Now(),
	}))
	_, _ = it.Committer.Apply(ctx, plan)
}
