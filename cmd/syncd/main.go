package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/spanner"

	contracts "github.com/murkotick/marketplace-sync-service/internal/app/sync/contracts"
	"github.com/murkotick/marketplace-sync-service/internal/app/sync/diff"
	"github.com/murkotick/marketplace-sync-service/internal/app/sync/domain"
	"github.com/murkotick/marketplace-sync-service/internal/app/sync/matching"
	"github.com/murkotick/marketplace-sync-service/internal/app/sync/repo"
	"github.com/murkotick/marketplace-sync-service/internal/app/sync/retrieval"
	"github.com/murkotick/marketplace-sync-service/internal/app/sync/usecases/run_sync"
	"github.com/murkotick/marketplace-sync-service/internal/config"
	"github.com/murkotick/marketplace-sync-service/internal/pkg/clock"
	committer "github.com/murkotick/marketplace-sync-service/internal/pkg/committer"
	"github.com/murkotick/marketplace-sync-service/internal/pkg/pool"
	"github.com/murkotick/marketplace-sync-service/internal/transport/httpadapter"
)

func main() {
	cfgPath := env("SYNC_CONFIG", "sync.yaml")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle SIGINT/SIGTERM.
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		log.Println("shutdown signal received")
		cancel()
	}()

	client, err := spanner.NewClient(ctx, cfg.SpannerDatabase)
	if err != nil {
		log.Fatalf("spanner.NewClient: %v", err)
	}
	defer client.Close()

	clk := clock.RealClock{}
	relations := repo.NewRelationRepo(client, clk)
	eventRepo := repo.NewEventRepo()
	cm := committer.NewAdapter(client)

	p, err := pool.New(cfg.PoolConfig(), clk)
	if err != nil {
		log.Fatalf("request pool: %v", err)
	}
	fetcher, err := retrieval.New(p, cfg.ChunkLimits(), cfg.Batch.PageLimit)
	if err != nil {
		log.Fatalf("retrieval: %v", err)
	}

	interactors := make([]*run_sync.Interactor, 0, len(cfg.Syncs))
	for _, s := range cfg.Syncs {
		source, err := newAdapter(s.Source, domain.Kind(s.Kind))
		if err != nil {
			log.Fatalf("sync %s: source adapter: %v", s.Kind, err)
		}
		target, err := newAdapter(s.Target, domain.Kind(s.Kind))
		if err != nil {
			log.Fatalf("sync %s: target adapter: %v", s.Kind, err)
		}
		resolver, err := matching.New(relations, fetcher, s.AttributeID)
		if err != nil {
			log.Fatalf("sync %s: resolver: %v", s.Kind, err)
		}
		it, err := run_sync.NewInteractor(source, target, relations, eventRepo, cm,
			fetcher, resolver, p, clk, diff.StatusMap(s.Statuses))
		if err != nil {
			log.Fatalf("sync %s: interactor: %v", s.Kind, err)
		}
		interactors = append(interactors, it)
	}

	interval := cfg.Interval()
	log.Printf("syncd running %d sync(s) every %s", len(interactors), interval)
	runAll(ctx, interactors)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("syncd stopped")
			return
		case <-ticker.C:
			runAll(ctx, interactors)
		}
	}
}

func runAll(ctx context.Context, interactors []*run_sync.Interactor) {
	for _, it := range interactors {
		report, err := it.Execute(ctx)
		if err != nil {
			log.Printf("sync %s run %s: %v", it.Source.Kind(), report.RunID, err)
			continue
		}
		log.Printf("sync %s run %s: %d created, %d updated, %d unresolved",
			it.Source.Kind(), report.RunID,
			countOK(report.Creates), countOK(report.Updates), len(report.ResolveFailed))
	}
}

func countOK(results []domain.Result) int {
	n := 0
	for _, r := range results {
		if !r.Failed() {
			n++
		}
	}
	return n
}

func newAdapter(ep config.Endpoint, kind domain.Kind) (contracts.Adapter, error) {
	return httpadapter.New(httpadapter.Config{
		Platform:            ep.Platform,
		Kind:                kind,
		BaseURL:             ep.BaseURL,
		Token:               ep.Token,
		RateLimit:           ep.RateLimit,
		RateBurst:           ep.RateBurst,
		CodeFilterKey:       ep.CodeFilterKey,
		AttributeFilterKeys: ep.AttributeFilterKeys,
	})
}

func env(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
