package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"github.com/jzy12306/lingtuzhipu-sub000/internal/data/graph"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/data/repos"
	types "github.com/jzy12306/lingtuzhipu-sub000/internal/domain"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/domain/kg"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/pkg/dbctx"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/platform/envutil"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/platform/logger"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/platform/neo4jdb"
)

// GraphIndexer drains the outbox into the Neo4j projection. Each event is
// retried with exponential backoff until its attempt budget runs out; events
// are independent, so one poisoned row never blocks the queue.
type GraphIndexer interface {
	// Start runs the drain loop until ctx is cancelled.
	Start(ctx context.Context)

	// DrainOnce processes at most one batch and reports how many events it
	// handled. Exposed for rebuilds and tests.
	DrainOnce(ctx context.Context) (int, error)

	// Backlog is the number of events still waiting for sync.
	Backlog(ctx context.Context) (int64, error)

	// ProjectionCounts reports node and edge counts of the Neo4j projection.
	ProjectionCounts(ctx context.Context) (nodes, edges int64, err error)

	// Rebuild re-mirrors the entire primary store into Neo4j. Safe to run on
	// a live projection: every write is an idempotent merge.
	Rebuild(ctx context.Context) error
}

type graphIndexer struct {
	db           *gorm.DB
	graphClient  *neo4jdb.Client
	entityRepo   repos.EntityRepo
	relationRepo repos.RelationRepo
	syncRepo     repos.SyncEventRepo
	log          *logger.Logger

	workers     int64
	batchSize   int
	interval    time.Duration
	maxAttempts int
	retryBase   time.Duration
}

func NewGraphIndexer(
	db *gorm.DB,
	graphClient *neo4jdb.Client,
	entityRepo repos.EntityRepo,
	relationRepo repos.RelationRepo,
	syncRepo repos.SyncEventRepo,
	baseLog *logger.Logger,
) GraphIndexer {
	return &graphIndexer{
		db:           db,
		graphClient:  graphClient,
		entityRepo:   entityRepo,
		relationRepo: relationRepo,
		syncRepo:     syncRepo,
		log:          baseLog.With("service", "GraphIndexer"),
		workers:      int64(envutil.Int("KG_INDEXER_WORKERS", 4)),
		batchSize:    envutil.Int("KG_INDEXER_BATCH", 64),
		interval:     envutil.Duration("KG_INDEXER_INTERVAL", 500*time.Millisecond),
		maxAttempts:  envutil.Int("KG_INDEXER_MAX_ATTEMPTS", 8),
		retryBase:    envutil.Duration("KG_INDEXER_RETRY_BASE", 250*time.Millisecond),
	}
}

func (s *graphIndexer) Start(ctx context.Context) {
	if !s.graphClient.Available() {
		s.log.Warn("neo4j not configured; graph indexer idle")
		return
	}
	graph.EnsureSchema(ctx, s.graphClient, s.log)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("graph indexer started",
		"workers", s.workers,
		"batch", s.batchSize,
		"interval", s.interval.String(),
	)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("graph indexer stopped")
			return
		case <-ticker.C:
			if n, err := s.DrainOnce(ctx); err != nil {
				s.log.Warn("outbox drain failed", "error", err)
			} else if n > 0 {
				s.log.Debug("outbox drained", "events", n)
			}
		}
	}
}

func (s *graphIndexer) DrainOnce(ctx context.Context) (int, error) {
	dbc := dbctx.Context{Ctx: ctx}
	events, err := s.syncRepo.GetPending(dbc, s.batchSize, s.maxAttempts)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	sem := semaphore.NewWeighted(s.workers)
	var wg sync.WaitGroup
	for _, ev := range events {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(ev *types.GraphSyncEvent) {
			defer sem.Release(1)
			defer wg.Done()
			s.process(ctx, ev)
		}(ev)
	}
	wg.Wait()
	return len(events), nil
}

func (s *graphIndexer) process(ctx context.Context, ev *types.GraphSyncEvent) {
	dbc := dbctx.Context{Ctx: ctx}

	err := s.syncOne(ctx, dbc, ev)
	if err == nil {
		if mErr := s.syncRepo.MarkProcessed(dbc, ev.ID); mErr != nil {
			s.log.Warn("mark processed failed", "event_id", ev.ID, "error", mErr)
		}
		return
	}

	attempts := ev.Attempts + 1
	availableAt := time.Now().UTC().Add(s.nextBackoff(attempts))
	if mErr := s.syncRepo.MarkFailed(dbc, ev.ID, attempts, err.Error(), availableAt); mErr != nil {
		s.log.Warn("mark failed failed", "event_id", ev.ID, "error", mErr)
	}
	if attempts >= s.maxAttempts {
		s.log.Error("sync event exhausted attempts",
			"event_id", ev.ID,
			"kind", ev.Kind,
			"record_id", ev.RecordID,
			"error", err,
		)
	} else {
		s.log.Warn("sync event retry scheduled",
			"event_id", ev.ID,
			"kind", ev.Kind,
			"attempts", attempts,
			"next_at", availableAt,
			"error", err,
		)
	}
}

func (s *graphIndexer) syncOne(ctx context.Context, dbc dbctx.Context, ev *types.GraphSyncEvent) error {
	switch ev.Kind {
	case kg.SyncKindEntity:
		e, err := s.entityRepo.GetByID(dbc, ev.RecordID)
		if err != nil {
			return err
		}
		if e == nil {
			// row deleted out of band; nothing left to mirror
			return nil
		}
		return graph.UpsertEntity(ctx, s.graphClient, e)
	case kg.SyncKindRelation:
		rel, err := s.relationRepo.GetByID(dbc, ev.RecordID)
		if err != nil {
			return err
		}
		if rel == nil {
			return nil
		}
		return graph.UpsertRelation(ctx, s.graphClient, rel)
	default:
		s.log.Warn("unknown sync event kind", "event_id", ev.ID, "kind", ev.Kind)
		return nil
	}
}

// nextBackoff doubles per attempt, capped at one minute.
func (s *graphIndexer) nextBackoff(attempts int) time.Duration {
	d := s.retryBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= time.Minute {
			return time.Minute
		}
	}
	if d > time.Minute {
		d = time.Minute
	}
	return d
}

func (s *graphIndexer) Backlog(ctx context.Context) (int64, error) {
	return s.syncRepo.CountPending(dbctx.Context{Ctx: ctx}, s.maxAttempts)
}

func (s *graphIndexer) ProjectionCounts(ctx context.Context) (int64, int64, error) {
	return graph.Counts(ctx, s.graphClient)
}

func (s *graphIndexer) Rebuild(ctx context.Context) error {
	dbc := dbctx.Context{Ctx: ctx}

	graph.EnsureSchema(ctx, s.graphClient, s.log)

	entities, err := s.entityRepo.ListAll(dbc)
	if err != nil {
		return err
	}
	if err := graph.UpsertEntities(ctx, s.graphClient, entities); err != nil {
		return err
	}

	relations, err := s.relationRepo.ListAll(dbc)
	if err != nil {
		return err
	}
	if err := graph.UpsertRelations(ctx, s.graphClient, relations); err != nil {
		return err
	}

	s.log.Info("graph projection rebuilt",
		"entities", len(entities),
		"relations", len(relations),
	)
	return nil
}
