package kg_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	kgrepo "github.com/jzy12306/lingtuzhipu-sub000/internal/data/repos/kg"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/data/repos/testutil"
	types "github.com/jzy12306/lingtuzhipu-sub000/internal/domain"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/domain/kg"
)

func newSyncEvent(kind string, availableAt time.Time) *types.GraphSyncEvent {
	now := time.Now().UTC()
	return &types.GraphSyncEvent{
		ID:          uuid.New(),
		Kind:        kind,
		RecordID:    uuid.New(),
		AvailableAt: availableAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestSyncEventRepoPendingLifecycle(t *testing.T) {
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	tx := testutil.Tx(t, gdb)
	repo := kgrepo.NewSyncEventRepo(gdb, log)
	dbc := dbctxFor(t, tx)

	now := time.Now().UTC()
	ready := newSyncEvent(kg.SyncKindEntity, now.Add(-time.Second))
	deferred := newSyncEvent(kg.SyncKindRelation, now.Add(time.Hour))
	if err := repo.Append(dbc, []*types.GraphSyncEvent{ready, deferred}); err != nil {
		t.Fatalf("append: %v", err)
	}

	pending, err := repo.GetPending(dbc, 100, 8)
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	found := map[uuid.UUID]bool{}
	for _, ev := range pending {
		found[ev.ID] = true
	}
	if !found[ready.ID] {
		t.Fatalf("expected ready event in pending set")
	}
	if found[deferred.ID] {
		t.Fatalf("event inside backoff window must not be pending")
	}

	if err := repo.MarkProcessed(dbc, ready.ID); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	pending, err = repo.GetPending(dbc, 100, 8)
	if err != nil {
		t.Fatalf("get pending after processed: %v", err)
	}
	for _, ev := range pending {
		if ev.ID == ready.ID {
			t.Fatalf("processed event must not be pending")
		}
	}
}

func TestSyncEventRepoMarkFailedAndBudget(t *testing.T) {
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	tx := testutil.Tx(t, gdb)
	repo := kgrepo.NewSyncEventRepo(gdb, log)
	dbc := dbctxFor(t, tx)

	ev := newSyncEvent(kg.SyncKindEntity, time.Now().UTC().Add(-time.Second))
	if err := repo.Append(dbc, []*types.GraphSyncEvent{ev}); err != nil {
		t.Fatalf("append: %v", err)
	}

	retryAt := time.Now().UTC().Add(-time.Millisecond)
	if err := repo.MarkFailed(dbc, ev.ID, 3, "node not present", retryAt); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	pending, err := repo.GetPending(dbc, 100, 8)
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	var got *types.GraphSyncEvent
	for _, p := range pending {
		if p.ID == ev.ID {
			got = p
		}
	}
	if got == nil {
		t.Fatalf("failed event past its backoff window should be pending again")
	}
	if got.Attempts != 3 || got.LastError != "node not present" {
		t.Fatalf("unexpected failure bookkeeping: %+v", got)
	}

	// Exhausted budget drops it from the pending set.
	pending, err = repo.GetPending(dbc, 100, 3)
	if err != nil {
		t.Fatalf("get pending with tight budget: %v", err)
	}
	for _, p := range pending {
		if p.ID == ev.ID {
			t.Fatalf("event at the attempt budget must not be pending")
		}
	}
}

func TestSyncEventRepoPurgeProcessed(t *testing.T) {
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	tx := testutil.Tx(t, gdb)
	repo := kgrepo.NewSyncEventRepo(gdb, log)
	dbc := dbctxFor(t, tx)

	ev := newSyncEvent(kg.SyncKindEntity, time.Now().UTC().Add(-time.Minute))
	if err := repo.Append(dbc, []*types.GraphSyncEvent{ev}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := repo.MarkProcessed(dbc, ev.ID); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	n, err := repo.PurgeProcessed(dbc, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n < 1 {
		t.Fatalf("expected at least one purged row, got %d", n)
	}
}
