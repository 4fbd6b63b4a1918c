package kg_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	kgrepo "github.com/jzy12306/lingtuzhipu-sub000/internal/data/repos/kg"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/data/repos/testutil"
	types "github.com/jzy12306/lingtuzhipu-sub000/internal/domain"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/pkg/dbctx"
)

func newEntity(name, typ string, confidence float64) *types.Entity {
	now := time.Now().UTC()
	return &types.Entity{
		ID:         uuid.New(),
		Name:       name,
		Type:       typ,
		Confidence: confidence,
		IsValid:    true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestEntityRepoCreateAndGet(t *testing.T) {
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	tx := testutil.Tx(t, gdb)
	repo := kgrepo.NewEntityRepo(gdb, log)
	dbc := dbctxFor(t, tx)

	e := newEntity("Marie Curie", "Person", 0.9)
	if _, err := repo.Create(dbc, []*types.Entity{e}); err != nil {
		t.Fatalf("create entity: %v", err)
	}

	got, err := repo.GetByID(dbc, e.ID)
	if err != nil {
		t.Fatalf("get entity: %v", err)
	}
	if got == nil {
		t.Fatalf("expected entity %s, got nil", e.ID)
	}
	if got.Name != "Marie Curie" || got.Type != "Person" {
		t.Fatalf("unexpected row: %+v", got)
	}

	missing, err := repo.GetByID(dbc, uuid.New())
	if err != nil {
		t.Fatalf("get missing entity: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown id, got %+v", missing)
	}
}

func TestEntityRepoGetByDocument(t *testing.T) {
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	tx := testutil.Tx(t, gdb)
	repo := kgrepo.NewEntityRepo(gdb, log)
	dbc := dbctxFor(t, tx)

	docID := "doc-" + uuid.NewString()
	a := newEntity("Alpha", "Concept", 0.8)
	a.DocumentID = docID
	b := newEntity("Beta", "Concept", 0.7)
	b.DocumentID = docID
	other := newEntity("Gamma", "Concept", 0.6)
	if _, err := repo.Create(dbc, []*types.Entity{a, b, other}); err != nil {
		t.Fatalf("create entities: %v", err)
	}

	rows, err := repo.GetByDocument(dbc, docID)
	if err != nil {
		t.Fatalf("get by document: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
}

func TestEntityRepoSearchByName(t *testing.T) {
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	tx := testutil.Tx(t, gdb)
	repo := kgrepo.NewEntityRepo(gdb, log)
	dbc := dbctxFor(t, tx)

	marker := uuid.NewString()[:8]
	low := newEntity("curie point "+marker, "Concept", 0.4)
	high := newEntity("Marie Curie "+marker, "Person", 0.95)
	invalid := newEntity("Curie Institute "+marker, "Organization", 0.9)
	invalid.IsValid = false
	if _, err := repo.Create(dbc, []*types.Entity{low, high, invalid}); err != nil {
		t.Fatalf("create entities: %v", err)
	}

	rows, err := repo.SearchByName(dbc, "CURIE", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	var mine []*types.Entity
	for _, e := range rows {
		if e.ID == low.ID || e.ID == high.ID || e.ID == invalid.ID {
			mine = append(mine, e)
		}
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(mine))
	}
	if mine[0].Confidence < mine[1].Confidence {
		t.Fatalf("expected confidence-descending order, got %f before %f", mine[0].Confidence, mine[1].Confidence)
	}
	for _, e := range mine {
		if e.ID == invalid.ID {
			t.Fatalf("invalidated entity should not match")
		}
	}
}

func TestEntityRepoUpdateFields(t *testing.T) {
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	tx := testutil.Tx(t, gdb)
	repo := kgrepo.NewEntityRepo(gdb, log)
	dbc := dbctxFor(t, tx)

	e := newEntity("", "Person", 0.9)
	if _, err := repo.Create(dbc, []*types.Entity{e}); err != nil {
		t.Fatalf("create entity: %v", err)
	}

	before := e.UpdatedAt
	time.Sleep(5 * time.Millisecond)
	if err := repo.UpdateFields(dbc, e.ID, map[string]interface{}{"name": "Pierre Curie"}); err != nil {
		t.Fatalf("update fields: %v", err)
	}

	got, err := repo.GetByID(dbc, e.ID)
	if err != nil {
		t.Fatalf("get entity: %v", err)
	}
	if got.Name != "Pierre Curie" {
		t.Fatalf("expected updated name, got %q", got.Name)
	}
	if !got.UpdatedAt.After(before) {
		t.Fatalf("expected updated_at to advance")
	}
}

func dbctxFor(t *testing.T, tx *gorm.DB) dbctx.Context {
	t.Helper()
	return dbctx.Context{Ctx: context.Background(), Tx: tx}
}
