package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jzy12306/lingtuzhipu-sub000/internal/data/repos"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/data/repos/testutil"
	types "github.com/jzy12306/lingtuzhipu-sub000/internal/domain"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/domain/kg"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/pkg/dbctx"
)

type fakeGenerator struct {
	reply string
	err   error
	calls int
}

func (g *fakeGenerator) GenerateText(ctx context.Context, system, user string) (string, error) {
	g.calls++
	return g.reply, g.err
}

func newCorrectorFixture(t *testing.T, gen TextGenerator) (GraphCorrector, repos.EntityRepo, repos.RelationRepo, repos.SyncEventRepo) {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	entityRepo := repos.NewEntityRepo(gdb, log)
	relationRepo := repos.NewRelationRepo(gdb, log)
	syncRepo := repos.NewSyncEventRepo(gdb, log)
	corrector := NewGraphCorrector(gdb, entityRepo, relationRepo, syncRepo, gen, nil, log)
	return corrector, entityRepo, relationRepo, syncRepo
}

func pendingCount(t *testing.T, syncRepo repos.SyncEventRepo) int64 {
	t.Helper()
	n, err := syncRepo.CountPending(dbctx.Context{Ctx: context.Background()}, 1000)
	require.NoError(t, err)
	return n
}

func TestCorrectEmptyEntityName(t *testing.T) {
	gen := &fakeGenerator{reply: `"Pierre Curie"`}
	corrector, entityRepo, _, _ := newCorrectorFixture(t, gen)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}

	e := testEntity("", "Person", 0.9)
	_, err := entityRepo.Create(dbc, []*types.Entity{e})
	require.NoError(t, err)

	conflicts := entityQualityPass([]*types.Entity{e})
	require.Len(t, conflicts, 1)

	corrected, err := corrector.CorrectConflicts(ctx, conflicts)
	require.NoError(t, err)
	require.Len(t, corrected, 1)
	require.Equal(t, 1, gen.calls)
	require.Equal(t, "Pierre Curie", e.Name)

	got, err := entityRepo.GetByID(dbc, e.ID)
	require.NoError(t, err)
	require.Equal(t, "Pierre Curie", got.Name)
}

func TestCorrectionFailureLeavesConflictUnresolved(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("rate limited")}
	corrector, _, _, _ := newCorrectorFixture(t, gen)

	e := testEntity("", "Person", 0.9)
	conflicts := entityQualityPass([]*types.Entity{e})

	corrected, err := corrector.CorrectConflicts(context.Background(), conflicts)
	require.NoError(t, err)
	require.Empty(t, corrected)
	require.Empty(t, e.Name)
}

func TestCorrectionEmptyReplyLeavesConflictUnresolved(t *testing.T) {
	gen := &fakeGenerator{reply: "   "}
	corrector, _, _, _ := newCorrectorFixture(t, gen)

	e := testEntity("", "Person", 0.9)
	conflicts := entityQualityPass([]*types.Entity{e})

	corrected, err := corrector.CorrectConflicts(context.Background(), conflicts)
	require.NoError(t, err)
	require.Empty(t, corrected)
}

func TestCorrectMissingEntityInvalidatesRelation(t *testing.T) {
	corrector, _, relationRepo, _ := newCorrectorFixture(t, nil)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}

	rel := testRelation(uuid.New(), uuid.New(), "references")
	_, err := relationRepo.Create(dbc, []*types.Relation{rel})
	require.NoError(t, err)

	conflicts := referentialIntegrityPass([]*types.Relation{rel}, map[uuid.UUID]*types.Entity{})
	require.Len(t, conflicts, 2)

	corrected, err := corrector.CorrectConflicts(ctx, conflicts)
	require.NoError(t, err)
	require.Len(t, corrected, 2)
	require.False(t, rel.IsValid)

	got, err := relationRepo.GetByID(dbc, rel.ID)
	require.NoError(t, err)
	require.False(t, got.IsValid)
}

func TestCorrectSemanticConflictReplacesRelationType(t *testing.T) {
	gen := &fakeGenerator{reply: "knows"}
	corrector, _, relationRepo, _ := newCorrectorFixture(t, gen)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}

	alice := testEntity("Alice", "Person", 0.9)
	bob := testEntity("Bob", "Person", 0.9)
	rel := testRelation(alice.ID, bob.ID, "belongs-to")
	_, err := relationRepo.Create(dbc, []*types.Relation{rel})
	require.NoError(t, err)

	rules, err := LoadRuleTable()
	require.NoError(t, err)
	conflicts := semanticConflictPass([]*types.Relation{rel}, indexOf(alice, bob), rules)
	require.Len(t, conflicts, 1)

	corrected, err := corrector.CorrectConflicts(ctx, conflicts)
	require.NoError(t, err)
	require.Len(t, corrected, 1)
	require.Equal(t, "knows", rel.Type)

	got, err := relationRepo.GetByID(dbc, rel.ID)
	require.NoError(t, err)
	require.Equal(t, "knows", got.Type)
}

func TestCorrectTemporalConflictClampsTimestamps(t *testing.T) {
	corrector, entityRepo, _, _ := newCorrectorFixture(t, nil)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}

	e := testEntity("Backdated", "Concept", 0.9)
	e.CreatedAt = e.UpdatedAt.Add(time.Hour)
	_, err := entityRepo.Create(dbc, []*types.Entity{e})
	require.NoError(t, err)

	conflicts := temporalConflictPass([]*types.Entity{e})
	require.Len(t, conflicts, 1)

	corrected, err := corrector.CorrectConflicts(ctx, conflicts)
	require.NoError(t, err)
	require.Len(t, corrected, 1)
	require.Equal(t, e.CreatedAt, e.UpdatedAt)
}

func TestCorrectionSkipsTypesWithoutStrategy(t *testing.T) {
	gen := &fakeGenerator{reply: "anything"}
	corrector, _, _, _ := newCorrectorFixture(t, gen)

	low := testEntity("Weak", "Concept", 0.2)
	conflicts := entityQualityPass([]*types.Entity{low})
	require.Len(t, conflicts, 1)
	require.Equal(t, kg.ConflictLowConfidenceEntity, conflicts[0].Type)

	corrected, err := corrector.CorrectConflicts(context.Background(), conflicts)
	require.NoError(t, err)
	require.Empty(t, corrected)
	require.Zero(t, gen.calls)
}

func TestCorrectionAppendsSyncEvents(t *testing.T) {
	corrector, _, relationRepo, syncRepo := newCorrectorFixture(t, nil)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}

	rel := testRelation(uuid.New(), uuid.New(), "references")
	_, err := relationRepo.Create(dbc, []*types.Relation{rel})
	require.NoError(t, err)

	conflicts := referentialIntegrityPass([]*types.Relation{rel}, map[uuid.UUID]*types.Entity{})
	require.Len(t, conflicts, 2)

	before := pendingCount(t, syncRepo)
	corrected, err := corrector.CorrectConflicts(ctx, conflicts)
	require.NoError(t, err)
	require.Len(t, corrected, 2)

	// Repairs must reach the projection the same way writes do.
	after := pendingCount(t, syncRepo)
	require.Greater(t, after, before)

	found := 0
	pending, err := syncRepo.GetPending(dbc, 1000, 1000)
	require.NoError(t, err)
	for _, ev := range pending {
		if ev.RecordID == rel.ID && ev.Kind == kg.SyncKindRelation {
			found++
		}
	}
	require.GreaterOrEqual(t, found, 1)
}
