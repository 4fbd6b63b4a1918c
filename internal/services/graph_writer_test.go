package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jzy12306/lingtuzhipu-sub000/internal/data/repos"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/data/repos/testutil"
	types "github.com/jzy12306/lingtuzhipu-sub000/internal/domain"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/domain/kg"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/pkg/dbctx"
	kgerr "github.com/jzy12306/lingtuzhipu-sub000/internal/pkg/errors"
)

type captureNotifier struct {
	updates []types.DocumentStatusUpdate
}

func (n *captureNotifier) DocumentStatusChanged(update types.DocumentStatusUpdate) {
	n.updates = append(n.updates, update)
}

func newWriterFixture(t *testing.T) (GraphWriter, repos.EntityRepo, repos.RelationRepo, repos.SyncEventRepo, *captureNotifier) {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	entityRepo := repos.NewEntityRepo(gdb, log)
	relationRepo := repos.NewRelationRepo(gdb, log)
	syncRepo := repos.NewSyncEventRepo(gdb, log)
	notifier := &captureNotifier{}
	writer := NewGraphWriter(gdb, entityRepo, relationRepo, syncRepo, notifier, log)
	return writer, entityRepo, relationRepo, syncRepo, notifier
}

func findSyncEvent(t *testing.T, syncRepo repos.SyncEventRepo, recordID uuid.UUID) *types.GraphSyncEvent {
	t.Helper()
	pending, err := syncRepo.GetPending(dbctx.Context{Ctx: context.Background()}, 1000, 100)
	require.NoError(t, err)
	for _, ev := range pending {
		if ev.RecordID == recordID {
			return ev
		}
	}
	return nil
}

func TestCreateEntityDefaults(t *testing.T) {
	writer, entityRepo, _, syncRepo, _ := newWriterFixture(t)
	ctx := context.Background()

	row, err := writer.CreateEntity(ctx, &types.Entity{Name: "Ada Lovelace", Type: "Person"})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, row.ID)
	require.Equal(t, 1.0, row.Confidence)
	require.True(t, row.IsValid)
	require.False(t, row.CreatedAt.IsZero())
	require.False(t, row.UpdatedAt.IsZero())

	got, err := entityRepo.GetByID(dbctx.Context{Ctx: ctx}, row.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	ev := findSyncEvent(t, syncRepo, row.ID)
	require.NotNil(t, ev, "entity write must append an outbox event")
	require.Equal(t, kg.SyncKindEntity, ev.Kind)
}

func TestCreateEntityOutOfRangeConfidenceDefaults(t *testing.T) {
	writer, _, _, _, _ := newWriterFixture(t)

	row, err := writer.CreateEntity(context.Background(), &types.Entity{Name: "X", Type: "Concept", Confidence: 3.5})
	require.NoError(t, err)
	require.Equal(t, 1.0, row.Confidence)
}

func TestCreateRelationRequiresEndpoints(t *testing.T) {
	writer, _, _, _, _ := newWriterFixture(t)

	_, err := writer.CreateRelation(context.Background(), &types.Relation{Type: "references"})
	require.ErrorIs(t, err, kgerr.ErrInvalidArgument)
}

func TestCreateRelationFillsCachedNames(t *testing.T) {
	writer, _, _, syncRepo, _ := newWriterFixture(t)
	ctx := context.Background()

	alice, err := writer.CreateEntity(ctx, &types.Entity{Name: "Alice", Type: "Person"})
	require.NoError(t, err)
	bob, err := writer.CreateEntity(ctx, &types.Entity{Name: "Bob", Type: "Person"})
	require.NoError(t, err)

	rel, err := writer.CreateRelation(ctx, &types.Relation{
		SourceEntityID: alice.ID,
		TargetEntityID: bob.ID,
		Type:           "knows",
	})
	require.NoError(t, err)
	require.Equal(t, "Alice", rel.SourceEntityName)
	require.Equal(t, "Bob", rel.TargetEntityName)

	ev := findSyncEvent(t, syncRepo, rel.ID)
	require.NotNil(t, ev)
	require.Equal(t, kg.SyncKindRelation, ev.Kind)
}

func TestCreateRelationAcceptsDanglingIDs(t *testing.T) {
	writer, _, relationRepo, _, _ := newWriterFixture(t)
	ctx := context.Background()

	// Referential integrity is audited, not enforced at write time.
	rel, err := writer.CreateRelation(ctx, &types.Relation{
		SourceEntityID: uuid.New(),
		TargetEntityID: uuid.New(),
		Type:           "references",
	})
	require.NoError(t, err)

	got, err := relationRepo.GetByID(dbctx.Context{Ctx: ctx}, rel.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestSaveDocumentGraphNotifies(t *testing.T) {
	writer, entityRepo, relationRepo, _, notifier := newWriterFixture(t)
	ctx := context.Background()
	docID := "doc-" + uuid.NewString()

	a := &types.Entity{Name: "Node A", Type: "Concept"}
	b := &types.Entity{Name: "Node B", Type: "Concept"}
	err := writer.SaveDocumentGraph(ctx, docID, []*types.Entity{a, b}, []*types.Relation{
		{SourceEntityID: uuid.Nil, TargetEntityID: uuid.Nil},
	})
	require.ErrorIs(t, err, kgerr.ErrInvalidArgument)
	require.Len(t, notifier.updates, 1)
	require.Equal(t, kg.DocumentStatusGraphFailed, notifier.updates[0].Status)

	notifier.updates = nil
	err = writer.SaveDocumentGraph(ctx, docID, []*types.Entity{a, b}, nil)
	require.NoError(t, err)
	require.Len(t, notifier.updates, 1)
	require.Equal(t, kg.DocumentStatusGraphSaved, notifier.updates[0].Status)
	require.Equal(t, 2, notifier.updates[0].EntityCount)

	rows, err := entityRepo.GetByDocument(dbctx.Context{Ctx: ctx}, docID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	rels, err := relationRepo.GetByDocument(dbctx.Context{Ctx: ctx}, docID)
	require.NoError(t, err)
	require.Empty(t, rels)
}
