package services

import (
	"context"
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

func testEntity(name, typ string, confidence float64) *types.Entity {
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

func testRelation(source, target uuid.UUID, typ string) *types.Relation {
	now := time.Now().UTC()
	return &types.Relation{
		ID:             uuid.New(),
		SourceEntityID: source,
		TargetEntityID: target,
		Type:           typ,
		Confidence:     0.9,
		IsValid:        true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func indexOf(entities ...*types.Entity) map[uuid.UUID]*types.Entity {
	out := make(map[uuid.UUID]*types.Entity, len(entities))
	for _, e := range entities {
		out[e.ID] = e
	}
	return out
}

func TestEntityQualityPass(t *testing.T) {
	noName := testEntity("", "Person", 0.9)
	noType := testEntity("Marie Curie", "", 0.9)
	lowConf := testEntity("Pierre Curie", "Person", 0.3)
	clean := testEntity("Irene Curie", "Person", 0.9)

	conflicts := entityQualityPass([]*types.Entity{noName, noType, lowConf, clean})
	require.Len(t, conflicts, 3)

	byType := map[types.ConflictType]*types.Conflict{}
	for _, c := range conflicts {
		byType[c.Type] = c
	}

	c := byType[kg.ConflictEmptyEntityName]
	require.NotNil(t, c)
	require.Equal(t, kg.SeverityHigh, c.Severity)
	require.Equal(t, "add an entity name", c.SuggestedResolution)
	require.Equal(t, noName, c.Entities[0])

	require.Equal(t, kg.SeverityHigh, byType[kg.ConflictEmptyEntityType].Severity)
	require.Equal(t, kg.SeverityMedium, byType[kg.ConflictLowConfidenceEntity].Severity)
}

func TestReferentialIntegrityPass(t *testing.T) {
	a := testEntity("A", "Concept", 0.9)
	b := testEntity("B", "Concept", 0.9)
	index := indexOf(a, b)

	dangling := testRelation(uuid.New(), b.ID, "references")
	untyped := testRelation(a.ID, b.ID, "")
	clean := testRelation(a.ID, b.ID, "references")

	conflicts := referentialIntegrityPass([]*types.Relation{dangling, untyped, clean}, index)
	require.Len(t, conflicts, 2)

	byType := map[types.ConflictType]*types.Conflict{}
	for _, c := range conflicts {
		byType[c.Type] = c
	}
	require.Equal(t, kg.SeverityHigh, byType[kg.ConflictMissingSourceEntity].Severity)
	require.Equal(t, kg.SeverityHigh, byType[kg.ConflictEmptyRelationType].Severity)
}

func TestReferentialIntegrityPassBothSidesMissing(t *testing.T) {
	rel := testRelation(uuid.New(), uuid.New(), "references")
	conflicts := referentialIntegrityPass([]*types.Relation{rel}, map[uuid.UUID]*types.Entity{})
	require.Len(t, conflicts, 2)
	require.Equal(t, kg.ConflictMissingSourceEntity, conflicts[0].Type)
	require.Equal(t, kg.ConflictMissingTargetEntity, conflicts[1].Type)
}

func TestTypeConflictPass(t *testing.T) {
	person := testEntity("Mercury", "Person", 0.9)
	planet := testEntity("mercury", "Planet", 0.9)
	same := testEntity("Mercury", "Person", 0.8)
	other := testEntity("Venus", "Planet", 0.9)

	conflicts := typeConflictPass([]*types.Entity{person, planet, same, other})
	require.Len(t, conflicts, 2) // person/planet and planet/same
	for _, c := range conflicts {
		require.Equal(t, kg.ConflictEntityTypeConflict, c.Type)
		require.Equal(t, kg.SeverityMedium, c.Severity)
		require.Len(t, c.Entities, 2)
	}
}

func TestSemanticConflictPass(t *testing.T) {
	rules, err := LoadRuleTable()
	require.NoError(t, err)

	alice := testEntity("Alice", "Person", 0.9)
	bob := testEntity("Bob", "Person", 0.9)
	index := indexOf(alice, bob)

	bad := testRelation(alice.ID, bob.ID, "belongs-to")
	fine := testRelation(alice.ID, bob.ID, "knows")

	conflicts := semanticConflictPass([]*types.Relation{bad, fine}, index, rules)
	require.Len(t, conflicts, 1)
	require.Equal(t, kg.ConflictSemanticConflict, conflicts[0].Type)
	require.Equal(t, kg.SeverityMedium, conflicts[0].Severity)
	require.Equal(t, bad, conflicts[0].Relations[0])
}

func TestTemporalConflictPass(t *testing.T) {
	broken := testEntity("Backdated", "Concept", 0.9)
	broken.CreatedAt = broken.UpdatedAt.Add(time.Hour)
	clean := testEntity("Fine", "Concept", 0.9)

	conflicts := temporalConflictPass([]*types.Entity{broken, clean})
	require.Len(t, conflicts, 1)
	require.Equal(t, kg.ConflictTemporalConflict, conflicts[0].Type)
	require.Equal(t, kg.SeverityMedium, conflicts[0].Severity)
}

func TestAuditIdempotence(t *testing.T) {
	noName := testEntity("", "Person", 0.3)
	entities := []*types.Entity{noName}

	first := entityQualityPass(entities)
	second := entityQualityPass(entities)
	require.Equal(t, len(first), len(second))
	for i := range first {
		require.Equal(t, first[i].ID, second[i].ID)
		require.Equal(t, first[i].Type, second[i].Type)
	}
}

func TestAuditDocumentEndToEnd(t *testing.T) {
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	entityRepo := repos.NewEntityRepo(gdb, log)
	relationRepo := repos.NewRelationRepo(gdb, log)
	rules, err := LoadRuleTable()
	require.NoError(t, err)

	auditor := NewGraphAuditor(entityRepo, relationRepo, rules, log)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	docID := "doc-" + uuid.NewString()

	alice := testEntity("Alice "+docID, "Person", 0.9)
	alice.DocumentID = docID
	bob := testEntity("Bob "+docID, "Person", 0.9)
	bob.DocumentID = docID
	_, err = entityRepo.Create(dbc, []*types.Entity{alice, bob})
	require.NoError(t, err)

	rel := testRelation(alice.ID, bob.ID, "belongs-to")
	rel.DocumentID = docID
	_, err = relationRepo.Create(dbc, []*types.Relation{rel})
	require.NoError(t, err)

	conflicts, err := auditor.AuditDocument(ctx, docID)
	require.NoError(t, err)

	var semantic []*types.Conflict
	for _, c := range conflicts {
		if c.Type == kg.ConflictSemanticConflict && len(c.Relations) > 0 && c.Relations[0].ID == rel.ID {
			semantic = append(semantic, c)
		}
	}
	require.Len(t, semantic, 1)
	require.Equal(t, kg.SeverityMedium, semantic[0].Severity)
}
