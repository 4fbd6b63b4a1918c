package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jzy12306/lingtuzhipu-sub000/internal/data/repos"
	types "github.com/jzy12306/lingtuzhipu-sub000/internal/domain"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/domain/kg"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/pkg/dbctx"
	kgerr "github.com/jzy12306/lingtuzhipu-sub000/internal/pkg/errors"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/platform/logger"
)

const lowConfidenceThreshold = 0.5

// GraphAuditor runs the five conflict-detection passes over a snapshot of the
// primary store. Passes are pure and independent; results are accumulated
// into one list without cross-pass deduplication. Auditing twice over an
// unmodified snapshot yields an identical list.
type GraphAuditor interface {
	AuditDocument(ctx context.Context, documentID string) ([]*types.Conflict, error)
	AuditAll(ctx context.Context) ([]*types.Conflict, error)
}

type graphAuditor struct {
	entityRepo   repos.EntityRepo
	relationRepo repos.RelationRepo
	rules        *RuleTable
	log          *logger.Logger
}

func NewGraphAuditor(
	entityRepo repos.EntityRepo,
	relationRepo repos.RelationRepo,
	rules *RuleTable,
	baseLog *logger.Logger,
) GraphAuditor {
	return &graphAuditor{
		entityRepo:   entityRepo,
		relationRepo: relationRepo,
		rules:        rules,
		log:          baseLog.With("service", "GraphAuditor"),
	}
}

func (s *graphAuditor) AuditDocument(ctx context.Context, documentID string) ([]*types.Conflict, error) {
	if documentID == "" {
		return nil, fmt.Errorf("%w: document id required", kgerr.ErrInvalidArgument)
	}
	dbc := dbctx.Context{Ctx: ctx}

	entities, err := s.entityRepo.GetByDocument(dbc, documentID)
	if err != nil {
		return nil, err
	}
	relations, err := s.relationRepo.GetByDocument(dbc, documentID)
	if err != nil {
		return nil, err
	}

	// Type conflicts are a graph-wide structural property even when the
	// audit itself is document-scoped.
	allEntities, err := s.entityRepo.ListAll(dbc)
	if err != nil {
		return nil, err
	}

	return s.run(dbc, entities, relations, allEntities)
}

func (s *graphAuditor) AuditAll(ctx context.Context) ([]*types.Conflict, error) {
	dbc := dbctx.Context{Ctx: ctx}

	entities, err := s.entityRepo.ListAll(dbc)
	if err != nil {
		return nil, err
	}
	relations, err := s.relationRepo.ListAll(dbc)
	if err != nil {
		return nil, err
	}
	return s.run(dbc, entities, relations, entities)
}

func (s *graphAuditor) run(dbc dbctx.Context, entities []*types.Entity, relations []*types.Relation, allEntities []*types.Entity) ([]*types.Conflict, error) {
	entities = validEntities(entities)
	relations = validRelations(relations)

	index, err := s.entityIndex(dbc, entities, relations)
	if err != nil {
		return nil, err
	}

	conflicts := entityQualityPass(entities)
	conflicts = append(conflicts, referentialIntegrityPass(relations, index)...)
	conflicts = append(conflicts, typeConflictPass(validEntities(allEntities))...)
	conflicts = append(conflicts, semanticConflictPass(relations, index, s.rules)...)
	conflicts = append(conflicts, temporalConflictPass(entities)...)

	s.log.Info("audit complete",
		"entities", len(entities),
		"relations", len(relations),
		"conflicts", len(conflicts),
	)
	return conflicts, nil
}

// entityIndex maps every entity id a relation may reference, including valid
// entities outside the audited document.
func (s *graphAuditor) entityIndex(dbc dbctx.Context, entities []*types.Entity, relations []*types.Relation) (map[uuid.UUID]*types.Entity, error) {
	index := make(map[uuid.UUID]*types.Entity, len(entities))
	for _, e := range entities {
		index[e.ID] = e
	}

	var missing []uuid.UUID
	seen := map[uuid.UUID]struct{}{}
	for _, rel := range relations {
		for _, id := range []uuid.UUID{rel.SourceEntityID, rel.TargetEntityID} {
			if id == uuid.Nil {
				continue
			}
			if _, ok := index[id]; ok {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return index, nil
	}

	rows, err := s.entityRepo.GetByIDs(dbc, missing)
	if err != nil {
		return nil, err
	}
	for _, e := range rows {
		if e.IsValid {
			index[e.ID] = e
		}
	}
	return index, nil
}

func validEntities(in []*types.Entity) []*types.Entity {
	out := make([]*types.Entity, 0, len(in))
	for _, e := range in {
		if e != nil && e.IsValid {
			out = append(out, e)
		}
	}
	return out
}

func validRelations(in []*types.Relation) []*types.Relation {
	out := make([]*types.Relation, 0, len(in))
	for _, rel := range in {
		if rel != nil && rel.IsValid {
			out = append(out, rel)
		}
	}
	return out
}

// conflictID is deterministic over the records involved, so repeated audits
// of the same snapshot produce the same ids.
func conflictID(t kg.ConflictType, parts ...string) string {
	return string(t) + ":" + strings.Join(parts, ":")
}

func entityQualityPass(entities []*types.Entity) []*types.Conflict {
	var out []*types.Conflict
	for _, e := range entities {
		if strings.TrimSpace(e.Name) == "" {
			out = append(out, &types.Conflict{
				ID:                  conflictID(kg.ConflictEmptyEntityName, e.ID.String()),
				Type:                kg.ConflictEmptyEntityName,
				Entities:            []*types.Entity{e},
				Description:         fmt.Sprintf("entity %s has no name", e.ID),
				Severity:            kg.SeverityHigh,
				SuggestedResolution: "add an entity name",
			})
		}
		if strings.TrimSpace(e.Type) == "" {
			out = append(out, &types.Conflict{
				ID:                  conflictID(kg.ConflictEmptyEntityType, e.ID.String()),
				Type:                kg.ConflictEmptyEntityType,
				Entities:            []*types.Entity{e},
				Description:         fmt.Sprintf("entity %s has no type", e.ID),
				Severity:            kg.SeverityHigh,
				SuggestedResolution: "add an entity type",
			})
		}
		if e.Confidence < lowConfidenceThreshold {
			out = append(out, &types.Conflict{
				ID:                  conflictID(kg.ConflictLowConfidenceEntity, e.ID.String()),
				Type:                kg.ConflictLowConfidenceEntity,
				Entities:            []*types.Entity{e},
				Description:         fmt.Sprintf("entity %s confidence %.2f is below %.2f", e.ID, e.Confidence, lowConfidenceThreshold),
				Severity:            kg.SeverityMedium,
				SuggestedResolution: "review the entity and confirm or raise its confidence",
			})
		}
	}
	return out
}

func referentialIntegrityPass(relations []*types.Relation, index map[uuid.UUID]*types.Entity) []*types.Conflict {
	var out []*types.Conflict
	for _, rel := range relations {
		if _, ok := index[rel.SourceEntityID]; !ok {
			out = append(out, &types.Conflict{
				ID:                  conflictID(kg.ConflictMissingSourceEntity, rel.ID.String()),
				Type:                kg.ConflictMissingSourceEntity,
				Relations:           []*types.Relation{rel},
				Description:         fmt.Sprintf("relation %s source %s does not resolve to a valid entity", rel.ID, rel.SourceEntityID),
				Severity:            kg.SeverityHigh,
				SuggestedResolution: "invalidate the relation or restore its source entity",
			})
		}
		if _, ok := index[rel.TargetEntityID]; !ok {
			out = append(out, &types.Conflict{
				ID:                  conflictID(kg.ConflictMissingTargetEntity, rel.ID.String()),
				Type:                kg.ConflictMissingTargetEntity,
				Relations:           []*types.Relation{rel},
				Description:         fmt.Sprintf("relation %s target %s does not resolve to a valid entity", rel.ID, rel.TargetEntityID),
				Severity:            kg.SeverityHigh,
				SuggestedResolution: "invalidate the relation or restore its target entity",
			})
		}
		if strings.TrimSpace(rel.Type) == "" {
			out = append(out, &types.Conflict{
				ID:                  conflictID(kg.ConflictEmptyRelationType, rel.ID.String()),
				Type:                kg.ConflictEmptyRelationType,
				Relations:           []*types.Relation{rel},
				Description:         fmt.Sprintf("relation %s has no type", rel.ID),
				Severity:            kg.SeverityHigh,
				SuggestedResolution: "add a relation type",
			})
		}
	}
	return out
}

func typeConflictPass(entities []*types.Entity) []*types.Conflict {
	byName := map[string][]*types.Entity{}
	for _, e := range entities {
		name := strings.ToLower(strings.TrimSpace(e.Name))
		if name == "" {
			continue
		}
		byName[name] = append(byName[name], e)
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []*types.Conflict
	for _, name := range names {
		group := byName[name]
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			return group[i].ID.String() < group[j].ID.String()
		})
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				if a.Type == b.Type {
					continue
				}
				out = append(out, &types.Conflict{
					ID:                  conflictID(kg.ConflictEntityTypeConflict, a.ID.String(), b.ID.String()),
					Type:                kg.ConflictEntityTypeConflict,
					Entities:            []*types.Entity{a, b},
					Description:         fmt.Sprintf("entities named %q have conflicting types %q and %q", a.Name, a.Type, b.Type),
					Severity:            kg.SeverityMedium,
					SuggestedResolution: "merge the entities or correct the wrong type",
				})
			}
		}
	}
	return out
}

func semanticConflictPass(relations []*types.Relation, index map[uuid.UUID]*types.Entity, rules *RuleTable) []*types.Conflict {
	var out []*types.Conflict
	for _, rel := range relations {
		source, ok := index[rel.SourceEntityID]
		if !ok {
			continue
		}
		target, ok := index[rel.TargetEntityID]
		if !ok {
			continue
		}
		sev, ok := rules.Lookup(rel.Type, source.Type, target.Type)
		if !ok {
			continue
		}
		out = append(out, &types.Conflict{
			ID:                  conflictID(kg.ConflictSemanticConflict, rel.ID.String()),
			Type:                kg.ConflictSemanticConflict,
			Entities:            []*types.Entity{source, target},
			Relations:           []*types.Relation{rel},
			Description:         fmt.Sprintf("relation type %q is incompatible between entity types %q and %q", rel.Type, source.Type, target.Type),
			Severity:            sev,
			SuggestedResolution: "replace the relation type with a compatible one",
		})
	}
	return out
}

func temporalConflictPass(entities []*types.Entity) []*types.Conflict {
	var out []*types.Conflict
	for _, e := range entities {
		if !e.CreatedAt.After(e.UpdatedAt) {
			continue
		}
		out = append(out, &types.Conflict{
			ID:                  conflictID(kg.ConflictTemporalConflict, e.ID.String()),
			Type:                kg.ConflictTemporalConflict,
			Entities:            []*types.Entity{e},
			Description:         fmt.Sprintf("entity %s created_at %s is after updated_at %s", e.ID, e.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), e.UpdatedAt.Format("2006-01-02T15:04:05Z07:00")),
			Severity:            kg.SeverityMedium,
			SuggestedResolution: "correct the entity timestamps",
		})
	}
	return out
}
