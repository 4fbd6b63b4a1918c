package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jzy12306/lingtuzhipu-sub000/internal/clients/redis"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/data/repos"
	types "github.com/jzy12306/lingtuzhipu-sub000/internal/domain"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/domain/kg"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/pkg/dbctx"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/platform/logger"
)

// TextGenerator is the generative collaborator used to fill missing values.
// Satisfied by the OpenAI client.
type TextGenerator interface {
	GenerateText(ctx context.Context, system string, user string) (string, error)
}

// GraphCorrector applies per-type repair strategies to detected conflicts and
// persists the repaired rows. Correction is best-effort and single-pass:
// a failed or empty generation leaves the conflict out of the corrected set,
// and detection is not re-run afterwards.
type GraphCorrector interface {
	// CorrectConflicts returns the subset of conflicts that were repaired
	// and persisted.
	CorrectConflicts(ctx context.Context, conflicts []*types.Conflict) ([]*types.Conflict, error)
}

type graphCorrector struct {
	db           *gorm.DB
	entityRepo   repos.EntityRepo
	relationRepo repos.RelationRepo
	syncRepo     repos.SyncEventRepo
	generator    TextGenerator
	cache        *redis.Cache
	log          *logger.Logger
}

func NewGraphCorrector(
	db *gorm.DB,
	entityRepo repos.EntityRepo,
	relationRepo repos.RelationRepo,
	syncRepo repos.SyncEventRepo,
	generator TextGenerator,
	cache *redis.Cache,
	baseLog *logger.Logger,
) GraphCorrector {
	return &graphCorrector{
		db:           db,
		entityRepo:   entityRepo,
		relationRepo: relationRepo,
		syncRepo:     syncRepo,
		generator:    generator,
		cache:        cache,
		log:          baseLog.With("service", "GraphCorrector"),
	}
}

// Repairs flow through the same outbox as writes: the field update and its
// sync event commit in one transaction, so the projection converges on the
// corrected row without a manual rebuild.
func (s *graphCorrector) persistEntityFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := s.entityRepo.UpdateFields(dbc, id, fields); err != nil {
			return err
		}
		return s.syncRepo.Append(dbc, syncEvents(kg.SyncKindEntity, []uuid.UUID{id}, now))
	})
}

func (s *graphCorrector) persistRelationFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := s.relationRepo.UpdateFields(dbc, id, fields); err != nil {
			return err
		}
		return s.syncRepo.Append(dbc, syncEvents(kg.SyncKindRelation, []uuid.UUID{id}, now))
	})
}

func (s *graphCorrector) CorrectConflicts(ctx context.Context, conflicts []*types.Conflict) ([]*types.Conflict, error) {
	corrected := make([]*types.Conflict, 0, len(conflicts))
	for _, c := range conflicts {
		if c == nil {
			continue
		}
		var (
			ok  bool
			err error
		)
		switch c.Type {
		case kg.ConflictEmptyEntityName:
			ok, err = s.fillEntityField(ctx, c, "name")
		case kg.ConflictEmptyEntityType:
			ok, err = s.fillEntityField(ctx, c, "type")
		case kg.ConflictMissingSourceEntity, kg.ConflictMissingTargetEntity:
			ok, err = s.invalidateRelation(ctx, c)
		case kg.ConflictSemanticConflict:
			ok, err = s.replaceRelationType(ctx, c)
		case kg.ConflictTemporalConflict:
			ok, err = s.clampTimestamps(ctx, c)
		default:
			// low_confidence_entity, empty_relation_type and
			// entity_type_conflict have no automatic repair
			continue
		}
		if err != nil {
			s.log.Warn("correction failed",
				"conflict_id", c.ID,
				"type", c.Type,
				"error", err,
			)
			continue
		}
		if ok {
			corrected = append(corrected, c)
		}
	}
	s.log.Info("correction complete", "conflicts", len(conflicts), "corrected", len(corrected))
	return corrected, nil
}

func (s *graphCorrector) fillEntityField(ctx context.Context, c *types.Conflict, field string) (bool, error) {
	if len(c.Entities) == 0 || c.Entities[0] == nil || s.generator == nil {
		return false, nil
	}
	e := c.Entities[0]

	system := "You maintain a knowledge graph. Reply with a single short value and nothing else."
	user := fmt.Sprintf(
		"Suggest a %s for a knowledge-graph entity.\nKnown fields:\nname: %s\ntype: %s\ndescription: %s",
		field, e.Name, e.Type, e.Description,
	)
	value, err := s.generator.GenerateText(ctx, system, user)
	if err != nil {
		return false, err
	}
	value = strings.TrimSpace(strings.Trim(strings.TrimSpace(value), `"`))
	if value == "" {
		return false, nil
	}

	if err := s.persistEntityFields(ctx, e.ID, map[string]interface{}{field: value}); err != nil {
		return false, err
	}
	switch field {
	case "name":
		e.Name = value
	case "type":
		e.Type = value
	}
	s.cache.InvalidateEntity(ctx, e.ID)
	return true, nil
}

func (s *graphCorrector) invalidateRelation(ctx context.Context, c *types.Conflict) (bool, error) {
	if len(c.Relations) == 0 || c.Relations[0] == nil {
		return false, nil
	}
	rel := c.Relations[0]
	if err := s.persistRelationFields(ctx, rel.ID, map[string]interface{}{"is_valid": false}); err != nil {
		return false, err
	}
	rel.IsValid = false
	s.cache.InvalidateRelation(ctx, rel.ID)
	return true, nil
}

func (s *graphCorrector) replaceRelationType(ctx context.Context, c *types.Conflict) (bool, error) {
	if len(c.Relations) == 0 || c.Relations[0] == nil || s.generator == nil {
		return false, nil
	}
	rel := c.Relations[0]

	var sourceType, targetType string
	if len(c.Entities) > 0 && c.Entities[0] != nil {
		sourceType = c.Entities[0].Type
	}
	if len(c.Entities) > 1 && c.Entities[1] != nil {
		targetType = c.Entities[1].Type
	}

	system := "You maintain a knowledge graph. Reply with a single short relation type and nothing else."
	user := fmt.Sprintf(
		"The relation type %q is incompatible between a source entity of type %q and a target entity of type %q.\nSuggest a compatible replacement relation type.",
		rel.Type, sourceType, targetType,
	)
	value, err := s.generator.GenerateText(ctx, system, user)
	if err != nil {
		return false, err
	}
	value = strings.TrimSpace(strings.Trim(strings.TrimSpace(value), `"`))
	if value == "" || strings.EqualFold(value, rel.Type) {
		return false, nil
	}

	if err := s.persistRelationFields(ctx, rel.ID, map[string]interface{}{"type": value}); err != nil {
		return false, err
	}
	rel.Type = value
	s.cache.InvalidateRelation(ctx, rel.ID)
	return true, nil
}

// clampTimestamps repairs created_at > updated_at by lifting updated_at to
// created_at, the earliest instant at which the row is self-consistent.
func (s *graphCorrector) clampTimestamps(ctx context.Context, c *types.Conflict) (bool, error) {
	if len(c.Entities) == 0 || c.Entities[0] == nil {
		return false, nil
	}
	e := c.Entities[0]
	if !e.CreatedAt.After(e.UpdatedAt) {
		return false, nil
	}
	if err := s.persistEntityFields(ctx, e.ID, map[string]interface{}{"updated_at": e.CreatedAt}); err != nil {
		return false, err
	}
	e.UpdatedAt = e.CreatedAt
	s.cache.InvalidateEntity(ctx, e.ID)
	return true, nil
}
