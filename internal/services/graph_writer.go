package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jzy12306/lingtuzhipu-sub000/internal/data/repos"
	types "github.com/jzy12306/lingtuzhipu-sub000/internal/domain"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/domain/kg"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/pkg/dbctx"
	kgerr "github.com/jzy12306/lingtuzhipu-sub000/internal/pkg/errors"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/platform/logger"
)

// GraphWriter is the single write path into the knowledge graph. Every write
// lands in Postgres together with its outbox event in one transaction; the
// indexer mirrors it to Neo4j afterwards. There is no direct-to-Neo4j write.
type GraphWriter interface {
	CreateEntity(ctx context.Context, entity *types.Entity) (*types.Entity, error)
	CreateEntities(ctx context.Context, entities []*types.Entity) ([]*types.Entity, error)

	CreateRelation(ctx context.Context, relation *types.Relation) (*types.Relation, error)
	CreateRelations(ctx context.Context, relations []*types.Relation) ([]*types.Relation, error)

	// SaveDocumentGraph persists a whole extracted document graph atomically
	// and reports the document status to the notifier.
	SaveDocumentGraph(ctx context.Context, documentID string, entities []*types.Entity, relations []*types.Relation) error
}

type graphWriter struct {
	db           *gorm.DB
	entityRepo   repos.EntityRepo
	relationRepo repos.RelationRepo
	syncRepo     repos.SyncEventRepo
	notifier     DocumentNotifier
	log          *logger.Logger
}

func NewGraphWriter(
	db *gorm.DB,
	entityRepo repos.EntityRepo,
	relationRepo repos.RelationRepo,
	syncRepo repos.SyncEventRepo,
	notifier DocumentNotifier,
	baseLog *logger.Logger,
) GraphWriter {
	return &graphWriter{
		db:           db,
		entityRepo:   entityRepo,
		relationRepo: relationRepo,
		syncRepo:     syncRepo,
		notifier:     notifier,
		log:          baseLog.With("service", "GraphWriter"),
	}
}

// normalizeEntity fills server-side defaults. Confidence outside (0,1] means
// the extractor did not score the row; it defaults to full confidence.
func normalizeEntity(e *types.Entity, now time.Time) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Confidence <= 0 || e.Confidence > 1 {
		e.Confidence = 1.0
	}
	e.IsValid = true
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
}

func normalizeRelation(rel *types.Relation, now time.Time) error {
	if rel.SourceEntityID == uuid.Nil || rel.TargetEntityID == uuid.Nil {
		return fmt.Errorf("%w: relation requires source and target entity ids", kgerr.ErrInvalidArgument)
	}
	if rel.ID == uuid.Nil {
		rel.ID = uuid.New()
	}
	if rel.Confidence <= 0 || rel.Confidence > 1 {
		rel.Confidence = 1.0
	}
	rel.IsValid = true
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = now
	}
	rel.UpdatedAt = now
	return nil
}

func syncEvents(kind string, ids []uuid.UUID, now time.Time) []*types.GraphSyncEvent {
	out := make([]*types.GraphSyncEvent, 0, len(ids))
	for _, id := range ids {
		out = append(out, &types.GraphSyncEvent{
			ID:          uuid.New(),
			Kind:        kind,
			RecordID:    id,
			AvailableAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return out
}

func (s *graphWriter) CreateEntity(ctx context.Context, entity *types.Entity) (*types.Entity, error) {
	if entity == nil {
		return nil, fmt.Errorf("%w: entity required", kgerr.ErrInvalidArgument)
	}
	rows, err := s.CreateEntities(ctx, []*types.Entity{entity})
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}

func (s *graphWriter) CreateEntities(ctx context.Context, entities []*types.Entity) ([]*types.Entity, error) {
	if len(entities) == 0 {
		return []*types.Entity{}, nil
	}
	now := time.Now().UTC()
	ids := make([]uuid.UUID, 0, len(entities))
	for _, e := range entities {
		if e == nil {
			return nil, fmt.Errorf("%w: nil entity in batch", kgerr.ErrInvalidArgument)
		}
		normalizeEntity(e, now)
		ids = append(ids, e.ID)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := s.entityRepo.Create(dbc, entities); err != nil {
			return err
		}
		return s.syncRepo.Append(dbc, syncEvents(kg.SyncKindEntity, ids, now))
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("entities created", "count", len(entities))
	return entities, nil
}

func (s *graphWriter) CreateRelation(ctx context.Context, relation *types.Relation) (*types.Relation, error) {
	if relation == nil {
		return nil, fmt.Errorf("%w: relation required", kgerr.ErrInvalidArgument)
	}
	rows, err := s.CreateRelations(ctx, []*types.Relation{relation})
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}

func (s *graphWriter) CreateRelations(ctx context.Context, relations []*types.Relation) ([]*types.Relation, error) {
	if len(relations) == 0 {
		return []*types.Relation{}, nil
	}
	now := time.Now().UTC()
	ids := make([]uuid.UUID, 0, len(relations))
	for _, rel := range relations {
		if rel == nil {
			return nil, fmt.Errorf("%w: nil relation in batch", kgerr.ErrInvalidArgument)
		}
		if err := normalizeRelation(rel, now); err != nil {
			return nil, err
		}
		ids = append(ids, rel.ID)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		s.fillCachedNames(dbc, relations)
		if _, err := s.relationRepo.Create(dbc, relations); err != nil {
			return err
		}
		return s.syncRepo.Append(dbc, syncEvents(kg.SyncKindRelation, ids, now))
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("relations created", "count", len(relations))
	return relations, nil
}

// fillCachedNames resolves display names for relation endpoints. Dangling ids
// are left unresolved; the audit flags them later, the write never rejects.
func (s *graphWriter) fillCachedNames(dbc dbctx.Context, relations []*types.Relation) {
	idSet := map[uuid.UUID]struct{}{}
	for _, rel := range relations {
		if rel.SourceEntityName == "" {
			idSet[rel.SourceEntityID] = struct{}{}
		}
		if rel.TargetEntityName == "" {
			idSet[rel.TargetEntityID] = struct{}{}
		}
	}
	if len(idSet) == 0 {
		return
	}
	ids := make([]uuid.UUID, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	rows, err := s.entityRepo.GetByIDs(dbc, ids)
	if err != nil {
		s.log.Warn("name resolution skipped", "error", err)
		return
	}
	names := make(map[uuid.UUID]string, len(rows))
	for _, e := range rows {
		names[e.ID] = e.Name
	}
	for _, rel := range relations {
		if rel.SourceEntityName == "" {
			rel.SourceEntityName = names[rel.SourceEntityID]
		}
		if rel.TargetEntityName == "" {
			rel.TargetEntityName = names[rel.TargetEntityID]
		}
	}
}

func (s *graphWriter) SaveDocumentGraph(ctx context.Context, documentID string, entities []*types.Entity, relations []*types.Relation) error {
	if documentID == "" {
		return fmt.Errorf("%w: document id required", kgerr.ErrInvalidArgument)
	}
	now := time.Now().UTC()

	entityIDs := make([]uuid.UUID, 0, len(entities))
	for _, e := range entities {
		if e == nil {
			return fmt.Errorf("%w: nil entity in document graph", kgerr.ErrInvalidArgument)
		}
		e.DocumentID = documentID
		normalizeEntity(e, now)
		entityIDs = append(entityIDs, e.ID)
	}
	relationIDs := make([]uuid.UUID, 0, len(relations))
	for _, rel := range relations {
		if rel == nil {
			return fmt.Errorf("%w: nil relation in document graph", kgerr.ErrInvalidArgument)
		}
		rel.DocumentID = documentID
		if err := normalizeRelation(rel, now); err != nil {
			if s.notifier != nil {
				s.notifier.DocumentStatusChanged(types.DocumentStatusUpdate{
					DocumentID: documentID,
					Status:     kg.DocumentStatusGraphFailed,
					Detail:     err.Error(),
				})
			}
			return err
		}
		relationIDs = append(relationIDs, rel.ID)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if len(entities) > 0 {
			if _, err := s.entityRepo.Create(dbc, entities); err != nil {
				return err
			}
			if err := s.syncRepo.Append(dbc, syncEvents(kg.SyncKindEntity, entityIDs, now)); err != nil {
				return err
			}
		}
		if len(relations) > 0 {
			s.fillCachedNames(dbc, relations)
			if _, err := s.relationRepo.Create(dbc, relations); err != nil {
				return err
			}
			if err := s.syncRepo.Append(dbc, syncEvents(kg.SyncKindRelation, relationIDs, now)); err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		if s.notifier != nil {
			s.notifier.DocumentStatusChanged(types.DocumentStatusUpdate{
				DocumentID: documentID,
				Status:     kg.DocumentStatusGraphFailed,
				Detail:     err.Error(),
			})
		}
		return err
	}

	if s.notifier != nil {
		s.notifier.DocumentStatusChanged(types.DocumentStatusUpdate{
			DocumentID:    documentID,
			Status:        kg.DocumentStatusGraphSaved,
			EntityCount:   len(entities),
			RelationCount: len(relations),
		})
	}
	s.log.Info("document graph saved",
		"document_id", documentID,
		"entities", len(entities),
		"relations", len(relations),
	)
	return nil
}
