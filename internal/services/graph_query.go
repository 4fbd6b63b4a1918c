package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/jzy12306/lingtuzhipu-sub000/internal/clients/redis"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/data/graph"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/data/repos"
	types "github.com/jzy12306/lingtuzhipu-sub000/internal/domain"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/pkg/dbctx"
	kgerr "github.com/jzy12306/lingtuzhipu-sub000/internal/pkg/errors"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/platform/logger"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/platform/neo4jdb"
)

// EntityPath is a hydrated hop sequence between two entities.
type EntityPath struct {
	Entities  []*types.Entity   `json:"entities"`
	Relations []*types.Relation `json:"relations"`
}

// WeightedPathResult carries a GDS dijkstra result with hydrated entities.
type WeightedPathResult struct {
	Entities  []*types.Entity `json:"entities"`
	TotalCost float64         `json:"total_cost"`
}

// Community is one partition from community detection.
type Community struct {
	ID       string          `json:"id"`
	Entities []*types.Entity `json:"entities"`
}

// GraphQuery answers reads. Lookups go cache, then Postgres; the Neo4j
// projection is a lossy fallback when the primary store errors. Traversals
// run on Neo4j only and fail with ErrGraphUnavailable when it is not
// configured.
type GraphQuery interface {
	GetEntity(ctx context.Context, id uuid.UUID) (*types.Entity, error)
	GetRelation(ctx context.Context, id uuid.UUID) (*types.Relation, error)
	GetEntityRelations(ctx context.Context, entityID uuid.UUID) ([]*types.Relation, error)
	GetDocumentGraph(ctx context.Context, documentID string) ([]*types.Entity, []*types.Relation, error)
	SearchEntities(ctx context.Context, name string, limit int) ([]*types.Entity, error)

	FindEntityPath(ctx context.Context, sourceID, targetID uuid.UUID, maxDepth int) (*EntityPath, error)
	ShortestPathWeighted(ctx context.Context, sourceID, targetID uuid.UUID) (*WeightedPathResult, error)
	DetectCommunities(ctx context.Context, algorithm string) ([]Community, error)
}

type graphQuery struct {
	entityRepo   repos.EntityRepo
	relationRepo repos.RelationRepo
	graphClient  *neo4jdb.Client
	cache        *redis.Cache
	log          *logger.Logger
}

func NewGraphQuery(
	entityRepo repos.EntityRepo,
	relationRepo repos.RelationRepo,
	graphClient *neo4jdb.Client,
	cache *redis.Cache,
	baseLog *logger.Logger,
) GraphQuery {
	return &graphQuery{
		entityRepo:   entityRepo,
		relationRepo: relationRepo,
		graphClient:  graphClient,
		cache:        cache,
		log:          baseLog.With("service", "GraphQuery"),
	}
}

func (s *graphQuery) GetEntity(ctx context.Context, id uuid.UUID) (*types.Entity, error) {
	if id == uuid.Nil {
		return nil, kgerr.ErrInvalidArgument
	}
	if e := s.cache.GetEntity(ctx, id); e != nil {
		return e, nil
	}

	e, err := s.entityRepo.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		s.log.Warn("primary entity read failed; trying projection", "id", id, "error", err)
		fallback, gErr := graph.FetchEntity(ctx, s.graphClient, id)
		if gErr != nil || fallback == nil {
			return nil, err
		}
		return fallback, nil
	}
	if e == nil {
		return nil, kgerr.ErrNotFound
	}
	s.cache.SetEntity(ctx, e)
	return e, nil
}

func (s *graphQuery) GetRelation(ctx context.Context, id uuid.UUID) (*types.Relation, error) {
	if id == uuid.Nil {
		return nil, kgerr.ErrInvalidArgument
	}
	if rel := s.cache.GetRelation(ctx, id); rel != nil {
		return rel, nil
	}

	rel, err := s.relationRepo.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		s.log.Warn("primary relation read failed; trying projection", "id", id, "error", err)
		fallback, gErr := graph.FetchRelation(ctx, s.graphClient, id)
		if gErr != nil || fallback == nil {
			return nil, err
		}
		return fallback, nil
	}
	if rel == nil {
		return nil, kgerr.ErrNotFound
	}
	s.cache.SetRelation(ctx, rel)
	return rel, nil
}

func (s *graphQuery) GetEntityRelations(ctx context.Context, entityID uuid.UUID) ([]*types.Relation, error) {
	if entityID == uuid.Nil {
		return nil, kgerr.ErrInvalidArgument
	}
	return s.relationRepo.GetByEntityID(dbctx.Context{Ctx: ctx}, entityID)
}

func (s *graphQuery) GetDocumentGraph(ctx context.Context, documentID string) ([]*types.Entity, []*types.Relation, error) {
	if documentID == "" {
		return nil, nil, kgerr.ErrInvalidArgument
	}
	dbc := dbctx.Context{Ctx: ctx}

	entities, err := s.entityRepo.GetByDocument(dbc, documentID)
	if err != nil {
		s.log.Warn("primary document read failed; trying projection", "document_id", documentID, "error", err)
		fe, gErr := graph.FetchEntitiesByDocument(ctx, s.graphClient, documentID)
		if gErr != nil {
			return nil, nil, err
		}
		fr, gErr := graph.FetchRelationsByDocument(ctx, s.graphClient, documentID)
		if gErr != nil {
			return nil, nil, err
		}
		return fe, fr, nil
	}

	relations, err := s.relationRepo.GetByDocument(dbc, documentID)
	if err != nil {
		return nil, nil, err
	}
	return entities, relations, nil
}

func (s *graphQuery) SearchEntities(ctx context.Context, name string, limit int) ([]*types.Entity, error) {
	if name == "" {
		return nil, kgerr.ErrInvalidArgument
	}
	return s.entityRepo.SearchByName(dbctx.Context{Ctx: ctx}, name, limit)
}

func (s *graphQuery) FindEntityPath(ctx context.Context, sourceID, targetID uuid.UUID, maxDepth int) (*EntityPath, error) {
	if sourceID == uuid.Nil || targetID == uuid.Nil {
		return nil, kgerr.ErrInvalidArgument
	}
	path, err := graph.FindPath(ctx, s.graphClient, sourceID, targetID, maxDepth)
	if err != nil {
		return nil, err
	}
	if path == nil {
		return nil, kgerr.ErrNotFound
	}

	dbc := dbctx.Context{Ctx: ctx}
	entities, err := s.entityRepo.GetByIDs(dbc, path.EntityIDs)
	if err != nil {
		return nil, err
	}
	relations, err := s.relationRepo.GetByIDs(dbc, path.RelationIDs)
	if err != nil {
		return nil, err
	}
	return &EntityPath{
		Entities:  orderEntities(path.EntityIDs, entities),
		Relations: orderRelations(path.RelationIDs, relations),
	}, nil
}

func (s *graphQuery) ShortestPathWeighted(ctx context.Context, sourceID, targetID uuid.UUID) (*WeightedPathResult, error) {
	if sourceID == uuid.Nil || targetID == uuid.Nil {
		return nil, kgerr.ErrInvalidArgument
	}
	path, err := graph.ShortestPathWeighted(ctx, s.graphClient, sourceID, targetID, "confidence")
	if err != nil {
		return nil, err
	}
	if path == nil {
		return nil, kgerr.ErrNotFound
	}
	entities, err := s.entityRepo.GetByIDs(dbctx.Context{Ctx: ctx}, path.EntityIDs)
	if err != nil {
		return nil, err
	}
	return &WeightedPathResult{
		Entities:  orderEntities(path.EntityIDs, entities),
		TotalCost: path.TotalCost,
	}, nil
}

func (s *graphQuery) DetectCommunities(ctx context.Context, algorithm string) ([]Community, error) {
	partitions, err := graph.DetectCommunities(ctx, s.graphClient, algorithm, "confidence")
	if err != nil {
		return nil, err
	}

	allIDs := make([]uuid.UUID, 0)
	for _, members := range partitions {
		allIDs = append(allIDs, members...)
	}
	rows, err := s.entityRepo.GetByIDs(dbctx.Context{Ctx: ctx}, allIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*types.Entity, len(rows))
	for _, e := range rows {
		byID[e.ID] = e
	}

	out := make([]Community, 0, len(partitions))
	for cid, members := range partitions {
		c := Community{ID: cid}
		for _, id := range members {
			if e, ok := byID[id]; ok {
				c.Entities = append(c.Entities, e)
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func orderEntities(ids []uuid.UUID, rows []*types.Entity) []*types.Entity {
	byID := make(map[uuid.UUID]*types.Entity, len(rows))
	for _, e := range rows {
		byID[e.ID] = e
	}
	out := make([]*types.Entity, 0, len(ids))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

func orderRelations(ids []uuid.UUID, rows []*types.Relation) []*types.Relation {
	byID := make(map[uuid.UUID]*types.Relation, len(rows))
	for _, rel := range rows {
		byID[rel.ID] = rel
	}
	out := make([]*types.Relation, 0, len(ids))
	for _, id := range ids {
		if rel, ok := byID[id]; ok {
			out = append(out, rel)
		}
	}
	return out
}
