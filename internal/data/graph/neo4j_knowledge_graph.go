// Package graph maintains the Neo4j projection of the knowledge graph:
// Entity nodes and RELATES_TO edges keyed by the primary-store ids. The
// projection is derived state; everything here can be rebuilt from Postgres.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	types "github.com/jzy12306/lingtuzhipu-sub000/internal/domain"
	kgerr "github.com/jzy12306/lingtuzhipu-sub000/internal/pkg/errors"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/platform/logger"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/platform/neo4jdb"
)

const relType = "RELATES_TO"

// EnsureSchema creates the id constraints and lookup indexes. Best-effort;
// restricted users may not be allowed to touch schema.
func EnsureSchema(ctx context.Context, client *neo4jdb.Client, log *logger.Logger) {
	if !client.Available() {
		return
	}
	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	stmts := []string{
		`CREATE CONSTRAINT kg_entity_id_unique IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE`,
		`CREATE INDEX kg_entity_document_idx IF NOT EXISTS FOR (e:Entity) ON (e.document_id)`,
	}
	for _, stmt := range stmts {
		if res, err := session.Run(ctx, stmt, nil); err != nil {
			if log != nil {
				log.Warn("neo4j schema init failed (continuing)", "error", err)
			}
		} else {
			_, _ = res.Consume(ctx)
		}
	}
}

func entityProps(e *types.Entity) map[string]any {
	return map[string]any{
		"id":                 e.ID.String(),
		"name":               e.Name,
		"type":               e.Type,
		"description":        e.Description,
		"confidence":         e.Confidence,
		"is_valid":           e.IsValid,
		"source_document_id": e.SourceDocumentID,
		"document_id":        e.DocumentID,
		"user_id":            e.UserID,
		"created_at":         e.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":         e.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"synced_at":          time.Now().UTC().Format(time.RFC3339Nano),
	}
}

func relationProps(rel *types.Relation) map[string]any {
	return map[string]any{
		"id":                 rel.ID.String(),
		"source_id":          rel.SourceEntityID.String(),
		"target_id":          rel.TargetEntityID.String(),
		"type":               rel.Type,
		"description":        rel.Description,
		"confidence":         rel.Confidence,
		"is_valid":           rel.IsValid,
		"source_document_id": rel.SourceDocumentID,
		"document_id":        rel.DocumentID,
		"user_id":            rel.UserID,
		"created_at":         rel.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":         rel.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"synced_at":          time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// UpsertEntity mirrors one entity into the projection, idempotently.
func UpsertEntity(ctx context.Context, client *neo4jdb.Client, e *types.Entity) error {
	if !client.Available() {
		return kgerr.ErrGraphUnavailable
	}
	if e == nil || e.ID == uuid.Nil {
		return fmt.Errorf("graph upsert entity: missing id")
	}
	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (e:Entity {id: $props.id})
SET e += $props
`, map[string]any{"props": entityProps(e)})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

// UpsertRelation mirrors one relation into the projection. Errors when either
// endpoint node is not present yet; the caller retries via the outbox.
func UpsertRelation(ctx context.Context, client *neo4jdb.Client, rel *types.Relation) error {
	if !client.Available() {
		return kgerr.ErrGraphUnavailable
	}
	if rel == nil || rel.ID == uuid.Nil {
		return fmt.Errorf("graph upsert relation: missing id")
	}
	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	merged, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (a:Entity {id: $props.source_id})
MATCH (b:Entity {id: $props.target_id})
MERGE (a)-[r:RELATES_TO {id: $props.id}]->(b)
SET r += $props
RETURN count(r) AS merged
`, map[string]any{"props": relationProps(rel)})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return int64(0), nil
		}
		n, _ := rec.Get("merged")
		return n, nil
	})
	if err != nil {
		return err
	}
	if n, ok := merged.(int64); ok && n == 0 {
		return fmt.Errorf("graph upsert relation %s: source or target node not present", rel.ID)
	}
	return nil
}

// UpsertEntities and UpsertRelations are the batched variants used when
// rebuilding the projection from the primary store.
func UpsertEntities(ctx context.Context, client *neo4jdb.Client, entities []*types.Entity) error {
	if !client.Available() {
		return kgerr.ErrGraphUnavailable
	}
	nodes := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		if e == nil || e.ID == uuid.Nil {
			continue
		}
		nodes = append(nodes, entityProps(e))
	}
	if len(nodes) == 0 {
		return nil
	}
	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
UNWIND $nodes AS n
MERGE (e:Entity {id: n.id})
SET e += n
`, map[string]any{"nodes": nodes})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

func UpsertRelations(ctx context.Context, client *neo4jdb.Client, relations []*types.Relation) error {
	if !client.Available() {
		return kgerr.ErrGraphUnavailable
	}
	rels := make([]map[string]any, 0, len(relations))
	for _, rel := range relations {
		if rel == nil || rel.ID == uuid.Nil {
			continue
		}
		rels = append(rels, relationProps(rel))
	}
	if len(rels) == 0 {
		return nil
	}
	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
UNWIND $rels AS rel
MATCH (a:Entity {id: rel.source_id})
MATCH (b:Entity {id: rel.target_id})
MERGE (a)-[r:RELATES_TO {id: rel.id}]->(b)
SET r += rel
`, map[string]any{"rels": rels})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

// FetchEntity reconstructs an entity from node properties. Lossy: anything
// not mirrored onto the node comes back zero-valued.
func FetchEntity(ctx context.Context, client *neo4jdb.Client, id uuid.UUID) (*types.Entity, error) {
	if !client.Available() {
		return nil, kgerr.ErrGraphUnavailable
	}
	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (e:Entity {id: $id})
RETURN properties(e) AS props
`, map[string]any{"id": id.String()})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, nil
		}
		raw, _ := rec.Get("props")
		props, _ := raw.(map[string]any)
		return entityFromProps(props), nil
	})
	if err != nil {
		return nil, err
	}
	e, _ := out.(*types.Entity)
	return e, nil
}

func FetchRelation(ctx context.Context, client *neo4jdb.Client, id uuid.UUID) (*types.Relation, error) {
	if !client.Available() {
		return nil, kgerr.ErrGraphUnavailable
	}
	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (a:Entity)-[r:RELATES_TO {id: $id}]->(b:Entity)
RETURN properties(r) AS props, a.name AS source_name, b.name AS target_name
`, map[string]any{"id": id.String()})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, nil
		}
		raw, _ := rec.Get("props")
		props, _ := raw.(map[string]any)
		rel := relationFromProps(props)
		if rel != nil {
			if v, ok := rec.Get("source_name"); ok {
				rel.SourceEntityName, _ = v.(string)
			}
			if v, ok := rec.Get("target_name"); ok {
				rel.TargetEntityName, _ = v.(string)
			}
		}
		return rel, nil
	})
	if err != nil {
		return nil, err
	}
	rel, _ := out.(*types.Relation)
	return rel, nil
}

func FetchEntitiesByDocument(ctx context.Context, client *neo4jdb.Client, documentID string) ([]*types.Entity, error) {
	if !client.Available() {
		return nil, kgerr.ErrGraphUnavailable
	}
	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (e:Entity {document_id: $doc})
RETURN properties(e) AS props
`, map[string]any{"doc": documentID})
		if err != nil {
			return nil, err
		}
		var entities []*types.Entity
		for res.Next(ctx) {
			raw, _ := res.Record().Get("props")
			props, _ := raw.(map[string]any)
			if e := entityFromProps(props); e != nil {
				entities = append(entities, e)
			}
		}
		return entities, res.Err()
	})
	if err != nil {
		return nil, err
	}
	entities, _ := out.([]*types.Entity)
	return entities, nil
}

func FetchRelationsByDocument(ctx context.Context, client *neo4jdb.Client, documentID string) ([]*types.Relation, error) {
	if !client.Available() {
		return nil, kgerr.ErrGraphUnavailable
	}
	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (a:Entity)-[r:RELATES_TO {document_id: $doc}]->(b:Entity)
RETURN properties(r) AS props, a.name AS source_name, b.name AS target_name
`, map[string]any{"doc": documentID})
		if err != nil {
			return nil, err
		}
		var relations []*types.Relation
		for res.Next(ctx) {
			rec := res.Record()
			raw, _ := rec.Get("props")
			props, _ := raw.(map[string]any)
			rel := relationFromProps(props)
			if rel == nil {
				continue
			}
			if v, ok := rec.Get("source_name"); ok {
				rel.SourceEntityName, _ = v.(string)
			}
			if v, ok := rec.Get("target_name"); ok {
				rel.TargetEntityName, _ = v.(string)
			}
			relations = append(relations, rel)
		}
		return relations, res.Err()
	})
	if err != nil {
		return nil, err
	}
	relations, _ := out.([]*types.Relation)
	return relations, nil
}

// PathResult is a hop sequence between two entities: len(RelationIDs) ==
// len(EntityIDs) - 1.
type PathResult struct {
	EntityIDs   []uuid.UUID
	RelationIDs []uuid.UUID
}

// FindPath runs an undirected bounded-depth shortest path. Depth is clamped
// to [1,10]; the variable-length bound must be a query literal.
func FindPath(ctx context.Context, client *neo4jdb.Client, sourceID, targetID uuid.UUID, maxDepth int) (*PathResult, error) {
	if !client.Available() {
		return nil, kgerr.ErrGraphUnavailable
	}
	if maxDepth < 1 {
		maxDepth = 1
	}
	if maxDepth > 10 {
		maxDepth = 10
	}
	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
MATCH (a:Entity {id: $src}), (b:Entity {id: $dst})
MATCH p = shortestPath((a)-[:RELATES_TO*..%d]-(b))
RETURN [n IN nodes(p) | n.id] AS node_ids, [r IN relationships(p) | r.id] AS rel_ids
`, maxDepth)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{
			"src": sourceID.String(),
			"dst": targetID.String(),
		})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, nil
		}
		path := &PathResult{}
		if raw, ok := rec.Get("node_ids"); ok {
			path.EntityIDs = uuidList(raw)
		}
		if raw, ok := rec.Get("rel_ids"); ok {
			path.RelationIDs = uuidList(raw)
		}
		return path, nil
	})
	if err != nil {
		return nil, err
	}
	path, _ := out.(*PathResult)
	return path, nil
}

// WeightedPath is the result of a GDS dijkstra run over the confidence-
// weighted projection.
type WeightedPath struct {
	EntityIDs []uuid.UUID
	TotalCost float64
}

// ShortestPathWeighted projects the graph with the given relationship weight
// property, runs dijkstra, and drops the projection again.
func ShortestPathWeighted(ctx context.Context, client *neo4jdb.Client, sourceID, targetID uuid.UUID, weightProperty string) (*WeightedPath, error) {
	if !client.Available() {
		return nil, kgerr.ErrGraphUnavailable
	}
	if weightProperty == "" {
		weightProperty = "confidence"
	}
	graphName := "kg_path_" + uuid.NewString()

	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	if err := projectGraph(ctx, session, graphName, weightProperty); err != nil {
		return nil, err
	}
	defer dropGraph(ctx, session, graphName)

	res, err := session.Run(ctx, `
MATCH (a:Entity {id: $src}), (b:Entity {id: $dst})
CALL gds.shortestPath.dijkstra.stream($graph, {
	sourceNode: a,
	targetNode: b,
	relationshipWeightProperty: $weight
})
YIELD totalCost, nodeIds
RETURN totalCost, [nodeId IN nodeIds | gds.util.asNode(nodeId).id] AS node_ids
`, map[string]any{
		"graph":  graphName,
		"src":    sourceID.String(),
		"dst":    targetID.String(),
		"weight": weightProperty,
	})
	if err != nil {
		return nil, err
	}
	rec, err := res.Single(ctx)
	if err != nil {
		return nil, nil
	}
	path := &WeightedPath{}
	if raw, ok := rec.Get("totalCost"); ok {
		path.TotalCost, _ = raw.(float64)
	}
	if raw, ok := rec.Get("node_ids"); ok {
		path.EntityIDs = uuidList(raw)
	}
	return path, nil
}

// DetectCommunities partitions the projection via gds louvain or leiden and
// returns community id -> member entity ids.
func DetectCommunities(ctx context.Context, client *neo4jdb.Client, algorithm, weightProperty string) (map[string][]uuid.UUID, error) {
	if !client.Available() {
		return nil, kgerr.ErrGraphUnavailable
	}
	var proc string
	switch algorithm {
	case "", "louvain":
		proc = "gds.louvain.stream"
	case "leiden":
		proc = "gds.leiden.stream"
	default:
		return nil, fmt.Errorf("%w: unsupported community algorithm %q", kgerr.ErrInvalidArgument, algorithm)
	}
	if weightProperty == "" {
		weightProperty = "confidence"
	}
	graphName := "kg_community_" + uuid.NewString()

	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	if err := projectGraph(ctx, session, graphName, weightProperty); err != nil {
		return nil, err
	}
	defer dropGraph(ctx, session, graphName)

	query := fmt.Sprintf(`
CALL %s($graph, {relationshipWeightProperty: $weight})
YIELD nodeId, communityId
RETURN communityId, collect(gds.util.asNode(nodeId).id) AS members
`, proc)

	res, err := session.Run(ctx, query, map[string]any{
		"graph":  graphName,
		"weight": weightProperty,
	})
	if err != nil {
		return nil, err
	}
	communities := map[string][]uuid.UUID{}
	for res.Next(ctx) {
		rec := res.Record()
		rawID, _ := rec.Get("communityId")
		cid, _ := rawID.(int64)
		rawMembers, _ := rec.Get("members")
		communities[fmt.Sprintf("%d", cid)] = uuidList(rawMembers)
	}
	return communities, res.Err()
}

// Counts reports projection size; used for health reporting only.
func Counts(ctx context.Context, client *neo4jdb.Client) (nodes, edges int64, err error) {
	if !client.Available() {
		return 0, 0, kgerr.ErrGraphUnavailable
	}
	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	res, err := session.Run(ctx, `
MATCH (e:Entity)
OPTIONAL MATCH ()-[r:RELATES_TO]->()
RETURN count(DISTINCT e) AS nodes, count(DISTINCT r) AS edges
`, nil)
	if err != nil {
		return 0, 0, err
	}
	rec, err := res.Single(ctx)
	if err != nil {
		return 0, 0, err
	}
	if raw, ok := rec.Get("nodes"); ok {
		nodes, _ = raw.(int64)
	}
	if raw, ok := rec.Get("edges"); ok {
		edges, _ = raw.(int64)
	}
	return nodes, edges, nil
}

func projectGraph(ctx context.Context, session neo4j.SessionWithContext, name, weightProperty string) error {
	res, err := session.Run(ctx, `
CALL gds.graph.project($name, 'Entity', {
	RELATES_TO: {properties: $weight}
})
`, map[string]any{"name": name, "weight": weightProperty})
	if err != nil {
		return fmt.Errorf("graph project: %w", err)
	}
	_, err = res.Consume(ctx)
	return err
}

func dropGraph(ctx context.Context, session neo4j.SessionWithContext, name string) {
	res, err := session.Run(ctx, `CALL gds.graph.drop($name, false)`, map[string]any{"name": name})
	if err == nil {
		_, _ = res.Consume(ctx)
	}
}

func uuidList(raw any) []uuid.UUID {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

func entityFromProps(props map[string]any) *types.Entity {
	if props == nil {
		return nil
	}
	id, err := uuid.Parse(str(props["id"]))
	if err != nil {
		return nil
	}
	return &types.Entity{
		ID:               id,
		Name:             str(props["name"]),
		Type:             str(props["type"]),
		Description:      str(props["description"]),
		Confidence:       flt(props["confidence"]),
		IsValid:          boolean(props["is_valid"]),
		SourceDocumentID: str(props["source_document_id"]),
		DocumentID:       str(props["document_id"]),
		UserID:           str(props["user_id"]),
		CreatedAt:        ts(props["created_at"]),
		UpdatedAt:        ts(props["updated_at"]),
	}
}

func relationFromProps(props map[string]any) *types.Relation {
	if props == nil {
		return nil
	}
	id, err := uuid.Parse(str(props["id"]))
	if err != nil {
		return nil
	}
	sourceID, _ := uuid.Parse(str(props["source_id"]))
	targetID, _ := uuid.Parse(str(props["target_id"]))
	return &types.Relation{
		ID:               id,
		SourceEntityID:   sourceID,
		TargetEntityID:   targetID,
		Type:             str(props["type"]),
		Description:      str(props["description"]),
		Confidence:       flt(props["confidence"]),
		IsValid:          boolean(props["is_valid"]),
		SourceDocumentID: str(props["source_document_id"]),
		DocumentID:       str(props["document_id"]),
		UserID:           str(props["user_id"]),
		CreatedAt:        ts(props["created_at"]),
		UpdatedAt:        ts(props["updated_at"]),
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func flt(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	default:
		return 0
	}
}

func boolean(v any) bool {
	b, _ := v.(bool)
	return b
}

func ts(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
