package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/jzy12306/lingtuzhipu-sub000/internal/domain"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/http/response"
	kgerr "github.com/jzy12306/lingtuzhipu-sub000/internal/pkg/errors"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/platform/logger"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/services"
)

type GraphHandler struct {
	log    *logger.Logger
	writer services.GraphWriter
	query  services.GraphQuery
}

func NewGraphHandler(
	log *logger.Logger,
	writer services.GraphWriter,
	query services.GraphQuery,
) *GraphHandler {
	return &GraphHandler{
		log:    log.With("handler", "GraphHandler"),
		writer: writer,
		query:  query,
	}
}

func respondServiceError(c *gin.Context, code string, err error) {
	switch {
	case errors.Is(err, kgerr.ErrInvalidArgument):
		response.RespondError(c, http.StatusBadRequest, code, err)
	case errors.Is(err, kgerr.ErrNotFound):
		response.RespondError(c, http.StatusNotFound, code, err)
	case errors.Is(err, kgerr.ErrGraphUnavailable):
		response.RespondError(c, http.StatusServiceUnavailable, code, err)
	default:
		response.RespondError(c, http.StatusInternalServerError, code, err)
	}
}

// POST /v1/entities
func (h *GraphHandler) CreateEntity(c *gin.Context) {
	var req types.Entity
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_entity_payload", err)
		return
	}
	row, err := h.writer.CreateEntity(c.Request.Context(), &req)
	if err != nil {
		h.log.Error("CreateEntity failed", "error", err)
		respondServiceError(c, "create_entity_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"entity": row})
}

// POST /v1/entities/batch
func (h *GraphHandler) CreateEntities(c *gin.Context) {
	var req struct {
		Entities []*types.Entity `json:"entities"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_entity_payload", err)
		return
	}
	rows, err := h.writer.CreateEntities(c.Request.Context(), req.Entities)
	if err != nil {
		h.log.Error("CreateEntities failed", "error", err, "count", len(req.Entities))
		respondServiceError(c, "create_entities_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"entities": rows})
}

// POST /v1/relations
func (h *GraphHandler) CreateRelation(c *gin.Context) {
	var req types.Relation
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_relation_payload", err)
		return
	}
	row, err := h.writer.CreateRelation(c.Request.Context(), &req)
	if err != nil {
		h.log.Error("CreateRelation failed", "error", err)
		respondServiceError(c, "create_relation_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"relation": row})
}

// POST /v1/relations/batch
func (h *GraphHandler) CreateRelations(c *gin.Context) {
	var req struct {
		Relations []*types.Relation `json:"relations"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_relation_payload", err)
		return
	}
	rows, err := h.writer.CreateRelations(c.Request.Context(), req.Relations)
	if err != nil {
		h.log.Error("CreateRelations failed", "error", err, "count", len(req.Relations))
		respondServiceError(c, "create_relations_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"relations": rows})
}

// POST /v1/documents/:id/graph
func (h *GraphHandler) SaveDocumentGraph(c *gin.Context) {
	documentID := c.Param("id")
	var req struct {
		Entities  []*types.Entity   `json:"entities"`
		Relations []*types.Relation `json:"relations"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_graph_payload", err)
		return
	}
	if err := h.writer.SaveDocumentGraph(c.Request.Context(), documentID, req.Entities, req.Relations); err != nil {
		h.log.Error("SaveDocumentGraph failed", "error", err, "document_id", documentID)
		respondServiceError(c, "save_document_graph_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{
		"document_id": documentID,
		"entities":    req.Entities,
		"relations":   req.Relations,
	})
}

// GET /v1/entities/:id
func (h *GraphHandler) GetEntity(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_entity_id", err)
		return
	}
	row, err := h.query.GetEntity(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, "get_entity_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"entity": row})
}

// GET /v1/relations/:id
func (h *GraphHandler) GetRelation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_relation_id", err)
		return
	}
	row, err := h.query.GetRelation(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, "get_relation_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"relation": row})
}

// GET /v1/entities/:id/relations
func (h *GraphHandler) GetEntityRelations(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_entity_id", err)
		return
	}
	rows, err := h.query.GetEntityRelations(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, "get_entity_relations_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"relations": rows})
}

// GET /v1/documents/:id/graph
func (h *GraphHandler) GetDocumentGraph(c *gin.Context) {
	documentID := c.Param("id")
	entities, relations, err := h.query.GetDocumentGraph(c.Request.Context(), documentID)
	if err != nil {
		respondServiceError(c, "get_document_graph_failed", err)
		return
	}
	response.RespondOK(c, gin.H{
		"document_id": documentID,
		"entities":    entities,
		"relations":   relations,
	})
}

// GET /v1/search?q=...&limit=...
func (h *GraphHandler) SearchEntities(c *gin.Context) {
	q := c.Query("q")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	rows, err := h.query.SearchEntities(c.Request.Context(), q, limit)
	if err != nil {
		respondServiceError(c, "search_entities_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"entities": rows})
}

func pathEndpoints(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	source, err := uuid.Parse(c.Query("source"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_source_id", err)
		return uuid.Nil, uuid.Nil, false
	}
	target, err := uuid.Parse(c.Query("target"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_target_id", err)
		return uuid.Nil, uuid.Nil, false
	}
	return source, target, true
}

// GET /v1/path?source=...&target=...&max_depth=...
func (h *GraphHandler) FindEntityPath(c *gin.Context) {
	source, target, ok := pathEndpoints(c)
	if !ok {
		return
	}
	maxDepth, _ := strconv.Atoi(c.DefaultQuery("max_depth", "5"))

	path, err := h.query.FindEntityPath(c.Request.Context(), source, target, maxDepth)
	if err != nil {
		respondServiceError(c, "find_path_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"path": path})
}

// GET /v1/shortest-path?source=...&target=...
func (h *GraphHandler) ShortestPathWeighted(c *gin.Context) {
	source, target, ok := pathEndpoints(c)
	if !ok {
		return
	}
	path, err := h.query.ShortestPathWeighted(c.Request.Context(), source, target)
	if err != nil {
		respondServiceError(c, "shortest_path_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"path": path})
}

// GET /v1/communities?algorithm=louvain|leiden
func (h *GraphHandler) DetectCommunities(c *gin.Context) {
	communities, err := h.query.DetectCommunities(c.Request.Context(), c.Query("algorithm"))
	if err != nil {
		respondServiceError(c, "detect_communities_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"communities": communities})
}
