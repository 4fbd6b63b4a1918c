package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/jzy12306/lingtuzhipu-sub000/internal/http/response"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/platform/logger"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/services"
)

type AdminHandler struct {
	log     *logger.Logger
	indexer services.GraphIndexer
}

func NewAdminHandler(log *logger.Logger, indexer services.GraphIndexer) *AdminHandler {
	return &AdminHandler{
		log:     log.With("handler", "AdminHandler"),
		indexer: indexer,
	}
}

// POST /v1/admin/graph/rebuild
func (h *AdminHandler) RebuildProjection(c *gin.Context) {
	if err := h.indexer.Rebuild(c.Request.Context()); err != nil {
		h.log.Error("RebuildProjection failed", "error", err)
		respondServiceError(c, "graph_rebuild_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"status": "rebuilt"})
}

// GET /v1/admin/graph/backlog
func (h *AdminHandler) SyncBacklog(c *gin.Context) {
	n, err := h.indexer.Backlog(c.Request.Context())
	if err != nil {
		h.log.Error("SyncBacklog failed", "error", err)
		respondServiceError(c, "graph_backlog_failed", err)
		return
	}
	out := gin.H{"pending": n}
	// Projection counts are best effort; the backlog figure stands on its own
	// when Neo4j is unreachable.
	if nodes, edges, cErr := h.indexer.ProjectionCounts(c.Request.Context()); cErr == nil {
		out["projection_nodes"] = nodes
		out["projection_edges"] = edges
	}
	response.RespondOK(c, out)
}
