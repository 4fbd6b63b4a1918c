package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/jzy12306/lingtuzhipu-sub000/internal/http/handlers"
	httpMW "github.com/jzy12306/lingtuzhipu-sub000/internal/http/middleware"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/platform/envutil"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	GraphHandler *httpH.GraphHandler
	AuditHandler *httpH.AuditHandler
	AdminHandler *httpH.AdminHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if envutil.Bool("OTEL_ENABLED", false) {
		r.Use(otelgin.Middleware(envutil.String("OTEL_SERVICE_NAME", "lingtuzhipu")))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}

	v1 := r.Group("/v1")
	{
		if cfg.GraphHandler != nil {
			v1.POST("/entities", cfg.GraphHandler.CreateEntity)
			v1.POST("/entities/batch", cfg.GraphHandler.CreateEntities)
			v1.GET("/entities/:id", cfg.GraphHandler.GetEntity)
			v1.GET("/entities/:id/relations", cfg.GraphHandler.GetEntityRelations)

			v1.POST("/relations", cfg.GraphHandler.CreateRelation)
			v1.POST("/relations/batch", cfg.GraphHandler.CreateRelations)
			v1.GET("/relations/:id", cfg.GraphHandler.GetRelation)

			v1.POST("/documents/:id/graph", cfg.GraphHandler.SaveDocumentGraph)
			v1.GET("/documents/:id/graph", cfg.GraphHandler.GetDocumentGraph)

			v1.GET("/search", cfg.GraphHandler.SearchEntities)
			v1.GET("/path", cfg.GraphHandler.FindEntityPath)
			v1.GET("/shortest-path", cfg.GraphHandler.ShortestPathWeighted)
			v1.GET("/communities", cfg.GraphHandler.DetectCommunities)
		}

		if cfg.AuditHandler != nil {
			v1.POST("/audit", cfg.AuditHandler.RunAudit)
			v1.POST("/audit/correct", cfg.AuditHandler.RunCorrection)
			v1.POST("/audit/report", cfg.AuditHandler.GenerateReport)
		}

		if cfg.AdminHandler != nil {
			v1.POST("/admin/graph/rebuild", cfg.AdminHandler.RebuildProjection)
			v1.GET("/admin/graph/backlog", cfg.AdminHandler.SyncBacklog)
		}
	}

	return r
}
