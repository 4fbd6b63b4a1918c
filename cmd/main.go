package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jzy12306/lingtuzhipu-sub000/internal/clients/openai"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/clients/redis"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/data/db"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/data/repos"
	httpServer "github.com/jzy12306/lingtuzhipu-sub000/internal/http"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/http/handlers"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/observability"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/platform/envutil"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/platform/logger"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/platform/neo4jdb"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/services"
)

func main() {
	// Logger
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownOtel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: envutil.String("OTEL_SERVICE_NAME", "lingtuzhipu"),
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),
	})

	// Postgres (authoritative store)
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	pg := postgresService.DB()

	// Neo4j (derived projection; optional)
	graphClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Warn("Neo4j init failed; graph queries disabled", "error", err)
	}

	// Redis (read-through cache; optional)
	cache, err := redis.NewCacheFromEnv(log)
	if err != nil {
		log.Warn("Redis init failed; cache disabled", "error", err)
	}

	// Repos
	entityRepo := repos.NewEntityRepo(pg, log)
	relationRepo := repos.NewRelationRepo(pg, log)
	syncEventRepo := repos.NewSyncEventRepo(pg, log)

	// Semantic rule table
	rules, err := services.LoadRuleTable()
	if err != nil {
		log.Error("Could not load semantic rules", "error", err)
		os.Exit(1)
	}

	// Generative collaborator (optional; correction degrades without it)
	var generator services.TextGenerator
	if oc, err := openai.NewClient(log); err != nil {
		log.Warn("OpenAI init failed; generative correction disabled", "error", err)
	} else {
		generator = oc
	}

	// Services
	notifier := services.NewLogNotifier(log)
	writer := services.NewGraphWriter(pg, entityRepo, relationRepo, syncEventRepo, notifier, log)
	indexer := services.NewGraphIndexer(pg, graphClient, entityRepo, relationRepo, syncEventRepo, log)
	query := services.NewGraphQuery(entityRepo, relationRepo, graphClient, cache, log)
	auditor := services.NewGraphAuditor(entityRepo, relationRepo, rules, log)
	corrector := services.NewGraphCorrector(pg, entityRepo, relationRepo, syncEventRepo, generator, cache, log)
	reporter := services.NewAuditReporter(auditor, entityRepo, relationRepo, log)

	go indexer.Start(ctx)

	// HTTP
	srv := httpServer.NewServer(httpServer.RouterConfig{
		Log:           log,
		GraphHandler:  handlers.NewGraphHandler(log, writer, query),
		AuditHandler:  handlers.NewAuditHandler(log, auditor, corrector, reporter),
		AdminHandler:  handlers.NewAdminHandler(log, indexer),
		HealthHandler: handlers.NewHealthHandler(),
	})

	addr := envutil.String("HTTP_ADDR", ":8080")
	log.Info("server starting", "addr", addr)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(addr) }()

	select {
	case err := <-errCh:
		log.Error("server exited", "error", err)
	case <-ctx.Done():
		log.Info("shutting down")
	}

	if shutdownOtel != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOtel(shutdownCtx)
	}
	_ = graphClient.Close(context.Background())
	_ = cache.Close()
}
