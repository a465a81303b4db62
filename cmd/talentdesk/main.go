package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/talentdesk/talentdesk/internal/app"
	"github.com/talentdesk/talentdesk/internal/audit"
	audithttp "github.com/talentdesk/talentdesk/internal/audit/http"
	"github.com/talentdesk/talentdesk/internal/observability"
	"github.com/talentdesk/talentdesk/internal/platform/cache"
	"github.com/talentdesk/talentdesk/internal/platform/db"
	"github.com/talentdesk/talentdesk/internal/rbac"
	"github.com/talentdesk/talentdesk/internal/shared"
	"github.com/talentdesk/talentdesk/internal/workflow"
	workflowhttp "github.com/talentdesk/talentdesk/internal/workflow/http"
	"github.com/talentdesk/talentdesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	auditRepo := audit.NewRepository(dbpool)
	auditService := audit.NewService(auditRepo)

	resolver := rbac.NewResolver(rbac.NewRepository(dbpool, auditRepo), authzCache(cfg, redisClient), logger).
		WithMetrics(metrics)
	if _, err := resolver.EnsureCatalog(ctx, shared.Catalog()); err != nil {
		logger.Warn("sync permission catalog", slog.Any("error", err))
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB}
	notifier := jobs.NewClient(redisOpts, jobs.ClientOptions{
		Queue:          cfg.NotifyQueue,
		MaxRetry:       cfg.NotifyMaxRetry,
		Timeout:        cfg.NotifyTimeout,
		EnqueueTimeout: cfg.NotifyEnqueueWait,
	})
	defer func() {
		if err := notifier.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("asynq inspector close", slog.Any("error", err))
		}
	}()

	workflowRepo := workflow.NewRepository(dbpool, auditRepo)
	engine := workflow.NewEngine(
		workflow.DefaultRegistry(),
		workflowRepo,
		resolver,
		workflow.NewEffects(workflowRepo, notifier),
		logger,
	).WithMetrics(metrics)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Metrics:         metrics,
		RBACHandler:     rbac.NewHandler(logger, resolver),
		WorkflowHandler: workflowhttp.NewHandler(logger, engine),
		AuditHandler:    audithttp.NewHandler(logger, auditService, resolver),
		JobHandler:      jobs.NewHandler(inspector, jobs.NewInbox(redisClient, cfg.NotifyInboxSize), cfg.NotifyQueue, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("authz_cache", cfg.AuthzCache))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func authzCache(cfg *app.Config, client *redis.Client) rbac.Cache {
	if cfg.AuthzCache == "memory" {
		return rbac.NewMemoryCache()
	}
	return rbac.NewRedisCache(client, cfg.AuthzCacheTTL)
}
