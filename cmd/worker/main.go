package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/gavelworks/gavelworks/internal/app"
	"github.com/gavelworks/gavelworks/internal/billing"
	"github.com/gavelworks/gavelworks/internal/integration"
	jobmetrics "github.com/gavelworks/gavelworks/internal/jobs"
	"github.com/gavelworks/gavelworks/internal/ledger/accounts"
	"github.com/gavelworks/gavelworks/internal/ledger/journals"
	"github.com/gavelworks/gavelworks/internal/ledger/mappings"
	"github.com/gavelworks/gavelworks/internal/observability"
	"github.com/gavelworks/gavelworks/internal/platform/db"
	"github.com/gavelworks/gavelworks/internal/recurring"
	"github.com/gavelworks/gavelworks/internal/shared"
	"github.com/gavelworks/gavelworks/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	metrics := observability.NewMetrics()
	runMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	auditLogger := shared.NewAuditLogger(pool)

	journalsRepo := journals.NewRepository(pool)
	journalsService := journals.NewService(journalsRepo, auditLogger, metrics)

	mappingsRepo := mappings.NewRepository(pool)
	hooks := integration.NewHooks(logger, journalsService, mappingsRepo, metrics)
	billingService := billing.NewService(billing.NewRepository(pool), hooks, auditLogger)

	recurringRepo := recurring.NewRepository(pool)
	recurringService := recurring.NewService(logger, recurringRepo, billingService, metrics, auditLogger)

	accountsRepo := accounts.NewRepository(pool)
	reconciler := accounts.NewReconciler(accountsRepo, logger, metrics)

	recurringLock := shared.NewTickLock(redisClient, shared.RecurringTickLockKey(), cfg.TickLockTTL)
	reconcileLock := shared.NewTickLock(redisClient, shared.ReconcileLockKey(), cfg.TickLockTTL)

	recurringTask, err := jobs.NewRecurringProcessDueTask(time.Time{})
	if err != nil {
		logger.Error("build recurring task", slog.Any("error", err))
		os.Exit(1)
	}
	reconcileTask, err := jobs.NewLedgerReconcileTask(time.Time{})
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRecurringProcessDue, Handler: jobs.NewRecurringHandler(logger, recurringService, recurringLock, runMetrics)},
			{Type: jobs.TaskLedgerReconcile, Handler: jobs.NewReconcileHandler(logger, reconciler, reconcileLock, runMetrics)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RecurringCron, Task: recurringTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.ReconcileCron, Task: reconcileTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting", slog.String("recurring_cron", cfg.RecurringCron), slog.String("reconcile_cron", cfg.ReconcileCron))
	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
