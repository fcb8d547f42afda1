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

	"github.com/gavelworks/gavelworks/internal/app"
	"github.com/gavelworks/gavelworks/internal/billing"
	"github.com/gavelworks/gavelworks/internal/integration"
	"github.com/gavelworks/gavelworks/internal/ledger/accounts"
	"github.com/gavelworks/gavelworks/internal/ledger/closing"
	"github.com/gavelworks/gavelworks/internal/ledger/journals"
	"github.com/gavelworks/gavelworks/internal/ledger/mappings"
	"github.com/gavelworks/gavelworks/internal/ledger/periods"
	"github.com/gavelworks/gavelworks/internal/observability"
	"github.com/gavelworks/gavelworks/internal/platform/db"
	"github.com/gavelworks/gavelworks/internal/recurring"
	"github.com/gavelworks/gavelworks/internal/retainers"
	"github.com/gavelworks/gavelworks/internal/shared"
	"github.com/gavelworks/gavelworks/jobs"
	"github.com/gavelworks/gavelworks/report"
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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	format, err := shared.NewMoneyFormatter(cfg.Currency)
	if err != nil {
		logger.Error("money formatter", slog.Any("error", err), slog.String("currency", cfg.Currency))
		os.Exit(1)
	}

	auditLogger := shared.NewAuditLogger(dbpool)
	metrics := observability.NewMetrics()

	accountsRepo := accounts.NewRepository(dbpool)
	accountsService := accounts.NewService(accountsRepo, auditLogger)
	accountsHandler := accounts.NewHandler(logger, accountsService, format.Format)

	periodsRepo := periods.NewRepository(dbpool)
	periodsService := periods.NewService(periodsRepo, auditLogger)
	periodsHandler := periods.NewHandler(logger, periodsService)

	journalsRepo := journals.NewRepository(dbpool)
	journalsService := journals.NewService(journalsRepo, auditLogger, metrics)
	journalsHandler := journals.NewHandler(logger, journalsService)

	mappingsRepo := mappings.NewRepository(dbpool)
	mappingsHandler := mappings.NewHandler(logger, mappingsRepo)

	closingService := closing.NewService(journalsService, periodsService, accountsRepo, mappingsRepo)
	closingHandler := closing.NewHandler(logger, closingService)

	hooks := integration.NewHooks(logger, journalsService, mappingsRepo, metrics)

	billingRepo := billing.NewRepository(dbpool)
	billingService := billing.NewService(billingRepo, hooks, auditLogger)
	billingHandler := billing.NewHandler(logger, billingService)

	retainersRepo := retainers.NewRepository(dbpool)
	retainersService := retainers.NewService(retainersRepo, mappingsRepo, auditLogger)
	retainersHandler := retainers.NewHandler(logger, retainersService, format.Format)

	recurringRepo := recurring.NewRepository(dbpool)
	recurringService := recurring.NewService(logger, recurringRepo, billingService, metrics, auditLogger)
	recurringHandler := recurring.NewHandler(logger, recurringService)

	reportClient := report.NewClient(cfg.GotenbergURL)
	reportHandler := report.NewHandler(reportClient, billingService, format.Format, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		AccountsHandler:  accountsHandler,
		PeriodsHandler:   periodsHandler,
		JournalsHandler:  journalsHandler,
		MappingsHandler:  mappingsHandler,
		ClosingHandler:   closingHandler,
		BillingHandler:   billingHandler,
		RetainersHandler: retainersHandler,
		RecurringHandler: recurringHandler,
		JobHandler:       jobHandler,
		ReportHandler:    reportHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
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
