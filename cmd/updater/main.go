package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"habit-updater/internal/config"
	"habit-updater/internal/handler"
	"habit-updater/internal/httpserver"
	"habit-updater/internal/repository"
	"habit-updater/internal/scheduler"
	"habit-updater/internal/service"
	pkgconfig "habit-updater/pkg/config"
	"habit-updater/pkg/db"
	"habit-updater/pkg/logger"
	"habit-updater/pkg/mq"
	"habit-updater/pkg/otel"
	"habit-updater/pkg/outbox"
	"habit-updater/pkg/redis"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger(pkgconfig.GetEnv("LOG_LEVEL", "info"))
	defer log.Sync()

	runAt, _ := cfg.RunAt()
	loc, _ := cfg.Location()

	log.Info("Starting habit-updater...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("ledger_backend", cfg.Ledger.Backend),
		zap.String("run_at", runAt.String()),
		zap.String("timezone", loc.String()),
		zap.Bool("mq_enabled", cfg.MQ.URL != ""),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// OpenTelemetry
	otelShutdown, err := otel.Init(ctx, cfg.Otel, log)
	if err != nil {
		log.Warn("Failed to init OpenTelemetry, continuing without tracing", zap.Error(err))
		otelShutdown = func() {}
	}
	defer otelShutdown()

	// DB
	log.Info("Initializing database connection...")
	dbConn, err := db.NewConnection(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	if err := repository.Migrate(ctx, dbConn, log); err != nil {
		log.Fatal("Failed to migrate DB", zap.Error(err))
	}

	// Repositories
	outboxRepo := outbox.NewRepository(dbConn)
	habitRepo := repository.NewHabitRepository(dbConn, log)
	occurrenceRepo := repository.NewOccurrenceRepository(dbConn, outboxRepo, log)
	historyRepo := repository.NewRunHistoryRepository(dbConn, outboxRepo, log)

	var ledger service.RunLedger
	switch cfg.Ledger.Backend {
	case config.LedgerRedis:
		log.Info("Initializing Redis run ledger...", zap.String("addr", cfg.Redis.Addr))
		rdb, err := redis.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to init Redis", zap.Error(err))
		}
		defer rdb.Close()
		ledger = repository.NewRedisLedger(rdb, cfg.Ledger.RedisKey)
	default:
		ledger = repository.NewLedgerRepository(dbConn)
	}

	var wg sync.WaitGroup

	// MQ Publisher + Outbox Dispatcher（未配置 MQ 时事件保留在 outbox 中）
	var mqCheck httpserver.ConnectionChecker
	if cfg.MQ.URL != "" {
		publisher, err := mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			log.Fatal("Failed to init MQ publisher", zap.Error(err))
		}
		defer publisher.Close()
		mqCheck = publisher

		dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log).
			WithInterval(cfg.Outbox.Interval).
			WithBatchSize(cfg.Outbox.BatchSize).
			WithMaxRetries(cfg.Outbox.MaxRetries)

		wg.Add(1)
		go func() {
			defer wg.Done()
			dispatcher.Start(ctx)
		}()
	} else {
		log.Warn("MQ URL not configured, outbox events will stay pending")
	}

	// Orchestrator + daily scheduler
	orchestrator := service.NewOrchestrator(
		habitRepo,
		occurrenceRepo,
		ledger,
		historyRepo,
		service.SystemClock{Location: loc},
		log,
	)

	sched := scheduler.New(orchestrator, runAt, loc, cfg.Scheduler.RunOnStartup, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Start(ctx)
	}()

	// HTTP Server
	statusHandler := handler.NewStatusHandler(orchestrator, ledger, historyRepo, habitRepo, outboxRepo, log)
	router := httpserver.NewRouter(statusHandler, log, dbConn, mqCheck, cfg.Server.AdminRoutes)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("habit-updater is fully initialized and running")

	// 优雅退出处理
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down habit-updater gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	// 停止调度器与 Dispatcher，等待进行中的更新结束
	cancel()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn("Timed out waiting for background workers")
	}

	log.Info("habit-updater shutdown complete")
}
