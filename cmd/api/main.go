package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"escrowflow/config"
	mqcontracts "escrowflow/contracts/mq"
	"escrowflow/internal/handler"
	"escrowflow/internal/httpserver"
	"escrowflow/internal/mqhandler"
	"escrowflow/internal/repository"
	"escrowflow/internal/service/txclient"
	"escrowflow/internal/service/workflow"
	"escrowflow/internal/session"
	"escrowflow/internal/trustline"
	"escrowflow/pkg/db"
	"escrowflow/pkg/logger"
	"escrowflow/pkg/mq"
	"escrowflow/pkg/otel"
	"escrowflow/pkg/outbox"
	"escrowflow/pkg/rbac"
	redisclient "escrowflow/pkg/redis"
	"escrowflow/pkg/util"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger(cfg.App.Env)
	defer log.Sync()

	log.Info("Starting escrowflow api...",
		zap.String("env", cfg.App.Env),
		zap.String("db_host", cfg.DB.Host),
		zap.String("mq_url", cfg.MQ.URL),
		zap.String("tx_service", cfg.TxService.URL),
	)

	shutdownTracing, err := otel.Init(otel.Config{
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.OTel.Version,
		Endpoint:       cfg.OTel.Endpoint,
		Enabled:        cfg.OTel.Enabled,
	}, log)
	if err != nil {
		log.Fatal("Failed to init OpenTelemetry", zap.Error(err))
	}
	defer shutdownTracing()

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	// Redis
	rdb := redisclient.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	// MQ Publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Repositories
	outboxRepo := outbox.NewRepository(dbConn)
	projectRepo := repository.NewProjectRepository(dbConn, log)
	milestoneRepo := repository.NewMilestoneRepository(dbConn, log)
	escrowRepo := repository.NewEscrowRepository(dbConn, log)
	ledgerRepo := repository.NewLedgerRepository(dbConn, outboxRepo, log)

	// Services
	sessions := session.NewManager(cfg.Session.Capacity, cfg.Session.TTL(), log)
	tokens := trustline.Default()
	executor := txclient.NewClient(cfg.TxService.URL, cfg.TxService.Timeout(), log)

	flows, err := workflow.New(sessions, workflow.Deps{
		Escrows:    escrowRepo,
		Milestones: milestoneRepo,
		Ledger:     ledgerRepo,
		Executor:   executor,
		Tokens:     tokens,
	}, log)
	if err != nil {
		log.Fatal("Failed to init workflow", zap.Error(err))
	}

	// MQ Consumer for escrow.tx.settled
	log.Info("Initializing MQ consumer...",
		zap.String("queue", mqcontracts.QueueTxSettled),
		zap.String("routing_key", mqcontracts.RoutingKeyTxSettled),
	)
	consumer, err := mq.NewConsumer(cfg.MQ.URL, mqcontracts.QueueTxSettled, mqcontracts.RoutingKeyTxSettled, log)
	if err != nil {
		log.Fatal("Failed to init consumer", zap.Error(err))
	}
	defer consumer.Close()

	settledHandler := mqhandler.NewTxSettledHandler(
		flows,
		util.NewDeduper(rdb, cfg.Settlement.DedupTTL(), log),
		util.NewRetryCounter(rdb, cfg.Settlement.RetryTTL()),
		log,
	)
	consumer.SetHandler(settledHandler.Handle)

	go func() {
		log.Info("Starting escrow.tx.settled consumer...")
		if err := consumer.StartConsuming(); err != nil {
			log.Fatal("Settlement consumer failed", zap.Error(err))
		}
	}()

	// Outbox Dispatcher
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log).
		WithMaxRetries(cfg.Outbox.MaxRetries).
		WithInterval(time.Duration(cfg.Outbox.IntervalSeconds) * time.Second).
		WithBatchSize(cfg.Outbox.BatchSize)
	go dispatcher.Start(ctx)

	// HTTP Server
	router := httpserver.NewRouter(httpserver.Handlers{
		Trustline: handler.NewTrustlineHandler(tokens, log),
		Project:   handler.NewProjectHandler(projectRepo, milestoneRepo, log),
		Session:   handler.NewSessionHandler(sessions, log),
		Escrow:    handler.NewEscrowHandler(flows, sessions, log),
		Admin:     handler.NewAdminHandler(outbox.NewReplayService(outboxRepo, log), log),
	}, cfg.JWT.Secret, rbac.NewResolver(cfg.RBAC.AdminUserIDs), []httpserver.ReadinessCheck{
		{Name: "db", Check: dbConn.Ping},
		{Name: "redis", Check: func(ctx context.Context) error { return redisclient.Ping(ctx, rdb) }},
		{Name: "mq", Check: func(context.Context) error {
			if !publisher.IsConnected() || !consumer.IsConnected() {
				return errors.New("mq connection closed")
			}
			return nil
		}},
	}, log)

	srv := router.Server(cfg.Server.Port)
	go func() {
		log.Info("HTTP server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("escrowflow api is fully initialized and running")

	// 优雅退出处理
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down escrowflow api gracefully...")

	consumer.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	// 残留会话上的对话框全部关闭
	log.Info("Unmounting sessions", zap.Int("count", sessions.Len()))
	sessions.Purge()

	log.Info("escrowflow api shutdown complete")
}
