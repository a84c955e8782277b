package main

import (
	"context"
	"log"
	"time"

	"go.uber.org/zap"

	"mailmirror/config"
	"mailmirror/internal/api"
	"mailmirror/internal/channel"
	"mailmirror/internal/mqhandler"
	"mailmirror/internal/provider"
	"mailmirror/internal/repository"
	"mailmirror/internal/service/enrich"
	"mailmirror/internal/service/focus"
	"mailmirror/internal/service/mailsync"
	"mailmirror/pkg/db"
	"mailmirror/pkg/logger"
	"mailmirror/pkg/mq"
	"mailmirror/pkg/redis"
	"mailmirror/pkg/trace"
	"mailmirror/pkg/util"
)

func main() {
	// 1. Load config
	cfg := config.Load()

	zlog := logger.NewLogger()
	defer zlog.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Init DB and run migrations
	dbConn, err := db.NewConnection(cfg.DB, zlog)
	if err != nil {
		zlog.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	if err := repository.Migrate(ctx, dbConn, zlog); err != nil {
		zlog.Fatal("migrations failed", zap.Error(err))
	}

	// 3. Init Redis (push dedup)
	rdb := redis.NewRedisClient(cfg.Redis)
	deduper := util.NewDeduper(rdb, time.Hour, zlog)
	retryCounter := util.NewRetryCounter(rdb, time.Hour)

	// 4. Init RabbitMQ publisher (enrichment result events)
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatalf("failed to init publisher: %v", err)
	}
	defer publisher.Close()

	// 5. Init repositories
	userRepo := repository.NewUserRepository(dbConn)
	credRepo := repository.NewCredentialRepository(dbConn)
	messageRepo := repository.NewMessageRepository(dbConn)
	focusRepo := repository.NewFocusRepository(dbConn)

	// 6. Init provider and enrichment clients
	remote := provider.NewHTTPClient(cfg.Provider.BaseURL, time.Duration(cfg.Provider.TimeoutSeconds)*time.Second)
	annotator := enrich.NewHTTPAnnotator(cfg.Enrichment.URL, time.Duration(cfg.Enrichment.TimeoutSeconds)*time.Second)

	// 7. Init services
	focusEngine := focus.NewEngine(focusRepo, zlog)
	orchestrator := mailsync.NewOrchestrator(credRepo, remote, messageRepo, focusEngine, cfg.Provider.Name, cfg.Provider.PageSize, zlog)

	dispatcher := enrich.NewDispatcher(
		messageRepo,
		annotator,
		publisher,
		credRepo,
		remote,
		cfg.Provider.Name,
		enrich.Config{
			Workers:   cfg.Enrichment.Workers,
			QueueSize: cfg.Enrichment.QueueSize,
			Timeout:   time.Duration(cfg.Enrichment.TimeoutSeconds) * time.Second,
		},
		zlog,
	)
	dispatcher.SetRetryCounter(retryCounter, cfg.Enrichment.MaxRetries)
	dispatcher.Start(ctx)

	// 8. Init delivery channel registry and result fan-out consumer.
	// The queue is per instance so every instance pushes to its own sessions.
	registry := channel.NewRegistry(zlog)
	instanceID := trace.GenerateTraceID()

	resultHandler := mqhandler.NewEnrichmentResultHandler(registry, deduper, instanceID, zlog)

	consumer, err := mq.NewFanoutConsumer(cfg.MQ.URL, "enrichment.push."+instanceID, "enrichment.*", zlog)
	if err != nil {
		log.Fatalf("failed to init consumer: %v", err)
	}
	defer consumer.Close()
	consumer.SetHandler(resultHandler.Handle)
	consumer.SetDLQ(publisher)

	go func() {
		// StartConsuming only returns on failure, including the broker
		// closing the delivery channel; a push-less instance is worse
		// than a restart.
		zlog.Fatal("consumer stopped", zap.Error(consumer.StartConsuming()))
	}()

	// 9. Init handlers
	mailHandler := api.NewMailHandler(credRepo, remote, messageRepo, cfg.Provider.Name, zlog)
	focusHandler := api.NewFocusHandler(focusEngine, focusRepo)
	wsHandler := api.NewWSHandler(
		orchestrator,
		dispatcher,
		messageRepo,
		userRepo,
		registry,
		time.Duration(cfg.Sync.DebounceMillis)*time.Millisecond,
		zlog,
	)

	// 10. Init router and run
	router := api.NewRouter(mailHandler, focusHandler, wsHandler, cfg.JWT.Secret, dbConn, publisher)
	if err := router.Run(cfg.Server.Port); err != nil {
		zlog.Fatal("server start failed", zap.Error(err))
	}
}
