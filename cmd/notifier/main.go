package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZeeShekh1908/royal/internal/config"
	kafkax "github.com/ZeeShekh1908/royal/internal/kafka"
	"github.com/ZeeShekh1908/royal/internal/logger"
	"github.com/ZeeShekh1908/royal/internal/notify"
	"github.com/ZeeShekh1908/royal/internal/orders"
	"github.com/ZeeShekh1908/royal/internal/postgres"
	"github.com/ZeeShekh1908/royal/internal/redisx"
	"github.com/ZeeShekh1908/royal/internal/tokens"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Must("order-notifier")
	log := logger.Must(cfg.LogLevel, cfg.ServiceName)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatal("db migrate", zap.Error(err))
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	tokenRepo := &tokens.Repo{DB: db}
	if n, err := tokenRepo.PruneStale(ctx, cfg.TokenMaxAge); err != nil {
		log.Warn("prune stale tokens", zap.Error(err))
	} else if n > 0 {
		log.Info("pruned stale tokens", zap.Int64("count", n), zap.Duration("max_age", cfg.TokenMaxAge))
	}

	h := &notify.Handler{
		Dispatcher: notify.NewDispatcher(tokenRepo, notify.NewExpoPusher(cfg.PushEndpoint), cfg.PushConcurrency, log.Named("dispatch")),
		Dedup:      &redisx.Dedup{RDB: rdb, Service: notify.DedupService},
		Log:        log,
	}

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, orders.TopicOrderCreated, cfg.NotifierWorkers, log.Named("kafka"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("notifier consumer started",
			zap.String("group", cfg.NotifierGroup), zap.String("topic", orders.TopicOrderCreated), zap.Int("workers", cfg.NotifierWorkers))
		if err := cons.Start(ctx, h.HandleOrderCreated); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Info("shutting down consumer")
	case <-ctx.Done():
	}
	cancel()
	<-done
}
