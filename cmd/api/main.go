package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZeeShekh1908/royal/internal/blob"
	"github.com/ZeeShekh1908/royal/internal/config"
	"github.com/ZeeShekh1908/royal/internal/httpx"
	kafkax "github.com/ZeeShekh1908/royal/internal/kafka"
	"github.com/ZeeShekh1908/royal/internal/live"
	"github.com/ZeeShekh1908/royal/internal/logger"
	"github.com/ZeeShekh1908/royal/internal/menu"
	"github.com/ZeeShekh1908/royal/internal/notify"
	"github.com/ZeeShekh1908/royal/internal/orders"
	"github.com/ZeeShekh1908/royal/internal/postgres"
	"github.com/ZeeShekh1908/royal/internal/redisx"
	"github.com/ZeeShekh1908/royal/internal/tokens"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Must("order-api")
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

	// Menu images
	images, err := blob.Connect(ctx, cfg.MongoURI, cfg.MongoDB, cfg.PublicBaseURL)
	if err != nil {
		log.Fatal("blob connect", zap.Error(err))
	}
	defer func() { _ = images.Close(context.Background()) }()

	tokenRepo := &tokens.Repo{DB: db}

	// New-order announcement: Kafka for cmd/notifier, or inline dispatch.
	var announcer orders.Announcer
	var prod *kafkax.Producer
	switch cfg.NotifyMode {
	case config.NotifyInline:
		d := notify.NewDispatcher(tokenRepo, notify.NewExpoPusher(cfg.PushEndpoint), cfg.PushConcurrency, log.Named("dispatch"))
		announcer = &notify.InlineAnnouncer{Dispatcher: d, Log: log.Named("dispatch")}
	default:
		prod = kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024, log.Named("kafka"))
		prod.Start(ctx)
		announcer = &notify.KafkaAnnouncer{Producer: prod, Service: cfg.ServiceName}
	}
	log.Info("notify mode", zap.String("mode", cfg.NotifyMode))

	orderRepo := &orders.Repo{DB: db}
	orderSvc := orders.NewService(orderRepo, announcer, log.Named("orders"))
	menuSvc := menu.NewService(&menu.Repo{DB: db}, images, log.Named("menu"))
	statusCache := &redisx.StatusCache{RDB: rdb}

	// Live change stream
	liveLog := log.Named("live")
	hub := live.NewHub(&live.PGSource{Pool: db, Orders: orderRepo, Channel: postgres.ChangeChannel, Log: liveLog}, orderRepo, liveLog)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		if err := hub.Run(ctx); err != nil {
			log.Error("change hub exit", zap.Error(err))
		}
	}()

	router := httpx.NewRouter(log.Named("http"))
	stream := httpx.NewStreamHandler(hub, log)
	(&httpx.OrdersHandler{
		Orders: orderSvc,
		Menu:   menuSvc,
		Idem:   &redisx.Idempotency{RDB: rdb},
		Status: statusCache,
		Log:    log,
	}).Register(router)
	(&httpx.MenuHandler{Menu: menuSvc, Images: images, Log: log}).Register(router)
	stream.Register(router)
	(&httpx.AdminHandler{
		Orders:     orderSvc,
		Menu:       menuSvc,
		Tokens:     tokenRepo,
		Status:     statusCache,
		Stream:     stream,
		Passphrase: cfg.AdminPassphrase,
		Log:        log,
	}).Register(router)
	if cfg.AdminPassphrase == "" {
		log.Warn("ADMIN_PASSPHRASE not set; admin routes are disabled")
	}

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	srv.RegisterOnShutdown(stream.Shutdown)

	// graceful shutdown
	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	// a checkout still running past the shutdown timeout gets ErrProducerClosed
	if prod != nil {
		prod.Close()
		prod.WaitClosed()
	}
	cancel()
	<-hubDone
}
