package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZeeShekh1908/royal/internal/alert"
	"github.com/ZeeShekh1908/royal/internal/config"
	"github.com/ZeeShekh1908/royal/internal/httpx"
	"github.com/ZeeShekh1908/royal/internal/live"
	"github.com/ZeeShekh1908/royal/internal/localstore"
	"github.com/ZeeShekh1908/royal/internal/logger"
	"github.com/ZeeShekh1908/royal/internal/projection"
	"github.com/ZeeShekh1908/royal/internal/redisx"
	"go.uber.org/zap"
)

func openLedger(ctx context.Context, cfg config.Config, store *localstore.DB, deviceID string) (alert.Ledger, func(), error) {
	switch cfg.LedgerBackend {
	case config.LedgerRedis:
		rdb := redisx.New(cfg.RedisAddr)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis ledger: %w", err)
		}
		return redisx.NewLedger(rdb, deviceID, cfg.LedgerCap), func() { _ = rdb.Close() }, nil
	default:
		l, err := store.Ledger(ctx, cfg.LedgerCap)
		if err != nil {
			return nil, nil, err
		}
		return l, func() {}, nil
	}
}

func main() {
	cfg := config.Must("admin-agent")
	log := logger.Must(cfg.LogLevel, cfg.ServiceName)
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := localstore.Open(cfg.LocalDBPath)
	if err != nil {
		log.Fatal("local store", zap.Error(err))
	}
	defer store.Close()

	deviceID := cfg.DeviceID
	if deviceID == "" {
		if deviceID, err = store.DeviceID(ctx); err != nil {
			log.Fatal("device id", zap.Error(err))
		}
	}
	log = log.With(zap.String("device_id", deviceID))

	ledger, closeLedger, err := openLedger(ctx, cfg, store, deviceID)
	if err != nil {
		log.Fatal("alert ledger", zap.Error(err))
	}
	defer closeLedger()

	api := httpx.NewClient(cfg.APIBaseURL, cfg.AdminPassphrase, log.Named("api"))

	// Tokens re-register on every launch, which keeps them clear of PruneStale.
	if cfg.PushToken == "" {
		log.Warn("PUSH_TOKEN not set; this device will not receive push notifications")
	} else if err := api.RegisterToken(ctx, cfg.PushToken); err != nil {
		log.Warn("push token registration failed", zap.Error(err))
	} else {
		log.Info("push token registered")
	}
	if err := store.SetPref(ctx, localstore.KeyAdminLoggedIn, "true"); err != nil {
		log.Warn("save login state", zap.Error(err))
	}

	view := projection.NewAdminView()
	bell := alert.NewBell(alert.ExecPlayer{Command: cfg.BellCommand, Sound: cfg.BellSound}, 0)
	defer bell.Silence()
	gate := alert.NewGate(ledger, bell, alert.LogNotifier{Log: log.Named("notification")}, log.Named("alert"))

	go func() {
		err := api.Stream(ctx, "/admin/orders/stream", func(b live.Batch) {
			gate.Handle(ctx, view.Apply(b))
		})
		if err != nil {
			log.Error("order stream stopped", zap.Error(err))
			cancel()
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	con := &console{api: api, view: view, bell: bell, out: os.Stdout, log: log}
	fmt.Fprintln(os.Stdout, help)
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case line, ok := <-lines:
			if !ok {
				<-ctx.Done()
				return
			}
			switch con.exec(ctx, line) {
			case quit:
				return
			case logout:
				if cfg.PushToken != "" {
					if err := api.UnregisterToken(context.Background(), cfg.PushToken); err != nil {
						log.Warn("unregister push token", zap.Error(err))
					}
				}
				if err := store.DeletePref(context.Background(), localstore.KeyAdminLoggedIn); err != nil {
					log.Warn("clear login state", zap.Error(err))
				}
				log.Info("logged out")
				return
			}
		}
	}
}
