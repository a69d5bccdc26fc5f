package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ZeeShekh1908/royal/internal/config"
	"github.com/ZeeShekh1908/royal/internal/httpx"
	"github.com/ZeeShekh1908/royal/internal/live"
	"github.com/ZeeShekh1908/royal/internal/localstore"
	"github.com/ZeeShekh1908/royal/internal/logger"
	"github.com/ZeeShekh1908/royal/internal/projection"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Must("order-track")
	orderID := flag.String("o", "", "Order id to follow")
	phone := flag.String("p", "", "Phone number whose orders to follow (remembered)")
	apiURL := flag.String("a", cfg.APIBaseURL, "Order API base URL")
	flag.Parse()

	log := logger.Must(cfg.LogLevel, cfg.ServiceName)
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := localstore.Open(cfg.LocalDBPath)
	if err != nil {
		log.Fatal("local store", zap.Error(err))
	}
	defer store.Close()

	*phone = strings.TrimSpace(*phone)
	if *orderID == "" && *phone == "" {
		saved, ok, err := store.Pref(ctx, localstore.KeyCustomerPhone)
		if err != nil {
			log.Warn("read saved phone", zap.Error(err))
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "usage: track -o <order-id> | -p <phone>")
			os.Exit(2)
		}
		*phone = saved
	}
	if *phone != "" {
		if err := store.SetPref(ctx, localstore.KeyCustomerPhone, *phone); err != nil {
			log.Warn("save phone", zap.Error(err))
		}
	}

	api := httpx.NewClient(*apiURL, "", log)
	if *orderID != "" {
		err = followOrder(ctx, api, *orderID)
	} else {
		err = followPhone(ctx, api, *phone)
	}
	if err != nil {
		log.Fatal("tracking stopped", zap.Error(err))
	}
}

func followOrder(ctx context.Context, api *httpx.Client, id string) error {
	var tr projection.OrderTracker
	return api.Stream(ctx, "/orders/"+url.PathEscape(id)+"/stream", func(b live.Batch) {
		changed := tr.Apply(b)
		p, ok := tr.Progress()
		switch {
		case !ok && b.Initial:
			fmt.Fprintf(os.Stdout, "order %s not found, waiting\n", id)
		case ok && changed:
			renderProgress(os.Stdout, p)
		}
	})
}

func followPhone(ctx context.Context, api *httpx.Client, phone string) error {
	h := projection.NewOrderHistory()
	return api.Stream(ctx, "/orders/stream?phone="+url.QueryEscape(phone), func(b live.Batch) {
		h.Apply(b)
		fmt.Fprintf(os.Stdout, "\norders for %s\n", phone)
		renderHistory(os.Stdout, h.Entries())
	})
}
