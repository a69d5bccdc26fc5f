package notify

import (
	"context"
	"fmt"
	"time"

	kafkax "github.com/ZeeShekh1908/royal/internal/kafka"
	"github.com/ZeeShekh1908/royal/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const DedupService = "notifier"

// Deduper reports true the first time an id is claimed.
type Deduper interface {
	Claim(ctx context.Context, id string) (bool, error)
}

// OrderDispatcher is what the handler needs from Dispatcher.
type OrderDispatcher interface {
	Dispatch(ctx context.Context, o orders.Order) (Result, error)
}

// Handler is the server-side trigger: it turns order.created events into a
// dispatch, at most once per order id.
type Handler struct {
	Dispatcher OrderDispatcher
	Dedup      Deduper
	Log        *zap.Logger
}

func (h *Handler) log() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

func (h *Handler) HandleOrderCreated(ctx context.Context, m kafkago.Message) error {
	if t := kafkax.HeaderValue(m, kafkax.HeaderEventType); t != "" && t != orders.EventOrderCreated {
		return nil
	}
	env, err := kafkax.Decode[orders.Envelope](m.Value)
	if err != nil {
		h.log().Warn("dropping undecodable message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventOrderCreated {
		return nil
	}
	p, err := kafkax.Decode[orders.OrderCreatedPayload](env.Payload)
	if err != nil {
		h.log().Warn("dropping bad payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	first, err := h.Dedup.Claim(ctx, p.OrderID)
	if err != nil {
		// offset stays uncommitted; the event is redelivered
		return fmt.Errorf("dedup claim %s: %w", p.OrderID, err)
	}
	if !first {
		h.log().Debug("duplicate order.created", zap.String("order_id", p.OrderID))
		return nil
	}

	dctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := h.Dispatcher.Dispatch(dctx, p.Order()); err != nil {
		// dispatch is never retried
		h.log().Error("dispatch failed", zap.String("order_id", p.OrderID), zap.Error(err))
	}
	return nil
}
