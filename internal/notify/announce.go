package notify

import (
	"context"
	"time"

	kafkax "github.com/ZeeShekh1908/royal/internal/kafka"
	"github.com/ZeeShekh1908/royal/internal/orders"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header) error
}

// KafkaAnnouncer publishes order.created for cmd/notifier.
type KafkaAnnouncer struct {
	Producer Publisher
	Service  string
}

func (a *KafkaAnnouncer) Announce(ctx context.Context, o orders.Order) error {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      a.Service,
		TraceID:       middleware.GetReqID(ctx),
		CorrelationID: o.ID,
		Payload:       kafkax.MustMarshal(orders.CreatedPayload(o)),
	}
	return a.Producer.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev), kafkax.EventHeaders(orders.EventOrderCreated, 1)...)
}

// InlineAnnouncer dispatches from the API process itself. The push runs on
// its own context so the checkout response is not held up or cancelled.
type InlineAnnouncer struct {
	Dispatcher OrderDispatcher
	Log        *zap.Logger
	Timeout    time.Duration
}

func (a *InlineAnnouncer) Announce(_ context.Context, o orders.Order) error {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := a.Dispatcher.Dispatch(ctx, o); err != nil && a.Log != nil {
			a.Log.Error("inline dispatch failed", zap.String("order_id", o.ID), zap.Error(err))
		}
	}()
	return nil
}
