package alert

import (
	"context"
	"sync"

	"github.com/ZeeShekh1908/royal/internal/notify"
	"github.com/ZeeShekh1908/royal/internal/orders"
	"go.uber.org/zap"
)

// Ledger remembers which orders already alerted on this device.
type Ledger interface {
	HasAlerted(ctx context.Context, orderID string) (bool, error)
	MarkAlerted(ctx context.Context, orderID string) error
}

type Ringer interface {
	Ring(ctx context.Context) error
}

// Notifier shows a local, on-device notification.
type Notifier interface {
	Show(ctx context.Context, title, body string, data map[string]string) error
}

type LogNotifier struct{ Log *zap.Logger }

func (n LogNotifier) Show(_ context.Context, title, body string, data map[string]string) error {
	n.Log.Info(title, zap.String("body", body), zap.Any("data", data))
	return nil
}

// Gate turns alert candidates into at most one alert per order id.
type Gate struct {
	mu       sync.Mutex
	ledger   Ledger
	bell     Ringer
	notifier Notifier
	log      *zap.Logger
}

func NewGate(ledger Ledger, bell Ringer, notifier Notifier, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{ledger: ledger, bell: bell, notifier: notifier, log: log}
}

// Handle alerts for every candidate not yet in the ledger and returns the
// ids that fired. A ledger read error counts as not seen.
func (g *Gate) Handle(ctx context.Context, candidates []orders.Order) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var fired []string
	batch := make(map[string]bool, len(candidates))
	for _, o := range candidates {
		if batch[o.ID] {
			continue
		}
		batch[o.ID] = true

		seen, err := g.ledger.HasAlerted(ctx, o.ID)
		if err != nil {
			g.log.Warn("ledger read failed", zap.String("order_id", o.ID), zap.Error(err))
		}
		if seen {
			continue
		}
		g.fire(ctx, o)
		if err := g.ledger.MarkAlerted(ctx, o.ID); err != nil {
			g.log.Error("ledger write failed", zap.String("order_id", o.ID), zap.Error(err))
		}
		fired = append(fired, o.ID)
	}
	return fired
}

func (g *Gate) fire(ctx context.Context, o orders.Order) {
	if g.bell != nil {
		if err := g.bell.Ring(ctx); err != nil {
			g.log.Warn("bell failed", zap.Error(err))
		}
	}
	if g.notifier != nil {
		data := map[string]string{"screen": notify.AdminScreen, "orderId": o.ID}
		if err := g.notifier.Show(ctx, notify.LocalTitle, notify.Summary(o), data); err != nil {
			g.log.Warn("local notification failed", zap.Error(err))
		}
	}
	g.log.Info("order alerted", zap.String("order_id", o.ID))
}
