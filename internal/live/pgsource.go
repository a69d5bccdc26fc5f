package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ZeeShekh1908/royal/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// OrderGetter reads an order row back by id.
type OrderGetter interface {
	Get(ctx context.Context, id string) (orders.Order, error)
}

// PGSource listens on the orders_notify channel over one dedicated
// connection and reconnects with backoff. Notices only carry the key; the
// row is read back through Orders.
type PGSource struct {
	Pool    *pgxpool.Pool
	Orders  OrderGetter
	Channel string
	Log     *zap.Logger

	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Notice matches json_build_object('op', ..., 'id', ..., 'version', ...).
type Notice struct {
	Op      string `json:"op"`
	ID      string `json:"id"`
	Version int64  `json:"version"`
}

func ParseNotice(payload string) (Notice, error) {
	var n Notice
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return Notice{}, fmt.Errorf("decode change notice: %w", err)
	}
	if n.ID == "" {
		return Notice{}, errors.New("change notice without id")
	}
	return n, nil
}

// handle resolves one notice to the current row. A malformed notice or a
// vanished row is skipped; a read failure is returned so the caller drops
// the connection and resyncs on reconnect.
func (s *PGSource) handle(ctx context.Context, payload string, emit func(Event)) error {
	n, err := ParseNotice(payload)
	if err != nil {
		s.log().Warn("skipping change notice", zap.Error(err))
		return nil
	}
	o, err := s.Orders.Get(ctx, n.ID)
	switch {
	case errors.Is(err, orders.ErrNotFound):
		s.log().Warn("changed order vanished", zap.String("order_id", n.ID))
		return nil
	case err != nil:
		return fmt.Errorf("read back order %s: %w", n.ID, err)
	}
	emit(Event{Op: n.Op, Order: o})
	return nil
}

func (s *PGSource) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *PGSource) Run(ctx context.Context, onConnect func(context.Context), emit func(Event)) error {
	minB, maxB := s.MinBackoff, s.MaxBackoff
	if minB <= 0 {
		minB = time.Second
	}
	if maxB <= 0 {
		maxB = 30 * time.Second
	}
	backoff := minB
	for {
		err := s.listen(ctx, onConnect, emit, func() { backoff = minB })
		if ctx.Err() != nil {
			return nil
		}
		s.log().Warn("change listener dropped", zap.Error(err), zap.Duration("retry_in", backoff))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil
		}
		if backoff *= 2; backoff > maxB {
			backoff = maxB
		}
	}
}

func (s *PGSource) listen(ctx context.Context, onConnect func(context.Context), emit func(Event), connected func()) error {
	conn, err := s.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.Channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", s.Channel, err)
	}
	connected()
	s.log().Info("change listener connected", zap.String("channel", s.Channel))
	onConnect(ctx)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			// the session may still hold LISTEN; do not hand it back to the pool
			_ = conn.Conn().Close(context.Background())
			return err
		}
		if err := s.handle(ctx, n.Payload, emit); err != nil {
			_ = conn.Conn().Close(context.Background())
			return err
		}
	}
}
