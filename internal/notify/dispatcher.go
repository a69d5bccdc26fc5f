package notify

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/ZeeShekh1908/royal/internal/orders"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type TokenStore interface {
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, token string) error
}

type Pusher interface {
	Push(ctx context.Context, token string, m Message) error
}

// Result counts the outcome of one dispatch.
type Result struct {
	Tokens int
	Sent   int
	Failed int
	Pruned int
}

// Dispatcher fans a new order out to every registered admin token.
// Delivery is best-effort: failures are logged and never retried.
type Dispatcher struct {
	tokens TokenStore
	pusher Pusher
	limit  int
	log    *zap.Logger
}

func NewDispatcher(tokens TokenStore, pusher Pusher, limit int, log *zap.Logger) *Dispatcher {
	if limit <= 0 {
		limit = 8
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{tokens: tokens, pusher: pusher, limit: limit, log: log}
}

// Dispatch reads the token set fresh and pushes once per token. One token
// failing never stops the others; only a failed token read is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, o orders.Order) (Result, error) {
	toks, err := d.tokens.List(ctx)
	if err != nil {
		d.log.Error("load admin tokens failed", zap.String("order_id", o.ID), zap.Error(err))
		return Result{}, err
	}
	res := Result{Tokens: len(toks)}
	if len(toks) == 0 {
		d.log.Info("no admin tokens registered", zap.String("order_id", o.ID))
		return res, nil
	}

	msg := NewOrderMessage(o)
	var sent, failed, pruned atomic.Int32
	var g errgroup.Group
	g.SetLimit(d.limit)
	for _, tok := range toks {
		tok := tok
		g.Go(func() error {
			err := d.pusher.Push(ctx, tok, msg)
			switch {
			case err == nil:
				sent.Add(1)
			case errors.Is(err, ErrDeviceNotRegistered):
				failed.Add(1)
				if derr := d.tokens.Delete(ctx, tok); derr != nil {
					d.log.Warn("prune token failed", zap.Error(derr))
				} else {
					pruned.Add(1)
				}
			default:
				failed.Add(1)
				d.log.Warn("push failed", zap.String("order_id", o.ID), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	res.Sent, res.Failed, res.Pruned = int(sent.Load()), int(failed.Load()), int(pruned.Load())
	d.log.Info("order dispatched",
		zap.String("order_id", o.ID),
		zap.Int("tokens", res.Tokens),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
		zap.Int("pruned", res.Pruned))
	return res, nil
}
