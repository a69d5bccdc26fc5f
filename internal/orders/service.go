package orders

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

type Repository interface {
	Create(ctx context.Context, n NewOrder) (Order, error)
	Get(ctx context.Context, id string) (Order, error)
	ListActive(ctx context.Context) ([]Order, error)
	ListByPhone(ctx context.Context, phone string) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, from, to Status) (Order, error)
}

// Announcer is told about every order right after it is persisted. Kafka
// publishing and inline dispatch both satisfy it.
type Announcer interface {
	Announce(ctx context.Context, o Order) error
}

type Service struct {
	repo      Repository
	announcer Announcer
	log       *zap.Logger
}

func NewService(repo Repository, announcer Announcer, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, announcer: announcer, log: log}
}

// Checkout validates and persists a new order. Announcement failures are
// logged only; the change stream is the authoritative signal for admins.
func (s *Service) Checkout(ctx context.Context, n NewOrder) (Order, error) {
	n.Normalize()
	if err := n.Validate(); err != nil {
		return Order{}, err
	}
	o, err := s.repo.Create(ctx, n)
	if err != nil {
		s.log.Error("create order failed", zap.Error(err))
		return Order{}, err
	}
	s.log.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("item", o.LineItem.Name),
		zap.Int("quantity", o.Quantity),
		zap.Int64("total_paise", o.TotalPaise))
	if s.announcer != nil {
		if err := s.announcer.Announce(ctx, o); err != nil {
			s.log.Warn("announce order failed", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	return o, nil
}

func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByPhone(ctx context.Context, phone string) ([]Order, error) {
	return s.repo.ListByPhone(ctx, phone)
}

func (s *Service) ListActive(ctx context.Context) ([]Order, error) {
	return s.repo.ListActive(ctx)
}

func (s *Service) Accept(ctx context.Context, id string) (Order, error) {
	return s.transition(ctx, id, StatusAccepted)
}

func (s *Service) Reject(ctx context.Context, id string) (Order, error) {
	return s.transition(ctx, id, StatusRejected)
}

func (s *Service) MarkDone(ctx context.Context, id string) (Order, error) {
	return s.transition(ctx, id, StatusDone)
}

func (s *Service) transition(ctx context.Context, id string, to Status) (Order, error) {
	cur, err := s.repo.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(cur.Status, to) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, cur.Status, to)
	}
	o, err := s.repo.UpdateStatus(ctx, id, cur.Status, to)
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			s.log.Warn("status changed concurrently",
				zap.String("order_id", id), zap.String("expected", string(cur.Status)), zap.String("to", string(to)))
		} else {
			s.log.Error("update status failed", zap.String("order_id", id), zap.Error(err))
		}
		return Order{}, err
	}
	s.log.Info("order status changed",
		zap.String("order_id", id), zap.String("from", string(cur.Status)), zap.String("to", string(to)))
	return o, nil
}
