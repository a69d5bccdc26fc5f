package live

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Source feeds store changes to the hub. Run blocks until ctx is done.
// After every (re)connect it calls onConnect before emitting the first
// event seen on that connection.
type Source interface {
	Run(ctx context.Context, onConnect func(ctx context.Context), emit func(Event)) error
}

// Hub fans one change stream out to many query subscriptions.
type Hub struct {
	src   Source
	store Store
	log   *zap.Logger

	// deliverMu orders snapshot loads against live events, so a
	// subscription never sees a change twice or out of order.
	deliverMu sync.Mutex

	mu   sync.Mutex
	subs map[uint64]*Subscription
	next uint64
}

func NewHub(src Source, store Store, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{src: src, store: store, log: log, subs: map[uint64]*Subscription{}}
}

func (h *Hub) Run(ctx context.Context) error {
	return h.src.Run(ctx, h.resyncAll, h.dispatch)
}

// Subscribe delivers the current result of q as the first batch, then every
// change to it. The subscription ends on Unsubscribe or when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()

	snap, err := q.snapshot(ctx, h.store)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", q.Name, err)
	}
	SortNewestFirst(snap)

	h.mu.Lock()
	h.next++
	s := newSubscription(h, h.next, q)
	h.subs[s.id] = s
	h.mu.Unlock()

	s.push(s.reconcile(snap, true))
	go func() {
		select {
		case <-ctx.Done():
			s.Unsubscribe()
		case <-s.stop:
		}
	}()
	h.log.Debug("subscribed", zap.String("query", q.Name), zap.Int("docs", len(snap)))
	return s, nil
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

func (h *Hub) snapshotSubs() []*Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		out = append(out, s)
	}
	return out
}

func (h *Hub) dispatch(ev Event) {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()
	for _, s := range h.snapshotSubs() {
		if c, ok := s.apply(ev.Order); ok {
			s.push(Batch{Changes: []Change{c}})
		}
	}
}

// resyncAll runs after a reconnect: events may have been missed while the
// listener was down, so every subscription is diffed against a fresh snapshot.
func (h *Hub) resyncAll(ctx context.Context) {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()
	for _, s := range h.snapshotSubs() {
		snap, err := s.query.snapshot(ctx, h.store)
		if err != nil {
			h.log.Warn("resync failed", zap.String("query", s.query.Name), zap.Error(err))
			continue
		}
		SortNewestFirst(snap)
		if b := s.reconcile(snap, false); len(b.Changes) > 0 {
			s.push(b)
		}
	}
}
