package live

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ZeeShekh1908/royal/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu     sync.Mutex
	orders map[string]orders.Order
}

func newMemStore(list ...orders.Order) *memStore {
	s := &memStore{orders: map[string]orders.Order{}}
	for _, o := range list {
		s.orders[o.ID] = o
	}
	return s
}

func (s *memStore) put(o orders.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
}

func (s *memStore) filter(keep func(orders.Order) bool) []orders.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.Order
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out
}

func (s *memStore) ListAll(context.Context) ([]orders.Order, error) {
	return s.filter(func(orders.Order) bool { return true }), nil
}

func (s *memStore) Get(_ context.Context, id string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return o, nil
}

func (s *memStore) ListByPhone(_ context.Context, phone string) ([]orders.Order, error) {
	return s.filter(func(o orders.Order) bool { return o.Phone == phone }), nil
}

// fakeSource lets a test drive connects and events by hand.
type fakeSource struct {
	connect chan struct{}
	events  chan Event
}

func newFakeSource() *fakeSource {
	return &fakeSource{connect: make(chan struct{}), events: make(chan Event)}
}

func (f *fakeSource) Run(ctx context.Context, onConnect func(context.Context), emit func(Event)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-f.connect:
			onConnect(ctx)
		case ev := <-f.events:
			emit(ev)
		}
	}
}

var t0 = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func order(id, phone string, st orders.Status, ver int64, minute int) orders.Order {
	return orders.Order{ID: id, Phone: phone, Status: st, Version: ver, CreatedAt: t0.Add(time.Duration(minute) * time.Minute)}
}

func recv(t *testing.T, s *Subscription) Batch {
	t.Helper()
	select {
	case b, ok := <-s.C:
		require.True(t, ok, "subscription closed")
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("no batch")
		return Batch{}
	}
}

func noBatch(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case b, ok := <-s.C:
		if ok {
			t.Fatalf("unexpected batch %+v", b)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func startHub(t *testing.T, store *memStore) (*Hub, *fakeSource) {
	t.Helper()
	src := newFakeSource()
	h := NewHub(src, store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = h.Run(ctx) }()
	return h, src
}

func TestSubscribeInitialSnapshotNewestFirst(t *testing.T) {
	store := newMemStore(order("a", "1", orders.StatusPending, 1, 0), order("b", "1", orders.StatusPending, 1, 5))
	h, _ := startHub(t, store)

	s, err := h.Subscribe(context.Background(), AllOrders())
	require.NoError(t, err)
	defer s.Unsubscribe()

	b := recv(t, s)
	assert.True(t, b.Initial)
	require.Len(t, b.Changes, 2)
	assert.Equal(t, "b", b.Changes[0].Order.ID)
	assert.Equal(t, "a", b.Changes[1].Order.ID)
	assert.Equal(t, Added, b.Changes[0].Type)
}

func TestEventsAreMatchedAndVersioned(t *testing.T) {
	store := newMemStore(order("a", "111", orders.StatusPending, 1, 0))
	h, src := startHub(t, store)

	mine, err := h.Subscribe(context.Background(), OrdersByPhone("111"))
	require.NoError(t, err)
	defer mine.Unsubscribe()
	one, err := h.Subscribe(context.Background(), OrderByID("a"))
	require.NoError(t, err)
	defer one.Unsubscribe()
	recv(t, mine)
	recv(t, one)

	src.events <- Event{Op: "insert", Order: order("z", "999", orders.StatusPending, 1, 1)}
	src.events <- Event{Op: "update", Order: order("a", "111", orders.StatusAccepted, 2, 0)}
	// stale redelivery of the first version
	src.events <- Event{Op: "insert", Order: order("a", "111", orders.StatusPending, 1, 0)}
	src.events <- Event{Op: "insert", Order: order("c", "111", orders.StatusPending, 1, 2)}

	b := recv(t, mine)
	assert.Equal(t, Modified, b.Changes[0].Type)
	assert.Equal(t, orders.StatusAccepted, b.Changes[0].Order.Status)
	b = recv(t, mine)
	assert.Equal(t, Added, b.Changes[0].Type)
	assert.Equal(t, "c", b.Changes[0].Order.ID)

	b = recv(t, one)
	assert.Equal(t, orders.StatusAccepted, b.Changes[0].Order.Status)
	noBatch(t, one)
}

func TestUnsubscribeIsSynchronous(t *testing.T) {
	store := newMemStore()
	h, src := startHub(t, store)
	s, err := h.Subscribe(context.Background(), AllOrders())
	require.NoError(t, err)
	recv(t, s)

	s.Unsubscribe()
	src.events <- Event{Op: "insert", Order: order("a", "1", orders.StatusPending, 1, 0)}
	_, ok := <-s.C
	assert.False(t, ok)
	s.Unsubscribe()

	h.mu.Lock()
	assert.Empty(t, h.subs)
	h.mu.Unlock()
}

func TestSubscribeContextCancel(t *testing.T) {
	h, _ := startHub(t, newMemStore())
	ctx, cancel := context.WithCancel(context.Background())
	s, err := h.Subscribe(ctx, AllOrders())
	require.NoError(t, err)
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-s.C:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription not closed")
		}
	}
}

func TestReconnectResyncsMissedChanges(t *testing.T) {
	store := newMemStore(order("a", "1", orders.StatusPending, 1, 0), order("b", "1", orders.StatusPending, 1, 1))
	h, src := startHub(t, store)
	s, err := h.Subscribe(context.Background(), AllOrders())
	require.NoError(t, err)
	defer s.Unsubscribe()
	recv(t, s)

	// while disconnected: a accepted, c created, b vanished from the query
	store.put(order("a", "1", orders.StatusAccepted, 2, 0))
	store.put(order("c", "1", orders.StatusPending, 1, 2))
	store.mu.Lock()
	delete(store.orders, "b")
	store.mu.Unlock()

	src.connect <- struct{}{}
	b := recv(t, s)
	assert.False(t, b.Initial)
	types := map[string]ChangeType{}
	for _, c := range b.Changes {
		types[c.Order.ID] = c.Type
	}
	assert.Equal(t, map[string]ChangeType{"a": Modified, "c": Added, "b": Removed}, types)

	// nothing changed since: a second reconnect is silent
	src.connect <- struct{}{}
	noBatch(t, s)
}

func TestParseNotice(t *testing.T) {
	n, err := ParseNotice(`{"op":"update","id":"a","version":2}`)
	require.NoError(t, err)
	assert.Equal(t, Notice{Op: "update", ID: "a", Version: 2}, n)

	_, err = ParseNotice(`{"op":"update"}`)
	assert.Error(t, err)
	_, err = ParseNotice(`not json`)
	assert.Error(t, err)
}

type getterFunc func(ctx context.Context, id string) (orders.Order, error)

func (f getterFunc) Get(ctx context.Context, id string) (orders.Order, error) { return f(ctx, id) }

func TestPGSourceReadsRowBack(t *testing.T) {
	long := strings.Repeat("x", 9000)
	rows := map[string]orders.Order{"a": {ID: "a", Address: long, Status: orders.StatusAccepted, Version: 3}}
	src := &PGSource{Orders: getterFunc(func(_ context.Context, id string) (orders.Order, error) {
		if id == "boom" {
			return orders.Order{}, errors.New("conn reset")
		}
		o, ok := rows[id]
		if !ok {
			return orders.Order{}, orders.ErrNotFound
		}
		return o, nil
	})}
	var got []Event
	emit := func(ev Event) { got = append(got, ev) }
	ctx := context.Background()

	require.NoError(t, src.handle(ctx, `{"op":"update","id":"a","version":2}`, emit))
	require.Len(t, got, 1)
	assert.Equal(t, "update", got[0].Op)
	assert.Equal(t, int64(3), got[0].Order.Version)
	assert.Len(t, got[0].Order.Address, 9000)

	require.NoError(t, src.handle(ctx, `{"op":"update","id":"gone","version":1}`, emit))
	require.NoError(t, src.handle(ctx, `garbage`, emit))
	assert.Len(t, got, 1)

	assert.Error(t, src.handle(ctx, `{"op":"insert","id":"boom","version":1}`, emit))
	assert.Len(t, got, 1)
}
