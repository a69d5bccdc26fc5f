package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ZeeShekh1908/royal/internal/live"
	"github.com/ZeeShekh1908/royal/internal/menu"
	"github.com/ZeeShekh1908/royal/internal/orders"
	"github.com/ZeeShekh1908/royal/internal/redisx"
	"github.com/ZeeShekh1908/royal/internal/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPass = "royal-admin"

// orderRepo stands in for Postgres; emit plays the role of the change trigger.
type orderRepo struct {
	mu     sync.Mutex
	orders map[string]orders.Order
	seq    int
	emit   func(orders.Order)
}

func (m *orderRepo) changed(o orders.Order) {
	if m.emit != nil {
		m.emit(o)
	}
}

func (m *orderRepo) Create(_ context.Context, n orders.NewOrder) (orders.Order, error) {
	m.mu.Lock()
	m.seq++
	now := time.Date(2024, 5, 1, 12, m.seq, 0, 0, time.UTC)
	o := orders.Order{
		ID:            fmt.Sprintf("ord-%d", m.seq),
		CustomerName:  n.CustomerName,
		Phone:         n.Phone,
		Address:       n.Address,
		PaymentMethod: n.PaymentMethod,
		LineItem:      n.Item,
		Quantity:      n.Quantity,
		TotalPaise:    n.TotalPaise(),
		Status:        orders.StatusPending,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.orders[o.ID] = o
	m.mu.Unlock()
	m.changed(o)
	return o, nil
}

func (m *orderRepo) Get(_ context.Context, id string) (orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return o, nil
}

func (m *orderRepo) filter(keep func(orders.Order) bool) []orders.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []orders.Order
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out
}

func (m *orderRepo) ListAll(context.Context) ([]orders.Order, error) {
	return m.filter(func(orders.Order) bool { return true }), nil
}

func (m *orderRepo) ListActive(context.Context) ([]orders.Order, error) {
	return m.filter(func(o orders.Order) bool { return o.Status.Active() }), nil
}

func (m *orderRepo) ListByPhone(_ context.Context, phone string) ([]orders.Order, error) {
	return m.filter(func(o orders.Order) bool { return o.Phone == phone }), nil
}

func (m *orderRepo) UpdateStatus(_ context.Context, id string, from, to orders.Status) (orders.Order, error) {
	m.mu.Lock()
	o, ok := m.orders[id]
	if !ok {
		m.mu.Unlock()
		return orders.Order{}, orders.ErrNotFound
	}
	if o.Status != from {
		m.mu.Unlock()
		return orders.Order{}, orders.ErrStatusConflict
	}
	o.Status = to
	o.Version++
	m.orders[id] = o
	m.mu.Unlock()
	m.changed(o)
	return o, nil
}

type menuRepo struct {
	items map[string]menu.Item
	seq   int
}

func (m *menuRepo) Create(_ context.Context, name string, pricePaise int64, category, imageRef string) (menu.Item, error) {
	m.seq++
	it := menu.Item{ID: fmt.Sprintf("item-%d", m.seq), Name: name, PricePaise: pricePaise, Category: category, ImageRef: imageRef}
	m.items[it.ID] = it
	return it, nil
}

func (m *menuRepo) Get(_ context.Context, id string) (menu.Item, error) {
	it, ok := m.items[id]
	if !ok {
		return menu.Item{}, menu.ErrNotFound
	}
	return it, nil
}

func (m *menuRepo) List(context.Context) ([]menu.Item, error) {
	var out []menu.Item
	for i := 1; i <= m.seq; i++ {
		if it, ok := m.items[fmt.Sprintf("item-%d", i)]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *menuRepo) Update(_ context.Context, id, name string, pricePaise int64, category, imageRef string) (menu.Item, error) {
	if _, ok := m.items[id]; !ok {
		return menu.Item{}, menu.ErrNotFound
	}
	it := menu.Item{ID: id, Name: name, PricePaise: pricePaise, Category: category, ImageRef: imageRef}
	m.items[id] = it
	return it, nil
}

func (m *menuRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.items[id]; !ok {
		return menu.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

type memIdem struct {
	mu   sync.Mutex
	keys map[string]string
}

func (m *memIdem) Lookup(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key], nil
}

func (m *memIdem) Remember(_ context.Context, key, orderID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.keys[key]; ok {
		return prev, nil
	}
	m.keys[key] = orderID
	return orderID, nil
}

type memStatus struct {
	mu sync.Mutex
	m  map[string]redisx.CachedStatus
}

func (s *memStatus) Get(_ context.Context, id string) (redisx.CachedStatus, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.m[id]
	return cs, ok, nil
}

func (s *memStatus) Put(_ context.Context, id string, cs redisx.CachedStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[id] = cs
	return nil
}

type mockTokens struct {
	registerFn func(ctx context.Context, token string) (tokens.AdminToken, error)
	deleted    []string
}

func (m *mockTokens) Register(ctx context.Context, token string) (tokens.AdminToken, error) {
	return m.registerFn(ctx, token)
}

func (m *mockTokens) Delete(_ context.Context, token string) error {
	m.deleted = append(m.deleted, token)
	return nil
}

// eventSource hands test-driven events to the hub.
type eventSource struct{ events chan live.Event }

func (s *eventSource) Run(ctx context.Context, onConnect func(context.Context), emit func(live.Event)) error {
	onConnect(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.events:
			emit(ev)
		}
	}
}

type fixture struct {
	srv    *httptest.Server
	orders *orderRepo
	menu   *menuRepo
	status *memStatus
	tokens *mockTokens
	events chan live.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		orders: &orderRepo{orders: map[string]orders.Order{}},
		menu:   &menuRepo{items: map[string]menu.Item{}},
		status: &memStatus{m: map[string]redisx.CachedStatus{}},
		tokens: &mockTokens{registerFn: func(_ context.Context, token string) (tokens.AdminToken, error) {
			if token == "" {
				return tokens.AdminToken{}, tokens.ErrEmptyToken
			}
			return tokens.AdminToken{ID: "t1", Token: token}, nil
		}},
		events: make(chan live.Event),
	}
	f.orders.emit = func(o orders.Order) { f.events <- live.Event{Op: "update", Order: o} }
	log := zap.NewNop()
	orderSvc := orders.NewService(f.orders, nil, log)
	menuSvc := menu.NewService(f.menu, nil, log)

	hub := live.NewHub(&eventSource{events: f.events}, f.orders, log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.Run(ctx) }()

	r := NewRouter(log)
	stream := NewStreamHandler(hub, log)
	stream.Heartbeat = 50 * time.Millisecond
	(&OrdersHandler{Orders: orderSvc, Menu: menuSvc, Idem: &memIdem{keys: map[string]string{}}, Status: f.status, Log: log}).Register(r)
	(&MenuHandler{Menu: menuSvc, Log: log}).Register(r)
	stream.Register(r)
	(&AdminHandler{Orders: orderSvc, Menu: menuSvc, Tokens: f.tokens, Status: f.status, Stream: stream, Passphrase: testPass, Log: log}).Register(r)

	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) call(t *testing.T, method, path string, body any, hdr map[string]string) *http.Response {
	t.Helper()
	var b []byte
	if body != nil {
		var err error
		b, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, bytes.NewReader(b))
	require.NoError(t, err)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) admin(t *testing.T, method, path string, body any) *http.Response {
	return f.call(t, method, path, body, map[string]string{HeaderAdminPassphrase: testPass})
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (f *fixture) seedBiryani(t *testing.T) menu.Item {
	t.Helper()
	resp := f.admin(t, http.MethodPost, "/admin/menu", map[string]any{"name": "Veg Biryani", "pricePaise": 15000, "category": "Rice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[menu.Item](t, resp)
}

func ashaCheckout(itemID string) CheckoutReq {
	return CheckoutReq{
		CustomerName:  "Asha",
		Phone:         "9991112222",
		Address:       "12 MG Rd",
		PaymentMethod: "COD",
		MenuItemID:    itemID,
		Quantity:      2,
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp := f.call(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCheckoutSnapshotsMenuItem(t *testing.T) {
	f := newFixture(t)
	item := f.seedBiryani(t)

	resp := f.call(t, http.MethodPost, "/orders", ashaCheckout(item.ID), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	out := decode[CheckoutResp](t, resp)

	assert.False(t, out.Idempotent)
	assert.Equal(t, int64(30000), out.Order.TotalPaise)
	assert.Equal(t, "Veg Biryani", out.Order.LineItem.Name)
	assert.Equal(t, orders.StatusPending, out.Order.Status)
	assert.Equal(t, orders.PaymentCOD, out.Order.PaymentMethod)

	cs, ok, _ := f.status.Get(context.Background(), out.Order.ID)
	require.True(t, ok)
	assert.Equal(t, "pending", cs.Status)
}

func TestCheckoutIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	item := f.seedBiryani(t)
	hdr := map[string]string{HeaderIdempotencyKey: "cart-42"}

	first := decode[CheckoutResp](t, f.call(t, http.MethodPost, "/orders", ashaCheckout(item.ID), hdr))
	resp := f.call(t, http.MethodPost, "/orders", ashaCheckout(item.ID), hdr)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decode[CheckoutResp](t, resp)

	assert.True(t, second.Idempotent)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Len(t, f.orders.orders, 1)
}

func TestCheckoutRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	item := f.seedBiryani(t)

	unknown := ashaCheckout("item-404")
	resp := f.call(t, http.MethodPost, "/orders", unknown, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "menuItemId", decode[errorBody](t, resp).Field)

	tooMany := ashaCheckout(item.ID)
	tooMany.Quantity = orders.MaxQuantity + 1
	resp = f.call(t, http.MethodPost, "/orders", tooMany, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "quantity", decode[errorBody](t, resp).Field)

	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/orders", bytes.NewBufferString("{"))
	require.NoError(t, err)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
	assert.Empty(t, f.orders.orders)
}

func TestGetOrderAndListByPhone(t *testing.T) {
	f := newFixture(t)
	item := f.seedBiryani(t)
	placed := decode[CheckoutResp](t, f.call(t, http.MethodPost, "/orders", ashaCheckout(item.ID), nil))

	resp := f.call(t, http.MethodGet, "/orders/"+placed.Order.ID, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, placed.Order.ID, decode[orders.Order](t, resp).ID)

	assert.Equal(t, http.StatusNotFound, f.call(t, http.MethodGet, "/orders/nope", nil, nil).StatusCode)

	list := decode[[]orders.Order](t, f.call(t, http.MethodGet, "/orders?phone=9991112222", nil, nil))
	assert.Len(t, list, 1)
	assert.Equal(t, http.StatusBadRequest, f.call(t, http.MethodGet, "/orders", nil, nil).StatusCode)
}

func TestStatusIsCacheFirst(t *testing.T) {
	f := newFixture(t)
	item := f.seedBiryani(t)
	placed := decode[CheckoutResp](t, f.call(t, http.MethodPost, "/orders", ashaCheckout(item.ID), nil))
	id := placed.Order.ID

	require.NoError(t, f.status.Put(context.Background(), id, redisx.CachedStatus{Status: "accepted"}))
	got := decode[redisx.CachedStatus](t, f.call(t, http.MethodGet, "/orders/"+id+"/status", nil, nil))
	assert.Equal(t, "accepted", got.Status)

	delete(f.status.m, id)
	got = decode[redisx.CachedStatus](t, f.call(t, http.MethodGet, "/orders/"+id+"/status", nil, nil))
	assert.Equal(t, "pending", got.Status)
	_, ok, _ := f.status.Get(context.Background(), id)
	assert.True(t, ok, "miss repopulates the cache")
}

func TestAdminRequiresPassphrase(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusUnauthorized, f.call(t, http.MethodGet, "/admin/orders", nil, nil).StatusCode)
	assert.Equal(t, http.StatusUnauthorized,
		f.call(t, http.MethodGet, "/admin/orders", nil, map[string]string{HeaderAdminPassphrase: "guess"}).StatusCode)
	assert.Equal(t, http.StatusOK, f.admin(t, http.MethodGet, "/admin/orders", nil).StatusCode)
}

func TestEmptyPassphraseDisablesAdmin(t *testing.T) {
	h := RequirePassphrase("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	req.Header.Set(HeaderAdminPassphrase, "")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminTransitions(t *testing.T) {
	f := newFixture(t)
	item := f.seedBiryani(t)
	placed := decode[CheckoutResp](t, f.call(t, http.MethodPost, "/orders", ashaCheckout(item.ID), nil))
	id := placed.Order.ID

	resp := f.admin(t, http.MethodPost, "/admin/orders/"+id+"/accept", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, orders.StatusAccepted, decode[orders.Order](t, resp).Status)
	cs, _, _ := f.status.Get(context.Background(), id)
	assert.Equal(t, "accepted", cs.Status)

	assert.Equal(t, http.StatusConflict, f.admin(t, http.MethodPost, "/admin/orders/"+id+"/reject", nil).StatusCode)
	assert.Equal(t, http.StatusOK, f.admin(t, http.MethodPost, "/admin/orders/"+id+"/done", nil).StatusCode)
	assert.Equal(t, http.StatusConflict, f.admin(t, http.MethodPost, "/admin/orders/"+id+"/accept", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.admin(t, http.MethodPost, "/admin/orders/nope/accept", nil).StatusCode)

	active := decode[[]orders.Order](t, f.admin(t, http.MethodGet, "/admin/orders", nil))
	assert.Empty(t, active)
}

func TestAdminMenuCRUD(t *testing.T) {
	f := newFixture(t)
	item := f.seedBiryani(t)
	resp := f.admin(t, http.MethodPost, "/admin/menu", map[string]any{"name": "Paneer Tikka", "pricePaise": 18000, "category": "Curry"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.admin(t, http.MethodPost, "/admin/menu", map[string]any{"name": "Free Lunch"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "pricePaise", decode[errorBody](t, resp).Field)

	groups := decode[[]menu.Category](t, f.call(t, http.MethodGet, "/menu?grouped=true", nil, nil))
	require.Len(t, groups, 2)
	assert.Equal(t, "Curry", groups[0].Name)
	assert.Equal(t, "Rice", groups[1].Name)

	resp = f.admin(t, http.MethodPut, "/admin/menu/"+item.ID, map[string]any{"name": "Veg Biryani", "pricePaise": 16000})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[menu.Item](t, resp)
	assert.Equal(t, int64(16000), updated.PricePaise)
	assert.Equal(t, menu.DefaultCategory, updated.Category)

	assert.Equal(t, http.StatusNoContent, f.admin(t, http.MethodDelete, "/admin/menu/"+item.ID, nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.call(t, http.MethodGet, "/menu/"+item.ID, nil, nil).StatusCode)
	assert.Equal(t, http.StatusUnprocessableEntity, f.admin(t, http.MethodDelete, "/admin/images/elsewhere/x.jpg", nil).StatusCode)
}

func TestAdminTokens(t *testing.T) {
	f := newFixture(t)
	resp := f.admin(t, http.MethodPost, "/admin/tokens", TokenReq{Token: "ExponentPushToken[abc]"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ExponentPushToken[abc]", decode[tokens.AdminToken](t, resp).Token)

	assert.Equal(t, http.StatusBadRequest, f.admin(t, http.MethodPost, "/admin/tokens", TokenReq{}).StatusCode)

	assert.Equal(t, http.StatusNoContent, f.admin(t, http.MethodDelete, "/admin/tokens", TokenReq{Token: "ExponentPushToken[abc]"}).StatusCode)
	assert.Equal(t, []string{"ExponentPushToken[abc]"}, f.tokens.deleted)
}

func TestClientTransitionsMapErrors(t *testing.T) {
	f := newFixture(t)
	item := f.seedBiryani(t)
	placed := decode[CheckoutResp](t, f.call(t, http.MethodPost, "/orders", ashaCheckout(item.ID), nil))
	c := NewClient(f.srv.URL, testPass, nil)
	ctx := context.Background()

	o, err := c.Accept(ctx, placed.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusAccepted, o.Status)

	_, err = c.Reject(ctx, placed.Order.ID)
	assert.ErrorIs(t, err, orders.ErrIllegalTransition)

	_, err = c.MarkDone(ctx, "nope")
	assert.ErrorIs(t, err, orders.ErrNotFound)

	_, err = NewClient(f.srv.URL, "wrong", nil).Accept(ctx, placed.Order.ID)
	var ae *APIError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusUnauthorized, ae.Status)

	require.NoError(t, c.RegisterToken(ctx, "ExponentPushToken[x]"))
}

func recvBatch(t *testing.T, ch <-chan live.Batch) live.Batch {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-time.After(3 * time.Second):
		t.Fatal("no batch")
		return live.Batch{}
	}
}

func TestStreamDeliversInitialThenChanges(t *testing.T) {
	f := newFixture(t)
	item := f.seedBiryani(t)
	placed := decode[CheckoutResp](t, f.call(t, http.MethodPost, "/orders", ashaCheckout(item.ID), nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	batches := make(chan live.Batch, 8)
	c := NewClient(f.srv.URL, testPass, nil)
	done := make(chan error, 1)
	go func() {
		done <- c.Stream(ctx, "/admin/orders/stream", func(b live.Batch) { batches <- b })
	}()

	first := recvBatch(t, batches)
	assert.True(t, first.Initial)
	require.Len(t, first.Changes, 1)
	assert.Equal(t, live.Added, first.Changes[0].Type)

	_, err := orders.NewService(f.orders, nil, nil).Accept(context.Background(), placed.Order.ID)
	require.NoError(t, err)

	next := recvBatch(t, batches)
	assert.False(t, next.Initial)
	require.Len(t, next.Changes, 1)
	assert.Equal(t, live.Modified, next.Changes[0].Type)
	assert.Equal(t, orders.StatusAccepted, next.Changes[0].Order.Status)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not stop")
	}
}

func TestStreamByPhoneRequiresPhone(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusBadRequest, f.call(t, http.MethodGet, "/orders/stream", nil, nil).StatusCode)
}

func TestStreamStopsOnUnauthorized(t *testing.T) {
	f := newFixture(t)
	err := NewClient(f.srv.URL, "", nil).Stream(context.Background(), "/admin/orders/stream", func(live.Batch) {})
	var ae *APIError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusUnauthorized, ae.Status)
}

func TestStreamShutdownEndsStreams(t *testing.T) {
	f := newFixture(t)
	hub := live.NewHub(&eventSource{events: make(chan live.Event)}, f.orders, nil)
	h := NewStreamHandler(hub, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/orders/stream", nil)
	done := make(chan struct{})
	go func() {
		h.allOrders(rec, req)
		close(done)
	}()
	h.Shutdown()
	h.Shutdown()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("stream still open after shutdown")
	}
}
