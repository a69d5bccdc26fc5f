package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ZeeShekh1908/royal/internal/menu"
	"github.com/ZeeShekh1908/royal/internal/orders"
	"github.com/ZeeShekh1908/royal/internal/redisx"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type OrderService interface {
	Checkout(ctx context.Context, n orders.NewOrder) (orders.Order, error)
	Get(ctx context.Context, id string) (orders.Order, error)
	ListByPhone(ctx context.Context, phone string) ([]orders.Order, error)
	ListActive(ctx context.Context) ([]orders.Order, error)
	Accept(ctx context.Context, id string) (orders.Order, error)
	Reject(ctx context.Context, id string) (orders.Order, error)
	MarkDone(ctx context.Context, id string) (orders.Order, error)
}

// MenuReader resolves the item a checkout refers to.
type MenuReader interface {
	Get(ctx context.Context, id string) (menu.Item, error)
}

type Idempotency interface {
	Lookup(ctx context.Context, key string) (string, error)
	Remember(ctx context.Context, key, orderID string) (string, error)
}

type StatusCache interface {
	Get(ctx context.Context, orderID string) (redisx.CachedStatus, bool, error)
	Put(ctx context.Context, orderID string, cs redisx.CachedStatus) error
}

type OrdersHandler struct {
	Orders OrderService
	Menu   MenuReader
	Idem   Idempotency
	Status StatusCache
	Log    *zap.Logger
}

type CheckoutReq struct {
	CustomerName  string `json:"customerName"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	PaymentMethod string `json:"paymentMethod"`
	MenuItemID    string `json:"menuItemId"`
	Quantity      int    `json:"quantity"`
}

type CheckoutResp struct {
	Order      orders.Order `json:"order"`
	Idempotent bool         `json:"idempotent"`
}

const HeaderIdempotencyKey = "Idempotency-Key"

func (h *OrdersHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(timeout())
		r.Post("/orders", h.checkout)
		r.Get("/orders", h.listByPhone)
		r.Get("/orders/{id}", h.getOrder)
		r.Get("/orders/{id}/status", h.getStatus)
	})
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutReq
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	if key != "" && h.Idem != nil {
		if prev, err := h.Idem.Lookup(ctx, key); err != nil {
			h.Log.Warn("idempotency lookup failed", zap.Error(err))
		} else if prev != "" {
			if o, err := h.Orders.Get(ctx, prev); err == nil {
				writeJSON(w, http.StatusOK, CheckoutResp{Order: o, Idempotent: true})
				return
			}
		}
	}

	if strings.TrimSpace(req.MenuItemID) == "" {
		writeError(w, h.Log, &orders.ValidationError{Field: "menuItemId", Reason: "required"})
		return
	}
	item, err := h.Menu.Get(ctx, req.MenuItemID)
	if errors.Is(err, menu.ErrNotFound) {
		writeError(w, h.Log, &orders.ValidationError{Field: "menuItemId", Reason: "unknown menu item"})
		return
	}
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	o, err := h.Orders.Checkout(ctx, orders.NewOrder{
		CustomerName:  req.CustomerName,
		Phone:         req.Phone,
		Address:       req.Address,
		PaymentMethod: req.PaymentMethod,
		Item:          orders.LineItem{Name: item.Name, PricePaise: item.PricePaise, ImageRef: item.ImageRef},
		Quantity:      req.Quantity,
	})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	if key != "" && h.Idem != nil {
		winner, err := h.Idem.Remember(ctx, key, o.ID)
		if err != nil {
			h.Log.Warn("idempotency remember failed", zap.Error(err))
		} else if winner != o.ID {
			h.Log.Warn("duplicate checkout raced on idempotency key",
				zap.String("order_id", o.ID), zap.String("kept", winner))
		}
	}
	h.cacheStatus(ctx, o)

	writeJSON(w, http.StatusCreated, CheckoutResp{Order: o})
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, o orders.Order) {
	if h.Status == nil {
		return
	}
	cs := redisx.CachedStatus{Status: string(o.Status), UpdatedAt: o.UpdatedAt}
	if err := h.Status.Put(ctx, o.ID, cs); err != nil {
		h.Log.Warn("cache status failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listByPhone(w http.ResponseWriter, r *http.Request) {
	phone := strings.TrimSpace(r.URL.Query().Get("phone"))
	if phone == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing phone"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Orders.ListByPhone(ctx, phone)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// getStatus answers from the status cache and falls back to the store.
func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Status != nil {
		cs, ok, err := h.Status.Get(ctx, id)
		if err != nil {
			h.Log.Warn("status cache read failed", zap.String("order_id", id), zap.Error(err))
		}
		if ok {
			writeJSON(w, http.StatusOK, cs)
			return
		}
	}

	o, err := h.Orders.Get(ctx, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, redisx.CachedStatus{Status: string(o.Status), UpdatedAt: o.UpdatedAt})
}
