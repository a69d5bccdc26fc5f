package httpx

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/ZeeShekh1908/royal/internal/live"
	"github.com/ZeeShekh1908/royal/internal/menu"
	"github.com/ZeeShekh1908/royal/internal/orders"
	"github.com/ZeeShekh1908/royal/internal/redisx"
	"github.com/ZeeShekh1908/royal/internal/tokens"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const HeaderAdminPassphrase = "X-Admin-Passphrase"

// RequirePassphrase guards admin routes. An empty passphrase disables them.
func RequirePassphrase(pass string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(HeaderAdminPassphrase)
			if pass == "" || subtle.ConstantTimeCompare([]byte(got), []byte(pass)) != 1 {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type TokenRegistry interface {
	Register(ctx context.Context, token string) (tokens.AdminToken, error)
	Delete(ctx context.Context, token string) error
}

type AdminHandler struct {
	Orders     OrderService
	Menu       MenuService
	Tokens     TokenRegistry
	Status     StatusCache
	Stream     *StreamHandler
	Passphrase string
	Log        *zap.Logger
}

type TokenReq struct {
	Token string `json:"token"`
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(RequirePassphrase(h.Passphrase))
		if h.Stream != nil {
			r.Get("/orders/stream", h.Stream.allOrders)
		}
		r.Group(func(r chi.Router) {
			r.Use(timeout())
			r.Get("/orders", h.listActive)
			r.Post("/orders/{id}/accept", h.transition(h.Orders.Accept))
			r.Post("/orders/{id}/reject", h.transition(h.Orders.Reject))
			r.Post("/orders/{id}/done", h.transition(h.Orders.MarkDone))

			r.Post("/menu", h.createItem)
			r.Put("/menu/{id}", h.updateItem)
			r.Delete("/menu/{id}", h.deleteItem)
			r.Delete("/images/*", h.deleteImage)

			r.Post("/tokens", h.registerToken)
			r.Delete("/tokens", h.unregisterToken)
		})
	})
}

func (h *AdminHandler) listActive(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Orders.ListActive(ctx)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	live.SortNewestFirst(list)
	writeJSON(w, http.StatusOK, list)
}

func (h *AdminHandler) transition(op func(context.Context, string) (orders.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		o, err := op(ctx, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		if h.Status != nil {
			cs := redisx.CachedStatus{Status: string(o.Status), UpdatedAt: o.UpdatedAt}
			if err := h.Status.Put(ctx, o.ID, cs); err != nil {
				h.Log.Warn("cache status failed", zap.String("order_id", o.ID), zap.Error(err))
			}
		}
		writeJSON(w, http.StatusOK, o)
	}
}

func (h *AdminHandler) createItem(w http.ResponseWriter, r *http.Request) {
	var in menu.Input
	if err := decodeJSON(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	it, err := h.Menu.Create(ctx, in)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

func (h *AdminHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	var in menu.Input
	if err := decodeJSON(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	it, err := h.Menu.Update(ctx, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *AdminHandler) deleteItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Menu.Delete(ctx, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) deleteImage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Menu.DeleteImage(ctx, chi.URLParam(r, "*")); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) registerToken(w http.ResponseWriter, r *http.Request) {
	var req TokenReq
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	t, err := h.Tokens.Register(ctx, req.Token)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *AdminHandler) unregisterToken(w http.ResponseWriter, r *http.Request) {
	var req TokenReq
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Tokens.Delete(ctx, req.Token); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
