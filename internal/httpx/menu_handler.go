package httpx

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ZeeShekh1908/royal/internal/menu"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type MenuService interface {
	Create(ctx context.Context, in menu.Input) (menu.Item, error)
	Get(ctx context.Context, id string) (menu.Item, error)
	List(ctx context.Context) ([]menu.Item, error)
	Update(ctx context.Context, id string, in menu.Input) (menu.Item, error)
	Delete(ctx context.Context, id string) error
	DeleteImage(ctx context.Context, path string) error
}

// ImageReader serves uploaded menu images.
type ImageReader interface {
	Open(ctx context.Context, path string) (io.ReadCloser, string, error)
}

type MenuHandler struct {
	Menu   MenuService
	Images ImageReader
	Log    *zap.Logger
}

func (h *MenuHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(timeout())
		r.Get("/menu", h.list)
		r.Get("/menu/{id}", h.get)
		r.Get("/images/*", h.image)
	})
}

// list returns the flat catalog, or categories when ?grouped=true.
func (h *MenuHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	items, err := h.Menu.List(ctx)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if grouped, _ := strconv.ParseBool(r.URL.Query().Get("grouped")); grouped {
		writeJSON(w, http.StatusOK, menu.Group(items))
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *MenuHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	it, err := h.Menu.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *MenuHandler) image(w http.ResponseWriter, r *http.Request) {
	if h.Images == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
		return
	}
	rc, ct, err := h.Images.Open(r.Context(), chi.URLParam(r, "*"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.Log.Warn("serve image failed", zap.Error(err))
	}
}
