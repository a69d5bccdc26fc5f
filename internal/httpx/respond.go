package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ZeeShekh1908/royal/internal/blob"
	"github.com/ZeeShekh1908/royal/internal/menu"
	"github.com/ZeeShekh1908/royal/internal/orders"
	"github.com/ZeeShekh1908/royal/internal/tokens"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 10<<20))
	return dec.Decode(v)
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// writeError maps domain errors onto status codes. Anything unknown is a
// 500 and is logged; its text is not sent to the client.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var ove *orders.ValidationError
	var mve *menu.ValidationError
	switch {
	case errors.As(err, &ove):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: ove.Error(), Field: ove.Field})
	case errors.As(err, &mve):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: mve.Error(), Field: mve.Field})
	case errors.Is(err, orders.ErrNotFound), errors.Is(err, menu.ErrNotFound), errors.Is(err, blob.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, orders.ErrIllegalTransition), errors.Is(err, orders.ErrStatusConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, tokens.ErrEmptyToken):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		if log != nil {
			log.Error("request failed", zap.Error(err))
		}
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}
