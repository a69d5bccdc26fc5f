package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ZeeShekh1908/royal/internal/live"
	"github.com/go-chi/chi/v5"
	"github.com/tmaxmax/go-sse"
	"go.uber.org/zap"
)

type Subscriber interface {
	Subscribe(ctx context.Context, q live.Query) (*live.Subscription, error)
}

// StreamHandler serves live query subscriptions as server-sent events.
// Each batch goes out as "batch" events whose data is the JSON frame.
type StreamHandler struct {
	Hub       Subscriber
	Heartbeat time.Duration
	Log       *zap.Logger

	closing   chan struct{}
	closeOnce sync.Once
}

func NewStreamHandler(hub Subscriber, log *zap.Logger) *StreamHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &StreamHandler{Hub: hub, Heartbeat: 15 * time.Second, Log: log, closing: make(chan struct{})}
}

// Shutdown ends every open stream. Register it with
// http.Server.RegisterOnShutdown so Shutdown is not held up by them.
func (h *StreamHandler) Shutdown() {
	h.closeOnce.Do(func() { close(h.closing) })
}

const EventBatch = "batch"

func (h *StreamHandler) Register(r chi.Router) {
	r.Get("/orders/stream", h.byPhone)
	r.Get("/orders/{id}/stream", h.byID)
}

func (h *StreamHandler) byID(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, live.OrderByID(chi.URLParam(r, "id")))
}

func (h *StreamHandler) byPhone(w http.ResponseWriter, r *http.Request) {
	phone := strings.TrimSpace(r.URL.Query().Get("phone"))
	if phone == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing phone"})
		return
	}
	h.serve(w, r, live.OrdersByPhone(phone))
}

func (h *StreamHandler) allOrders(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, live.AllOrders())
}

func (h *StreamHandler) serve(w http.ResponseWriter, r *http.Request, q live.Query) {
	sess, err := sse.Upgrade(w, r)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming unsupported"})
		return
	}
	ctx := r.Context()
	sub, err := h.Hub.Subscribe(ctx, q)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	defer sub.Unsubscribe()

	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	if err := sess.Flush(); err != nil {
		return
	}

	hb := h.Heartbeat
	if hb <= 0 {
		hb = 15 * time.Second
	}
	tick := time.NewTicker(hb)
	defer tick.Stop()

	h.Log.Debug("stream opened", zap.String("query", q.Name))
	defer h.Log.Debug("stream closed", zap.String("query", q.Name))
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.closing:
			return
		case b, ok := <-sub.C:
			if !ok {
				return
			}
			if err := sendBatch(sess, b); err != nil {
				h.Log.Debug("stream write failed", zap.String("query", q.Name), zap.Error(err))
				return
			}
		case <-tick.C:
			ping := &sse.Message{}
			ping.AppendComment("ping")
			if err := sess.Send(ping); err != nil {
				return
			}
			if err := sess.Flush(); err != nil {
				return
			}
		}
	}
}

// MaxFrameChanges caps the changes carried by one SSE event. A batch
// beyond it, typically an initial snapshot, spans several frames.
const MaxFrameChanges = 100

// batchFrame is one "batch" event. More is set on every frame of a split
// batch but the last; only the first frame keeps Initial.
type batchFrame struct {
	live.Batch
	More bool `json:"more,omitempty"`
}

func splitBatch(b live.Batch, size int) []batchFrame {
	if len(b.Changes) <= size {
		return []batchFrame{{Batch: b}}
	}
	frames := make([]batchFrame, 0, (len(b.Changes)+size-1)/size)
	for i := 0; i < len(b.Changes); i += size {
		end := min(i+size, len(b.Changes))
		frames = append(frames, batchFrame{
			Batch: live.Batch{Initial: b.Initial && i == 0, Changes: b.Changes[i:end]},
			More:  end < len(b.Changes),
		})
	}
	return frames
}

func sendBatch(sess *sse.Session, b live.Batch) error {
	for _, f := range splitBatch(b, MaxFrameChanges) {
		data, err := json.Marshal(f)
		if err != nil {
			return err
		}
		msg := &sse.Message{Type: sse.Type(EventBatch)}
		msg.AppendData(string(data))
		if err := sess.Send(msg); err != nil {
			return err
		}
	}
	return sess.Flush()
}
