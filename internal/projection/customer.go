package projection

import (
	"sync"

	"github.com/ZeeShekh1908/royal/internal/live"
	"github.com/ZeeShekh1908/royal/internal/orders"
)

var Steps = []string{"Confirmed", "Preparing", "On the Way", "Delivered"}

// StepIndex maps a status onto Steps. A rejected order never gets past
// the first step.
func StepIndex(s orders.Status) int {
	switch s {
	case orders.StatusAccepted:
		return 1
	case orders.StatusDone:
		return 3
	default:
		return 0
	}
}

func Headline(s orders.Status) string {
	switch s {
	case orders.StatusDone:
		return "Order delivered"
	case orders.StatusAccepted:
		return "Your order is being prepared"
	default:
		return "Order confirmed"
	}
}

func ETA(s orders.Status) string {
	if s == orders.StatusDone {
		return "Thank you for ordering!"
	}
	return "Arriving in ~20 mins"
}

// StatusMessage is the one-line status shown in order history.
func StatusMessage(s orders.Status) string {
	switch s {
	case orders.StatusAccepted:
		return "Your order has been accepted"
	case orders.StatusRejected:
		return "Your order was rejected"
	case orders.StatusDone:
		return "Your order is on the way"
	default:
		return "Waiting for approval"
	}
}

type Progress struct {
	OrderID    string        `json:"orderId"`
	Status     orders.Status `json:"status"`
	Step       int           `json:"step"`
	StepName   string        `json:"stepName"`
	Headline   string        `json:"headline"`
	ETA        string        `json:"eta"`
	TotalPaise int64         `json:"totalPaise"`
	Item       string        `json:"item"`
	Quantity   int           `json:"quantity"`
}

func ProgressOf(o orders.Order) Progress {
	i := StepIndex(o.Status)
	return Progress{
		OrderID:    o.ID,
		Status:     o.Status,
		Step:       i,
		StepName:   Steps[i],
		Headline:   Headline(o.Status),
		ETA:        ETA(o.Status),
		TotalPaise: o.TotalPaise,
		Item:       o.LineItem.Name,
		Quantity:   o.Quantity,
	}
}

// OrderTracker follows one order from an OrderByID subscription.
type OrderTracker struct {
	mu    sync.Mutex
	order orders.Order
	known bool
}

// Apply reports whether the displayed progress changed.
func (t *OrderTracker) Apply(b live.Batch) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, prevKnown := t.order, t.known
	if b.Initial {
		t.order, t.known = orders.Order{}, false
	}
	for _, c := range b.Changes {
		if t.known && c.Order.Version < t.order.Version {
			continue
		}
		if c.Type == live.Removed {
			t.order, t.known = orders.Order{}, false
			continue
		}
		t.order, t.known = c.Order, true
	}
	return t.known != prevKnown || (t.known && t.order.Status != prev.Status)
}

func (t *OrderTracker) Progress() (Progress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.known {
		return Progress{}, false
	}
	return ProgressOf(t.order), true
}

type HistoryEntry struct {
	Order   orders.Order `json:"order"`
	Message string       `json:"message"`
}

// OrderHistory is a customer's orders from an OrdersByPhone subscription.
type OrderHistory struct {
	mu     sync.Mutex
	orders map[string]orders.Order
}

func NewOrderHistory() *OrderHistory {
	return &OrderHistory{orders: map[string]orders.Order{}}
}

func (h *OrderHistory) Apply(b live.Batch) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if b.Initial {
		h.orders = map[string]orders.Order{}
	}
	for _, c := range b.Changes {
		cur, ok := h.orders[c.Order.ID]
		if ok && c.Order.Version < cur.Version {
			continue
		}
		if c.Type == live.Removed {
			delete(h.orders, c.Order.ID)
			continue
		}
		h.orders[c.Order.ID] = c.Order
	}
}

// Entries returns the history newest first.
func (h *OrderHistory) Entries() []HistoryEntry {
	h.mu.Lock()
	list := make([]orders.Order, 0, len(h.orders))
	for _, o := range h.orders {
		list = append(list, o)
	}
	h.mu.Unlock()
	live.SortNewestFirst(list)
	out := make([]HistoryEntry, len(list))
	for i, o := range list {
		out[i] = HistoryEntry{Order: o, Message: StatusMessage(o.Status)}
	}
	return out
}
