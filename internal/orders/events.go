package orders

import (
	"encoding/json"
	"time"
)

const EventOrderCreated = "OrderCreated"

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g. "order-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

// OrderCreatedPayload carries everything Notification Dispatch needs so the
// notifier never has to re-read the order.
type OrderCreatedPayload struct {
	OrderID      string   `json:"order_id"`
	CustomerName string   `json:"customer_name"`
	Phone        string   `json:"phone"`
	Item         LineItem `json:"item"`
	Quantity     int      `json:"quantity"`
	TotalPaise   int64    `json:"total_paise"`
}

func CreatedPayload(o Order) OrderCreatedPayload {
	return OrderCreatedPayload{
		OrderID:      o.ID,
		CustomerName: o.CustomerName,
		Phone:        o.Phone,
		Item:         o.LineItem,
		Quantity:     o.Quantity,
		TotalPaise:   o.TotalPaise,
	}
}

// Order rebuilds the subset of the order carried in the event.
func (p OrderCreatedPayload) Order() Order {
	return Order{
		ID:           p.OrderID,
		CustomerName: p.CustomerName,
		Phone:        p.Phone,
		LineItem:     p.Item,
		Quantity:     p.Quantity,
		TotalPaise:   p.TotalPaise,
		Status:       StatusPending,
	}
}
