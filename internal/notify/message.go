package notify

import (
	"fmt"

	"github.com/ZeeShekh1908/royal/internal/orders"
)

const (
	PushTitle   = "🛒 New Order Placed"
	LocalTitle  = "🛎️ New Order!"
	PushSound   = "telephone-ring.wav"
	PushChannel = "default"
	AdminScreen = "AdminOrders"
)

type Message struct {
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	Sound     string            `json:"sound,omitempty"`
	ChannelID string            `json:"channelId,omitempty"`
}

// Summary renders "From: <name> | <item> x<qty> | ₹<total>".
func Summary(o orders.Order) string {
	return fmt.Sprintf("From: %s | %s x%d | ₹%s",
		o.CustomerName, o.LineItem.Name, o.Quantity, orders.Rupees(o.TotalPaise))
}

func NewOrderMessage(o orders.Order) Message {
	return Message{
		Title:     PushTitle,
		Body:      Summary(o),
		Data:      map[string]string{"screen": AdminScreen, "orderId": o.ID},
		Sound:     PushSound,
		ChannelID: PushChannel,
	}
}
