package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrDeviceNotRegistered means the token is dead and should be dropped.
var ErrDeviceNotRegistered = errors.New("device not registered")

type expoRequest struct {
	To string `json:"to"`
	Message
}

type expoResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

type expoTicket struct {
	Status  string `json:"status"`
	ID      string `json:"id"`
	Message string `json:"message"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

// ExpoPusher sends one message per token to the Expo push API.
type ExpoPusher struct {
	Endpoint string
	Client   *resty.Client
}

func NewExpoPusher(endpoint string) *ExpoPusher {
	c := resty.New().
		SetTimeout(10*time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	return &ExpoPusher{Endpoint: endpoint, Client: c}
}

func (p *ExpoPusher) Push(ctx context.Context, token string, m Message) error {
	var er expoResponse
	resp, err := p.Client.R().
		SetContext(ctx).
		SetBody(expoRequest{To: token, Message: m}).
		SetResult(&er).
		ForceContentType("application/json").
		Post(p.Endpoint)
	if err != nil {
		if resp != nil && resp.IsSuccess() {
			return fmt.Errorf("decode push response: %w", err)
		}
		return fmt.Errorf("push request: %w", err)
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("push api status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	if len(er.Errors) > 0 {
		return fmt.Errorf("push api %s: %s", er.Errors[0].Code, er.Errors[0].Message)
	}
	// data is an object for a single recipient and an array for several.
	var ticket expoTicket
	if err := json.Unmarshal(er.Data, &ticket); err != nil {
		var tickets []expoTicket
		if err := json.Unmarshal(er.Data, &tickets); err != nil || len(tickets) == 0 {
			return fmt.Errorf("decode push ticket: %s", er.Data)
		}
		ticket = tickets[0]
	}
	if ticket.Status == "error" {
		if ticket.Details.Error == "DeviceNotRegistered" {
			return ErrDeviceNotRegistered
		}
		return fmt.Errorf("push ticket error: %s", ticket.Message)
	}
	return nil
}
