package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ZeeShekh1908/royal/internal/live"
	"github.com/ZeeShekh1908/royal/internal/orders"
	"github.com/tmaxmax/go-sse"
	"go.uber.org/zap"
)

// APIError is a non-2xx answer from the order API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// Is lets callers match API errors against the order sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case orders.ErrNotFound:
		return e.Status == http.StatusNotFound
	case orders.ErrIllegalTransition:
		return e.Status == http.StatusConflict
	}
	return false
}

// Client talks to the order API on behalf of the admin device and the
// customer tracker.
type Client struct {
	BaseURL    string
	Passphrase string
	HTTP       *http.Client
	Log        *zap.Logger
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func NewClient(baseURL, passphrase string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Passphrase: passphrase,
		HTTP:       &http.Client{},
		Log:        log,
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Passphrase != "" {
		req.Header.Set(HeaderAdminPassphrase, c.Passphrase)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(resp *http.Response) error {
	var eb errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&eb)
	if eb.Error == "" {
		eb.Error = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: eb.Error}
}

func (c *Client) Accept(ctx context.Context, id string) (orders.Order, error) {
	return c.transition(ctx, id, "accept")
}

func (c *Client) Reject(ctx context.Context, id string) (orders.Order, error) {
	return c.transition(ctx, id, "reject")
}

func (c *Client) MarkDone(ctx context.Context, id string) (orders.Order, error) {
	return c.transition(ctx, id, "done")
}

func (c *Client) transition(ctx context.Context, id, action string) (orders.Order, error) {
	var o orders.Order
	err := c.do(ctx, http.MethodPost, "/admin/orders/"+url.PathEscape(id)+"/"+action, nil, &o)
	return o, err
}

func (c *Client) RegisterToken(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/admin/tokens", TokenReq{Token: token}, nil)
}

func (c *Client) UnregisterToken(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodDelete, "/admin/tokens", TokenReq{Token: token}, nil)
}

// MaxFrameSize bounds a single SSE event read by Stream.
const MaxFrameSize = 4 << 20

// Stream follows the SSE endpoint at path until ctx is done, reconnecting
// with backoff. Every connect starts with an initial batch. Frames of a
// split batch are joined before onBatch sees them. A 4xx answer ends the
// stream with the APIError.
func (c *Client) Stream(ctx context.Context, path string, onBatch func(live.Batch)) error {
	minB, maxB := c.MinBackoff, c.MaxBackoff
	if minB <= 0 {
		minB = time.Second
	}
	if maxB <= 0 {
		maxB = 30 * time.Second
	}
	backoff := minB
	for {
		err := c.connect(ctx, path, minB, maxB, onBatch, func() { backoff = minB })
		if ctx.Err() != nil {
			return nil
		}
		var ae *APIError
		if errors.As(err, &ae) && ae.Status/100 == 4 {
			return ae
		}
		c.Log.Warn("stream rejected", zap.String("path", path), zap.Error(err), zap.Duration("retry_in", backoff))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil
		}
		if backoff *= 2; backoff > maxB {
			backoff = maxB
		}
	}
}

// connect runs one go-sse connection. Dropped connections are retried
// inside it; it returns on a rejected response or when ctx is done.
func (c *Client) connect(ctx context.Context, path string, minB, maxB time.Duration, onBatch func(live.Batch), connected func()) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	var pending *live.Batch
	client := &sse.Client{
		HTTPClient: c.HTTP,
		Backoff:    sse.Backoff{InitialInterval: minB, Multiplier: 2, MaxInterval: maxB},
		OnRetry: func(err error, next time.Duration) {
			c.Log.Warn("stream dropped", zap.String("path", path), zap.Error(err), zap.Duration("retry_in", next))
		},
		ResponseValidator: func(resp *http.Response) error {
			if resp.StatusCode != http.StatusOK {
				return decodeAPIError(resp)
			}
			if err := sse.DefaultValidator(resp); err != nil {
				return err
			}
			pending = nil
			connected()
			c.Log.Info("stream connected", zap.String("path", path))
			return nil
		},
	}
	conn := client.NewConnection(req)
	conn.Buffer(nil, MaxFrameSize)
	conn.SubscribeEvent(EventBatch, func(e sse.Event) {
		var f batchFrame
		if err := json.Unmarshal([]byte(e.Data), &f); err != nil {
			c.Log.Warn("skipping bad batch", zap.Error(err))
			return
		}
		if pending == nil {
			b := f.Batch
			pending = &b
		} else {
			pending.Changes = append(pending.Changes, f.Changes...)
		}
		if !f.More {
			b := *pending
			pending = nil
			onBatch(b)
		}
	})
	return conn.Connect()
}
