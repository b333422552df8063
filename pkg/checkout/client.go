package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotFound    = errors.New("not_found")
	ErrRateLimited = errors.New("rate_limited")
	ErrBadRequest  = errors.New("bad_request")
	ErrServer      = errors.New("server_error")
)

// Payment status values as reported by the API.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

type Config struct {
	Key           string `json:"key"`
	Currency      string `json:"currency"`
	DefaultAmount int64  `json:"default_amount"`
}

type Order struct {
	OrderID   string `json:"order_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Key       string `json:"key"`
	PaymentID string `json:"payment_id"`
}

type Payment struct {
	ID        string     `json:"id"`
	OrderID   string     `json:"order_id"`
	PaymentID string     `json:"payment_id,omitempty"`
	UserID    string     `json:"user_id"`
	Amount    int64      `json:"amount"`
	Currency  string     `json:"currency"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type Active struct {
	HasActivePayment bool     `json:"hasActivePayment"`
	Payment          *Payment `json:"payment"`
}

// Callback is what the checkout widget hands back after the user paid.
type Callback struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
}

// APIError is a non-2xx answer. It matches ErrNotFound, ErrRateLimited,
// ErrBadRequest or ErrServer through errors.Is.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sitecraft api: %d %s: %s", e.StatusCode, e.Type, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrBadRequest:
		return e.StatusCode == http.StatusBadRequest
	case ErrServer:
		return e.StatusCode >= http.StatusInternalServerError
	default:
		return false
	}
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// Client talks to the sitecraft payment API.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Config(ctx context.Context) (*Config, error) {
	var out Config
	if err := c.do(ctx, http.MethodGet, "/payment/config", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOrder starts a checkout. A nil amount uses the server default.
func (c *Client) CreateOrder(ctx context.Context, userID string, amount *int64) (*Order, error) {
	body := map[string]any{"userId": userID}
	if amount != nil {
		body["amount"] = *amount
	}
	var out Order
	if err := c.do(ctx, http.MethodPost, "/payment/create-order", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Status(ctx context.Context, orderID string) (*Payment, error) {
	var out struct {
		Payment *Payment `json:"payment"`
	}
	if err := c.do(ctx, http.MethodGet, "/payment/status/"+url.PathEscape(orderID), nil, &out); err != nil {
		return nil, err
	}
	if out.Payment == nil {
		return nil, &APIError{StatusCode: http.StatusNotFound, Type: "not_found", Message: "empty payment"}
	}
	return out.Payment, nil
}

func (c *Client) Active(ctx context.Context, userID string) (*Active, error) {
	var out Active
	if err := c.do(ctx, http.MethodGet, "/payment/user/"+url.PathEscape(userID)+"/active", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) History(ctx context.Context, userID string, limit, offset int) ([]Payment, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}
	path := "/payment/user/" + url.PathEscape(userID) + "/history"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var out struct {
		Payments []Payment `json:"payments"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Payments, nil
}

func (c *Client) Verify(ctx context.Context, cb Callback) (*Payment, error) {
	var out struct {
		Payment *Payment `json:"payment"`
	}
	if err := c.do(ctx, http.MethodPost, "/payment/verify", cb, &out); err != nil {
		return nil, err
	}
	return out.Payment, nil
}

func (c *Client) Cancel(ctx context.Context, orderID string) (*Payment, error) {
	var out struct {
		Payment *Payment `json:"payment"`
	}
	if err := c.do(ctx, http.MethodPost, "/payment/cancel", map[string]string{"orderId": orderID}, &out); err != nil {
		return nil, err
	}
	return out.Payment, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func decodeAPIError(status int, raw []byte) error {
	apiErr := &APIError{StatusCode: status, Type: http.StatusText(status)}
	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Type != "" {
		apiErr.Type = envelope.Error.Type
		apiErr.Message = envelope.Error.Message
	}
	return apiErr
}
