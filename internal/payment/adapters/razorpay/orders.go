package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/sitecraft/internal/config"
	"github.com/smallbiznis/sitecraft/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/sitecraft/internal/payment/domain"
	"go.opentelemetry.io/otel/propagation"
)

const defaultAPIBase = "https://api.razorpay.com"

type orderPayload struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type orderResponse struct {
	ID       string `json:"id"`
	Entity   string `json:"entity"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type errorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// OrdersClient creates orders through the processor's REST API.
type OrdersClient struct {
	keyID     string
	keySecret string
	apiBase   string
	client    *http.Client
}

func NewOrdersClient(cfg config.Config) paymentdomain.OrderClient {
	return newOrdersClient(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret, cfg.Razorpay.APIBase, cfg.Razorpay.Timeout)
}

func newOrdersClient(keyID, keySecret, apiBase string, timeout time.Duration) *OrdersClient {
	apiBase = strings.TrimRight(strings.TrimSpace(apiBase), "/")
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OrdersClient{
		keyID:     strings.TrimSpace(keyID),
		keySecret: strings.TrimSpace(keySecret),
		apiBase:   apiBase,
		client:    &http.Client{Timeout: timeout},
	}
}

// CreateOrder registers an order for the given amount. Timeouts, transport
// failures and 5xx answers surface as ErrGatewayUnavailable; any other
// rejection surfaces as ErrGatewayRejected.
func (c *OrdersClient) CreateOrder(ctx context.Context, req paymentdomain.OrderRequest) (*paymentdomain.Order, error) {
	if c.keyID == "" || c.keySecret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	body, err := json.Marshal(orderPayload{
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(c.keyID, c.keySecret)
	httpReq.Header.Set("Content-Type", "application/json")
	tracing.InjectContext(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d", paymentdomain.ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return nil, fmt.Errorf("%w: status %d", paymentdomain.ErrGatewayRejected, resp.StatusCode)
		}
		code := strings.TrimSpace(apiErr.Error.Code)
		if code == "" {
			code = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %s", paymentdomain.ErrGatewayRejected, code)
	}

	var order orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("%w: decode order", paymentdomain.ErrGatewayUnavailable)
	}
	if strings.TrimSpace(order.ID) == "" {
		return nil, fmt.Errorf("%w: order id missing", paymentdomain.ErrGatewayRejected)
	}
	return &paymentdomain.Order{
		ID:       order.ID,
		Amount:   order.Amount,
		Currency: order.Currency,
		Receipt:  order.Receipt,
		Status:   order.Status,
	}, nil
}

// classifyTransportError keeps caller cancellation as is. Everything else,
// client timeouts included, means the processor could not be reached.
func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", paymentdomain.ErrGatewayUnavailable, err)
}
