package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

var ErrStillPending = errors.New("payment_still_pending")

// Session is handed to the checkout widget.
type Session struct {
	UserID string
	Config Config
	Order  Order
}

// UIResult reports how the widget closed. Callback is set when the user
// completed payment; it is forwarded for server-side verification and never
// used to decide success.
type UIResult struct {
	Dismissed bool
	Callback  *Callback
}

// CheckoutUI opens the processor's checkout widget and blocks until it
// closes.
type CheckoutUI interface {
	Open(ctx context.Context, session Session) (UIResult, error)
}

// Result is the reconciled outcome of one checkout.
type Result struct {
	OrderID   string
	Status    string
	Payment   *Payment
	Active    bool
	Dismissed bool
}

func (r Result) Succeeded() bool {
	return r.Status == StatusCompleted
}

type PollConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

func DefaultPollConfig() PollConfig {
	return PollConfig{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxElapsed:      2 * time.Minute,
	}
}

func (c PollConfig) withDefaults() PollConfig {
	defaults := DefaultPollConfig()
	if c.InitialInterval <= 0 {
		c.InitialInterval = defaults.InitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = defaults.MaxInterval
	}
	if c.MaxElapsed <= 0 {
		c.MaxElapsed = defaults.MaxElapsed
	}
	return c
}

// Poller runs the client side of a checkout and reconciles the result with
// the server.
type Poller struct {
	client *Client
	loader *Loader
	ui     CheckoutUI
	cfg    PollConfig
	log    *zap.Logger
}

func NewPoller(client *Client, loader *Loader, ui CheckoutUI, cfg PollConfig, log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	if loader == nil {
		loader = NewLoader(client)
	}
	return &Poller{
		client: client,
		loader: loader,
		ui:     ui,
		cfg:    cfg.withDefaults(),
		log:    log.Named("checkout.poller"),
	}
}

// Begin loads the checkout, creates an order and opens the widget. A
// dismissed widget cancels the order on a best-effort basis.
func (p *Poller) Begin(ctx context.Context, userID string, amount *int64) (*Result, error) {
	cfg, err := p.loader.Ensure(ctx)
	if err != nil {
		return nil, fmt.Errorf("load checkout: %w", err)
	}

	order, err := p.client.CreateOrder(ctx, userID, amount)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	outcome, err := p.ui.Open(ctx, Session{UserID: userID, Config: *cfg, Order: *order})
	if err != nil {
		return nil, fmt.Errorf("open checkout: %w", err)
	}

	if outcome.Dismissed {
		if _, cancelErr := p.client.Cancel(ctx, order.OrderID); cancelErr != nil {
			p.log.Debug("cancel after dismiss failed", zap.String("order_id", order.OrderID), zap.Error(cancelErr))
		}
		return &Result{OrderID: order.OrderID, Status: StatusCancelled, Dismissed: true}, nil
	}

	if cb := outcome.Callback; cb != nil {
		if cb.OrderID == "" {
			cb.OrderID = order.OrderID
		}
		if _, verifyErr := p.client.Verify(ctx, *cb); verifyErr != nil {
			p.log.Debug("callback verification failed, waiting for webhook", zap.String("order_id", order.OrderID), zap.Error(verifyErr))
		}
	}

	return p.Refresh(ctx, userID, order.OrderID)
}

// Refresh polls the order until it is terminal, the poll budget runs out or
// ctx ends. On a completed order it also reads the user's entitlement.
func (p *Poller) Refresh(ctx context.Context, userID, orderID string) (*Result, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.InitialInterval
	bo.MaxInterval = p.cfg.MaxInterval

	var last *Payment
	payment, err := backoff.Retry(ctx, func() (*Payment, error) {
		payment, err := p.client.Status(ctx, orderID)
		if err != nil {
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrBadRequest) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		last = payment
		if !IsTerminal(payment.Status) {
			return nil, ErrStillPending
		}
		return payment, nil
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxElapsedTime(p.cfg.MaxElapsed),
	)
	if err != nil {
		if last != nil {
			return &Result{OrderID: orderID, Status: last.Status, Payment: last}, err
		}
		return nil, err
	}

	result := &Result{OrderID: orderID, Status: payment.Status, Payment: payment}
	if payment.Status != StatusCompleted || userID == "" {
		return result, nil
	}

	active, err := p.client.Active(ctx, userID)
	if err != nil {
		p.log.Debug("entitlement lookup failed", zap.String("order_id", orderID), zap.Error(err))
		return result, nil
	}
	result.Active = active.HasActivePayment
	return result, nil
}
