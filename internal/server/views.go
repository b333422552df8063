package server

import (
	"time"

	entitlementdomain "github.com/smallbiznis/sitecraft/internal/entitlement/domain"
	paymentdomain "github.com/smallbiznis/sitecraft/internal/payment/domain"
)

type paymentView struct {
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

func newPaymentView(p *paymentdomain.Payment) *paymentView {
	if p == nil {
		return nil
	}
	return &paymentView{
		ID:        p.ID.String(),
		OrderID:   p.OrderID(),
		PaymentID: p.PaymentID(),
		UserID:    p.UserID,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Status:    string(p.Status),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func newEntitlementPaymentView(e *entitlementdomain.Entitlement) *paymentView {
	if e == nil || !e.Active {
		return nil
	}
	view := newPaymentView(e.Payment)
	if view != nil {
		view.ExpiresAt = e.ExpiresAt
	}
	return view
}

type createOrderResponse struct {
	Success   bool   `json:"success"`
	OrderID   string `json:"order_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Key       string `json:"key"`
	PaymentID string `json:"payment_id"`
}

type paymentResponse struct {
	Success bool         `json:"success"`
	Payment *paymentView `json:"payment"`
}

type activePaymentResponse struct {
	HasActivePayment bool         `json:"hasActivePayment"`
	Payment          *paymentView `json:"payment"`
}

type historyResponse struct {
	Payments []paymentView `json:"payments"`
	Limit    int           `json:"limit"`
	Offset   int           `json:"offset"`
}

type checkoutConfigResponse struct {
	Key           string `json:"key"`
	Currency      string `json:"currency"`
	DefaultAmount int64  `json:"default_amount"`
}

type webhookResponse struct {
	Success bool   `json:"success"`
	Event   string `json:"event"`
}

type webhookStatusResponse struct {
	Success   bool     `json:"success"`
	Endpoints []string `json:"endpoints"`
}
