package service

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/sitecraft/internal/config"
	obsmetrics "github.com/smallbiznis/sitecraft/internal/observability/metrics"
	"github.com/smallbiznis/sitecraft/internal/payment/adapters/razorpay"
	paymentdomain "github.com/smallbiznis/sitecraft/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Cfg        config.Config
	Checkout   *config.CheckoutConfigHolder
	Store      paymentdomain.Store
	Orders     paymentdomain.OrderClient
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Service is the order gateway. It is the only component holding the API key
// secret.
type Service struct {
	log        *zap.Logger
	keyID      string
	keySecret  string
	currency   string
	checkout   *config.CheckoutConfigHolder
	store      paymentdomain.Store
	orders     paymentdomain.OrderClient
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	currency := strings.ToUpper(strings.TrimSpace(p.Cfg.Currency))
	if currency == "" {
		currency = "INR"
	}
	return &Service{
		log:        p.Log.Named("payment.service"),
		keyID:      p.Cfg.Razorpay.KeyID,
		keySecret:  p.Cfg.Razorpay.KeySecret,
		currency:   currency,
		checkout:   p.Checkout,
		store:      p.Store,
		orders:     p.Orders,
		obsMetrics: p.ObsMetrics,
	}
}

// CreateOrder persists a pending payment, registers the order with the
// processor and binds the two. A processor failure leaves the pending row
// behind; it never becomes active.
func (s *Service) CreateOrder(ctx context.Context, req paymentdomain.CreateOrderRequest) (*paymentdomain.CreateOrderResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, paymentdomain.ErrInvalidUserID
	}
	amount := s.checkout.Get().DefaultAmount
	if req.Amount != nil {
		amount = *req.Amount
	}
	if amount <= 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}

	payment, err := s.store.Create(ctx, userID, amount, s.currency)
	if err != nil {
		s.obsMetrics.RecordOrderCreated(ctx, "storage_error")
		return nil, err
	}

	paymentID := payment.ID.String()
	order, err := s.orders.CreateOrder(ctx, paymentdomain.OrderRequest{
		Amount:   amount,
		Currency: s.currency,
		Receipt:  paymentID,
		Notes: map[string]string{
			"user_id":    userID,
			"payment_id": paymentID,
		},
	})
	if err != nil {
		status := "gateway_rejected"
		if errors.Is(err, paymentdomain.ErrGatewayUnavailable) {
			status = "gateway_unavailable"
		}
		s.obsMetrics.RecordOrderCreated(ctx, status)
		s.log.Warn("processor order creation failed",
			zap.String("payment_id", paymentID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		if errors.Is(err, paymentdomain.ErrGatewayUnavailable) || errors.Is(err, paymentdomain.ErrGatewayRejected) {
			return nil, err
		}
		return nil, errors.Join(paymentdomain.ErrGatewayRejected, err)
	}

	if err := s.store.AttachOrderID(ctx, payment.ID, order.ID); err != nil {
		s.obsMetrics.RecordOrderCreated(ctx, "storage_error")
		s.log.Error("order created but not recorded",
			zap.String("payment_id", paymentID),
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
		return nil, err
	}

	s.obsMetrics.RecordOrderCreated(ctx, "created")
	s.log.Info("order created",
		zap.String("payment_id", paymentID),
		zap.String("order_id", order.ID),
		zap.Int64("amount", amount),
	)
	return &paymentdomain.CreateOrderResponse{
		OrderID:   order.ID,
		Amount:    amount,
		Currency:  s.currency,
		KeyID:     s.keyID,
		PaymentID: payment.ID,
	}, nil
}

func (s *Service) GetByOrderID(ctx context.Context, orderID string) (*paymentdomain.Payment, error) {
	return s.store.GetByOrderID(ctx, orderID)
}

// VerifyPayment is the manual confirmation path used when the webhook has not
// arrived yet. It applies the same conditional update as the webhook.
func (s *Service) VerifyPayment(ctx context.Context, req paymentdomain.VerifyPaymentRequest) (*paymentdomain.Payment, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return nil, paymentdomain.ErrInvalidOrderID
	}
	externalPaymentID := strings.TrimSpace(req.PaymentID)
	if externalPaymentID == "" {
		return nil, paymentdomain.ErrInvalidPaymentID
	}
	if !razorpay.VerifyPaymentCallback(orderID, externalPaymentID, req.Signature, s.keySecret) {
		s.log.Warn("payment callback signature rejected", zap.String("order_id", orderID))
		return nil, paymentdomain.ErrInvalidSignature
	}

	result, err := s.store.UpdateStatus(ctx, orderID, paymentdomain.StatusCompleted, externalPaymentID, paymentdomain.SourceManualVerify)
	if err != nil {
		return nil, err
	}
	return result.Payment, nil
}

// CancelOrder marks an abandoned checkout. It never overrides a terminal
// status.
func (s *Service) CancelOrder(ctx context.Context, orderID string) (*paymentdomain.Payment, error) {
	result, err := s.store.UpdateStatus(ctx, orderID, paymentdomain.StatusCancelled, "", paymentdomain.SourceClientCancel)
	if err != nil {
		return nil, err
	}
	return result.Payment, nil
}

func (s *Service) ListHistory(ctx context.Context, userID string, limit, offset int) (*paymentdomain.HistoryPage, error) {
	cfg := s.checkout.Get()
	if limit < 0 || offset < 0 {
		return nil, paymentdomain.ErrInvalidPagination
	}
	if limit == 0 {
		limit = cfg.HistoryPageLimit
	}
	if limit > cfg.HistoryMaxLimit {
		limit = cfg.HistoryMaxLimit
	}

	items, err := s.store.ListForUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []paymentdomain.Payment{}
	}
	return &paymentdomain.HistoryPage{Items: items, Limit: limit, Offset: offset}, nil
}

func (s *Service) PublicConfig() paymentdomain.PublicConfig {
	return paymentdomain.PublicConfig{
		KeyID:         s.keyID,
		Currency:      s.currency,
		DefaultAmount: s.checkout.Get().DefaultAmount,
	}
}
