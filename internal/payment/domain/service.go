package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

//go:generate mockgen -destination=mocks/mock_order_client.go -package=mocks . OrderClient

// Service is the order gateway used by the HTTP surface.
type Service interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResponse, error)
	GetByOrderID(ctx context.Context, orderID string) (*Payment, error)
	VerifyPayment(ctx context.Context, req VerifyPaymentRequest) (*Payment, error)
	CancelOrder(ctx context.Context, orderID string) (*Payment, error)
	ListHistory(ctx context.Context, userID string, limit, offset int) (*HistoryPage, error)
	PublicConfig() PublicConfig
}

// WebhookService ingests raw processor deliveries.
type WebhookService interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (*WebhookResult, error)
	Providers() []string
}

// Webhook outcomes.
const (
	OutcomeApplied   = "applied"
	OutcomeNoop      = "noop"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
)

type WebhookResult struct {
	Event   string `json:"event"`
	Outcome string `json:"outcome"`
}

// Store owns every write to payment rows.
type Store interface {
	Create(ctx context.Context, userID string, amount int64, currency string) (*Payment, error)
	AttachOrderID(ctx context.Context, id snowflake.ID, orderID string) error
	UpdateStatus(ctx context.Context, orderID string, status Status, externalPaymentID string, source string) (*TransitionResult, error)
	GetByOrderID(ctx context.Context, orderID string) (*Payment, error)
	GetActiveForUser(ctx context.Context, userID string) (*Payment, error)
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]Payment, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	AttachOrderID(ctx context.Context, db *gorm.DB, id snowflake.ID, orderID string, at time.Time) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	FindByOrderID(ctx context.Context, db *gorm.DB, orderID string) (*Payment, error)
	TransitionPending(ctx context.Context, db *gorm.DB, orderID string, to Status, externalPaymentID *string, at time.Time) (bool, error)
	FindLatestCompleted(ctx context.Context, db *gorm.DB, userID string, since time.Time) (*Payment, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID string, limit, offset int) ([]Payment, error)

	FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*EventRecord, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}

type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

type Order struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
	Status   string
}

// OrderClient creates orders at the processor.
type OrderClient interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
}

type AdapterConfig struct {
	Provider string
	Config   map[string]any
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

// PaymentAdapter verifies and decodes one provider's webhook deliveries.
type PaymentAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte, headers http.Header) (*Envelope, error)
}

// TransitionObserver is notified after a status change commits.
type TransitionObserver interface {
	PaymentTransitioned(ctx context.Context, payment Payment)
}
