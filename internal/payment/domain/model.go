package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether from -> to is allowed. Only pending rows move,
// and only into a terminal status.
func CanTransition(from, to Status) bool {
	return from == StatusPending && to.IsTerminal()
}

// Transition sources recorded on metrics and outbox messages.
const (
	SourceWebhook      = "webhook"
	SourceManualVerify = "manual_verify"
	SourceClientCancel = "client_cancel"
)

// Payment is one checkout attempt. ExternalOrderID is unset until the
// processor accepted the order.
type Payment struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID            string       `json:"user_id" gorm:"type:varchar(255);not null;index:idx_payments_user_status_created,priority:1"`
	Amount            int64        `json:"amount" gorm:"not null"`
	Currency          string       `json:"currency" gorm:"type:varchar(8);not null"`
	Status            Status       `json:"status" gorm:"type:varchar(16);not null;default:pending;index:idx_payments_user_status_created,priority:2"`
	ExternalOrderID   *string      `json:"razorpay_order_id,omitempty" gorm:"column:razorpay_order_id;type:varchar(255);uniqueIndex:ux_payments_razorpay_order_id"`
	ExternalPaymentID *string      `json:"razorpay_payment_id,omitempty" gorm:"column:razorpay_payment_id;type:varchar(255)"`
	CreatedAt         time.Time    `json:"created_at" gorm:"not null;index:idx_payments_user_status_created,priority:3"`
	UpdatedAt         time.Time    `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

func (p Payment) OrderID() string {
	if p.ExternalOrderID == nil {
		return ""
	}
	return *p.ExternalOrderID
}

func (p Payment) PaymentID() string {
	if p.ExternalPaymentID == nil {
		return ""
	}
	return *p.ExternalPaymentID
}

// EventRecord is the delivery receipt for one processor event.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:varchar(64);not null;uniqueIndex:ux_payment_events_provider_event,priority:1"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_payment_events_provider_event,priority:2"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	OrderID         *string        `json:"order_id,omitempty" gorm:"type:text"`
	Payload         datatypes.JSON `json:"payload" gorm:"not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

// TransitionResult describes the outcome of a status update. Applied is false
// when the row was already terminal and nothing changed.
type TransitionResult struct {
	Payment  *Payment
	Previous Status
	Applied  bool
}

// CreateOrderRequest starts a checkout. A nil Amount means the configured
// default.
type CreateOrderRequest struct {
	UserID string
	Amount *int64
}

type CreateOrderResponse struct {
	OrderID   string
	Amount    int64
	Currency  string
	KeyID     string
	PaymentID snowflake.ID
}

type VerifyPaymentRequest struct {
	OrderID   string
	PaymentID string
	Signature string
}

// HistoryPage is a slice of a user's payments, newest first.
type HistoryPage struct {
	Items  []Payment
	Limit  int
	Offset int
}

// PublicConfig is what the browser may learn about the checkout setup.
type PublicConfig struct {
	KeyID         string
	Currency      string
	DefaultAmount int64
}
