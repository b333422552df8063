package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/sitecraft/internal/payment/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const EventPaymentTransitioned = "payment.transitioned"

// Message is a pending notification written in the same transaction as the
// state change it describes.
type Message struct {
	ID          snowflake.ID   `json:"id" gorm:"primaryKey"`
	PaymentID   snowflake.ID   `json:"payment_id" gorm:"not null;index"`
	Topic       string         `json:"topic" gorm:"type:text;not null"`
	MessageKey  string         `json:"message_key" gorm:"type:text;not null"`
	Payload     datatypes.JSON `json:"payload" gorm:"not null"`
	Headers     datatypes.JSON `json:"headers" gorm:"not null"`
	Attempts    int            `json:"attempts" gorm:"not null;default:0"`
	LastError   *string        `json:"last_error,omitempty" gorm:"type:text"`
	CreatedAt   time.Time      `json:"created_at" gorm:"not null;index"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
}

func (Message) TableName() string { return "payment_outbox" }

// HeaderMap decodes the stored headers. Malformed headers decode as empty.
func (m Message) HeaderMap() map[string]string {
	headers := map[string]string{}
	if len(m.Headers) == 0 {
		return headers
	}
	_ = json.Unmarshal(m.Headers, &headers)
	return headers
}

// PaymentTransition is the payload published for every applied status change.
type PaymentTransition struct {
	Event      string               `json:"event"`
	PaymentID  string               `json:"payment_id"`
	UserID     string               `json:"user_id"`
	OrderID    string               `json:"razorpay_order_id"`
	ProviderID string               `json:"razorpay_payment_id,omitempty"`
	From       paymentdomain.Status `json:"from"`
	To         paymentdomain.Status `json:"to"`
	Source     string               `json:"source"`
	Amount     int64                `json:"amount"`
	Currency   string               `json:"currency"`
	OccurredAt time.Time            `json:"occurred_at"`
}

// NewTransitionMessage builds the outbox row for an applied transition,
// keyed by user so one user's events stay ordered on a partition.
func NewTransitionMessage(
	id snowflake.ID,
	topic string,
	payment paymentdomain.Payment,
	from paymentdomain.Status,
	source string,
	headers map[string]string,
	at time.Time,
) (*Message, error) {
	payload, err := json.Marshal(PaymentTransition{
		Event:      EventPaymentTransitioned,
		PaymentID:  payment.ID.String(),
		UserID:     payment.UserID,
		OrderID:    payment.OrderID(),
		ProviderID: payment.PaymentID(),
		From:       from,
		To:         payment.Status,
		Source:     source,
		Amount:     payment.Amount,
		Currency:   payment.Currency,
		OccurredAt: at,
	})
	if err != nil {
		return nil, err
	}
	if headers == nil {
		headers = map[string]string{}
	}
	encodedHeaders, err := json.Marshal(headers)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:         id,
		PaymentID:  payment.ID,
		Topic:      topic,
		MessageKey: payment.UserID,
		Payload:    datatypes.JSON(payload),
		Headers:    datatypes.JSON(encodedHeaders),
		CreatedAt:  at,
	}, nil
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, msg *Message) error
	LockPending(ctx context.Context, db *gorm.DB, limit, maxAttempts int) ([]Message, error)
	MarkPublished(ctx context.Context, db *gorm.DB, ids []snowflake.ID, at time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, ids []snowflake.ID, reason string, countAttempt bool) error
	CountPending(ctx context.Context, db *gorm.DB) (int64, error)
}

// Publisher delivers a batch to the message bus. A batch either fully
// succeeds or is retried as a whole.
type Publisher interface {
	Publish(ctx context.Context, msgs []Message) error
	Close() error
}
