package razorpay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	paymentdomain "github.com/smallbiznis/sitecraft/internal/payment/domain"
)

type webhookEvent struct {
	Entity    string       `json:"entity"`
	Event     string       `json:"event"`
	Contains  []string     `json:"contains"`
	Payload   eventPayload `json:"payload"`
	CreatedAt int64        `json:"created_at"`
}

type eventPayload struct {
	Payment *struct {
		Entity paymentEntity `json:"entity"`
	} `json:"payment"`
	Order *struct {
		Entity orderEntity `json:"entity"`
	} `json:"order"`
}

type paymentEntity struct {
	ID               string          `json:"id"`
	OrderID          string          `json:"order_id"`
	Amount           int64           `json:"amount"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	Notes            json.RawMessage `json:"notes"`
	ErrorCode        *string         `json:"error_code"`
	ErrorDescription *string         `json:"error_description"`
}

type orderEntity struct {
	ID       string          `json:"id"`
	Amount   int64           `json:"amount"`
	Currency string          `json:"currency"`
	Receipt  string          `json:"receipt"`
	Status   string          `json:"status"`
	Notes    json.RawMessage `json:"notes"`
}

// Parse decodes a verified delivery. Unknown event names come back as
// Unrecognized rather than an error.
func (a *Adapter) Parse(ctx context.Context, payload []byte, headers http.Header) (*paymentdomain.Envelope, error) {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	name := strings.TrimSpace(event.Event)
	if name == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	parsed, err := parseEvent(name, event.Payload)
	if err != nil {
		return nil, err
	}
	return &paymentdomain.Envelope{
		EventID: eventID(payload, headers),
		Event:   parsed,
		Raw:     payload,
	}, nil
}

func parseEvent(name string, payload eventPayload) (paymentdomain.WebhookEvent, error) {
	switch name {
	case paymentdomain.EventPaymentCaptured:
		ref, err := paymentRef(payload)
		if err != nil {
			return nil, err
		}
		return paymentdomain.PaymentCaptured{PaymentRef: ref}, nil
	case paymentdomain.EventPaymentFailed:
		ref, err := paymentRef(payload)
		if err != nil {
			return nil, err
		}
		failed := paymentdomain.PaymentFailed{PaymentRef: ref}
		if entity := payload.Payment.Entity; entity.ErrorCode != nil {
			failed.ErrorCode = *entity.ErrorCode
		}
		if entity := payload.Payment.Entity; entity.ErrorDescription != nil {
			failed.ErrorDescription = *entity.ErrorDescription
		}
		return failed, nil
	case paymentdomain.EventOrderPaid:
		if payload.Order == nil || strings.TrimSpace(payload.Order.Entity.ID) == "" {
			return nil, fmt.Errorf("%w: order entity missing", paymentdomain.ErrInvalidPayload)
		}
		order := payload.Order.Entity
		ref := paymentdomain.PaymentRef{
			OrderID:  strings.TrimSpace(order.ID),
			Receipt:  strings.TrimSpace(order.Receipt),
			Amount:   order.Amount,
			Currency: strings.ToUpper(strings.TrimSpace(order.Currency)),
		}
		if ref.Receipt == "" {
			ref.Receipt = noteValue(order.Notes, "payment_id")
		}
		if payload.Payment != nil {
			ref.PaymentID = strings.TrimSpace(payload.Payment.Entity.ID)
		}
		return paymentdomain.OrderPaid{PaymentRef: ref}, nil
	default:
		return paymentdomain.Unrecognized{Event: name}, nil
	}
}

func paymentRef(payload eventPayload) (paymentdomain.PaymentRef, error) {
	if payload.Payment == nil {
		return paymentdomain.PaymentRef{}, fmt.Errorf("%w: payment entity missing", paymentdomain.ErrInvalidPayload)
	}
	entity := payload.Payment.Entity
	ref := paymentdomain.PaymentRef{
		OrderID:   strings.TrimSpace(entity.OrderID),
		PaymentID: strings.TrimSpace(entity.ID),
		Amount:    entity.Amount,
		Currency:  strings.ToUpper(strings.TrimSpace(entity.Currency)),
		Receipt:   noteValue(entity.Notes, "payment_id"),
	}
	if ref.OrderID == "" {
		return paymentdomain.PaymentRef{}, fmt.Errorf("%w: order_id missing", paymentdomain.ErrInvalidPayload)
	}
	if payload.Order != nil && strings.TrimSpace(payload.Order.Entity.Receipt) != "" {
		ref.Receipt = strings.TrimSpace(payload.Order.Entity.Receipt)
	}
	return ref, nil
}

// noteValue reads one key from a notes object. The processor sends an empty
// array instead of an object when no notes were set.
func noteValue(raw json.RawMessage, key string) string {
	if len(raw) == 0 {
		return ""
	}
	var notes map[string]string
	if err := json.Unmarshal(raw, &notes); err != nil {
		return ""
	}
	return strings.TrimSpace(notes[key])
}
