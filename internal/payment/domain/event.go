package domain

// Processor event names the webhook handler acts on.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventOrderPaid       = "order.paid"
)

// WebhookEvent is a parsed processor notification. The concrete types are
// PaymentCaptured, PaymentFailed, OrderPaid and Unrecognized.
type WebhookEvent interface {
	Name() string
	isWebhookEvent()
}

// PaymentRef carries the identifiers every actionable event shares. Receipt
// is our own payment id echoed back by the processor, when present.
type PaymentRef struct {
	OrderID   string
	PaymentID string
	Receipt   string
	Amount    int64
	Currency  string
}

type PaymentCaptured struct {
	PaymentRef
}

func (PaymentCaptured) Name() string { return EventPaymentCaptured }
func (PaymentCaptured) isWebhookEvent() {}

type PaymentFailed struct {
	PaymentRef
	ErrorCode        string
	ErrorDescription string
}

func (PaymentFailed) Name() string { return EventPaymentFailed }
func (PaymentFailed) isWebhookEvent() {}

type OrderPaid struct {
	PaymentRef
}

func (OrderPaid) Name() string { return EventOrderPaid }
func (OrderPaid) isWebhookEvent() {}

// Unrecognized is any event name the handler does not act on.
type Unrecognized struct {
	Event string
}

func (u Unrecognized) Name() string { return u.Event }
func (Unrecognized) isWebhookEvent() {}

// Ref returns the shared identifiers of an actionable event.
func Ref(event WebhookEvent) (PaymentRef, bool) {
	switch e := event.(type) {
	case PaymentCaptured:
		return e.PaymentRef, true
	case PaymentFailed:
		return e.PaymentRef, true
	case OrderPaid:
		return e.PaymentRef, true
	default:
		return PaymentRef{}, false
	}
}

// TargetStatus is the status an event drives a pending payment into.
func TargetStatus(event WebhookEvent) (Status, bool) {
	switch event.(type) {
	case PaymentCaptured, OrderPaid:
		return StatusCompleted, true
	case PaymentFailed:
		return StatusFailed, true
	default:
		return "", false
	}
}

// Envelope is a verified, parsed delivery.
type Envelope struct {
	EventID string
	Event   WebhookEvent
	Raw     []byte
}
