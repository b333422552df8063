package razorpay

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	paymentdomain "github.com/smallbiznis/sitecraft/internal/payment/domain"
)

const testSecret = "whsec_test"

func TestVerifyWebhookSignature(t *testing.T) {
	payload := []byte(`{"event":"payment.captured","payload":{}}`)
	header := sign(payload, testSecret)

	if !VerifyWebhookSignature(payload, header, testSecret) {
		t.Fatalf("expected valid signature")
	}
	if VerifyWebhookSignature(payload, header, "other") {
		t.Fatalf("expected wrong secret to fail")
	}
	if VerifyWebhookSignature(payload, "", testSecret) {
		t.Fatalf("expected empty header to fail")
	}
	if VerifyWebhookSignature(payload, header, "") {
		t.Fatalf("expected empty secret to fail")
	}
}

func TestVerifyWebhookSignatureRejectsAnyBitFlip(t *testing.T) {
	payload := []byte(`{"event":"order.paid","payload":{"order":{"entity":{"id":"order_1"}}}}`)
	header := sign(payload, testSecret)

	for i := range payload {
		for bit := 0; bit < 8; bit++ {
			flipped := append([]byte(nil), payload...)
			flipped[i] ^= 1 << bit
			if VerifyWebhookSignature(flipped, header, testSecret) {
				t.Fatalf("byte %d bit %d: flipped payload verified", i, bit)
			}
		}
	}
}

func TestVerifyPaymentCallback(t *testing.T) {
	signature := sign([]byte("order_1|pay_1"), "key_secret")

	if !VerifyPaymentCallback("order_1", "pay_1", signature, "key_secret") {
		t.Fatalf("expected callback signature to verify")
	}
	if VerifyPaymentCallback("order_1", "pay_2", signature, "key_secret") {
		t.Fatalf("expected mismatched payment id to fail")
	}
	if VerifyPaymentCallback("order_1", "pay_1", signature, testSecret) {
		t.Fatalf("expected webhook secret not to verify callbacks")
	}
	if VerifyPaymentCallback("", "pay_1", signature, "key_secret") {
		t.Fatalf("expected missing order id to fail")
	}
}

func TestAdapterVerifyUsesHeader(t *testing.T) {
	adapter, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{
		Provider: Provider,
		Config:   map[string]any{"webhook_secret": testSecret},
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	payload := []byte(`{"event":"payment.captured"}`)

	headers := http.Header{}
	if err := adapter.Verify(context.Background(), payload, headers); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected missing header to fail, got %v", err)
	}
	headers.Set("x-razorpay-signature", sign(payload, testSecret))
	if err := adapter.Verify(context.Background(), payload, headers); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestFactoryRequiresSecret(t *testing.T) {
	_, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{Provider: Provider})
	if !errors.Is(err, paymentdomain.ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
	_, err = NewFactory().NewAdapter(paymentdomain.AdapterConfig{
		Provider: Provider,
		Config:   map[string]any{"webhook_secret": "  "},
	})
	if !errors.Is(err, paymentdomain.ErrInvalidConfig) {
		t.Fatalf("expected invalid config for blank secret, got %v", err)
	}
}

func TestParseEvents(t *testing.T) {
	adapter := &Adapter{webhookSecret: testSecret}

	tests := []struct {
		name    string
		payload string
		check   func(t *testing.T, event paymentdomain.WebhookEvent)
	}{{
		name: "payment.captured",
		payload: `{"event":"payment.captured","payload":{"payment":{"entity":{
			"id":"pay_1","order_id":"order_1","amount":9900,"currency":"inr",
			"notes":{"payment_id":"1001","user_id":"u1"}}}}}`,
		check: func(t *testing.T, event paymentdomain.WebhookEvent) {
			captured, ok := event.(paymentdomain.PaymentCaptured)
			if !ok {
				t.Fatalf("expected PaymentCaptured, got %T", event)
			}
			if captured.OrderID != "order_1" || captured.PaymentID != "pay_1" {
				t.Fatalf("unexpected ids: %+v", captured.PaymentRef)
			}
			if captured.Amount != 9900 || captured.Currency != "INR" {
				t.Fatalf("unexpected amount: %+v", captured.PaymentRef)
			}
			if captured.Receipt != "1001" {
				t.Fatalf("expected receipt from notes, got %q", captured.Receipt)
			}
		},
	}, {
		name: "payment.failed",
		payload: `{"event":"payment.failed","payload":{"payment":{"entity":{
			"id":"pay_2","order_id":"order_2","amount":9900,"currency":"INR","notes":[],
			"error_code":"BAD_REQUEST_ERROR","error_description":"card declined"}}}}`,
		check: func(t *testing.T, event paymentdomain.WebhookEvent) {
			failed, ok := event.(paymentdomain.PaymentFailed)
			if !ok {
				t.Fatalf("expected PaymentFailed, got %T", event)
			}
			if failed.OrderID != "order_2" || failed.ErrorCode != "BAD_REQUEST_ERROR" {
				t.Fatalf("unexpected event: %+v", failed)
			}
			if failed.Receipt != "" {
				t.Fatalf("expected no receipt, got %q", failed.Receipt)
			}
		},
	}, {
		name: "order.paid",
		payload: `{"event":"order.paid","payload":{
			"payment":{"entity":{"id":"pay_3","order_id":"order_3"}},
			"order":{"entity":{"id":"order_3","amount":9900,"currency":"INR","receipt":"1003"}}}}`,
		check: func(t *testing.T, event paymentdomain.WebhookEvent) {
			paid, ok := event.(paymentdomain.OrderPaid)
			if !ok {
				t.Fatalf("expected OrderPaid, got %T", event)
			}
			if paid.OrderID != "order_3" || paid.Receipt != "1003" || paid.PaymentID != "pay_3" {
				t.Fatalf("unexpected event: %+v", paid.PaymentRef)
			}
		},
	}, {
		name:    "unknown event",
		payload: `{"event":"refund.created","payload":{}}`,
		check: func(t *testing.T, event paymentdomain.WebhookEvent) {
			unknown, ok := event.(paymentdomain.Unrecognized)
			if !ok {
				t.Fatalf("expected Unrecognized, got %T", event)
			}
			if unknown.Name() != "refund.created" {
				t.Fatalf("unexpected name %q", unknown.Name())
			}
		},
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envelope, err := adapter.Parse(context.Background(), []byte(tt.payload), http.Header{})
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if !strings.HasPrefix(envelope.EventID, "sha256:") {
				t.Fatalf("expected digest event id, got %q", envelope.EventID)
			}
			tt.check(t, envelope.Event)
		})
	}
}

func TestParseRejectsMalformedPayloads(t *testing.T) {
	adapter := &Adapter{webhookSecret: testSecret}
	cases := map[string]string{
		"not json":         `{"event":`,
		"no event":         `{"payload":{}}`,
		"captured no body": `{"event":"payment.captured","payload":{}}`,
		"paid no order":    `{"event":"order.paid","payload":{}}`,
	}
	for name, payload := range cases {
		if _, err := adapter.Parse(context.Background(), []byte(payload), http.Header{}); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestParsePrefersDeliveryEventID(t *testing.T) {
	adapter := &Adapter{webhookSecret: testSecret}
	headers := http.Header{}
	headers.Set("x-razorpay-event-id", "evt_42")

	envelope, err := adapter.Parse(context.Background(), []byte(`{"event":"refund.created"}`), headers)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if envelope.EventID != "evt_42" {
		t.Fatalf("expected header event id, got %q", envelope.EventID)
	}
}
