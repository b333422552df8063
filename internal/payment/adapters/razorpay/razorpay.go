package razorpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	paymentdomain "github.com/smallbiznis/sitecraft/internal/payment/domain"
)

const (
	Provider = "razorpay"

	HeaderSignature = "X-Razorpay-Signature"
	HeaderEventID   = "X-Razorpay-Event-Id"

	configWebhookSecret = "webhook_secret"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return Provider
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	secret, ok := readString(cfg.Config, configWebhookSecret)
	if !ok {
		return nil, paymentdomain.ErrInvalidConfig
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	return &Adapter{webhookSecret: secret}, nil
}

type Adapter struct {
	webhookSecret string
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if !VerifyWebhookSignature(payload, headers.Get(HeaderSignature), a.webhookSecret) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

// VerifyWebhookSignature checks the hex HMAC-SHA256 of the exact delivered
// bytes. An empty header or secret never verifies.
func VerifyWebhookSignature(payload []byte, header, secret string) bool {
	header = strings.TrimSpace(header)
	if header == "" || secret == "" {
		return false
	}
	return hmac.Equal([]byte(header), []byte(sign(payload, secret)))
}

// VerifyPaymentCallback checks the signature the checkout widget hands back
// after a successful payment, computed over "order_id|payment_id" with the
// API key secret.
func VerifyPaymentCallback(orderID, paymentID, signature, keySecret string) bool {
	orderID = strings.TrimSpace(orderID)
	paymentID = strings.TrimSpace(paymentID)
	signature = strings.TrimSpace(signature)
	if orderID == "" || paymentID == "" || signature == "" || keySecret == "" {
		return false
	}
	expected := sign([]byte(orderID+"|"+paymentID), keySecret)
	return hmac.Equal([]byte(signature), []byte(expected))
}

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// eventID prefers the processor's delivery id; redeliveries of the same
// event carry the same one. Without it the body digest stands in.
func eventID(payload []byte, headers http.Header) string {
	if id := strings.TrimSpace(headers.Get(HeaderEventID)); id != "" {
		return id
	}
	sum := sha256.Sum256(payload)
	return "sha256:" + hex.EncodeToString(sum[:])
}

func readString(cfg map[string]any, key string) (string, bool) {
	if cfg == nil {
		return "", false
	}
	raw, ok := cfg[key]
	if !ok {
		return "", false
	}
	value, ok := raw.(string)
	return value, ok
}
