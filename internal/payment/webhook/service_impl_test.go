package webhook_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sitecraft/internal/clock"
	"github.com/smallbiznis/sitecraft/internal/config"
	outboxrepo "github.com/smallbiznis/sitecraft/internal/outbox/repository"
	"github.com/smallbiznis/sitecraft/internal/payment/adapters"
	"github.com/smallbiznis/sitecraft/internal/payment/adapters/razorpay"
	paymentdomain "github.com/smallbiznis/sitecraft/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/sitecraft/internal/payment/repository"
	paymentservice "github.com/smallbiznis/sitecraft/internal/payment/service"
	"github.com/smallbiznis/sitecraft/internal/payment/webhook"
	"github.com/smallbiznis/sitecraft/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const webhookSecret = "whsec_test"

type fixture struct {
	db    *gorm.DB
	store *paymentservice.Store
	svc   paymentdomain.WebhookService
}

func newFixture(t *testing.T, attempts uint) *fixture {
	t.Helper()

	db := testutil.OpenDB(t)
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	checkoutCfg := config.DefaultCheckoutConfig()
	checkoutCfg.WebhookLookupAttempts = attempts
	checkoutCfg.WebhookLookupInitialInterval = 5 * time.Millisecond
	checkoutCfg.WebhookLookupMaxElapsed = time.Second
	checkout := config.NewStaticCheckoutConfig(checkoutCfg)

	cfg := config.Config{
		Currency: "INR",
		Razorpay: config.RazorpayConfig{KeyID: "rzp_key", KeySecret: "key_secret", WebhookSecret: webhookSecret},
		Kafka:    config.KafkaConfig{Topic: "payments.transitions"},
	}
	sysClock := clock.New()
	repo := paymentrepo.Provide()

	store := paymentservice.NewStore(paymentservice.StoreParams{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      sysClock,
		Cfg:        cfg,
		Checkout:   checkout,
		Repo:       repo,
		OutboxRepo: outboxrepo.Provide(),
	})
	svc := webhook.NewService(webhook.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    sysClock,
		Cfg:      cfg,
		Checkout: checkout,
		Adapters: adapters.NewRegistry(razorpay.NewFactory()),
		Repo:     repo,
		Store:    store,
	})
	return &fixture{db: db, store: store, svc: svc}
}

func (f *fixture) pendingPayment(t *testing.T, userID, orderID string) *paymentdomain.Payment {
	t.Helper()
	payment, err := f.store.Create(context.Background(), userID, 9900, "INR")
	require.NoError(t, err)
	if orderID != "" {
		require.NoError(t, f.store.AttachOrderID(context.Background(), payment.ID, orderID))
	}
	return payment
}

func (f *fixture) status(t *testing.T, orderID string) paymentdomain.Status {
	t.Helper()
	payment, err := f.store.GetByOrderID(context.Background(), orderID)
	require.NoError(t, err)
	return payment.Status
}

func signedHeaders(body []byte, eventID string) http.Header {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	_, _ = mac.Write(body)
	headers := http.Header{}
	headers.Set("X-Razorpay-Signature", hex.EncodeToString(mac.Sum(nil)))
	if eventID != "" {
		headers.Set("X-Razorpay-Event-Id", eventID)
	}
	return headers
}

func capturedBody(orderID, paymentID, receipt string) []byte {
	return []byte(fmt.Sprintf(`{"entity":"event","event":"payment.captured","payload":{"payment":{"entity":{
		"id":%q,"order_id":%q,"amount":9900,"currency":"INR","status":"captured",
		"notes":{"payment_id":%q}}}}}`, paymentID, orderID, receipt))
}

func TestCapturedWebhookCompletesPendingPayment(t *testing.T) {
	f := newFixture(t, 3)
	f.pendingPayment(t, "u1", "order_B")

	body := capturedBody("order_B", "pay_B", "")
	result, err := f.svc.IngestWebhook(context.Background(), "razorpay", body, signedHeaders(body, "evt_B"))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeApplied, result.Outcome)
	assert.Equal(t, "payment.captured", result.Event)

	payment, err := f.store.GetByOrderID(context.Background(), "order_B")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusCompleted, payment.Status)
	assert.Equal(t, "pay_B", payment.PaymentID())

	var processed int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM payment_events WHERE processed_at IS NOT NULL`).Scan(&processed).Error)
	assert.Equal(t, int64(1), processed)
}

func TestTamperedWebhookIsRejectedWithoutSideEffects(t *testing.T) {
	f := newFixture(t, 3)
	f.pendingPayment(t, "u1", "order_C")

	body := capturedBody("order_C", "pay_C", "")
	headers := signedHeaders(body, "evt_C")
	tampered := append([]byte(nil), body...)
	tampered[len(tampered)-5] ^= 0x01

	_, err := f.svc.IngestWebhook(context.Background(), "razorpay", tampered, headers)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)

	_, err = f.svc.IngestWebhook(context.Background(), "razorpay", body, http.Header{})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)

	assert.Equal(t, paymentdomain.StatusPending, f.status(t, "order_C"))
	var receipts int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM payment_events`).Scan(&receipts).Error)
	assert.Equal(t, int64(0), receipts)
}

func TestDuplicateDeliveryIsAcknowledged(t *testing.T) {
	f := newFixture(t, 3)
	f.pendingPayment(t, "u1", "order_D")

	body := capturedBody("order_D", "pay_D", "")
	first, err := f.svc.IngestWebhook(context.Background(), "razorpay", body, signedHeaders(body, "evt_D"))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeApplied, first.Outcome)

	second, err := f.svc.IngestWebhook(context.Background(), "razorpay", body, signedHeaders(body, "evt_D"))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeDuplicate, second.Outcome)

	third, err := f.svc.IngestWebhook(context.Background(), "razorpay", body, signedHeaders(body, "evt_D_redelivered_as_new"))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeNoop, third.Outcome)

	assert.Equal(t, paymentdomain.StatusCompleted, f.status(t, "order_D"))
	var outbox int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM payment_outbox`).Scan(&outbox).Error)
	assert.Equal(t, int64(1), outbox)
}

func TestFailedEventDoesNotOverrideCompleted(t *testing.T) {
	f := newFixture(t, 3)
	f.pendingPayment(t, "u1", "order_F")

	captured := capturedBody("order_F", "pay_F", "")
	_, err := f.svc.IngestWebhook(context.Background(), "razorpay", captured, signedHeaders(captured, "evt_F1"))
	require.NoError(t, err)

	failed := []byte(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_F2","order_id":"order_F","amount":9900,"currency":"INR"}}}}`)
	result, err := f.svc.IngestWebhook(context.Background(), "razorpay", failed, signedHeaders(failed, "evt_F2"))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeNoop, result.Outcome)
	assert.Equal(t, paymentdomain.StatusCompleted, f.status(t, "order_F"))
}

func TestPaymentFailedMarksPendingFailed(t *testing.T) {
	f := newFixture(t, 3)
	f.pendingPayment(t, "u1", "order_X")

	failed := []byte(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_X","order_id":"order_X","error_code":"BAD_REQUEST_ERROR"}}}}`)
	result, err := f.svc.IngestWebhook(context.Background(), "razorpay", failed, signedHeaders(failed, ""))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeApplied, result.Outcome)
	assert.Equal(t, paymentdomain.StatusFailed, f.status(t, "order_X"))
}

func TestUnrecognizedEventIsIgnored(t *testing.T) {
	f := newFixture(t, 3)

	body := []byte(`{"event":"refund.processed","payload":{}}`)
	result, err := f.svc.IngestWebhook(context.Background(), "razorpay", body, signedHeaders(body, "evt_U"))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeIgnored, result.Outcome)
	assert.Equal(t, "refund.processed", result.Event)
}

func TestUnknownProvider(t *testing.T) {
	f := newFixture(t, 3)
	_, err := f.svc.IngestWebhook(context.Background(), "stripe", []byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, paymentdomain.ErrProviderNotFound)
	assert.Equal(t, []string{"razorpay"}, f.svc.Providers())
}

func TestWebhookWaitsForOrderBinding(t *testing.T) {
	f := newFixture(t, 20)
	payment := f.pendingPayment(t, "u1", "")

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = f.store.AttachOrderID(context.Background(), payment.ID, "order_late")
	}()

	body := capturedBody("order_late", "pay_late", "")
	result, err := f.svc.IngestWebhook(context.Background(), "razorpay", body, signedHeaders(body, "evt_late"))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeApplied, result.Outcome)
	assert.Equal(t, paymentdomain.StatusCompleted, f.status(t, "order_late"))
}

func TestWebhookFallsBackToReceipt(t *testing.T) {
	f := newFixture(t, 2)
	payment := f.pendingPayment(t, "u1", "")

	body := capturedBody("order_receipt", "pay_receipt", payment.ID.String())
	result, err := f.svc.IngestWebhook(context.Background(), "razorpay", body, signedHeaders(body, "evt_receipt"))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeApplied, result.Outcome)
	assert.Equal(t, paymentdomain.StatusCompleted, f.status(t, "order_receipt"))
}

func TestWebhookForUnknownOrderIsInconsistent(t *testing.T) {
	f := newFixture(t, 2)

	body := capturedBody("order_ghost", "pay_ghost", "")
	_, err := f.svc.IngestWebhook(context.Background(), "razorpay", body, signedHeaders(body, "evt_ghost"))
	assert.ErrorIs(t, err, paymentdomain.ErrInconsistent)

	var unprocessed int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM payment_events WHERE processed_at IS NULL`).Scan(&unprocessed).Error)
	assert.Equal(t, int64(1), unprocessed)
}
