package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sitecraft/internal/cache"
	"github.com/smallbiznis/sitecraft/internal/clock"
	"github.com/smallbiznis/sitecraft/internal/config"
	entitlementservice "github.com/smallbiznis/sitecraft/internal/entitlement/service"
	outboxrepo "github.com/smallbiznis/sitecraft/internal/outbox/repository"
	paymentdomain "github.com/smallbiznis/sitecraft/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/sitecraft/internal/payment/repository"
	paymentservice "github.com/smallbiznis/sitecraft/internal/payment/service"
	"github.com/smallbiznis/sitecraft/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	clock    *clock.FakeClock
	checkout *config.CheckoutConfigHolder
	store    *paymentservice.Store
	svc      *entitlementservice.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.OpenDB(t)
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	checkout := config.NewStaticCheckoutConfig(config.DefaultCheckoutConfig())

	store := paymentservice.NewStore(paymentservice.StoreParams{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      fake,
		Cfg:        config.Config{Currency: "INR", Kafka: config.KafkaConfig{Topic: "payments.transitions"}},
		Checkout:   checkout,
		Repo:       paymentrepo.Provide(),
		OutboxRepo: outboxrepo.Provide(),
	})
	svc := entitlementservice.NewService(entitlementservice.Params{
		Log:      zap.NewNop(),
		Clock:    fake,
		Checkout: checkout,
		Store:    store,
		Cache:    cache.NewMemoryEntitlementCache(),
	})
	store.AddObserver(svc)
	return &fixture{clock: fake, checkout: checkout, store: store, svc: svc}
}

func (f *fixture) pay(t *testing.T, userID, orderID string, status paymentdomain.Status) *paymentdomain.Payment {
	t.Helper()
	ctx := context.Background()
	payment, err := f.store.Create(ctx, userID, 9900, "INR")
	require.NoError(t, err)
	require.NoError(t, f.store.AttachOrderID(ctx, payment.ID, orderID))
	if status == paymentdomain.StatusPending {
		return payment
	}
	result, err := f.store.UpdateStatus(ctx, orderID, status, "pay_"+orderID, paymentdomain.SourceWebhook)
	require.NoError(t, err)
	require.True(t, result.Applied)
	return result.Payment
}

func TestNoPaymentsMeansNoEntitlement(t *testing.T) {
	f := newFixture(t)

	active, err := f.svc.HasActiveEntitlement(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, active)

	detail, err := f.svc.GetEntitlementDetail(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, detail.Active)
	assert.Nil(t, detail.Payment)
	assert.Nil(t, detail.ExpiresAt)
}

func TestPendingAndFailedPaymentsDoNotEntitle(t *testing.T) {
	f := newFixture(t)
	f.pay(t, "u1", "order_pending", paymentdomain.StatusPending)
	f.pay(t, "u1", "order_failed", paymentdomain.StatusFailed)

	active, err := f.svc.HasActiveEntitlement(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestCompletedPaymentEntitlesUntilWindowCloses(t *testing.T) {
	f := newFixture(t)
	payment := f.pay(t, "u1", "order_1", paymentdomain.StatusCompleted)

	detail, err := f.svc.GetEntitlementDetail(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, detail.Active)
	require.NotNil(t, detail.ExpiresAt)
	assert.Equal(t, "order_1", detail.Payment.OrderID())
	assert.True(t, detail.ExpiresAt.Equal(payment.CreatedAt.Add(24*time.Hour)))

	f.clock.Advance(23 * time.Hour)
	active, err := f.svc.HasActiveEntitlement(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, active)

	// The cached answer carries its own expiry and must not outlive it.
	f.clock.Advance(2 * time.Hour)
	active, err = f.svc.HasActiveEntitlement(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestEntitlementIsPerUser(t *testing.T) {
	f := newFixture(t)
	f.pay(t, "u1", "order_1", paymentdomain.StatusCompleted)

	active, err := f.svc.HasActiveEntitlement(context.Background(), "u2")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestLatestCompletedPaymentWins(t *testing.T) {
	f := newFixture(t)
	f.pay(t, "u1", "order_old", paymentdomain.StatusCompleted)
	f.clock.Advance(time.Hour)
	f.pay(t, "u1", "order_new", paymentdomain.StatusCompleted)

	detail, err := f.svc.GetEntitlementDetail(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, detail.Active)
	assert.Equal(t, "order_new", detail.Payment.OrderID())
}

func TestTransitionInvalidatesCachedAnswer(t *testing.T) {
	f := newFixture(t)
	f.pay(t, "u1", "order_old", paymentdomain.StatusCompleted)

	first, err := f.svc.GetEntitlementDetail(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, "order_old", first.Payment.OrderID())

	f.clock.Advance(time.Hour)
	f.pay(t, "u1", "order_new", paymentdomain.StatusCompleted)

	second, err := f.svc.GetEntitlementDetail(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "order_new", second.Payment.OrderID())
}

func TestBlankUserIDRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.HasActiveEntitlement(context.Background(), "  ")
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidUserID)
}

func TestShrunkWindowOverridesCachedEntitlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pay(t, "u1", "order_1", paymentdomain.StatusCompleted)

	active, err := f.svc.HasActiveEntitlement(ctx, "u1")
	require.NoError(t, err)
	require.True(t, active)

	cfg := config.DefaultCheckoutConfig()
	cfg.ValidityWindow = time.Hour
	f.checkout.Set(cfg)
	f.clock.Advance(2 * time.Hour)

	detail, err := f.svc.GetEntitlementDetail(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, detail.Active)
}
