package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/sitecraft/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockBucket struct {
	mock.Mock
}

func (m *mockBucket) Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error) {
	args := m.Called(ctx, key, rate, burst)
	result, _ := args.Get(0).(*RateLimitResult)
	return result, args.Error(1)
}

func testLimits() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:          true,
		CreateOrderRate:  0.2,
		CreateOrderBurst: 5,
		VerifyRate:       0.5,
		VerifyBurst:      10,
	}
}

func TestCheckoutLimiterUsesEndpointLimits(t *testing.T) {
	bucket := &mockBucket{}
	bucket.On("Allow", mock.Anything, "checkout:create_order:user-1", 0.2, 5).
		Return(&RateLimitResult{Allowed: false, RetryAfter: 3 * time.Second}, nil).Once()
	bucket.On("Allow", mock.Anything, "checkout:verify:user-1", 0.5, 10).
		Return(&RateLimitResult{Allowed: true}, nil).Once()

	limiter := newCheckoutLimiter(bucket, zap.NewNop(), testLimits())

	res, err := limiter.Allow(context.Background(), EndpointCreateOrder, "user-1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 3*time.Second, res.RetryAfter)

	res, err = limiter.Allow(context.Background(), EndpointVerify, " user-1 ")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	bucket.AssertExpectations(t)
}

func TestCheckoutLimiterFailsOpen(t *testing.T) {
	bucket := &mockBucket{}
	bucket.On("Allow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("redis down"))

	limiter := newCheckoutLimiter(bucket, zap.NewNop(), testLimits())
	res, err := limiter.Allow(context.Background(), EndpointCreateOrder, "user-1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestNilCheckoutLimiterAllows(t *testing.T) {
	var limiter *CheckoutLimiter
	res, err := limiter.Allow(context.Background(), EndpointCreateOrder, "user-1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.False(t, limiter.Enabled())
}

func TestNewCheckoutLimiterDisabledWithoutRedis(t *testing.T) {
	limiter, err := NewCheckoutLimiter(config.Config{RateLimit: testLimits()}, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, limiter)
}

func TestDefaultBucketTTL(t *testing.T) {
	assert.Equal(t, 20*time.Second, defaultBucketTTL(0.5, 5))
	assert.Equal(t, time.Second, defaultBucketTTL(100, 1))
	assert.Equal(t, time.Second, defaultBucketTTL(0, 0))
}
