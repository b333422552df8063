package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/sitecraft/internal/config"
	"go.uber.org/zap"
)

const (
	EndpointCreateOrder = "create_order"
	EndpointVerify      = "verify"

	keyCheckout = "checkout:%s:%s"
)

type allower interface {
	Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error)
}

type bucketLimit struct {
	rate  float64
	burst int
}

// CheckoutLimiter throttles order creation and manual verification per
// caller key. A nil limiter allows everything.
type CheckoutLimiter struct {
	bucket allower
	log    *zap.Logger
	limits map[string]bucketLimit
}

func NewCheckoutLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) (*CheckoutLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled || client == nil {
		return nil, nil
	}
	if limitCfg.CreateOrderRate <= 0 || limitCfg.CreateOrderBurst <= 0 {
		return nil, fmt.Errorf("%w: create order rate limit must be positive", config.ErrMissingRequired)
	}
	if limitCfg.VerifyRate <= 0 || limitCfg.VerifyBurst <= 0 {
		return nil, fmt.Errorf("%w: verify rate limit must be positive", config.ErrMissingRequired)
	}
	return newCheckoutLimiter(NewTokenBucket(client), log, limitCfg), nil
}

func newCheckoutLimiter(bucket allower, log *zap.Logger, cfg config.RateLimitConfig) *CheckoutLimiter {
	return &CheckoutLimiter{
		bucket: bucket,
		log:    log.Named("ratelimit.checkout"),
		limits: map[string]bucketLimit{
			EndpointCreateOrder: {rate: cfg.CreateOrderRate, burst: cfg.CreateOrderBurst},
			EndpointVerify:      {rate: cfg.VerifyRate, burst: cfg.VerifyBurst},
		},
	}
}

func (l *CheckoutLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow takes one token for key on endpoint. Redis failures let the request
// through.
func (l *CheckoutLimiter) Allow(ctx context.Context, endpoint, key string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	limit, ok := l.limits[endpoint]
	if !ok {
		return &RateLimitResult{Allowed: true}, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}

	result, err := l.bucket.Allow(ctx, fmt.Sprintf(keyCheckout, endpoint, key), limit.rate, limit.burst)
	if err != nil {
		l.log.Warn("rate limit check failed, allowing request",
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		return &RateLimitResult{Allowed: true, Limit: limit.burst}, nil
	}
	return result, nil
}
