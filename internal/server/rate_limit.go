package server

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/sitecraft/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/sitecraft/internal/payment/domain"
	"go.uber.org/zap"
)

type rateLimitKey struct {
	UserID string `json:"userId"`
}

// CheckoutRateLimit takes one token per request, keyed by the caller's user
// id when the body carries one and by client IP otherwise.
func (s *Server) CheckoutRateLimit(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.checkoutLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key, err := readRateLimitKey(c)
		if err != nil {
			logger.FromContext(ctx).Warn("rate limit read body failed", zap.Error(err))
			AbortWithError(c, invalidRequestError())
			return
		}

		result, err := s.checkoutLimiter.Allow(ctx, endpoint, key)
		if err != nil || result.Allowed {
			c.Next()
			return
		}

		logger.FromContext(ctx).Warn("checkout rate limit exceeded", zap.String("endpoint", endpoint))
		if s.obsMetrics != nil {
			s.obsMetrics.RecordRateLimitDenied(ctx, endpoint)
		}
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(result.RetryAfter.Seconds())))
		AbortWithError(c, paymentdomain.ErrRateLimited)
	}
}

func readRateLimitKey(c *gin.Context) (string, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", err
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

	var payload rateLimitKey
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		if userID := strings.TrimSpace(payload.UserID); userID != "" {
			return "user:" + userID, nil
		}
	}
	return "ip:" + c.ClientIP(), nil
}

func retryAfterSeconds(seconds float64) int {
	if seconds < 1 {
		return 1
	}
	return int(math.Ceil(seconds))
}
