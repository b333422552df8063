package domain

import (
	"context"
	"time"

	paymentdomain "github.com/smallbiznis/sitecraft/internal/payment/domain"
)

// Entitlement is a user's current right to the paid feature. Payment and
// ExpiresAt are set only when Active.
type Entitlement struct {
	UserID    string                 `json:"user_id"`
	Active    bool                   `json:"active"`
	Payment   *paymentdomain.Payment `json:"payment,omitempty"`
	ExpiresAt *time.Time             `json:"expires_at,omitempty"`
}

type Service interface {
	HasActiveEntitlement(ctx context.Context, userID string) (bool, error)
	GetEntitlementDetail(ctx context.Context, userID string) (*Entitlement, error)
}

// Cache holds positive answers only. A miss always falls through to storage.
type Cache interface {
	Get(ctx context.Context, userID string) (*Entitlement, bool)
	Set(ctx context.Context, userID string, entitlement Entitlement, ttl time.Duration)
	Invalidate(ctx context.Context, userID string)
}
