package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/sitecraft/internal/clock"
	"github.com/smallbiznis/sitecraft/internal/config"
	entitlementdomain "github.com/smallbiznis/sitecraft/internal/entitlement/domain"
	paymentdomain "github.com/smallbiznis/sitecraft/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Checkout *config.CheckoutConfigHolder
	Store    paymentdomain.Store
	Cache    entitlementdomain.Cache `optional:"true"`
}

// Service resolves entitlements from completed payments inside the validity
// window.
type Service struct {
	log      *zap.Logger
	clock    clock.Clock
	checkout *config.CheckoutConfigHolder
	store    paymentdomain.Store
	cache    entitlementdomain.Cache
}

func NewService(p Params) *Service {
	return &Service{
		log:      p.Log.Named("entitlement.service"),
		clock:    p.Clock,
		checkout: p.Checkout,
		store:    p.Store,
		cache:    p.Cache,
	}
}

func (s *Service) HasActiveEntitlement(ctx context.Context, userID string) (bool, error) {
	entitlement, err := s.GetEntitlementDetail(ctx, userID)
	if err != nil {
		return false, err
	}
	return entitlement.Active, nil
}

func (s *Service) GetEntitlementDetail(ctx context.Context, userID string) (*entitlementdomain.Entitlement, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, paymentdomain.ErrInvalidUserID
	}
	now := s.clock.Now()
	window := s.checkout.Get().ValidityWindow

	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, userID); ok && cached.Active && cached.Payment != nil {
			// The window may have shrunk since the entry was written.
			expiresAt := cached.Payment.CreatedAt.Add(window)
			if now.Before(expiresAt) {
				cached.ExpiresAt = &expiresAt
				return cached, nil
			}
			s.cache.Invalidate(ctx, userID)
		}
	}

	payment, err := s.store.GetActiveForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return &entitlementdomain.Entitlement{UserID: userID}, nil
	}

	expiresAt := payment.CreatedAt.Add(window)
	entitlement := entitlementdomain.Entitlement{
		UserID:    userID,
		Active:    true,
		Payment:   payment,
		ExpiresAt: &expiresAt,
	}
	if ttl := expiresAt.Sub(now); ttl > 0 && s.cache != nil {
		s.cache.Set(ctx, userID, entitlement, ttl)
	}
	return &entitlement, nil
}

// PaymentTransitioned drops the cached answer for the payment's owner.
func (s *Service) PaymentTransitioned(ctx context.Context, payment paymentdomain.Payment) {
	if s.cache == nil {
		return
	}
	s.cache.Invalidate(ctx, payment.UserID)
	s.log.Debug("entitlement cache invalidated", zap.String("user_id", payment.UserID))
}
