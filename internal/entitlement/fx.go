package entitlement

import (
	entitlementdomain "github.com/smallbiznis/sitecraft/internal/entitlement/domain"
	"github.com/smallbiznis/sitecraft/internal/entitlement/service"
	paymentservice "github.com/smallbiznis/sitecraft/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("entitlement",
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) entitlementdomain.Service { return s }),
	fx.Invoke(func(store *paymentservice.Store, s *service.Service) {
		store.AddObserver(s)
	}),
)
