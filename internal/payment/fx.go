package payment

import (
	"github.com/smallbiznis/sitecraft/internal/payment/adapters"
	"github.com/smallbiznis/sitecraft/internal/payment/adapters/razorpay"
	paymentdomain "github.com/smallbiznis/sitecraft/internal/payment/domain"
	"github.com/smallbiznis/sitecraft/internal/payment/repository"
	paymentservice "github.com/smallbiznis/sitecraft/internal/payment/service"
	"github.com/smallbiznis/sitecraft/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(razorpay.NewFactory())
	}),
	fx.Provide(razorpay.NewOrdersClient),
	fx.Provide(
		paymentservice.NewStore,
		func(s *paymentservice.Store) paymentdomain.Store { return s },
	),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
