package payment

import (
	"github.com/smallbiznis/staybook/internal/payment/adapters"
	"github.com/smallbiznis/staybook/internal/payment/adapters/generic"
	"github.com/smallbiznis/staybook/internal/payment/adapters/midtrans"
	"github.com/smallbiznis/staybook/internal/payment/adapters/xendit"
	"github.com/smallbiznis/staybook/internal/payment/repository"
	paymentservice "github.com/smallbiznis/staybook/internal/payment/service"
	"github.com/smallbiznis/staybook/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			generic.NewParser(),
			midtrans.NewParser(),
			xendit.NewParser(),
		)
	}),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
