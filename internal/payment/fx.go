package payment

import (
	"github.com/smallbiznis/coursepay/internal/payment/repository"
	"github.com/smallbiznis/coursepay/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.webhook",
	fx.Provide(repository.Provide),
	fx.Provide(webhook.NewService),
)
