package promo

import (
	"github.com/smallbiznis/coursepay/internal/promo/domain"
	"github.com/smallbiznis/coursepay/internal/promo/repository"
	"github.com/smallbiznis/coursepay/internal/promo/service"
	"github.com/smallbiznis/coursepay/internal/ratelimit"
	"go.uber.org/fx"
)

var Module = fx.Module("promo",
	fx.Provide(repository.Provide),
	fx.Provide(func(l *ratelimit.PromoLocker) domain.SettlementLocker { return l }),
	fx.Provide(service.NewService),
)
