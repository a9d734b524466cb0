package order

import (
	"github.com/smallbiznis/coursepay/internal/config"
	"github.com/smallbiznis/coursepay/internal/order/domain"
	"github.com/smallbiznis/coursepay/internal/order/repository"
	"github.com/smallbiznis/coursepay/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order",
	fx.Provide(repository.Provide),
	fx.Provide(func(h *config.CatalogHolder) domain.Catalog { return h }),
	fx.Provide(service.NewService),
)
