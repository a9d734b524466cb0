package access

import (
	"github.com/smallbiznis/coursepay/internal/access/repository"
	"github.com/smallbiznis/coursepay/internal/access/service"
	"github.com/smallbiznis/coursepay/internal/access/session"
	"go.uber.org/fx"
)

var Module = fx.Module("access",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	session.Module,
)
