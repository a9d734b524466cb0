package migration

import (
	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/smallbiznis/coursepay/internal/config"
	"github.com/smallbiznis/coursepay/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, catalog *config.CatalogHolder, clk clock.Clock, log *zap.Logger) error {
		if err := Run(conn, cfg.DBType); err != nil {
			return err
		}
		inserted, err := seed.EnsurePromoCodes(conn, catalog.Get().PromoCodes, clk.Now())
		if err != nil {
			return err
		}
		if inserted > 0 {
			log.Info("seeded promo codes", zap.Int("count", inserted))
		}
		return nil
	}),
)
