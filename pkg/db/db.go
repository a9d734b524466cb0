package db

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/coursepay/internal/config"
	obslogger "github.com/smallbiznis/coursepay/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprom "gorm.io/plugin/prometheus"
)

var Module = fx.Module("db",
	fx.Provide(Open),
)

type Params struct {
	fx.In

	Lc     fx.Lifecycle
	Config config.Config
	Log    *zap.Logger
}

// Open connects to the configured database, applies pool limits and
// registers the metrics and tracing plugins.
func Open(p Params) (*gorm.DB, error) {
	cfg := FromAppConfig(p.Config)
	dialector, err := cfg.Dialector()
	if err != nil {
		return nil, err
	}

	gormLogger := obslogger.NewGormLogger(p.Log, obslogger.DefaultGormLoggerConfig())

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := configurePool(conn, cfg); err != nil {
		return nil, err
	}
	if err := registerPlugins(conn, cfg); err != nil {
		return nil, err
	}

	log := p.Log.Named("db")
	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := sqlDB.PingContext(ctx); err != nil {
				return fmt.Errorf("ping database: %w", err)
			}
			log.Info("database connected", zap.String("type", cfg.Type), zap.String("name", cfg.Name))
			return nil
		},
		OnStop: func(context.Context) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return conn, nil
}

func configurePool(conn *gorm.DB, cfg Config) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	if cfg.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	}
	if cfg.MaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Second)
	}
	return nil
}

func registerPlugins(conn *gorm.DB, cfg Config) error {
	if cfg.MetricsEnabled {
		// Metrics are collected into the default registry served on /metrics.
		if err := conn.Use(gormprom.New(gormprom.Config{
			DBName:          cfg.Name,
			RefreshInterval: 15,
			StartServer:     false,
		})); err != nil {
			return fmt.Errorf("register gorm prometheus plugin: %w", err)
		}
	}
	if cfg.TracingEnabled {
		if err := conn.Use(otelgorm.NewPlugin()); err != nil {
			return fmt.Errorf("register gorm tracing plugin: %w", err)
		}
	}
	return nil
}
