package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	accessdomain "github.com/smallbiznis/coursepay/internal/access/domain"
	"github.com/smallbiznis/coursepay/internal/access/session"
	"github.com/smallbiznis/coursepay/internal/config"
	"github.com/smallbiznis/coursepay/internal/observability"
	obslogger "github.com/smallbiznis/coursepay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/coursepay/internal/observability/metrics"
	obstracing "github.com/smallbiznis/coursepay/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/coursepay/internal/order/domain"
	paymentdomain "github.com/smallbiznis/coursepay/internal/payment/domain"
	"github.com/smallbiznis/coursepay/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)

type EngineParams struct {
	fx.In

	ObsCfg      observability.Config
	Log         *zap.Logger
	HTTPMetrics *obsmetrics.HTTPMetrics `optional:"true"`
}

func NewEngine(p EngineParams) *gin.Engine {
	if !p.ObsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Log:             p.Log.Named("http"),
		Debug:           p.ObsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if p.HTTPMetrics != nil {
		r.Use(obsmetrics.GinMiddleware(p.HTTPMetrics))
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	orders     orderdomain.Service
	access     accessdomain.Service
	reconciler paymentdomain.Reconciler
	sessions   *session.Manager
	limiter    *ratelimit.Limiter
	metrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Orders     orderdomain.Service
	Access     accessdomain.Service
	Reconciler paymentdomain.Reconciler
	Sessions   *session.Manager
	Limiter    *ratelimit.Limiter  `optional:"true"`
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		orders:     p.Orders,
		access:     p.Access,
		reconciler: p.Reconciler,
		sessions:   p.Sessions,
		limiter:    p.Limiter,
		metrics:    p.Metrics,
	}

	s.registerAPIRoutes()
	s.registerPaymentRoutes()

	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.SessionContext())

	api.POST("/orders", s.RateLimit("orders"), s.CreateOrder)
	api.POST("/promo/validate", s.RateLimit("promo"), s.ValidatePromo)

	auth := api.Group("/auth")
	{
		auth.POST("/magic-link", s.RateLimit("auth"), s.ConsumeMagicLink)
		auth.POST("/login", s.RateLimit("auth"), s.Login)
		auth.POST("/logout", s.Logout)
		auth.GET("/me", s.AuthRequired(), s.Me)
	}
}

func (s *Server) registerPaymentRoutes() {
	payments := s.engine.Group("/payments")
	payments.GET("/result", s.HandlePaymentResult)
	payments.POST("/result", s.HandlePaymentResult)
}

func RunHTTP(lc fx.Lifecycle, s *Server, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
