package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/sitecraft/internal/cache"
	"github.com/smallbiznis/sitecraft/internal/config"
	"github.com/smallbiznis/sitecraft/internal/entitlement"
	entitlementdomain "github.com/smallbiznis/sitecraft/internal/entitlement/domain"
	"github.com/smallbiznis/sitecraft/internal/observability"
	obsmiddleware "github.com/smallbiznis/sitecraft/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/sitecraft/internal/observability/metrics"
	obstracing "github.com/smallbiznis/sitecraft/internal/observability/tracing"
	"github.com/smallbiznis/sitecraft/internal/outbox"
	"github.com/smallbiznis/sitecraft/internal/payment"
	paymentdomain "github.com/smallbiznis/sitecraft/internal/payment/domain"
	"github.com/smallbiznis/sitecraft/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	cache.Module,
	ratelimit.Module,
	payment.Module,
	entitlement.Module,
	outbox.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
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

type Server struct {
	engine          *gin.Engine
	paymentSvc      paymentdomain.Service
	webhookSvc      paymentdomain.WebhookService
	entitlementSvc  entitlementdomain.Service
	checkoutLimiter *ratelimit.CheckoutLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	PaymentSvc      paymentdomain.Service
	WebhookSvc      paymentdomain.WebhookService
	EntitlementSvc  entitlementdomain.Service
	CheckoutLimiter *ratelimit.CheckoutLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics         `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		paymentSvc:      p.PaymentSvc,
		webhookSvc:      p.WebhookSvc,
		entitlementSvc:  p.EntitlementSvc,
		checkoutLimiter: p.CheckoutLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerPaymentRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPaymentRoutes() {
	payment := s.engine.Group("/payment")

	payment.GET("/config", s.GetCheckoutConfig)
	payment.POST("/create-order", s.CheckoutRateLimit(ratelimit.EndpointCreateOrder), s.CreateOrder)
	payment.GET("/status/:orderId", s.GetPaymentStatus)
	payment.POST("/verify", s.CheckoutRateLimit(ratelimit.EndpointVerify), s.VerifyPayment)
	payment.POST("/cancel", s.CancelOrder)

	user := payment.Group("/user/:userId")
	{
		user.GET("/active", s.GetActivePayment)
		user.GET("/history", s.ListPaymentHistory)
	}
}

func (s *Server) registerWebhookRoutes() {
	webhook := s.engine.Group("/webhook")

	webhook.GET("/status", s.WebhookStatus)
	webhook.POST("/:provider", s.HandleWebhook)
}

