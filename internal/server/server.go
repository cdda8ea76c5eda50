package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/staybook/internal/booking"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
	"github.com/smallbiznis/staybook/internal/channelmanager"
	"github.com/smallbiznis/staybook/internal/config"
	"github.com/smallbiznis/staybook/internal/events"
	"github.com/smallbiznis/staybook/internal/idempotency"
	"github.com/smallbiznis/staybook/internal/observability"
	obsmiddleware "github.com/smallbiznis/staybook/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/staybook/internal/observability/metrics"
	obstracing "github.com/smallbiznis/staybook/internal/observability/tracing"
	"github.com/smallbiznis/staybook/internal/payment"
	paymentdomain "github.com/smallbiznis/staybook/internal/payment/domain"
	"github.com/smallbiznis/staybook/internal/ratelimit"
	"github.com/smallbiznis/staybook/internal/webhookauth"
	"github.com/smallbiznis/staybook/internal/writerlock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

var Module = fx.Module("http.server",
	events.Module,
	channelmanager.Module,
	idempotency.Module,
	webhookauth.Module,
	booking.Module,
	payment.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Role:            obsCfg.Role,
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.Middleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "role": obsCfg.Role})
	})
	if httpMetrics != nil {
		r.GET("/metrics", gin.WrapH(httpMetrics.Handler()))
	}

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr), zap.String("role", cfg.Role))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	guard         *writerlock.Guard
	bookingConfig *config.BookingConfigHolder
	idempotency   idempotency.Store
	bookingSvc    bookingdomain.Service
	paymentSvc    paymentdomain.Service
	webhookSvc    paymentdomain.WebhookService
	guardrails    *obsmetrics.Guardrails
	limiter       *ratelimit.WebhookLimiter
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	Guard         *writerlock.Guard
	BookingConfig *config.BookingConfigHolder
	Idempotency   idempotency.Store
	BookingSvc    bookingdomain.Service
	PaymentSvc    paymentdomain.Service
	WebhookSvc    paymentdomain.WebhookService
	Guardrails    *obsmetrics.Guardrails     `optional:"true"`
	Limiter       *ratelimit.WebhookLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http"),
		guard:         p.Guard,
		bookingConfig: p.BookingConfig,
		idempotency:   p.Idempotency,
		bookingSvc:    p.BookingSvc,
		paymentSvc:    p.PaymentSvc,
		webhookSvc:    p.WebhookSvc,
		guardrails:    p.Guardrails,
		limiter:       p.Limiter,
	}

	svc.registerBookingRoutes()
	svc.registerPaymentRoutes()
	svc.registerOperatorRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerBookingRoutes() {
	bookings := s.engine.Group("/bookings")

	// Authority first, then the idempotency reservation, then the pipeline.
	bookings.POST("", s.WriterLockRequired(), s.IdempotencyRequired(scopeCreateBooking), s.CreateBooking)
	bookings.GET("/:id", s.GetBooking)
	bookings.POST("/:id/payments", s.InitiatePayment)
}

func (s *Server) registerPaymentRoutes() {
	s.engine.GET("/payments/:providerRef", s.GetPayment)
	s.engine.GET("/payments/:providerRef/deliveries", s.ListPaymentDeliveries)

	webhooks := s.engine.Group("/webhooks", s.WebhookRateLimit())
	webhooks.POST("/payments", s.HandlePaymentWebhook)
	webhooks.POST("/payments/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerOperatorRoutes() {
	s.engine.GET("/writer-lock", s.GetWriterLock)
}
