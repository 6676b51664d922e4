package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	accessservice "github.com/smallbiznis/railzway-checkout/internal/access/service"
	checkoutdomain "github.com/smallbiznis/railzway-checkout/internal/checkout/domain"
	checkoutservice "github.com/smallbiznis/railzway-checkout/internal/checkout/service"
	"github.com/smallbiznis/railzway-checkout/internal/config"
	ledgerdomain "github.com/smallbiznis/railzway-checkout/internal/ledger/domain"
	obslogger "github.com/smallbiznis/railzway-checkout/internal/observability/logger"
	obstracing "github.com/smallbiznis/railzway-checkout/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(
		func(s *checkoutservice.Service) CheckoutCreator { return s },
		func(s *accessservice.InviteService) InviteIssuer { return s },
	),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, in checkoutdomain.CreateCheckoutInput) (*checkoutdomain.CreateCheckoutOutput, error)
}

type InviteIssuer interface {
	Issue(ctx context.Context, req accessservice.IssueInviteRequest) (string, error)
}

func NewEngine(log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log.Named("http")))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
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
	engine   *gin.Engine
	cfg      config.Config
	log      *zap.Logger
	checkout CheckoutCreator
	ledger   ledgerdomain.Service
	invites  InviteIssuer
}

type ServerParams struct {
	fx.In

	Gin      *gin.Engine
	Cfg      config.Config
	Log      *zap.Logger
	Checkout CheckoutCreator
	Ledger   ledgerdomain.Service
	Invites  InviteIssuer `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:   p.Gin,
		cfg:      p.Cfg,
		log:      p.Log.Named("http.server"),
		checkout: p.Checkout,
		ledger:   p.Ledger,
		invites:  p.Invites,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1")

	api.POST("/checkouts", s.CreateCheckout)
	api.GET("/payments/:id/ledger", s.GetPaymentLedger)
}

func (s *Server) registerAdminRoutes() {
	if s.cfg.AdminAPIToken == "" || s.invites == nil {
		return
	}

	admin := s.engine.Group("/admin", s.requireAdminToken())
	admin.POST("/events/:eventId/invites", s.IssueInvite)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
