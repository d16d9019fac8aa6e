package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"github.com/mealgrid/mealgrid/internal/audit"
	auditdomain "github.com/mealgrid/mealgrid/internal/audit/domain"
	"github.com/mealgrid/mealgrid/internal/auth"
	authdomain "github.com/mealgrid/mealgrid/internal/auth/domain"
	"github.com/mealgrid/mealgrid/internal/authorization"
	"github.com/mealgrid/mealgrid/internal/catalog"
	catalogdomain "github.com/mealgrid/mealgrid/internal/catalog/domain"
	"github.com/mealgrid/mealgrid/internal/config"
	"github.com/mealgrid/mealgrid/internal/observability"
	obsmiddleware "github.com/mealgrid/mealgrid/internal/observability/logger"
	obsmetrics "github.com/mealgrid/mealgrid/internal/observability/metrics"
	obstracing "github.com/mealgrid/mealgrid/internal/observability/tracing"
	"github.com/mealgrid/mealgrid/internal/order"
	orderdomain "github.com/mealgrid/mealgrid/internal/order/domain"
	"github.com/mealgrid/mealgrid/internal/scheduler"
	"github.com/mealgrid/mealgrid/internal/settlement"
	settlementdomain "github.com/mealgrid/mealgrid/internal/settlement/domain"
	"github.com/mealgrid/mealgrid/internal/throttle"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	auth.Module,
	catalog.Module,
	order.Module,
	settlement.Module,
	throttle.Module,
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

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
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
	authSvc       authdomain.Service
	authzSvc      authorization.Service
	auditSvc      auditdomain.Service
	catalogSvc    catalogdomain.Service
	orderSvc      orderdomain.Service
	settlementSvc settlementdomain.Service
	limiter       *throttle.Limiter
	scheduler     *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	AuthSvc       authdomain.Service
	AuthzSvc      authorization.Service
	AuditSvc      auditdomain.Service
	CatalogSvc    catalogdomain.Service
	OrderSvc      orderdomain.Service
	SettlementSvc settlementdomain.Service
	Limiter       *throttle.Limiter
	Scheduler     *scheduler.Scheduler
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		authSvc:       p.AuthSvc,
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		catalogSvc:    p.CatalogSvc,
		orderSvc:      p.OrderSvc,
		settlementSvc: p.SettlementSvc,
		limiter:       p.Limiter,
		scheduler:     p.Scheduler,
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()
	svc.registerJobRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/v1/auth")

	auth.POST("/login", s.Throttle(throttle.ClassAuth), s.Login)
	auth.POST("/logout", s.AuthRequired(), s.Logout)
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	// -------- Restaurants & menus --------
	v1.GET("/restaurants/:id", s.GetRestaurant)
	v1.GET("/restaurants/:id/menu", s.ListMenuItems)
	v1.POST("/restaurants", s.AuthRequired(), RequireRole(authdomain.RoleAdmin), s.CreateRestaurant)
	v1.PATCH("/restaurants/:id", s.AuthRequired(), RequireRole(authdomain.RoleAdmin, authdomain.RoleRestaurant), s.UpdateRestaurant)
	v1.POST("/menu-items", s.AuthRequired(), RequireRole(authdomain.RoleAdmin, authdomain.RoleRestaurant), s.CreateMenuItem)
	v1.PATCH("/menu-items/:id", s.AuthRequired(), RequireRole(authdomain.RoleAdmin, authdomain.RoleRestaurant), s.UpdateMenuItem)

	// -------- Orders --------
	v1.POST("/orders", s.AuthRequired(), s.Throttle(throttle.ClassOrders), s.CreateOrder)
	v1.GET("/orders", s.AuthRequired(), s.ListOrders)
	v1.GET("/orders/:id", s.AuthRequired(), s.GetOrder)
	v1.POST("/orders/:id/transition", s.AuthRequired(), s.TransitionOrder)

	// -------- Settlements --------
	v1.POST("/settlements", s.AuthRequired(), RequireRole(authdomain.RoleAdmin), s.GenerateSettlement)
	v1.POST("/settlements/:id/pay", s.AuthRequired(), RequireRole(authdomain.RoleAdmin), s.MarkSettlementPaid)
	v1.GET("/settlements", s.AuthRequired(), RequireRole(authdomain.RoleAdmin, authdomain.RoleRestaurant), s.ListSettlements)
	v1.GET("/settlements/:id", s.AuthRequired(), RequireRole(authdomain.RoleAdmin, authdomain.RoleRestaurant), s.GetSettlement)

	// -------- Audit --------
	v1.GET("/audit-logs", s.AuthRequired(), RequireRole(authdomain.RoleAdmin), s.ListAuditEntries)
}

func (s *Server) registerJobRoutes() {
	jobs := s.engine.Group("/internal/jobs", s.SchedulerAuth())

	jobs.POST("/cancel-stale-orders", s.RunCancelStaleOrders)
	jobs.POST("/audit-export", s.RunAuditExport)
}
