// Package server exposes the licensing back office over HTTP. Every
// response uses the uniform envelope; business errors map to 4xx statuses
// and everything else to 500.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/licentia/internal/clock"
	"github.com/smallbiznis/licentia/internal/config"
	creditdomain "github.com/smallbiznis/licentia/internal/credit/domain"
	"github.com/smallbiznis/licentia/internal/identity"
	invitedomain "github.com/smallbiznis/licentia/internal/invite/domain"
	licensedomain "github.com/smallbiznis/licentia/internal/license/domain"
	pricingdomain "github.com/smallbiznis/licentia/internal/pricing/domain"
	tenantdomain "github.com/smallbiznis/licentia/internal/tenant/domain"
	"github.com/smallbiznis/licentia/internal/tenantdb"
	"github.com/smallbiznis/licentia/pkg/apperr"
	"github.com/smallbiznis/licentia/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func NewEngine(metrics *telemetry.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestMetricsMiddleware(metrics))
	r.Use(ActorMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			_ = ctx
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

type Server struct {
	engine     *gin.Engine
	log        *zap.Logger
	metrics    *telemetry.Metrics
	clk        clock.Clock
	genID      *snowflake.Node
	core       *gorm.DB
	registry   tenantdb.Registry
	resolver   identity.Resolver
	tenantSvc  tenantdomain.Service
	inviteSvc  invitedomain.Service
	licenseSvc licensedomain.Service
	pricingSvc pricingdomain.Service
	creditSvc  creditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Log        *zap.Logger
	Metrics    *telemetry.Metrics
	Clk        clock.Clock
	GenID      *snowflake.Node
	Core       *gorm.DB
	Registry   tenantdb.Registry
	Resolver   identity.Resolver
	TenantSvc  tenantdomain.Service
	InviteSvc  invitedomain.Service
	LicenseSvc licensedomain.Service
	PricingSvc pricingdomain.Service
	CreditSvc  creditdomain.Service
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:     p.Gin,
		log:        p.Log.Named("server"),
		metrics:    p.Metrics,
		clk:        p.Clk,
		genID:      p.GenID,
		core:       p.Core,
		registry:   p.Registry,
		resolver:   p.Resolver,
		tenantSvc:  p.TenantSvc,
		inviteSvc:  p.InviteSvc,
		licenseSvc: p.LicenseSvc,
		pricingSvc: p.PricingSvc,
		creditSvc:  p.CreditSvc,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	r := s.engine

	r.POST("/tenants", s.createTenant)
	r.GET("/tenants", s.listTenants)
	r.GET("/tenants/:id", s.getTenant)
	r.DELETE("/tenants/:id", s.deleteTenant)

	r.POST("/tenants/:id/invites", s.createInvite)
	r.POST("/invites/accept", s.acceptInvite)
	r.POST("/invites/reject", s.rejectInvite)
	r.POST("/invites/cancel", s.cancelInvite)
	r.POST("/invites/deregister", s.deregisterInvite)

	r.POST("/products", s.createProduct)
	r.GET("/products", s.listProducts)

	r.PUT("/pricing", s.savePricing)
	r.GET("/pricing", s.getPricing)

	r.POST("/license/generate", s.generateLicense)
	r.POST("/license/validate", s.validateLicense)
	r.POST("/licenses/:no/extend", s.extendLicense)
	r.POST("/licenses/:no/seats", s.changeLicenseSeats)
	r.POST("/licenses/:no/dealer", s.reassignLicenseDealer)
	r.POST("/licenses/:no/addon", s.applyLicenseAddon)

	r.POST("/dealers/:id/credit", s.assignDealerCredit)
	r.GET("/dealers/:id/credit", s.getDealerCredit)
}

// tenantConn resolves the caller's tenant store connection. The tenant comes
// from the resolved actor; ledger and pricing operations always run against
// that tenant's own database.
func (s *Server) tenantConn(c *gin.Context) (*gorm.DB, identity.Actor, error) {
	actor, err := s.resolver.CurrentActor(c.Request.Context())
	if err != nil {
		return nil, identity.Actor{}, err
	}
	if actor.TenantID == 0 {
		return nil, actor, apperr.Validation("no tenant selected")
	}

	var business tenantdomain.Business
	if err := s.core.WithContext(c.Request.Context()).
		First(&business, "id = ?", actor.TenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, actor, apperr.NotFound("business not found")
		}
		return nil, actor, apperr.Persistence("failed to load business", err)
	}

	conn, err := s.registry.Open(business.DBHost, business.DBPort, business.DBName)
	if err != nil {
		return nil, actor, err
	}
	return conn, actor, nil
}

func parseSnowflakeParam(c *gin.Context, name string) (snowflake.ID, error) {
	id := parseID(c.Param(name))
	if id == 0 {
		return 0, apperr.Validation("invalid " + name)
	}
	return id, nil
}

var Module = fx.Module("http.server",
	fx.Provide(telemetry.NewMetrics),
	fx.Provide(NewEngine),
	fx.Provide(identity.NewContextResolver),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)
