package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/andinolabs/canje/internal/catalog"
	catalogdomain "github.com/andinolabs/canje/internal/catalog/domain"
	"github.com/andinolabs/canje/internal/clock"
	"github.com/andinolabs/canje/internal/cloudmetrics"
	"github.com/andinolabs/canje/internal/config"
	"github.com/andinolabs/canje/internal/ledger"
	ledgerdomain "github.com/andinolabs/canje/internal/ledger/domain"
	"github.com/andinolabs/canje/internal/observability"
	obsmiddleware "github.com/andinolabs/canje/internal/observability/logger"
	obsmetrics "github.com/andinolabs/canje/internal/observability/metrics"
	obstracing "github.com/andinolabs/canje/internal/observability/tracing"
	"github.com/andinolabs/canje/internal/providers/pdf"
	"github.com/andinolabs/canje/internal/ratelimit"
	"github.com/andinolabs/canje/internal/redemption"
	redemptiondomain "github.com/andinolabs/canje/internal/redemption/domain"
	"github.com/andinolabs/canje/internal/voucher"
	voucherdomain "github.com/andinolabs/canje/internal/voucher/domain"
)

var Module = fx.Module("http.server",
	cloudmetrics.Module,
	fx.Provide(registerGin),
	ledger.Module,
	catalog.Module,
	voucher.Module,
	redemption.Module,
	ratelimit.Module,
	pdf.Module,
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

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
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
	db            *gorm.DB
	clock         clock.Clock
	ledgerSvc     ledgerdomain.Service
	catalogSvc    catalogdomain.Service
	voucherSvc    voucherdomain.Service
	redemptionSvc redemptiondomain.Service
	pdfProvider   pdf.Provider
	redeemLimiter *ratelimit.RedeemLimiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	Clock         clock.Clock
	LedgerSvc     ledgerdomain.Service
	CatalogSvc    catalogdomain.Service
	VoucherSvc    voucherdomain.Service
	RedemptionSvc redemptiondomain.Service
	PDFProvider   pdf.Provider
	RedeemLimiter *ratelimit.RedeemLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		clock:         p.Clock,
		ledgerSvc:     p.LedgerSvc,
		catalogSvc:    p.CatalogSvc,
		voucherSvc:    p.VoucherSvc,
		redemptionSvc: p.RedemptionSvc,
		pdfProvider:   p.PDFProvider,
		redeemLimiter: p.RedeemLimiter,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerPartnerRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Users --------
	api.GET("/users/:userId/balance", s.GetBalance)
	api.GET("/users/:userId/ledger", s.ListLedgerEntries)
	api.GET("/users/:userId/vouchers", s.ListUserVouchers)

	// -------- Catalog --------
	api.GET("/rewards", s.ListRewards)
	api.GET("/rewards/:id", s.GetRewardByID)
	api.GET("/partners", s.ListPartners)
	api.GET("/partners/:id", s.GetPartnerByID)

	// -------- Redemptions --------
	api.POST("/redemptions", s.RedeemReward)

	// -------- Vouchers --------
	api.GET("/vouchers/:id", s.GetVoucherByID)
	api.GET("/vouchers/:id/pdf", s.RenderVoucherPDF)
}

func (s *Server) registerAdminRoutes() {
	api := s.engine.Group("/api", s.AdminRequired())

	api.POST("/users/:userId/credits", s.CreditUser)

	api.POST("/rewards", s.CreateReward)
	api.PATCH("/rewards/:id", s.UpdateReward)

	api.POST("/partners", s.CreatePartner)
	api.POST("/partners/:id/keys", s.IssuePartnerKey)

	api.POST("/vouchers/:id/cancel", s.CancelVoucher)
}

func (s *Server) registerPartnerRoutes() {
	partner := s.engine.Group("/partner")

	partner.POST("/vouchers/:code/present", s.PartnerKeyRequired(catalogdomain.ScopePresent), s.PresentVoucher)
	partner.POST("/vouchers/:code/consume", s.PartnerKeyRequired(catalogdomain.ScopeConsume), s.ConsumeVoucher)
}
