package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/pipetrade/internal/approval"
	approvaldomain "github.com/smallbiznis/pipetrade/internal/approval/domain"
	"github.com/smallbiznis/pipetrade/internal/audit"
	auditdomain "github.com/smallbiznis/pipetrade/internal/audit/domain"
	"github.com/smallbiznis/pipetrade/internal/authorization"
	"github.com/smallbiznis/pipetrade/internal/config"
	"github.com/smallbiznis/pipetrade/internal/doctype"
	"github.com/smallbiznis/pipetrade/internal/document"
	documentdomain "github.com/smallbiznis/pipetrade/internal/document/domain"
	"github.com/smallbiznis/pipetrade/internal/observability"
	obsmiddleware "github.com/smallbiznis/pipetrade/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/pipetrade/internal/observability/metrics"
	obstracing "github.com/smallbiznis/pipetrade/internal/observability/tracing"
	"github.com/smallbiznis/pipetrade/internal/ratelimit"
	"github.com/smallbiznis/pipetrade/internal/revision"
	revisiondomain "github.com/smallbiznis/pipetrade/internal/revision/domain"
	"github.com/smallbiznis/pipetrade/internal/sequence"
	sequencedomain "github.com/smallbiznis/pipetrade/internal/sequence/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	doctype.Module,
	authorization.Module,
	audit.Module,
	sequence.Module,
	document.Module,
	revision.Module,
	approval.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
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
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
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
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	documentSvc documentdomain.Service
	revisionSvc revisiondomain.Service
	approvalSvc approvaldomain.Service
	sequenceSvc sequencedomain.Service
	auditSvc    auditdomain.Service
	limiter     *ratelimit.ActorLimiter
	metrics     *obsmetrics.Metrics
	location    *time.Location
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	DocumentSvc documentdomain.Service
	RevisionSvc revisiondomain.Service
	ApprovalSvc approvaldomain.Service
	SequenceSvc sequencedomain.Service
	AuditSvc    auditdomain.Service
	Registry    *doctype.Registry
	Limiter     *ratelimit.ActorLimiter `optional:"true"`
	Metrics     *obsmetrics.Metrics     `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http.server"),
		documentSvc: p.DocumentSvc,
		revisionSvc: p.RevisionSvc,
		approvalSvc: p.ApprovalSvc,
		sequenceSvc: p.SequenceSvc,
		auditSvc:    p.AuditSvc,
		limiter:     p.Limiter,
		metrics:     p.Metrics,
		location:    p.Registry.Location(),
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Documents --------
	api.POST("/documents", s.ActorRequired(), s.MutationRateLimit(), s.CreateDocument)
	api.GET("/documents/:id", s.GetDocumentByID)
	api.GET("/documents/:id/revisions", s.ListDocumentRevisions)
	api.GET("/documents/:id/actions", s.ActorRequired(), s.ListAvailableActions)
	api.POST("/documents/:id/amendments", s.ActorRequired(), s.MutationRateLimit(), s.CreateAmendment)
	api.POST("/documents/:id/transitions", s.ActorRequired(), s.MutationRateLimit(), s.TransitionDocument)

	// -------- Sequences --------
	api.GET("/sequences/:type/:fy", s.GetSequenceCounter)

	// -------- Audit --------
	api.GET("/audit-logs", s.ListAuditLogs)
}
