package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/usagetrack/internal/apikey"
	"github.com/smallbiznis/usagetrack/internal/auth/session"
	"github.com/smallbiznis/usagetrack/internal/authorization"
	"github.com/smallbiznis/usagetrack/internal/catalog"
	"github.com/smallbiznis/usagetrack/internal/config"
	"github.com/smallbiznis/usagetrack/internal/observability"
	obsmiddleware "github.com/smallbiznis/usagetrack/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/usagetrack/internal/observability/metrics"
	obstracing "github.com/smallbiznis/usagetrack/internal/observability/tracing"
	"github.com/smallbiznis/usagetrack/internal/ratelimit"
	"github.com/smallbiznis/usagetrack/internal/tracking"
	trackingdomain "github.com/smallbiznis/usagetrack/internal/tracking/domain"
	"github.com/smallbiznis/usagetrack/internal/tracking/interceptor"
	"github.com/smallbiznis/usagetrack/internal/tracking/report"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	authorization.Module,
	session.Module,
	apikey.Module,
	catalog.Module,
	tracking.Module,
	ratelimit.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

type EngineParams struct {
	fx.In

	Cfg         config.Config
	ObsCfg      observability.Config
	HTTPMetrics *obsmetrics.HTTPMetrics
	Interceptor *interceptor.Interceptor
}

func NewEngine(p EngineParams) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           p.ObsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(p.HTTPMetrics))
	// tracking must observe the status written by the error handler
	if p.Cfg.HookEnabled(config.HookGin) {
		r.Use(p.Interceptor.GinMiddleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// Handler returns the root handler, wrapped by the net/http front door when
// that hook is enabled.
func Handler(cfg config.Config, r *gin.Engine, it *interceptor.Interceptor) http.Handler {
	if cfg.HookEnabled(config.HookHTTP) {
		return it.Middleware(r)
	}
	return r
}

type runParams struct {
	fx.In

	Lc          fx.Lifecycle
	Shutdowner  fx.Shutdowner
	Cfg         config.Config
	Log         *zap.Logger
	Server      *Server
	Interceptor *interceptor.Interceptor
}

func run(p runParams) {
	log := p.Log.Named("http.server")
	srv := &http.Server{
		Addr:              p.Cfg.HTTPAddr,
		Handler:           Handler(p.Cfg, p.Server.Engine(), p.Interceptor),
		ReadHeaderTimeout: 10 * time.Second,
	}

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr), zap.Strings("hooks", p.Cfg.Tracking.Hooks))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
					_ = p.Shutdowner.Shutdown(fx.ExitCode(1))
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
	authzSvc    authorization.Service
	resolver    trackingdomain.Resolver
	interceptor *interceptor.Interceptor
	reports     *report.Service
	obsMetrics  *obsmetrics.Metrics
	exports     *ratelimit.ExportLimiter
	upstream    http.Handler
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	AuthzSvc    authorization.Service
	Resolver    trackingdomain.Resolver
	Interceptor *interceptor.Interceptor
	Reports     *report.Service
	ObsMetrics  *obsmetrics.Metrics      `optional:"true"`
	Exports     *ratelimit.ExportLimiter `optional:"true"`
}

func NewServer(p ServerParams) (*Server, error) {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http.server"),
		authzSvc:    p.AuthzSvc,
		resolver:    p.Resolver,
		interceptor: p.Interceptor,
		reports:     p.Reports,
		obsMetrics:  p.ObsMetrics,
		exports:     p.Exports,
	}

	upstream, err := newUpstreamProxy(p.Cfg.UpstreamURL, svc.log)
	if err != nil {
		return nil, err
	}
	svc.upstream = upstream

	svc.registerReportRoutes()
	svc.registerCSVRoutes()
	svc.registerEventRoutes()
	svc.registerFallback()

	return svc, nil
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerReportRoutes() {
	api := s.engine.Group("/api/tracking", s.authorizeAction(authorization.ObjectTrackingReport, authorization.ActionReportView))
	{
		api.GET("/most-accessed-dataset", s.MostAccessedDataset)
		api.GET("/most-accessed-resource", s.MostAccessedResource)
		api.GET("/most-accessed-token", s.MostAccessedToken)
		api.GET("/all-token-usage", s.AllTokenUsage)
		api.GET("/active-users", s.ActiveUsers)
	}
}

func (s *Server) registerCSVRoutes() {
	csv := s.engine.Group("/tracking-csv", s.authorizeAction(authorization.ObjectTrackingReport, authorization.ActionReportExport))
	{
		csv.GET("/most-accessed-dataset-with-token.csv", s.MostAccessedDatasetCSV)
		csv.GET("/most-accessed-resource-with-token.csv", s.MostAccessedResourceCSV)
		csv.GET("/most-accessed-token.csv", s.MostAccessedTokenCSV)
		csv.GET("/all-token-usage.csv", s.AllTokenUsageCSV)
	}
}

func (s *Server) registerEventRoutes() {
	events := s.engine.Group("/api/tracking/events", s.authorizeAction(authorization.ObjectTrackingEvent, authorization.ActionEventRecord))
	{
		events.POST("/:kind", s.RecordAuthEvent)
	}
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		if s.upstream == nil {
			AbortWithError(c, ErrNotFound)
			return
		}
		s.upstream.ServeHTTP(c.Writer, c.Request)
	})
}
