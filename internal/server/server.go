package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/caresignal/adherence/internal/clock"
	"github.com/caresignal/adherence/internal/config"
	"github.com/caresignal/adherence/internal/event"
	eventdomain "github.com/caresignal/adherence/internal/event/domain"
	"github.com/caresignal/adherence/internal/job"
	jobdomain "github.com/caresignal/adherence/internal/job/domain"
	"github.com/caresignal/adherence/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	event.Module,
	job.Module,
	ratelimit.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

// NewEngine builds the gin engine with recovery, request logging, error
// mapping, health and metrics endpoints.
func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine   *gin.Engine
	cfg      config.Config
	log      *zap.Logger
	eventsvc eventdomain.Service
	jobsvc   jobdomain.Service
	clock    clock.Clock
	limiter  *ratelimit.IngestLimiter
}

type ServerParams struct {
	fx.In

	Gin      *gin.Engine
	Cfg      config.Config
	Log      *zap.Logger
	EventSvc eventdomain.Service
	JobSvc   jobdomain.Service
	Clock    clock.Clock
	Limiter  *ratelimit.IngestLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:   p.Gin,
		cfg:      p.Cfg,
		log:      p.Log.Named("http.server"),
		eventsvc: p.EventSvc,
		jobsvc:   p.JobSvc,
		clock:    p.Clock,
		limiter:  p.Limiter,
	}
}

func registerRoutes(s *Server) {
	s.RegisterAPIRoutes()
}

// RegisterAPIRoutes mounts the events API.
func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api")

	events := api.Group("/events")
	events.POST("/batch", s.PostBatch)
	events.GET("/batch/:jobId", s.GetBatchStatus)
	events.GET("/adherence/:patientId", s.GetDailyAdherenceScore)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
