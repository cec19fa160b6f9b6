package api

import (
	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termdeck/internal/api/middleware"
	"github.com/GriffinCanCode/termdeck/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termdeck/internal/infrastructure/tracing"
)

// Options configures the router.
type Options struct {
	Host        Host
	Metrics     *monitoring.Metrics
	Logger      *zap.Logger
	Health      healthcheck.Handler
	Tracer      *tracing.Tracer
	CORS        middleware.CORSConfig
	RateLimit   *middleware.RateLimitConfig
	Development bool
}

// NewRouter wires middleware and routes.
func NewRouter(opts Options) *gin.Engine {
	if !opts.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	if opts.Health == nil {
		opts.Health = NewHealth(opts.Metrics, "")
	}
	if opts.CORS.AllowMethods == nil {
		opts.CORS = middleware.DefaultCORSConfig()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if opts.Tracer != nil {
		router.Use(tracing.HTTPMiddleware(opts.Tracer))
	}
	router.Use(monitoring.Middleware(opts.Metrics))
	router.Use(middleware.CORS(opts.CORS))

	handlers := NewHandlers(opts.Host, opts.Metrics, opts.Logger)

	router.GET("/", handlers.Root)
	router.GET("/health/live", gin.WrapF(opts.Health.LiveEndpoint))
	router.GET("/health/ready", gin.WrapF(opts.Health.ReadyEndpoint))
	router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	router.GET("/metrics/json", handlers.MetricsJSON)

	sessions := router.Group("/sessions")
	if opts.RateLimit != nil {
		sessions.Use(middleware.RateLimit(*opts.RateLimit))
	}
	sessions.POST("", handlers.CreateSession)
	sessions.GET("", handlers.ListSessions)
	sessions.GET("/:id", handlers.GetSession)
	sessions.GET("/:id/active", handlers.SessionActive)
	sessions.GET("/:id/scrollback", handlers.Scrollback)
	sessions.POST("/:id/input", handlers.WriteInput)
	sessions.POST("/:id/resize", handlers.Resize)
	sessions.DELETE("/:id", handlers.CloseSession)

	router.GET("/stream", handlers.Stream)

	return router
}
