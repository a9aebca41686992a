// Package api implements the HTTP API for the collection service.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/projektkollen/collector/internal/api/middleware"
	"github.com/projektkollen/collector/internal/config"
	"github.com/projektkollen/collector/internal/database"
	"github.com/projektkollen/collector/internal/domain"
	"github.com/projektkollen/collector/internal/logger"
	"github.com/projektkollen/collector/internal/regions"
	"github.com/projektkollen/collector/internal/sse"
)

// Collector defines the interface for starting background runs.
type Collector interface {
	// StartCollection launches a collection run over the given regions.
	StartCollection(filters domain.Filters, regionIDs []string) (*domain.Task, error)

	// StartDetails launches a detail enrichment run.
	StartDetails(source string, limit int) (*domain.Task, error)
}

// TaskDirectory defines the interface for task status queries.
type TaskDirectory interface {
	// Get returns a snapshot of one task.
	Get(id string) (*domain.Task, error)

	// List returns snapshots of all tracked tasks, newest first.
	List() []*domain.Task

	// Cancel requests cancellation of a running task.
	Cancel(id string) error
}

// Constants
const (
	readHeaderTimeout = 10 * time.Second // Timeout for reading headers
)

// Deps holds the dependencies the router wires into its handlers.
type Deps struct {
	Logger    logger.Logger
	Collector Collector
	Tasks     TaskDirectory
	Regions   regions.Interface
	Cases     database.CaseStore
	Status    database.RegionStatusStore
	Events    sse.Broker
	Gatherer  prometheus.Gatherer
}

// SetupRouter creates and configures the Gin router with all routes.
// The returned rate limiter needs its Cleanup goroutine started by the
// caller.
func SetupRouter(cfg *config.Config, deps Deps) (*gin.Engine, *middleware.RateLimiter) {
	// Disable Gin's default logging
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(deps.Logger))
	router.Use(corsMiddleware(cfg.Server.CORSOrigins))

	// Rate limiting applies only to routes that trigger outbound traffic.
	limiter := middleware.NewRateLimiter(cfg.API.RateLimitRequests, cfg.API.RateLimitWindow, deps.Logger)

	collectHandler := NewCollectHandler(deps.Collector, deps.Logger)
	tasksHandler := NewTasksHandler(deps.Tasks, deps.Events, deps.Logger)
	regionsHandler := NewRegionsHandler(deps.Regions, deps.Cases, deps.Status, deps.Logger)

	// Define public routes
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	v1.GET("/task-status/:id", tasksHandler.Status)
	v1.DELETE("/task-status/:id", tasksHandler.Cancel)
	v1.GET("/tasks", tasksHandler.List)
	v1.GET("/tasks/:id/events", tasksHandler.Events)
	v1.GET("/events", tasksHandler.Stream)
	v1.GET("/regions", regionsHandler.Overview)

	// Define rate-limited trigger routes
	triggers := v1.Group("")
	triggers.Use(limiter.Middleware())
	triggers.POST("/collect", collectHandler.Collect)
	triggers.POST("/collect/details", collectHandler.Details)

	return router, limiter
}

// StartHTTPServer builds the HTTP server around the configured router.
func StartHTTPServer(cfg *config.Config, deps Deps) (*http.Server, *middleware.RateLimiter) {
	router, limiter := SetupRouter(cfg, deps)

	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		// WriteTimeout stays zero: it would sever event streams mid-run.
	}

	return srv, limiter
}

// loggingMiddleware creates a middleware that logs HTTP requests
func loggingMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		log.Info("HTTP Request",
			logger.String("method", c.Request.Method),
			logger.String("path", path),
			logger.String("query", query),
			logger.Int("status", statusCode),
			logger.Duration("latency", latency),
		)
	}
}

// corsMiddleware adds CORS headers to allow frontend access. An empty
// origin list allows any origin.
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := "*"
		if len(allowed) > 0 {
			reqOrigin := c.GetHeader("Origin")
			if !allowed[reqOrigin] {
				if c.Request.Method == http.MethodOptions {
					c.AbortWithStatus(http.StatusNoContent)
					return
				}
				c.Next()
				return
			}
			origin = reqOrigin
		}

		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, Content-Length, Accept-Encoding, Authorization, "+
				"accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
