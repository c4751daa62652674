// Package router assembles the gin engine.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/salesync/internal/infrastructure/logger"
	"github.com/erp/salesync/internal/interfaces/http/middleware"
)

// RouteRegistrar mounts a group of routes under the API prefix
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// HealthChecker answers probes
type HealthChecker interface {
	Live(c *gin.Context)
	Ready(c *gin.Context)
}

// Router manages HTTP route registration
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
	health     HealthChecker
	metrics    http.Handler
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// WithHealth serves /health and /health/ready
func WithHealth(h HealthChecker) RouterOption {
	return func(r *Router) {
		r.health = h
	}
}

// WithMetrics serves h at /metrics
func WithMetrics(h http.Handler) RouterOption {
	return func(r *Router) {
		r.metrics = h
	}
}

// MiddlewareConfig selects the global middleware
type MiddlewareConfig struct {
	Logger      *zap.Logger
	Tracing     middleware.TracingConfig
	RateLimiter *middleware.RateLimiter
}

// NewEngine creates a gin engine with request IDs, recovery, tracing,
// request logging and, when a limiter is given, rate limiting
func NewEngine(cfg MiddlewareConfig) *gin.Engine {
	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		logger.Recovery(cfg.Logger),
		middleware.Tracing(cfg.Tracing),
		middleware.Annotate(),
		logger.GinMiddleware(cfg.Logger),
	)
	if cfg.RateLimiter != nil {
		engine.Use(middleware.RateLimit(cfg.RateLimiter))
	}
	return engine
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a RouteRegistrar to be registered later
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes with the engine
func (r *Router) Setup() *gin.Engine {
	if r.health != nil {
		r.engine.GET("/health", r.health.Live)
		r.engine.GET("/health/ready", r.health.Ready)
	}
	if r.metrics != nil {
		r.engine.GET("/metrics", gin.WrapH(r.metrics))
	}

	api := r.engine.Group("/api/" + r.apiVersion)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
	return r.engine
}
