// Package api exposes enrich and classify over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"query-enrichment/internal/common/logger"
	"query-enrichment/internal/common/validation"
	"query-enrichment/internal/enrichment/composer"
	"query-enrichment/internal/models"
	"query-enrichment/pkg/registry"
)

const requestIDHeader = "X-Request-ID"

// Engine is the slice of the orchestrator served over HTTP.
type Engine interface {
	Enrich(ctx context.Context, raw string, ec models.EnrichContext) models.EnrichmentPayload
	Classify(ctx context.Context, raw string, ec models.EnrichContext) (models.Query, models.Verdict)
	Route(d models.Domain) []string
}

// Check reports whether a dependency is ready to serve.
type Check func(ctx context.Context) error

type Options struct {
	Engine         Engine
	Renderer       *composer.Renderer
	MaxTokens      int
	Registry       *registry.SourceRegistry
	AllowedOrigins []string
	// Checks run on /ready, keyed by dependency name.
	Checks map[string]Check
	Logger logger.Logger
}

type Server struct {
	opts              Options
	enrichValidator   *validation.Validator
	classifyValidator *validation.Validator
	log               logger.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts Options) *gin.Engine {
	if opts.Renderer == nil {
		opts.Renderer = composer.NewRenderer(nil)
	}
	if opts.Registry == nil {
		opts.Registry = registry.Default()
	}
	s := &Server{
		opts:              opts,
		enrichValidator:   validation.MustValidator(validation.EnrichRequestSchema),
		classifyValidator: validation.MustValidator(validation.ClassifyRequestSchema),
		log:               logger.Component(opts.Logger, "api"),
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestID(), s.accessLog())

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", requestIDHeader},
		ExposeHeaders: []string{"Content-Length", requestIDHeader},
		MaxAge:        12 * time.Hour,
	}))

	router.GET("/health", s.health)
	router.GET("/ready", s.ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.POST("/enrich", s.enrich)
	v1.POST("/classify", s.classify)
	v1.GET("/sources", s.sources)

	return router
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("requestId", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request served", map[string]interface{}{
			"method":    c.Request.Method,
			"path":      c.FullPath(),
			"status":    c.Writer.Status(),
			"duration":  time.Since(start).String(),
			"requestId": c.GetString("requestId"),
		})
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failing := gin.H{}
	for name, check := range s.opts.Checks {
		if err := check(ctx); err != nil {
			failing[name] = err.Error()
		}
	}
	if len(failing) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"checks": failing,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Format(time.RFC3339),
	})
}
