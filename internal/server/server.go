// Package server wires the HTTP surface: routing, authorization, request
// validation, workspace lifecycle and response envelopes.
package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stratonally/toolhost/internal/auth"
	"github.com/stratonally/toolhost/internal/catalog"
	"github.com/stratonally/toolhost/internal/config"
	"github.com/stratonally/toolhost/internal/observability"
	"github.com/stratonally/toolhost/internal/runner"
)

// Server owns the read-only request-handling state: configuration,
// catalog and runner. Per-request state never outlives its handler.
type Server struct {
	cfg      config.Config
	catalog  *catalog.Catalog
	runner   runner.Runner
	logger   zerolog.Logger
	router   *gin.Engine
	appeared time.Time

	// workspaceBase overrides the workspace parent dir in tests; empty
	// means the system temp dir.
	workspaceBase string
}

// New constructs the engine with the standard middleware chain and
// registers all routes.
func New(cfg config.Config, cat *catalog.Catalog, logger zerolog.Logger) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", auth.HeaderName},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:      cfg,
		catalog:  cat,
		runner:   runner.Runner{MaxOutputChars: cfg.Limits.MaxOutputChars},
		logger:   logger,
		router:   r,
		appeared: time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).String(),
			"service": "toolhost",
		})
	})
	s.router.GET("/ready", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"ready":  true,
			"uptime": time.Since(s.appeared).String(),
		})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api", auth.Middleware(auth.StaticKey{Key: s.cfg.APIKey}))
	api.GET("/scripts", s.handleListScripts)
	api.POST("/tool/run", s.handleRunTool)
	api.POST("/run", s.handleRunScript)
}

// Router exposes the engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Serve blocks listening on the configured address.
func (s *Server) Serve() error {
	log.Info().Str("addr", s.cfg.Addr()).Str("exec_root", s.cfg.ExecRoot).Msg("toolhost listening")
	return s.router.Run(s.cfg.Addr())
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
