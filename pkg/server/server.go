// Package server exposes a read-only status API over a pipeline working
// directory: which artifacts exist, how far a run has progressed, and what
// stage would execute next. It is the operational surface for long-running
// generation jobs.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/distillery"
	"github.com/soundprediction/distillery/pkg/config"
)

// Server represents the HTTP status server
type Server struct {
	config   *config.Config
	router   *gin.Engine
	pipeline *distillery.Client
	server   *http.Server
}

// New creates a new server instance
func New(cfg *config.Config, pipeline *distillery.Client) *Server {
	return &Server{
		config:   cfg,
		pipeline: pipeline,
	}
}

// Setup sets up the server routes and middleware
func (s *Server) Setup() {
	gin.SetMode(s.config.Server.Mode)

	s.router = gin.New()
	s.router.Use(gin.Logger())
	s.router.Use(gin.Recovery())
	s.router.Use(corsMiddleware())

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
}

// setupRoutes sets up all the routes
func (s *Server) setupRoutes() {
	h := newHandler(s.pipeline)

	// Health endpoints
	s.router.GET("/health", h.Health)
	s.router.GET("/live", h.Health)

	// API v1 routes
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/status", h.Status)
		v1.GET("/stages/next", h.NextStage)
		v1.GET("/artifacts", h.Artifacts)
		v1.GET("/labels/stats", h.LabelStats)
	}
}

// Start starts the server
func (s *Server) Start() error {
	fmt.Printf("Starting status server on %s\n", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the server gracefully
func (s *Server) Stop(ctx context.Context) error {
	fmt.Println("Stopping server...")
	return s.server.Shutdown(ctx)
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
