// Package adminapi is the read-only JSON introspection surface SPEC_FULL.md
// calls for: current AgentWeights, open ShadowPositions, recent
// Deliberations, and the Signal Deduper's dedup/quality-filter counters.
// There is deliberately no dashboard and no mutating endpoint — this is an
// operator's read window onto the running system, nothing more. Grounded on
// the teacher's internal/api package: the same gin.Engine + gin-contrib/cors
// + custom zerolog middleware shape, with the CRUD/control routes the
// teacher exposes (orders, trade start/stop, config PATCH) left out, since
// nothing here accepts a write.
package adminapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/wr-desk/warroom/internal/signals"
	"github.com/wr-desk/warroom/internal/store"
)

// Server is the admin HTTP server.
type Server struct {
	router  *gin.Engine
	store   store.Store
	deduper *signals.Deduper
	addr    string
	server  *http.Server

	startedAt time.Time
}

// Config wires the Server's dependencies.
type Config struct {
	Host    string
	Port    int
	Store   store.Store
	Deduper *signals.Deduper
}

// NewServer builds a Server and registers its routes.
func NewServer(cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	s := &Server{
		router:    router,
		store:     cfg.Store,
		deduper:   cfg.Deduper,
		addr:      fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		startedAt: time.Now(),
	}
	s.setupRoutes()
	return s
}

// Start runs the HTTP server until Stop is called or it fails.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("starting admin API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("adminapi: listen: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Info().Msg("stopping admin API server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("adminapi: shutdown: %w", err)
	}
	return nil
}

// LoggerMiddleware logs one line per request, mirroring the teacher's
// internal/api.LoggerMiddleware.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("admin API request")
	}
}
