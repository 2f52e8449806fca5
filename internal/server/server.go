// Package server exposes the engine over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"stockml-engine/internal/backtest"
	"stockml-engine/internal/config"
	"stockml-engine/internal/forecast"
	"stockml-engine/internal/model"
	"stockml-engine/internal/store"
	"stockml-engine/internal/validate"
)

// Server wraps an http.Server running the gin engine and provides
// graceful startup and shutdown.
type Server struct {
	server    *http.Server
	addr      string
	logger    zerolog.Logger
	store     store.DataStore
	registry  *model.Registry
	engine    *backtest.Engine
	validator *validate.Validator
	projector *forecast.Projector
	cfg       config.EngineConfig
}

// New creates an HTTP server for the given engine components.
func New(addr string, st store.DataStore, registry *model.Registry, engine *backtest.Engine, validator *validate.Validator, projector *forecast.Projector, cfg config.EngineConfig, logger zerolog.Logger) *Server {
	s := &Server{
		addr:      addr,
		logger:    logger.With().Str("component", "server").Logger(),
		store:     st,
		registry:  registry,
		engine:    engine,
		validator: validator,
		projector: projector,
		cfg:       cfg,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	s.registerRoutes(router)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start runs the server until the context is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info().Str("addr", s.addr).Msg("starting http server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info().Msg("http server stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Stop shuts the server down gracefully, waiting for in-flight
// requests up to a short timeout.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		s.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(started)).
			Msg("request")
	}
}
