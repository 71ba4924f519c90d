package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/apilens-io/apilens/internal/config"
	"github.com/apilens-io/apilens/internal/handler"
	"github.com/apilens-io/apilens/internal/response"
)

// Server holds the Echo app and dependencies.
type Server struct {
	Echo   *echo.Echo
	Config *config.Config
	log    zerolog.Logger
}

// New builds the Echo server and registers the ingestion routes.
func New(cfg *config.Config, ingestHandler *handler.IngestHandler, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover(), middleware.Logger())
	e.Server.ReadTimeout = time.Duration(cfg.Server.ReadTimeout) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.Server.WriteTimeout) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.Server.IdleTimeout) * time.Second

	e.GET("/health", func(c echo.Context) error {
		return response.OK(c, map[string]string{"status": "ok"}, "")
	})

	e.POST("/ingestion/requests", ingestHandler.PostRequests)
	e.POST("/ingestion/logs", ingestHandler.PostLogs)
	e.GET("/ingestion/status", ingestHandler.GetStatus)

	return &Server{
		Echo:   e,
		Config: cfg,
		log:    logger.With().Str("component", "server").Logger(),
	}
}

// Start starts the HTTP server. Blocks until the context is cancelled or the
// server fails.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()
	addr := ":" + s.Config.Server.Port
	s.log.Info().Str("addr", addr).Msg("http server listening")
	err := s.Echo.Start(addr)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}
