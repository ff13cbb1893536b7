// Package httpserver exposes the broker over HTTP: the artifact download
// route, the JSON tool API, health, and metrics.
package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/mcpsandbox/mcpsandbox/internal/config"
	"github.com/mcpsandbox/mcpsandbox/internal/metrics"
	"github.com/mcpsandbox/mcpsandbox/internal/session"
	"github.com/mcpsandbox/mcpsandbox/pkg/log"
)

// Server serves the artifact download route and the tool API.
type Server struct {
	echo *echo.Echo
	mgr  *session.Manager
	cfg  *config.Config
	log  zerolog.Logger
}

// New creates the HTTP server and wires all routes.
func New(cfg *config.Config, mgr *session.Manager) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo: e,
		mgr:  mgr,
		cfg:  cfg,
		log:  log.WithComponent("http"),
	}

	e.Use(middleware.Recover())
	e.Use(metrics.EchoMiddleware())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// Artifact downloads are read-only and addressed by session; they carry
	// no API key because download URLs are handed to the caller verbatim.
	e.GET("/files/:session_id/:filename", s.downloadArtifact)

	api := e.Group("/v1")
	api.Use(APIKeyMiddleware(cfg.APIKey))
	api.POST("/upload", s.upload)
	api.POST("/execute", s.execute)
	api.POST("/read", s.read)
	api.POST("/list", s.list)
	api.POST("/close", s.close)

	return s
}

// Handler exposes the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server on the given address (blocking).
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
