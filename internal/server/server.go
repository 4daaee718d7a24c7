// Package server exposes searches and their progress over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/rsilvagit/cratedig/internal/logger"
	"github.com/rsilvagit/cratedig/internal/model"
	"github.com/rsilvagit/cratedig/internal/pipeline"
	"github.com/rsilvagit/cratedig/internal/progress"
)

// Searcher runs one search.
type Searcher interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// Options configures a Server.
type Options struct {
	CORSOrigins []string
	Logger      *logger.Log
}

type Server struct {
	Echo   *echo.Echo
	search Searcher
	hub    *progress.Hub
	log    *logger.Entry
}

// New builds the echo app. hub feeds the progress stream and may be shared
// with the pipeline's publisher.
func New(search Searcher, hub *progress.Hub, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"http://localhost:3000"}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{Echo: e, search: search, hub: hub, log: opts.Logger.WithComponent("server")}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.log.WithFields(logger.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.String(),
			}).Info("request")
			return nil
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: opts.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	api := s.Echo.Group("/api")
	api.POST("/search", s.handleSearch)
	api.GET("/progress", s.handleProgress)
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	if err := s.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listening on %s: %w", addr, err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":      "ok",
		"subscribers": s.hub.Subscribers(),
	})
}

func (s *Server) handleSearch(c echo.Context) error {
	var req pipeline.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.DiscogsUsername = strings.TrimSpace(req.DiscogsUsername)
	req.BandcampUsername = strings.TrimSpace(req.BandcampUsername)

	res, err := s.search.Run(c.Request().Context(), req)
	if err != nil {
		if model.IsConfigError(err) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		s.log.WithError(err).Error("search failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "search failed")
	}
	return c.JSON(http.StatusOK, res)
}

// handleProgress streams progress lines as server-sent events until the
// client goes away. ?run= restricts the stream to one run.
func (s *Server) handleProgress(c echo.Context) error {
	runID := c.QueryParam("run")
	events, cancel := s.hub.Subscribe()
	defer cancel()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if runID != "" && e.RunID != runID {
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\ndata: %s\n\n", e.RunID, progress.Format(e)); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
