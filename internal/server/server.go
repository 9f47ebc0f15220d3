// Package server exposes the sync engine over HTTP: a manual trigger, the
// run history, project health, and a websocket feed of run events.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/nhle/pmsync/internal/logger"
	"github.com/nhle/pmsync/internal/model"
	"github.com/nhle/pmsync/internal/store"
	appsync "github.com/nhle/pmsync/internal/sync"
)

// SyncService is the part of the scheduler the server drives.
type SyncService interface {
	Trigger(ctx context.Context, opts appsync.RunOptions) (model.SyncRunResult, error)
	TriggerAsync(opts appsync.RunOptions) error
	Running() bool
	Events() *appsync.Broadcaster
}

// Server serves the HTTP API.
type Server struct {
	store store.Store
	sync  SyncService
	echo  *echo.Echo
}

// New creates a server over a store and a sync service.
func New(s store.Store, svc SyncService) *Server {
	srv := &Server{store: s, sync: svc}
	srv.setupEcho()
	return srv
}

func (s *Server) setupEcho() {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(requestLogger)
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	e.GET("/healthz", s.handleHealth)

	api := e.Group("/api")
	api.POST("/sync", s.handleTriggerSync)
	api.GET("/sync/runs", s.handleListRuns)
	api.GET("/sync/runs/latest", s.handleLatestRun)
	api.GET("/sync/runs/:id", s.handleGetRun)
	api.GET("/projects", s.handleListProjects)
	api.GET("/projects/:key", s.handleGetProject)
	api.GET("/projects/:key/health", s.handleProjectHealth)
	api.GET("/projects/:key/tasks", s.handleProjectTasks)
	api.GET("/events", s.handleEvents)

	s.echo = e
}

// requestLogger logs every request with its status and latency.
func requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		res := c.Response()
		logger.Info("http request",
			logger.F("method", req.Method),
			logger.F("uri", req.RequestURI),
			logger.F("status", res.Status),
			logger.F("size", res.Size),
			logger.F("duration", time.Since(start).String()))
		return nil
	}
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	logger.Info("http server listening", logger.F("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"sync_running": s.sync.Running(),
	})
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}
