// Package api exposes a small read-only HTTP surface (health, server info,
// version) alongside the control and transfer TCP ports, grounded on the
// teacher's echo-based APIServer but trimmed to the ambient diagnostics
// this spec actually calls for — the original's upload/channel/audit REST
// surface is superseded by the control protocol's own file/chat/news
// operations (spec §4.8).
package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Stats is the live snapshot served at /api/stats.
type Stats struct {
	Users    int `json:"users"`
	Channels int `json:"channels"`
}

// Server is a thin echo wrapper exposing diagnostics for the Nexus
// control/transfer listeners, which speak a binary protocol and cannot
// serve HTTP themselves.
type Server struct {
	echo           *echo.Echo
	serverName     string
	serverVersion  string
	statsFn        func() Stats
}

// New constructs a Server. statsFn is called fresh on every /api/stats
// request; it should be cheap (a registry snapshot, not a DB query).
func New(serverName, serverVersion string, statsFn func() Stats) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			log.Printf("[api] %s %s %d", v.Method, v.URI, v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	s := &Server{echo: e, serverName: serverName, serverVersion: serverVersion, statsFn: statsFn}
	e.GET("/health", s.handleHealth)
	e.GET("/api/server", s.handleServer)
	e.GET("/api/stats", s.handleStats)
	e.GET("/api/version", s.handleVersion)
	return s
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleServer(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"name": s.serverName, "version": s.serverVersion})
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.statsFn())
}

func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"version": s.serverVersion})
}

// Run starts the HTTP server on addr and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) {
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Printf("[api] server error: %v", err)
		}
	}()
	<-ctx.Done()
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutCtx); err != nil {
		log.Printf("[api] shutdown: %v", err)
	}
}
