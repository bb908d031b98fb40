// Package api exposes the bridge over loopback HTTP: command dispatch, log
// queries and streaming, health, and the editor's WebSocket upgrade
// endpoint.
package api

import (
	"context"
	"net"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/DirtybitGames/unityctl-sub001/pkg/bridge"
	"github.com/DirtybitGames/unityctl-sub001/pkg/logstore"
)

// Server wires the HTTP routes to the bridge internals.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	projectID  string
	manager    *bridge.ConnectionManager
	dispatcher *bridge.Dispatcher
	requests   *bridge.RequestRegistry
	waiters    *bridge.EventWaiterRegistry
	reload     *bridge.ReloadCoordinator
	logs       *logstore.Store
}

// NewServer builds the server and registers all routes.
func NewServer(projectID string, manager *bridge.ConnectionManager, dispatcher *bridge.Dispatcher, requests *bridge.RequestRegistry, waiters *bridge.EventWaiterRegistry, reload *bridge.ReloadCoordinator, logs *logstore.Store) *Server {
	s := &Server{
		projectID:  projectID,
		manager:    manager,
		dispatcher: dispatcher,
		requests:   requests,
		waiters:    waiters,
		reload:     reload,
		logs:       logs,
	}

	e := echo.New()
	e.GET("/health", s.healthHandler)
	e.GET("/status", s.statusHandler)
	e.POST("/rpc", s.rpcHandler)
	e.GET("/logs/tail", s.logsTailHandler)
	e.GET("/logs/stream", s.logsStreamHandler)
	e.POST("/console/clear", s.consoleClearHandler)
	e.GET("/unity", s.unityHandler)
	s.echo = e
	return s
}

// Echo exposes the underlying router for handler-level tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// StartWithListener serves on an already-bound listener. Binding first lets
// the caller learn the ephemeral port before bridge.json is written.
// Blocks until Shutdown or a listener error.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown drains the HTTP server within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
