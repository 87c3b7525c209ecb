// Package server exposes the orchestration core over HTTP: a JSON API to
// start sessions and call tools, an SSE push stream and a duplex WebSocket,
// plus health and metrics endpoints.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quickrewind/agentcore/dispatch"
	"github.com/quickrewind/agentcore/executor"
	"github.com/quickrewind/agentcore/logging"
	"github.com/quickrewind/agentcore/metrics"
	"github.com/quickrewind/agentcore/registry"
	"github.com/quickrewind/agentcore/session"
	"github.com/quickrewind/agentcore/stream"
)

// Options configure the server.
type Options struct {
	HeartbeatInterval time.Duration
	ToolTimeout       time.Duration
	Logger            logging.Logger
	Metrics           *metrics.Metrics
}

// Server wires the HTTP surface around the orchestration core.
type Server struct {
	echo       *echo.Echo
	executor   *executor.Executor
	store      *session.Store
	bus        *stream.Bus
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	opts       Options
}

// New builds the server and registers its routes.
func New(
	exec *executor.Executor,
	store *session.Store,
	bus *stream.Bus,
	reg *registry.Registry,
	d *dispatch.Dispatcher,
	optFns ...func(o *Options),
) *Server {
	opts := Options{
		HeartbeatInterval: 15 * time.Second,
		ToolTimeout:       30 * time.Second,
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:       e,
		executor:   exec,
		store:      store,
		bus:        bus,
		registry:   reg,
		dispatcher: d,
		opts:       opts,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.echo.Group("/api/v1/agent")
	api.POST("/chat", s.handleChat)
	api.POST("/chat/sync", s.handleChatSync)
	api.GET("/stream/:session_id", s.handleStream)
	api.GET("/ws", s.handleWebSocket)
	api.GET("/sessions/:session_id", s.handleGetSession)
	api.POST("/sessions/:session_id/cancel", s.handleCancelSession)
	api.GET("/tools", s.handleListTools)
	api.POST("/tools/call", s.handleCallTool)

	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start(addr string) error {
	s.opts.Logger.Info("http server starting", "addr", addr)
	err := s.echo.Start(addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
