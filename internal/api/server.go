// Package api is the HTTP/WebSocket surface: health endpoints, action
// endpoints and the WebSocket hub. Authentication, panel UI serving and
// KNX-discovery endpoints from the building-automation reference are
// dropped here — authentication is an explicit spec Non-goal, and the
// other two have no analog in this domain.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/homehub/hearth-core/internal/core/appstate"
	"github.com/homehub/hearth-core/internal/platform/config"
)

// Logger is the minimal logging dependency.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// DBHealthChecker reports database connectivity, for /health/ready.
type DBHealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// MetricsHandler serves Prometheus's /metrics format.
type MetricsHandler interface {
	http.Handler
}

// Deps bundles the Server's constructor dependencies.
type Deps struct {
	AppState *appstate.AppState
	Hub      *Hub
	DB       DBHealthChecker // nil means persistence is unavailable
	Metrics  MetricsHandler  // nil disables /metrics
	Config   config.APIConfig
	WSConfig config.WebSocketConfig
	Log      Logger
}

// Server is the HTTP server wrapping the chi router.
type Server struct {
	deps Deps
	http *http.Server
}

// New validates deps and constructs a Server.
func New(deps Deps) (*Server, error) {
	if deps.AppState == nil {
		return nil, fmt.Errorf("api.New: AppState is required")
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("api.New: Hub is required")
	}
	if deps.Log == nil {
		deps.Log = noopServerLogger{}
	}

	s := &Server{deps: deps}
	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", deps.Config.Host, deps.Config.Port),
		Handler:      s.buildRouter(),
		ReadTimeout:  time.Duration(deps.Config.Timeouts.Read) * time.Second,
		WriteTimeout: time.Duration(deps.Config.Timeouts.Write) * time.Second,
		IdleTimeout:  time.Duration(deps.Config.Timeouts.Idle) * time.Second,
	}
	return s, nil
}

// Start binds the listening socket and serves until ctx is canceled.
// Failure to bind is fatal (spec.md §7).
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Close()
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	}
}

// Close shuts the server down gracefully.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

type noopServerLogger struct{}

func (noopServerLogger) Info(string, ...any)  {}
func (noopServerLogger) Warn(string, ...any)  {}
func (noopServerLogger) Error(string, ...any) {}
