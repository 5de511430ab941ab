package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/mysa-core/internal/command"
	"github.com/nerrad567/mysa-core/internal/device"
	"github.com/nerrad567/mysa-core/internal/infrastructure/config"
	"github.com/nerrad567/mysa-core/internal/infrastructure/logging"
	"github.com/nerrad567/mysa-core/internal/realtime"
	"github.com/nerrad567/mysa-core/internal/state"
	"github.com/nerrad567/mysa-core/internal/syncer"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Engine is the part of the sync orchestrator the API drives.
type Engine interface {
	IssueCommand(ctx context.Context, deviceID string, intent command.Intent) (command.WireCommand, error)
	SetSensorMode(ctx context.Context, deviceID string, mode command.SensorMode) error
	ConvertModel(ctx context.Context, deviceID, model string) error
	FirmwareInfo(ctx context.Context, deviceID string) (device.FirmwareInfo, error)
	ResetToPairing(ctx context.Context, deviceID string) error
	Stats() syncer.Stats
}

// ChannelStats reports realtime channel counters.
type ChannelStats interface {
	Stats() realtime.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Registry *device.Registry
	Store    *state.Store
	Engine   Engine
	Channel  ChannelStats // nil when the realtime channel is disabled
	Version  string
}

// Server is the local HTTP API server.
//
// It manages the HTTP listener, routes, middleware, metrics and the
// WebSocket hub. The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	registry  *device.Registry
	store     *state.Store
	engine    Engine
	channel   ChannelStats
	version   string
	startTime time.Time
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc // cancels background goroutines on Close()

	metrics  *prometheus.Registry
	requests *prometheus.CounterVec
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, registry, store, engine)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		registry:  deps.Registry,
		store:     deps.Store,
		engine:    deps.Engine,
		channel:   deps.Channel,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       NewHub(deps.Store, deps.Logger),
	}
	if err := s.registerMetrics(); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and launches the HTTP listener in a
// background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation of background goroutines
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.ReadDuration(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadDuration(),
		WriteTimeout:      s.cfg.Timeouts.WriteDuration(),
		IdleTimeout:       s.cfg.Timeouts.IdleDuration(),
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// PublishStateEvent forwards an accepted state change to the stream
// clients following its device.
func (s *Server) PublishStateEvent(ev state.Event) {
	s.hub.Publish(ev)
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
