package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wschoenell/chimera-manager/internal/checklist"
	"github.com/wschoenell/chimera-manager/internal/infrastructure/config"
	"github.com/wschoenell/chimera-manager/internal/infrastructure/logging"
	"github.com/wschoenell/chimera-manager/internal/instrument"
	"github.com/wschoenell/chimera-manager/internal/notify"
	"github.com/wschoenell/chimera-manager/internal/supervisor"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Supervisor is the control surface the API drives. *supervisor.Supervisor
// satisfies it.
type Supervisor interface {
	State() supervisor.State
	Start()
	Stop() error
	Wakeup()

	Items(ctx context.Context) ([]checklist.Item, error)
	Activate(ctx context.Context, name string) error
	Deactivate(ctx context.Context, name string) error
	RunInactive(ctx context.Context, name string) error

	Instruments(ctx context.Context) ([]instrument.Status, error)
	GetFlag(ctx context.Context, name string) (instrument.Flag, error)
	SetFlag(ctx context.Context, name string, flag instrument.Flag) error
	LockInstrument(ctx context.Context, name, key string) error
	UnlockInstrument(ctx context.Context, name, key string) (bool, error)
	CanOpen(ctx context.Context, name string) (bool, error)

	HandleCommand(ctx context.Context, line string) (string, error)
}

// Questions answers pending operator questions. *notify.Notifier satisfies it.
type Questions interface {
	Questions() []notify.Question
	Answer(a notify.Answer) error
}

// HealthChecker is a dependency reported by /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Security   config.SecurityConfig
	Logger     *logging.Logger
	Supervisor Supervisor
	Questions  Questions // optional
	Hub        *Hub      // optional; created by Start when nil
	Gatherer   prometheus.Gatherer
	Health     map[string]HealthChecker
	Version    string
}

// Server is the HTTP control API.
//
// Thread Safety: all methods are safe for concurrent use.
type Server struct {
	cfg       config.APIConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	sup       Supervisor
	questions Questions
	gatherer  prometheus.Gatherer
	health    map[string]HealthChecker
	version   string
	startTime time.Time

	hub         *Hub
	externalHub bool
	tickets     *ticketStore

	mu     sync.Mutex
	server *http.Server
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Supervisor == nil {
		return nil, errors.New("supervisor is required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}

	s := &Server{
		cfg:       deps.Config,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		sup:       deps.Supervisor,
		questions: deps.Questions,
		gatherer:  deps.Gatherer,
		health:    deps.Health,
		version:   deps.Version,
		startTime: time.Now(),
		tickets:   newTicketStore(),
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	return s, nil
}

// Hub returns the WebSocket hub; it implements supervisor.Publisher.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start runs the hub and the HTTP listener in background goroutines.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return errors.New("api server already started")
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}
	go s.tickets.cleanLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	srv := s.server
	go func() {
		s.logger.Info("API server starting", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Close gracefully shuts down the API server.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	err := s.server.Shutdown(ctx)
	s.server = nil
	if err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
