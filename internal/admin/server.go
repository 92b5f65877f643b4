// Package admin serves the operational HTTP endpoint of a reactor: health,
// Prometheus metrics and, when enabled, pprof profiles.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	netpprof "net/http/pprof"
	"sync"

	"github.com/codefionn/netserver/internal/consts"
	"github.com/codefionn/netserver/internal/logger"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status is the health report of a reactor
type Status struct {
	State          string   `json:"state"`
	Address        string   `json:"address"`
	Connections    int      `json:"connections"`
	MaxConnections int      `json:"max_connections"`
	Members        []string `json:"members,omitempty"`
}

// Healthy reports whether the reactor is accepting connections
func (s Status) Healthy() bool {
	return s.State == "running"
}

// StatusFunc reports the current reactor status
type StatusFunc func() Status

// Option configures a Server
type Option func(*Server)

// WithGatherer serves metrics from g instead of the default registry
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithPprof mounts the pprof handlers under /debug/pprof/
func WithPprof(enabled bool) Option {
	return func(s *Server) {
		s.pprof = enabled
	}
}

// WithLogger sets the logger for requests and server errors
func WithLogger(l *logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// Server provides the admin HTTP interface
type Server struct {
	addr     string
	status   StatusFunc
	gatherer prometheus.Gatherer
	pprof    bool
	log      *logger.Logger
	router   *httprouter.Router

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer creates an admin server bound to addr once Listen is called
func NewServer(addr string, status StatusFunc, opts ...Option) *Server {
	s := &Server{
		addr:     addr,
		status:   status,
		gatherer: prometheus.DefaultGatherer,
		log:      logger.Global(),
		router:   httprouter.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

// Handler returns the routed handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	s.router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{
		ErrorLog: logger.NewErrorLog(s.log, "metrics"),
	}))

	if s.pprof {
		s.router.GET("/debug/pprof/*name", handlePprof)
	}
}

// Listen binds the admin address
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind admin server on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: consts.Timeout5Seconds,
		ErrorLog:          logger.NewErrorLog(s.log, "http"),
	}
	return nil
}

// Addr returns the bound address, or nil before Listen
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve blocks serving requests until Stop is called
func (s *Server) Serve() error {
	s.mu.Lock()
	srv, ln := s.server, s.listener
	s.mu.Unlock()
	if srv == nil {
		return errors.New("admin server is not listening")
	}

	s.log.Info("Admin server listening on %s", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down, waiting up to five seconds for requests
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), consts.Timeout5Seconds)
	defer cancel()

	return srv.Shutdown(ctx)
}

// Run listens and serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := s.Stop(); err != nil {
			return err
		}
		return <-errCh
	}
}

// handleHealth returns the reactor status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	status := s.status()

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.log.Warn("Failed to write health response: %v", err)
	}
}

func handlePprof(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	switch ps.ByName("name") {
	case "/cmdline":
		netpprof.Cmdline(w, r)
	case "/profile":
		netpprof.Profile(w, r)
	case "/symbol":
		netpprof.Symbol(w, r)
	case "/trace":
		netpprof.Trace(w, r)
	default:
		netpprof.Index(w, r)
	}
}
