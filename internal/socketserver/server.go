package socketserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/codefionn/netserver/internal/config"
	"github.com/codefionn/netserver/internal/logger"
	"github.com/codefionn/netserver/internal/message"
	"github.com/codefionn/netserver/internal/metrics"
)

// State is the lifecycle stage of a Server
type State int32

const (
	// StateStopped means the reactor is not running
	StateStopped State = iota
	// StateRunning means the reactor loop is processing passes
	StateRunning
	// StateStopping means the loop will exit after the current pass
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

var (
	// ErrAlreadyRunning is returned when starting a server twice
	ErrAlreadyRunning = errors.New("server is already running")
	// ErrNotListening is returned by Serve before a successful Listen
	ErrNotListening = errors.New("server is not listening")
	// ErrServerClosed is returned when reusing a stopped server
	ErrServerClosed = errors.New("server closed")
)

// BindError reports a failure to open the listening socket
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to listen on %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// Option configures a Server
type Option func(*Server)

// WithHandler replaces the base protocol
func WithHandler(h Handler) Option {
	return func(s *Server) {
		s.handler = h
	}
}

// WithMetrics records reactor activity in c
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) {
		s.metrics = c
	}
}

// WithPollInterval overrides the bounded readiness wait of one pass
func WithPollInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// Server is a single-threaded TCP reactor. One goroutine accepts, reads and
// dispatches; handlers run synchronously inside the loop.
type Server struct {
	cfg          *config.Config
	log          *logger.Logger
	handler      Handler
	table        *Table
	metrics      *metrics.Collector
	pollInterval time.Duration

	mu       sync.Mutex
	listener *net.TCPListener
	raw      syscall.RawConn

	state    atomic.Int32
	finished atomic.Bool
	done     chan struct{}
	doneOnce sync.Once
}

// NewServer creates a stopped server. The base protocol handles messages
// unless WithHandler or SetHandler installs another handler.
func NewServer(cfg *config.Config, log *logger.Logger, opts ...Option) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = logger.Global()
	}
	s := &Server{
		cfg:          cfg,
		log:          log,
		table:        NewTable(cfg.MaxConnections, log),
		pollInterval: cfg.PollInterval(),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.handler == nil {
		s.handler = NewBaseProtocol(log)
	}
	return s
}

// SetHandler installs h before the server starts. It exists for handlers
// that need the server itself, such as ones that broadcast.
func (s *Server) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Config returns the server configuration
func (s *Server) Config() *config.Config {
	return s.cfg
}

// Listen validates the configuration and binds the listening socket
func (s *Server) Listen() error {
	if s.finished.Load() {
		return ErrServerClosed
	}
	if s.State() != StateStopped {
		return ErrAlreadyRunning
	}
	if err := s.cfg.Validate(); err != nil {
		s.log.Fatal("Invalid server configuration: %v", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return ErrAlreadyRunning
	}

	addr := s.cfg.Address()
	lc := net.ListenConfig{Control: reuseAddr}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		s.log.Fatal("Failed to start server: %v", err)
		return &BindError{Addr: addr, Err: err}
	}

	tcp, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return &BindError{Addr: addr, Err: fmt.Errorf("unexpected listener type %T", ln)}
	}
	raw, err := tcp.SyscallConn()
	if err != nil {
		tcp.Close()
		return &BindError{Addr: addr, Err: err}
	}

	s.listener = tcp
	s.raw = raw
	s.log.Info("Server listening on %s (max connections: %d)", tcp.Addr(), s.cfg.MaxConnections)
	return nil
}

// Serve runs the reactor loop until ctx is cancelled or Stop is called. It
// closes every connection and the listener before returning.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	handler := s.handler
	ready := s.listener != nil
	s.mu.Unlock()
	if !ready {
		return ErrNotListening
	}
	if !s.state.CompareAndSwap(int32(StateStopped), int32(StateRunning)) {
		return ErrAlreadyRunning
	}
	defer s.shutdown()

	s.log.Info("Server started on %s", s.Addr())
	for {
		if ctx.Err() != nil {
			s.log.Info("Reactor stopped via context cancellation")
			return nil
		}
		if s.State() != StateRunning {
			return nil
		}
		s.pass(handler)
	}
}

// Start binds and serves. It blocks until the server stops.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Stop asks the reactor to exit after the current pass. A server that was
// bound but never served releases its listener immediately.
func (s *Server) Stop() error {
	if s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		s.log.Info("Stopping server...")
		return nil
	}
	if s.State() == StateStopped {
		s.mu.Lock()
		bound := s.listener != nil
		s.mu.Unlock()
		if bound {
			s.shutdown()
		}
	}
	return nil
}

// Done is closed once the server has fully stopped
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// State returns the lifecycle stage
func (s *Server) State() State {
	return State(s.state.Load())
}

// IsRunning reports whether the reactor loop is active
func (s *Server) IsRunning() bool {
	return s.State() == StateRunning
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

// ConnectionCount returns the number of tracked connections
func (s *Server) ConnectionCount() int {
	return s.table.Len()
}

// Broadcast sends a message to every open connection except exclude. It
// must be called from a handler, while the reactor holds the table lock.
func (s *Server) Broadcast(msgType string, payload interface{}, exclude uint64) int {
	n := s.table.Broadcast(msgType, payload, exclude)
	s.metrics.BroadcastDelivered(n)
	return n
}

// pass runs one iteration of the reactor loop
func (s *Server) pass(handler Handler) {
	conns := s.table.Open()
	listenerReady, ready, err := waitReadable(s.raw, conns, s.pollInterval)
	if err != nil {
		s.log.Error("Readiness wait failed: %v", err)
		time.Sleep(s.pollInterval)
		return
	}
	start := time.Now()

	if listenerReady {
		s.acceptOne()
	}

	s.table.mu.Lock()
	for i, c := range conns {
		if ready[i] && !c.IsClosed() {
			s.service(c, handler)
		}
	}
	pruned := s.table.pruneLocked()
	active := len(s.table.conns)
	s.table.mu.Unlock()

	if len(pruned) > 0 {
		s.metrics.ConnectionsPruned(len(pruned), active)
	}
	s.metrics.ObservePass(time.Since(start))
}

// acceptOne accepts at most one pending connection
func (s *Server) acceptOne() {
	s.listener.SetDeadline(time.Now().Add(acceptWait))
	conn, err := s.listener.Accept()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return
		}
		if errors.Is(err, net.ErrClosed) {
			return
		}
		s.log.Error("Error accepting connection: %v", err)
		return
	}

	c, err := s.table.Add(conn, ConnOptions{
		WriteTimeout: s.cfg.Timeout(),
		MaxFrameSize: s.cfg.MaxFrameSize,
	})
	if err != nil {
		s.log.Warn("Max connections reached, rejecting connection from %s", conn.RemoteAddr())
		s.metrics.ConnectionRejected()
		conn.Close()
		return
	}

	active := s.table.Len()
	s.log.Info("New connection accepted: %s (total: %d)", c, active)
	s.metrics.ConnectionAccepted(active)
}

// service reads once from c and dispatches every complete frame. Frames
// after a handler closed the connection are dropped; frames that arrived
// before the peer hung up are still handled.
func (s *Server) service(c *Connection, handler Handler) {
	frames := c.ReadFrames(s.cfg.BufferSize)
	peerClosed := c.IsClosed()

	for _, frame := range frames {
		if !peerClosed && c.IsClosed() {
			return
		}
		msg, decodeErr := message.Decode(frame)
		if decodeErr != nil {
			msg = message.Parse(frame)
		}
		s.metrics.MessageReceived(msg.Type, decodeErr != nil)

		if err := s.dispatch(handler, msg, c); err != nil {
			if errors.Is(err, ErrClosed) {
				continue
			}
			s.log.Error("Error processing connection %d: %v", c.ID(), err)
			s.metrics.DispatchError()
			c.Close()
			return
		}
	}
}

func (s *Server) dispatch(handler Handler, msg *message.Message, c *Connection) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler.Handle(msg, c)
}

func (s *Server) shutdown() {
	s.doneOnce.Do(func() {
		s.table.CloseAll()

		s.mu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				s.log.Error("Error closing listener: %v", err)
			}
		}
		s.mu.Unlock()

		s.finished.Store(true)
		s.state.Store(int32(StateStopped))
		close(s.done)
		s.log.Info("Server stopped")
	})
}
