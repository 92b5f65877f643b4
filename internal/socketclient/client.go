package socketclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codefionn/netserver/internal/consts"
	"github.com/codefionn/netserver/internal/logger"
	"github.com/codefionn/netserver/internal/message"
)

// ErrNotConnected is returned when the client has no open connection
var ErrNotConnected = errors.New("not connected")

// ErrAlreadyConnected is returned by Connect on a connected client
var ErrAlreadyConnected = errors.New("already connected")

// ConnectionState represents the current state of the connection
type ConnectionState int32

const (
	// StateDisconnected indicates the client is not connected
	StateDisconnected ConnectionState = iota
	// StateConnecting indicates a dial is in progress
	StateConnecting
	// StateConnected indicates the client is connected
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Config holds client configuration
type Config struct {
	// Host is the server host
	Host string
	// Port is the server port
	Port int
	// ConnectTimeout bounds the dial
	ConnectTimeout time.Duration
	// WriteTimeout bounds every send. Zero disables the bound.
	WriteTimeout time.Duration
	// BufferSize is the size of a single read
	BufferSize int
	// PollInterval bounds each read of the background receiver, and with
	// it how long StopReceiving waits
	PollInterval time.Duration
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Host:           consts.DefaultHost,
		Port:           consts.DefaultPort,
		ConnectTimeout: consts.Timeout10Seconds,
		WriteTimeout:   consts.Timeout10Seconds,
		BufferSize:     consts.BufferSize1KB,
		PollInterval:   consts.Timeout100Milliseconds,
	}
}

// Address returns the host:port pair to dial
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Client is a protocol client. Send and Receive may be used from different
// goroutines; concurrent Receive calls are serialized.
type Client struct {
	config *Config
	log    *logger.Logger

	connMu sync.Mutex
	conn   net.Conn
	state  atomic.Int32

	writeMu sync.Mutex

	readMu  sync.Mutex
	frames  *message.FrameBuffer
	pending [][]byte

	recvMu sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a disconnected client
func New(config *Config, log *logger.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = consts.BufferSize1KB
	}
	if config.PollInterval <= 0 {
		config.PollInterval = consts.Timeout100Milliseconds
	}
	if log == nil {
		log = logger.Global()
	}
	c := &Client{
		config: config,
		log:    log,
		frames: message.NewFrameBuffer(0),
	}
	c.state.Store(int32(StateDisconnected))
	return c
}

// State returns the connection state
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// IsConnected reports whether the client holds an open connection
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Connect dials the server
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		return ErrAlreadyConnected
	}

	addr := c.config.Address()
	c.log.Info("Connecting to %s...", addr)
	c.state.Store(int32(StateConnecting))

	dialer := net.Dialer{Timeout: c.config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		c.log.Error("Failed to connect: %v", err)
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	c.conn = conn
	c.readMu.Lock()
	c.frames = message.NewFrameBuffer(0)
	c.pending = nil
	c.readMu.Unlock()
	c.state.Store(int32(StateConnected))
	c.log.Info("Connected to %s", addr)
	return nil
}

// Disconnect stops the background receiver and closes the connection. It
// is safe to call on a disconnected client.
func (c *Client) Disconnect() error {
	c.StopReceiving()

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return nil
	}

	c.log.Info("Disconnecting...")
	err := c.conn.Close()
	c.conn = nil
	c.state.Store(int32(StateDisconnected))
	c.log.Info("Disconnected")
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (c *Client) current() net.Conn {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn
}

// dropConnection closes conn after an I/O failure unless it was already
// replaced or closed
func (c *Client) dropConnection(conn net.Conn) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != conn {
		return
	}
	c.conn.Close()
	c.conn = nil
	c.state.Store(int32(StateDisconnected))
}

// Send writes msg as one frame
func (c *Client) Send(msg *message.Message) error {
	conn := c.current()
	if conn == nil {
		return ErrNotConnected
	}

	frame, err := message.Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.config.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
			c.log.Error("Error setting write deadline: %v", err)
			c.dropConnection(conn)
			return fmt.Errorf("send %s: set write deadline: %w", msg.Type, err)
		}
	}
	if _, err := conn.Write(frame); err != nil {
		c.log.Error("Error sending message: %v", err)
		c.dropConnection(conn)
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}

	c.log.Debug("Sent message: %s", msg.Type)
	return nil
}

// SendText sends a text message
func (c *Client) SendText(text string) error {
	return c.Send(message.New(message.TypeText, text))
}

// SendPing sends a ping message
func (c *Client) SendPing() error {
	return c.Send(message.New(message.TypePing, "ping"))
}

// SendEcho sends an echo request carrying payload
func (c *Client) SendEcho(payload interface{}) error {
	return c.Send(message.New(message.TypeEcho, payload))
}

// Receive waits up to timeout for the next message. It returns nil and no
// error when the wait expires. A timeout <= 0 waits until a message arrives.
// When the server closes the connection, a buffered partial frame is still
// returned; after that Receive reports ErrNotConnected.
func (c *Client) Receive(timeout time.Duration) (*message.Message, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if frame, ok := c.nextPending(); ok {
		return message.Parse(frame), nil
	}

	conn := c.current()
	if conn == nil {
		return nil, ErrNotConnected
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	buf := make([]byte, c.config.BufferSize)

	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			c.dropConnection(conn)
			return nil, ErrNotConnected
		}

		n, err := conn.Read(buf)
		if n > 0 {
			c.log.Debug("Received: %d bytes", n)
			c.frames.Write(buf[:n])
			c.pending = append(c.pending, c.frames.Frames()...)
			if frame, ok := c.nextPending(); ok {
				return message.Parse(frame), nil
			}
		}
		if err == nil {
			continue
		}

		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, nil
		}
		if errors.Is(err, io.EOF) {
			c.log.Warn("Connection closed by server")
		} else if !errors.Is(err, net.ErrClosed) {
			c.log.Error("Error receiving data: %v", err)
		}
		c.dropConnection(conn)

		if rest := c.frames.Flush(); rest != nil {
			return message.Parse(rest), nil
		}
		return nil, ErrNotConnected
	}
}

func (c *Client) nextPending() ([]byte, bool) {
	if len(c.pending) == 0 {
		return nil, false
	}
	frame := c.pending[0]
	c.pending = c.pending[1:]
	return frame, true
}

// receiveType waits until a message of msgType arrives or timeout passes.
// Other messages are discarded.
func (c *Client) receiveType(msgType string, timeout time.Duration) (*message.Message, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		msg, err := c.Receive(remaining)
		if err != nil || msg == nil {
			return nil, err
		}
		if msg.Type == msgType {
			return msg, nil
		}
		c.log.Debug("Skipping %s while waiting for %s", msg.Type, msgType)
	}
}

// PingServer sends a ping and reports whether a pong arrived within timeout
func (c *Client) PingServer(timeout time.Duration) bool {
	if err := c.SendPing(); err != nil {
		return false
	}
	msg, err := c.receiveType(message.TypePong, timeout)
	return err == nil && msg != nil
}

// EchoTest sends text as an echo request and returns the echoed payload
func (c *Client) EchoTest(text string, timeout time.Duration) (string, error) {
	if err := c.SendEcho(text); err != nil {
		return "", err
	}
	msg, err := c.receiveType(message.TypeEchoResp, timeout)
	if err != nil {
		return "", err
	}
	if msg == nil {
		return "", fmt.Errorf("no echo response within %s", timeout)
	}
	return msg.PayloadString(), nil
}

// StartReceiving runs fn for every incoming message on a background
// goroutine until StopReceiving or Disconnect is called, or the server
// closes the connection. fn must not call StopReceiving or Disconnect.
func (c *Client) StartReceiving(fn func(*message.Message)) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.recvMu.Lock()
	defer c.recvMu.Unlock()
	if c.stopCh != nil {
		return errors.New("receiver already running")
	}

	stopCh := make(chan struct{})
	c.stopCh = stopCh
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			// a receiver that ended on its own must not block the next one
			c.recvMu.Lock()
			if c.stopCh == stopCh {
				c.stopCh = nil
			}
			c.recvMu.Unlock()
		}()
		for {
			select {
			case <-stopCh:
				return
			default:
			}

			msg, err := c.Receive(c.config.PollInterval)
			if err != nil {
				c.log.Debug("Receiver stopped: %v", err)
				return
			}
			if msg != nil {
				fn(msg)
			}
		}
	}()
	return nil
}

// StopReceiving signals the background receiver and waits for it to exit
func (c *Client) StopReceiving() {
	c.recvMu.Lock()
	stopCh := c.stopCh
	c.stopCh = nil
	c.recvMu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	c.wg.Wait()
}
