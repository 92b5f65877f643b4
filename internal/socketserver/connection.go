package socketserver

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/codefionn/netserver/internal/consts"
	"github.com/codefionn/netserver/internal/logger"
	"github.com/codefionn/netserver/internal/message"
)

// ErrClosed is returned when sending on a connection that was already closed
var ErrClosed = errors.New("connection closed")

// errWouldBlock signals that a non-blocking read found no data
var errWouldBlock = errors.New("no data available")

// ConnOptions tunes a single accepted connection
type ConnOptions struct {
	// WriteTimeout bounds every send. Zero disables the bound.
	WriteTimeout time.Duration
	// MaxFrameSize bounds a buffered partial frame
	MaxFrameSize int
}

// Connection is one accepted TCP client. Receive and Send are meant to be
// called from the reactor goroutine; Close and IsClosed are safe from any
// goroutine.
type Connection struct {
	id         uint64
	conn       net.Conn
	raw        syscall.RawConn
	remoteAddr string
	remotePort int
	opts       ConnOptions
	frames     *message.FrameBuffer
	log        *logger.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewConnection wraps an accepted socket. Sockets that expose a raw file
// descriptor are read without blocking; other net.Conn implementations fall
// back to a very short read deadline.
func NewConnection(id uint64, conn net.Conn, opts ConnOptions, log *logger.Logger) *Connection {
	if log == nil {
		log = logger.Global()
	}
	c := &Connection{
		id:     id,
		conn:   conn,
		opts:   opts,
		frames: message.NewFrameBuffer(opts.MaxFrameSize),
		log:    log,
	}
	if sc, ok := conn.(syscall.Conn); ok {
		if raw, err := sc.SyscallConn(); err == nil {
			c.raw = raw
		}
	}
	c.remoteAddr, c.remotePort = splitAddr(conn.RemoteAddr())

	log.Info("Connection %d established from %s:%d", id, c.remoteAddr, c.remotePort)
	return c
}

func splitAddr(addr net.Addr) (string, int) {
	if addr == nil {
		return "unknown", 0
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String(), tcp.Port
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}
	p, _ := strconv.Atoi(port)
	return host, p
}

// ID returns the table-assigned connection id
func (c *Connection) ID() uint64 {
	return c.id
}

// RemoteAddr returns the peer host
func (c *Connection) RemoteAddr() string {
	return c.remoteAddr
}

// RemotePort returns the peer port
func (c *Connection) RemotePort() int {
	return c.remotePort
}

// IsClosed reports whether Close has been called
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}

func (c *Connection) String() string {
	return fmt.Sprintf("Connection(%d, %s:%d)", c.id, c.remoteAddr, c.remotePort)
}

// Receive performs one read of at most max bytes without waiting. It
// returns nil when no data is available or the connection is closed. End of
// stream and read errors close the connection.
func (c *Connection) Receive(max int) []byte {
	if c.IsClosed() {
		return nil
	}
	if max <= 0 {
		max = consts.BufferSize1KB
	}

	buf := make([]byte, max)
	n, err := c.read(buf)
	switch {
	case errors.Is(err, errWouldBlock):
		return nil
	case errors.Is(err, io.EOF):
		c.log.Info("Connection %d closed by peer", c.id)
		c.Close()
		return nil
	case isResetError(err):
		c.log.Warn("Connection %d reset by peer: %v", c.id, err)
		c.Close()
		return nil
	case err != nil:
		c.log.Error("Error receiving data from connection %d: %v", c.id, err)
		c.Close()
		return nil
	}

	c.log.Debug("Connection %d received %d bytes", c.id, n)
	return buf[:n]
}

// ReadFrames receives once and returns every complete frame buffered so far.
// When the read closed the connection, a trailing partial frame is returned
// as the last frame.
func (c *Connection) ReadFrames(max int) [][]byte {
	if data := c.Receive(max); data != nil {
		c.frames.Write(data)
	}
	frames := c.frames.Frames()
	if c.IsClosed() {
		if rest := c.frames.Flush(); rest != nil {
			frames = append(frames, rest)
		}
	}
	return frames
}

// readWithDeadline is the portable read used when no raw descriptor exists
func (c *Connection) readWithDeadline(buf []byte) (int, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(consts.Timeout1Millisecond)); err != nil {
		return 0, err
	}
	n, err := c.conn.Read(buf)
	if n > 0 {
		return n, nil
	}
	if err == nil || errors.Is(err, os.ErrDeadlineExceeded) {
		return 0, errWouldBlock
	}
	return 0, err
}

// Send writes data in full, bounded by the write timeout. Any failure closes
// the connection.
func (c *Connection) Send(data []byte) error {
	if c.IsClosed() {
		return ErrClosed
	}

	if c.opts.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
			c.log.Error("Error sending data to connection %d: %v", c.id, err)
			c.Close()
			return fmt.Errorf("connection %d: %w", c.id, err)
		}
	}

	if _, err := c.conn.Write(data); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			c.log.Warn("Send to connection %d timed out after %s", c.id, c.opts.WriteTimeout)
		} else {
			c.log.Error("Error sending data to connection %d: %v", c.id, err)
		}
		c.Close()
		return fmt.Errorf("connection %d: %w", c.id, err)
	}

	c.log.Debug("Connection %d sent %d bytes", c.id, len(data))
	return nil
}

// SendMessage encodes msg as one frame and sends it
func (c *Connection) SendMessage(msg *message.Message) error {
	frame, err := message.Encode(msg)
	if err != nil {
		return err
	}
	return c.Send(frame)
}

// Close shuts the socket. Only the first call has any effect.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.closeErr = err
			c.log.Error("Error closing connection %d: %v", c.id, err)
		}
		c.log.Info("Connection %d closed", c.id)
	})
	return c.closeErr
}

func isResetError(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE)
}
