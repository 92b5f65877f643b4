//go:build linux || darwin

package socketserver

import (
	"errors"
	"io"

	"golang.org/x/sys/unix"
)

// read issues a single read(2) on the socket descriptor and never parks the
// goroutine, so an idle connection reports errWouldBlock immediately.
func (c *Connection) read(buf []byte) (int, error) {
	if c.raw == nil {
		return c.readWithDeadline(buf)
	}

	var n int
	var opErr error
	err := c.raw.Read(func(fd uintptr) bool {
		n, opErr = unix.Read(int(fd), buf)
		return true
	})
	if err != nil {
		return 0, err
	}

	switch {
	case errors.Is(opErr, unix.EAGAIN), errors.Is(opErr, unix.EINTR):
		return 0, errWouldBlock
	case opErr != nil:
		return 0, opErr
	case n == 0:
		return 0, io.EOF
	}
	return n, nil
}

// fd returns the socket descriptor for readiness polling
func (c *Connection) fd() (int, bool) {
	return rawFD(c.raw)
}
